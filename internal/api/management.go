package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/Mugen-GS/MUGEN-STORE/internal/contacts"
	"github.com/Mugen-GS/MUGEN-STORE/internal/genai"
	"github.com/Mugen-GS/MUGEN-STORE/internal/rowstore"
)

const maxManagementBodySize = 256 << 10 // 256KB

type knowledgeRequest struct {
	Category string `json:"category"`
	Key      string `json:"key"`
	Value    string `json:"value"`
	Notes    string `json:"notes"`
}

func handleAddKnowledge(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, maxManagementBodySize)
		defer r.Body.Close()

		var req knowledgeRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid request body: %v", err)
			return
		}
		if req.Key == "" || req.Value == "" {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "key and value are required")
			return
		}

		if err := deps.Knowledge.Add(r.Context(), req.Category, req.Key, req.Value, req.Notes); err != nil {
			httpError(w, http.StatusBadGateway, "api_error", "saving knowledge: %v", err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]bool{"success": true})
	}
}

func handleGetKnowledge(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		base, err := deps.Knowledge.LoadAll(r.Context())
		if err != nil {
			httpError(w, http.StatusBadGateway, "api_error", "loading knowledge: %v", err)
			return
		}

		grouped := make(map[string]map[string]string)
		for _, category := range base.Categories() {
			grouped[category] = base.Entries(category)
		}
		writeJSON(w, http.StatusOK, grouped)
	}
}

func handleStats(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		training, err := deps.Knowledge.LoadTraining(r.Context())
		if err != nil {
			httpError(w, http.StatusBadGateway, "api_error", "loading training data: %v", err)
			return
		}
		base, err := deps.Knowledge.LoadAll(r.Context())
		if err != nil {
			httpError(w, http.StatusBadGateway, "api_error", "loading knowledge: %v", err)
			return
		}
		contactCount, err := deps.Contacts.Count(r.Context())
		if err != nil {
			httpError(w, http.StatusBadGateway, "api_error", "counting contacts: %v", err)
			return
		}

		writeJSON(w, http.StatusOK, map[string]int{
			"trainingExamples": len(training),
			"memoryItems":      base.Len(),
			"totalContacts":    contactCount,
		})
	}
}

type testChatRequest struct {
	Message string `json:"message"`
	Phone   string `json:"phone"`
}

// handleTestChat runs the same pipeline as an inbound WhatsApp message minus
// the outbound send, so prompt and persistence behavior can be exercised
// without a phone in hand.
func handleTestChat(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, maxManagementBodySize)
		defer r.Body.Close()

		var req testChatRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid request body: %v", err)
			return
		}
		if req.Message == "" || req.Phone == "" {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "message and phone are required")
			return
		}

		if _, err := deps.Contacts.Upsert(r.Context(), req.Phone, ""); err != nil {
			httpError(w, http.StatusBadGateway, "api_error", "upserting contact: %v", err)
			return
		}

		prompt := deps.Composer.BuildPrompt(r.Context(), req.Phone)
		full := fmt.Sprintf("%sUser: %s\nAssistant:", prompt, req.Message)

		reply, err := deps.Generator.Generate(r.Context(), full)
		if err != nil {
			reply = genai.FallbackReply
		}

		if err := deps.Contacts.AppendTurn(r.Context(), req.Phone, req.Message, reply); err != nil {
			httpError(w, http.StatusBadGateway, "api_error", "saving conversation: %v", err)
			return
		}

		writeJSON(w, http.StatusOK, map[string]string{"response": reply})
	}
}

func handleTestHistory(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		phone := r.URL.Query().Get("phone")
		if phone == "" {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "phone is required")
			return
		}

		history, err := deps.Contacts.History(r.Context(), phone, 20)
		if err != nil {
			if errors.Is(err, rowstore.ErrNotFound) {
				writeJSON(w, http.StatusOK, map[string][]contacts.Turn{"history": {}})
				return
			}
			httpError(w, http.StatusBadGateway, "api_error", "loading history: %v", err)
			return
		}

		writeJSON(w, http.StatusOK, map[string][]contacts.Turn{"history": history})
	}
}
