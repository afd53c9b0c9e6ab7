// Package api exposes the HTTP surface: the WhatsApp webhook, a health
// endpoint, and bearer-protected management routes.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/Mugen-GS/MUGEN-STORE/internal/contacts"
	"github.com/Mugen-GS/MUGEN-STORE/internal/genai"
	"github.com/Mugen-GS/MUGEN-STORE/internal/knowledge"
	"github.com/Mugen-GS/MUGEN-STORE/internal/lead"
	"github.com/Mugen-GS/MUGEN-STORE/internal/rowstore"
	"github.com/Mugen-GS/MUGEN-STORE/internal/whatsapp"
)

const maxWebhookBodySize = 1 << 20 // 1MB

// fullHistoryLimit bounds the history fetched for lead scoring.
const fullHistoryLimit = 100

// TextGenerator is the text-generation collaborator.
type TextGenerator interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

// Messenger is the outbound messaging gateway.
type Messenger interface {
	SendText(ctx context.Context, to, body string) error
	MarkRead(ctx context.Context, messageID string) error
}

// PromptBuilder assembles the system prompt for a contact.
type PromptBuilder interface {
	BuildPrompt(ctx context.Context, phone string) string
}

// Deps carries everything the HTTP layer orchestrates.
type Deps struct {
	Contacts  *contacts.Store
	Knowledge *knowledge.Store
	Composer  PromptBuilder
	Generator TextGenerator
	Messenger Messenger

	// Token guards the management routes.
	Token string
	// VerifyToken answers the Meta webhook verification handshake.
	VerifyToken string
}

// NewRouter builds the full route tree. Webhook routes are open (Meta does
// not send a bearer token); management routes require the configured token.
func NewRouter(deps Deps) http.Handler {
	r := chi.NewRouter()

	r.Get("/health", handleHealth)
	r.Get("/webhook", handleVerify(deps.VerifyToken))
	r.Post("/webhook", handleWebhook(deps))

	r.Group(func(r chi.Router) {
		r.Use(BearerAuth(deps.Token))
		r.Post("/api/business-info", handleAddKnowledge(deps))
		r.Get("/api/business-info", handleGetKnowledge(deps))
		r.Get("/api/stats", handleStats(deps))
		r.Post("/api/test-chat", handleTestChat(deps))
		r.Get("/api/test-history", handleTestHistory(deps))
	})

	return r
}

func handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status":    "ok",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

// handleVerify implements the hub.challenge handshake Meta performs when the
// webhook URL is registered.
func handleVerify(verifyToken string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		if q.Get("hub.mode") == "subscribe" && q.Get("hub.verify_token") == verifyToken {
			w.Write([]byte(q.Get("hub.challenge")))
			return
		}
		httpError(w, http.StatusForbidden, "authentication_error", "webhook verification failed")
	}
}

func handleWebhook(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, maxWebhookBodySize)
		defer r.Body.Close()

		var payload whatsapp.WebhookPayload
		if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
			httpError(w, http.StatusInternalServerError, "invalid_request_error", "invalid webhook body: %v", err)
			return
		}

		if payload.Object == "whatsapp_business_account" {
			for _, entry := range payload.Entry {
				for _, change := range entry.Changes {
					processChange(r.Context(), deps, change.Value)
				}
			}
		}

		w.WriteHeader(http.StatusOK)
	}
}

// processChange handles one webhook change value: inbound messages get the
// full conversational pipeline, status receipts are only observed. Failures
// never bubble up to the webhook response; a storage or upstream hiccup must
// not make Meta retry the delivery.
func processChange(ctx context.Context, deps Deps, value whatsapp.ChangeValue) {
	names := senderNames(value.Contacts)

	for _, msg := range value.Messages {
		processMessage(ctx, deps, msg, names[msg.From])
	}
	for _, status := range value.Statuses {
		slog.Info("status update", "status", status.Status, "message_id", status.ID)
	}
}

func processMessage(ctx context.Context, deps Deps, msg whatsapp.Message, profileName string) {
	logger := slog.With("event_id", uuid.NewString(), "from", contacts.Normalize(msg.From))

	if err := deps.Messenger.MarkRead(ctx, msg.ID); err != nil {
		logger.Warn("marking message as read failed", "error", err)
	}

	if msg.Type != "text" || msg.Text == nil {
		logger.Info("unhandled message type", "type", msg.Type)
		return
	}
	text := msg.Text.Body
	logger.Info("inbound message", "length", len(text))

	// One identity row per normalized number; the upsert also counts the turn.
	contact, err := deps.Contacts.Upsert(ctx, msg.From, profileName)
	if err != nil {
		// Degrade rather than drop the conversation: the reply pipeline can
		// still run without a persisted contact.
		logger.Warn("contact upsert failed", "error", err)
		contact = contacts.Contact{PhoneNumber: contacts.Normalize(msg.From)}
	}

	prompt := deps.Composer.BuildPrompt(ctx, msg.From)
	full := fmt.Sprintf("%sUser: %s\nAssistant:", prompt, text)

	reply, err := deps.Generator.Generate(ctx, full)
	if err != nil {
		logger.Warn("generation failed, sending fallback", "error", err)
		reply = genai.FallbackReply
	}

	if err := deps.Contacts.AppendTurn(ctx, msg.From, text, reply); err != nil {
		logger.Warn("appending turns failed", "error", err)
	}

	if lead.DetectIntent(text) {
		scoreAndTag(ctx, deps, logger, msg.From)
	}

	if err := deps.Messenger.SendText(ctx, msg.From, reply); err != nil {
		// No retry queue: the customer simply does not get this reply.
		logger.Error("sending reply failed", "to", contact.PhoneNumber, "error", err)
		return
	}
	logger.Info("reply sent")
}

// scoreAndTag recomputes the lead score over the full history and promotes
// the contact's status when the score clears a threshold.
func scoreAndTag(ctx context.Context, deps Deps, logger *slog.Logger, phone string) {
	history, err := deps.Contacts.History(ctx, phone, fullHistoryLimit)
	if err != nil && !errors.Is(err, rowstore.ErrNotFound) {
		logger.Warn("loading history for scoring failed", "error", err)
		return
	}

	score := lead.Score(history)
	logger.Info("buying intent detected", "score", score)

	status, ok := lead.Classify(score)
	if !ok {
		return
	}
	if err := deps.Contacts.SetLeadStatus(ctx, phone, status); err != nil {
		logger.Warn("updating lead status failed", "status", status, "error", err)
	}
}

func senderNames(waContacts []whatsapp.Contact) map[string]string {
	if len(waContacts) == 0 {
		return nil
	}
	names := make(map[string]string, len(waContacts))
	for _, c := range waContacts {
		if c.Profile.Name != "" {
			names[c.WaID] = c.Profile.Name
		}
	}
	return names
}
