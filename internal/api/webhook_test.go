package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/Mugen-GS/MUGEN-STORE/internal/contacts"
	"github.com/Mugen-GS/MUGEN-STORE/internal/genai"
	"github.com/Mugen-GS/MUGEN-STORE/internal/knowledge"
	"github.com/Mugen-GS/MUGEN-STORE/internal/rowstore"
)

type mockGenerator struct {
	mu      sync.Mutex
	prompts []string
	reply   string
	err     error
}

func (m *mockGenerator) Generate(ctx context.Context, prompt string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.prompts = append(m.prompts, prompt)
	return m.reply, m.err
}

type sentMessage struct {
	To   string
	Body string
}

type mockMessenger struct {
	mu      sync.Mutex
	sent    []sentMessage
	read    []string
	sendErr error
}

func (m *mockMessenger) SendText(ctx context.Context, to, body string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.sendErr != nil {
		return m.sendErr
	}
	m.sent = append(m.sent, sentMessage{To: to, Body: body})
	return nil
}

func (m *mockMessenger) MarkRead(ctx context.Context, messageID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.read = append(m.read, messageID)
	return nil
}

type mockComposer struct {
	prompt string
}

func (m mockComposer) BuildPrompt(ctx context.Context, phone string) string {
	return m.prompt
}

type testEnv struct {
	deps      Deps
	generator *mockGenerator
	messenger *mockMessenger
	contacts  *contacts.Store
	server    *httptest.Server
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	rows, err := rowstore.OpenSQLite(":memory:")
	if err != nil {
		t.Fatalf("opening store: %v", err)
	}
	t.Cleanup(func() { rows.Close() })
	if err := rows.InitializeSchema(context.Background()); err != nil {
		t.Fatalf("initializing schema: %v", err)
	}

	env := &testEnv{
		generator: &mockGenerator{reply: "Sure, we have sleeper builds in stock!"},
		messenger: &mockMessenger{},
		contacts:  contacts.NewStore(rows),
	}
	env.deps = Deps{
		Contacts:    env.contacts,
		Knowledge:   knowledge.NewStore(rows),
		Composer:    mockComposer{prompt: "SYSTEM PROMPT\n"},
		Generator:   env.generator,
		Messenger:   env.messenger,
		Token:       "secret-token",
		VerifyToken: "verify-me",
	}
	env.server = httptest.NewServer(NewRouter(env.deps))
	t.Cleanup(env.server.Close)
	return env
}

func webhookBody(from, msgID, text string) string {
	payload := map[string]any{
		"object": "whatsapp_business_account",
		"entry": []map[string]any{{
			"id": "entry-1",
			"changes": []map[string]any{{
				"field": "messages",
				"value": map[string]any{
					"messaging_product": "whatsapp",
					"contacts": []map[string]any{{
						"wa_id":   from,
						"profile": map[string]string{"name": "Alice"},
					}},
					"messages": []map[string]any{{
						"from":      from,
						"id":        msgID,
						"timestamp": "1700000000",
						"type":      "text",
						"text":      map[string]string{"body": text},
					}},
				},
			}},
		}},
	}
	b, _ := json.Marshal(payload)
	return string(b)
}

func postWebhook(t *testing.T, env *testEnv, body string) *http.Response {
	t.Helper()
	resp, err := http.Post(env.server.URL+"/webhook", "application/json", strings.NewReader(body))
	if err != nil {
		t.Fatalf("posting webhook: %v", err)
	}
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func TestWebhook_InboundMessagePipeline(t *testing.T) {
	env := newTestEnv(t)

	resp := postWebhook(t, env, webhookBody("15551234567", "wamid.1", "hi, got any builds?"))
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("webhook status %d", resp.StatusCode)
	}

	// Message acknowledged.
	if len(env.messenger.read) != 1 || env.messenger.read[0] != "wamid.1" {
		t.Errorf("mark-read not called: %v", env.messenger.read)
	}

	// Prompt carried the system context and the inbound text.
	if len(env.generator.prompts) != 1 {
		t.Fatalf("expected one generation, got %d", len(env.generator.prompts))
	}
	prompt := env.generator.prompts[0]
	if !strings.HasPrefix(prompt, "SYSTEM PROMPT\n") {
		t.Errorf("prompt missing system context: %q", prompt)
	}
	if !strings.Contains(prompt, "User: hi, got any builds?") || !strings.HasSuffix(prompt, "Assistant:") {
		t.Errorf("prompt missing turn framing: %q", prompt)
	}

	// Reply delivered.
	if len(env.messenger.sent) != 1 {
		t.Fatalf("expected one send, got %d", len(env.messenger.sent))
	}
	if env.messenger.sent[0].Body != "Sure, we have sleeper builds in stock!" {
		t.Errorf("wrong reply body: %q", env.messenger.sent[0].Body)
	}

	// Contact recorded with profile name and both turns.
	c, err := env.contacts.Get(context.Background(), "15551234567")
	if err != nil {
		t.Fatalf("contact not stored: %v", err)
	}
	if c.Name != "Alice" {
		t.Errorf("profile name not stored: %q", c.Name)
	}
	turns, err := env.contacts.History(context.Background(), "15551234567", 0)
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	if len(turns) != 2 {
		t.Fatalf("expected customer+assistant turns, got %d", len(turns))
	}
	if turns[0].Role != contacts.RoleUser || turns[1].Role != contacts.RoleAssistant {
		t.Errorf("turn roles wrong: %+v", turns)
	}
}

func TestWebhook_GenerationFailureSendsFallback(t *testing.T) {
	env := newTestEnv(t)
	env.generator.err = errors.New("model overloaded")

	resp := postWebhook(t, env, webhookBody("15551234567", "wamid.2", "hello"))
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("failures must not surface to the webhook: status %d", resp.StatusCode)
	}
	if len(env.messenger.sent) != 1 {
		t.Fatalf("fallback not sent")
	}
	if env.messenger.sent[0].Body != genai.FallbackReply {
		t.Errorf("expected fallback reply, got %q", env.messenger.sent[0].Body)
	}
}

func TestWebhook_SendFailureStillReturns200(t *testing.T) {
	env := newTestEnv(t)
	env.messenger.sendErr = errors.New("graph api down")

	resp := postWebhook(t, env, webhookBody("15551234567", "wamid.3", "hello"))
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("send failure must not surface: status %d", resp.StatusCode)
	}
}

func TestWebhook_BuyingIntentPromotesLead(t *testing.T) {
	env := newTestEnv(t)

	// Build up history so the score clears the interested threshold:
	// 3 messages = 6 turns, two user turns with intent.
	for i, text := range []string{"how much is the 4070 build?", "what about shipping cost?", "ok thanks"} {
		postWebhook(t, env, webhookBody("15551234567", fmt.Sprintf("wamid.%d", i), text))
	}

	c, err := env.contacts.Get(context.Background(), "15551234567")
	if err != nil {
		t.Fatalf("contact: %v", err)
	}
	if c.LeadStatus != contacts.StatusInterested && c.LeadStatus != contacts.StatusHotLead {
		t.Errorf("lead status not promoted: %q", c.LeadStatus)
	}
}

func TestWebhook_IgnoresNonTextMessages(t *testing.T) {
	env := newTestEnv(t)

	payload := `{"object":"whatsapp_business_account","entry":[{"id":"e","changes":[{"field":"messages","value":{"messages":[{"from":"15551234567","id":"wamid.9","type":"image"}]}}]}]}`
	resp := postWebhook(t, env, payload)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status %d", resp.StatusCode)
	}
	if len(env.generator.prompts) != 0 {
		t.Errorf("non-text message should not reach generation")
	}
	if len(env.messenger.sent) != 0 {
		t.Errorf("non-text message should not trigger a reply")
	}
	// It still gets acknowledged.
	if len(env.messenger.read) != 1 {
		t.Errorf("non-text message should still be marked read")
	}
}

func TestWebhook_IgnoresOtherObjects(t *testing.T) {
	env := newTestEnv(t)

	resp := postWebhook(t, env, `{"object":"instagram","entry":[]}`)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status %d", resp.StatusCode)
	}
	if len(env.generator.prompts) != 0 || len(env.messenger.sent) != 0 {
		t.Error("non-whatsapp payloads should be ignored")
	}
}

func TestWebhook_MalformedBody(t *testing.T) {
	env := newTestEnv(t)

	resp := postWebhook(t, env, "{not json")
	if resp.StatusCode != http.StatusInternalServerError {
		t.Errorf("malformed body: status %d, want 500", resp.StatusCode)
	}
}

func TestWebhook_Verification(t *testing.T) {
	env := newTestEnv(t)

	resp, err := http.Get(env.server.URL + "/webhook?hub.mode=subscribe&hub.verify_token=verify-me&hub.challenge=12345")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status %d", resp.StatusCode)
	}
	challenge, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("reading body: %v", err)
	}
	if string(challenge) != "12345" {
		t.Errorf("challenge not echoed: %q", challenge)
	}
}

func TestWebhook_VerificationWrongToken(t *testing.T) {
	env := newTestEnv(t)

	resp, err := http.Get(env.server.URL + "/webhook?hub.mode=subscribe&hub.verify_token=wrong&hub.challenge=1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusForbidden {
		t.Errorf("status %d, want 403", resp.StatusCode)
	}
}

func TestHealth(t *testing.T) {
	env := newTestEnv(t)

	resp, err := http.Get(env.server.URL + "/health")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("status %d", resp.StatusCode)
	}
}
