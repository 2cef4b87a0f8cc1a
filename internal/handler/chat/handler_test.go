package chat

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"

	"github.com/zhouzirui/command-agent/backend/internal/analysis/intent"
	"github.com/zhouzirui/command-agent/backend/internal/model/chat"
	"github.com/zhouzirui/command-agent/backend/internal/model/persona"
	"github.com/zhouzirui/command-agent/backend/internal/service/agent"
	chatservice "github.com/zhouzirui/command-agent/backend/internal/service/chat"
)

func setupRouter(t *testing.T) (*chi.Mux, *chatservice.Service) {
	t.Helper()
	chatSvc := chatservice.NewService(chatservice.Dependencies{
		Responder: agent.NewResolver(intent.NewCatalog(), nil, agent.ModeLocal, nil),
		Personas:  persona.NewMemoryStore(persona.Seed()),
	})
	t.Cleanup(func() { _ = chatSvc.Shutdown(t.Context()) })

	handler := New(chatSvc, nil, nil)
	r := chi.NewRouter()
	handler.RegisterRoutes(r)
	return r, chatSvc
}

func do(r http.Handler, method, target string, body any) *httptest.ResponseRecorder {
	var reader *bytes.Reader
	if body != nil {
		payload, _ := json.Marshal(body)
		reader = bytes.NewReader(payload)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, target, reader)
	req.Header.Set("Content-Type", "application/json")
	resp := httptest.NewRecorder()
	r.ServeHTTP(resp, req)
	return resp
}

func createSession(t *testing.T, r http.Handler) chat.Session {
	t.Helper()
	resp := do(r, http.MethodPost, "/session", nil)
	if resp.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", resp.Code, resp.Body.String())
	}
	var session chat.Session
	if err := json.NewDecoder(resp.Body).Decode(&session); err != nil {
		t.Fatalf("decode session: %v", err)
	}
	return session
}

func TestCreateSessionDefaultPersona(t *testing.T) {
	r, _ := setupRouter(t)
	session := createSession(t, r)
	if session.PersonaID != persona.DefaultID {
		t.Fatalf("expected default persona, got %s", session.PersonaID)
	}
}

func TestCreateSessionInvalidPersona(t *testing.T) {
	r, _ := setupRouter(t)
	resp := do(r, http.MethodPost, "/session", map[string]string{"personaId": "non-existent"})
	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", resp.Code)
	}
}

func TestSendMessageReturnsReply(t *testing.T) {
	r, _ := setupRouter(t)
	session := createSession(t, r)

	resp := do(r, http.MethodPost, "/sessions/"+session.ID+"/messages", map[string]string{"message": "Tell me a joke"})
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", resp.Code, resp.Body.String())
	}

	var reply replyResponse
	if err := json.NewDecoder(resp.Body).Decode(&reply); err != nil {
		t.Fatalf("decode reply: %v", err)
	}
	if reply.Intent != string(intent.Joke) {
		t.Fatalf("expected joke intent, got %q", reply.Intent)
	}
	if reply.Source != string(agent.SourceIntent) {
		t.Fatalf("expected intent source, got %q", reply.Source)
	}

	history := do(r, http.MethodGet, "/sessions/"+session.ID+"/history", nil)
	var entries []chat.Entry
	if err := json.NewDecoder(history.Body).Decode(&entries); err != nil {
		t.Fatalf("decode history: %v", err)
	}
	if len(entries) != 2 || entries[0].Role != chat.RoleUser || entries[1].Text != reply.Reply {
		t.Fatalf("unexpected history: %+v", entries)
	}
}

func TestSendMessageValidation(t *testing.T) {
	r, _ := setupRouter(t)
	session := createSession(t, r)

	resp := do(r, http.MethodPost, "/sessions/"+session.ID+"/messages", map[string]string{})
	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for missing message, got %d", resp.Code)
	}

	resp = do(r, http.MethodPost, "/sessions/"+session.ID+"/messages", map[string]string{"message": "   "})
	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for blank message, got %d", resp.Code)
	}
}

func TestUnknownSessionIsNotFound(t *testing.T) {
	r, _ := setupRouter(t)

	for _, path := range []string{"/sessions/missing/history", "/sessions/missing/context"} {
		if resp := do(r, http.MethodGet, path, nil); resp.Code != http.StatusNotFound {
			t.Fatalf("%s: expected 404, got %d", path, resp.Code)
		}
	}
	if resp := do(r, http.MethodPost, "/sessions/missing/messages", map[string]string{"message": "hi"}); resp.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", resp.Code)
	}
}

func TestContextRoundTrip(t *testing.T) {
	r, _ := setupRouter(t)
	session := createSession(t, r)
	base := "/sessions/" + session.ID + "/context"

	if resp := do(r, http.MethodGet, base+"/city", nil); resp.Code != http.StatusNotFound {
		t.Fatalf("expected 404 before set, got %d", resp.Code)
	}
	if resp := do(r, http.MethodPut, base+"/city", map[string]any{"value": "Pune"}); resp.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d", resp.Code)
	}
	if resp := do(r, http.MethodPut, base+"/count", map[string]any{}); resp.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for missing value, got %d", resp.Code)
	}

	resp := do(r, http.MethodGet, base+"/city", nil)
	var got map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got["value"] != "Pune" {
		t.Fatalf("unexpected value: %+v", got)
	}

	resp = do(r, http.MethodGet, base, nil)
	var snapshot map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&snapshot); err != nil {
		t.Fatalf("decode snapshot: %v", err)
	}
	if len(snapshot) != 1 || snapshot["city"] != "Pune" {
		t.Fatalf("unexpected snapshot: %+v", snapshot)
	}
}

func TestListenWithoutVoiceIsUnavailable(t *testing.T) {
	r, _ := setupRouter(t)
	session := createSession(t, r)

	if resp := do(r, http.MethodPost, "/sessions/"+session.ID+"/listen", nil); resp.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", resp.Code)
	}
	if resp := do(r, http.MethodPost, "/sessions/"+session.ID+"/listen/trigger", nil); resp.Code != http.StatusConflict {
		t.Fatalf("expected 409, got %d", resp.Code)
	}
	if resp := do(r, http.MethodDelete, "/sessions/"+session.ID+"/listen", nil); resp.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.Code)
	}
}

func TestCloseSession(t *testing.T) {
	r, chatSvc := setupRouter(t)
	session := createSession(t, r)

	if resp := do(r, http.MethodDelete, "/sessions/"+session.ID, nil); resp.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d", resp.Code)
	}
	if chatSvc.Count() != 0 {
		t.Fatalf("expected session removed, got %d", chatSvc.Count())
	}
	if resp := do(r, http.MethodDelete, "/sessions/"+session.ID, nil); resp.Code != http.StatusNotFound {
		t.Fatalf("expected 404 on second close, got %d", resp.Code)
	}
}

func TestOneShotChat(t *testing.T) {
	r, chatSvc := setupRouter(t)

	resp := do(r, http.MethodPost, "/chat", map[string]string{"message": "What's the time?"})
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", resp.Code, resp.Body.String())
	}

	var reply replyResponse
	if err := json.NewDecoder(resp.Body).Decode(&reply); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if reply.Intent != string(intent.Time) || reply.Reply == "" {
		t.Fatalf("unexpected reply: %+v", reply)
	}
	if chatSvc.Count() != 0 {
		t.Fatalf("expected ephemeral session to be closed, got %d live", chatSvc.Count())
	}
}
