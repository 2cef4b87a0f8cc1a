package stream

import (
	"bufio"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/zhouzirui/command-agent/backend/internal/analysis/intent"
	"github.com/zhouzirui/command-agent/backend/internal/service/agent"
	chatservice "github.com/zhouzirui/command-agent/backend/internal/service/chat"
)

func setup(t *testing.T) (http.Handler, *chatservice.Service) {
	t.Helper()
	chatSvc := chatservice.NewService(chatservice.Dependencies{
		Responder: agent.NewResolver(intent.NewCatalog(), nil, agent.ModeLocal, nil),
	})
	t.Cleanup(func() { _ = chatSvc.Shutdown(t.Context()) })

	r := chi.NewRouter()
	New(chatSvc, time.Hour, nil).RegisterRoutes(r)
	return r, chatSvc
}

func TestStreamUnknownSession(t *testing.T) {
	r, _ := setup(t)

	resp := httptest.NewRecorder()
	r.ServeHTTP(resp, httptest.NewRequest(http.MethodGet, "/stream/missing", nil))
	if resp.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", resp.Code)
	}
}

func TestStreamMessageEndsAfterReply(t *testing.T) {
	r, chatSvc := setup(t)
	session, err := chatSvc.CreateSession(t.Context(), "")
	if err != nil {
		t.Fatalf("CreateSession err: %v", err)
	}

	resp := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/stream/"+session.ID+"?message=hello", nil)

	done := make(chan struct{})
	go func() {
		r.ServeHTTP(resp, req)
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("stream did not finish after reply")
	}

	if ct := resp.Header().Get("Content-Type"); ct != "text/event-stream" {
		t.Fatalf("unexpected content type %q", ct)
	}

	var events []string
	scanner := bufio.NewScanner(strings.NewReader(resp.Body.String()))
	for scanner.Scan() {
		if name, ok := strings.CutPrefix(scanner.Text(), "event: "); ok {
			events = append(events, name)
		}
	}
	want := []string{"status", "agent_response", "end"}
	if strings.Join(events, ",") != strings.Join(want, ",") {
		t.Fatalf("unexpected event sequence: %v", events)
	}
	if !strings.Contains(resp.Body.String(), `"intent":"greeting"`) {
		t.Fatalf("expected greeting reply, body: %s", resp.Body.String())
	}
}

func TestStreamSubmitStatus(t *testing.T) {
	r, chatSvc := setup(t)
	session, err := chatSvc.CreateSession(t.Context(), "")
	if err != nil {
		t.Fatalf("CreateSession err: %v", err)
	}

	blank := httptest.NewRecorder()
	r.ServeHTTP(blank, httptest.NewRequest(http.MethodGet, "/stream/"+session.ID+"?message=%20%20", nil))
	if blank.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for blank message, got %d", blank.Code)
	}

	orchestrator, err := chatSvc.Orchestrator(session.ID)
	if err != nil {
		t.Fatalf("Orchestrator err: %v", err)
	}
	orchestrator.Close()
	<-orchestrator.Done()

	closed := httptest.NewRecorder()
	r.ServeHTTP(closed, httptest.NewRequest(http.MethodGet, "/stream/"+session.ID+"?message=hello", nil))
	if closed.Code != http.StatusGone {
		t.Fatalf("expected 410 for closed session, got %d", closed.Code)
	}
}
