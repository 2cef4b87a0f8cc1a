package chat_test

import (
	"context"
	"errors"
	"testing"

	"go.uber.org/goleak"

	"github.com/zhouzirui/command-agent/backend/internal/analysis/intent"
	"github.com/zhouzirui/command-agent/backend/internal/model/persona"
	"github.com/zhouzirui/command-agent/backend/internal/service/agent"
	chat "github.com/zhouzirui/command-agent/backend/internal/service/chat"
)

func newService() *chat.Service {
	return chat.NewService(chat.Dependencies{
		Responder: agent.NewResolver(intent.NewCatalog(), nil, agent.ModeLocal, nil),
	})
}

func TestServiceGetSession(t *testing.T) {
	svc := newService()
	ctx := context.Background()
	defer svc.Shutdown(ctx)

	session, err := svc.CreateSession(ctx, "")
	if err != nil {
		t.Fatalf("CreateSession err: %v", err)
	}

	got, err := svc.GetSession(ctx, session.ID)
	if err != nil {
		t.Fatalf("GetSession err: %v", err)
	}

	if got.ID != session.ID {
		t.Fatalf("unexpected session ID: got %s want %s", got.ID, session.ID)
	}
	if got.PersonaID != persona.DefaultID {
		t.Fatalf("unexpected persona ID: got %s", got.PersonaID)
	}
}

func TestServiceGetSessionNotFound(t *testing.T) {
	svc := newService()
	ctx := context.Background()

	if _, err := svc.GetSession(ctx, "missing"); !errors.Is(err, chat.ErrSessionNotFound) {
		t.Fatalf("expected ErrSessionNotFound, got %v", err)
	}
}

func TestServiceCreateSessionUnknownPersona(t *testing.T) {
	svc := newService()
	if _, err := svc.CreateSession(context.Background(), "pirate"); !errors.Is(err, chat.ErrPersonaNotFound) {
		t.Fatalf("expected ErrPersonaNotFound, got %v", err)
	}
}

func TestServiceTranscriptFollowsOrchestrator(t *testing.T) {
	svc := newService()
	ctx := context.Background()
	defer svc.Shutdown(ctx)

	session, err := svc.CreateSession(ctx, persona.DefaultID)
	if err != nil {
		t.Fatalf("CreateSession err: %v", err)
	}

	orchestrator, err := svc.Orchestrator(session.ID)
	if err != nil {
		t.Fatalf("Orchestrator err: %v", err)
	}
	if _, err := orchestrator.HandleUtterance(ctx, "Hello"); err != nil {
		t.Fatalf("HandleUtterance err: %v", err)
	}

	transcript, err := svc.LoadTranscript(ctx, session.ID)
	if err != nil {
		t.Fatalf("LoadTranscript err: %v", err)
	}
	if len(transcript) != 2 || transcript[0].Text != "Hello" {
		t.Fatalf("unexpected transcript: %+v", transcript)
	}
}

func TestServiceSessionsAreIsolated(t *testing.T) {
	svc := newService()
	ctx := context.Background()
	defer svc.Shutdown(ctx)

	first, _ := svc.CreateSession(ctx, "")
	second, _ := svc.CreateSession(ctx, "")

	a, _ := svc.Orchestrator(first.ID)
	b, _ := svc.Orchestrator(second.ID)
	a.Context().Set("city", "Pune")

	if _, ok := b.Context().Get("city"); ok {
		t.Fatal("context leaked across sessions")
	}
	if _, err := a.HandleUtterance(ctx, "tell me a joke"); err != nil {
		t.Fatalf("HandleUtterance err: %v", err)
	}
	if history := b.History(); len(history) != 0 {
		t.Fatalf("history leaked across sessions: %+v", history)
	}
}

func TestServiceCloseSession(t *testing.T) {
	defer goleak.VerifyNone(t)

	svc := newService()
	ctx := context.Background()

	session, _ := svc.CreateSession(ctx, "")
	orchestrator, _ := svc.Orchestrator(session.ID)

	if err := svc.CloseSession(ctx, session.ID); err != nil {
		t.Fatalf("CloseSession err: %v", err)
	}
	<-orchestrator.Done()

	if err := svc.CloseSession(ctx, session.ID); !errors.Is(err, chat.ErrSessionNotFound) {
		t.Fatalf("expected ErrSessionNotFound on second close, got %v", err)
	}
	if _, err := orchestrator.Submit("hello"); !errors.Is(err, agent.ErrSessionClosed) {
		t.Fatalf("expected ErrSessionClosed, got %v", err)
	}
	if svc.Count() != 0 {
		t.Fatalf("expected no sessions, got %d", svc.Count())
	}
}
