package chat

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/zhouzirui/command-agent/backend/internal/model/chat"
	"github.com/zhouzirui/command-agent/backend/internal/model/persona"
	"github.com/zhouzirui/command-agent/backend/internal/service/agent"
	"github.com/zhouzirui/command-agent/backend/internal/service/speech"
	"github.com/zhouzirui/command-agent/backend/pkg/log"
)

var (
	ErrPersonaNotFound = errors.New("persona not found")
	ErrSessionNotFound = errors.New("session not found")
)

// Dependencies 是每个会话编排器共享的协作者。
type Dependencies struct {
	Responder agent.Responder
	Personas  persona.Store
	Speaker   speech.Speaker
	// NewVoice 为每个会话创建独立的语音模拟器，为空时会话不支持监听。
	NewVoice func() *speech.VoiceSimulator
	Logger   logrus.FieldLogger
}

type sessionEntry struct {
	session      chat.Session
	orchestrator *agent.Orchestrator
}

// Service keeps the live sessions of this process, one orchestrator each.
type Service struct {
	deps   Dependencies
	logger *logrus.Entry

	mu       sync.RWMutex
	sessions map[string]*sessionEntry
}

// NewService bootstraps the in-memory session registry.
func NewService(deps Dependencies) *Service {
	if deps.Personas == nil {
		deps.Personas = persona.NewMemoryStore(persona.Seed())
	}
	return &Service{
		deps:     deps,
		logger:   log.Component(deps.Logger, "chat"),
		sessions: make(map[string]*sessionEntry),
	}
}

// CreateSession 创建会话并启动它的编排器，personaID 为空时使用默认助手。
func (s *Service) CreateSession(_ context.Context, personaID string) (chat.Session, error) {
	p, ok := s.deps.Personas.FindByID(personaID)
	if !ok {
		return chat.Session{}, ErrPersonaNotFound
	}

	session := chat.Session{
		ID:        uuid.NewString(),
		PersonaID: p.ID,
		CreatedAt: time.Now().UTC(),
	}

	var voice *speech.VoiceSimulator
	if s.deps.NewVoice != nil {
		voice = s.deps.NewVoice()
	}

	orchestrator := agent.NewOrchestrator(session.ID, s.deps.Responder, agent.Options{
		Speaker:     s.deps.Speaker,
		Voice:       voice,
		OpeningLine: p.OpeningLine,
		Logger:      s.deps.Logger,
	})

	s.mu.Lock()
	s.sessions[session.ID] = &sessionEntry{session: session, orchestrator: orchestrator}
	s.mu.Unlock()

	s.logger.WithFields(logrus.Fields{"session": session.ID, "persona": p.ID}).Info("[chat] session created")
	return session, nil
}

// GetSession retrieves a session by identifier.
func (s *Service) GetSession(_ context.Context, sessionID string) (chat.Session, error) {
	entry, err := s.lookup(sessionID)
	if err != nil {
		return chat.Session{}, err
	}
	return entry.session, nil
}

// Orchestrator 返回会话的编排器。
func (s *Service) Orchestrator(sessionID string) (*agent.Orchestrator, error) {
	entry, err := s.lookup(sessionID)
	if err != nil {
		return nil, err
	}
	return entry.orchestrator, nil
}

// LoadTranscript returns the conversation history of the session.
func (s *Service) LoadTranscript(_ context.Context, sessionID string) ([]chat.Entry, error) {
	entry, err := s.lookup(sessionID)
	if err != nil {
		return nil, err
	}
	return entry.orchestrator.History(), nil
}

// CloseSession 关闭并移除会话。
func (s *Service) CloseSession(_ context.Context, sessionID string) error {
	s.mu.Lock()
	entry, ok := s.sessions[sessionID]
	delete(s.sessions, sessionID)
	s.mu.Unlock()

	if !ok {
		return ErrSessionNotFound
	}
	entry.orchestrator.Close()
	s.logger.WithField("session", sessionID).Info("[chat] session closed")
	return nil
}

// Count 返回存活会话数。
func (s *Service) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sessions)
}

// Shutdown 关闭所有会话并等待处理协程退出或 ctx 结束。
func (s *Service) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	entries := make([]*sessionEntry, 0, len(s.sessions))
	for id, entry := range s.sessions {
		entries = append(entries, entry)
		delete(s.sessions, id)
	}
	s.mu.Unlock()

	for _, entry := range entries {
		entry.orchestrator.Close()
	}
	for _, entry := range entries {
		select {
		case <-entry.orchestrator.Done():
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}

func (s *Service) lookup(sessionID string) (*sessionEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	entry, ok := s.sessions[sessionID]
	if !ok {
		return nil, ErrSessionNotFound
	}
	return entry, nil
}
