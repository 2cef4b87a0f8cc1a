package chat

import (
	"context"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/sirupsen/logrus"

	"github.com/zhouzirui/command-agent/backend/internal/service/agent"
	chatService "github.com/zhouzirui/command-agent/backend/internal/service/chat"
	"github.com/zhouzirui/command-agent/backend/pkg/log"
	"github.com/zhouzirui/command-agent/backend/pkg/utils"
)

// Handler 会话与消息的HTTP处理器
type Handler struct {
	chatSvc   *chatService.Service
	validator *validator.Validate
	logger    *logrus.Entry
}

// New 创建聊天处理器
func New(chatSvc *chatService.Service, validate *validator.Validate, logger logrus.FieldLogger) *Handler {
	if validate == nil {
		validate = validator.New()
	}
	return &Handler{
		chatSvc:   chatSvc,
		validator: validate,
		logger:    log.Component(logger, "http"),
	}
}

// RegisterRoutes 注册聊天相关的路由
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Post("/session", h.handleCreateSession)
	r.Post("/chat", h.handleOneShotChat)

	r.Route("/sessions/{sessionID}", func(s chi.Router) {
		s.Delete("/", h.handleCloseSession)
		s.Post("/messages", h.handleSendMessage)
		s.Get("/history", h.handleHistory)

		s.Get("/context", h.handleContextSnapshot)
		s.Get("/context/{key}", h.handleGetContext)
		s.Put("/context/{key}", h.handleSetContext)

		s.Post("/listen", h.handleStartListening)
		s.Delete("/listen", h.handleStopListening)
		s.Post("/listen/trigger", h.handleTriggerVoice)
	})
}

type createSessionRequest struct {
	PersonaID string `json:"personaId" validate:"omitempty,max=64"`
}

type messageRequest struct {
	Message string `json:"message" validate:"required,max=2000"`
}

type contextValueRequest struct {
	Value any `json:"value"`
}

type replyResponse struct {
	SessionID string `json:"sessionId,omitempty"`
	Reply     string `json:"reply"`
	Intent    string `json:"intent,omitempty"`
	Source    string `json:"source"`
}

// handleCreateSession 创建会话
func (h *Handler) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	var payload createSessionRequest
	if r.ContentLength != 0 {
		if err := utils.DecodeJSON(r, &payload, h.validator); err != nil {
			utils.RespondError(w, http.StatusBadRequest, err.Error())
			return
		}
	}

	session, err := h.chatSvc.CreateSession(r.Context(), payload.PersonaID)
	if err != nil {
		h.respondServiceError(w, err)
		return
	}

	utils.RespondJSON(w, http.StatusCreated, session)
}

func (h *Handler) handleCloseSession(w http.ResponseWriter, r *http.Request) {
	if err := h.chatSvc.CloseSession(r.Context(), chi.URLParam(r, "sessionID")); err != nil {
		h.respondServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleSendMessage 提交一条文本并等待回复
func (h *Handler) handleSendMessage(w http.ResponseWriter, r *http.Request) {
	orchestrator, ok := h.orchestrator(w, r)
	if !ok {
		return
	}

	var payload messageRequest
	if err := utils.DecodeJSON(r, &payload, h.validator); err != nil {
		utils.RespondError(w, http.StatusBadRequest, err.Error())
		return
	}

	outcome, err := orchestrator.HandleUtterance(r.Context(), payload.Message)
	if err != nil {
		h.respondServiceError(w, err)
		return
	}

	utils.RespondJSON(w, http.StatusOK, replyResponse{
		SessionID: orchestrator.SessionID(),
		Reply:     outcome.Text,
		Intent:    string(outcome.Intent),
		Source:    string(outcome.Source),
	})
}

// handleOneShotChat 使用临时会话处理单条消息
func (h *Handler) handleOneShotChat(w http.ResponseWriter, r *http.Request) {
	var payload messageRequest
	if err := utils.DecodeJSON(r, &payload, h.validator); err != nil {
		utils.RespondError(w, http.StatusBadRequest, err.Error())
		return
	}

	session, err := h.chatSvc.CreateSession(r.Context(), "")
	if err != nil {
		h.respondServiceError(w, err)
		return
	}
	defer func() {
		if err := h.chatSvc.CloseSession(context.WithoutCancel(r.Context()), session.ID); err != nil {
			h.logger.WithError(err).Warn("[http] failed to close one-shot session")
		}
	}()

	orchestrator, err := h.chatSvc.Orchestrator(session.ID)
	if err != nil {
		h.respondServiceError(w, err)
		return
	}

	outcome, err := orchestrator.HandleUtterance(r.Context(), payload.Message)
	if err != nil {
		h.respondServiceError(w, err)
		return
	}

	utils.RespondJSON(w, http.StatusOK, replyResponse{
		Reply:  outcome.Text,
		Intent: string(outcome.Intent),
		Source: string(outcome.Source),
	})
}

func (h *Handler) handleHistory(w http.ResponseWriter, r *http.Request) {
	history, err := h.chatSvc.LoadTranscript(r.Context(), chi.URLParam(r, "sessionID"))
	if err != nil {
		h.respondServiceError(w, err)
		return
	}
	utils.RespondJSON(w, http.StatusOK, history)
}

func (h *Handler) handleContextSnapshot(w http.ResponseWriter, r *http.Request) {
	orchestrator, ok := h.orchestrator(w, r)
	if !ok {
		return
	}

	store := orchestrator.Context()
	snapshot := make(map[string]any)
	for _, key := range store.Keys() {
		if value, ok := store.Get(key); ok {
			snapshot[key] = value
		}
	}
	utils.RespondJSON(w, http.StatusOK, snapshot)
}

func (h *Handler) handleGetContext(w http.ResponseWriter, r *http.Request) {
	orchestrator, ok := h.orchestrator(w, r)
	if !ok {
		return
	}

	key := chi.URLParam(r, "key")
	value, found := orchestrator.Context().Get(key)
	if !found {
		utils.RespondError(w, http.StatusNotFound, "context key not found")
		return
	}
	utils.RespondJSON(w, http.StatusOK, map[string]any{"key": key, "value": value})
}

func (h *Handler) handleSetContext(w http.ResponseWriter, r *http.Request) {
	orchestrator, ok := h.orchestrator(w, r)
	if !ok {
		return
	}

	var payload contextValueRequest
	if err := utils.DecodeJSON(r, &payload, h.validator); err != nil {
		utils.RespondError(w, http.StatusBadRequest, err.Error())
		return
	}
	if payload.Value == nil {
		utils.RespondError(w, http.StatusBadRequest, "value is required")
		return
	}

	orchestrator.Context().Set(chi.URLParam(r, "key"), payload.Value)
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleStartListening(w http.ResponseWriter, r *http.Request) {
	orchestrator, ok := h.orchestrator(w, r)
	if !ok {
		return
	}
	if err := orchestrator.StartListening(); err != nil {
		h.respondServiceError(w, err)
		return
	}
	utils.RespondJSON(w, http.StatusAccepted, map[string]bool{"listening": true})
}

func (h *Handler) handleStopListening(w http.ResponseWriter, r *http.Request) {
	orchestrator, ok := h.orchestrator(w, r)
	if !ok {
		return
	}
	orchestrator.StopListening()
	utils.RespondJSON(w, http.StatusOK, map[string]bool{"listening": false})
}

func (h *Handler) handleTriggerVoice(w http.ResponseWriter, r *http.Request) {
	orchestrator, ok := h.orchestrator(w, r)
	if !ok {
		return
	}
	if !orchestrator.TriggerVoice() {
		utils.RespondError(w, http.StatusConflict, "session is not listening")
		return
	}
	utils.RespondJSON(w, http.StatusAccepted, map[string]string{"status": "triggered"})
}

func (h *Handler) orchestrator(w http.ResponseWriter, r *http.Request) (*agent.Orchestrator, bool) {
	orchestrator, err := h.chatSvc.Orchestrator(chi.URLParam(r, "sessionID"))
	if err != nil {
		h.respondServiceError(w, err)
		return nil, false
	}
	return orchestrator, true
}

// respondServiceError 把服务层错误映射为HTTP状态码
func (h *Handler) respondServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, chatService.ErrSessionNotFound):
		utils.RespondError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, chatService.ErrPersonaNotFound), errors.Is(err, agent.ErrEmptyUtterance):
		utils.RespondError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, agent.ErrSessionClosed):
		utils.RespondError(w, http.StatusGone, err.Error())
	case errors.Is(err, agent.ErrVoiceUnavailable):
		utils.RespondError(w, http.StatusServiceUnavailable, err.Error())
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		utils.RespondError(w, http.StatusRequestTimeout, "request cancelled")
	default:
		h.logger.WithError(err).Error("[http] unexpected service error")
		utils.RespondError(w, http.StatusInternalServerError, "internal error")
	}
}
