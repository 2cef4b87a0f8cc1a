package speech

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/sirupsen/logrus"

	"github.com/zhouzirui/command-agent/backend/internal/model/persona"
	"github.com/zhouzirui/command-agent/backend/internal/model/speech"
	chatservice "github.com/zhouzirui/command-agent/backend/internal/service/chat"
	speechsvc "github.com/zhouzirui/command-agent/backend/internal/service/speech"
	"github.com/zhouzirui/command-agent/backend/pkg/log"
	"github.com/zhouzirui/command-agent/backend/pkg/utils"
)

const speakTimeout = 10 * time.Second

// Handler 语音服务的HTTP处理器
type Handler struct {
	speaker      speechsvc.Speaker
	chatSvc      *chatservice.Service
	personaStore persona.Store
	validator    *validator.Validate
	logger       *logrus.Entry
}

// New 创建语音处理器
func New(speaker speechsvc.Speaker, chatSvc *chatservice.Service, personaStore persona.Store, validate *validator.Validate, logger logrus.FieldLogger) *Handler {
	if validate == nil {
		validate = validator.New()
	}
	return &Handler{
		speaker:      speaker,
		chatSvc:      chatSvc,
		personaStore: personaStore,
		validator:    validate,
		logger:       log.Component(logger, "speech"),
	}
}

// RegisterRoutes 注册语音相关的路由
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/speech", func(speechRouter chi.Router) {
		speechRouter.Post("/speak", h.handleSpeak)
		speechRouter.Get("/health", h.handleHealth)
	})
}

type speakRequest struct {
	SessionID string `json:"sessionId" validate:"omitempty,max=64"`
	Text      string `json:"text" validate:"required,max=2000"`
	Voice     string `json:"voice" validate:"omitempty,max=64"`
}

type speakResponse struct {
	speech.SpeakResult
	Voice string `json:"voice,omitempty"`
}

// handleSpeak 同步等待一次播报结果
func (h *Handler) handleSpeak(w http.ResponseWriter, r *http.Request) {
	var payload speakRequest
	if err := utils.DecodeJSON(r, &payload, h.validator); err != nil {
		utils.RespondError(w, http.StatusBadRequest, err.Error())
		return
	}
	if strings.TrimSpace(payload.Text) == "" {
		utils.RespondError(w, http.StatusBadRequest, "text is required")
		return
	}

	req := speech.SpeakRequest{SessionID: payload.SessionID, Text: payload.Text, Voice: payload.Voice}
	if strings.TrimSpace(req.Voice) == "" {
		req.Voice = h.resolveVoiceFromContext(r.Context(), req.SessionID)
	}

	ctx, cancel := context.WithTimeout(r.Context(), speakTimeout)
	defer cancel()

	result, ok := <-h.speaker.Speak(ctx, req.Text)
	if !ok {
		utils.RespondError(w, http.StatusInternalServerError, "speech output unavailable")
		return
	}

	status := http.StatusOK
	if result.Status != speech.StatusSuccess {
		h.logger.WithField("session", req.SessionID).Warnf("[speech] speak failed: %s", result.Message)
		status = http.StatusBadGateway
	}
	utils.RespondJSON(w, status, speakResponse{SpeakResult: result, Voice: req.Voice})
}

func (h *Handler) resolveVoiceFromContext(ctx context.Context, sessionID string) string {
	if h.chatSvc == nil || h.personaStore == nil {
		return ""
	}

	sessionID = strings.TrimSpace(sessionID)
	if sessionID == "" {
		return ""
	}

	session, err := h.chatSvc.GetSession(ctx, sessionID)
	if err != nil {
		return ""
	}

	personaObj, ok := h.personaStore.FindByID(session.PersonaID)
	if !ok {
		return ""
	}
	return personaObj.VoiceID
}

// handleHealth 健康检查端点
func (h *Handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	utils.RespondJSON(w, http.StatusOK, map[string]string{
		"status":  "healthy",
		"service": "speech",
	})
}
