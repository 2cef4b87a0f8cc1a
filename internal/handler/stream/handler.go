package stream

import (
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/sirupsen/logrus"

	"github.com/zhouzirui/command-agent/backend/internal/model/chat"
	"github.com/zhouzirui/command-agent/backend/internal/service/agent"
	chatService "github.com/zhouzirui/command-agent/backend/internal/service/chat"
	"github.com/zhouzirui/command-agent/backend/pkg/log"
	"github.com/zhouzirui/command-agent/backend/pkg/utils"
)

const (
	defaultHeartbeat = 8 * time.Second
	eventBuffer      = 32
)

// Handler pushes session events to the browser via Server-Sent Events.
type Handler struct {
	chatSvc   *chatService.Service
	heartbeat time.Duration
	logger    *logrus.Entry
}

// New creates a new stream handler. A non-positive heartbeat uses the default.
func New(chatSvc *chatService.Service, heartbeat time.Duration, logger logrus.FieldLogger) *Handler {
	if heartbeat <= 0 {
		heartbeat = defaultHeartbeat
	}
	return &Handler{
		chatSvc:   chatSvc,
		heartbeat: heartbeat,
		logger:    log.Component(logger, "sse"),
	}
}

// RegisterRoutes mounts the session event stream.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/stream/{sessionID}", h.handleStream)
}

// handleStream 订阅会话事件。带 message 参数时提交该输入，收到它的回复后结束；
// 否则保持连接并定期发送心跳，直到客户端断开。
func (h *Handler) handleStream(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")
	orchestrator, err := h.chatSvc.Orchestrator(sessionID)
	if err != nil {
		utils.RespondError(w, http.StatusNotFound, err.Error())
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		utils.RespondError(w, http.StatusInternalServerError, "streaming unsupported")
		return
	}

	logger := h.logger.WithField("session", sessionID)

	events := make(chan chat.Event, eventBuffer)
	detach := orchestrator.Attach(agent.SinkFunc(func(event chat.Event) {
		select {
		case events <- event:
		default:
			logger.WithField("type", event.Type).Warn("[sse] subscriber too slow, dropping event")
		}
	}))
	defer detach()

	// 先订阅再提交，保证不会错过本次回复
	var pending <-chan agent.Outcome
	if message := r.URL.Query().Get("message"); message != "" {
		pending, err = orchestrator.Submit(message)
		if err != nil {
			status := http.StatusBadRequest
			if errors.Is(err, agent.ErrSessionClosed) {
				status = http.StatusGone
			}
			utils.RespondError(w, status, err.Error())
			return
		}
	}

	utils.SetupSSEHeaders(w)
	w.WriteHeader(http.StatusOK)
	utils.SendSSEEvent(w, flusher, string(chat.EventStatus), chat.Event{
		Type:      chat.EventStatus,
		SessionID: sessionID,
		Text:      "stream established",
		Timestamp: time.Now().UTC(),
	})
	logger.Info("[sse] opening stream")

	ticker := time.NewTicker(h.heartbeat)
	defer ticker.Stop()

	ctx := r.Context()
	for {
		select {
		case <-ctx.Done():
			logger.Info("[sse] client disconnected")
			return
		case event := <-events:
			utils.SendSSEEvent(w, flusher, string(event.Type), event)
		case outcome, ok := <-pending:
			pending = nil
			if !ok {
				utils.SendSSEEvent(w, flusher, string(chat.EventError), chat.Event{
					Type:      chat.EventError,
					SessionID: sessionID,
					Text:      agent.ErrSessionClosed.Error(),
					Timestamp: time.Now().UTC(),
				})
				return
			}
			h.drain(w, flusher, events)
			utils.SendSSEEvent(w, flusher, "end", map[string]any{
				"sessionId": sessionID,
				"reply":     outcome.Text,
				"finished":  true,
			})
			return
		case t := <-ticker.C:
			utils.SendSSEEvent(w, flusher, "heartbeat", map[string]any{
				"message": "awaiting input",
				"time":    t.UTC().Format(time.RFC3339),
			})
		}
	}
}

// drain flushes events already delivered before the reply result arrived.
func (h *Handler) drain(w http.ResponseWriter, flusher http.Flusher, events <-chan chat.Event) {
	for {
		select {
		case event := <-events:
			utils.SendSSEEvent(w, flusher, string(event.Type), event)
		default:
			return
		}
	}
}
