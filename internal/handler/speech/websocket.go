package speech

import (
	"context"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"

	"github.com/zhouzirui/command-agent/backend/internal/model/chat"
	"github.com/zhouzirui/command-agent/backend/internal/service/agent"
	chatservice "github.com/zhouzirui/command-agent/backend/internal/service/chat"
	"github.com/zhouzirui/command-agent/backend/pkg/log"
)

const (
	readTimeout  = 60 * time.Second
	writeTimeout = 10 * time.Second
	pingInterval = 54 * time.Second
)

// 入站事件类型
const (
	eventStartListening = "start_listening"
	eventStopListening  = "stop_listening"
	eventVoiceCommand   = "voice_command"
	eventText           = "text"
	eventTrigger        = "trigger"
)

// RateLimit 限制单个连接的入站消息速率
type RateLimit struct {
	PerSecond float64
	Burst     int
}

// WebSocketHandler 把会话事件双向桥接到 WebSocket 连接
type WebSocketHandler struct {
	chatSvc  *chatservice.Service
	limit    RateLimit
	upgrader websocket.Upgrader
	logger   *logrus.Entry
}

// NewWebSocketHandler 创建WebSocket处理器
func NewWebSocketHandler(chatSvc *chatservice.Service, limit RateLimit, logger logrus.FieldLogger) *WebSocketHandler {
	if limit.PerSecond <= 0 {
		limit.PerSecond = 5
	}
	if limit.Burst <= 0 {
		limit.Burst = 10
	}
	return &WebSocketHandler{
		chatSvc: chatSvc,
		limit:   limit,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
		logger: log.Component(logger, "websocket"),
	}
}

// RegisterWebSocketRoutes 注册WebSocket路由
func (h *WebSocketHandler) RegisterWebSocketRoutes(r chi.Router) {
	r.Get("/ws/{sessionID}", h.handleWebSocket)
}

type inboundMessage struct {
	Type    string `json:"type"`
	Command string `json:"command"`
	Text    string `json:"text"`
}

// connWriter 串行化对同一连接的写入，gorilla 连接不支持并发写。
type connWriter struct {
	mu   sync.Mutex
	conn *websocket.Conn
}

func (c *connWriter) writeJSON(v any) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	_ = c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	return c.conn.WriteJSON(v)
}

func (c *connWriter) ping() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeTimeout))
}

// handleWebSocket 处理WebSocket连接
func (h *WebSocketHandler) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")
	orchestrator, err := h.chatSvc.Orchestrator(sessionID)
	if err != nil {
		http.Error(w, "session not found", http.StatusNotFound)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.WithError(err).Warn("[websocket] upgrade failed")
		return
	}
	defer conn.Close()

	logger := h.logger.WithField("session", sessionID)
	logger.Info("[websocket] new connection")

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	writer := &connWriter{conn: conn}
	detach := orchestrator.Attach(agent.SinkFunc(func(event chat.Event) {
		if err := writer.writeJSON(event); err != nil {
			logger.WithError(err).Debug("[websocket] write event failed")
		}
	}))
	defer func() {
		detach()
		// 最后一个订阅方断开后停止语音模拟，避免无人接收的会话持续解析
		if orchestrator.SinkCount() == 0 {
			orchestrator.StopListening()
		}
	}()

	_ = conn.SetReadDeadline(time.Now().Add(readTimeout))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(readTimeout))
	})

	go h.pingLoop(ctx, writer)

	h.sendStatus(writer, sessionID, "connected")

	limiter := rate.NewLimiter(rate.Limit(h.limit.PerSecond), h.limit.Burst)
	for {
		var msg inboundMessage
		if err := conn.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				logger.WithError(err).Warn("[websocket] read error")
			}
			logger.Info("[websocket] connection closed")
			return
		}
		_ = conn.SetReadDeadline(time.Now().Add(readTimeout))

		if !limiter.Allow() {
			h.sendError(writer, sessionID, "rate limit exceeded")
			continue
		}
		h.handleMessage(writer, orchestrator, &msg)
	}
}

func (h *WebSocketHandler) handleMessage(writer *connWriter, orchestrator *agent.Orchestrator, msg *inboundMessage) {
	sessionID := orchestrator.SessionID()

	switch msg.Type {
	case eventStartListening:
		if err := orchestrator.StartListening(); err != nil {
			h.sendError(writer, sessionID, err.Error())
		}
	case eventStopListening:
		orchestrator.StopListening()
	case eventTrigger:
		if !orchestrator.TriggerVoice() {
			h.sendError(writer, sessionID, "not listening")
		}
	case eventVoiceCommand, eventText:
		text := msg.Command
		if strings.TrimSpace(text) == "" {
			text = msg.Text
		}
		// 回复通过 sink 推送，这里不等待结果
		if _, err := orchestrator.Submit(text); err != nil {
			h.sendError(writer, sessionID, err.Error())
		}
	default:
		h.sendError(writer, sessionID, "unsupported message type: "+msg.Type)
	}
}

func (h *WebSocketHandler) sendStatus(writer *connWriter, sessionID, status string) {
	h.send(writer, chat.Event{Type: chat.EventStatus, SessionID: sessionID, Text: status, Timestamp: time.Now().UTC()})
}

func (h *WebSocketHandler) sendError(writer *connWriter, sessionID, message string) {
	h.send(writer, chat.Event{Type: chat.EventError, SessionID: sessionID, Text: message, Timestamp: time.Now().UTC()})
}

func (h *WebSocketHandler) send(writer *connWriter, event chat.Event) {
	if err := writer.writeJSON(event); err != nil {
		h.logger.WithError(err).Debug("[websocket] write failed")
	}
}

// pingLoop 定期发送ping消息
func (h *WebSocketHandler) pingLoop(ctx context.Context, writer *connWriter) {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := writer.ping(); err != nil {
				return
			}
		}
	}
}
