package chat

import "time"

// EventType 标识推送给前端的事件类别。
type EventType string

const (
	EventReply  EventType = "agent_response"
	EventError  EventType = "error"
	EventStatus EventType = "status"
	// EventVoice 表示模拟语音输入产生的一条指令。
	EventVoice EventType = "voice_command"
)

// Event is pushed to every sink attached to a session.
type Event struct {
	Type      EventType `json:"type"`
	SessionID string    `json:"sessionId"`
	Text      string    `json:"text,omitempty"`
	Intent    string    `json:"intent,omitempty"`
	Source    string    `json:"source,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}
