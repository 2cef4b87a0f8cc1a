package chat

import "time"

// Role 标识对话中的发言方。
type Role string

const (
	RoleUser  Role = "user"
	RoleAgent Role = "agent"
)

// Entry is one turn in the append-only conversation history.
type Entry struct {
	Role      Role      `json:"role"`
	Text      string    `json:"text"`
	Timestamp time.Time `json:"timestamp"`
}
