package persona

// DefaultID 是未指定 persona 时使用的助手标识。
const DefaultID = "assistant"

// Persona captures how the agent introduces itself and instructs the completion backend.
type Persona struct {
	ID           string `json:"id"`
	Name         string `json:"name"`
	Description  string `json:"description,omitempty"`
	SystemPrompt string `json:"-"`
	OpeningLine  string `json:"openingLine"`
	// Announcement 在服务启动时播报一次。
	Announcement string `json:"-"`
	VoiceID      string `json:"voiceId,omitempty"`
}

// Seed provides the built-in assistant persona.
func Seed() []Persona {
	return []Persona{Default()}
}

// Default 返回默认的多语言助手。
func Default() Persona {
	return Persona{
		ID:          DefaultID,
		Name:        "AI Assistant",
		Description: "General purpose command agent that understands English, Hindi and Hinglish.",
		SystemPrompt: "You are an AI assistant that provides helpful, accurate, and concise responses. " +
			"You understand and respond to queries in English, Hindi, and Hinglish (mixed Hindi-English). " +
			"Keep responses under 100 words unless specifically asked for more detail. " +
			"Be conversational and friendly.",
		OpeningLine:  "Hello! I'm your AI assistant. How can I help you today?",
		Announcement: "AI Agent system initialized and ready to assist!",
		VoiceID:      "simulated-default",
	}
}
