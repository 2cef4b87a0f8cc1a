package speech

// SpeakRequest 语音播报请求
type SpeakRequest struct {
	SessionID string `json:"sessionId"`
	Text      string `json:"text"`
	Voice     string `json:"voice"`
}
