package speech

import "time"

const (
	StatusSuccess = "success"
	StatusFailed  = "failed"
)

// SpeakResult 语音播报结果
type SpeakResult struct {
	Status    string    `json:"status"`
	Message   string    `json:"message"`
	CreatedAt time.Time `json:"createdAt"`
}

// VoiceCommand 模拟语音识别得到的一条文本指令
type VoiceCommand struct {
	Text       string    `json:"text"`
	Confidence float64   `json:"confidence"`
	CreatedAt  time.Time `json:"createdAt"`
}
