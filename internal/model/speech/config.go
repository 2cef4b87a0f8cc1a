package speech

import "time"

// SpeechConfig 模拟语音输入输出的配置
type SpeechConfig struct {
	// 输出播报的模拟耗时
	SpeakDelay time.Duration `json:"speakDelay"`
	// 模拟语音输入的触发间隔
	VoiceInterval time.Duration `json:"voiceInterval"`
	Voice         string        `json:"voice"`
}
