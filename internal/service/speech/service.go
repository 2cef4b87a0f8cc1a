package speech

import (
	"context"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/zhouzirui/command-agent/backend/internal/model/speech"
	"github.com/zhouzirui/command-agent/backend/pkg/log"
)

// Speaker 把文本转为语音输出。返回的 channel 恰好收到一个结果后关闭，调用方可以不读取。
type Speaker interface {
	Speak(ctx context.Context, text string) <-chan speech.SpeakResult
}

// Service 模拟语音播报：记录日志并在配置的延迟后报告成功。
type Service struct {
	config *speech.SpeechConfig
	logger *logrus.Entry
}

var _ Speaker = (*Service)(nil)

// NewService 创建语音服务实例
func NewService(config *speech.SpeechConfig, logger logrus.FieldLogger) *Service {
	if config == nil {
		config = &speech.SpeechConfig{SpeakDelay: 100 * time.Millisecond}
	}
	return &Service{
		config: config,
		logger: log.Component(logger, "speech"),
	}
}

// Speak 异步播报，不阻塞调用方。
func (s *Service) Speak(ctx context.Context, text string) <-chan speech.SpeakResult {
	results := make(chan speech.SpeakResult, 1)

	text = strings.TrimSpace(text)
	if text == "" {
		results <- speech.SpeakResult{Status: speech.StatusFailed, Message: "nothing to speak", CreatedAt: time.Now().UTC()}
		close(results)
		return results
	}

	go func() {
		defer close(results)

		s.logger.WithField("voice", s.config.Voice).Infof("[speech] speaking: %s", text)

		timer := time.NewTimer(s.config.SpeakDelay)
		defer timer.Stop()

		select {
		case <-timer.C:
			results <- speech.SpeakResult{
				Status:    speech.StatusSuccess,
				Message:   "Spoke: " + text,
				CreatedAt: time.Now().UTC(),
			}
		case <-ctx.Done():
			results <- speech.SpeakResult{
				Status:    speech.StatusFailed,
				Message:   ctx.Err().Error(),
				CreatedAt: time.Now().UTC(),
			}
		}
	}()

	return results
}
