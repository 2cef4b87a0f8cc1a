package ai

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/components/prompt"
	"github.com/cloudwego/eino/compose"
	"github.com/cloudwego/eino/schema"
	"github.com/sirupsen/logrus"

	"github.com/zhouzirui/command-agent/backend/pkg/log"
)

const defaultTimeout = 30 * time.Second

// Options 配置补全服务。
type Options struct {
	// SystemPrompt 每次请求都会作为 system 消息发送。
	SystemPrompt string
	// Timeout 限制单次补全调用，<=0 时使用 30s。
	Timeout time.Duration
	Logger  logrus.FieldLogger
}

// Service wraps the chat model in a system+query chain and bounds each call.
type Service struct {
	chatModel    model.BaseChatModel
	chain        compose.Runnable[map[string]any, *schema.Message]
	systemPrompt string
	timeout      time.Duration
	logger       *logrus.Entry
}

// NewService compiles the prompt chain around chatModel.
func NewService(ctx context.Context, chatModel model.BaseChatModel, opts Options) (*Service, error) {
	if chatModel == nil {
		return nil, errors.New("chat model is required")
	}

	promptTemplate := prompt.FromMessages(
		schema.FString,
		schema.SystemMessage("{system}"),
		schema.UserMessage("{query}"),
	)

	chain := compose.NewChain[map[string]any, *schema.Message]()
	chain.AppendChatTemplate(promptTemplate)
	chain.AppendChatModel(chatModel)

	runnable, err := chain.Compile(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to compile chat chain: %w", err)
	}

	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}

	return &Service{
		chatModel:    chatModel,
		chain:        runnable,
		systemPrompt: opts.SystemPrompt,
		timeout:      timeout,
		logger:       log.Component(opts.Logger, "ai"),
	}, nil
}

// Complete 发送一次补全请求并返回首个候选的文本。
// 超时、网络错误、非 2xx 以及空回复都会以 *CompletionError 返回。
func (s *Service) Complete(ctx context.Context, utterance string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	started := time.Now()
	response, err := s.chain.Invoke(ctx, map[string]any{
		"system": s.systemPrompt,
		"query":  utterance,
	})
	if err != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return "", NewTimeoutError(err)
		}
		return "", Classify(err)
	}

	if response == nil || strings.TrimSpace(response.Content) == "" {
		return "", NewParseError("empty completion", ErrEmptyCompletion)
	}

	s.logger.WithFields(logrus.Fields{
		"length":  len(response.Content),
		"elapsed": time.Since(started).String(),
	}).Debug("[ai] completion generated")
	return response.Content, nil
}

// Timeout 返回单次调用的超时上限。
func (s *Service) Timeout() time.Duration {
	return s.timeout
}
