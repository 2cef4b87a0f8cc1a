// Package openrouter adapts the OpenAI-compatible OpenRouter API to eino's chat model interface.
package openrouter

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
	openai "github.com/sashabaranov/go-openai"

	"github.com/zhouzirui/command-agent/backend/internal/service/ai"
)

const (
	DefaultBaseURL = "https://openrouter.ai/api/v1"
	DefaultModel   = "openrouter/auto"
)

// Config 描述 OpenRouter 调用参数。
type Config struct {
	APIKey      string
	BaseURL     string
	Model       string
	Temperature *float32
	TopP        *float32
	MaxTokens   *int
	// Timeout 作用于底层 HTTP 客户端。
	Timeout    time.Duration
	HTTPClient *http.Client
}

// ChatModel implements model.BaseChatModel on top of go-openai.
type ChatModel struct {
	client *openai.Client
	cfg    Config
}

var _ model.BaseChatModel = (*ChatModel)(nil)

// NewChatModel 创建 OpenRouter 聊天模型。
func NewChatModel(_ context.Context, cfg *Config) (*ChatModel, error) {
	if cfg == nil || strings.TrimSpace(cfg.APIKey) == "" {
		return nil, errors.New("openrouter api key is required")
	}

	c := *cfg
	if c.BaseURL == "" {
		c.BaseURL = DefaultBaseURL
	}
	if c.Model == "" {
		c.Model = DefaultModel
	}

	clientCfg := openai.DefaultConfig(c.APIKey)
	clientCfg.BaseURL = strings.TrimRight(c.BaseURL, "/")
	if c.HTTPClient != nil {
		clientCfg.HTTPClient = c.HTTPClient
	} else {
		clientCfg.HTTPClient = &http.Client{Timeout: c.Timeout}
	}

	return &ChatModel{client: openai.NewClientWithConfig(clientCfg), cfg: c}, nil
}

// Generate 发送非流式补全请求，返回首个候选消息。
func (m *ChatModel) Generate(ctx context.Context, input []*schema.Message, opts ...model.Option) (*schema.Message, error) {
	req := m.buildRequest(input, opts...)

	resp, err := m.client.CreateChatCompletion(ctx, req)
	if err != nil {
		return nil, classify(ctx, err)
	}
	if len(resp.Choices) == 0 {
		return nil, ai.NewParseError("response contained no choices", ai.ErrEmptyCompletion)
	}

	choice := resp.Choices[0]
	msg := schema.AssistantMessage(choice.Message.Content, nil)
	msg.ResponseMeta = &schema.ResponseMeta{
		FinishReason: string(choice.FinishReason),
		Usage: &schema.TokenUsage{
			PromptTokens:     resp.Usage.PromptTokens,
			CompletionTokens: resp.Usage.CompletionTokens,
			TotalTokens:      resp.Usage.TotalTokens,
		},
	}
	return msg, nil
}

// Stream 以流式方式读取补全结果。
func (m *ChatModel) Stream(ctx context.Context, input []*schema.Message, opts ...model.Option) (*schema.StreamReader[*schema.Message], error) {
	req := m.buildRequest(input, opts...)

	stream, err := m.client.CreateChatCompletionStream(ctx, req)
	if err != nil {
		return nil, classify(ctx, err)
	}

	reader, writer := schema.Pipe[*schema.Message](8)
	go func() {
		defer stream.Close()
		defer writer.Close()

		for {
			chunk, recvErr := stream.Recv()
			if errors.Is(recvErr, io.EOF) {
				return
			}
			if recvErr != nil {
				writer.Send(nil, classify(ctx, recvErr))
				return
			}
			if len(chunk.Choices) == 0 {
				continue
			}

			choice := chunk.Choices[0]
			msg := schema.AssistantMessage(choice.Delta.Content, nil)
			if choice.FinishReason != "" {
				msg.ResponseMeta = &schema.ResponseMeta{FinishReason: string(choice.FinishReason)}
			}
			if closed := writer.Send(msg, nil); closed {
				return
			}
		}
	}()

	return reader, nil
}

func (m *ChatModel) buildRequest(input []*schema.Message, opts ...model.Option) openai.ChatCompletionRequest {
	modelName := m.cfg.Model
	options := model.GetCommonOptions(&model.Options{
		Model:       &modelName,
		Temperature: m.cfg.Temperature,
		TopP:        m.cfg.TopP,
		MaxTokens:   m.cfg.MaxTokens,
	}, opts...)

	req := openai.ChatCompletionRequest{
		Messages: toOpenAIMessages(input),
		Stop:     options.Stop,
	}
	if options.Model != nil {
		req.Model = *options.Model
	}
	if options.Temperature != nil {
		req.Temperature = *options.Temperature
	}
	if options.TopP != nil {
		req.TopP = *options.TopP
	}
	if options.MaxTokens != nil {
		req.MaxTokens = *options.MaxTokens
	}
	return req
}

func toOpenAIMessages(input []*schema.Message) []openai.ChatCompletionMessage {
	messages := make([]openai.ChatCompletionMessage, 0, len(input))
	for _, msg := range input {
		if msg == nil {
			continue
		}
		messages = append(messages, openai.ChatCompletionMessage{
			Role:    string(msg.Role),
			Content: msg.Content,
		})
	}
	return messages
}

// classify 把 go-openai 的错误映射到补全错误类别。
func classify(ctx context.Context, err error) error {
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return ai.NewTimeoutError(err)
	}

	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return ai.NewAPIError(apiErr.HTTPStatusCode, apiErr.Message)
	}

	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) && reqErr.HTTPStatusCode > 0 {
		message := fmt.Sprintf("unexpected status %d", reqErr.HTTPStatusCode)
		if reqErr.Err != nil {
			message = reqErr.Err.Error()
		}
		return ai.NewAPIError(reqErr.HTTPStatusCode, message)
	}

	var syntaxErr *json.SyntaxError
	var typeErr *json.UnmarshalTypeError
	if errors.As(err, &syntaxErr) || errors.As(err, &typeErr) {
		return ai.NewParseError("malformed completion response", err)
	}

	return ai.Classify(err)
}
