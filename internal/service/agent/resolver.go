package agent

import (
	"context"
	"fmt"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/zhouzirui/command-agent/backend/internal/analysis/intent"
	"github.com/zhouzirui/command-agent/backend/internal/service/ai"
	"github.com/zhouzirui/command-agent/backend/pkg/log"
)

// Mode 选择补全后端与本地意图目录的先后顺序。
type Mode string

const (
	ModeCompletionFirst Mode = "completion_first"
	ModeLocal           Mode = "local"
	ModeIntentFirst     Mode = "intent_first"
)

// ParseMode 解析配置值，空值时有补全后端则 completion_first，否则 local。
func ParseMode(raw string, completionAvailable bool) (Mode, error) {
	switch Mode(strings.ToLower(strings.TrimSpace(raw))) {
	case "":
		if completionAvailable {
			return ModeCompletionFirst, nil
		}
		return ModeLocal, nil
	case ModeCompletionFirst:
		return ModeCompletionFirst, nil
	case ModeLocal:
		return ModeLocal, nil
	case ModeIntentFirst:
		return ModeIntentFirst, nil
	default:
		return "", fmt.Errorf("unknown resolver mode %q", raw)
	}
}

// Source 标识回复由哪条路径产生。
type Source string

const (
	SourceCompletion Source = "completion"
	SourceIntent     Source = "intent"
	SourceGeneral    Source = "general"
	SourceApology    Source = "apology"
)

// Outcome 是一次解析的结果，总是带有回复文本。
type Outcome struct {
	Text   string      `json:"text"`
	Intent intent.Name `json:"intent,omitempty"`
	Source Source      `json:"source"`
}

// Completer 是外部补全后端。
type Completer interface {
	Complete(ctx context.Context, utterance string) (string, error)
}

// Responder 为一条输入产生回复，Orchestrator 依赖它。
type Responder interface {
	Resolve(ctx context.Context, utterance string) Outcome
}

// Resolver 组合补全后端与意图目录，失败只记日志，从不向外返回错误。
type Resolver struct {
	catalog   *intent.Catalog
	completer Completer
	mode      Mode
	logger    *logrus.Entry
}

var _ Responder = (*Resolver)(nil)

// NewResolver 创建解析器。completer 为 nil 时强制使用 local 模式。
func NewResolver(catalog *intent.Catalog, completer Completer, mode Mode, logger logrus.FieldLogger) *Resolver {
	if catalog == nil {
		catalog = intent.NewCatalog()
	}
	if completer == nil || mode == "" {
		mode = ModeLocal
	}
	return &Resolver{
		catalog:   catalog,
		completer: completer,
		mode:      mode,
		logger:    log.Component(logger, "resolver"),
	}
}

func (r *Resolver) Mode() Mode {
	return r.mode
}

// Resolve 产生恰好一条回复。
func (r *Resolver) Resolve(ctx context.Context, utterance string) Outcome {
	switch r.mode {
	case ModeCompletionFirst:
		if text, ok := r.complete(ctx, utterance); ok {
			return Outcome{Text: text, Source: SourceCompletion}
		}
		return r.local(utterance)

	case ModeIntentFirst:
		result := r.catalog.Respond(utterance)
		if result.Matched {
			return Outcome{Text: result.Text, Intent: result.Intent, Source: SourceIntent}
		}
		if text, ok := r.complete(ctx, utterance); ok {
			return Outcome{Text: text, Source: SourceCompletion}
		}
		return Outcome{Text: result.Text, Intent: intent.General, Source: SourceGeneral}

	default:
		return r.local(utterance)
	}
}

func (r *Resolver) local(utterance string) Outcome {
	result := r.catalog.Respond(utterance)
	source := SourceIntent
	if !result.Matched {
		source = SourceGeneral
	}
	return Outcome{Text: result.Text, Intent: result.Intent, Source: source}
}

func (r *Resolver) complete(ctx context.Context, utterance string) (string, bool) {
	if r.completer == nil {
		return "", false
	}

	text, err := r.completer.Complete(ctx, utterance)
	if err == nil && strings.TrimSpace(text) == "" {
		err = ai.NewParseError("empty completion", ai.ErrEmptyCompletion)
	}
	if err != nil {
		classified := ai.Classify(err)
		r.logger.WithFields(logrus.Fields{
			"category": classified.Type,
			"code":     classified.Code,
		}).WithError(err).Warn("[resolver] completion failed, falling back to local intents")
		return "", false
	}
	return text, true
}
