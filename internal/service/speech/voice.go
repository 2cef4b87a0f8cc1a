package speech

import (
	"context"
	"errors"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/zhouzirui/command-agent/backend/pkg/log"
)

// DefaultCommands 是模拟语音输入轮流给出的指令。
var DefaultCommands = []string{
	"Hello AI assistant",
	"What time is it?",
	"Tell me a joke",
	"How's the weather?",
	"Play some music",
	"What can you do?",
	"Help me with something",
}

// Source 产生一条语音识别文本。
type Source interface {
	Next(ctx context.Context) (string, error)
}

// SimulatedCommands 从固定指令集中随机挑选。
type SimulatedCommands struct {
	commands []string

	mu  sync.Mutex
	rng *rand.Rand
}

// NewSimulatedCommands 使用 src 作为随机源；src 为 nil 时使用全局随机源。
func NewSimulatedCommands(commands []string, src rand.Source) *SimulatedCommands {
	if len(commands) == 0 {
		commands = DefaultCommands
	}
	s := &SimulatedCommands{commands: append([]string(nil), commands...)}
	if src != nil {
		s.rng = rand.New(src)
	}
	return s
}

func (s *SimulatedCommands) Next(ctx context.Context) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if s.rng == nil {
		return s.commands[rand.IntN(len(s.commands))], nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.commands[s.rng.IntN(len(s.commands))], nil
}

// VoiceSimulator 按固定间隔（或按需）从 Source 取一条文本交给回调。
// Stop 返回后不会再有回调被调用。
type VoiceSimulator struct {
	source   Source
	interval time.Duration
	logger   *logrus.Entry

	mu      sync.Mutex
	cancel  context.CancelFunc
	trigger chan struct{}
	wg      sync.WaitGroup
}

// NewVoiceSimulator 创建模拟器，interval<=0 时只响应 Trigger。
func NewVoiceSimulator(source Source, interval time.Duration, logger logrus.FieldLogger) *VoiceSimulator {
	if source == nil {
		source = NewSimulatedCommands(nil, nil)
	}
	return &VoiceSimulator{
		source:   source,
		interval: interval,
		logger:   log.Component(logger, "voice"),
	}
}

// Start 注册回调并开始发射，已在运行时返回 false。
func (v *VoiceSimulator) Start(onUtterance func(string), onError func(error)) bool {
	v.mu.Lock()
	defer v.mu.Unlock()

	if v.cancel != nil {
		return false
	}

	ctx, cancel := context.WithCancel(context.Background())
	v.cancel = cancel
	v.trigger = make(chan struct{}, 1)

	v.wg.Add(1)
	go v.run(ctx, v.trigger, onUtterance, onError)

	v.logger.WithField("interval", v.interval.String()).Info("[voice] listening started")
	return true
}

// Stop 取消计时器并等待发射协程退出，可重复调用。
func (v *VoiceSimulator) Stop() {
	v.mu.Lock()
	cancel := v.cancel
	v.cancel = nil
	v.trigger = nil
	v.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	v.wg.Wait()
	v.logger.Info("[voice] listening stopped")
}

// Trigger 立即发射一条文本，未在监听时返回 false。
func (v *VoiceSimulator) Trigger() bool {
	v.mu.Lock()
	defer v.mu.Unlock()

	if v.trigger == nil {
		return false
	}
	select {
	case v.trigger <- struct{}{}:
	default:
	}
	return true
}

// Listening 表示当前是否在发射。
func (v *VoiceSimulator) Listening() bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.cancel != nil
}

func (v *VoiceSimulator) run(ctx context.Context, trigger <-chan struct{}, onUtterance func(string), onError func(error)) {
	defer v.wg.Done()

	var tick <-chan time.Time
	if v.interval > 0 {
		ticker := time.NewTicker(v.interval)
		defer ticker.Stop()
		tick = ticker.C
	}

	for {
		select {
		case <-ctx.Done():
			return
		case <-tick:
		case <-trigger:
		}

		text, err := v.source.Next(ctx)
		if ctx.Err() != nil {
			return
		}
		if err != nil {
			v.logger.WithError(err).Warn("[voice] recognition failed")
			if onError != nil && !errors.Is(err, context.Canceled) {
				onError(err)
			}
			continue
		}

		v.logger.WithField("text", text).Debug("[voice] command recognized")
		if onUtterance != nil {
			onUtterance(text)
		}
	}
}
