package agent

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/zhouzirui/command-agent/backend/internal/model/chat"
	"github.com/zhouzirui/command-agent/backend/internal/service/speech"
	"github.com/zhouzirui/command-agent/backend/pkg/log"
)

// Apology 在解析过程中出现意外时代替回复。
const Apology = "Sorry, I encountered an issue processing your request. Please try again."

var (
	ErrSessionClosed    = errors.New("session closed")
	ErrEmptyUtterance   = errors.New("utterance is empty")
	ErrVoiceUnavailable = errors.New("voice input unavailable")
)

// State 是编排器的处理状态。
type State string

const (
	StateIdle       State = "idle"
	StateProcessing State = "processing"
)

// Sink 接收会话事件。实现需要支持并发调用。
type Sink interface {
	Deliver(event chat.Event)
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(chat.Event)

func (f SinkFunc) Deliver(event chat.Event) { f(event) }

// Options 配置 Orchestrator 的协作者，均可为空。
type Options struct {
	Speaker     speech.Speaker
	Voice       *speech.VoiceSimulator
	OpeningLine string
	Logger      logrus.FieldLogger
	Clock       func() time.Time
}

type job struct {
	text   string
	result chan Outcome
}

// Orchestrator 串行处理单个会话的输入：记录历史、解析回复、推送事件并播报。
// 同一会话的回复顺序与输入顺序一致。
type Orchestrator struct {
	sessionID   string
	responder   Responder
	store       *ContextStore
	speaker     speech.Speaker
	voice       *speech.VoiceSimulator
	openingLine string
	now         func() time.Time
	logger      *logrus.Entry

	// lifecycle 串行化监听启停与关闭
	lifecycle sync.Mutex

	mu         sync.Mutex
	queue      []job
	history    []chat.Entry
	sinks      map[int]Sink
	nextSink   int
	processing bool
	closed     bool

	wake   chan struct{}
	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}
}

// NewOrchestrator 创建编排器并启动处理协程，使用完毕需调用 Close。
func NewOrchestrator(sessionID string, responder Responder, opts Options) *Orchestrator {
	now := opts.Clock
	if now == nil {
		now = time.Now
	}

	ctx, cancel := context.WithCancel(context.Background())
	o := &Orchestrator{
		sessionID:   sessionID,
		responder:   responder,
		store:       NewContextStore(),
		speaker:     opts.Speaker,
		voice:       opts.Voice,
		openingLine: opts.OpeningLine,
		now:         now,
		logger:      log.Component(opts.Logger, "orchestrator").WithField("session", sessionID),
		history:     make([]chat.Entry, 0, 16),
		sinks:       make(map[int]Sink),
		wake:        make(chan struct{}, 1),
		ctx:         ctx,
		cancel:      cancel,
		done:        make(chan struct{}),
	}

	go o.run()
	return o
}

// SessionID 返回所属会话标识。
func (o *Orchestrator) SessionID() string {
	return o.sessionID
}

// Submit 把输入加入队列，返回的 channel 在处理完成后收到回复；会话关闭时直接关闭。
func (o *Orchestrator) Submit(text string) (<-chan Outcome, error) {
	if strings.TrimSpace(text) == "" {
		return nil, ErrEmptyUtterance
	}

	result := make(chan Outcome, 1)

	o.mu.Lock()
	if o.closed {
		o.mu.Unlock()
		return nil, ErrSessionClosed
	}
	o.queue = append(o.queue, job{text: text, result: result})
	o.mu.Unlock()

	select {
	case o.wake <- struct{}{}:
	default:
	}
	return result, nil
}

// HandleUtterance 提交输入并等待它的回复。
func (o *Orchestrator) HandleUtterance(ctx context.Context, text string) (Outcome, error) {
	result, err := o.Submit(text)
	if err != nil {
		return Outcome{}, err
	}

	select {
	case outcome, ok := <-result:
		if !ok {
			return Outcome{}, ErrSessionClosed
		}
		return outcome, nil
	case <-ctx.Done():
		return Outcome{}, ctx.Err()
	}
}

// History 返回对话历史副本。
func (o *Orchestrator) History() []chat.Entry {
	o.mu.Lock()
	defer o.mu.Unlock()
	return append([]chat.Entry(nil), o.history...)
}

// Context 返回会话上下文存储。
func (o *Orchestrator) Context() *ContextStore {
	return o.store
}

// State 返回当前处理状态。
func (o *Orchestrator) State() State {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.processing {
		return StateProcessing
	}
	return StateIdle
}

// Attach 注册事件接收方，返回的函数用于解除注册。
func (o *Orchestrator) Attach(sink Sink) (detach func()) {
	o.mu.Lock()
	id := o.nextSink
	o.nextSink++
	o.sinks[id] = sink
	o.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			o.mu.Lock()
			delete(o.sinks, id)
			o.mu.Unlock()
		})
	}
}

// SinkCount 返回当前注册的事件接收方数量。
func (o *Orchestrator) SinkCount() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return len(o.sinks)
}

// StartListening 把模拟语音输入接到本会话，并播报开场白。已在监听时直接返回。
func (o *Orchestrator) StartListening() error {
	o.lifecycle.Lock()
	defer o.lifecycle.Unlock()

	o.mu.Lock()
	closed := o.closed
	o.mu.Unlock()
	if closed {
		return ErrSessionClosed
	}
	if o.voice == nil {
		return ErrVoiceUnavailable
	}

	started := o.voice.Start(o.onVoiceCommand, o.onVoiceError)
	if !started {
		return nil
	}

	o.logger.Info("[orchestrator] listening started")
	o.broadcast(o.event(chat.EventStatus, "listening", "", ""))
	if o.openingLine != "" {
		o.speak(o.openingLine)
	}
	return nil
}

// StopListening 停止模拟语音输入，返回后不会再有语音指令进入队列。
func (o *Orchestrator) StopListening() {
	o.lifecycle.Lock()
	defer o.lifecycle.Unlock()

	if o.voice == nil || !o.voice.Listening() {
		return
	}
	o.voice.Stop()
	o.logger.Info("[orchestrator] listening stopped")
	o.broadcast(o.event(chat.EventStatus, "idle", "", ""))
}

// Listening 表示是否在接收语音输入。
func (o *Orchestrator) Listening() bool {
	return o.voice != nil && o.voice.Listening()
}

// TriggerVoice 立即产生一条模拟语音指令。
func (o *Orchestrator) TriggerVoice() bool {
	return o.voice != nil && o.voice.Trigger()
}

// Close 停止监听并拒绝后续输入。排队中尚未处理的输入被丢弃，正在处理的输入自然结束。
func (o *Orchestrator) Close() {
	o.lifecycle.Lock()
	o.mu.Lock()
	if o.closed {
		o.mu.Unlock()
		o.lifecycle.Unlock()
		return
	}
	o.closed = true
	pending := o.queue
	o.queue = nil
	o.mu.Unlock()

	if o.voice != nil {
		o.voice.Stop()
	}
	o.lifecycle.Unlock()
	for _, j := range pending {
		close(j.result)
	}
	o.cancel()
}

// Done 在处理协程退出后关闭。
func (o *Orchestrator) Done() <-chan struct{} {
	return o.done
}

func (o *Orchestrator) run() {
	defer close(o.done)

	for {
		select {
		case <-o.ctx.Done():
			return
		case <-o.wake:
		}

		for {
			next, ok := o.dequeue()
			if !ok {
				break
			}
			o.process(next)
		}
	}
}

func (o *Orchestrator) dequeue() (job, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.closed || len(o.queue) == 0 {
		return job{}, false
	}
	next := o.queue[0]
	o.queue[0] = job{}
	o.queue = o.queue[1:]
	o.processing = true
	return next, true
}

func (o *Orchestrator) process(j job) {
	o.appendEntry(chat.RoleUser, j.text)

	outcome := o.resolve(j.text)

	o.appendEntry(chat.RoleAgent, outcome.Text)

	o.mu.Lock()
	o.processing = false
	o.mu.Unlock()

	o.broadcast(o.event(chat.EventReply, outcome.Text, string(outcome.Intent), string(outcome.Source)))
	o.speak(outcome.Text)

	j.result <- outcome
	close(j.result)
}

// resolve 调用 Responder，任何 panic 都转成致歉回复。
// 使用不随会话取消的 context，已发出的补全请求按自身超时结束。
func (o *Orchestrator) resolve(text string) (outcome Outcome) {
	defer func() {
		if r := recover(); r != nil {
			o.logger.WithField("panic", fmt.Sprint(r)).Error("[orchestrator] resolver panicked")
			outcome = Outcome{Text: Apology, Source: SourceApology}
		}
	}()

	started := o.now()
	outcome = o.responder.Resolve(context.WithoutCancel(o.ctx), text)
	if outcome.Text == "" {
		return Outcome{Text: Apology, Source: SourceApology}
	}

	o.logger.WithFields(logrus.Fields{
		"intent":  outcome.Intent,
		"source":  outcome.Source,
		"elapsed": o.now().Sub(started).String(),
	}).Info("[orchestrator] reply resolved")
	return outcome
}

func (o *Orchestrator) appendEntry(role chat.Role, text string) {
	o.mu.Lock()
	o.history = append(o.history, chat.Entry{Role: role, Text: text, Timestamp: o.now().UTC()})
	o.mu.Unlock()
}

func (o *Orchestrator) event(kind chat.EventType, text, intentName, source string) chat.Event {
	return chat.Event{
		Type:      kind,
		SessionID: o.sessionID,
		Text:      text,
		Intent:    intentName,
		Source:    source,
		Timestamp: o.now().UTC(),
	}
}

func (o *Orchestrator) broadcast(event chat.Event) {
	o.mu.Lock()
	sinks := make([]Sink, 0, len(o.sinks))
	for _, sink := range o.sinks {
		sinks = append(sinks, sink)
	}
	o.mu.Unlock()

	for _, sink := range sinks {
		o.deliver(sink, event)
	}
}

func (o *Orchestrator) deliver(sink Sink, event chat.Event) {
	defer func() {
		if r := recover(); r != nil {
			o.logger.WithField("panic", fmt.Sprint(r)).Warn("[orchestrator] sink panicked")
		}
	}()
	sink.Deliver(event)
}

// speak 只发起播报，不等待结果。
func (o *Orchestrator) speak(text string) {
	if o.speaker == nil {
		return
	}
	_ = o.speaker.Speak(o.ctx, text)
}

func (o *Orchestrator) onVoiceCommand(text string) {
	o.broadcast(o.event(chat.EventVoice, text, "", "voice"))
	if _, err := o.Submit(text); err != nil {
		o.logger.WithError(err).Warn("[orchestrator] dropped voice command")
	}
}

func (o *Orchestrator) onVoiceError(err error) {
	o.broadcast(o.event(chat.EventError, err.Error(), "", "voice"))
}
