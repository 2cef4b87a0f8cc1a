package intent

import (
	"math/rand/v2"
	"regexp"
	"strings"
	"sync"
	"time"
)

// Name 表示可识别的意图名称。
type Name string

const (
	Greeting Name = "greeting"
	Time     Name = "time"
	Date     Name = "date"
	Weather  Name = "weather"
	Joke     Name = "joke"
	Music    Name = "music"
	Help     Name = "help"
	General  Name = "general"
)

// Utterance 携带原始输入与规范化后的文本，原始文本不会被修改。
type Utterance struct {
	Original   string
	Normalized string
}

// Handler 根据输入生成回复。
type Handler func(Utterance) string

// Intent 是目录中的一条规则：名称、按顺序匹配的模式以及处理函数。
type Intent struct {
	Name     Name
	Patterns []*regexp.Regexp
	Handler  Handler
}

// Result 是 Respond 的结果。Matched 为 false 表示走了通用兜底。
type Result struct {
	Intent  Name
	Text    string
	Matched bool
}

// Catalog 按固定优先级保存意图，首个命中的意图胜出。
type Catalog struct {
	intents []Intent
	general Handler

	mu  sync.Mutex
	rng *rand.Rand
	now func() time.Time
}

// Option 调整 Catalog 的随机源与时钟。
type Option func(*Catalog)

// WithRand 注入随机源，测试用固定种子即可得到确定的回复。
func WithRand(src rand.Source) Option {
	return func(c *Catalog) {
		c.rng = rand.New(src)
	}
}

// WithClock 注入时钟。
func WithClock(now func() time.Time) Option {
	return func(c *Catalog) {
		if now != nil {
			c.now = now
		}
	}
}

// Normalize 转小写并去掉首尾空白。
func Normalize(text string) string {
	return strings.ToLower(strings.TrimSpace(text))
}

// NewCatalog 构建默认意图目录：greeting, time, date, weather, joke, music, help, general。
func NewCatalog(opts ...Option) *Catalog {
	c := &Catalog{now: time.Now}
	for _, opt := range opts {
		opt(c)
	}

	c.general = c.respondGeneral
	c.intents = []Intent{
		{
			Name:     Greeting,
			Patterns: compile(`hello|hi|hey|greetings|good morning|good afternoon|good evening`),
			Handler:  c.poolHandler(greetingReplies),
		},
		{
			Name: Time,
			Patterns: compile(
				`what time|time is it|current time|tell me the time|what's the time`,
				`time|clock`,
			),
			Handler: c.respondTime,
		},
		{
			Name: Date,
			Patterns: compile(
				`what date|date is it|current date|tell me the date|what's the date|today's date`,
				`date|today`,
			),
			Handler: c.respondDate,
		},
		{
			Name:     Weather,
			Patterns: compile(`weather|temperature|hot|cold|rain|sunny|forecast`),
			Handler:  c.poolHandler(weatherReplies),
		},
		{
			Name:     Joke,
			Patterns: compile(`tell me a joke|make me laugh|funny|joke|humor`),
			Handler:  c.poolHandler(jokeReplies),
		},
		{
			Name:     Music,
			Patterns: compile(`play music|music|song|playlist|start music`),
			Handler:  c.poolHandler(musicReplies),
		},
		{
			Name:     Help,
			Patterns: compile(`help|assist|support|what can you do|how can you help`),
			Handler:  func(Utterance) string { return helpReply },
		},
		{
			Name:     General,
			Patterns: compile(`how are you|how do you work|what are you|who are you|what can you do`),
			Handler:  c.general,
		},
	}

	return c
}

// compile 把每组备选词包成带词边界、忽略大小写的正则。
func compile(alternatives ...string) []*regexp.Regexp {
	patterns := make([]*regexp.Regexp, 0, len(alternatives))
	for _, alt := range alternatives {
		patterns = append(patterns, regexp.MustCompile(`(?i)\b(`+alt+`)\b`))
	}
	return patterns
}

// Classify 按目录顺序匹配，返回首个命中的意图。
func (c *Catalog) Classify(normalized string) (Name, bool) {
	intent, ok := c.match(normalized)
	if !ok {
		return "", false
	}
	return intent.Name, true
}

func (c *Catalog) match(normalized string) (*Intent, bool) {
	for i := range c.intents {
		for _, pattern := range c.intents[i].Patterns {
			if pattern.MatchString(normalized) {
				return &c.intents[i], true
			}
		}
	}
	return nil, false
}

// Respond 规范化输入、分类并分发到处理函数；未命中时使用通用兜底。
func (c *Catalog) Respond(original string) Result {
	in := Utterance{Original: original, Normalized: Normalize(original)}

	intent, ok := c.match(in.Normalized)
	if !ok {
		return Result{Intent: General, Text: c.general(in)}
	}
	return Result{Intent: intent.Name, Text: intent.Handler(in), Matched: true}
}

// Fallback 直接走通用兜底处理。
func (c *Catalog) Fallback(original string) Result {
	return Result{Intent: General, Text: c.general(Utterance{Original: original, Normalized: Normalize(original)})}
}

// Names 按优先级返回意图名称。
func (c *Catalog) Names() []Name {
	names := make([]Name, 0, len(c.intents))
	for _, intent := range c.intents {
		names = append(names, intent.Name)
	}
	return names
}

func (c *Catalog) pick(n int) int {
	if c.rng == nil {
		return rand.IntN(n)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.rng.IntN(n)
}
