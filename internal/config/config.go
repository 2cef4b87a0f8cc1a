package config

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/cloudwego/eino-ext/components/model/ark"
	"github.com/cloudwego/eino/components/model"

	"github.com/zhouzirui/command-agent/backend/internal/service/ai/openrouter"
)

const (
	ProviderOpenRouter = "openrouter"
	ProviderArk        = "ark"

	ModeCompletionFirst = "completion_first"
	ModeLocal           = "local"
	ModeIntentFirst     = "intent_first"
)

// Config 聚合整个服务的配置项，Load 之后只读。
type Config struct {
	Server     ServerConfig
	Completion CompletionConfig
	Resolver   ResolverConfig
	Speech     SpeechConfig
	Transport  TransportConfig
	Log        LogConfig
}

// Load 从环境变量加载配置并校验。
func Load() (*Config, error) {
	server, err := loadServerConfig()
	if err != nil {
		return nil, err
	}

	completion, err := loadCompletionConfig()
	if err != nil {
		return nil, err
	}

	speech, err := loadSpeechConfig()
	if err != nil {
		return nil, err
	}

	transport, err := loadTransportConfig()
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		Server:     server,
		Completion: completion,
		Resolver:   ResolverConfig{Mode: strings.ToLower(strings.TrimSpace(os.Getenv("RESOLVER_MODE")))},
		Speech:     speech,
		Transport:  transport,
		Log: LogConfig{
			Level: getEnvOrDefault("LOG_LEVEL", "info"),
			File:  strings.TrimSpace(os.Getenv("LOG_FILE")),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate 校验取值范围。
func (c *Config) Validate() error {
	var errs []error

	switch c.Completion.Provider {
	case ProviderOpenRouter, ProviderArk:
	default:
		errs = append(errs, fmt.Errorf("unsupported COMPLETION_PROVIDER %q", c.Completion.Provider))
	}

	switch c.Resolver.Mode {
	case "", ModeCompletionFirst, ModeLocal, ModeIntentFirst:
	default:
		errs = append(errs, fmt.Errorf("unsupported RESOLVER_MODE %q", c.Resolver.Mode))
	}

	if t := c.Completion.Temperature; t != nil && (*t < 0 || *t > 2) {
		errs = append(errs, fmt.Errorf("MODEL_TEMPERATURE out of range: %v", *t))
	}
	// go-openai 以 omitempty 序列化 temperature，0 会被静默丢弃
	if t := c.Completion.Temperature; t != nil && *t == 0 && c.Completion.Provider == ProviderOpenRouter {
		errs = append(errs, errors.New("MODEL_TEMPERATURE=0 is not supported by the openrouter provider"))
	}
	if p := c.Completion.TopP; p != nil && (*p <= 0 || *p > 1) {
		errs = append(errs, fmt.Errorf("MODEL_TOP_P out of range: %v", *p))
	}
	if m := c.Completion.MaxTokens; m != nil && *m <= 0 {
		errs = append(errs, fmt.Errorf("MODEL_MAX_TOKENS must be positive: %d", *m))
	}
	if c.Completion.Timeout <= 0 {
		errs = append(errs, errors.New("COMPLETION_TIMEOUT must be positive"))
	}
	if c.Speech.VoiceInterval <= 0 {
		errs = append(errs, errors.New("VOICE_INTERVAL must be positive"))
	}
	if c.Speech.SpeakDelay < 0 {
		errs = append(errs, errors.New("SPEECH_DELAY must not be negative"))
	}
	if c.Transport.MessagesPerSecond <= 0 || c.Transport.Burst <= 0 {
		errs = append(errs, errors.New("WS_MESSAGES_PER_SECOND and WS_BURST must be positive"))
	}

	return errors.Join(errs...)
}

// ServerConfig 描述 HTTP 服务配置。
type ServerConfig struct {
	Addr        string
	CORSOrigins []string
}

// loadServerConfig 解析服务器监听地址。
func loadServerConfig() (ServerConfig, error) {
	port := strings.TrimSpace(os.Getenv("PORT"))
	if port == "" {
		port = "8080"
	}

	origins := splitList(getEnvOrDefault("CORS_ORIGINS", "*"))

	if strings.Contains(port, ":") {
		// 允许用户直接传入 ":8080" 或 "127.0.0.1:8080"。
		return ServerConfig{Addr: port, CORSOrigins: origins}, nil
	}

	if strings.Contains(port, " ") {
		return ServerConfig{}, fmt.Errorf("invalid PORT value: %q", port)
	}

	return ServerConfig{Addr: ":" + port, CORSOrigins: origins}, nil
}

// CompletionConfig 描述外部补全后端配置。
type CompletionConfig struct {
	Provider    string
	APIKey      string
	AccessKey   string
	SecretKey   string
	Region      string
	BaseURL     string
	Model       string
	Temperature *float64
	TopP        *float64
	MaxTokens   *int
	Timeout     time.Duration
}

// Enabled 表示是否提供了必需的密钥。没有内置默认密钥。
func (c CompletionConfig) Enabled() bool {
	if c.Provider == ProviderArk {
		return c.Model != "" && (c.APIKey != "" || (c.AccessKey != "" && c.SecretKey != ""))
	}
	return c.APIKey != "" && c.Model != ""
}

// NewChatModel 使用配置创建一个模型实例。
func (c CompletionConfig) NewChatModel(ctx context.Context) (model.BaseChatModel, error) {
	if !c.Enabled() {
		return nil, fmt.Errorf("%s 凭证或模型配置缺失", c.Provider)
	}

	temperature := toFloat32(c.Temperature)
	topP := toFloat32(c.TopP)

	var maxTokens *int
	if c.MaxTokens != nil {
		val := *c.MaxTokens
		maxTokens = &val
	}

	if c.Provider == ProviderArk {
		return ark.NewChatModel(ctx, &ark.ChatModelConfig{
			BaseURL:     c.BaseURL,
			Region:      c.Region,
			APIKey:      c.APIKey,
			AccessKey:   c.AccessKey,
			SecretKey:   c.SecretKey,
			Model:       c.Model,
			MaxTokens:   maxTokens,
			Temperature: temperature,
			TopP:        topP,
			Timeout:     &c.Timeout,
		})
	}

	return openrouter.NewChatModel(ctx, &openrouter.Config{
		APIKey:      c.APIKey,
		BaseURL:     c.BaseURL,
		Model:       c.Model,
		Temperature: temperature,
		TopP:        topP,
		MaxTokens:   maxTokens,
		Timeout:     c.Timeout,
	})
}

func loadCompletionConfig() (CompletionConfig, error) {
	provider := strings.ToLower(getEnvOrDefault("COMPLETION_PROVIDER", ProviderOpenRouter))

	temperature, err := parseOptionalFloatEnv("MODEL_TEMPERATURE")
	if err != nil {
		return CompletionConfig{}, err
	}
	if temperature == nil {
		temperature = floatPtr(0.7)
	}

	topP, err := parseOptionalFloatEnv("MODEL_TOP_P")
	if err != nil {
		return CompletionConfig{}, err
	}
	if topP == nil {
		topP = floatPtr(0.9)
	}

	maxTokens, err := parseOptionalIntEnv("MODEL_MAX_TOKENS")
	if err != nil {
		return CompletionConfig{}, err
	}
	if maxTokens == nil {
		val := 2048
		maxTokens = &val
	}

	timeout, err := parseDurationEnv("COMPLETION_TIMEOUT", 30*time.Second)
	if err != nil {
		return CompletionConfig{}, err
	}

	cfg := CompletionConfig{
		Provider:    provider,
		Temperature: temperature,
		TopP:        topP,
		MaxTokens:   maxTokens,
		Timeout:     timeout,
	}

	if provider == ProviderArk {
		cfg.APIKey = strings.TrimSpace(os.Getenv("ARK_API_KEY"))
		cfg.AccessKey = strings.TrimSpace(os.Getenv("ARK_ACCESS_KEY"))
		cfg.SecretKey = strings.TrimSpace(os.Getenv("ARK_SECRET_KEY"))
		cfg.Region = getEnvOrDefault("ARK_REGION", "cn-beijing")
		cfg.BaseURL = getEnvOrDefault("COMPLETION_BASE_URL", "https://ark.cn-beijing.volces.com/api/v3")
		cfg.Model = strings.TrimSpace(os.Getenv("MODEL_NAME"))
		return cfg, nil
	}

	cfg.APIKey = strings.TrimSpace(os.Getenv("OPENROUTER_API_KEY"))
	cfg.BaseURL = getEnvOrDefault("COMPLETION_BASE_URL", openrouter.DefaultBaseURL)
	cfg.Model = getEnvOrDefault("MODEL_NAME", openrouter.DefaultModel)
	return cfg, nil
}

// ResolverConfig 选择回复策略，空值表示按是否配置补全后端自动选择。
type ResolverConfig struct {
	Mode string
}

// SpeechConfig 描述模拟语音输入输出。
type SpeechConfig struct {
	VoiceInterval time.Duration
	SpeakDelay    time.Duration
}

func loadSpeechConfig() (SpeechConfig, error) {
	interval, err := parseDurationEnv("VOICE_INTERVAL", 10*time.Second)
	if err != nil {
		return SpeechConfig{}, err
	}

	delay, err := parseDurationEnv("SPEECH_DELAY", 100*time.Millisecond)
	if err != nil {
		return SpeechConfig{}, err
	}

	return SpeechConfig{VoiceInterval: interval, SpeakDelay: delay}, nil
}

// TransportConfig 描述 websocket 入站限流。
type TransportConfig struct {
	MessagesPerSecond float64
	Burst             int
}

func loadTransportConfig() (TransportConfig, error) {
	perSecond, err := parseOptionalFloatEnv("WS_MESSAGES_PER_SECOND")
	if err != nil {
		return TransportConfig{}, err
	}
	burst, err := parseOptionalIntEnv("WS_BURST")
	if err != nil {
		return TransportConfig{}, err
	}

	cfg := TransportConfig{MessagesPerSecond: 5, Burst: 10}
	if perSecond != nil {
		cfg.MessagesPerSecond = *perSecond
	}
	if burst != nil {
		cfg.Burst = *burst
	}
	return cfg, nil
}

// LogConfig 描述日志级别与可选的滚动文件。
type LogConfig struct {
	Level string
	File  string
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := strings.TrimSpace(os.Getenv(key)); value != "" {
		return value
	}
	return defaultValue
}

func splitList(raw string) []string {
	var items []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			items = append(items, part)
		}
	}
	return items
}

func parseDurationEnv(key string, defaultValue time.Duration) (time.Duration, error) {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return defaultValue, nil
	}

	val, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid %s value %q: %w", key, raw, err)
	}
	return val, nil
}

func parseOptionalFloatEnv(key string) (*float64, error) {
	raw, ok := os.LookupEnv(key)
	if !ok {
		return nil, nil
	}

	value := strings.TrimSpace(raw)
	if value == "" {
		return nil, nil
	}

	val, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid %s value %q: %w", key, value, err)
	}
	return &val, nil
}

func parseOptionalIntEnv(key string) (*int, error) {
	raw, ok := os.LookupEnv(key)
	if !ok {
		return nil, nil
	}

	value := strings.TrimSpace(raw)
	if value == "" {
		return nil, nil
	}

	val, err := strconv.Atoi(value)
	if err != nil {
		return nil, fmt.Errorf("invalid %s value %q: %w", key, value, err)
	}
	return &val, nil
}

func floatPtr(v float64) *float64 { return &v }

func toFloat32(v *float64) *float32 {
	if v == nil {
		return nil
	}
	val := float32(*v)
	return &val
}
