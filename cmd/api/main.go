package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"

	"github.com/zhouzirui/command-agent/backend/internal/analysis/intent"
	"github.com/zhouzirui/command-agent/backend/internal/config"
	"github.com/zhouzirui/command-agent/backend/internal/handler"
	handlerSpeech "github.com/zhouzirui/command-agent/backend/internal/handler/speech"
	"github.com/zhouzirui/command-agent/backend/internal/model/persona"
	speechModel "github.com/zhouzirui/command-agent/backend/internal/model/speech"
	"github.com/zhouzirui/command-agent/backend/internal/service/agent"
	"github.com/zhouzirui/command-agent/backend/internal/service/ai"
	"github.com/zhouzirui/command-agent/backend/internal/service/chat"
	"github.com/zhouzirui/command-agent/backend/internal/service/metrics"
	"github.com/zhouzirui/command-agent/backend/internal/service/speech"
	applog "github.com/zhouzirui/command-agent/backend/pkg/log"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Load .env file
	envErr := godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		logrus.WithError(err).Fatal("failed to load configuration")
	}

	logger, err := applog.New(applog.Options{Level: cfg.Log.Level, File: cfg.Log.File})
	if err != nil {
		logrus.WithError(err).Fatal("failed to initialize logger")
	}
	if envErr != nil {
		logger.WithError(envErr).Warn("failed to load .env file, continuing with system environment variables only")
	}

	personaStore := persona.NewMemoryStore(persona.Seed())
	assistant := persona.Default()

	// Initialize completion service
	var completer agent.Completer
	if cfg.Completion.Enabled() {
		if svc, err := newCompletionService(ctx, cfg, assistant.SystemPrompt, logger); err != nil {
			logger.WithError(err).Warn("failed to initialize completion backend, continuing with local intents only")
		} else {
			completer = svc
			logger.WithField("provider", cfg.Completion.Provider).Info("completion backend initialized")
		}
	} else {
		logger.Info("completion backend not configured, using local intents only")
	}

	mode, err := agent.ParseMode(cfg.Resolver.Mode, completer != nil)
	if err != nil {
		logger.WithError(err).Fatal("invalid resolver mode")
	}
	resolver := agent.NewResolver(intent.NewCatalog(), completer, mode, logger)
	logger.WithField("mode", resolver.Mode()).Info("resolver ready")

	speechService := speech.NewService(&speechModel.SpeechConfig{
		SpeakDelay:    cfg.Speech.SpeakDelay,
		VoiceInterval: cfg.Speech.VoiceInterval,
		Voice:         assistant.VoiceID,
	}, logger)

	chatService := chat.NewService(chat.Dependencies{
		Responder: resolver,
		Personas:  personaStore,
		Speaker:   speechService,
		NewVoice: func() *speech.VoiceSimulator {
			return speech.NewVoiceSimulator(speech.NewSimulatedCommands(speech.DefaultCommands, nil), cfg.Speech.VoiceInterval, logger)
		},
		Logger: logger,
	})

	sampler := metrics.NewSampler(nil, chatService.Count)

	router := handler.NewRouter(handler.Dependencies{
		Personas:    personaStore,
		Chat:        chatService,
		Speaker:     speechService,
		Sampler:     sampler,
		CORSOrigins: cfg.Server.CORSOrigins,
		RateLimit: handlerSpeech.RateLimit{
			PerSecond: cfg.Transport.MessagesPerSecond,
			Burst:     cfg.Transport.Burst,
		},
		Logger: logger,
	})

	if assistant.Announcement != "" {
		speechService.Speak(ctx, assistant.Announcement)
	}

	startServer(ctx, cfg.Server, router, logger)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := chatService.Shutdown(shutdownCtx); err != nil {
		logger.WithError(err).Warn("sessions did not stop before shutdown deadline")
	}
}

// newCompletionService 只在返回非 nil 时才作为 Completer 使用，避免 nil 接口值。
func newCompletionService(ctx context.Context, cfg *config.Config, systemPrompt string, logger logrus.FieldLogger) (*ai.Service, error) {
	chatModel, err := cfg.Completion.NewChatModel(ctx)
	if err != nil {
		return nil, err
	}
	return ai.NewService(ctx, chatModel, ai.Options{
		SystemPrompt: systemPrompt,
		Timeout:      cfg.Completion.Timeout,
		Logger:       logger,
	})
}

func startServer(ctx context.Context, serverCfg config.ServerConfig, router http.Handler, logger logrus.FieldLogger) {
	addr := serverCfg.Addr
	srv := &http.Server{
		Addr:              addr,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	logger.WithField("addr", addr).Info("command agent backend listening")
	if err := runServer(ctx, srv); err != nil {
		logger.WithError(err).Fatal("server error")
	}
}

func runServer(ctx context.Context, srv *http.Server) error {
	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
		err := <-errCh
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}
