package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os/signal"
	"strings"
	"syscall"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/zhouzirui/command-agent/backend/internal/analysis/intent"
	"github.com/zhouzirui/command-agent/backend/internal/config"
	"github.com/zhouzirui/command-agent/backend/internal/model/persona"
	speechModel "github.com/zhouzirui/command-agent/backend/internal/model/speech"
	"github.com/zhouzirui/command-agent/backend/internal/service/agent"
	"github.com/zhouzirui/command-agent/backend/internal/service/ai"
	"github.com/zhouzirui/command-agent/backend/internal/service/speech"
	applog "github.com/zhouzirui/command-agent/backend/pkg/log"
)

// chatCmd runs one session against stdin
var chatCmd = &cobra.Command{
	Use:   "chat",
	Short: "Interactive session reading utterances from stdin",
	Long: `Start a single agent session in the terminal. Each line is one utterance;
type "exit" or "quit" (or send EOF) to stop.

The completion backend is used when configured through the environment,
unless --local is given. RESOLVER_MODE selects the reply strategy the same
way it does for the API server.`,
	Args: cobra.NoArgs,
	RunE: runChat,
}

func runChat(cmd *cobra.Command, _ []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logger, err := applog.New(applog.Options{Level: logLevel})
	if err != nil {
		return err
	}

	assistant := persona.Default()

	// --local 忽略环境配置，空模式在没有补全后端时解析为 local
	var (
		rawMode   string
		completer agent.Completer
	)
	if !localOnly {
		cfg, err := config.Load()
		if err != nil {
			return err
		}
		rawMode = cfg.Resolver.Mode
		completer, err = buildCompleter(ctx, cfg, assistant.SystemPrompt, logger)
		if err != nil {
			logger.WithError(err).Warn("completion backend unavailable, using local intents only")
		}
	}

	mode, err := agent.ParseMode(rawMode, completer != nil)
	if err != nil {
		return err
	}
	resolver := agent.NewResolver(intent.NewCatalog(), completer, mode, logger)

	orchestrator := agent.NewOrchestrator("terminal", resolver, agent.Options{
		Speaker: speech.NewService(&speechModel.SpeechConfig{}, logger),
		Logger:  logger,
	})
	defer func() {
		orchestrator.Close()
		<-orchestrator.Done()
	}()

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "%s (mode: %s)\n", assistant.OpeningLine, resolver.Mode())

	scanner := bufio.NewScanner(cmd.InOrStdin())
	for {
		fmt.Fprint(out, "> ")
		if !scanner.Scan() {
			fmt.Fprintln(out)
			return scanner.Err()
		}

		line := strings.TrimSpace(scanner.Text())
		switch strings.ToLower(line) {
		case "":
			continue
		case "exit", "quit":
			return nil
		}

		outcome, err := orchestrator.HandleUtterance(ctx, line)
		if errors.Is(err, context.Canceled) {
			return nil
		}
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "[%s] %s\n", outcome.Source, outcome.Text)
	}
}

// buildCompleter returns a nil Completer when no backend is configured.
func buildCompleter(ctx context.Context, cfg *config.Config, systemPrompt string, logger logrus.FieldLogger) (agent.Completer, error) {
	if !cfg.Completion.Enabled() {
		return nil, nil
	}

	chatModel, err := cfg.Completion.NewChatModel(ctx)
	if err != nil {
		return nil, err
	}
	svc, err := ai.NewService(ctx, chatModel, ai.Options{
		SystemPrompt: systemPrompt,
		Timeout:      cfg.Completion.Timeout,
		Logger:       logger,
	})
	if err != nil {
		return nil, err
	}
	return svc, nil
}
