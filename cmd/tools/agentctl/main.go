package main

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

var (
	logLevel  string
	localOnly bool
)

// rootCmd is the agentctl entry point
var rootCmd = &cobra.Command{
	Use:   "agentctl",
	Short: "Operate the command agent from a terminal",
	Long: `agentctl exercises the command agent without the HTTP server.

Available subcommands:
  classify - Show which intent an utterance matches
  intents  - List the intent catalog in priority order
  chat     - Interactive session reading utterances from stdin`,
	SilenceUsage: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		// .env 缺失时直接使用系统环境变量
		_ = godotenv.Load()
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "warn", "log level (debug, info, warn, error)")
	chatCmd.Flags().BoolVar(&localOnly, "local", false, "ignore the completion backend and use local intents only")

	rootCmd.AddCommand(classifyCmd, intentsCmd, chatCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
