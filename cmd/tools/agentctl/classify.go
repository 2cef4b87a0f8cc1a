package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/zhouzirui/command-agent/backend/internal/analysis/intent"
)

// classifyCmd prints the matched intent and a sample local reply
var classifyCmd = &cobra.Command{
	Use:   "classify <utterance...>",
	Short: "Show which intent an utterance matches",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runClassify,
}

// intentsCmd lists the catalog
var intentsCmd = &cobra.Command{
	Use:   "intents",
	Short: "List the intent catalog in priority order",
	Args:  cobra.NoArgs,
	RunE:  runIntents,
}

func runClassify(cmd *cobra.Command, args []string) error {
	utterance := strings.Join(args, " ")
	catalog := intent.NewCatalog()

	name, matched := catalog.Classify(intent.Normalize(utterance))
	result := catalog.Respond(utterance)

	out := cmd.OutOrStdout()
	if matched {
		fmt.Fprintf(out, "intent:  %s\n", name)
	} else {
		fmt.Fprintf(out, "intent:  %s (no pattern matched)\n", result.Intent)
	}
	fmt.Fprintf(out, "reply:   %s\n", result.Text)
	return nil
}

func runIntents(cmd *cobra.Command, _ []string) error {
	out := cmd.OutOrStdout()
	for i, name := range intent.NewCatalog().Names() {
		fmt.Fprintf(out, "%d. %s\n", i+1, name)
	}
	return nil
}
