// Package main provides the CLI entry point for agentcore, the
// multi-agent session orchestration backend: session lifecycle, agent and
// skill composition, and inter-session messaging over a single LLM
// client-manager and SSE broadcast hub.
package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"
)

// Build information, populated by ldflags during build.
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo}))
	slog.SetDefault(logger)

	rootCmd := buildRootCmd()
	if err := rootCmd.Execute(); err != nil {
		slog.Error("command execution failed", "error", err)
		os.Exit(1)
	}
}

// buildRootCmd creates the root command with all subcommands attached,
// separated from main so tests can exercise it without starting a server.
func buildRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "agentcore",
		Short: "agentcore - multi-agent session orchestration backend",
		Long: `agentcore drives LLM sessions (PM, specialist, assistant) through a
shared executor, lets agents collaborate via inter-session tools, and
broadcasts every domain event over Server-Sent Events.`,
		Version:      fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, date),
		SilenceUsage: true,
	}

	rootCmd.AddCommand(
		buildServeCmd(),
		buildAgentsCmd(),
		buildSkillsCmd(),
	)
	return rootCmd
}
