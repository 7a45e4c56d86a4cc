// Package main provides the CLI entry point for the pinboard bot.
//
// Pinboard keeps Discord channels under the 50 pin limit by copying pinned
// messages into linked pinboard channels and unpinning the originals.
//
// # Basic Usage
//
// Start the bot:
//
//	pinboard serve --config pinboard.yaml
//
// Apply database migrations:
//
//	pinboard db migrate
//
// Inspect or change the automatic migration mode:
//
//	pinboard mode get
//	pinboard mode set automatic
//
// # Environment Variables
//
//   - PINBOARD_CONFIG: Path to configuration file (default: pinboard.yaml)
//   - DISCORD_BOT_TOKEN: commonly referenced from the config as ${DISCORD_BOT_TOKEN}
package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"
)

// Build information - populated by ldflags during build.
//
// Example build command:
//
//	go build -ldflags "-X main.version=v1.0.0 -X main.commit=$(git rev-parse HEAD) -X main.date=$(date -u +%Y-%m-%dT%H:%M:%SZ)"
var (
	version = "dev"     // Semantic version (e.g., "v1.0.0")
	commit  = "none"    // Git commit SHA
	date    = "unknown" // Build timestamp
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	rootCmd := buildRootCmd()
	if err := rootCmd.Execute(); err != nil {
		slog.Error("command execution failed", "error", err)
		os.Exit(1)
	}
}

// buildRootCmd creates the root command with all subcommands attached.
// This is separated from main() to facilitate testing.
func buildRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "pinboard",
		Short: "Pinboard - overflow storage for Discord pins",
		Long: `Pinboard watches a Discord guild for pinned messages and copies them
into linked pinboard channels, so source channels never hit the pin limit.

Channels close to the limit can be migrated manually or automatically,
and mirrored messages follow their edits and deletions.`,
		Version: fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, date),
		// SilenceUsage prevents printing usage on every error.
		SilenceUsage: true,
	}

	rootCmd.AddCommand(
		buildServeCmd(),
		buildDBCmd(),
		buildModeCmd(),
		buildLinksCmd(),
		buildPrivacyCmd(),
		buildConfigCmd(),
	)

	return rootCmd
}
