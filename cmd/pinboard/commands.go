package main

import (
	"github.com/spf13/cobra"
)

// =============================================================================
// Serve Command
// =============================================================================

// buildServeCmd creates the "serve" command that runs the bot.
func buildServeCmd() *cobra.Command {
	var (
		configPath string
		debug      bool
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Connect to Discord and start tracking pins",
		Long: `Start the pinboard bot.

The bot connects to the Discord gateway, warms its pin cache for every linked
channel, serves Prometheus metrics and a health check, and reloads the log
level when the config file changes.`,
		Example: `  # Start with the default config
  pinboard serve

  # Start with a specific config and debug logging
  pinboard serve --config /etc/pinboard/pinboard.yaml --debug`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context(), resolveConfigPath(configPath), debug)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "", "Path to YAML configuration file (default: $PINBOARD_CONFIG or pinboard.yaml)")
	cmd.Flags().BoolVarP(&debug, "debug", "d", false, "Enable debug logging (overrides logging.level)")

	return cmd
}

// =============================================================================
// Database Commands
// =============================================================================

// buildDBCmd creates the "db" command group.
func buildDBCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "db",
		Short: "Database maintenance commands",
	}
	cmd.AddCommand(buildDBMigrateCmd(), buildDBPruneCmd())
	return cmd
}

func buildDBMigrateCmd() *cobra.Command {
	var configPath string
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending schema migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDBMigrate(cmd, resolveConfigPath(configPath))
		},
	}
	cmd.Flags().StringVarP(&configPath, "config", "c", "", "Path to YAML configuration file")
	return cmd
}

func buildDBPruneCmd() *cobra.Command {
	var (
		configPath string
		yes        bool
	)
	cmd := &cobra.Command{
		Use:   "prune",
		Short: "Drop every stored record and recreate an empty schema",
		Long: `Drop the message mirror, pinboard registrations, links, settings and
privacy opt-outs, then recreate an empty schema. This cannot be undone.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDBPrune(cmd, resolveConfigPath(configPath), yes)
		},
	}
	cmd.Flags().StringVarP(&configPath, "config", "c", "", "Path to YAML configuration file")
	cmd.Flags().BoolVar(&yes, "yes", false, "Confirm that all data should be deleted")
	return cmd
}

// =============================================================================
// Migration Mode Commands
// =============================================================================

// buildModeCmd creates the "mode" command group for the automatic migration mode.
func buildModeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "mode",
		Short: "Show or change the automatic migration mode",
		Long: `The automatic migration mode decides what happens when a source channel
reaches the pin limit:

  manual        do nothing until a moderator runs the migrate command
  confirmation  ask a moderator to confirm, then choose a pinboard
  automatic     go straight to choosing a pinboard`,
	}
	cmd.AddCommand(buildModeGetCmd(), buildModeSetCmd())
	return cmd
}

func buildModeGetCmd() *cobra.Command {
	var configPath string
	cmd := &cobra.Command{
		Use:   "get",
		Short: "Print the stored migration mode",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runModeGet(cmd, resolveConfigPath(configPath))
		},
	}
	cmd.Flags().StringVarP(&configPath, "config", "c", "", "Path to YAML configuration file")
	return cmd
}

func buildModeSetCmd() *cobra.Command {
	var configPath string
	cmd := &cobra.Command{
		Use:     "set <manual|confirmation|automatic>",
		Short:   "Store a new migration mode",
		Example: `  pinboard mode set automatic`,
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runModeSet(cmd, resolveConfigPath(configPath), args[0])
		},
	}
	cmd.Flags().StringVarP(&configPath, "config", "c", "", "Path to YAML configuration file")
	return cmd
}

// =============================================================================
// Link Commands
// =============================================================================

// buildLinksCmd creates the "links" command group.
func buildLinksCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "links",
		Short: "Inspect pinboards and their linked source channels",
	}
	cmd.AddCommand(buildLinksListCmd())
	return cmd
}

func buildLinksListCmd() *cobra.Command {
	var (
		configPath string
		asJSON     bool
	)
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List registered pinboards and links",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runLinksList(cmd, resolveConfigPath(configPath), asJSON)
		},
	}
	cmd.Flags().StringVarP(&configPath, "config", "c", "", "Path to YAML configuration file")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print links as JSON")
	return cmd
}

// =============================================================================
// Privacy Commands
// =============================================================================

// buildPrivacyCmd creates the "privacy" command group. Messages from
// protected users are never mirrored.
func buildPrivacyCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "privacy",
		Short: "Manage users whose messages are never mirrored",
	}
	cmd.AddCommand(
		buildPrivacyCmdFor("protect", "Stop mirroring messages from a user"),
		buildPrivacyCmdFor("unprotect", "Resume mirroring messages from a user"),
		buildPrivacyCmdFor("status", "Show whether a user is protected"),
	)
	return cmd
}

func buildPrivacyCmdFor(action, short string) *cobra.Command {
	var configPath string
	cmd := &cobra.Command{
		Use:   action + " <user-id>",
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPrivacy(cmd, resolveConfigPath(configPath), action, args[0])
		},
	}
	cmd.Flags().StringVarP(&configPath, "config", "c", "", "Path to YAML configuration file")
	return cmd
}

// =============================================================================
// Config Commands
// =============================================================================

// buildConfigCmd creates the "config" command group.
func buildConfigCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Configuration helpers",
	}
	cmd.AddCommand(buildConfigSchemaCmd(), buildConfigValidateCmd())
	return cmd
}

func buildConfigSchemaCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "schema",
		Short: "Print the JSON schema of the configuration file",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runConfigSchema(cmd)
		},
	}
}

func buildConfigValidateCmd() *cobra.Command {
	var configPath string
	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Load and validate a configuration file",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runConfigValidate(cmd, resolveConfigPath(configPath))
		},
	}
	cmd.Flags().StringVarP(&configPath, "config", "c", "", "Path to YAML configuration file")
	return cmd
}
