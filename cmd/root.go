package cmd

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/hackdesk/triage/internal/ai"
	"github.com/hackdesk/triage/internal/output"
	"github.com/hackdesk/triage/internal/perm"
	"github.com/hackdesk/triage/internal/store"
)

// Package-level shared dependencies, initialized in cobra.OnInitialize.
var (
	ui        *output.UI
	dataStore store.Store

	verbose bool
	dryRun  bool

	buildVersion = "dev"
	buildCommit  = "none"
	buildDate    = "unknown"
)

var rootCmd = &cobra.Command{
	Use:   "triage",
	Short: "Support ticket tracker for Slack threads",
	Long: `triage turns Slack support threads into tracked issues.
It ingests thread conversations, runs AI summarization jobs over them,
and serves a dashboard API with program-scoped permissions.`,
	SilenceUsage:      true,
	SilenceErrors:     true,
	DisableAutoGenTag: true,
}

// Execute is the main entry point called from main.go.
func Execute(version, commit, date string) {
	buildVersion = version
	buildCommit = commit
	buildDate = date

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig, initDeps)

	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Verbose output")
	rootCmd.PersistentFlags().BoolVarP(&dryRun, "dry-run", "n", false, "Show what would happen without making changes")
	rootCmd.PersistentFlags().String("config", "", "Config file (default ~/.config/triage/config.yaml)")

	rootCmd.AddCommand(versionCmd)
}

func initConfig() {
	// If --config is explicitly set, use that file
	if cfgFile, _ := rootCmd.PersistentFlags().GetString("config"); cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		home, err := os.UserHomeDir()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: cannot find home directory: %v\n", err)
			os.Exit(1)
		}

		configDir := filepath.Join(home, ".config", "triage")
		viper.AddConfigPath(configDir)
		viper.SetConfigName("config")
		viper.SetConfigType("yaml")
	}

	viper.SetEnvPrefix("TRIAGE")
	viper.AutomaticEnv()

	// Defaults via viper.SetDefault()
	home, _ := os.UserHomeDir()
	defaultConfigDir := filepath.Join(home, ".config", "triage")

	viper.SetDefault("db_path", filepath.Join(defaultConfigDir, "triage.db"))
	viper.SetDefault("port", 8080)
	viper.SetDefault("ai.provider", "openai")
	viper.SetDefault("ai.api_url", "https://ai.hackclub.com/proxy/v1/chat/completions")
	viper.SetDefault("ai.api_key", "")
	viper.SetDefault("ai.model", "openai/gpt-4")
	viper.SetDefault("ai.temperature", 0.7)
	viper.SetDefault("slack.bot_token", "")
	viper.SetDefault("slack.app_token", "")
	viper.SetDefault("slack.base_url", "")
	viper.SetDefault("slack.admin_users", []string{})

	// Read config file if it exists (optional)
	_ = viper.ReadInConfig()
}

func initDeps() {
	ui = output.New()
	ui.Verbose = verbose
	ui.DryRun = dryRun

	// Store opens lazily so config/version commands run without a db.
}

// getStore returns the shared store, initializing it on first call.
func getStore() (store.Store, error) {
	if dataStore != nil {
		return dataStore, nil
	}

	dbPath := viper.GetString("db_path")
	s, err := store.NewSQLiteStore(dbPath)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	if err := s.Migrate(rootCmd.Context()); err != nil {
		_ = s.Close()
		return nil, fmt.Errorf("migrate database: %w", err)
	}

	dataStore = s
	return dataStore, nil
}

// getResolver builds the permission resolver from the configured admin list.
func getResolver(s store.Store) *perm.Resolver {
	return perm.NewResolver(s, viper.GetStringSlice("slack.admin_users"))
}

// getGenerator selects the AI backend from config.
func getGenerator() ai.Generator {
	switch viper.GetString("ai.provider") {
	case "anthropic":
		return ai.NewAnthropicClient(
			viper.GetString("ai.api_key"),
			viper.GetString("ai.model"),
		)
	default:
		return ai.NewClient(
			viper.GetString("ai.api_url"),
			viper.GetString("ai.api_key"),
			viper.GetString("ai.model"),
			viper.GetFloat64("ai.temperature"),
		)
	}
}

// newLogger returns the structured logger for long-running commands.
func newLogger() *slog.Logger {
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Show version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintf(os.Stdout, "triage %s (commit %s, built %s)\n", buildVersion, buildCommit, buildDate)
	},
}
