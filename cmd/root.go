package cmd

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/joescharf/prarena/internal/eval"
	"github.com/joescharf/prarena/internal/models"
	"github.com/joescharf/prarena/internal/output"
	"github.com/joescharf/prarena/internal/prompts"
	"github.com/joescharf/prarena/internal/store"
)

// Package-level shared dependencies, initialized in cobra.OnInitialize.
var (
	ui        *output.UI
	dataStore store.Store

	verbose bool
	dryRun  bool
)

var rootCmd = &cobra.Command{
	Use:   "prarena",
	Short: "PR Arena - benchmark AI code reviewers against real pull requests",
	Long: `prarena evaluates model x system-prompt combinations for automated
PR code review. Each combination reviews a set of pull request diffs,
an LLM judge scores every review for critical-bug detection,
hallucination, and helpfulness, and the combinations are ranked into
a leaderboard.`,
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
	rootCmd.PersistentFlags().String("config", "", "Config file (default ~/.config/prarena/config.yaml)")
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

		configDir := filepath.Join(home, ".config", "prarena")
		viper.AddConfigPath(configDir)
		viper.SetConfigName("config")
		viper.SetConfigType("yaml")
	}

	viper.SetEnvPrefix("PRARENA")
	viper.AutomaticEnv()

	// Defaults via viper.SetDefault()
	home, _ := os.UserHomeDir()
	defaultConfigDir := filepath.Join(home, ".config", "prarena")

	viper.SetDefault("db_path", filepath.Join(defaultConfigDir, "prarena.db"))
	viper.SetDefault("pid_file", filepath.Join(defaultConfigDir, "prarena.pid"))
	viper.SetDefault("prompts_file", "")
	viper.SetDefault("models", []string{
		"claude-haiku-4-5-20251001",
		"claude-sonnet-4-5-20250929",
	})
	viper.SetDefault("anthropic.api_key", "")
	viper.SetDefault("anthropic.judge_model", "claude-sonnet-4-5-20250929")
	viper.SetDefault("eval.concurrency", 4)
	viper.SetDefault("eval.watchdog", "5m")
	viper.SetDefault("thresholds.critical_min", 0.6)
	viper.SetDefault("thresholds.hallucination_max", 0.2)
	viper.SetDefault("thresholds.recommend_min", 0.75)
	viper.SetDefault("thresholds.accept_min", 0.5)

	// Read config file if it exists (optional)
	_ = viper.ReadInConfig()
}

func initDeps() {
	ui = output.New()
	ui.Verbose = verbose
	ui.DryRun = dryRun

	// Store is initialized lazily — only when commands actually need it.
	// This allows config/version commands to run without a db.
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

// loadPrompts returns the system prompt catalog: the embedded defaults,
// merged with the user's prompts file when one is configured.
func loadPrompts() ([]models.SystemPrompt, error) {
	return prompts.Load(viper.GetString("prompts_file"))
}

// evalConfig builds the evaluation config from viper.
func evalConfig() eval.Config {
	cfg := eval.DefaultConfig()
	cfg.Concurrency = viper.GetInt("eval.concurrency")
	if d, err := time.ParseDuration(viper.GetString("eval.watchdog")); err == nil && d > 0 {
		cfg.Watchdog = d
	}
	cfg.Thresholds.CriticalMin = viper.GetFloat64("thresholds.critical_min")
	cfg.Thresholds.HallucinationMax = viper.GetFloat64("thresholds.hallucination_max")
	cfg.Thresholds.RecommendMin = viper.GetFloat64("thresholds.recommend_min")
	cfg.Thresholds.AcceptMin = viper.GetFloat64("thresholds.accept_min")
	return cfg
}
