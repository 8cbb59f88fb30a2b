package cmd

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/remedyhq/remedy/internal/gateway"
	"github.com/remedyhq/remedy/internal/github"
	"github.com/remedyhq/remedy/internal/llm"
	"github.com/remedyhq/remedy/internal/orchestrator"
	"github.com/remedyhq/remedy/internal/output"
	"github.com/remedyhq/remedy/internal/sandbox"
	"github.com/remedyhq/remedy/internal/store"
)

// Package-level shared dependencies, initialized in cobra.OnInitialize.
var (
	ui        *output.UI
	dataStore store.Store

	verbose bool
	dryRun  bool
)

var rootCmd = &cobra.Command{
	Use:   "remedy",
	Short: "Remedy - turn GitHub issues into reviewed fix proposals",
	Long: `remedy runs fix sessions: point it at a GitHub issue and it
provisions a disposable sandbox, clones and analyzes the repository,
and produces a system overview, a step-by-step fix plan, and on
request concrete code fixes with a pull request draft.`,
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
	rootCmd.PersistentFlags().String("config", "", "Config file (default ~/.config/remedy/config.yaml)")
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

		configDir := filepath.Join(home, ".config", "remedy")
		viper.AddConfigPath(configDir)
		viper.SetConfigName("config")
		viper.SetConfigType("yaml")
	}

	viper.SetEnvPrefix("REMEDY")
	viper.AutomaticEnv()

	// Defaults via viper.SetDefault()
	home, _ := os.UserHomeDir()
	defaultConfigDir := filepath.Join(home, ".config", "remedy")

	viper.SetDefault("state_dir", defaultConfigDir)
	viper.SetDefault("db_path", filepath.Join(defaultConfigDir, "remedy.db"))
	viper.SetDefault("port", 8484)
	viper.SetDefault("llm.provider", "anthropic")
	viper.SetDefault("anthropic.api_key", "")
	viper.SetDefault("anthropic.model", "claude-haiku-4-5-20251001")
	viper.SetDefault("openai.api_key", "")
	viper.SetDefault("openai.model", "gpt-4o-mini")
	viper.SetDefault("github.token", "")
	viper.SetDefault("sandbox.api_url", "")
	viper.SetDefault("sandbox.api_key", "")
	viper.SetDefault("sandbox.template", "base")
	viper.SetDefault("sandbox.timeout_seconds", 1800)
	viper.SetDefault("sandbox.tools", []string{})
	viper.SetDefault("setup_cmds", []string{})

	// Read config file if it exists (optional)
	_ = viper.ReadInConfig()
}

func initDeps() {
	ui = output.New()
	ui.Verbose = verbose
	ui.DryRun = dryRun

	// Store and orchestrator initialize lazily so config/version
	// commands run without a db or provider credentials.
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

// getOrchestrator wires the full session stack from viper config.
func getOrchestrator(st store.Store) (*orchestrator.Orchestrator, error) {
	gen, err := llm.New(llm.Config{
		Provider: viper.GetString("llm.provider"),
		APIKey:   llmAPIKey(),
		Model:    llmModel(),
	})
	if err != nil {
		return nil, err
	}

	sandboxCfg, setupCmds, err := sandboxSettings()
	if err != nil {
		return nil, err
	}
	cfg := orchestrator.Config{
		Sandbox:   sandboxCfg,
		SetupCmds: setupCmds,
	}

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: logLevel(),
	}))

	gh := github.NewClient(viper.GetString("github.token"))
	return orchestrator.New(st, sandbox.NewHTTPFactory(), gen, gateway.NewClient(), gh, cfg, logger), nil
}

// sandboxSettings resolves the configured template name through the
// catalog: the provider receives the template's image, and its setup
// commands run before any user-configured setup_cmds.
func sandboxSettings() (sandbox.Config, []string, error) {
	tmpl, err := sandbox.DefaultCatalog().Lookup(viper.GetString("sandbox.template"))
	if err != nil {
		return sandbox.Config{}, nil, err
	}

	var tools []sandbox.Tool
	for _, t := range viper.GetStringSlice("sandbox.tools") {
		tools = append(tools, sandbox.Tool(t))
	}
	cfg := sandbox.Config{
		APIURL:         viper.GetString("sandbox.api_url"),
		APIKey:         viper.GetString("sandbox.api_key"),
		Template:       tmpl.Image,
		TimeoutSeconds: viper.GetInt("sandbox.timeout_seconds"),
		Tools:          tools,
	}

	setup := append([]string{}, tmpl.SetupCmds...)
	setup = append(setup, viper.GetStringSlice("setup_cmds")...)
	return cfg, setup, nil
}

func llmAPIKey() string {
	if viper.GetString("llm.provider") == "openai" {
		return viper.GetString("openai.api_key")
	}
	return viper.GetString("anthropic.api_key")
}

func llmModel() string {
	if viper.GetString("llm.provider") == "openai" {
		return viper.GetString("openai.model")
	}
	return viper.GetString("anthropic.model")
}

func logLevel() slog.Level {
	if verbose {
		return slog.LevelDebug
	}
	return slog.LevelInfo
}
