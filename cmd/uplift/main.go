package main

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"uplift/internal/config"
	"uplift/internal/logging"
)

const version = "0.3.0"

var (
	// Global flags
	cfgPath   string
	workspace string
	verbose   bool
	timeout   time.Duration
	apiKey    string
	provider  string

	// Loaded configuration, shared by every subcommand
	cfg *config.Config

	// Logger
	logger *zap.Logger
)

// rootCmd represents the base command
var rootCmd = &cobra.Command{
	Use:   "uplift",
	Short: "uplift - conversion analysis pipeline for landing pages",
	Long: `uplift captures a landing page, extracts conversion insights with an
LLM, clusters them into themes and derives testable hypotheses with
experiment plans.

The four analysis stages run as modules on a shared registry: results
are cached, provider usage is metered and every artifact batch is
persisted per analysis.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		// Load .env before the config so key material is visible to the
		// loader's environment overrides.
		_ = godotenv.Load()

		path := cfgPath
		if path == "" {
			path = os.Getenv("UPLIFT_CONFIG")
		}
		if path == "" {
			path = filepath.Join(resolveWorkspace(), "uplift.yaml")
		}

		var err error
		cfg, err = config.Load(path)
		if err != nil {
			return err
		}

		// Flags beat both the file and the environment.
		if provider != "" {
			cfg.LLM.Provider = provider
		}
		if apiKey != "" {
			switch cfg.LLM.Provider {
			case "anthropic":
				cfg.LLM.AnthropicAPIKey = apiKey
			default:
				cfg.LLM.OpenAIAPIKey = apiKey
			}
		}

		zcfg := zap.NewProductionConfig()
		if verbose {
			zcfg.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
		}
		logger, err = zcfg.Build()
		if err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}

		if err := logging.Initialize(resolveWorkspace(), logging.Options{
			Enabled:    cfg.Logging.DebugMode,
			Level:      cfg.Logging.Level,
			Categories: cfg.Logging.Categories,
			JSONFormat: cfg.Logging.JSONFormat,
		}); err != nil {
			logger.Warn("Debug logging unavailable", zap.Error(err))
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		logging.CloseAll()
		if logger != nil {
			_ = logger.Sync()
		}
	},
	RunE: func(cmd *cobra.Command, args []string) error {
		return cmd.Help()
	},
}

// versionCmd prints the build version
var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version number",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("uplift version %s\n", version)
	},
}

func init() {
	// Global flags
	rootCmd.PersistentFlags().StringVar(&cfgPath, "config", "", "Config file (default: <workspace>/uplift.yaml, or UPLIFT_CONFIG)")
	rootCmd.PersistentFlags().StringVarP(&workspace, "workspace", "w", "", "Workspace directory (default: current)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose logging")
	rootCmd.PersistentFlags().DurationVar(&timeout, "timeout", 5*time.Minute, "Operation timeout")
	rootCmd.PersistentFlags().StringVar(&apiKey, "api-key", "", "Provider API key (or set OPENAI_API_KEY / ANTHROPIC_API_KEY)")
	rootCmd.PersistentFlags().StringVar(&provider, "provider", "", "LLM provider: openai or anthropic")

	// Add commands to root
	rootCmd.AddCommand(analyzeCmd)
	rootCmd.AddCommand(modulesCmd)
	rootCmd.AddCommand(statsCmd)
	rootCmd.AddCommand(versionCmd)
}

// resolveWorkspace returns the --workspace flag or the current directory.
func resolveWorkspace() string {
	if workspace != "" {
		return workspace
	}
	cwd, err := os.Getwd()
	if err != nil {
		return "."
	}
	return cwd
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
