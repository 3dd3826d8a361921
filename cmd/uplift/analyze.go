package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"uplift/internal/artifact"
	"uplift/internal/cache"
	"uplift/internal/capture"
	"uplift/internal/config"
	"uplift/internal/llm"
	"uplift/internal/pipeline"
	"uplift/internal/registry"
	"uplift/internal/usage"
)

var (
	analyzeProject  string
	analyzeIndustry string
	analyzeGoal     string
	analyzeAudience string
	analyzeOutput   string
	analyzeStatic   bool
)

// analyzeCmd runs one full analysis against a URL
var analyzeCmd = &cobra.Command{
	Use:   "analyze [url]",
	Short: "Run a full conversion analysis against a page",
	Long: `Captures the page, extracts insights, clusters them into themes and
derives hypotheses with experiment plans. Artifacts are persisted per
analysis; the report prints as text or JSON.

Example:
  uplift analyze https://shop.example/landing --industry ecommerce --goal purchase`,
	Args: cobra.ExactArgs(1),
	RunE: runAnalyze,
}

func init() {
	analyzeCmd.Flags().StringVar(&analyzeProject, "project", "default", "Project identifier for the analysis")
	analyzeCmd.Flags().StringVar(&analyzeIndustry, "industry", "", "Business industry hint for extraction")
	analyzeCmd.Flags().StringVar(&analyzeGoal, "goal", "", "Primary conversion goal (purchase, signup, ...)")
	analyzeCmd.Flags().StringVar(&analyzeAudience, "audience", "", "Target audience hint")
	analyzeCmd.Flags().StringVarP(&analyzeOutput, "output", "o", "text", "Report format: text or json")
	analyzeCmd.Flags().BoolVar(&analyzeStatic, "static", false, "Capture with plain HTTP instead of a browser")
}

// runAnalyze wires the full engine and drives one pipeline run.
func runAnalyze(cmd *cobra.Command, args []string) error {
	if err := cfg.Validate(); err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	// Handle graceful shutdown
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)
	go func() {
		<-sigCh
		logger.Info("Received shutdown signal")
		cancel()
	}()

	url := args[0]
	ws := resolveWorkspace()

	// Result cache shared by every module executor.
	c := cache.New(cache.Config{
		MaxSize:         cfg.Cache.MaxSize,
		DefaultTTL:      cfg.GetCacheTTL(),
		CleanupInterval: cfg.GetCacheCleanupInterval(),
	})
	defer c.Close()

	// Usage metering, feeding the stats command.
	var recorder llm.UsageRecorder
	if cfg.Usage.Enabled {
		usageWS := cfg.Usage.Path
		if usageWS == "" {
			usageWS = ws
		}
		tracker, err := usage.NewTracker(usageWS)
		if err != nil {
			logger.Warn("Usage tracking disabled", zap.Error(err))
		} else {
			defer tracker.Close()
			recorder = tracker
		}
	}

	svc := llm.NewService(llm.Config{
		Provider:       llm.Provider(cfg.LLM.Provider),
		OpenAIKey:      cfg.LLM.OpenAIAPIKey,
		OpenAIModel:    cfg.LLM.OpenAIModel,
		AnthropicKey:   cfg.LLM.AnthropicAPIKey,
		AnthropicModel: cfg.LLM.AnthropicModel,
		Temperature:    cfg.LLM.Temperature,
		MaxTokens:      cfg.LLM.MaxTokens,
		Timeout:        cfg.GetLLMTimeout(),
		MaxConcurrent:  int64(cfg.LLM.MaxConcurrent),
	}, recorder)

	prompts, err := pipeline.NewPromptStore()
	if err != nil {
		return fmt.Errorf("failed to load prompt templates: %w", err)
	}
	if dir := cfg.Pipeline.PromptDir; dir != "" {
		if err := prompts.LoadOverrides(dir); err != nil {
			logger.Warn("Prompt overrides not loaded", zap.String("dir", dir), zap.Error(err))
		}
		watcher, err := pipeline.NewPromptWatcher(prompts, dir)
		if err != nil {
			logger.Warn("Prompt watcher unavailable", zap.Error(err))
		} else if err := watcher.Start(ctx); err != nil {
			logger.Warn("Prompt watcher failed to start", zap.Error(err))
		} else {
			defer watcher.Stop()
		}
	}

	reg := registry.New(c)
	defer reg.Close()
	pipeline.RegisterStages(reg, pipeline.StageSet{
		LLM:     svc,
		Prompts: prompts,
		Extractor: pipeline.ExtractorConfig{
			Provider: llm.Provider(cfg.LLM.Provider),
			Model:    cfg.ActiveModel(),
			Retry: llm.RetryPolicy{
				MaxAttempts:  cfg.LLM.Retry.MaxAttempts,
				InitialDelay: cfg.GetRetryInitialDelay(),
				MaxDelay:     cfg.GetRetryMaxDelay(),
				Multiplier:   cfg.LLM.Retry.Multiplier,
			},
		},
		Clusterer: pipeline.ClustererConfig{MinGroupSize: cfg.Pipeline.MinGroupSize},
		Generator: pipeline.GeneratorConfig{MaxPerTheme: cfg.Pipeline.MaxHypothesesPerTheme},
	})

	store, err := openArtifactStore(cfg, ws)
	if err != nil {
		return err
	}
	defer store.Close()

	fetcher, cleanup, err := newFetcher(ctx, cfg)
	if err != nil {
		return err
	}
	defer cleanup()

	logger.Info("Capturing page", zap.String("url", url), zap.String("mode", captureMode(cfg)))
	content, err := fetcher.Fetch(ctx, url)
	if err != nil {
		return fmt.Errorf("page capture failed: %w", err)
	}

	var actx *pipeline.AnalysisContext
	if analyzeIndustry != "" || analyzeGoal != "" || analyzeAudience != "" {
		actx = &pipeline.AnalysisContext{
			Industry:       analyzeIndustry,
			ConversionGoal: analyzeGoal,
			TargetAudience: analyzeAudience,
		}
	}

	runner := pipeline.NewRunner(reg, store, pipeline.RunnerOptions{
		StageTimeout:   cfg.GetStageTimeout(),
		MaxExperiments: cfg.Pipeline.MaxExperiments,
	})

	logger.Info("Running analysis", zap.String("project", analyzeProject))
	report, err := runner.Run(ctx, analyzeProject, *content, actx)
	if err != nil {
		return fmt.Errorf("analysis failed: %w", err)
	}

	logger.Info("Analysis complete",
		zap.String("analysis", report.AnalysisID),
		zap.Int("insights", len(report.Insights)),
		zap.Int("themes", len(report.Themes)),
		zap.Int("hypotheses", len(report.Hypotheses)),
		zap.Int("experiments", len(report.Experiments)),
		zap.Duration("duration", report.Duration))

	for _, ms := range reg.GetStats() {
		logger.Debug("Stage stats",
			zap.String("module", ms.Name),
			zap.Int64("executions", ms.ExecutionCount),
			zap.Float64("success_rate", ms.SuccessRate),
			zap.Duration("avg_duration", ms.AverageDuration))
	}
	cs := c.GetStats()
	logger.Debug("Cache stats",
		zap.Int64("hits", cs.Hits),
		zap.Int64("misses", cs.Misses),
		zap.Int("size", cs.Size),
		zap.Float64("hit_rate", cs.HitRate))

	if strings.EqualFold(analyzeOutput, "json") {
		data, err := json.MarshalIndent(report, "", "  ")
		if err != nil {
			return fmt.Errorf("failed to encode report: %w", err)
		}
		fmt.Println(string(data))
		return nil
	}

	fmt.Print(reportText(report))
	return nil
}

// openArtifactStore picks the configured driver; an empty sqlite path is
// derived from the workspace.
func openArtifactStore(cfg *config.Config, ws string) (artifact.Store, error) {
	if cfg.Storage.Driver == "memory" {
		return artifact.NewMemoryStore(), nil
	}
	path := cfg.Storage.Path
	if path == "" {
		path = filepath.Join(ws, ".uplift", "artifacts.db")
	}
	store, err := artifact.NewSQLiteStore(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open artifact store: %w", err)
	}
	return store, nil
}

func captureMode(cfg *config.Config) string {
	if analyzeStatic || cfg.Capture.Mode == "static" {
		return "static"
	}
	return "browser"
}

// newFetcher builds the configured page fetcher. The cleanup func shuts
// down the browser when one was started.
func newFetcher(ctx context.Context, cfg *config.Config) (capture.Fetcher, func(), error) {
	if captureMode(cfg) == "static" {
		sc := capture.DefaultStaticConfig()
		sc.Timeout = cfg.GetNavTimeout()
		if cfg.Capture.UserAgent != "" {
			sc.UserAgent = cfg.Capture.UserAgent
		}
		if cfg.Capture.MaxBodyBytes > 0 {
			sc.MaxBodySize = cfg.Capture.MaxBodyBytes
		}
		return capture.NewStaticFetcher(sc), func() {}, nil
	}

	bc := capture.DefaultBrowserConfig()
	bc.Headless = cfg.Capture.Headless
	if cfg.Capture.ViewportWidth > 0 {
		bc.ViewportWidth = cfg.Capture.ViewportWidth
	}
	if cfg.Capture.ViewportHeight > 0 {
		bc.ViewportHeight = cfg.Capture.ViewportHeight
	}
	bc.NavigationTimeout = cfg.GetNavTimeout()

	f := capture.NewBrowserFetcher(bc)
	if err := f.Start(ctx); err != nil {
		return nil, nil, fmt.Errorf("failed to start browser: %w", err)
	}
	return f, func() { _ = f.Close() }, nil
}

// reportText renders the analysis report for the terminal.
func reportText(r *pipeline.AnalysisReport) string {
	var b strings.Builder

	fmt.Fprintf(&b, "Analysis %s\n", r.AnalysisID)
	fmt.Fprintf(&b, "URL:      %s\n", r.URL)
	fmt.Fprintf(&b, "Project:  %s\n", r.ProjectID)
	fmt.Fprintf(&b, "Duration: %s   Tokens: %d   Est. cost: $%.4f\n", r.Duration.Round(time.Millisecond), r.TokensUsed, r.EstimatedCost)

	fmt.Fprintf(&b, "\nInsights (%d)\n", len(r.Insights))
	for i, ins := range r.Insights {
		fmt.Fprintf(&b, "  %d. [%s] %s (%s, %s) — impact %d, confidence %d\n",
			i+1, ins.Severity, ins.Title, ins.Category, ins.Location, ins.ImpactScore, ins.Confidence)
	}

	fmt.Fprintf(&b, "\nThemes (%d)\n", len(r.Themes))
	for i, th := range r.Themes {
		fmt.Fprintf(&b, "  %d. %s — priority %d, %s, %d insights\n",
			i+1, th.Name, th.Priority, th.Pattern, len(th.InsightIDs))
	}

	fmt.Fprintf(&b, "\nHypotheses (%d)\n", len(r.Hypotheses))
	for i, hyp := range r.Hypotheses {
		fmt.Fprintf(&b, "  %d. %s\n", i+1, hyp.Statement)
	}

	fmt.Fprintf(&b, "\nExperiments (%d)\n", len(r.Experiments))
	for i, exp := range r.Experiments {
		fmt.Fprintf(&b, "  %d. %s — primary metric: %s\n", i+1, exp.Name, exp.PrimaryMetric)
	}

	return b.String()
}
