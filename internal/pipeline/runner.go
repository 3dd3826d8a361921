package pipeline

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"uplift/internal/logging"
	"uplift/internal/registry"
)

// ArtifactStore is the persistence collaborator. The pipeline only ever
// writes batches; downstream consumers read completed stages from the
// store. A nil store skips persistence.
type ArtifactStore interface {
	SaveInsights(ctx context.Context, insights []Insight) error
	SaveThemes(ctx context.Context, themes []Theme) error
	SaveHypotheses(ctx context.Context, hypotheses []Hypothesis) error
	SaveExperiments(ctx context.Context, experiments []Experiment) error
}

// DefaultMaxExperiments caps experiments planned per analysis.
const DefaultMaxExperiments = 10

// RunnerOptions tunes a full analysis run.
type RunnerOptions struct {
	// StageTimeout bounds each stage execution. Zero means no timeout.
	StageTimeout time.Duration
	// MaxExperiments caps planned experiments. Zero means the default.
	MaxExperiments int
}

// Runner drives the four stages through the registry, persisting each
// batch as it completes. A stage failure stops the run; batches
// persisted before the failure remain in the store.
type Runner struct {
	reg   *registry.Registry
	store ArtifactStore
	opts  RunnerOptions
}

func NewRunner(reg *registry.Registry, store ArtifactStore, opts RunnerOptions) *Runner {
	if opts.MaxExperiments <= 0 {
		opts.MaxExperiments = DefaultMaxExperiments
	}
	return &Runner{reg: reg, store: store, opts: opts}
}

// StageSet bundles the dependencies of the four pipeline stages.
type StageSet struct {
	LLM       Completioner
	Prompts   *PromptStore
	Extractor ExtractorConfig
	Clusterer ClustererConfig
	Generator GeneratorConfig
}

// RegisterStages registers the four stages on the registry in pipeline
// order.
func RegisterStages(reg *registry.Registry, set StageSet) {
	reg.Register(NewInsightExtractor(set.LLM, set.Prompts, set.Extractor))
	reg.Register(NewThemeClusterer(set.Clusterer))
	reg.Register(NewHypothesisGenerator(set.Generator))
	reg.Register(NewExperimentPlanner())
}

// Run executes one full analysis over captured page content and returns
// the report. An error carries the failing stage's typed failure.
func (r *Runner) Run(ctx context.Context, projectID string, content PageContent, actx *AnalysisContext) (*AnalysisReport, error) {
	analysisID := uuid.NewString()
	start := time.Now()
	report := &AnalysisReport{
		AnalysisID: analysisID,
		ProjectID:  projectID,
		URL:        content.URL,
		StartedAt:  start,
	}
	stageOpts := registry.Options{Timeout: r.opts.StageTimeout}

	logging.Pipeline("analysis %s: starting for %s", analysisID, content.URL)

	// Stage 1: extract insights.
	res := r.reg.Execute(ctx, StageExtractInsights, &ExtractInput{
		AnalysisID: analysisID,
		ProjectID:  projectID,
		Content:    content,
		Context:    actx,
	}, stageOpts)
	if !res.Success {
		return nil, res.Err
	}
	out, ok := res.Data.(*ExtractOutput)
	if !ok {
		return nil, fmt.Errorf("unexpected output type %T from %s", res.Data, StageExtractInsights)
	}
	report.Insights = out.Insights
	report.TokensUsed = out.Meta.TokensUsed
	report.EstimatedCost = out.Meta.EstimatedCost
	if err := r.persistInsights(ctx, out.Insights); err != nil {
		return nil, err
	}
	if len(out.Insights) == 0 {
		return r.finish(report, start), nil
	}

	// Stage 2: cluster themes.
	res = r.reg.Execute(ctx, StageClusterThemes, &ClusterInput{
		AnalysisID: analysisID,
		ProjectID:  projectID,
		Insights:   report.Insights,
	}, stageOpts)
	if !res.Success {
		return nil, res.Err
	}
	themes, ok := res.Data.([]Theme)
	if !ok {
		return nil, fmt.Errorf("unexpected output type %T from %s", res.Data, StageClusterThemes)
	}
	report.Themes = themes
	if err := r.persistThemes(ctx, themes); err != nil {
		return nil, err
	}
	if len(themes) == 0 {
		return r.finish(report, start), nil
	}

	insightByID := make(map[string]Insight, len(report.Insights))
	for _, ins := range report.Insights {
		insightByID[ins.ID] = ins
	}
	themeByID := make(map[string]Theme, len(themes))

	// Stage 3: generate hypotheses per theme.
	for _, theme := range themes {
		themeByID[theme.ID] = theme
		res = r.reg.Execute(ctx, StageHypotheses, &HypothesisInput{
			Theme:    theme,
			Insights: themeInsights(theme, insightByID),
		}, stageOpts)
		if !res.Success {
			return nil, res.Err
		}
		batch, ok := res.Data.([]Hypothesis)
		if !ok {
			return nil, fmt.Errorf("unexpected output type %T from %s", res.Data, StageHypotheses)
		}
		report.Hypotheses = append(report.Hypotheses, batch...)
	}
	if err := r.persistHypotheses(ctx, report.Hypotheses); err != nil {
		return nil, err
	}
	if len(report.Hypotheses) == 0 {
		return r.finish(report, start), nil
	}

	// Stage 4: plan experiments for the top hypotheses.
	for i, hyp := range report.Hypotheses {
		if i >= r.opts.MaxExperiments {
			break
		}
		theme := themeByID[hyp.ThemeID]
		res = r.reg.Execute(ctx, StageExperiments, &PlanInput{
			Hypothesis: hyp,
			Theme:      theme,
			Insights:   themeInsights(theme, insightByID),
		}, stageOpts)
		if !res.Success {
			return nil, res.Err
		}
		exp, ok := res.Data.(Experiment)
		if !ok {
			return nil, fmt.Errorf("unexpected output type %T from %s", res.Data, StageExperiments)
		}
		report.Experiments = append(report.Experiments, exp)
	}
	if err := r.persistExperiments(ctx, report.Experiments); err != nil {
		return nil, err
	}

	return r.finish(report, start), nil
}

func (r *Runner) finish(report *AnalysisReport, start time.Time) *AnalysisReport {
	report.Duration = time.Since(start)
	logging.Pipeline("analysis %s: %d insights, %d themes, %d hypotheses, %d experiments in %v",
		report.AnalysisID, len(report.Insights), len(report.Themes),
		len(report.Hypotheses), len(report.Experiments), report.Duration)
	return report
}

func (r *Runner) persistInsights(ctx context.Context, insights []Insight) error {
	if r.store == nil || len(insights) == 0 {
		return nil
	}
	if err := r.store.SaveInsights(ctx, insights); err != nil {
		return fmt.Errorf("failed to persist insights: %w", err)
	}
	return nil
}

func (r *Runner) persistThemes(ctx context.Context, themes []Theme) error {
	if r.store == nil || len(themes) == 0 {
		return nil
	}
	if err := r.store.SaveThemes(ctx, themes); err != nil {
		return fmt.Errorf("failed to persist themes: %w", err)
	}
	return nil
}

func (r *Runner) persistHypotheses(ctx context.Context, hypotheses []Hypothesis) error {
	if r.store == nil || len(hypotheses) == 0 {
		return nil
	}
	if err := r.store.SaveHypotheses(ctx, hypotheses); err != nil {
		return fmt.Errorf("failed to persist hypotheses: %w", err)
	}
	return nil
}

func (r *Runner) persistExperiments(ctx context.Context, experiments []Experiment) error {
	if r.store == nil || len(experiments) == 0 {
		return nil
	}
	if err := r.store.SaveExperiments(ctx, experiments); err != nil {
		return fmt.Errorf("failed to persist experiments: %w", err)
	}
	return nil
}

// themeInsights resolves a theme's insight IDs back to records,
// preserving the theme's ID order.
func themeInsights(theme Theme, byID map[string]Insight) []Insight {
	out := make([]Insight, 0, len(theme.InsightIDs))
	for _, id := range theme.InsightIDs {
		if ins, ok := byID[id]; ok {
			out = append(out, ins)
		}
	}
	return out
}
