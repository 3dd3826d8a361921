package pipeline

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"uplift/internal/logging"
	"uplift/internal/module"
)

// DefaultMaxHypothesesPerTheme caps statements produced per theme.
const DefaultMaxHypothesesPerTheme = 5

// GeneratorConfig tunes hypothesis generation.
type GeneratorConfig struct {
	// MaxPerTheme caps hypotheses per theme. Zero means the default.
	MaxPerTheme int
}

// HypothesisGenerator template-fills testable statements from a theme's
// problem insights. Statements are deterministic, not model-generated.
type HypothesisGenerator struct {
	cfg GeneratorConfig
}

var _ module.Module = (*HypothesisGenerator)(nil)

func NewHypothesisGenerator(cfg GeneratorConfig) *HypothesisGenerator {
	if cfg.MaxPerTheme <= 0 {
		cfg.MaxPerTheme = DefaultMaxHypothesesPerTheme
	}
	return &HypothesisGenerator{cfg: cfg}
}

func (g *HypothesisGenerator) Descriptor() module.Descriptor {
	return module.Descriptor{
		Name:         StageHypotheses,
		Version:      "1.0.0",
		Enabled:      true,
		Priority:     30,
		Dependencies: []string{StageClusterThemes},
	}
}

func (g *HypothesisGenerator) Validate(input any) bool {
	in, ok := input.(*HypothesisInput)
	return ok && in.Theme.ID != "" && len(in.Insights) > 0
}

func (g *HypothesisGenerator) Run(ctx context.Context, input any) (any, error) {
	in := input.(*HypothesisInput)

	hypotheses := make([]Hypothesis, 0, g.cfg.MaxPerTheme)
	for _, ins := range in.Insights {
		if ins.Type != "problem" {
			continue
		}
		if len(hypotheses) >= g.cfg.MaxPerTheme {
			break
		}
		hypotheses = append(hypotheses, buildHypothesis(in.Theme, ins))
	}

	logging.PipelineDebug("theme %s (%s): %d hypotheses", in.Theme.ID, in.Theme.Category, len(hypotheses))
	return hypotheses, nil
}

func buildHypothesis(theme Theme, ins Insight) Hypothesis {
	change := changeFor(ins)
	metric := metricForCategory(theme.Category)
	rationale := rationaleFor(ins)

	return Hypothesis{
		ID:         uuid.NewString(),
		AnalysisID: ins.AnalysisID,
		ProjectID:  ins.ProjectID,
		ThemeID:    theme.ID,
		InsightID:  ins.ID,
		Statement:  fmt.Sprintf("If we change %s, then %s will improve because %s.", change, metric, rationale),
		Change:     change,
		Metric:     metric,
		Rationale:  rationale,
		Confidence: ins.Confidence,
		CreatedAt:  nowUTC(),
	}
}

// changeFor names the element under test: the finding plus where it
// lives on the page.
func changeFor(ins Insight) string {
	location := titleCase(ins.Location)
	return fmt.Sprintf("%s in the %s section", lowerFirst(ins.Title), location)
}

func rationaleFor(ins Insight) string {
	if d := strings.TrimSpace(ins.Description); d != "" {
		return strings.TrimSuffix(lowerFirst(d), ".")
	}
	if len(ins.Evidence) > 0 {
		return strings.TrimSuffix(lowerFirst(ins.Evidence[0]), ".")
	}
	return "the current experience creates friction for visitors"
}

// metricForCategory picks the success metric a category most directly
// moves. Unknown categories fall back to overall conversion rate.
func metricForCategory(category string) string {
	switch category {
	case "trust":
		return "conversion rate"
	case "friction":
		return "checkout completion rate"
	case "clarity":
		return "engagement rate"
	case "urgency":
		return "add-to-cart rate"
	case "value_proposition":
		return "conversion rate"
	case "navigation":
		return "pages per session"
	case "mobile_ux":
		return "mobile conversion rate"
	case "performance":
		return "bounce-to-conversion ratio"
	case "social_proof":
		return "conversion rate"
	default:
		return "conversion rate"
	}
}

func lowerFirst(s string) string {
	if s == "" {
		return s
	}
	return strings.ToLower(s[:1]) + s[1:]
}
