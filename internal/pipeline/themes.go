package pipeline

import (
	"context"
	"fmt"
	"math"
	"sort"

	"github.com/google/uuid"

	"uplift/internal/logging"
	"uplift/internal/module"
)

// DefaultMinGroupSize is the smallest category group that forms a theme.
const DefaultMinGroupSize = 2

// ClustererConfig tunes theme formation.
type ClustererConfig struct {
	// MinGroupSize is the minimum insights per category to form a theme.
	// Zero means DefaultMinGroupSize.
	MinGroupSize int
}

// ThemeClusterer groups insights by category into prioritized themes.
// It is purely computational: same ordered input, same output, no model
// calls and no semantic clustering.
type ThemeClusterer struct {
	cfg ClustererConfig
}

var _ module.Module = (*ThemeClusterer)(nil)

func NewThemeClusterer(cfg ClustererConfig) *ThemeClusterer {
	if cfg.MinGroupSize <= 0 {
		cfg.MinGroupSize = DefaultMinGroupSize
	}
	return &ThemeClusterer{cfg: cfg}
}

func (c *ThemeClusterer) Descriptor() module.Descriptor {
	return module.Descriptor{
		Name:         StageClusterThemes,
		Version:      "1.0.0",
		Enabled:      true,
		Priority:     20,
		Dependencies: []string{StageExtractInsights},
	}
}

func (c *ThemeClusterer) Validate(input any) bool {
	in, ok := input.(*ClusterInput)
	return ok && len(in.Insights) > 0
}

func (c *ThemeClusterer) Run(ctx context.Context, input any) (any, error) {
	in := input.(*ClusterInput)

	// Group by category in first-seen order so clustering is stable
	// across runs over the same input.
	order := make([]string, 0)
	groups := make(map[string][]Insight)
	for _, ins := range in.Insights {
		if _, seen := groups[ins.Category]; !seen {
			order = append(order, ins.Category)
		}
		groups[ins.Category] = append(groups[ins.Category], ins)
	}

	themes := make([]Theme, 0, len(order))
	for _, category := range order {
		group := groups[category]
		if len(group) < c.cfg.MinGroupSize {
			continue
		}
		themes = append(themes, buildTheme(in.AnalysisID, in.ProjectID, category, group))
	}

	sort.SliceStable(themes, func(i, j int) bool {
		return themes[i].Priority > themes[j].Priority
	})

	logging.Pipeline("clustered %d insights into %d themes for analysis %s", len(in.Insights), len(themes), in.AnalysisID)
	return themes, nil
}

func buildTheme(analysisID, projectID, category string, group []Insight) Theme {
	var impactSum, confidenceSum float64
	insightIDs := make([]string, 0, len(group))
	locations := make(map[string]bool)
	for _, ins := range group {
		impactSum += float64(ins.ImpactScore)
		confidenceSum += float64(ins.Confidence)
		insightIDs = append(insightIDs, ins.ID)
		locations[ins.Location] = true
	}

	count := float64(len(group))
	avgImpact := impactSum / count
	avgConfidence := confidenceSum / count
	priority := int(math.Round(avgImpact * avgConfidence * math.Min(count, 10) / 10000))

	return Theme{
		ID:          uuid.NewString(),
		AnalysisID:  analysisID,
		ProjectID:   projectID,
		Name:        titleCase(category),
		Category:    category,
		Description: themeDescription(category, len(group), len(locations)),
		InsightIDs:  insightIDs,
		Priority:    priority,
		Pattern:     classifyPattern(len(locations)),
		CreatedAt:   nowUTC(),
	}
}

// classifyPattern maps the spread of a theme across page sections:
// confined to one section it recurs there; spread over more than three
// sections it is systemic; in between it tracks visitor behavior.
func classifyPattern(distinctLocations int) string {
	switch {
	case distinctLocations == 1:
		return PatternRecurring
	case distinctLocations > 3:
		return PatternSystemic
	default:
		return PatternBehavioral
	}
}

func themeDescription(category string, insightCount, locationCount int) string {
	sections := "sections"
	if locationCount == 1 {
		sections = "section"
	}
	return fmt.Sprintf("%d related findings about %s across %d page %s.",
		insightCount, titleCase(category), locationCount, sections)
}
