package pipeline

import (
	"context"
	"fmt"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"

	"uplift/internal/module"
)

func mkInsight(id, category, location string, impact, confidence int) Insight {
	return Insight{
		ID:          id,
		AnalysisID:  "an-1",
		ProjectID:   "proj-1",
		Type:        "problem",
		Category:    category,
		Title:       "Finding " + id,
		Severity:    "medium",
		Confidence:  confidence,
		ImpactScore: impact,
		Location:    location,
	}
}

func clusterOnce(t *testing.T, cfg ClustererConfig, insights []Insight) []Theme {
	t.Helper()
	out, err := NewThemeClusterer(cfg).Run(context.Background(), &ClusterInput{
		AnalysisID: "an-1",
		ProjectID:  "proj-1",
		Insights:   insights,
	})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	return out.([]Theme)
}

func TestThemeClusterer_GroupsByCategory(t *testing.T) {
	insights := []Insight{
		mkInsight("i1", "trust", "checkout", 80, 90),
		mkInsight("i2", "clarity", "hero", 50, 60),
		mkInsight("i3", "trust", "footer", 70, 80),
		mkInsight("i4", "urgency", "hero", 90, 90), // singleton, dropped
		mkInsight("i5", "clarity", "hero", 40, 70),
	}

	themes := clusterOnce(t, ClustererConfig{}, insights)
	if len(themes) != 2 {
		t.Fatalf("Expected 2 themes, got %d", len(themes))
	}
	for _, th := range themes {
		if th.Category == "urgency" {
			t.Error("Expected singleton category to be dropped")
		}
		if th.ID == "" || th.AnalysisID != "an-1" || th.ProjectID != "proj-1" {
			t.Errorf("Expected identifiers on theme, got %+v", th)
		}
	}
}

func TestThemeClusterer_PriorityFormula(t *testing.T) {
	tests := []struct {
		name       string
		count      int
		impact     int
		confidence int
		want       int
	}{
		{"small weak group", 2, 80, 90, 1},     // 80*90*2/10000 = 1.44
		{"mid group", 3, 80, 80, 2},            // 80*80*3/10000 = 1.92
		{"perfect group", 10, 100, 100, 100},   // capped multiplier
		{"oversized group", 14, 100, 100, 100}, // min(count,10) keeps the cap
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			insights := make([]Insight, 0, tt.count)
			for i := 0; i < tt.count; i++ {
				insights = append(insights, mkInsight(fmt.Sprintf("i%d", i), "trust", "checkout", tt.impact, tt.confidence))
			}
			themes := clusterOnce(t, ClustererConfig{}, insights)
			if len(themes) != 1 {
				t.Fatalf("Expected 1 theme, got %d", len(themes))
			}
			if themes[0].Priority != tt.want {
				t.Errorf("Expected priority %d, got %d", tt.want, themes[0].Priority)
			}
		})
	}
}

func TestThemeClusterer_PatternClassification(t *testing.T) {
	tests := []struct {
		name      string
		locations []string
		want      string
	}{
		{"single location", []string{"hero", "hero"}, PatternRecurring},
		{"two locations", []string{"hero", "checkout"}, PatternBehavioral},
		{"three locations", []string{"hero", "checkout", "footer"}, PatternBehavioral},
		{"four locations", []string{"hero", "checkout", "footer", "navigation"}, PatternSystemic},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			insights := make([]Insight, 0, len(tt.locations))
			for i, loc := range tt.locations {
				insights = append(insights, mkInsight(fmt.Sprintf("i%d", i), "trust", loc, 50, 50))
			}
			themes := clusterOnce(t, ClustererConfig{}, insights)
			if len(themes) != 1 {
				t.Fatalf("Expected 1 theme, got %d", len(themes))
			}
			if themes[0].Pattern != tt.want {
				t.Errorf("Expected pattern %s, got %s", tt.want, themes[0].Pattern)
			}
		})
	}
}

func TestThemeClusterer_SortsByPriorityDescending(t *testing.T) {
	insights := []Insight{
		// First-seen category is the weaker one.
		mkInsight("i1", "clarity", "hero", 30, 40),
		mkInsight("i2", "clarity", "hero", 30, 40),
		mkInsight("i3", "trust", "checkout", 100, 100),
		mkInsight("i4", "trust", "checkout", 100, 100),
		mkInsight("i5", "trust", "checkout", 100, 100),
	}

	themes := clusterOnce(t, ClustererConfig{}, insights)
	if len(themes) != 2 {
		t.Fatalf("Expected 2 themes, got %d", len(themes))
	}
	if themes[0].Category != "trust" {
		t.Errorf("Expected trust theme first, got %s", themes[0].Category)
	}
	if themes[0].Priority < themes[1].Priority {
		t.Errorf("Expected descending priorities, got %d then %d", themes[0].Priority, themes[1].Priority)
	}
}

func TestThemeClusterer_PreservesInsightOrderWithinTheme(t *testing.T) {
	insights := []Insight{
		mkInsight("i9", "trust", "checkout", 50, 50),
		mkInsight("i2", "trust", "hero", 50, 50),
		mkInsight("i5", "trust", "footer", 50, 50),
	}

	themes := clusterOnce(t, ClustererConfig{}, insights)
	want := []string{"i9", "i2", "i5"}
	if diff := cmp.Diff(want, themes[0].InsightIDs); diff != "" {
		t.Errorf("InsightIDs mismatch (-want +got):\n%s", diff)
	}
}

func TestThemeClusterer_MinGroupSize(t *testing.T) {
	insights := []Insight{
		mkInsight("i1", "trust", "checkout", 50, 50),
		mkInsight("i2", "trust", "checkout", 50, 50),
		mkInsight("i3", "clarity", "hero", 50, 50),
		mkInsight("i4", "clarity", "hero", 50, 50),
		mkInsight("i5", "clarity", "hero", 50, 50),
	}

	themes := clusterOnce(t, ClustererConfig{MinGroupSize: 3}, insights)
	if len(themes) != 1 {
		t.Fatalf("Expected only the 3-insight group, got %d themes", len(themes))
	}
	if themes[0].Category != "clarity" {
		t.Errorf("Expected clarity theme, got %s", themes[0].Category)
	}
}

func TestThemeClusterer_Idempotent(t *testing.T) {
	insights := []Insight{
		mkInsight("i1", "trust", "checkout", 80, 90),
		mkInsight("i2", "clarity", "hero", 50, 60),
		mkInsight("i3", "trust", "footer", 70, 80),
		mkInsight("i4", "clarity", "hero", 40, 70),
	}

	first := clusterOnce(t, ClustererConfig{}, insights)
	second := clusterOnce(t, ClustererConfig{}, insights)

	ignore := cmpopts.IgnoreFields(Theme{}, "ID", "CreatedAt")
	if diff := cmp.Diff(first, second, ignore); diff != "" {
		t.Errorf("Expected identical themes across runs (-first +second):\n%s", diff)
	}
}

func TestThemeClusterer_ValidateRejectsEmptyInput(t *testing.T) {
	exec := module.NewExecutor(NewThemeClusterer(ClustererConfig{}), nil)

	res := exec.Execute(context.Background(), &ClusterInput{AnalysisID: "an-1"})
	if res.Success {
		t.Fatal("Expected validation failure for empty insight list")
	}
	if res.Err.Kind != module.KindValidation {
		t.Errorf("Expected Validation kind, got %s", res.Err.Kind)
	}
}
