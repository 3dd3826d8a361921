// Package pipeline holds the four analysis stages (insight extraction,
// theme clustering, hypothesis generation, experiment planning), the
// artifact records they produce and the Runner that drives a full
// analysis through the module registry.
package pipeline

import (
	"strings"
	"time"
)

// Stage names as registered in the module registry. Priorities ascend
// along the chain so ExecuteByPriority visits them in pipeline order.
const (
	StageExtractInsights = "insight-extractor"
	StageClusterThemes   = "theme-clusterer"
	StageHypotheses      = "hypothesis-generator"
	StageExperiments     = "experiment-planner"
)

// NotApplicable marks a categorical field the model did not supply or
// supplied outside the known vocabulary. It is assigned at the mapping
// layer; downstream consumers must treat it as "no claim made", never as
// a real segment/stage/type value.
const NotApplicable = "not_applicable"

// PageContent is the captured page handed to the pipeline. Screenshot,
// when present, is PNG bytes.
type PageContent struct {
	URL        string    `json:"url"`
	Title      string    `json:"title"`
	Markdown   string    `json:"markdown"`
	HTML       string    `json:"html,omitempty"`
	Screenshot []byte    `json:"screenshot,omitempty"`
	FetchedAt  time.Time `json:"fetched_at"`
}

// AnalysisContext carries optional business context that sharpens the
// extraction prompt.
type AnalysisContext struct {
	Industry       string `json:"industry,omitempty"`
	ConversionGoal string `json:"conversion_goal,omitempty"`
	TargetAudience string `json:"target_audience,omitempty"`
}

// Insight is one finding on the analyzed page. Confidence and
// ImpactScore are 0-100. The four categorical fields (Segment,
// JourneyStage, FrictionType, PsychologyPrinciple) hold NotApplicable
// unless the model committed to a known value.
type Insight struct {
	ID                  string    `json:"id"`
	AnalysisID          string    `json:"analysis_id"`
	ProjectID           string    `json:"project_id"`
	Type                string    `json:"type"`
	Category            string    `json:"category"`
	Title               string    `json:"title"`
	Description         string    `json:"description"`
	Severity            string    `json:"severity"`
	Confidence          int       `json:"confidence"`
	ImpactScore         int       `json:"impact_score"`
	Evidence            []string  `json:"evidence,omitempty"`
	Location            string    `json:"location"`
	Segment             string    `json:"segment"`
	JourneyStage        string    `json:"journey_stage"`
	FrictionType        string    `json:"friction_type"`
	PsychologyPrinciple string    `json:"psychology_principle"`
	CreatedAt           time.Time `json:"created_at"`
}

// Theme groups insights that share a category. Priority is derived from
// the group's impact, confidence and size; Pattern classifies how the
// group spreads across page sections.
type Theme struct {
	ID          string    `json:"id"`
	AnalysisID  string    `json:"analysis_id"`
	ProjectID   string    `json:"project_id"`
	Name        string    `json:"name"`
	Category    string    `json:"category"`
	Description string    `json:"description"`
	InsightIDs  []string  `json:"insight_ids"`
	Priority    int       `json:"priority"`
	Pattern     string    `json:"pattern"`
	CreatedAt   time.Time `json:"created_at"`
}

// Theme pattern classifications.
const (
	PatternRecurring  = "recurring"
	PatternSystemic   = "systemic"
	PatternBehavioral = "behavioral"
)

// Hypothesis is a testable "If we change X, then Y will improve because
// Z." statement derived from one problem insight of one theme.
type Hypothesis struct {
	ID         string    `json:"id"`
	AnalysisID string    `json:"analysis_id"`
	ProjectID  string    `json:"project_id"`
	ThemeID    string    `json:"theme_id"`
	InsightID  string    `json:"insight_id"`
	Statement  string    `json:"statement"`
	Change     string    `json:"change"`
	Metric     string    `json:"metric"`
	Rationale  string    `json:"rationale"`
	Confidence int       `json:"confidence"`
	CreatedAt  time.Time `json:"created_at"`
}

// Experiment is a two-variant test specification for one hypothesis.
type Experiment struct {
	ID              string          `json:"id"`
	AnalysisID      string          `json:"analysis_id"`
	ProjectID       string          `json:"project_id"`
	HypothesisID    string          `json:"hypothesis_id"`
	Name            string          `json:"name"`
	Variants        []Variant       `json:"variants"`
	Plan            []string        `json:"plan"`
	SuccessCriteria SuccessCriteria `json:"success_criteria"`
	PrimaryMetric   string          `json:"primary_metric"`
	CreatedAt       time.Time       `json:"created_at"`
}

// Variant is one arm of an experiment.
type Variant struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	IsControl   bool   `json:"is_control"`
}

// SuccessCriteria defines when a treatment wins.
type SuccessCriteria struct {
	PrimaryMetric  string  `json:"primary_metric"`
	MinimumLiftPct float64 `json:"minimum_lift_pct"`
	Guardrail      string  `json:"guardrail"`
}

// Stage inputs. Each stage validates its own input shape.

type ExtractInput struct {
	AnalysisID string
	ProjectID  string
	Content    PageContent
	Context    *AnalysisContext
}

type ClusterInput struct {
	AnalysisID string
	ProjectID  string
	Insights   []Insight
}

type HypothesisInput struct {
	Theme    Theme
	Insights []Insight
}

type PlanInput struct {
	Hypothesis Hypothesis
	Theme      Theme
	Insights   []Insight
}

// AnalysisReport summarizes one full pipeline run.
type AnalysisReport struct {
	AnalysisID    string        `json:"analysis_id"`
	ProjectID     string        `json:"project_id"`
	URL           string        `json:"url"`
	Insights      []Insight     `json:"insights"`
	Themes        []Theme       `json:"themes"`
	Hypotheses    []Hypothesis  `json:"hypotheses"`
	Experiments   []Experiment  `json:"experiments"`
	TokensUsed    int           `json:"tokens_used"`
	EstimatedCost float64       `json:"estimated_cost"`
	StartedAt     time.Time     `json:"started_at"`
	Duration      time.Duration `json:"duration"`
}

// Categorical vocabularies. Values outside these sets collapse to
// NotApplicable during mapping.
var (
	validSegments = map[string]bool{
		"new_visitor":       true,
		"returning_visitor": true,
		"mobile_user":       true,
		"desktop_user":      true,
		"all_visitors":      true,
	}
	validJourneyStages = map[string]bool{
		"awareness":     true,
		"consideration": true,
		"decision":      true,
		"retention":     true,
	}
	validFrictionTypes = map[string]bool{
		"cognitive": true,
		"emotional": true,
		"technical": true,
		"trust":     true,
		"financial": true,
	}
	validPsychologyPrinciples = map[string]bool{
		"social_proof":  true,
		"scarcity":      true,
		"urgency":       true,
		"authority":     true,
		"reciprocity":   true,
		"loss_aversion": true,
		"anchoring":     true,
		"commitment":    true,
	}
)

// normalizeKey lowercases and snake_cases a free-form model value.
func normalizeKey(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	s = strings.ReplaceAll(s, " ", "_")
	s = strings.ReplaceAll(s, "-", "_")
	return s
}

// categorical maps a model value onto an allowlist, collapsing anything
// absent or unknown to NotApplicable.
func categorical(value string, allowed map[string]bool) string {
	key := normalizeKey(value)
	if key == "" || !allowed[key] {
		return NotApplicable
	}
	return key
}

// clampScore normalizes a 0-100 score. Fractional values in (0, 1] are
// treated as ratios and scaled up, since models answer on both scales.
func clampScore(v float64) int {
	if v > 0 && v <= 1 {
		v *= 100
	}
	if v < 0 {
		return 0
	}
	if v > 100 {
		return 100
	}
	return int(v + 0.5)
}

func nowUTC() time.Time { return time.Now().UTC() }

// titleCase renders a snake_case category for display.
func titleCase(s string) string {
	words := strings.Split(normalizeKey(s), "_")
	for i, w := range words {
		if w == "" {
			continue
		}
		words[i] = strings.ToUpper(w[:1]) + w[1:]
	}
	return strings.Join(words, " ")
}
