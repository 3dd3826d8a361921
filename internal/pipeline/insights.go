package pipeline

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"uplift/internal/llm"
	"uplift/internal/logging"
	"uplift/internal/module"
)

// Completioner is the slice of the completion service the stages use.
// *llm.Service satisfies it; tests substitute a scripted fake.
type Completioner interface {
	ExecuteWithRetry(ctx context.Context, req llm.Request, policy llm.RetryPolicy) llm.Response
}

// ExtractorConfig selects the backend for insight extraction.
type ExtractorConfig struct {
	Provider llm.Provider
	Model    string
	Retry    llm.RetryPolicy
}

// ExtractOutput is the insight extractor's stage result, carrying the
// provider accounting for the run report.
type ExtractOutput struct {
	Insights []Insight
	Meta     llm.Metadata
}

// InsightExtractor turns captured page content into canonical Insight
// records via one completion call.
type InsightExtractor struct {
	client  Completioner
	prompts *PromptStore
	cfg     ExtractorConfig
}

var _ module.Module = (*InsightExtractor)(nil)

func NewInsightExtractor(client Completioner, prompts *PromptStore, cfg ExtractorConfig) *InsightExtractor {
	return &InsightExtractor{client: client, prompts: prompts, cfg: cfg}
}

func (e *InsightExtractor) Descriptor() module.Descriptor {
	return module.Descriptor{
		Name:     StageExtractInsights,
		Version:  "1.0.0",
		Enabled:  true,
		Priority: 10,
	}
}

// Validate requires a well-formed input with non-empty markdown. An
// empty page is rejected here so no completion call is ever made for it.
func (e *InsightExtractor) Validate(input any) bool {
	in, ok := input.(*ExtractInput)
	return ok && strings.TrimSpace(in.Content.Markdown) != ""
}

type extractPromptData struct {
	URL            string
	Title          string
	Markdown       string
	Industry       string
	ConversionGoal string
	TargetAudience string
	HasScreenshot  bool
}

// rawInsight is the model-shaped record before normalization.
type rawInsight struct {
	Type                string   `json:"type"`
	Category            string   `json:"category"`
	Title               string   `json:"title"`
	Description         string   `json:"description"`
	Severity            string   `json:"severity"`
	Confidence          float64  `json:"confidence"`
	ImpactScore         float64  `json:"impact_score"`
	Evidence            []string `json:"evidence"`
	Location            string   `json:"location"`
	Segment             string   `json:"segment"`
	JourneyStage        string   `json:"journey_stage"`
	FrictionType        string   `json:"friction_type"`
	PsychologyPrinciple string   `json:"psychology_principle"`
}

func (e *InsightExtractor) Run(ctx context.Context, input any) (any, error) {
	in := input.(*ExtractInput)

	data := extractPromptData{
		URL:           in.Content.URL,
		Title:         in.Content.Title,
		Markdown:      in.Content.Markdown,
		HasScreenshot: len(in.Content.Screenshot) > 0,
	}
	if in.Context != nil {
		data.Industry = in.Context.Industry
		data.ConversionGoal = in.Context.ConversionGoal
		data.TargetAudience = in.Context.TargetAudience
	}

	system, err := e.prompts.Render("extract_insights_system", data)
	if err != nil {
		return nil, err
	}
	prompt, err := e.prompts.Render("extract_insights_user", data)
	if err != nil {
		return nil, err
	}

	req := llm.Request{
		Operation: "extract_insights",
		Provider:  e.cfg.Provider,
		Model:     e.cfg.Model,
		System:    system,
		Prompt:    prompt,
	}
	if len(in.Content.Screenshot) > 0 {
		req.Images = []string{base64.StdEncoding.EncodeToString(in.Content.Screenshot)}
	}

	resp := e.client.ExecuteWithRetry(ctx, req, e.cfg.Retry)
	if !resp.Success {
		return nil, fmt.Errorf("insight extraction call failed: %s", resp.Error)
	}

	raws, err := decodeInsightDoc(resp.Data)
	if err != nil {
		return nil, fmt.Errorf("failed to decode insight document: %w", err)
	}

	insights := make([]Insight, 0, len(raws))
	for _, raw := range raws {
		insights = append(insights, mapInsight(raw, in.AnalysisID, in.ProjectID))
	}
	logging.Pipeline("extracted %d insights for analysis %s", len(insights), in.AnalysisID)

	return &ExtractOutput{Insights: insights, Meta: resp.Meta}, nil
}

// decodeInsightDoc accepts {"insights":[...]}, the service's
// {"findings":[...]} stub shape, or a bare array. An absent list decodes
// to zero insights, not an error.
func decodeInsightDoc(data json.RawMessage) ([]rawInsight, error) {
	var doc struct {
		Insights []rawInsight `json:"insights"`
		Findings []rawInsight `json:"findings"`
	}
	if err := json.Unmarshal(data, &doc); err == nil {
		if doc.Insights != nil {
			return doc.Insights, nil
		}
		return doc.Findings, nil
	}

	var list []rawInsight
	if err := json.Unmarshal(data, &list); err != nil {
		return nil, err
	}
	return list, nil
}

// mapInsight normalizes one model record into a canonical Insight. The
// four categorical fields collapse to NotApplicable unless the model
// committed to a known value; scores are clamped to 0-100.
func mapInsight(raw rawInsight, analysisID, projectID string) Insight {
	ins := Insight{
		ID:          uuid.NewString(),
		AnalysisID:  analysisID,
		ProjectID:   projectID,
		Type:        normalizeType(raw.Type),
		Category:    normalizeCategory(raw.Category),
		Title:       strings.TrimSpace(raw.Title),
		Description: strings.TrimSpace(raw.Description),
		Severity:    normalizeSeverity(raw.Severity),
		Confidence:  clampScore(raw.Confidence),
		ImpactScore: clampScore(raw.ImpactScore),
		Location:    normalizeLocation(raw.Location),
		CreatedAt:   nowUTC(),

		Segment:             categorical(raw.Segment, validSegments),
		JourneyStage:        categorical(raw.JourneyStage, validJourneyStages),
		FrictionType:        categorical(raw.FrictionType, validFrictionTypes),
		PsychologyPrinciple: categorical(raw.PsychologyPrinciple, validPsychologyPrinciples),
	}
	if ins.Title == "" {
		ins.Title = "Untitled finding"
	}
	for _, ev := range raw.Evidence {
		if ev = strings.TrimSpace(ev); ev != "" {
			ins.Evidence = append(ins.Evidence, ev)
		}
	}
	return ins
}

func normalizeType(s string) string {
	switch normalizeKey(s) {
	case "problem":
		return "problem"
	case "opportunity":
		return "opportunity"
	case "strength":
		return "strength"
	default:
		return "observation"
	}
}

func normalizeCategory(s string) string {
	if key := normalizeKey(s); key != "" {
		return key
	}
	return "general"
}

func normalizeSeverity(s string) string {
	switch normalizeKey(s) {
	case "low":
		return "low"
	case "high":
		return "high"
	case "critical":
		return "critical"
	default:
		return "medium"
	}
}

func normalizeLocation(s string) string {
	if key := normalizeKey(s); key != "" {
		return key
	}
	return "page"
}
