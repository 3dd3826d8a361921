package pipeline

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"uplift/internal/module"
)

// ExperimentPlanner turns one hypothesis into a two-variant experiment
// specification with an implementation plan and success criteria. Like
// the hypothesis generator this is templated, not model-generated.
type ExperimentPlanner struct{}

var _ module.Module = (*ExperimentPlanner)(nil)

func NewExperimentPlanner() *ExperimentPlanner {
	return &ExperimentPlanner{}
}

func (p *ExperimentPlanner) Descriptor() module.Descriptor {
	return module.Descriptor{
		Name:         StageExperiments,
		Version:      "1.0.0",
		Enabled:      true,
		Priority:     40,
		Dependencies: []string{StageHypotheses},
	}
}

func (p *ExperimentPlanner) Validate(input any) bool {
	in, ok := input.(*PlanInput)
	return ok && in.Hypothesis.ID != "" && strings.TrimSpace(in.Hypothesis.Statement) != ""
}

func (p *ExperimentPlanner) Run(ctx context.Context, input any) (any, error) {
	in := input.(*PlanInput)
	hyp := in.Hypothesis

	exp := Experiment{
		ID:           uuid.NewString(),
		AnalysisID:   hyp.AnalysisID,
		ProjectID:    hyp.ProjectID,
		HypothesisID: hyp.ID,
		Name:         fmt.Sprintf("Test: %s", truncate(hyp.Change, 80)),
		Variants: []Variant{
			{
				Name:        "control",
				Description: "Current experience, left unchanged.",
				IsControl:   true,
			},
			{
				Name:        "treatment",
				Description: fmt.Sprintf("Change %s.", hyp.Change),
			},
		},
		Plan: []string{
			fmt.Sprintf("Record the current baseline for %s over at least one full week.", hyp.Metric),
			fmt.Sprintf("Implement the treatment: change %s.", hyp.Change),
			"Split traffic 50/50 between control and treatment with consistent assignment per visitor.",
			fmt.Sprintf("Run until the sample size supports a decision on %s, at minimum two weeks.", hyp.Metric),
			"Compare variants, check the guardrail metric and document the outcome.",
		},
		SuccessCriteria: SuccessCriteria{
			PrimaryMetric:  hyp.Metric,
			MinimumLiftPct: 5.0,
			Guardrail:      "no decrease in average order value",
		},
		PrimaryMetric: hyp.Metric,
		CreatedAt:     nowUTC(),
	}

	return exp, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return strings.TrimSpace(s[:n]) + "..."
}
