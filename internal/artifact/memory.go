package artifact

import (
	"context"
	"sync"

	"uplift/internal/pipeline"
)

// MemoryStore keeps artifacts in process memory, grouped by analysis.
// It is the default for hosts that only need the in-flight report, and
// for tests.
type MemoryStore struct {
	mu          sync.RWMutex
	insights    map[string][]pipeline.Insight
	themes      map[string][]pipeline.Theme
	hypotheses  map[string][]pipeline.Hypothesis
	experiments map[string][]pipeline.Experiment
}

var _ Store = (*MemoryStore)(nil)

// NewMemoryStore creates an empty in-memory artifact store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		insights:    make(map[string][]pipeline.Insight),
		themes:      make(map[string][]pipeline.Theme),
		hypotheses:  make(map[string][]pipeline.Hypothesis),
		experiments: make(map[string][]pipeline.Experiment),
	}
}

// SaveInsights appends a batch of insights, grouped by their analysis ID.
func (s *MemoryStore) SaveInsights(_ context.Context, insights []pipeline.Insight) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, ins := range insights {
		s.insights[ins.AnalysisID] = append(s.insights[ins.AnalysisID], ins)
	}
	return nil
}

// SaveThemes appends a batch of themes, grouped by their analysis ID.
func (s *MemoryStore) SaveThemes(_ context.Context, themes []pipeline.Theme) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, th := range themes {
		s.themes[th.AnalysisID] = append(s.themes[th.AnalysisID], th)
	}
	return nil
}

// SaveHypotheses appends a batch of hypotheses, grouped by their analysis ID.
func (s *MemoryStore) SaveHypotheses(_ context.Context, hypotheses []pipeline.Hypothesis) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, hyp := range hypotheses {
		s.hypotheses[hyp.AnalysisID] = append(s.hypotheses[hyp.AnalysisID], hyp)
	}
	return nil
}

// SaveExperiments appends a batch of experiments, grouped by their analysis ID.
func (s *MemoryStore) SaveExperiments(_ context.Context, experiments []pipeline.Experiment) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, exp := range experiments {
		s.experiments[exp.AnalysisID] = append(s.experiments[exp.AnalysisID], exp)
	}
	return nil
}

// InsightsByAnalysis returns a copy of the insights saved for one analysis.
func (s *MemoryStore) InsightsByAnalysis(_ context.Context, analysisID string) ([]pipeline.Insight, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]pipeline.Insight, len(s.insights[analysisID]))
	copy(out, s.insights[analysisID])
	return out, nil
}

// ThemesByAnalysis returns a copy of the themes saved for one analysis.
func (s *MemoryStore) ThemesByAnalysis(_ context.Context, analysisID string) ([]pipeline.Theme, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]pipeline.Theme, len(s.themes[analysisID]))
	copy(out, s.themes[analysisID])
	return out, nil
}

// HypothesesByAnalysis returns a copy of the hypotheses saved for one analysis.
func (s *MemoryStore) HypothesesByAnalysis(_ context.Context, analysisID string) ([]pipeline.Hypothesis, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]pipeline.Hypothesis, len(s.hypotheses[analysisID]))
	copy(out, s.hypotheses[analysisID])
	return out, nil
}

// ExperimentsByAnalysis returns a copy of the experiments saved for one analysis.
func (s *MemoryStore) ExperimentsByAnalysis(_ context.Context, analysisID string) ([]pipeline.Experiment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]pipeline.Experiment, len(s.experiments[analysisID]))
	copy(out, s.experiments[analysisID])
	return out, nil
}

// Close is a no-op for the in-memory store.
func (s *MemoryStore) Close() error {
	return nil
}
