// Package usage records token consumption and estimated spend per
// provider call, aggregated by provider, model and operation, and
// persists it as JSON under the workspace.
package usage

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"uplift/internal/logging"
)

// maxEvents bounds the raw event tail kept alongside the aggregate.
const maxEvents = 100

// Tracker manages usage recording and persistence. Writes are debounced
// so bursts of calls during a pipeline run produce one save.
type Tracker struct {
	mu        sync.Mutex
	data      Data
	filePath  string
	saveDelay time.Duration
	saveTimer *time.Timer
	closed    bool
}

// NewTracker creates a tracker persisting under <workspace>/.uplift.
// Existing usage data is loaded; a corrupt or missing file starts empty.
func NewTracker(workspacePath string) (*Tracker, error) {
	dir := filepath.Join(workspacePath, ".uplift")
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create .uplift dir: %w", err)
	}

	t := &Tracker{
		filePath:  filepath.Join(dir, "usage.json"),
		saveDelay: 5 * time.Second,
		data: Data{
			Version: "1.0",
			Aggregate: Aggregate{
				ByProvider:  make(map[string]Counts),
				ByModel:     make(map[string]Counts),
				ByOperation: make(map[string]Counts),
			},
		},
	}

	if err := t.Load(); err != nil {
		logging.Usage("starting with empty usage data: %v", err)
	}
	return t, nil
}

// Load reads usage data from disk, replacing in-memory state.
func (t *Tracker) Load() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	raw, err := os.ReadFile(t.filePath)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return err
	}
	var loaded Data
	if err := json.Unmarshal(raw, &loaded); err != nil {
		return err
	}

	// Maps may be nil after loading an empty or partial file.
	if loaded.Aggregate.ByProvider == nil {
		loaded.Aggregate.ByProvider = make(map[string]Counts)
	}
	if loaded.Aggregate.ByModel == nil {
		loaded.Aggregate.ByModel = make(map[string]Counts)
	}
	if loaded.Aggregate.ByOperation == nil {
		loaded.Aggregate.ByOperation = make(map[string]Counts)
	}
	if loaded.Version == "" {
		loaded.Version = "1.0"
	}
	t.data = loaded
	return nil
}

// Record adds one provider call to the aggregate and schedules a save.
// It satisfies the recorder interface the completion service expects.
func (t *Tracker) Record(provider, model, operation string, inputTokens, outputTokens int, cost float64) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.data.Aggregate.Total.Add(inputTokens, outputTokens, cost)
	addToMap(t.data.Aggregate.ByProvider, provider, inputTokens, outputTokens, cost)
	addToMap(t.data.Aggregate.ByModel, model, inputTokens, outputTokens, cost)
	addToMap(t.data.Aggregate.ByOperation, operation, inputTokens, outputTokens, cost)

	t.data.Events = append(t.data.Events, Event{
		Timestamp:    time.Now(),
		Provider:     provider,
		Model:        model,
		Operation:    operation,
		InputTokens:  inputTokens,
		OutputTokens: outputTokens,
		Cost:         cost,
	})
	if len(t.data.Events) > maxEvents {
		t.data.Events = t.data.Events[len(t.data.Events)-maxEvents:]
	}

	t.scheduleSaveLocked()
}

// Save writes usage data to disk immediately.
func (t *Tracker) Save() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.saveLocked()
}

// Snapshot returns a copy of the aggregated stats.
func (t *Tracker) Snapshot() Aggregate {
	t.mu.Lock()
	defer t.mu.Unlock()
	agg := t.data.Aggregate
	agg.ByProvider = copyCounts(agg.ByProvider)
	agg.ByModel = copyCounts(agg.ByModel)
	agg.ByOperation = copyCounts(agg.ByOperation)
	return agg
}

// RecentEvents returns a copy of the retained event tail, oldest first.
func (t *Tracker) RecentEvents() []Event {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]Event, len(t.data.Events))
	copy(out, t.data.Events)
	return out
}

// Close stops the pending autosave and flushes to disk. Safe to call
// more than once.
func (t *Tracker) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return nil
	}
	t.closed = true
	if t.saveTimer != nil {
		t.saveTimer.Stop()
		t.saveTimer = nil
	}
	return t.saveLocked()
}

func (t *Tracker) scheduleSaveLocked() {
	if t.closed || t.saveTimer != nil {
		return
	}
	t.saveTimer = time.AfterFunc(t.saveDelay, func() {
		t.mu.Lock()
		defer t.mu.Unlock()
		t.saveTimer = nil
		if t.closed {
			return
		}
		if err := t.saveLocked(); err != nil {
			logging.Usage("autosave failed: %v", err)
		}
	})
}

func (t *Tracker) saveLocked() error {
	t.data.UpdatedAt = time.Now()
	raw, err := json.MarshalIndent(t.data, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(t.filePath, raw, 0644)
}

func addToMap(m map[string]Counts, key string, input, output int, cost float64) {
	entry := m[key]
	entry.Add(input, output, cost)
	m[key] = entry
}

func copyCounts(src map[string]Counts) map[string]Counts {
	if src == nil {
		return nil
	}
	dst := make(map[string]Counts, len(src))
	for key, counts := range src {
		dst[key] = counts
	}
	return dst
}
