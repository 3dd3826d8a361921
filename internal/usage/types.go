package usage

import "time"

// Data is the root structure persisted to disk.
type Data struct {
	Version   string    `json:"version"`
	UpdatedAt time.Time `json:"updated_at"`
	Events    []Event   `json:"events,omitempty"`
	Aggregate Aggregate `json:"aggregate"`
}

// Event is a single provider call. Only the most recent maxEvents are
// kept; the aggregate carries the full history.
type Event struct {
	Timestamp    time.Time `json:"timestamp"`
	Provider     string    `json:"provider"`
	Model        string    `json:"model"`
	Operation    string    `json:"operation"`
	InputTokens  int       `json:"input_tokens"`
	OutputTokens int       `json:"output_tokens"`
	Cost         float64   `json:"cost_est_usd"`
}

// Aggregate holds counters broken down by dimension.
type Aggregate struct {
	Total       Counts            `json:"total"`
	ByProvider  map[string]Counts `json:"by_provider"`
	ByModel     map[string]Counts `json:"by_model"`
	ByOperation map[string]Counts `json:"by_operation"`
}

// Counts holds call/token/cost sums.
type Counts struct {
	Calls  int64   `json:"calls"`
	Input  int64   `json:"input"`
	Output int64   `json:"output"`
	Total  int64   `json:"total"`
	Cost   float64 `json:"cost_est_usd"`
}

func (c *Counts) Add(input, output int, cost float64) {
	c.Calls++
	c.Input += int64(input)
	c.Output += int64(output)
	c.Total += int64(input + output)
	c.Cost += cost
}
