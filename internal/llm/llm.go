// Package llm provides provider-agnostic access to completion APIs.
//
// Analysis stages describe what they need in a Request and receive a
// Response that is always populated: provider failures, rate limits and
// unparseable completions are reported through Response.Error and the
// metadata block rather than as Go errors. The Service owns provider
// dispatch, concurrency limits, retry, cost estimation and usage
// recording; individual clients only know how to talk to one API.
package llm

import (
	"context"
	"encoding/json"
	"time"
)

// Provider identifies a completion API backend.
type Provider string

const (
	ProviderOpenAI    Provider = "openai"
	ProviderAnthropic Provider = "anthropic"
)

// Request describes a single completion call.
//
// Zero values for Provider, Model, Temperature and MaxTokens are filled
// from the service configuration before dispatch.
type Request struct {
	// Operation labels the call for usage accounting ("extract_insights",
	// "generate_hypotheses", ...). Defaults to "complete".
	Operation string

	Provider Provider
	Model    string

	// System is the system prompt; empty means none.
	System string
	// Prompt is the user-turn text.
	Prompt string
	// Images holds base64-encoded PNG screenshots attached to the user
	// turn, in provider-specific content blocks.
	Images []string

	Temperature float64
	MaxTokens   int
}

// Usage reports token consumption for one provider call.
type Usage struct {
	InputTokens  int
	OutputTokens int
}

// Metadata describes how a Response was produced.
type Metadata struct {
	Provider       Provider
	Model          string
	InputTokens    int
	OutputTokens   int
	TokensUsed     int
	EstimatedCost  float64
	ProcessingTime time.Duration
	// Attempts is the number of Execute calls made, set by
	// ExecuteWithRetry. Plain Execute leaves it at 1.
	Attempts int
}

// Response is the uniform result of a completion call. Success reports
// whether usable JSON came back; Data holds the decoded document and is
// valid JSON whenever Success is true.
type Response struct {
	Success bool
	Data    json.RawMessage
	Error   string
	Meta    Metadata
}

// Client is the provider surface the service dispatches on. Complete
// sends one request and returns the raw completion text.
type Client interface {
	Complete(ctx context.Context, req Request) (string, Usage, error)
}

// UsageRecorder receives per-call accounting. *usage.Tracker satisfies
// this; tests substitute their own.
type UsageRecorder interface {
	Record(provider, model, operation string, inputTokens, outputTokens int, cost float64)
}
