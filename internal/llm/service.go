package llm

import (
	"context"
	"fmt"
	"sort"
	"time"

	"golang.org/x/sync/semaphore"

	"uplift/internal/logging"
)

// Config holds service-level settings. The command layer maps the
// application config onto this so the package stays import-free of it.
type Config struct {
	// Provider is the default backend for requests that do not name one.
	Provider Provider

	OpenAIKey     string
	OpenAIBaseURL string
	OpenAIModel   string

	AnthropicKey     string
	AnthropicBaseURL string
	AnthropicModel   string

	Temperature float64
	MaxTokens   int
	Timeout     time.Duration

	// MaxConcurrent bounds in-flight provider calls. Zero disables the
	// limit.
	MaxConcurrent int64
}

// DefaultConfig returns the service defaults.
func DefaultConfig() Config {
	return Config{
		Provider:       ProviderOpenAI,
		OpenAIModel:    "gpt-4o",
		AnthropicModel: "claude-3-5-sonnet-20241022",
		Temperature:    0.2,
		MaxTokens:      4096,
		Timeout:        120 * time.Second,
		MaxConcurrent:  4,
	}
}

// Service dispatches completion requests to configured providers,
// bounds their concurrency and records token usage.
type Service struct {
	cfg     Config
	clients map[Provider]Client
	usage   UsageRecorder
	slots   *semaphore.Weighted
}

// NewService builds a Service from config. Clients are registered only
// for providers whose API key is set; recorder may be nil.
func NewService(cfg Config, recorder UsageRecorder) *Service {
	def := DefaultConfig()
	if cfg.Provider == "" {
		cfg.Provider = def.Provider
	}
	if cfg.OpenAIModel == "" {
		cfg.OpenAIModel = def.OpenAIModel
	}
	if cfg.AnthropicModel == "" {
		cfg.AnthropicModel = def.AnthropicModel
	}
	if cfg.MaxTokens == 0 {
		cfg.MaxTokens = def.MaxTokens
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = def.Timeout
	}

	s := &Service{
		cfg:     cfg,
		clients: make(map[Provider]Client),
		usage:   recorder,
	}
	if cfg.MaxConcurrent > 0 {
		s.slots = semaphore.NewWeighted(cfg.MaxConcurrent)
	}

	if cfg.OpenAIKey != "" {
		oc := DefaultOpenAIConfig(cfg.OpenAIKey)
		if cfg.OpenAIBaseURL != "" {
			oc.BaseURL = cfg.OpenAIBaseURL
		}
		oc.Model = cfg.OpenAIModel
		oc.Timeout = cfg.Timeout
		s.clients[ProviderOpenAI] = NewOpenAIClientWithConfig(oc)
	}
	if cfg.AnthropicKey != "" {
		ac := DefaultAnthropicConfig(cfg.AnthropicKey)
		if cfg.AnthropicBaseURL != "" {
			ac.BaseURL = cfg.AnthropicBaseURL
		}
		ac.Model = cfg.AnthropicModel
		ac.Timeout = cfg.Timeout
		s.clients[ProviderAnthropic] = NewAnthropicClientWithConfig(ac)
	}
	return s
}

// RegisterClient installs (or replaces) the client for a provider.
// This is the extension point for additional backends.
func (s *Service) RegisterClient(p Provider, c Client) {
	s.clients[p] = c
}

// Providers lists the providers with a registered client, sorted.
func (s *Service) Providers() []Provider {
	out := make([]Provider, 0, len(s.clients))
	for p := range s.clients {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Execute runs one completion call and always returns a populated
// Response; provider and decode failures surface in Response.Error.
func (s *Service) Execute(ctx context.Context, req Request) Response {
	start := time.Now()
	s.applyDefaults(&req)

	resp := Response{Meta: Metadata{Provider: req.Provider, Model: req.Model, Attempts: 1}}

	client, ok := s.clients[req.Provider]
	if !ok {
		resp.Error = fmt.Sprintf("no client configured for provider %q", req.Provider)
		resp.Meta.ProcessingTime = time.Since(start)
		return resp
	}

	if s.slots != nil {
		if err := s.slots.Acquire(ctx, 1); err != nil {
			resp.Error = fmt.Sprintf("waiting for completion slot: %v", err)
			resp.Meta.ProcessingTime = time.Since(start)
			return resp
		}
		defer s.slots.Release(1)
	}

	logging.LLMDebug("%s call: provider=%s model=%s images=%d", req.Operation, req.Provider, req.Model, len(req.Images))

	text, used, err := client.Complete(ctx, req)
	resp.Meta.ProcessingTime = time.Since(start)
	if err != nil {
		resp.Error = err.Error()
		logging.LLMWarn("%s failed: provider=%s model=%s err=%v", req.Operation, req.Provider, req.Model, err)
		return resp
	}

	data, recovered := DecodeCompletion(text)
	if !recovered {
		logging.LLMWarn("%s returned unparseable output, substituting stub (provider=%s model=%s)", req.Operation, req.Provider, req.Model)
	}

	resp.Success = true
	resp.Data = data
	resp.Meta.InputTokens = used.InputTokens
	resp.Meta.OutputTokens = used.OutputTokens
	resp.Meta.TokensUsed = used.InputTokens + used.OutputTokens
	resp.Meta.EstimatedCost = EstimateCost(req.Model, used)

	if s.usage != nil {
		s.usage.Record(string(req.Provider), req.Model, req.Operation, used.InputTokens, used.OutputTokens, resp.Meta.EstimatedCost)
	}

	logging.LLM("%s done: provider=%s model=%s tokens=%d cost=$%.4f in %v",
		req.Operation, req.Provider, req.Model, resp.Meta.TokensUsed, resp.Meta.EstimatedCost, resp.Meta.ProcessingTime)
	return resp
}

// applyDefaults fills unset request fields from the service config.
func (s *Service) applyDefaults(req *Request) {
	if req.Operation == "" {
		req.Operation = "complete"
	}
	if req.Provider == "" {
		req.Provider = s.cfg.Provider
	}
	if req.Model == "" {
		switch req.Provider {
		case ProviderAnthropic:
			req.Model = s.cfg.AnthropicModel
		default:
			req.Model = s.cfg.OpenAIModel
		}
	}
	if req.Temperature == 0 {
		req.Temperature = s.cfg.Temperature
	}
	if req.MaxTokens == 0 {
		req.MaxTokens = s.cfg.MaxTokens
	}
}
