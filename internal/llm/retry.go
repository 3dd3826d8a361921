package llm

import (
	"context"
	"math"
	"strings"
	"time"

	"uplift/internal/logging"
)

// RetryPolicy controls service-level retry of failed Execute calls.
// This sits above the per-client 429 loop: it re-runs the whole call
// when a provider exhausted its own retries or returned a transient
// error.
type RetryPolicy struct {
	MaxAttempts  int
	InitialDelay time.Duration
	MaxDelay     time.Duration
	Multiplier   float64
}

// DefaultRetryPolicy retries twice more after the first failure.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts:  3,
		InitialDelay: 1 * time.Second,
		MaxDelay:     15 * time.Second,
		Multiplier:   2.0,
	}
}

// Delay returns the backoff before the given attempt (1-based: the
// delay taken after attempt n fails).
func (p RetryPolicy) Delay(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	d := time.Duration(float64(p.InitialDelay) * math.Pow(p.Multiplier, float64(attempt-1)))
	if p.MaxDelay > 0 && d > p.MaxDelay {
		d = p.MaxDelay
	}
	return d
}

// nonRetriable reports whether a provider error is a credential or
// request fault that repeating cannot fix. Provider errors reach this
// layer as strings, so this matches the wording providers use for bad
// keys ("Invalid x-api-key", "Invalid API key", "Unauthorized").
func nonRetriable(msg string) bool {
	return strings.Contains(msg, "Invalid") || strings.Contains(msg, "Unauthorized")
}

// ExecuteWithRetry runs Execute under the policy, backing off between
// attempts. It stops early on success, on non-retriable errors and on
// context cancellation; the last Response is returned either way, with
// Meta.Attempts set to the number of calls made.
func (s *Service) ExecuteWithRetry(ctx context.Context, req Request, policy RetryPolicy) Response {
	if policy.MaxAttempts <= 0 {
		policy = DefaultRetryPolicy()
	}

	var resp Response
	for attempt := 1; ; attempt++ {
		resp = s.Execute(ctx, req)
		resp.Meta.Attempts = attempt
		if resp.Success || attempt >= policy.MaxAttempts || nonRetriable(resp.Error) {
			return resp
		}

		delay := policy.Delay(attempt)
		logging.LLMDebug("retrying %s after %v (attempt %d/%d): %s", req.Operation, delay, attempt, policy.MaxAttempts, resp.Error)
		select {
		case <-ctx.Done():
			return resp
		case <-time.After(delay):
		}
	}
}
