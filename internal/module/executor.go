package module

import (
	"context"
	"fmt"
	"math"
	"time"

	"uplift/internal/cache"
	"uplift/internal/logging"
)

// RetryPolicy bounds the retry decorator. Delay grows by Multiplier each
// attempt and is capped at MaxDelay.
type RetryPolicy struct {
	MaxAttempts  int
	InitialDelay time.Duration
	MaxDelay     time.Duration
	Multiplier   float64
}

// DefaultRetryPolicy allows two retries with a doubling delay.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts:  3,
		InitialDelay: 500 * time.Millisecond,
		MaxDelay:     8 * time.Second,
		Multiplier:   2,
	}
}

// Delay returns the backoff before the given (1-based) attempt's retry.
func (p RetryPolicy) Delay(attempt int) time.Duration {
	d := time.Duration(float64(p.InitialDelay) * math.Pow(p.Multiplier, float64(attempt-1)))
	if p.MaxDelay > 0 && d > p.MaxDelay {
		return p.MaxDelay
	}
	return d
}

// Executor wraps a Module with the uniform execution contract: timing,
// lifecycle hooks, panic containment, error classification, and the
// cache/retry decorators. The zero cache is allowed; ExecuteWithCache
// then degrades to a plain Execute.
type Executor struct {
	mod   Module
	cache *cache.Cache
}

// NewExecutor wraps a module. cache may be nil.
func NewExecutor(m Module, c *cache.Cache) *Executor {
	return &Executor{mod: m, cache: c}
}

// Metadata returns the wrapped module's descriptor.
func (e *Executor) Metadata() Descriptor { return e.mod.Descriptor() }

// Module returns the wrapped module.
func (e *Executor) Module() Module { return e.mod }

// Execute runs the module under the uniform contract. A disabled module
// fails with a configuration error before any hook runs; rejected input
// fails with a validation error without invoking Run; errors and panics
// from Run are classified. Execute never panics and always returns a
// Result with the elapsed duration.
func (e *Executor) Execute(ctx context.Context, input any) Result {
	start := time.Now()
	desc := e.mod.Descriptor()

	if !desc.Enabled {
		return Fail(NewError(KindConfiguration, desc.Name, "module is disabled"), time.Since(start))
	}

	if init, ok := e.mod.(Initializer); ok {
		if err := init.Init(ctx); err != nil {
			return e.fail(ctx, Classify(desc.Name, err), start)
		}
	}

	if !e.mod.Validate(input) {
		return e.fail(ctx, NewError(KindValidation, desc.Name, "input failed validation"), start)
	}

	data, err := e.run(ctx, input)
	if err != nil {
		return e.fail(ctx, Classify(desc.Name, err), start)
	}

	d := time.Since(start)
	logging.EngineDebug("module %s succeeded in %v", desc.Name, d)
	return Succeed(data, d)
}

// ExecuteWithCache serves the result from the cache when present,
// otherwise executes and stores the result only on success. Hits are
// tagged Cached in the metadata.
func (e *Executor) ExecuteWithCache(ctx context.Context, input any, key string, ttl time.Duration) Result {
	if e.cache != nil {
		if v, ok := e.cache.Get(key); ok {
			if r, ok := v.(Result); ok {
				r.Meta.Cached = true
				return r
			}
		}
	}
	r := e.Execute(ctx, input)
	if r.Success && e.cache != nil {
		e.cache.Set(key, r, ttl)
	}
	return r
}

// ExecuteWithRetry re-executes transient failures under the policy.
// Non-retriable kinds (validation, dependency, configuration) return
// immediately. Metadata on the returned result carries the number of
// retries performed.
func (e *Executor) ExecuteWithRetry(ctx context.Context, input any, policy RetryPolicy) Result {
	if policy.MaxAttempts <= 0 {
		policy = DefaultRetryPolicy()
	}

	var res Result
	for attempt := 1; ; attempt++ {
		res = e.Execute(ctx, input)
		res.Meta.Retries = attempt - 1
		if res.Success || !res.Err.Retriable() || attempt >= policy.MaxAttempts {
			return res
		}
		select {
		case <-ctx.Done():
			return res
		case <-time.After(policy.Delay(attempt)):
		}
		logging.EngineDebug("module %s retry %d after %s failure", e.mod.Descriptor().Name, attempt, res.Err.Kind)
	}
}

// Close releases the wrapped module's resources if it implements Closer.
func (e *Executor) Close() error {
	if c, ok := e.mod.(Closer); ok {
		return c.Close()
	}
	return nil
}

// run invokes Run with panic containment: a panicking module becomes an
// ordinary execution failure.
func (e *Executor) run(ctx context.Context, input any) (data any, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("module %s panicked: %v", e.mod.Descriptor().Name, r)
		}
	}()
	return e.mod.Run(ctx, input)
}

// fail routes a failure through the optional error hook and logs it.
func (e *Executor) fail(ctx context.Context, terr *Error, start time.Time) Result {
	if obs, ok := e.mod.(ErrorObserver); ok {
		obs.OnError(ctx, terr)
	}
	d := time.Since(start)
	logging.EngineDebug("module %s failed after %v: %v", terr.Module, d, terr)
	return Fail(terr, d)
}
