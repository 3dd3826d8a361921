package module

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"uplift/internal/cache"
)

// fakeModule is a configurable Module for executor tests.
type fakeModule struct {
	desc     Descriptor
	validate func(input any) bool
	run      func(ctx context.Context, input any) (any, error)
	runCalls int
}

func (f *fakeModule) Descriptor() Descriptor { return f.desc }

func (f *fakeModule) Validate(input any) bool {
	if f.validate == nil {
		return true
	}
	return f.validate(input)
}

func (f *fakeModule) Run(ctx context.Context, input any) (any, error) {
	f.runCalls++
	if f.run == nil {
		return input, nil
	}
	return f.run(ctx, input)
}

func enabledModule(name string) *fakeModule {
	return &fakeModule{desc: Descriptor{Name: name, Version: "1.0.0", Enabled: true}}
}

// hookedModule additionally implements the optional lifecycle hooks.
type hookedModule struct {
	fakeModule
	initErr    error
	initCalls  int
	seenErrors []*Error
	closed     bool
}

func (h *hookedModule) Init(ctx context.Context) error {
	h.initCalls++
	return h.initErr
}

func (h *hookedModule) OnError(ctx context.Context, err *Error) {
	h.seenErrors = append(h.seenErrors, err)
}

func (h *hookedModule) Close() error {
	h.closed = true
	return nil
}

var (
	_ Module        = (*fakeModule)(nil)
	_ Initializer   = (*hookedModule)(nil)
	_ ErrorObserver = (*hookedModule)(nil)
	_ Closer        = (*hookedModule)(nil)
)

func TestExecuteDisabled(t *testing.T) {
	m := enabledModule("stage")
	m.desc.Enabled = false
	res := NewExecutor(m, nil).Execute(context.Background(), "in")

	require.False(t, res.Success)
	assert.Equal(t, KindConfiguration, res.Err.Kind)
	assert.Equal(t, "stage", res.Err.Module)
	assert.Zero(t, m.runCalls, "disabled module must not run")
}

func TestExecuteValidationFailure(t *testing.T) {
	m := enabledModule("stage")
	m.validate = func(any) bool { return false }
	res := NewExecutor(m, nil).Execute(context.Background(), "in")

	require.False(t, res.Success)
	assert.Equal(t, KindValidation, res.Err.Kind)
	assert.Zero(t, m.runCalls, "Run must not be invoked when validation rejects the input")
}

func TestExecuteSuccess(t *testing.T) {
	m := enabledModule("stage")
	m.run = func(_ context.Context, input any) (any, error) {
		return input.(string) + "-done", nil
	}
	res := NewExecutor(m, nil).Execute(context.Background(), "work")

	require.True(t, res.Success)
	assert.Equal(t, "work-done", res.Data)
	assert.Nil(t, res.Err)
	assert.GreaterOrEqual(t, res.Meta.Duration, time.Duration(0))
	assert.False(t, res.Meta.Cached)
}

func TestExecuteClassifiesPlainError(t *testing.T) {
	cause := errors.New("upstream 503")
	m := enabledModule("stage")
	m.run = func(context.Context, any) (any, error) { return nil, cause }
	res := NewExecutor(m, nil).Execute(context.Background(), nil)

	require.False(t, res.Success)
	assert.Equal(t, KindExecution, res.Err.Kind)
	assert.True(t, errors.Is(res.Err, cause), "original cause must be retained")
}

func TestExecutePassesTypedErrorThrough(t *testing.T) {
	m := enabledModule("stage")
	m.run = func(context.Context, any) (any, error) {
		return nil, NewError(KindTimeout, "stage", "budget exceeded")
	}
	res := NewExecutor(m, nil).Execute(context.Background(), nil)

	require.False(t, res.Success)
	assert.Equal(t, KindTimeout, res.Err.Kind, "typed kinds pass through unchanged")
}

func TestExecuteRecoversPanic(t *testing.T) {
	m := enabledModule("stage")
	m.run = func(context.Context, any) (any, error) { panic("index out of range") }

	var res Result
	require.NotPanics(t, func() {
		res = NewExecutor(m, nil).Execute(context.Background(), nil)
	})
	require.False(t, res.Success)
	assert.Equal(t, KindExecution, res.Err.Kind)
	assert.Contains(t, res.Err.Msg, "panicked")
}

func TestInitHook(t *testing.T) {
	t.Run("runs before validate", func(t *testing.T) {
		h := &hookedModule{fakeModule: *enabledModule("stage")}
		res := NewExecutor(h, nil).Execute(context.Background(), nil)
		require.True(t, res.Success)
		assert.Equal(t, 1, h.initCalls)
	})

	t.Run("failure is classified and skips run", func(t *testing.T) {
		h := &hookedModule{fakeModule: *enabledModule("stage"), initErr: errors.New("no api key")}
		res := NewExecutor(h, nil).Execute(context.Background(), nil)
		require.False(t, res.Success)
		assert.Equal(t, KindExecution, res.Err.Kind)
		assert.Zero(t, h.runCalls)
	})
}

func TestErrorHookObservesFailures(t *testing.T) {
	h := &hookedModule{fakeModule: *enabledModule("stage")}
	h.validate = func(any) bool { return false }
	res := NewExecutor(h, nil).Execute(context.Background(), nil)

	require.False(t, res.Success)
	require.Len(t, h.seenErrors, 1)
	assert.Equal(t, KindValidation, h.seenErrors[0].Kind)
}

func TestCloseHook(t *testing.T) {
	h := &hookedModule{fakeModule: *enabledModule("stage")}
	exec := NewExecutor(h, nil)
	require.NoError(t, exec.Close())
	assert.True(t, h.closed)

	// Modules without the hook close as a no-op.
	require.NoError(t, NewExecutor(enabledModule("plain"), nil).Close())
}

func TestExecuteWithCache(t *testing.T) {
	c := cache.New(cache.Config{MaxSize: 10, DefaultTTL: time.Minute})
	defer c.Close()

	m := enabledModule("stage")
	m.run = func(context.Context, any) (any, error) { return "computed", nil }
	exec := NewExecutor(m, c)

	first := exec.ExecuteWithCache(context.Background(), nil, "k", time.Minute)
	require.True(t, first.Success)
	assert.False(t, first.Meta.Cached)

	second := exec.ExecuteWithCache(context.Background(), nil, "k", time.Minute)
	require.True(t, second.Success)
	assert.True(t, second.Meta.Cached, "second call must be served from cache")
	assert.Equal(t, "computed", second.Data)
	assert.Equal(t, 1, m.runCalls, "cached call must not re-run the module")
}

func TestExecuteWithCacheSkipsFailures(t *testing.T) {
	c := cache.New(cache.Config{MaxSize: 10, DefaultTTL: time.Minute})
	defer c.Close()

	m := enabledModule("stage")
	m.run = func(context.Context, any) (any, error) { return nil, errors.New("flaky") }
	exec := NewExecutor(m, c)

	exec.ExecuteWithCache(context.Background(), nil, "k", time.Minute)
	exec.ExecuteWithCache(context.Background(), nil, "k", time.Minute)
	assert.Equal(t, 2, m.runCalls, "failed results must not be cached")
}

func TestExecuteWithCacheNilCache(t *testing.T) {
	m := enabledModule("stage")
	exec := NewExecutor(m, nil)
	res := exec.ExecuteWithCache(context.Background(), "in", "k", time.Minute)
	require.True(t, res.Success)
	assert.False(t, res.Meta.Cached)
}

func TestExecuteWithRetry(t *testing.T) {
	policy := RetryPolicy{MaxAttempts: 3, InitialDelay: time.Millisecond, MaxDelay: 5 * time.Millisecond, Multiplier: 2}

	t.Run("recovers after transient failures", func(t *testing.T) {
		m := enabledModule("stage")
		m.run = func(context.Context, any) (any, error) {
			if m.runCalls < 3 {
				return nil, errors.New("transient")
			}
			return "ok", nil
		}
		res := NewExecutor(m, nil).ExecuteWithRetry(context.Background(), nil, policy)
		require.True(t, res.Success)
		assert.Equal(t, 2, res.Meta.Retries)
		assert.Equal(t, 3, m.runCalls)
	})

	t.Run("gives up at max attempts", func(t *testing.T) {
		m := enabledModule("stage")
		m.run = func(context.Context, any) (any, error) { return nil, errors.New("always down") }
		res := NewExecutor(m, nil).ExecuteWithRetry(context.Background(), nil, policy)
		require.False(t, res.Success)
		assert.Equal(t, 2, res.Meta.Retries)
		assert.Equal(t, 3, m.runCalls)
	})

	t.Run("does not retry validation failures", func(t *testing.T) {
		m := enabledModule("stage")
		m.validate = func(any) bool { return false }
		res := NewExecutor(m, nil).ExecuteWithRetry(context.Background(), nil, policy)
		require.False(t, res.Success)
		assert.Equal(t, KindValidation, res.Err.Kind)
		assert.Zero(t, res.Meta.Retries)
		assert.Zero(t, m.runCalls)
	})

	t.Run("stops when context is cancelled", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		m := enabledModule("stage")
		m.run = func(context.Context, any) (any, error) { return nil, errors.New("down") }
		res := NewExecutor(m, nil).ExecuteWithRetry(ctx, nil, policy)
		require.False(t, res.Success)
		assert.Equal(t, 1, m.runCalls, "cancelled context must stop further attempts")
	})
}

func TestRetryPolicyDelay(t *testing.T) {
	p := RetryPolicy{InitialDelay: 100 * time.Millisecond, MaxDelay: 350 * time.Millisecond, Multiplier: 2}
	assert.Equal(t, 100*time.Millisecond, p.Delay(1))
	assert.Equal(t, 200*time.Millisecond, p.Delay(2))
	assert.Equal(t, 350*time.Millisecond, p.Delay(3), "delay is capped at MaxDelay")
}

func TestEffectivePriority(t *testing.T) {
	assert.Equal(t, DefaultPriority, Descriptor{}.EffectivePriority())
	assert.Equal(t, 10, Descriptor{Priority: 10}.EffectivePriority())
}
