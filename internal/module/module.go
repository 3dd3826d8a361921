// Package module defines the contract every pluggable analysis unit
// implements, the typed error taxonomy, and the execution wrapper that
// gives each unit uniform validation, timing, caching, and non-throwing
// result semantics. The registry treats every module identically because
// of this contract: no module execution ever panics or returns a bare
// error to its caller.
package module

import (
	"context"
	"time"
)

// DefaultPriority is assumed when a descriptor leaves Priority at zero.
// Lower values run earlier in priority-ordered execution.
const DefaultPriority = 100

// Descriptor identifies a module and carries its registration metadata.
// Name is the identity: registering a second module under the same name
// replaces the first.
type Descriptor struct {
	Name         string
	Version      string
	Enabled      bool
	Priority     int
	Dependencies []string
	Options      map[string]any
}

// EffectivePriority resolves the zero value to DefaultPriority.
func (d Descriptor) EffectivePriority() int {
	if d.Priority == 0 {
		return DefaultPriority
	}
	return d.Priority
}

// Module is the contract for a pluggable unit of work. Validate must be
// side-effect free and cheap; Run holds the business logic and may return
// any error, which the executor classifies into the typed taxonomy. Run
// must honor ctx cancellation on network-bound work.
type Module interface {
	Descriptor() Descriptor
	Validate(input any) bool
	Run(ctx context.Context, input any) (any, error)
}

// Initializer is an optional hook invoked before Validate on each execution.
type Initializer interface {
	Init(ctx context.Context) error
}

// ErrorObserver is an optional hook invoked when an execution fails.
type ErrorObserver interface {
	OnError(ctx context.Context, err *Error)
}

// Closer is an optional hook for releasing module resources.
type Closer interface {
	Close() error
}

// Metadata describes how a Result was produced. Duration is always set;
// Cached and Retries only where the cache or retry decorators apply.
type Metadata struct {
	Duration time.Duration
	Cached   bool
	Retries  int
}

// Result is the uniform outcome of a module execution. Exactly one of
// Data and Err is meaningful, selected by Success.
type Result struct {
	Success bool
	Data    any
	Err     *Error
	Meta    Metadata
}

// Succeed builds a successful result.
func Succeed(data any, d time.Duration) Result {
	return Result{Success: true, Data: data, Meta: Metadata{Duration: d}}
}

// Fail builds a failed result.
func Fail(err *Error, d time.Duration) Result {
	return Result{Success: false, Err: err, Meta: Metadata{Duration: d}}
}
