package module

import (
	"errors"
	"fmt"
)

// Kind classifies a module failure.
type Kind int

const (
	// KindValidation means the input failed the module's shape check.
	KindValidation Kind = iota
	// KindExecution means the module's business logic failed or panicked.
	KindExecution
	// KindTimeout means the call exceeded an explicit wall-clock budget.
	KindTimeout
	// KindDependency means a declared dependency is not registered.
	KindDependency
	// KindConfiguration means the module is disabled or not registered.
	KindConfiguration
)

// String returns the lowercase name of the kind.
func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindExecution:
		return "execution"
	case KindTimeout:
		return "timeout"
	case KindDependency:
		return "dependency"
	case KindConfiguration:
		return "configuration"
	default:
		return "unknown"
	}
}

// Error is the typed failure carried by every failed Result. It names the
// originating module and optionally wraps the original cause.
type Error struct {
	Kind   Kind
	Module string
	Msg    string
	Cause  error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s [%s]: %s: %v", e.Module, e.Kind, e.Msg, e.Cause)
	}
	return fmt.Sprintf("%s [%s]: %s", e.Module, e.Kind, e.Msg)
}

// Unwrap exposes the cause for errors.Is/errors.As chains.
func (e *Error) Unwrap() error { return e.Cause }

// Retriable reports whether the failure is transient. Validation,
// dependency, and configuration failures are deterministic signals and
// never retriable.
func (e *Error) Retriable() bool {
	switch e.Kind {
	case KindExecution, KindTimeout:
		return true
	default:
		return false
	}
}

// NewError builds a typed error without a cause.
func NewError(kind Kind, moduleName, msg string) *Error {
	return &Error{Kind: kind, Module: moduleName, Msg: msg}
}

// WrapError builds a typed error retaining the original cause.
func WrapError(kind Kind, moduleName, msg string, cause error) *Error {
	return &Error{Kind: kind, Module: moduleName, Msg: msg, Cause: cause}
}

// Classify normalizes an arbitrary error from a module's Run: a typed
// *Error passes through unchanged, anything else becomes an execution
// failure retaining the original cause.
func Classify(moduleName string, err error) *Error {
	var typed *Error
	if errors.As(err, &typed) {
		return typed
	}
	return WrapError(KindExecution, moduleName, err.Error(), err)
}

// IsKind reports whether err is a typed module error of the given kind.
func IsKind(err error, kind Kind) bool {
	var typed *Error
	return errors.As(err, &typed) && typed.Kind == kind
}
