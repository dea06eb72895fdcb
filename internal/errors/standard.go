// Package errors provides standardized error values for failures that are
// not user diagnostics: broken implementation invariants detected by the
// validator, and API misuse by pipeline callers.
package errors

import (
	stderrors "errors"
	"fmt"
	"runtime"
)

// ErrorCategory represents different categories of errors
type ErrorCategory string

const (
	// CategoryInvariant marks an internal-consistency failure. It halts
	// processing of the affected unit.
	CategoryInvariant ErrorCategory = "INVARIANT"
	// CategoryUsage marks a caller contract violation (non-monotonic start
	// offsets, state reused across units, double resolution).
	CategoryUsage ErrorCategory = "USAGE"
)

// StandardError provides a consistent error format
type StandardError struct {
	Category ErrorCategory
	Code     string
	Message  string
	Context  map[string]interface{}
	Caller   string
	wrapped  error
}

// Error implements the error interface
func (e *StandardError) Error() string {
	return fmt.Sprintf("[%s:%s] %s (caller: %s)", e.Category, e.Code, e.Message, e.Caller)
}

// Unwrap exposes the sentinel the error was created from, if any.
func (e *StandardError) Unwrap() error { return e.wrapped }

func callerName(skip int) string {
	pc, _, _, ok := runtime.Caller(skip + 1)
	if !ok {
		return "unknown"
	}
	if fn := runtime.FuncForPC(pc); fn != nil {
		return fn.Name()
	}
	return "unknown"
}

// Invariant reports a broken structural invariant.
func Invariant(code, format string, args ...interface{}) *StandardError {
	return &StandardError{
		Category: CategoryInvariant,
		Code:     code,
		Message:  fmt.Sprintf(format, args...),
		Caller:   callerName(1),
	}
}

// Usage wraps a sentinel with call-site context. errors.Is(err, sentinel) holds.
func Usage(sentinel error, code string, context map[string]interface{}) *StandardError {
	return &StandardError{
		Category: CategoryUsage,
		Code:     code,
		Message:  sentinel.Error(),
		Context:  context,
		Caller:   callerName(1),
		wrapped:  sentinel,
	}
}

// IsInvariant reports whether err carries an internal-consistency failure.
func IsInvariant(err error) bool {
	var se *StandardError
	return stderrors.As(err, &se) && se.Category == CategoryInvariant
}
