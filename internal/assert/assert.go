// Package assert reports internal invariant violations. A failure here is a
// bug in the engine, never a property of the analysed code, so it aborts the
// current operation instead of returning an error.
package assert

import (
	"fmt"
	"log/slog"
	"runtime/debug"
)

// InternalError is the panic value raised by Fail.
type InternalError struct {
	Message string
	Stack   string
}

func (e *InternalError) Error() string {
	return "internal error: " + e.Message
}

var logger = slog.New(slog.DiscardHandler)

// SetLogger installs the logger used to record failures before panicking.
func SetLogger(l *slog.Logger) {
	if l != nil {
		logger = l
	}
}

// Fail logs the violation with its stack and panics with *InternalError.
func Fail(format string, args ...any) {
	err := &InternalError{Message: fmt.Sprintf(format, args...), Stack: string(debug.Stack())}
	logger.Error("internal invariant violated", "message", err.Message, "stack", err.Stack)
	panic(err)
}

// That fails with the given message when cond is false.
func That(cond bool, format string, args ...any) {
	if !cond {
		Fail(format, args...)
	}
}

// Unreachable is called from the default branch of exhaustive variant switches.
func Unreachable(v any) {
	Fail("unhandled variant %T", v)
}

// Recover converts an *InternalError panic into an error, for host boundaries
// that prefer to report instead of crash. Other panics are re-raised.
func Recover(errp *error) {
	r := recover()
	if r == nil {
		return
	}
	if ie, ok := r.(*InternalError); ok {
		*errp = ie
		return
	}
	panic(r)
}
