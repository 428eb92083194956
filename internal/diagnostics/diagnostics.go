package diagnostics

import (
	"fmt"
	"sort"

	"github.com/funvibe/sable/internal/ast"
)

type ErrorCode string

const (
	// Parser
	ErrP001 ErrorCode = "P001" // unexpected token
	ErrP002 ErrorCode = "P002" // invalid assignment target
	ErrP003 ErrorCode = "P003" // expected indented block
	ErrP004 ErrorCode = "P004" // lexical error
	ErrP005 ErrorCode = "P005" // unexpected indent

	// Binder
	ErrB001 ErrorCode = "B001" // local used before any binding on all paths
	ErrB002 ErrorCode = "B002" // possibly unbound
	ErrB003 ErrorCode = "B003" // nonlocal without binding
	ErrB004 ErrorCode = "B004" // return outside function

	// Imports
	ErrI001 ErrorCode = "I001" // unresolved import
	ErrI002 ErrorCode = "I002" // unknown import symbol

	// Type evaluation / checking
	ErrT001 ErrorCode = "T001" // missing argument
	ErrT002 ErrorCode = "T002" // too many positional arguments
	ErrT003 ErrorCode = "T003" // unknown keyword argument
	ErrT004 ErrorCode = "T004" // argument type mismatch
	ErrT005 ErrorCode = "T005" // no matching overload
	ErrT006 ErrorCode = "T006" // unknown attribute
	ErrT007 ErrorCode = "T007" // not callable
	ErrT008 ErrorCode = "T008" // incompatible assignment
	ErrT009 ErrorCode = "T009" // incompatible return
	ErrT010 ErrorCode = "T010" // undefined name
	ErrT011 ErrorCode = "T011" // unsupported operand or subscript
)

type Severity int

const (
	SeverityError Severity = iota + 1
	SeverityWarning
	SeverityInformation
)

func (s Severity) String() string {
	switch s {
	case SeverityError:
		return "error"
	case SeverityWarning:
		return "warning"
	case SeverityInformation:
		return "information"
	}
	return "unknown"
}

// DiagnosticError is a user-code problem attached to a unit.
type DiagnosticError struct {
	Code     ErrorCode
	Severity Severity
	Message  string
	URI      string
	Span     ast.Span
}

func (e *DiagnosticError) Error() string {
	loc := e.Span.Start.String()
	if e.URI != "" {
		loc = e.URI + ":" + loc
	}
	return fmt.Sprintf("%s: %s [%s]: %s", loc, e.Severity, e.Code, e.Message)
}

func NewError(code ErrorCode, span ast.Span, msg string) *DiagnosticError {
	return &DiagnosticError{Code: code, Severity: SeverityError, Message: msg, Span: span}
}

func NewWarning(code ErrorCode, span ast.Span, msg string) *DiagnosticError {
	return &DiagnosticError{Code: code, Severity: SeverityWarning, Message: msg, Span: span}
}

// Errorf is NewError with a formatted message.
func Errorf(code ErrorCode, span ast.Span, format string, args ...any) *DiagnosticError {
	return NewError(code, span, fmt.Sprintf(format, args...))
}

// WithURI stamps every diagnostic lacking a URI.
func WithURI(diags []*DiagnosticError, uri string) []*DiagnosticError {
	for _, d := range diags {
		if d.URI == "" {
			d.URI = uri
		}
	}
	return diags
}

// Sort orders diagnostics by position, then code, for deterministic output.
func Sort(diags []*DiagnosticError) {
	sort.SliceStable(diags, func(i, j int) bool {
		a, b := diags[i], diags[j]
		if a.Span.Start.Offset != b.Span.Start.Offset {
			return a.Span.Start.Offset < b.Span.Start.Offset
		}
		if a.Code != b.Code {
			return a.Code < b.Code
		}
		return a.Message < b.Message
	})
}

// HasErrors reports whether any diagnostic has error severity.
func HasErrors(diags []*DiagnosticError) bool {
	for _, d := range diags {
		if d.Severity == SeverityError {
			return true
		}
	}
	return false
}
