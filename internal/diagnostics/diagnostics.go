// Package diagnostics defines the positioned, coded findings that the
// analysis layers produce and the surfaces (CLI, gRPC) render.
package diagnostics

import "fmt"

// Code identifies a diagnostic category. Codes are stable: they appear in
// baselines and machine-readable output, so they are never renumbered.
type Code string

const (
	// ErrV001 reports a checked composite member that lacks value
	// semantics.
	ErrV001 Code = "V001"

	// ErrS001 reports a snapshot document that failed structural
	// validation.
	ErrS001 Code = "S001"

	// ErrS002 reports a snapshot member referencing an undeclared type
	// name.
	ErrS002 Code = "S002"
)

// Pos is a source position inside a snapshot, Go file, or proto file.
// A zero Pos means "no position available".
type Pos struct {
	File   string
	Line   int
	Column int
}

// DiagnosticError is a single positioned finding.
type DiagnosticError struct {
	Code    Code
	Pos     Pos
	Message string
}

// NewError creates a positioned diagnostic.
func NewError(code Code, pos Pos, format string, args ...interface{}) *DiagnosticError {
	return &DiagnosticError{
		Code:    code,
		Pos:     pos,
		Message: fmt.Sprintf(format, args...),
	}
}

// Error renders the finding as "file:line:col: [CODE] message", omitting
// the position prefix when none was recorded.
func (e *DiagnosticError) Error() string {
	switch {
	case e.Pos.Line > 0 && e.Pos.File != "":
		return fmt.Sprintf("%s:%d:%d: [%s] %s", e.Pos.File, e.Pos.Line, e.Pos.Column, e.Code, e.Message)
	case e.Pos.Line > 0:
		return fmt.Sprintf("%d:%d: [%s] %s", e.Pos.Line, e.Pos.Column, e.Code, e.Message)
	default:
		return fmt.Sprintf("[%s] %s", e.Code, e.Message)
	}
}
