package compiler

import (
	"errors"
	"fmt"
)

var (
	// ErrCancelled unwinds a running setup or loop when the engine stops it.
	// It is a control signal, never a user-visible failure.
	ErrCancelled = errors.New("execution cancelled")

	// ErrValidation is returned by Compile when static validation reported
	// at least one error diagnostic.
	ErrValidation = errors.New("validation failed")
)

// Severity of a Diagnostic.
type Severity int

const (
	SeverityError Severity = iota
	SeverityWarning
)

func (s Severity) String() string {
	if s == SeverityWarning {
		return "warning"
	}
	return "error"
}

func (s Severity) MarshalText() ([]byte, error) { return []byte(s.String()), nil }

func (s *Severity) UnmarshalText(b []byte) error {
	switch string(b) {
	case "error":
		*s = SeverityError
	case "warning":
		*s = SeverityWarning
	default:
		return fmt.Errorf("unknown severity %q", b)
	}
	return nil
}

// Stage records which pass produced a Diagnostic.
type Stage string

const (
	StageValidate Stage = "validate"
	StageCompile  Stage = "compile"
)

// Diagnostic is a single validation or compile finding.
type Diagnostic struct {
	Line     int      `json:"line"`
	Message  string   `json:"message"`
	Severity Severity `json:"severity"`
	Stage    Stage    `json:"stage"`
}

func (d Diagnostic) String() string {
	if d.Line > 0 {
		return fmt.Sprintf("line %d: %s: %s", d.Line, d.Severity, d.Message)
	}
	return fmt.Sprintf("%s: %s", d.Severity, d.Message)
}

// CompileError is a lex, parse or bind failure.
type CompileError struct {
	Line    int
	Msg     string
	Snippet string // trimmed source line, when known
}

func (e *CompileError) Error() string {
	if e.Snippet != "" {
		return fmt.Sprintf("line %d: %s\n  |> %s", e.Line, e.Msg, e.Snippet)
	}
	if e.Line > 0 {
		return fmt.Sprintf("line %d: %s", e.Line, e.Msg)
	}
	return e.Msg
}

func (e *CompileError) diagnostic() Diagnostic {
	return Diagnostic{Line: e.Line, Message: e.Msg, Severity: SeverityError, Stage: StageCompile}
}

// RuntimeError is a fault raised while executing setup or loop.
type RuntimeError struct {
	Line int
	Func string
	Err  error
}

func (e *RuntimeError) Error() string {
	return fmt.Sprintf("line %d in %s(): %v", e.Line, e.Func, e.Err)
}

func (e *RuntimeError) Unwrap() error { return e.Err }

// Errors splits diags into error and warning diagnostics.
func Errors(diags []Diagnostic) (errs, warnings []Diagnostic) {
	for _, d := range diags {
		if d.Severity == SeverityError {
			errs = append(errs, d)
		} else {
			warnings = append(warnings, d)
		}
	}
	return errs, warnings
}
