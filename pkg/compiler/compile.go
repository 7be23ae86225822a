package compiler

import (
	"errors"
	"fmt"

	"gpiosim/pkg/board"
)

// Options configures Compile and Validate.
type Options struct {
	// Board supplies the valid pin set and aliases. Defaults to board.Default().
	Board *board.Registry
	// Seed initialises random(). Zero means 1.
	Seed int64
}

func (o Options) withDefaults() Options {
	if o.Board == nil {
		o.Board = board.Default()
	}
	if o.Seed == 0 {
		o.Seed = 1
	}
	return o
}

// Program is a compiled sketch. It holds no run state; Bind creates an
// Instance with its own globals.
type Program struct {
	Source string // preprocessed source

	stmts   []Stmt
	funcs   map[string]*FunctionDecl
	globals []*VariableDecl
	seed    int64
}

// Decls returns the top-level declarations after name resolution.
func (p *Program) Decls() []Stmt { return p.stmts }

// Bind attaches the program to caps. Every call returns an Instance with
// fresh globals and a freshly seeded random source.
func (p *Program) Bind(caps Capabilities) *Instance {
	in := &Instance{
		prog:    p,
		caps:    caps,
		globals: make(map[string]*cell, len(p.globals)),
	}
	in.seed(p.seed)
	return in
}

// Compile validates src and translates it into a Program. Diagnostics hold
// every finding, warnings included. When validation reports an error the
// returned error wraps ErrValidation; a lex, parse or bind failure is
// returned as a *CompileError and also appears in the diagnostics.
func Compile(src string, opts Options) (*Program, []Diagnostic, error) {
	opts = opts.withDefaults()

	text, err := Preprocess(src)
	if err != nil {
		return nil, compileDiagnostics(err), err
	}

	tokens, lexErr := Lex(text)
	diags := validateTokens(tokens, opts.Board)
	if errs, _ := Errors(diags); len(errs) > 0 {
		return nil, diags, fmt.Errorf("%w: %s", ErrValidation, errs[0].Message)
	}
	if lexErr != nil {
		return nil, append(diags, compileDiagnostics(lexErr)...), lexErr
	}

	stmts, err := Parse(tokens, text)
	if err != nil {
		return nil, append(diags, compileDiagnostics(err)...), err
	}
	prog, err := bind(stmts, text, opts.Board)
	if err != nil {
		return nil, append(diags, compileDiagnostics(err)...), err
	}
	prog.Source = text
	prog.seed = opts.Seed
	return prog, diags, nil
}

// IsCompileError reports whether err came from translation rather than
// static validation.
func IsCompileError(err error) bool {
	var ce *CompileError
	return errors.As(err, &ce)
}
