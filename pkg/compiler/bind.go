package compiler

import (
	"fmt"
	"math"
	"strings"

	"gpiosim/pkg/board"
)

// dialectConstants are the sketch-level names every program can use. Board
// aliases (D0..D8, A0, LED_BUILTIN, ...) are added per board.
var dialectConstants = map[string]Value{
	"HIGH":         Int(1),
	"LOW":          Int(0),
	"INPUT":        Int(0),
	"OUTPUT":       Int(1),
	"INPUT_PULLUP": Int(2),
	"true":         Int(1),
	"false":        Int(0),
	"DEC":          Int(10),
	"HEX":          Int(16),
	"OCT":          Int(8),
	"BIN":          Int(2),
	"PI":           Float(math.Pi),
}

// constantsFor returns the dialect constants plus the aliases of reg.
func constantsFor(reg *board.Registry) map[string]Value {
	out := make(map[string]Value, len(dialectConstants)+16)
	for k, v := range dialectConstants {
		out[k] = v
	}
	for name, id := range reg.Aliases() {
		out[name] = Int(int64(id))
	}
	return out
}

// resolver checks names and arities and replaces dialect constants by
// literals. It walks the tree the same way for every node kind: children are
// resolved first and written back in place.
type resolver struct {
	lines    []string
	consts   map[string]Value
	funcs    map[string]*FunctionDecl
	globals  map[string]bool // name -> declared const
	scopes   []map[string]bool
	loops    int
	switches int
	line     int // line of the statement being resolved
}

func (r *resolver) errorf(line int, format string, args ...any) error {
	if line == 0 {
		line = r.line
	}
	snippet := ""
	if line > 0 && line <= len(r.lines) {
		snippet = strings.TrimSpace(r.lines[line-1])
	}
	return &CompileError{Line: line, Msg: fmt.Sprintf(format, args...), Snippet: snippet}
}

// lookup reports whether name is a variable in scope and whether it is const.
func (r *resolver) lookup(name string) (found, isConst bool) {
	for i := len(r.scopes) - 1; i >= 0; i-- {
		if c, ok := r.scopes[i][name]; ok {
			return true, c
		}
	}
	c, ok := r.globals[name]
	return ok, c
}

func (r *resolver) declare(name string, isConst bool, line int) error {
	scope := r.globals
	if len(r.scopes) > 0 {
		scope = r.scopes[len(r.scopes)-1]
	}
	if _, dup := scope[name]; dup {
		return r.errorf(line, "%s redeclared in this scope", name)
	}
	if len(r.scopes) == 0 {
		if _, isFunc := r.funcs[name]; isFunc {
			return r.errorf(line, "%s is already declared as a function", name)
		}
	}
	scope[name] = isConst
	return nil
}

func (r *resolver) push() { r.scopes = append(r.scopes, make(map[string]bool)) }
func (r *resolver) pop()  { r.scopes = r.scopes[:len(r.scopes)-1] }

// bind resolves a parsed program against the dialect and board.
func bind(stmts []Stmt, src string, reg *board.Registry) (*Program, error) {
	r := &resolver{
		lines:   strings.Split(src, "\n"),
		consts:  constantsFor(reg),
		funcs:   make(map[string]*FunctionDecl),
		globals: make(map[string]bool),
	}
	prog := &Program{funcs: r.funcs, stmts: stmts}

	for _, s := range stmts {
		if f, ok := s.(*FunctionDecl); ok {
			if prev, dup := r.funcs[f.Name]; dup {
				return nil, r.errorf(f.Line, "function %s redefined (first defined on line %d)", f.Name, prev.Line)
			}
			r.funcs[f.Name] = f
		}
	}
	for _, name := range []string{"setup", "loop"} {
		f, ok := r.funcs[name]
		if !ok {
			return nil, &CompileError{Msg: fmt.Sprintf("missing required function %s()", name)}
		}
		if len(f.Params) > 0 {
			return nil, r.errorf(f.Line, "%s() must not take parameters", name)
		}
	}

	for _, s := range stmts {
		if d, ok := s.(*VariableDecl); ok {
			if err := r.stmt(d); err != nil {
				return nil, err
			}
			prog.globals = append(prog.globals, d)
		}
	}
	for _, s := range stmts {
		if f, ok := s.(*FunctionDecl); ok {
			if err := r.function(f); err != nil {
				return nil, err
			}
		}
	}
	return prog, nil
}

func (r *resolver) function(f *FunctionDecl) error {
	r.push()
	defer r.pop()
	for _, p := range f.Params {
		if err := r.declare(p, false, f.Line); err != nil {
			return err
		}
	}
	return r.stmt(f.Body)
}

func (r *resolver) stmts(list []Stmt) error {
	for _, s := range list {
		if err := r.stmt(s); err != nil {
			return err
		}
	}
	return nil
}

func (r *resolver) stmt(s Stmt) error {
	if line := stmtLine(s); line > 0 {
		r.line = line
	}
	var err error
	switch s := s.(type) {
	case *VariableDecl:
		for i := range s.Vars {
			d := &s.Vars[i]
			for j, size := range d.Sizes {
				if size == nil {
					continue
				}
				if d.Sizes[j], err = r.expr(size); err != nil {
					return err
				}
			}
			if d.Init != nil {
				if d.Init, err = r.initializer(d.Init); err != nil {
					return err
				}
			}
			if _, isList := d.Init.(*InitializerList); isList && len(d.Sizes) == 0 {
				return r.errorf(s.Line, "initializer list for non-array %s", d.Name)
			}
			if err := r.declare(d.Name, s.Const, s.Line); err != nil {
				return err
			}
		}

	case *BlockStmt:
		r.push()
		defer r.pop()
		return r.stmts(s.Stmts)

	case *ExprStmt:
		s.Expr, err = r.expr(s.Expr)

	case *IfStmt:
		if s.Condition, err = r.expr(s.Condition); err != nil {
			return err
		}
		if err = r.stmt(s.Body); err != nil {
			return err
		}
		if s.ElseBody != nil {
			err = r.stmt(s.ElseBody)
		}

	case *WhileStmt:
		if s.Condition, err = r.expr(s.Condition); err != nil {
			return err
		}
		r.loops++
		err = r.stmt(s.Body)
		r.loops--

	case *ForStmt:
		r.push()
		defer r.pop()
		if s.Init != nil {
			if err = r.stmt(s.Init); err != nil {
				return err
			}
		}
		if s.Cond != nil {
			if s.Cond, err = r.expr(s.Cond); err != nil {
				return err
			}
		}
		if s.Post != nil {
			if s.Post, err = r.expr(s.Post); err != nil {
				return err
			}
		}
		r.loops++
		err = r.stmt(s.Body)
		r.loops--

	case *SwitchStmt:
		if s.Target, err = r.expr(s.Target); err != nil {
			return err
		}
		r.switches++
		defer func() { r.switches-- }()
		r.push()
		defer r.pop()
		for i := range s.Clauses {
			c := &s.Clauses[i]
			if c.Value != nil {
				if c.Value, err = r.expr(c.Value); err != nil {
					return err
				}
			}
			if err = r.stmts(c.Body); err != nil {
				return err
			}
		}

	case *BreakStmt:
		if r.loops == 0 && r.switches == 0 {
			return r.errorf(s.Line, "break outside loop or switch")
		}

	case *ContinueStmt:
		if r.loops == 0 {
			return r.errorf(s.Line, "continue outside loop")
		}

	case *ReturnStmt:
		if s.Expr != nil {
			s.Expr, err = r.expr(s.Expr)
		}

	default:
		return r.errorf(0, "unexpected statement %s", s)
	}
	return err
}

// initializer resolves a declaration initialiser, which may be a nested list.
func (r *resolver) initializer(e Expr) (Expr, error) {
	list, ok := e.(*InitializerList)
	if !ok {
		return r.expr(e)
	}
	for i, el := range list.Elements {
		v, err := r.initializer(el)
		if err != nil {
			return nil, err
		}
		list.Elements[i] = v
	}
	return list, nil
}

// assignable checks the target of =, compound assignment, ++ and --.
func (r *resolver) assignable(target Expr) error {
	switch t := target.(type) {
	case *Ident:
		found, isConst := r.lookup(t.Name)
		if !found {
			if _, ok := r.consts[t.Name]; ok {
				return r.errorf(t.Line, "cannot assign to constant %s", t.Name)
			}
			return r.errorf(t.Line, "undeclared identifier %s", t.Name)
		}
		if isConst {
			return r.errorf(t.Line, "cannot assign to const %s", t.Name)
		}
		return nil
	case *IndexExpr:
		base := t.Left
		for {
			inner, ok := base.(*IndexExpr)
			if !ok {
				break
			}
			base = inner.Left
		}
		if id, ok := base.(*Ident); ok {
			if found, isConst := r.lookup(id.Name); found && isConst {
				return r.errorf(id.Line, "cannot assign to element of const %s", id.Name)
			}
		}
		return nil
	}
	return r.errorf(0, "invalid assignment target %s", target)
}

func (r *resolver) expr(e Expr) (Expr, error) {
	var err error
	switch e := e.(type) {
	case *Literal:
		return e, nil

	case *Ident:
		if found, _ := r.lookup(e.Name); found {
			return e, nil
		}
		if v, ok := r.consts[e.Name]; ok {
			return &Literal{Value: v}, nil
		}
		if _, ok := r.funcs[e.Name]; ok {
			return nil, r.errorf(e.Line, "function %s used as a value", e.Name)
		}
		return nil, r.errorf(e.Line, "undeclared identifier %s", e.Name)

	case *BinaryExpr:
		if e.Left, err = r.expr(e.Left); err != nil {
			return nil, err
		}
		e.Right, err = r.expr(e.Right)

	case *LogicalExpr:
		if e.Left, err = r.expr(e.Left); err != nil {
			return nil, err
		}
		e.Right, err = r.expr(e.Right)

	case *UnaryExpr:
		if e.Op == PLUS_PLUS || e.Op == MINUS_MINUS {
			if err = r.assignable(e.Right); err != nil {
				return nil, err
			}
		}
		e.Right, err = r.expr(e.Right)

	case *PostfixExpr:
		if err = r.assignable(e.Left); err != nil {
			return nil, err
		}
		e.Left, err = r.expr(e.Left)

	case *TernaryExpr:
		if e.Cond, err = r.expr(e.Cond); err != nil {
			return nil, err
		}
		if e.Then, err = r.expr(e.Then); err != nil {
			return nil, err
		}
		e.Else, err = r.expr(e.Else)

	case *AssignExpr:
		if err = r.assignable(e.Target); err != nil {
			return nil, err
		}
		if e.Target, err = r.expr(e.Target); err != nil {
			return nil, err
		}
		e.Value, err = r.expr(e.Value)

	case *CastExpr:
		e.Expr, err = r.expr(e.Expr)

	case *IndexExpr:
		if e.Left, err = r.expr(e.Left); err != nil {
			return nil, err
		}
		e.Index, err = r.expr(e.Index)

	case *CallExpr:
		if err = r.call(e); err != nil {
			return nil, err
		}

	case *InitializerList:
		return nil, r.errorf(0, "initializer list is only allowed in a declaration")

	default:
		return nil, r.errorf(0, "unexpected expression %s", e)
	}
	if err != nil {
		return nil, err
	}
	return e, nil
}

func (r *resolver) call(c *CallExpr) error {
	for i, a := range c.Args {
		v, err := r.expr(a)
		if err != nil {
			return err
		}
		c.Args[i] = v
	}

	if f, ok := r.funcs[c.Name]; ok {
		if len(c.Args) != len(f.Params) {
			return r.errorf(c.Line, "%s() takes %d argument(s), got %d", c.Name, len(f.Params), len(c.Args))
		}
		return nil
	}
	if b, ok := builtins[c.Name]; ok {
		if len(c.Args) < b.minArgs || len(c.Args) > b.maxArgs {
			return r.errorf(c.Line, "%s() takes %s, got %d", c.Name, b.arity(), len(c.Args))
		}
		return nil
	}
	if found, _ := r.lookup(c.Name); found {
		return r.errorf(c.Line, "%s is not a function", c.Name)
	}
	if strings.Contains(c.Name, ".") {
		return r.errorf(c.Line, "unknown method %s", c.Name)
	}
	return r.errorf(c.Line, "undefined function %s", c.Name)
}
