package compiler

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
)

// maxCallDepth bounds user-function recursion.
const maxCallDepth = 256

// maxArrayLen bounds the element count of one array declaration, all
// dimensions together.
const maxArrayLen = 1 << 16

// Instance is a program bound to one capability surface, with its own
// globals. It is not safe for concurrent use: the engine runs at most one
// setup or loop at a time.
type Instance struct {
	prog    *Program
	caps    Capabilities
	globals map[string]*cell
	statics map[*VariableDecl]map[string]*cell // static locals, initialised on first use
	rng     *rand.Rand
	ready   bool // global initialisers have run
	depth   int
}

type cell struct {
	v       Value
	isConst bool
}

type flow int

const (
	flowNormal flow = iota
	flowBreak
	flowContinue
	flowReturn
)

// frame is one active function call.
type frame struct {
	fn     string
	scopes []map[string]*cell
	ret    Value
}

func (f *frame) push() { f.scopes = append(f.scopes, make(map[string]*cell)) }
func (f *frame) pop()  { f.scopes = f.scopes[:len(f.scopes)-1] }

func (in *Instance) seed(s int64) {
	in.rng = rand.New(rand.NewPCG(uint64(s), uint64(s)^0x9e3779b97f4a7c15))
}

// Setup runs the global initialisers (first time only) and then setup().
func (in *Instance) Setup(ctx context.Context) error {
	if err := in.prepare(ctx); err != nil {
		return err
	}
	_, err := in.call(ctx, "setup", nil)
	return err
}

// Loop runs one iteration of loop().
func (in *Instance) Loop(ctx context.Context) error {
	if err := in.prepare(ctx); err != nil {
		return err
	}
	_, err := in.call(ctx, "loop", nil)
	return err
}

func (in *Instance) prepare(ctx context.Context) error {
	if in.ready {
		return nil
	}
	fr := &frame{fn: "global"}
	for _, d := range in.prog.globals {
		if err := in.declare(ctx, fr, d, in.globals); err != nil {
			return err
		}
	}
	in.ready = true
	return nil
}

// Global returns the current value of a global variable.
func (in *Instance) Global(name string) (Value, bool) {
	c, ok := in.globals[name]
	if !ok {
		return Value{}, false
	}
	return c.v, true
}

func checkCancel(ctx context.Context) error {
	if ctx.Err() != nil {
		return ErrCancelled
	}
	return nil
}

// fail attaches a source location to err. Cancellation and errors that
// already carry a location pass through unchanged.
func (fr *frame) fail(line int, err error) error {
	if err == nil || errors.Is(err, ErrCancelled) {
		return err
	}
	var re *RuntimeError
	if errors.As(err, &re) {
		return err
	}
	return &RuntimeError{Line: line, Func: fr.fn, Err: err}
}

func (in *Instance) call(ctx context.Context, name string, args []Value) (Value, error) {
	if err := checkCancel(ctx); err != nil {
		return Value{}, err
	}
	f := in.prog.funcs[name]
	if in.depth >= maxCallDepth {
		return Value{}, fmt.Errorf("call stack exhausted calling %s()", name)
	}
	in.depth++
	defer func() { in.depth-- }()

	fr := &frame{fn: name}
	fr.push()
	for i, p := range f.Params {
		fr.scopes[0][p] = &cell{v: args[i]}
	}
	fl, err := in.exec(ctx, fr, f.Body)
	if err != nil {
		return Value{}, err
	}
	if fl == flowReturn {
		return fr.ret, nil
	}
	return Value{}, nil
}

func (in *Instance) execList(ctx context.Context, fr *frame, list []Stmt) (flow, error) {
	for _, s := range list {
		fl, err := in.exec(ctx, fr, s)
		if err != nil || fl != flowNormal {
			return fl, err
		}
	}
	return flowNormal, nil
}

// loopBody runs one iteration of a loop body and reports whether the loop
// must stop, passing on return.
func (in *Instance) loopBody(ctx context.Context, fr *frame, body Stmt) (stop bool, fl flow, err error) {
	if err := checkCancel(ctx); err != nil {
		return true, flowNormal, err
	}
	fl, err = in.exec(ctx, fr, body)
	switch {
	case err != nil:
		return true, fl, err
	case fl == flowBreak:
		return true, flowNormal, nil
	case fl == flowReturn:
		return true, fl, nil
	}
	return false, flowNormal, nil
}

func (in *Instance) exec(ctx context.Context, fr *frame, s Stmt) (flow, error) {
	switch s := s.(type) {
	case *BlockStmt:
		fr.push()
		defer fr.pop()
		return in.execList(ctx, fr, s.Stmts)

	case *VariableDecl:
		scope := fr.scopes[len(fr.scopes)-1]
		if s.Static {
			return flowNormal, in.declareStatic(ctx, fr, s, scope)
		}
		return flowNormal, in.declare(ctx, fr, s, scope)

	case *ExprStmt:
		_, err := in.eval(ctx, fr, s.Expr)
		return flowNormal, fr.fail(s.Line, err)

	case *IfStmt:
		cond, err := in.eval(ctx, fr, s.Condition)
		if err != nil {
			return flowNormal, fr.fail(s.Line, err)
		}
		if cond.Truthy() {
			return in.exec(ctx, fr, s.Body)
		}
		if s.ElseBody != nil {
			return in.exec(ctx, fr, s.ElseBody)
		}
		return flowNormal, nil

	case *WhileStmt:
		for first := true; ; first = false {
			if !(s.PostTest && first) {
				cond, err := in.eval(ctx, fr, s.Condition)
				if err != nil {
					return flowNormal, fr.fail(s.Line, err)
				}
				if !cond.Truthy() {
					return flowNormal, nil
				}
			}
			if stop, fl, err := in.loopBody(ctx, fr, s.Body); stop {
				return fl, err
			}
		}

	case *ForStmt:
		fr.push()
		defer fr.pop()
		if s.Init != nil {
			if _, err := in.exec(ctx, fr, s.Init); err != nil {
				return flowNormal, err
			}
		}
		for {
			if s.Cond != nil {
				cond, err := in.eval(ctx, fr, s.Cond)
				if err != nil {
					return flowNormal, fr.fail(s.Line, err)
				}
				if !cond.Truthy() {
					return flowNormal, nil
				}
			}
			if stop, fl, err := in.loopBody(ctx, fr, s.Body); stop {
				return fl, err
			}
			if s.Post != nil {
				if _, err := in.eval(ctx, fr, s.Post); err != nil {
					return flowNormal, fr.fail(s.Line, err)
				}
			}
		}

	case *SwitchStmt:
		return in.execSwitch(ctx, fr, s)

	case *BreakStmt:
		return flowBreak, nil

	case *ContinueStmt:
		return flowContinue, nil

	case *ReturnStmt:
		fr.ret = Value{}
		if s.Expr != nil {
			v, err := in.eval(ctx, fr, s.Expr)
			if err != nil {
				return flowNormal, fr.fail(s.Line, err)
			}
			fr.ret = v
		}
		return flowReturn, nil
	}
	return flowNormal, fmt.Errorf("unexpected statement %s", s)
}

func (in *Instance) execSwitch(ctx context.Context, fr *frame, s *SwitchStmt) (flow, error) {
	target, err := in.eval(ctx, fr, s.Target)
	if err != nil {
		return flowNormal, fr.fail(s.Line, err)
	}

	start := -1
	for i, c := range s.Clauses {
		if c.Value == nil {
			continue
		}
		v, err := in.eval(ctx, fr, c.Value)
		if err != nil {
			return flowNormal, fr.fail(s.Line, err)
		}
		eq, err := binaryOp(EQUALS, target, v)
		if err != nil {
			return flowNormal, fr.fail(s.Line, err)
		}
		if eq.Truthy() {
			start = i
			break
		}
	}
	if start < 0 {
		for i, c := range s.Clauses {
			if c.Value == nil {
				start = i
			}
		}
	}
	if start < 0 {
		return flowNormal, nil
	}

	fr.push()
	defer fr.pop()
	for _, c := range s.Clauses[start:] {
		fl, err := in.execList(ctx, fr, c.Body)
		if err != nil {
			return fl, err
		}
		switch fl {
		case flowBreak:
			return flowNormal, nil
		case flowContinue, flowReturn:
			return fl, nil
		}
	}
	return flowNormal, nil
}

// declare evaluates the declarators of d into scope.
func (in *Instance) declare(ctx context.Context, fr *frame, d *VariableDecl, scope map[string]*cell) error {
	for _, v := range d.Vars {
		val, err := in.initialValue(ctx, fr, v)
		if err != nil {
			return fr.fail(d.Line, err)
		}
		scope[v.Name] = &cell{v: val, isConst: d.Const}
	}
	return nil
}

// declareStatic binds the persistent cells of a static local into scope,
// running its initialisers on the first pass only.
func (in *Instance) declareStatic(ctx context.Context, fr *frame, d *VariableDecl, scope map[string]*cell) error {
	cells, ok := in.statics[d]
	if !ok {
		cells = make(map[string]*cell, len(d.Vars))
		if err := in.declare(ctx, fr, d, cells); err != nil {
			return err
		}
		if in.statics == nil {
			in.statics = make(map[*VariableDecl]map[string]*cell)
		}
		in.statics[d] = cells
	}
	for name, c := range cells {
		scope[name] = c
	}
	return nil
}

func (in *Instance) initialValue(ctx context.Context, fr *frame, d Declarator) (Value, error) {
	if len(d.Sizes) == 0 {
		if d.Init == nil {
			return Value{}, nil
		}
		return in.eval(ctx, fr, d.Init)
	}

	sizes := make([]int, len(d.Sizes))
	total := int64(1)
	for i, s := range d.Sizes {
		if s == nil {
			sizes[i] = -1
			continue
		}
		n, err := in.eval(ctx, fr, s)
		if err != nil {
			return Value{}, err
		}
		if n.Int() <= 0 || n.Int() > maxArrayLen {
			return Value{}, fmt.Errorf("invalid array size %d for %s", n.Int(), d.Name)
		}
		// Both factors are at most maxArrayLen, so the product cannot overflow.
		if total *= n.Int(); total > maxArrayLen {
			return Value{}, fmt.Errorf("array %s is too large (more than %d elements)", d.Name, maxArrayLen)
		}
		sizes[i] = int(n.Int())
	}
	return in.buildArray(ctx, fr, d.Name, sizes, d.Init)
}

// buildArray allocates an array of the given dimensions, filled from init.
// A size of -1 takes its length from the initialiser.
func (in *Instance) buildArray(ctx context.Context, fr *frame, name string, sizes []int, init Expr) (Value, error) {
	n := sizes[0]
	var elems []Expr
	switch e := init.(type) {
	case nil:
	case *InitializerList:
		elems = e.Elements
	default:
		v, err := in.eval(ctx, fr, e)
		if err != nil {
			return Value{}, err
		}
		if v.Kind() != KindString || len(sizes) != 1 {
			return Value{}, fmt.Errorf("array %s needs a {...} initializer", name)
		}
		// char buf[] = "text" holds the characters and a terminating NUL.
		text := []rune(v.s)
		if n < 0 {
			n = len(text) + 1
		}
		if len(text) > n {
			return Value{}, fmt.Errorf("initializer string too long for %s[%d]", name, n)
		}
		out := make([]Value, n)
		for i := range out {
			out[i] = Char(0)
			if i < len(text) {
				out[i] = Char(text[i])
			}
		}
		return ArrayOf(out), nil
	}

	if n < 0 {
		n = len(elems)
	}
	if len(elems) > n {
		return Value{}, fmt.Errorf("too many initializers for %s[%d]", name, n)
	}
	out := make([]Value, n)
	for i := range out {
		var el Expr
		if i < len(elems) {
			el = elems[i]
		}
		if len(sizes) > 1 {
			if sizes[1] < 0 {
				return Value{}, fmt.Errorf("array %s has an incomplete inner dimension", name)
			}
			sub, err := in.buildArray(ctx, fr, name, sizes[1:], el)
			if err != nil {
				return Value{}, err
			}
			out[i] = sub
			continue
		}
		if el == nil {
			continue
		}
		if _, nested := el.(*InitializerList); nested {
			return Value{}, fmt.Errorf("too many braces in initializer for %s", name)
		}
		v, err := in.eval(ctx, fr, el)
		if err != nil {
			return Value{}, err
		}
		out[i] = v
	}
	return ArrayOf(out), nil
}

func (in *Instance) lookup(fr *frame, name string) (*cell, error) {
	for i := len(fr.scopes) - 1; i >= 0; i-- {
		if c, ok := fr.scopes[i][name]; ok {
			return c, nil
		}
	}
	if c, ok := in.globals[name]; ok {
		return c, nil
	}
	return nil, fmt.Errorf("undeclared identifier %s", name)
}

func (in *Instance) eval(ctx context.Context, fr *frame, e Expr) (Value, error) {
	switch e := e.(type) {
	case *Literal:
		return e.Value, nil

	case *Ident:
		c, err := in.lookup(fr, e.Name)
		if err != nil {
			return Value{}, err
		}
		return c.v, nil

	case *BinaryExpr:
		l, err := in.eval(ctx, fr, e.Left)
		if err != nil {
			return Value{}, err
		}
		r, err := in.eval(ctx, fr, e.Right)
		if err != nil {
			return Value{}, err
		}
		return binaryOp(e.Op, l, r)

	case *LogicalExpr:
		l, err := in.eval(ctx, fr, e.Left)
		if err != nil {
			return Value{}, err
		}
		if e.Op == AND_LOGICAL && !l.Truthy() {
			return Bool(false), nil
		}
		if e.Op == OR_LOGICAL && l.Truthy() {
			return Bool(true), nil
		}
		r, err := in.eval(ctx, fr, e.Right)
		if err != nil {
			return Value{}, err
		}
		return Bool(r.Truthy()), nil

	case *UnaryExpr:
		if e.Op == PLUS_PLUS || e.Op == MINUS_MINUS {
			return in.incDec(ctx, fr, e.Right, e.Op, true)
		}
		v, err := in.eval(ctx, fr, e.Right)
		if err != nil {
			return Value{}, err
		}
		return unaryOp(e.Op, v)

	case *PostfixExpr:
		return in.incDec(ctx, fr, e.Left, e.Op, false)

	case *TernaryExpr:
		c, err := in.eval(ctx, fr, e.Cond)
		if err != nil {
			return Value{}, err
		}
		if c.Truthy() {
			return in.eval(ctx, fr, e.Then)
		}
		return in.eval(ctx, fr, e.Else)

	case *AssignExpr:
		v, err := in.eval(ctx, fr, e.Value)
		if err != nil {
			return Value{}, err
		}
		if e.Op != ASSIGN {
			old, err := in.eval(ctx, fr, e.Target)
			if err != nil {
				return Value{}, err
			}
			if v, err = binaryOp(compoundOps[e.Op], old, v); err != nil {
				return Value{}, err
			}
			v = keepChar(old, v)
		}
		return v, in.store(ctx, fr, e.Target, v)

	case *CastExpr:
		v, err := in.eval(ctx, fr, e.Expr)
		if err != nil {
			return Value{}, err
		}
		return cast(e.Type, v), nil

	case *IndexExpr:
		base, err := in.eval(ctx, fr, e.Left)
		if err != nil {
			return Value{}, err
		}
		idx, err := in.eval(ctx, fr, e.Index)
		if err != nil {
			return Value{}, err
		}
		return index(base, idx)

	case *CallExpr:
		return in.evalCall(ctx, fr, e)
	}
	return Value{}, fmt.Errorf("unexpected expression %s", e)
}

// keepChar keeps arithmetic on a char variable a char, so c++ on 'a' is 'b'.
func keepChar(old, v Value) Value {
	if old.Kind() == KindChar && v.Kind() == KindInt {
		return Char(rune(v.Int()))
	}
	return v
}

func (in *Instance) incDec(ctx context.Context, fr *frame, target Expr, op TokenType, prefix bool) (Value, error) {
	old, err := in.eval(ctx, fr, target)
	if err != nil {
		return Value{}, err
	}
	delta := PLUS
	if op == MINUS_MINUS {
		delta = MINUS
	}
	v, err := binaryOp(delta, old, Int(1))
	if err != nil {
		return Value{}, err
	}
	v = keepChar(old, v)
	if err := in.store(ctx, fr, target, v); err != nil {
		return Value{}, err
	}
	if prefix {
		return v, nil
	}
	return old, nil
}

func index(base, idx Value) (Value, error) {
	i := idx.Int()
	switch base.Kind() {
	case KindArray:
		elems := base.Elems()
		if i < 0 || i >= int64(len(elems)) {
			return Value{}, fmt.Errorf("index %d out of range [0, %d)", i, len(elems))
		}
		return elems[i], nil
	case KindString:
		runes := []rune(base.s)
		if i == int64(len(runes)) {
			return Char(0), nil
		}
		if i < 0 || i > int64(len(runes)) {
			return Value{}, fmt.Errorf("index %d out of range [0, %d]", i, len(runes))
		}
		return Char(runes[i]), nil
	}
	return Value{}, fmt.Errorf("cannot index a value of type %s", base.Kind())
}

func (in *Instance) store(ctx context.Context, fr *frame, target Expr, v Value) error {
	switch t := target.(type) {
	case *Ident:
		c, err := in.lookup(fr, t.Name)
		if err != nil {
			return err
		}
		if c.isConst {
			return fmt.Errorf("cannot assign to const %s", t.Name)
		}
		c.v = v
		return nil

	case *IndexExpr:
		base, err := in.eval(ctx, fr, t.Left)
		if err != nil {
			return err
		}
		idx, err := in.eval(ctx, fr, t.Index)
		if err != nil {
			return err
		}
		if base.Kind() != KindArray {
			return fmt.Errorf("cannot assign into a value of type %s", base.Kind())
		}
		elems := base.Elems()
		i := idx.Int()
		if i < 0 || i >= int64(len(elems)) {
			return fmt.Errorf("index %d out of range [0, %d)", i, len(elems))
		}
		elems[i] = v
		return nil
	}
	return fmt.Errorf("invalid assignment target %s", target)
}

func (in *Instance) evalCall(ctx context.Context, fr *frame, c *CallExpr) (Value, error) {
	args := make([]Value, len(c.Args))
	for i, a := range c.Args {
		v, err := in.eval(ctx, fr, a)
		if err != nil {
			return Value{}, err
		}
		args[i] = v
	}

	if _, ok := in.prog.funcs[c.Name]; ok {
		return in.call(ctx, c.Name, args)
	}
	b, ok := builtins[c.Name]
	if !ok {
		return Value{}, fmt.Errorf("undefined function %s", c.Name)
	}
	// Capability calls never run once the run has been cancelled.
	if err := checkCancel(ctx); err != nil {
		return Value{}, err
	}
	return b.call(in, ctx, args)
}
