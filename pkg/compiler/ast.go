package compiler

import (
	"fmt"
	"strings"
)

//  Expression nodes

// Expr is implemented by every node that produces a value.
type Expr interface {
	exprNode()
	String() string
}

// Literal is a constant from the source or a resolved dialect constant.
//
//	digitalWrite(13, HIGH);
//	             ^^  ^^^^  Literal{Value: 13}, Literal{Value: 1} after resolution
type Literal struct {
	Value Value
}

func (*Literal) exprNode()        {}
func (l *Literal) String() string { return l.Value.GoString() }

// InitializerList represents { expr, expr, ... }
type InitializerList struct {
	Elements []Expr
}

func (*InitializerList) exprNode() {}
func (l *InitializerList) String() string {
	return fmt.Sprintf("InitializerList(len=%d, %v)", len(l.Elements), l.Elements)
}

// Ident is a read of a named variable or dialect constant.
//
//	return x;
//	       ^  Ident{Name: "x"}
type Ident struct {
	Name string
	Line int
}

func (*Ident) exprNode()        {}
func (v *Ident) String() string { return v.Name }

// BinaryExpr represents a binary operation: Left Op Right.
//
//	x + 1
//	^ ^ ^
//	| | |
//	| | Right
//	| Op
//	Left
type BinaryExpr struct {
	Op    TokenType
	Left  Expr
	Right Expr
}

func (*BinaryExpr) exprNode() {}
func (b *BinaryExpr) String() string {
	return fmt.Sprintf("(%s %s %s)", b.Left, b.Op, b.Right)
}

// LogicalExpr is Left && Right or Left || Right; Right is evaluated only
// when needed.
type LogicalExpr struct {
	Op    TokenType
	Left  Expr
	Right Expr
}

func (*LogicalExpr) exprNode() {}
func (l *LogicalExpr) String() string {
	return fmt.Sprintf("(%s %s %s)", l.Left, l.Op, l.Right)
}

// UnaryExpr represents Op Right: -x, !x, ~x, and prefix ++x / --x.
type UnaryExpr struct {
	Op    TokenType
	Right Expr
}

func (*UnaryExpr) exprNode()        {}
func (u *UnaryExpr) String() string { return fmt.Sprintf("(%s %s)", u.Op, u.Right) }

// PostfixExpr represents Left++ or Left--
type PostfixExpr struct {
	Op   TokenType
	Left Expr
}

func (*PostfixExpr) exprNode()        {}
func (p *PostfixExpr) String() string { return fmt.Sprintf("(%s %s)", p.Left, p.Op) }

// TernaryExpr represents Cond ? Then : Else
type TernaryExpr struct {
	Cond Expr
	Then Expr
	Else Expr
}

func (*TernaryExpr) exprNode() {}
func (t *TernaryExpr) String() string {
	return fmt.Sprintf("(%s ? %s : %s)", t.Cond, t.Then, t.Else)
}

// AssignExpr represents Target Op Value. Op is ASSIGN or a compound operator.
type AssignExpr struct {
	Target Expr // *Ident or *IndexExpr
	Op     TokenType
	Value  Expr
}

func (*AssignExpr) exprNode() {}
func (a *AssignExpr) String() string {
	return fmt.Sprintf("Assign(%s %s %s)", a.Target, a.Op, a.Value)
}

// CallExpr represents name(args). Member calls such as Serial.println keep
// the dotted name.
type CallExpr struct {
	Name string
	Args []Expr
	Line int
}

func (*CallExpr) exprNode() {}
func (c *CallExpr) String() string {
	return fmt.Sprintf("Call(%s, args=%v)", c.Name, c.Args)
}

// CastExpr represents (type) Expr or type(Expr). Only the numeric kind
// matters: integer types truncate, float types widen.
type CastExpr struct {
	Type string
	Expr Expr
}

func (*CastExpr) exprNode()        {}
func (c *CastExpr) String() string { return fmt.Sprintf("Cast(%s, %s)", c.Type, c.Expr) }

// IndexExpr represents Left[Index]
type IndexExpr struct {
	Left  Expr
	Index Expr
}

func (*IndexExpr) exprNode()        {}
func (e *IndexExpr) String() string { return fmt.Sprintf("(%s[%s])", e.Left, e.Index) }

//  Statement nodes

// Stmt is implemented by every node that does not produce a value.
type Stmt interface {
	stmtNode()
	String() string
}

// Declarator is one name in a declaration: x, x = 1, a[3], a[] = {1, 2}.
type Declarator struct {
	Name  string
	Sizes []Expr // one per array dimension; nil entry for []
	Init  Expr
}

func (d Declarator) String() string {
	var sb strings.Builder
	sb.WriteString(d.Name)
	for _, s := range d.Sizes {
		if s == nil {
			sb.WriteString("[]")
		} else {
			fmt.Fprintf(&sb, "[%s]", s)
		}
	}
	if d.Init != nil {
		fmt.Fprintf(&sb, " = %s", d.Init)
	}
	return sb.String()
}

// VariableDecl represents  int a = 1, b;  with the type erased. A static
// local keeps its storage across calls of the enclosing function.
type VariableDecl struct {
	Const  bool
	Static bool
	Vars   []Declarator
	Line   int
}

func (*VariableDecl) stmtNode() {}
func (d *VariableDecl) String() string {
	kind := "var"
	if d.Const {
		kind = "const"
	}
	if d.Static {
		kind = "static " + kind
	}
	return fmt.Sprintf("VariableDecl(%s %v)", kind, d.Vars)
}

// ReturnStmt represents  return expr;
type ReturnStmt struct {
	Expr Expr // may be nil
	Line int
}

func (*ReturnStmt) stmtNode() {}
func (r *ReturnStmt) String() string {
	return fmt.Sprintf("ReturnStmt(%s)", r.Expr)
}

// BlockStmt represents { statement; ... }
type BlockStmt struct {
	Stmts []Stmt
}

func (*BlockStmt) stmtNode() {}
func (b *BlockStmt) String() string {
	return fmt.Sprintf("BlockStmt(len=%d)", len(b.Stmts))
}

// IfStmt represents if (cond) body [else elseBody]
type IfStmt struct {
	Condition Expr
	Body      Stmt
	ElseBody  Stmt // may be nil
	Line      int
}

func (*IfStmt) stmtNode() {}
func (i *IfStmt) String() string {
	if i.ElseBody != nil {
		return fmt.Sprintf("IfStmt(if %s then %s else %s)", i.Condition, i.Body, i.ElseBody)
	}
	return fmt.Sprintf("IfStmt(if %s then %s)", i.Condition, i.Body)
}

// WhileStmt represents while (cond) body, or do body while (cond) when
// PostTest is set.
type WhileStmt struct {
	Condition Expr
	Body      Stmt
	PostTest  bool
	Line      int
}

func (*WhileStmt) stmtNode() {}
func (w *WhileStmt) String() string {
	if w.PostTest {
		return fmt.Sprintf("DoWhileStmt(do %s while %s)", w.Body, w.Condition)
	}
	return fmt.Sprintf("WhileStmt(while %s do %s)", w.Condition, w.Body)
}

// ForStmt represents for (init; cond; post) body
type ForStmt struct {
	Init Stmt // may be nil
	Cond Expr // may be nil
	Post Expr // may be nil
	Body Stmt
	Line int
}

func (*ForStmt) stmtNode() {}
func (f *ForStmt) String() string {
	return fmt.Sprintf("ForStmt(init=%s, cond=%s, post=%s, body=%s)", f.Init, f.Cond, f.Post, f.Body)
}

// FunctionDecl represents  type name(params) { body }
type FunctionDecl struct {
	Name   string
	Params []string
	Body   *BlockStmt
	Void   bool
	Line   int
}

func (*FunctionDecl) stmtNode() {}
func (f *FunctionDecl) String() string {
	ret := "value"
	if f.Void {
		ret = "void"
	}
	return fmt.Sprintf("FunctionDecl(%s %s, params=%v, body=%s)", ret, f.Name, f.Params, f.Body)
}

// ExprStmt represents an expression evaluated for its side effects.
type ExprStmt struct {
	Expr Expr
	Line int
}

func (*ExprStmt) stmtNode() {}
func (e *ExprStmt) String() string {
	return fmt.Sprintf("ExprStmt(%s)", e.Expr)
}

// CaseClause is one label of a switch. Value is nil for default.
type CaseClause struct {
	Value Expr
	Body  []Stmt
}

// SwitchStmt represents switch (Target) { ... }. Clauses keep source order so
// execution falls through until a break.
type SwitchStmt struct {
	Target  Expr
	Clauses []CaseClause
	Line    int
}

func (*SwitchStmt) stmtNode() {}
func (s *SwitchStmt) String() string {
	return fmt.Sprintf("SwitchStmt(target=%s, clauses=%d)", s.Target, len(s.Clauses))
}

// BreakStmt represents break;
type BreakStmt struct{ Line int }

func (*BreakStmt) stmtNode()        {}
func (s *BreakStmt) String() string { return "BreakStmt" }

// ContinueStmt represents continue;
type ContinueStmt struct{ Line int }

func (*ContinueStmt) stmtNode()        {}
func (s *ContinueStmt) String() string { return "ContinueStmt" }

// stmtLine returns the source line a statement starts on, 0 if unknown.
func stmtLine(s Stmt) int {
	switch s := s.(type) {
	case *VariableDecl:
		return s.Line
	case *ReturnStmt:
		return s.Line
	case *IfStmt:
		return s.Line
	case *WhileStmt:
		return s.Line
	case *ForStmt:
		return s.Line
	case *FunctionDecl:
		return s.Line
	case *ExprStmt:
		return s.Line
	case *SwitchStmt:
		return s.Line
	case *BreakStmt:
		return s.Line
	case *ContinueStmt:
		return s.Line
	}
	return 0
}
