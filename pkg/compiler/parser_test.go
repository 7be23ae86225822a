package compiler

import (
	"strings"
	"testing"
)

func parseSource(t *testing.T, src string) ([]Stmt, error) {
	t.Helper()
	tokens, err := Lex(src)
	if err != nil {
		t.Fatalf("Lex(%q): %v", src, err)
	}
	return Parse(tokens, src)
}

// TestParseExpressions checks precedence and associativity through the
// String form of the tree.
func TestParseExpressions(t *testing.T) {
	tests := []struct {
		name     string
		expr     string
		expected string
	}{
		{"Precedence", "a + b * c", "(a PLUS (b STAR c))"},
		{"Left Associative", "a - b - c", "((a MINUS b) MINUS c)"},
		{"Parentheses", "(a + b) * c", "((a PLUS b) STAR c)"},
		{"Shift Below Add", "1 << n + 1", "(1 SHL_OP (n PLUS 1))"},
		{"Comparison Below Bitwise Or", "a | b == c", "(a PIPE (b EQUALS c))"},
		{"Logical", "a && b || c", "((a AND_LOGICAL b) OR_LOGICAL c)"},
		{"Ternary", "a ? b : c ? d : e", "(a ? b : (c ? d : e))"},
		{"Assignment Right Associative", "a = b = 3", "Assign(a ASSIGN Assign(b ASSIGN 3))"},
		{"Compound", "x += 2", "Assign(x PLUS_ASSIGN 2)"},
		{"Unary", "-x + !y", "((MINUS x) PLUS (NOT y))"},
		{"Postfix", "i++", "(i PLUS_PLUS)"},
		{"Prefix", "--i", "(MINUS_MINUS i)"},
		{"Index", "a[i + 1]", "(a[(i PLUS 1)])"},
		{"Member Call", `Serial.println("hi", 2)`, `Call(Serial.println, args=["hi" 2])`},
		{"Call", "map(v, 0, 1023, 0, 255)", "Call(map, args=[v 0 1023 0 255])"},
		{"C Cast", "(float) x / 2", "(Cast(float, x) SLASH 2)"},
		{"Functional Cast", "int(3.7)", "Cast(int, 3.7)"},
		{"String Concatenation", `"a" "b"`, `"ab"`},
		{"Hex", "0xFF", "255"},
		{"Char", "'A'", "'A'"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			stmts, err := parseSource(t, "void f() { "+tt.expr+"; }")
			if err != nil {
				t.Fatalf("Parse error: %v", err)
			}
			body := stmts[0].(*FunctionDecl).Body
			if len(body.Stmts) != 1 {
				t.Fatalf("expected 1 statement, got %d", len(body.Stmts))
			}
			got := body.Stmts[0].(*ExprStmt).Expr.String()
			if got != tt.expected {
				t.Errorf("got %s, want %s", got, tt.expected)
			}
		})
	}
}

func TestParseDeclarations(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{"Erased Type", "unsigned long last = 0;", "VariableDecl(var [last = 0])"},
		{"Const Without Type", "const LED = 5;", "VariableDecl(const [LED = 5])"},
		{"Multiple", "int a = 1, b, c = a;", "VariableDecl(var [a = 1 b c = a])"},
		{"Array", "int pins[3] = {2, 4, 5};", "VariableDecl(var [pins[3] = InitializerList(len=3, [2 4 5])])"},
		{"Unsized Array", "char msg[] = \"hi\";", `VariableDecl(var [msg[] = "hi"])`},
		{"Two Dimensions", "int grid[2][2];", "VariableDecl(var [grid[2][2]])"},
		{"Qualifiers", "static volatile int count;", "VariableDecl(static var [count])"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			stmts, err := parseSource(t, tt.input)
			if err != nil {
				t.Fatalf("Parse error: %v", err)
			}
			if len(stmts) != 1 {
				t.Fatalf("expected 1 statement, got %d", len(stmts))
			}
			if got := stmts[0].String(); got != tt.expected {
				t.Errorf("got %s, want %s", got, tt.expected)
			}
		})
	}
}

func TestParseStatements(t *testing.T) {
	src := `
int add(int a, int b) { return a + b; }
void setup(void);
void setup() {
  for (int i = 0; i < 3; i++) { continue; }
  while (x) ;
  do { x--; } while (x > 0);
  switch (x) {
    case 1:
    case 2: y = 1; break;
    default: y = 0;
  }
  if (a) b(); else c();
}
`
	stmts, err := parseSource(t, src)
	if err != nil {
		t.Fatalf("Parse error: %v", err)
	}
	if len(stmts) != 2 {
		t.Fatalf("expected 2 functions (prototype dropped), got %d", len(stmts))
	}

	add := stmts[0].(*FunctionDecl)
	if add.Void || add.Name != "add" || strings.Join(add.Params, ",") != "a,b" {
		t.Errorf("unexpected add decl: %s", add)
	}

	setup := stmts[1].(*FunctionDecl)
	if !setup.Void || setup.Line != 4 {
		t.Errorf("setup: void=%v line=%d", setup.Void, setup.Line)
	}
	body := setup.Body.Stmts
	if len(body) != 5 {
		t.Fatalf("expected 5 statements in setup, got %d", len(body))
	}
	if _, ok := body[0].(*ForStmt); !ok {
		t.Errorf("stmt 0 = %T, want *ForStmt", body[0])
	}
	if w, ok := body[1].(*WhileStmt); !ok || w.PostTest {
		t.Errorf("stmt 1 = %v, want while", body[1])
	}
	if w, ok := body[2].(*WhileStmt); !ok || !w.PostTest {
		t.Errorf("stmt 2 = %v, want do-while", body[2])
	}
	sw, ok := body[3].(*SwitchStmt)
	if !ok {
		t.Fatalf("stmt 3 = %T, want *SwitchStmt", body[3])
	}
	if len(sw.Clauses) != 3 || len(sw.Clauses[0].Body) != 0 || sw.Clauses[2].Value != nil {
		t.Errorf("unexpected clauses: %+v", sw.Clauses)
	}
	if i, ok := body[4].(*IfStmt); !ok || i.ElseBody == nil {
		t.Errorf("stmt 4 = %v, want if/else", body[4])
	}
}

func TestParseErrors(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"Missing Semicolon", "void f() { x = 1 }", "expected SEMICOLON"},
		{"Statement At Top Level", "x = 1;", "outside of function body"},
		{"Void Return Value", "void f() { return 1; }", "void function cannot return a value"},
		{"Pointer Deref", "void f() { *p = 1; }", "pointers are not supported"},
		{"Not Assignable", "void f() { 3 = x; }", "assign"},
		{"Unsized Array Without Init", "int a[];", "needs a size or an initializer"},
		{"Const Without Init", "const int k;", "must be initialised"},
		{"Two Defaults", "void f() { switch (x) { default: break; default: break; } }", "multiple default"},
		{"Declaration As Body", "void f() { if (x) int y = 1; }", "declaration is not allowed"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := parseSource(t, tt.input)
			if err == nil {
				t.Fatalf("expected error containing %q", tt.want)
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Errorf("error %q does not contain %q", err, tt.want)
			}
			if !IsCompileError(err) {
				t.Errorf("error %T is not a *CompileError", err)
			}
		})
	}
}
