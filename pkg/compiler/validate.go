package compiler

import (
	"fmt"
	"strconv"
	"strings"

	"gpiosim/pkg/board"
	"gpiosim/pkg/mathx"
)

// pinCalls take a pin as their first argument.
var pinCalls = map[string]bool{
	"pinMode":      true,
	"digitalWrite": true,
	"digitalRead":  true,
	"analogWrite":  true,
}

// Validate runs the static checks on preprocessed-or-raw source. It works on
// the token stream, so it reports useful findings for code that does not
// parse yet.
func Validate(src string, opts Options) []Diagnostic {
	opts = opts.withDefaults()
	text, err := Preprocess(src)
	if err != nil {
		return compileDiagnostics(err)
	}
	tokens, err := Lex(text)
	diags := validateTokens(tokens, opts.Board)
	if err != nil {
		diags = append(diags, compileDiagnostics(err)...)
	}
	return diags
}

func compileDiagnostics(err error) []Diagnostic {
	if ce, ok := err.(*CompileError); ok {
		return []Diagnostic{ce.diagnostic()}
	}
	return []Diagnostic{{Message: err.Error(), Severity: SeverityError, Stage: StageCompile}}
}

type validator struct {
	tokens     []Token
	reg        *board.Registry
	aliases    map[string]int
	diags      []Diagnostic
	configured map[string]bool // pins passed to pinMode so far
}

func (v *validator) report(line int, sev Severity, format string, args ...any) {
	v.diags = append(v.diags, Diagnostic{
		Line:     line,
		Message:  fmt.Sprintf(format, args...),
		Severity: sev,
		Stage:    StageValidate,
	})
}

func validateTokens(tokens []Token, reg *board.Registry) []Diagnostic {
	v := &validator{
		tokens:     tokens,
		reg:        reg,
		aliases:    reg.Aliases(),
		configured: make(map[string]bool),
	}
	defs := map[string][]int{}

	depth := 0
	for i := 0; i < len(tokens); i++ {
		t := tokens[i]
		switch t.Type {
		case LBRACE:
			depth++
		case RBRACE:
			if depth > 0 {
				depth--
			}
		case IDENTIFIER:
			if depth == 0 && (t.Lexeme == "setup" || t.Lexeme == "loop") && v.isDefinition(i) {
				defs[t.Lexeme] = append(defs[t.Lexeme], t.Line)
			}
			if v.at(i+1).Type == LPAREN {
				v.checkCall(i)
			}
		}
	}

	for _, name := range []string{"setup", "loop"} {
		lines := defs[name]
		switch {
		case len(lines) == 0:
			v.report(0, SeverityError, "missing required function %s()", name)
		case len(lines) > 1:
			for _, l := range lines[1:] {
				v.report(l, SeverityError, "duplicate definition of %s() (first defined on line %d)", name, lines[0])
			}
		}
	}
	return v.diags
}

func (v *validator) at(i int) Token {
	if i < 0 || i >= len(v.tokens) {
		return Token{Type: EOF}
	}
	return v.tokens[i]
}

// isDefinition reports whether the identifier at i starts a function body:
// name ( ... ) {.
func (v *validator) isDefinition(i int) bool {
	if v.at(i+1).Type != LPAREN {
		return false
	}
	end := v.closeParen(i + 1)
	return end > 0 && v.at(end+1).Type == LBRACE
}

// closeParen returns the index of the parenthesis matching the one at open,
// or -1.
func (v *validator) closeParen(open int) int {
	depth := 0
	for j := open; j < len(v.tokens); j++ {
		switch v.tokens[j].Type {
		case LPAREN:
			depth++
		case RPAREN:
			depth--
			if depth == 0 {
				return j
			}
		case LBRACE, RBRACE, SEMICOLON:
			return -1
		}
	}
	return -1
}

// args splits the argument tokens of the call whose '(' is at open.
func (v *validator) args(open int) [][]Token {
	end := v.closeParen(open)
	if end < 0 {
		return nil
	}
	var out [][]Token
	var cur []Token
	depth := 0
	for _, t := range v.tokens[open+1 : end] {
		switch t.Type {
		case LPAREN, LBRACKET:
			depth++
		case RPAREN, RBRACKET:
			depth--
		case COMMA:
			if depth == 0 {
				out = append(out, cur)
				cur = nil
				continue
			}
		}
		cur = append(cur, t)
	}
	if len(cur) > 0 || len(out) > 0 {
		out = append(out, cur)
	}
	return out
}

// literal reads an argument consisting of an optionally negated number.
func literal(arg []Token) (float64, bool) {
	neg := false
	if len(arg) == 2 && arg[0].Type == MINUS {
		neg, arg = true, arg[1:]
	}
	if len(arg) != 1 {
		return 0, false
	}
	var n float64
	switch arg[0].Type {
	case INTEGER:
		i, err := strconv.ParseInt(arg[0].Lexeme, 0, 64)
		if err != nil {
			return 0, false
		}
		n = float64(i)
	case FLOAT:
		f, err := strconv.ParseFloat(arg[0].Lexeme, 64)
		if err != nil {
			return 0, false
		}
		n = f
	default:
		return 0, false
	}
	if neg {
		n = -n
	}
	return n, true
}

func joined(arg []Token) string {
	parts := make([]string, len(arg))
	for i, t := range arg {
		parts[i] = t.Lexeme
	}
	return strings.Join(parts, "")
}

func (v *validator) checkCall(i int) {
	name := v.tokens[i].Lexeme
	line := v.tokens[i].Line
	switch {
	case name == "delay" || name == "delayMicroseconds":
		args := v.args(i + 1)
		if len(args) == 1 {
			if n, ok := literal(args[0]); ok && n < 0 {
				v.report(line, SeverityError, "%s() called with negative duration %s", name, joined(args[0]))
			}
		}
		return
	case !pinCalls[name]:
		return
	}
	// A prototype or definition of a function named like a builtin is not a call.
	if prev := v.at(i - 1); prev.Type == TYPE {
		return
	}

	args := v.args(i + 1)
	if len(args) == 0 || len(args[0]) == 0 {
		return
	}
	pin := args[0]
	key := joined(pin)
	// Only literal and alias pins are tracked; a variable may hold any pin.
	known := false
	if n, ok := literal(pin); ok {
		if n != float64(int64(n)) || !v.reg.Valid(int(n)) {
			v.report(line, SeverityError, "invalid pin %s in %s()", key, name)
			return
		}
		key, known = strconv.Itoa(int(n)), true
	} else if len(pin) == 1 && pin[0].Type == IDENTIFIER {
		if id, ok := v.aliases[pin[0].Lexeme]; ok {
			key, known = strconv.Itoa(id), true
		}
	}

	if name == "pinMode" {
		v.configured[key] = true
		return
	}
	if known && !v.configured[key] {
		v.report(line, SeverityWarning, "pin %s used in %s() before pinMode()", joined(pin), name)
	}
	if name == "analogWrite" && len(args) == 2 {
		if n, ok := literal(args[1]); ok && !mathx.Between(n, 0, 1023) {
			v.report(line, SeverityWarning, "analogWrite() duty %s outside 0..1023 will be clamped", joined(args[1]))
		}
	}
}
