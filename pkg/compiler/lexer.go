package compiler

import (
	"fmt"
	"unicode"
)

// typeKeywords are erased to TYPE tokens. The parser only needs to know that a
// declaration starts here; the dialect is dynamically typed.
var typeKeywords = map[string]bool{
	"int": true, "long": true, "short": true, "unsigned": true, "signed": true,
	"byte": true, "char": true, "float": true, "double": true, "bool": true,
	"boolean": true, "String": true, "void": true, "size_t": true, "word": true,
	"int8_t": true, "int16_t": true, "int32_t": true, "int64_t": true,
	"uint8_t": true, "uint16_t": true, "uint32_t": true, "uint64_t": true,
}

// keywords maps source text to its keyword TokenType.
var keywords = map[string]TokenType{
	"const":    CONST,
	"static":   QUALIFIER,
	"volatile": QUALIFIER,
	"extern":   QUALIFIER,
	"inline":   QUALIFIER,
	"if":       IF,
	"else":     ELSE,
	"while":    WHILE,
	"do":       DO,
	"for":      FOR,
	"return":   RETURN,
	"switch":   SWITCH,
	"case":     CASE,
	"default":  DEFAULT,
	"break":    BREAK,
	"continue": CONTINUE,
}

// Lexer holds all mutable state for a single scanning pass over src.
type Lexer struct {
	src  []rune
	pos  int // index of the next rune to consume
	line int // current 1-based source line
}

func newLexer(src string) *Lexer {
	return &Lexer{src: []rune(src), pos: 0, line: 1}
}

func (l *Lexer) errorf(line int, format string, args ...any) error {
	return &CompileError{Line: line, Msg: fmt.Sprintf(format, args...)}
}

// peek returns the rune at the current position without advancing.
func (l *Lexer) peek() rune {
	if l.pos >= len(l.src) {
		return 0
	}
	return l.src[l.pos]
}

// peek2 returns the rune one position ahead of the current position.
func (l *Lexer) peek2() rune {
	if l.pos+1 >= len(l.src) {
		return 0
	}
	return l.src[l.pos+1]
}

// advance consumes one rune and returns it.
func (l *Lexer) advance() rune {
	if l.pos >= len(l.src) {
		return 0
	}
	r := l.src[l.pos]
	l.pos++
	if r == '\n' {
		l.line++
	}
	return r
}

func (l *Lexer) skipWhitespace() {
	for l.pos < len(l.src) && unicode.IsSpace(l.peek()) {
		l.advance()
	}
}

// skipLineComment discards everything from the current position to end-of-line.
// The opening "//" must already have been consumed.
func (l *Lexer) skipLineComment() {
	for l.pos < len(l.src) && l.peek() != '\n' {
		l.advance()
	}
}

// skipBlockComment discards everything up to and including the closing "*/".
// The opening "/*" must already have been consumed.
func (l *Lexer) skipBlockComment() error {
	startLine := l.line
	for l.pos < len(l.src) {
		if l.peek() == '*' && l.peek2() == '/' {
			l.advance() // *
			l.advance() // /
			return nil
		}
		l.advance()
	}
	return l.errorf(startLine, "unterminated block comment")
}

// scanIdent collects a full identifier or keyword token.
// The first character (letter or '_') must still be at l.peek().
func (l *Lexer) scanIdent() Token {
	line := l.line
	start := l.pos
	for l.pos < len(l.src) {
		r := l.peek()
		if !unicode.IsLetter(r) && !unicode.IsDigit(r) && r != '_' {
			break
		}
		l.advance()
	}
	lexeme := string(l.src[start:l.pos])
	tt := IDENTIFIER
	if typeKeywords[lexeme] {
		tt = TYPE
	} else if kw, ok := keywords[lexeme]; ok {
		tt = kw
	}
	return Token{Type: tt, Lexeme: lexeme, Line: line}
}

func isHexDigit(r rune) bool {
	return unicode.IsDigit(r) || (r >= 'a' && r <= 'f') || (r >= 'A' && r <= 'F')
}

// scanNumber collects an integer or floating point literal. Integer suffixes
// (u, l, ul, ...) and a float f suffix are consumed and dropped from the
// lexeme. The first digit (or the '.' of ".5") must still be at l.peek().
func (l *Lexer) scanNumber() (Token, error) {
	line := l.line
	start := l.pos
	isFloat := false

	if l.peek() == '0' && (l.peek2() == 'x' || l.peek2() == 'X') {
		l.advance()
		l.advance()
		for l.pos < len(l.src) && isHexDigit(l.peek()) {
			l.advance()
		}
	} else if l.peek() == '0' && (l.peek2() == 'b' || l.peek2() == 'B') {
		l.advance()
		l.advance()
		for l.peek() == '0' || l.peek() == '1' {
			l.advance()
		}
	} else {
		for unicode.IsDigit(l.peek()) {
			l.advance()
		}
		if l.peek() == '.' {
			isFloat = true
			l.advance()
			for unicode.IsDigit(l.peek()) {
				l.advance()
			}
		}
		if l.peek() == 'e' || l.peek() == 'E' {
			next := l.peek2()
			if unicode.IsDigit(next) || next == '-' || next == '+' {
				isFloat = true
				l.advance()
				if l.peek() == '-' || l.peek() == '+' {
					l.advance()
				}
				for unicode.IsDigit(l.peek()) {
					l.advance()
				}
			}
		}
	}
	lexeme := string(l.src[start:l.pos])

	if isFloat {
		if l.peek() == 'f' || l.peek() == 'F' {
			l.advance()
		}
		return Token{Type: FLOAT, Lexeme: lexeme, Line: line}, nil
	}
	for l.peek() == 'u' || l.peek() == 'U' || l.peek() == 'l' || l.peek() == 'L' {
		l.advance()
	}
	if r := l.peek(); unicode.IsLetter(r) || r == '_' {
		return Token{}, l.errorf(line, "invalid suffix %q on number %s", r, lexeme)
	}
	return Token{Type: INTEGER, Lexeme: lexeme, Line: line}, nil
}

// scanEscape decodes the rune after a backslash. The backslash has been consumed.
func (l *Lexer) scanEscape(line int) (rune, error) {
	next := l.advance()
	switch next {
	case 'n':
		return '\n', nil
	case 'r':
		return '\r', nil
	case 't':
		return '\t', nil
	case '0':
		return 0, nil
	case '\\', '\'', '"':
		return next, nil
	}
	return 0, l.errorf(line, "unknown escape sequence \\%c", next)
}

// scanChar collects a character literal 'c'.
func (l *Lexer) scanChar() (Token, error) {
	line := l.line
	l.advance() // consume opening '

	r := l.peek()
	if r == '\'' {
		return Token{}, l.errorf(line, "empty character literal")
	}
	if r == '\n' || r == 0 {
		return Token{}, l.errorf(line, "unterminated character literal")
	}

	var val rune
	if r == '\\' {
		l.advance()
		var err error
		if val, err = l.scanEscape(line); err != nil {
			return Token{}, err
		}
	} else {
		val = l.advance()
	}

	if l.peek() != '\'' {
		return Token{}, l.errorf(line, "unterminated character literal")
	}
	l.advance() // consume closing '

	return Token{Type: CHAR, Lexeme: string(val), Line: line}, nil
}

// scanString collects a string literal "...".
func (l *Lexer) scanString() (Token, error) {
	line := l.line
	l.advance() // consume opening "
	var val []rune

	for l.pos < len(l.src) {
		r := l.peek()
		if r == '"' {
			break
		}
		if r == '\n' {
			return Token{}, l.errorf(line, "unterminated string literal")
		}
		if r == '\\' {
			l.advance()
			esc, err := l.scanEscape(line)
			if err != nil {
				return Token{}, err
			}
			val = append(val, esc)
			continue
		}
		val = append(val, r)
		l.advance()
	}

	if l.pos >= len(l.src) {
		return Token{}, l.errorf(line, "unterminated string literal")
	}
	l.advance() // consume closing "

	return Token{Type: STRING, Lexeme: string(val), Line: line}, nil
}

// op returns tok if the next rune is not '=' and withAssign (consuming the
// '=') otherwise.
func (l *Lexer) op(line int, tok TokenType, lexeme string, withAssign TokenType) Token {
	if l.peek() == '=' {
		l.advance()
		return Token{withAssign, lexeme + "=", line}
	}
	return Token{tok, lexeme, line}
}

// nextToken skips whitespace/comments and returns the next Token.
func (l *Lexer) nextToken() (Token, error) {
	for {
		l.skipWhitespace()
		if l.pos >= len(l.src) {
			return Token{Type: EOF, Lexeme: "", Line: l.line}, nil
		}
		if l.peek() == '/' && l.peek2() == '/' {
			l.advance()
			l.advance()
			l.skipLineComment()
			continue
		}
		if l.peek() == '/' && l.peek2() == '*' {
			l.advance()
			l.advance()
			if err := l.skipBlockComment(); err != nil {
				return Token{}, err
			}
			continue
		}
		break
	}

	ch := l.peek()
	line := l.line

	if unicode.IsLetter(ch) || ch == '_' {
		return l.scanIdent(), nil
	}
	if unicode.IsDigit(ch) || ch == '.' && unicode.IsDigit(l.peek2()) {
		return l.scanNumber()
	}
	if ch == '"' {
		return l.scanString()
	}
	if ch == '\'' {
		return l.scanChar()
	}

	l.advance() // consume the character before the switch
	switch ch {
	case '{':
		return Token{LBRACE, "{", line}, nil
	case '}':
		return Token{RBRACE, "}", line}, nil
	case '(':
		return Token{LPAREN, "(", line}, nil
	case ')':
		return Token{RPAREN, ")", line}, nil
	case '[':
		return Token{LBRACKET, "[", line}, nil
	case ']':
		return Token{RBRACKET, "]", line}, nil
	case '.':
		return Token{DOT, ".", line}, nil
	case ';':
		return Token{SEMICOLON, ";", line}, nil
	case ',':
		return Token{COMMA, ",", line}, nil
	case ':':
		return Token{COLON, ":", line}, nil
	case '?':
		return Token{QUESTION, "?", line}, nil

	case '+':
		if l.peek() == '+' {
			l.advance()
			return Token{PLUS_PLUS, "++", line}, nil
		}
		return l.op(line, PLUS, "+", PLUS_ASSIGN), nil
	case '-':
		if l.peek() == '-' {
			l.advance()
			return Token{MINUS_MINUS, "--", line}, nil
		}
		return l.op(line, MINUS, "-", MINUS_ASSIGN), nil
	case '*':
		return l.op(line, STAR, "*", STAR_ASSIGN), nil
	case '/':
		return l.op(line, SLASH, "/", SLASH_ASSIGN), nil
	case '%':
		return l.op(line, PERCENT, "%", PERCENT_ASSIGN), nil
	case '^':
		return l.op(line, CARET, "^", XOR_ASSIGN), nil
	case '&':
		if l.peek() == '&' {
			l.advance()
			return Token{AND_LOGICAL, "&&", line}, nil
		}
		return l.op(line, AND, "&", AND_ASSIGN), nil
	case '|':
		if l.peek() == '|' {
			l.advance()
			return Token{OR_LOGICAL, "||", line}, nil
		}
		return l.op(line, PIPE, "|", OR_ASSIGN), nil
	case '~':
		return Token{TILDE, "~", line}, nil
	case '!':
		return l.op(line, NOT, "!", NOT_EQ), nil
	case '<':
		if l.peek() == '<' {
			l.advance()
			return l.op(line, SHL_OP, "<<", SHL_ASSIGN), nil
		}
		return l.op(line, LESS, "<", LESS_EQ), nil
	case '>':
		if l.peek() == '>' {
			l.advance()
			return l.op(line, SHR_OP, ">>", SHR_ASSIGN), nil
		}
		return l.op(line, GREATER, ">", GREATER_EQ), nil
	case '=':
		return l.op(line, ASSIGN, "=", EQUALS), nil
	default:
		return Token{}, l.errorf(line, "unexpected character %q", ch)
	}
}

// Lex tokenises src and returns all tokens including the final EOF token.
// On the first illegal character or unterminated literal it returns the
// tokens scanned so far together with a *CompileError.
func Lex(src string) ([]Token, error) {
	l := newLexer(src)
	var tokens []Token
	for {
		tok, err := l.nextToken()
		if err != nil {
			return tokens, err
		}
		tokens = append(tokens, tok)
		if tok.Type == EOF {
			return tokens, nil
		}
	}
}
