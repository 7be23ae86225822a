package compiler

import (
	"fmt"
	"strconv"
	"strings"
)

// Parser consumes the flat token slice produced by the Lexer and builds an AST.
//
// Grammar (type keywords are erased, only constness is kept):
//
//	program     = (functionDecl | prototype | varDecl)* EOF
//	typeRun     = ("const" | qualifier | TYPE)+ ("*" | "&")*
//	functionDecl= typeRun IDENTIFIER "(" params ")" block
//	prototype   = typeRun IDENTIFIER "(" params ")" ";"
//	varDecl     = typeRun declarator ("," declarator)* ";"
//	declarator  = "*"* IDENTIFIER ("[" expression? "]")* ("=" (initList | assignment))?
//	statement   = varDecl | block | if | while | doWhile | for | switch
//	            | "break" ";" | "continue" ";" | "return" expression? ";" | expression ";" | ";"
//	expression  = assignment
//	assignment  = ternary (assignOp assignment)?
//	ternary     = logical_or ("?" expression ":" ternary)?
//	logical_or  = logical_and ("||" logical_and)*
//	logical_and = bitwise_or ("&&" bitwise_or)*
//	bitwise_or  = bitwise_xor ("|" bitwise_xor)*
//	bitwise_xor = bitwise_and ("^" bitwise_and)*
//	bitwise_and = equality ("&" equality)*
//	equality    = relational (("=="|"!=") relational)*
//	relational  = shift (("<"|">"|"<="|">=") shift)*
//	shift       = additive (("<<"|">>") additive)*
//	additive    = multiplicative (("+" | "-") multiplicative)*
//	multiplicative = unary (("*" | "/" | "%") unary)*
//	unary       = ("-" | "+" | "!" | "~" | "++" | "--") unary | "(" typeRun ")" unary | postfix
//	postfix     = primary ("[" expression "]" | "." IDENTIFIER "(" args ")" | "(" args ")" | "++" | "--")*
//	primary     = INTEGER | FLOAT | STRING+ | CHAR | IDENTIFIER | TYPE "(" expression ")" | "(" expression ")"
type Parser struct {
	tokens      []Token
	pos         int
	inVoid      bool // parsing the body of a void function
	sourceLines []string
}

func NewParser(tokens []Token, rawSource string) *Parser {
	return &Parser{tokens: tokens, sourceLines: strings.Split(rawSource, "\n")}
}

// fmtError builds a *CompileError carrying the source line where tok appears.
func (p *Parser) fmtError(tok Token, format string, args ...any) error {
	lineIdx := tok.Line - 1 // Lines are 1-based

	snippet := "<source unavailable>"
	if lineIdx >= 0 && lineIdx < len(p.sourceLines) {
		snippet = strings.TrimSpace(p.sourceLines[lineIdx])
	}
	return &CompileError{Line: tok.Line, Msg: fmt.Sprintf(format, args...), Snippet: snippet}
}

// peek returns the current token without consuming it.
func (p *Parser) peek() Token {
	if p.pos >= len(p.tokens) {
		return Token{Type: EOF}
	}
	return p.tokens[p.pos]
}

// peekAt returns the token at the given offset from the current position.
func (p *Parser) peekAt(offset int) Token {
	if p.pos+offset >= len(p.tokens) {
		return Token{Type: EOF}
	}
	return p.tokens[p.pos+offset]
}

// advance consumes and returns the current token.
func (p *Parser) advance() Token {
	tok := p.peek()
	if p.pos < len(p.tokens) {
		p.pos++
	}
	return tok
}

// expect consumes the current token if it matches tt, otherwise returns an error.
func (p *Parser) expect(tt TokenType) (Token, error) {
	tok := p.peek()
	if tok.Type != tt {
		return tok, p.fmtError(tok, "expected %s, got %s (%q)", tt, tok.Type, tok.Lexeme)
	}
	return p.advance(), nil
}

func isTypeStart(tt TokenType) bool {
	return tt == TYPE || tt == CONST || tt == QUALIFIER
}

// typeRun consumes a run of type keywords and qualifiers.
type typeRun struct {
	isConst  bool
	isStatic bool
	types    []string
}

func (r typeRun) isVoid() bool { return len(r.types) == 1 && r.types[0] == "void" }

func (p *Parser) parseTypeRun() (typeRun, error) {
	var run typeRun
	start := p.peek()
	for isTypeStart(p.peek().Type) {
		tok := p.advance()
		switch tok.Type {
		case CONST:
			run.isConst = true
		case QUALIFIER:
			run.isStatic = run.isStatic || tok.Lexeme == "static"
		case TYPE:
			run.types = append(run.types, tok.Lexeme)
		}
	}
	if !run.isConst && !run.isStatic && len(run.types) == 0 {
		return run, p.fmtError(start, "expected type, got %s (%q)", start.Type, start.Lexeme)
	}
	for p.peek().Type == STAR || p.peek().Type == AND {
		p.advance()
	}
	return run, nil
}

// parseExpression is the entry point for expression parsing.
func (p *Parser) parseExpression() (Expr, error) {
	return p.parseAssignment()
}

// parseAssignment handles = and the compound operators, right associative.
func (p *Parser) parseAssignment() (Expr, error) {
	start := p.peek()
	left, err := p.parseTernary()
	if err != nil {
		return nil, err
	}
	if !isAssignOp(p.peek().Type) {
		return left, nil
	}
	switch left.(type) {
	case *Ident, *IndexExpr:
	default:
		return nil, p.fmtError(start, "invalid assignment target %s", left)
	}
	op := p.advance().Type
	value, err := p.parseAssignment()
	if err != nil {
		return nil, err
	}
	return &AssignExpr{Target: left, Op: op, Value: value}, nil
}

// parseTernary handles cond ? a : b
func (p *Parser) parseTernary() (Expr, error) {
	cond, err := p.parseLogicalOr()
	if err != nil {
		return nil, err
	}
	if p.peek().Type != QUESTION {
		return cond, nil
	}
	p.advance()
	then, err := p.parseExpression()
	if err != nil {
		return nil, err
	}
	if _, err := p.expect(COLON); err != nil {
		return nil, err
	}
	els, err := p.parseTernary()
	if err != nil {
		return nil, err
	}
	return &TernaryExpr{Cond: cond, Then: then, Else: els}, nil
}

// parseLogicalOr handles ||
func (p *Parser) parseLogicalOr() (Expr, error) {
	expr, err := p.parseLogicalAnd()
	if err != nil {
		return nil, err
	}
	for p.peek().Type == OR_LOGICAL {
		op := p.advance().Type
		right, err := p.parseLogicalAnd()
		if err != nil {
			return nil, err
		}
		expr = &LogicalExpr{Op: op, Left: expr, Right: right}
	}
	return expr, nil
}

// parseLogicalAnd handles &&
func (p *Parser) parseLogicalAnd() (Expr, error) {
	expr, err := p.parseBinary(0)
	if err != nil {
		return nil, err
	}
	for p.peek().Type == AND_LOGICAL {
		op := p.advance().Type
		right, err := p.parseBinary(0)
		if err != nil {
			return nil, err
		}
		expr = &LogicalExpr{Op: op, Left: expr, Right: right}
	}
	return expr, nil
}

// binaryLevels lists the left-associative binary operators from lowest to
// highest precedence.
var binaryLevels = [][]TokenType{
	{PIPE},
	{CARET},
	{AND},
	{EQUALS, NOT_EQ},
	{LESS, GREATER, LESS_EQ, GREATER_EQ},
	{SHL_OP, SHR_OP},
	{PLUS, MINUS},
	{STAR, SLASH, PERCENT},
}

func (p *Parser) atLevel(level int) bool {
	tt := p.peek().Type
	for _, op := range binaryLevels[level] {
		if tt == op {
			return true
		}
	}
	return false
}

// parseBinary parses the precedence level given and everything above it.
func (p *Parser) parseBinary(level int) (Expr, error) {
	if level == len(binaryLevels) {
		return p.parseUnary()
	}
	expr, err := p.parseBinary(level + 1)
	if err != nil {
		return nil, err
	}
	for p.atLevel(level) {
		op := p.advance().Type
		right, err := p.parseBinary(level + 1)
		if err != nil {
			return nil, err
		}
		expr = &BinaryExpr{Op: op, Left: expr, Right: right}
	}
	return expr, nil
}

// parseUnary handles casts and the prefix operators.
func (p *Parser) parseUnary() (Expr, error) {
	tok := p.peek()

	// (type) expr
	if tok.Type == LPAREN && isTypeStart(p.peekAt(1).Type) {
		p.advance()
		run, err := p.parseTypeRun()
		if err != nil {
			return nil, err
		}
		if _, err := p.expect(RPAREN); err != nil {
			return nil, err
		}
		right, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		typ := "int"
		if len(run.types) > 0 {
			typ = run.types[len(run.types)-1]
		}
		return &CastExpr{Type: typ, Expr: right}, nil
	}

	switch tok.Type {
	case MINUS, PLUS, NOT, TILDE, PLUS_PLUS, MINUS_MINUS:
		op := p.advance().Type
		right, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		if op == PLUS_PLUS || op == MINUS_MINUS {
			if !isLValue(right) {
				return nil, p.fmtError(tok, "operand of %s is not assignable", tok.Lexeme)
			}
		}
		return &UnaryExpr{Op: op, Right: right}, nil
	case STAR, AND:
		return nil, p.fmtError(tok, "pointers are not supported")
	}
	return p.parsePostfix()
}

func isLValue(e Expr) bool {
	switch e.(type) {
	case *Ident, *IndexExpr:
		return true
	}
	return false
}

// parsePostfix handles array index [], member calls, function calls and
// postfix ++ / --.
func (p *Parser) parsePostfix() (Expr, error) {
	expr, err := p.parsePrimary()
	if err != nil {
		return nil, err
	}

	for {
		tok := p.peek()
		switch tok.Type {
		case LBRACKET:
			p.advance()
			index, err := p.parseExpression()
			if err != nil {
				return nil, err
			}
			if _, err := p.expect(RBRACKET); err != nil {
				return nil, err
			}
			expr = &IndexExpr{Left: expr, Index: index}

		case DOT:
			obj, ok := expr.(*Ident)
			if !ok {
				return nil, p.fmtError(tok, "member access is only supported on named objects")
			}
			p.advance()
			member, err := p.expect(IDENTIFIER)
			if err != nil {
				return nil, err
			}
			if p.peek().Type != LPAREN {
				return nil, p.fmtError(member, "%s.%s is not a function call", obj.Name, member.Lexeme)
			}
			p.advance()
			args, err := p.parseCallArgs()
			if err != nil {
				return nil, err
			}
			expr = &CallExpr{Name: obj.Name + "." + member.Lexeme, Args: args, Line: member.Line}

		case LPAREN:
			ref, ok := expr.(*Ident)
			if !ok {
				return nil, p.fmtError(tok, "expected function name before '('")
			}
			p.advance()
			args, err := p.parseCallArgs()
			if err != nil {
				return nil, err
			}
			expr = &CallExpr{Name: ref.Name, Args: args, Line: ref.Line}

		case PLUS_PLUS, MINUS_MINUS:
			if !isLValue(expr) {
				return nil, p.fmtError(tok, "operand of %s is not assignable", tok.Lexeme)
			}
			p.advance()
			expr = &PostfixExpr{Left: expr, Op: tok.Type}

		default:
			return expr, nil
		}
	}
}

func (p *Parser) parseCallArgs() ([]Expr, error) {
	var args []Expr
	if p.peek().Type != RPAREN {
		for {
			arg, err := p.parseExpression()
			if err != nil {
				return nil, err
			}
			args = append(args, arg)

			if p.peek().Type != COMMA {
				break
			}
			p.advance()
		}
	}

	if _, err := p.expect(RPAREN); err != nil {
		return nil, err
	}
	return args, nil
}

// parsePrimary handles literals, names, function-style casts and
// parenthesised expressions.
func (p *Parser) parsePrimary() (Expr, error) {
	tok := p.peek()
	switch tok.Type {
	case INTEGER:
		p.advance()
		val, err := strconv.ParseInt(tok.Lexeme, 0, 64)
		if err != nil {
			u, uerr := strconv.ParseUint(tok.Lexeme, 0, 64)
			if uerr != nil {
				return nil, p.fmtError(tok, "invalid integer literal %q", tok.Lexeme)
			}
			val = int64(u)
		}
		return &Literal{Value: Int(val)}, nil

	case FLOAT:
		p.advance()
		val, err := strconv.ParseFloat(tok.Lexeme, 64)
		if err != nil {
			return nil, p.fmtError(tok, "invalid float literal %q", tok.Lexeme)
		}
		return &Literal{Value: Float(val)}, nil

	case STRING:
		// Adjacent string literals are concatenated.
		var sb strings.Builder
		for p.peek().Type == STRING {
			sb.WriteString(p.advance().Lexeme)
		}
		return &Literal{Value: Str(sb.String())}, nil

	case CHAR:
		p.advance()
		return &Literal{Value: Char([]rune(tok.Lexeme)[0])}, nil

	case IDENTIFIER:
		p.advance()
		return &Ident{Name: tok.Lexeme, Line: tok.Line}, nil

	case TYPE:
		// int(x), float(x), String(x)
		if p.peekAt(1).Type != LPAREN {
			break
		}
		p.advance()
		p.advance()
		expr, err := p.parseExpression()
		if err != nil {
			return nil, err
		}
		if _, err := p.expect(RPAREN); err != nil {
			return nil, err
		}
		return &CastExpr{Type: tok.Lexeme, Expr: expr}, nil

	case LPAREN:
		p.advance()
		expr, err := p.parseExpression()
		if err != nil {
			return nil, err
		}
		if _, err := p.expect(RPAREN); err != nil {
			return nil, err
		}
		return expr, nil
	}
	return nil, p.fmtError(tok, "expected expression, got %s (%q)", tok.Type, tok.Lexeme)
}

func (p *Parser) parseInitializerList() (*InitializerList, error) {
	if _, err := p.expect(LBRACE); err != nil {
		return nil, err
	}

	var elements []Expr
	for p.peek().Type != RBRACE {
		var (
			expr Expr
			err  error
		)
		if p.peek().Type == LBRACE {
			expr, err = p.parseInitializerList()
		} else {
			expr, err = p.parseAssignment()
		}
		if err != nil {
			return nil, err
		}
		elements = append(elements, expr)

		if p.peek().Type != COMMA {
			break
		}
		p.advance() // a trailing comma is allowed
	}

	if _, err := p.expect(RBRACE); err != nil {
		return nil, err
	}
	return &InitializerList{Elements: elements}, nil
}

// parseVarDecl parses a declaration including its terminating ';'.
func (p *Parser) parseVarDecl() (*VariableDecl, error) {
	line := p.peek().Line
	run, err := p.parseTypeRun()
	if err != nil {
		return nil, err
	}
	decl := &VariableDecl{Const: run.isConst, Static: run.isStatic, Line: line}

	for {
		for p.peek().Type == STAR {
			p.advance()
		}
		nameTok, err := p.expect(IDENTIFIER)
		if err != nil {
			return nil, err
		}
		d := Declarator{Name: nameTok.Lexeme}

		for p.peek().Type == LBRACKET {
			p.advance()
			var size Expr
			if p.peek().Type != RBRACKET {
				if size, err = p.parseExpression(); err != nil {
					return nil, err
				}
			}
			if _, err := p.expect(RBRACKET); err != nil {
				return nil, err
			}
			d.Sizes = append(d.Sizes, size)
		}

		if p.peek().Type == ASSIGN {
			p.advance()
			if p.peek().Type == LBRACE {
				d.Init, err = p.parseInitializerList()
			} else {
				d.Init, err = p.parseAssignment()
			}
			if err != nil {
				return nil, err
			}
		}
		if d.Init == nil && len(d.Sizes) > 0 && d.Sizes[0] == nil {
			return nil, p.fmtError(nameTok, "array %s needs a size or an initializer", d.Name)
		}
		if d.Init == nil && run.isConst {
			return nil, p.fmtError(nameTok, "const %s must be initialised", d.Name)
		}
		decl.Vars = append(decl.Vars, d)

		if p.peek().Type != COMMA {
			break
		}
		p.advance()
	}

	if _, err := p.expect(SEMICOLON); err != nil {
		return nil, err
	}
	return decl, nil
}

// parseReturn parses  return expr? ;
// The leading RETURN token has already been consumed by parseStatement.
func (p *Parser) parseReturn(tok Token) (Stmt, error) {
	if p.peek().Type == SEMICOLON {
		p.advance()
		return &ReturnStmt{Line: tok.Line}, nil
	}
	if p.inVoid {
		return nil, p.fmtError(tok, "void function cannot return a value")
	}

	expr, err := p.parseExpression()
	if err != nil {
		return nil, err
	}
	if _, err := p.expect(SEMICOLON); err != nil {
		return nil, err
	}
	return &ReturnStmt{Expr: expr, Line: tok.Line}, nil
}

// parseBlock parses { stmt1; stmt2; ... }
// The leading LBRACE token has already been consumed.
func (p *Parser) parseBlock() (*BlockStmt, error) {
	var stmts []Stmt
	for p.peek().Type != RBRACE && p.peek().Type != EOF {
		stmt, err := p.parseStatement()
		if err != nil {
			return nil, err
		}
		if stmt != nil {
			stmts = append(stmts, stmt)
		}
	}
	if _, err := p.expect(RBRACE); err != nil {
		return nil, err
	}
	return &BlockStmt{Stmts: stmts}, nil
}

// parseCondition parses ( expr )
func (p *Parser) parseCondition() (Expr, error) {
	if _, err := p.expect(LPAREN); err != nil {
		return nil, err
	}
	cond, err := p.parseExpression()
	if err != nil {
		return nil, err
	}
	if _, err := p.expect(RPAREN); err != nil {
		return nil, err
	}
	return cond, nil
}

// parseIf parses if ( cond ) body [ else elseBody ]
func (p *Parser) parseIf(tok Token) (Stmt, error) {
	cond, err := p.parseCondition()
	if err != nil {
		return nil, err
	}
	body, err := p.parseBody()
	if err != nil {
		return nil, err
	}

	var elseBody Stmt
	if p.peek().Type == ELSE {
		p.advance()
		if elseBody, err = p.parseBody(); err != nil {
			return nil, err
		}
	}
	return &IfStmt{Condition: cond, Body: body, ElseBody: elseBody, Line: tok.Line}, nil
}

// parseBody parses the statement controlled by if/while/for. An empty
// statement becomes an empty block.
func (p *Parser) parseBody() (Stmt, error) {
	tok := p.peek()
	stmt, err := p.parseStatement()
	if err != nil {
		return nil, err
	}
	if _, ok := stmt.(*VariableDecl); ok {
		return nil, p.fmtError(tok, "declaration is not allowed here")
	}
	if stmt == nil {
		return &BlockStmt{}, nil
	}
	return stmt, nil
}

// parseWhile parses while ( cond ) body
func (p *Parser) parseWhile(tok Token) (Stmt, error) {
	cond, err := p.parseCondition()
	if err != nil {
		return nil, err
	}
	body, err := p.parseBody()
	if err != nil {
		return nil, err
	}
	return &WhileStmt{Condition: cond, Body: body, Line: tok.Line}, nil
}

// parseDoWhile parses do body while ( cond ) ;
func (p *Parser) parseDoWhile(tok Token) (Stmt, error) {
	body, err := p.parseBody()
	if err != nil {
		return nil, err
	}
	if _, err := p.expect(WHILE); err != nil {
		return nil, err
	}
	cond, err := p.parseCondition()
	if err != nil {
		return nil, err
	}
	if _, err := p.expect(SEMICOLON); err != nil {
		return nil, err
	}
	return &WhileStmt{Condition: cond, Body: body, PostTest: true, Line: tok.Line}, nil
}

// parseSwitchStmt parses switch ( expr ) { case val: ... default: ... }
func (p *Parser) parseSwitchStmt(tok Token) (Stmt, error) {
	target, err := p.parseCondition()
	if err != nil {
		return nil, err
	}
	if _, err := p.expect(LBRACE); err != nil {
		return nil, err
	}

	var clauses []CaseClause
	hasDefault := false

	for p.peek().Type != RBRACE && p.peek().Type != EOF {
		label := p.advance()
		var clause CaseClause
		switch label.Type {
		case CASE:
			if clause.Value, err = p.parseTernary(); err != nil {
				return nil, err
			}
		case DEFAULT:
			if hasDefault {
				return nil, p.fmtError(label, "multiple default labels in switch")
			}
			hasDefault = true
		default:
			return nil, p.fmtError(label, "expected case or default in switch, got %s", label.Type)
		}
		if _, err := p.expect(COLON); err != nil {
			return nil, err
		}

		for p.peek().Type != CASE && p.peek().Type != DEFAULT && p.peek().Type != RBRACE && p.peek().Type != EOF {
			stmt, err := p.parseStatement()
			if err != nil {
				return nil, err
			}
			if stmt != nil {
				clause.Body = append(clause.Body, stmt)
			}
		}
		clauses = append(clauses, clause)
	}

	if _, err := p.expect(RBRACE); err != nil {
		return nil, err
	}
	return &SwitchStmt{Target: target, Clauses: clauses, Line: tok.Line}, nil
}

// parseForStmt parses for ( init; cond; post ) body
func (p *Parser) parseForStmt(tok Token) (Stmt, error) {
	if _, err := p.expect(LPAREN); err != nil {
		return nil, err
	}

	var init Stmt
	switch {
	case p.peek().Type == SEMICOLON:
		p.advance()
	case isTypeStart(p.peek().Type):
		decl, err := p.parseVarDecl()
		if err != nil {
			return nil, err
		}
		init = decl
	default:
		line := p.peek().Line
		expr, err := p.parseExpression()
		if err != nil {
			return nil, err
		}
		if _, err := p.expect(SEMICOLON); err != nil {
			return nil, err
		}
		init = &ExprStmt{Expr: expr, Line: line}
	}

	var cond Expr
	if p.peek().Type != SEMICOLON {
		var err error
		if cond, err = p.parseExpression(); err != nil {
			return nil, err
		}
	}
	if _, err := p.expect(SEMICOLON); err != nil {
		return nil, err
	}

	var post Expr
	if p.peek().Type != RPAREN {
		var err error
		if post, err = p.parseExpression(); err != nil {
			return nil, err
		}
	}
	if _, err := p.expect(RPAREN); err != nil {
		return nil, err
	}

	body, err := p.parseBody()
	if err != nil {
		return nil, err
	}
	return &ForStmt{Init: init, Cond: cond, Post: post, Body: body, Line: tok.Line}, nil
}

// expectSemicolon is shared by break and continue.
func (p *Parser) expectSemicolon(s Stmt) (Stmt, error) {
	if _, err := p.expect(SEMICOLON); err != nil {
		return nil, err
	}
	return s, nil
}

// parseStatement dispatches to the correct sub-parser based on the leading
// token. A lone ';' yields a nil statement.
func (p *Parser) parseStatement() (Stmt, error) {
	tok := p.peek()
	switch tok.Type {
	case LBRACE:
		p.advance()
		return p.parseBlock()
	case IF:
		p.advance()
		return p.parseIf(tok)
	case WHILE:
		p.advance()
		return p.parseWhile(tok)
	case DO:
		p.advance()
		return p.parseDoWhile(tok)
	case FOR:
		p.advance()
		return p.parseForStmt(tok)
	case SWITCH:
		p.advance()
		return p.parseSwitchStmt(tok)
	case BREAK:
		p.advance()
		return p.expectSemicolon(&BreakStmt{Line: tok.Line})
	case CONTINUE:
		p.advance()
		return p.expectSemicolon(&ContinueStmt{Line: tok.Line})
	case RETURN:
		p.advance()
		return p.parseReturn(tok)
	case SEMICOLON:
		p.advance()
		return nil, nil
	case TYPE, CONST, QUALIFIER:
		// int(x); is an expression, everything else a declaration.
		if tok.Type != TYPE || p.peekAt(1).Type != LPAREN {
			return p.parseVarDecl()
		}
	case EOF:
		return nil, p.fmtError(tok, "unexpected end of input")
	}

	expr, err := p.parseExpression()
	if err != nil {
		return nil, err
	}
	if _, err := p.expect(SEMICOLON); err != nil {
		return nil, err
	}
	return &ExprStmt{Expr: expr, Line: tok.Line}, nil
}

// isFunctionStart reports whether the tokens at the current position begin a
// function definition or prototype: typeRun ("*")* IDENTIFIER "(".
func (p *Parser) isFunctionStart() bool {
	i := 0
	for isTypeStart(p.peekAt(i).Type) {
		i++
	}
	if i == 0 {
		return false
	}
	for p.peekAt(i).Type == STAR {
		i++
	}
	return p.peekAt(i).Type == IDENTIFIER && p.peekAt(i+1).Type == LPAREN
}

// parseFunctionDecl parses type name(params) { ... }. A prototype (no body)
// returns a nil statement.
func (p *Parser) parseFunctionDecl() (Stmt, error) {
	run, err := p.parseTypeRun()
	if err != nil {
		return nil, err
	}

	nameTok, err := p.expect(IDENTIFIER)
	if err != nil {
		return nil, err
	}
	if _, err := p.expect(LPAREN); err != nil {
		return nil, err
	}

	var params []string
	if p.peek().Type == TYPE && p.peek().Lexeme == "void" && p.peekAt(1).Type == RPAREN {
		p.advance()
	}
	for p.peek().Type != RPAREN {
		if _, err := p.parseTypeRun(); err != nil {
			return nil, err
		}
		paramName, err := p.expect(IDENTIFIER)
		if err != nil {
			return nil, err
		}
		for p.peek().Type == LBRACKET {
			p.advance()
			for p.peek().Type != RBRACKET && p.peek().Type != EOF {
				p.advance()
			}
			if _, err := p.expect(RBRACKET); err != nil {
				return nil, err
			}
		}
		params = append(params, paramName.Lexeme)

		if p.peek().Type != COMMA {
			break
		}
		p.advance()
	}
	if _, err := p.expect(RPAREN); err != nil {
		return nil, err
	}

	if p.peek().Type == SEMICOLON {
		p.advance()
		return nil, nil
	}
	if _, err := p.expect(LBRACE); err != nil {
		return nil, err
	}

	p.inVoid = run.isVoid()
	body, err := p.parseBlock()
	p.inVoid = false
	if err != nil {
		return nil, err
	}

	return &FunctionDecl{Name: nameTok.Lexeme, Params: params, Body: body, Void: run.isVoid(), Line: nameTok.Line}, nil
}

// Parse enforces that only declarations are allowed at the top level.
func Parse(tokens []Token, rawSource string) ([]Stmt, error) {
	p := NewParser(tokens, rawSource)
	var stmts []Stmt
	for p.peek().Type != EOF {
		if p.peek().Type == SEMICOLON {
			p.advance()
			continue
		}

		if p.isFunctionStart() {
			f, err := p.parseFunctionDecl()
			if err != nil {
				return nil, err
			}
			if f != nil {
				stmts = append(stmts, f)
			}
			continue
		}

		if isTypeStart(p.peek().Type) {
			v, err := p.parseVarDecl()
			if err != nil {
				return nil, err
			}
			stmts = append(stmts, v)
			continue
		}

		tok := p.peek()
		return nil, p.fmtError(tok, "executable statement %q found outside of function body", tok.Lexeme)
	}
	return stmts, nil
}
