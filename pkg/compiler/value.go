package compiler

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Kind is the dynamic type of a Value.
type Kind uint8

const (
	KindInt Kind = iota
	KindFloat
	KindString
	KindChar
	KindArray
)

var kindNames = [...]string{
	KindInt:    "int",
	KindFloat:  "float",
	KindString: "string",
	KindChar:   "char",
	KindArray:  "array",
}

func (k Kind) String() string {
	if int(k) < len(kindNames) {
		return kindNames[k]
	}
	return fmt.Sprintf("Kind(%d)", int(k))
}

// Value is a dynamically typed sketch value. The zero Value is the integer 0.
type Value struct {
	kind Kind
	i    int64 // KindInt, KindChar
	f    float64
	s    string
	arr  *[]Value
}

func Int(i int64) Value     { return Value{kind: KindInt, i: i} }
func Float(f float64) Value { return Value{kind: KindFloat, f: f} }
func Str(s string) Value    { return Value{kind: KindString, s: s} }
func Char(r rune) Value     { return Value{kind: KindChar, i: int64(r)} }

// Bool maps Go booleans onto the dialect's 1 and 0.
func Bool(b bool) Value {
	if b {
		return Int(1)
	}
	return Int(0)
}

// ArrayOf wraps elems. Arrays have reference semantics like C arrays passed
// to functions.
func ArrayOf(elems []Value) Value { return Value{kind: KindArray, arr: &elems} }

func (v Value) Kind() Kind { return v.kind }

// IsNumeric reports whether v takes part in arithmetic.
func (v Value) IsNumeric() bool {
	return v.kind == KindInt || v.kind == KindFloat || v.kind == KindChar
}

// Int converts v to an integer, truncating floats.
func (v Value) Int() int64 {
	switch v.kind {
	case KindFloat:
		return int64(v.f)
	case KindString:
		n, _ := strconv.ParseInt(strings.TrimSpace(v.s), 10, 64)
		return n
	case KindArray:
		return 0
	}
	return v.i
}

// Float converts v to a float.
func (v Value) Float() float64 {
	switch v.kind {
	case KindFloat:
		return v.f
	case KindString:
		f, _ := strconv.ParseFloat(strings.TrimSpace(v.s), 64)
		return f
	case KindArray:
		return 0
	}
	return float64(v.i)
}

// Truthy is the condition value of v.
func (v Value) Truthy() bool {
	switch v.kind {
	case KindFloat:
		return v.f != 0
	case KindString:
		return v.s != ""
	case KindArray:
		return true
	}
	return v.i != 0
}

// Elems returns the backing slice of an array value.
func (v Value) Elems() []Value {
	if v.arr == nil {
		return nil
	}
	return *v.arr
}

// String is the text Serial.print writes for v.
func (v Value) String() string {
	switch v.kind {
	case KindFloat:
		return strconv.FormatFloat(v.f, 'f', 2, 64)
	case KindString:
		return v.s
	case KindChar:
		return string(rune(v.i))
	case KindArray:
		if s, ok := v.charString(); ok {
			return s
		}
		parts := make([]string, len(*v.arr))
		for i, e := range *v.arr {
			parts[i] = e.String()
		}
		return "{" + strings.Join(parts, ", ") + "}"
	}
	return strconv.FormatInt(v.i, 10)
}

// charString reads a char array as a NUL-terminated string.
func (v Value) charString() (string, bool) {
	elems := v.Elems()
	if len(elems) == 0 {
		return "", false
	}
	var sb strings.Builder
	for _, e := range elems {
		if e.kind != KindChar {
			return "", false
		}
		if e.i == 0 {
			break
		}
		sb.WriteRune(rune(e.i))
	}
	return sb.String(), true
}

// decay turns a char array into the string it holds.
func (v Value) decay() Value {
	if v.kind != KindArray {
		return v
	}
	if s, ok := v.charString(); ok {
		return Str(s)
	}
	return v
}

// GoString renders v as a source literal.
func (v Value) GoString() string {
	switch v.kind {
	case KindFloat:
		return strconv.FormatFloat(v.f, 'g', -1, 64)
	case KindString:
		return strconv.Quote(v.s)
	case KindChar:
		return strconv.QuoteRune(rune(v.i))
	case KindArray:
		return v.String()
	}
	return strconv.FormatInt(v.i, 10)
}

// Format renders v for Serial.print(v, fmt): an integer base (BIN, OCT, DEC,
// HEX) for integers, a number of decimals for floats.
func (v Value) Format(arg int64) string {
	if v.kind == KindFloat {
		if arg < 0 {
			arg = 0
		}
		return strconv.FormatFloat(v.f, 'f', int(arg), 64)
	}
	if !v.IsNumeric() {
		return v.String()
	}
	switch arg {
	case 2, 8, 16:
		// Negative numbers print as their 32-bit two's complement.
		return strings.ToUpper(strconv.FormatUint(uint64(uint32(v.Int())), int(arg)))
	}
	return strconv.FormatInt(v.Int(), 10)
}

var errDivZero = errors.New("division by zero")

func isComparison(op TokenType) bool {
	switch op {
	case EQUALS, NOT_EQ, LESS, GREATER, LESS_EQ, GREATER_EQ:
		return true
	}
	return false
}

// binaryOp applies a non-short-circuit binary operator.
func binaryOp(op TokenType, a, b Value) (Value, error) {
	a, b = a.decay(), b.decay()
	if a.kind == KindArray || b.kind == KindArray {
		return Value{}, fmt.Errorf("invalid operands to %s: %s and %s", op, a.kind, b.kind)
	}

	if a.kind == KindString || b.kind == KindString {
		switch {
		case op == PLUS:
			return Str(a.String() + b.String()), nil
		case isComparison(op) && a.kind == b.kind:
			return compare(op, strings.Compare(a.s, b.s)), nil
		case op == EQUALS:
			return Bool(false), nil
		case op == NOT_EQ:
			return Bool(true), nil
		}
		return Value{}, fmt.Errorf("invalid operands to %s: %s and %s", op, a.kind, b.kind)
	}

	if a.kind == KindFloat || b.kind == KindFloat {
		x, y := a.Float(), b.Float()
		switch op {
		case PLUS:
			return Float(x + y), nil
		case MINUS:
			return Float(x - y), nil
		case STAR:
			return Float(x * y), nil
		case SLASH:
			return Float(x / y), nil
		case PERCENT:
			if y == 0 {
				return Value{}, errDivZero
			}
			return Float(math.Mod(x, y)), nil
		}
		if isComparison(op) {
			switch {
			case x < y:
				return compare(op, -1), nil
			case x > y:
				return compare(op, 1), nil
			}
			return compare(op, 0), nil
		}
		// Bitwise operators on floats act on the truncated integers.
	}

	x, y := a.Int(), b.Int()
	switch op {
	case PLUS:
		return Int(x + y), nil
	case MINUS:
		return Int(x - y), nil
	case STAR:
		return Int(x * y), nil
	case SLASH:
		if y == 0 {
			return Value{}, errDivZero
		}
		return Int(x / y), nil
	case PERCENT:
		if y == 0 {
			return Value{}, errDivZero
		}
		return Int(x % y), nil
	case AND:
		return Int(x & y), nil
	case PIPE:
		return Int(x | y), nil
	case CARET:
		return Int(x ^ y), nil
	case SHL_OP, SHR_OP:
		if y < 0 || y > 63 {
			return Value{}, fmt.Errorf("shift count %d out of range", y)
		}
		if op == SHL_OP {
			return Int(x << uint(y)), nil
		}
		return Int(x >> uint(y)), nil
	}
	if isComparison(op) {
		switch {
		case x < y:
			return compare(op, -1), nil
		case x > y:
			return compare(op, 1), nil
		}
		return compare(op, 0), nil
	}
	return Value{}, fmt.Errorf("unsupported operator %s", op)
}

// compare turns a three-way comparison result into the operator's truth value.
func compare(op TokenType, c int) Value {
	switch op {
	case EQUALS:
		return Bool(c == 0)
	case NOT_EQ:
		return Bool(c != 0)
	case LESS:
		return Bool(c < 0)
	case GREATER:
		return Bool(c > 0)
	case LESS_EQ:
		return Bool(c <= 0)
	}
	return Bool(c >= 0)
}

func unaryOp(op TokenType, v Value) (Value, error) {
	switch op {
	case NOT:
		return Bool(!v.Truthy()), nil
	}
	if !v.IsNumeric() {
		return Value{}, fmt.Errorf("invalid operand to unary %s: %s", op, v.kind)
	}
	switch op {
	case MINUS:
		if v.kind == KindFloat {
			return Float(-v.f), nil
		}
		return Int(-v.Int()), nil
	case PLUS:
		if v.kind == KindChar {
			return Int(v.i), nil
		}
		return v, nil
	case TILDE:
		return Int(^v.Int()), nil
	}
	return Value{}, fmt.Errorf("unsupported unary operator %s", op)
}

// cast converts v for a cast to the named type keyword.
func cast(typ string, v Value) Value {
	switch typ {
	case "float", "double":
		return Float(v.Float())
	case "char":
		return Char(rune(v.Int()))
	case "String":
		return Str(v.String())
	case "bool", "boolean":
		return Bool(v.Truthy())
	case "byte", "uint8_t":
		return Int(int64(uint8(v.Int())))
	case "int8_t":
		return Int(int64(int8(v.Int())))
	case "int16_t", "short":
		return Int(int64(int16(v.Int())))
	case "uint16_t", "word":
		return Int(int64(uint16(v.Int())))
	case "uint32_t":
		return Int(int64(uint32(v.Int())))
	}
	return Int(v.Int())
}
