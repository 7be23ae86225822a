package compiler

import (
	"fmt"
	"strings"
)

// Macro is a function-like #define NAME(args) body.
type Macro struct {
	Args []string
	Body string
}

// Preprocess normalises sketch source before lexing. It keeps the line count
// intact so diagnostics point at the original lines:
//
//   - editor placeholders are stripped: ${1:x} becomes x, ${1} and $1 vanish;
//   - #include lines are elided, as are conditional and pragma directives;
//   - #define NAME VALUE becomes the constant binding "const NAME = VALUE;";
//   - function-like macros are expanded textually.
//
// String and character literals are never rewritten.
func Preprocess(src string) (string, error) {
	src = stripPlaceholders(src)

	macros := make(map[string]Macro)
	lines := strings.Split(src, "\n")
	var result strings.Builder

	for i := 0; i < len(lines); i++ {
		line := lines[i]
		trimmed := strings.TrimSpace(line)

		if !strings.HasPrefix(trimmed, "#") {
			result.WriteString(applyDefines(line, macros))
			if i < len(lines)-1 {
				result.WriteString("\n")
			}
			continue
		}

		// Directives may continue over several lines with a trailing '\'.
		start := i + 1
		extra := 0
		for strings.HasSuffix(trimmed, "\\") && i+1 < len(lines) {
			i++
			extra++
			trimmed = strings.TrimSuffix(trimmed, "\\") + " " + strings.TrimSpace(lines[i])
		}

		out, err := directive(trimmed, start, macros)
		if err != nil {
			return "", err
		}
		result.WriteString(out)
		result.WriteString(strings.Repeat("\n", extra))
		if i < len(lines)-1 {
			result.WriteString("\n")
		}
	}
	return result.String(), nil
}

// directive handles one preprocessor line and returns its replacement text.
func directive(text string, line int, macros map[string]Macro) (string, error) {
	body := strings.TrimSpace(strings.TrimPrefix(text, "#"))
	word, rest, _ := strings.Cut(body, " ")
	if i := strings.IndexAny(word, "\t("); i >= 0 {
		rest = word[i:] + " " + rest
		word = word[:i]
	}
	rest = strings.TrimSpace(rest)

	switch word {
	case "define":
		return define(rest, line, macros)
	case "undef":
		delete(macros, rest)
		return "", nil
	}
	// include, ifdef/ifndef/endif, pragma, ... have no effect on a single
	// simulated translation unit.
	return "", nil
}

func define(rest string, line int, macros map[string]Macro) (string, error) {
	if rest == "" {
		return "", &CompileError{Line: line, Msg: "#define without a name"}
	}

	// Name ends at whitespace or '('.
	nameEnd := 0
	for nameEnd < len(rest) {
		r := rest[nameEnd]
		if r == ' ' || r == '\t' || r == '(' {
			break
		}
		nameEnd++
	}
	name := rest[:nameEnd]
	rest = rest[nameEnd:]
	if name == "" || !isIdentStart(rune(name[0])) {
		return "", &CompileError{Line: line, Msg: fmt.Sprintf("invalid macro name %q", name)}
	}

	// A function-like macro has '(' immediately after the name.
	if len(rest) > 0 && rest[0] == '(' {
		closeParen := strings.Index(rest, ")")
		if closeParen == -1 {
			return "", &CompileError{Line: line, Msg: "unterminated macro parameter list"}
		}
		var args []string
		if argStr := rest[1:closeParen]; strings.TrimSpace(argStr) != "" {
			for _, arg := range strings.Split(argStr, ",") {
				args = append(args, strings.TrimSpace(arg))
			}
		}
		macros[name] = Macro{Args: args, Body: strings.TrimSpace(rest[closeParen+1:])}
		return "", nil
	}

	value := strings.TrimSpace(rest)
	value = strings.TrimSpace(strings.TrimSuffix(value, ";"))
	if value == "" {
		return "", nil
	}
	return fmt.Sprintf("const %s = %s;", name, applyDefines(value, macros)), nil
}

// stripPlaceholders removes snippet placeholders left by editor templates.
func stripPlaceholders(src string) string {
	if !strings.Contains(src, "$") {
		return src
	}
	var sb strings.Builder
	n := len(src)
	for i := 0; i < n; {
		switch c := src[i]; {
		case c == '"' || c == '\'':
			i = copyLiteral(&sb, src, i)
		case c == '$' && i+1 < n && src[i+1] == '{':
			end := strings.IndexByte(src[i:], '}')
			if end < 0 {
				sb.WriteByte(c)
				i++
				continue
			}
			inner := src[i+2 : i+end]
			if _, def, ok := strings.Cut(inner, ":"); ok {
				sb.WriteString(def)
			}
			i += end + 1
		case c == '$' && i+1 < n && src[i+1] >= '0' && src[i+1] <= '9':
			i++
			for i < n && src[i] >= '0' && src[i] <= '9' {
				i++
			}
		default:
			sb.WriteByte(c)
			i++
		}
	}
	return sb.String()
}

// copyLiteral copies the string or character literal starting at input[i]
// and returns the index just past it.
func copyLiteral(sb *strings.Builder, input string, i int) int {
	quote := input[i]
	n := len(input)
	sb.WriteByte(quote)
	i++
	for i < n {
		char := input[i]
		if char == '\n' {
			return i
		}
		sb.WriteByte(char)
		i++
		if char == '\\' {
			if i < n {
				sb.WriteByte(input[i])
				i++
			}
		} else if char == quote {
			break
		}
	}
	return i
}

// applyDefines expands function-like macros in input. Replacements happen on
// word boundaries only, never inside string/char literals or after "//".
func applyDefines(input string, defines map[string]Macro) string {
	if len(defines) == 0 {
		return input
	}

	var sb strings.Builder
	n := len(input)
	i := 0

	for i < n {
		if input[i] == '"' || input[i] == '\'' {
			i = copyLiteral(&sb, input, i)
			continue
		}
		if input[i] == '/' && i+1 < n && input[i+1] == '/' {
			sb.WriteString(input[i:])
			break
		}
		if !isIdentStart(rune(input[i])) {
			sb.WriteByte(input[i])
			i++
			continue
		}

		start := i
		for i < n && isIdentPart(rune(input[i])) {
			i++
		}
		word := input[start:i]
		macro, ok := defines[word]
		if !ok {
			sb.WriteString(word)
			continue
		}

		// Look ahead for '(' past blanks.
		j := i
		for j < n && (input[j] == ' ' || input[j] == '\t') {
			j++
		}
		if j >= n || input[j] != '(' {
			sb.WriteString(word)
			continue
		}
		j++ // consume '('
		var args []string
		var currentArg strings.Builder
		parenDepth := 1
		for j < n && parenDepth > 0 {
			switch input[j] {
			case '(':
				parenDepth++
				currentArg.WriteByte(input[j])
			case ')':
				parenDepth--
				if parenDepth > 0 {
					currentArg.WriteByte(input[j])
				}
			case ',':
				if parenDepth == 1 {
					args = append(args, strings.TrimSpace(currentArg.String()))
					currentArg.Reset()
				} else {
					currentArg.WriteByte(input[j])
				}
			default:
				currentArg.WriteByte(input[j])
			}
			j++
		}
		if parenDepth == 0 {
			if s := strings.TrimSpace(currentArg.String()); s != "" || len(args) > 0 {
				args = append(args, s)
			}
		}
		if parenDepth != 0 || len(args) != len(macro.Args) {
			sb.WriteString(word)
			continue
		}

		// Substitute all arguments in one pass so an argument's text is never
		// re-substituted by a later parameter name.
		argMap := make(map[string]Macro, len(macro.Args))
		for k, argName := range macro.Args {
			argMap[argName] = Macro{Body: args[k]}
		}
		body := substitute(macro.Body, argMap)

		// The macro itself is disabled while its expansion is rescanned.
		rest := make(map[string]Macro, len(defines)-1)
		for k, v := range defines {
			if k != word {
				rest[k] = v
			}
		}
		sb.WriteString(applyDefines(body, rest))
		i = j
	}
	return sb.String()
}

// substitute replaces whole identifiers that name a parameter with the
// argument text.
func substitute(body string, params map[string]Macro) string {
	var sb strings.Builder
	n := len(body)
	for i := 0; i < n; {
		if body[i] == '"' || body[i] == '\'' {
			i = copyLiteral(&sb, body, i)
			continue
		}
		if !isIdentStart(rune(body[i])) {
			sb.WriteByte(body[i])
			i++
			continue
		}
		start := i
		for i < n && isIdentPart(rune(body[i])) {
			i++
		}
		if p, ok := params[body[start:i]]; ok {
			sb.WriteString(p.Body)
		} else {
			sb.WriteString(body[start:i])
		}
	}
	return sb.String()
}

func isIdentStart(r rune) bool {
	return (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || r == '_'
}

func isIdentPart(r rune) bool {
	return isIdentStart(r) || (r >= '0' && r <= '9')
}
