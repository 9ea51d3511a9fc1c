package token

import (
	"fmt"
	"strings"
	"unicode"
)

type Type int

const (
	Name Type = iota
	Number
	Op
	Newline
	Indent
	Dedent
	EOF
)

func (t Type) String() string {
	switch t {
	case Name:
		return "name"
	case Number:
		return "number"
	case Op:
		return "operator"
	case Newline:
		return "newline"
	case Indent:
		return "indent"
	case Dedent:
		return "dedent"
	case EOF:
		return "end of input"
	}
	return "unknown"
}

type Token struct {
	Value string
	Type  Type
	Line  int
}

func (t Token) String() string {
	switch t.Type {
	case Newline, Indent, Dedent, EOF:
		return t.Type.String()
	}
	return t.Value
}

// Is reports whether t is the operator or keyword v.
func (t Token) Is(v string) bool {
	return (t.Type == Op || t.Type == Name) && t.Value == v
}

var twoCharOps = []string{"->", "==", "!=", "<=", ">="}

const singleCharOps = "()[]:,.=+-*/%<>@"

// Error is a tokenizer failure at a source line.
type Error struct {
	Line int
	Msg  string
}

func (e *Error) Error() string {
	return fmt.Sprintf("line %d: %s", e.Line, e.Msg)
}

// Tokenize splits source text into tokens. Indentation changes at the start
// of a logical line produce Indent and Dedent tokens; blank lines and
// comments are skipped. Newlines inside brackets do not end a line.
func Tokenize(input string) ([]Token, error) {
	var tokens []Token
	indents := []int{0}
	depth := 0

	lines := strings.Split(strings.ReplaceAll(input, "\r\n", "\n"), "\n")
	for n, raw := range lines {
		line := n + 1
		text := stripComment(raw)
		if strings.TrimSpace(text) == "" {
			continue
		}

		if depth == 0 {
			width := 0
			for _, r := range text {
				if r == ' ' {
					width++
				} else if r == '\t' {
					width += 4
				} else {
					break
				}
			}
			top := indents[len(indents)-1]
			switch {
			case width > top:
				indents = append(indents, width)
				tokens = append(tokens, Token{"", Indent, line})
			case width < top:
				for width < indents[len(indents)-1] {
					indents = indents[:len(indents)-1]
					tokens = append(tokens, Token{"", Dedent, line})
				}
				if width != indents[len(indents)-1] {
					return nil, &Error{line, "unindent does not match any outer indentation level"}
				}
			}
		}

		runes := []rune(text)
		for i := 0; i < len(runes); i++ {
			r := runes[i]
			if unicode.IsSpace(r) {
				continue
			}

			if unicode.IsDigit(r) {
				start := i
				for i < len(runes) && (unicode.IsDigit(runes[i]) || runes[i] == '_') {
					i++
				}
				if i < len(runes) && (unicode.IsLetter(runes[i])) {
					return nil, &Error{line, fmt.Sprintf("invalid number literal %q", string(runes[start:i+1]))}
				}
				tokens = append(tokens, Token{strings.ReplaceAll(string(runes[start:i]), "_", ""), Number, line})
				i--
				continue
			}

			if r == '_' || unicode.IsLetter(r) {
				start := i
				for i < len(runes) && (runes[i] == '_' || unicode.IsLetter(runes[i]) || unicode.IsDigit(runes[i])) {
					i++
				}
				tokens = append(tokens, Token{string(runes[start:i]), Name, line})
				i--
				continue
			}

			if i+1 < len(runes) {
				pair := string(runes[i : i+2])
				matched := false
				for _, op := range twoCharOps {
					if pair == op {
						tokens = append(tokens, Token{pair, Op, line})
						i++
						matched = true
						break
					}
				}
				if matched {
					continue
				}
			}

			if strings.ContainsRune(singleCharOps, r) {
				switch r {
				case '(', '[':
					depth++
				case ')', ']':
					if depth == 0 {
						return nil, &Error{line, fmt.Sprintf("unmatched %q", r)}
					}
					depth--
				}
				tokens = append(tokens, Token{string(r), Op, line})
				continue
			}

			return nil, &Error{line, fmt.Sprintf("unexpected character %q", r)}
		}

		if depth == 0 {
			tokens = append(tokens, Token{"", Newline, line})
		}
	}

	last := len(lines)
	if depth > 0 {
		return nil, &Error{last, "unexpected end of input inside brackets"}
	}
	for len(indents) > 1 {
		indents = indents[:len(indents)-1]
		tokens = append(tokens, Token{"", Dedent, last})
	}
	tokens = append(tokens, Token{"", EOF, last})
	return tokens, nil
}

func stripComment(line string) string {
	if i := strings.IndexByte(line, '#'); i >= 0 {
		return line[:i]
	}
	return line
}
