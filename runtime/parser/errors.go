package parser

import (
	"fmt"
	"strings"

	"github.com/opal-lang/weave/core/errors"
)

// ErrorType represents different categories of parsing errors
type ErrorType int

const (
	ErrorSyntax       ErrorType = iota // lexer errors and malformed literals
	ErrorUnexpected                    // a token that does not fit the grammar here
	ErrorMissing                       // a required element is absent
	ErrorUndefined                     // undeclared variable or unknown function
	ErrorRedefinition                  // two non-empty definitions of one template
	ErrorInvalid                       // structurally invalid construct
)

func (e ErrorType) String() string {
	switch e {
	case ErrorSyntax:
		return "syntax error"
	case ErrorUnexpected:
		return "unexpected token"
	case ErrorMissing:
		return "missing"
	case ErrorUndefined:
		return "undefined"
	case ErrorRedefinition:
		return "redefinition"
	case ErrorInvalid:
		return "invalid"
	default:
		return "error"
	}
}

// ParseError is a grammar violation with its source location.
type ParseError struct {
	Type        ErrorType
	Name        string // parse name of the top-level template
	Line        int    // 1-based line of the offending token
	Pos         int    // byte offset of the offending token
	Message     string
	Input       string
	Suggestions []string // Possible fixes
}

// Error renders "template: name:line: message".
func (e *ParseError) Error() string {
	return fmt.Sprintf("template: %s:%d: %s", e.Name, e.Line, e.Message)
}

// ErrorKind marks parse errors for errors.IsParse.
func (e *ParseError) ErrorKind() errors.Kind {
	return errors.KindParse
}

// Snippet renders the error with the offending source line and a caret, plus
// any suggestions, for terminal display.
func (e *ParseError) Snippet() string {
	var snippet strings.Builder
	fmt.Fprintf(&snippet, "%s: %s\n", e.Type, e.Message)

	if e.Input != "" && e.Line > 0 {
		lines := strings.Split(e.Input, "\n")
		if e.Line <= len(lines) {
			lineContent := lines[e.Line-1]
			column := e.column()

			fmt.Fprintf(&snippet, "  --> %s:%d:%d\n", e.Name, e.Line, column)
			snippet.WriteString("   |\n")
			fmt.Fprintf(&snippet, "%2d | %s\n", e.Line, lineContent)
			snippet.WriteString("   | ")
			if column > 0 && column <= len(lineContent)+1 {
				snippet.WriteString(strings.Repeat(" ", column-1) + "^")
			}
			snippet.WriteString("\n")
		}
	}

	if len(e.Suggestions) > 0 {
		fmt.Fprintf(&snippet, "   = help: did you mean %s?\n", quoteList(e.Suggestions))
	}
	return strings.TrimRight(snippet.String(), "\n")
}

// column returns the 1-based column of Pos on its line.
func (e *ParseError) column() int {
	if e.Pos < 0 || e.Pos > len(e.Input) {
		return 0
	}
	return e.Pos - strings.LastIndex(e.Input[:e.Pos], "\n")
}

func quoteList(names []string) string {
	quoted := make([]string, len(names))
	for i, n := range names {
		quoted[i] = "'" + n + "'"
	}
	switch len(quoted) {
	case 1:
		return quoted[0]
	case 2:
		return quoted[0] + " or " + quoted[1]
	}
	return strings.Join(quoted[:len(quoted)-1], ", ") + " or " + quoted[len(quoted)-1]
}
