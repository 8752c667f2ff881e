package main

import (
	"fmt"
	"io"
	"strings"

	"github.com/opal-lang/weave/core/errors"
	"github.com/opal-lang/weave/runtime/executor"
	"github.com/opal-lang/weave/runtime/parser"
)

// CLIError represents a formatted CLI error with context
type CLIError struct {
	Type    string // "usage", "data", "schema"
	Message string
	Details string // Additional context
	Hint    string // How to fix it
}

// Error implements the error interface
func (e *CLIError) Error() string {
	var b strings.Builder
	b.WriteString(e.Message)
	if e.Details != "" {
		b.WriteString("\n")
		b.WriteString(e.Details)
	}
	if e.Hint != "" {
		b.WriteString("\n")
		b.WriteString(e.Hint)
	}
	return b.String()
}

// FormatError writes err for the terminal. Parse errors show the offending
// source line.
func FormatError(w io.Writer, err error, useColor bool) {
	if err == nil {
		return
	}
	p := newPalette(useColor)

	var (
		pe  *parser.ParseError
		ee  *executor.ExecError
		cle *CLIError
	)
	switch {
	case errors.As(err, &pe):
		formatParseError(w, pe, p)
	case errors.As(err, &ee):
		_, _ = fmt.Fprintf(w, "%s%s\n", p.err.Sprint("Error: "), ee.Error())
		if ee.Cause != nil {
			_, _ = fmt.Fprintf(w, "  %s\n", p.detail.Sprintf("caused by: %v", ee.Cause))
		}
	case errors.As(err, &cle):
		formatCLIError(w, cle, p)
	default:
		_, _ = fmt.Fprintf(w, "%s%s\n", p.err.Sprint("Error: "), err.Error())
	}
}

func formatParseError(w io.Writer, err *parser.ParseError, p palette) {
	_, _ = fmt.Fprintf(w, "%s%s\n", p.err.Sprint("Error: "), err.Error())
	_, _ = fmt.Fprintln(w, p.detail.Sprint(err.Snippet()))
}

func formatCLIError(w io.Writer, err *CLIError, p palette) {
	_, _ = fmt.Fprintf(w, "%s%s\n", p.err.Sprint("Error: "), err.Message)

	if err.Details != "" {
		_, _ = fmt.Fprintf(w, "\n%s\n", err.Details)
	}

	if err.Hint != "" {
		_, _ = fmt.Fprintf(w, "%s%s\n", p.warn.Sprint("Hint: "), err.Hint)
	}
}
