package executor

import (
	"fmt"
	"strings"

	"github.com/opal-lang/weave/core/errors"
	"github.com/opal-lang/weave/core/funcs"
)

// ExecError is returned when a parsed template fails against its data.
type ExecError struct {
	Name     string // name of the template that was executing
	Location string // "parseName:line:col" of the failing node, if known
	Context  string // source form of the failing node
	Message  string
	Cause    error // underlying failure (a function's error, a write error)
}

// Error renders the message with the node location and context, or with the
// template name alone when no node was current.
func (e *ExecError) Error() string {
	if e.Location == "" {
		return fmt.Sprintf("template: %s: %s", e.Name, e.Message)
	}
	return fmt.Sprintf("template: %s: executing %s at <%s>: %s", e.Location, e.Name, e.Context, e.Message)
}

// Unwrap allows error unwrapping
func (e *ExecError) Unwrap() error {
	return e.Cause
}

// ErrorKind reports KindExec.
func (e *ExecError) ErrorKind() errors.Kind {
	return errors.KindExec
}

// overloadError is one overload's reason for rejecting a call.
type overloadError struct {
	signature string
	err       error
}

func (e *overloadError) Error() string {
	return fmt.Sprintf("%s: %v", e.signature, e.err)
}

func (e *overloadError) Unwrap() error {
	return e.err
}

// overloadFormat renders collected overload failures as
// "error calling NAME:" with one line per attempted signature.
func overloadFormat(name string) func([]error) string {
	return func(es []error) string {
		var sb strings.Builder
		sb.WriteString("error calling ")
		sb.WriteString(name)
		sb.WriteString(":")
		for _, e := range es {
			sb.WriteString("\n")
			sb.WriteString(e.Error())
		}
		return sb.String()
	}
}

// hint returns a "did you mean" suffix for an unknown name, or "".
func hint(name string, candidates []string) string {
	suggestions := funcs.Suggest(name, candidates)
	if len(suggestions) == 0 {
		return ""
	}
	return fmt.Sprintf(" (did you mean %s?)", strings.Join(suggestions, ", "))
}
