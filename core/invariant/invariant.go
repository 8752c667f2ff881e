// Package invariant provides contract assertions for the template engine.
//
// Use Precondition/Postcondition to express function contracts, and Invariant
// for internal consistency checks. All functions panic on violation: these are
// programming errors, not template errors. The parse and execute entry points
// defer Recover so a violation reaches the caller as a KindInternal error
// instead of crashing the process.
package invariant

import (
	"fmt"
	"reflect"
	"runtime"

	"github.com/opal-lang/weave/core/errors"
)

// Violation is the panic value raised by a failed assertion.
type Violation struct {
	Kind    string // PRECONDITION, POSTCONDITION or INVARIANT
	Message string
	File    string
	Line    int
}

func (v *Violation) Error() string {
	msg := fmt.Sprintf("%s VIOLATION: %s", v.Kind, v.Message)
	if v.File != "" {
		msg += fmt.Sprintf("\n  at %s:%d", v.File, v.Line)
	}
	return msg
}

// Precondition checks an input contract at function entry.
// Panics with PRECONDITION VIOLATION if condition is false.
//
// Example:
//
//	func (l *Lexer) Init(input string) {
//	    invariant.Precondition(l.leftDelim != "", "left delimiter must not be empty")
//	    // ... work ...
//	}
func Precondition(condition bool, format string, args ...interface{}) {
	if !condition {
		fail("PRECONDITION", format, args...)
	}
}

// Postcondition checks an output contract before function return.
// Panics with POSTCONDITION VIOLATION if condition is false.
func Postcondition(condition bool, format string, args ...interface{}) {
	if !condition {
		fail("POSTCONDITION", format, args...)
	}
}

// Invariant checks an internal invariant during function execution.
// Panics with INVARIANT VIOLATION if condition is false.
//
// Example:
//
//	for l.state != nil && len(l.pending) == 0 {
//	    l.state = l.state(l)
//	    invariant.Invariant(len(l.pending) <= maxPending, "pending queue overflow")
//	}
func Invariant(condition bool, format string, args ...interface{}) {
	if !condition {
		fail("INVARIANT", format, args...)
	}
}

// NotNil panics if value is nil, including typed nils such as (*T)(nil).
func NotNil(value interface{}, name string) {
	if isNilValue(value) {
		fail("PRECONDITION", "%s must not be nil", name)
	}
}

// isNilValue checks if a value is nil or a typed nil using reflection
func isNilValue(value interface{}) bool {
	if value == nil {
		return true
	}

	v := reflect.ValueOf(value)
	switch v.Kind() {
	case reflect.Ptr, reflect.Interface, reflect.Slice, reflect.Map, reflect.Chan, reflect.Func:
		return v.IsNil()
	default:
		return false
	}
}

// Recover converts a Violation panic into a KindInternal error stored in
// *errp. Any other panic is re-raised. It must be called directly by defer.
//
// Example:
//
//	func Parse(text string) (tree *Tree, err error) {
//	    defer invariant.Recover(&err)
//	    // ... work that may assert ...
//	}
func Recover(errp *error) {
	r := recover()
	if r == nil {
		return
	}
	v, ok := r.(*Violation)
	if !ok {
		panic(r)
	}
	*errp = &errors.Error{
		Kind:    errors.KindInternal,
		Message: "internal error",
		Cause:   v,
	}
}

// fail panics with a Violation that records the caller's location.
func fail(kind, format string, args ...interface{}) {
	v := &Violation{
		Kind:    kind,
		Message: fmt.Sprintf(format, args...),
	}

	// Skip runtime.Callers, fail() and the assertion wrapper
	pc := make([]uintptr, 1)
	if runtime.Callers(3, pc) > 0 {
		frame, _ := runtime.CallersFrames(pc).Next()
		v.File = frame.File
		v.Line = frame.Line
	}

	panic(v)
}
