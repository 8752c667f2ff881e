// Package errors classifies the failures produced by the template engine.
//
// There are three kinds: parse errors (bad template source), execution errors
// (a parsed template failed against its data) and internal errors (the engine's
// own bookkeeping broke). Callers switch on the kind rather than on message
// text.
package errors

import (
	stderrors "errors"
	"fmt"

	"github.com/hashicorp/go-multierror"
	"github.com/pkg/errors"
)

// Kind is the category of a failure.
type Kind int

const (
	KindParse    Kind = iota // malformed syntax, undefined names, bad definitions
	KindExec                 // run-time lookup, type or depth failures
	KindInternal             // tokenizer/parser bookkeeping; a bug, not a template problem
)

func (k Kind) String() string {
	switch k {
	case KindParse:
		return "parse error"
	case KindExec:
		return "execution error"
	case KindInternal:
		return "internal error"
	default:
		return "error"
	}
}

// Kinded is implemented by every error type the engine returns.
type Kinded interface {
	error
	ErrorKind() Kind
}

// Error is a plain kinded error with an optional cause.
type Error struct {
	Kind    Kind
	Message string
	Cause   error
}

// Error implements the error interface
func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

// Unwrap allows error unwrapping
func (e *Error) Unwrap() error {
	return e.Cause
}

// ErrorKind reports the category of e.
func (e *Error) ErrorKind() Kind {
	return e.Kind
}

// New creates a kinded error from a format string.
func New(kind Kind, format string, args ...interface{}) *Error {
	return &Error{
		Kind:    kind,
		Message: fmt.Sprintf(format, args...),
	}
}

// Internal creates a KindInternal error.
func Internal(format string, args ...interface{}) *Error {
	return New(KindInternal, format, args...)
}

// KindOf returns the kind of the first kinded error in err's chain.
func KindOf(err error) (Kind, bool) {
	var k Kinded
	if stderrors.As(err, &k) {
		return k.ErrorKind(), true
	}
	return 0, false
}

// IsParse reports whether err is a parse error.
func IsParse(err error) bool {
	k, ok := KindOf(err)
	return ok && k == KindParse
}

// IsExec reports whether err is an execution error.
func IsExec(err error) bool {
	k, ok := KindOf(err)
	return ok && k == KindExec
}

// IsInternal reports whether err is an internal error.
func IsInternal(err error) bool {
	k, ok := KindOf(err)
	return ok && k == KindInternal
}

// Errorf returns an unkinded error with a stack trace, for failures outside
// template parsing and execution (configuration, I/O).
func Errorf(format string, args ...interface{}) error {
	return errors.Errorf(format, args...)
}

// Wrapf adds a new error onto an existing chain of errors. If the error being
// wrapped is nil, nil is returned.
func Wrapf(err error, format string, args ...interface{}) error {
	return errors.Wrapf(err, format, args...)
}

// Append can be used to safely append an error onto an existing one. Either
// side may be nil, which makes it usable as a `reterr += err`.
func Append(reterr, err error) error {
	if reterr == nil {
		return err
	}
	if err == nil {
		return reterr
	}
	return multierror.Append(reterr, err)
}

// As is the standard library's errors.As, re-exported so callers need only
// this package.
func As(err error, target any) bool {
	return stderrors.As(err, target)
}

// String returns the message of err, or "" when err is nil.
func String(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
