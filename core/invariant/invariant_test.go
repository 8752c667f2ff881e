package invariant_test

import (
	"fmt"
	"strings"
	"testing"

	"github.com/opal-lang/weave/core/errors"
	"github.com/opal-lang/weave/core/invariant"
)

// TestAssertionsPass verifies no assertion panics when its condition holds
func TestAssertionsPass(t *testing.T) {
	invariant.Precondition(true, "this should pass")
	invariant.Postcondition(2+2 == 4, "math works")
	invariant.Invariant(len("{{") == 2, "delimiter length")

	str := "hello"
	invariant.NotNil(&str, "ptr")
	invariant.NotNil([]int{1}, "slice")
}

// TestAssertionsFail verifies each assertion panics with its kind and message
func TestAssertionsFail(t *testing.T) {
	tests := []struct {
		name   string
		assert func()
		want   string
	}{
		{"precondition", func() { invariant.Precondition(false, "delims must not be empty") }, "PRECONDITION VIOLATION: delims must not be empty"},
		{"postcondition", func() { invariant.Postcondition(false, "tree must have root") }, "POSTCONDITION VIOLATION: tree must have root"},
		{"invariant", func() { invariant.Invariant(false, "queue has %d tokens", 9) }, "INVARIANT VIOLATION: queue has 9 tokens"},
		{"nil", func() { invariant.NotNil(nil, "tree") }, "PRECONDITION VIOLATION: tree must not be nil"},
		{"typed nil", func() { var p *int; invariant.NotNil(p, "ptr") }, "PRECONDITION VIOLATION: ptr must not be nil"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			defer func() {
				r := recover()
				if r == nil {
					t.Fatal("expected panic")
				}
				msg := fmt.Sprintf("%v", r)
				if !strings.Contains(msg, tt.want) {
					t.Errorf("expected %q in %q", tt.want, msg)
				}
				if !strings.Contains(msg, "invariant_test.go") {
					t.Errorf("expected caller location, got: %s", msg)
				}
			}()
			tt.assert()
		})
	}
}

func recovered(f func()) (err error) {
	defer invariant.Recover(&err)
	f()
	return nil
}

// TestRecoverConvertsViolation verifies violations surface as internal errors
func TestRecoverConvertsViolation(t *testing.T) {
	err := recovered(func() { invariant.Invariant(false, "lex queue is full") })
	if err == nil {
		t.Fatal("expected error")
	}
	if !errors.IsInternal(err) {
		t.Errorf("expected internal error, got %T: %v", err, err)
	}
	if !strings.Contains(err.Error(), "lex queue is full") {
		t.Errorf("expected violation message, got: %v", err)
	}

	if err := recovered(func() {}); err != nil {
		t.Errorf("expected nil, got %v", err)
	}
}

// TestRecoverRepanics verifies foreign panics are not swallowed
func TestRecoverRepanics(t *testing.T) {
	defer func() {
		if r := recover(); r != "boom" {
			t.Errorf("expected re-panic with boom, got %v", r)
		}
	}()
	_ = recovered(func() { panic("boom") })
}
