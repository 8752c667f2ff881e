// Package funcs holds the function registry consulted by the parser (to
// reject undefined identifiers) and by the executor (to fetch call
// candidates), together with the built-in function library.
package funcs

import (
	"fmt"
	"reflect"
	"sort"
	"sync"
	"unicode"

	"github.com/opal-lang/weave/core/errors"
)

// FuncMap maps a function name to its implementation. A value is either a Go
// func or an []any overload set of funcs tried in order until one accepts the
// arguments.
type FuncMap map[string]any

// Lookup resolves function names to their overload sets.
type Lookup interface {
	// Func returns the overloads registered under name.
	Func(name string) ([]reflect.Value, bool)
	// HasFunc reports whether name is registered.
	HasFunc(name string) bool
	// Names lists every registered name in sorted order.
	Names() []string
}

// Registry is a lock-guarded Lookup that can grow over its lifetime.
type Registry struct {
	mu    sync.RWMutex
	funcs map[string][]reflect.Value
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{funcs: make(map[string][]reflect.Value)}
}

// Add validates m and merges it into the registry. A name already present is
// replaced. Nothing is added if any entry is invalid.
func (r *Registry) Add(m FuncMap) error {
	converted := make(map[string][]reflect.Value, len(m))
	for name, fn := range m {
		if !isIdentifier(name) {
			return errors.New(errors.KindInternal, "function name %q is not a valid identifier", name)
		}
		overloads, err := overloadSet(name, fn)
		if err != nil {
			return err
		}
		converted[name] = overloads
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	for name, overloads := range converted {
		r.funcs[name] = overloads
	}
	return nil
}

// Func implements Lookup.
func (r *Registry) Func(name string) ([]reflect.Value, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	fns, ok := r.funcs[name]
	return fns, ok
}

// HasFunc implements Lookup.
func (r *Registry) HasFunc(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.funcs[name]
	return ok
}

// Names implements Lookup.
func (r *Registry) Names() []string {
	r.mu.RLock()
	names := make([]string, 0, len(r.funcs))
	for name := range r.funcs {
		names = append(names, name)
	}
	r.mu.RUnlock()
	sort.Strings(names)
	return names
}

// Clone returns an independent registry with the same entries.
func (r *Registry) Clone() *Registry {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c := &Registry{funcs: make(map[string][]reflect.Value, len(r.funcs))}
	for name, fns := range r.funcs {
		c.funcs[name] = append([]reflect.Value(nil), fns...)
	}
	return c
}

func overloadSet(name string, fn any) ([]reflect.Value, error) {
	if set, ok := fn.([]any); ok {
		if len(set) == 0 {
			return nil, errors.New(errors.KindInternal, "function %s has an empty overload set", name)
		}
		out := make([]reflect.Value, 0, len(set))
		for i, f := range set {
			v := reflect.ValueOf(f)
			if v.Kind() != reflect.Func || v.IsNil() {
				return nil, errors.New(errors.KindInternal, "overload %d of %s is %T, not a function", i, name, f)
			}
			out = append(out, v)
		}
		return out, nil
	}
	v := reflect.ValueOf(fn)
	if v.Kind() != reflect.Func || v.IsNil() {
		return nil, errors.New(errors.KindInternal, "value for %s is %T, not a function", name, fn)
	}
	return []reflect.Value{v}, nil
}

func isIdentifier(name string) bool {
	if name == "" {
		return false
	}
	for i, r := range name {
		if r == '_' || unicode.IsLetter(r) {
			continue
		}
		if i > 0 && unicode.IsDigit(r) {
			continue
		}
		return false
	}
	return true
}

// Find looks name up in each lookup in order and returns the first hit.
func Find(name string, lookups ...Lookup) ([]reflect.Value, bool) {
	for _, l := range lookups {
		if l == nil {
			continue
		}
		if fns, ok := l.Func(name); ok {
			return fns, true
		}
	}
	return nil, false
}

// Has reports whether any lookup knows name.
func Has(name string, lookups ...Lookup) bool {
	for _, l := range lookups {
		if l != nil && l.HasFunc(name) {
			return true
		}
	}
	return false
}

// AllNames merges the names of every lookup, sorted and deduplicated.
func AllNames(lookups ...Lookup) []string {
	seen := make(map[string]struct{})
	var names []string
	for _, l := range lookups {
		if l == nil {
			continue
		}
		for _, n := range l.Names() {
			if _, ok := seen[n]; ok {
				continue
			}
			seen[n] = struct{}{}
			names = append(names, n)
		}
	}
	sort.Strings(names)
	return names
}

// Signature renders a func type the way overload failures report it,
// e.g. "(int, int) ([]int, error)".
func Signature(fn reflect.Value) string {
	t := fn.Type()
	s := fmt.Sprint(t)
	if len(s) > 4 && s[:4] == "func" {
		return s[4:]
	}
	return s
}
