package funcs

import (
	"fmt"
	"math"
	"reflect"
	"strings"
	"sync"

	"github.com/opal-lang/weave/core/errors"
	"github.com/opal-lang/weave/core/invariant"
)

var builtins = sync.OnceValue(func() *Registry {
	r := NewRegistry()
	err := r.Add(FuncMap{
		"range":   []any{rangeTo, rangeFromTo, rangeStep},
		"index":   index,
		"len":     length,
		"print":   sprint,
		"println": sprintln,
		"printf":  fmt.Sprintf,
		"add":     add,
		"sub":     sub,
		"mul":     mul,
		"div":     div,
		"mod":     mod,
		"eq":      eq,
		"ne":      ne,
		"lt":      lt,
		"le":      le,
		"gt":      gt,
		"ge":      ge,
		"and":     and,
		"or":      or,
		"not":     not,
	})
	invariant.Invariant(err == nil, "builtin table is invalid: %v", err)
	return r
})

// Builtins returns the process-wide built-in functions. The table is built
// once and never modified.
func Builtins() Lookup {
	return builtins()
}

func rangeTo(stop int) ([]int, error) {
	return rangeFromTo(0, stop)
}

func rangeFromTo(start, stop int) ([]int, error) {
	step := 1
	if start > stop {
		step = -1
	}
	return rangeStep(start, stop, step)
}

// rangeStep returns start, start+step, ... up to but excluding stop.
func rangeStep(start, stop, step int) ([]int, error) {
	if step == 0 {
		return nil, errors.New(errors.KindExec, "range step must not be zero")
	}
	if start == stop || (start > stop && step > 0) || (start < stop && step < 0) {
		return []int{}, nil
	}
	span := stop - start
	if span < 0 {
		span = -span
	}
	abs := step
	if abs < 0 {
		abs = -abs
	}
	n := (span + abs - 1) / abs
	out := make([]int, n)
	for i, v := 0, start; i < n; i, v = i+1, v+step {
		out[i] = v
	}
	return out, nil
}

// index returns item[i0][i1]... over slices, arrays, strings and maps.
func index(item any, indexes ...any) (any, error) {
	if item == nil {
		return nil, errors.New(errors.KindExec, "can't index null")
	}
	v := reflect.ValueOf(item)
	for _, idx := range indexes {
		v = indirect(v)
		if !v.IsValid() {
			return nil, errors.New(errors.KindExec, "can't index null")
		}
		switch v.Kind() {
		case reflect.Slice, reflect.Array, reflect.String:
			i, ok := toInt(idx)
			if !ok {
				return nil, errors.New(errors.KindExec, "cannot index %s with %T", v.Type(), idx)
			}
			if i < 0 || i >= v.Len() {
				return nil, errors.New(errors.KindExec, "index out of range: %d", i)
			}
			v = v.Index(i)
		case reflect.Map:
			key, err := mapKey(v.Type().Key(), idx)
			if err != nil {
				return nil, err
			}
			found := v.MapIndex(key)
			if !found.IsValid() {
				return nil, nil
			}
			v = found
		default:
			return nil, errors.New(errors.KindExec, "can't index item of type %s", v.Type())
		}
	}
	return elem(v), nil
}

func mapKey(keyType reflect.Type, idx any) (reflect.Value, error) {
	if idx == nil {
		switch keyType.Kind() {
		case reflect.Interface, reflect.Pointer, reflect.Chan, reflect.Func, reflect.Map, reflect.Slice:
			return reflect.Zero(keyType), nil
		}
		return reflect.Value{}, errors.New(errors.KindExec, "can't use null as %s map key", keyType)
	}
	k := reflect.ValueOf(idx)
	switch {
	case k.Type().AssignableTo(keyType):
		return k, nil
	case isNumberKind(k.Kind()) && isNumberKind(keyType.Kind()) && k.CanConvert(keyType):
		return k.Convert(keyType), nil
	}
	return reflect.Value{}, errors.New(errors.KindExec, "value has type %T; should be %s", idx, keyType)
}

func length(item any) (int, error) {
	if item == nil {
		return 0, errors.New(errors.KindExec, "len of null")
	}
	v := indirect(reflect.ValueOf(item))
	if !v.IsValid() {
		return 0, errors.New(errors.KindExec, "len of null")
	}
	switch v.Kind() {
	case reflect.Array, reflect.Chan, reflect.Map, reflect.Slice, reflect.String:
		return v.Len(), nil
	}
	return 0, errors.New(errors.KindExec, "len of type %s", v.Type())
}

// sprint adds a space after every operand that is not a string.
func sprint(args ...any) string {
	var sb strings.Builder
	for i, a := range args {
		sb.WriteString(FormatValue(a))
		if _, isString := a.(string); i < len(args)-1 && !isString {
			sb.WriteByte(' ')
		}
	}
	return sb.String()
}

// sprintln follows every operand with a space, then ends the line.
func sprintln(args ...any) string {
	var sb strings.Builder
	for _, a := range args {
		sb.WriteString(FormatValue(a))
		sb.WriteByte(' ')
	}
	sb.WriteByte('\n')
	return sb.String()
}

func not(a any) bool {
	return !IsTrue(a)
}

// and returns the first falsy argument, or the last one.
func and(arg0 any, args ...any) any {
	if !IsTrue(arg0) {
		return arg0
	}
	for _, a := range args {
		arg0 = a
		if !IsTrue(arg0) {
			break
		}
	}
	return arg0
}

// or returns the first truthy argument, or the last one.
func or(arg0 any, args ...any) any {
	if IsTrue(arg0) {
		return arg0
	}
	for _, a := range args {
		arg0 = a
		if IsTrue(arg0) {
			break
		}
	}
	return arg0
}

func add(a, b any) (any, error) { return arithmetic('+', a, b) }
func sub(a, b any) (any, error) { return arithmetic('-', a, b) }
func mul(a, b any) (any, error) { return arithmetic('*', a, b) }
func div(a, b any) (any, error) { return arithmetic('/', a, b) }
func mod(a, b any) (any, error) { return arithmetic('%', a, b) }

func arithmetic(op byte, a, b any) (any, error) {
	if as, ok := a.(string); ok && op == '+' {
		if bs, ok := b.(string); ok {
			return as + bs, nil
		}
	}
	an, bn := toNumber(a), toNumber(b)
	if an.kind == notNumber || bn.kind == notNumber {
		return nil, errors.New(errors.KindExec, "can't apply %c to the values %v (%T) and %v (%T)", op, FormatValue(a), a, FormatValue(b), b)
	}

	if an.kind == intNumber && bn.kind == intNumber {
		x, y := an.i, bn.i
		switch op {
		case '+':
			return int(x + y), nil
		case '-':
			return int(x - y), nil
		case '*':
			return int(x * y), nil
		case '/':
			if y == 0 {
				return nil, errors.New(errors.KindExec, "can't divide the value by 0")
			}
			return int(x / y), nil
		case '%':
			if y == 0 {
				return nil, errors.New(errors.KindExec, "can't modulo the value by 0")
			}
			return int(x % y), nil
		}
	}

	x, y := an.float(), bn.float()
	switch op {
	case '+':
		return x + y, nil
	case '-':
		return x - y, nil
	case '*':
		return x * y, nil
	case '/':
		if y == 0 {
			return nil, errors.New(errors.KindExec, "can't divide the value by 0")
		}
		return x / y, nil
	case '%':
		if y == 0 {
			return nil, errors.New(errors.KindExec, "can't modulo the value by 0")
		}
		return math.Mod(x, y), nil
	}
	invariant.Invariant(false, "unknown arithmetic operator %c", op)
	return nil, nil
}

// eq reports whether a equals any of bs.
func eq(a any, bs ...any) (bool, error) {
	if len(bs) == 0 {
		return false, errors.New(errors.KindExec, "can't equal only one argument")
	}
	for _, b := range bs {
		ok, err := equal(a, b)
		if err != nil {
			return false, err
		}
		if ok {
			return true, nil
		}
	}
	return false, nil
}

func ne(a, b any) (bool, error) {
	ok, err := equal(a, b)
	return !ok, err
}

func lt(a, b any) (bool, error) { return compare("<", a, b) }
func le(a, b any) (bool, error) { return compare("<=", a, b) }
func gt(a, b any) (bool, error) { return compare(">", a, b) }
func ge(a, b any) (bool, error) { return compare(">=", a, b) }

func equal(a, b any) (bool, error) {
	if a == nil || b == nil {
		return isNil(a) && isNil(b), nil
	}
	an, bn := toNumber(a), toNumber(b)
	if an.kind != notNumber && bn.kind != notNumber {
		if an.kind == intNumber && bn.kind == intNumber {
			return an.i == bn.i, nil
		}
		return an.float() == bn.float(), nil
	}
	av, bv := reflect.ValueOf(a), reflect.ValueOf(b)
	switch {
	case av.Kind() == reflect.String && bv.Kind() == reflect.String:
		return av.String() == bv.String(), nil
	case av.Kind() == reflect.Bool && bv.Kind() == reflect.Bool:
		return av.Bool() == bv.Bool(), nil
	case av.Type() == bv.Type() && av.Comparable():
		return av.Equal(bv), nil
	}
	return false, errors.New(errors.KindExec, "incompatible types for comparison: %v (%T) and %v (%T)", FormatValue(a), a, FormatValue(b), b)
}

func compare(op string, a, b any) (bool, error) {
	an, bn := toNumber(a), toNumber(b)
	var c int
	switch {
	case an.kind == intNumber && bn.kind == intNumber:
		c = cmp3(an.i < bn.i, an.i > bn.i)
	case an.kind != notNumber && bn.kind != notNumber:
		x, y := an.float(), bn.float()
		c = cmp3(x < y, x > y)
	default:
		as, aok := a.(string)
		bs, bok := b.(string)
		if !aok || !bok {
			return false, errors.New(errors.KindExec, "can't apply %s to the values %v (%T) and %v (%T)", op, FormatValue(a), a, FormatValue(b), b)
		}
		c = strings.Compare(as, bs)
	}
	switch op {
	case "<":
		return c < 0, nil
	case "<=":
		return c <= 0, nil
	case ">":
		return c > 0, nil
	case ">=":
		return c >= 0, nil
	}
	invariant.Invariant(false, "unknown comparison operator %s", op)
	return false, nil
}

func cmp3(less, greater bool) int {
	switch {
	case less:
		return -1
	case greater:
		return 1
	}
	return 0
}

type numberKind int

const (
	notNumber numberKind = iota
	intNumber
	floatNumber
)

type number struct {
	kind numberKind
	i    int64
	f    float64
}

func (n number) float() float64 {
	if n.kind == intNumber {
		return float64(n.i)
	}
	return n.f
}

func toNumber(v any) number {
	if v == nil {
		return number{}
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return number{kind: intNumber, i: rv.Int()}
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
		return number{kind: intNumber, i: int64(rv.Uint())}
	case reflect.Float32, reflect.Float64:
		return number{kind: floatNumber, f: rv.Float()}
	}
	return number{}
}

func toInt(v any) (int, bool) {
	n := toNumber(v)
	if n.kind != intNumber {
		return 0, false
	}
	return int(n.i), true
}

func isNumberKind(k reflect.Kind) bool {
	return k >= reflect.Int && k <= reflect.Float64
}

func isNil(v any) bool {
	if v == nil {
		return true
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Pointer, reflect.Map, reflect.Slice, reflect.Interface, reflect.Chan, reflect.Func:
		return rv.IsNil()
	}
	return false
}

// indirect follows pointers and interfaces to the underlying value.
func indirect(v reflect.Value) reflect.Value {
	for v.IsValid() && (v.Kind() == reflect.Pointer || v.Kind() == reflect.Interface) {
		if v.IsNil() {
			return reflect.Value{}
		}
		v = v.Elem()
	}
	return v
}
