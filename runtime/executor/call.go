package executor

import (
	"fmt"
	"math"
	"reflect"

	"github.com/hashicorp/go-multierror"

	"github.com/opal-lang/weave/core/ast"
	"github.com/opal-lang/weave/core/funcs"
)

var errorType = reflect.TypeFor[error]()

// evalCall calls the first overload in fns that accepts the arguments. The
// zeroth element of args is the function's own node and is not passed.
func (s *state) evalCall(dot any, fns []reflect.Value, node ast.Node, name string, args []ast.Node, final any) (any, error) {
	if len(args) > 0 {
		args = args[1:]
	}
	argv := make([]any, 0, len(args)+1)
	for _, arg := range args {
		v, err := s.evalArg(dot, arg)
		if err != nil {
			return nil, err
		}
		argv = append(argv, v)
	}
	if final != missingVal {
		argv = append(argv, final)
	}

	var failures *multierror.Error
	for _, fn := range fns {
		// Functions without results are never candidates.
		if fn.Type().NumOut() == 0 {
			continue
		}
		result, err := safeCall(fn, argv)
		if err == nil {
			if s.rec.telemetry != nil {
				s.rec.telemetry.FuncCalls++
			}
			s.rec.event(DebugDetailed, "call", s.tree.Name, name)
			return result, nil
		}
		failures = multierror.Append(failures, &overloadError{signature: funcs.Signature(fn), err: err})
	}

	s.at(node)
	if failures == nil {
		return nil, s.errorf("error calling %s: no overload returns a value", name)
	}
	failures.ErrorFormat = overloadFormat(name)
	return nil, s.wrapf(failures, "%s", failures.Error())
}

// safeCall invokes fn with argv, converting arguments to the parameter types.
// A panic inside fn becomes the returned error.
func safeCall(fn reflect.Value, argv []any) (result any, err error) {
	typ := fn.Type()
	if typ.NumOut() > 2 || (typ.NumOut() == 2 && typ.Out(1) != errorType) {
		return nil, fmt.Errorf("can't call function with %d results", typ.NumOut())
	}

	numIn := typ.NumIn()
	if typ.IsVariadic() {
		if len(argv) < numIn-1 {
			return nil, fmt.Errorf("wrong number of args: got %d want at least %d", len(argv), numIn-1)
		}
	} else if len(argv) != numIn {
		return nil, fmt.Errorf("wrong number of args: got %d want %d", len(argv), numIn)
	}

	in := make([]reflect.Value, len(argv))
	for i, arg := range argv {
		var paramType reflect.Type
		if typ.IsVariadic() && i >= numIn-1 {
			paramType = typ.In(numIn - 1).Elem()
		} else {
			paramType = typ.In(i)
		}
		v, err := convertArg(arg, paramType)
		if err != nil {
			return nil, fmt.Errorf("arg %d: %w", i, err)
		}
		in[i] = v
	}

	defer func() {
		if r := recover(); r != nil {
			if e, ok := r.(error); ok {
				err = e
			} else {
				err = fmt.Errorf("%v", r)
			}
		}
	}()
	out := fn.Call(in)
	if len(out) == 2 && !out[1].IsNil() {
		return nil, out[1].Interface().(error)
	}
	return valueOf(out[0]), nil
}

// convertArg converts a template value to a parameter of type typ.
func convertArg(arg any, typ reflect.Type) (reflect.Value, error) {
	if arg == nil {
		switch typ.Kind() {
		case reflect.Interface, reflect.Pointer, reflect.Map, reflect.Slice, reflect.Func, reflect.Chan:
			return reflect.Zero(typ), nil
		}
		return reflect.Value{}, fmt.Errorf("can't assign null to %s", typ)
	}
	v := reflect.ValueOf(arg)
	if v.Type().AssignableTo(typ) {
		return v, nil
	}
	if converted, ok := convertNumber(v, typ); ok {
		return converted, nil
	}
	return reflect.Value{}, fmt.Errorf("wrong type for value; expected %s; got %s", typ, v.Type())
}

// convertNumber converts between numeric kinds when no value is lost.
func convertNumber(v reflect.Value, typ reflect.Type) (reflect.Value, bool) {
	switch {
	case isInt(v.Kind()):
		x := v.Int()
		switch {
		case isInt(typ.Kind()):
			if reflect.Zero(typ).OverflowInt(x) {
				return reflect.Value{}, false
			}
		case isUint(typ.Kind()):
			if x < 0 || reflect.Zero(typ).OverflowUint(uint64(x)) {
				return reflect.Value{}, false
			}
		case !isFloat(typ.Kind()):
			return reflect.Value{}, false
		}
		return v.Convert(typ), true
	case isUint(v.Kind()):
		x := v.Uint()
		switch {
		case isInt(typ.Kind()):
			if x > math.MaxInt64 || reflect.Zero(typ).OverflowInt(int64(x)) {
				return reflect.Value{}, false
			}
		case isUint(typ.Kind()):
			if reflect.Zero(typ).OverflowUint(x) {
				return reflect.Value{}, false
			}
		case !isFloat(typ.Kind()):
			return reflect.Value{}, false
		}
		return v.Convert(typ), true
	case isFloat(v.Kind()):
		f := v.Float()
		switch {
		case isFloat(typ.Kind()):
			return v.Convert(typ), true
		case isInt(typ.Kind()):
			if f != math.Trunc(f) || f < math.MinInt64 || f >= math.MaxInt64 || reflect.Zero(typ).OverflowInt(int64(f)) {
				return reflect.Value{}, false
			}
			return reflect.ValueOf(int64(f)).Convert(typ), true
		}
	}
	return reflect.Value{}, false
}

func isInt(k reflect.Kind) bool {
	return k >= reflect.Int && k <= reflect.Int64
}

func isUint(k reflect.Kind) bool {
	return k >= reflect.Uint && k <= reflect.Uintptr
}

func isFloat(k reflect.Kind) bool {
	return k == reflect.Float32 || k == reflect.Float64
}
