package executor

import (
	"reflect"

	"github.com/iancoleman/strcase"

	"github.com/opal-lang/weave/core/ast"
)

// lengthField is the pseudo-attribute giving the element count of strings,
// slices, arrays and maps.
const lengthField = "length"

// evalField evaluates .name on receiver, calling it with args if it names a
// method.
func (s *state) evalField(dot any, name string, node ast.Node, args []ast.Node, final any, receiver any) (any, error) {
	if receiver == nil {
		return nil, s.errorf("null pointer evaluating null.%s", name)
	}
	hasArgs := len(args) > 1 || final != missingVal

	if r, ok := receiver.(FieldResolver); ok {
		if v, found := r.ResolveField(name); found {
			if hasArgs {
				return nil, s.errorf("%s has arguments but cannot be invoked as method", name)
			}
			return v, nil
		}
	}

	rv := reflect.ValueOf(receiver)
	if method, ok := lookupMethod(rv, name); ok {
		return s.evalCall(dot, []reflect.Value{method}, node, name, args, final)
	}

	if rv.Kind() == reflect.Pointer {
		if rv.IsNil() {
			return nil, s.errorf("null pointer evaluating %s.%s", rv.Type(), name)
		}
		rv = rv.Elem()
	}
	switch rv.Kind() {
	case reflect.Struct:
		field, found, exported := lookupField(rv.Type(), name)
		if found {
			if !exported {
				return nil, s.errorf("%s is a non-public field of type %s", name, rv.Type())
			}
			if hasArgs {
				return nil, s.errorf("%s has arguments but cannot be invoked as method", name)
			}
			v, err := rv.FieldByIndexErr(field.Index)
			if err != nil {
				return nil, s.errorf("null pointer evaluating %s.%s", rv.Type(), name)
			}
			return valueOf(v), nil
		}
	case reflect.Map:
		if rv.Type().Key().Kind() == reflect.String {
			if hasArgs {
				return nil, s.errorf("%s has arguments but cannot be invoked as method", name)
			}
			key := reflect.ValueOf(name).Convert(rv.Type().Key())
			if v := rv.MapIndex(key); v.IsValid() {
				return valueOf(v), nil
			}
			if name == lengthField {
				return rv.Len(), nil
			}
			// Missing keys read as null.
			return nil, nil
		}
	case reflect.Slice, reflect.Array, reflect.String:
		if name == lengthField && !hasArgs {
			return rv.Len(), nil
		}
	}
	return nil, s.errorf("can't evaluate field %s in type %s", name, rv.Type())
}

// candidateNames lists the Go identifiers a template name may refer to: the
// name itself, then its CamelCase form (.user_name finds UserName).
func candidateNames(name string) []string {
	camel := strcase.ToCamel(name)
	if camel == name || camel == "" {
		return []string{name}
	}
	return []string{name, camel}
}

// lookupMethod finds an exported method called name on v, including pointer
// methods of non-pointer values.
func lookupMethod(v reflect.Value, name string) (reflect.Value, bool) {
	if !v.IsValid() {
		return reflect.Value{}, false
	}
	var ptr reflect.Value
	if v.Kind() != reflect.Pointer && v.Kind() != reflect.Interface {
		ptr = reflect.New(v.Type())
		ptr.Elem().Set(v)
	}
	for _, n := range candidateNames(name) {
		if m := v.MethodByName(n); m.IsValid() {
			return m, true
		}
		if ptr.IsValid() {
			if m := ptr.MethodByName(n); m.IsValid() {
				return m, true
			}
		}
	}
	return reflect.Value{}, false
}

// lookupField finds the struct field a template name refers to. An exported
// match wins over an unexported one.
func lookupField(t reflect.Type, name string) (field reflect.StructField, found, exported bool) {
	for _, n := range candidateNames(name) {
		f, ok := t.FieldByName(n)
		if !ok {
			continue
		}
		if f.IsExported() {
			return f, true, true
		}
		if !found {
			field, found = f, true
		}
	}
	return field, found, false
}
