package funcs

import "reflect"

// IsTrue reports whether v counts as true in a condition. null, false, the
// empty string, empty collections, numeric zero and nil pointers are false;
// everything else is true.
func IsTrue(v any) bool {
	if v == nil {
		return false
	}
	return isTrueValue(reflect.ValueOf(v))
}

func isTrueValue(v reflect.Value) bool {
	if !v.IsValid() {
		return false
	}
	switch v.Kind() {
	case reflect.Array, reflect.Map, reflect.Slice, reflect.String, reflect.Chan:
		return v.Len() > 0
	case reflect.Bool:
		return v.Bool()
	case reflect.Complex64, reflect.Complex128:
		return v.Complex() != 0
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return v.Int() != 0
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
		return v.Uint() != 0
	case reflect.Float32, reflect.Float64:
		return v.Float() != 0
	case reflect.Pointer, reflect.Func, reflect.UnsafePointer:
		return !v.IsNil()
	case reflect.Interface:
		if v.IsNil() {
			return false
		}
		return isTrueValue(v.Elem())
	}
	return true
}
