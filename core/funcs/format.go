package funcs

import (
	"fmt"
	"reflect"
	"strings"
)

// FormatValue renders v the way an action prints it: null for nil, slices
// and arrays as a bracketed comma-separated listing (recursively), and the
// natural fmt form for everything else.
func FormatValue(v any) string {
	var sb strings.Builder
	writeValue(&sb, v)
	return sb.String()
}

func writeValue(sb *strings.Builder, v any) {
	if v == nil {
		sb.WriteString("null")
		return
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Pointer, reflect.Map, reflect.Slice, reflect.Interface, reflect.Chan, reflect.Func:
		if rv.IsNil() {
			sb.WriteString("null")
			return
		}
	}
	switch x := v.(type) {
	case string:
		sb.WriteString(x)
		return
	case []byte:
		sb.Write(x)
		return
	case fmt.Stringer:
		sb.WriteString(x.String())
		return
	case error:
		sb.WriteString(x.Error())
		return
	}
	if rv.Kind() == reflect.Slice || rv.Kind() == reflect.Array {
		sb.WriteByte('[')
		for i := 0; i < rv.Len(); i++ {
			if i > 0 {
				sb.WriteString(", ")
			}
			writeValue(sb, elem(rv.Index(i)))
		}
		sb.WriteByte(']')
		return
	}
	fmt.Fprint(sb, v)
}

// elem unwraps v to an any, mapping invalid values and nil interfaces to nil.
func elem(v reflect.Value) any {
	if !v.IsValid() {
		return nil
	}
	if v.Kind() == reflect.Interface {
		if v.IsNil() {
			return nil
		}
		v = v.Elem()
	}
	if !v.CanInterface() {
		return nil
	}
	return v.Interface()
}
