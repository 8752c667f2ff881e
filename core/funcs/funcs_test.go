package funcs

import (
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/opal-lang/weave/core/errors"
)

func TestRegistryAdd(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.Add(FuncMap{
		"upper": strings.ToUpper,
		"pair":  []any{func(a int) int { return a }, func(a, b int) int { return a + b }},
	}))

	fns, ok := r.Func("pair")
	require.True(t, ok)
	assert.Len(t, fns, 2)
	assert.True(t, r.HasFunc("upper"))
	assert.False(t, r.HasFunc("lower"))
	assert.Equal(t, []string{"pair", "upper"}, r.Names())
}

func TestRegistryAddRejects(t *testing.T) {
	tests := []struct {
		name string
		m    FuncMap
		want string
	}{
		{"not a func", FuncMap{"x": 3}, "value for x is int, not a function"},
		{"bad overload", FuncMap{"x": []any{strings.ToUpper, "y"}}, "overload 1 of x is string, not a function"},
		{"empty overloads", FuncMap{"x": []any{}}, "function x has an empty overload set"},
		{"bad name", FuncMap{"a-b": strings.ToUpper}, `function name "a-b" is not a valid identifier`},
		{"digit first", FuncMap{"1a": strings.ToUpper}, `function name "1a" is not a valid identifier`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := NewRegistry()
			err := r.Add(tt.m)
			require.Error(t, err)
			assert.Equal(t, tt.want, err.Error())
			assert.Empty(t, r.Names())
		})
	}
}

func TestRegistryClone(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.Add(FuncMap{"a": strings.ToUpper}))
	c := r.Clone()
	require.NoError(t, c.Add(FuncMap{"b": strings.ToLower}))
	assert.Equal(t, []string{"a"}, r.Names())
	assert.Equal(t, []string{"a", "b"}, c.Names())
}

func TestFindOrder(t *testing.T) {
	local := NewRegistry()
	require.NoError(t, local.Add(FuncMap{"len": func(string) int { return -1 }}))

	fns, ok := Find("len", local, Builtins())
	require.True(t, ok)
	assert.Equal(t, "(string) int", Signature(fns[0]))

	fns, ok = Find("add", nil, local, Builtins())
	require.True(t, ok)
	assert.Equal(t, "(interface {}, interface {}) (interface {}, error)", Signature(fns[0]))

	_, ok = Find("nope", local, Builtins())
	assert.False(t, ok)
	assert.True(t, Has("printf", local, Builtins()))

	names := AllNames(local, Builtins())
	assert.Contains(t, names, "len")
	assert.Equal(t, 1, strings.Count(strings.Join(names, ","), "len"))
}

func TestIsTrue(t *testing.T) {
	var nilPtr *int
	one := 1
	tests := []struct {
		value any
		want  bool
	}{
		{nil, false},
		{false, false},
		{true, true},
		{"", false},
		{"x", true},
		{0, false},
		{1, true},
		{-1, true},
		{int8(0), false},
		{uint(0), false},
		{uint(7), true},
		{0.0, false},
		{-0.5, true},
		{[]int{}, false},
		{[]int{0}, true},
		{[0]int{}, false},
		{map[string]int{}, false},
		{map[string]int{"a": 1}, true},
		{nilPtr, false},
		{&one, true},
		{struct{}{}, true},
		{make(chan int), false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, IsTrue(tt.value), "IsTrue(%#v)", tt.value)
		assert.Equal(t, !tt.want, not(tt.value), "not(%#v)", tt.value)
	}
}

type stringer struct{ s string }

func (s *stringer) String() string { return "<" + s.s + ">" }

func TestFormatValue(t *testing.T) {
	var nilStringer *stringer
	tests := []struct {
		value any
		want  string
	}{
		{nil, "null"},
		{"text", "text"},
		{42, "42"},
		{1.5, "1.5"},
		{true, "true"},
		{[]int{1, 2, 3}, "[1, 2, 3]"},
		{[][]any{{1, "a"}, {nil}}, "[[1, a], [null]]"},
		{[2]string{"x", "y"}, "[x, y]"},
		{[]int(nil), "null"},
		{[]int{}, "[]"},
		{&stringer{"s"}, "<s>"},
		{nilStringer, "null"},
		{errors.New(errors.KindExec, "boom"), "boom"},
		{map[string]int{"a": 1}, "map[a:1]"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, FormatValue(tt.value), "FormatValue(%#v)", tt.value)
	}
}

func TestSuggest(t *testing.T) {
	names := []string{"printf", "print", "println", "index", "len"}
	got := Suggest("prnt", names)
	require.NotEmpty(t, got)
	assert.Contains(t, got, "print")
	assert.LessOrEqual(t, len(got), 3)

	assert.Equal(t, []string{"index"}, Suggest("indx", []string{"index", "zzzzzz"}))
	assert.Empty(t, Suggest("", names))
	assert.Empty(t, Suggest("x", nil))
}

func TestSignature(t *testing.T) {
	fns, ok := Builtins().Func("range")
	require.True(t, ok)
	var sigs []string
	for _, fn := range fns {
		sigs = append(sigs, Signature(fn))
	}
	want := []string{"(int) ([]int, error)", "(int, int) ([]int, error)", "(int, int, int) ([]int, error)"}
	if diff := cmp.Diff(want, sigs); diff != "" {
		t.Errorf("signatures mismatch (-want +got):\n%s", diff)
	}
}
