package parser

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/opal-lang/weave/core/ast"
	"github.com/opal-lang/weave/core/errors"
	"github.com/opal-lang/weave/core/funcs"
	"github.com/opal-lang/weave/runtime/lexer"
)

func testFuncs(t *testing.T) funcs.Lookup {
	t.Helper()
	r := funcs.NewRegistry()
	require.NoError(t, r.Add(funcs.FuncMap{"upper": func(s string) string { return s }}))
	return r
}

func TestParse(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"empty", "", ""},
		{"comment", "{{/*\n\n\n*/}}", ""},
		{"spaces", " \t\n", " \t\n"},
		{"text", "hello world", "hello world"},
		{"field", "{{.x}}", "{{.x}}"},
		{"simple command", "{{printf}}", "{{printf}}"},
		{"$ invocation", "{{$}}", "{{$}}"},
		{"variable invocation", "{{with $x := 3}}{{$x 123}}{{end}}", "{{with $x := 3}}{{$x 123}}{{end}}"},
		{"variable with fields", "{{$.x}}", "{{$.x}}"},
		{"multi-word command", `{{printf "%d" 123}}`, `{{printf "%d" 123}}`},
		{"pipeline", "{{.x|.y}}", "{{.x | .y}}"},
		{"pipeline with decl", "{{$x := .x|.y}}", "{{$x := .x | .y}}"},
		{"assignment", "{{$x := 1}}{{$x = 2}}", "{{$x := 1}}{{$x = 2}}"},
		{"nested pipeline", "{{.x (.y .z) (.a | .b .c) (.e)}}", "{{.x (.y .z) (.a | .b .c) (.e)}}"},
		{"field applied to parentheses", "{{(.x .y).field}}", "{{(.x .y).field}}"},
		{"dot after string", `{{"hello".length}}`, `{{"hello".length}}`},
		{"chained fields", "{{.x.y.z}}", "{{.x.y.z}}"},
		{"function from registry", "{{upper .x}}", "{{upper .x}}"},
		{"simple if", "{{if .x}}hello world{{end}}", "{{if .x}}hello world{{end}}"},
		{"if with else", "{{if .x}}true{{else}}false{{end}}", "{{if .x}}true{{else}}false{{end}}"},
		{"if with else if", "{{if .x}}true{{else if .y}}false{{end}}", "{{if .x}}true{{else}}{{if .y}}false{{end}}{{end}}"},
		{
			"if else chain",
			"+{{if .x}}x{{else if .y}}y{{else if .z}}z{{end}}+",
			"+{{if .x}}x{{else}}{{if .y}}y{{else}}{{if .z}}z{{end}}{{end}}{{end}}+",
		},
		{"simple for", "{{for .x}}hello{{end}}", "{{for .x}}hello{{end}}"},
		{"chained field for", "{{for .x.y.z}}hello{{end}}", "{{for .x.y.z}}hello{{end}}"},
		{"for over pipeline", "{{for .x|.y}}true{{else}}false{{end}}", "{{for .x | .y}}true{{else}}false{{end}}"},
		{"for var", "{{for $x := .i}}{{$x}}{{end}}", "{{for $x := .i}}{{$x}}{{end}}"},
		{"for with break", "{{for .i}}{{break}}{{.}}{{end}}", "{{for .i}}{{break}}{{.}}{{end}}"},
		{"for with break in nested else", "{{for .i}}{{for .i}}{{.}}{{else}}{{break}}{{end}}{{end}}", "{{for .i}}{{for .i}}{{.}}{{else}}{{break}}{{end}}{{end}}"},
		{"for with continue in if", "{{for .i}}{{if .}}{{continue}}{{end}}{{end}}", "{{for .i}}{{if .}}{{continue}}{{end}}{{end}}"},
		{"constants", "{{for .i 1 true false 'a' null}}{{end}}", "{{for .i 1 true false 'a' null}}{{end}}"},
		{"raw string", "{{printf `%d` 1}}", "{{printf `%d` 1}}"},
		{"template", `{{template "x"}}`, `{{template "x"}}`},
		{"template with arg", `{{template "x" .y}}`, `{{template "x" .y}}`},
		{"with", "{{with .x}}hello{{end}}", "{{with .x}}hello{{end}}"},
		{"with with else", "{{with .x}}hello{{else}}world{{end}}", "{{with .x}}hello{{else}}world{{end}}"},
		{"declaration in paren", "{{($x := 1)}}{{$x}}", "{{($x := 1)}}{{$x}}"},
		{"spaced declaration", "{{ $x  :=  1 }}", "{{$x := 1}}"},
		{"variable argument", "{{$ .x}}", "{{$ .x}}"},
	}
	lookup := testFuncs(t)
	ignorePos := cmpopts.IgnoreTypes(ast.Pos(0))
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			trees, err := Parse(tt.name, tt.input, "", "", lookup)
			require.NoError(t, err)
			tree := trees[tt.name]
			require.NotNil(t, tree)
			assert.Equal(t, tt.want, tree.String())
			assert.Equal(t, tt.want, tree.Copy().String())

			// Re-parsing the printed form yields the same tree.
			again, err := Parse(tt.name, tree.String(), "", "", lookup)
			require.NoError(t, err)
			if diff := cmp.Diff(tree.Root, again[tt.name].Root, ignorePos); diff != "" {
				t.Errorf("re-parse mismatch (-first +second):\n%s", diff)
			}
		})
	}
}

func TestParseErrors(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"empty action", "{{}}", "template: test:1: missing value for command"},
		{"unclosed action", "hello{{for", "template: test:1: unclosed action"},
		{"unmatched else", "{{else}}", "template: test:1: unexpected {{else}}"},
		{"unmatched end", "{{end}}", "template: test:1: unexpected {{end}}"},
		{"unmatched else after if", "{{if .x}}hello{{end}}{{else}}", "template: test:1: unexpected {{else}}"},
		{"multiple else", "{{if .x}}1{{else}}2{{else}}3{{end}}", "template: test:1: expected end; found {{else}}"},
		{"missing end", "hello{{for .x}}", "template: test:1: unexpected EOF"},
		{"missing end after else", "hello{{for .x}}{{else}}", "template: test:1: unexpected EOF"},
		{"undefined function", "hello{{undefined}}", "template: test:1: function 'undefined' not defined"},
		{"undefined variable", "{{$x}}", "template: test:1: undefined variable $x"},
		{"variable undefined after end", "{{with $x := 1}}{{end}}{{$x}}", "template: test:1: undefined variable $x"},
		{"assignment to undeclared", "{{$x = 1}}", "template: test:1: undefined variable $x"},
		{"declare with field", "{{with $x.y := 1}}{{end}}", "template: test:1: undefined variable $x"},
		{"template with field ref", "{{template .x}}", `template: test:1: unexpected ".x" in template clause`},
		{"template with var", "{{template $v}}", `template: test:1: unexpected "$v" in template clause`},
		{"invalid punctuation", "{{printf 1, 2}}", `template: test:1: unexpected "," in operand`},
		{"dot applied to parentheses", "{{printf (printf .).}}", "template: test:1: unexpected <.> in operand"},
		{"adjacent args", "{{printf 3`x`}}", "template: test:1: unexpected \"`x`\" in operand"},
		{"multiple declaration", "{{$x := $y := 1}}{{$x}}", "template: test:1: undefined variable $y"},
		{"dot after integer", "{{1.e}}", "template: test:1: illegal number syntax: 1.e"},
		{"dot after float", "{{0.1.e}}", "template: test:1: unexpected . after term 0.1"},
		{"dot after boolean", "{{true.e}}", "template: test:1: unexpected . after term true"},
		{"dot after char", "{{'a'.e}}", "template: test:1: unexpected . after term 'a'"},
		{"dot after dot", "{{..e}}", "template: test:1: unexpected . after term ."},
		{"dot after null", "{{null.e}}", "template: test:1: unexpected . after term null"},
		{"trailing pipe", "{{.x | }}", "template: test:1: missing command after |"},
		{"trailing pipe in parens", "{{print (.x |)}}", "template: test:1: missing command after |"},
		{"wrong pipeline dot", "{{1|.}}", "template: test:1: non executable command in pipeline stage 2"},
		{"wrong pipeline number", "{{.|1|printf}}", "template: test:1: non executable command in pipeline stage 2"},
		{"wrong pipeline string", `{{.|printf|"hello"}}`, "template: test:1: non executable command in pipeline stage 3"},
		{"wrong pipeline char", "{{1|printf|'a'}}", "template: test:1: non executable command in pipeline stage 3"},
		{"wrong pipeline boolean", "{{.|true}}", "template: test:1: non executable command in pipeline stage 2"},
		{"wrong pipeline null", "{{'a'|null}}", "template: test:1: non executable command in pipeline stage 2"},
		{"empty pipeline", `{{printf "%d" ( ) }}`, "template: test:1: missing value for parenthesized pipeline"},
		{"break outside of for", "{{break}}", "template: test:1: unexpected break outside of for"},
		{"break in for else", "{{for .}}{{.}}{{else}}{{break}}{{end}}", "template: test:1: unexpected break outside of for"},
		{"continue outside of for", "{{continue}}", "template: test:1: unexpected continue outside of for"},
		{"continue in for else", "{{for .}}{{.}}{{else}}{{continue}}{{end}}", "template: test:1: unexpected continue outside of for"},
		{"additional break data", "{{for .}}{{break label}}{{end}}", `template: test:1: unexpected "label" in break`},
		{"integer overflow", "{{0xdeadbeef}}", "template: test:1: integer overflow: 0xdeadbeef"},
		{"huge decimal", "{{99999999999999999999}}", "template: test:1: integer overflow: 99999999999999999999"},
		{"unterminated string", `{{"abc}}`, "template: test:1: unterminated quoted string"},
		{"unclosed paren", "{{(.x}}", "template: test:1: unclosed left paren"},
		{"define not at top level", `{{if .}}{{define "x"}}{{end}}{{end}}`, "template: test:1: unexpected <define> in command"},
		{"multi-variable for", "{{for $k, $v := .}}{{end}}", "template: test:1: bad character ,"},
		{"error line", "a\nb\n{{$x}}", "template: test:3: undefined variable $x"},
		{"redefinition", `{{define "foo"}}a{{end}}{{define "foo"}}b{{end}}`, "template: test:1: multiple definition of template foo"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			trees, err := Parse("test", tt.input, "", "")
			require.Error(t, err)
			assert.Nil(t, trees)
			assert.Equal(t, tt.want, err.Error())
			assert.True(t, errors.IsParse(err), "want a parse error, got %T", err)
		})
	}
}

func TestUndefinedFunctionSuggestions(t *testing.T) {
	_, err := Parse("test", "{{prnt 1}}", "", "")
	require.Error(t, err)

	var perr *ParseError
	require.ErrorAs(t, err, &perr)
	assert.Equal(t, ErrorUndefined, perr.Type)
	assert.Contains(t, perr.Suggestions, "print")
	assert.Contains(t, perr.Snippet(), "did you mean")
	assert.Contains(t, perr.Snippet(), " 1 | {{prnt 1}}")
}

func TestSnippet(t *testing.T) {
	_, err := Parse("page", "line one\n{{$missing}}", "", "")
	require.Error(t, err)
	var perr *ParseError
	require.ErrorAs(t, err, &perr)

	want := "undefined: undefined variable $missing\n" +
		"  --> page:2:3\n" +
		"   |\n" +
		" 2 | {{$missing}}\n" +
		"   |   ^"
	assert.Equal(t, want, perr.Snippet())
}

func TestErrorPosition(t *testing.T) {
	tests := []struct {
		name  string
		input string
		line  int
		pos   int
	}{
		{"undefined variable", "line one\n{{$missing}}", 2, 11},
		{"undefined variable in pipeline", "{{$x := 1}}\n{{$x | printf $y}}", 2, 26},
		{"undefined function", "a\nb {{prnt 1}}", 2, 6},
		{"unexpected token", "{{printf 1,\n2}}", 1, 10},
		{"trailing pipe", "{{.x |  }}", 1, 8},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse("test", tt.input, "", "")
			var perr *ParseError
			require.ErrorAs(t, err, &perr)
			assert.Equal(t, tt.line, perr.Line)
			assert.Equal(t, tt.pos, perr.Pos)
		})
	}
}

func TestNumberParse(t *testing.T) {
	tests := []struct {
		text    string
		isInt   bool
		isFloat bool
		intVal  int
		float   float64
	}{
		{"0", true, true, 0, 0},
		{"-0", true, true, 0, 0},
		{"123", true, true, 123, 123},
		{"0123", true, true, 0123, 0123},
		{"0x123", true, true, 0x123, 0x123},
		{"-123", true, true, -123, -123},
		{"+123", true, true, 123, 123},
		{"1e9", true, true, 1e9, 1e9},
		{"-1e9", true, true, -1e9, -1e9},
		{"1.2", false, true, 0, 1.2},
		{"-1.2", false, true, 0, -1.2},
		{"1e19", false, true, 0, 1e19},
		{"-1e19", false, true, 0, -1e19},
		{".5", false, true, 0, 0.5},
		{"-0x0", true, true, 0, 0},
		{"2147483647", true, true, 2147483647, 2147483647},
		{"-2147483648", true, true, -2147483648, -2147483648},
		{"'a'", true, true, 'a', 'a'},
		{"'嗨'", true, true, '嗨', '嗨'},
		{`'\n'`, true, true, '\n', '\n'},
		{`'\''`, true, true, '\'', '\''},
		{`'\"'`, true, true, '"', '"'},
		{`'ÿ'`, true, true, 0xFF, 0xFF},
		{`'\101'`, true, true, 'A', 'A'},
		// Broken syntax.
		{text: "0x123."},
		{text: "+-1"},
		{text: "1e."},
		{text: "09"},
		{text: "'x"},
		{text: "'xx'"},
		{text: "''"},
		// Too large for 32 bits.
		{text: "0xdeadbeef"},
		{text: "2147483648"},
	}
	for _, tt := range tests {
		t.Run(tt.text, func(t *testing.T) {
			n, err := parseNumber(tt.text)
			if !tt.isInt && !tt.isFloat {
				require.Error(t, err, "expected error for %s", tt.text)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.isInt, n.IsInt, "isInt")
			assert.Equal(t, tt.isFloat, n.IsFloat, "isFloat")
			if tt.isInt {
				assert.Equal(t, tt.intVal, n.Int)
			}
			assert.Equal(t, tt.float, n.Float)
			assert.Equal(t, tt.text, n.String())
		})
	}
}

func parseNumber(text string) (n *ast.NumberNode, err error) {
	typ := lexer.NUMBER
	if text[0] == '\'' {
		typ = lexer.CHAR_CONSTANT
	}
	t := New("number")
	defer t.recover(&err)
	return t.newNumber(lexer.Token{Type: typ, Text: text, Line: 1}), nil
}

func TestUnquote(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{`""`, ""},
		{`"abc"`, "abc"},
		{`"a\tb\nc"`, "a\tb\nc"},
		{`"it\'s"`, "it's"},
		{`"say \"hi\""`, `say "hi"`},
		{`"☺\101"`, "☺A"},
		{`"\b\f\r\\"`, "\b\f\r\\"},
		{"`raw\\n`", `raw\n`},
		{"`a\r\nb`", "a\nb"},
	}
	for _, tt := range tests {
		got, err := unquote(tt.in)
		require.NoError(t, err, tt.in)
		assert.Equal(t, tt.want, got, tt.in)
	}

	for _, bad := range []string{`"`, `"abc`, `'a'`, `"\q"`, `"a"b"`} {
		_, err := unquote(bad)
		assert.Error(t, err, bad)
	}
}

func TestMultiParse(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		results map[string]string
	}{
		{"empty", "", map[string]string{"test": ""}},
		{"one", `{{define "foo"}} FOO {{end}}`, map[string]string{"test": "", "foo": " FOO "}},
		{
			"two",
			`{{define "foo"}} FOO {{end}}{{define "bar"}} BAR {{end}}`,
			map[string]string{"test": "", "foo": " FOO ", "bar": " BAR "},
		},
		{
			"body around defines",
			`a{{define "x"}}{{.}}{{end}}b{{template "x" .}}`,
			map[string]string{"test": `ab{{template "x" .}}`, "x": "{{.}}"},
		},
		{
			"empty redefinition keeps body",
			`{{define "foo"}}body{{end}}{{define "foo"}}  {{end}}`,
			map[string]string{"test": "", "foo": "body"},
		},
		{
			"body replaces empty definition",
			`{{define "foo"}} {{end}}{{define "foo"}}body{{end}}`,
			map[string]string{"test": "", "foo": "body"},
		},
		{"raw name", "{{define `r`}}R{{end}}", map[string]string{"test": "", "r": "R"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			trees, err := Parse("test", tt.input, "", "")
			require.NoError(t, err)
			got := make(map[string]string, len(trees))
			for name, tree := range trees {
				got[name] = tree.String()
				assert.Equal(t, name, tree.Name)
				assert.Equal(t, "test", tree.ParseName)
			}
			if diff := cmp.Diff(tt.results, got); diff != "" {
				t.Errorf("trees mismatch (-want +got):\n%s", diff)
			}
		})
	}

	errTests := []struct {
		name  string
		input string
		want  string
	}{
		{"missing end", `{{define "foo"}} FOO `, "template: test:1: unexpected EOF"},
		{"malformed name", `{{define "foo}} FOO `, "template: test:1: unterminated quoted string"},
		{"name not a string", `{{define foo}}{{end}}`, `template: test:1: unexpected "foo" in define clause`},
		{"else in define", `{{define "foo"}}a{{else}}b{{end}}`, "template: test:1: unexpected {{else}} in define clause"},
		{"variables do not leak into define", `{{$x := 1}}{{define "a"}}{{$x}}{{end}}`, "template: test:1: undefined variable $x"},
	}
	for _, tt := range errTests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse("test", tt.input, "", "")
			require.Error(t, err)
			assert.Equal(t, tt.want, err.Error())
		})
	}
}

func TestVariableScope(t *testing.T) {
	ok := []string{
		"{{$x := 1}}{{if true}}{{$x := 2}}{{$x}}{{end}}{{$x}}",
		"{{$x := 1}}{{with .}}{{$x = 2}}{{end}}{{$x}}",
		"{{for $v := .}}{{$v}}{{else}}{{$v}}{{end}}",
		"{{if $x := .}}{{$x}}{{else}}{{$x}}{{end}}",
		"{{$}}{{$.a.b}}",
	}
	for _, input := range ok {
		_, err := Parse("scope", input, "", "")
		assert.NoError(t, err, input)
	}

	bad := []string{
		"{{if true}}{{$x := 1}}{{end}}{{$x}}",
		"{{with .}}{{$x := 1}}{{else}}{{$x}}{{end}}",
		"{{for $v := .}}{{end}}{{$v}}",
		"{{for .}}{{$v := .}}{{end}}{{$v = 1}}",
	}
	for _, input := range bad {
		_, err := Parse("scope", input, "", "")
		assert.Error(t, err, input)
	}
}

func TestCustomDelims(t *testing.T) {
	trees, err := Parse("d", "<<.x>> {{.y}} <<if .z>>z<<end>>", "<<", ">>")
	require.NoError(t, err)
	tree := trees["d"]
	assert.Equal(t, "<<.x>> {{.y}} <<if .z>>z<<end>>", tree.String())
	left, right := tree.Delims()
	assert.Equal(t, "<<", left)
	assert.Equal(t, ">>", right)
}

func TestErrorLocationAndContext(t *testing.T) {
	trees, err := Parse("loc", "ab\ncd{{.x}}{{printf \"%s\" \"abcdefghijklmnop\"}}", "", "")
	require.NoError(t, err)
	tree := trees["loc"]
	short := tree.Root.Nodes[1]
	long := tree.Root.Nodes[2]

	assert.Equal(t, "loc:2:4", tree.ErrorLocation(short))
	assert.Equal(t, "{{.x}}", tree.ErrorContext(short))
	assert.Equal(t, `{{printf "%s" "abcde...`, tree.ErrorContext(long))

	first := tree.Root.Nodes[0]
	assert.Equal(t, "loc:1:0", tree.ErrorLocation(first))
}

func TestIsEmptyTree(t *testing.T) {
	tests := []struct {
		input string
		empty bool
	}{
		{"", true},
		{" \n\t", true},
		{"{{/* comment */}}  ", true},
		{"x", false},
		{"{{.}}", false},
		{"{{if .}}{{end}}", false},
		{`{{template "x"}}`, false},
	}
	for _, tt := range tests {
		trees, err := Parse("e", tt.input, "", "")
		require.NoError(t, err)
		assert.Equal(t, tt.empty, IsEmptyTree(trees["e"].Root), tt.input)
	}
	assert.True(t, IsEmptyTree(nil))
}

func TestCopyIndependent(t *testing.T) {
	trees, err := Parse("c", "{{for $i := .}}{{$i}}{{end}}", "", "")
	require.NoError(t, err)
	orig := trees["c"]
	cp := orig.Copy()
	cp.Root.Nodes[0].(*ast.ForNode).Pipe.Decl.Ident[0] = "$j"
	assert.Equal(t, "{{for $i := .}}{{$i}}{{end}}", orig.String())
	assert.Equal(t, orig.Source(), cp.Source())
}

func TestTelemetry(t *testing.T) {
	res, err := ParseWith("tel", "{{.x}}", "", "", nil, WithTelemetryTiming())
	require.NoError(t, err)
	require.NotNil(t, res.Telemetry)
	assert.Equal(t, 5, res.Telemetry.NodeCount) // list, action, pipe, command, field
	assert.GreaterOrEqual(t, res.Telemetry.TokenCount, 4)
	assert.Zero(t, res.Telemetry.ErrorCount)
	assert.GreaterOrEqual(t, res.Telemetry.TotalTime, res.Telemetry.LexTime)
	assert.Nil(t, res.DebugEvents)

	res, err = ParseWith("tel", "{{.x", "", "", nil, WithTelemetryBasic())
	require.Error(t, err)
	assert.Nil(t, res.Trees)
	assert.Equal(t, 1, res.Telemetry.ErrorCount)
}

func TestDebugEvents(t *testing.T) {
	res, err := ParseWith("dbg", `{{if .}}{{.x}}{{end}}{{define "d"}}{{end}}`, "", "", nil, WithDebugPaths())
	require.NoError(t, err)
	assert.Nil(t, res.Telemetry)

	var names []string
	for _, ev := range res.DebugEvents {
		names = append(names, ev.Event)
	}
	assert.Contains(t, names, "enter_template")
	assert.Contains(t, names, "enter_control")
	assert.Contains(t, names, "enter_pipeline")
	assert.Contains(t, names, "enter_define")
	assert.Contains(t, names, "add_tree")
	assert.NotContains(t, names, "token")

	res, err = ParseWith("dbg", "{{.}}", "", "", nil, WithDebugDetailed())
	require.NoError(t, err)
	names = names[:0]
	for _, ev := range res.DebugEvents {
		names = append(names, ev.Event)
	}
	assert.Contains(t, names, "token")
}
