package template

import (
	"bytes"
	"fmt"
	"strings"
	"sync"
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/opal-lang/weave/core/errors"
	"github.com/opal-lang/weave/runtime/executor"
)

func render(t *testing.T, tmpl *Template, data any) string {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, tmpl.Execute(&buf, data))
	return buf.String()
}

func TestMultiParse(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		wantErr string
		results map[string]string
	}{
		{"empty", "", "", map[string]string{}},
		{"one", `{{define "foo"}} FOO {{end}}`, "", map[string]string{"foo": " FOO "}},
		{"two", `{{define "foo"}} FOO {{end}}{{define "bar"}} BAR {{end}}`, "",
			map[string]string{"foo": " FOO ", "bar": " BAR "}},
		{"missing end", `{{define "foo"}} FOO `, "template: missing end:1: unexpected EOF", nil},
		{"malformed name", `{{define "foo}} FOO `, "template: malformed name:1: unterminated quoted string", nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tmpl, err := New(tt.name).Parse(tt.input)
			if tt.wantErr != "" {
				require.Error(t, err)
				assert.EqualError(t, err, tt.wantErr)
				assert.True(t, errors.IsParse(err))
				return
			}
			require.NoError(t, err)
			// The top-level template is part of the family too.
			assert.Len(t, tmpl.Templates(), len(tt.results)+1)
			for name, want := range tt.results {
				sub := tmpl.Lookup(name)
				require.NotNil(t, sub, "can't find template %s", name)
				assert.Equal(t, want, sub.Tree().String())
			}
		})
	}
}

func TestExecuteFamily(t *testing.T) {
	tmpl := Must(New("page").Parse(`{{define "row"}}<td>{{.}}</td>{{end}}<tr>{{for .}}{{template "row" .}}{{end}}</tr>`))
	assert.Equal(t, "<tr><td>1</td><td>2</td></tr>", render(t, tmpl, []int{1, 2}))

	var buf bytes.Buffer
	require.NoError(t, tmpl.ExecuteTemplate(&buf, "row", "x"))
	assert.Equal(t, "<td>x</td>", buf.String())

	err := tmpl.ExecuteTemplate(&buf, "rows", nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no template rows associated with template page")
	assert.True(t, errors.IsExec(err))
}

func TestTemplatesAcrossParseCalls(t *testing.T) {
	root := New("root")
	Must(root.New("header").Parse(`<h1>{{.}}</h1>`))
	Must(root.Parse(`{{template "header" .title}}body`))

	assert.Equal(t, "<h1>T</h1>body", render(t, root, map[string]any{"title": "T"}))
	assert.Equal(t, `; defined templates are: "header", "root"`, root.DefinedTemplates())
}

func TestRedefinition(t *testing.T) {
	t.Run("later body replaces earlier", func(t *testing.T) {
		tmpl := Must(New("x").Parse(`{{define "a"}}one{{end}}{{template "a"}}`))
		Must(tmpl.New("a").Parse(`two`))
		assert.Equal(t, "two", render(t, tmpl, nil))
	})

	t.Run("empty body keeps definition", func(t *testing.T) {
		tmpl := Must(New("x").Parse(`{{define "a"}}one{{end}}{{template "a"}}`))
		Must(tmpl.Parse(`{{define "a"}}  {{end}}{{template "a"}}`))
		assert.Equal(t, "one", render(t, tmpl, nil))
	})
}

func TestIncompleteTemplate(t *testing.T) {
	tmpl := New("root")
	Must(tmpl.New("other").Parse("x"))

	var buf bytes.Buffer
	err := tmpl.Execute(&buf, nil)
	require.Error(t, err)
	assert.EqualError(t, err, `template: root: root is an incomplete or empty template; defined templates are: "other"`)
}

func TestFuncs(t *testing.T) {
	tmpl := New("f").Funcs(FuncMap{
		"upper": strings.ToUpper,
		"greet": []any{
			func() string { return "hello" },
			func(name string) string { return "hello " + name },
		},
	})
	Must(tmpl.Parse(`{{upper .}} {{greet}} {{greet "bob"}} {{. | upper | printf "%s!"}}`))
	assert.Equal(t, "ADA hello hello bob ADA!", render(t, tmpl, "ada"))

	_, err := New("f").Parse(`{{upper .}}`)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "function 'upper' not defined")

	assert.Panics(t, func() { New("bad").Funcs(FuncMap{"x": 1}) })
}

func TestDelims(t *testing.T) {
	const hello = "hello world"
	data := map[string]string{"str": hello}
	pairs := [][2]string{
		{"", ""},
		{"{{", "}}"},
		{"<<", ">>"},
		{"|", "|"},
		{"(嗨)", "(世)"},
	}
	for _, pair := range pairs {
		t.Run(pair[0], func(t *testing.T) {
			left, right := pair[0], pair[1]
			if left == "" {
				left, right = "{{", "}}"
			}
			text := left + ".str" + right + left + "/*comment*/" + right + left + `"` + left + `"` + right
			tmpl := Must(New("delims").Delims(pair[0], pair[1]).Parse(text))
			assert.Equal(t, hello+left, render(t, tmpl, data))
		})
	}
}

func TestClone(t *testing.T) {
	orig := Must(New("root").Parse(`{{define "part"}}orig{{end}}[{{template "part"}}]`))
	clone, err := orig.Clone()
	require.NoError(t, err)
	Must(clone.New("part").Parse("cloned"))

	assert.Equal(t, "[orig]", render(t, orig, nil))
	assert.Equal(t, "[cloned]", render(t, clone, nil))
	assert.Same(t, clone, clone.Lookup("root"))

	clone.Funcs(FuncMap{"extra": func() string { return "e" }})
	_, err = orig.New("uses").Parse("{{extra}}")
	assert.Error(t, err)
}

func TestMaxDepthOption(t *testing.T) {
	tmpl := Must(New("self", WithMaxDepth(5)).Parse(`{{template "self" .}}`))
	var buf bytes.Buffer
	err := tmpl.Execute(&buf, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "exceeded maximum template depth (5)")
}

func TestConfig(t *testing.T) {
	t.Run("defaults", func(t *testing.T) {
		cfg := DefaultConfig()
		assert.Equal(t, "{{", cfg.LeftDelim)
		assert.Equal(t, "}}", cfg.RightDelim)
		assert.Equal(t, executor.DefaultMaxDepth, cfg.MaxExecDepth)
		assert.False(t, cfg.Debug)
		assert.NoError(t, cfg.Validate())
	})

	t.Run("environment", func(t *testing.T) {
		t.Setenv(EnvLeftDelim, "[[")
		t.Setenv(EnvRightDelim, "]]")
		t.Setenv(EnvMaxExecDepth, "42")
		t.Setenv(EnvDebug, "false")
		cfg, err := ConfigFromEnvironment()
		require.NoError(t, err)
		assert.Equal(t, Config{LeftDelim: "[[", RightDelim: "]]", MaxExecDepth: 42}, cfg)

		tmpl := Must(NewWithConfig("env", cfg).Parse("[[.]] {{.}}"))
		assert.Equal(t, "1 {{.}}", render(t, tmpl, 1))
	})

	t.Run("bad depth", func(t *testing.T) {
		t.Setenv(EnvMaxExecDepth, "lots")
		_, err := ConfigFromEnvironment()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "invalid WEAVE_MAX_EXEC_DEPTH")
	})

	t.Run("non-positive depth", func(t *testing.T) {
		t.Setenv(EnvMaxExecDepth, "0")
		_, err := ConfigFromEnvironment()
		assert.EqualError(t, err, "max exec depth must be positive, got 0")
	})

	t.Run("half delimiters", func(t *testing.T) {
		err := Config{LeftDelim: "<<", MaxExecDepth: 1}.Validate()
		assert.Error(t, err)
	})
}

func TestDebugTelemetry(t *testing.T) {
	var logs bytes.Buffer
	old := logOutput
	logOutput = &logs
	defer func() { logOutput = old }()

	cfg := DefaultConfig()
	cfg.Debug = true
	tmpl := Must(NewWithConfig("dbg", cfg).Parse(`{{define "x"}}{{.}}{{end}}{{template "x" 1}}`))

	var buf bytes.Buffer
	res, err := tmpl.ExecuteWith(&buf, nil)
	require.NoError(t, err)
	assert.Equal(t, "1", buf.String())
	require.NotNil(t, res.Telemetry)
	assert.Equal(t, 1, res.Telemetry.TemplateCalls)
	assert.Contains(t, logs.String(), "msg=executed")
}

func TestParseFiles(t *testing.T) {
	fs := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fs, "/tmpl/page.tmpl", []byte(`<body>{{template "nav.tmpl" .}}</body>`), 0o644))
	require.NoError(t, afero.WriteFile(fs, "/tmpl/nav.tmpl", []byte(`<nav>{{.}}</nav>`), 0o644))
	require.NoError(t, afero.WriteFile(fs, "/tmpl/broken.tmpl", []byte(`{{if}}`), 0o644))

	t.Run("files", func(t *testing.T) {
		tmpl, err := ParseFiles(fs, "/tmpl/page.tmpl", "/tmpl/nav.tmpl")
		require.NoError(t, err)
		assert.Equal(t, "page.tmpl", tmpl.Name())
		assert.Equal(t, "<body><nav>home</nav></body>", render(t, tmpl, "home"))
	})

	t.Run("glob", func(t *testing.T) {
		tmpl, err := New("page.tmpl").ParseGlob(fs, "/tmpl/[pn]*.tmpl")
		require.NoError(t, err)
		assert.Equal(t, "<body><nav>x</nav></body>", render(t, tmpl, "x"))
	})

	t.Run("no files", func(t *testing.T) {
		_, err := ParseFiles(fs)
		assert.EqualError(t, err, "template: no files named in call to ParseFiles")
	})

	t.Run("missing file", func(t *testing.T) {
		_, err := ParseFiles(fs, "/tmpl/nope.tmpl")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "template: read /tmpl/nope.tmpl")
	})

	t.Run("no glob match", func(t *testing.T) {
		_, err := ParseGlob(fs, "/other/*.tmpl")
		assert.EqualError(t, err, "template: pattern matches no files: `/other/*.tmpl`")
	})

	t.Run("parse error names the file", func(t *testing.T) {
		_, err := ParseFiles(fs, "/tmpl/broken.tmpl")
		require.Error(t, err)
		assert.True(t, errors.IsParse(err))
		assert.Contains(t, err.Error(), "template: broken.tmpl:1: missing value for if")
	})
}

func TestCache(t *testing.T) {
	cache := NewCache(2)
	src := `{{define "a"}}A{{end}}{{template "a"}}`

	t1, err := cache.Parse(New("one"), src)
	require.NoError(t, err)
	t2, err := cache.Parse(New("one"), src)
	require.NoError(t, err)
	assert.Equal(t, "A", render(t, t1, nil))
	assert.Equal(t, "A", render(t, t2, nil))
	assert.Same(t, t1.Tree(), t2.Tree())
	assert.Equal(t, CacheStats{Hits: 1, Misses: 1, Entries: 1}, cache.Stats())

	// Visible functions are part of the key.
	withFuncs := New("one").Funcs(FuncMap{"f": func() int { return 1 }})
	_, err = cache.Parse(withFuncs, src)
	require.NoError(t, err)
	assert.Equal(t, 2, cache.Stats().Entries)

	// A full cache starts over.
	_, err = cache.Parse(New("two"), src)
	require.NoError(t, err)
	assert.Equal(t, 1, cache.Stats().Entries)

	_, err = cache.Parse(New("bad"), "{{end}}")
	assert.Error(t, err)
}

func TestKey(t *testing.T) {
	k1, err := Key("a", "{{", "}}", "x", nil)
	require.NoError(t, err)
	k2, err := Key("a", "{{", "}}", "x", nil)
	require.NoError(t, err)
	assert.Equal(t, k1, k2)

	// Length prefixes keep shifted boundaries apart.
	k3, err := Key("ab", "{{", "}}", "", nil)
	require.NoError(t, err)
	k4, err := Key("a", "b{{", "}}", "", nil)
	require.NoError(t, err)
	assert.NotEqual(t, k3, k4)
}

func TestConcurrentUse(t *testing.T) {
	tmpl := Must(New("root").Parse(`{{define "item"}}({{.}}){{end}}{{for .}}{{template "item" .}}{{end}}`))
	var wg sync.WaitGroup
	errs := make(chan error, 16)
	for i := 0; i < 8; i++ {
		wg.Add(2)
		go func(i int) {
			defer wg.Done()
			var buf bytes.Buffer
			if err := tmpl.Execute(&buf, []int{i}); err != nil {
				errs <- err
				return
			}
			if got, want := buf.String(), fmt.Sprintf("(%d)", i); got != want {
				errs <- fmt.Errorf("got %q want %q", got, want)
			}
		}(i)
		go func(i int) {
			defer wg.Done()
			if _, err := tmpl.New(fmt.Sprintf("extra%d", i)).Parse("x"); err != nil {
				errs <- err
			}
		}(i)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Error(err)
	}
	assert.Len(t, tmpl.Templates(), 10)
}
