// Package template is the public face of the engine: a family of named
// templates sharing one function registry, parsed from text or files and
// executed against arbitrary Go data.
//
// Basic usage:
//
//	t := template.Must(template.New("page").Parse(`{{define "row"}}<td>{{.}}</td>{{end}}{{for .}}{{template "row" .}}{{end}}`))
//	err := t.Execute(os.Stdout, []int{1, 2, 3})
package template

import (
	"fmt"
	"io"
	"log/slog"
	"sort"
	"strings"
	"sync"

	"github.com/opal-lang/weave/core/debuglog"
	"github.com/opal-lang/weave/core/funcs"
	"github.com/opal-lang/weave/core/invariant"
	"github.com/opal-lang/weave/runtime/executor"
	"github.com/opal-lang/weave/runtime/parser"
)

// FuncMap maps function names to Go funcs or []any overload sets.
type FuncMap = funcs.FuncMap

// common holds the state shared by every template of a family.
type common struct {
	mu       sync.RWMutex // guards tmpl; held per lookup or insert only
	tmpl     map[string]*Template
	funcs    *funcs.Registry
	maxDepth int
	debug    bool
	logger   *slog.Logger
}

func newCommon(cfg Config) *common {
	return &common{
		tmpl:     make(map[string]*Template),
		funcs:    funcs.NewRegistry(),
		maxDepth: cfg.MaxExecDepth,
		debug:    cfg.Debug,
		logger:   debuglog.NewWriter(logOutput, cfg.Debug),
	}
}

// Tree implements executor.TreeSet.
func (c *common) Tree(name string) (*parser.Tree, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if tmpl := c.tmpl[name]; tmpl != nil && tmpl.tree != nil {
		return tmpl.tree, true
	}
	return nil, false
}

// TreeNames implements executor.TreeSet.
func (c *common) TreeNames() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	names := make([]string, 0, len(c.tmpl))
	for name, tmpl := range c.tmpl {
		if tmpl.tree != nil {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names
}

// Template is one named template of a family.
type Template struct {
	name       string
	tree       *parser.Tree
	common     *common
	leftDelim  string
	rightDelim string
}

// Option configures a template family at construction.
type Option func(*Template)

// WithConfig applies cfg to the family.
func WithConfig(cfg Config) Option {
	return func(t *Template) {
		t.leftDelim = cfg.LeftDelim
		t.rightDelim = cfg.RightDelim
		t.common = newCommon(cfg)
	}
}

// WithMaxDepth limits {{template}} recursion.
func WithMaxDepth(depth int) Option {
	return func(t *Template) {
		t.init()
		t.common.maxDepth = depth
	}
}

// WithFuncs adds fns to the family's registry. It panics if an entry is not
// a func, like Funcs.
func WithFuncs(fns FuncMap) Option {
	return func(t *Template) {
		t.Funcs(fns)
	}
}

// New allocates a new, undefined template family with the given name.
func New(name string, opts ...Option) *Template {
	t := &Template{name: name}
	for _, opt := range opts {
		opt(t)
	}
	t.init()
	return t
}

// NewWithConfig is New(name, WithConfig(cfg)).
func NewWithConfig(name string, cfg Config) *Template {
	return New(name, WithConfig(cfg))
}

// Must panics if err is non-nil. It wraps calls returning (*Template, error)
// in variable initializations.
func Must(t *Template, err error) *Template {
	if err != nil {
		panic(err)
	}
	return t
}

func (t *Template) init() {
	if t.common == nil {
		t.common = newCommon(DefaultConfig())
	}
}

// New allocates a template in the same family as t, with t's delimiters.
func (t *Template) New(name string) *Template {
	t.init()
	return &Template{
		name:       name,
		common:     t.common,
		leftDelim:  t.leftDelim,
		rightDelim: t.rightDelim,
	}
}

// Name returns the name of the template.
func (t *Template) Name() string {
	return t.name
}

// Tree returns the parse tree of the template, or nil before parsing.
func (t *Template) Tree() *parser.Tree {
	return t.tree
}

// Delims sets the action delimiters for subsequent Parse calls. An empty
// delimiter means the default.
func (t *Template) Delims(left, right string) *Template {
	t.init()
	t.leftDelim = left
	t.rightDelim = right
	return t
}

// Funcs adds the entries of fns to the family's function registry, replacing
// existing entries of the same name. Functions must be added before the
// templates that use them are parsed. It panics if an entry is not a func.
func (t *Template) Funcs(fns FuncMap) *Template {
	t.init()
	if err := t.common.funcs.Add(fns); err != nil {
		panic(err)
	}
	return t
}

// Parse parses text as the body of t. {{define}} blocks become further
// templates of the family. A redefinition replaces the earlier body unless the
// new body is empty.
func (t *Template) Parse(text string) (*Template, error) {
	t.init()
	trees, err := parser.Parse(t.name, text, t.leftDelim, t.rightDelim, t.common.funcs)
	if err != nil {
		return nil, err
	}
	if err := t.addTrees(trees); err != nil {
		return nil, err
	}
	t.common.logger.Debug("parsed", "template", t.name, "trees", len(trees))
	return t, nil
}

func (t *Template) addTrees(trees map[string]*parser.Tree) error {
	names := make([]string, 0, len(trees))
	for name := range trees {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		if _, err := t.AddParseTree(name, trees[name]); err != nil {
			return err
		}
	}
	return nil
}

// AddParseTree associates tree with t under name. If name is t's own name
// the tree becomes t's body; otherwise a new template of the family is made.
func (t *Template) AddParseTree(name string, tree *parser.Tree) (*Template, error) {
	invariant.NotNil(tree, "tree")
	t.init()

	t.common.mu.Lock()
	defer t.common.mu.Unlock()
	nt := t
	if name != t.name {
		nt = t.New(name)
	}
	if t.associate(nt, tree) || nt.tree == nil {
		nt.tree = tree
	}
	return nt, nil
}

// associate installs nt in the family table. An empty tree never replaces an
// existing definition. Callers hold the lock.
func (t *Template) associate(nt *Template, tree *parser.Tree) bool {
	invariant.Invariant(nt.common == t.common, "associate not common")
	if old := t.common.tmpl[nt.name]; old != nil && parser.IsEmptyTree(tree.Root) && old.tree != nil {
		return false
	}
	t.common.tmpl[nt.name] = nt
	return true
}

// Lookup returns the template with the given name in t's family, or nil.
func (t *Template) Lookup(name string) *Template {
	if t.common == nil {
		return nil
	}
	t.common.mu.RLock()
	defer t.common.mu.RUnlock()
	return t.common.tmpl[name]
}

// Templates returns the defined templates of the family, sorted by name.
func (t *Template) Templates() []*Template {
	if t.common == nil {
		return nil
	}
	t.common.mu.RLock()
	defer t.common.mu.RUnlock()
	out := make([]*Template, 0, len(t.common.tmpl))
	for _, tmpl := range t.common.tmpl {
		out = append(out, tmpl)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].name < out[j].name })
	return out
}

// DefinedTemplates lists the family's defined templates for error messages,
// prefixed by "; defined templates are: ". It is empty if there are none.
func (t *Template) DefinedTemplates() string {
	if t.common == nil {
		return ""
	}
	names := t.common.TreeNames()
	if len(names) == 0 {
		return ""
	}
	quoted := make([]string, len(names))
	for i, name := range names {
		quoted[i] = fmt.Sprintf("%q", name)
	}
	return "; defined templates are: " + strings.Join(quoted, ", ")
}

// Clone returns a duplicate of the family. Templates added to the clone do
// not affect the original. Parse trees are shared; they are never mutated.
func (t *Template) Clone() (*Template, error) {
	nt := t.copy(nil)
	nt.init()
	if t.common == nil {
		return nt, nil
	}
	nt.common.funcs = t.common.funcs.Clone()
	nt.common.maxDepth = t.common.maxDepth
	nt.common.debug = t.common.debug
	nt.common.logger = t.common.logger

	t.common.mu.RLock()
	defer t.common.mu.RUnlock()
	for name, tmpl := range t.common.tmpl {
		if name == t.name {
			nt.common.tmpl[t.name] = nt
			continue
		}
		nt.common.tmpl[name] = tmpl.copy(nt.common)
	}
	return nt, nil
}

func (t *Template) copy(c *common) *Template {
	return &Template{
		name:       t.name,
		tree:       t.tree,
		common:     c,
		leftDelim:  t.leftDelim,
		rightDelim: t.rightDelim,
	}
}

// Execute applies t to data and writes the output to w. On error, output
// already written is not retracted.
func (t *Template) Execute(w io.Writer, data any) error {
	_, err := t.ExecuteWith(w, data)
	return err
}

// ExecuteWith is Execute that also returns execution telemetry. Telemetry is
// only collected when the family was configured with Debug.
func (t *Template) ExecuteWith(w io.Writer, data any) (*executor.Result, error) {
	t.init()
	if t.tree == nil {
		return nil, &executor.ExecError{
			Name:    t.name,
			Message: fmt.Sprintf("%s is an incomplete or empty template%s", t.name, t.DefinedTemplates()),
		}
	}
	res, err := executor.ExecuteWith(t.execContext(), t.tree, w, data)
	if t.common.debug && res != nil && res.Telemetry != nil {
		t.common.logger.Debug("executed", "template", t.name,
			"duration", res.Duration,
			"nodes", res.Telemetry.NodesVisited,
			"calls", res.Telemetry.FuncCalls,
			"templates", res.Telemetry.TemplateCalls,
			"error", err != nil)
	}
	return res, err
}

// ExecuteTemplate applies the template of t's family called name.
func (t *Template) ExecuteTemplate(w io.Writer, name string, data any) error {
	t.init()
	anchor := t.tree
	if anchor == nil {
		anchor = parser.New(t.name)
	}
	return executor.ExecuteNamed(t.execContext(), anchor, name, w, data)
}

func (t *Template) execContext() executor.Context {
	ctx := executor.Context{
		Funcs:    t.common.funcs,
		Trees:    t.common,
		MaxDepth: t.common.maxDepth,
	}
	if t.common.debug {
		ctx.Telemetry = executor.TelemetryTiming
		ctx.Debug = executor.DebugPaths
	}
	return ctx
}
