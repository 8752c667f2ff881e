// Package executor walks a parsed template tree against a data value and
// writes the rendered output.
package executor

import (
	"fmt"
	"io"
	"time"

	"github.com/opal-lang/weave/core/debuglog"
	"github.com/opal-lang/weave/core/funcs"
	"github.com/opal-lang/weave/core/invariant"
	"github.com/opal-lang/weave/runtime/parser"
)

// DefaultMaxDepth is the template-invocation nesting limit used when
// Context.MaxDepth is not set.
const DefaultMaxDepth = 1500

var logger = debuglog.New("WEAVE_DEBUG_EXEC")

// DebugLevel controls debug tracing (development only)
type DebugLevel int

const (
	DebugOff      DebugLevel = iota // No debug info (default)
	DebugPaths                      // Template entry/exit tracing
	DebugDetailed                   // Function calls and loop iterations
)

// TelemetryLevel controls telemetry collection (production-safe)
type TelemetryLevel int

const (
	TelemetryOff    TelemetryLevel = iota // Zero overhead (default)
	TelemetryBasic                        // Counts only
	TelemetryTiming                       // Counts + total duration
)

// TreeSet resolves template names to parsed trees.
type TreeSet interface {
	Tree(name string) (*parser.Tree, bool)
	TreeNames() []string
}

// Trees is a TreeSet backed by a plain map, as returned by parser.Parse.
type Trees map[string]*parser.Tree

// Tree implements TreeSet.
func (t Trees) Tree(name string) (*parser.Tree, bool) {
	tree, ok := t[name]
	return tree, ok
}

// TreeNames implements TreeSet.
func (t Trees) TreeNames() []string {
	names := make([]string, 0, len(t))
	for name := range t {
		names = append(names, name)
	}
	return names
}

// Context carries what an execution needs besides the tree and the data: the
// function registry, the family's name→tree table, and limits.
type Context struct {
	Funcs    funcs.Lookup // consulted before the builtins; may be nil
	Trees    TreeSet      // targets of {{template}}; may be nil
	MaxDepth int          // template recursion limit; <= 0 means DefaultMaxDepth

	Debug     DebugLevel
	Telemetry TelemetryLevel
}

// FieldResolver lets a data type answer attribute lookups itself instead of
// going through reflection.
type FieldResolver interface {
	ResolveField(name string) (any, bool)
}

// Result holds the observability output of one execution.
type Result struct {
	Duration    time.Duration       // Total execution time
	Telemetry   *ExecutionTelemetry // nil if TelemetryOff
	DebugEvents []DebugEvent        // nil if DebugOff
}

// ExecutionTelemetry holds execution counters.
type ExecutionTelemetry struct {
	NodesVisited  int // every node passed to walk
	FuncCalls     int // successful function and method calls
	TemplateCalls int // {{template}} invocations
	MaxDepth      int // deepest template nesting reached
}

// DebugEvent represents a debug trace event
type DebugEvent struct {
	Timestamp time.Time
	Event     string // "enter_execute", "enter_template", "call", ...
	Template  string // name of the executing template
	Context   string // Additional context
}

// recorder is shared by every state of one execution.
type recorder struct {
	debug       DebugLevel
	telemetry   *ExecutionTelemetry
	debugEvents []DebugEvent
}

func (r *recorder) event(level DebugLevel, event, tmpl, context string) {
	if r.debug < level {
		return
	}
	r.debugEvents = append(r.debugEvents, DebugEvent{
		Timestamp: time.Now(),
		Event:     event,
		Template:  tmpl,
		Context:   context,
	})
}

// Execute applies tree to data and writes the output to w. Output written
// before an error is not retracted.
func Execute(ctx Context, tree *parser.Tree, w io.Writer, data any) error {
	_, err := ExecuteWith(ctx, tree, w, data)
	return err
}

// ExecuteWith is Execute returning telemetry and debug events as configured
// in ctx. The Result is returned even when execution fails.
func ExecuteWith(ctx Context, tree *parser.Tree, w io.Writer, data any) (res *Result, err error) {
	defer invariant.Recover(&err)

	// INPUT CONTRACT
	invariant.NotNil(tree, "tree")
	invariant.NotNil(w, "writer")

	if ctx.MaxDepth <= 0 {
		ctx.MaxDepth = DefaultMaxDepth
	}
	rec := &recorder{debug: ctx.Debug}
	if ctx.Telemetry != TelemetryOff {
		rec.telemetry = &ExecutionTelemetry{}
	}
	start := time.Now()
	res = &Result{}
	defer func() {
		if ctx.Telemetry == TelemetryTiming {
			res.Duration = time.Since(start)
		}
		res.Telemetry = rec.telemetry
		res.DebugEvents = rec.debugEvents
	}()

	s := &state{
		ctx:  &ctx,
		tree: tree,
		wr:   w,
		vars: []variable{{name: "$", value: data}},
		rec:  rec,
	}
	if tree.Root == nil {
		return res, s.errorf("%s is an incomplete or empty template", tree.Name)
	}

	logger.Debug("execute", "template", tree.Name, "data", fmt.Sprintf("%T", data))
	rec.event(DebugPaths, "enter_execute", tree.Name, fmt.Sprintf("data=%T", data))
	_, err = s.walk(data, tree.Root)
	rec.event(DebugPaths, "exit_execute", tree.Name, fmt.Sprintf("err=%v", err != nil))
	return res, err
}

// ExecuteNamed executes the template called name from the family that tree
// belongs to.
func ExecuteNamed(ctx Context, tree *parser.Tree, name string, w io.Writer, data any) error {
	var target *parser.Tree
	if ctx.Trees != nil {
		target, _ = ctx.Trees.Tree(name)
	}
	if target == nil {
		anchor := ""
		if tree != nil {
			anchor = tree.Name
		}
		return &ExecError{
			Name:    name,
			Message: fmt.Sprintf("no template %s associated with template %s%s", name, anchor, hint(name, treeNames(ctx.Trees))),
		}
	}
	return Execute(ctx, target, w, data)
}

func treeNames(ts TreeSet) []string {
	if ts == nil {
		return nil
	}
	return ts.TreeNames()
}
