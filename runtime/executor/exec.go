package executor

import (
	"fmt"
	"io"
	"reflect"
	"sort"
	"strings"

	"github.com/opal-lang/weave/core/ast"
	"github.com/opal-lang/weave/core/funcs"
	"github.com/opal-lang/weave/core/invariant"
	"github.com/opal-lang/weave/runtime/parser"
)

// control is the loop-control signal threaded back up through walk.
type control int

const (
	controlNone     control = iota // no action
	controlBreak                   // break out of the enclosing for
	controlContinue                // skip to the next iteration
)

// missingType marks "no value" for the final argument of a pipeline stage,
// distinct from null.
type missingType struct{}

var missingVal any = missingType{}

type variable struct {
	name  string
	value any
}

// state is the evaluation state of one template invocation.
type state struct {
	ctx      *Context
	tree     *parser.Tree
	wr       io.Writer
	node     ast.Node   // current node, for errors
	vars     []variable // variable stack, innermost last
	depth    int        // height of the stack of executing templates
	forDepth int        // nesting level of for loops
	rec      *recorder
}

func (s *state) at(node ast.Node) {
	s.node = node
}

func (s *state) push(name string, value any) {
	s.vars = append(s.vars, variable{name: name, value: value})
}

// pop truncates the variable stack to mark.
func (s *state) pop(mark int) {
	s.vars = s.vars[:mark]
}

// setTopVar overwrites the top-nth variable on the stack.
func (s *state) setTopVar(n int, value any) {
	s.vars[len(s.vars)-n].value = value
}

// setVar overwrites the innermost variable called name.
func (s *state) setVar(name string, value any) error {
	for i := len(s.vars) - 1; i >= 0; i-- {
		if s.vars[i].name == name {
			s.vars[i].value = value
			return nil
		}
	}
	return s.errorf("undefined variable: %s", name)
}

func (s *state) varValue(name string) (any, error) {
	for i := len(s.vars) - 1; i >= 0; i-- {
		if s.vars[i].name == name {
			return s.vars[i].value, nil
		}
	}
	return nil, s.errorf("undefined variable: %s", name)
}

func (s *state) errorf(format string, args ...any) error {
	return s.wrapf(nil, format, args...)
}

// wrapf builds an ExecError located at the current node.
func (s *state) wrapf(cause error, format string, args ...any) error {
	e := &ExecError{
		Name:    s.tree.Name,
		Message: fmt.Sprintf(format, args...),
		Cause:   cause,
	}
	if s.node != nil {
		e.Location = s.tree.ErrorLocation(s.node)
		e.Context = s.tree.ErrorContext(s.node)
	}
	return e
}

func (s *state) walk(dot any, node ast.Node) (control, error) {
	s.at(node)
	if s.rec.telemetry != nil {
		s.rec.telemetry.NodesVisited++
	}
	switch n := node.(type) {
	case *ast.ActionNode:
		val, err := s.evalPipeline(dot, n.Pipe)
		if err != nil {
			return controlNone, err
		}
		// Declarations and assignments print nothing.
		if n.Pipe.Decl == nil {
			return controlNone, s.printValue(n, val)
		}
	case *ast.IfNode:
		return s.walkIfOrWith(ast.NodeIf, dot, n.Pipe, n.List, n.ElseList)
	case *ast.WithNode:
		return s.walkIfOrWith(ast.NodeWith, dot, n.Pipe, n.List, n.ElseList)
	case *ast.ListNode:
		for _, child := range n.Nodes {
			c, err := s.walk(dot, child)
			if err != nil || c != controlNone {
				return c, err
			}
		}
	case *ast.ForNode:
		return s.walkFor(dot, n)
	case *ast.TemplateNode:
		return controlNone, s.walkTemplate(dot, n)
	case *ast.TextNode:
		if _, err := io.WriteString(s.wr, n.Text); err != nil {
			return controlNone, s.wrapf(err, "write: %v", err)
		}
	case *ast.BreakNode:
		if s.forDepth == 0 {
			return controlNone, s.errorf("invalid break outside of for")
		}
		return controlBreak, nil
	case *ast.ContinueNode:
		if s.forDepth == 0 {
			return controlNone, s.errorf("invalid continue outside of for")
		}
		return controlContinue, nil
	default:
		invariant.Invariant(false, "unknown node: %s", node)
	}
	return controlNone, nil
}

// walkIfOrWith walks an if or with node. They behave the same except that
// with rebinds dot to the pipeline value.
func (s *state) walkIfOrWith(typ ast.NodeType, dot any, pipe *ast.PipeNode, list, elseList *ast.ListNode) (control, error) {
	mark := len(s.vars)
	defer s.pop(mark)

	val, err := s.evalPipeline(dot, pipe)
	if err != nil {
		return controlNone, err
	}
	if funcs.IsTrue(val) {
		if typ == ast.NodeWith {
			return s.walk(val, list)
		}
		return s.walk(dot, list)
	}
	if elseList != nil {
		return s.walk(dot, elseList)
	}
	return controlNone, nil
}

func (s *state) walkFor(dot any, f *ast.ForNode) (control, error) {
	s.at(f)
	mark := len(s.vars)
	defer s.pop(mark)

	val, err := s.evalPipeline(dot, f.Pipe)
	if err != nil {
		return controlNone, err
	}
	start := len(s.vars)

	s.forDepth++
	ran, err := s.iterate(f, val, start)
	s.forDepth--
	if err != nil {
		return controlNone, err
	}
	if !ran && f.ElseList != nil {
		return s.walk(dot, f.ElseList)
	}
	return controlNone, nil
}

// iterate runs the body of f once per element of val. It reports whether
// there was at least one element.
func (s *state) iterate(f *ast.ForNode, val any, start int) (bool, error) {
	rv := indirect(reflect.ValueOf(val))

	// oneIteration returns true when the loop should stop.
	oneIteration := func(elem any) (bool, error) {
		if decl := f.Pipe.Decl; decl != nil {
			if f.Pipe.IsAssign {
				if err := s.setVar(decl.Ident[0], elem); err != nil {
					return true, err
				}
			} else {
				s.setTopVar(1, elem)
			}
		}
		if s.rec.debug >= DebugDetailed {
			s.rec.event(DebugDetailed, "iteration", s.tree.Name, funcs.FormatValue(elem))
		}
		c, err := s.walk(elem, f.List)
		s.pop(start)
		return err != nil || c == controlBreak, err
	}

	switch rv.Kind() {
	case reflect.Invalid:
		return false, nil
	case reflect.Slice, reflect.Array:
		for i := 0; i < rv.Len(); i++ {
			if stop, err := oneIteration(valueOf(rv.Index(i))); stop {
				return true, err
			}
		}
		return rv.Len() > 0, nil
	case reflect.Map:
		keys := rv.MapKeys()
		sortKeys(keys)
		for _, key := range keys {
			if stop, err := oneIteration(valueOf(rv.MapIndex(key))); stop {
				return true, err
			}
		}
		return len(keys) > 0, nil
	case reflect.Chan:
		if rv.Type().ChanDir() == reflect.SendDir {
			s.at(f)
			return false, s.errorf("for can't iterate over send-only channel %s", rv.Type())
		}
		ran := false
		for {
			elem, ok := rv.Recv()
			if !ok {
				return ran, nil
			}
			ran = true
			if stop, err := oneIteration(valueOf(elem)); stop {
				return true, err
			}
		}
	}
	s.at(f)
	return false, s.errorf("for can't iterate over %s", funcs.FormatValue(val))
}

func (s *state) walkTemplate(dot any, t *ast.TemplateNode) error {
	s.at(t)
	var tree *parser.Tree
	if s.ctx.Trees != nil {
		tree, _ = s.ctx.Trees.Tree(t.Name)
	}
	if tree == nil {
		return s.errorf("template %s not defined%s", t.Name, hint(t.Name, treeNames(s.ctx.Trees)))
	}
	if s.depth == s.ctx.MaxDepth {
		return s.errorf("exceeded maximum template depth (%d)", s.ctx.MaxDepth)
	}

	dot, err := s.evalPipeline(dot, t.Pipe)
	if err != nil {
		return err
	}
	if tm := s.rec.telemetry; tm != nil {
		tm.TemplateCalls++
		if s.depth+1 > tm.MaxDepth {
			tm.MaxDepth = s.depth + 1
		}
	}
	s.rec.event(DebugPaths, "enter_template", t.Name, fmt.Sprintf("depth=%d", s.depth+1))

	// Template invocations inherit no variables.
	ns := &state{
		ctx:   s.ctx,
		tree:  tree,
		wr:    s.wr,
		vars:  []variable{{name: "$", value: dot}},
		depth: s.depth + 1,
		rec:   s.rec,
	}
	_, err = ns.walk(dot, tree.Root)
	return err
}

func (s *state) printValue(n ast.Node, val any) error {
	s.at(n)
	if _, err := io.WriteString(s.wr, funcs.FormatValue(val)); err != nil {
		return s.wrapf(err, "write: %v", err)
	}
	return nil
}

// indirect strips pointers and interfaces, returning the zero Value for nil.
func indirect(v reflect.Value) reflect.Value {
	for v.IsValid() && (v.Kind() == reflect.Pointer || v.Kind() == reflect.Interface) {
		if v.IsNil() {
			return reflect.Value{}
		}
		v = v.Elem()
	}
	return v
}

// valueOf unwraps v to an any; invalid values and nil interfaces become nil.
func valueOf(v reflect.Value) any {
	if !v.IsValid() {
		return nil
	}
	if v.Kind() == reflect.Interface {
		if v.IsNil() {
			return nil
		}
		v = v.Elem()
	}
	return v.Interface()
}

// sortKeys orders map keys so iteration is deterministic.
func sortKeys(keys []reflect.Value) {
	if len(keys) == 0 {
		return
	}
	switch keys[0].Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		sort.Slice(keys, func(i, j int) bool { return keys[i].Int() < keys[j].Int() })
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
		sort.Slice(keys, func(i, j int) bool { return keys[i].Uint() < keys[j].Uint() })
	case reflect.Float32, reflect.Float64:
		sort.Slice(keys, func(i, j int) bool { return keys[i].Float() < keys[j].Float() })
	case reflect.String:
		sort.Slice(keys, func(i, j int) bool { return keys[i].String() < keys[j].String() })
	default:
		sort.Slice(keys, func(i, j int) bool {
			return strings.Compare(fmt.Sprint(keys[i]), fmt.Sprint(keys[j])) < 0
		})
	}
}
