package parser

import (
	"fmt"
	"strings"

	"github.com/opal-lang/weave/core/ast"
	"github.com/opal-lang/weave/core/funcs"
	"github.com/opal-lang/weave/core/invariant"
	"github.com/opal-lang/weave/runtime/lexer"
)

// Tree is the representation of a single parsed template.
type Tree struct {
	Name      string        // name of the template represented by the tree
	ParseName string        // name of the top-level template during parsing, for error messages
	Root      *ast.ListNode // top-level root of the tree

	text       string // text parsed to create the template (or its parent)
	leftDelim  string
	rightDelim string

	// Parsing only; cleared after parse.
	funcs     []funcs.Lookup
	lex       *lexer.Lexer
	token     [3]lexer.Token // three-token lookahead
	peekCount int
	vars      []string // variables in scope, innermost last
	forDepth  int      // nesting level of for loops
	treeSet   map[string]*Tree
	state     *parseState // shared with nested define trees
}

// New allocates an empty tree with the given name.
func New(name string) *Tree {
	return &Tree{
		Name:       name,
		ParseName:  name,
		leftDelim:  lexer.DefaultLeftDelim,
		rightDelim: lexer.DefaultRightDelim,
	}
}

// Copy returns a deep copy of the tree. Parse state is not copied.
func (t *Tree) Copy() *Tree {
	if t == nil {
		return nil
	}
	return &Tree{
		Name:       t.Name,
		ParseName:  t.ParseName,
		Root:       t.Root.CopyList(),
		text:       t.text,
		leftDelim:  t.leftDelim,
		rightDelim: t.rightDelim,
	}
}

// String renders the tree back to template source using its delimiters.
func (t *Tree) String() string {
	if t == nil || t.Root == nil {
		return ""
	}
	return ast.Format(t.Root, t.leftDelim, t.rightDelim)
}

// Source returns the full text the tree was parsed from. For a tree produced
// by a define block this is the enclosing template's text.
func (t *Tree) Source() string {
	return t.text
}

// Delims returns the action delimiters the tree was parsed with.
func (t *Tree) Delims() (left, right string) {
	return t.leftDelim, t.rightDelim
}

// ErrorLocation returns "parseName:line:col" for a node of this tree.
// Lines are 1-based; columns are 0-based byte offsets within the line.
func (t *Tree) ErrorLocation(n ast.Node) string {
	pos := int(n.Position())
	if pos > len(t.text) {
		pos = len(t.text)
	}
	text := t.text[:pos]
	col := pos
	if i := strings.LastIndex(text, "\n"); i >= 0 {
		col = pos - (i + 1)
	}
	line := 1 + strings.Count(text, "\n")
	return fmt.Sprintf("%s:%d:%d", t.ParseName, line, col)
}

// ErrorContext returns the node's source form, cut to 20 bytes.
func (t *Tree) ErrorContext(n ast.Node) string {
	context := ast.Format(n, t.leftDelim, t.rightDelim)
	if len(context) > 20 {
		context = fmt.Sprintf("%.20s...", context)
	}
	return context
}

// IsEmptyTree reports whether a tree holds nothing but whitespace text.
func IsEmptyTree(n ast.Node) bool {
	switch n := n.(type) {
	case nil:
		return true
	case *ast.ListNode:
		if n == nil {
			return true
		}
		for _, node := range n.Nodes {
			if !IsEmptyTree(node) {
				return false
			}
		}
		return true
	case *ast.TextNode:
		return strings.TrimSpace(n.Text) == ""
	case *ast.ActionNode, *ast.IfNode, *ast.ForNode, *ast.WithNode, *ast.TemplateNode,
		*ast.BreakNode, *ast.ContinueNode:
		return false
	}
	invariant.Invariant(false, "unknown node: %s", n)
	return false
}

// add installs t into the tree set. An empty tree never replaces an existing
// definition; two non-empty definitions of one name are an error.
func (t *Tree) add() {
	existing := t.treeSet[t.Name]
	if existing == nil || IsEmptyTree(existing.Root) {
		t.treeSet[t.Name] = t
		t.state.log("add_tree", t.Name)
		return
	}
	if !IsEmptyTree(t.Root) {
		t.errorf(ErrorRedefinition, "multiple definition of template %s", t.Name)
	}
}
