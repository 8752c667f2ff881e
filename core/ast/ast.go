// Package ast defines the syntax tree of the template language.
//
// The node set is closed: every variant is declared here and implements the
// unexported writeTo method, so code outside this package switches over a
// known set of concrete types. Every node can be deep copied and rendered back
// to template source.
package ast

import "fmt"

// NodeType identifies the variant of a Node.
type NodeType int

const (
	NodeText       NodeType = iota // plain text
	NodeList                       // sequence of nodes
	NodePipe                       // pipeline with optional declaration
	NodeCommand                    // one pipeline stage
	NodeAction                     // {{pipeline}}
	NodeIdentifier                 // function name
	NodeField                      // .a.b
	NodeVariable                   // $x.a.b
	NodeChain                      // (pipe).a.b
	NodeDot                        // .
	NodeNull                       // null
	NodeBool                       // true, false
	NodeNumber                     // numeric or character constant
	NodeString                     // string constant
	NodeIf                         // {{if}}
	NodeWith                       // {{with}}
	NodeFor                        // {{for}}
	NodeBreak                      // {{break}}
	NodeContinue                   // {{continue}}
	NodeTemplate                   // {{template}}
	NodeElse                       // {{else}}; parse-time only
	NodeEnd                        // {{end}}; parse-time only
)

var nodeTypeNames = [...]string{
	NodeText:       "Text",
	NodeList:       "List",
	NodePipe:       "Pipe",
	NodeCommand:    "Command",
	NodeAction:     "Action",
	NodeIdentifier: "Identifier",
	NodeField:      "Field",
	NodeVariable:   "Variable",
	NodeChain:      "Chain",
	NodeDot:        "Dot",
	NodeNull:       "Null",
	NodeBool:       "Bool",
	NodeNumber:     "Number",
	NodeString:     "String",
	NodeIf:         "If",
	NodeWith:       "With",
	NodeFor:        "For",
	NodeBreak:      "Break",
	NodeContinue:   "Continue",
	NodeTemplate:   "Template",
	NodeElse:       "Else",
	NodeEnd:        "End",
}

func (t NodeType) String() string {
	if t >= 0 && int(t) < len(nodeTypeNames) {
		return nodeTypeNames[t]
	}
	return fmt.Sprintf("NodeType(%d)", int(t))
}

// Pos is a byte offset in the source text.
type Pos int

// Position returns p; embedding Pos gives a node its Position method.
func (p Pos) Position() Pos {
	return p
}

// Node is an element of the syntax tree.
type Node interface {
	Type() NodeType
	Position() Pos
	// String renders the node as template source with the default delimiters.
	String() string
	// Copy returns a structurally independent deep copy.
	Copy() Node
	writeTo(p *printer)
}

// TextNode holds plain text.
type TextNode struct {
	Pos
	Text string
}

func (t *TextNode) Type() NodeType { return NodeText }
func (t *TextNode) String() string { return defaultFormat(t) }
func (t *TextNode) Copy() Node     { return &TextNode{Pos: t.Pos, Text: t.Text} }

// ListNode holds a sequence of nodes.
type ListNode struct {
	Pos
	Nodes []Node
}

// Append adds n to the end of the list.
func (l *ListNode) Append(n Node) {
	l.Nodes = append(l.Nodes, n)
}

func (l *ListNode) Type() NodeType { return NodeList }
func (l *ListNode) String() string { return defaultFormat(l) }
func (l *ListNode) Copy() Node     { return l.CopyList() }

// CopyList is Copy with the concrete type preserved. A nil list copies to nil.
func (l *ListNode) CopyList() *ListNode {
	if l == nil {
		return nil
	}
	n := &ListNode{Pos: l.Pos, Nodes: make([]Node, 0, len(l.Nodes))}
	for _, elem := range l.Nodes {
		n.Append(elem.Copy())
	}
	return n
}

// PipeNode holds a pipeline with an optional variable binding. When Decl is
// set, IsAssign distinguishes `$x = ...` (overwrite the nearest existing
// binding) from `$x := ...` (push a new one).
type PipeNode struct {
	Pos
	IsAssign bool
	Decl     *VariableNode
	Cmds     []*CommandNode
}

// Append adds a command stage to the pipeline.
func (p *PipeNode) Append(cmd *CommandNode) {
	p.Cmds = append(p.Cmds, cmd)
}

func (p *PipeNode) Type() NodeType { return NodePipe }
func (p *PipeNode) String() string { return defaultFormat(p) }
func (p *PipeNode) Copy() Node     { return p.CopyPipe() }

// CopyPipe is Copy with the concrete type preserved. A nil pipe copies to nil.
func (p *PipeNode) CopyPipe() *PipeNode {
	if p == nil {
		return nil
	}
	n := &PipeNode{Pos: p.Pos, IsAssign: p.IsAssign, Cmds: make([]*CommandNode, 0, len(p.Cmds))}
	if p.Decl != nil {
		n.Decl = p.Decl.Copy().(*VariableNode)
	}
	for _, c := range p.Cmds {
		n.Append(c.Copy().(*CommandNode))
	}
	return n
}

// CommandNode is one pipeline stage. The first argument decides what the
// command does; the rest are its arguments.
type CommandNode struct {
	Pos
	Args []Node
}

// Append adds an argument to the command.
func (c *CommandNode) Append(arg Node) {
	c.Args = append(c.Args, arg)
}

func (c *CommandNode) Type() NodeType { return NodeCommand }
func (c *CommandNode) String() string { return defaultFormat(c) }
func (c *CommandNode) Copy() Node {
	n := &CommandNode{Pos: c.Pos, Args: make([]Node, 0, len(c.Args))}
	for _, a := range c.Args {
		n.Append(a.Copy())
	}
	return n
}

// ActionNode holds a pipeline whose value is printed unless it declares or
// assigns a variable.
type ActionNode struct {
	Pos
	Pipe *PipeNode
}

func (a *ActionNode) Type() NodeType { return NodeAction }
func (a *ActionNode) String() string { return defaultFormat(a) }
func (a *ActionNode) Copy() Node     { return &ActionNode{Pos: a.Pos, Pipe: a.Pipe.CopyPipe()} }

// IdentifierNode holds a function name.
type IdentifierNode struct {
	Pos
	Ident string
}

func (i *IdentifierNode) Type() NodeType { return NodeIdentifier }
func (i *IdentifierNode) String() string { return defaultFormat(i) }
func (i *IdentifierNode) Copy() Node     { return &IdentifierNode{Pos: i.Pos, Ident: i.Ident} }

// FieldNode holds a field path relative to dot: .a.b is ["a", "b"].
type FieldNode struct {
	Pos
	Ident []string
}

func (f *FieldNode) Type() NodeType { return NodeField }
func (f *FieldNode) String() string { return defaultFormat(f) }
func (f *FieldNode) Copy() Node {
	return &FieldNode{Pos: f.Pos, Ident: append([]string(nil), f.Ident...)}
}

// VariableNode holds a variable and an optional field path: $x.a is
// ["$x", "a"].
type VariableNode struct {
	Pos
	Ident []string
}

// Name returns the variable name including the leading $.
func (v *VariableNode) Name() string {
	return v.Ident[0]
}

func (v *VariableNode) Type() NodeType { return NodeVariable }
func (v *VariableNode) String() string { return defaultFormat(v) }
func (v *VariableNode) Copy() Node {
	return &VariableNode{Pos: v.Pos, Ident: append([]string(nil), v.Ident...)}
}

// ChainNode holds a term followed by field accesses: (pipe).a.b.
type ChainNode struct {
	Pos
	Node  Node
	Field []string
}

// Add appends a field segment. The leading dot is optional.
func (c *ChainNode) Add(field string) {
	if len(field) > 0 && field[0] == '.' {
		field = field[1:]
	}
	c.Field = append(c.Field, field)
}

func (c *ChainNode) Type() NodeType { return NodeChain }
func (c *ChainNode) String() string { return defaultFormat(c) }
func (c *ChainNode) Copy() Node {
	return &ChainNode{Pos: c.Pos, Node: c.Node.Copy(), Field: append([]string(nil), c.Field...)}
}

// DotNode is the cursor.
type DotNode struct {
	Pos
}

func (d *DotNode) Type() NodeType { return NodeDot }
func (d *DotNode) String() string { return "." }
func (d *DotNode) Copy() Node     { return &DotNode{Pos: d.Pos} }

// NullNode is the untyped null constant.
type NullNode struct {
	Pos
}

func (n *NullNode) Type() NodeType { return NodeNull }
func (n *NullNode) String() string { return "null" }
func (n *NullNode) Copy() Node     { return &NullNode{Pos: n.Pos} }

// BoolNode holds a boolean constant.
type BoolNode struct {
	Pos
	True bool
}

func (b *BoolNode) Type() NodeType { return NodeBool }
func (b *BoolNode) String() string { return defaultFormat(b) }
func (b *BoolNode) Copy() Node     { return &BoolNode{Pos: b.Pos, True: b.True} }

// NumberNode holds a number constant. A literal may be representable as both
// an integer and a float; the flags record which conversions were exact.
type NumberNode struct {
	Pos
	IsInt   bool
	IsFloat bool
	Int     int
	Float   float64
	Text    string // original source text
}

func (n *NumberNode) Type() NodeType { return NodeNumber }
func (n *NumberNode) String() string { return n.Text }
func (n *NumberNode) Copy() Node {
	c := *n
	return &c
}

// StringNode holds a string constant.
type StringNode struct {
	Pos
	Quoted string // original text including quotes
	Text   string // decoded value
}

func (s *StringNode) Type() NodeType { return NodeString }
func (s *StringNode) String() string { return s.Quoted }
func (s *StringNode) Copy() Node     { return &StringNode{Pos: s.Pos, Quoted: s.Quoted, Text: s.Text} }

// BranchNode is the shared shape of if, with and for.
type BranchNode struct {
	NodeType
	Pos
	Pipe     *PipeNode
	List     *ListNode
	ElseList *ListNode // nil when there is no else
}

// Type returns the concrete branch kind.
func (b *BranchNode) Type() NodeType { return b.NodeType }

func (b *BranchNode) copyBranch() BranchNode {
	return BranchNode{
		NodeType: b.NodeType,
		Pos:      b.Pos,
		Pipe:     b.Pipe.CopyPipe(),
		List:     b.List.CopyList(),
		ElseList: b.ElseList.CopyList(),
	}
}

// IfNode is {{if pipe}} list {{else}} list {{end}}.
type IfNode struct {
	BranchNode
}

func (i *IfNode) String() string { return defaultFormat(i) }
func (i *IfNode) Copy() Node     { return &IfNode{i.copyBranch()} }

// WithNode is {{with pipe}} list {{else}} list {{end}}.
type WithNode struct {
	BranchNode
}

func (w *WithNode) String() string { return defaultFormat(w) }
func (w *WithNode) Copy() Node     { return &WithNode{w.copyBranch()} }

// ForNode is {{for pipe}} list {{else}} list {{end}}.
type ForNode struct {
	BranchNode
}

func (f *ForNode) String() string { return defaultFormat(f) }
func (f *ForNode) Copy() Node     { return &ForNode{f.copyBranch()} }

// BreakNode is {{break}}.
type BreakNode struct {
	Pos
}

func (b *BreakNode) Type() NodeType { return NodeBreak }
func (b *BreakNode) String() string { return defaultFormat(b) }
func (b *BreakNode) Copy() Node     { return &BreakNode{Pos: b.Pos} }

// ContinueNode is {{continue}}.
type ContinueNode struct {
	Pos
}

func (c *ContinueNode) Type() NodeType { return NodeContinue }
func (c *ContinueNode) String() string { return defaultFormat(c) }
func (c *ContinueNode) Copy() Node     { return &ContinueNode{Pos: c.Pos} }

// TemplateNode invokes a named template with dot set to the pipeline value,
// or to null when there is no pipeline.
type TemplateNode struct {
	Pos
	Name string
	Pipe *PipeNode
}

func (t *TemplateNode) Type() NodeType { return NodeTemplate }
func (t *TemplateNode) String() string { return defaultFormat(t) }
func (t *TemplateNode) Copy() Node {
	return &TemplateNode{Pos: t.Pos, Name: t.Name, Pipe: t.Pipe.CopyPipe()}
}

// ElseNode marks an {{else}} while parsing. It never appears in a finished tree.
type ElseNode struct {
	Pos
}

func (e *ElseNode) Type() NodeType { return NodeElse }
func (e *ElseNode) String() string { return defaultFormat(e) }
func (e *ElseNode) Copy() Node     { return &ElseNode{Pos: e.Pos} }

// EndNode marks an {{end}} while parsing. It never appears in a finished tree.
type EndNode struct {
	Pos
}

func (e *EndNode) Type() NodeType { return NodeEnd }
func (e *EndNode) String() string { return defaultFormat(e) }
func (e *EndNode) Copy() Node     { return &EndNode{Pos: e.Pos} }
