package ast

import (
	"strconv"
	"strings"
)

// Default action delimiters used by Node.String.
const (
	DefaultLeftDelim  = "{{"
	DefaultRightDelim = "}}"
)

// Format renders n as template source using the given action delimiters.
// Parsing the result with the same delimiters yields an equivalent tree.
func Format(n Node, leftDelim, rightDelim string) string {
	p := &printer{left: leftDelim, right: rightDelim}
	n.writeTo(p)
	return p.sb.String()
}

func defaultFormat(n Node) string {
	return Format(n, DefaultLeftDelim, DefaultRightDelim)
}

type printer struct {
	sb    strings.Builder
	left  string
	right string
}

func (p *printer) write(s string) {
	p.sb.WriteString(s)
}

func (p *printer) action(s string) {
	p.write(p.left)
	p.write(s)
	p.write(p.right)
}

func (t *TextNode) writeTo(p *printer) {
	p.write(t.Text)
}

func (l *ListNode) writeTo(p *printer) {
	if l == nil {
		return
	}
	for _, n := range l.Nodes {
		n.writeTo(p)
	}
}

func (pn *PipeNode) writeTo(p *printer) {
	if pn.Decl != nil {
		pn.Decl.writeTo(p)
		if pn.IsAssign {
			p.write(" = ")
		} else {
			p.write(" := ")
		}
	}
	for i, c := range pn.Cmds {
		if i > 0 {
			p.write(" | ")
		}
		c.writeTo(p)
	}
}

func (c *CommandNode) writeTo(p *printer) {
	for i, arg := range c.Args {
		if i > 0 {
			p.write(" ")
		}
		if pipe, ok := arg.(*PipeNode); ok {
			p.write("(")
			pipe.writeTo(p)
			p.write(")")
			continue
		}
		arg.writeTo(p)
	}
}

func (a *ActionNode) writeTo(p *printer) {
	p.write(p.left)
	a.Pipe.writeTo(p)
	p.write(p.right)
}

func (i *IdentifierNode) writeTo(p *printer) {
	p.write(i.Ident)
}

func (f *FieldNode) writeTo(p *printer) {
	for _, id := range f.Ident {
		p.write(".")
		p.write(id)
	}
}

func (v *VariableNode) writeTo(p *printer) {
	p.write(strings.Join(v.Ident, "."))
}

func (c *ChainNode) writeTo(p *printer) {
	if pipe, ok := c.Node.(*PipeNode); ok {
		p.write("(")
		pipe.writeTo(p)
		p.write(")")
	} else {
		c.Node.writeTo(p)
	}
	for _, f := range c.Field {
		p.write(".")
		p.write(f)
	}
}

func (d *DotNode) writeTo(p *printer)  { p.write(".") }
func (n *NullNode) writeTo(p *printer) { p.write("null") }

func (b *BoolNode) writeTo(p *printer) {
	if b.True {
		p.write("true")
	} else {
		p.write("false")
	}
}

func (n *NumberNode) writeTo(p *printer) { p.write(n.Text) }
func (s *StringNode) writeTo(p *printer) { p.write(s.Quoted) }

func (b *BranchNode) writeTo(p *printer) {
	var name string
	switch b.NodeType {
	case NodeIf:
		name = "if"
	case NodeWith:
		name = "with"
	case NodeFor:
		name = "for"
	default:
		panic("unknown branch type " + b.NodeType.String())
	}
	p.write(p.left)
	p.write(name)
	p.write(" ")
	b.Pipe.writeTo(p)
	p.write(p.right)
	b.List.writeTo(p)
	if b.ElseList != nil {
		p.action("else")
		b.ElseList.writeTo(p)
	}
	p.action("end")
}

func (b *BreakNode) writeTo(p *printer)    { p.action("break") }
func (c *ContinueNode) writeTo(p *printer) { p.action("continue") }
func (e *ElseNode) writeTo(p *printer)     { p.action("else") }
func (e *EndNode) writeTo(p *printer)      { p.action("end") }

func (t *TemplateNode) writeTo(p *printer) {
	p.write(p.left)
	p.write("template ")
	p.write(strconv.Quote(t.Name))
	if t.Pipe != nil {
		p.write(" ")
		t.Pipe.writeTo(p)
	}
	p.write(p.right)
}
