package executor

import (
	"strings"

	"github.com/opal-lang/weave/core/ast"
	"github.com/opal-lang/weave/core/funcs"
)

func (s *state) evalPipeline(dot any, pipe *ast.PipeNode) (any, error) {
	if pipe == nil {
		return nil, nil
	}
	s.at(pipe)
	val := missingVal
	for _, cmd := range pipe.Cmds {
		var err error
		val, err = s.evalCommand(dot, cmd, val)
		if err != nil {
			return nil, err
		}
	}
	if decl := pipe.Decl; decl != nil {
		if pipe.IsAssign {
			if err := s.setVar(decl.Ident[0], val); err != nil {
				return nil, err
			}
		} else {
			s.push(decl.Ident[0], val)
		}
	}
	return val, nil
}

// evalCommand evaluates one pipeline stage. final is the previous stage's
// value, or missingVal for the first stage.
func (s *state) evalCommand(dot any, cmd *ast.CommandNode, final any) (any, error) {
	first := cmd.Args[0]
	switch n := first.(type) {
	case *ast.FieldNode:
		return s.evalFieldNode(dot, n, cmd.Args, final)
	case *ast.ChainNode:
		return s.evalChainNode(dot, n, cmd.Args, final)
	case *ast.IdentifierNode:
		return s.evalFunction(dot, n, cmd, cmd.Args, final)
	case *ast.PipeNode:
		// Parenthesized pipeline. The arguments are all inside it.
		if err := s.notAFunction(cmd.Args, final); err != nil {
			return nil, err
		}
		return s.evalPipeline(dot, n)
	case *ast.VariableNode:
		return s.evalVariableNode(dot, n, cmd.Args, final)
	}

	s.at(first)
	if err := s.notAFunction(cmd.Args, final); err != nil {
		return nil, err
	}
	switch word := first.(type) {
	case *ast.BoolNode:
		return word.True, nil
	case *ast.DotNode:
		return dot, nil
	case *ast.NullNode:
		return nil, s.errorf("null is not a command")
	case *ast.NumberNode:
		return s.constant(word), nil
	case *ast.StringNode:
		return word.Text, nil
	}
	return nil, s.errorf("can't evaluate command %s", first)
}

func (s *state) notAFunction(args []ast.Node, final any) error {
	if len(args) > 1 || final != missingVal {
		return s.errorf("can't give argument to non-function %s", args[0])
	}
	return nil
}

// constant returns the value of a number literal where no parameter type
// guides the choice: a float if the text is written as one, else an int.
func (s *state) constant(n *ast.NumberNode) any {
	s.at(n)
	if n.IsFloat && !isHexConstant(n.Text) && strings.ContainsAny(n.Text, ".eEpP") {
		return n.Float
	}
	if n.IsInt {
		return n.Int
	}
	return n.Float
}

func isHexConstant(s string) bool {
	s = strings.TrimLeft(s, "+-")
	return len(s) > 2 && s[0] == '0' && (s[1] == 'x' || s[1] == 'X')
}

func (s *state) evalArg(dot any, node ast.Node) (any, error) {
	s.at(node)
	switch n := node.(type) {
	case *ast.DotNode:
		return dot, nil
	case *ast.NullNode:
		return nil, nil
	case *ast.FieldNode:
		return s.evalFieldNode(dot, n, []ast.Node{n}, missingVal)
	case *ast.VariableNode:
		return s.evalVariableNode(dot, n, nil, missingVal)
	case *ast.PipeNode:
		return s.evalPipeline(dot, n)
	case *ast.IdentifierNode:
		return s.evalFunction(dot, n, n, nil, missingVal)
	case *ast.ChainNode:
		return s.evalChainNode(dot, n, nil, missingVal)
	case *ast.BoolNode:
		return n.True, nil
	case *ast.NumberNode:
		return s.constant(n), nil
	case *ast.StringNode:
		return n.Text, nil
	}
	return nil, s.errorf("can't handle %s for arg", node)
}

func (s *state) evalFieldNode(dot any, field *ast.FieldNode, args []ast.Node, final any) (any, error) {
	s.at(field)
	return s.evalFieldChain(dot, dot, field, field.Ident, args, final)
}

func (s *state) evalChainNode(dot any, chain *ast.ChainNode, args []ast.Node, final any) (any, error) {
	s.at(chain)
	if len(chain.Field) == 0 {
		return nil, s.errorf("internal error: no fields in evalChainNode")
	}
	if _, ok := chain.Node.(*ast.NullNode); ok {
		return nil, s.errorf("indirection through explicit null in %s", chain)
	}
	// (pipe).field1.field2: eval the pipeline, then the fields.
	pipe, err := s.evalArg(dot, chain.Node)
	if err != nil {
		return nil, err
	}
	return s.evalFieldChain(dot, pipe, chain, chain.Field, args, final)
}

func (s *state) evalVariableNode(dot any, v *ast.VariableNode, args []ast.Node, final any) (any, error) {
	// $x.field has $x as the first ident and field as the second.
	s.at(v)
	val, err := s.varValue(v.Ident[0])
	if err != nil {
		return nil, err
	}
	if len(v.Ident) == 1 {
		if err := s.notAFunction(args, final); err != nil {
			return nil, err
		}
		return val, nil
	}
	return s.evalFieldChain(dot, val, v, v.Ident[1:], args, final)
}

// evalFieldChain evaluates .x.y.z possibly followed by arguments. dot is the
// environment for the arguments; receiver is the value walked along the chain.
// Only the last name receives the arguments.
func (s *state) evalFieldChain(dot, receiver any, node ast.Node, ident []string, args []ast.Node, final any) (any, error) {
	n := len(ident)
	for i := 0; i < n-1; i++ {
		var err error
		receiver, err = s.evalField(dot, ident[i], node, nil, missingVal, receiver)
		if err != nil {
			return nil, err
		}
	}
	return s.evalField(dot, ident[n-1], node, args, final, receiver)
}

func (s *state) evalFunction(dot any, node *ast.IdentifierNode, cmd ast.Node, args []ast.Node, final any) (any, error) {
	s.at(node)
	name := node.Ident
	fns, ok := funcs.Find(name, s.ctx.Funcs, funcs.Builtins())
	if !ok {
		return nil, s.errorf("%s is not a defined function%s", name, hint(name, funcs.AllNames(s.ctx.Funcs, funcs.Builtins())))
	}
	return s.evalCall(dot, fns, cmd, name, args, final)
}
