// Package parser builds syntax trees from template source.
//
// Parsing is recursive descent over the lexer's pull-based token stream with
// up to three tokens of pushback. Variable scope is tracked while parsing, so
// references to undeclared variables and unknown functions fail here rather
// than at execution time. Nested define blocks become separate trees in the
// returned set.
package parser

import (
	"fmt"
	"strings"
	"time"

	"github.com/opal-lang/weave/core/ast"
	"github.com/opal-lang/weave/core/debuglog"
	"github.com/opal-lang/weave/core/funcs"
	"github.com/opal-lang/weave/core/invariant"
	"github.com/opal-lang/weave/runtime/lexer"
)

var logger = debuglog.New("WEAVE_DEBUG_PARSER")

// Result is the outcome of ParseWith.
type Result struct {
	Trees       map[string]*Tree // nil when parsing failed
	Telemetry   *ParseTelemetry  // nil unless telemetry was enabled
	DebugEvents []DebugEvent     // nil unless debugging was enabled
}

// parseState is shared by a top-level tree and the define trees nested in it.
type parseState struct {
	config      *ParserConfig
	telemetry   *ParseTelemetry
	lexTime     time.Duration
	debugEvents []DebugEvent
	pos         int
}

func (s *parseState) log(event, context string) {
	if s == nil {
		return
	}
	logger.Debug(event, "context", context)
	if s.config.debug == DebugOff {
		return
	}
	s.debugEvents = append(s.debugEvents, DebugEvent{
		Timestamp: time.Now(),
		Event:     event,
		Pos:       s.pos,
		Context:   context,
	})
}

// Parse returns a map from template name to Tree, created by parsing the
// template text. Identifiers must be defined in one of fns or among the
// builtins. Empty delimiters select the defaults.
func Parse(name, text, leftDelim, rightDelim string, fns ...funcs.Lookup) (map[string]*Tree, error) {
	res, err := ParseWith(name, text, leftDelim, rightDelim, fns)
	if err != nil {
		return nil, err
	}
	return res.Trees, nil
}

// ParseWith is Parse with parser options. The Result is returned even on
// failure so telemetry and debug events can be inspected.
func ParseWith(name, text, leftDelim, rightDelim string, fns []funcs.Lookup, opts ...ParserOpt) (*Result, error) {
	config := &ParserConfig{}
	for _, opt := range opts {
		opt(config)
	}

	state := &parseState{config: config}
	var startTotal time.Time
	if config.telemetry >= TelemetryBasic {
		state.telemetry = &ParseTelemetry{}
		if config.telemetry >= TelemetryTiming {
			startTotal = time.Now()
		}
	}
	if config.debug > DebugOff {
		state.debugEvents = make([]DebugEvent, 0, 64)
	}

	treeSet := make(map[string]*Tree)
	t := New(name)
	err := t.parse(text, leftDelim, rightDelim, treeSet, state, fns)

	res := &Result{Telemetry: state.telemetry, DebugEvents: state.debugEvents}
	if tel := state.telemetry; tel != nil {
		if err != nil {
			tel.ErrorCount = 1
		} else {
			for _, tree := range treeSet {
				tel.NodeCount += countNodes(tree.Root)
			}
		}
		if config.telemetry >= TelemetryTiming {
			tel.TotalTime = time.Since(startTotal)
			tel.LexTime = state.lexTime
			tel.ParseTime = tel.TotalTime - tel.LexTime
		}
	}
	if err != nil {
		return res, err
	}
	res.Trees = treeSet
	return res, nil
}

func (t *Tree) parse(text, leftDelim, rightDelim string, treeSet map[string]*Tree, state *parseState, fns []funcs.Lookup) (err error) {
	defer invariant.Recover(&err)
	defer t.recover(&err)

	if leftDelim == "" {
		leftDelim = lexer.DefaultLeftDelim
	}
	if rightDelim == "" {
		rightDelim = lexer.DefaultRightDelim
	}
	t.ParseName = t.Name
	t.text = text
	t.leftDelim = leftDelim
	t.rightDelim = rightDelim

	lex := lexer.NewLexer(text, lexer.WithName(t.Name), lexer.WithDelims(leftDelim, rightDelim))
	t.startParse(append(fns[:len(fns):len(fns)], funcs.Builtins()), lex, treeSet, state)
	t.parseTemplate()
	t.add()
	t.stopParse()
	return nil
}

// recover turns a ParseError panic into a returned error. Other panics,
// including invariant violations, propagate.
func (t *Tree) recover(errp *error) {
	e := recover()
	if e == nil {
		return
	}
	perr, ok := e.(*ParseError)
	if !ok {
		panic(e)
	}
	t.stopParse()
	*errp = perr
}

func (t *Tree) startParse(fns []funcs.Lookup, lex *lexer.Lexer, treeSet map[string]*Tree, state *parseState) {
	t.Root = nil
	t.lex = lex
	t.funcs = fns
	t.treeSet = treeSet
	t.state = state
	t.vars = []string{"$"}
}

func (t *Tree) stopParse() {
	t.lex = nil
	t.vars = nil
	t.funcs = nil
	t.treeSet = nil
	t.state = nil
	t.forDepth = 0
	t.peekCount = 0
}

// Token handling.

func (t *Tree) lexNext() lexer.Token {
	s := t.state
	var begin time.Time
	timing := s.config.telemetry >= TelemetryTiming
	if timing {
		begin = time.Now()
	}
	tok := t.lex.NextToken()
	if timing {
		s.lexTime += time.Since(begin)
	}
	if s.telemetry != nil {
		s.telemetry.TokenCount++
	}
	s.pos = tok.Pos
	if s.config.debug >= DebugDetailed {
		s.log("token", tok.Type.String()+" "+tok.String())
	}
	return tok
}

// next returns the next token.
func (t *Tree) next() lexer.Token {
	if t.peekCount > 0 {
		t.peekCount--
	} else {
		t.token[0] = t.lexNext()
	}
	return t.token[t.peekCount]
}

// backup backs the input stream up one token.
func (t *Tree) backup() {
	t.peekCount++
}

// backup2 backs the input stream up two tokens.
// The zeroth token is already there.
func (t *Tree) backup2(t1 lexer.Token) {
	t.token[1] = t1
	t.peekCount = 2
}

// backup3 backs the input stream up three tokens.
// The zeroth token is already there.
func (t *Tree) backup3(t2, t1 lexer.Token) { // Reverse order: we're pushing back.
	t.token[1] = t1
	t.token[2] = t2
	t.peekCount = 3
}

// peek returns but does not consume the next token.
func (t *Tree) peek() lexer.Token {
	if t.peekCount > 0 {
		return t.token[t.peekCount-1]
	}
	t.peekCount = 1
	t.token[0] = t.lexNext()
	return t.token[0]
}

// nextNonSpace returns the next non-space token.
func (t *Tree) nextNonSpace() (tok lexer.Token) {
	for {
		tok = t.next()
		if tok.Type != lexer.SPACE {
			break
		}
	}
	return tok
}

// peekNonSpace returns but does not consume the next non-space token.
func (t *Tree) peekNonSpace() lexer.Token {
	tok := t.nextNonSpace()
	t.backup()
	return tok
}

// Errors.

// errorf reports an error at the most recently read token.
func (t *Tree) errorf(typ ErrorType, format string, args ...any) {
	t.fail(t.token[0], typ, nil, format, args...)
}

// errorAt reports an error located at tok.
func (t *Tree) errorAt(tok lexer.Token, typ ErrorType, format string, args ...any) {
	t.fail(tok, typ, nil, format, args...)
}

func (t *Tree) fail(at lexer.Token, typ ErrorType, suggestions []string, format string, args ...any) {
	t.Root = nil
	panic(&ParseError{
		Type:        typ,
		Name:        t.ParseName,
		Line:        at.Line,
		Pos:         at.Pos,
		Message:     fmt.Sprintf(format, args...),
		Input:       t.text,
		Suggestions: suggestions,
	})
}

// expect consumes the next token and guarantees it has the required type.
func (t *Tree) expect(expected lexer.TokenType, context string) lexer.Token {
	tok := t.nextNonSpace()
	if tok.Type != expected {
		t.unexpected(tok, context)
	}
	return tok
}

// expectOneOf consumes the next token and guarantees it has one of the
// required types.
func (t *Tree) expectOneOf(expected1, expected2 lexer.TokenType, context string) lexer.Token {
	tok := t.nextNonSpace()
	if tok.Type != expected1 && tok.Type != expected2 {
		t.unexpected(tok, context)
	}
	return tok
}

// unexpected complains about the token. A lexer error is reported verbatim.
func (t *Tree) unexpected(tok lexer.Token, context string) {
	if tok.Type == lexer.ERROR {
		t.errorAt(tok, ErrorSyntax, "%s", tok.Text)
	}
	t.errorAt(tok, ErrorUnexpected, "unexpected %s in %s", tok, context)
}

func (t *Tree) hasFunction(name string) bool {
	return funcs.Has(name, t.funcs...)
}

// popVars trims the variable list to the specified length.
func (t *Tree) popVars(n int) {
	t.vars = t.vars[:n]
}

// useVar returns a node for the variable reference tok. It errors, at tok,
// if the variable is not defined.
func (t *Tree) useVar(tok lexer.Token) ast.Node {
	v := newVariable(tok.Pos, tok.Text)
	for _, varName := range t.vars {
		if varName == v.Ident[0] {
			return v
		}
	}
	t.errorAt(tok, ErrorUndefined, "undefined variable %s", v.Ident[0])
	return nil
}

func newVariable(pos int, ident string) *ast.VariableNode {
	return &ast.VariableNode{Pos: ast.Pos(pos), Ident: strings.Split(ident, ".")}
}

// Grammar.

// parseTemplate is the top-level parser for a template. It runs to EOF.
func (t *Tree) parseTemplate() {
	t.state.log("enter_template", t.Name)
	t.Root = &ast.ListNode{Pos: ast.Pos(t.peek().Pos)}
	for t.peek().Type != lexer.EOF {
		if t.peek().Type == lexer.LEFT_DELIM {
			delim := t.next()
			if t.nextNonSpace().Type == lexer.DEFINE {
				// Name is set once the definition header is read.
				nt := New("definition")
				nt.ParseName = t.ParseName
				nt.text = t.text
				nt.leftDelim, nt.rightDelim = t.leftDelim, t.rightDelim
				nt.startParse(t.funcs, t.lex, t.treeSet, t.state)
				nt.parseDefinition()
				continue
			}
			t.backup2(delim)
		}
		switch n := t.textOrAction(); n.Type() {
		case ast.NodeEnd, ast.NodeElse:
			t.errorf(ErrorUnexpected, "unexpected %s", n)
		default:
			t.Root.Append(n)
		}
	}
}

// parseDefinition parses a {{define}} ... {{end}} block. The "define"
// keyword has been scanned.
func (t *Tree) parseDefinition() {
	const context = "define clause"
	name := t.expectOneOf(lexer.STRING, lexer.RAW_STRING, context)
	t.Name = t.unquote(name)
	t.state.log("enter_define", t.Name)
	t.expect(lexer.RIGHT_DELIM, context)
	var end ast.Node
	t.Root, end = t.itemList()
	if end.Type() != ast.NodeEnd {
		t.errorf(ErrorUnexpected, "unexpected %s in %s", end, context)
	}
	t.add()
	t.stopParse()
}

// itemList parses textOrAction* up to an {{end}} or {{else}}, which is
// returned separately.
func (t *Tree) itemList() (list *ast.ListNode, next ast.Node) {
	list = &ast.ListNode{Pos: ast.Pos(t.peekNonSpace().Pos)}
	for t.peekNonSpace().Type != lexer.EOF {
		n := t.textOrAction()
		if n.Type() == ast.NodeEnd || n.Type() == ast.NodeElse {
			return list, n
		}
		list.Append(n)
	}
	t.errorf(ErrorMissing, "unexpected EOF")
	return nil, nil
}

// textOrAction parses plain text or an action.
func (t *Tree) textOrAction() ast.Node {
	switch tok := t.nextNonSpace(); tok.Type {
	case lexer.TEXT:
		return &ast.TextNode{Pos: ast.Pos(tok.Pos), Text: tok.Text}
	case lexer.LEFT_DELIM:
		return t.action()
	default:
		t.unexpected(tok, "input")
	}
	return nil
}

// action parses a control structure or a pipeline. The left delimiter is
// past.
func (t *Tree) action() ast.Node {
	switch tok := t.nextNonSpace(); tok.Type {
	case lexer.ELSE:
		return t.elseControl()
	case lexer.END:
		return t.endControl()
	case lexer.IF:
		return t.ifControl()
	case lexer.FOR:
		return t.forControl()
	case lexer.WITH:
		return t.withControl()
	case lexer.TEMPLATE:
		return t.templateControl()
	case lexer.BREAK:
		return t.breakControl()
	case lexer.CONTINUE:
		return t.continueControl()
	}
	t.backup()
	tok := t.peek()
	return &ast.ActionNode{Pos: ast.Pos(tok.Pos), Pipe: t.pipeline("command")}
}

// pipeline parses an optional declaration followed by commands joined by |.
func (t *Tree) pipeline(context string) *ast.PipeNode {
	t.state.log("enter_pipeline", context)
	pipe := &ast.PipeNode{Pos: ast.Pos(t.peekNonSpace().Pos)}

	// Are there declarations or assignments?
	if v := t.peekNonSpace(); v.Type == lexer.VARIABLE {
		t.next()
		// Since space is a token, we need 3-token look-ahead here in the
		// worst case: in "$x foo" we need to read "foo" (as opposed to ":=")
		// to know that $x is an argument variable rather than a declaration.
		tokenAfterVariable := t.peek()
		next := t.peekNonSpace()
		switch {
		case next.Type == lexer.DECLARE:
			t.nextNonSpace()
			pipe.Decl = newVariable(v.Pos, v.Text)
			t.vars = append(t.vars, v.Text)
		case next.Type == lexer.ASSIGN:
			t.nextNonSpace()
			pipe.Decl = t.useVar(v).(*ast.VariableNode)
			pipe.IsAssign = true
		case tokenAfterVariable.Type == lexer.SPACE:
			t.backup3(v, tokenAfterVariable)
		default:
			t.backup2(v)
		}
	}

	for {
		switch tok := t.nextNonSpace(); tok.Type {
		case lexer.RIGHT_DELIM, lexer.RIGHT_PAREN:
			t.checkPipeline(pipe, context)
			if tok.Type == lexer.RIGHT_PAREN {
				t.backup()
			}
			return pipe
		case lexer.BOOL, lexer.CHAR_CONSTANT, lexer.DOT, lexer.FIELD, lexer.IDENTIFIER,
			lexer.NUMBER, lexer.NULL, lexer.STRING, lexer.RAW_STRING, lexer.VARIABLE, lexer.LEFT_PAREN:
			t.backup()
			pipe.Append(t.command())
		default:
			t.unexpected(tok, context)
		}
	}
}

func (t *Tree) checkPipeline(pipe *ast.PipeNode, context string) {
	if len(pipe.Cmds) == 0 {
		t.errorf(ErrorMissing, "missing value for %s", context)
	}
	// Only the first command of a pipeline can start with a non-executable operand.
	for i, c := range pipe.Cmds[1:] {
		switch c.Args[0].Type() {
		case ast.NodeBool, ast.NodeDot, ast.NodeNull, ast.NodeNumber, ast.NodeString:
			t.errorf(ErrorInvalid, "non executable command in pipeline stage %d", i+2)
		}
	}
}

// command parses space-separated operands up to a pipe or the end of the
// pipeline. The pipe is consumed.
func (t *Tree) command() *ast.CommandNode {
	cmd := &ast.CommandNode{Pos: ast.Pos(t.peekNonSpace().Pos)}
Loop:
	for {
		t.peekNonSpace() // skip leading spaces
		if operand := t.operand(); operand != nil {
			cmd.Append(operand)
		}
		switch tok := t.next(); tok.Type {
		case lexer.SPACE:
			continue
		case lexer.RIGHT_DELIM, lexer.RIGHT_PAREN:
			t.backup()
		case lexer.PIPE:
			// A pipe must be followed by another command.
			if next := t.peekNonSpace(); next.Type == lexer.RIGHT_DELIM || next.Type == lexer.RIGHT_PAREN {
				t.errorAt(next, ErrorMissing, "missing command after |")
			}
		default:
			t.unexpected(tok, "operand")
		}
		break Loop
	}
	if len(cmd.Args) == 0 {
		t.errorf(ErrorMissing, "empty command")
	}
	return cmd
}

// operand parses a term followed by optional .field accesses.
func (t *Tree) operand() ast.Node {
	node := t.term()
	if node == nil {
		return nil
	}
	if t.peek().Type != lexer.FIELD {
		return node
	}
	chain := &ast.ChainNode{Pos: node.Position(), Node: node}
	for t.peek().Type == lexer.FIELD {
		chain.Add(t.next().Text)
	}
	// Fold field and variable chains into one node so the executor can walk
	// the path directly.
	switch n := node.(type) {
	case *ast.FieldNode:
		return &ast.FieldNode{Pos: n.Pos, Ident: append(n.Ident, chain.Field...)}
	case *ast.VariableNode:
		return &ast.VariableNode{Pos: n.Pos, Ident: append(n.Ident, chain.Field...)}
	case *ast.BoolNode, *ast.NumberNode, *ast.NullNode, *ast.DotNode:
		t.errorf(ErrorInvalid, "unexpected . after term %s", node)
	}
	return chain
}

// term parses a literal, identifier, dot, field, variable or parenthesized
// pipeline. It returns nil, without consuming anything, for any other token.
func (t *Tree) term() ast.Node {
	switch tok := t.nextNonSpace(); tok.Type {
	case lexer.IDENTIFIER:
		if !t.hasFunction(tok.Text) {
			t.fail(tok, ErrorUndefined, funcs.Suggest(tok.Text, funcs.AllNames(t.funcs...)),
				"function '%s' not defined", tok.Text)
		}
		return &ast.IdentifierNode{Pos: ast.Pos(tok.Pos), Ident: tok.Text}
	case lexer.DOT:
		return &ast.DotNode{Pos: ast.Pos(tok.Pos)}
	case lexer.NULL:
		return &ast.NullNode{Pos: ast.Pos(tok.Pos)}
	case lexer.VARIABLE:
		return t.useVar(tok)
	case lexer.FIELD:
		return &ast.FieldNode{Pos: ast.Pos(tok.Pos), Ident: []string{tok.Text[1:]}}
	case lexer.BOOL:
		return &ast.BoolNode{Pos: ast.Pos(tok.Pos), True: tok.Text == "true"}
	case lexer.CHAR_CONSTANT, lexer.NUMBER:
		return t.newNumber(tok)
	case lexer.LEFT_PAREN:
		pipe := t.pipeline("parenthesized pipeline")
		if next := t.next(); next.Type != lexer.RIGHT_PAREN {
			t.errorf(ErrorMissing, "unclosed right paren: unexpected %s", next)
		}
		return pipe
	case lexer.STRING, lexer.RAW_STRING:
		return &ast.StringNode{Pos: ast.Pos(tok.Pos), Quoted: tok.Text, Text: t.unquote(tok)}
	}
	t.backup()
	return nil
}

// Control structures.

// parseControl parses the shared shape of if, for and with. Variables
// declared anywhere inside go out of scope at the end.
func (t *Tree) parseControl(allowElseIf bool, context string) (pipe *ast.PipeNode, list, elseList *ast.ListNode) {
	defer t.popVars(len(t.vars))
	t.state.log("enter_control", context)

	pipe = t.pipeline(context)
	declared := len(t.vars)
	var next ast.Node
	if context == "for" {
		t.forDepth++
	}
	list, next = t.itemList()
	if context == "for" {
		t.forDepth--
	}
	// Declarations made in the body are not visible in the else branch.
	t.popVars(declared)
	if next.Type() == ast.NodeElse {
		if allowElseIf && t.peek().Type == lexer.IF {
			// "{{else if ...}}" is treated as "{{else}}{{if ...}}" with the
			// nested if consuming the single {{end}}.
			t.next()
			elseList = &ast.ListNode{Pos: next.Position()}
			elseList.Append(t.ifControl())
		} else {
			elseList, next = t.itemList()
			if next.Type() != ast.NodeEnd {
				t.errorf(ErrorMissing, "expected end; found %s", next)
			}
		}
	}
	return pipe, list, elseList
}

// ifControl parses {{if pipeline}} itemList [{{else}} itemList] {{end}}.
func (t *Tree) ifControl() ast.Node {
	pipe, list, elseList := t.parseControl(true, "if")
	return &ast.IfNode{BranchNode: ast.BranchNode{NodeType: ast.NodeIf, Pos: pipe.Pos, Pipe: pipe, List: list, ElseList: elseList}}
}

// forControl parses {{for pipeline}} itemList [{{else}} itemList] {{end}}.
func (t *Tree) forControl() ast.Node {
	pipe, list, elseList := t.parseControl(false, "for")
	return &ast.ForNode{BranchNode: ast.BranchNode{NodeType: ast.NodeFor, Pos: pipe.Pos, Pipe: pipe, List: list, ElseList: elseList}}
}

// withControl parses {{with pipeline}} itemList [{{else}} itemList] {{end}}.
func (t *Tree) withControl() ast.Node {
	pipe, list, elseList := t.parseControl(false, "with")
	return &ast.WithNode{BranchNode: ast.BranchNode{NodeType: ast.NodeWith, Pos: pipe.Pos, Pipe: pipe, List: list, ElseList: elseList}}
}

func (t *Tree) breakControl() ast.Node {
	if t.forDepth == 0 {
		t.errorf(ErrorInvalid, "unexpected break outside of for")
	}
	return &ast.BreakNode{Pos: ast.Pos(t.expect(lexer.RIGHT_DELIM, "break").Pos)}
}

func (t *Tree) continueControl() ast.Node {
	if t.forDepth == 0 {
		t.errorf(ErrorInvalid, "unexpected continue outside of for")
	}
	return &ast.ContinueNode{Pos: ast.Pos(t.expect(lexer.RIGHT_DELIM, "continue").Pos)}
}

// elseControl parses {{else}}. An "else if" leaves the if for parseControl.
func (t *Tree) elseControl() ast.Node {
	if peek := t.peekNonSpace(); peek.Type == lexer.IF {
		return &ast.ElseNode{Pos: ast.Pos(peek.Pos)}
	}
	return &ast.ElseNode{Pos: ast.Pos(t.expect(lexer.RIGHT_DELIM, "else").Pos)}
}

func (t *Tree) endControl() ast.Node {
	return &ast.EndNode{Pos: ast.Pos(t.expect(lexer.RIGHT_DELIM, "end").Pos)}
}

// templateControl parses {{template "name" [pipeline]}}.
func (t *Tree) templateControl() ast.Node {
	const context = "template clause"
	tok := t.nextNonSpace()
	name := t.parseTemplateName(tok, context)
	var pipe *ast.PipeNode
	if t.nextNonSpace().Type != lexer.RIGHT_DELIM {
		t.backup()
		pipe = t.pipeline(context)
	}
	return &ast.TemplateNode{Pos: ast.Pos(tok.Pos), Name: name, Pipe: pipe}
}

func (t *Tree) parseTemplateName(tok lexer.Token, context string) string {
	switch tok.Type {
	case lexer.STRING, lexer.RAW_STRING:
		return t.unquote(tok)
	default:
		t.unexpected(tok, context)
	}
	return ""
}

// countNodes counts every node reachable from n.
func countNodes(n ast.Node) int {
	switch n := n.(type) {
	case nil:
		return 0
	case *ast.ListNode:
		if n == nil {
			return 0
		}
		c := 1
		for _, child := range n.Nodes {
			c += countNodes(child)
		}
		return c
	case *ast.PipeNode:
		if n == nil {
			return 0
		}
		c := 1
		if n.Decl != nil {
			c++
		}
		for _, cmd := range n.Cmds {
			c += countNodes(cmd)
		}
		return c
	case *ast.CommandNode:
		c := 1
		for _, arg := range n.Args {
			c += countNodes(arg)
		}
		return c
	case *ast.ActionNode:
		return 1 + countNodes(n.Pipe)
	case *ast.ChainNode:
		return 1 + countNodes(n.Node)
	case *ast.IfNode:
		return 1 + countBranch(&n.BranchNode)
	case *ast.WithNode:
		return 1 + countBranch(&n.BranchNode)
	case *ast.ForNode:
		return 1 + countBranch(&n.BranchNode)
	case *ast.TemplateNode:
		return 1 + countNodes(n.Pipe)
	}
	return 1
}

func countBranch(b *ast.BranchNode) int {
	return countNodes(b.Pipe) + countNodes(b.List) + countNodes(b.ElseList)
}
