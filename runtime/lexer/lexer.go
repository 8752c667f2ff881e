// Package lexer turns template source into a stream of tokens.
//
// The lexer is a state machine driven by its consumer: every NextToken call
// runs state functions until at least one token is queued, so no goroutine or
// channel sits between the lexer and the parser. Tokens come out in strict
// source order and the stream ends with exactly one EOF or ERROR token; after
// that NextToken keeps returning EOF.
package lexer

import (
	"fmt"
	"strings"
	"time"
	"unicode"
	"unicode/utf8"

	"github.com/opal-lang/weave/core/debuglog"
	"github.com/opal-lang/weave/core/invariant"
)

const (
	eof          = -1
	leftComment  = "/*"
	rightComment = "*/"
	maxASCII     = '\u007F'

	// A single state step queues at most TEXT followed by EOF.
	maxPending = 2
)

var logger = debuglog.New("WEAVE_DEBUG_LEXER")

// stateFn is one state of the scanner; it returns the next state, or nil once
// the stream is finished.
type stateFn func(*Lexer) stateFn

// Lexer holds the state of the scanner.
type Lexer struct {
	name       string // used only for debug output
	input      string
	leftDelim  string
	rightDelim string

	state      stateFn
	pos        int // current position in the input
	start      int // start position of the pending token
	width      int // width of the last rune read; 0 at EOF
	line       int // 1 + newlines before pos
	startLine  int // line of start
	parenDepth int // nesting depth of ( ) inside the current action
	pending    []Token

	// Telemetry (nil when disabled for zero allocation)
	telemetryMode  TelemetryMode
	tokenTelemetry map[TokenType]*TokenTelemetry

	// Debug (nil when disabled for zero allocation)
	debugLevel  DebugLevel
	debugEvents []DebugEvent
}

// NewLexer creates a new lexer instance with optional configuration
func NewLexer(input string, opts ...LexerOpt) *Lexer {
	config := &LexerConfig{}
	for _, opt := range opts {
		opt(config)
	}
	if config.leftDelim == "" {
		config.leftDelim = DefaultLeftDelim
	}
	if config.rightDelim == "" {
		config.rightDelim = DefaultRightDelim
	}

	l := &Lexer{
		name:          config.name,
		leftDelim:     config.leftDelim,
		rightDelim:    config.rightDelim,
		pending:       make([]Token, 0, maxPending),
		telemetryMode: config.telemetry,
		debugLevel:    config.debug,
	}

	if config.telemetry > TelemetryOff {
		l.tokenTelemetry = make(map[TokenType]*TokenTelemetry)
	}
	if config.debug > DebugOff {
		l.debugEvents = make([]DebugEvent, 0, 256)
	}

	l.Init(input)
	return l
}

// Init resets the lexer to the start of new input. A stream can only be
// restarted from scratch, never resumed mid-way.
func (l *Lexer) Init(input string) {
	invariant.Precondition(l.leftDelim != "" && l.rightDelim != "", "delimiters must not be empty")

	l.input = input
	l.state = lexText
	l.pos = 0
	l.start = 0
	l.width = 0
	l.line = 1
	l.startLine = 1
	l.parenDepth = 0
	l.pending = l.pending[:0]

	if l.tokenTelemetry != nil {
		for k := range l.tokenTelemetry {
			delete(l.tokenTelemetry, k)
		}
	}
	if l.debugEvents != nil {
		l.debugEvents = l.debugEvents[:0]
	}
}

// NextToken returns the next token, running the state machine as far as needed
// to produce it.
func (l *Lexer) NextToken() Token {
	var begin time.Time
	if l.telemetryMode >= TelemetryTiming {
		begin = time.Now()
	}

	for len(l.pending) == 0 {
		if l.state == nil {
			return Token{Type: EOF, Pos: l.pos, Line: l.line}
		}
		l.state = l.state(l)
		invariant.Invariant(len(l.pending) <= maxPending, "lex queue is full: %d", len(l.pending))
	}

	tok := l.pending[0]
	copy(l.pending, l.pending[1:])
	l.pending = l.pending[:len(l.pending)-1]

	l.record(tok, begin)
	return tok
}

// GetTokens drains the remaining stream, including the final EOF or ERROR.
func (l *Lexer) GetTokens() []Token {
	var tokens []Token
	for {
		tok := l.NextToken()
		tokens = append(tokens, tok)
		if tok.Type == EOF || tok.Type == ERROR {
			return tokens
		}
	}
}

// GetTokenTelemetry returns per-token type telemetry (production safe)
func (l *Lexer) GetTokenTelemetry() map[TokenType]*TokenTelemetry {
	if l.telemetryMode == TelemetryOff || l.tokenTelemetry == nil {
		return nil
	}

	result := make(map[TokenType]*TokenTelemetry, len(l.tokenTelemetry))
	for k, v := range l.tokenTelemetry {
		telemetryCopy := *v
		result[k] = &telemetryCopy
	}
	return result
}

// GetDebugEvents returns debug events (development only)
func (l *Lexer) GetDebugEvents() []DebugEvent {
	if l.debugLevel == DebugOff || l.debugEvents == nil {
		return nil
	}
	return append([]DebugEvent(nil), l.debugEvents...)
}

func (l *Lexer) record(tok Token, begin time.Time) {
	if l.tokenTelemetry == nil {
		return
	}

	tel, ok := l.tokenTelemetry[tok.Type]
	if !ok {
		tel = &TokenTelemetry{Type: tok.Type}
		l.tokenTelemetry[tok.Type] = tel
	}
	tel.Count++

	if l.telemetryMode >= TelemetryTiming {
		d := time.Since(begin)
		tel.TotalTime += d
		tel.AvgTime = tel.TotalTime / time.Duration(tel.Count)
		if tel.Count == 1 || d < tel.MinTime {
			tel.MinTime = d
		}
		if d > tel.MaxTime {
			tel.MaxTime = d
		}
	}
}

func (l *Lexer) trace(event, context string) {
	if l.debugEvents == nil {
		return
	}
	l.debugEvents = append(l.debugEvents, DebugEvent{
		Timestamp: time.Now(),
		Event:     event,
		Pos:       l.pos,
		Line:      l.line,
		Context:   context,
	})
}

// next returns the next rune in the input, or eof.
func (l *Lexer) next() rune {
	if l.pos >= len(l.input) {
		l.width = 0
		return eof
	}
	r, w := utf8.DecodeRuneInString(l.input[l.pos:])
	l.width = w
	l.pos += w
	if r == '\n' {
		l.line++
	}
	return r
}

// backup steps back one rune. Can only be called once per call of next.
func (l *Lexer) backup() {
	if l.width == 0 {
		return
	}
	l.pos -= l.width
	l.width = 0
	if l.input[l.pos] == '\n' {
		l.line--
	}
}

// peek returns but does not consume the next rune in the input.
func (l *Lexer) peek() rune {
	r := l.next()
	l.backup()
	return r
}

// advance skips n bytes that are known not to need rune decoding, keeping the
// line count in step.
func (l *Lexer) advance(n int) {
	l.line += strings.Count(l.input[l.pos:l.pos+n], "\n")
	l.pos += n
	l.width = 0
}

// emit queues the pending input as a token of type t.
func (l *Lexer) emit(t TokenType) {
	tok := Token{Type: t, Pos: l.start, Text: l.input[l.start:l.pos], Line: l.startLine}
	l.pending = append(l.pending, tok)
	l.start = l.pos
	l.startLine = l.line

	logger.Debug("emit", "name", l.name, "type", t, "line", tok.Line, "text", tok.Text)
	if l.debugLevel >= DebugDetailed {
		l.trace("emit_"+t.String(), tok.Text)
	}
}

// ignore skips over the pending input before this point.
func (l *Lexer) ignore() {
	l.start = l.pos
	l.startLine = l.line
}

// errorf queues an ERROR token and terminates the scan.
func (l *Lexer) errorf(format string, args ...interface{}) stateFn {
	tok := Token{Type: ERROR, Pos: l.start, Text: fmt.Sprintf(format, args...), Line: l.startLine}
	l.pending = append(l.pending, tok)
	logger.Debug("error", "name", l.name, "line", tok.Line, "message", tok.Text)
	l.trace("error", tok.Text)
	return nil
}

// accept consumes the next rune if it's from the valid set.
func (l *Lexer) accept(valid string) bool {
	if strings.ContainsRune(valid, l.next()) {
		return true
	}
	l.backup()
	return false
}

// acceptRun consumes a run of runes from the valid set.
func (l *Lexer) acceptRun(valid string) {
	for strings.ContainsRune(valid, l.next()) {
	}
	l.backup()
}

func (l *Lexer) enter(state string) {
	if l.debugLevel >= DebugPaths {
		l.trace("enter_"+state, "")
	}
}

// atTerminator reports whether the input is at a valid termination character
// to appear after a field, variable or identifier. Breaks .X.Y into two pieces.
func (l *Lexer) atTerminator() bool {
	r := l.peek()
	if isSpace(r) || isEndOfLine(r) {
		return true
	}
	switch r {
	case eof, '.', '|', '(', ')', '=', ':':
		return true
	}
	// Does r start the right delimiter? Ambiguous only for a willfully bad
	// delimiter choice such as "//".
	rd, _ := utf8.DecodeRuneInString(l.rightDelim)
	return r == rd
}

// lexText scans until an opening action delimiter.
func lexText(l *Lexer) stateFn {
	l.enter("lexText")
	if i := strings.Index(l.input[l.pos:], l.leftDelim); i >= 0 {
		l.advance(i)
		if l.pos > l.start {
			l.emit(TEXT)
		}
		l.ignore()
		return lexLeftDelim
	}

	l.advance(len(l.input) - l.pos)
	if l.pos > l.start {
		l.emit(TEXT)
	}
	l.emit(EOF)
	return nil
}

// lexLeftDelim scans the left delimiter, which is known to be present.
func lexLeftDelim(l *Lexer) stateFn {
	l.enter("lexLeftDelim")
	l.advance(len(l.leftDelim))
	if strings.HasPrefix(l.input[l.pos:], leftComment) {
		l.ignore()
		return lexComment
	}
	l.emit(LEFT_DELIM)
	l.parenDepth = 0
	return lexInsideAction
}

// lexComment scans a comment. The left comment marker is known to be present.
func lexComment(l *Lexer) stateFn {
	l.enter("lexComment")
	l.advance(len(leftComment))
	i := strings.Index(l.input[l.pos:], rightComment)
	if i < 0 {
		return l.errorf("unclosed comment")
	}
	l.advance(i + len(rightComment))
	if !strings.HasPrefix(l.input[l.pos:], l.rightDelim) {
		return l.errorf("comment ends before closing delimiter")
	}
	l.advance(len(l.rightDelim))
	l.ignore()
	return lexText
}

// lexRightDelim scans the right delimiter, which is known to be present.
func lexRightDelim(l *Lexer) stateFn {
	l.enter("lexRightDelim")
	l.advance(len(l.rightDelim))
	l.emit(RIGHT_DELIM)
	return lexText
}

// lexInsideAction scans the elements inside action delimiters.
func lexInsideAction(l *Lexer) stateFn {
	l.enter("lexInsideAction")
	if strings.HasPrefix(l.input[l.pos:], l.rightDelim) {
		if l.parenDepth == 0 {
			return lexRightDelim
		}
		return l.errorf("unclosed left paren")
	}

	switch r := l.next(); {
	case r == eof || isEndOfLine(r):
		return l.errorf("unclosed action")
	case isSpace(r):
		return lexSpace
	case r == '=':
		l.emit(ASSIGN)
	case r == ':':
		if l.next() != '=' {
			return l.errorf("expected :=")
		}
		l.emit(DECLARE)
	case r == '|':
		l.emit(PIPE)
	case r == '"':
		return lexQuote
	case r == '`':
		return lexRawQuote
	case r == '$':
		return lexVariable
	case r == '\'':
		return lexChar
	case r == '.':
		// Look ahead without next() so backup() stays valid for the number case
		if l.pos < len(l.input) {
			if c := l.input[l.pos]; c < '0' || '9' < c {
				return lexField
			}
		}
		l.backup()
		return lexNumber
	case r == '+' || r == '-' || (r < 128 && isDigit[r]):
		l.backup()
		return lexNumber
	case isAlphaNumeric(r):
		l.backup()
		return lexIdentifier
	case r == '(':
		l.emit(LEFT_PAREN)
		l.parenDepth++
	case r == ')':
		l.emit(RIGHT_PAREN)
		l.parenDepth--
		if l.parenDepth < 0 {
			return l.errorf("unexpected right paren %c", r)
		}
	case r <= maxASCII && unicode.IsPrint(r):
		l.emit(CHAR)
	default:
		return l.errorf("unrecognized character in action: %#U", r)
	}
	return lexInsideAction
}

// lexSpace scans a run of space characters. One space has already been seen.
func lexSpace(l *Lexer) stateFn {
	l.enter("lexSpace")
	for isSpace(l.peek()) {
		l.next()
	}
	l.emit(SPACE)
	return lexInsideAction
}

// lexQuote scans a quoted string. The opening quote has been seen.
func lexQuote(l *Lexer) stateFn {
	l.enter("lexQuote")
Loop:
	for {
		switch l.next() {
		case '\\':
			if r := l.next(); r != eof && r != '\n' {
				break
			}
			fallthrough
		case eof, '\n':
			return l.errorf("unterminated quoted string")
		case '"':
			break Loop
		}
	}
	l.emit(STRING)
	return lexInsideAction
}

// lexRawQuote scans a raw quoted string. Raw strings may span lines.
func lexRawQuote(l *Lexer) stateFn {
	l.enter("lexRawQuote")
Loop:
	for {
		switch l.next() {
		case eof:
			return l.errorf("unterminated raw quoted string")
		case '`':
			break Loop
		}
	}
	l.emit(RAW_STRING)
	return lexInsideAction
}

// lexChar scans a character constant. The opening quote has been seen;
// escape syntax is checked by the parser.
func lexChar(l *Lexer) stateFn {
	l.enter("lexChar")
Loop:
	for {
		switch l.next() {
		case '\\':
			if r := l.next(); r != eof && r != '\n' {
				break
			}
			fallthrough
		case eof, '\n':
			return l.errorf("unterminated character constant")
		case '\'':
			break Loop
		}
	}
	l.emit(CHAR_CONSTANT)
	return lexInsideAction
}

// lexVariable scans a variable: $alphanumeric. The $ has been seen.
func lexVariable(l *Lexer) stateFn {
	l.enter("lexVariable")
	return lexFieldOrVariable(l, VARIABLE)
}

// lexField scans a field: .alphanumeric. The . has been seen.
func lexField(l *Lexer) stateFn {
	l.enter("lexField")
	return lexFieldOrVariable(l, FIELD)
}

// lexFieldOrVariable scans the name after a leading . or $. A lone . is the
// DOT keyword and a lone $ is the root variable.
func lexFieldOrVariable(l *Lexer, typ TokenType) stateFn {
	if l.atTerminator() {
		if typ == VARIABLE {
			l.emit(VARIABLE)
		} else {
			l.emit(DOT)
		}
		return lexInsideAction
	}

	var r rune
	for {
		r = l.next()
		if !isAlphaNumeric(r) {
			l.backup()
			break
		}
	}
	if !l.atTerminator() {
		return l.errorf("bad character %c", r)
	}
	l.emit(typ)
	return lexInsideAction
}

// lexNumber scans a decimal, octal, hex or float number. Validation of the
// value is left to the parser.
func lexNumber(l *Lexer) stateFn {
	l.enter("lexNumber")
	l.accept("+-")
	digits := "0123456789"
	if l.accept("0") && l.accept("xX") {
		digits = "0123456789abcdefABCDEF"
	}
	l.acceptRun(digits)
	if l.accept(".") {
		l.acceptRun(digits)
	}
	if l.accept("eE") {
		l.accept("+-")
		l.acceptRun("0123456789")
	}
	// Next thing mustn't be alphanumeric
	if isAlphaNumeric(l.peek()) {
		l.next()
		return l.errorf("bad number syntax: '%s'", l.input[l.start:l.pos])
	}
	l.emit(NUMBER)
	return lexInsideAction
}

// lexIdentifier scans an alphanumeric identifier or reserved word.
func lexIdentifier(l *Lexer) stateFn {
	l.enter("lexIdentifier")
	for {
		r := l.next()
		if isAlphaNumeric(r) {
			continue
		}
		l.backup()
		word := l.input[l.start:l.pos]
		if !l.atTerminator() {
			return l.errorf("bad character %c", r)
		}
		switch {
		case keywords[word] > keywordStart:
			l.emit(keywords[word])
		case word == "true" || word == "false":
			l.emit(BOOL)
		default:
			l.emit(IDENTIFIER)
		}
		return lexInsideAction
	}
}
