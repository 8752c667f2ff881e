package parser

import (
	"errors"
	"math"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/opal-lang/weave/core/ast"
	"github.com/opal-lang/weave/runtime/lexer"
)

// newNumber converts a NUMBER or CHAR_CONSTANT token. Integers must fit in
// 32 bits; a float literal with an integral value is also usable as an int.
func (t *Tree) newNumber(tok lexer.Token) *ast.NumberNode {
	text := tok.Text
	n := &ast.NumberNode{Pos: ast.Pos(tok.Pos), Text: text}

	if tok.Type == lexer.CHAR_CONSTANT {
		r, tail, err := unquoteChar(text[1:], text[0])
		if err != nil {
			t.errorf(ErrorSyntax, "malformed character constant: %s", text)
		}
		if tail != "'" {
			t.errorf(ErrorSyntax, "malformed character constant: %s", text)
		}
		n.IsInt, n.Int = true, int(r)
		n.IsFloat, n.Float = true, float64(r)
		return n
	}

	i, intErr := strconv.ParseInt(text, 0, 64)
	if intErr == nil {
		if i > math.MaxInt32 || i < math.MinInt32 {
			t.errorf(ErrorInvalid, "integer overflow: %s", text)
		}
		n.IsInt, n.Int = true, int(i)
		n.IsFloat, n.Float = true, float64(i)
		return n
	}

	if f, err := strconv.ParseFloat(text, 64); err == nil {
		if !strings.ContainsAny(text, ".eEpP") {
			if errors.Is(intErr, strconv.ErrRange) {
				t.errorf(ErrorInvalid, "integer overflow: %s", text)
			}
			t.errorf(ErrorSyntax, "illegal number syntax: %s", text)
		}
		n.IsFloat, n.Float = true, f
		if f == math.Trunc(f) && f <= math.MaxInt32 && f >= math.MinInt32 {
			n.IsInt, n.Int = true, int(f)
		}
		return n
	}

	t.errorf(ErrorSyntax, "illegal number syntax: %s", text)
	return nil
}

// unquote decodes a STRING or RAW_STRING token.
func (t *Tree) unquote(tok lexer.Token) string {
	s, err := unquote(tok.Text)
	if err != nil {
		t.errorf(ErrorSyntax, "malformed string constant: %s", tok.Text)
	}
	return s
}

// unquote decodes a double-quoted or raw string literal. Double-quoted
// strings accept the escapes of character constants, including \'. Carriage
// returns are dropped from raw strings.
func unquote(quoted string) (string, error) {
	n := len(quoted)
	if n < 2 || quoted[0] != quoted[n-1] {
		return "", strconv.ErrSyntax
	}
	body := quoted[1 : n-1]
	switch quoted[0] {
	case '`':
		if strings.ContainsRune(body, '`') {
			return "", strconv.ErrSyntax
		}
		return strings.ReplaceAll(body, "\r", ""), nil
	case '"':
	default:
		return "", strconv.ErrSyntax
	}

	if !strings.ContainsRune(body, '\\') && !strings.ContainsRune(body, '"') && utf8.ValidString(body) {
		return body, nil
	}
	var sb strings.Builder
	sb.Grow(len(body))
	for len(body) > 0 {
		r, tail, err := unquoteChar(body, '"')
		if err != nil {
			return "", err
		}
		sb.WriteRune(r)
		body = tail
	}
	return sb.String(), nil
}

// unquoteChar decodes the first character or escape in s. Both \' and \" are
// accepted regardless of quote.
func unquoteChar(s string, quote byte) (rune, string, error) {
	if len(s) >= 2 && s[0] == '\\' && (s[1] == '\'' || s[1] == '"') {
		return rune(s[1]), s[2:], nil
	}
	r, _, tail, err := strconv.UnquoteChar(s, quote)
	return r, tail, err
}
