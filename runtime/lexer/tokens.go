package lexer

import "fmt"

// TokenType represents the lexical token kinds of the template language
type TokenType int

const (
	// Special tokens
	ERROR TokenType = iota // Text carries the diagnostic instead of source
	EOF

	// Content
	TEXT  // plain text outside actions
	SPACE // run of spaces/tabs inside an action

	// Literals
	BOOL          // true, false
	CHAR          // single printable ASCII character not otherwise claimed
	CHAR_CONSTANT // 'x' including quotes
	NUMBER        // 12, -0x1F, 1.5e3
	STRING        // "quoted" including quotes
	RAW_STRING    // `raw` including quotes

	// Names
	IDENTIFIER // function name
	FIELD      // .name, leading dot included
	VARIABLE   // $name, leading dollar included

	// Structure
	LEFT_DELIM  // {{ or the configured left delimiter
	RIGHT_DELIM // }} or the configured right delimiter
	LEFT_PAREN  // (
	RIGHT_PAREN // )
	PIPE        // |
	ASSIGN      // =
	DECLARE     // :=

	// Keywords appear after this marker
	keywordStart
	DOT      // . on its own
	NULL     // null
	IF       // if
	FOR      // for
	WITH     // with
	ELSE     // else
	END      // end
	BREAK    // break
	CONTINUE // continue
	DEFINE   // define
	TEMPLATE // template
)

var tokenNames = [...]string{
	ERROR:         "ERROR",
	EOF:           "EOF",
	TEXT:          "TEXT",
	SPACE:         "SPACE",
	BOOL:          "BOOL",
	CHAR:          "CHAR",
	CHAR_CONSTANT: "CHAR_CONSTANT",
	NUMBER:        "NUMBER",
	STRING:        "STRING",
	RAW_STRING:    "RAW_STRING",
	IDENTIFIER:    "IDENTIFIER",
	FIELD:         "FIELD",
	VARIABLE:      "VARIABLE",
	LEFT_DELIM:    "LEFT_DELIM",
	RIGHT_DELIM:   "RIGHT_DELIM",
	LEFT_PAREN:    "LEFT_PAREN",
	RIGHT_PAREN:   "RIGHT_PAREN",
	PIPE:          "PIPE",
	ASSIGN:        "ASSIGN",
	DECLARE:       "DECLARE",
	keywordStart:  "keywordStart",
	DOT:           "DOT",
	NULL:          "NULL",
	IF:            "IF",
	FOR:           "FOR",
	WITH:          "WITH",
	ELSE:          "ELSE",
	END:           "END",
	BREAK:         "BREAK",
	CONTINUE:      "CONTINUE",
	DEFINE:        "DEFINE",
	TEMPLATE:      "TEMPLATE",
}

// String returns the string representation of the token type
func (t TokenType) String() string {
	if t >= 0 && int(t) < len(tokenNames) {
		return tokenNames[t]
	}
	return fmt.Sprintf("TokenType(%d)", int(t))
}

// IsKeyword reports whether t is a reserved word.
func (t TokenType) IsKeyword() bool {
	return t > keywordStart
}

// keywords maps reserved words to their token types
var keywords = map[string]TokenType{
	".":        DOT,
	"null":     NULL,
	"if":       IF,
	"for":      FOR,
	"with":     WITH,
	"else":     ELSE,
	"end":      END,
	"break":    BREAK,
	"continue": CONTINUE,
	"define":   DEFINE,
	"template": TEMPLATE,
}

// Token is a single lexical token.
type Token struct {
	Type TokenType
	Pos  int    // byte offset of the token start
	Text string // raw source text, or the message for ERROR
	Line int    // 1 + newlines before Pos
}

// String renders the token for diagnostics such as "unexpected <end> in input".
func (t Token) String() string {
	switch {
	case t.Type == EOF:
		return "EOF"
	case t.Type == ERROR:
		return t.Text
	case t.Type.IsKeyword():
		return "<" + t.Text + ">"
	case len(t.Text) > 10:
		return fmt.Sprintf("%.10q...", t.Text)
	}
	return fmt.Sprintf("%q", t.Text)
}
