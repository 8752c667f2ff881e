package lexer

import "unicode"

// ASCII character lookup tables for fast classification (zero-allocation).
// Callers use an inline bounds check and fall back to the unicode package for
// runes >= 128:
//
//	if r < 128 && isDigit[r] { ... }
var (
	isSpaceTable [128]bool // space, tab
	isEOLTable   [128]bool // carriage return, newline
	isLetter     [128]bool // a-z, A-Z, _
	isDigit      [128]bool // 0-9
)

func init() {
	for i := 0; i < 128; i++ {
		ch := byte(i)

		isSpaceTable[i] = ch == ' ' || ch == '\t'
		isEOLTable[i] = ch == '\r' || ch == '\n'
		isLetter[i] = ('a' <= ch && ch <= 'z') || ('A' <= ch && ch <= 'Z') || ch == '_'
		isDigit[i] = '0' <= ch && ch <= '9'
	}
}

// isSpace reports whether r separates operands inside an action.
func isSpace(r rune) bool {
	return r >= 0 && r < 128 && isSpaceTable[r]
}

// isEndOfLine reports whether r ends a line. Actions may not span lines.
func isEndOfLine(r rune) bool {
	return r >= 0 && r < 128 && isEOLTable[r]
}

// isAlphaNumeric reports whether r can appear in an identifier, field or
// variable name.
func isAlphaNumeric(r rune) bool {
	if r < 0 {
		return false
	}
	if r < 128 {
		return isLetter[r] || isDigit[r]
	}
	return unicode.IsLetter(r) || unicode.IsDigit(r)
}

