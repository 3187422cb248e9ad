package scanner

import (
	"strings"
	"unicode/utf8"
)

// Resolve returns the statement enclosing the cursor, given as a character
// offset into buffer.
//
// Both ends of a statement's range count as inside it, so a cursor sitting
// right after a semicolon resolves to the statement that semicolon closes.
// When no statement contains the cursor the first statement is returned, and
// when there are no statements at all the whole buffer is.
func Resolve(stmts []Statement, buffer string, cursor int) Statement {
	for _, s := range stmts {
		if cursor >= s.Start && cursor <= s.End {
			return s
		}
	}
	if len(stmts) > 0 {
		return stmts[0]
	}
	return Statement{Text: strings.TrimSpace(buffer), Start: 0, End: utf8.RuneCountInString(buffer)}
}
