// Package scanner splits SQL buffers into statements without parsing them.
//
// The scanner only understands the lexical rules that decide where a statement
// ends: quoted strings, quoted identifiers, comments and semicolons. Keywords,
// parentheses and dialect details are irrelevant to it.
package scanner

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

// Statement is one semicolon-terminated (or trailing) unit of SQL.
//
// Start and End are character (rune) offsets into the scanned buffer, the unit
// editors use for cursors; End is exclusive and covers the terminating semicolon
// when there is one. The range starts right
// after the previous boundary, so it includes leading whitespace and comments.
// Text holds the statement itself, with those leading comments and any trailing
// whitespace removed.
type Statement struct {
	Text  string `json:"text"`
	Start int    `json:"startOffset"`
	End   int    `json:"endOffset"`
}

// mode is the lexical state of the scanner. Exactly one is active at a time.
type mode int

const (
	modeNormal mode = iota
	modeSingleQuote
	modeDoubleQuote
	modeLineComment
	modeBlockComment
)

// Scan splits text into statements.
//
// It is deterministic, never fails and runs in a single pass with one byte of
// lookahead. A buffer holding only whitespace and comments yields no statements;
// callers that still want something to execute should use SplitOrWhole.
func Scan(text string) []Statement {
	var (
		stmts    []Statement
		n        = len(text)
		m        = modeNormal
		segStart = 0
		sigStart = -1
		pos      offsets
	)

	markSignificant := func(i int) {
		if sigStart < 0 {
			sigStart = i
		}
	}

	for i := 0; i < n; i++ {
		c := text[i]
		switch m {
		case modeLineComment:
			if c == '\n' {
				m = modeNormal
			}
		case modeBlockComment:
			if c == '*' && i+1 < n && text[i+1] == '/' {
				i++
				m = modeNormal
			}
		case modeSingleQuote, modeDoubleQuote:
			width, closed := quoteStep(text, i, m)
			i += width - 1
			if closed {
				m = modeNormal
			}
		default:
			switch {
			case c == '-' && i+1 < n && text[i+1] == '-':
				i++
				m = modeLineComment
			case c == '/' && i+1 < n && text[i+1] == '*':
				i++
				m = modeBlockComment
			case c == ';':
				if sigStart >= 0 {
					stmts = append(stmts, Statement{
						Text:  text[sigStart : i+1],
						Start: pos.chars(text, segStart),
						End:   pos.chars(text, i+1),
					})
				}
				segStart = i + 1
				sigStart = -1
			case c == '\'':
				markSignificant(i)
				m = modeSingleQuote
			case c == '"':
				markSignificant(i)
				m = modeDoubleQuote
			case isSpace(c):
			default:
				markSignificant(i)
			}
		}
	}

	if sigStart >= 0 {
		stmts = append(stmts, Statement{
			Text:  strings.TrimRightFunc(text[sigStart:], unicode.IsSpace),
			Start: pos.chars(text, segStart),
			End:   pos.chars(text, n),
		})
	}
	return stmts
}

// SplitOrWhole scans text and, when nothing executable is found, falls back to
// treating the whole buffer as a single statement. A blank buffer yields nil.
func SplitOrWhole(text string) []Statement {
	if stmts := Scan(text); len(stmts) > 0 {
		return stmts
	}
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return nil
	}
	return []Statement{{Text: trimmed, Start: 0, End: utf8.RuneCountInString(text)}}
}

// Texts returns the Text of every statement, in order.
func Texts(stmts []Statement) []string {
	texts := make([]string, len(stmts))
	for i, s := range stmts {
		texts[i] = s.Text
	}
	return texts
}

// quoteStep advances over text[i] while inside a quote of mode m. It returns the
// number of bytes consumed and whether the quote closed. A doubled quote is an
// escaped literal quote: both bytes are consumed and the quote stays open.
func quoteStep(text string, i int, m mode) (width int, closed bool) {
	q := byte('\'')
	if m == modeDoubleQuote {
		q = '"'
	}
	if text[i] != q {
		return 1, false
	}
	if i+1 < len(text) && text[i+1] == q {
		return 2, false
	}
	return 1, true
}

// offsets converts byte positions to character positions. Positions must be
// requested in non-decreasing order, which keeps the conversion linear.
type offsets struct {
	byteIdx int
	charIdx int
}

func (o *offsets) chars(text string, b int) int {
	o.charIdx += utf8.RuneCountInString(text[o.byteIdx:b])
	o.byteIdx = b
	return o.charIdx
}

func isSpace(c byte) bool {
	switch c {
	case ' ', '\t', '\n', '\r', '\f', '\v':
		return true
	}
	return false
}
