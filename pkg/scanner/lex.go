package scanner

import "strings"

// Lexer walks SQL text and yields upper-cased keywords and identifiers,
// skipping comments, quoted text, numbers and punctuation. It is only meant for
// finding leading keywords quickly.
type Lexer struct {
	sql      string
	curToken []byte
	curIdx   int
}

// NewLexer creates a lexer over sql.
func NewLexer(sql string) *Lexer {
	return &Lexer{
		sql:      sql,
		curToken: make([]byte, 0, 32),
	}
}

// NextToken returns the next keyword or identifier, or "" at the end of input.
func (l *Lexer) NextToken() string {
	l.curToken = l.curToken[:0]
	m := modeNormal
	for ; l.curIdx < len(l.sql); l.curIdx++ {
		char := l.sql[l.curIdx]
		switch {
		case m == modeLineComment:
			if char == '\n' {
				m = modeNormal
			}
		case m == modeBlockComment:
			if char == '*' && l.curIdx+1 < len(l.sql) && l.sql[l.curIdx+1] == '/' {
				m = modeNormal
				l.curIdx++
			}
		case m == modeSingleQuote || m == modeDoubleQuote:
			width, closed := quoteStep(l.sql, l.curIdx, m)
			l.curIdx += width - 1
			if closed {
				m = modeNormal
			}
		case char == '-' && l.curIdx+1 < len(l.sql) && l.sql[l.curIdx+1] == '-':
			if len(l.curToken) > 0 {
				return string(l.curToken)
			}
			l.curIdx++
			m = modeLineComment
		case char == '/' && l.curIdx+1 < len(l.sql) && l.sql[l.curIdx+1] == '*':
			if len(l.curToken) > 0 {
				return string(l.curToken)
			}
			l.curIdx++
			m = modeBlockComment
		case char == '\'' || char == '"':
			if len(l.curToken) > 0 {
				return string(l.curToken)
			}
			m = modeSingleQuote
			if char == '"' {
				m = modeDoubleQuote
			}
		case char >= 'a' && char <= 'z':
			l.curToken = append(l.curToken, char-'a'+'A')
		case char >= 'A' && char <= 'Z' || char == '_':
			l.curToken = append(l.curToken, char)
		case char >= '0' && char <= '9' && len(l.curToken) > 0:
			l.curToken = append(l.curToken, char)
		default:
			if len(l.curToken) > 0 {
				l.curIdx++
				return string(l.curToken)
			}
		}
	}

	if len(l.curToken) > 0 {
		return string(l.curToken)
	}
	return ""
}

// Keywords returns up to n leading keywords of sql.
func Keywords(sql string, n int) []string {
	lexer := NewLexer(sql)
	tokens := make([]string, 0, n)
	for len(tokens) < n {
		tok := lexer.NextToken()
		if tok == "" {
			break
		}
		tokens = append(tokens, tok)
	}
	return tokens
}

// Normalize strips comments, collapses whitespace outside quotes into single
// spaces and drops a trailing semicolon. Quoted text is kept verbatim.
func Normalize(sql string) string {
	var sb strings.Builder
	sb.Grow(len(sql))
	n := len(sql)
	m := modeNormal
	pendingSpace := false

	write := func(b byte) {
		if pendingSpace && sb.Len() > 0 {
			sb.WriteByte(' ')
		}
		pendingSpace = false
		sb.WriteByte(b)
	}

	for i := 0; i < n; i++ {
		c := sql[i]
		switch m {
		case modeLineComment:
			if c == '\n' {
				m = modeNormal
			}
		case modeBlockComment:
			if c == '*' && i+1 < n && sql[i+1] == '/' {
				i++
				m = modeNormal
			}
		case modeSingleQuote, modeDoubleQuote:
			width, closed := quoteStep(sql, i, m)
			sb.WriteString(sql[i : i+width])
			i += width - 1
			if closed {
				m = modeNormal
			}
		default:
			switch {
			case c == '-' && i+1 < n && sql[i+1] == '-':
				i++
				m = modeLineComment
				pendingSpace = true
			case c == '/' && i+1 < n && sql[i+1] == '*':
				i++
				m = modeBlockComment
				pendingSpace = true
			case isSpace(c):
				pendingSpace = true
			case c == '\'':
				write(c)
				m = modeSingleQuote
			case c == '"':
				write(c)
				m = modeDoubleQuote
			default:
				write(c)
			}
		}
	}

	out := strings.TrimSpace(sb.String())
	return strings.TrimSpace(strings.TrimSuffix(out, ";"))
}
