package sqlcheck

import (
	"regexp"
	"strings"
)

var whitespaceRe = regexp.MustCompile(`\s+`)

// Normalize prepares a statement for token-level scanning. It strips line and
// block comments, replaces every quoted string literal with an empty-literal
// placeholder, collapses whitespace, and trims a single trailing semicolon.
//
// Literal stripping must happen before any token scan: a literal value such
// as ";" or "DELETE" inside a string would otherwise produce false
// positives. A single scanner pass handles comments and literals together so
// that quote characters inside comments (and comment markers inside
// literals) cannot confuse either.
func Normalize(sql string) string {
	var b strings.Builder
	b.Grow(len(sql))

	const (
		stateNormal = iota
		stateString
		stateQuotedIdent
		stateLineComment
		stateBlockComment
	)

	state := stateNormal
	for i := 0; i < len(sql); i++ {
		c := sql[i]
		switch state {
		case stateNormal:
			switch {
			case c == '\'':
				state = stateString
				b.WriteString("''")
			case c == '"':
				state = stateQuotedIdent
				b.WriteByte(c)
			case c == '-' && i+1 < len(sql) && sql[i+1] == '-':
				state = stateLineComment
				i++
				b.WriteByte(' ')
			case c == '/' && i+1 < len(sql) && sql[i+1] == '*':
				state = stateBlockComment
				i++
				b.WriteByte(' ')
			default:
				b.WriteByte(c)
			}
		case stateString:
			if c == '\'' {
				// Doubled quote is an escaped quote, stay inside the literal.
				if i+1 < len(sql) && sql[i+1] == '\'' {
					i++
					continue
				}
				state = stateNormal
			}
		case stateQuotedIdent:
			b.WriteByte(c)
			if c == '"' {
				state = stateNormal
			}
		case stateLineComment:
			if c == '\n' {
				state = stateNormal
				b.WriteByte(' ')
			}
		case stateBlockComment:
			if c == '*' && i+1 < len(sql) && sql[i+1] == '/' {
				i++
				state = stateNormal
				b.WriteByte(' ')
			}
		}
	}

	out := whitespaceRe.ReplaceAllString(b.String(), " ")
	out = strings.TrimSpace(out)
	out = strings.TrimSuffix(out, ";")
	return strings.TrimSpace(out)
}

// firstKeyword returns the first token of the normalized statement, upper-cased.
func firstKeyword(norm string) string {
	fields := strings.Fields(norm)
	if len(fields) == 0 {
		return ""
	}
	return strings.ToUpper(strings.Trim(fields[0], "("))
}
