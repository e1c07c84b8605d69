package sqlconn

import "strings"

// word is a bare keyword or identifier and the parenthesis depth it appears at
type word struct {
	text  string // upper case
	depth int
}

// words splits query into bare words, skipping string literals, quoted identifiers
// and comments. MySQL executable comments (/*! ... */) are read as code, and "--"
// starts a comment only when followed by whitespace. backslash tells whether a
// backslash escapes the next character inside string literals.
func words(query string, backslash bool) []word {
	var (
		result []word
		depth  int
		exec   int // open executable comments
	)

	s := query
	for len(s) > 0 {
		switch c := s[0]; {
		case c == '\'' || c == '"' || c == '`':
			s = skipQuoted(s, backslash)
		case isLineComment(s):
			i := strings.IndexByte(s, '\n')
			if i < 0 {
				return result
			}

			s = s[i+1:]
		case strings.HasPrefix(s, "/*!") || strings.HasPrefix(s, "/*M!"):
			s = strings.TrimLeft(s[strings.IndexByte(s, '!')+1:], "0123456789")
			exec++
		case strings.HasPrefix(s, "*/") && exec > 0:
			s = s[2:]
			exec--
		case strings.HasPrefix(s, "/*"):
			i := strings.Index(s[2:], "*/")
			if i < 0 {
				return result
			}

			s = s[i+4:]
		case c == '(':
			depth++
			s = s[1:]
		case c == ')':
			depth--
			s = s[1:]
		case isWordStart(c):
			end := 1
			for end < len(s) && isWordPart(s[end]) {
				end++
			}

			result = append(result, word{text: strings.ToUpper(s[:end]), depth: depth})
			s = s[end:]
		case isWordPart(c):
			// numbers and the tails of @variables
			for len(s) > 0 && isWordPart(s[0]) {
				s = s[1:]
			}
		default:
			s = s[1:]
		}
	}

	return result
}

func isWordStart(c byte) bool {
	return c == '_' || c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z'
}

func isWordPart(c byte) bool {
	return isWordStart(c) || c == '$' || c >= '0' && c <= '9'
}

func isLineComment(s string) bool {
	if s[0] == '#' {
		return true
	}

	return strings.HasPrefix(s, "--") && (len(s) == 2 || strings.ContainsRune(" \t\r\n", rune(s[2])))
}

// skipQuoted skips a quoted literal or identifier. A doubled quote escapes the quote
// character, and so does a backslash when backslash is set.
func skipQuoted(s string, backslash bool) string {
	quote := s[0]

	for i := 1; i < len(s); i++ {
		switch s[i] {
		case '\\':
			if backslash && quote != '`' {
				i++
			}
		case quote:
			if i+1 < len(s) && s[i+1] == quote {
				i++
				continue
			}

			return s[i+1:]
		}
	}

	return ""
}

// LeadingKeyword returns the first keyword of query in upper case, skipping
// whitespace, comments and opening parentheses.
func LeadingKeyword(query string) string {
	ws := words(query, true)
	if len(ws) == 0 {
		return ""
	}

	return ws[0].text
}

var statementKeywords = map[string]bool{
	"SELECT":  true,
	"INSERT":  true,
	"UPDATE":  true,
	"DELETE":  true,
	"REPLACE": true,
	"VALUES":  true,
	"TABLE":   true,
}

var dataChanges = map[string]bool{
	"INSERT":  true,
	"UPDATE":  true,
	"DELETE":  true,
	"REPLACE": true,
}

// mainStatement returns the index of the keyword a statement is classified by.
// A leading WITH clause is looked through to the statement it leads into.
// It returns -1 when there is no such keyword.
func mainStatement(ws []word) int {
	if len(ws) == 0 {
		return -1
	}

	if ws[0].text != "WITH" {
		return 0
	}

	for i := 1; i < len(ws); i++ {
		if ws[i].depth == ws[0].depth && statementKeywords[ws[i].text] {
			return i
		}
	}

	return -1
}

// ReturnsRows reports whether query is a statement kind that produces a result set.
// Data changing statements are recognized as row returning only with a RETURNING
// clause of their own. SELECT ... INTO writes its rows elsewhere and returns none.
func ReturnsRows(query string) bool {
	return returnsRows(words(query, true))
}

func returnsRows(ws []word) bool {
	main := mainStatement(ws)
	if main < 0 {
		return false
	}

	rest := ws[main:]

	switch rest[0].text {
	case "SELECT", "VALUES", "TABLE":
		for _, w := range rest {
			if w.text == "INTO" {
				return false
			}
		}

		return true
	case "SHOW", "EXPLAIN", "DESCRIBE", "DESC":
		return true
	case "INSERT", "UPDATE", "DELETE", "REPLACE":
		for _, w := range rest {
			if w.text == "RETURNING" && w.depth == rest[0].depth {
				return true
			}
		}
	}

	return false
}

// Probeable reports whether query can be executed to learn its result columns
// without effects that outlive a rolled back transaction. Only reading statements
// qualify: a rollback does not undo writes to non-transactional tables, sequence
// increments or files. The query must qualify whether or not the server treats
// backslashes in string literals as escapes.
func Probeable(query string) bool {
	return probeable(words(query, true)) && probeable(words(query, false))
}

func probeable(ws []word) bool {
	if !returnsRows(ws) {
		return false
	}

	main := mainStatement(ws)

	if dataChanges[ws[main].text] {
		return false
	}

	for i, w := range ws {
		switch {
		case i < main && dataChanges[w.text]:
			// data changing common table expression
			return false
		case w.text == "NEXTVAL" || w.text == "SETVAL":
			return false
		case w.text == "NEXT" && i+1 < len(ws) && ws[i+1].text == "VALUE":
			return false
		case w.text == "ANALYZE" && i == main+1 && (ws[main].text == "EXPLAIN" || ws[main].text == "DESCRIBE" || ws[main].text == "DESC"):
			// EXPLAIN ANALYZE executes the statement
			return false
		}
	}

	return true
}
