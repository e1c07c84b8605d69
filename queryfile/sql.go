package queryfile

import (
	"fmt"
	"strings"
)

const databaseDirective = "database:"

// parseSQL splits content at top level semicolons. Quotes, quoted identifiers,
// comments and dollar-quoted bodies are skipped.
func parseSQL(path string, content []byte) []Statement {
	src := string(content)
	lines := newLineStarts(content)
	database := leadingDatabase(src)

	var (
		statements []Statement
		start      int
	)

	flush := func(end int) {
		body := src[start:end]
		skip := leadingCommentLength(body)
		text := body[skip:]
		trimmed := strings.TrimSpace(text)

		if trimmed != "" {
			offset := start + skip + strings.Index(text, trimmed)
			statements = append(statements, Statement{
				File:     path,
				Line:     lines.line(offset),
				SQL:      trimmed,
				Database: database,
			})
		}

		start = end + 1
	}

	for i := 0; i < len(src); i++ {
		switch c := src[i]; {
		case c == '\'' || c == '"' || c == '`':
			i = skipQuoted(src, i, c)
		case c == '-' && strings.HasPrefix(src[i:], "--"):
			i = skipLine(src, i)
		case c == '/' && strings.HasPrefix(src[i:], "/*"):
			if end := strings.Index(src[i+2:], "*/"); end >= 0 {
				i += end + 3
			} else {
				i = len(src)
			}
		case c == '$':
			i = skipDollarQuoted(src, i)
		case c == ';':
			flush(i)
		}
	}

	flush(len(src))

	for i := range statements {
		if len(statements) == 1 {
			statements[i].Name = baseName(path)
		} else {
			statements[i].Name = fmt.Sprintf("%s#%d", baseName(path), i+1)
		}
	}

	return statements
}

// leadingDatabase reads a "-- database: name" comment before the first statement
func leadingDatabase(src string) string {
	for _, line := range strings.Split(src, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}

		comment, ok := strings.CutPrefix(line, "--")
		if !ok {
			return ""
		}

		if name, ok := strings.CutPrefix(strings.TrimSpace(comment), databaseDirective); ok {
			return strings.TrimSpace(name)
		}
	}

	return ""
}

// leadingCommentLength returns the length of the whitespace and line comments before a statement
func leadingCommentLength(s string) int {
	i := 0

	for {
		rest := strings.TrimLeft(s[i:], " \t\r\n")
		i = len(s) - len(rest)

		if !strings.HasPrefix(rest, "--") {
			return i
		}

		end := strings.IndexByte(rest, '\n')
		if end < 0 {
			return len(s)
		}

		i += end + 1
	}
}

func skipQuoted(src string, i int, quote byte) int {
	for j := i + 1; j < len(src); j++ {
		if src[j] != quote {
			continue
		}

		// doubled quote escapes itself
		if j+1 < len(src) && src[j+1] == quote {
			j++
			continue
		}

		return j
	}

	return len(src)
}

func skipLine(src string, i int) int {
	if end := strings.IndexByte(src[i:], '\n'); end >= 0 {
		return i + end
	}

	return len(src)
}

// skipDollarQuoted skips a PostgreSQL $tag$...$tag$ body. Positional parameters ($1) are left alone.
func skipDollarQuoted(src string, i int) int {
	end := strings.IndexByte(src[i+1:], '$')
	if end < 0 {
		return i
	}

	tag := src[i : i+end+2]
	for _, r := range tag[1 : len(tag)-1] {
		if !(r == '_' || r >= 'a' && r <= 'z' || r >= 'A' && r <= 'Z' || r >= '0' && r <= '9') {
			return i
		}
	}

	if len(tag) > 2 && tag[1] >= '0' && tag[1] <= '9' {
		return i
	}

	closing := strings.Index(src[i+len(tag):], tag)
	if closing < 0 {
		return len(src)
	}

	return i + len(tag) + closing + len(tag) - 1
}
