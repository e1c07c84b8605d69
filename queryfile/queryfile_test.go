package queryfile

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/alecthomas/assert/v2"
)

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()

	path := filepath.Join(dir, name)
	assert.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	assert.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	return path
}

func TestParseSQL(t *testing.T) {
	content := `-- database: reporting
-- users queries

SELECT id, name FROM users WHERE id = $1;

/* semicolons; inside comments */
SELECT 'a;b', "weird;column" FROM t -- trailing; comment
;
CREATE FUNCTION f() RETURNS int AS $body$ SELECT 1; $body$ LANGUAGE sql;
-- only a comment;
`

	statements := parseSQL("queries/users.sql", []byte(content))
	assert.Equal(t, 3, len(statements))

	assert.Equal(t, Statement{
		Name:     "users#1",
		File:     "queries/users.sql",
		Line:     4,
		SQL:      "SELECT id, name FROM users WHERE id = $1",
		Database: "reporting",
	}, statements[0])

	assert.Equal(t, 6, statements[1].Line)
	assert.Equal(t, "/* semicolons; inside comments */\nSELECT 'a;b', \"weird;column\" FROM t -- trailing; comment", statements[1].SQL)
	assert.Equal(t, "CREATE FUNCTION f() RETURNS int AS $body$ SELECT 1; $body$ LANGUAGE sql", statements[2].SQL)
	assert.Equal(t, "users#3", statements[2].Name)
}

func TestParseSQLSingleStatement(t *testing.T) {
	statements := parseSQL("list_users.sql", []byte("SELECT 'it''s' AS quote FROM users\n"))
	assert.Equal(t, 1, len(statements))
	assert.Equal(t, "list_users", statements[0].Name)
	assert.Equal(t, "", statements[0].Database)
}

func TestParseMarkdown(t *testing.T) {
	content := "---\nname: accounts\ndatabase: billing\n---\n# Accounts\n\n## Find account\n\n```sql\nSELECT id\nFROM accounts\nWHERE id = ?\n```\n\n```go\nfmt.Println(1)\n```\n\n## Close account\n\n```SQL\nUPDATE accounts SET closed = true WHERE id = ?\n```\n"

	statements, err := parseMarkdown("docs/accounts.md", []byte(content))
	assert.NoError(t, err)
	assert.Equal(t, []Statement{
		{
			Name:     "Find account",
			File:     "docs/accounts.md",
			Line:     10,
			SQL:      "SELECT id\nFROM accounts\nWHERE id = ?",
			Database: "billing",
		},
		{
			Name:     "Close account",
			File:     "docs/accounts.md",
			Line:     22,
			SQL:      "UPDATE accounts SET closed = true WHERE id = ?",
			Database: "billing",
		},
	}, statements)
}

func TestParseMarkdownWithoutHeading(t *testing.T) {
	statements, err := parseMarkdown("ping.md", []byte("```sql\nSELECT 1\n```\n"))
	assert.NoError(t, err)
	assert.Equal(t, "ping", statements[0].Name)
	assert.Equal(t, 2, statements[0].Line)
}

func TestParseMarkdownInvalidFrontMatter(t *testing.T) {
	_, err := parseMarkdown("broken.md", []byte("---\nname: [\n"))
	assert.IsError(t, err, ErrInvalidFrontMatter)
}

func TestStatementPosition(t *testing.T) {
	s := Statement{File: "q.sql", Line: 4, SQL: "SELECT id\nFROM users WHER id = 1"}
	assert.Equal(t, "q.sql:5:12", s.Position(22))
	assert.Equal(t, "q.sql:4", s.Location())
}

func TestLoadDir(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "b.sql", "SELECT 2")
	writeFile(t, dir, "a/nested.md", "```sql\nSELECT 1\n```\n")
	writeFile(t, dir, "notes.txt", "SELECT 3")
	writeFile(t, dir, ".git/hooks.sql", "SELECT 4")

	statements, err := LoadDir(dir, []string{".sql", ".md"})
	assert.NoError(t, err)
	assert.Equal(t, 2, len(statements))
	assert.Equal(t, "nested", statements[0].Name)
	assert.Equal(t, "b", statements[1].Name)

	_, err = Load(filepath.Join(dir, "notes.txt"))
	assert.IsError(t, err, ErrUnsupportedExtension)
}
