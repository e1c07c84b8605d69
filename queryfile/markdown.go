package queryfile

import (
	"fmt"
	"strings"

	"github.com/goccy/go-yaml"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/extension"
	"github.com/yuin/goldmark/text"
)

type frontMatter struct {
	Name     string `yaml:"name"`
	Database string `yaml:"database"`
}

// parseMarkdown returns one statement per sql fenced code block
func parseMarkdown(path string, content []byte) ([]Statement, error) {
	meta, body, offset, err := parseFrontMatter(string(content))
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrInvalidFrontMatter, path, err)
	}

	source := []byte(body)
	lines := newLineStarts(content)
	md := goldmark.New(goldmark.WithExtensions(extension.GFM))
	doc := md.Parser().Parse(text.NewReader(source))

	var (
		statements []Statement
		heading    string
	)

	err = ast.Walk(doc, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			return ast.WalkContinue, nil
		}

		switch node := n.(type) {
		case *ast.Heading:
			heading = headingText(node, source)
			return ast.WalkSkipChildren, nil
		case *ast.FencedCodeBlock:
			if node.Info == nil || !strings.EqualFold(strings.TrimSpace(string(node.Info.Value(source))), "sql") {
				return ast.WalkSkipChildren, nil
			}

			sql, start := codeBlockText(node, source)
			if strings.TrimSpace(sql) == "" {
				return ast.WalkSkipChildren, nil
			}

			statements = append(statements, Statement{
				Name:     heading,
				File:     path,
				Line:     lines.line(offset + start),
				SQL:      strings.TrimSpace(sql),
				Database: meta.Database,
			})

			return ast.WalkSkipChildren, nil
		}

		return ast.WalkContinue, nil
	})
	if err != nil {
		return nil, err
	}

	name := meta.Name
	if name == "" {
		name = baseName(path)
	}

	for i := range statements {
		switch {
		case statements[i].Name == "" && len(statements) == 1:
			statements[i].Name = name
		case statements[i].Name == "":
			statements[i].Name = fmt.Sprintf("%s#%d", name, i+1)
		}
	}

	return statements, nil
}

// parseFrontMatter splits YAML front matter from the document. offset is the
// byte offset of body inside content.
func parseFrontMatter(content string) (frontMatter, string, int, error) {
	var meta frontMatter

	if !strings.HasPrefix(content, "---\n") {
		return meta, content, 0, nil
	}

	end := strings.Index(content[4:], "\n---")
	if end == -1 {
		return meta, "", 0, ErrInvalidFrontMatter
	}

	end += 4

	if err := yaml.Unmarshal([]byte(content[4:end]), &meta); err != nil {
		return meta, "", 0, err
	}

	return meta, content[end+4:], end + 4, nil
}

func headingText(n ast.Node, source []byte) string {
	var b strings.Builder

	_ = ast.Walk(n, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		if t, ok := n.(*ast.Text); ok && entering {
			b.Write(t.Segment.Value(source))
		}

		return ast.WalkContinue, nil
	})

	return strings.TrimSpace(b.String())
}

func codeBlockText(block *ast.FencedCodeBlock, source []byte) (string, int) {
	var b strings.Builder

	lines := block.Lines()
	for i := range lines.Len() {
		seg := lines.At(i)
		b.Write(seg.Value(source))
	}

	if lines.Len() == 0 {
		return "", 0
	}

	return b.String(), lines.At(0).Start
}
