// Package queryfile loads SQL statements to describe from plain SQL and Markdown files.
//
// A .sql file holds statements separated by semicolons. A Markdown file holds one
// statement per ```sql fenced code block, named after the closest heading above it.
// Both may choose a configured database: SQL files with a "-- database: name" line
// before the first statement, Markdown files with a "database" front matter key.
package queryfile

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"strings"
)

var (
	// ErrUnsupportedExtension is returned for files that are neither SQL nor Markdown
	ErrUnsupportedExtension = errors.New("unsupported query file extension")
	// ErrInvalidFrontMatter is returned when Markdown front matter cannot be parsed
	ErrInvalidFrontMatter = errors.New("invalid front matter")
)

// Statement is one statement found in a query file
type Statement struct {
	Name     string
	File     string
	Line     int // 1-based line of the first statement character
	SQL      string
	Database string // configured database name, empty for the default
}

// Location formats the statement position as file:line
func (s Statement) Location() string {
	return fmt.Sprintf("%s:%d", s.File, s.Line)
}

// Position converts a 1-based character position inside SQL to a file:line:column location
func (s Statement) Position(pos int) string {
	line, col := s.Line, 1

	for i, r := range []rune(s.SQL) {
		if i+1 >= pos {
			break
		}

		if r == '\n' {
			line++
			col = 1
		} else {
			col++
		}
	}

	return fmt.Sprintf("%s:%d:%d", s.File, line, col)
}

// Load reads the statements of one file
func Load(path string) ([]Statement, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read query file: %w", err)
	}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".sql":
		return parseSQL(path, content), nil
	case ".md", ".markdown":
		return parseMarkdown(path, content)
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedExtension, path)
	}
}

// Discover lists files below dir whose extension is in extensions, sorted
func Discover(dir string, extensions []string) ([]string, error) {
	var files []string

	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}

		if d.IsDir() {
			if path != dir && strings.HasPrefix(d.Name(), ".") {
				return filepath.SkipDir
			}

			return nil
		}

		if slices.Contains(extensions, strings.ToLower(filepath.Ext(path))) {
			files = append(files, path)
		}

		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to scan query directory %s: %w", dir, err)
	}

	slices.Sort(files)

	return files, nil
}

// LoadDir discovers and loads every query file below dir
func LoadDir(dir string, extensions []string) ([]Statement, error) {
	files, err := Discover(dir, extensions)
	if err != nil {
		return nil, err
	}

	var statements []Statement

	for _, file := range files {
		found, err := Load(file)
		if err != nil {
			return nil, err
		}

		statements = append(statements, found...)
	}

	return statements, nil
}

func baseName(path string) string {
	return strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
}
