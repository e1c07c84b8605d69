// Package formatter renders describe results for the command line.
package formatter

import (
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/goccy/go-yaml"
	"github.com/shibukawa/sqlshape"
)

// ErrInvalidOutputFormat is returned for an unsupported output format
var ErrInvalidOutputFormat = errors.New("invalid output format")

// OutputFormat selects how results are rendered
type OutputFormat string

const (
	FormatTable    OutputFormat = "table"
	FormatJSON     OutputFormat = "json"
	FormatYAML     OutputFormat = "yaml"
	FormatCSV      OutputFormat = "csv"
	FormatMarkdown OutputFormat = "markdown"
)

// Result is the outcome of describing one statement
type Result struct {
	Name        string                `json:"name" yaml:"name"`
	Location    string                `json:"location,omitempty" yaml:"location,omitempty"`
	Query       string                `json:"query" yaml:"query"`
	Description *sqlshape.Description `json:"description,omitempty" yaml:"description,omitempty"`
	Error       string                `json:"error,omitempty" yaml:"error,omitempty"`
}

// Failed reports whether the statement could not be described
func (r Result) Failed() bool {
	return r.Error != ""
}

// Formatter formats describe results
type Formatter struct {
	Output OutputFormat
}

// NewFormatter creates a new result formatter
func NewFormatter(format OutputFormat) *Formatter {
	return &Formatter{
		Output: format,
	}
}

// Format writes results to output in the configured format
func (f *Formatter) Format(results []Result, output io.Writer) error {
	switch f.Output {
	case FormatTable, "":
		return f.formatAsTable(results, output)
	case FormatJSON:
		return f.formatAsJSON(results, output)
	case FormatYAML:
		return f.formatAsYAML(results, output)
	case FormatCSV:
		return f.formatAsCSV(results, output)
	case FormatMarkdown:
		return f.formatAsMarkdown(results, output)
	default:
		return fmt.Errorf("%w: %s", ErrInvalidOutputFormat, f.Output)
	}
}

// formatAsTable prints one block per statement with aligned parameter and column rows
func (f *Formatter) formatAsTable(results []Result, output io.Writer) error {
	for i, r := range results {
		if i > 0 {
			fmt.Fprintln(output)
		}

		fmt.Fprintln(output, heading(r))

		if r.Failed() {
			fmt.Fprintf(output, "  error: %s\n", r.Error)
			continue
		}

		t := newTable("", "NAME", "TYPE", "KIND", "NULLABILITY")
		for _, row := range rows(r.Description) {
			t.append(row.section, row.name, row.typ.Name, row.typ.Kind, row.nullable.String())
		}

		if err := t.write(output, "  "); err != nil {
			return err
		}

		for _, note := range notes(r.Description) {
			fmt.Fprintf(output, "  note: %s\n", note)
		}
	}

	return nil
}

func (f *Formatter) formatAsJSON(results []Result, output io.Writer) error {
	encoder := json.NewEncoder(output)
	encoder.SetIndent("", "  ")

	return encoder.Encode(results)
}

func (f *Formatter) formatAsYAML(results []Result, output io.Writer) error {
	data, err := yaml.Marshal(results)
	if err != nil {
		return fmt.Errorf("failed to marshal results to YAML: %w", err)
	}

	_, err = output.Write(data)

	return err
}

// formatAsCSV writes one record per parameter and column
func (f *Formatter) formatAsCSV(results []Result, output io.Writer) error {
	writer := csv.NewWriter(output)

	if err := writer.Write([]string{"statement", "dialect", "section", "name", "type", "kind", "nullability", "error"}); err != nil {
		return fmt.Errorf("failed to write CSV header: %w", err)
	}

	for _, r := range results {
		if r.Failed() {
			if err := writer.Write([]string{r.Name, "", "", "", "", "", "", r.Error}); err != nil {
				return fmt.Errorf("failed to write CSV row: %w", err)
			}

			continue
		}

		for _, row := range rows(r.Description) {
			record := []string{r.Name, string(r.Description.Dialect), row.section, row.name, row.typ.Name, row.typ.Kind, row.nullable.String(), ""}
			if err := writer.Write(record); err != nil {
				return fmt.Errorf("failed to write CSV row: %w", err)
			}
		}
	}

	writer.Flush()

	return writer.Error()
}

func (f *Formatter) formatAsMarkdown(results []Result, output io.Writer) error {
	for i, r := range results {
		if i > 0 {
			fmt.Fprintln(output)
		}

		fmt.Fprintf(output, "## %s\n\n", heading(r))

		if r.Failed() {
			fmt.Fprintf(output, "> error: %s\n", r.Error)
			continue
		}

		fmt.Fprintln(output, "| | Name | Type | Kind | Nullability |")
		fmt.Fprintln(output, "|---|---|---|---|---|")

		for _, row := range rows(r.Description) {
			fmt.Fprintf(output, "| %s | %s | `%s` | %s | %s |\n",
				row.section, escapeMarkdown(row.name), row.typ.Name, row.typ.Kind, row.nullable)
		}

		for _, note := range notes(r.Description) {
			fmt.Fprintf(output, "\n> note: %s\n", note)
		}
	}

	return nil
}

// notes explain the values a dialect cannot report
func notes(desc *sqlshape.Description) []string {
	var result []string

	d := desc.Dialect

	if len(desc.Params) > 0 && !d.Supports(sqlshape.FeatureParameterTypes) {
		result = append(result, d.DisplayName()+" does not report parameter types, parameters use the configured default type")
	}

	if len(desc.Columns) > 0 && !d.Supports(sqlshape.FeatureColumnNullability) {
		result = append(result, d.DisplayName()+" does not report column nullability")
	}

	return result
}

type row struct {
	section  string
	name     string
	typ      sqlshape.TypeInfo
	nullable sqlshape.Nullability
}

func rows(desc *sqlshape.Description) []row {
	if desc == nil {
		return nil
	}

	result := make([]row, 0, len(desc.Params)+len(desc.Columns))

	for _, p := range desc.Params {
		result = append(result, row{section: "param", name: "$" + strconv.Itoa(p.Position), typ: p.Type, nullable: p.Nullable})
	}

	for _, c := range desc.Columns {
		result = append(result, row{section: "column", name: c.Name, typ: c.Type, nullable: c.Nullable})
	}

	return result
}

func heading(r Result) string {
	var b strings.Builder

	b.WriteString(r.Name)

	if r.Description != nil {
		fmt.Fprintf(&b, " (%s)", r.Description.Dialect.DisplayName())
	}

	if r.Location != "" {
		fmt.Fprintf(&b, " %s", r.Location)
	}

	return b.String()
}

func escapeMarkdown(s string) string {
	return strings.ReplaceAll(s, "|", `\|`)
}

// IsValidOutputFormat checks if the output format is valid
func IsValidOutputFormat(format string) bool {
	switch OutputFormat(strings.ToLower(format)) {
	case FormatTable, FormatJSON, FormatYAML, FormatCSV, FormatMarkdown:
		return true
	default:
		return false
	}
}
