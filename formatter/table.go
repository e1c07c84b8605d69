package formatter

import (
	"io"
	"strings"

	"golang.org/x/text/width"
)

// table aligns cells by display width so that East Asian column names line up
type table struct {
	header []string
	rows   [][]string
}

func newTable(header ...string) *table {
	return &table{header: header}
}

func (t *table) append(cells ...string) {
	t.rows = append(t.rows, cells)
}

func (t *table) write(w io.Writer, indent string) error {
	widths := make([]int, len(t.header))

	for _, r := range append([][]string{t.header}, t.rows...) {
		for i, cell := range r {
			widths[i] = max(widths[i], displayWidth(cell))
		}
	}

	var b strings.Builder

	for _, r := range append([][]string{t.header}, t.rows...) {
		var line strings.Builder

		line.WriteString(indent)

		for i, cell := range r {
			line.WriteString(cell)
			line.WriteString(strings.Repeat(" ", widths[i]-displayWidth(cell)+2))
		}

		b.WriteString(strings.TrimRight(line.String(), " "))
		b.WriteString("\n")
	}

	_, err := io.WriteString(w, b.String())

	return err
}

func displayWidth(s string) int {
	n := 0

	for _, r := range s {
		switch width.LookupRune(r).Kind() {
		case width.EastAsianWide, width.EastAsianFullwidth:
			n += 2
		default:
			n++
		}
	}

	return n
}
