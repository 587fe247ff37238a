package output

import (
	"io"
	"strings"
	"unicode/utf8"
)

// columnGap separates adjacent columns.
const columnGap = "  "

// Table lays out rows in aligned columns. Trailing padding is trimmed so
// the output pastes cleanly.
type Table struct {
	header   []string
	rows     [][]string
	noHeader bool
}

// NewTable creates a table. Without a header it renders rows only.
func NewTable(header ...string) *Table {
	return &Table{header: header}
}

// AddRow appends a row. Rows may be shorter or longer than the header.
func (t *Table) AddRow(cells ...string) {
	t.rows = append(t.rows, cells)
}

// SetNoHeader hides the header and its rule.
func (t *Table) SetNoHeader(noHeader bool) {
	t.noHeader = noHeader
}

// Render writes the table to w.
func (t *Table) Render(w io.Writer) error {
	_, err := io.WriteString(w, t.String())
	return err
}

// String returns the rendered table.
func (t *Table) String() string {
	showHeader := !t.noHeader && len(t.header) > 0
	widths := t.widths(showHeader)
	if len(widths) == 0 {
		return ""
	}

	var sb strings.Builder
	if showHeader {
		writeLine(&sb, t.header, widths)
		rule := make([]string, len(widths))
		for i, n := range widths {
			rule[i] = strings.Repeat("-", n)
		}
		writeLine(&sb, rule, widths)
	}
	for _, row := range t.rows {
		writeLine(&sb, row, widths)
	}
	return sb.String()
}

func (t *Table) widths(showHeader bool) []int {
	var widths []int
	grow := func(cells []string) {
		for i, c := range cells {
			if i >= len(widths) {
				widths = append(widths, 0)
			}
			widths[i] = max(widths[i], utf8.RuneCountInString(c))
		}
	}
	if showHeader {
		grow(t.header)
	}
	for _, row := range t.rows {
		grow(row)
	}
	return widths
}

func writeLine(sb *strings.Builder, cells []string, widths []int) {
	var line strings.Builder
	for i, n := range widths {
		var cell string
		if i < len(cells) {
			cell = cells[i]
		}
		if i > 0 {
			line.WriteString(columnGap)
		}
		line.WriteString(cell)
		line.WriteString(strings.Repeat(" ", n-utf8.RuneCountInString(cell)))
	}
	sb.WriteString(strings.TrimRight(line.String(), " "))
	sb.WriteByte('\n')
}
