// Package output renders command results as text for terminals and as
// JSON for scripts.
package output

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"golang.org/x/term"
)

// Format represents the output format.
type Format string

// Output format constants.
const (
	FormatText Format = "text"
	FormatJSON Format = "json"
	FormatAuto Format = "auto"
)

// Tabular values render as a table in text mode and as themselves in JSON.
type Tabular interface {
	Table() *Table
}

// Formatter writes command results in one format.
type Formatter struct {
	format Format
	writer io.Writer
}

// NewFormatter creates a formatter writing to w.
func NewFormatter(format Format, w io.Writer) *Formatter {
	return &Formatter{format: format, writer: w}
}

// Format returns the output format.
func (f *Formatter) Format() Format {
	return f.format
}

// IsJSON reports whether results are written as JSON.
func (f *Formatter) IsJSON() bool {
	return f.format == FormatJSON
}

// Print writes v as indented JSON, or as text: strings and Stringers on
// their own line, tables and Tabular values aligned.
func (f *Formatter) Print(v any) error {
	if f.IsJSON() {
		encoder := json.NewEncoder(f.writer)
		encoder.SetIndent("", "  ")
		return encoder.Encode(v)
	}

	var text string
	switch val := v.(type) {
	case *Table:
		return val.Render(f.writer)
	case Tabular:
		return val.Table().Render(f.writer)
	case string:
		text = val
	case fmt.Stringer:
		text = val.String()
	default:
		text = fmt.Sprint(val)
	}
	_, err := fmt.Fprintln(f.writer, text)
	return err
}

// DetectFormat determines the appropriate format based on context.
// Returns JSON for non-TTY output, text for TTY, unless explicitly overridden.
func DetectFormat(w io.Writer, explicit Format) Format {
	if explicit != FormatAuto {
		return explicit
	}

	// Check if output is a TTY
	if f, ok := w.(*os.File); ok {
		if term.IsTerminal(int(f.Fd())) { //nolint:gosec // G115: Fd() returns uintptr, safe conversion for term.IsTerminal
			return FormatText
		}
	}

	return FormatJSON
}

// ParseFormat parses a format string.
func ParseFormat(s string) Format {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "json":
		return FormatJSON
	case "text":
		return FormatText
	default:
		return FormatAuto
	}
}
