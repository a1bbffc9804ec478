// Package output renders link reports, diagnostics and why-kept chains as
// text, markdown, JSON or TOON.
package output

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/fatih/color"
	toon "github.com/toon-format/toon-go"

	"github.com/panbanda/iltrim/pkg/diagnostic"
)

// Format represents an output format.
type Format string

const (
	FormatText     Format = "text"
	FormatJSON     Format = "json"
	FormatMarkdown Format = "markdown"
	FormatTOON     Format = "toon"
)

// ParseFormat converts a string to Format, defaulting to text.
func ParseFormat(s string) Format {
	switch strings.ToLower(s) {
	case "json":
		return FormatJSON
	case "markdown", "md":
		return FormatMarkdown
	case "toon":
		return FormatTOON
	default:
		return FormatText
	}
}

// Renderable is a report that knows its own text and markdown layout.
type Renderable interface {
	RenderText(w io.Writer, colored bool) error
	RenderMarkdown(w io.Writer) error
	// RenderData returns what JSON and TOON serialize.
	RenderData() any
}

// Formatter writes reports to stdout or a report file.
type Formatter struct {
	format  Format
	writer  io.Writer
	file    *os.File
	colored bool
}

// NewFormatter creates a formatter writing to path, or to stdout when path is
// empty. Color is always off for files.
func NewFormatter(format Format, path string, colored bool) (*Formatter, error) {
	f := &Formatter{format: format, writer: os.Stdout, colored: colored}
	if path != "" {
		file, err := os.Create(path)
		if err != nil {
			return nil, err
		}
		f.writer = file
		f.file = file
		f.colored = false
	}
	return f, nil
}

// Close closes the report file, if any.
func (f *Formatter) Close() error {
	if f.file != nil {
		return f.file.Close()
	}
	return nil
}

func (f *Formatter) Format() Format { return f.format }

func (f *Formatter) Colored() bool { return f.colored }

// Output writes data in the configured format. Values that are not
// Renderable are serialized; markdown wraps them in a fenced JSON block.
func (f *Formatter) Output(data any) error {
	r, renderable := data.(Renderable)
	if renderable {
		data = r.RenderData()
	}
	switch f.format {
	case FormatJSON:
		return f.writeJSON(data)
	case FormatTOON:
		return f.writeTOON(data)
	case FormatMarkdown:
		if renderable {
			return r.RenderMarkdown(f.writer)
		}
		fmt.Fprintln(f.writer, "```json")
		if err := f.writeJSON(data); err != nil {
			return err
		}
		_, err := fmt.Fprintln(f.writer, "```")
		return err
	default:
		if renderable {
			return r.RenderText(f.writer, f.colored)
		}
		return f.writeJSON(data)
	}
}

func (f *Formatter) writeJSON(data any) error {
	encoder := json.NewEncoder(f.writer)
	encoder.SetIndent("", "  ")
	return encoder.Encode(data)
}

func (f *Formatter) writeTOON(data any) error {
	out, err := toon.Marshal(data, toon.WithIndent(2))
	if err != nil {
		return err
	}
	if _, err := f.writer.Write(out); err != nil {
		return err
	}
	_, err = fmt.Fprintln(f.writer)
	return err
}

// SeverityColor colors text by diagnostic severity.
func SeverityColor(sev diagnostic.Severity, text string) string {
	switch sev {
	case diagnostic.Error:
		return color.New(color.FgRed).Sprint(text)
	case diagnostic.Warning:
		return color.New(color.FgYellow).Sprint(text)
	default:
		return color.New(color.FgCyan).Sprint(text)
	}
}

// heading writes a title underlined with '='.
func heading(w io.Writer, title string, colored bool) {
	if colored {
		color.New(color.Bold).Fprintln(w, title)
	} else {
		fmt.Fprintln(w, title)
	}
	fmt.Fprintln(w, strings.Repeat("=", len(title)))
	fmt.Fprintln(w)
}
