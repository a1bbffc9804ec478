package output

import (
	"fmt"
	"io"
	"strconv"

	"github.com/fatih/color"

	"github.com/panbanda/iltrim/pkg/diagnostic"
	"github.com/panbanda/iltrim/pkg/linker"
	"github.com/panbanda/iltrim/pkg/linker/driver"
)

// DiagnosticRecord is the serialized form of one diagnostic.
type DiagnosticRecord struct {
	Code     string `json:"code" toon:"code"`
	Severity string `json:"severity" toon:"severity"`
	Origin   string `json:"origin,omitempty" toon:"origin"`
	Message  string `json:"message" toon:"message"`
}

// LinkData is what JSON and TOON output of a link contain.
type LinkData struct {
	Assemblies  []linker.AssemblyReport `json:"assemblies" toon:"assemblies"`
	Rewritten   []linker.RewriteRecord  `json:"rewritten,omitempty" toon:"rewritten"`
	Kept        linker.KindCounts       `json:"kept" toon:"kept"`
	Removed     linker.KindCounts       `json:"removed" toon:"removed"`
	Diagnostics []DiagnosticRecord      `json:"diagnostics,omitempty" toon:"diagnostics"`
	Suppressed  int                     `json:"suppressed,omitempty" toon:"suppressed"`
}

// LinkSummary renders the outcome of a link.
type LinkSummary struct {
	data LinkData
}

// NewLinkSummary collects a report and the diagnostics of the same link.
// Either may be nil.
func NewLinkSummary(rep *linker.Report, diags *diagnostic.Collector) *LinkSummary {
	var s LinkSummary
	if rep != nil {
		s.data.Assemblies = rep.Assemblies
		s.data.Rewritten = rep.Rewritten
		for _, a := range rep.Assemblies {
			addCounts(&s.data.Kept, a.Kept)
			addCounts(&s.data.Removed, a.Removed)
		}
	}
	if diags != nil {
		for _, d := range diags.Diagnostics() {
			s.data.Diagnostics = append(s.data.Diagnostics, DiagnosticRecord{
				Code:     d.Code.String(),
				Severity: d.Severity.String(),
				Origin:   d.Origin,
				Message:  d.Message,
			})
		}
		s.data.Suppressed = diags.Suppressed()
	}
	return &s
}

func addCounts(dst *linker.KindCounts, src linker.KindCounts) {
	dst.Types += src.Types
	dst.Methods += src.Methods
	dst.Fields += src.Fields
	dst.Properties += src.Properties
	dst.Events += src.Events
}

// Data returns the collected values.
func (s *LinkSummary) Data() LinkData { return s.data }

func (s *LinkSummary) RenderData() any { return s.data }

func (s *LinkSummary) assemblyTable() *Table {
	headers := []string{"Assembly", "Action", "Types", "Methods", "Fields", "Removed", "Output"}
	rows := make([][]string, 0, len(s.data.Assemblies))
	for _, a := range s.data.Assemblies {
		rows = append(rows, []string{
			a.Name,
			a.Action,
			strconv.Itoa(a.Kept.Types),
			strconv.Itoa(a.Kept.Methods),
			strconv.Itoa(a.Kept.Fields),
			strconv.Itoa(a.Removed.Total()),
			a.Output,
		})
	}
	footer := []string{
		"Total", "",
		strconv.Itoa(s.data.Kept.Types),
		strconv.Itoa(s.data.Kept.Methods),
		strconv.Itoa(s.data.Kept.Fields),
		strconv.Itoa(s.data.Removed.Total()),
		"",
	}
	return NewTable("Assemblies", headers, rows, footer, nil)
}

func (s *LinkSummary) rewriteTable() *Table {
	rows := make([][]string, len(s.data.Rewritten))
	for i, r := range s.data.Rewritten {
		rows[i] = []string{r.Method, r.Action}
	}
	return NewTable("Rewritten bodies", []string{"Method", "Action"}, rows, nil, nil)
}

func (s *LinkSummary) RenderText(w io.Writer, colored bool) error {
	if err := s.assemblyTable().RenderText(w, colored); err != nil {
		return err
	}
	if len(s.data.Rewritten) > 0 {
		if err := s.rewriteTable().RenderText(w, colored); err != nil {
			return err
		}
	}
	for _, d := range s.data.Diagnostics {
		label := d.Severity + " " + d.Code
		if colored {
			label = SeverityColor(severityOf(d.Severity), label)
		}
		if d.Origin != "" {
			fmt.Fprintf(w, "%s: %s: %s\n", d.Origin, label, d.Message)
		} else {
			fmt.Fprintf(w, "%s: %s\n", label, d.Message)
		}
	}
	if s.data.Suppressed > 0 {
		fmt.Fprintf(w, "(%d suppressed)\n", s.data.Suppressed)
	}
	return nil
}

func (s *LinkSummary) RenderMarkdown(w io.Writer) error {
	if err := s.assemblyTable().RenderMarkdown(w); err != nil {
		return err
	}
	if len(s.data.Rewritten) > 0 {
		if err := s.rewriteTable().RenderMarkdown(w); err != nil {
			return err
		}
	}
	if len(s.data.Diagnostics) == 0 {
		return nil
	}
	rows := make([][]string, len(s.data.Diagnostics))
	for i, d := range s.data.Diagnostics {
		rows[i] = []string{d.Code, d.Severity, d.Origin, d.Message}
	}
	return NewTable("Diagnostics", []string{"Code", "Severity", "Origin", "Message"}, rows, nil, nil).RenderMarkdown(w)
}

func severityOf(s string) diagnostic.Severity {
	switch s {
	case "error":
		return diagnostic.Error
	case "warning":
		return diagnostic.Warning
	default:
		return diagnostic.Info
	}
}

// WhyKept renders why-kept explanations.
type WhyKept struct {
	Explanations []driver.Explanation `json:"explanations" toon:"explanations"`
}

func (wk *WhyKept) RenderData() any { return wk }

func (wk *WhyKept) RenderText(w io.Writer, colored bool) error {
	for i, ex := range wk.Explanations {
		if i > 0 {
			fmt.Fprintln(w)
		}
		title := ex.Target
		if colored {
			title = boldString(title)
		}
		fmt.Fprintln(w, title)
		writeChain(w, ex, "  ")
	}
	return nil
}

func (wk *WhyKept) RenderMarkdown(w io.Writer) error {
	for _, ex := range wk.Explanations {
		fmt.Fprintf(w, "### `%s`\n\n", ex.Target)
		writeChain(w, ex, "- ")
		fmt.Fprintln(w)
	}
	return nil
}

func writeChain(w io.Writer, ex driver.Explanation, prefix string) {
	if len(ex.Chain) == 0 {
		fmt.Fprintln(w, prefix+ex.String())
		return
	}
	for i, step := range ex.Chain {
		fmt.Fprintf(w, "%s%d. %s\n", prefix, i+1, step)
	}
}

func boldString(s string) string {
	return color.New(color.Bold).Sprint(s)
}
