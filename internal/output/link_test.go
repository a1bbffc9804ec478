package output

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/panbanda/iltrim/pkg/diagnostic"
	"github.com/panbanda/iltrim/pkg/linker"
	"github.com/panbanda/iltrim/pkg/linker/driver"
)

func sampleSummary() *LinkSummary {
	rep := &linker.Report{
		Assemblies: []linker.AssemblyReport{
			{Name: "App", Action: "link", Kept: linker.KindCounts{Types: 3, Methods: 7}, Removed: linker.KindCounts{Types: 1, Fields: 2}, Output: "out/App.yaml"},
			{Name: "Plugin", Action: "delete", Removed: linker.KindCounts{Types: 4}},
		},
		Rewritten: []linker.RewriteRecord{{Method: "System.Void App.Widget::Run()", Action: "throw"}},
	}
	diags := diagnostic.NewCollector(diagnostic.WithNoWarn(diagnostic.CodeRequiresUnreferencedCode))
	diags.Report(diagnostic.CodeUnrecognizedReflectionPattern, "MethodDef:System.Void App.Program::Main()", "call to GetType cannot be analyzed")
	diags.Report(diagnostic.CodeRequiresUnreferencedCode, "x", "hidden")
	return NewLinkSummary(rep, diags)
}

func TestLinkSummaryTotals(t *testing.T) {
	data := sampleSummary().Data()

	assert.Equal(t, linker.KindCounts{Types: 3, Methods: 7}, data.Kept)
	assert.Equal(t, 7, data.Removed.Total())
	require.Len(t, data.Diagnostics, 1)
	assert.Equal(t, "IL2057", data.Diagnostics[0].Code)
	assert.Equal(t, "warning", data.Diagnostics[0].Severity)
	assert.Equal(t, 1, data.Suppressed)
}

func TestLinkSummaryText(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, sampleSummary().RenderText(&buf, false))
	out := buf.String()

	assert.Contains(t, out, "Assemblies")
	assert.Contains(t, out, "out/App.yaml")
	assert.Contains(t, out, "Rewritten bodies")
	assert.Contains(t, out, "MethodDef:System.Void App.Program::Main(): warning IL2057: call to GetType cannot be analyzed")
	assert.Contains(t, out, "(1 suppressed)")
}

func TestLinkSummaryMarkdown(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, sampleSummary().RenderMarkdown(&buf))
	out := buf.String()

	assert.Contains(t, out, "## Assemblies")
	assert.Contains(t, out, "| App | link | 3 | 7 | 0 | 3 | out/App.yaml |")
	assert.Contains(t, out, "| Total |  | 3 | 7 | 0 | 7 |  |")
	assert.Contains(t, out, "## Diagnostics")
}

func TestLinkSummaryJSON(t *testing.T) {
	var buf bytes.Buffer
	f := &Formatter{format: FormatJSON, writer: &buf}
	require.NoError(t, f.Output(sampleSummary()))

	var decoded LinkData
	require.NoError(t, json.Unmarshal(buf.Bytes(), &decoded))
	assert.Len(t, decoded.Assemblies, 2)
	assert.Equal(t, "throw", decoded.Rewritten[0].Action)
}

func TestLinkSummaryWithoutInputs(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, NewLinkSummary(nil, nil).RenderText(&buf, false))
	assert.True(t, strings.HasPrefix(buf.String(), "Assemblies\n=========="))
}

func TestWhyKeptRendering(t *testing.T) {
	wk := &WhyKept{Explanations: []driver.Explanation{
		{Target: "TypeDef:App.Widget", Kept: true, Chain: []string{"Other:entry", "MethodDef:System.Void App.Program::Main()", "TypeDef:App.Widget"}},
		{Target: "TypeDef:App.Orphan"},
	}}

	var text bytes.Buffer
	require.NoError(t, wk.RenderText(&text, false))
	assert.Contains(t, text.String(), "  2. MethodDef:System.Void App.Program::Main()\n")
	assert.Contains(t, text.String(), "  TypeDef:App.Orphan (removed)\n")

	var md bytes.Buffer
	require.NoError(t, wk.RenderMarkdown(&md))
	assert.True(t, strings.HasPrefix(md.String(), "### `TypeDef:App.Widget`"))
	assert.Contains(t, md.String(), "- 3. TypeDef:App.Widget")
}
