package main

import (
	"bytes"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/urfave/cli/v2"

	"github.com/panbanda/iltrim/internal/output"
	"github.com/panbanda/iltrim/pkg/config"
	"github.com/panbanda/iltrim/pkg/linker/driver"
)

const coreDoc = `
name: System.Private.CoreLib
types:
  - namespace: System
    name: Object
    methods:
      - name: .ctor
        flags: [specialname]
        body:
          instructions:
            - op: ret
  - namespace: System
    name: ValueType
    base: System.Object
  - namespace: System
    name: Void
    base: System.ValueType
    flags: [valuetype, sealed]
`

const appDoc = `
name: App
references: [System.Private.CoreLib]
entry_point: {type: App.Program, name: Main}
types:
  - namespace: App
    name: Program
    base: System.Object
    methods:
      - name: Main
        flags: [static]
        body:
          instructions:
            - {op: call, method: {type: App.Helper, name: Help}}
            - {op: ret}
  - namespace: App
    name: Helper
    base: System.Object
    methods:
      - name: Help
        flags: [static]
        body:
          instructions:
            - {op: ret}
  - namespace: App
    name: Orphan
    base: System.Object
`

// writeDocs writes a small two-assembly input set and returns its directory.
func writeDocs(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	for name, content := range map[string]string{"corelib.yaml": coreDoc, "app.yaml": appDoc} {
		if err := os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644); err != nil {
			t.Fatalf("failed to write %s: %v", name, err)
		}
	}
	return dir
}

// TestParseRoot verifies root flag parsing.
func TestParseRoot(t *testing.T) {
	tests := []struct {
		input string
		want  config.RootConfig
	}{
		{"App", config.RootConfig{Assembly: "App"}},
		{"App:visible", config.RootConfig{Assembly: "App", Mode: "visible"}},
		{"My.App:all", config.RootConfig{Assembly: "My.App", Mode: "all"}},
		{":all", config.RootConfig{Assembly: ":all"}},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			if got := parseRoot(tt.input); got != tt.want {
				t.Errorf("parseRoot(%q) = %+v, want %+v", tt.input, got, tt.want)
			}
		})
	}
}

// TestParseAction verifies action flag parsing.
func TestParseAction(t *testing.T) {
	name, action, err := parseAction("Lib=copy")
	if err != nil || name != "Lib" || action != "copy" {
		t.Errorf("parseAction() = %q, %q, %v", name, action, err)
	}

	for _, bad := range []string{"Lib", "=copy", "Lib="} {
		if _, _, err := parseAction(bad); err == nil {
			t.Errorf("parseAction(%q) should fail", bad)
		}
	}
}

// TestApplyLinkFlags verifies command line flags override the config.
func TestApplyLinkFlags(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Roots = []config.RootConfig{{Assembly: "FromConfig"}}
	cfg.Diagnostics.NoWarn = []string{"2026"}

	var applyErr error
	app := &cli.App{
		Flags: linkFlags(),
		Action: func(c *cli.Context) error {
			applyErr = applyLinkFlags(cfg, c)
			return nil
		},
	}
	err := app.Run([]string{"iltrim",
		"--root", "App:visible", "--root", "Tool",
		"--out", "",
		"--action", "Lib=copy",
		"--no-warn", "IL2057",
		"--warnings-as-errors",
	})
	if err != nil {
		t.Fatalf("app.Run() error: %v", err)
	}
	if applyErr != nil {
		t.Fatalf("applyLinkFlags() error: %v", applyErr)
	}

	if len(cfg.Roots) != 2 || cfg.Roots[0] != (config.RootConfig{Assembly: "App", Mode: "visible"}) || cfg.Roots[1].Assembly != "Tool" {
		t.Errorf("Roots = %+v", cfg.Roots)
	}
	if cfg.Output.Dir != "" {
		t.Errorf("Output.Dir = %q, want empty", cfg.Output.Dir)
	}
	if cfg.Actions["Lib"] != "copy" {
		t.Errorf("Actions = %v", cfg.Actions)
	}
	if len(cfg.Diagnostics.NoWarn) != 2 {
		t.Errorf("NoWarn = %v, want config and flag codes", cfg.Diagnostics.NoWarn)
	}
	if !cfg.Diagnostics.WarningsAsErrors {
		t.Error("WarningsAsErrors should be set")
	}
}

// TestApplyLinkFlagsRejectsInvalidMode verifies flags are validated.
func TestApplyLinkFlagsRejectsInvalidMode(t *testing.T) {
	var applyErr error
	app := &cli.App{
		Flags: linkFlags(),
		Action: func(c *cli.Context) error {
			applyErr = applyLinkFlags(config.DefaultConfig(), c)
			return nil
		},
	}
	_ = app.Run([]string{"iltrim", "--root", "App:everything"})
	if applyErr == nil {
		t.Error("applyLinkFlags() should reject an unknown root mode")
	}
}

// TestLinkCommandE2E links a small input set end-to-end.
func TestLinkCommandE2E(t *testing.T) {
	in := writeDocs(t)
	tmp := t.TempDir()
	out := filepath.Join(tmp, "linked")
	reportPath := filepath.Join(tmp, "report.json")

	err := newApp().Run([]string{"iltrim", "-f", "json", "-o", reportPath, "--no-progress",
		"link", "--root", "App", "--out", out, in})
	if err != nil {
		t.Fatalf("link command failed: %v", err)
	}

	if _, err := os.Stat(filepath.Join(out, "App.yaml")); err != nil {
		t.Errorf("linked App.yaml missing: %v", err)
	}

	content, err := os.ReadFile(reportPath)
	if err != nil {
		t.Fatalf("failed to read report: %v", err)
	}
	var data output.LinkData
	if err := json.Unmarshal(content, &data); err != nil {
		t.Fatalf("report is not JSON: %v", err)
	}
	removed := -1
	for _, a := range data.Assemblies {
		if a.Name == "App" {
			removed = a.Removed.Types
		}
	}
	if removed != 1 {
		t.Errorf("App report = %+v, want one removed type", data.Assemblies)
	}
}

// TestLinkCommandNoArgs verifies link requires inputs.
func TestLinkCommandNoArgs(t *testing.T) {
	err := newApp().Run([]string{"iltrim", "--no-progress", "link", "--root", "App"})
	if err == nil || !strings.Contains(err.Error(), "no input documents") {
		t.Errorf("error = %v, want no input documents", err)
	}
}

// TestLinkCommandEmptyDir verifies a directory without documents is an error.
func TestLinkCommandEmptyDir(t *testing.T) {
	err := newApp().Run([]string{"iltrim", "--no-progress", "link", "--root", "App", t.TempDir()})
	if !errors.Is(err, driver.ErrNoInputs) {
		t.Errorf("error = %v, want %v", err, driver.ErrNoInputs)
	}
}

// TestWhyCommandE2E explains a kept method.
func TestWhyCommandE2E(t *testing.T) {
	in := writeDocs(t)
	reportPath := filepath.Join(t.TempDir(), "why.json")

	err := newApp().Run([]string{"iltrim", "-f", "json", "-o", reportPath, "--no-progress",
		"why", "--root", "App", "-e", "App.Helper::Help", in})
	if err != nil {
		t.Fatalf("why command failed: %v", err)
	}

	content, err := os.ReadFile(reportPath)
	if err != nil {
		t.Fatalf("failed to read report: %v", err)
	}
	var report output.WhyKept
	if err := json.Unmarshal(content, &report); err != nil {
		t.Fatalf("report is not JSON: %v", err)
	}
	if len(report.Explanations) != 1 {
		t.Fatalf("explanations = %+v", report.Explanations)
	}
	ex := report.Explanations[0]
	if !ex.Kept || len(ex.Chain) < 2 {
		t.Fatalf("explanation = %+v, want a kept chain", ex)
	}
	if last := ex.Chain[len(ex.Chain)-1]; !strings.Contains(last, "App.Helper::Help") {
		t.Errorf("chain should end at the target, got %q", last)
	}
}

// TestWhyCommandUnknownEntity verifies unmatched queries fail.
func TestWhyCommandUnknownEntity(t *testing.T) {
	in := writeDocs(t)
	err := newApp().Run([]string{"iltrim", "--no-progress", "why", "--root", "App", "-e", "App.Nope", in})
	if err == nil || !strings.Contains(err.Error(), "no entity matches") {
		t.Errorf("error = %v, want no entity matches", err)
	}
}

// TestStagesCommand lists the default pipeline.
func TestStagesCommand(t *testing.T) {
	reportPath := filepath.Join(t.TempDir(), "stages.json")
	if err := newApp().Run([]string{"iltrim", "-f", "json", "-o", reportPath, "stages"}); err != nil {
		t.Fatalf("stages command failed: %v", err)
	}

	content, err := os.ReadFile(reportPath)
	if err != nil {
		t.Fatalf("failed to read report: %v", err)
	}
	var rows []map[string]string
	if err := json.Unmarshal(content, &rows); err != nil {
		t.Fatalf("report is not JSON: %v", err)
	}
	status := make(map[string]string)
	for _, row := range rows {
		status[row["Stage"]] = row["Status"]
	}
	if status["mark"] != "pipeline" || status["output"] != "pipeline" {
		t.Errorf("stages = %v", rows)
	}
	if status[driver.StageDumpDependencies] != "registered" {
		t.Errorf("%s should be listed as registered, got %v", driver.StageDumpDependencies, rows)
	}
}

// TestInitCommand writes, refuses to overwrite, and validates a config.
func TestInitCommand(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".iltrim", "iltrim.toml")

	app := newApp()
	app.Writer = &bytes.Buffer{}
	if err := app.Run([]string{"iltrim", "init", "-o", path}); err != nil {
		t.Fatalf("init failed: %v", err)
	}
	if err := newApp().Run([]string{"iltrim", "init", "-o", path}); err == nil {
		t.Error("init should refuse to overwrite without --force")
	}
	app = newApp()
	app.Writer = &bytes.Buffer{}
	if err := app.Run([]string{"iltrim", "init", "-o", path, "--force"}); err != nil {
		t.Errorf("init --force failed: %v", err)
	}

	loaded, err := config.LoadConfig(config.WithPath(path))
	if err != nil {
		t.Fatalf("generated config does not load: %v", err)
	}
	if loaded.Config.Link.DefaultAction != "link" || loaded.Config.Output.Dir != "linked" {
		t.Errorf("generated config = %+v", loaded.Config)
	}
}

// TestConfigShowCommand prints the effective configuration.
func TestConfigShowCommand(t *testing.T) {
	path := filepath.Join(t.TempDir(), "iltrim.toml")
	content := `
[[roots]]
assembly = "App"
mode = "visible"

[output]
dir = "trimmed"
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	var buf bytes.Buffer
	app := newApp()
	app.Writer = &buf
	if err := app.Run([]string{"iltrim", "-c", path, "config", "show"}); err != nil {
		t.Fatalf("config show failed: %v", err)
	}
	for _, want := range []string{"# Configuration from: " + path, `dir = "trimmed"`, `assembly = "App"`} {
		if !strings.Contains(buf.String(), want) {
			t.Errorf("config show output missing %q:\n%s", want, buf.String())
		}
	}

	if err := newApp().Run([]string{"iltrim", "-c", path, "config", "validate"}); err != nil {
		t.Errorf("config validate failed: %v", err)
	}
}

// TestConfigValidateRejectsBadFile verifies invalid values are reported.
func TestConfigValidateRejectsBadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "iltrim.toml")
	if err := os.WriteFile(path, []byte("[link]\ndefault_action = \"shrink\"\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	app := newApp()
	app.Writer = &bytes.Buffer{}
	if err := app.Run([]string{"iltrim", "-c", path, "config", "validate"}); err == nil {
		t.Error("config validate should fail for an unknown default action")
	}
}

// TestVersionVariable verifies version variables are defined.
func TestVersionVariable(t *testing.T) {
	if version == "" {
		t.Error("version variable should have a default value")
	}
}
