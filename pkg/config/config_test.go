package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/panbanda/iltrim/pkg/annotations"
	"github.com/panbanda/iltrim/pkg/diagnostic"
	"github.com/panbanda/iltrim/pkg/linker"
	"github.com/panbanda/iltrim/pkg/metadata/document"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if cfg == nil {
		t.Fatal("DefaultConfig() returned nil")
	}

	if cfg.Link.DefaultAction != "link" {
		t.Errorf("Link.DefaultAction = %q, want link", cfg.Link.DefaultAction)
	}
	if !cfg.Policies.OverrideRemoval || !cfg.Policies.UnusedInterfaces || !cfg.Policies.BaseTypeElision {
		t.Errorf("default policies = %+v, want override removal, unused interfaces and base type elision", cfg.Policies)
	}
	if cfg.Policies.UnreachableBodies || cfg.Policies.UsedAttributesOnly {
		t.Errorf("default policies = %+v, opt-in policies should be off", cfg.Policies)
	}
	if cfg.Output.Format != "text" {
		t.Errorf("Output.Format = %s, want text", cfg.Output.Format)
	}
	if cfg.Output.DocumentFormat != "yaml" {
		t.Errorf("Output.DocumentFormat = %s, want yaml", cfg.Output.DocumentFormat)
	}
	if cfg.Output.Dir != "linked" {
		t.Errorf("Output.Dir = %s, want linked", cfg.Output.Dir)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("default config should validate: %v", err)
	}
}

func TestLoadTOML(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "iltrim.toml")

	content := `
[[roots]]
assembly = "app"
mode = "entry"

[[roots]]
assembly = "plugins"
mode = "visible"

[link]
descriptors = ["keep.yaml"]
ignore_unresolved = true

[actions]
"System.Private.CoreLib" = "copyused"

[policies]
override_removal = false

[diagnostics]
no_warn = ["IL2057", "2026"]

[[stages]]
name = "dump-dependencies"
after = "mark"
`
	if err := os.WriteFile(configPath, []byte(content), 0o644); err != nil {
		t.Fatalf("Failed to write config file: %v", err)
	}

	cfg, err := Load(configPath)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if len(cfg.Roots) != 2 || cfg.Roots[1].Assembly != "plugins" || cfg.Roots[1].Mode != "visible" {
		t.Errorf("Roots = %+v", cfg.Roots)
	}
	if len(cfg.Link.Descriptors) != 1 || cfg.Link.Descriptors[0] != "keep.yaml" {
		t.Errorf("Link.Descriptors = %v", cfg.Link.Descriptors)
	}
	if !cfg.Link.IgnoreUnresolved {
		t.Error("Link.IgnoreUnresolved should be true")
	}
	if cfg.Actions["System.Private.CoreLib"] != "copyused" {
		t.Errorf("Actions = %v", cfg.Actions)
	}
	if cfg.Policies.OverrideRemoval {
		t.Error("Policies.OverrideRemoval should be false")
	}
	if !cfg.Policies.UnusedInterfaces {
		t.Error("Policies.UnusedInterfaces should keep its default")
	}
	if len(cfg.Diagnostics.NoWarn) != 2 {
		t.Errorf("Diagnostics.NoWarn = %v", cfg.Diagnostics.NoWarn)
	}
	if len(cfg.Stages) != 1 || cfg.Stages[0].After != "mark" {
		t.Errorf("Stages = %+v", cfg.Stages)
	}
	if cfg.Output.Format != "text" {
		t.Errorf("Output.Format = %s, want text (default)", cfg.Output.Format)
	}
}

func TestLoadYAML(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "iltrim.yaml")

	content := `
roots:
  - assembly: app
    mode: all
output:
  dir: out
  document_format: json
  format: toon
`
	if err := os.WriteFile(configPath, []byte(content), 0o644); err != nil {
		t.Fatalf("Failed to write config file: %v", err)
	}

	cfg, err := Load(configPath)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if len(cfg.Roots) != 1 || cfg.Roots[0].Mode != "all" {
		t.Errorf("Roots = %+v", cfg.Roots)
	}
	if cfg.Output.Dir != "out" || cfg.Output.DocumentFormat != "json" || cfg.Output.Format != "toon" {
		t.Errorf("Output = %+v", cfg.Output)
	}
}

func TestLoadJSON(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "iltrim.json")

	content := `{
  "link": {"default_action": "copy", "root_attributes": ["KeepMe"]},
  "input": {"max_workers": 4}
}`
	if err := os.WriteFile(configPath, []byte(content), 0o644); err != nil {
		t.Fatalf("Failed to write config file: %v", err)
	}

	cfg, err := Load(configPath)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Link.DefaultAction != "copy" {
		t.Errorf("Link.DefaultAction = %s, want copy", cfg.Link.DefaultAction)
	}
	if len(cfg.Link.RootAttributes) != 1 || cfg.Link.RootAttributes[0] != "KeepMe" {
		t.Errorf("Link.RootAttributes = %v", cfg.Link.RootAttributes)
	}
	if cfg.Input.MaxWorkers != 4 {
		t.Errorf("Input.MaxWorkers = %d, want 4", cfg.Input.MaxWorkers)
	}
}

func TestLoadNonExistentFile(t *testing.T) {
	_, err := Load("/nonexistent/path/iltrim.toml")
	if err == nil {
		t.Error("Load() should return error for non-existent file")
	}
}

func TestLoadInvalidFile(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "iltrim.toml")

	if err := os.WriteFile(configPath, []byte("this is not [ valid toml"), 0o644); err != nil {
		t.Fatalf("Failed to write config file: %v", err)
	}

	_, err := Load(configPath)
	if err == nil {
		t.Error("Load() should return error for invalid TOML")
	}
}

func TestLoadConfigSearch(t *testing.T) {
	tmpDir := t.TempDir()
	hidden := filepath.Join(tmpDir, ".iltrim")
	if err := os.MkdirAll(hidden, 0o755); err != nil {
		t.Fatal(err)
	}
	configPath := filepath.Join(hidden, "iltrim.yaml")
	if err := os.WriteFile(configPath, []byte("output:\n  format: markdown\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	result, err := LoadConfig(WithSearchDirs(tmpDir, hidden))
	if err != nil {
		t.Fatalf("LoadConfig() error = %v", err)
	}
	if result.Source != configPath {
		t.Errorf("Source = %s, want %s", result.Source, configPath)
	}
	if result.Config.Output.Format != "markdown" {
		t.Errorf("Output.Format = %s, want markdown", result.Config.Output.Format)
	}
}

func TestLoadConfigDefaults(t *testing.T) {
	result, err := LoadConfig(WithSearchDirs(t.TempDir()))
	if err != nil {
		t.Fatalf("LoadConfig() error = %v", err)
	}
	if result.Source != "" {
		t.Errorf("Source = %q, want empty", result.Source)
	}
	if result.Config.Link.DefaultAction != "link" {
		t.Errorf("expected defaults, got %+v", result.Config.Link)
	}
}

func TestLoadConfigExplicitPathMustExist(t *testing.T) {
	_, err := LoadConfig(WithPath(filepath.Join(t.TempDir(), "missing.toml")))
	if err == nil {
		t.Error("LoadConfig() should fail for a missing explicit path")
	}
}

func TestLoadConfigRejectsInvalidValues(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "iltrim.toml")
	content := `
[[roots]]
mode = "sideways"

[actions]
app = "shred"
`
	if err := os.WriteFile(configPath, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	_, err := LoadConfig(WithPath(configPath))
	if err == nil {
		t.Fatal("LoadConfig() should reject invalid values")
	}
	for _, want := range []string{"roots[0]: assembly is required", "unknown root mode", "actions.app"} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("error %q should mention %q", err, want)
		}
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{
			name:   "defaults",
			mutate: func(*Config) {},
		},
		{
			name:    "bad default action",
			mutate:  func(c *Config) { c.Link.DefaultAction = "keep" },
			wantErr: "link.default_action",
		},
		{
			name:    "bad warning code",
			mutate:  func(c *Config) { c.Diagnostics.NoWarn = []string{"loud"} },
			wantErr: "diagnostics.no_warn",
		},
		{
			name:    "bad promoted code",
			mutate:  func(c *Config) { c.Diagnostics.WarnAsError = []string{"IL"} },
			wantErr: "diagnostics.warn_as_error",
		},
		{
			name:    "bad document format",
			mutate:  func(c *Config) { c.Output.DocumentFormat = "xml" },
			wantErr: "output.document_format",
		},
		{
			name:    "stage with both anchors",
			mutate:  func(c *Config) { c.Stages = []StageConfig{{Name: "x", Before: "a", After: "b"}} },
			wantErr: "exclusive",
		},
		{
			name:    "negative workers",
			mutate:  func(c *Config) { c.Input.MaxWorkers = -1 },
			wantErr: "negative",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Errorf("Validate() error = %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("Validate() error = %v, want mention of %q", err, tt.wantErr)
			}
		})
	}
}

func TestLinkOptions(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Roots = []RootConfig{{Assembly: "app"}, {Assembly: "lib", Mode: "VISIBLE"}}
	cfg.Actions = map[string]string{"lib": "copyused"}
	cfg.Link.DependencyFile = "deps.txt"
	cfg.Output.DocumentFormat = "json"
	cfg.Stages = []StageConfig{{Name: "dump-dependencies", After: "mark"}}

	opts, err := cfg.LinkOptions()
	if err != nil {
		t.Fatalf("LinkOptions() error = %v", err)
	}

	wantRoots := []linker.RootAssembly{
		{Assembly: "app", Mode: linker.RootEntry},
		{Assembly: "lib", Mode: linker.RootVisible},
	}
	if len(opts.Roots) != 2 || opts.Roots[0] != wantRoots[0] || opts.Roots[1] != wantRoots[1] {
		t.Errorf("Roots = %+v, want %+v", opts.Roots, wantRoots)
	}
	if opts.DefaultAction != annotations.ActionLink {
		t.Errorf("DefaultAction = %s, want link", opts.DefaultAction)
	}
	if opts.Actions["lib"] != annotations.ActionCopyUsed {
		t.Errorf("Actions = %v", opts.Actions)
	}
	if opts.Policies != linker.DefaultPolicies() {
		t.Errorf("Policies = %+v, want defaults", opts.Policies)
	}
	if opts.OutputFormat != document.FormatJSON || opts.OutputDir != "linked" {
		t.Errorf("output = %s in %s", opts.OutputFormat, opts.OutputDir)
	}
	if opts.DependencyFile != "deps.txt" {
		t.Errorf("DependencyFile = %s", opts.DependencyFile)
	}
	if len(opts.ExtraStages) != 1 || opts.ExtraStages[0].After != "mark" {
		t.Errorf("ExtraStages = %+v", opts.ExtraStages)
	}
}

func TestCollectorOptions(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Diagnostics.NoWarn = []string{"IL2026"}
	cfg.Diagnostics.WarnAsError = []string{"2057"}

	opts, err := cfg.CollectorOptions()
	if err != nil {
		t.Fatalf("CollectorOptions() error = %v", err)
	}
	c := diagnostic.NewCollector(opts...)

	if _, reported := c.Report(diagnostic.CodeRequiresUnreferencedCode, "x", "suppressed"); reported {
		t.Error("2026 should be suppressed")
	}
	d, reported := c.Report(diagnostic.CodeUnrecognizedReflectionPattern, "x", "promoted")
	if !reported || d.Severity != diagnostic.Error {
		t.Errorf("2057 should be promoted to an error, got %+v", d)
	}
}
