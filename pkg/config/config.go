// Package config loads iltrim settings from TOML, YAML or JSON files and turns
// them into link options.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/knadh/koanf/parsers/json"
	"github.com/knadh/koanf/parsers/toml"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"

	"github.com/panbanda/iltrim/pkg/annotations"
	"github.com/panbanda/iltrim/pkg/diagnostic"
	"github.com/panbanda/iltrim/pkg/linker"
	"github.com/panbanda/iltrim/pkg/metadata/document"
)

// Config holds all configuration options for iltrim.
type Config struct {
	// Root assemblies and how much of each is rooted
	Roots []RootConfig `koanf:"roots" toml:"roots"`

	// Link behavior
	Link LinkConfig `koanf:"link" toml:"link"`

	// Per-assembly action overrides, keyed by assembly name
	Actions map[string]string `koanf:"actions" toml:"actions"`

	// Mark engine optimizations
	Policies PolicyConfig `koanf:"policies" toml:"policies"`

	// Warning suppression and promotion
	Diagnostics DiagnosticsConfig `koanf:"diagnostics" toml:"diagnostics"`

	// Input document loading
	Input InputConfig `koanf:"input" toml:"input"`

	// Output settings
	Output OutputConfig `koanf:"output" toml:"output"`

	// Extra registered stages and where they run
	Stages []StageConfig `koanf:"stages" toml:"stages"`
}

// RootConfig names a root assembly.
type RootConfig struct {
	Assembly string `koanf:"assembly" toml:"assembly"`
	Mode     string `koanf:"mode" toml:"mode"` // entry, visible, all
}

// LinkConfig controls what is rooted and how references are treated.
type LinkConfig struct {
	DefaultAction    string   `koanf:"default_action" toml:"default_action"`
	Descriptors      []string `koanf:"descriptors" toml:"descriptors"`
	RootAttributes   []string `koanf:"root_attributes" toml:"root_attributes"`
	IgnoreUnresolved bool     `koanf:"ignore_unresolved" toml:"ignore_unresolved"`
	DependencyFile   string   `koanf:"dependency_file" toml:"dependency_file"`
}

// PolicyConfig toggles the mark engine optimizations.
type PolicyConfig struct {
	OverrideRemoval    bool `koanf:"override_removal" toml:"override_removal"`
	UnusedInterfaces   bool `koanf:"unused_interfaces" toml:"unused_interfaces"`
	UnreachableBodies  bool `koanf:"unreachable_bodies" toml:"unreachable_bodies"`
	UsedAttributesOnly bool `koanf:"used_attributes_only" toml:"used_attributes_only"`
	BaseTypeElision    bool `koanf:"base_type_elision" toml:"base_type_elision"`
}

// DiagnosticsConfig lists warning codes by number ("2057") or with the IL
// prefix ("IL2057").
type DiagnosticsConfig struct {
	NoWarn           []string `koanf:"no_warn" toml:"no_warn"`
	WarnAsError      []string `koanf:"warn_as_error" toml:"warn_as_error"`
	WarningsAsErrors bool     `koanf:"warnings_as_errors" toml:"warnings_as_errors"`
}

// InputConfig bounds document loading.
type InputConfig struct {
	MaxWorkers  int   `koanf:"max_workers" toml:"max_workers"`
	MaxFileSize int64 `koanf:"max_file_size" toml:"max_file_size"` // bytes, 0 = unlimited
}

// OutputConfig controls where linked documents and reports go.
type OutputConfig struct {
	Dir            string `koanf:"dir" toml:"dir"`
	DocumentFormat string `koanf:"document_format" toml:"document_format"` // yaml, json
	Format         string `koanf:"format" toml:"format"`                   // text, json, markdown, toon
	Color          bool   `koanf:"color" toml:"color"`
	Verbose        bool   `koanf:"verbose" toml:"verbose"`
}

// StageConfig places a registered stage before or after another one.
type StageConfig struct {
	Name   string `koanf:"name" toml:"name"`
	Before string `koanf:"before" toml:"before"`
	After  string `koanf:"after" toml:"after"`
}

// DefaultConfig returns a config with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Link: LinkConfig{
			DefaultAction: "link",
		},
		Actions: map[string]string{},
		Policies: PolicyConfig{
			OverrideRemoval:  true,
			UnusedInterfaces: true,
			BaseTypeElision:  true,
		},
		Input: InputConfig{
			MaxFileSize: 64 << 20,
		},
		Output: OutputConfig{
			Dir:            "linked",
			DocumentFormat: "yaml",
			Format:         "text",
			Color:          true,
		},
	}
}

// ConfigNames are the file names searched for by LoadConfig, in order.
var ConfigNames = []string{
	"iltrim.toml",
	"iltrim.yaml",
	"iltrim.yml",
	"iltrim.json",
	".iltrim.toml",
	".iltrim.yaml",
	".iltrim.yml",
	".iltrim.json",
}

// searchDirs are the directories searched for a config file.
var searchDirs = []string{".", ".iltrim"}

// Load loads configuration from a file over the defaults.
func Load(path string) (*Config, error) {
	k := koanf.New(".")
	cfg := DefaultConfig()

	var parser koanf.Parser
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		parser = yaml.Parser()
	case ".json":
		parser = json.Parser()
	default:
		parser = toml.Parser()
	}

	if err := k.Load(file.Provider(path), parser); err != nil {
		return nil, err
	}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadResult is a loaded configuration and the file it came from. Source is
// empty when the defaults were used.
type LoadResult struct {
	Config *Config
	Source string
}

type loadOptions struct {
	path string
	dirs []string
}

// LoadOption configures LoadConfig.
type LoadOption func(*loadOptions)

// WithPath loads exactly the given file instead of searching.
func WithPath(path string) LoadOption {
	return func(o *loadOptions) {
		o.path = path
	}
}

// WithSearchDirs replaces the directories searched for a config file.
func WithSearchDirs(dirs ...string) LoadOption {
	return func(o *loadOptions) {
		o.dirs = dirs
	}
}

// LoadConfig loads and validates the configuration. An explicit path must
// exist; otherwise the first config file found in the search directories is
// used, falling back to the defaults.
func LoadConfig(opts ...LoadOption) (*LoadResult, error) {
	o := loadOptions{dirs: searchDirs}
	for _, opt := range opts {
		opt(&o)
	}

	path := o.path
	if path == "" {
		path = find(o.dirs)
	}
	if path == "" {
		cfg := DefaultConfig()
		return &LoadResult{Config: cfg}, cfg.Validate()
	}

	cfg, err := Load(path)
	if err != nil {
		return nil, fmt.Errorf("load %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return &LoadResult{Config: cfg, Source: path}, nil
}

func find(dirs []string) string {
	for _, dir := range dirs {
		for _, name := range ConfigNames {
			path := filepath.Join(dir, name)
			if _, err := os.Stat(path); err == nil {
				return path
			}
		}
	}
	return ""
}

// LoadOrDefault tries to load config from standard locations or returns defaults.
func LoadOrDefault() *Config {
	result, err := LoadConfig()
	if err != nil {
		return DefaultConfig()
	}
	return result.Config
}

// Validate checks every enumerated value. All problems are returned together.
func (c *Config) Validate() error {
	var errs []error
	for i, r := range c.Roots {
		if r.Assembly == "" {
			errs = append(errs, fmt.Errorf("roots[%d]: assembly is required", i))
		}
		if _, err := parseRootMode(r.Mode); err != nil {
			errs = append(errs, fmt.Errorf("roots[%d]: %w", i, err))
		}
	}
	if c.Link.DefaultAction != "" {
		if _, err := annotations.ParseAssemblyAction(c.Link.DefaultAction); err != nil {
			errs = append(errs, fmt.Errorf("link.default_action: %w", err))
		}
	}
	for _, name := range sortedKeys(c.Actions) {
		if _, err := annotations.ParseAssemblyAction(c.Actions[name]); err != nil {
			errs = append(errs, fmt.Errorf("actions.%s: %w", name, err))
		}
	}
	if _, err := diagnostic.ParseCodes(c.Diagnostics.NoWarn); err != nil {
		errs = append(errs, fmt.Errorf("diagnostics.no_warn: %w", err))
	}
	if _, err := diagnostic.ParseCodes(c.Diagnostics.WarnAsError); err != nil {
		errs = append(errs, fmt.Errorf("diagnostics.warn_as_error: %w", err))
	}
	switch document.Format(c.Output.DocumentFormat) {
	case "", document.FormatYAML, document.FormatJSON:
	default:
		errs = append(errs, fmt.Errorf("output.document_format: unknown format %q", c.Output.DocumentFormat))
	}
	for i, s := range c.Stages {
		if s.Name == "" {
			errs = append(errs, fmt.Errorf("stages[%d]: name is required", i))
		}
		if s.Before != "" && s.After != "" {
			errs = append(errs, fmt.Errorf("stages[%d]: before and after are exclusive", i))
		}
	}
	if c.Input.MaxWorkers < 0 || c.Input.MaxFileSize < 0 {
		errs = append(errs, errors.New("input: limits must not be negative"))
	}
	return errors.Join(errs...)
}

func parseRootMode(s string) (linker.RootMode, error) {
	switch mode := linker.RootMode(strings.ToLower(s)); mode {
	case "":
		return linker.RootEntry, nil
	case linker.RootEntry, linker.RootVisible, linker.RootAll:
		return mode, nil
	default:
		return "", fmt.Errorf("unknown root mode %q", s)
	}
}

// LinkOptions converts the configuration into link options. It assumes
// Validate passed.
func (c *Config) LinkOptions() (linker.Options, error) {
	opts := linker.Options{
		Descriptors:      c.Link.Descriptors,
		RootAttributes:   c.Link.RootAttributes,
		IgnoreUnresolved: c.Link.IgnoreUnresolved,
		DependencyFile:   c.Link.DependencyFile,
		OutputDir:        c.Output.Dir,
		OutputFormat:     document.Format(c.Output.DocumentFormat),
		Policies: linker.Policies{
			OverrideRemoval:    c.Policies.OverrideRemoval,
			UnusedInterfaces:   c.Policies.UnusedInterfaces,
			UnreachableBodies:  c.Policies.UnreachableBodies,
			UsedAttributesOnly: c.Policies.UsedAttributesOnly,
			BaseTypeElision:    c.Policies.BaseTypeElision,
		},
	}
	for _, r := range c.Roots {
		mode, err := parseRootMode(r.Mode)
		if err != nil {
			return linker.Options{}, err
		}
		opts.Roots = append(opts.Roots, linker.RootAssembly{Assembly: r.Assembly, Mode: mode})
	}
	if c.Link.DefaultAction != "" {
		action, err := annotations.ParseAssemblyAction(c.Link.DefaultAction)
		if err != nil {
			return linker.Options{}, err
		}
		opts.DefaultAction = action
	}
	if len(c.Actions) > 0 {
		opts.Actions = make(map[string]annotations.AssemblyAction, len(c.Actions))
		for name, s := range c.Actions {
			action, err := annotations.ParseAssemblyAction(s)
			if err != nil {
				return linker.Options{}, err
			}
			opts.Actions[name] = action
		}
	}
	for _, s := range c.Stages {
		opts.ExtraStages = append(opts.ExtraStages, linker.StagePlacement{Name: s.Name, Before: s.Before, After: s.After})
	}
	return opts, nil
}

// CollectorOptions converts the diagnostics section into collector options.
func (c *Config) CollectorOptions() ([]diagnostic.Option, error) {
	var opts []diagnostic.Option
	noWarn, err := diagnostic.ParseCodes(c.Diagnostics.NoWarn)
	if err != nil {
		return nil, err
	}
	if len(noWarn) > 0 {
		opts = append(opts, diagnostic.WithNoWarn(noWarn...))
	}
	promote, err := diagnostic.ParseCodes(c.Diagnostics.WarnAsError)
	if err != nil {
		return nil, err
	}
	if len(promote) > 0 {
		opts = append(opts, diagnostic.WithWarnAsError(promote...))
	}
	if c.Diagnostics.WarningsAsErrors {
		opts = append(opts, diagnostic.WithAllWarningsAsErrors())
	}
	return opts, nil
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
