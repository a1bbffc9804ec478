package main

import (
	"fmt"
	"strings"

	"github.com/urfave/cli/v2"
	"go.uber.org/zap"

	"github.com/panbanda/iltrim/internal/output"
	"github.com/panbanda/iltrim/pkg/config"
)

// linkFlags are shared by every command that runs a link.
func linkFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringSliceFlag{
			Name:    "root",
			Aliases: []string{"r"},
			Usage:   "Root assembly as name or name:mode (mode: entry, visible, all); replaces configured roots",
		},
		&cli.StringFlag{
			Name:  "out",
			Usage: "Directory for linked documents (empty writes nothing)",
		},
		&cli.StringSliceFlag{
			Name:  "descriptor",
			Usage: "Root descriptor file (repeatable)",
		},
		&cli.StringSliceFlag{
			Name:  "action",
			Usage: "Per-assembly action as name=action (copy, copyused, link, delete, skip)",
		},
		&cli.StringFlag{
			Name:  "deps-file",
			Usage: "Write the recorded dependency graph to this file",
		},
		&cli.StringSliceFlag{
			Name:  "no-warn",
			Usage: "Suppress a warning code (IL2057 or 2057)",
		},
		&cli.StringSliceFlag{
			Name:  "warn-as-error",
			Usage: "Promote a warning code to an error",
		},
		&cli.BoolFlag{
			Name:  "warnings-as-errors",
			Usage: "Promote every warning to an error",
		},
		&cli.BoolFlag{
			Name:  "ignore-unresolved",
			Usage: "Skip unresolved references instead of reporting them",
		},
	}
}

// loadConfig loads the configuration named by --config, or the first one
// found in the search directories.
func loadConfig(c *cli.Context) (*config.LoadResult, error) {
	var opts []config.LoadOption
	if path := c.String("config"); path != "" {
		opts = append(opts, config.WithPath(path))
	}
	return config.LoadConfig(opts...)
}

// applyLinkFlags overrides cfg with the link flags given on the command line.
func applyLinkFlags(cfg *config.Config, c *cli.Context) error {
	if roots := c.StringSlice("root"); len(roots) > 0 {
		cfg.Roots = cfg.Roots[:0]
		for _, s := range roots {
			cfg.Roots = append(cfg.Roots, parseRoot(s))
		}
	}
	if c.IsSet("out") {
		cfg.Output.Dir = c.String("out")
	}
	cfg.Link.Descriptors = append(cfg.Link.Descriptors, c.StringSlice("descriptor")...)
	for _, s := range c.StringSlice("action") {
		name, action, err := parseAction(s)
		if err != nil {
			return err
		}
		if cfg.Actions == nil {
			cfg.Actions = make(map[string]string)
		}
		cfg.Actions[name] = action
	}
	if c.IsSet("deps-file") {
		cfg.Link.DependencyFile = c.String("deps-file")
	}
	cfg.Diagnostics.NoWarn = append(cfg.Diagnostics.NoWarn, c.StringSlice("no-warn")...)
	cfg.Diagnostics.WarnAsError = append(cfg.Diagnostics.WarnAsError, c.StringSlice("warn-as-error")...)
	if c.Bool("warnings-as-errors") {
		cfg.Diagnostics.WarningsAsErrors = true
	}
	if c.Bool("ignore-unresolved") {
		cfg.Link.IgnoreUnresolved = true
	}
	if c.Bool("verbose") {
		cfg.Output.Verbose = true
	}
	return cfg.Validate()
}

// parseRoot splits "App:visible" into a root entry. The mode is validated later.
func parseRoot(s string) config.RootConfig {
	if i := strings.LastIndexByte(s, ':'); i > 0 {
		return config.RootConfig{Assembly: s[:i], Mode: s[i+1:]}
	}
	return config.RootConfig{Assembly: s}
}

// parseAction splits "Lib=copy".
func parseAction(s string) (string, string, error) {
	name, action, ok := strings.Cut(s, "=")
	if !ok || name == "" || action == "" {
		return "", "", fmt.Errorf("invalid --action %q (want name=action)", s)
	}
	return name, action, nil
}

// newLogger returns a development logger when verbose, otherwise one that only
// reports warnings and above.
func newLogger(verbose bool) *zap.Logger {
	if verbose {
		logger, err := zap.NewDevelopment()
		if err != nil {
			return zap.NewNop()
		}
		return logger
	}
	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevelAt(zap.WarnLevel)
	cfg.Encoding = "console"
	cfg.DisableStacktrace = true
	logger, err := cfg.Build()
	if err != nil {
		return zap.NewNop()
	}
	return logger
}

// newFormatter picks the report format from --format, falling back to config.
func newFormatter(c *cli.Context, cfg *config.Config) (*output.Formatter, error) {
	format := c.String("format")
	if format == "" {
		format = cfg.Output.Format
	}
	return output.NewFormatter(output.ParseFormat(format), c.String("output"), cfg.Output.Color)
}
