package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/urfave/cli/v2"
	"go.uber.org/zap"

	"github.com/panbanda/iltrim/internal/output"
	"github.com/panbanda/iltrim/internal/progress"
	"github.com/panbanda/iltrim/pkg/config"
	"github.com/panbanda/iltrim/pkg/diagnostic"
	"github.com/panbanda/iltrim/pkg/linker/driver"
	"github.com/panbanda/iltrim/pkg/metadata/document"
)

func linkCmd() *cli.Command {
	return &cli.Command{
		Name:      "link",
		Usage:     "Trim a set of assemblies to what their roots reach",
		ArgsUsage: "<document|dir>...",
		Description: `Loads every metadata document named on the command line (directories are
searched for *.yaml, *.yml and *.json), marks what the roots reach, removes
the rest and writes the linked assemblies to --out.

Examples:
  iltrim link --root App --out linked ./assemblies
  iltrim link --root App:visible --action Newtonsoft.Json=copy ./assemblies
  iltrim link -f json --deps-file deps.txt ./assemblies`,
		Flags:  linkFlags(),
		Action: runLinkCmd,
	}
}

// linkSession is one configured link run shared by link and why.
type linkSession struct {
	cfg    *config.Config
	diags  *diagnostic.Collector
	result *driver.Result
}

func runLinkCmd(c *cli.Context) error {
	s, err := runLink(c, false)
	if s == nil || s.result == nil {
		return err
	}

	formatter, ferr := newFormatter(c, s.cfg)
	if ferr != nil {
		return ferr
	}
	defer formatter.Close()

	if oerr := formatter.Output(output.NewLinkSummary(s.result.Report, s.diags)); oerr != nil {
		return oerr
	}
	if err != nil {
		return err
	}
	return s.diags.Err()
}

// runLink loads the configuration, applies the link flags and runs the
// pipeline over the command's arguments. A session with a result is returned
// even when a stage failed, so its diagnostics can still be reported.
func runLink(c *cli.Context, record bool) (*linkSession, error) {
	if c.Args().Len() == 0 {
		return nil, errors.New("no input documents given")
	}

	loaded, err := loadConfig(c)
	if err != nil {
		return nil, err
	}
	cfg := loaded.Config
	if err := applyLinkFlags(cfg, c); err != nil {
		return nil, err
	}
	opts, err := cfg.LinkOptions()
	if err != nil {
		return nil, err
	}
	if record {
		opts.OutputDir = ""
	}
	collectorOpts, err := cfg.CollectorOptions()
	if err != nil {
		return nil, err
	}

	logger := newLogger(cfg.Output.Verbose)
	defer func() { _ = logger.Sync() }()
	if loaded.Source != "" {
		logger.Debug("loaded config", zap.String("path", loaded.Source))
	}

	s := &linkSession{
		cfg:   cfg,
		diags: diagnostic.NewCollector(append(collectorOpts, diagnostic.WithLogger(logger))...),
	}

	paths, err := document.Expand(c.Args().Slice())
	if err != nil {
		return nil, err
	}
	if len(paths) == 0 {
		return nil, driver.ErrNoInputs
	}

	parent := c.Context
	if parent == nil {
		parent = context.Background()
	}
	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	load := document.LoadOptions{
		MaxWorkers:  cfg.Input.MaxWorkers,
		MaxFileSize: cfg.Input.MaxFileSize,
	}
	options := []driver.Option{
		driver.WithLogger(logger),
		driver.WithCollector(s.diags),
	}
	if record {
		options = append(options, driver.WithRecording())
	}

	var finishLoad sync.Once
	var tracker *progress.Tracker
	if !c.Bool("no-progress") {
		tracker = progress.NewTracker(fmt.Sprintf("Loading %d documents...", len(paths)), len(paths))
		load.OnProgress = tracker.Tick
		stages := progress.Stages(os.Stderr)
		options = append(options, driver.WithStageHook(func(name string) func(error) {
			finishLoad.Do(tracker.FinishSuccess)
			return stages(name)
		}))
	}
	options = append(options, driver.WithLoadOptions(load))

	res, err := driver.Link(ctx, paths, opts, options...)
	if tracker != nil {
		finishLoad.Do(func() { tracker.Finish(err) })
	}
	s.result = res
	return s, err
}
