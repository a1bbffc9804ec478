// Package driver assembles the default link pipeline and runs it over assembly
// documents on disk.
package driver

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"go.uber.org/zap"

	"github.com/panbanda/iltrim/pkg/annotations"
	"github.com/panbanda/iltrim/pkg/diagnostic"
	"github.com/panbanda/iltrim/pkg/linker"
	"github.com/panbanda/iltrim/pkg/linker/descriptor"
	"github.com/panbanda/iltrim/pkg/linker/mark"
	"github.com/panbanda/iltrim/pkg/linker/rewrite"
	"github.com/panbanda/iltrim/pkg/linker/sweep"
	"github.com/panbanda/iltrim/pkg/metadata"
	"github.com/panbanda/iltrim/pkg/metadata/document"
)

// Names of the stages this package contributes.
const (
	StageOutput           = "output"
	StageDumpDependencies = "dump-dependencies"
)

// ErrNoInputs is returned when the inputs contain no assembly documents.
var ErrNoInputs = errors.New("no assembly documents found")

func init() {
	linker.RegisterStage(StageDumpDependencies, DumpDependenciesStage)
}

// DefaultPipeline returns the ordered stages of a link with the extra stages
// of opts placed. The dependency dump runs after marking whenever a
// dependency file is configured and no placement names it.
func DefaultPipeline(opts linker.Options) (*linker.Pipeline, error) {
	p := linker.NewPipeline(
		descriptor.Stage(),
		mark.Stage(),
		rewrite.ValidateStage(),
		sweep.Stage(),
		rewrite.Stage(),
		OutputStage(),
	)

	placements := opts.ExtraStages
	if opts.DependencyFile != "" && !names(placements, StageDumpDependencies) {
		placements = append(placements, linker.StagePlacement{Name: StageDumpDependencies, After: "mark"})
	}
	for _, pl := range placements {
		if err := p.Place(pl); err != nil {
			return nil, fmt.Errorf("stage %s: %w", pl.Name, err)
		}
	}
	return p, nil
}

func names(placements []linker.StagePlacement, name string) bool {
	for _, pl := range placements {
		if pl.Name == name {
			return true
		}
	}
	return false
}

// OutputStage returns the stage writing every surviving assembly into the
// output directory. It does nothing when no directory is configured.
func OutputStage() linker.Stage {
	return linker.NewStage(StageOutput, writeOutput)
}

func writeOutput(ctx *linker.Context) error {
	dir := ctx.Options.OutputDir
	if dir == "" {
		return nil
	}
	logger := ctx.Logger.Named("output")
	for i, asm := range ctx.Model.Assemblies {
		id := metadata.AssemblyID(i)
		if ctx.Store.GetAction(id) == annotations.ActionDelete {
			continue
		}
		path, err := document.WriteFile(dir, document.Encode(ctx.Model, id), ctx.Options.OutputFormat)
		if err != nil {
			return fmt.Errorf("write %s: %w", asm.Name, err)
		}
		ctx.Report.Assembly(asm.Name).Output = path
		logger.Debug("assembly written",
			zap.String("assembly", asm.Name),
			zap.String("path", path),
		)
	}
	return nil
}

// DumpDependenciesStage writes the recorded dependency edges to the configured
// dependency file.
func DumpDependenciesStage() linker.Stage {
	return linker.NewStage(StageDumpDependencies, func(ctx *linker.Context) error {
		rec, ok := ctx.Recorder.(*linker.GraphRecorder)
		if !ok {
			return errors.New("dependency recording is not enabled")
		}
		path := ctx.Options.DependencyFile
		if path == "" {
			return errors.New("no dependency file configured")
		}
		if dir := filepath.Dir(path); dir != "." {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return err
			}
		}
		f, err := os.Create(path)
		if err != nil {
			return err
		}
		if err := rec.Dump(f); err != nil {
			f.Close()
			return err
		}
		ctx.Logger.Info("dependencies written",
			zap.String("path", path),
			zap.Int("edges", len(rec.Edges())),
		)
		return f.Close()
	})
}

// Result is the outcome of a link. It is returned alongside pipeline errors
// so callers can still report diagnostics.
type Result struct {
	Context  *linker.Context
	Report   *linker.Report
	Recorder *linker.GraphRecorder
}

type settings struct {
	logger *zap.Logger
	diags  *diagnostic.Collector
	hook   linker.StageHook
	load   document.LoadOptions
	record bool
}

// Option configures Link and Run.
type Option func(*settings)

// WithLogger sets the logger handed to every stage.
func WithLogger(logger *zap.Logger) Option {
	return func(s *settings) {
		s.logger = logger
	}
}

// WithCollector sets the diagnostic collector.
func WithCollector(c *diagnostic.Collector) Option {
	return func(s *settings) {
		s.diags = c
	}
}

// WithStageHook installs a hook around every stage.
func WithStageHook(hook linker.StageHook) Option {
	return func(s *settings) {
		s.hook = hook
	}
}

// WithLoadOptions configures document loading.
func WithLoadOptions(opts document.LoadOptions) Option {
	return func(s *settings) {
		s.load = opts
	}
}

// WithRecording records the dependency graph even without a dependency file.
func WithRecording() Option {
	return func(s *settings) {
		s.record = true
	}
}

// Link loads the documents found in inputs and links them.
func Link(ctx context.Context, inputs []string, opts linker.Options, options ...Option) (*Result, error) {
	var s settings
	for _, opt := range options {
		opt(&s)
	}
	paths, err := document.Expand(inputs)
	if err != nil {
		return nil, err
	}
	if len(paths) == 0 {
		return nil, ErrNoInputs
	}
	m, err := document.Load(ctx, paths, s.load)
	if err != nil {
		return nil, fmt.Errorf("load: %w", err)
	}
	return Run(m, opts, options...)
}

// Run links an already built model.
func Run(m *metadata.Model, opts linker.Options, options ...Option) (*Result, error) {
	var s settings
	for _, opt := range options {
		opt(&s)
	}
	lctx := linker.NewContext(m, opts, s.logger, s.diags)
	res := &Result{Context: lctx, Report: lctx.Report}
	if s.record || opts.DependencyFile != "" {
		res.Recorder = linker.NewGraphRecorder(m)
		lctx.Recorder = res.Recorder
	}

	p, err := DefaultPipeline(opts)
	if err != nil {
		return res, err
	}
	if s.hook != nil {
		p.OnStage(s.hook)
	}
	return res, p.Run(lctx)
}
