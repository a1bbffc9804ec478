package linker

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Stage is one step of a link.
type Stage interface {
	Name() string
	Process(ctx *Context) error
}

type funcStage struct {
	name string
	fn   func(*Context) error
}

func (s funcStage) Name() string               { return s.name }
func (s funcStage) Process(ctx *Context) error { return s.fn(ctx) }

// NewStage adapts a function to a Stage.
func NewStage(name string, fn func(*Context) error) Stage {
	return funcStage{name: name, fn: fn}
}

// StageHook is called before a stage runs; the returned function receives the
// stage result.
type StageHook func(name string) func(err error)

// Pipeline runs stages in order. A stage error or a recorded error diagnostic
// stops the run before the next stage.
type Pipeline struct {
	stages []Stage
	hook   StageHook
}

// NewPipeline creates a pipeline over stages.
func NewPipeline(stages ...Stage) *Pipeline {
	return &Pipeline{stages: append([]Stage(nil), stages...)}
}

// OnStage installs a hook around every stage.
func (p *Pipeline) OnStage(hook StageHook) {
	p.hook = hook
}

// Append adds a stage at the end.
func (p *Pipeline) Append(s Stage) {
	p.stages = append(p.stages, s)
}

// InsertBefore adds s in front of the stage called name.
func (p *Pipeline) InsertBefore(name string, s Stage) error {
	i := p.index(name)
	if i < 0 {
		return fmt.Errorf("no stage named %q", name)
	}
	p.insert(i, s)
	return nil
}

// InsertAfter adds s behind the stage called name.
func (p *Pipeline) InsertAfter(name string, s Stage) error {
	i := p.index(name)
	if i < 0 {
		return fmt.Errorf("no stage named %q", name)
	}
	p.insert(i+1, s)
	return nil
}

// Place inserts a registered stage according to placement. A placement with
// neither anchor appends.
func (p *Pipeline) Place(placement StagePlacement) error {
	s, ok := LookupStage(placement.Name)
	if !ok {
		return fmt.Errorf("no registered stage %q", placement.Name)
	}
	switch {
	case placement.Before != "":
		return p.InsertBefore(placement.Before, s)
	case placement.After != "":
		return p.InsertAfter(placement.After, s)
	default:
		p.Append(s)
		return nil
	}
}

func (p *Pipeline) insert(i int, s Stage) {
	p.stages = append(p.stages, nil)
	copy(p.stages[i+1:], p.stages[i:])
	p.stages[i] = s
}

func (p *Pipeline) index(name string) int {
	for i, s := range p.stages {
		if s.Name() == name {
			return i
		}
	}
	return -1
}

// Names lists the stage names in run order.
func (p *Pipeline) Names() []string {
	out := make([]string, len(p.stages))
	for i, s := range p.stages {
		out[i] = s.Name()
	}
	return out
}

// Run executes every stage against ctx.
func (p *Pipeline) Run(ctx *Context) error {
	for _, s := range p.stages {
		var done func(error)
		if p.hook != nil {
			done = p.hook(s.Name())
		}
		start := time.Now()
		err := s.Process(ctx)
		if err == nil {
			err = ctx.Diagnostics.Err()
		}
		ctx.Logger.Debug("stage finished",
			zap.String("stage", s.Name()),
			zap.Duration("elapsed", time.Since(start)),
			zap.Error(err),
		)
		if done != nil {
			done(err)
		}
		if err != nil {
			return fmt.Errorf("%s: %w", s.Name(), err)
		}
	}
	return nil
}

// StageFactory creates a fresh stage instance.
type StageFactory func() Stage

var (
	registryMu sync.RWMutex
	registry   = make(map[string]StageFactory)
)

// RegisterStage makes a stage available to configuration by name. It panics on a
// duplicate name.
func RegisterStage(name string, factory StageFactory) {
	registryMu.Lock()
	defer registryMu.Unlock()
	if _, dup := registry[name]; dup {
		panic("linker: stage registered twice: " + name)
	}
	registry[name] = factory
}

// LookupStage instantiates the registered stage called name.
func LookupStage(name string) (Stage, bool) {
	registryMu.RLock()
	defer registryMu.RUnlock()
	f, ok := registry[name]
	if !ok {
		return nil, false
	}
	return f(), true
}

// RegisteredStages lists registered stage names, sorted.
func RegisteredStages() []string {
	registryMu.RLock()
	defer registryMu.RUnlock()
	out := make([]string, 0, len(registry))
	for name := range registry {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}
