// Package mark computes the closure of entities a link keeps. Starting from the
// roots it walks every structural reference, resolves virtual dispatch through
// the type map and asks the reflection recognizer about bodies that use
// reflection, until no pending work is left.
package mark

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/panbanda/iltrim/pkg/annotations"
	"github.com/panbanda/iltrim/pkg/diagnostic"
	"github.com/panbanda/iltrim/pkg/linker"
	"github.com/panbanda/iltrim/pkg/linker/reflection"
	"github.com/panbanda/iltrim/pkg/metadata"
)

type item struct {
	entity metadata.Entity
	reason linker.Reason
}

type pendingAttribute struct {
	owner metadata.Entity
	attr  metadata.CustomAttribute
}

// Engine is the mark fixpoint over one link context.
type Engine struct {
	ctx      *linker.Context
	model    *metadata.Model
	store    *annotations.Store
	policies linker.Policies
	logger   *zap.Logger
	types    *TypeMap
	reflect  *reflection.Recognizer
	patterns reflection.PatternRecorder

	queue []item
	head  int

	virtuals       []metadata.MethodID
	withInterfaces []metadata.TypeID
	attributes     []pendingAttribute
	deferred       []metadata.MethodID
	converted      map[metadata.MethodID]bool
	unresolved     map[string]bool
	progress       bool
	fatal          error
}

// Option configures an Engine.
type Option func(*Engine)

// WithPatternRecorder replaces the recorder told about reflection sites.
func WithPatternRecorder(r reflection.PatternRecorder) Option {
	return func(e *Engine) {
		if r != nil {
			e.patterns = r
		}
	}
}

// New creates an engine over ctx.
func New(ctx *linker.Context, opts ...Option) *Engine {
	e := &Engine{
		ctx:        ctx,
		model:      ctx.Model,
		store:      ctx.Store,
		policies:   ctx.Options.Policies,
		logger:     ctx.Logger.Named("mark"),
		types:      NewTypeMap(ctx.Store),
		converted:  make(map[metadata.MethodID]bool),
		unresolved: make(map[string]bool),
	}
	e.patterns = &reflection.DiagnosticRecorder{
		Model:       ctx.Model,
		Diagnostics: ctx.Diagnostics,
		Logger:      e.logger,
	}
	for _, opt := range opts {
		opt(e)
	}
	e.reflect = reflection.New(e.model, e.store, e, e.patterns, reflection.WithLogger(e.logger))
	return e
}

// Stage returns the pipeline stage running a fresh engine.
func Stage(opts ...Option) linker.Stage {
	return linker.NewStage("mark", func(ctx *linker.Context) error {
		return New(ctx, opts...).Run()
	})
}

// TypeMap exposes the override and interface map the engine marks through.
func (e *Engine) TypeMap() *TypeMap { return e.types }

// Run marks everything reachable from the context roots. It returns a
// *diagnostic.FatalError when a reference cannot be resolved and unresolved
// references are not ignored.
func (e *Engine) Run() error {
	e.types.Build()

	for i := range e.model.Assemblies {
		id := metadata.AssemblyID(i)
		if action := e.store.GetAction(id); action.KeepsWhole() {
			e.MarkEntity(metadata.AssemblyEntity(id), linker.External(linker.ReasonCopyAssembly, action.String()))
		}
	}
	for _, root := range e.ctx.Roots {
		e.MarkEntity(root.Entity, root.Reason)
	}

	rounds := 0
	for {
		rounds++
		e.drain()
		if e.fatal != nil {
			return e.fatal
		}
		if !e.processPending() {
			break
		}
	}

	e.logger.Info("mark complete",
		zap.Int("rounds", rounds),
		zap.Int("types", e.store.MarkedCount(metadata.KindType)),
		zap.Int("methods", e.store.MarkedCount(metadata.KindMethod)),
		zap.Int("fields", e.store.MarkedCount(metadata.KindField)),
		zap.Int("converted", len(e.converted)),
	)
	return e.fatal
}

// MarkEntity records that ent is required because of reason and queues it for
// processing the first time. Marking is idempotent.
func (e *Engine) MarkEntity(ent metadata.Entity, reason linker.Reason) {
	if !ent.IsValid() {
		return
	}
	asm := e.model.AssemblyOf(ent)
	action := e.store.GetAction(asm)
	if action == annotations.ActionDelete {
		e.record(reason, ent, false)
		return
	}
	if ent.Kind == metadata.KindMethod && e.store.GetMethodAction(metadata.MethodID(ent.ID)) == annotations.MethodDelete {
		e.record(reason, ent, false)
		return
	}
	e.record(reason, ent, true)

	if reason.Kind != linker.ReasonMemberOfProperty {
		e.markAccessors(ent)
	}
	if !e.store.Mark(ent) {
		return
	}
	if action == annotations.ActionSkip {
		return
	}
	e.queue = append(e.queue, item{entity: ent, reason: reason})
}

func (e *Engine) record(reason linker.Reason, target metadata.Entity, marked bool) {
	source := reason.Source
	if source == nil {
		source = reason.Kind.String()
	}
	e.ctx.Recorder.RecordDependency(source, target, marked)
}

// markAccessors keeps the accessors of a property or event marked directly.
func (e *Engine) markAccessors(ent metadata.Entity) {
	var accessors []metadata.MethodID
	switch ent.Kind {
	case metadata.KindProperty:
		accessors = e.model.Property(metadata.PropertyID(ent.ID)).Accessors()
	case metadata.KindEvent:
		accessors = e.model.Event(metadata.EventID(ent.ID)).Accessors()
	default:
		return
	}
	for _, id := range accessors {
		e.MarkEntity(metadata.MethodEntity(id), linker.Because(linker.ReasonAccessor, ent))
	}
}

func (e *Engine) drain() {
	for e.head < len(e.queue) && e.fatal == nil {
		it := e.queue[e.head]
		e.head++
		if !e.store.MarkProcessed(it.entity) {
			continue
		}
		e.process(it)
	}
	if e.head == len(e.queue) {
		e.queue = e.queue[:0]
		e.head = 0
	}
}

func (e *Engine) process(it item) {
	switch it.entity.Kind {
	case metadata.KindAssembly:
		e.processAssembly(metadata.AssemblyID(it.entity.ID))
	case metadata.KindType:
		e.processType(metadata.TypeID(it.entity.ID))
	case metadata.KindMethod:
		e.processMethod(metadata.MethodID(it.entity.ID))
	case metadata.KindField:
		e.processField(metadata.FieldID(it.entity.ID))
	case metadata.KindProperty:
		e.processProperty(metadata.PropertyID(it.entity.ID))
	case metadata.KindEvent:
		e.processEvent(metadata.EventID(it.entity.ID))
	default:
		panic(fmt.Sprintf("mark: unexpected entity kind %s", it.entity.Kind))
	}
	for _, dep := range e.store.GetDependencies(it.entity) {
		e.MarkEntity(dep, linker.Because(linker.ReasonDynamicDependency, it.entity))
	}
}

// reportUnresolved records a reference that did not resolve. Each distinct
// reference is reported once; the first one becomes the fatal error.
func (e *Engine) reportUnresolved(code diagnostic.Code, reason linker.Reason, what string) {
	if e.ctx.Options.IgnoreUnresolved {
		e.logger.Debug("skipping unresolved reference", zap.String("reference", what))
		return
	}
	if e.unresolved[what] {
		return
	}
	e.unresolved[what] = true
	origin := e.origin(reason)
	e.ctx.Diagnostics.Report(code, origin, "%s could not be resolved", what)
	if e.fatal == nil {
		e.fatal = diagnostic.Fatal(code, origin, diagnostic.ErrUnresolved, "%s could not be resolved", what)
	}
}

func (e *Engine) origin(reason linker.Reason) string {
	if ent, ok := reason.SourceEntity(); ok {
		return e.ctx.Origin(ent)
	}
	if reason.Source == nil {
		return ""
	}
	return fmt.Sprint(reason.Source)
}
