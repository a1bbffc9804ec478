// Package sweep removes what the mark phase did not keep. Assemblies get their
// final action, linked assemblies lose every unmarked type and member, and the
// edges that pointed at removed entities are pruned or rewritten.
package sweep

import (
	"go.uber.org/zap"

	"github.com/panbanda/iltrim/pkg/annotations"
	"github.com/panbanda/iltrim/pkg/linker"
	"github.com/panbanda/iltrim/pkg/metadata"
)

// Sweeper applies the final marks of a link context to its model.
type Sweeper struct {
	ctx    *linker.Context
	model  *metadata.Model
	store  *annotations.Store
	logger *zap.Logger
}

// New creates a sweeper over ctx.
func New(ctx *linker.Context) *Sweeper {
	return &Sweeper{
		ctx:    ctx,
		model:  ctx.Model,
		store:  ctx.Store,
		logger: ctx.Logger.Named("sweep"),
	}
}

// Stage returns the pipeline stage sweeping the model.
func Stage() linker.Stage {
	return linker.NewStage("sweep", func(ctx *linker.Context) error {
		return New(ctx).Run()
	})
}

// Run sweeps every assembly in load order. It never fails; the error return
// keeps the stage signature uniform.
func (s *Sweeper) Run() error {
	var removed linker.KindCounts
	for i := range s.model.Assemblies {
		id := metadata.AssemblyID(i)
		action := s.finalAction(id)
		rep := s.ctx.Report.Assembly(s.model.Assembly(id).Name)
		rep.Action = action.String()

		switch {
		case action == annotations.ActionDelete:
			s.deleteAssembly(id, rep)
		case action == annotations.ActionLink:
			s.linkAssembly(id, rep)
		default:
			s.countKept(id, rep)
		}
		removed.Types += rep.Removed.Types
		removed.Methods += rep.Removed.Methods
		removed.Fields += rep.Removed.Fields
		removed.Properties += rep.Removed.Properties
		removed.Events += rep.Removed.Events
	}

	s.logger.Info("sweep complete",
		zap.Int("types", removed.Types),
		zap.Int("methods", removed.Methods),
		zap.Int("fields", removed.Fields),
		zap.Int("properties", removed.Properties),
		zap.Int("events", removed.Events),
	)
	return nil
}

// finalAction settles the action of an assembly now that marks are final.
// CopyUsed assemblies are copied if anything in them was used and deleted
// otherwise; linked assemblies with nothing marked are deleted.
func (s *Sweeper) finalAction(id metadata.AssemblyID) annotations.AssemblyAction {
	action := s.store.GetAction(id)
	used := s.store.IsMarked(metadata.AssemblyEntity(id)) || s.anyTypeMarked(id)
	var final annotations.AssemblyAction
	switch action {
	case annotations.ActionCopyUsed:
		final = annotations.ActionCopy
	case annotations.ActionAddBypassNGenUsed:
		final = annotations.ActionAddBypassNGen
	case annotations.ActionLink:
		final = annotations.ActionLink
	default:
		return action
	}
	if !used {
		final = annotations.ActionDelete
	}
	if final != action {
		s.store.OverrideAction(id, final)
		s.logger.Debug("assembly action settled",
			zap.String("assembly", s.model.Assembly(id).Name),
			zap.Stringer("from", action),
			zap.Stringer("to", final),
		)
	}
	return final
}

func (s *Sweeper) anyTypeMarked(id metadata.AssemblyID) bool {
	for _, t := range s.model.AllTypes(id) {
		if s.store.IsMarked(metadata.TypeEntity(t)) {
			return true
		}
	}
	return false
}

func (s *Sweeper) deleteAssembly(id metadata.AssemblyID, rep *linker.AssemblyReport) {
	asm := s.model.Assembly(id)
	for _, t := range s.model.AllTypes(id) {
		s.countType(t, &rep.Removed)
		s.model.Forget(t)
	}
	asm.Types = nil
	asm.Exported = nil
	s.ctx.Report.Removed = append(s.ctx.Report.Removed, s.model.Token(metadata.AssemblyEntity(id)))
}

func (s *Sweeper) countKept(id metadata.AssemblyID, rep *linker.AssemblyReport) {
	for _, t := range s.model.AllTypes(id) {
		s.countType(t, &rep.Kept)
	}
}

func (s *Sweeper) countType(t metadata.TypeID, c *linker.KindCounts) {
	td := s.model.Type(t)
	c.Add(metadata.KindType, 1)
	c.Add(metadata.KindMethod, len(td.Methods))
	c.Add(metadata.KindField, len(td.Fields))
	c.Add(metadata.KindProperty, len(td.Properties))
	c.Add(metadata.KindEvent, len(td.Events))
}

// linkAssembly trims an assembly to its marked entities.
func (s *Sweeper) linkAssembly(id metadata.AssemblyID, rep *linker.AssemblyReport) {
	asm := s.model.Assembly(id)
	asm.Types = s.sweepTypes(asm.Types, rep)
	asm.Attributes = s.sweepAttributes(asm.Attributes)
	if asm.EntryPoint != nil {
		if m, ok := s.model.ResolveMethod(*asm.EntryPoint); !ok || !s.store.IsMarked(metadata.MethodEntity(m)) {
			asm.EntryPoint = nil
		}
	}

	kept := asm.Exported[:0]
	for idx, ex := range asm.Exported {
		if s.store.IsExportedTypeMarked(metadata.ForwarderUse{Assembly: id, Index: idx}) {
			kept = append(kept, ex)
		}
	}
	asm.Exported = kept
}

// sweepTypes filters a type list to its marked types and sweeps each of them.
func (s *Sweeper) sweepTypes(ids []metadata.TypeID, rep *linker.AssemblyReport) []metadata.TypeID {
	kept := ids[:0]
	for _, t := range ids {
		if !s.store.IsMarked(metadata.TypeEntity(t)) {
			s.removeType(t, rep)
			continue
		}
		s.sweepType(t, rep)
		kept = append(kept, t)
	}
	return kept
}

func (s *Sweeper) removeType(t metadata.TypeID, rep *linker.AssemblyReport) {
	var walk func(t metadata.TypeID)
	walk = func(t metadata.TypeID) {
		s.countType(t, &rep.Removed)
		s.model.Forget(t)
		s.ctx.Report.Removed = append(s.ctx.Report.Removed, s.model.Token(metadata.TypeEntity(t)))
		for _, n := range s.model.Type(t).NestedTypes {
			walk(n)
		}
	}
	walk(t)
}

func (s *Sweeper) sweepType(t metadata.TypeID, rep *linker.AssemblyReport) {
	td := s.model.Type(t)
	rep.Kept.Add(metadata.KindType, 1)

	if td.BaseType != nil && !s.store.IsBaseTypeKept(t) {
		s.logger.Debug("base type dropped",
			zap.String("type", td.FullName),
			zap.Stringer("base", td.BaseType),
		)
		obj := metadata.ObjectRef()
		td.BaseType = &obj
	}

	ifaces := td.Interfaces[:0]
	for idx, impl := range td.Interfaces {
		if !s.store.IsInterfaceImplMarked(annotations.InterfaceImplRef{Type: t, Index: idx}) || !s.typeKept(impl.Interface) {
			continue
		}
		impl.Attributes = s.sweepAttributes(impl.Attributes)
		ifaces = append(ifaces, impl)
	}
	td.Interfaces = ifaces

	td.Methods = filter(td.Methods, metadata.MethodEntity, s.store, &rep.Kept, &rep.Removed)
	td.Fields = filter(td.Fields, metadata.FieldEntity, s.store, &rep.Kept, &rep.Removed)
	td.Properties = filter(td.Properties, metadata.PropertyEntity, s.store, &rep.Kept, &rep.Removed)
	td.Events = filter(td.Events, metadata.EventEntity, s.store, &rep.Kept, &rep.Removed)

	td.Attributes = s.sweepAttributes(td.Attributes)
	s.sweepGenericParameters(td.GenericParameters)
	for _, m := range td.Methods {
		s.sweepMethod(m)
	}
	for _, f := range td.Fields {
		fd := s.model.Field(f)
		fd.Attributes = s.sweepAttributes(fd.Attributes)
	}
	for _, p := range td.Properties {
		s.sweepProperty(p)
	}
	for _, ev := range td.Events {
		s.sweepEvent(ev)
	}

	td.NestedTypes = s.sweepTypes(td.NestedTypes, rep)
}

// filter keeps the marked ids of one member kind and counts both sides.
func filter[ID ~uint32](ids []ID, entity func(ID) metadata.Entity, store *annotations.Store, kept, removed *linker.KindCounts) []ID {
	out := ids[:0]
	for _, id := range ids {
		e := entity(id)
		if store.IsMarked(e) {
			out = append(out, id)
			kept.Add(e.Kind, 1)
		} else {
			removed.Add(e.Kind, 1)
		}
	}
	return out
}

func (s *Sweeper) sweepMethod(id metadata.MethodID) {
	md := s.model.Method(id)
	md.Attributes = s.sweepAttributes(md.Attributes)
	md.ReturnAttributes = s.sweepAttributes(md.ReturnAttributes)
	for i := range md.Parameters {
		md.Parameters[i].Attributes = s.sweepAttributes(md.Parameters[i].Attributes)
	}
	s.sweepGenericParameters(md.GenericParameters)

	overrides := md.Overrides[:0]
	for _, ref := range md.Overrides {
		if base, ok := s.model.ResolveMethod(ref); ok && s.store.IsMarked(metadata.MethodEntity(base)) {
			overrides = append(overrides, ref)
		}
	}
	md.Overrides = overrides
}

func (s *Sweeper) sweepProperty(id metadata.PropertyID) {
	p := s.model.Property(id)
	p.Attributes = s.sweepAttributes(p.Attributes)
	if p.Getter != metadata.NoMethod && !s.store.IsMarked(metadata.MethodEntity(p.Getter)) {
		p.Getter = metadata.NoMethod
	}
	if p.Setter != metadata.NoMethod && !s.store.IsMarked(metadata.MethodEntity(p.Setter)) {
		p.Setter = metadata.NoMethod
	}
}

func (s *Sweeper) sweepEvent(id metadata.EventID) {
	ev := s.model.Event(id)
	ev.Attributes = s.sweepAttributes(ev.Attributes)
	for _, acc := range []*metadata.MethodID{&ev.Add, &ev.Remove, &ev.Raise} {
		if *acc != metadata.NoMethod && !s.store.IsMarked(metadata.MethodEntity(*acc)) {
			*acc = metadata.NoMethod
		}
	}
}

func (s *Sweeper) sweepGenericParameters(params []metadata.GenericParameter) {
	for i := range params {
		params[i].Attributes = s.sweepAttributes(params[i].Attributes)
	}
}

// sweepAttributes drops attribute instances whose constructor was not kept.
func (s *Sweeper) sweepAttributes(attrs []metadata.CustomAttribute) []metadata.CustomAttribute {
	if len(attrs) == 0 {
		return attrs
	}
	kept := attrs[:0]
	for _, ca := range attrs {
		ctor, ok := s.model.ResolveMethod(ca.Constructor)
		if ok && s.store.IsMarked(metadata.MethodEntity(ctor)) {
			kept = append(kept, ca)
		}
	}
	return kept
}

func (s *Sweeper) typeKept(ref metadata.TypeRef) bool {
	t, ok := s.model.ResolveType(ref)
	return ok && s.store.IsMarked(metadata.TypeEntity(t))
}
