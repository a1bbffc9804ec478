package descriptor

import (
	"strings"

	"go.uber.org/zap"

	"github.com/panbanda/iltrim/pkg/annotations"
	"github.com/panbanda/iltrim/pkg/diagnostic"
	"github.com/panbanda/iltrim/pkg/linker"
	"github.com/panbanda/iltrim/pkg/metadata"
	"github.com/panbanda/iltrim/pkg/metadata/document"
)

// DefaultRootAttributes are the marker attributes that root what they annotate
// when the configuration names none.
var DefaultRootAttributes = []string{"KeepAttribute", "PreserveAttribute"}

// Resolver applies root assemblies, descriptor manifests and attribute
// annotations to a link context.
type Resolver struct {
	ctx       *linker.Context
	model     *metadata.Model
	store     *annotations.Store
	logger    *zap.Logger
	manifests []*Manifest
	rootAttrs []string
}

// Option configures a Resolver.
type Option func(*Resolver)

// WithManifest adds an already decoded manifest.
func WithManifest(m *Manifest) Option {
	return func(r *Resolver) {
		r.manifests = append(r.manifests, m)
	}
}

// New creates a resolver over ctx.
func New(ctx *linker.Context, opts ...Option) *Resolver {
	r := &Resolver{
		ctx:       ctx,
		model:     ctx.Model,
		store:     ctx.Store,
		logger:    ctx.Logger.Named("descriptor"),
		rootAttrs: ctx.Options.RootAttributes,
	}
	if len(r.rootAttrs) == 0 {
		r.rootAttrs = DefaultRootAttributes
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Stage returns the pipeline stage resolving roots.
func Stage(opts ...Option) linker.Stage {
	return linker.NewStage("resolve-roots", func(ctx *linker.Context) error {
		return New(ctx, opts...).Run()
	})
}

// Run records every obligation. Explicitly configured actions win over
// manifest actions, which win over root modes and the default action.
// Malformed input is reported as warnings; a missing root assembly or entry
// point is fatal.
func (r *Resolver) Run() error {
	r.applyConfiguredActions()
	for _, path := range r.ctx.Options.Descriptors {
		m, err := LoadFile(path)
		if err != nil {
			r.ctx.Diagnostics.Report(diagnostic.CodeDescriptorMalformed, path, "descriptor could not be read: %v", err)
			continue
		}
		r.manifests = append(r.manifests, m)
	}
	for _, m := range r.manifests {
		r.applyManifest(m)
	}
	if err := r.rootAssemblies(); err != nil {
		return err
	}
	r.scanAttributes()
	r.applyDefaultAction()

	r.logger.Info("roots resolved",
		zap.Int("roots", len(r.ctx.Roots)),
		zap.Int("manifests", len(r.manifests)),
	)
	return nil
}

func (r *Resolver) warn(code diagnostic.Code, origin, format string, args ...any) {
	r.ctx.Diagnostics.Report(code, origin, format, args...)
}

// fail reports an error diagnostic and returns the matching fatal error.
func (r *Resolver) fail(code diagnostic.Code, origin string, err error, format string, args ...any) error {
	r.ctx.Diagnostics.Report(code, origin, format, args...)
	return diagnostic.Fatal(code, origin, err, format, args...)
}

func (r *Resolver) applyConfiguredActions() {
	for name, action := range r.ctx.Options.Actions {
		id, ok := r.model.AssemblyByName(name)
		if !ok {
			r.warn(diagnostic.CodeDescriptorUnresolvedAssembly, "configuration", "assembly %s named in actions could not be resolved", name)
			continue
		}
		r.store.SetAction(id, action)
	}
}

func (r *Resolver) applyDefaultAction() {
	action := r.ctx.Options.DefaultAction
	if action == annotations.ActionUnset {
		action = annotations.ActionLink
	}
	for i := range r.model.Assemblies {
		r.store.SetAction(metadata.AssemblyID(i), action)
	}
}

func (r *Resolver) rootAssemblies() error {
	for _, ra := range r.ctx.Options.Roots {
		id, ok := r.model.AssemblyByName(ra.Assembly)
		if !ok {
			return r.fail(diagnostic.CodeUnresolvedAssembly, "configuration", diagnostic.ErrUnresolved,
				"root assembly %s could not be resolved", ra.Assembly)
		}
		switch ra.Mode {
		case linker.RootEntry, "":
			if err := r.rootEntryPoint(id); err != nil {
				return err
			}
		case linker.RootVisible:
			r.rootVisible(id)
		case linker.RootAll:
			r.rootAll(id, linker.External(linker.ReasonRoot, "all:"+ra.Assembly))
		default:
			return r.fail(diagnostic.CodeInvalidOption, "configuration", nil, "unknown root mode %q for %s", ra.Mode, ra.Assembly)
		}
	}
	return nil
}

func (r *Resolver) rootEntryPoint(id metadata.AssemblyID) error {
	asm := r.model.Assembly(id)
	if asm.EntryPoint == nil {
		return r.fail(diagnostic.CodeMissingEntryPoint, asm.Name, nil, "assembly %s has no entry point", asm.Name)
	}
	m, ok := r.model.ResolveMethod(*asm.EntryPoint)
	if !ok {
		return r.fail(diagnostic.CodeMissingEntryPoint, asm.Name, diagnostic.ErrUnresolved,
			"entry point %s of %s could not be resolved", asm.EntryPoint, asm.Name)
	}
	r.ctx.AddRoot(metadata.MethodEntity(m), linker.External(linker.ReasonEntryPoint, asm.Name))
	return nil
}

// rootVisible roots the externally visible surface of the assembly and flags it
// public in the store.
func (r *Resolver) rootVisible(id metadata.AssemblyID) {
	reason := linker.External(linker.ReasonRoot, "visible:"+r.model.Assembly(id).Name)
	root := func(e metadata.Entity) {
		r.store.SetPublic(e)
		r.ctx.AddRoot(e, reason)
	}
	for _, t := range r.model.AllTypes(id) {
		if !r.typeVisible(t) {
			continue
		}
		td := r.model.Type(t)
		root(metadata.TypeEntity(t))
		for _, m := range td.Methods {
			if visible(r.model.Method(m).Visibility) {
				root(metadata.MethodEntity(m))
			}
		}
		for _, f := range td.Fields {
			if visible(r.model.Field(f).Visibility) {
				root(metadata.FieldEntity(f))
			}
		}
		for _, p := range td.Properties {
			if r.anyVisible(r.model.Property(p).Accessors()) {
				root(metadata.PropertyEntity(p))
			}
		}
		for _, ev := range td.Events {
			if r.anyVisible(r.model.Event(ev).Accessors()) {
				root(metadata.EventEntity(ev))
			}
		}
	}
}

// rootAll keeps the whole assembly. Without an explicit action that already
// keeps it whole, it becomes Copy; an explicit action is honored and every
// type is rooted with all of its members instead.
func (r *Resolver) rootAll(id metadata.AssemblyID, reason linker.Reason) {
	r.store.SetAction(id, annotations.ActionCopy)
	if r.store.GetAction(id).KeepsWhole() {
		return
	}
	for _, t := range r.model.AllTypes(id) {
		r.store.SetPreserve(t, annotations.PreserveAll)
		r.ctx.AddRoot(metadata.TypeEntity(t), reason)
	}
}

func (r *Resolver) typeVisible(t metadata.TypeID) bool {
	for t != metadata.NoType {
		td := r.model.Type(t)
		if td.IsNested() {
			if !visible(td.Visibility) {
				return false
			}
		} else if td.Visibility != metadata.VisibilityPublic {
			return false
		}
		t = td.DeclaringType
	}
	return true
}

func (r *Resolver) anyVisible(methods []metadata.MethodID) bool {
	for _, m := range methods {
		if visible(r.model.Method(m).Visibility) {
			return true
		}
	}
	return false
}

// visible reports whether code outside the assembly can reach a member.
func visible(v metadata.Visibility) bool {
	return v == metadata.VisibilityPublic || v == metadata.VisibilityFamily || v == metadata.VisibilityFamilyOrAssembly
}

func (r *Resolver) applyManifest(m *Manifest) {
	for i := range m.Assemblies {
		entry := &m.Assemblies[i]
		loc := m.Location(entry.Pos)
		id, ok := r.model.AssemblyByName(entry.Name)
		if !ok {
			r.warn(diagnostic.CodeDescriptorUnresolvedAssembly, loc, "assembly %s could not be resolved", entry.Name)
			continue
		}
		if entry.Action != "" {
			action, err := annotations.ParseAssemblyAction(entry.Action)
			if err != nil {
				r.warn(diagnostic.CodeDescriptorInvalidValue, loc, "%v", err)
			} else {
				r.store.SetAction(id, action)
			}
		}
		switch {
		case strings.EqualFold(entry.Preserve, "all"):
			r.rootAll(id, linker.External(linker.ReasonDescriptor, loc))
		case entry.Preserve != "":
			r.warn(diagnostic.CodeDescriptorInvalidValue, loc, "assembly preserve must be \"all\", got %q", entry.Preserve)
		case len(entry.Types) == 0 && entry.Action == "":
			r.rootAll(id, linker.External(linker.ReasonDescriptor, loc))
		}
		for j := range entry.Types {
			r.applyType(m, id, metadata.NoType, &entry.Types[j])
		}
	}
}

func (r *Resolver) applyType(m *Manifest, asm metadata.AssemblyID, outer metadata.TypeID, entry *TypeEntry) {
	loc := m.Location(entry.Pos)
	t, ok := r.findType(asm, outer, entry.Name)
	if !ok {
		r.warn(diagnostic.CodeDescriptorUnresolvedType, loc, "type %s could not be resolved in %s", entry.Name, r.model.Assembly(asm).Name)
		return
	}
	kind, err := annotations.ParsePreserveKind(entry.Preserve)
	if err != nil {
		r.warn(diagnostic.CodeDescriptorInvalidValue, loc, "%v", err)
	}
	if entry.Preserve == "" && entry.empty() {
		kind = annotations.PreserveAll
	}

	reason := linker.External(linker.ReasonDescriptor, loc)
	typeEntity := metadata.TypeEntity(t)
	if entry.IsRequired() {
		r.ctx.AddRoot(typeEntity, reason)
	}
	if kind != annotations.PreserveNothing {
		r.store.SetPreserve(t, kind)
	}
	keep := func(e metadata.Entity) {
		switch {
		case entry.IsRequired():
			r.ctx.AddRoot(e, reason)
		case e.Kind == metadata.KindMethod:
			r.store.AddPreservedMethod(t, metadata.MethodID(e.ID))
		default:
			r.store.AddDependency(typeEntity, e)
		}
	}

	for _, me := range entry.Methods {
		sig, err := parseSignature(me.Signature)
		if err != nil {
			r.warn(diagnostic.CodeDescriptorMalformed, m.Location(me.Pos), "%v", err)
			continue
		}
		found := sig.methods(r.model, t)
		if len(found) == 0 {
			r.warn(diagnostic.CodeDescriptorUnresolvedMember, m.Location(me.Pos), "method %s could not be found on %s", me.Signature, r.model.Type(t).FullName)
		}
		for _, id := range found {
			keep(metadata.MethodEntity(id))
		}
	}
	for _, fe := range entry.Fields {
		if f, ok := r.model.FindField(t, fe.Signature); ok {
			keep(metadata.FieldEntity(f))
		} else {
			r.warn(diagnostic.CodeDescriptorUnresolvedMember, m.Location(fe.Pos), "field %s could not be found on %s", fe.Signature, r.model.Type(t).FullName)
		}
	}
	for _, pe := range entry.Properties {
		found := r.named(t, metadata.KindProperty, pe.Signature)
		if !found.IsValid() {
			r.warn(diagnostic.CodeDescriptorUnresolvedMember, m.Location(pe.Pos), "property %s could not be found on %s", pe.Signature, r.model.Type(t).FullName)
			continue
		}
		keep(found)
	}
	for _, ee := range entry.Events {
		found := r.named(t, metadata.KindEvent, ee.Signature)
		if !found.IsValid() {
			r.warn(diagnostic.CodeDescriptorUnresolvedMember, m.Location(ee.Pos), "event %s could not be found on %s", ee.Signature, r.model.Type(t).FullName)
			continue
		}
		keep(found)
	}
	for i := range entry.Nested {
		r.applyType(m, asm, t, &entry.Nested[i])
	}
	for _, b := range entry.Bodies {
		r.applyBody(m, t, b)
	}
	for _, fv := range entry.FieldValues {
		r.applyFieldValue(m, t, fv)
	}
}

func (e *TypeEntry) empty() bool {
	return len(e.Methods) == 0 && len(e.Fields) == 0 && len(e.Properties) == 0 && len(e.Events) == 0 &&
		len(e.Nested) == 0 && len(e.Bodies) == 0 && len(e.FieldValues) == 0
}

// findType resolves a manifest type name. Nested types may be spelled with '+'
// or '/' at the top level, or listed under their outer type by simple name.
func (r *Resolver) findType(asm metadata.AssemblyID, outer metadata.TypeID, name string) (metadata.TypeID, bool) {
	if outer != metadata.NoType {
		return r.model.FindNested(outer, name)
	}
	return r.model.TypeByName(asm, strings.ReplaceAll(name, "+", "/"))
}

func (r *Resolver) named(t metadata.TypeID, kind metadata.Kind, name string) metadata.Entity {
	td := r.model.Type(t)
	switch kind {
	case metadata.KindProperty:
		for _, p := range td.Properties {
			if r.model.Property(p).Name == name {
				return metadata.PropertyEntity(p)
			}
		}
	case metadata.KindEvent:
		for _, ev := range td.Events {
			if r.model.Event(ev).Name == name {
				return metadata.EventEntity(ev)
			}
		}
	}
	return metadata.Entity{}
}

// applyBody records a body substitution. The methods are not rooted; the
// substitution applies if they are marked.
func (r *Resolver) applyBody(m *Manifest, t metadata.TypeID, b BodySubstitution) {
	loc := m.Location(b.Pos)
	sig, err := parseSignature(b.Method)
	if err != nil {
		r.warn(diagnostic.CodeDescriptorMalformed, loc, "%v", err)
		return
	}
	action, err := annotations.ParseMethodAction(b.Action)
	if err != nil || action == annotations.MethodNone {
		r.warn(diagnostic.CodeDescriptorInvalidValue, loc, "invalid body action %q", b.Action)
		return
	}
	found := sig.methods(r.model, t)
	if len(found) == 0 {
		r.warn(diagnostic.CodeDescriptorUnresolvedMember, loc, "method %s could not be found on %s", b.Method, r.model.Type(t).FullName)
		return
	}
	for _, id := range found {
		if b.Value != nil {
			if action != annotations.MethodConvertToReturn {
				r.warn(diagnostic.CodeDescriptorInvalidValue, loc, "a value is only valid with the return action")
				return
			}
			v, err := document.ArgValue(r.model.Method(id).ReturnType, b.Value)
			if err != nil {
				r.warn(diagnostic.CodeDescriptorInvalidValue, loc, "return value for %s: %v", r.model.MethodName(id), err)
				continue
			}
			r.store.SetStubValue(id, v)
		}
		r.store.SetMethodAction(id, action)
	}
}

func (r *Resolver) applyFieldValue(m *Manifest, t metadata.TypeID, fv FieldValue) {
	loc := m.Location(fv.Pos)
	f, ok := r.model.FindField(t, fv.Field)
	if !ok {
		r.warn(diagnostic.CodeDescriptorUnresolvedMember, loc, "field %s could not be found on %s", fv.Field, r.model.Type(t).FullName)
		return
	}
	fd := r.model.Field(f)
	if !fd.IsStatic() {
		r.warn(diagnostic.CodeDescriptorInvalidValue, loc, "field %s is not static", fv.Field)
		return
	}
	v, err := document.ArgValue(fd.Type, fv.Value)
	if err != nil {
		r.warn(diagnostic.CodeDescriptorInvalidValue, loc, "value for field %s: %v", fv.Field, err)
		return
	}
	r.store.SetFieldValue(f, v)
}

// matchesRootAttribute reports whether an attribute class full name is one of
// the configured root markers, given by full or simple name.
func (r *Resolver) matchesRootAttribute(fullName string) bool {
	for _, name := range r.rootAttrs {
		if fullName == name || strings.HasSuffix(fullName, "."+name) || strings.HasSuffix(fullName, "/"+name) {
			return true
		}
	}
	return false
}

// describe names the attribute class of ca.
func describe(ca metadata.CustomAttribute) string {
	def, ok := ca.AttributeType().Definition()
	if !ok {
		return ca.AttributeType().String()
	}
	return def.Name
}
