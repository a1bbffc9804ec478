// Package reflection recognizes reflection idioms in method bodies and turns the
// members they reach into marks. Values are tracked with a forward dataflow
// analysis so that a typeof or string literal reaching a reflection call through
// locals, branches and exception regions is still resolved.
package reflection

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/panbanda/iltrim/pkg/annotations"
	"github.com/panbanda/iltrim/pkg/dataflow"
	"github.com/panbanda/iltrim/pkg/diagnostic"
	"github.com/panbanda/iltrim/pkg/linker"
	"github.com/panbanda/iltrim/pkg/metadata"
	"github.com/panbanda/iltrim/pkg/metadata/typename"
)

// Marker receives the entities a recognized pattern keeps.
type Marker interface {
	MarkEntity(e metadata.Entity, reason linker.Reason)
}

// Site is an inspected instruction.
type Site struct {
	Caller metadata.MethodID
	Offset int
	// Target describes the callee, the stored field or the return value.
	Target string
}

// Origin renders the site for diagnostics.
func (s Site) Origin(m *metadata.Model) string {
	return fmt.Sprintf("%s IL_%04d", m.MethodName(s.Caller), s.Offset)
}

// PatternRecorder is told the outcome of every inspected site, exactly once.
type PatternRecorder interface {
	Recognized(site Site, targets []metadata.Entity)
	Unrecognized(site Site, code diagnostic.Code, message string)
}

// DiagnosticRecorder reports unrecognized patterns as diagnostics.
type DiagnosticRecorder struct {
	Model       *metadata.Model
	Diagnostics *diagnostic.Collector
	Logger      *zap.Logger
}

// Recognized logs the resolved targets at debug level.
func (d *DiagnosticRecorder) Recognized(site Site, targets []metadata.Entity) {
	if d.Logger != nil {
		d.Logger.Debug("reflection pattern recognized",
			zap.String("site", site.Origin(d.Model)),
			zap.Int("targets", len(targets)),
		)
	}
}

// Unrecognized reports a warning at the site.
func (d *DiagnosticRecorder) Unrecognized(site Site, code diagnostic.Code, message string) {
	d.Diagnostics.Report(code, site.Origin(d.Model), "%s", message)
}

// Recognizer analyzes method bodies for reflection access.
type Recognizer struct {
	model    *metadata.Model
	store    *annotations.Store
	marker   Marker
	recorder PatternRecorder
	logger   *zap.Logger
}

// Option configures a Recognizer.
type Option func(*Recognizer)

// WithLogger sets the logger.
func WithLogger(logger *zap.Logger) Option {
	return func(r *Recognizer) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// New creates a recognizer.
func New(m *metadata.Model, store *annotations.Store, marker Marker, recorder PatternRecorder, opts ...Option) *Recognizer {
	r := &Recognizer{
		model:    m,
		store:    store,
		marker:   marker,
		recorder: recorder,
		logger:   zap.NewNop(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// AnalyzeMethod runs the value analysis over the body of id and classifies every
// inspected site in instruction order.
func (r *Recognizer) AnalyzeMethod(id metadata.MethodID) {
	md := r.model.Method(id)
	if md.Body == nil || !r.needsAnalysis(id, md.Body) {
		return
	}
	g := dataflow.Build(md.Body)
	it := &interpreter{r: r, method: id}
	res := dataflow.Solve[State](g, it)

	// Blocks are ordered by start, so sites come out in instruction order.
	var sites []site
	for _, b := range g.Blocks {
		in := res.In[b.ID]
		if !in.reached {
			continue
		}
		st := in.clone()
		for i := b.Start; i < b.End; i++ {
			it.step(&st, i, md.Body.Instructions[i], func(s site) { sites = append(sites, s) })
		}
	}
	for _, s := range sites {
		r.classify(id, md.Body, s)
	}
}

func (r *Recognizer) needsAnalysis(id metadata.MethodID, body *metadata.MethodBody) bool {
	if r.store.ReturnDAM(id) != annotations.DAMNone {
		return true
	}
	for _, in := range body.Instructions {
		switch {
		case in.OpCode.IsCall() && in.Method != nil:
			if lookupIntrinsic(*in.Method) != intrinsicNone || r.isAnnotatedCall(*in.Method) {
				return true
			}
		case (in.OpCode == metadata.Stfld || in.OpCode == metadata.Stsfld) && in.Field != nil:
			if f, ok := r.model.ResolveField(*in.Field); ok && r.store.FieldDAM(f) != annotations.DAMNone {
				return true
			}
		}
	}
	return false
}

// isAnnotatedCall reports whether the callee or its generic arguments carry
// requirements.
func (r *Recognizer) isAnnotatedCall(ref metadata.MethodRef) bool {
	callee, ok := r.model.ResolveMethod(ref)
	if !ok {
		return false
	}
	md := r.model.Method(callee)
	for i := range md.Parameters {
		if r.store.ParamDAM(annotations.ParamRef{Method: callee, Index: i}) != annotations.DAMNone {
			return true
		}
	}
	return len(r.genericRequirements(callee, ref)) > 0
}

// outcome accumulates the result of one site.
type outcome struct {
	r       *Recognizer
	reason  linker.Reason
	targets []metadata.Entity
	failed  bool
	code    diagnostic.Code
	message string
}

func (o *outcome) mark(e metadata.Entity) {
	o.r.marker.MarkEntity(e, o.reason)
	o.targets = append(o.targets, e)
}

func (o *outcome) markAll(es []metadata.Entity) {
	for _, e := range es {
		o.mark(e)
	}
}

// fail records the first failure; later ones are folded into it.
func (o *outcome) fail(code diagnostic.Code, format string, args ...any) {
	if o.failed {
		return
	}
	o.failed = true
	o.code = code
	o.message = fmt.Sprintf(format, args...)
}

func (r *Recognizer) classify(caller metadata.MethodID, body *metadata.MethodBody, s site) {
	o := &outcome{r: r, reason: linker.Because(linker.ReasonReflection, metadata.MethodEntity(caller))}
	pub := Site{Caller: caller, Offset: s.offset}

	switch s.kind {
	case siteStoreField:
		f, ok := r.model.ResolveField(*s.instr.Field)
		if !ok {
			return
		}
		dam := r.store.FieldDAM(f)
		if dam == annotations.DAMNone {
			return
		}
		pub.Target = r.model.Name(metadata.FieldEntity(f))
		r.require(o, caller, s.args[0], dam, "field "+pub.Target)
	case siteReturn:
		dam := r.store.ReturnDAM(caller)
		if dam == annotations.DAMNone {
			return
		}
		pub.Target = "return value"
		r.require(o, caller, s.args[0], dam, "the return value of "+r.model.MethodName(caller))
	case siteCall:
		ref := *s.instr.Method
		pub.Target = ref.String()
		if intr := lookupIntrinsic(ref); intr != intrinsicNone {
			if intr == intrinsicGetTypeFromHandle || intr == intrinsicObjectGetType {
				// These only produce values for later sites.
				return
			}
			r.intrinsic(o, caller, body, s, intr)
		} else if r.isAnnotatedCall(ref) {
			r.annotatedCall(o, caller, s)
		} else {
			return
		}
	}

	if o.failed {
		r.recorder.Unrecognized(pub, o.code, o.message)
		return
	}
	r.recorder.Recognized(pub, o.targets)
}

// annotatedCall checks the arguments flowing into annotated parameters and the
// generic arguments bound to annotated generic parameters.
func (r *Recognizer) annotatedCall(o *outcome, caller metadata.MethodID, s site) {
	ref := *s.instr.Method
	callee, _ := r.model.ResolveMethod(ref)
	md := r.model.Method(callee)
	first := len(s.args) - len(md.Parameters)
	for i, p := range md.Parameters {
		dam := r.store.ParamDAM(annotations.ParamRef{Method: callee, Index: i})
		if dam == annotations.DAMNone || first+i < 0 {
			continue
		}
		what := fmt.Sprintf("parameter '%s' of %s", p.Name, r.model.MethodName(callee))
		r.require(o, caller, s.args[first+i], dam, what)
	}
	for _, req := range r.genericRequirements(callee, ref) {
		r.requireTypeArgument(o, caller, req.arg, req.dam, req.what)
	}
}

type genericRequirement struct {
	arg  metadata.TypeRef
	dam  annotations.DAMTypes
	what string
}

// genericRequirements pairs annotated generic parameters of the callee and its
// declaring type with the arguments bound at the call.
func (r *Recognizer) genericRequirements(callee metadata.MethodID, ref metadata.MethodRef) []genericRequirement {
	var out []genericRequirement
	md := r.model.Method(callee)
	for i, arg := range ref.Instantiation {
		dam := r.store.GenericParamDAM(annotations.GenericParamRef{Owner: metadata.MethodEntity(callee), Position: i})
		if dam != annotations.DAMNone && i < len(md.GenericParameters) {
			out = append(out, genericRequirement{arg: arg, dam: dam, what: fmt.Sprintf("generic parameter '%s' of %s", md.GenericParameters[i].Name, r.model.MethodName(callee))})
		}
	}
	decl := md.DeclaringType
	td := r.model.Type(decl)
	for i, arg := range ref.DeclaringType.TypeArguments() {
		dam := r.store.GenericParamDAM(annotations.GenericParamRef{Owner: metadata.TypeEntity(decl), Position: i})
		if dam != annotations.DAMNone && i < len(td.GenericParameters) {
			out = append(out, genericRequirement{arg: arg, dam: dam, what: fmt.Sprintf("generic parameter '%s' of %s", td.GenericParameters[i].Name, td.FullName)})
		}
	}
	return out
}

// require checks that v satisfies req at a location described by what.
func (r *Recognizer) require(o *outcome, caller metadata.MethodID, v ValueSet, req annotations.DAMTypes, what string) {
	if v.IsUnknown() || v.IsEmpty() {
		o.fail(diagnostic.CodeUnrecognizedReflectionPattern, "value passed to %s cannot be statically determined", what)
		return
	}
	for _, val := range v.Values() {
		switch val.Kind {
		case ValueNull:
		case ValueSystemType:
			o.mark(metadata.TypeEntity(val.Type))
			o.markAll(Members(r.model, val.Type, req))
		case ValueString:
			t, ok := r.resolveTypeName(caller, val.Str)
			if !ok {
				o.fail(diagnostic.CodeUnresolvedTypeName, "type name %q passed to %s could not be resolved", val.Str, what)
				continue
			}
			o.mark(metadata.TypeEntity(t))
			o.markAll(Members(r.model, t, req))
		case ValueAnnotated:
			if !val.DAM.Covers(req) {
				o.fail(diagnostic.CodeDynamicallyAccessedMismatch,
					"%s does not satisfy the requirements of %s: missing %s", val.Origin, what, val.DAM.Missing(req))
			}
		default:
			o.fail(diagnostic.CodeUnrecognizedReflectionPattern, "value passed to %s cannot be statically determined", what)
		}
	}
}

// requireTypeArgument checks a generic argument against a requirement.
func (r *Recognizer) requireTypeArgument(o *outcome, caller metadata.MethodID, arg metadata.TypeRef, req annotations.DAMTypes, what string) {
	if arg.IsGenericParameter() {
		have := r.genericParamDAM(caller, arg)
		if !have.Covers(req) {
			o.fail(diagnostic.CodeDynamicallyAccessedMismatch,
				"generic argument %s does not satisfy the requirements of %s: missing %s", arg, what, have.Missing(req))
		}
		return
	}
	t, ok := r.model.ResolveType(arg)
	if !ok {
		o.fail(diagnostic.CodeUnrecognizedReflectionPattern, "generic argument %s of %s could not be resolved", arg, what)
		return
	}
	o.mark(metadata.TypeEntity(t))
	o.markAll(Members(r.model, t, req))
}

// genericParamDAM returns the annotation on a generic parameter of the caller
// or of its declaring type.
func (r *Recognizer) genericParamDAM(caller metadata.MethodID, p metadata.TypeRef) annotations.DAMTypes {
	owner := metadata.MethodEntity(caller)
	if p.Kind == metadata.RefTypeParam {
		owner = metadata.TypeEntity(r.model.Method(caller).DeclaringType)
	}
	return r.store.GenericParamDAM(annotations.GenericParamRef{Owner: owner, Position: p.Position})
}

// resolveTypeName resolves a reflection type name. Names without an assembly are
// looked up in the caller's assembly and then in the core library.
func (r *Recognizer) resolveTypeName(caller metadata.MethodID, s string) (metadata.TypeID, bool) {
	asm := r.model.Assembly(r.model.AssemblyOf(metadata.MethodEntity(caller))).Name
	return ResolveTypeName(r.model, s, asm, metadata.CoreLibrary)
}

// ResolveTypeName parses s and resolves the type definition it names. Array,
// pointer and by-ref decorations resolve to their element type. Unqualified names
// are tried against each scope in order.
func ResolveTypeName(m *metadata.Model, s string, scopes ...string) (metadata.TypeID, bool) {
	n, err := typename.Parse(s)
	if err != nil {
		return metadata.NoType, false
	}
	base := n
	for base.Element != nil && base.Kind != typename.Generic {
		base = base.Element
	}
	if n.Assembly != "" {
		scopes = []string{n.Assembly}
	}
	for _, scope := range scopes {
		if id, ok := m.ResolveType(base.ToTypeRef(scope)); ok {
			return id, true
		}
	}
	return metadata.NoType, false
}
