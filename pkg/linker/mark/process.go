package mark

import (
	"github.com/panbanda/iltrim/pkg/annotations"
	"github.com/panbanda/iltrim/pkg/diagnostic"
	"github.com/panbanda/iltrim/pkg/linker"
	"github.com/panbanda/iltrim/pkg/linker/reflection"
	"github.com/panbanda/iltrim/pkg/metadata"
)

func (e *Engine) processAssembly(id metadata.AssemblyID) {
	src := metadata.AssemblyEntity(id)
	e.markAttributes(src, e.model.Assembly(id).Attributes)
	action := e.store.GetAction(id)
	if action.KeepsWhole() || action.KeepsWholeWhenUsed() {
		e.markWholeAssembly(id)
	}
}

// markWholeAssembly keeps every type, member, interface edge and forwarder of
// the assembly.
func (e *Engine) markWholeAssembly(id metadata.AssemblyID) {
	src := metadata.AssemblyEntity(id)
	reason := linker.Because(linker.ReasonCopyAssembly, src)
	for _, t := range e.model.AllTypes(id) {
		td := e.model.Type(t)
		e.MarkEntity(metadata.TypeEntity(t), reason)
		for _, m := range td.Methods {
			e.MarkEntity(metadata.MethodEntity(m), reason)
		}
		for _, f := range td.Fields {
			e.MarkEntity(metadata.FieldEntity(f), reason)
		}
		for _, p := range td.Properties {
			e.MarkEntity(metadata.PropertyEntity(p), reason)
		}
		for _, ev := range td.Events {
			e.MarkEntity(metadata.EventEntity(ev), reason)
		}
		for idx := range td.Interfaces {
			e.markInterfaceImpl(t, idx)
		}
		e.keepBase(t, metadata.TypeEntity(t))
	}
	for idx := range e.model.Assembly(id).Exported {
		if e.store.MarkExportedType(metadata.ForwarderUse{Assembly: id, Index: idx}) {
			e.progress = true
		}
	}
}

func (e *Engine) processType(id metadata.TypeID) {
	td := e.model.Type(id)
	src := metadata.TypeEntity(id)

	e.MarkEntity(metadata.AssemblyEntity(td.Assembly), linker.Because(linker.ReasonDeclaringType, src))
	if td.IsNested() {
		e.MarkEntity(metadata.TypeEntity(td.DeclaringType), linker.Because(linker.ReasonDeclaringType, src))
	}
	if td.BaseType != nil && e.mustKeepBase(id) {
		e.keepBase(id, src)
	}

	if len(td.Interfaces) > 0 {
		if td.IsInterface() || !e.policies.UnusedInterfaces {
			for idx := range td.Interfaces {
				e.markInterfaceImpl(id, idx)
			}
		} else {
			e.withInterfaces = append(e.withInterfaces, id)
		}
	}

	e.walkGenericParameters(src, td.GenericParameters)
	e.markAttributes(src, td.Attributes)

	reason := linker.Because(linker.ReasonPreserve, src)
	if p, ok := e.store.GetPreserve(id); ok {
		if p.Fields() {
			for _, f := range td.Fields {
				e.MarkEntity(metadata.FieldEntity(f), reason)
			}
		}
		if p.Methods() {
			for _, m := range td.Methods {
				e.MarkEntity(metadata.MethodEntity(m), reason)
			}
		}
	}
	for _, m := range e.store.GetPreservedMethods(id) {
		e.MarkEntity(metadata.MethodEntity(m), reason)
	}

	if dam := e.store.InheritedTypeDAM(id); dam != annotations.DAMNone {
		e.markAll(reflection.Members(e.model, id, dam), linker.Because(linker.ReasonDynamicallyAccessed, src))
	}

	if td.IsValueType() || td.Has(metadata.TypeSequentialLayout) || td.Has(metadata.TypeExplicitLayout) {
		if td.IsValueType() {
			e.instantiate(id, src)
		}
		for _, f := range td.Fields {
			if !e.model.Field(f).IsStatic() || td.Has(metadata.TypeEnumFlag) {
				e.MarkEntity(metadata.FieldEntity(f), linker.Because(linker.ReasonInstantiation, src))
			}
		}
	}

	pattern := linker.Because(linker.ReasonPattern, src)
	e.markAll(reflection.EventSourceMembers(e.model, id), pattern)
	if m, ok := reflection.MarshalerGetInstance(e.model, id); ok {
		e.MarkEntity(metadata.MethodEntity(m), pattern)
	}
}

func (e *Engine) processMethod(id metadata.MethodID) {
	md := e.model.Method(id)
	src := metadata.MethodEntity(id)

	e.MarkEntity(metadata.TypeEntity(md.DeclaringType), linker.Because(linker.ReasonDeclaringType, src))
	if md.Owner.IsValid() {
		e.MarkEntity(md.Owner, linker.Because(linker.ReasonMemberOfProperty, src))
	}
	e.walkSignature(id, src)

	for _, base := range e.store.GetBaseMethods(id) {
		if !e.model.Type(e.model.Method(base).DeclaringType).IsInterface() {
			e.MarkEntity(metadata.MethodEntity(base), linker.Because(linker.ReasonOverride, src))
		}
	}
	if md.IsVirtual() {
		e.virtuals = append(e.virtuals, id)
	}

	td := e.model.Type(md.DeclaringType)
	switch {
	case md.IsConstructor():
		e.instantiate(md.DeclaringType, src)
	case md.IsStatic() && !md.IsStaticConstructor() && !td.Has(metadata.TypeBeforeFieldInit):
		e.markStaticConstructor(md.DeclaringType, src)
	}

	if action := e.store.GetMethodAction(id); action.RewritesBody() {
		e.markRewriteDependencies(id, action)
		return
	}
	// Interfaces are never instantiated; their default methods run on implementers.
	if e.policies.UnreachableBodies && md.Body != nil && !md.IsStatic() && !md.IsConstructor() &&
		!td.IsInterface() && !e.store.IsInstantiated(md.DeclaringType) {
		e.deferred = append(e.deferred, id)
		return
	}
	e.walkBody(id)
}

// walkSignature marks the types and attributes a method declaration uses.
func (e *Engine) walkSignature(id metadata.MethodID, src metadata.Entity) {
	md := e.model.Method(id)
	reason := linker.Because(linker.ReasonSignature, src)
	e.walkTypeRef(md.ReturnType, reason)
	for _, p := range md.Parameters {
		e.walkTypeRef(p.Type, reason)
		e.markAttributes(src, p.Attributes)
	}
	e.markAttributes(src, md.ReturnAttributes)
	e.markAttributes(src, md.Attributes)
	e.walkGenericParameters(src, md.GenericParameters)
}

func (e *Engine) walkGenericParameters(owner metadata.Entity, params []metadata.GenericParameter) {
	reason := linker.Because(linker.ReasonTypeReference, owner)
	for _, gp := range params {
		for _, c := range gp.Constraints {
			e.walkTypeRef(c, reason)
		}
		e.markAttributes(owner, gp.Attributes)
	}
}

// walkBody marks every entity the instructions, locals and handlers of a body
// reference, then runs the reflection recognizer over it.
func (e *Engine) walkBody(id metadata.MethodID) {
	body := e.model.Method(id).Body
	if body == nil {
		return
	}
	src := metadata.MethodEntity(id)
	typeRef := linker.Because(linker.ReasonTypeReference, src)
	for _, local := range body.Locals {
		e.walkTypeRef(local, typeRef)
	}
	for _, h := range body.ExceptionHandlers {
		if h.CatchType != nil {
			e.walkTypeRef(*h.CatchType, typeRef)
		}
	}
	for offset, in := range body.Instructions {
		switch {
		case in.Method != nil:
			e.markMethodRef(id, offset, *in.Method)
		case in.Field != nil:
			e.markFieldRef(id, *in.Field)
		case in.Type != nil:
			e.walkTypeRef(*in.Type, typeRef)
		}
	}
	e.reflect.AnalyzeMethod(id)
}

func (e *Engine) markMethodRef(caller metadata.MethodID, offset int, ref metadata.MethodRef) {
	src := metadata.MethodEntity(caller)
	e.walkTypeRef(ref.DeclaringType, linker.Because(linker.ReasonTypeReference, src))
	target, ok := e.model.ResolveMethod(ref)
	if !ok {
		e.reportUnresolved(diagnostic.CodeUnresolvedMember, linker.Because(linker.ReasonCall, src), ref.String())
		return
	}
	e.MarkEntity(metadata.MethodEntity(target), linker.Because(linker.ReasonCall, src))
	tmd := e.model.Method(target)
	if len(ref.Instantiation) > 0 {
		e.genericArguments(metadata.MethodEntity(target), tmd.GenericParameters, ref.Instantiation, src)
	}
	e.keepAccessPath(caller, ref.DeclaringType, tmd.DeclaringType, tmd.Visibility)
	e.warnRequiresUnreferencedCode(caller, offset, target)
}

func (e *Engine) markFieldRef(caller metadata.MethodID, ref metadata.FieldRef) {
	src := metadata.MethodEntity(caller)
	e.walkTypeRef(ref.DeclaringType, linker.Because(linker.ReasonTypeReference, src))
	f, ok := e.model.ResolveField(ref)
	if !ok {
		e.reportUnresolved(diagnostic.CodeUnresolvedMember, linker.Because(linker.ReasonFieldAccess, src), ref.String())
		return
	}
	e.MarkEntity(metadata.FieldEntity(f), linker.Because(linker.ReasonFieldAccess, src))
	fd := e.model.Field(f)
	e.keepAccessPath(caller, ref.DeclaringType, fd.DeclaringType, fd.Visibility)
}

// warnRequiresUnreferencedCode reports a call into an annotated method unless
// the caller carries the annotation too.
func (e *Engine) warnRequiresUnreferencedCode(caller metadata.MethodID, offset int, target metadata.MethodID) {
	msg, ok := e.store.RequiresUnreferencedCode(target)
	if !ok {
		return
	}
	if _, suppressed := e.store.RequiresUnreferencedCode(caller); suppressed {
		return
	}
	site := reflection.Site{Caller: caller, Offset: offset, Target: e.model.MethodName(target)}
	e.ctx.Diagnostics.Report(diagnostic.CodeRequiresUnreferencedCode, site.Origin(e.model),
		"Using member '%s' which has 'RequiresUnreferencedCodeAttribute' can break functionality when trimming application code. %s",
		site.Target, msg)
}

func (e *Engine) processField(id metadata.FieldID) {
	fd := e.model.Field(id)
	src := metadata.FieldEntity(id)
	e.MarkEntity(metadata.TypeEntity(fd.DeclaringType), linker.Because(linker.ReasonDeclaringType, src))
	e.walkTypeRef(fd.Type, linker.Because(linker.ReasonSignature, src))
	e.markAttributes(src, fd.Attributes)
	if fd.IsStatic() && !fd.IsLiteral() {
		e.markStaticConstructor(fd.DeclaringType, src)
	}
}

func (e *Engine) processProperty(id metadata.PropertyID) {
	pd := e.model.Property(id)
	src := metadata.PropertyEntity(id)
	e.MarkEntity(metadata.TypeEntity(pd.DeclaringType), linker.Because(linker.ReasonDeclaringType, src))
	e.walkTypeRef(pd.Type, linker.Because(linker.ReasonSignature, src))
	e.markAttributes(src, pd.Attributes)
}

func (e *Engine) processEvent(id metadata.EventID) {
	ed := e.model.Event(id)
	src := metadata.EventEntity(id)
	e.MarkEntity(metadata.TypeEntity(ed.DeclaringType), linker.Because(linker.ReasonDeclaringType, src))
	e.walkTypeRef(ed.Type, linker.Because(linker.ReasonSignature, src))
	e.markAttributes(src, ed.Attributes)
}

// walkTypeRef marks the definitions a type reference names, including generic
// arguments, element types and the forwarders resolution went through.
func (e *Engine) walkTypeRef(ref metadata.TypeRef, reason linker.Reason) {
	switch ref.Kind {
	case metadata.RefNamed:
		id, used, ok := e.model.ResolveTypeVia(ref)
		for _, fw := range used {
			if e.store.MarkExportedType(fw) {
				e.progress = true
			}
			e.MarkEntity(metadata.AssemblyEntity(fw.Assembly), linker.Reason{Kind: linker.ReasonForwarder, Source: reason.Source})
		}
		if !ok {
			e.reportUnresolved(diagnostic.CodeUnresolvedType, reason, ref.String())
			return
		}
		e.MarkEntity(metadata.TypeEntity(id), reason)
	case metadata.RefGenericInstance:
		e.walkTypeRef(*ref.Element, reason)
		src, _ := reason.SourceEntity()
		def, ok := e.model.ResolveType(ref)
		if !ok {
			return
		}
		e.genericArguments(metadata.TypeEntity(def), e.model.Type(def).GenericParameters, ref.Args, src)
	case metadata.RefArray, metadata.RefPointer, metadata.RefByRef:
		e.walkTypeRef(*ref.Element, reason)
	}
}

// genericArguments marks the arguments bound to the generic parameters of
// owner, the default constructors new() constraints need, and the members the
// parameters' dynamically accessed annotations require.
func (e *Engine) genericArguments(owner metadata.Entity, params []metadata.GenericParameter, args []metadata.TypeRef, src metadata.Entity) {
	reason := linker.Because(linker.ReasonGenericArgument, src)
	if !src.IsValid() {
		reason = linker.Because(linker.ReasonGenericArgument, owner)
	}
	for i, arg := range args {
		e.walkTypeRef(arg, reason)
		if i >= len(params) {
			continue
		}
		t, ok := e.model.ResolveType(arg)
		if !ok {
			continue
		}
		if params[i].DefaultCtorConstraint {
			if ctor, ok := e.model.DefaultConstructor(t); ok {
				e.MarkEntity(metadata.MethodEntity(ctor), reason)
			}
		}
		if dam := e.store.GenericParamDAM(annotations.GenericParamRef{Owner: owner, Position: i}); dam != annotations.DAMNone {
			e.MarkEntity(metadata.TypeEntity(t), reason)
			e.markAll(reflection.Members(e.model, t, dam), linker.Because(linker.ReasonDynamicallyAccessed, owner))
		}
	}
}

// instantiate records that objects of t exist. Base types become instantiated
// too since every object of t is also one of its bases.
func (e *Engine) instantiate(t metadata.TypeID, src metadata.Entity) {
	chain := append([]metadata.TypeID{t}, e.store.GetClassHierarchy(t)...)
	for _, id := range chain {
		if !e.store.MarkInstantiated(id) {
			continue
		}
		e.progress = true
		e.MarkEntity(metadata.TypeEntity(id), linker.Because(linker.ReasonInstantiation, src))
		e.keepBase(id, metadata.TypeEntity(id))
		e.markStaticConstructor(id, src)
		if ctor, ok := reflection.SerializationConstructor(e.model, id); ok {
			e.MarkEntity(metadata.MethodEntity(ctor), linker.Because(linker.ReasonPattern, metadata.TypeEntity(id)))
		}
		e.restoreConverted(id)
	}
}

func (e *Engine) markStaticConstructor(t metadata.TypeID, src metadata.Entity) {
	if cctor, ok := e.model.StaticConstructor(t); ok {
		e.MarkEntity(metadata.MethodEntity(cctor), linker.Because(linker.ReasonStaticConstructor, src))
	}
}

// markRewriteDependencies marks what the replacement body of a rewritten method
// calls instead of walking the original body.
func (e *Engine) markRewriteDependencies(id metadata.MethodID, action annotations.MethodAction) {
	src := metadata.MethodEntity(id)
	reason := linker.Because(linker.ReasonRewrite, src)
	switch action {
	case annotations.MethodConvertToThrow:
		if ctor, ok := e.throwHelper(); ok {
			e.MarkEntity(metadata.MethodEntity(ctor), reason)
		}
	case annotations.MethodConvertToStub:
		md := e.model.Method(id)
		if !md.IsConstructor() {
			return
		}
		if base, ok := e.model.BaseType(md.DeclaringType); ok {
			if ctor, ok := e.model.DefaultConstructor(base); ok {
				e.MarkEntity(metadata.MethodEntity(ctor), reason)
			}
		}
	}
}

// throwHelper finds NotSupportedException(string) in the core library.
func (e *Engine) throwHelper() (metadata.MethodID, bool) {
	t, ok := e.model.ResolveType(metadata.Named("", metadata.TypeNotSupportedException))
	if !ok {
		return metadata.NoMethod, false
	}
	for _, ctor := range e.model.Constructors(t) {
		params := e.model.Method(ctor).Parameters
		if len(params) == 1 && params[0].Type.Is(metadata.TypeString) {
			return ctor, true
		}
	}
	return metadata.NoMethod, false
}

func (e *Engine) markAll(entities []metadata.Entity, reason linker.Reason) {
	for _, ent := range entities {
		e.MarkEntity(ent, reason)
	}
}
