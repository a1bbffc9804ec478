package mark

import (
	"github.com/panbanda/iltrim/pkg/annotations"
	"github.com/panbanda/iltrim/pkg/diagnostic"
	"github.com/panbanda/iltrim/pkg/linker"
	"github.com/panbanda/iltrim/pkg/metadata"
)

// processPending re-checks work that waits on facts established later: virtual
// slots waiting for an instantiated override type, interface edges waiting for
// their interface, attributes waiting for their type and bodies waiting for
// instantiation. It reports whether anything changed.
func (e *Engine) processPending() bool {
	e.progress = false
	e.markInterfaces()
	e.markOverrides()
	e.markPendingAttributes()
	e.markDeferredBodies()
	if e.progress || e.head < len(e.queue) {
		return true
	}
	e.convertUnreachableBodies()
	return e.progress || e.head < len(e.queue)
}

// markInterfaces keeps an interface edge once the interface is kept and objects
// of the implementing type exist.
func (e *Engine) markInterfaces() {
	for _, t := range e.withInterfaces {
		if !e.store.IsInstantiated(t) {
			continue
		}
		for idx, impl := range e.model.Type(t).Interfaces {
			if e.store.IsInterfaceImplMarked(annotations.InterfaceImplRef{Type: t, Index: idx}) {
				continue
			}
			if iface, ok := e.model.ResolveType(impl.Interface); ok && e.store.IsMarked(metadata.TypeEntity(iface)) {
				e.markInterfaceImpl(t, idx)
			}
		}
	}
}

func (e *Engine) markInterfaceImpl(t metadata.TypeID, idx int) {
	if !e.store.MarkInterfaceImpl(annotations.InterfaceImplRef{Type: t, Index: idx}) {
		return
	}
	e.progress = true
	src := metadata.TypeEntity(t)
	impl := e.model.Type(t).Interfaces[idx]
	e.walkTypeRef(impl.Interface, linker.Because(linker.ReasonInterface, src))
	e.markAttributes(src, impl.Attributes)
}

// markOverrides walks the slots of every marked virtual method. The list grows
// while it is walked.
func (e *Engine) markOverrides() {
	for i := 0; i < len(e.virtuals); i++ {
		base := e.virtuals[i]
		for _, o := range e.types.Slots(base) {
			if e.store.IsMarked(metadata.MethodEntity(o.Override)) || !e.shouldMarkOverride(o) {
				continue
			}
			e.MarkEntity(metadata.MethodEntity(o.Override), linker.Because(linker.ReasonOverride, metadata.MethodEntity(base)))
		}
	}
}

// shouldMarkOverride decides whether a slot of a marked base keeps its
// override. Without a live object of the overriding type nothing can dispatch
// to it, except that a direct override of an abstract method must exist for
// the type to load. A default implementation is needed once an object of the
// implementing type exists, and it brings the interface edge it comes from.
func (e *Engine) shouldMarkOverride(o annotations.OverrideInformation) bool {
	owner := e.model.Method(o.Override).DeclaringType
	if o.IsInterfaceSlot() && e.model.Type(owner).IsInterface() {
		if !e.store.IsInstantiated(o.InterfaceImpl.Type) {
			return false
		}
		e.markInterfaceImpl(o.InterfaceImpl.Type, o.InterfaceImpl.Index)
		return true
	}
	if !e.store.IsMarked(metadata.TypeEntity(owner)) {
		return false
	}
	if o.IsInterfaceSlot() {
		return e.store.IsInterfaceImplMarked(*o.InterfaceImpl)
	}
	if !e.policies.OverrideRemoval || e.store.IsInstantiated(owner) {
		return true
	}
	return e.model.Method(o.Base).IsAbstract()
}

func (e *Engine) markAttributes(owner metadata.Entity, attrs []metadata.CustomAttribute) {
	for _, ca := range attrs {
		if e.policies.UsedAttributesOnly && !e.attributeTypeMarked(ca) {
			e.attributes = append(e.attributes, pendingAttribute{owner: owner, attr: ca})
			continue
		}
		e.markAttribute(owner, ca)
	}
}

func (e *Engine) attributeTypeMarked(ca metadata.CustomAttribute) bool {
	t, ok := e.model.ResolveType(ca.AttributeType())
	if !ok {
		// Unresolved attribute types are reported by markAttribute.
		return !e.ctx.Options.IgnoreUnresolved
	}
	return e.store.IsMarked(metadata.TypeEntity(t))
}

// markAttribute keeps an attribute instance: its constructor, every type its
// arguments name and the properties and fields its named arguments assign.
func (e *Engine) markAttribute(owner metadata.Entity, ca metadata.CustomAttribute) {
	reason := linker.Because(linker.ReasonCustomAttribute, owner)
	ctor, ok := e.model.ResolveMethod(ca.Constructor)
	if !ok {
		e.reportUnresolved(diagnostic.CodeUnresolvedMember, reason, ca.Constructor.String())
		return
	}
	e.MarkEntity(metadata.MethodEntity(ctor), reason)
	for _, arg := range ca.Args {
		for _, t := range arg.TypeRefs() {
			e.walkTypeRef(t, reason)
		}
	}
	attrType := e.model.Method(ctor).DeclaringType
	for _, na := range ca.Named {
		for _, t := range na.Value.TypeRefs() {
			e.walkTypeRef(t, reason)
		}
		if member, ok := e.namedMember(attrType, na.Name, na.IsField); ok {
			e.MarkEntity(member, reason)
		}
	}
}

// namedMember finds the property or field a named attribute argument assigns,
// searching the attribute type and its bases.
func (e *Engine) namedMember(t metadata.TypeID, name string, field bool) (metadata.Entity, bool) {
	for _, id := range append([]metadata.TypeID{t}, e.store.GetClassHierarchy(t)...) {
		td := e.model.Type(id)
		if field {
			if f, ok := e.model.FindField(id, name); ok {
				return metadata.FieldEntity(f), true
			}
			continue
		}
		for _, p := range td.Properties {
			if e.model.Property(p).Name == name {
				return metadata.PropertyEntity(p), true
			}
		}
	}
	return metadata.Entity{}, false
}

func (e *Engine) markPendingAttributes() {
	if len(e.attributes) == 0 {
		return
	}
	waiting := e.attributes[:0]
	var ready []pendingAttribute
	for _, pa := range e.attributes {
		if e.attributeTypeMarked(pa.attr) {
			ready = append(ready, pa)
		} else {
			waiting = append(waiting, pa)
		}
	}
	e.attributes = waiting
	for _, pa := range ready {
		e.progress = true
		e.markAttribute(pa.owner, pa.attr)
	}
}

// markDeferredBodies walks the bodies whose declaring type became instantiated.
func (e *Engine) markDeferredBodies() {
	if len(e.deferred) == 0 {
		return
	}
	waiting := e.deferred[:0]
	var ready []metadata.MethodID
	for _, id := range e.deferred {
		if e.store.IsInstantiated(e.model.Method(id).DeclaringType) {
			ready = append(ready, id)
		} else {
			waiting = append(waiting, id)
		}
	}
	e.deferred = waiting
	for _, id := range ready {
		e.progress = true
		e.walkBody(id)
	}
}

// convertUnreachableBodies runs once nothing else is pending: instance methods
// of types that were never instantiated cannot run and become throwing stubs.
func (e *Engine) convertUnreachableBodies() {
	deferred := e.deferred
	e.deferred = nil
	for _, id := range deferred {
		if e.store.IsInstantiated(e.model.Method(id).DeclaringType) {
			e.walkBody(id)
			continue
		}
		e.store.SetMethodAction(id, annotations.MethodConvertToThrow)
		e.converted[id] = true
		e.progress = true
		e.markRewriteDependencies(id, annotations.MethodConvertToThrow)
	}
}

// restoreConverted undoes the throwing stubs of t once t turns out to be
// instantiated after all.
func (e *Engine) restoreConverted(t metadata.TypeID) {
	for _, id := range e.model.Type(t).Methods {
		if !e.converted[id] {
			continue
		}
		delete(e.converted, id)
		e.store.SetMethodAction(id, annotations.MethodNone)
		e.walkBody(id)
	}
}
