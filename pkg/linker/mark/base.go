package mark

import (
	"github.com/panbanda/iltrim/pkg/linker"
	"github.com/panbanda/iltrim/pkg/metadata"
)

// mustKeepBase reports whether the base type edge of t has to stay as soon as t
// is marked. With base type elision an uninstantiated reference type loses its
// base edge unless an instantiation or a member access later needs it.
func (e *Engine) mustKeepBase(t metadata.TypeID) bool {
	if !e.policies.BaseTypeElision {
		return true
	}
	td := e.model.Type(t)
	if td.IsValueType() || td.IsInterface() || e.store.IsInstantiated(t) {
		return true
	}
	base, ok := e.model.BaseType(t)
	return ok && e.model.IsSystemObject(base)
}

// keepBase keeps the base type edge of t.
func (e *Engine) keepBase(t metadata.TypeID, src metadata.Entity) {
	bt := e.model.Type(t).BaseType
	if bt == nil || !e.store.MarkBaseTypeKept(t) {
		return
	}
	e.progress = true
	e.walkTypeRef(*bt, linker.Because(linker.ReasonBaseType, src))
}

// keepAccessPath keeps the base edges a member access relies on. A reference
// through a derived type resolves through the base chain, and a family member
// is only accessible to the caller while the caller still derives from the
// owner.
func (e *Engine) keepAccessPath(caller metadata.MethodID, through metadata.TypeRef, owner metadata.TypeID, vis metadata.Visibility) {
	if from, ok := e.model.ResolveType(through); ok && from != owner {
		e.keepBaseChain(from, owner)
	}
	if vis.IsFamily() {
		e.keepBaseChain(e.model.Method(caller).DeclaringType, owner)
	}
}

// keepBaseChain keeps every base edge from "from" up to "to". Value types have
// no rewritable base, and a chain ending at the universal base needs nothing
// since a dropped edge is rewritten to it anyway.
func (e *Engine) keepBaseChain(from, to metadata.TypeID) {
	if from == to || e.model.Type(from).IsValueType() || e.model.IsSystemObject(to) {
		return
	}
	if !e.model.IsSubclassOf(from, to) {
		return
	}
	for cur := from; cur != to; {
		e.keepBase(cur, metadata.TypeEntity(cur))
		next, ok := e.model.BaseType(cur)
		if !ok {
			return
		}
		cur = next
	}
}
