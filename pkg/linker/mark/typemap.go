package mark

import (
	"strconv"

	"github.com/panbanda/iltrim/pkg/annotations"
	"github.com/panbanda/iltrim/pkg/metadata"
)

// VTable is the virtual slot view of one type. Every virtual instance method
// declared on the type or its base types is indexed by name, generic arity and
// parameter types expressed in the type's own generic parameters.
type VTable struct {
	typ     metadata.TypeID
	levels  []level
	methods map[uint64][]slot // signature key -> candidates, nearest first
}

// level is the type itself or one of its ancestors, with the type arguments the
// ancestor is instantiated over in terms of the type's own parameters.
type level struct {
	typ  metadata.TypeID
	args []metadata.TypeRef
}

type slot struct {
	method metadata.MethodID
	params []metadata.TypeRef
	depth  int
}

// Lookup returns the virtual methods with the given signature, nearest
// declaration first.
func (vt *VTable) Lookup(m *metadata.Model, name string, arity int, params []metadata.TypeRef) []metadata.MethodID {
	var out []metadata.MethodID
	for _, s := range vt.lookup(m, name, arity, params) {
		out = append(out, s.method)
	}
	return out
}

func (vt *VTable) lookup(m *metadata.Model, name string, arity int, params []metadata.TypeRef) []slot {
	var out []slot
	for _, s := range vt.methods[slotKey(name, arity, params)] {
		if m.Method(s.method).Name == name && paramsEqual(s.params, params) {
			out = append(out, s)
		}
	}
	return out
}

// interfaceUse is an interface a type implements, directly or through an
// inherited interface, with the implementation edge on the type that brings it.
type interfaceUse struct {
	typ  metadata.TypeID
	args []metadata.TypeRef
	edge int
}

// TypeMap resolves virtual slots and interface maps. The result is recorded in
// the store as override triples, base methods and default interface
// implementations before marking starts.
type TypeMap struct {
	model   *metadata.Model
	store   *annotations.Store
	vtables map[metadata.TypeID]*VTable
}

// NewTypeMap creates a type map over the store's model.
func NewTypeMap(store *annotations.Store) *TypeMap {
	return &TypeMap{
		model:   store.Model(),
		store:   store,
		vtables: make(map[metadata.TypeID]*VTable),
	}
}

// Build maps every type of the model.
func (tm *TypeMap) Build() {
	for i := range tm.model.Types {
		tm.RegisterType(metadata.TypeID(i))
	}
}

// RegisterType records the overrides and interface implementations of t.
func (tm *TypeMap) RegisterType(t metadata.TypeID) {
	td := tm.model.Type(t)
	if td.IsInterface() {
		return
	}
	vt := tm.VTable(t)
	for _, id := range td.Methods {
		md := tm.model.Method(id)
		for _, ref := range md.Overrides {
			tm.mapExplicit(t, id, ref)
		}
		if !md.IsVirtual() || md.IsStatic() || md.Has(metadata.MethodNewSlot) {
			continue
		}
		for _, s := range vt.lookup(tm.model, md.Name, len(md.GenericParameters), md.ParameterTypes()) {
			if s.depth == 0 {
				continue
			}
			tm.store.AddOverride(s.method, id, nil)
			tm.store.AddBaseMethod(id, s.method)
			break
		}
	}
	tm.RegisterImplementations(t)
}

// RegisterImplementations maps every interface method of every interface t
// implements to the method that provides it. A public virtual method inherited
// from a base class that never declared the interface qualifies too.
func (tm *TypeMap) RegisterImplementations(t metadata.TypeID) {
	vt := tm.VTable(t)
	uses := tm.interfaces(t)
	for _, use := range uses {
		via := annotations.InterfaceImplRef{Type: t, Index: use.edge}
		for _, im := range tm.model.Type(use.typ).Methods {
			imd := tm.model.Method(im)
			if !imd.IsVirtual() || imd.IsStatic() {
				continue
			}
			params := inflateAll(imd.ParameterTypes(), use.args)
			if impl, ok := tm.implementation(vt, im, imd, params); ok {
				tm.store.AddOverride(im, impl, &via)
				tm.store.AddBaseMethod(impl, im)
				continue
			}
			tm.defaultImplementations(im, uses, via)
		}
	}
}

// Slots returns the override triples of base followed by its default interface
// implementations.
func (tm *TypeMap) Slots(base metadata.MethodID) []annotations.OverrideInformation {
	overrides := tm.store.GetOverrides(base)
	defaults := tm.store.GetDefaultInterfaceImplementations(base)
	if len(defaults) == 0 {
		return overrides
	}
	out := make([]annotations.OverrideInformation, 0, len(overrides)+len(defaults))
	out = append(out, overrides...)
	return append(out, defaults...)
}

// VTable returns the slot view of t, building it on first use.
func (tm *TypeMap) VTable(t metadata.TypeID) *VTable {
	if vt, ok := tm.vtables[t]; ok {
		return vt
	}
	vt := &VTable{
		typ:     t,
		levels:  tm.levels(t),
		methods: make(map[uint64][]slot),
	}
	for depth, lv := range vt.levels {
		for _, id := range tm.model.Type(lv.typ).Methods {
			md := tm.model.Method(id)
			if !md.IsVirtual() || md.IsStatic() {
				continue
			}
			params := inflateAll(md.ParameterTypes(), lv.args)
			key := slotKey(md.Name, len(md.GenericParameters), params)
			vt.methods[key] = append(vt.methods[key], slot{method: id, params: params, depth: depth})
		}
	}
	tm.vtables[t] = vt
	return vt
}

func (tm *TypeMap) levels(t metadata.TypeID) []level {
	out := []level{{typ: t}}
	seen := map[metadata.TypeID]bool{t: true}
	cur, args := t, []metadata.TypeRef(nil)
	for {
		bt := tm.model.Type(cur).BaseType
		if bt == nil {
			return out
		}
		base, ok := tm.model.ResolveType(*bt)
		if !ok || seen[base] {
			return out
		}
		seen[base] = true
		args = inflateAll(bt.TypeArguments(), args)
		out = append(out, level{typ: base, args: args})
		cur = base
	}
}

// interfaces flattens the interface edges of t, following interfaces that
// extend other interfaces. The first edge that reaches an interface wins.
func (tm *TypeMap) interfaces(t metadata.TypeID) []interfaceUse {
	var out []interfaceUse
	seen := make(map[metadata.TypeID]bool)
	var walk func(ref metadata.TypeRef, args []metadata.TypeRef, edge int)
	walk = func(ref metadata.TypeRef, args []metadata.TypeRef, edge int) {
		ref = metadata.Inflate(ref, args, nil)
		id, ok := tm.model.ResolveType(ref)
		if !ok || seen[id] {
			return
		}
		seen[id] = true
		use := interfaceUse{typ: id, args: ref.TypeArguments(), edge: edge}
		out = append(out, use)
		for _, inner := range tm.model.Type(id).Interfaces {
			walk(inner.Interface, use.args, edge)
		}
	}
	for idx, impl := range tm.model.Type(t).Interfaces {
		walk(impl.Interface, nil, idx)
	}
	return out
}

// mapExplicit records a method impl entry. Interface bases are tied to the edge
// on t that brings the interface.
func (tm *TypeMap) mapExplicit(t metadata.TypeID, id metadata.MethodID, ref metadata.MethodRef) {
	base, ok := tm.model.ResolveMethod(ref)
	if !ok {
		return
	}
	owner := tm.model.Method(base).DeclaringType
	if !tm.model.Type(owner).IsInterface() {
		tm.store.AddOverride(base, id, nil)
		tm.store.AddBaseMethod(id, base)
		return
	}
	for _, use := range tm.interfaces(t) {
		if use.typ == owner {
			tm.store.AddOverride(base, id, &annotations.InterfaceImplRef{Type: t, Index: use.edge})
			tm.store.AddBaseMethod(id, base)
			return
		}
	}
}

// implementation finds the method of vt's type providing im: an explicit
// implementation first, then a public virtual with the same signature.
func (tm *TypeMap) implementation(vt *VTable, im metadata.MethodID, imd *metadata.Method, params []metadata.TypeRef) (metadata.MethodID, bool) {
	for _, lv := range vt.levels {
		for _, id := range tm.model.Type(lv.typ).Methods {
			if tm.explicitlyImplements(id, im) {
				return id, true
			}
		}
	}
	for _, s := range vt.lookup(tm.model, imd.Name, len(imd.GenericParameters), params) {
		if tm.model.Method(s.method).Visibility == metadata.VisibilityPublic {
			return s.method, true
		}
	}
	return metadata.NoMethod, false
}

// defaultImplementations records interface methods that override im from
// another interface of the same type, tied to the edge bringing that interface.
func (tm *TypeMap) defaultImplementations(im metadata.MethodID, uses []interfaceUse, via annotations.InterfaceImplRef) {
	for _, use := range uses {
		for _, id := range tm.model.Type(use.typ).Methods {
			if id != im && tm.explicitlyImplements(id, im) {
				tm.store.AddDefaultInterfaceImplementation(im, id, annotations.InterfaceImplRef{Type: via.Type, Index: use.edge})
			}
		}
	}
}

func (tm *TypeMap) explicitlyImplements(id, base metadata.MethodID) bool {
	for _, ref := range tm.model.Method(id).Overrides {
		if resolved, ok := tm.model.ResolveMethod(ref); ok && resolved == base {
			return true
		}
	}
	return false
}

func slotKey(name string, arity int, params []metadata.TypeRef) uint64 {
	return metadata.SignatureKey(name+"`"+strconv.Itoa(arity), params)
}

func paramsEqual(a, b []metadata.TypeRef) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if !metadata.SignatureEqual(a[i], b[i]) {
			return false
		}
	}
	return true
}

func inflateAll(refs, args []metadata.TypeRef) []metadata.TypeRef {
	out := make([]metadata.TypeRef, len(refs))
	for i, r := range refs {
		out[i] = metadata.Inflate(r, args, nil)
	}
	return out
}
