// Package annotations holds the mutable ledger of a link: marks, processed bits,
// actions, override relationships and per-entity annotations. Every setter is
// idempotent and nothing is ever unmarked.
package annotations

import (
	"sort"

	"github.com/panbanda/iltrim/pkg/metadata"
)

// InterfaceImplRef names one interface implementation edge of a type.
type InterfaceImplRef struct {
	Type  metadata.TypeID
	Index int
}

// OverrideInformation is an override triple. InterfaceImpl is set when the
// override satisfies an interface slot through that implementation edge.
type OverrideInformation struct {
	Base          metadata.MethodID
	Override      metadata.MethodID
	InterfaceImpl *InterfaceImplRef
}

// IsInterfaceSlot reports whether the base method is declared on an interface.
func (o OverrideInformation) IsInterfaceSlot() bool { return o.InterfaceImpl != nil }

// ParamRef names a method parameter by position.
type ParamRef struct {
	Method metadata.MethodID
	Index  int
}

// GenericParamRef names a generic parameter of a type or method.
type GenericParamRef struct {
	Owner    metadata.Entity
	Position int
}

type customKey struct {
	key   any
	owner any
}

// Store is the annotation ledger. It is created per link and passed explicitly.
type Store struct {
	model *metadata.Model

	marked       [kindCount]*BitSet
	processed    [kindCount]*BitSet
	public       [kindCount]*BitSet
	instantiated *BitSet
	baseKept     *BitSet

	interfaceImpls map[InterfaceImplRef]bool
	exported       map[metadata.ForwarderUse]bool

	assemblyActions map[metadata.AssemblyID]AssemblyAction
	methodActions   map[metadata.MethodID]MethodAction
	stubValues      map[metadata.MethodID]metadata.AttributeArg
	fieldValues     map[metadata.FieldID]metadata.AttributeArg

	overrides        map[metadata.MethodID][]OverrideInformation
	baseMethods      map[metadata.MethodID][]metadata.MethodID
	defaultImpls     map[metadata.MethodID][]OverrideInformation
	preserve         map[metadata.TypeID]PreserveKind
	preservedMethods map[metadata.TypeID][]metadata.MethodID
	dependencies     map[metadata.Entity][]metadata.Entity

	typeDAM    map[metadata.TypeID]DAMTypes
	paramDAM   map[ParamRef]DAMTypes
	returnDAM  map[metadata.MethodID]DAMTypes
	fieldDAM   map[metadata.FieldID]DAMTypes
	genericDAM map[GenericParamRef]DAMTypes
	requiresRU map[metadata.MethodID]string

	hierarchy         map[metadata.TypeID][]metadata.TypeID
	derivedTypes      map[metadata.TypeID][]metadata.TypeID
	derivedInterfaces map[metadata.TypeID][]metadata.TypeID

	custom map[customKey]any
}

// kindCount sizes the per-kind arrays; index 0 is unused.
const kindCount = int(metadata.KindEvent) + 1

// NewStore creates an empty ledger over m.
func NewStore(m *metadata.Model) *Store {
	s := &Store{
		model:            m,
		instantiated:     NewBitSet(),
		baseKept:         NewBitSet(),
		interfaceImpls:   make(map[InterfaceImplRef]bool),
		exported:         make(map[metadata.ForwarderUse]bool),
		assemblyActions:  make(map[metadata.AssemblyID]AssemblyAction),
		methodActions:    make(map[metadata.MethodID]MethodAction),
		stubValues:       make(map[metadata.MethodID]metadata.AttributeArg),
		fieldValues:      make(map[metadata.FieldID]metadata.AttributeArg),
		overrides:        make(map[metadata.MethodID][]OverrideInformation),
		baseMethods:      make(map[metadata.MethodID][]metadata.MethodID),
		defaultImpls:     make(map[metadata.MethodID][]OverrideInformation),
		preserve:         make(map[metadata.TypeID]PreserveKind),
		preservedMethods: make(map[metadata.TypeID][]metadata.MethodID),
		dependencies:     make(map[metadata.Entity][]metadata.Entity),
		typeDAM:          make(map[metadata.TypeID]DAMTypes),
		paramDAM:         make(map[ParamRef]DAMTypes),
		returnDAM:        make(map[metadata.MethodID]DAMTypes),
		fieldDAM:         make(map[metadata.FieldID]DAMTypes),
		genericDAM:       make(map[GenericParamRef]DAMTypes),
		requiresRU:       make(map[metadata.MethodID]string),
		hierarchy:        make(map[metadata.TypeID][]metadata.TypeID),
		custom:           make(map[customKey]any),
	}
	for _, k := range metadata.Kinds {
		s.marked[k] = NewBitSet()
		s.processed[k] = NewBitSet()
		s.public[k] = NewBitSet()
	}
	return s
}

// Model returns the model the store annotates.
func (s *Store) Model() *metadata.Model { return s.model }

// Mark records e as required and reports whether this is the first time.
func (s *Store) Mark(e metadata.Entity) bool {
	return s.marked[e.Kind].Set(e.ID)
}

// IsMarked reports whether e is required.
func (s *Store) IsMarked(e metadata.Entity) bool {
	return s.marked[e.Kind].IsSet(e.ID)
}

// MarkProcessed records that the dependencies of e were walked. It reports
// whether this is the first time.
func (s *Store) MarkProcessed(e metadata.Entity) bool {
	return s.processed[e.Kind].Set(e.ID)
}

// IsProcessed reports whether the dependencies of e were walked.
func (s *Store) IsProcessed(e metadata.Entity) bool {
	return s.processed[e.Kind].IsSet(e.ID)
}

// Marked returns the marked indices of kind k in ascending order.
func (s *Store) Marked(k metadata.Kind) []uint32 {
	return s.marked[k].Indices()
}

// MarkedCount returns how many entities of kind k are marked.
func (s *Store) MarkedCount(k metadata.Kind) int {
	return int(s.marked[k].Count())
}

// MarkedSet exposes the marks of kind k for comparisons.
func (s *Store) MarkedSet(k metadata.Kind) *BitSet {
	return s.marked[k]
}

// SetPublic flags e as part of the public API surface.
func (s *Store) SetPublic(e metadata.Entity) {
	s.public[e.Kind].Set(e.ID)
}

// IsPublic reports whether e was flagged public.
func (s *Store) IsPublic(e metadata.Entity) bool {
	return s.public[e.Kind].IsSet(e.ID)
}

// MarkInstantiated records that objects of exactly t can exist.
func (s *Store) MarkInstantiated(t metadata.TypeID) bool {
	return s.instantiated.Set(uint32(t))
}

// IsInstantiated reports whether t can be constructed.
func (s *Store) IsInstantiated(t metadata.TypeID) bool {
	return s.instantiated.IsSet(uint32(t))
}

// MarkBaseTypeKept records that the base type edge of t stays in the output.
func (s *Store) MarkBaseTypeKept(t metadata.TypeID) bool {
	return s.baseKept.Set(uint32(t))
}

// IsBaseTypeKept reports whether the base type edge of t stays.
func (s *Store) IsBaseTypeKept(t metadata.TypeID) bool {
	return s.baseKept.IsSet(uint32(t))
}

// MarkInterfaceImpl keeps an interface implementation edge.
func (s *Store) MarkInterfaceImpl(ref InterfaceImplRef) bool {
	if s.interfaceImpls[ref] {
		return false
	}
	s.interfaceImpls[ref] = true
	return true
}

// IsInterfaceImplMarked reports whether an interface implementation edge stays.
func (s *Store) IsInterfaceImplMarked(ref InterfaceImplRef) bool {
	return s.interfaceImpls[ref]
}

// MarkExportedType keeps a forwarder entry.
func (s *Store) MarkExportedType(ref metadata.ForwarderUse) bool {
	if s.exported[ref] {
		return false
	}
	s.exported[ref] = true
	return true
}

// IsExportedTypeMarked reports whether a forwarder entry stays.
func (s *Store) IsExportedTypeMarked(ref metadata.ForwarderUse) bool {
	return s.exported[ref]
}

// SetAction assigns an action to asm unless one was already assigned. It reports
// whether the assignment took effect.
func (s *Store) SetAction(asm metadata.AssemblyID, a AssemblyAction) bool {
	if _, ok := s.assemblyActions[asm]; ok || a == ActionUnset {
		return false
	}
	s.assemblyActions[asm] = a
	return true
}

// OverrideAction replaces the action of asm.
func (s *Store) OverrideAction(asm metadata.AssemblyID, a AssemblyAction) {
	s.assemblyActions[asm] = a
}

// GetAction returns the action of asm, or ActionUnset.
func (s *Store) GetAction(asm metadata.AssemblyID) AssemblyAction {
	return s.assemblyActions[asm]
}

// HasAction reports whether asm has an action.
func (s *Store) HasAction(asm metadata.AssemblyID) bool {
	_, ok := s.assemblyActions[asm]
	return ok
}

// SetMethodAction assigns a body action to m.
func (s *Store) SetMethodAction(m metadata.MethodID, a MethodAction) {
	if a == MethodNone {
		delete(s.methodActions, m)
		return
	}
	s.methodActions[m] = a
}

// GetMethodAction returns the body action of m.
func (s *Store) GetMethodAction(m metadata.MethodID) MethodAction {
	return s.methodActions[m]
}

// MethodsWithAction returns every method with a body action, ascending.
func (s *Store) MethodsWithAction() []metadata.MethodID {
	out := make([]metadata.MethodID, 0, len(s.methodActions))
	for m := range s.methodActions {
		out = append(out, m)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// SetStubValue records the constant a ConvertToReturn body returns.
func (s *Store) SetStubValue(m metadata.MethodID, v metadata.AttributeArg) {
	s.stubValues[m] = v
}

// GetStubValue returns the recorded return constant of m.
func (s *Store) GetStubValue(m metadata.MethodID) (metadata.AttributeArg, bool) {
	v, ok := s.stubValues[m]
	return v, ok
}

// SetFieldValue records a static value substitution for f.
func (s *Store) SetFieldValue(f metadata.FieldID, v metadata.AttributeArg) {
	s.fieldValues[f] = v
}

// GetFieldValue returns the static value substitution of f.
func (s *Store) GetFieldValue(f metadata.FieldID) (metadata.AttributeArg, bool) {
	v, ok := s.fieldValues[f]
	return v, ok
}

// FieldsWithValue returns every field with a substitution, ascending.
func (s *Store) FieldsWithValue() []metadata.FieldID {
	out := make([]metadata.FieldID, 0, len(s.fieldValues))
	for f := range s.fieldValues {
		out = append(out, f)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// AddOverride records that override occupies the slot of base.
func (s *Store) AddOverride(base, override metadata.MethodID, impl *InterfaceImplRef) {
	info := OverrideInformation{Base: base, Override: override, InterfaceImpl: impl}
	for _, existing := range s.overrides[base] {
		if sameOverride(existing, info) {
			return
		}
	}
	s.overrides[base] = append(s.overrides[base], info)
}

func sameOverride(a, b OverrideInformation) bool {
	if a.Base != b.Base || a.Override != b.Override {
		return false
	}
	if a.InterfaceImpl == nil || b.InterfaceImpl == nil {
		return a.InterfaceImpl == nil && b.InterfaceImpl == nil
	}
	return *a.InterfaceImpl == *b.InterfaceImpl
}

// GetOverrides returns the override triples of base in insertion order.
func (s *Store) GetOverrides(base metadata.MethodID) []OverrideInformation {
	return s.overrides[base]
}

// AddBaseMethod records that override implements base.
func (s *Store) AddBaseMethod(override, base metadata.MethodID) {
	for _, b := range s.baseMethods[override] {
		if b == base {
			return
		}
	}
	s.baseMethods[override] = append(s.baseMethods[override], base)
}

// GetBaseMethods returns the slots override implements.
func (s *Store) GetBaseMethods(override metadata.MethodID) []metadata.MethodID {
	return s.baseMethods[override]
}

// AddDefaultInterfaceImplementation records that a method declared on an interface
// provides the body for base through the given implementation edge.
func (s *Store) AddDefaultInterfaceImplementation(base, impl metadata.MethodID, via InterfaceImplRef) {
	info := OverrideInformation{Base: base, Override: impl, InterfaceImpl: &via}
	for _, existing := range s.defaultImpls[base] {
		if sameOverride(existing, info) {
			return
		}
	}
	s.defaultImpls[base] = append(s.defaultImpls[base], info)
}

// GetDefaultInterfaceImplementations returns interface-declared bodies for base.
func (s *Store) GetDefaultInterfaceImplementations(base metadata.MethodID) []OverrideInformation {
	return s.defaultImpls[base]
}

// SetPreserve joins kind into the preserve obligation of t.
func (s *Store) SetPreserve(t metadata.TypeID, kind PreserveKind) {
	s.preserve[t] = ChoosePreserveActionWhichPreservesTheMost(s.preserve[t], kind)
}

// GetPreserve returns the preserve obligation of t.
func (s *Store) GetPreserve(t metadata.TypeID) (PreserveKind, bool) {
	p, ok := s.preserve[t]
	return p, ok
}

// AddPreservedMethod records that m must be kept whenever t is marked.
func (s *Store) AddPreservedMethod(t metadata.TypeID, m metadata.MethodID) {
	for _, existing := range s.preservedMethods[t] {
		if existing == m {
			return
		}
	}
	s.preservedMethods[t] = append(s.preservedMethods[t], m)
}

// GetPreservedMethods returns the methods kept along with t.
func (s *Store) GetPreservedMethods(t metadata.TypeID) []metadata.MethodID {
	return s.preservedMethods[t]
}

// AddDependency records that marking owner requires target.
func (s *Store) AddDependency(owner, target metadata.Entity) {
	for _, existing := range s.dependencies[owner] {
		if existing == target {
			return
		}
	}
	s.dependencies[owner] = append(s.dependencies[owner], target)
}

// GetDependencies returns the entities owner requires.
func (s *Store) GetDependencies(owner metadata.Entity) []metadata.Entity {
	return s.dependencies[owner]
}

// SetTypeDAM joins an annotation on a type declaration. It also applies to types
// deriving from t.
func (s *Store) SetTypeDAM(t metadata.TypeID, d DAMTypes) {
	s.typeDAM[t] |= d
}

// TypeDAM returns the annotation declared on t.
func (s *Store) TypeDAM(t metadata.TypeID) DAMTypes { return s.typeDAM[t] }

// InheritedTypeDAM returns the annotations declared on t and its base types.
func (s *Store) InheritedTypeDAM(t metadata.TypeID) DAMTypes {
	d := s.typeDAM[t]
	for _, b := range s.GetClassHierarchy(t) {
		d |= s.typeDAM[b]
	}
	return d
}

// SetParamDAM joins an annotation on a method parameter.
func (s *Store) SetParamDAM(p ParamRef, d DAMTypes) { s.paramDAM[p] |= d }

// ParamDAM returns the annotation of a method parameter.
func (s *Store) ParamDAM(p ParamRef) DAMTypes { return s.paramDAM[p] }

// SetReturnDAM joins an annotation on a method return value.
func (s *Store) SetReturnDAM(m metadata.MethodID, d DAMTypes) { s.returnDAM[m] |= d }

// ReturnDAM returns the annotation of a method return value.
func (s *Store) ReturnDAM(m metadata.MethodID) DAMTypes { return s.returnDAM[m] }

// SetFieldDAM joins an annotation on a field.
func (s *Store) SetFieldDAM(f metadata.FieldID, d DAMTypes) { s.fieldDAM[f] |= d }

// FieldDAM returns the annotation of a field.
func (s *Store) FieldDAM(f metadata.FieldID) DAMTypes { return s.fieldDAM[f] }

// SetGenericParamDAM joins an annotation on a generic parameter.
func (s *Store) SetGenericParamDAM(g GenericParamRef, d DAMTypes) { s.genericDAM[g] |= d }

// GenericParamDAM returns the annotation of a generic parameter.
func (s *Store) GenericParamDAM(g GenericParamRef) DAMTypes { return s.genericDAM[g] }

// SetRequiresUnreferencedCode records that calling m may need code the link removes.
func (s *Store) SetRequiresUnreferencedCode(m metadata.MethodID, message string) {
	if _, ok := s.requiresRU[m]; !ok {
		s.requiresRU[m] = message
	}
}

// RequiresUnreferencedCode returns the recorded message for m.
func (s *Store) RequiresUnreferencedCode(m metadata.MethodID) (string, bool) {
	msg, ok := s.requiresRU[m]
	return msg, ok
}

// GetClassHierarchy returns the resolved base types of t, nearest first.
func (s *Store) GetClassHierarchy(t metadata.TypeID) []metadata.TypeID {
	if h, ok := s.hierarchy[t]; ok {
		return h
	}
	h := s.model.BaseChain(t)
	s.hierarchy[t] = h
	return h
}

// DerivedTypes returns every type whose base chain contains t, ascending.
func (s *Store) DerivedTypes(t metadata.TypeID) []metadata.TypeID {
	if s.derivedTypes == nil {
		s.derivedTypes = make(map[metadata.TypeID][]metadata.TypeID)
		for i := range s.model.Types {
			id := metadata.TypeID(i)
			for _, b := range s.GetClassHierarchy(id) {
				s.derivedTypes[b] = append(s.derivedTypes[b], id)
			}
		}
	}
	return s.derivedTypes[t]
}

// DerivedInterfaces returns the interfaces that list iface among their own
// interfaces, ascending.
func (s *Store) DerivedInterfaces(iface metadata.TypeID) []metadata.TypeID {
	if s.derivedInterfaces == nil {
		s.derivedInterfaces = make(map[metadata.TypeID][]metadata.TypeID)
		for i, t := range s.model.Types {
			if !t.IsInterface() {
				continue
			}
			for _, impl := range t.Interfaces {
				if base, ok := s.model.ResolveType(impl.Interface); ok {
					s.derivedInterfaces[base] = append(s.derivedInterfaces[base], metadata.TypeID(i))
				}
			}
		}
	}
	return s.derivedInterfaces[iface]
}

// SetCustomAnnotation stores value for (key, owner). Extension stages use it to
// keep their own per-entity state.
func (s *Store) SetCustomAnnotation(key, owner, value any) {
	s.custom[customKey{key: key, owner: owner}] = value
}

// GetCustomAnnotation returns the value stored for (key, owner).
func (s *Store) GetCustomAnnotation(key, owner any) (any, bool) {
	v, ok := s.custom[customKey{key: key, owner: owner}]
	return v, ok
}
