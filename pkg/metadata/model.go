package metadata

// Visibility is the accessibility of a type or member.
type Visibility uint8

const (
	VisibilityPrivate Visibility = iota
	VisibilityFamilyAndAssembly
	VisibilityAssembly
	VisibilityFamily
	VisibilityFamilyOrAssembly
	VisibilityPublic
)

// IsFamily reports whether derived types may access the member.
func (v Visibility) IsFamily() bool {
	return v == VisibilityFamily || v == VisibilityFamilyOrAssembly || v == VisibilityFamilyAndAssembly
}

func (v Visibility) String() string {
	switch v {
	case VisibilityPrivate:
		return "private"
	case VisibilityFamilyAndAssembly:
		return "famandassem"
	case VisibilityAssembly:
		return "assembly"
	case VisibilityFamily:
		return "family"
	case VisibilityFamilyOrAssembly:
		return "famorassem"
	case VisibilityPublic:
		return "public"
	default:
		return "unknown"
	}
}

// ParseVisibility is the inverse of Visibility.String.
func ParseVisibility(s string) (Visibility, bool) {
	for v := VisibilityPrivate; v <= VisibilityPublic; v++ {
		if v.String() == s {
			return v, true
		}
	}
	return 0, false
}

// TypeFlags are type definition attributes.
type TypeFlags uint16

const (
	TypeInterface TypeFlags = 1 << iota
	TypeAbstract
	TypeSealed
	TypeValueTypeFlag
	TypeEnumFlag
	TypeBeforeFieldInit
	TypeSequentialLayout
	TypeExplicitLayout
)

// MethodFlags are method definition attributes.
type MethodFlags uint16

const (
	MethodStatic MethodFlags = 1 << iota
	MethodVirtual
	MethodAbstract
	MethodNewSlot
	MethodFinal
	MethodSpecialName
	MethodPInvoke
)

// ImplFlags are method implementation attributes.
type ImplFlags uint8

const (
	ImplNoInlining ImplFlags = 1 << iota
	ImplAggressiveInlining
	ImplSynchronized
	ImplInternalCall
)

// FieldFlags are field definition attributes.
type FieldFlags uint8

const (
	FieldStatic FieldFlags = 1 << iota
	FieldLiteral
	FieldInitOnly
)

// ArgKind discriminates custom attribute argument values.
type ArgKind uint8

const (
	ArgNull ArgKind = iota
	ArgString
	ArgInt
	ArgBool
	ArgType
	ArgArray
)

// AttributeArg is a custom attribute argument value together with its declared type.
type AttributeArg struct {
	Kind  ArgKind
	Type  TypeRef
	Str   string
	Int   int64
	Bool  bool
	Typ   *TypeRef
	Elems []AttributeArg
}

// NamedArg is a property or field assignment in a custom attribute blob.
type NamedArg struct {
	Name    string
	IsField bool
	Value   AttributeArg
}

// CustomAttribute is an attribute instance attached to an entity.
type CustomAttribute struct {
	Constructor MethodRef
	Args        []AttributeArg
	Named       []NamedArg
}

// AttributeType returns the attribute class reference.
func (ca CustomAttribute) AttributeType() TypeRef { return ca.Constructor.DeclaringType }

// GenericParameter is a type or method generic parameter.
type GenericParameter struct {
	Name                    string
	Position                int
	Constraints             []TypeRef
	DefaultCtorConstraint   bool
	ReferenceTypeConstraint bool
	Attributes              []CustomAttribute
}

// Assembly is a compilation unit.
type Assembly struct {
	ID         AssemblyID
	Name       string
	MVID       string
	Source     string
	References []string
	EntryPoint *MethodRef
	Types      []TypeID
	Exported   []ExportedType
	Attributes []CustomAttribute
}

// ExportedType forwards a type name to another assembly.
type ExportedType struct {
	FullName string
	Target   string
}

// InterfaceImpl is an interface implementation edge of a type.
type InterfaceImpl struct {
	Interface  TypeRef
	Attributes []CustomAttribute
}

// Type is a type definition.
type Type struct {
	ID                TypeID
	Assembly          AssemblyID
	Namespace         string
	Name              string
	FullName          string
	DeclaringType     TypeID
	Visibility        Visibility
	Flags             TypeFlags
	BaseType          *TypeRef
	Interfaces        []InterfaceImpl
	GenericParameters []GenericParameter
	NestedTypes       []TypeID
	Methods           []MethodID
	Fields            []FieldID
	Properties        []PropertyID
	Events            []EventID
	Attributes        []CustomAttribute
}

// Has reports whether all flags in f are set.
func (t *Type) Has(f TypeFlags) bool { return t.Flags&f == f }

// IsInterface reports whether t is an interface.
func (t *Type) IsInterface() bool { return t.Has(TypeInterface) }

// IsValueType reports whether t is a struct or enum.
func (t *Type) IsValueType() bool { return t.Has(TypeValueTypeFlag) || t.Has(TypeEnumFlag) }

// IsNested reports whether t is declared inside another type.
func (t *Type) IsNested() bool { return t.DeclaringType != NoType }

// Ref returns a reference to t scoped to its assembly name.
func (t *Type) Ref(m *Model) TypeRef {
	return Named(m.Assemblies[t.Assembly].Name, t.FullName)
}

// SelfRef returns t as seen from inside its own definition: generic types are
// instantiated over their own parameters.
func (t *Type) SelfRef(m *Model) TypeRef {
	ref := t.Ref(m)
	if len(t.GenericParameters) == 0 {
		return ref
	}
	args := make([]TypeRef, len(t.GenericParameters))
	for i := range args {
		args[i] = TypeParam(i)
	}
	return GenericInst(ref, args...)
}

// Parameter is a method parameter.
type Parameter struct {
	Name       string
	Type       TypeRef
	Attributes []CustomAttribute
}

// Method is a method definition.
type Method struct {
	ID                MethodID
	DeclaringType     TypeID
	Name              string
	Visibility        Visibility
	Flags             MethodFlags
	Impl              ImplFlags
	Parameters        []Parameter
	ReturnType        TypeRef
	ReturnAttributes  []CustomAttribute
	GenericParameters []GenericParameter
	Overrides         []MethodRef
	Body              *MethodBody
	Attributes        []CustomAttribute
	// Owner is the property or event this method is an accessor of.
	Owner Entity
}

// Has reports whether all flags in f are set.
func (m *Method) Has(f MethodFlags) bool { return m.Flags&f == f }

// IsStatic reports whether m has no this parameter.
func (m *Method) IsStatic() bool { return m.Has(MethodStatic) }

// IsVirtual reports whether m occupies or overrides a vtable slot.
func (m *Method) IsVirtual() bool { return m.Has(MethodVirtual) }

// IsAbstract reports whether m has no implementation.
func (m *Method) IsAbstract() bool { return m.Has(MethodAbstract) }

// IsConstructor reports whether m is an instance constructor.
func (m *Method) IsConstructor() bool { return m.Name == CtorName && !m.IsStatic() }

// IsStaticConstructor reports whether m is a type initializer.
func (m *Method) IsStaticConstructor() bool { return m.Name == StaticCtorName && m.IsStatic() }

// IsDefaultConstructor reports whether m is a parameterless instance constructor.
func (m *Method) IsDefaultConstructor() bool { return m.IsConstructor() && len(m.Parameters) == 0 }

// ParameterTypes returns the declared parameter types.
func (m *Method) ParameterTypes() []TypeRef {
	out := make([]TypeRef, len(m.Parameters))
	for i, p := range m.Parameters {
		out[i] = p.Type
	}
	return out
}

// Field is a field definition.
type Field struct {
	ID            FieldID
	DeclaringType TypeID
	Name          string
	Visibility    Visibility
	Flags         FieldFlags
	Type          TypeRef
	Attributes    []CustomAttribute
}

// IsStatic reports whether f is a static field.
func (f *Field) IsStatic() bool { return f.Flags&FieldStatic != 0 }

// IsLiteral reports whether f is a compile-time constant.
func (f *Field) IsLiteral() bool { return f.Flags&FieldLiteral != 0 }

// Property is a property definition.
type Property struct {
	ID            PropertyID
	DeclaringType TypeID
	Name          string
	Type          TypeRef
	Getter        MethodID
	Setter        MethodID
	Attributes    []CustomAttribute
}

// Accessors returns the accessor methods that exist.
func (p *Property) Accessors() []MethodID {
	var out []MethodID
	if p.Getter != NoMethod {
		out = append(out, p.Getter)
	}
	if p.Setter != NoMethod {
		out = append(out, p.Setter)
	}
	return out
}

// Event is an event definition.
type Event struct {
	ID            EventID
	DeclaringType TypeID
	Name          string
	Type          TypeRef
	Add           MethodID
	Remove        MethodID
	Raise         MethodID
	Attributes    []CustomAttribute
}

// Accessors returns the accessor methods that exist.
func (e *Event) Accessors() []MethodID {
	var out []MethodID
	for _, id := range []MethodID{e.Add, e.Remove, e.Raise} {
		if id != NoMethod {
			out = append(out, id)
		}
	}
	return out
}

// Model holds every loaded entity in per-kind arenas. Indices are stable for the
// lifetime of the model; removal happens by dropping indices from owner lists.
type Model struct {
	Assemblies []*Assembly
	Types      []*Type
	Methods    []*Method
	Fields     []*Field
	Properties []*Property
	Events     []*Event

	asmByName   map[string]AssemblyID
	typesByName map[AssemblyID]map[string]TypeID
}

// Assembly returns the assembly at id.
func (m *Model) Assembly(id AssemblyID) *Assembly { return m.Assemblies[id] }

// Type returns the type at id.
func (m *Model) Type(id TypeID) *Type { return m.Types[id] }

// Method returns the method at id.
func (m *Model) Method(id MethodID) *Method { return m.Methods[id] }

// Field returns the field at id.
func (m *Model) Field(id FieldID) *Field { return m.Fields[id] }

// Property returns the property at id.
func (m *Model) Property(id PropertyID) *Property { return m.Properties[id] }

// Event returns the event at id.
func (m *Model) Event(id EventID) *Event { return m.Events[id] }

// AssemblyByName looks an assembly up by simple name.
func (m *Model) AssemblyByName(name string) (AssemblyID, bool) {
	id, ok := m.asmByName[name]
	return id, ok
}

// TypeByName looks a type up by full name inside one assembly, ignoring forwarders.
func (m *Model) TypeByName(asm AssemblyID, fullName string) (TypeID, bool) {
	id, ok := m.typesByName[asm][fullName]
	return id, ok
}

// AssemblyOf returns the assembly that defines e.
func (m *Model) AssemblyOf(e Entity) AssemblyID {
	switch e.Kind {
	case KindAssembly:
		return AssemblyID(e.ID)
	case KindType:
		return m.Types[e.ID].Assembly
	case KindMethod:
		return m.Types[m.Methods[e.ID].DeclaringType].Assembly
	case KindField:
		return m.Types[m.Fields[e.ID].DeclaringType].Assembly
	case KindProperty:
		return m.Types[m.Properties[e.ID].DeclaringType].Assembly
	case KindEvent:
		return m.Types[m.Events[e.ID].DeclaringType].Assembly
	default:
		return NoAssembly
	}
}

// DeclaringTypeOf returns the declaring type of a member, the enclosing type of a
// nested type, or NoType.
func (m *Model) DeclaringTypeOf(e Entity) TypeID {
	switch e.Kind {
	case KindType:
		return m.Types[e.ID].DeclaringType
	case KindMethod:
		return m.Methods[e.ID].DeclaringType
	case KindField:
		return m.Fields[e.ID].DeclaringType
	case KindProperty:
		return m.Properties[e.ID].DeclaringType
	case KindEvent:
		return m.Events[e.ID].DeclaringType
	default:
		return NoType
	}
}

// AttributesOf returns the custom attributes attached to e.
func (m *Model) AttributesOf(e Entity) []CustomAttribute {
	switch e.Kind {
	case KindAssembly:
		return m.Assemblies[e.ID].Attributes
	case KindType:
		return m.Types[e.ID].Attributes
	case KindMethod:
		return m.Methods[e.ID].Attributes
	case KindField:
		return m.Fields[e.ID].Attributes
	case KindProperty:
		return m.Properties[e.ID].Attributes
	case KindEvent:
		return m.Events[e.ID].Attributes
	default:
		return nil
	}
}

// Count returns how many entities of kind k exist.
func (m *Model) Count(k Kind) int {
	switch k {
	case KindAssembly:
		return len(m.Assemblies)
	case KindType:
		return len(m.Types)
	case KindMethod:
		return len(m.Methods)
	case KindField:
		return len(m.Fields)
	case KindProperty:
		return len(m.Properties)
	case KindEvent:
		return len(m.Events)
	default:
		return 0
	}
}

// AllTypes returns the types of an assembly including nested types, in declaration
// order with each nested type following its enclosing type.
func (m *Model) AllTypes(asm AssemblyID) []TypeID {
	var out []TypeID
	var walk func(ids []TypeID)
	walk = func(ids []TypeID) {
		for _, id := range ids {
			out = append(out, id)
			walk(m.Types[id].NestedTypes)
		}
	}
	walk(m.Assemblies[asm].Types)
	return out
}

// FindMethods returns the methods of t with the given name in declaration order.
func (m *Model) FindMethods(t TypeID, name string) []MethodID {
	var out []MethodID
	for _, id := range m.Types[t].Methods {
		if m.Methods[id].Name == name {
			out = append(out, id)
		}
	}
	return out
}

// FindField returns the field of t with the given name.
func (m *Model) FindField(t TypeID, name string) (FieldID, bool) {
	for _, id := range m.Types[t].Fields {
		if m.Fields[id].Name == name {
			return id, true
		}
	}
	return NoField, false
}

// FindNested returns the nested type of t with the given simple name.
func (m *Model) FindNested(t TypeID, name string) (TypeID, bool) {
	for _, id := range m.Types[t].NestedTypes {
		if m.Types[id].Name == name {
			return id, true
		}
	}
	return NoType, false
}

// StaticConstructor returns the type initializer of t, if any.
func (m *Model) StaticConstructor(t TypeID) (MethodID, bool) {
	for _, id := range m.Types[t].Methods {
		if m.Methods[id].IsStaticConstructor() {
			return id, true
		}
	}
	return NoMethod, false
}

// DefaultConstructor returns the parameterless instance constructor of t, if any.
func (m *Model) DefaultConstructor(t TypeID) (MethodID, bool) {
	for _, id := range m.Types[t].Methods {
		if m.Methods[id].IsDefaultConstructor() {
			return id, true
		}
	}
	return NoMethod, false
}

// Constructors returns every instance constructor of t.
func (m *Model) Constructors(t TypeID) []MethodID {
	var out []MethodID
	for _, id := range m.Types[t].Methods {
		if m.Methods[id].IsConstructor() {
			out = append(out, id)
		}
	}
	return out
}

// MethodRefOf builds a reference to a method definition.
func (m *Model) MethodRefOf(id MethodID) MethodRef {
	md := m.Methods[id]
	return MethodRef{
		DeclaringType: m.Types[md.DeclaringType].Ref(m),
		Name:          md.Name,
		Parameters:    md.ParameterTypes(),
		ReturnType:    md.ReturnType,
		GenericArity:  len(md.GenericParameters),
	}
}

// FieldRefOf builds a reference to a field definition.
func (m *Model) FieldRefOf(id FieldID) FieldRef {
	fd := m.Fields[id]
	return FieldRef{DeclaringType: m.Types[fd.DeclaringType].Ref(m), Name: fd.Name, Type: fd.Type}
}

// Forget drops a removed type from the name index. Its arena slot stays valid.
func (m *Model) Forget(t TypeID) {
	td := m.Types[t]
	delete(m.typesByName[td.Assembly], td.FullName)
}
