package metadata

import (
	"errors"
	"fmt"
	"strings"

	"gonum.org/v1/gonum/graph"
	"gonum.org/v1/gonum/graph/simple"
	"gonum.org/v1/gonum/graph/topo"
)

// Builder constructs a Model. It is used by the document loader and by tests.
type Builder struct {
	m    *Model
	errs []error
}

// NewBuilder returns an empty builder.
func NewBuilder() *Builder {
	return &Builder{m: &Model{
		asmByName:   make(map[string]AssemblyID),
		typesByName: make(map[AssemblyID]map[string]TypeID),
	}}
}

// Assembly returns the builder for the named assembly, creating it on first use.
func (b *Builder) Assembly(name string) *AssemblyBuilder {
	if id, ok := b.m.asmByName[name]; ok {
		return &AssemblyBuilder{b: b, a: b.m.Assemblies[id]}
	}
	a := &Assembly{ID: AssemblyID(len(b.m.Assemblies)), Name: name}
	b.m.Assemblies = append(b.m.Assemblies, a)
	b.m.asmByName[name] = a.ID
	b.m.typesByName[a.ID] = make(map[string]TypeID)
	return &AssemblyBuilder{b: b, a: a}
}

// Build validates the model and returns it. The type hierarchy must be acyclic.
func (b *Builder) Build() (*Model, error) {
	if len(b.errs) > 0 {
		return nil, errors.Join(b.errs...)
	}
	if err := checkHierarchy(b.m); err != nil {
		return nil, err
	}
	return b.m, nil
}

func (b *Builder) fail(format string, args ...any) {
	b.errs = append(b.errs, fmt.Errorf(format, args...))
}

// checkHierarchy rejects base type and interface cycles.
func checkHierarchy(m *Model) error {
	g := simple.NewDirectedGraph()
	for i := range m.Types {
		g.AddNode(simple.Node(i))
	}
	addEdge := func(from TypeID, ref TypeRef) error {
		to, ok := m.ResolveType(ref)
		if !ok {
			return nil
		}
		if to == from {
			return fmt.Errorf("type hierarchy cycle: %s", m.Types[from].FullName)
		}
		g.SetEdge(g.NewEdge(simple.Node(from), simple.Node(to)))
		return nil
	}
	for i, t := range m.Types {
		if t.BaseType != nil {
			if err := addEdge(TypeID(i), *t.BaseType); err != nil {
				return err
			}
		}
		for _, impl := range t.Interfaces {
			if err := addEdge(TypeID(i), impl.Interface); err != nil {
				return err
			}
		}
	}
	if _, err := topo.Sort(g); err != nil {
		var cycles topo.Unorderable
		if errors.As(err, &cycles) && len(cycles) > 0 {
			return fmt.Errorf("type hierarchy cycle: %s", cycleNames(m, cycles[0]))
		}
		return fmt.Errorf("type hierarchy: %w", err)
	}
	return nil
}

func cycleNames(m *Model, nodes []graph.Node) string {
	names := make([]string, len(nodes))
	for i, n := range nodes {
		names[i] = m.Types[n.ID()].FullName
	}
	return strings.Join(names, " -> ")
}

// AssemblyBuilder adds content to one assembly.
type AssemblyBuilder struct {
	b *Builder
	a *Assembly
}

// ID returns the assembly index.
func (ab *AssemblyBuilder) ID() AssemblyID { return ab.a.ID }

// Def returns the assembly definition under construction.
func (ab *AssemblyBuilder) Def() *Assembly { return ab.a }

// Reference records references to other assemblies.
func (ab *AssemblyBuilder) Reference(names ...string) *AssemblyBuilder {
	ab.a.References = append(ab.a.References, names...)
	return ab
}

// EntryPoint sets the assembly entry point.
func (ab *AssemblyBuilder) EntryPoint(ref MethodRef) *AssemblyBuilder {
	ab.a.EntryPoint = &ref
	return ab
}

// Forward adds an exported type entry forwarding fullName to target.
func (ab *AssemblyBuilder) Forward(fullName, target string) *AssemblyBuilder {
	ab.a.Exported = append(ab.a.Exported, ExportedType{FullName: fullName, Target: target})
	return ab
}

// Attr attaches an assembly-level custom attribute.
func (ab *AssemblyBuilder) Attr(ca CustomAttribute) *AssemblyBuilder {
	ab.a.Attributes = append(ab.a.Attributes, ca)
	return ab
}

// Type adds a top-level type without base type or flags.
func (ab *AssemblyBuilder) Type(namespace, name string) *TypeBuilder {
	return ab.newType(namespace, name, NoType)
}

// Class adds a public class deriving from System.Object.
func (ab *AssemblyBuilder) Class(namespace, name string) *TypeBuilder {
	return ab.Type(namespace, name).Extends(Named("", TypeObject))
}

// Interface adds a public interface.
func (ab *AssemblyBuilder) Interface(namespace, name string) *TypeBuilder {
	return ab.Type(namespace, name).WithFlags(TypeInterface | TypeAbstract)
}

// Struct adds a public value type.
func (ab *AssemblyBuilder) Struct(namespace, name string) *TypeBuilder {
	return ab.Type(namespace, name).WithFlags(TypeValueTypeFlag | TypeSealed).Extends(Named("", TypeValueType))
}

func (ab *AssemblyBuilder) newType(namespace, name string, declaring TypeID) *TypeBuilder {
	m := ab.b.m
	t := &Type{
		ID:            TypeID(len(m.Types)),
		Assembly:      ab.a.ID,
		Namespace:     namespace,
		Name:          name,
		DeclaringType: declaring,
		Visibility:    VisibilityPublic,
	}
	switch {
	case declaring != NoType:
		t.FullName = m.Types[declaring].FullName + "/" + name
	case namespace != "":
		t.FullName = namespace + "." + name
	default:
		t.FullName = name
	}
	if _, dup := m.typesByName[ab.a.ID][t.FullName]; dup {
		ab.b.fail("assembly %s: duplicate type %s", ab.a.Name, t.FullName)
	}
	m.Types = append(m.Types, t)
	m.typesByName[ab.a.ID][t.FullName] = t.ID
	if declaring == NoType {
		ab.a.Types = append(ab.a.Types, t.ID)
	} else {
		m.Types[declaring].NestedTypes = append(m.Types[declaring].NestedTypes, t.ID)
	}
	return &TypeBuilder{ab: ab, t: t}
}

// TypeBuilder adds content to one type.
type TypeBuilder struct {
	ab *AssemblyBuilder
	t  *Type
}

// ID returns the type index.
func (tb *TypeBuilder) ID() TypeID { return tb.t.ID }

// Def returns the type definition under construction.
func (tb *TypeBuilder) Def() *Type { return tb.t }

// Ref returns a reference to the (open) type definition.
func (tb *TypeBuilder) Ref() TypeRef { return Named(tb.ab.a.Name, tb.t.FullName) }

// Extends sets the base type.
func (tb *TypeBuilder) Extends(base TypeRef) *TypeBuilder {
	tb.t.BaseType = &base
	return tb
}

// NoBase clears the base type.
func (tb *TypeBuilder) NoBase() *TypeBuilder {
	tb.t.BaseType = nil
	return tb
}

// Implements adds interface implementation edges.
func (tb *TypeBuilder) Implements(ifaces ...TypeRef) *TypeBuilder {
	for _, i := range ifaces {
		tb.t.Interfaces = append(tb.t.Interfaces, InterfaceImpl{Interface: i})
	}
	return tb
}

// WithFlags sets additional type flags.
func (tb *TypeBuilder) WithFlags(f TypeFlags) *TypeBuilder {
	tb.t.Flags |= f
	return tb
}

// WithVisibility sets the type visibility.
func (tb *TypeBuilder) WithVisibility(v Visibility) *TypeBuilder {
	tb.t.Visibility = v
	return tb
}

// Generic declares generic parameters in order.
func (tb *TypeBuilder) Generic(names ...string) *TypeBuilder {
	for _, n := range names {
		tb.t.GenericParameters = append(tb.t.GenericParameters, GenericParameter{
			Name:     n,
			Position: len(tb.t.GenericParameters),
		})
	}
	return tb
}

// Attr attaches a custom attribute.
func (tb *TypeBuilder) Attr(ca CustomAttribute) *TypeBuilder {
	tb.t.Attributes = append(tb.t.Attributes, ca)
	return tb
}

// Nested adds a nested class deriving from System.Object.
func (tb *TypeBuilder) Nested(name string) *TypeBuilder {
	return tb.ab.newType("", name, tb.t.ID).Extends(Named("", TypeObject))
}

// NestedType adds a nested type without base type or flags.
func (tb *TypeBuilder) NestedType(name string) *TypeBuilder {
	return tb.ab.newType("", name, tb.t.ID)
}

// Method adds a public instance method without body.
func (tb *TypeBuilder) Method(name string, ret TypeRef, params ...TypeRef) *MethodBuilder {
	m := tb.ab.b.m
	md := &Method{
		ID:            MethodID(len(m.Methods)),
		DeclaringType: tb.t.ID,
		Name:          name,
		Visibility:    VisibilityPublic,
		ReturnType:    ret,
	}
	for i, p := range params {
		md.Parameters = append(md.Parameters, Parameter{Name: fmt.Sprintf("p%d", i), Type: p})
	}
	m.Methods = append(m.Methods, md)
	tb.t.Methods = append(tb.t.Methods, md.ID)
	return &MethodBuilder{tb: tb, m: md}
}

// Ctor adds a public instance constructor.
func (tb *TypeBuilder) Ctor(params ...TypeRef) *MethodBuilder {
	mb := tb.Method(CtorName, VoidRef(), params...)
	mb.m.Flags |= MethodSpecialName
	return mb
}

// StaticCtor adds the type initializer.
func (tb *TypeBuilder) StaticCtor() *MethodBuilder {
	mb := tb.Method(StaticCtorName, VoidRef())
	mb.m.Flags |= MethodSpecialName | MethodStatic
	mb.m.Visibility = VisibilityPrivate
	return mb
}

// Field adds a public instance field.
func (tb *TypeBuilder) Field(name string, typ TypeRef) *FieldBuilder {
	m := tb.ab.b.m
	fd := &Field{
		ID:            FieldID(len(m.Fields)),
		DeclaringType: tb.t.ID,
		Name:          name,
		Visibility:    VisibilityPublic,
		Type:          typ,
	}
	m.Fields = append(m.Fields, fd)
	tb.t.Fields = append(tb.t.Fields, fd.ID)
	return &FieldBuilder{tb: tb, f: fd}
}

// Property adds a property over existing accessors; either may be nil.
func (tb *TypeBuilder) Property(name string, typ TypeRef, getter, setter *MethodBuilder) *PropertyBuilder {
	m := tb.ab.b.m
	p := &Property{
		ID:            PropertyID(len(m.Properties)),
		DeclaringType: tb.t.ID,
		Name:          name,
		Type:          typ,
		Getter:        NoMethod,
		Setter:        NoMethod,
	}
	owner := PropertyEntity(p.ID)
	if getter != nil {
		p.Getter = tb.accessor(getter, owner)
	}
	if setter != nil {
		p.Setter = tb.accessor(setter, owner)
	}
	m.Properties = append(m.Properties, p)
	tb.t.Properties = append(tb.t.Properties, p.ID)
	return &PropertyBuilder{p: p}
}

// Event adds an event over existing accessors; either may be nil.
func (tb *TypeBuilder) Event(name string, typ TypeRef, add, remove *MethodBuilder) *EventBuilder {
	m := tb.ab.b.m
	ev := &Event{
		ID:            EventID(len(m.Events)),
		DeclaringType: tb.t.ID,
		Name:          name,
		Type:          typ,
		Add:           NoMethod,
		Remove:        NoMethod,
		Raise:         NoMethod,
	}
	owner := EventEntity(ev.ID)
	if add != nil {
		ev.Add = tb.accessor(add, owner)
	}
	if remove != nil {
		ev.Remove = tb.accessor(remove, owner)
	}
	m.Events = append(m.Events, ev)
	tb.t.Events = append(tb.t.Events, ev.ID)
	return &EventBuilder{e: ev}
}

func (tb *TypeBuilder) accessor(mb *MethodBuilder, owner Entity) MethodID {
	if mb.m.DeclaringType != tb.t.ID {
		tb.ab.b.fail("type %s: accessor %s declared on another type", tb.t.FullName, mb.m.Name)
	}
	mb.m.Flags |= MethodSpecialName
	mb.m.Owner = owner
	return mb.m.ID
}

// MethodBuilder adds content to one method.
type MethodBuilder struct {
	tb *TypeBuilder
	m  *Method
}

// ID returns the method index.
func (mb *MethodBuilder) ID() MethodID { return mb.m.ID }

// Def returns the method definition under construction.
func (mb *MethodBuilder) Def() *Method { return mb.m }

// Ref returns a reference to the method through its open declaring type.
func (mb *MethodBuilder) Ref() MethodRef { return mb.RefOn(mb.tb.Ref()) }

// RefOn returns a reference to the method through the given declaring type, typically
// a generic instance of the declaring type.
func (mb *MethodBuilder) RefOn(declaring TypeRef) MethodRef {
	return MethodRef{
		DeclaringType: declaring,
		Name:          mb.m.Name,
		Parameters:    mb.m.ParameterTypes(),
		ReturnType:    mb.m.ReturnType,
		GenericArity:  len(mb.m.GenericParameters),
	}
}

// Static marks the method static.
func (mb *MethodBuilder) Static() *MethodBuilder {
	mb.m.Flags |= MethodStatic
	return mb
}

// Virtual marks the method virtual, reusing an inherited slot.
func (mb *MethodBuilder) Virtual() *MethodBuilder {
	mb.m.Flags |= MethodVirtual
	return mb
}

// NewSlot marks the method virtual in a new slot.
func (mb *MethodBuilder) NewSlot() *MethodBuilder {
	mb.m.Flags |= MethodVirtual | MethodNewSlot
	return mb
}

// Abstract marks the method abstract and virtual.
func (mb *MethodBuilder) Abstract() *MethodBuilder {
	mb.m.Flags |= MethodVirtual | MethodAbstract
	mb.m.Body = nil
	return mb
}

// Final seals a virtual method.
func (mb *MethodBuilder) Final() *MethodBuilder {
	mb.m.Flags |= MethodFinal
	return mb
}

// WithVisibility sets the method visibility.
func (mb *MethodBuilder) WithVisibility(v Visibility) *MethodBuilder {
	mb.m.Visibility = v
	return mb
}

// WithImpl sets implementation flags.
func (mb *MethodBuilder) WithImpl(f ImplFlags) *MethodBuilder {
	mb.m.Impl |= f
	return mb
}

// Generic declares method generic parameters in order.
func (mb *MethodBuilder) Generic(names ...string) *MethodBuilder {
	for _, n := range names {
		mb.m.GenericParameters = append(mb.m.GenericParameters, GenericParameter{
			Name:     n,
			Position: len(mb.m.GenericParameters),
		})
	}
	return mb
}

// Overrides records an explicit method implementation.
func (mb *MethodBuilder) Overrides(ref MethodRef) *MethodBuilder {
	mb.m.Overrides = append(mb.m.Overrides, ref)
	return mb
}

// Attr attaches a custom attribute to the method.
func (mb *MethodBuilder) Attr(ca CustomAttribute) *MethodBuilder {
	mb.m.Attributes = append(mb.m.Attributes, ca)
	return mb
}

// ParamAttr attaches a custom attribute to parameter i.
func (mb *MethodBuilder) ParamAttr(i int, ca CustomAttribute) *MethodBuilder {
	if i < 0 || i >= len(mb.m.Parameters) {
		mb.tb.ab.b.fail("method %s: parameter %d out of range", mb.m.Name, i)
		return mb
	}
	mb.m.Parameters[i].Attributes = append(mb.m.Parameters[i].Attributes, ca)
	return mb
}

// ReturnAttr attaches a custom attribute to the return value.
func (mb *MethodBuilder) ReturnAttr(ca CustomAttribute) *MethodBuilder {
	mb.m.ReturnAttributes = append(mb.m.ReturnAttributes, ca)
	return mb
}

// GenericParamAttr attaches a custom attribute to method generic parameter i.
func (mb *MethodBuilder) GenericParamAttr(i int, ca CustomAttribute) *MethodBuilder {
	if i < 0 || i >= len(mb.m.GenericParameters) {
		mb.tb.ab.b.fail("method %s: generic parameter %d out of range", mb.m.Name, i)
		return mb
	}
	mb.m.GenericParameters[i].Attributes = append(mb.m.GenericParameters[i].Attributes, ca)
	return mb
}

// Body sets the instruction stream.
func (mb *MethodBuilder) Body(instrs ...Instruction) *MethodBuilder {
	mb.body().Instructions = instrs
	return mb
}

// Locals declares local variable types.
func (mb *MethodBuilder) Locals(types ...TypeRef) *MethodBuilder {
	body := mb.body()
	body.Locals = append(body.Locals, types...)
	body.InitLocals = true
	return mb
}

// Handler adds an exception handling clause.
func (mb *MethodBuilder) Handler(eh ExceptionHandler) *MethodBuilder {
	body := mb.body()
	body.ExceptionHandlers = append(body.ExceptionHandlers, eh)
	return mb
}

// Debug attaches debug information.
func (mb *MethodBuilder) Debug(d DebugInfo) *MethodBuilder {
	mb.body().Debug = &d
	return mb
}

func (mb *MethodBuilder) body() *MethodBody {
	if mb.m.Body == nil {
		mb.m.Body = &MethodBody{}
	}
	return mb.m.Body
}

// FieldBuilder adds content to one field.
type FieldBuilder struct {
	tb *TypeBuilder
	f  *Field
}

// ID returns the field index.
func (fb *FieldBuilder) ID() FieldID { return fb.f.ID }

// Def returns the field definition under construction.
func (fb *FieldBuilder) Def() *Field { return fb.f }

// Ref returns a reference to the field through its declaring type.
func (fb *FieldBuilder) Ref() FieldRef {
	return FieldRef{DeclaringType: fb.tb.Ref(), Name: fb.f.Name, Type: fb.f.Type}
}

// Static marks the field static.
func (fb *FieldBuilder) Static() *FieldBuilder {
	fb.f.Flags |= FieldStatic
	return fb
}

// Literal marks the field a static constant.
func (fb *FieldBuilder) Literal() *FieldBuilder {
	fb.f.Flags |= FieldStatic | FieldLiteral
	return fb
}

// WithVisibility sets the field visibility.
func (fb *FieldBuilder) WithVisibility(v Visibility) *FieldBuilder {
	fb.f.Visibility = v
	return fb
}

// Attr attaches a custom attribute.
func (fb *FieldBuilder) Attr(ca CustomAttribute) *FieldBuilder {
	fb.f.Attributes = append(fb.f.Attributes, ca)
	return fb
}

// PropertyBuilder adds content to one property.
type PropertyBuilder struct{ p *Property }

// ID returns the property index.
func (pb *PropertyBuilder) ID() PropertyID { return pb.p.ID }

// Attr attaches a custom attribute.
func (pb *PropertyBuilder) Attr(ca CustomAttribute) *PropertyBuilder {
	pb.p.Attributes = append(pb.p.Attributes, ca)
	return pb
}

// EventBuilder adds content to one event.
type EventBuilder struct{ e *Event }

// ID returns the event index.
func (eb *EventBuilder) ID() EventID { return eb.e.ID }

// Attr attaches a custom attribute.
func (eb *EventBuilder) Attr(ca CustomAttribute) *EventBuilder {
	eb.e.Attributes = append(eb.e.Attributes, ca)
	return eb
}
