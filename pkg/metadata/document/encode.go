package document

import (
	"github.com/panbanda/iltrim/pkg/metadata"
	"github.com/panbanda/iltrim/pkg/metadata/typename"
)

// Encode projects one assembly of m back into a document.
func Encode(m *metadata.Model, asm metadata.AssemblyID) *Document {
	a := m.Assembly(asm)
	e := encoder{m: m}
	d := &Document{
		Name:       a.Name,
		References: append([]string(nil), a.References...),
		Attributes: e.attributes(a.Attributes),
	}
	if a.EntryPoint != nil {
		ref := e.methodRef(*a.EntryPoint)
		d.EntryPoint = &ref
	}
	for _, x := range a.Exported {
		d.Forwarders = append(d.Forwarders, Forwarder{Type: x.FullName, Target: x.Target})
	}
	for _, t := range a.Types {
		d.Types = append(d.Types, e.typeDoc(t))
	}
	return d
}

type encoder struct {
	m *metadata.Model
}

func (e encoder) typeDoc(id metadata.TypeID) TypeDocument {
	t := e.m.Type(id)
	td := TypeDocument{
		Name:          t.Name,
		Flags:         formatFlags(t.Flags, typeFlagNames),
		GenericParams: e.genericParams(t.GenericParameters),
		Attributes:    e.attributes(t.Attributes),
	}
	if !t.IsNested() {
		td.Namespace = t.Namespace
	}
	if t.Visibility != metadata.VisibilityPublic {
		td.Visibility = t.Visibility.String()
	}
	if t.BaseType != nil {
		td.Base = typename.Format(*t.BaseType)
	}
	for _, impl := range t.Interfaces {
		td.Interfaces = append(td.Interfaces, Interface{
			Type:       typename.Format(impl.Interface),
			Attributes: e.attributes(impl.Attributes),
		})
	}
	for _, f := range t.Fields {
		td.Fields = append(td.Fields, e.fieldDoc(e.m.Field(f)))
	}
	for _, md := range t.Methods {
		td.Methods = append(td.Methods, e.methodDoc(e.m.Method(md)))
	}
	for _, pid := range t.Properties {
		p := e.m.Property(pid)
		td.Properties = append(td.Properties, Property{
			Name:       p.Name,
			Type:       typename.Format(p.Type),
			Getter:     e.methodName(p.Getter),
			Setter:     e.methodName(p.Setter),
			Attributes: e.attributes(p.Attributes),
		})
	}
	for _, eid := range t.Events {
		ev := e.m.Event(eid)
		td.Events = append(td.Events, Event{
			Name:       ev.Name,
			Type:       typename.Format(ev.Type),
			Add:        e.methodName(ev.Add),
			Remove:     e.methodName(ev.Remove),
			Attributes: e.attributes(ev.Attributes),
		})
	}
	for _, n := range t.NestedTypes {
		td.Nested = append(td.Nested, e.typeDoc(n))
	}
	return td
}

func (e encoder) methodName(id metadata.MethodID) string {
	if id == metadata.NoMethod {
		return ""
	}
	return e.m.Method(id).Name
}

func (e encoder) fieldDoc(f *metadata.Field) FieldDocument {
	fd := FieldDocument{
		Name:       f.Name,
		Type:       typename.Format(f.Type),
		Flags:      formatFlags(f.Flags, fieldFlagNames),
		Attributes: e.attributes(f.Attributes),
	}
	if f.Visibility != metadata.VisibilityPublic {
		fd.Visibility = f.Visibility.String()
	}
	return fd
}

func (e encoder) methodDoc(m *metadata.Method) MethodDocument {
	md := MethodDocument{
		Name:             m.Name,
		Flags:            formatFlags(m.Flags, methodFlagNames),
		Impl:             formatFlags(m.Impl, implFlagNames),
		ReturnAttributes: e.attributes(m.ReturnAttributes),
		GenericParams:    e.genericParams(m.GenericParameters),
		Attributes:       e.attributes(m.Attributes),
	}
	if m.Visibility != metadata.VisibilityPublic {
		md.Visibility = m.Visibility.String()
	}
	if !m.ReturnType.Is(metadata.TypeVoid) {
		md.Returns = typename.Format(m.ReturnType)
	}
	for _, p := range m.Parameters {
		md.Params = append(md.Params, Param{
			Name:       p.Name,
			Type:       typename.Format(p.Type),
			Attributes: e.attributes(p.Attributes),
		})
	}
	for _, o := range m.Overrides {
		md.Overrides = append(md.Overrides, e.methodRef(o))
	}
	if m.Body != nil {
		md.Body = e.body(m.Body)
	}
	return md
}

func (e encoder) genericParams(gps []metadata.GenericParameter) []GenericParam {
	var out []GenericParam
	for _, gp := range gps {
		out = append(out, GenericParam{
			Name:          gp.Name,
			Constraints:   formatAll(gp.Constraints),
			DefaultCtor:   gp.DefaultCtorConstraint,
			ReferenceType: gp.ReferenceTypeConstraint,
			Attributes:    e.attributes(gp.Attributes),
		})
	}
	return out
}

func formatAll(refs []metadata.TypeRef) []string {
	if len(refs) == 0 {
		return nil
	}
	out := make([]string, len(refs))
	for i, r := range refs {
		out[i] = typename.Format(r)
	}
	return out
}

func (e encoder) methodRef(r metadata.MethodRef) MethodRef {
	out := MethodRef{
		Type:          typename.Format(r.DeclaringType),
		Name:          r.Name,
		Params:        formatAll(r.Parameters),
		Arity:         r.GenericArity,
		Instantiation: formatAll(r.Instantiation),
	}
	if !r.ReturnType.Is(metadata.TypeVoid) {
		out.Returns = typename.Format(r.ReturnType)
	}
	return out
}

func fieldRef(r metadata.FieldRef) FieldRef {
	return FieldRef{
		Type:      typename.Format(r.DeclaringType),
		Name:      r.Name,
		FieldType: typename.Format(r.Type),
	}
}

func (e encoder) body(b *metadata.MethodBody) *Body {
	out := &Body{
		Locals:     formatAll(b.Locals),
		InitLocals: b.InitLocals,
	}
	for _, in := range b.Instructions {
		out.Instructions = append(out.Instructions, e.instruction(in))
	}
	for _, h := range b.ExceptionHandlers {
		hd := Handler{
			Kind:         h.Kind.String(),
			TryStart:     h.TryStart,
			TryEnd:       h.TryEnd,
			HandlerStart: h.HandlerStart,
			HandlerEnd:   h.HandlerEnd,
			FilterStart:  h.FilterStart,
		}
		if h.CatchType != nil {
			hd.CatchType = typename.Format(*h.CatchType)
		}
		out.Handlers = append(out.Handlers, hd)
	}
	if !b.Debug.Empty() {
		dbg := &Debug{}
		for _, sp := range b.Debug.SequencePoints {
			dbg.SequencePoints = append(dbg.SequencePoints, SequencePoint(sp))
		}
		for _, s := range b.Debug.Scopes {
			dbg.Scopes = append(dbg.Scopes, Scope(s))
		}
		out.Debug = dbg
	}
	return out
}

func (e encoder) instruction(in metadata.Instruction) Instruction {
	out := Instruction{Op: in.OpCode.String()}
	switch in.OpCode.Operand() {
	case metadata.OperandInt:
		v := in.Int
		out.Int = &v
	case metadata.OperandFloat:
		v := in.Float
		out.Float = &v
	case metadata.OperandString:
		v := in.Str
		out.String = &v
	case metadata.OperandTarget:
		v := in.Target()
		out.Target = &v
	case metadata.OperandTargets:
		out.Targets = append([]int(nil), in.Targets...)
	}
	if in.Type != nil {
		out.Type = typename.Format(*in.Type)
	}
	if in.Method != nil {
		ref := e.methodRef(*in.Method)
		out.Method = &ref
	}
	if in.Field != nil {
		ref := fieldRef(*in.Field)
		out.Field = &ref
	}
	return out
}

func (e encoder) attributes(cas []metadata.CustomAttribute) []Attribute {
	if len(cas) == 0 {
		return nil
	}
	out := make([]Attribute, 0, len(cas))
	for _, ca := range cas {
		a := Attribute{Type: typename.Format(ca.AttributeType())}
		for _, arg := range ca.Args {
			a.Args = append(a.Args, Arg{Type: typename.Format(arg.Type), Value: argToValue(arg)})
		}
		for _, na := range ca.Named {
			a.Named = append(a.Named, NamedArg{
				Name:  na.Name,
				Field: na.IsField,
				Type:  typename.Format(na.Value.Type),
				Value: argToValue(na.Value),
			})
		}
		out = append(out, a)
	}
	return out
}

func argToValue(a metadata.AttributeArg) any {
	switch a.Kind {
	case metadata.ArgString:
		return a.Str
	case metadata.ArgInt:
		return a.Int
	case metadata.ArgBool:
		return a.Bool
	case metadata.ArgType:
		return typename.Format(*a.Typ)
	case metadata.ArgArray:
		out := make([]any, len(a.Elems))
		for i, el := range a.Elems {
			out[i] = argToValue(el)
		}
		return out
	default:
		return nil
	}
}
