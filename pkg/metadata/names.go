package metadata

import "strings"

// Name renders an entity the way dumps and diagnostics print it:
// types by full name, methods as "Ret Decl::Name(P1,P2)", fields as "Type Decl::Name".
func (m *Model) Name(e Entity) string {
	switch e.Kind {
	case KindAssembly:
		return m.Assemblies[e.ID].Name
	case KindType:
		return m.Types[e.ID].FullName
	case KindMethod:
		return m.MethodName(MethodID(e.ID))
	case KindField:
		f := m.Fields[e.ID]
		return f.Type.String() + " " + m.Types[f.DeclaringType].FullName + "::" + f.Name
	case KindProperty:
		p := m.Properties[e.ID]
		return p.Type.String() + " " + m.Types[p.DeclaringType].FullName + "::" + p.Name + "()"
	case KindEvent:
		ev := m.Events[e.ID]
		return ev.Type.String() + " " + m.Types[ev.DeclaringType].FullName + "::" + ev.Name
	default:
		return e.String()
	}
}

// MethodName renders a method definition.
func (m *Model) MethodName(id MethodID) string {
	md := m.Methods[id]
	var sb strings.Builder
	md.ReturnType.write(&sb)
	sb.WriteByte(' ')
	sb.WriteString(m.Types[md.DeclaringType].FullName)
	sb.WriteString("::")
	sb.WriteString(md.Name)
	if n := len(md.GenericParameters); n > 0 {
		sb.WriteByte('<')
		for i, gp := range md.GenericParameters {
			if i > 0 {
				sb.WriteByte(',')
			}
			sb.WriteString(gp.Name)
		}
		sb.WriteByte('>')
	}
	sb.WriteByte('(')
	for i, p := range md.Parameters {
		if i > 0 {
			sb.WriteByte(',')
		}
		p.Type.write(&sb)
	}
	sb.WriteByte(')')
	return sb.String()
}

// Token returns the dependency-dump token of an entity: "<TokenKind>:<name>".
func (m *Model) Token(e Entity) string {
	return e.Kind.TokenKind() + ":" + m.Name(e)
}
