package metadata

import (
	"strings"

	"github.com/cespare/xxhash/v2"
)

// ForwarderUse identifies an exported type entry followed while resolving.
type ForwarderUse struct {
	Assembly AssemblyID
	Index    int
}

// ResolveType returns the definition a named or generic-instance reference points to.
func (m *Model) ResolveType(ref TypeRef) (TypeID, bool) {
	id, _, ok := m.ResolveTypeVia(ref)
	return id, ok
}

// ResolveTypeVia resolves ref and also reports the forwarders it went through.
// References without a scope are looked up in every assembly in load order.
func (m *Model) ResolveTypeVia(ref TypeRef) (TypeID, []ForwarderUse, bool) {
	def, ok := ref.Definition()
	if !ok {
		return NoType, nil, false
	}
	if def.Scope == "" {
		for i := range m.Assemblies {
			if id, ok := m.typesByName[AssemblyID(i)][def.Name]; ok {
				return id, nil, true
			}
		}
		return NoType, nil, false
	}

	var used []ForwarderUse
	scope := def.Scope
	// A forwarder chain longer than the assembly count is a cycle.
	for hop := 0; hop <= len(m.Assemblies); hop++ {
		asm, ok := m.asmByName[scope]
		if !ok {
			return NoType, used, false
		}
		if id, ok := m.typesByName[asm][def.Name]; ok {
			return id, used, true
		}
		idx := m.exportIndex(asm, def.Name)
		if idx < 0 {
			return NoType, used, false
		}
		used = append(used, ForwarderUse{Assembly: asm, Index: idx})
		scope = m.Assemblies[asm].Exported[idx].Target
	}
	return NoType, used, false
}

// exportIndex finds the exported type entry covering fullName. Forwarding an outer
// type forwards its nested types too.
func (m *Model) exportIndex(asm AssemblyID, fullName string) int {
	outer := fullName
	if i := strings.IndexByte(fullName, '/'); i >= 0 {
		outer = fullName[:i]
	}
	for i, et := range m.Assemblies[asm].Exported {
		if et.FullName == fullName || et.FullName == outer {
			return i
		}
	}
	return -1
}

// BaseType resolves the base type of t.
func (m *Model) BaseType(t TypeID) (TypeID, bool) {
	bt := m.Types[t].BaseType
	if bt == nil {
		return NoType, false
	}
	return m.ResolveType(*bt)
}

// ResolveMethod finds the definition matching ref. The declaring type and then its
// base types are searched, except for constructors which never resolve to a base.
//
// Parameter and return types in ref are expressed in terms of the definition's own
// generic parameters, the way compilers emit member references on generic instances.
func (m *Model) ResolveMethod(ref MethodRef) (MethodID, bool) {
	t, ok := m.ResolveType(ref.DeclaringType)
	if !ok {
		return NoMethod, false
	}
	for t != NoType {
		for _, id := range m.Types[t].Methods {
			if m.MatchesRef(id, ref) {
				return id, true
			}
		}
		if ref.Name == CtorName || ref.Name == StaticCtorName {
			break
		}
		base, ok := m.BaseType(t)
		if !ok {
			break
		}
		t = base
	}
	return NoMethod, false
}

// MatchesRef reports whether method id has the name, generic arity, parameter types
// and return type of ref. Generic parameter names never participate.
func (m *Model) MatchesRef(id MethodID, ref MethodRef) bool {
	md := m.Methods[id]
	if md.Name != ref.Name || len(md.GenericParameters) != ref.GenericArity {
		return false
	}
	if len(md.Parameters) != len(ref.Parameters) {
		return false
	}
	for i, p := range md.Parameters {
		if !SignatureEqual(p.Type, ref.Parameters[i]) {
			return false
		}
	}
	return SignatureEqual(md.ReturnType, ref.ReturnType)
}

// ResolveField finds the field matching ref in the declaring type or its bases.
func (m *Model) ResolveField(ref FieldRef) (FieldID, bool) {
	t, ok := m.ResolveType(ref.DeclaringType)
	if !ok {
		return NoField, false
	}
	for t != NoType {
		for _, id := range m.Types[t].Fields {
			fd := m.Fields[id]
			if fd.Name == ref.Name && SignatureEqual(fd.Type, ref.Type) {
				return id, true
			}
		}
		base, ok := m.BaseType(t)
		if !ok {
			break
		}
		t = base
	}
	return NoField, false
}

// IsSubclassOf reports whether base appears on the base chain of t (t excluded).
func (m *Model) IsSubclassOf(t, base TypeID) bool {
	cur, ok := m.BaseType(t)
	for ok {
		if cur == base {
			return true
		}
		cur, ok = m.BaseType(cur)
	}
	return false
}

// BaseChain returns the resolved base types of t, nearest first.
func (m *Model) BaseChain(t TypeID) []TypeID {
	var out []TypeID
	cur, ok := m.BaseType(t)
	for ok && len(out) <= len(m.Types) {
		out = append(out, cur)
		cur, ok = m.BaseType(cur)
	}
	return out
}

// IsSystemObject reports whether t is the universal base type.
func (m *Model) IsSystemObject(t TypeID) bool {
	return m.Types[t].FullName == TypeObject && m.Types[t].BaseType == nil
}

// IsValueTypeRef reports whether ref is a value type. Unresolvable references are
// treated as reference types.
func (m *Model) IsValueTypeRef(ref TypeRef) bool {
	id, ok := m.ResolveType(ref)
	if !ok {
		return false
	}
	return m.Types[id].IsValueType()
}

// SignatureKey hashes a method's name and parameter types after inflation. Two
// methods that can occupy the same slot produce the same key.
func SignatureKey(name string, params []TypeRef) uint64 {
	d := xxhash.New()
	_, _ = d.WriteString(name)
	for _, p := range params {
		_, _ = d.WriteString("\x00")
		_, _ = d.WriteString(p.String())
	}
	return d.Sum64()
}
