package reflection

import "github.com/panbanda/iltrim/pkg/metadata"

// Framework conventions that reach members by name at run time.

// eventSourceNested are the nested classes an event source publishes through
// their constant fields.
var eventSourceNested = []string{"Keywords", "Tasks", "Opcodes"}

// Implements reports whether t or one of its base types lists iface, directly or
// through an inherited interface.
func Implements(m *metadata.Model, t, iface metadata.TypeID) bool {
	return implementsWhere(m, t, func(ref metadata.TypeRef) bool {
		id, ok := m.ResolveType(ref)
		return ok && id == iface
	})
}

// implementsNamed matches by full name, for framework interfaces that may be
// absent from the model.
func implementsNamed(m *metadata.Model, t metadata.TypeID, fullName string) bool {
	return implementsWhere(m, t, func(ref metadata.TypeRef) bool { return ref.Is(fullName) })
}

func implementsWhere(m *metadata.Model, t metadata.TypeID, match func(metadata.TypeRef) bool) bool {
	seen := make(map[metadata.TypeID]bool)
	var visit func(metadata.TypeID) bool
	visit = func(id metadata.TypeID) bool {
		if seen[id] {
			return false
		}
		seen[id] = true
		for _, impl := range m.Type(id).Interfaces {
			if match(impl.Interface) {
				return true
			}
			if it, ok := m.ResolveType(impl.Interface); ok && visit(it) {
				return true
			}
		}
		return false
	}
	for _, id := range append([]metadata.TypeID{t}, m.BaseChain(t)...) {
		if visit(id) {
			return true
		}
	}
	return false
}

func derivesFromNamed(m *metadata.Model, t metadata.TypeID, fullName string) bool {
	for _, b := range m.BaseChain(t) {
		if m.Type(b).FullName == fullName {
			return true
		}
	}
	return false
}

// EventSourceMembers returns the nested Keywords, Tasks and Opcodes classes of an
// event source together with their fields. It is empty for other types.
func EventSourceMembers(m *metadata.Model, t metadata.TypeID) []metadata.Entity {
	if !derivesFromNamed(m, t, metadata.TypeEventSource) {
		return nil
	}
	var out []metadata.Entity
	for _, name := range eventSourceNested {
		nested, ok := m.FindNested(t, name)
		if !ok {
			continue
		}
		out = append(out, metadata.TypeEntity(nested))
		for _, f := range m.Type(nested).Fields {
			out = append(out, metadata.FieldEntity(f))
		}
	}
	return out
}

// SerializationConstructor returns the (SerializationInfo, StreamingContext)
// constructor of an ISerializable type.
func SerializationConstructor(m *metadata.Model, t metadata.TypeID) (metadata.MethodID, bool) {
	if !implementsNamed(m, t, metadata.TypeISerializable) {
		return metadata.NoMethod, false
	}
	for _, id := range m.Constructors(t) {
		params := m.Method(id).Parameters
		if len(params) == 2 && params[0].Type.Is(metadata.TypeSerializationInfo) && params[1].Type.Is(metadata.TypeStreamingContext) {
			return id, true
		}
	}
	return metadata.NoMethod, false
}

// MarshalerGetInstance returns the static GetInstance(string) factory of a custom
// marshaler.
func MarshalerGetInstance(m *metadata.Model, t metadata.TypeID) (metadata.MethodID, bool) {
	if !implementsNamed(m, t, metadata.TypeICustomMarshaler) {
		return metadata.NoMethod, false
	}
	for _, id := range m.FindMethods(t, "GetInstance") {
		md := m.Method(id)
		if md.IsStatic() && len(md.Parameters) == 1 && md.Parameters[0].Type.Is(metadata.TypeString) {
			return id, true
		}
	}
	return metadata.NoMethod, false
}
