package metadata

import "fmt"

// Kind identifies which arena an Entity indexes into.
type Kind uint8

// Entity kinds. The set is closed; switches over Kind are expected to be exhaustive.
const (
	KindAssembly Kind = iota + 1
	KindType
	KindMethod
	KindField
	KindProperty
	KindEvent
)

// Kinds lists every entity kind in a stable order.
var Kinds = []Kind{KindAssembly, KindType, KindMethod, KindField, KindProperty, KindEvent}

// String returns the lower-case kind name.
func (k Kind) String() string {
	switch k {
	case KindAssembly:
		return "assembly"
	case KindType:
		return "type"
	case KindMethod:
		return "method"
	case KindField:
		return "field"
	case KindProperty:
		return "property"
	case KindEvent:
		return "event"
	default:
		return fmt.Sprintf("kind(%d)", uint8(k))
	}
}

// TokenKind names the metadata table an entity of this kind lives in.
// It is the prefix used by dependency dumps.
func (k Kind) TokenKind() string {
	switch k {
	case KindAssembly:
		return "Assembly"
	case KindType:
		return "TypeDef"
	case KindMethod:
		return "MethodDef"
	case KindField:
		return "FieldDef"
	case KindProperty:
		return "Property"
	case KindEvent:
		return "Event"
	default:
		return "Other"
	}
}

// Typed arena indices. The zero value is a valid index; use the No* sentinels for "none".
type (
	AssemblyID uint32
	TypeID     uint32
	MethodID   uint32
	FieldID    uint32
	PropertyID uint32
	EventID    uint32
)

const invalidID = ^uint32(0)

// Sentinels for absent references.
const (
	NoAssembly = AssemblyID(invalidID)
	NoType     = TypeID(invalidID)
	NoMethod   = MethodID(invalidID)
	NoField    = FieldID(invalidID)
	NoProperty = PropertyID(invalidID)
	NoEvent    = EventID(invalidID)
)

// Entity is a tagged reference to any metadata entity.
type Entity struct {
	Kind Kind
	ID   uint32
}

// IsValid reports whether e refers to an entity.
func (e Entity) IsValid() bool {
	return e.Kind != 0 && e.ID != invalidID
}

func (e Entity) String() string {
	return fmt.Sprintf("%s#%d", e.Kind, e.ID)
}

// AssemblyEntity wraps an assembly index.
func AssemblyEntity(id AssemblyID) Entity { return Entity{Kind: KindAssembly, ID: uint32(id)} }

// TypeEntity wraps a type index.
func TypeEntity(id TypeID) Entity { return Entity{Kind: KindType, ID: uint32(id)} }

// MethodEntity wraps a method index.
func MethodEntity(id MethodID) Entity { return Entity{Kind: KindMethod, ID: uint32(id)} }

// FieldEntity wraps a field index.
func FieldEntity(id FieldID) Entity { return Entity{Kind: KindField, ID: uint32(id)} }

// PropertyEntity wraps a property index.
func PropertyEntity(id PropertyID) Entity { return Entity{Kind: KindProperty, ID: uint32(id)} }

// EventEntity wraps an event index.
func EventEntity(id EventID) Entity { return Entity{Kind: KindEvent, ID: uint32(id)} }
