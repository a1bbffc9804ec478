package annotations

import (
	"fmt"
	"strings"
)

// PreserveKind is a point in the {Nothing, Fields, Methods, All} lattice.
// Fields and Methods are incomparable; their join is All.
type PreserveKind uint8

const (
	PreserveNothing PreserveKind = 0
	PreserveFields  PreserveKind = 1
	PreserveMethods PreserveKind = 2
	PreserveAll     PreserveKind = PreserveFields | PreserveMethods
)

func (p PreserveKind) String() string {
	switch p {
	case PreserveNothing:
		return "nothing"
	case PreserveFields:
		return "fields"
	case PreserveMethods:
		return "methods"
	case PreserveAll:
		return "all"
	default:
		return fmt.Sprintf("preserve(%d)", uint8(p))
	}
}

// ParsePreserveKind parses a preserve name. The empty string is Nothing.
func ParsePreserveKind(s string) (PreserveKind, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "nothing", "none":
		return PreserveNothing, nil
	case "fields":
		return PreserveFields, nil
	case "methods":
		return PreserveMethods, nil
	case "all":
		return PreserveAll, nil
	default:
		return PreserveNothing, fmt.Errorf("unknown preserve kind %q", s)
	}
}

// ChoosePreserveActionWhichPreservesTheMost is the lattice join.
func ChoosePreserveActionWhichPreservesTheMost(a, b PreserveKind) PreserveKind {
	return (a | b) & PreserveAll
}

// Fields reports whether p keeps every field.
func (p PreserveKind) Fields() bool { return p&PreserveFields != 0 }

// Methods reports whether p keeps every method.
func (p PreserveKind) Methods() bool { return p&PreserveMethods != 0 }
