package annotations

import (
	"fmt"
	"strings"
)

// DAMTypes is a set of member categories that must survive for a value's type,
// as declared by DynamicallyAccessedMembers annotations.
type DAMTypes int32

const (
	DAMNone                           DAMTypes = 0
	DAMPublicParameterlessConstructor DAMTypes = 0x0001
	DAMPublicConstructors             DAMTypes = 0x0002 | DAMPublicParameterlessConstructor
	DAMNonPublicConstructors          DAMTypes = 0x0004
	DAMPublicMethods                  DAMTypes = 0x0008
	DAMNonPublicMethods               DAMTypes = 0x0010
	DAMPublicFields                   DAMTypes = 0x0020
	DAMNonPublicFields                DAMTypes = 0x0040
	DAMPublicNestedTypes              DAMTypes = 0x0080
	DAMNonPublicNestedTypes           DAMTypes = 0x0100
	DAMPublicProperties               DAMTypes = 0x0200
	DAMNonPublicProperties            DAMTypes = 0x0400
	DAMPublicEvents                   DAMTypes = 0x0800
	DAMNonPublicEvents                DAMTypes = 0x1000
	DAMInterfaces                     DAMTypes = 0x2000
	DAMAll                            DAMTypes = -1
)

var damNames = []struct {
	name string
	flag DAMTypes
}{
	{"PublicParameterlessConstructor", DAMPublicParameterlessConstructor},
	{"PublicConstructors", DAMPublicConstructors},
	{"NonPublicConstructors", DAMNonPublicConstructors},
	{"PublicMethods", DAMPublicMethods},
	{"NonPublicMethods", DAMNonPublicMethods},
	{"PublicFields", DAMPublicFields},
	{"NonPublicFields", DAMNonPublicFields},
	{"PublicNestedTypes", DAMPublicNestedTypes},
	{"NonPublicNestedTypes", DAMNonPublicNestedTypes},
	{"PublicProperties", DAMPublicProperties},
	{"NonPublicProperties", DAMNonPublicProperties},
	{"PublicEvents", DAMPublicEvents},
	{"NonPublicEvents", DAMNonPublicEvents},
	{"Interfaces", DAMInterfaces},
}

// Has reports whether every category in want is present.
func (d DAMTypes) Has(want DAMTypes) bool {
	return d&want == want
}

// Covers reports whether an annotation d satisfies the requirement req.
func (d DAMTypes) Covers(req DAMTypes) bool {
	return req&^d == 0
}

// Missing returns the categories of req that d lacks.
func (d DAMTypes) Missing(req DAMTypes) DAMTypes {
	return req &^ d
}

func (d DAMTypes) String() string {
	switch d {
	case DAMNone:
		return "None"
	case DAMAll:
		return "All"
	}
	var parts []string
	rest := d
	for _, n := range damNames {
		if n.flag == DAMPublicParameterlessConstructor && d.Has(DAMPublicConstructors) {
			continue
		}
		if d.Has(n.flag) {
			parts = append(parts, n.name)
			rest &^= n.flag
		}
	}
	if rest != 0 {
		parts = append(parts, fmt.Sprintf("0x%x", int32(rest)))
	}
	return strings.Join(parts, "|")
}

// ParseDAMTypes parses names joined by '|' or ','. "All" and "None" are accepted.
func ParseDAMTypes(s string) (DAMTypes, error) {
	var out DAMTypes
	for _, part := range strings.FieldsFunc(s, func(r rune) bool { return r == '|' || r == ',' }) {
		name := strings.TrimSpace(part)
		switch strings.ToLower(name) {
		case "all":
			out = DAMAll
			continue
		case "none", "":
			continue
		}
		found := false
		for _, n := range damNames {
			if strings.EqualFold(n.name, name) {
				out |= n.flag
				found = true
				break
			}
		}
		if !found {
			return DAMNone, fmt.Errorf("unknown member type %q", name)
		}
	}
	return out, nil
}
