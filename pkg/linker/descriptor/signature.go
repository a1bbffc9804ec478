package descriptor

import (
	"errors"
	"fmt"
	"strings"

	"github.com/panbanda/iltrim/pkg/metadata"
	"github.com/panbanda/iltrim/pkg/metadata/typename"
)

// memberSignature is a member name with an optional parameter list. Parameter
// types carry no scope and match any assembly.
type memberSignature struct {
	name      string
	params    []metadata.TypeRef
	hasParams bool
}

// parseSignature parses "Name", "Name()" or "Name(T1,T2)". "#ctor" and "#cctor"
// stand for the constructor names.
func parseSignature(s string) (memberSignature, error) {
	s = strings.TrimSpace(s)
	var sig memberSignature
	name := s
	if open := strings.IndexByte(s, '('); open >= 0 {
		if !strings.HasSuffix(s, ")") {
			return sig, fmt.Errorf("signature %q: missing ')'", s)
		}
		name = strings.TrimSpace(s[:open])
		sig.hasParams = true
		for _, p := range splitParams(s[open+1 : len(s)-1]) {
			n, err := typename.Parse(p)
			if err != nil {
				return sig, fmt.Errorf("signature %q: %w", s, err)
			}
			sig.params = append(sig.params, n.ToTypeRef(""))
		}
	}
	switch name {
	case "":
		return sig, errors.New("empty member name")
	case "#ctor":
		name = metadata.CtorName
	case "#cctor":
		name = metadata.StaticCtorName
	}
	sig.name = name
	return sig, nil
}

// splitParams splits a parameter list at commas outside brackets.
func splitParams(s string) []string {
	if strings.TrimSpace(s) == "" {
		return nil
	}
	var out []string
	depth, start := 0, 0
	for i := 0; i < len(s); i++ {
		switch s[i] {
		case '[':
			depth++
		case ']':
			depth--
		case ',':
			if depth == 0 {
				out = append(out, strings.TrimSpace(s[start:i]))
				start = i + 1
			}
		}
	}
	return append(out, strings.TrimSpace(s[start:]))
}

// methods returns the methods of t the signature selects.
func (sig memberSignature) methods(m *metadata.Model, t metadata.TypeID) []metadata.MethodID {
	var out []metadata.MethodID
	for _, id := range m.FindMethods(t, sig.name) {
		if !sig.hasParams || paramsMatch(m.Method(id).ParameterTypes(), sig.params) {
			out = append(out, id)
		}
	}
	return out
}

// members returns every member of t the signature selects. A signature without
// a parameter list matches fields, properties and events by name too.
func (sig memberSignature) members(m *metadata.Model, t metadata.TypeID) []metadata.Entity {
	var out []metadata.Entity
	for _, id := range sig.methods(m, t) {
		out = append(out, metadata.MethodEntity(id))
	}
	if sig.hasParams {
		return out
	}
	td := m.Type(t)
	if f, ok := m.FindField(t, sig.name); ok {
		out = append(out, metadata.FieldEntity(f))
	}
	for _, p := range td.Properties {
		if m.Property(p).Name == sig.name {
			out = append(out, metadata.PropertyEntity(p))
		}
	}
	for _, ev := range td.Events {
		if m.Event(ev).Name == sig.name {
			out = append(out, metadata.EventEntity(ev))
		}
	}
	return out
}

func paramsMatch(have, want []metadata.TypeRef) bool {
	if len(have) != len(want) {
		return false
	}
	for i := range have {
		if !metadata.SignatureEqual(have[i], want[i]) {
			return false
		}
	}
	return true
}
