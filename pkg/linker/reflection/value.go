package reflection

import (
	"github.com/panbanda/iltrim/pkg/annotations"
	"github.com/panbanda/iltrim/pkg/metadata"
)

// MaxValues bounds a value set; a larger set collapses to unknown.
const MaxValues = 16

// ValueKind discriminates abstract values.
type ValueKind uint8

const (
	ValueUnknown ValueKind = iota
	ValueNull
	ValueString
	ValueInt
	// ValueSystemType is a System.Type object for a known type.
	ValueSystemType
	// ValueTypeHandle is the result of ldtoken on a known type.
	ValueTypeHandle
	// ValueObject is an object whose exact type is known from newobj.
	ValueObject
	// ValueArray is a freshly allocated array; Int holds the length or -1.
	ValueArray
	// ValueAnnotated is read from a parameter, field or return value and carries
	// the members its location guarantees.
	ValueAnnotated
)

// Value is one abstract value.
type Value struct {
	Kind   ValueKind
	Str    string
	Int    int64
	Type   metadata.TypeID
	DAM    annotations.DAMTypes
	Origin string
}

// ValueSet is the set of values a stack slot, local or argument may hold. The
// empty set means nothing has flowed in yet.
type ValueSet struct {
	unknown bool
	values  []Value
}

// Unknown is the set that may hold anything.
func Unknown() ValueSet { return ValueSet{unknown: true} }

// Single is the set holding exactly v.
func Single(v Value) ValueSet {
	if v.Kind == ValueUnknown {
		return Unknown()
	}
	return ValueSet{values: []Value{v}}
}

// IsUnknown reports whether the set may hold anything.
func (s ValueSet) IsUnknown() bool { return s.unknown }

// IsEmpty reports whether nothing has flowed into the set.
func (s ValueSet) IsEmpty() bool { return !s.unknown && len(s.values) == 0 }

// Values returns the known members. It is nil for an unknown set.
func (s ValueSet) Values() []Value {
	if s.unknown {
		return nil
	}
	return s.values
}

// Union joins two sets.
func (s ValueSet) Union(o ValueSet) ValueSet {
	if s.unknown || o.unknown {
		return Unknown()
	}
	if len(o.values) == 0 {
		return s
	}
	if len(s.values) == 0 {
		return o
	}
	out := append([]Value(nil), s.values...)
	for _, v := range o.values {
		if !contains(out, v) {
			out = append(out, v)
		}
	}
	if len(out) > MaxValues {
		return Unknown()
	}
	return ValueSet{values: out}
}

// Equal compares two sets regardless of order.
func (s ValueSet) Equal(o ValueSet) bool {
	if s.unknown || o.unknown {
		return s.unknown == o.unknown
	}
	if len(s.values) != len(o.values) {
		return false
	}
	for _, v := range s.values {
		if !contains(o.values, v) {
			return false
		}
	}
	return true
}

func contains(vs []Value, v Value) bool {
	for _, x := range vs {
		if x == v {
			return true
		}
	}
	return false
}

// State is the abstract machine state at a program point.
type State struct {
	reached bool
	Locals  []ValueSet
	Args    []ValueSet
	Stack   []ValueSet
}

func (s State) clone() State {
	return State{
		reached: s.reached,
		Locals:  append([]ValueSet(nil), s.Locals...),
		Args:    append([]ValueSet(nil), s.Args...),
		Stack:   append([]ValueSet(nil), s.Stack...),
	}
}

func (s *State) push(v ValueSet) { s.Stack = append(s.Stack, v) }

func (s *State) pop() ValueSet {
	n := len(s.Stack)
	if n == 0 {
		return Unknown()
	}
	v := s.Stack[n-1]
	s.Stack = s.Stack[:n-1]
	return v
}

// popN pops n values and returns them in push order.
func (s *State) popN(n int) []ValueSet {
	out := make([]ValueSet, n)
	for i := n - 1; i >= 0; i-- {
		out[i] = s.pop()
	}
	return out
}

// meetStack keeps the common depth. Verifiable IL only joins stacks of
// different depth where the exception state of a region meets a handler entry,
// and handlers start with an empty stack.
func meetStack(a, b []ValueSet) []ValueSet {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	out := make([]ValueSet, n)
	for i := range out {
		out[i] = a[i].Union(b[i])
	}
	return out
}

func meetSlots(a, b []ValueSet) []ValueSet {
	n := len(a)
	if len(b) > n {
		n = len(b)
	}
	out := make([]ValueSet, n)
	for i := range out {
		switch {
		case i >= len(a) || i >= len(b):
			out[i] = Unknown()
		default:
			out[i] = a[i].Union(b[i])
		}
	}
	return out
}

func equalSlots(a, b []ValueSet) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if !a[i].Equal(b[i]) {
			return false
		}
	}
	return true
}
