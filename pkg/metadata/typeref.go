package metadata

import (
	"strconv"
	"strings"
)

// TypeRefKind discriminates the shapes a TypeRef can take.
type TypeRefKind uint8

const (
	RefNamed TypeRefKind = iota
	RefGenericInstance
	RefArray
	RefPointer
	RefByRef
	RefTypeParam
	RefMethodParam
)

// TypeRef is a type as it appears in a signature or operand.
//
// Named references carry the scope assembly and the full name, with nested types
// separated by '/'. Generic instances keep the open type in Element and the bound
// arguments in Args. Arrays, pointers and by-refs wrap Element. Generic parameters
// are identified by Position only.
type TypeRef struct {
	Kind     TypeRefKind
	Scope    string
	Name     string
	Element  *TypeRef
	Args     []TypeRef
	Rank     int
	Position int
}

// Named returns a reference to a type definition by scope assembly and full name.
// An empty scope resolves against every loaded assembly in load order.
func Named(scope, fullName string) TypeRef {
	return TypeRef{Kind: RefNamed, Scope: scope, Name: fullName}
}

// GenericInst binds args to the open generic type.
func GenericInst(open TypeRef, args ...TypeRef) TypeRef {
	el := open
	return TypeRef{Kind: RefGenericInstance, Element: &el, Args: args}
}

// ArrayOf returns an array of elem with the given rank. Rank 1 is a vector.
func ArrayOf(elem TypeRef, rank int) TypeRef {
	if rank < 1 {
		rank = 1
	}
	return TypeRef{Kind: RefArray, Element: &elem, Rank: rank}
}

// PointerTo returns an unmanaged pointer to elem.
func PointerTo(elem TypeRef) TypeRef {
	return TypeRef{Kind: RefPointer, Element: &elem}
}

// ByRefTo returns a managed reference to elem.
func ByRefTo(elem TypeRef) TypeRef {
	return TypeRef{Kind: RefByRef, Element: &elem}
}

// TypeParam refers to the declaring type's generic parameter at position.
func TypeParam(position int) TypeRef {
	return TypeRef{Kind: RefTypeParam, Position: position}
}

// MethodParam refers to the method's generic parameter at position.
func MethodParam(position int) TypeRef {
	return TypeRef{Kind: RefMethodParam, Position: position}
}

// IsNamed reports whether r refers directly to a type definition.
func (r TypeRef) IsNamed() bool { return r.Kind == RefNamed }

// IsGenericParameter reports whether r is a !n or !!n reference.
func (r TypeRef) IsGenericParameter() bool {
	return r.Kind == RefTypeParam || r.Kind == RefMethodParam
}

// Definition returns the reference to the type definition underlying a named or
// generic-instance reference. ok is false for every other shape.
func (r TypeRef) Definition() (TypeRef, bool) {
	switch r.Kind {
	case RefNamed:
		return r, true
	case RefGenericInstance:
		return r.Element.Definition()
	default:
		return TypeRef{}, false
	}
}

// Is reports whether r names fullName directly, ignoring scope.
func (r TypeRef) Is(fullName string) bool {
	return r.Kind == RefNamed && r.Name == fullName
}

// ContainsGenericParameter reports whether any part of r is a generic parameter.
func (r TypeRef) ContainsGenericParameter() bool {
	switch r.Kind {
	case RefTypeParam, RefMethodParam:
		return true
	case RefGenericInstance:
		for _, a := range r.Args {
			if a.ContainsGenericParameter() {
				return true
			}
		}
		return r.Element.ContainsGenericParameter()
	case RefArray, RefPointer, RefByRef:
		return r.Element.ContainsGenericParameter()
	default:
		return false
	}
}

// String renders r the way signatures are printed in dumps and diagnostics.
func (r TypeRef) String() string {
	var sb strings.Builder
	r.write(&sb)
	return sb.String()
}

func (r TypeRef) write(sb *strings.Builder) {
	switch r.Kind {
	case RefNamed:
		sb.WriteString(r.Name)
	case RefGenericInstance:
		r.Element.write(sb)
		sb.WriteByte('<')
		for i, a := range r.Args {
			if i > 0 {
				sb.WriteByte(',')
			}
			a.write(sb)
		}
		sb.WriteByte('>')
	case RefArray:
		r.Element.write(sb)
		sb.WriteByte('[')
		for i := 1; i < r.Rank; i++ {
			sb.WriteByte(',')
		}
		sb.WriteByte(']')
	case RefPointer:
		r.Element.write(sb)
		sb.WriteByte('*')
	case RefByRef:
		r.Element.write(sb)
		sb.WriteByte('&')
	case RefTypeParam:
		sb.WriteByte('!')
		sb.WriteString(strconv.Itoa(r.Position))
	case RefMethodParam:
		sb.WriteString("!!")
		sb.WriteString(strconv.Itoa(r.Position))
	}
}

// SignatureEqual compares two references structurally. Scopes are ignored so that
// references through forwarders compare equal to the forwarded definition, and
// generic parameters compare by kind and position.
func SignatureEqual(a, b TypeRef) bool {
	if a.Kind != b.Kind {
		return false
	}
	switch a.Kind {
	case RefNamed:
		return a.Name == b.Name
	case RefGenericInstance:
		if len(a.Args) != len(b.Args) || !SignatureEqual(*a.Element, *b.Element) {
			return false
		}
		for i := range a.Args {
			if !SignatureEqual(a.Args[i], b.Args[i]) {
				return false
			}
		}
		return true
	case RefArray:
		return a.Rank == b.Rank && SignatureEqual(*a.Element, *b.Element)
	case RefPointer, RefByRef:
		return SignatureEqual(*a.Element, *b.Element)
	default:
		return a.Position == b.Position
	}
}

// Inflate substitutes generic parameters in r. Positions outside the supplied
// argument lists are left as parameters.
func Inflate(r TypeRef, typeArgs, methodArgs []TypeRef) TypeRef {
	switch r.Kind {
	case RefTypeParam:
		if r.Position < len(typeArgs) {
			return typeArgs[r.Position]
		}
		return r
	case RefMethodParam:
		if r.Position < len(methodArgs) {
			return methodArgs[r.Position]
		}
		return r
	case RefGenericInstance:
		args := make([]TypeRef, len(r.Args))
		for i, a := range r.Args {
			args[i] = Inflate(a, typeArgs, methodArgs)
		}
		return GenericInst(Inflate(*r.Element, typeArgs, methodArgs), args...)
	case RefArray:
		return ArrayOf(Inflate(*r.Element, typeArgs, methodArgs), r.Rank)
	case RefPointer:
		return PointerTo(Inflate(*r.Element, typeArgs, methodArgs))
	case RefByRef:
		return ByRefTo(Inflate(*r.Element, typeArgs, methodArgs))
	default:
		return r
	}
}

// TypeArguments returns the bound arguments of a generic instance, or nil.
func (r TypeRef) TypeArguments() []TypeRef {
	if r.Kind == RefGenericInstance {
		return r.Args
	}
	return nil
}

// MethodRef references a method by declaring type and signature.
type MethodRef struct {
	DeclaringType TypeRef
	Name          string
	Parameters    []TypeRef
	ReturnType    TypeRef
	GenericArity  int
	// Instantiation holds the method type arguments of a generic method instance.
	Instantiation []TypeRef
}

// String renders "Ret Decl::Name(P1,P2)".
func (m MethodRef) String() string {
	var sb strings.Builder
	m.ReturnType.write(&sb)
	sb.WriteByte(' ')
	m.DeclaringType.write(&sb)
	sb.WriteString("::")
	sb.WriteString(m.Name)
	if len(m.Instantiation) > 0 {
		sb.WriteByte('<')
		for i, a := range m.Instantiation {
			if i > 0 {
				sb.WriteByte(',')
			}
			a.write(&sb)
		}
		sb.WriteByte('>')
	}
	sb.WriteByte('(')
	for i, p := range m.Parameters {
		if i > 0 {
			sb.WriteByte(',')
		}
		p.write(&sb)
	}
	sb.WriteByte(')')
	return sb.String()
}

// FieldRef references a field by declaring type, name and type.
type FieldRef struct {
	DeclaringType TypeRef
	Name          string
	Type          TypeRef
}

// String renders "Type Decl::Name".
func (f FieldRef) String() string {
	return f.Type.String() + " " + f.DeclaringType.String() + "::" + f.Name
}
