package metadata

// NewAttribute builds a custom attribute whose constructor takes args in order.
func NewAttribute(attrType TypeRef, args ...AttributeArg) CustomAttribute {
	params := make([]TypeRef, len(args))
	for i, a := range args {
		params[i] = a.Type
	}
	return CustomAttribute{
		Constructor: MethodRef{
			DeclaringType: attrType,
			Name:          CtorName,
			Parameters:    params,
			ReturnType:    VoidRef(),
		},
		Args: args,
	}
}

// WithNamed returns ca with an additional named property argument.
func (ca CustomAttribute) WithNamed(name string, v AttributeArg) CustomAttribute {
	ca.Named = append(append([]NamedArg(nil), ca.Named...), NamedArg{Name: name, Value: v})
	return ca
}

// StringArg is a System.String attribute argument.
func StringArg(s string) AttributeArg {
	return AttributeArg{Kind: ArgString, Type: StringRef(), Str: s}
}

// TypeArg is a System.Type attribute argument (typeof).
func TypeArg(t TypeRef) AttributeArg {
	return AttributeArg{Kind: ArgType, Type: TypeTypeRef(), Typ: &t}
}

// IntArg is an integral or enum attribute argument of the given type.
func IntArg(typ TypeRef, v int64) AttributeArg {
	return AttributeArg{Kind: ArgInt, Type: typ, Int: v}
}

// BoolArg is a System.Boolean attribute argument.
func BoolArg(b bool) AttributeArg {
	return AttributeArg{Kind: ArgBool, Type: BoolRef(), Bool: b}
}

// NullArg is a null argument of a reference type.
func NullArg(typ TypeRef) AttributeArg {
	return AttributeArg{Kind: ArgNull, Type: typ}
}

// ArrayArg is an array argument with elements of elemType.
func ArrayArg(elemType TypeRef, elems ...AttributeArg) AttributeArg {
	return AttributeArg{Kind: ArgArray, Type: ArrayOf(elemType, 1), Elems: elems}
}

// TypeRefs collects every typeof argument in a, including array elements.
func (a AttributeArg) TypeRefs() []TypeRef {
	switch a.Kind {
	case ArgType:
		return []TypeRef{*a.Typ}
	case ArgArray:
		var out []TypeRef
		for _, e := range a.Elems {
			out = append(out, e.TypeRefs()...)
		}
		return out
	default:
		return nil
	}
}

// NamedArg returns the named argument with the given name.
func (ca CustomAttribute) NamedArg(name string) (AttributeArg, bool) {
	for _, n := range ca.Named {
		if n.Name == name {
			return n.Value, true
		}
	}
	return AttributeArg{}, false
}

// IsType reports whether the attribute class has the given full name.
func (ca CustomAttribute) IsType(fullName string) bool {
	def, ok := ca.Constructor.DeclaringType.Definition()
	return ok && def.Name == fullName
}
