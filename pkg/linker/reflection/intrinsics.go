package reflection

import (
	"fmt"

	"github.com/panbanda/iltrim/pkg/annotations"
	"github.com/panbanda/iltrim/pkg/diagnostic"
	"github.com/panbanda/iltrim/pkg/metadata"
	"github.com/panbanda/iltrim/pkg/metadata/typename"
)

// Binding flag bits the recognizer reads.
const (
	bindingPublic    = 0x10
	bindingNonPublic = 0x20
)

// memberCategory pairs the public and non-public requirement bits of one kind of
// member.
type memberCategory struct {
	name      string
	public    annotations.DAMTypes
	nonPublic annotations.DAMTypes
}

var (
	categoryMethods    = memberCategory{"methods", annotations.DAMPublicMethods, annotations.DAMNonPublicMethods}
	categoryFields     = memberCategory{"fields", annotations.DAMPublicFields, annotations.DAMNonPublicFields}
	categoryProperties = memberCategory{"properties", annotations.DAMPublicProperties, annotations.DAMNonPublicProperties}
	categoryEvents     = memberCategory{"events", annotations.DAMPublicEvents, annotations.DAMNonPublicEvents}
	categoryNested     = memberCategory{"nested types", annotations.DAMPublicNestedTypes, annotations.DAMNonPublicNestedTypes}
	categoryCtors      = memberCategory{"constructors", annotations.DAMPublicConstructors, annotations.DAMNonPublicConstructors}
)

// returnValue is the abstract result of a call made from caller.
func (r *Recognizer) returnValue(caller metadata.MethodID, ref metadata.MethodRef, args []ValueSet) ValueSet {
	switch lookupIntrinsic(ref) {
	case intrinsicTypeGetType:
		if v, ok := r.typesFromNames(caller, args[0]); ok {
			return v
		}
	case intrinsicGetTypeFromHandle:
		if v, ok := mapValues(args[0], ValueTypeHandle); ok {
			return v
		}
	case intrinsicObjectGetType:
		if len(args) > 0 {
			if v, ok := mapValues(args[0], ValueObject); ok {
				return v
			}
		}
	}
	callee, ok := r.model.ResolveMethod(ref)
	if ok {
		if dam := r.store.ReturnDAM(callee); dam != annotations.DAMNone {
			return Single(Value{Kind: ValueAnnotated, DAM: dam, Origin: "the return value of " + r.model.MethodName(callee)})
		}
	}
	if isSystemType(ref.ReturnType) {
		return Single(Value{Kind: ValueAnnotated, Origin: "the return value of " + ref.String()})
	}
	return Unknown()
}

// typesFromNames maps a set of type-name strings to System.Type values. It fails
// when any member is not a resolvable string.
func (r *Recognizer) typesFromNames(caller metadata.MethodID, v ValueSet) (ValueSet, bool) {
	vals := v.Values()
	if len(vals) == 0 {
		return ValueSet{}, false
	}
	var out ValueSet
	for _, val := range vals {
		switch val.Kind {
		case ValueNull:
			out = out.Union(Single(val))
		case ValueString:
			t, ok := r.resolveTypeName(caller, val.Str)
			if !ok {
				return ValueSet{}, false
			}
			out = out.Union(Single(Value{Kind: ValueSystemType, Type: t}))
		default:
			return ValueSet{}, false
		}
	}
	return out, true
}

// mapValues converts values of kind from to System.Type values over the same type.
func mapValues(v ValueSet, from ValueKind) (ValueSet, bool) {
	vals := v.Values()
	if len(vals) == 0 {
		return ValueSet{}, false
	}
	var out ValueSet
	for _, val := range vals {
		if val.Kind != from {
			return ValueSet{}, false
		}
		out = out.Union(Single(Value{Kind: ValueSystemType, Type: val.Type}))
	}
	return out, true
}

func (r *Recognizer) intrinsic(o *outcome, caller metadata.MethodID, body *metadata.MethodBody, s site, intr intrinsic) {
	ref := *s.instr.Method
	args := s.args
	what := intr.String()

	switch intr {
	case intrinsicTypeGetType:
		r.getType(o, caller, args[0])
	case intrinsicCreateInstance:
		req := annotations.DAMPublicParameterlessConstructor
		if len(args) > 1 && knownInt(args[1]) == 1 {
			req |= annotations.DAMNonPublicConstructors
		}
		if !satisfiable(args[0], req) {
			r.markCastCandidates(o, body, s.offset)
		}
		r.require(o, caller, args[0], req, "the type argument of "+what)
	case intrinsicCreateInstanceArgs:
		if !satisfiable(args[0], annotations.DAMPublicConstructors) {
			r.markCastCandidates(o, body, s.offset)
		}
		r.require(o, caller, args[0], annotations.DAMPublicConstructors, "the type argument of "+what)
	case intrinsicCreateInstanceGeneric:
		if len(ref.Instantiation) == 1 {
			r.requireTypeArgument(o, caller, ref.Instantiation[0], annotations.DAMPublicParameterlessConstructor, "the generic argument of "+what+"<T>")
		}
	case intrinsicCreateInstanceByName:
		r.createByName(o, args[0], args[1])
	case intrinsicGetMethod:
		r.byName(o, caller, args, 2, categoryMethods, what)
	case intrinsicGetField:
		r.byName(o, caller, args, 2, categoryFields, what)
	case intrinsicGetProperty:
		r.byName(o, caller, args, 2, categoryProperties, what)
	case intrinsicGetEvent:
		r.byName(o, caller, args, 2, categoryEvents, what)
	case intrinsicGetNestedType:
		r.byName(o, caller, args, 2, categoryNested, what)
	case intrinsicGetConstructor:
		r.getConstructor(o, caller, ref, args, what)
	case intrinsicGetConstructors:
		r.byCategory(o, caller, args[0], r.bindingDAM(args, 1, categoryCtors), what)
	case intrinsicGetMethods:
		r.byCategory(o, caller, args[0], r.bindingDAM(args, 1, categoryMethods), what)
	case intrinsicGetFields:
		r.byCategory(o, caller, args[0], r.bindingDAM(args, 1, categoryFields), what)
	case intrinsicGetProperties:
		r.byCategory(o, caller, args[0], r.bindingDAM(args, 1, categoryProperties), what)
	case intrinsicGetEvents:
		r.byCategory(o, caller, args[0], r.bindingDAM(args, 1, categoryEvents), what)
	case intrinsicRunClassConstructor:
		r.runClassConstructor(o, args[0])
	case intrinsicExpressionCall:
		r.namedMembers(o, caller, args[0], args[1], categoryMethods, categoryMethods.public|categoryMethods.nonPublic, what)
	case intrinsicExpressionProperty:
		r.namedMembers(o, caller, args[1], args[2], categoryProperties, categoryProperties.public|categoryProperties.nonPublic, what)
	case intrinsicExpressionField:
		r.namedMembers(o, caller, args[1], args[2], categoryFields, categoryFields.public|categoryFields.nonPublic, what)
	}
}

// getType keeps the types named by string arguments.
func (r *Recognizer) getType(o *outcome, caller metadata.MethodID, v ValueSet) {
	if v.IsUnknown() || v.IsEmpty() {
		o.fail(diagnostic.CodeUnrecognizedReflectionPattern, "the type name passed to Type.GetType cannot be statically determined")
		return
	}
	for _, val := range v.Values() {
		switch val.Kind {
		case ValueNull:
		case ValueString:
			t, ok := r.resolveTypeName(caller, val.Str)
			if !ok {
				o.fail(diagnostic.CodeUnresolvedTypeName, "type name %q passed to Type.GetType could not be resolved", val.Str)
				continue
			}
			o.mark(metadata.TypeEntity(t))
			r.markTypeArguments(o, caller, val.Str)
		default:
			o.fail(diagnostic.CodeUnrecognizedReflectionPattern, "the type name passed to Type.GetType cannot be statically determined")
		}
	}
}

// markTypeArguments keeps the generic arguments of an instantiated type name.
func (r *Recognizer) markTypeArguments(o *outcome, caller metadata.MethodID, name string) {
	n, err := typename.Parse(name)
	if err != nil {
		return
	}
	asm := r.model.Assembly(r.model.AssemblyOf(metadata.MethodEntity(caller))).Name
	var walk func(*typename.Name)
	walk = func(n *typename.Name) {
		for _, arg := range n.Args {
			if t, ok := ResolveTypeName(r.model, arg.String(), asm, metadata.CoreLibrary); ok {
				o.mark(metadata.TypeEntity(t))
			}
			walk(arg)
		}
		if n.Element != nil {
			walk(n.Element)
		}
	}
	walk(n)
}

func (r *Recognizer) createByName(o *outcome, asmArg, typeArg ValueSet) {
	asms, typesOK := knownStrings(asmArg), knownStrings(typeArg)
	if asms == nil || typesOK == nil {
		o.fail(diagnostic.CodeUnrecognizedReflectionPattern, "the assembly or type name passed to Activator.CreateInstance cannot be statically determined")
		return
	}
	for _, asm := range asms {
		for _, name := range typesOK {
			t, ok := ResolveTypeName(r.model, name, asm)
			if !ok {
				o.fail(diagnostic.CodeUnresolvedTypeName, "type name %q in assembly %q passed to Activator.CreateInstance could not be resolved", name, asm)
				continue
			}
			o.mark(metadata.TypeEntity(t))
			if ctor, ok := r.model.DefaultConstructor(t); ok {
				o.mark(metadata.MethodEntity(ctor))
			}
		}
	}
}

// satisfiable reports whether every value in v names a type or carries an
// annotation covering req.
func satisfiable(v ValueSet, req annotations.DAMTypes) bool {
	if v.IsUnknown() || v.IsEmpty() {
		return false
	}
	for _, val := range v.Values() {
		switch val.Kind {
		case ValueNull, ValueSystemType, ValueString:
		case ValueAnnotated:
			if !val.DAM.Covers(req) {
				return false
			}
		default:
			return false
		}
	}
	return true
}

// markCastCandidates keeps every constructor of the types an undetectable instance
// can be cast to right after creation: the cast target itself, its derived types
// and, for interfaces, its implementers.
func (r *Recognizer) markCastCandidates(o *outcome, body *metadata.MethodBody, offset int) {
	next := offset + 1
	if next >= len(body.Instructions) {
		return
	}
	in := body.Instructions[next]
	switch in.OpCode {
	case metadata.Castclass, metadata.Isinst, metadata.UnboxAny:
	default:
		return
	}
	target := r.resolveOrNone(in.Type)
	if target == metadata.NoType {
		return
	}
	for _, t := range r.castCandidates(target) {
		for _, ctor := range r.model.Constructors(t) {
			o.mark(metadata.MethodEntity(ctor))
		}
	}
}

func (r *Recognizer) castCandidates(target metadata.TypeID) []metadata.TypeID {
	td := r.model.Type(target)
	var out []metadata.TypeID
	if !td.IsInterface() {
		out = append(out, target)
		return append(out, r.store.DerivedTypes(target)...)
	}
	for i := range r.model.Types {
		id := metadata.TypeID(i)
		if !r.model.Type(id).IsInterface() && Implements(r.model, id, target) {
			out = append(out, id)
		}
	}
	return out
}

// byName handles the Get<Member>(string, ...) lookups where args[0] is the Type
// and args[1] the member name. bindingAt is the argument index of the binding
// flags when present.
func (r *Recognizer) byName(o *outcome, caller metadata.MethodID, args []ValueSet, bindingAt int, cat memberCategory, what string) {
	req := r.bindingDAM(args, bindingAt, cat)
	r.namedMembers(o, caller, args[0], args[1], cat, req, what)
}

func (r *Recognizer) namedMembers(o *outcome, caller metadata.MethodID, typ, name ValueSet, cat memberCategory, req annotations.DAMTypes, what string) {
	names := knownStrings(name)
	if names == nil {
		// Without a name every member of the category may be looked up.
		r.byCategory(o, caller, typ, req, what)
		return
	}
	if typ.IsUnknown() || typ.IsEmpty() {
		o.fail(diagnostic.CodeUnrecognizedReflectionPattern, "the type on which %s is called cannot be statically determined", what)
		return
	}
	for _, val := range typ.Values() {
		switch val.Kind {
		case ValueNull:
		case ValueSystemType:
			for _, n := range names {
				o.markAll(MembersNamed(r.model, val.Type, cat.name, n))
			}
		case ValueAnnotated:
			if !val.DAM.Covers(req) {
				o.fail(diagnostic.CodeDynamicallyAccessedMismatch,
					"%s does not satisfy the requirements of %s: missing %s", val.Origin, what, val.DAM.Missing(req))
			}
		default:
			o.fail(diagnostic.CodeUnrecognizedReflectionPattern, "the type on which %s is called cannot be statically determined", what)
		}
	}
}

// byCategory keeps every member the requirement selects on the receiving type.
func (r *Recognizer) byCategory(o *outcome, caller metadata.MethodID, typ ValueSet, req annotations.DAMTypes, what string) {
	r.require(o, caller, typ, req, "the type on which "+what+" is called")
}

func (r *Recognizer) getConstructor(o *outcome, caller metadata.MethodID, ref metadata.MethodRef, args []ValueSet, what string) {
	req := annotations.DAMPublicConstructors
	if len(ref.Parameters) > 1 {
		req = r.bindingDAM(args, 1, categoryCtors)
	}
	// An empty parameter type array selects the default constructor.
	for i, p := range ref.Parameters {
		if p.Kind != metadata.RefArray || p.Element == nil || !p.Element.Is(metadata.TypeType) {
			continue
		}
		vals := args[i+1].Values()
		if len(vals) == 1 && vals[0].Kind == ValueArray && vals[0].Int == 0 && req.Has(annotations.DAMPublicConstructors) {
			req = req&^annotations.DAMPublicConstructors | annotations.DAMPublicParameterlessConstructor
		}
	}
	r.require(o, caller, args[0], req, "the type on which "+what+" is called")
}

func (r *Recognizer) runClassConstructor(o *outcome, v ValueSet) {
	vals := v.Values()
	if len(vals) == 0 {
		o.fail(diagnostic.CodeUnrecognizedReflectionPattern, "the type handle passed to RuntimeHelpers.RunClassConstructor cannot be statically determined")
		return
	}
	for _, val := range vals {
		if val.Kind != ValueTypeHandle {
			o.fail(diagnostic.CodeUnrecognizedReflectionPattern, "the type handle passed to RuntimeHelpers.RunClassConstructor cannot be statically determined")
			continue
		}
		o.mark(metadata.TypeEntity(val.Type))
		if cctor, ok := r.model.StaticConstructor(val.Type); ok {
			o.mark(metadata.MethodEntity(cctor))
		}
	}
}

// bindingDAM maps the binding flags at args[i] to a requirement. Lookups without
// flags see public members; unknown flags see everything.
func (r *Recognizer) bindingDAM(args []ValueSet, i int, cat memberCategory) annotations.DAMTypes {
	if i >= len(args) {
		return cat.public
	}
	flags := knownInt(args[i])
	if flags < 0 {
		return cat.public | cat.nonPublic
	}
	var req annotations.DAMTypes
	if flags&bindingPublic != 0 {
		req |= cat.public
	}
	if flags&bindingNonPublic != 0 {
		req |= cat.nonPublic
	}
	return req
}

// knownInt returns the single integer a set holds, or -1.
func knownInt(v ValueSet) int64 {
	if vals := v.Values(); len(vals) == 1 && vals[0].Kind == ValueInt {
		return vals[0].Int
	}
	return -1
}

// knownStrings returns the strings a set holds, or nil when any member is not a
// string.
func knownStrings(v ValueSet) []string {
	vals := v.Values()
	if len(vals) == 0 {
		return nil
	}
	out := make([]string, 0, len(vals))
	for _, val := range vals {
		if val.Kind != ValueString {
			return nil
		}
		out = append(out, val.Str)
	}
	return out
}

// MembersNamed returns the members of category on t called name. Methods,
// fields, properties and events are searched through the base chain.
func MembersNamed(m *metadata.Model, t metadata.TypeID, category, name string) []metadata.Entity {
	var out []metadata.Entity
	chain := append([]metadata.TypeID{t}, m.BaseChain(t)...)
	switch category {
	case categoryMethods.name:
		for _, owner := range chain {
			for _, id := range m.FindMethods(owner, name) {
				if md := m.Method(id); !md.IsConstructor() && !md.IsStaticConstructor() {
					out = append(out, metadata.MethodEntity(id))
				}
			}
		}
	case categoryFields.name:
		for _, owner := range chain {
			if id, ok := m.FindField(owner, name); ok {
				out = append(out, metadata.FieldEntity(id))
			}
		}
	case categoryProperties.name:
		for _, owner := range chain {
			for _, id := range m.Type(owner).Properties {
				if m.Property(id).Name == name {
					out = append(out, metadata.PropertyEntity(id))
				}
			}
		}
	case categoryEvents.name:
		for _, owner := range chain {
			for _, id := range m.Type(owner).Events {
				if m.Event(id).Name == name {
					out = append(out, metadata.EventEntity(id))
				}
			}
		}
	case categoryNested.name:
		if id, ok := m.FindNested(t, name); ok {
			out = append(out, metadata.TypeEntity(id))
		}
	default:
		panic(fmt.Sprintf("reflection: unknown member category %q", category))
	}
	return out
}
