package document

import (
	"errors"
	"fmt"
	"math"

	"github.com/panbanda/iltrim/pkg/metadata"
	"github.com/panbanda/iltrim/pkg/metadata/typename"
)

// AddTo appends the assembly described by d to b. Type names without an assembly
// qualifier resolve against every loaded assembly in load order.
func (d *Document) AddTo(b *metadata.Builder, source, mvid string) error {
	ab := b.Assembly(d.Name)
	def := ab.Def()
	if def.Source != "" || len(def.Types) > 0 {
		return fmt.Errorf("assembly %s: already loaded from %s", d.Name, def.Source)
	}
	def.Source = source
	def.MVID = mvid

	c := &converter{ab: ab}
	ab.Reference(d.References...)
	for _, fwd := range d.Forwarders {
		n, err := typename.Parse(fwd.Type)
		if err != nil {
			c.fail("forwarder %q: %w", fwd.Type, err)
			continue
		}
		ab.Forward(n.Definition().FullName, fwd.Target)
	}
	for _, a := range d.Attributes {
		if ca, ok := c.attribute(a, "assembly attribute"); ok {
			ab.Attr(ca)
		}
	}
	for i := range d.Types {
		c.addType(&d.Types[i], nil)
	}
	if d.EntryPoint != nil {
		if ref, ok := c.methodRef(d.EntryPoint, "entry point"); ok {
			ab.EntryPoint(ref)
		}
	}
	if len(c.errs) > 0 {
		return fmt.Errorf("assembly %s: %w", d.Name, errors.Join(c.errs...))
	}
	return nil
}

type converter struct {
	ab   *metadata.AssemblyBuilder
	errs []error
}

func (c *converter) fail(format string, args ...any) {
	c.errs = append(c.errs, fmt.Errorf(format, args...))
}

func (c *converter) typeRef(s, where string) (metadata.TypeRef, bool) {
	n, err := typename.Parse(s)
	if err != nil {
		c.fail("%s: %w", where, err)
		return metadata.TypeRef{}, false
	}
	return n.ToTypeRef(""), true
}

func (c *converter) typeRefs(names []string, where string) ([]metadata.TypeRef, bool) {
	out := make([]metadata.TypeRef, 0, len(names))
	ok := true
	for _, s := range names {
		ref, good := c.typeRef(s, where)
		ok = ok && good
		out = append(out, ref)
	}
	return out, ok
}

func (c *converter) visibility(s, where string) (metadata.Visibility, bool) {
	if s == "" {
		return metadata.VisibilityPublic, true
	}
	v, ok := metadata.ParseVisibility(s)
	if !ok {
		c.fail("%s: unknown visibility %q", where, s)
	}
	return v, ok
}

func (c *converter) addType(td *TypeDocument, outer *metadata.TypeBuilder) {
	var tb *metadata.TypeBuilder
	if outer == nil {
		tb = c.ab.Type(td.Namespace, td.Name)
	} else {
		tb = outer.NestedType(td.Name)
	}
	t := tb.Def()
	where := "type " + t.FullName

	if v, ok := c.visibility(td.Visibility, where); ok {
		tb.WithVisibility(v)
	}
	flags, err := parseFlags(td.Flags, typeFlagNames)
	if err != nil {
		c.fail("%s: %w", where, err)
	}
	tb.WithFlags(flags)
	if td.Base != "" {
		if base, ok := c.typeRef(td.Base, where+" base"); ok {
			tb.Extends(base)
		}
	}
	for _, iface := range td.Interfaces {
		ref, ok := c.typeRef(iface.Type, where+" interface")
		if !ok {
			continue
		}
		t.Interfaces = append(t.Interfaces, metadata.InterfaceImpl{
			Interface:  ref,
			Attributes: c.attributes(iface.Attributes, where),
		})
	}
	t.GenericParameters = c.genericParams(td.GenericParams, where)
	t.Attributes = c.attributes(td.Attributes, where)

	for _, fd := range td.Fields {
		c.addField(tb, fd)
	}
	methods := make(map[string]*metadata.MethodBuilder, len(td.Methods))
	for i := range td.Methods {
		mb := c.addMethod(tb, &td.Methods[i])
		if _, dup := methods[mb.Def().Name]; !dup {
			methods[mb.Def().Name] = mb
		}
	}
	accessor := func(name, where string) *metadata.MethodBuilder {
		if name == "" {
			return nil
		}
		mb, ok := methods[name]
		if !ok {
			c.fail("%s: no method %s", where, name)
		}
		return mb
	}
	for _, p := range td.Properties {
		pw := where + " property " + p.Name
		typ, ok := c.typeRef(p.Type, pw)
		if !ok {
			continue
		}
		pb := tb.Property(p.Name, typ, accessor(p.Getter, pw), accessor(p.Setter, pw))
		for _, ca := range c.attributes(p.Attributes, pw) {
			pb.Attr(ca)
		}
	}
	for _, e := range td.Events {
		ew := where + " event " + e.Name
		typ, ok := c.typeRef(e.Type, ew)
		if !ok {
			continue
		}
		eb := tb.Event(e.Name, typ, accessor(e.Add, ew), accessor(e.Remove, ew))
		for _, ca := range c.attributes(e.Attributes, ew) {
			eb.Attr(ca)
		}
	}
	for i := range td.Nested {
		c.addType(&td.Nested[i], tb)
	}
}

func (c *converter) addField(tb *metadata.TypeBuilder, fd FieldDocument) {
	where := fmt.Sprintf("field %s::%s", tb.Def().FullName, fd.Name)
	typ, _ := c.typeRef(fd.Type, where)
	fb := tb.Field(fd.Name, typ)
	if v, ok := c.visibility(fd.Visibility, where); ok {
		fb.WithVisibility(v)
	}
	flags, err := parseFlags(fd.Flags, fieldFlagNames)
	if err != nil {
		c.fail("%s: %w", where, err)
	}
	fb.Def().Flags = flags
	fb.Def().Attributes = c.attributes(fd.Attributes, where)
}

func (c *converter) addMethod(tb *metadata.TypeBuilder, md *MethodDocument) *metadata.MethodBuilder {
	where := fmt.Sprintf("method %s::%s", tb.Def().FullName, md.Name)
	ret := metadata.Named("", metadata.TypeVoid)
	if md.Returns != "" {
		ret, _ = c.typeRef(md.Returns, where+" return type")
	}
	params := make([]metadata.TypeRef, len(md.Params))
	for i, p := range md.Params {
		params[i], _ = c.typeRef(p.Type, fmt.Sprintf("%s parameter %d", where, i))
	}
	mb := tb.Method(md.Name, ret, params...)
	m := mb.Def()
	for i, p := range md.Params {
		if p.Name != "" {
			m.Parameters[i].Name = p.Name
		}
		m.Parameters[i].Attributes = c.attributes(p.Attributes, where)
	}
	if v, ok := c.visibility(md.Visibility, where); ok {
		mb.WithVisibility(v)
	}
	flags, err := parseFlags(md.Flags, methodFlagNames)
	if err != nil {
		c.fail("%s: %w", where, err)
	}
	impl, err := parseFlags(md.Impl, implFlagNames)
	if err != nil {
		c.fail("%s: %w", where, err)
	}
	m.Flags = flags
	m.Impl = impl
	m.GenericParameters = c.genericParams(md.GenericParams, where)
	m.ReturnAttributes = c.attributes(md.ReturnAttributes, where)
	m.Attributes = c.attributes(md.Attributes, where)
	for i := range md.Overrides {
		if ref, ok := c.methodRef(&md.Overrides[i], where+" override"); ok {
			mb.Overrides(ref)
		}
	}
	if md.Body != nil {
		if m.IsAbstract() {
			c.fail("%s: abstract method has a body", where)
		} else {
			m.Body = c.body(md.Body, where)
		}
	}
	return mb
}

func (c *converter) genericParams(gps []GenericParam, where string) []metadata.GenericParameter {
	if len(gps) == 0 {
		return nil
	}
	out := make([]metadata.GenericParameter, len(gps))
	for i, gp := range gps {
		constraints, _ := c.typeRefs(gp.Constraints, where+" constraint")
		out[i] = metadata.GenericParameter{
			Name:                    gp.Name,
			Position:                i,
			Constraints:             constraints,
			DefaultCtorConstraint:   gp.DefaultCtor,
			ReferenceTypeConstraint: gp.ReferenceType,
			Attributes:              c.attributes(gp.Attributes, where),
		}
	}
	return out
}

func (c *converter) methodRef(r *MethodRef, where string) (metadata.MethodRef, bool) {
	decl, ok := c.typeRef(r.Type, where)
	if !ok {
		return metadata.MethodRef{}, false
	}
	params, ok := c.typeRefs(r.Params, where)
	if !ok {
		return metadata.MethodRef{}, false
	}
	ret := metadata.Named("", metadata.TypeVoid)
	if r.Returns != "" {
		if ret, ok = c.typeRef(r.Returns, where); !ok {
			return metadata.MethodRef{}, false
		}
	}
	inst, ok := c.typeRefs(r.Instantiation, where)
	if !ok {
		return metadata.MethodRef{}, false
	}
	arity := r.Arity
	if arity == 0 {
		arity = len(inst)
	}
	if len(inst) > 0 && len(inst) != arity {
		c.fail("%s: %s has arity %d but %d type arguments", where, r.Name, arity, len(inst))
		return metadata.MethodRef{}, false
	}
	ref := metadata.MethodRef{
		DeclaringType: decl,
		Name:          r.Name,
		Parameters:    params,
		ReturnType:    ret,
		GenericArity:  arity,
	}
	if len(inst) > 0 {
		ref.Instantiation = inst
	}
	return ref, true
}

func (c *converter) fieldRef(r *FieldRef, where string) (metadata.FieldRef, bool) {
	decl, ok := c.typeRef(r.Type, where)
	if !ok {
		return metadata.FieldRef{}, false
	}
	typ, ok := c.typeRef(r.FieldType, where)
	if !ok {
		return metadata.FieldRef{}, false
	}
	return metadata.FieldRef{DeclaringType: decl, Name: r.Name, Type: typ}, true
}

func (c *converter) body(bd *Body, where string) *metadata.MethodBody {
	locals, _ := c.typeRefs(bd.Locals, where+" locals")
	body := &metadata.MethodBody{
		Locals:       locals,
		InitLocals:   bd.InitLocals,
		Instructions: make([]metadata.Instruction, 0, len(bd.Instructions)),
	}
	n := len(bd.Instructions)
	for i := range bd.Instructions {
		in, ok := c.instruction(&bd.Instructions[i], n, fmt.Sprintf("%s instruction %d", where, i))
		if ok {
			body.Instructions = append(body.Instructions, in)
		}
	}
	for i, h := range bd.Handlers {
		hw := fmt.Sprintf("%s handler %d", where, i)
		kind, ok := handlerKindNames[h.Kind]
		if !ok {
			c.fail("%s: unknown kind %q", hw, h.Kind)
			continue
		}
		if !validRange(h.TryStart, h.TryEnd, n) || !validRange(h.HandlerStart, h.HandlerEnd, n) {
			c.fail("%s: range outside the %d instructions of the body", hw, n)
			continue
		}
		eh := metadata.ExceptionHandler{
			Kind:         kind,
			TryStart:     h.TryStart,
			TryEnd:       h.TryEnd,
			HandlerStart: h.HandlerStart,
			HandlerEnd:   h.HandlerEnd,
			FilterStart:  h.FilterStart,
		}
		if h.CatchType != "" {
			if ref, ok := c.typeRef(h.CatchType, hw); ok {
				eh.CatchType = &ref
			}
		}
		body.ExceptionHandlers = append(body.ExceptionHandlers, eh)
	}
	if bd.Debug != nil {
		dbg := &metadata.DebugInfo{}
		for _, sp := range bd.Debug.SequencePoints {
			dbg.SequencePoints = append(dbg.SequencePoints, metadata.SequencePoint(sp))
		}
		for _, s := range bd.Debug.Scopes {
			dbg.Scopes = append(dbg.Scopes, metadata.Scope(s))
		}
		body.Debug = dbg
	}
	return body
}

func validRange(start, end, n int) bool {
	return start >= 0 && start < end && end <= n
}

func (c *converter) instruction(id *Instruction, n int, where string) (metadata.Instruction, bool) {
	op, ok := metadata.ParseOpCode(id.Op)
	if !ok {
		c.fail("%s: unknown opcode %q", where, id.Op)
		return metadata.Instruction{}, false
	}
	in := metadata.Instruction{OpCode: op}
	missing := func(operand string) (metadata.Instruction, bool) {
		c.fail("%s: %s needs a %s operand", where, id.Op, operand)
		return metadata.Instruction{}, false
	}
	switch op.Operand() {
	case metadata.OperandInt:
		if id.Int == nil {
			return missing("int")
		}
		in.Int = *id.Int
	case metadata.OperandFloat:
		if id.Float == nil {
			return missing("float")
		}
		in.Float = *id.Float
	case metadata.OperandString:
		if id.String == nil {
			return missing("string")
		}
		in.Str = *id.String
	case metadata.OperandType:
		if id.Type == "" {
			return missing("type")
		}
		ref, ok := c.typeRef(id.Type, where)
		if !ok {
			return metadata.Instruction{}, false
		}
		in.Type = &ref
	case metadata.OperandMethod:
		if id.Method == nil {
			return missing("method")
		}
		ref, ok := c.methodRef(id.Method, where)
		if !ok {
			return metadata.Instruction{}, false
		}
		in.Method = &ref
	case metadata.OperandField:
		if id.Field == nil {
			return missing("field")
		}
		ref, ok := c.fieldRef(id.Field, where)
		if !ok {
			return metadata.Instruction{}, false
		}
		in.Field = &ref
	case metadata.OperandToken:
		switch {
		case id.Type != "":
			ref, ok := c.typeRef(id.Type, where)
			if !ok {
				return metadata.Instruction{}, false
			}
			in.Type = &ref
		case id.Method != nil:
			ref, ok := c.methodRef(id.Method, where)
			if !ok {
				return metadata.Instruction{}, false
			}
			in.Method = &ref
		case id.Field != nil:
			ref, ok := c.fieldRef(id.Field, where)
			if !ok {
				return metadata.Instruction{}, false
			}
			in.Field = &ref
		default:
			return missing("type, method or field")
		}
	case metadata.OperandTarget:
		if id.Target == nil {
			return missing("target")
		}
		in.Targets = []int{*id.Target}
	case metadata.OperandTargets:
		in.Targets = append([]int(nil), id.Targets...)
	}
	for _, t := range in.Targets {
		if t < 0 || t >= n {
			c.fail("%s: branch target %d outside the body", where, t)
			return metadata.Instruction{}, false
		}
	}
	return in, true
}

func (c *converter) attributes(as []Attribute, where string) []metadata.CustomAttribute {
	if len(as) == 0 {
		return nil
	}
	out := make([]metadata.CustomAttribute, 0, len(as))
	for _, a := range as {
		if ca, ok := c.attribute(a, where); ok {
			out = append(out, ca)
		}
	}
	return out
}

func (c *converter) attribute(a Attribute, where string) (metadata.CustomAttribute, bool) {
	where = fmt.Sprintf("%s attribute %s", where, a.Type)
	attrType, ok := c.typeRef(a.Type, where)
	if !ok {
		return metadata.CustomAttribute{}, false
	}
	args := make([]metadata.AttributeArg, 0, len(a.Args))
	for i, arg := range a.Args {
		typ, ok := c.typeRef(arg.Type, where)
		if !ok {
			return metadata.CustomAttribute{}, false
		}
		v, err := ArgValue(typ, arg.Value)
		if err != nil {
			c.fail("%s argument %d: %w", where, i, err)
			return metadata.CustomAttribute{}, false
		}
		args = append(args, v)
	}
	ca := metadata.NewAttribute(attrType, args...)
	for _, na := range a.Named {
		typ, ok := c.typeRef(na.Type, where)
		if !ok {
			return metadata.CustomAttribute{}, false
		}
		v, err := ArgValue(typ, na.Value)
		if err != nil {
			c.fail("%s named %s: %w", where, na.Name, err)
			return metadata.CustomAttribute{}, false
		}
		ca.Named = append(ca.Named, metadata.NamedArg{Name: na.Name, IsField: na.Field, Value: v})
	}
	return ca, true
}

// ArgValue converts a decoded YAML/JSON value to an attribute argument of type typ.
func ArgValue(typ metadata.TypeRef, v any) (metadata.AttributeArg, error) {
	arg := metadata.AttributeArg{Type: typ}
	if v == nil {
		arg.Kind = metadata.ArgNull
		return arg, nil
	}
	switch {
	case typ.Kind == metadata.RefArray:
		list, ok := v.([]any)
		if !ok {
			return arg, fmt.Errorf("want a list for %s, got %T", typ, v)
		}
		arg.Kind = metadata.ArgArray
		for _, e := range list {
			ev, err := ArgValue(*typ.Element, e)
			if err != nil {
				return arg, err
			}
			arg.Elems = append(arg.Elems, ev)
		}
	case typ.Is(metadata.TypeString):
		s, ok := v.(string)
		if !ok {
			return arg, fmt.Errorf("want a string, got %T", v)
		}
		arg.Kind = metadata.ArgString
		arg.Str = s
	case typ.Is(metadata.TypeType):
		s, ok := v.(string)
		if !ok {
			return arg, fmt.Errorf("want a type name, got %T", v)
		}
		n, err := typename.Parse(s)
		if err != nil {
			return arg, err
		}
		ref := n.ToTypeRef("")
		arg.Kind = metadata.ArgType
		arg.Typ = &ref
	case typ.Is(metadata.TypeBoolean):
		b, ok := v.(bool)
		if !ok {
			return arg, fmt.Errorf("want a boolean, got %T", v)
		}
		arg.Kind = metadata.ArgBool
		arg.Bool = b
	default:
		i, err := toInt64(v)
		if err != nil {
			return arg, err
		}
		arg.Kind = metadata.ArgInt
		arg.Int = i
	}
	return arg, nil
}

func toInt64(v any) (int64, error) {
	switch n := v.(type) {
	case int:
		return int64(n), nil
	case int64:
		return n, nil
	case uint64:
		if n > math.MaxInt64 {
			return 0, fmt.Errorf("integer %d out of range", n)
		}
		return int64(n), nil
	case float64:
		if n != math.Trunc(n) {
			return 0, fmt.Errorf("want an integer, got %v", n)
		}
		return int64(n), nil
	default:
		return 0, fmt.Errorf("want an integer, got %T", v)
	}
}
