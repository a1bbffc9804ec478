package reflection

import (
	"fmt"

	"github.com/panbanda/iltrim/pkg/annotations"
	"github.com/panbanda/iltrim/pkg/dataflow"
	"github.com/panbanda/iltrim/pkg/metadata"
)

// siteKind classifies the instructions that are inspected after convergence.
type siteKind uint8

const (
	siteCall siteKind = iota
	siteStoreField
	siteReturn
)

// site is an inspected instruction together with the values that reached it.
type site struct {
	kind   siteKind
	offset int
	instr  metadata.Instruction
	// args holds the call arguments including this, or the stored value.
	args []ValueSet
}

// interpreter is the dataflow analysis over one method body.
type interpreter struct {
	r      *Recognizer
	method metadata.MethodID
}

var (
	_ dataflow.Analysis[State] = (*interpreter)(nil)
	_ dataflow.Stepper[State]  = (*interpreter)(nil)
)

func (it *interpreter) Top() State { return State{} }

func (it *interpreter) Entry() State {
	md := it.r.model.Method(it.method)
	st := State{reached: true}
	if !md.IsStatic() {
		st.Args = append(st.Args, Unknown())
	}
	for i, p := range md.Parameters {
		st.Args = append(st.Args, it.r.parameterValue(it.method, i, p))
	}
	if md.Body != nil {
		st.Locals = make([]ValueSet, len(md.Body.Locals))
		for i := range st.Locals {
			st.Locals[i] = Unknown()
		}
	}
	return st
}

func (it *interpreter) Meet(a, b State) State {
	if !a.reached {
		return b
	}
	if !b.reached {
		return a
	}
	return State{
		reached: true,
		Locals:  meetSlots(a.Locals, b.Locals),
		Args:    meetSlots(a.Args, b.Args),
		Stack:   meetStack(a.Stack, b.Stack),
	}
}

func (it *interpreter) Equal(a, b State) bool {
	if a.reached != b.reached {
		return false
	}
	return equalSlots(a.Locals, b.Locals) && equalSlots(a.Args, b.Args) && equalSlots(a.Stack, b.Stack)
}

func (it *interpreter) Transfer(g *dataflow.CFG, b *dataflow.Block, in State) State {
	if !in.reached {
		return in
	}
	st := in.clone()
	for i := b.Start; i < b.End; i++ {
		it.step(&st, i, g.Body.Instructions[i], nil)
	}
	return st
}

// Step applies instruction i to a copy of s.
func (it *interpreter) Step(g *dataflow.CFG, i int, s State) State {
	if !s.reached {
		return s
	}
	st := s.clone()
	it.step(&st, i, g.Body.Instructions[i], nil)
	return st
}

// EnterHandler pushes the exception object.
func (it *interpreter) EnterHandler(h metadata.ExceptionHandler, s State) State {
	if !s.reached {
		return s
	}
	out := s.clone()
	out.Stack = []ValueSet{Unknown()}
	return out
}

// step applies one instruction. visit, when set, receives every inspected site.
func (it *interpreter) step(st *State, offset int, in metadata.Instruction, visit func(site)) {
	r := it.r
	switch in.OpCode {
	case metadata.Nop, metadata.Constrained, metadata.Br, metadata.Rethrow, metadata.Endfinally:
	case metadata.Ldarg:
		st.push(slot(st.Args, in.Int))
	case metadata.Ldarga:
		setSlot(st.Args, in.Int, Unknown())
		st.push(Unknown())
	case metadata.Starg:
		setSlot(st.Args, in.Int, st.pop())
	case metadata.Ldloc:
		st.push(slot(st.Locals, in.Int))
	case metadata.Ldloca:
		setSlot(st.Locals, in.Int, Unknown())
		st.push(Unknown())
	case metadata.Stloc:
		setSlot(st.Locals, in.Int, st.pop())
	case metadata.Ldnull:
		st.push(Single(Value{Kind: ValueNull}))
	case metadata.LdcI4, metadata.LdcI8:
		st.push(Single(Value{Kind: ValueInt, Int: in.Int}))
	case metadata.Ldstr:
		st.push(Single(Value{Kind: ValueString, Str: in.Str}))
	case metadata.Ldfld:
		st.pop()
		st.push(r.fieldValue(in.Field))
	case metadata.Ldsfld:
		st.push(r.fieldValue(in.Field))
	case metadata.Stfld, metadata.Stsfld:
		v := st.pop()
		if in.OpCode == metadata.Stfld {
			st.pop()
		}
		if visit != nil {
			visit(site{kind: siteStoreField, offset: offset, instr: in, args: []ValueSet{v}})
		}
	case metadata.Call, metadata.Callvirt, metadata.Newobj:
		it.call(st, offset, in, visit)
	case metadata.Ldtoken:
		st.push(r.tokenValue(in))
	case metadata.Castclass, metadata.Isinst:
		st.push(st.pop())
	case metadata.Newarr:
		n := st.pop()
		length := int64(-1)
		if vs := n.Values(); len(vs) == 1 && vs[0].Kind == ValueInt {
			length = vs[0].Int
		}
		st.push(Single(Value{Kind: ValueArray, Int: length, Type: r.resolveOrNone(in.Type)}))
	case metadata.Dup:
		v := st.pop()
		st.push(v)
		st.push(v)
	case metadata.Leave:
		st.Stack = nil
	case metadata.Ret:
		md := r.model.Method(it.method)
		if !md.ReturnType.Is(metadata.TypeVoid) {
			v := st.pop()
			if visit != nil {
				visit(site{kind: siteReturn, offset: offset, instr: in, args: []ValueSet{v}})
			}
		}
	default:
		pops, pushes, _ := in.OpCode.StackBehavior()
		st.popN(pops)
		for i := 0; i < pushes; i++ {
			st.push(Unknown())
		}
	}
}

func (it *interpreter) call(st *State, offset int, in metadata.Instruction, visit func(site)) {
	r := it.r
	ref := *in.Method
	n := len(ref.Parameters)
	if in.OpCode != metadata.Newobj && r.hasThis(ref, in.OpCode) {
		n++
	}
	args := st.popN(n)
	if visit != nil {
		visit(site{kind: siteCall, offset: offset, instr: in, args: args})
	}
	switch {
	case in.OpCode == metadata.Newobj:
		t := r.resolveOrNone(&ref.DeclaringType)
		if t == metadata.NoType {
			st.push(Unknown())
		} else {
			st.push(Single(Value{Kind: ValueObject, Type: t}))
		}
	case !ref.ReturnType.Is(metadata.TypeVoid):
		st.push(r.returnValue(it.method, ref, args))
	}
}

func slot(slots []ValueSet, i int64) ValueSet {
	if i < 0 || int(i) >= len(slots) {
		return Unknown()
	}
	return slots[i]
}

func setSlot(slots []ValueSet, i int64, v ValueSet) {
	if i >= 0 && int(i) < len(slots) {
		slots[i] = v
	}
}

// parameterValue is the entry value of declared parameter i.
func (r *Recognizer) parameterValue(id metadata.MethodID, i int, p metadata.Parameter) ValueSet {
	dam := r.store.ParamDAM(annotations.ParamRef{Method: id, Index: i})
	if dam == annotations.DAMNone && !isSystemType(p.Type) {
		return Unknown()
	}
	return Single(Value{
		Kind:   ValueAnnotated,
		DAM:    dam,
		Origin: fmt.Sprintf("parameter '%s' of %s", p.Name, r.model.MethodName(id)),
	})
}

func (r *Recognizer) fieldValue(ref *metadata.FieldRef) ValueSet {
	id, ok := r.model.ResolveField(*ref)
	if !ok {
		return Unknown()
	}
	dam := r.store.FieldDAM(id)
	if dam == annotations.DAMNone && !isSystemType(ref.Type) {
		return Unknown()
	}
	return Single(Value{
		Kind:   ValueAnnotated,
		DAM:    dam,
		Origin: "field " + r.model.Name(metadata.FieldEntity(id)),
	})
}

func (r *Recognizer) tokenValue(in metadata.Instruction) ValueSet {
	if in.Type == nil {
		return Unknown()
	}
	t := r.resolveOrNone(in.Type)
	if t == metadata.NoType {
		return Unknown()
	}
	return Single(Value{Kind: ValueTypeHandle, Type: t})
}

// hasThis reports whether a call through ref passes an instance.
func (r *Recognizer) hasThis(ref metadata.MethodRef, op metadata.OpCode) bool {
	if id, ok := r.model.ResolveMethod(ref); ok {
		return !r.model.Method(id).IsStatic()
	}
	return op == metadata.Callvirt
}

func (r *Recognizer) resolveOrNone(ref *metadata.TypeRef) metadata.TypeID {
	if ref == nil {
		return metadata.NoType
	}
	id, ok := r.model.ResolveType(*ref)
	if !ok {
		return metadata.NoType
	}
	return id
}

func isSystemType(ref metadata.TypeRef) bool {
	return ref.Is(metadata.TypeType)
}
