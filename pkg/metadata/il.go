package metadata

import "fmt"

// OpCode is an IL instruction opcode.
type OpCode uint8

const (
	Nop OpCode = iota
	Ldarg
	Ldarga
	Starg
	Ldloc
	Ldloca
	Stloc
	Ldnull
	LdcI4
	LdcI8
	LdcR8
	Ldstr
	Ldfld
	Ldflda
	Stfld
	Ldsfld
	Ldsflda
	Stsfld
	Call
	Callvirt
	Newobj
	Ldftn
	Ldvirtftn
	Ldtoken
	Castclass
	Isinst
	Box
	UnboxAny
	Initobj
	Sizeof
	Constrained
	Newarr
	Ldlen
	Ldelem
	Ldelema
	Stelem
	Br
	Brtrue
	Brfalse
	Beq
	BneUn
	Switch
	Leave
	Ret
	Throw
	Rethrow
	Endfinally
	Endfilter
	Pop
	Dup
	Add
	Sub
	Mul
	Ceq
	Cgt
	Clt
	opCodeCount
)

// FlowControl classifies how an instruction transfers control.
type FlowControl uint8

const (
	FlowNext FlowControl = iota
	FlowBranch
	FlowCondBranch
	FlowSwitch
	FlowLeave
	FlowReturn
	FlowThrow
	FlowEndFinally
)

// OperandKind names which Instruction field carries the operand.
type OperandKind uint8

const (
	OperandNone OperandKind = iota
	OperandInt
	OperandFloat
	OperandString
	OperandType
	OperandMethod
	OperandField
	OperandToken
	OperandTarget
	OperandTargets
)

// Variable stack counts are computed from the method signature.
const varStack = -1

type opInfo struct {
	name    string
	operand OperandKind
	flow    FlowControl
	pops    int
	pushes  int
}

var opTable = [opCodeCount]opInfo{
	Nop:         {"nop", OperandNone, FlowNext, 0, 0},
	Ldarg:       {"ldarg", OperandInt, FlowNext, 0, 1},
	Ldarga:      {"ldarga", OperandInt, FlowNext, 0, 1},
	Starg:       {"starg", OperandInt, FlowNext, 1, 0},
	Ldloc:       {"ldloc", OperandInt, FlowNext, 0, 1},
	Ldloca:      {"ldloca", OperandInt, FlowNext, 0, 1},
	Stloc:       {"stloc", OperandInt, FlowNext, 1, 0},
	Ldnull:      {"ldnull", OperandNone, FlowNext, 0, 1},
	LdcI4:       {"ldc.i4", OperandInt, FlowNext, 0, 1},
	LdcI8:       {"ldc.i8", OperandInt, FlowNext, 0, 1},
	LdcR8:       {"ldc.r8", OperandFloat, FlowNext, 0, 1},
	Ldstr:       {"ldstr", OperandString, FlowNext, 0, 1},
	Ldfld:       {"ldfld", OperandField, FlowNext, 1, 1},
	Ldflda:      {"ldflda", OperandField, FlowNext, 1, 1},
	Stfld:       {"stfld", OperandField, FlowNext, 2, 0},
	Ldsfld:      {"ldsfld", OperandField, FlowNext, 0, 1},
	Ldsflda:     {"ldsflda", OperandField, FlowNext, 0, 1},
	Stsfld:      {"stsfld", OperandField, FlowNext, 1, 0},
	Call:        {"call", OperandMethod, FlowNext, varStack, varStack},
	Callvirt:    {"callvirt", OperandMethod, FlowNext, varStack, varStack},
	Newobj:      {"newobj", OperandMethod, FlowNext, varStack, 1},
	Ldftn:       {"ldftn", OperandMethod, FlowNext, 0, 1},
	Ldvirtftn:   {"ldvirtftn", OperandMethod, FlowNext, 1, 1},
	Ldtoken:     {"ldtoken", OperandToken, FlowNext, 0, 1},
	Castclass:   {"castclass", OperandType, FlowNext, 1, 1},
	Isinst:      {"isinst", OperandType, FlowNext, 1, 1},
	Box:         {"box", OperandType, FlowNext, 1, 1},
	UnboxAny:    {"unbox.any", OperandType, FlowNext, 1, 1},
	Initobj:     {"initobj", OperandType, FlowNext, 1, 0},
	Sizeof:      {"sizeof", OperandType, FlowNext, 0, 1},
	Constrained: {"constrained.", OperandType, FlowNext, 0, 0},
	Newarr:      {"newarr", OperandType, FlowNext, 1, 1},
	Ldlen:       {"ldlen", OperandNone, FlowNext, 1, 1},
	Ldelem:      {"ldelem", OperandType, FlowNext, 2, 1},
	Ldelema:     {"ldelema", OperandType, FlowNext, 2, 1},
	Stelem:      {"stelem", OperandType, FlowNext, 3, 0},
	Br:          {"br", OperandTarget, FlowBranch, 0, 0},
	Brtrue:      {"brtrue", OperandTarget, FlowCondBranch, 1, 0},
	Brfalse:     {"brfalse", OperandTarget, FlowCondBranch, 1, 0},
	Beq:         {"beq", OperandTarget, FlowCondBranch, 2, 0},
	BneUn:       {"bne.un", OperandTarget, FlowCondBranch, 2, 0},
	Switch:      {"switch", OperandTargets, FlowSwitch, 1, 0},
	Leave:       {"leave", OperandTarget, FlowLeave, 0, 0},
	Ret:         {"ret", OperandNone, FlowReturn, varStack, 0},
	Throw:       {"throw", OperandNone, FlowThrow, 1, 0},
	Rethrow:     {"rethrow", OperandNone, FlowThrow, 0, 0},
	Endfinally:  {"endfinally", OperandNone, FlowEndFinally, 0, 0},
	Endfilter:   {"endfilter", OperandNone, FlowEndFinally, 1, 0},
	Pop:         {"pop", OperandNone, FlowNext, 1, 0},
	Dup:         {"dup", OperandNone, FlowNext, 1, 2},
	Add:         {"add", OperandNone, FlowNext, 2, 1},
	Sub:         {"sub", OperandNone, FlowNext, 2, 1},
	Mul:         {"mul", OperandNone, FlowNext, 2, 1},
	Ceq:         {"ceq", OperandNone, FlowNext, 2, 1},
	Cgt:         {"cgt", OperandNone, FlowNext, 2, 1},
	Clt:         {"clt", OperandNone, FlowNext, 2, 1},
}

var opByName = func() map[string]OpCode {
	m := make(map[string]OpCode, opCodeCount)
	for i := OpCode(0); i < opCodeCount; i++ {
		m[opTable[i].name] = i
	}
	return m
}()

// ParseOpCode looks an opcode up by its mnemonic.
func ParseOpCode(name string) (OpCode, bool) {
	op, ok := opByName[name]
	return op, ok
}

func (op OpCode) String() string {
	if op < opCodeCount {
		return opTable[op].name
	}
	return fmt.Sprintf("op(%d)", uint8(op))
}

// Operand returns which operand field op uses.
func (op OpCode) Operand() OperandKind { return opTable[op].operand }

// Flow returns the control transfer of op.
func (op OpCode) Flow() FlowControl { return opTable[op].flow }

// StackBehavior returns fixed pop and push counts; variable is true for calls and ret,
// whose counts depend on the signature.
func (op OpCode) StackBehavior() (pops, pushes int, variable bool) {
	info := opTable[op]
	if info.pops == varStack || info.pushes == varStack {
		return info.pops, info.pushes, true
	}
	return info.pops, info.pushes, false
}

// IsCall reports whether op invokes a method.
func (op OpCode) IsCall() bool { return op == Call || op == Callvirt || op == Newobj }

// Instruction is one IL instruction. Which operand field is meaningful is decided by
// OpCode.Operand(); ldtoken sets exactly one of Type, Method or Field.
type Instruction struct {
	OpCode  OpCode
	Int     int64
	Float   float64
	Str     string
	Type    *TypeRef
	Method  *MethodRef
	Field   *FieldRef
	Targets []int
}

// Target returns the branch target of a single-target branch.
func (in Instruction) Target() int {
	if len(in.Targets) == 0 {
		return -1
	}
	return in.Targets[0]
}

func (in Instruction) String() string {
	switch in.OpCode.Operand() {
	case OperandInt:
		return fmt.Sprintf("%s %d", in.OpCode, in.Int)
	case OperandFloat:
		return fmt.Sprintf("%s %g", in.OpCode, in.Float)
	case OperandString:
		return fmt.Sprintf("%s %q", in.OpCode, in.Str)
	case OperandType:
		return fmt.Sprintf("%s %s", in.OpCode, in.Type)
	case OperandMethod:
		return fmt.Sprintf("%s %s", in.OpCode, in.Method)
	case OperandField:
		return fmt.Sprintf("%s %s", in.OpCode, in.Field)
	case OperandToken:
		switch {
		case in.Type != nil:
			return fmt.Sprintf("%s %s", in.OpCode, in.Type)
		case in.Method != nil:
			return fmt.Sprintf("%s %s", in.OpCode, in.Method)
		case in.Field != nil:
			return fmt.Sprintf("%s %s", in.OpCode, in.Field)
		}
	case OperandTarget, OperandTargets:
		return fmt.Sprintf("%s %v", in.OpCode, in.Targets)
	}
	return in.OpCode.String()
}

// Op builds an instruction without operand.
func Op(op OpCode) Instruction { return Instruction{OpCode: op} }

// OpInt builds an instruction with an integer operand.
func OpInt(op OpCode, v int64) Instruction { return Instruction{OpCode: op, Int: v} }

// OpFloat builds an instruction with a floating point operand.
func OpFloat(op OpCode, v float64) Instruction { return Instruction{OpCode: op, Float: v} }

// OpString builds ldstr.
func OpString(s string) Instruction { return Instruction{OpCode: Ldstr, Str: s} }

// OpType builds an instruction with a type operand.
func OpType(op OpCode, t TypeRef) Instruction { return Instruction{OpCode: op, Type: &t} }

// OpMethod builds an instruction with a method operand.
func OpMethod(op OpCode, m MethodRef) Instruction { return Instruction{OpCode: op, Method: &m} }

// OpField builds an instruction with a field operand.
func OpField(op OpCode, f FieldRef) Instruction { return Instruction{OpCode: op, Field: &f} }

// OpBranch builds a single-target branch to the instruction at index target.
func OpBranch(op OpCode, target int) Instruction {
	return Instruction{OpCode: op, Targets: []int{target}}
}

// OpSwitch builds a switch over targets.
func OpSwitch(targets ...int) Instruction {
	return Instruction{OpCode: Switch, Targets: targets}
}

// HandlerKind is the kind of an exception handling clause.
type HandlerKind uint8

const (
	HandlerCatch HandlerKind = iota
	HandlerFilter
	HandlerFinally
	HandlerFault
)

func (k HandlerKind) String() string {
	switch k {
	case HandlerCatch:
		return "catch"
	case HandlerFilter:
		return "filter"
	case HandlerFinally:
		return "finally"
	case HandlerFault:
		return "fault"
	default:
		return fmt.Sprintf("handler(%d)", uint8(k))
	}
}

// ExceptionHandler is one protected region. Ranges are instruction indices with
// exclusive ends.
type ExceptionHandler struct {
	Kind         HandlerKind
	TryStart     int
	TryEnd       int
	HandlerStart int
	HandlerEnd   int
	FilterStart  int
	CatchType    *TypeRef
}

// SequencePoint maps an instruction to a source location.
type SequencePoint struct {
	Offset   int
	Document string
	Line     int
}

// Scope names the local variables visible over an instruction range.
type Scope struct {
	Start     int
	End       int
	Variables []string
}

// DebugInfo is the symbol information attached to a body.
type DebugInfo struct {
	SequencePoints []SequencePoint
	Scopes         []Scope
}

// Empty reports whether d carries nothing.
func (d *DebugInfo) Empty() bool {
	return d == nil || (len(d.SequencePoints) == 0 && len(d.Scopes) == 0)
}

// MethodBody is the implementation of a method.
type MethodBody struct {
	Instructions      []Instruction
	Locals            []TypeRef
	InitLocals        bool
	ExceptionHandlers []ExceptionHandler
	Debug             *DebugInfo
}
