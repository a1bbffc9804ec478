package dataflow

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/panbanda/iltrim/pkg/metadata"
)

// localValues tracks the set of small constants local 0 may hold, as a bitmask.
type localValues struct {
	handlerEntries int
}

func (localValues) Top() uint64             { return 0 }
func (localValues) Entry() uint64           { return 0 }
func (localValues) Meet(a, b uint64) uint64 { return a | b }
func (localValues) Equal(a, b uint64) bool  { return a == b }

func (localValues) Transfer(g *CFG, b *Block, in uint64) uint64 {
	state := in
	pending := int64(-1)
	for i := b.Start; i < b.End; i++ {
		ins := g.Body.Instructions[i]
		switch {
		case ins.OpCode == metadata.LdcI4:
			pending = ins.Int
		case ins.OpCode == metadata.Stloc && ins.Int == 0:
			if pending >= 0 {
				state = 1 << uint(pending)
			} else {
				state = ^uint64(0)
			}
			pending = -1
		default:
			pending = -1
		}
	}
	return state
}

func (l *localValues) EnterHandler(h metadata.ExceptionHandler, s uint64) uint64 {
	l.handlerEntries++
	return s
}

func values(bits ...int) uint64 {
	var out uint64
	for _, b := range bits {
		out |= 1 << uint(b)
	}
	return out
}

func body(handlers []metadata.ExceptionHandler, instrs ...metadata.Instruction) *metadata.MethodBody {
	return &metadata.MethodBody{Instructions: instrs, ExceptionHandlers: handlers}
}

func TestBuildSplitsBlocks(t *testing.T) {
	b := body(nil,
		metadata.OpInt(metadata.Ldarg, 0),      // 0
		metadata.OpBranch(metadata.Brfalse, 4), // 1
		metadata.OpInt(metadata.LdcI4, 1),      // 2
		metadata.OpBranch(metadata.Br, 5),      // 3
		metadata.OpInt(metadata.LdcI4, 2),      // 4
		metadata.OpInt(metadata.Stloc, 0),      // 5
		metadata.Op(metadata.Ret),              // 6
	)
	g := Build(b)

	require.Len(t, g.Blocks, 4)
	assert.Equal(t, [2]int{0, 2}, [2]int{g.Blocks[0].Start, g.Blocks[0].End})
	assert.ElementsMatch(t, []int{1, 2}, g.Blocks[0].Succs)
	assert.Equal(t, []int{3}, g.Blocks[1].Succs)
	assert.Equal(t, []int{3}, g.Blocks[2].Succs)
	assert.ElementsMatch(t, []int{1, 2}, g.Blocks[3].Preds)
	assert.Equal(t, 3, g.BlockOf(6))
}

func TestSolveDiamond(t *testing.T) {
	b := body(nil,
		metadata.OpInt(metadata.Ldarg, 0),      // 0
		metadata.OpBranch(metadata.Brfalse, 5), // 1
		metadata.OpInt(metadata.LdcI4, 1),      // 2
		metadata.OpInt(metadata.Stloc, 0),      // 3
		metadata.OpBranch(metadata.Br, 7),      // 4
		metadata.OpInt(metadata.LdcI4, 2),      // 5
		metadata.OpInt(metadata.Stloc, 0),      // 6
		metadata.OpInt(metadata.Ldloc, 0),      // 7
		metadata.Op(metadata.Ret),              // 8
	)
	g := Build(b)
	res := Solve[uint64](g, &localValues{})

	assert.Equal(t, values(1, 2), res.In[g.BlockOf(7)])
}

func TestSolveLoopConverges(t *testing.T) {
	b := body(nil,
		metadata.OpInt(metadata.LdcI4, 1),     // 0
		metadata.OpInt(metadata.Stloc, 0),     // 1
		metadata.OpInt(metadata.Ldarg, 0),     // 2 loop head
		metadata.OpBranch(metadata.Brtrue, 7), // 3
		metadata.OpInt(metadata.LdcI4, 3),     // 4
		metadata.OpInt(metadata.Stloc, 0),     // 5
		metadata.OpBranch(metadata.Br, 2),     // 6
		metadata.Op(metadata.Ret),             // 7
	)
	g := Build(b)
	res := Solve[uint64](g, &localValues{})

	assert.Equal(t, values(1, 3), res.In[g.BlockOf(2)])
	assert.Equal(t, values(1, 3), res.In[g.BlockOf(7)])
}

func TestSolveCatchSeesExceptionState(t *testing.T) {
	b := body(
		[]metadata.ExceptionHandler{{
			Kind: metadata.HandlerCatch, TryStart: 2, TryEnd: 5, HandlerStart: 5, HandlerEnd: 8,
			CatchType: ptr(metadata.ObjectRef()),
		}},
		metadata.OpInt(metadata.LdcI4, 1),    // 0
		metadata.OpInt(metadata.Stloc, 0),    // 1
		metadata.OpInt(metadata.LdcI4, 2),    // 2 try
		metadata.OpInt(metadata.Stloc, 0),    // 3
		metadata.OpBranch(metadata.Leave, 8), // 4
		metadata.Op(metadata.Pop),            // 5 catch
		metadata.Op(metadata.Nop),            // 6
		metadata.OpBranch(metadata.Leave, 8), // 7
		metadata.OpInt(metadata.Ldloc, 0),    // 8
		metadata.Op(metadata.Ret),            // 9
	)
	g := Build(b)
	a := &localValues{}
	res := Solve[uint64](g, a)

	catchEntry := g.BlockOf(5)
	assert.Empty(t, g.Blocks[catchEntry].Preds, "no normal edge enters a catch")
	assert.Equal(t, values(1, 2), res.Exception[0])
	assert.Equal(t, values(1, 2), res.In[catchEntry])
	assert.Equal(t, values(1, 2), res.In[g.BlockOf(8)])
	assert.Positive(t, a.handlerEntries)
}

func TestSolveLeaveRunsFinally(t *testing.T) {
	b := body(
		[]metadata.ExceptionHandler{{
			Kind: metadata.HandlerFinally, TryStart: 2, TryEnd: 5, HandlerStart: 5, HandlerEnd: 8,
		}},
		metadata.OpInt(metadata.LdcI4, 1),    // 0
		metadata.OpInt(metadata.Stloc, 0),    // 1
		metadata.OpInt(metadata.LdcI4, 2),    // 2 try
		metadata.OpInt(metadata.Stloc, 0),    // 3
		metadata.OpBranch(metadata.Leave, 8), // 4
		metadata.OpInt(metadata.LdcI4, 3),    // 5 finally
		metadata.OpInt(metadata.Stloc, 0),    // 6
		metadata.Op(metadata.Endfinally),     // 7
		metadata.OpInt(metadata.Ldloc, 0),    // 8
		metadata.Op(metadata.Ret),            // 9
	)
	g := Build(b)
	a := &localValues{}
	res := Solve[uint64](g, a)

	finally := g.BlockOf(5)
	assert.Equal(t, []int{finally}, g.Blocks[g.BlockOf(4)].Succs, "leave goes through the finally")
	assert.Equal(t, []int{g.BlockOf(8)}, g.Blocks[g.BlockOf(7)].Succs)
	assert.Equal(t, values(1, 2), res.In[finally])
	assert.Equal(t, values(3), res.In[g.BlockOf(8)])
	assert.Zero(t, a.handlerEntries, "finally entries do not enter a handler")
}

func TestSolveNestedFinallies(t *testing.T) {
	b := body(
		[]metadata.ExceptionHandler{
			{Kind: metadata.HandlerFinally, TryStart: 1, TryEnd: 3, HandlerStart: 3, HandlerEnd: 6},
			{Kind: metadata.HandlerFinally, TryStart: 0, TryEnd: 6, HandlerStart: 6, HandlerEnd: 9},
		},
		metadata.Op(metadata.Nop),            // 0 outer try
		metadata.Op(metadata.Nop),            // 1 inner try
		metadata.OpBranch(metadata.Leave, 9), // 2
		metadata.OpInt(metadata.LdcI4, 4),    // 3 inner finally
		metadata.OpInt(metadata.Stloc, 0),    // 4
		metadata.Op(metadata.Endfinally),     // 5
		metadata.OpInt(metadata.LdcI4, 5),    // 6 outer finally
		metadata.OpInt(metadata.Stloc, 0),    // 7
		metadata.Op(metadata.Endfinally),     // 8
		metadata.Op(metadata.Ret),            // 9
	)
	g := Build(b)
	res := Solve[uint64](g, &localValues{})

	inner, outer := g.BlockOf(3), g.BlockOf(6)
	assert.Equal(t, []int{inner}, g.Blocks[g.BlockOf(2)].Succs)
	assert.Equal(t, []int{outer}, g.Blocks[g.BlockOf(5)].Succs)
	assert.Equal(t, []int{g.BlockOf(9)}, g.Blocks[g.BlockOf(8)].Succs)
	assert.Equal(t, values(5), res.In[g.BlockOf(9)])
}

func TestSolveEmptyBody(t *testing.T) {
	g := Build(&metadata.MethodBody{})
	res := Solve[uint64](g, &localValues{})
	assert.Empty(t, res.In)
}

func ptr[T any](v T) *T { return &v }

// lastConstant tracks the most recent ldc.i4 operand one instruction at a time.
type lastConstant struct{}

func (lastConstant) Top() uint64             { return 0 }
func (lastConstant) Entry() uint64           { return 0 }
func (lastConstant) Meet(a, b uint64) uint64 { return a | b }
func (lastConstant) Equal(a, b uint64) bool  { return a == b }

func (l lastConstant) Transfer(g *CFG, b *Block, in uint64) uint64 {
	for i := b.Start; i < b.End; i++ {
		in = l.Step(g, i, in)
	}
	return in
}

func (lastConstant) Step(g *CFG, i int, s uint64) uint64 {
	if ins := g.Body.Instructions[i]; ins.OpCode == metadata.LdcI4 {
		return 1 << uint(ins.Int)
	}
	return s
}

func TestSolveExceptionStateSeesIntermediateValues(t *testing.T) {
	b := body(
		[]metadata.ExceptionHandler{{
			Kind: metadata.HandlerCatch, TryStart: 1, TryEnd: 5, HandlerStart: 5, HandlerEnd: 7,
			CatchType: ptr(metadata.ObjectRef()),
		}},
		metadata.OpInt(metadata.LdcI4, 0),    // 0
		metadata.OpInt(metadata.LdcI4, 1),    // 1 try
		metadata.Op(metadata.Nop),            // 2
		metadata.OpInt(metadata.LdcI4, 2),    // 3
		metadata.OpBranch(metadata.Leave, 7), // 4
		metadata.Op(metadata.Pop),            // 5 catch
		metadata.OpBranch(metadata.Leave, 7), // 6
		metadata.Op(metadata.Ret),            // 7
	)
	g := Build(b)
	require.Equal(t, 1, g.Blocks[g.BlockOf(1)].Start)
	require.Equal(t, g.BlockOf(1), g.BlockOf(3), "the try body is one block")

	res := Solve[uint64](g, lastConstant{})

	assert.Equal(t, values(0, 1, 2), res.Exception[0])
	assert.Equal(t, values(0, 1, 2), res.In[g.BlockOf(5)])
}
