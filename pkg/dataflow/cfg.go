// Package dataflow provides a forward fixpoint framework over the control flow
// graph of a method body, with explicit exception state per protected region.
package dataflow

import (
	"sort"

	"github.com/panbanda/iltrim/pkg/metadata"
)

// Block is a maximal straight-line run of instructions [Start, End).
type Block struct {
	ID    int
	Start int
	End   int
	Succs []int
	Preds []int
}

// Region is one exception handling clause with the blocks it covers.
type Region struct {
	Index   int
	Handler metadata.ExceptionHandler
	// TryBlocks are the blocks inside the protected range.
	TryBlocks []int
	// Entry is the first block of the handler.
	Entry int
	// FilterEntry is the first block of the filter, or -1.
	FilterEntry int
	// Continuations are the blocks a finally resumes at through endfinally.
	Continuations []int
}

// CFG is the control flow graph of one body. Edges into handlers are not stored
// as successors; handler entry states come from the region exception state.
type CFG struct {
	Body    *metadata.MethodBody
	Blocks  []*Block
	Regions []*Region
	blockOf []int
}

// BlockOf returns the block containing instruction i.
func (g *CFG) BlockOf(i int) int { return g.blockOf[i] }

// Build splits body into blocks and links them.
func Build(body *metadata.MethodBody) *CFG {
	g := &CFG{Body: body}
	n := len(body.Instructions)
	if n == 0 {
		return g
	}

	leaders := map[int]bool{0: true}
	for i, in := range body.Instructions {
		switch in.OpCode.Flow() {
		case metadata.FlowNext:
			continue
		case metadata.FlowBranch, metadata.FlowCondBranch, metadata.FlowSwitch, metadata.FlowLeave:
			for _, t := range in.Targets {
				leaders[t] = true
			}
		}
		leaders[i+1] = true
	}
	for _, h := range body.ExceptionHandlers {
		for _, at := range []int{h.TryStart, h.TryEnd, h.HandlerStart, h.HandlerEnd} {
			leaders[at] = true
		}
		if h.Kind == metadata.HandlerFilter {
			leaders[h.FilterStart] = true
		}
	}

	starts := make([]int, 0, len(leaders))
	for at := range leaders {
		if at >= 0 && at < n {
			starts = append(starts, at)
		}
	}
	sort.Ints(starts)

	g.blockOf = make([]int, n)
	for id, start := range starts {
		end := n
		if id+1 < len(starts) {
			end = starts[id+1]
		}
		g.Blocks = append(g.Blocks, &Block{ID: id, Start: start, End: end})
		for i := start; i < end; i++ {
			g.blockOf[i] = id
		}
	}

	for i, h := range body.ExceptionHandlers {
		r := &Region{Index: i, Handler: h, Entry: g.blockAt(h.HandlerStart), FilterEntry: -1}
		if h.Kind == metadata.HandlerFilter {
			r.FilterEntry = g.blockAt(h.FilterStart)
		}
		for _, b := range g.Blocks {
			if b.Start >= h.TryStart && b.End <= h.TryEnd {
				r.TryBlocks = append(r.TryBlocks, b.ID)
			}
		}
		g.Regions = append(g.Regions, r)
	}

	for _, b := range g.Blocks {
		last := body.Instructions[b.End-1]
		switch last.OpCode.Flow() {
		case metadata.FlowNext:
			g.fallThrough(b)
		case metadata.FlowBranch:
			g.link(b.ID, g.blockAt(last.Target()))
		case metadata.FlowCondBranch, metadata.FlowSwitch:
			for _, t := range last.Targets {
				g.link(b.ID, g.blockAt(t))
			}
			g.fallThrough(b)
		case metadata.FlowLeave:
			g.leave(b, b.End-1, last.Target())
		case metadata.FlowEndFinally:
			if last.OpCode == metadata.Endfilter {
				if r := g.filterOf(b.End - 1); r != nil {
					g.link(b.ID, r.Entry)
				}
			}
		}
	}
	// endfinally successors are known once every leave has been routed.
	for _, b := range g.Blocks {
		last := body.Instructions[b.End-1]
		if last.OpCode != metadata.Endfinally {
			continue
		}
		if r := g.finallyOf(b.End - 1); r != nil {
			for _, c := range r.Continuations {
				g.link(b.ID, c)
			}
		}
	}
	return g
}

func (g *CFG) blockAt(i int) int {
	if i < 0 || i >= len(g.blockOf) {
		return -1
	}
	return g.blockOf[i]
}

func (g *CFG) fallThrough(b *Block) {
	if b.ID+1 < len(g.Blocks) {
		g.link(b.ID, b.ID+1)
	}
}

func (g *CFG) link(from, to int) {
	if to < 0 {
		return
	}
	for _, s := range g.Blocks[from].Succs {
		if s == to {
			return
		}
	}
	g.Blocks[from].Succs = append(g.Blocks[from].Succs, to)
	g.Blocks[to].Preds = append(g.Blocks[to].Preds, from)
}

// leave routes a leave at instruction i through every finally whose try it exits,
// innermost first, before reaching target.
func (g *CFG) leave(b *Block, i, target int) {
	var crossed []*Region
	for _, r := range g.Regions {
		h := r.Handler
		if h.Kind != metadata.HandlerFinally {
			continue
		}
		if i < h.TryStart || i >= h.TryEnd {
			continue
		}
		if target >= h.TryStart && target < h.TryEnd {
			continue
		}
		crossed = append(crossed, r)
	}
	if len(crossed) == 0 {
		g.link(b.ID, g.blockAt(target))
		return
	}
	sort.SliceStable(crossed, func(a, c int) bool {
		ha, hc := crossed[a].Handler, crossed[c].Handler
		return ha.TryEnd-ha.TryStart < hc.TryEnd-hc.TryStart
	})

	g.link(b.ID, crossed[0].Entry)
	for k, r := range crossed {
		cont := g.blockAt(target)
		if k+1 < len(crossed) {
			cont = crossed[k+1].Entry
		}
		r.Continuations = appendUnique(r.Continuations, cont)
	}
}

func appendUnique(s []int, v int) []int {
	if v < 0 {
		return s
	}
	for _, x := range s {
		if x == v {
			return s
		}
	}
	return append(s, v)
}

// finallyOf returns the innermost finally whose handler contains instruction i.
func (g *CFG) finallyOf(i int) *Region {
	var best *Region
	for _, r := range g.Regions {
		h := r.Handler
		if h.Kind != metadata.HandlerFinally && h.Kind != metadata.HandlerFault {
			continue
		}
		if i < h.HandlerStart || i >= h.HandlerEnd {
			continue
		}
		if best == nil || h.HandlerEnd-h.HandlerStart < best.Handler.HandlerEnd-best.Handler.HandlerStart {
			best = r
		}
	}
	return best
}

// filterOf returns the filter region whose filter code contains instruction i.
func (g *CFG) filterOf(i int) *Region {
	for _, r := range g.Regions {
		h := r.Handler
		if h.Kind == metadata.HandlerFilter && i >= h.FilterStart && i < h.HandlerStart {
			return r
		}
	}
	return nil
}
