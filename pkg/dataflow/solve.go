package dataflow

import "github.com/panbanda/iltrim/pkg/metadata"

// Analysis describes a forward problem over a lattice of states S.
//
// Top is the identity of Meet and the state of blocks nothing flows into yet.
// Meet must be monotone and the lattice must have finite height.
type Analysis[S any] interface {
	Top() S
	Entry() S
	Meet(a, b S) S
	Equal(a, b S) bool
	Transfer(g *CFG, b *Block, in S) S
}

// HandlerEntry is implemented by analyses that adjust the state at the start of
// a catch or filter, for example to push the exception object.
type HandlerEntry[S any] interface {
	EnterHandler(h metadata.ExceptionHandler, s S) S
}

// Stepper is implemented by analyses that can apply a single instruction.
// Solve then meets the state after every instruction of a protected range into
// the exception state of its region, so values overwritten later in the same
// block still reach the handler.
type Stepper[S any] interface {
	Step(g *CFG, i int, s S) S
}

// Result holds the fixpoint states per block.
type Result[S any] struct {
	In  []S
	Out []S
	// Exception holds the exception state per region: the meet of every state
	// observed inside the protected range. Without a Stepper only block
	// boundaries are observed.
	Exception []S
}

// Solve iterates a to a fixpoint over g.
//
// Catch, filter and fault entries start from the exception state of their region.
// A finally entry meets every normal leave into it with the exception state.
func Solve[S any](g *CFG, a Analysis[S]) Result[S] {
	n := len(g.Blocks)
	res := Result[S]{
		In:        make([]S, n),
		Out:       make([]S, n),
		Exception: make([]S, len(g.Regions)),
	}
	for i := 0; i < n; i++ {
		res.In[i] = a.Top()
		res.Out[i] = a.Top()
	}
	for i := range g.Regions {
		res.Exception[i] = a.Top()
	}
	if n == 0 {
		return res
	}

	entries := make(map[int][]*Region)
	for _, r := range g.Regions {
		if r.Entry >= 0 {
			entries[r.Entry] = append(entries[r.Entry], r)
		}
		if r.FilterEntry >= 0 {
			entries[r.FilterEntry] = append(entries[r.FilterEntry], r)
		}
	}
	enter, hasEnter := a.(HandlerEntry[S])
	stepper, hasStep := a.(Stepper[S])

	for changed := true; changed; {
		changed = false

		for _, r := range g.Regions {
			ex := a.Top()
			for _, b := range r.TryBlocks {
				if !hasStep {
					ex = a.Meet(ex, a.Meet(res.In[b], res.Out[b]))
					continue
				}
				s := res.In[b]
				ex = a.Meet(ex, s)
				blk := g.Blocks[b]
				for i := blk.Start; i < blk.End; i++ {
					s = stepper.Step(g, i, s)
					ex = a.Meet(ex, s)
				}
			}
			if !a.Equal(ex, res.Exception[r.Index]) {
				res.Exception[r.Index] = ex
				changed = true
			}
		}

		for _, b := range g.Blocks {
			in := a.Top()
			if b.ID == 0 {
				in = a.Entry()
			}
			for _, p := range b.Preds {
				in = a.Meet(in, res.Out[p])
			}
			for _, r := range entries[b.ID] {
				ex := res.Exception[r.Index]
				kind := r.Handler.Kind
				if hasEnter && (kind == metadata.HandlerCatch || kind == metadata.HandlerFilter) {
					ex = enter.EnterHandler(r.Handler, ex)
				}
				in = a.Meet(in, ex)
			}
			out := a.Transfer(g, b, in)
			if !a.Equal(in, res.In[b.ID]) || !a.Equal(out, res.Out[b.ID]) {
				res.In[b.ID] = in
				res.Out[b.ID] = out
				changed = true
			}
		}
	}
	return res
}
