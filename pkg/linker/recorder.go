package linker

import (
	"bufio"
	"fmt"
	"io"
	"slices"

	"gonum.org/v1/gonum/graph"
	"gonum.org/v1/gonum/graph/simple"

	"github.com/panbanda/iltrim/pkg/metadata"
)

// DependencyRecorder observes every edge the mark engine traverses. It must not
// influence the result.
type DependencyRecorder interface {
	RecordDependency(source, target any, marked bool)
}

// NopRecorder discards every edge.
type NopRecorder struct{}

// RecordDependency implements DependencyRecorder.
func (NopRecorder) RecordDependency(source, target any, marked bool) {}

// Edge is one recorded dependency.
type Edge struct {
	Source any
	Target any
	Marked bool
}

// GraphRecorder keeps edges in insertion order and indexes the marking edges in
// a directed graph for reachability queries.
type GraphRecorder struct {
	model *metadata.Model
	edges []Edge
	nodes map[any]int64
	keys  []any
	g     *simple.DirectedGraph
}

// NewGraphRecorder creates a recorder that names entities through m.
func NewGraphRecorder(m *metadata.Model) *GraphRecorder {
	return &GraphRecorder{
		model: m,
		nodes: make(map[any]int64),
		g:     simple.NewDirectedGraph(),
	}
}

// RecordDependency implements DependencyRecorder.
func (r *GraphRecorder) RecordDependency(source, target any, marked bool) {
	r.edges = append(r.edges, Edge{Source: source, Target: target, Marked: marked})
	from, to := r.node(source), r.node(target)
	if !marked || from == to {
		return
	}
	if r.g.HasEdgeFromTo(from, to) {
		return
	}
	r.g.SetEdge(r.g.NewEdge(simple.Node(from), simple.Node(to)))
}

func (r *GraphRecorder) node(key any) int64 {
	if id, ok := r.nodes[key]; ok {
		return id
	}
	id := int64(len(r.keys))
	r.nodes[key] = id
	r.keys = append(r.keys, key)
	r.g.AddNode(simple.Node(id))
	return id
}

// Edges returns the recorded edges in insertion order.
func (r *GraphRecorder) Edges() []Edge {
	return r.edges
}

// Token renders a recorded endpoint as "<TokenKind>:<name>", or "Other:<value>"
// for anything that is not an entity.
func (r *GraphRecorder) Token(v any) string {
	if e, ok := v.(metadata.Entity); ok && e.IsValid() && r.model != nil {
		return r.model.Token(e)
	}
	return fmt.Sprintf("Other:%v", v)
}

// Dump writes one "source -> target" line per recorded edge.
func (r *GraphRecorder) Dump(w io.Writer) error {
	bw := bufio.NewWriter(w)
	for _, e := range r.edges {
		if _, err := fmt.Fprintf(bw, "%s -> %s\n", r.Token(e.Source), r.Token(e.Target)); err != nil {
			return err
		}
	}
	return bw.Flush()
}

// WhyKept returns the shortest chain of marking edges ending at target that
// starts at an origin, a node no marking edge points to. It returns nil when
// target was never recorded and target alone when no chain reaches it.
func (r *GraphRecorder) WhyKept(target any) []any {
	to, ok := r.nodes[target]
	if !ok {
		return nil
	}

	// Breadth-first from every origin at once.
	queue := r.origins()
	seen := make(map[int64]bool, len(r.keys))
	for _, id := range queue {
		seen[id] = true
	}
	parent := make(map[int64]int64)
	for head := 0; head < len(queue) && !seen[to]; head++ {
		from := queue[head]
		for _, next := range r.successors(from) {
			if seen[next] {
				continue
			}
			seen[next] = true
			parent[next] = from
			queue = append(queue, next)
		}
	}
	if !seen[to] {
		return []any{target}
	}

	var chain []any
	for id := to; ; {
		chain = append(chain, r.keys[id])
		p, ok := parent[id]
		if !ok {
			break
		}
		id = p
	}
	slices.Reverse(chain)
	return chain
}

// successors returns the marking edge targets of id in first-seen order.
func (r *GraphRecorder) successors(id int64) []int64 {
	nodes := graph.NodesOf(r.g.From(id))
	out := make([]int64, len(nodes))
	for i, n := range nodes {
		out[i] = n.ID()
	}
	slices.Sort(out)
	return out
}

// origins returns the nodes no marking edge points to, in first-seen order.
func (r *GraphRecorder) origins() []int64 {
	var out []int64
	for id := range r.keys {
		if r.g.To(int64(id)).Len() == 0 {
			out = append(out, int64(id))
		}
	}
	return out
}
