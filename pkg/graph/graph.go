package graph

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound indicates a vertex or edge that does not exist
	ErrNotFound = errors.New("not found")

	// ErrAlreadyExists indicates a vertex or edge that already exists
	ErrAlreadyExists = errors.New("already exists")

	// ErrCycle indicates an edge insertion that would create a directed cycle
	ErrCycle = errors.New("cycle would be created")
)

// Graph is a directed acyclic reachability graph rooted in leaf vertices.
// Leaves (users) carry outgoing edges only; non-leaves (groups) carry
// outgoing edges to other non-leaves and incoming edges from anywhere.
// Adjacency is maintained in both directions so vertex removal and reverse
// traversal are proportional to the incident edge count.
//
// Graph performs no locking of its own; the owning manager serializes
// writers and may admit concurrent readers.
type Graph struct {
	leaves    map[string]struct{}
	nonLeaves map[string]struct{}
	forward   map[string]map[string]struct{}
	reverse   map[string]map[string]struct{}
	strict    bool
}

// Option configures a Graph
type Option func(*Graph)

// WithStrictIdempotency makes duplicate adds and absent removes fail with
// ErrAlreadyExists / ErrNotFound instead of succeeding silently
func WithStrictIdempotency() Option {
	return func(g *Graph) {
		g.strict = true
	}
}

// New creates an empty graph
func New(opts ...Option) *Graph {
	g := &Graph{
		leaves:    make(map[string]struct{}),
		nonLeaves: make(map[string]struct{}),
		forward:   make(map[string]map[string]struct{}),
		reverse:   make(map[string]map[string]struct{}),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// ContainsLeaf reports whether a leaf vertex exists
func (g *Graph) ContainsLeaf(v string) bool {
	_, ok := g.leaves[v]
	return ok
}

// ContainsNonLeaf reports whether a non-leaf vertex exists
func (g *Graph) ContainsNonLeaf(v string) bool {
	_, ok := g.nonLeaves[v]
	return ok
}

// AddLeaf adds a leaf vertex
func (g *Graph) AddLeaf(v string) error {
	if g.ContainsLeaf(v) {
		if g.strict {
			return fmt.Errorf("leaf %q: %w", v, ErrAlreadyExists)
		}
		return nil
	}
	g.leaves[v] = struct{}{}
	return nil
}

// RemoveLeaf removes a leaf vertex and all its outgoing edges
func (g *Graph) RemoveLeaf(v string) error {
	if !g.ContainsLeaf(v) {
		if g.strict {
			return fmt.Errorf("leaf %q: %w", v, ErrNotFound)
		}
		return nil
	}
	g.purgeEdges(v)
	delete(g.leaves, v)
	return nil
}

// AddNonLeaf adds a non-leaf vertex
func (g *Graph) AddNonLeaf(v string) error {
	if g.ContainsNonLeaf(v) {
		if g.strict {
			return fmt.Errorf("non-leaf %q: %w", v, ErrAlreadyExists)
		}
		return nil
	}
	g.nonLeaves[v] = struct{}{}
	return nil
}

// RemoveNonLeaf removes a non-leaf vertex and every edge touching it
func (g *Graph) RemoveNonLeaf(v string) error {
	if !g.ContainsNonLeaf(v) {
		if g.strict {
			return fmt.Errorf("non-leaf %q: %w", v, ErrNotFound)
		}
		return nil
	}
	g.purgeEdges(v)
	delete(g.nonLeaves, v)
	return nil
}

// ContainsEdge reports whether the edge from→to exists
func (g *Graph) ContainsEdge(from, to string) bool {
	_, ok := g.forward[from][to]
	return ok
}

// AddEdge adds an edge from a leaf or non-leaf to a non-leaf. Fails with
// ErrCycle when to can already reach from over forward edges.
func (g *Graph) AddEdge(from, to string) error {
	if !g.ContainsLeaf(from) && !g.ContainsNonLeaf(from) {
		return fmt.Errorf("edge source %q: %w", from, ErrNotFound)
	}
	if !g.ContainsNonLeaf(to) {
		return fmt.Errorf("edge target %q: %w", to, ErrNotFound)
	}
	if g.ContainsEdge(from, to) {
		if g.strict {
			return fmt.Errorf("edge %q->%q: %w", from, to, ErrAlreadyExists)
		}
		return nil
	}
	if from == to || g.reaches(to, from) {
		return fmt.Errorf("edge %q->%q: %w", from, to, ErrCycle)
	}
	if g.forward[from] == nil {
		g.forward[from] = make(map[string]struct{})
	}
	if g.reverse[to] == nil {
		g.reverse[to] = make(map[string]struct{})
	}
	g.forward[from][to] = struct{}{}
	g.reverse[to][from] = struct{}{}
	return nil
}

// RemoveEdge removes the edge from→to
func (g *Graph) RemoveEdge(from, to string) error {
	if !g.ContainsEdge(from, to) {
		if g.strict {
			return fmt.Errorf("edge %q->%q: %w", from, to, ErrNotFound)
		}
		return nil
	}
	delete(g.forward[from], to)
	delete(g.reverse[to], from)
	return nil
}

// Successors returns the direct forward neighbors of a vertex
func (g *Graph) Successors(v string) []string {
	out := make([]string, 0, len(g.forward[v]))
	for to := range g.forward[v] {
		out = append(out, to)
	}
	return out
}

// EachLeaf calls fn for every leaf vertex, in unspecified order
func (g *Graph) EachLeaf(fn func(vertex string)) {
	for v := range g.leaves {
		fn(v)
	}
}

// EachNonLeaf calls fn for every non-leaf vertex, in unspecified order
func (g *Graph) EachNonLeaf(fn func(vertex string)) {
	for v := range g.nonLeaves {
		fn(v)
	}
}

// Predecessors returns the direct reverse neighbors of a vertex
func (g *Graph) Predecessors(v string) []string {
	out := make([]string, 0, len(g.reverse[v]))
	for from := range g.reverse[v] {
		out = append(out, from)
	}
	return out
}

// TraverseForward visits every non-leaf reachable from start over forward
// edges, each at most once, in unspecified order. The start vertex itself is
// not visited. Visit returns false to stop the traversal early.
func (g *Graph) TraverseForward(start string, visit func(vertex string) bool) {
	g.traverse(g.forward, start, visit)
}

// TraverseReverse visits every vertex that reaches start over forward edges,
// each at most once. Leaves are skipped unless includeLeaves is set.
func (g *Graph) TraverseReverse(start string, includeLeaves bool, visit func(vertex string) bool) {
	g.traverse(g.reverse, start, func(v string) bool {
		if !includeLeaves && g.ContainsLeaf(v) {
			return true
		}
		return visit(v)
	})
}

func (g *Graph) traverse(adjacency map[string]map[string]struct{}, start string, visit func(string) bool) {
	visited := map[string]struct{}{start: {}}
	stack := make([]string, 0, len(adjacency[start]))
	for next := range adjacency[start] {
		stack = append(stack, next)
	}
	for len(stack) > 0 {
		v := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if _, ok := visited[v]; ok {
			continue
		}
		visited[v] = struct{}{}
		if !visit(v) {
			return
		}
		for next := range adjacency[v] {
			if _, ok := visited[next]; !ok {
				stack = append(stack, next)
			}
		}
	}
}

// reaches reports whether to is reachable from from over forward edges
func (g *Graph) reaches(from, to string) bool {
	found := false
	g.TraverseForward(from, func(v string) bool {
		if v == to {
			found = true
			return false
		}
		return true
	})
	return found
}

// purgeEdges removes every edge incident to v in both directions
func (g *Graph) purgeEdges(v string) {
	for to := range g.forward[v] {
		delete(g.reverse[to], v)
	}
	delete(g.forward, v)
	for from := range g.reverse[v] {
		delete(g.forward[from], v)
	}
	delete(g.reverse, v)
}
