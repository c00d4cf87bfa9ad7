package graph

import (
	"fmt"
)

// Router selects the next node from the merged state after a node completes.
type Router[S State[S]] func(s S) string

// Graph is the builder: declare nodes and edges, then Compile into a Runner.
type Graph[S State[S]] struct {
	entry   string
	nodes   map[string]NodeFunc[S]
	edges   map[string]string
	routers map[string]Router[S]
}

// New creates a graph with the given entry node.
func New[S State[S]](entry string) *Graph[S] {
	return &Graph[S]{
		entry:   entry,
		nodes:   make(map[string]NodeFunc[S]),
		edges:   make(map[string]string),
		routers: make(map[string]Router[S]),
	}
}

// AddNode registers a node under a name. Re-registering a name panics: graph
// wiring is static and a duplicate is a programming error.
func (g *Graph[S]) AddNode(name string, fn NodeFunc[S]) *Graph[S] {
	if name == End {
		panic(fmt.Sprintf("graph: %q is reserved", End))
	}
	if _, exists := g.nodes[name]; exists {
		panic(fmt.Sprintf("graph: node %q already registered", name))
	}
	g.nodes[name] = fn
	return g
}

// AddEdge wires an unconditional edge from → to.
func (g *Graph[S]) AddEdge(from, to string) *Graph[S] {
	g.edges[from] = to
	return g
}

// AddConditional wires a router: after from completes, the router picks the
// next node from the merged state.
func (g *Graph[S]) AddConditional(from string, router Router[S]) *Graph[S] {
	g.routers[from] = router
	return g
}

// Compile validates the wiring and returns a Runner. Every node needs an
// outgoing edge or router, every static edge target must exist, and the
// entry node must be registered. Router targets are validated at run time
// (they depend on state).
func (g *Graph[S]) Compile() (*Runner[S], error) {
	if _, ok := g.nodes[g.entry]; !ok {
		return nil, fmt.Errorf("graph: entry node %q not registered", g.entry)
	}
	for from, to := range g.edges {
		if _, ok := g.nodes[from]; !ok {
			return nil, fmt.Errorf("graph: edge from unknown node %q", from)
		}
		if to != End {
			if _, ok := g.nodes[to]; !ok {
				return nil, fmt.Errorf("graph: edge %q → unknown node %q", from, to)
			}
		}
	}
	for from := range g.routers {
		if _, ok := g.nodes[from]; !ok {
			return nil, fmt.Errorf("graph: router on unknown node %q", from)
		}
		if _, dup := g.edges[from]; dup {
			return nil, fmt.Errorf("graph: node %q has both a static edge and a router", from)
		}
	}
	for name := range g.nodes {
		_, hasEdge := g.edges[name]
		_, hasRouter := g.routers[name]
		if !hasEdge && !hasRouter {
			return nil, fmt.Errorf("graph: node %q has no outgoing edge", name)
		}
	}
	return newRunner(g), nil
}
