// Package graph keeps compiled modules in an arena addressed by module ID
// and provides ordering over their import edges.
package graph

import (
	"fmt"
	"sort"
	"strings"

	"github.com/maruel/natural"

	"cssmc/icss"
	"cssmc/utils/debug"
)

// ID is a stable module identifier: slash separated path relative to the
// source root.
type ID string

// Node is a single module of the graph.
type Node struct {
	ID     ID
	Module *icss.Module
	// Deps are modules this one imports from, distinct, in order of first request.
	Deps []ID
	// Requests maps import requests as written to located modules.
	Requests map[string]ID
}

// CycleError reports an import cycle. Cycle starts and ends with the same ID.
type CycleError struct {
	Cycle []ID
}

func (e *CycleError) Error() string {
	parts := make([]string, len(e.Cycle))
	for i, id := range e.Cycle {
		parts[i] = string(id)
	}
	return "import cycle: " + strings.Join(parts, " -> ")
}

// Graph is an arena of modules. It is built by a single goroutine and is
// read only afterwards.
type Graph struct {
	nodes   map[ID]*Node
	order   []ID // insertion order
	entries []ID
}

// New creates empty graph.
func New() *Graph {
	return &Graph{nodes: make(map[ID]*Node)}
}

// Add places module into the arena. requests maps every import request of
// the module to the ID it was located at.
func (g *Graph) Add(id ID, mod *icss.Module, requests map[string]ID, entry bool) error {
	if _, ok := g.nodes[id]; ok {
		return fmt.Errorf("module %s is already in the graph", id)
	}
	n := &Node{ID: id, Module: mod, Requests: requests}
	seen := make(map[ID]bool)
	for _, req := range mod.Symbols.Requests() {
		dep, ok := requests[req]
		if !ok {
			return fmt.Errorf("module %s: import %q was not located", id, req)
		}
		if !seen[dep] {
			seen[dep] = true
			n.Deps = append(n.Deps, dep)
		}
	}
	g.nodes[id] = n
	g.order = append(g.order, id)
	if entry {
		g.entries = append(g.entries, id)
	}
	return nil
}

// Node returns node by ID.
func (g *Graph) Node(id ID) (*Node, bool) {
	n, ok := g.nodes[id]
	return n, ok
}

// Len returns number of modules.
func (g *Graph) Len() int {
	return len(g.nodes)
}

// IDs returns module IDs in insertion order.
func (g *Graph) IDs() []ID {
	return append([]ID(nil), g.order...)
}

// Entries returns entry modules in the order they were added.
func (g *Graph) Entries() []ID {
	return append([]ID(nil), g.entries...)
}

const (
	white = iota
	grey
	black
)

// EmitOrder returns all modules with dependencies before dependents:
// depth-first post-order starting from entries in input order, followed by
// any modules not reachable from entries. It fails on missing modules and
// on import cycles.
func (g *Graph) EmitOrder() ([]ID, error) {
	var (
		out   = make([]ID, 0, len(g.nodes))
		color = make(map[ID]int, len(g.nodes))
		path  []ID
	)

	var visit func(id ID) error
	visit = func(id ID) error {
		n, ok := g.nodes[id]
		if !ok {
			from := "input"
			if len(path) > 0 {
				from = string(path[len(path)-1])
			}
			return fmt.Errorf("module %s imported from %s is not in the graph", id, from)
		}
		switch color[id] {
		case black:
			return nil
		case grey:
			for i, p := range path {
				if p == id {
					cycle := append(append([]ID(nil), path[i:]...), id)
					return &CycleError{Cycle: cycle}
				}
			}
		}
		color[id] = grey
		path = append(path, id)
		for _, dep := range n.Deps {
			if err := visit(dep); err != nil {
				return err
			}
		}
		path = path[:len(path)-1]
		color[id] = black
		out = append(out, id)
		return nil
	}

	for _, id := range g.entries {
		if err := visit(id); err != nil {
			return nil, err
		}
	}
	for _, id := range g.order {
		if err := visit(id); err != nil {
			return nil, err
		}
	}
	return out, nil
}

// Levels groups modules by topological depth: level 0 holds modules
// without imports, level N modules whose deepest dependency is on level
// N-1. Modules of one level do not depend on each other. Within a level
// modules keep emit order.
func (g *Graph) Levels() ([][]ID, error) {
	order, err := g.EmitOrder()
	if err != nil {
		return nil, err
	}
	depth := make(map[ID]int, len(order))
	var levels [][]ID
	for _, id := range order {
		d := 0
		for _, dep := range g.nodes[id].Deps {
			d = max(d, depth[dep]+1)
		}
		depth[id] = d
		for len(levels) <= d {
			levels = append(levels, nil)
		}
		levels[d] = append(levels[d], id)
	}
	return levels, nil
}

// Dump renders graph structure for debug reports.
func (g *Graph) Dump() string {
	ids := make([]string, 0, len(g.order))
	for _, id := range g.order {
		ids = append(ids, string(id))
	}
	sort.Sort(natural.StringSlice(ids))

	tw := debug.NewTreeWriter()
	tw.Line(0, "Modules: %d, entries: %d", len(g.nodes), len(g.entries))
	for _, id := range ids {
		n := g.nodes[ID(id)]
		tw.Line(1, "%s", id)
		for _, req := range n.Module.Symbols.Requests() {
			tw.Line(2, "%q -> %s", req, n.Requests[req])
		}
		for _, imp := range n.Module.Symbols.Imports {
			tw.Line(2, "import %s as %s from %q", imp.Remote, imp.Local, imp.Request)
		}
		for _, e := range n.Module.Symbols.Exports {
			tw.TextBlock(2, "export "+e.Name, e.Value)
		}
	}
	return tw.String()
}
