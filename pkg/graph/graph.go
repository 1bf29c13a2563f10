// Package graph implements the directed acyclic graph used to order
// Cedar Backup's actions (spec.md §4.7). Grounded directly on the
// original implementation's util.py DirectedGraph/_Vertex: an
// arena-indexed vertex list with a synthetic start vertex that has an
// edge to every created vertex, so a depth-first search never loses a
// vertex with no other edges, plus the discovered/explored coloring used
// to detect a back-edge cycle.
package graph

import (
	"fmt"

	"github.com/pronovic/cedarbackup/pkg/cerrors"
)

type state int

const (
	undiscovered state = iota
	discovered
	explored
)

type vertex struct {
	name      string
	endpoints []int // indices into Graph.vertices
	state     state
}

// Graph is a directed graph with a synthetic start vertex (index -1,
// handled separately) that has an edge to every named vertex.
type Graph struct {
	name     string
	vertices []vertex
	index    map[string]int
	start    []int // endpoints of the synthetic start vertex
}

// New builds a named, empty graph. The name must be non-empty, matching
// the original implementation's constructor validation.
func New(name string) (*Graph, error) {
	if name == "" {
		return nil, cerrors.Config("graph name must be non-empty")
	}
	return &Graph{name: name, index: map[string]int{}}, nil
}

// Name returns the graph's name.
func (g *Graph) Name() string { return g.name }

// CreateVertex adds a named vertex, wiring the synthetic start vertex's
// edge to it so it can never be orphaned by the DFS.
func (g *Graph) CreateVertex(name string) error {
	if name == "" {
		return cerrors.Config("vertex name must be non-empty")
	}
	if _, exists := g.index[name]; exists {
		return cerrors.Config("vertex %q already exists", name)
	}
	idx := len(g.vertices)
	g.vertices = append(g.vertices, vertex{name: name})
	g.index[name] = idx
	g.start = append(g.start, idx)
	return nil
}

// CreateEdge adds a directed edge from start to finish; both must
// already exist.
func (g *Graph) CreateEdge(start, finish string) error {
	startIdx, ok := g.index[start]
	if !ok {
		return cerrors.Config("vertex %q could not be found", start)
	}
	finishIdx, ok := g.index[finish]
	if !ok {
		return cerrors.Config("vertex %q could not be found", finish)
	}
	g.vertices[startIdx].endpoints = append(g.vertices[startIdx].endpoints, finishIdx)
	return nil
}

// TopologicalSort returns the vertex names ordered so every edge goes
// left to right, returning a KindConfig cerrors.CedarError naming both endpoints if
// the graph contains a cycle reachable from the start vertex.
func (g *Graph) TopologicalSort() ([]string, error) {
	for i := range g.vertices {
		g.vertices[i].state = undiscovered
	}

	var ordering []string

	// The synthetic start vertex itself is always "discovered" once and
	// walks its endpoints; it has no name and is never added to ordering.
	var dfs func(idx int) error
	dfs = func(idx int) error {
		g.vertices[idx].state = discovered
		for _, endpoint := range g.vertices[idx].endpoints {
			switch g.vertices[endpoint].state {
			case undiscovered:
				if err := dfs(endpoint); err != nil {
					return err
				}
			case discovered:
				return cerrors.Config("cycle found in graph (found %q while searching %q)", g.vertices[idx].name, g.vertices[endpoint].name)
			case explored:
				// already finished, fine
			}
		}
		ordering = append([]string{g.vertices[idx].name}, ordering...)
		g.vertices[idx].state = explored
		return nil
	}

	for _, startEndpoint := range g.start {
		if g.vertices[startEndpoint].state == undiscovered {
			if err := dfs(startEndpoint); err != nil {
				return nil, err
			}
		}
	}

	// Any vertex the start vertex somehow didn't reach (shouldn't happen,
	// since CreateVertex always wires a start edge) is still visited here
	// defensively, matching the original's outer loop over all vertices.
	for i := range g.vertices {
		if g.vertices[i].state == undiscovered {
			if err := dfs(i); err != nil {
				return nil, err
			}
		}
	}

	return ordering, nil
}

func (g *Graph) String() string {
	return fmt.Sprintf("Graph(%s)", g.name)
}
