// Package graph orders plan nodes by their declared dependencies.
package graph

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/helloagents/rlm/pkg/models"
)

// ErrCycleDetected indicates a circular dependency was found in the plan.
var ErrCycleDetected = errors.New("circular dependency detected")

// DependencyGraph is a directed acyclic graph of plan nodes. Edges point
// from a node to the nodes it depends on. Iteration follows the order
// nodes were added, so every ordering it produces is deterministic.
type DependencyGraph struct {
	mu sync.RWMutex
	// order is the insertion order of node IDs.
	order []string
	// nodes maps node ID to the node itself.
	nodes map[string]*models.TaskNode
	// edges maps node ID to IDs of nodes it depends on.
	edges map[string][]string
	// completed tracks which nodes have been marked complete.
	completed map[string]bool
	log       *slog.Logger
}

// New creates a new empty dependency graph.
func New() *DependencyGraph {
	return &DependencyGraph{
		nodes:     make(map[string]*models.TaskNode),
		edges:     make(map[string][]string),
		completed: make(map[string]bool),
		log:       slog.New(slog.DiscardHandler),
	}
}

// SetLogger sets the debug logger.
func (g *DependencyGraph) SetLogger(l *slog.Logger) {
	if l != nil {
		g.log = l
	}
}

// Build constructs the graph from nodes. It fails on duplicate IDs,
// dependencies on unknown nodes and cycles.
func (g *DependencyGraph) Build(nodes []*models.TaskNode) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.log.Debug("building graph", "nodes", len(nodes))

	for _, n := range nodes {
		if _, dup := g.nodes[n.ID]; dup {
			return fmt.Errorf("duplicate node id %q", n.ID)
		}
		g.order = append(g.order, n.ID)
		g.nodes[n.ID] = n
		g.edges[n.ID] = nil
	}

	for _, n := range nodes {
		for _, dep := range n.DependsOn {
			if _, ok := g.nodes[dep]; !ok {
				return fmt.Errorf("node %s depends on unknown node %s", n.ID, dep)
			}
			g.edges[n.ID] = append(g.edges[n.ID], dep)
		}
	}

	if g.hasCycleLocked() {
		return ErrCycleDetected
	}
	return nil
}

// HasCycle returns true if the graph contains a circular dependency.
func (g *DependencyGraph) HasCycle() bool {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.hasCycleLocked()
}

// hasCycleLocked runs a three-color DFS looking for back edges.
func (g *DependencyGraph) hasCycleLocked() bool {
	const (
		white = iota
		gray
		black
	)
	colors := make(map[string]int, len(g.nodes))

	var visit func(id string) bool
	visit = func(id string) bool {
		colors[id] = gray
		for _, dep := range g.edges[id] {
			switch colors[dep] {
			case gray:
				return true
			case white:
				if visit(dep) {
					return true
				}
			}
		}
		colors[id] = black
		return false
	}

	for _, id := range g.order {
		if colors[id] == white && visit(id) {
			return true
		}
	}
	return false
}

// TopologicalSort returns node IDs with every dependency before its
// dependents. Among nodes free to go, insertion order wins, so a plan that
// declares no dependencies keeps its list order.
func (g *DependencyGraph) TopologicalSort() ([]string, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()

	if g.hasCycleLocked() {
		return nil, ErrCycleDetected
	}

	visited := make(map[string]bool, len(g.nodes))
	result := make([]string, 0, len(g.nodes))

	var visit func(id string)
	visit = func(id string) {
		if visited[id] {
			return
		}
		visited[id] = true
		for _, dep := range g.edges[id] {
			visit(dep)
		}
		result = append(result, id)
	}

	for _, id := range g.order {
		visit(id)
	}
	return result, nil
}

// Ready returns, in insertion order, the IDs of nodes that are not
// complete and whose dependencies all are.
func (g *DependencyGraph) Ready() []string {
	g.mu.RLock()
	defer g.mu.RUnlock()

	var ready []string
	for _, id := range g.order {
		if g.completed[id] {
			continue
		}
		ok := true
		for _, dep := range g.edges[id] {
			if !g.completed[dep] {
				ok = false
				break
			}
		}
		if ok {
			ready = append(ready, id)
		}
	}
	g.log.Debug("ready nodes", "ids", ready)
	return ready
}

// Levels groups node IDs into successive sets that could run together:
// each level depends only on earlier levels.
func (g *DependencyGraph) Levels() ([][]string, error) {
	if g.HasCycle() {
		return nil, ErrCycleDetected
	}

	g.mu.RLock()
	defer g.mu.RUnlock()

	done := make(map[string]bool, len(g.nodes))
	var levels [][]string
	for len(done) < len(g.nodes) {
		var level []string
		for _, id := range g.order {
			if done[id] {
				continue
			}
			free := true
			for _, dep := range g.edges[id] {
				if !done[dep] {
					free = false
					break
				}
			}
			if free {
				level = append(level, id)
			}
		}
		for _, id := range level {
			done[id] = true
		}
		levels = append(levels, level)
	}
	return levels, nil
}

// MarkComplete marks a node as completed. This affects subsequent Ready calls.
func (g *DependencyGraph) MarkComplete(id string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.completed[id] = true
}

// Node returns the node for an ID, or nil if not found.
func (g *DependencyGraph) Node(id string) *models.TaskNode {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.nodes[id]
}

// Size returns the number of nodes in the graph.
func (g *DependencyGraph) Size() int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return len(g.nodes)
}

// Dependencies returns the IDs of nodes the given node depends on.
func (g *DependencyGraph) Dependencies(id string) []string {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return append([]string(nil), g.edges[id]...)
}

// Dependents returns, in insertion order, the IDs of nodes that depend on
// the given node.
func (g *DependencyGraph) Dependents(id string) []string {
	g.mu.RLock()
	defer g.mu.RUnlock()

	var out []string
	for _, other := range g.order {
		for _, dep := range g.edges[other] {
			if dep == id {
				out = append(out, other)
				break
			}
		}
	}
	return out
}
