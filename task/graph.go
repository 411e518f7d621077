package task

import (
	"fmt"
)

// Explicit end markers for transition edges. Reaching Done ends the run
// with overall success; reaching Fail ends it with overall failure, which
// lets a recovery operation complete cleanly while the task as a whole
// still reports failure.
const (
	Done = "_done"
	Fail = "_fail"
)

// IsTerminal reports whether a transition target is an end marker.
func IsTerminal(to string) bool {
	return to == Done || to == Fail
}

// Edge is one transition out of a node. Retries bounds how many times the
// edge may be traversed in a single run; it must be positive on any edge
// that participates in a cycle, which guarantees termination by
// construction. Zero means unbounded and is only legal on acyclic edges.
type Edge struct {
	To      string
	Retries int
}

// Transition is the full routing table for one node. Aborted and timed-out
// outcomes follow the Failure edge; Aborted additionally ends the run
// immediately (never retried).
type Transition struct {
	Success Edge
	Failure Edge
}

// Graph is a directed execution graph of operations keyed by name. Every
// non-terminal node carries both a success and a failure transition, the
// graph has exactly one entry node, and cycles must be bounded retry loops.
//
//	g := task.NewGraph("pickup")
//	g.AddNode(search)
//	g.AddNode(grasp)
//	g.AddNode(retreat)
//	g.AddTransition("search", task.Edge{To: "grasp"}, task.Edge{To: "search", Retries: 3})
//	g.AddTransition("grasp", task.Edge{To: task.Done}, task.Edge{To: "retreat"})
//	g.AddTransition("retreat", task.Edge{To: task.Fail}, task.Edge{To: task.Fail})
//	g.SetEntry("search")
type Graph struct {
	name        string
	nodes       map[string]Operation
	transitions map[string]Transition
	entry       string
}

// NewGraph creates an empty graph with the given name.
func NewGraph(name string) *Graph {
	return &Graph{
		name:        name,
		nodes:       make(map[string]Operation),
		transitions: make(map[string]Transition),
	}
}

// Name returns the graph identifier for event metadata.
func (g *Graph) Name() string { return g.name }

// AddNode registers an operation. Names must be unique.
func (g *Graph) AddNode(op Operation) error {
	if op == nil {
		return fmt.Errorf("operation cannot be nil")
	}
	name := op.Name()
	if name == "" {
		return fmt.Errorf("operation name cannot be empty")
	}
	if _, exists := g.nodes[name]; exists {
		return fmt.Errorf("operation %s already exists", name)
	}
	g.nodes[name] = op
	return nil
}

// AddTransition sets the routing table for a node. Both edges must be
// given; Done and Fail mark ends of the task.
func (g *Graph) AddTransition(from string, success, failure Edge) error {
	if _, exists := g.nodes[from]; !exists {
		return fmt.Errorf("node %s does not exist", from)
	}
	if !IsTerminal(success.To) {
		if _, exists := g.nodes[success.To]; !exists {
			return fmt.Errorf("success target %s does not exist", success.To)
		}
	}
	if !IsTerminal(failure.To) {
		if _, exists := g.nodes[failure.To]; !exists {
			return fmt.Errorf("failure target %s does not exist", failure.To)
		}
	}
	g.transitions[from] = Transition{Success: success, Failure: failure}
	return nil
}

// SetEntry defines the starting node. Only one entry is allowed.
func (g *Graph) SetEntry(node string) error {
	if g.entry != "" {
		return fmt.Errorf("entry already set to %s", g.entry)
	}
	if _, exists := g.nodes[node]; !exists {
		return fmt.Errorf("entry node %s does not exist", node)
	}
	g.entry = node
	return nil
}

// Entry returns the entry node name.
func (g *Graph) Entry() string { return g.entry }

// Validate checks the structural invariants: an entry node is set, every
// node has both transitions defined, and every cyclic edge carries a
// bounded retry counter.
func (g *Graph) Validate() error {
	if g.entry == "" {
		return fmt.Errorf("graph %s: no entry node set", g.name)
	}
	for name := range g.nodes {
		if _, ok := g.transitions[name]; !ok {
			return fmt.Errorf("graph %s: node %s has no transitions", g.name, name)
		}
	}
	for from, tr := range g.transitions {
		for _, e := range []Edge{tr.Success, tr.Failure} {
			if IsTerminal(e.To) || e.Retries > 0 {
				continue
			}
			if g.reaches(e.To, from) {
				return fmt.Errorf("graph %s: unbounded cycle through edge %s -> %s", g.name, from, e.To)
			}
		}
	}
	return nil
}

// reaches reports whether target is reachable from start following only
// unbounded edges. Bounded edges terminate by construction, so they do not
// extend a cycle.
func (g *Graph) reaches(start, target string) bool {
	seen := make(map[string]bool)
	stack := []string{start}
	for len(stack) > 0 {
		n := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if n == target {
			return true
		}
		if seen[n] {
			continue
		}
		seen[n] = true
		tr, ok := g.transitions[n]
		if !ok {
			continue
		}
		for _, e := range []Edge{tr.Success, tr.Failure} {
			if !IsTerminal(e.To) && e.Retries == 0 {
				stack = append(stack, e.To)
			}
		}
	}
	return false
}

func (g *Graph) node(name string) (Operation, bool) {
	op, ok := g.nodes[name]
	return op, ok
}

func (g *Graph) transition(name string) (Transition, bool) {
	tr, ok := g.transitions[name]
	return tr, ok
}
