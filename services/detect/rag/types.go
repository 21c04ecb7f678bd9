// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package rag

import (
	"fmt"
	"sort"
	"strings"

	"github.com/saph1r0/deadlock-intelligent-detector/services/detect/event"
)

// NodeKind distinguishes thread nodes from resource nodes.
type NodeKind int

const (
	// NodeThread is a logical execution unit.
	NodeThread NodeKind = iota

	// NodeResource is a lockable entity.
	NodeResource
)

// String returns the string representation of the NodeKind.
func (k NodeKind) String() string {
	switch k {
	case NodeThread:
		return "thread"
	case NodeResource:
		return "resource"
	default:
		return "unknown"
	}
}

// EdgeKind types the directed relations in the graph.
type EdgeKind int

const (
	// EdgeHolds is a resource→thread ownership edge.
	EdgeHolds EdgeKind = iota

	// EdgeWaitsFor is a thread→resource blocked-acquisition edge.
	EdgeWaitsFor
)

// String returns the string representation of the EdgeKind.
func (k EdgeKind) String() string {
	switch k {
	case EdgeHolds:
		return "holds"
	case EdgeWaitsFor:
		return "waits_for"
	default:
		return "unknown"
	}
}

// Node ID prefixes keep thread and resource namespaces disjoint.
const (
	threadPrefix   = "t:"
	resourcePrefix = "r:"
)

// ThreadNodeID returns the graph node ID for a thread.
func ThreadNodeID(threadID string) string { return threadPrefix + threadID }

// ResourceNodeID returns the graph node ID for a resource.
func ResourceNodeID(resourceID string) string { return resourcePrefix + resourceID }

// NodeRef strips the namespace prefix from a node ID, recovering the
// thread or resource identifier it was built from.
func NodeRef(nodeID string) string {
	if len(nodeID) > 2 && (nodeID[:2] == threadPrefix || nodeID[:2] == resourcePrefix) {
		return nodeID[2:]
	}
	return nodeID
}

// Node represents either a thread or a resource.
type Node struct {
	// ID is the prefixed graph identifier ("t:worker_1", "r:lock_a").
	ID string

	// Kind distinguishes thread from resource nodes.
	Kind NodeKind

	// Ref is the unprefixed thread or resource ID.
	Ref string
}

// Edge is a directed, typed relation between two nodes.
type Edge struct {
	// FromID and ToID reference nodes by ID. Edges never hold node
	// pointers; the arena tables are the single source of truth.
	FromID string
	ToID   string

	// Kind is Holds or WaitsFor.
	Kind EdgeKind

	// Loc is the acquisition site that created this edge.
	Loc event.Location

	// Seq is the arrival position of the event that created the edge,
	// used for deterministic ordering and rationale output.
	Seq int
}

// Graph is the Resource Allocation Graph arena.
type Graph struct {
	nodes map[string]*Node
	// out and in index edges by endpoint node ID.
	out map[string][]*Edge
	in  map[string][]*Edge

	edgeCount int
	frozen    bool
}

// NewGraph creates an empty graph in building state.
func NewGraph() *Graph {
	return &Graph{
		nodes: make(map[string]*Node),
		out:   make(map[string][]*Edge),
		in:    make(map[string][]*Edge),
	}
}

// addNode inserts a node if absent. Building-state only.
func (g *Graph) addNode(n *Node) error {
	if g.frozen {
		return ErrGraphFrozen
	}
	if _, exists := g.nodes[n.ID]; !exists {
		g.nodes[n.ID] = n
	}
	return nil
}

// addEdge inserts an edge. Both endpoints must exist. Duplicate (from, to,
// kind) pairs are rejected silently: a thread holds at most one outstanding
// acquisition per resource.
func (g *Graph) addEdge(e *Edge) error {
	if g.frozen {
		return ErrGraphFrozen
	}
	if _, ok := g.nodes[e.FromID]; !ok {
		return fmt.Errorf("%w: %s", ErrNodeNotFound, e.FromID)
	}
	if _, ok := g.nodes[e.ToID]; !ok {
		return fmt.Errorf("%w: %s", ErrNodeNotFound, e.ToID)
	}
	for _, existing := range g.out[e.FromID] {
		if existing.ToID == e.ToID && existing.Kind == e.Kind {
			return nil
		}
	}
	g.out[e.FromID] = append(g.out[e.FromID], e)
	g.in[e.ToID] = append(g.in[e.ToID], e)
	g.edgeCount++
	return nil
}

// removeEdge drops the (from, to, kind) edge if present.
func (g *Graph) removeEdge(fromID, toID string, kind EdgeKind) {
	if g.frozen {
		return
	}
	g.out[fromID] = filterEdges(g.out[fromID], fromID, toID, kind)
	before := len(g.in[toID])
	g.in[toID] = filterEdges(g.in[toID], fromID, toID, kind)
	if len(g.in[toID]) < before {
		g.edgeCount--
	}
}

func filterEdges(edges []*Edge, fromID, toID string, kind EdgeKind) []*Edge {
	kept := edges[:0]
	for _, e := range edges {
		if e.FromID == fromID && e.ToID == toID && e.Kind == kind {
			continue
		}
		kept = append(kept, e)
	}
	return kept
}

// removeNode drops a node and all its incident edges.
func (g *Graph) removeNode(id string) {
	if g.frozen {
		return
	}
	for _, e := range g.out[id] {
		g.in[e.ToID] = filterEdges(g.in[e.ToID], e.FromID, e.ToID, e.Kind)
		g.edgeCount--
	}
	for _, e := range g.in[id] {
		g.out[e.FromID] = filterEdges(g.out[e.FromID], e.FromID, e.ToID, e.Kind)
		g.edgeCount--
	}
	delete(g.out, id)
	delete(g.in, id)
	delete(g.nodes, id)
}

// Freeze finalizes the graph. Edge lists are sorted by event arrival order
// so traversal is deterministic, then all mutation is rejected.
func (g *Graph) Freeze() {
	if g.frozen {
		return
	}
	for id := range g.out {
		sort.Slice(g.out[id], func(i, j int) bool { return g.out[id][i].Seq < g.out[id][j].Seq })
	}
	for id := range g.in {
		sort.Slice(g.in[id], func(i, j int) bool { return g.in[id][i].Seq < g.in[id][j].Seq })
	}
	g.frozen = true
}

// Frozen reports whether the graph is read-only.
func (g *Graph) Frozen() bool { return g.frozen }

// GetNode returns the node with the given ID.
func (g *Graph) GetNode(id string) (*Node, bool) {
	n, ok := g.nodes[id]
	return n, ok
}

// Nodes returns all nodes sorted by ID for deterministic iteration.
func (g *Graph) Nodes() []*Node {
	out := make([]*Node, 0, len(g.nodes))
	for _, n := range g.nodes {
		out = append(out, n)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Outgoing returns the outgoing edges of a node.
func (g *Graph) Outgoing(id string) []*Edge { return g.out[id] }

// Incoming returns the incoming edges of a node.
func (g *Graph) Incoming(id string) []*Edge { return g.in[id] }

// Holder returns the thread currently holding the resource, if any.
func (g *Graph) Holder(resourceID string) (string, bool) {
	for _, e := range g.out[ResourceNodeID(resourceID)] {
		if e.Kind == EdgeHolds {
			n := g.nodes[e.ToID]
			if n != nil {
				return n.Ref, true
			}
		}
	}
	return "", false
}

// WaitsFor returns the resource the thread is blocked on, if any.
func (g *Graph) WaitsFor(threadID string) (string, bool) {
	for _, e := range g.out[ThreadNodeID(threadID)] {
		if e.Kind == EdgeWaitsFor {
			n := g.nodes[e.ToID]
			if n != nil {
				return n.Ref, true
			}
		}
	}
	return "", false
}

// NodeCount returns the number of nodes.
func (g *Graph) NodeCount() int { return len(g.nodes) }

// EdgeCount returns the number of edges.
func (g *Graph) EdgeCount() int { return g.edgeCount }

// Dump renders a compact textual snapshot for logs and debugging.
func (g *Graph) Dump() string {
	var b strings.Builder
	b.WriteString("resource allocation graph:\n")
	for _, n := range g.Nodes() {
		for _, e := range g.out[n.ID] {
			fmt.Fprintf(&b, "  %s -[%s]-> %s\n", e.FromID, e.Kind, e.ToID)
		}
	}
	return b.String()
}
