// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package cycles enumerates elementary waits-for cycles in a Resource
// Allocation Graph. Each reported cycle is a deadlock candidate for the
// analysis pipeline.
package cycles

import (
	"strings"

	"github.com/saph1r0/deadlock-intelligent-detector/services/detect/rag"
)

// Cycle is an ordered closed waits-for loop through alternating thread and
// resource nodes. Immutable once detected.
type Cycle struct {
	// Nodes lists the node IDs in cycle order, canonicalized by rotating
	// the cycle to start at its lexicographically smallest node ID.
	Nodes []string

	// Threads lists participant thread IDs in cycle order.
	Threads []string

	// Resources lists participant resource IDs in cycle order.
	Resources []string

	// Waits holds the WaitsFor edges of the cycle in cycle order; each is
	// the blocked acquisition that closes one link of the circular wait.
	Waits []*rag.Edge

	// Holds holds the Holds edges of the cycle in cycle order.
	Holds []*rag.Edge

	// Key is the canonical identity string, unique per rotation class.
	Key string
}

// Len returns the cycle length counted in participant threads.
func (c *Cycle) Len() int { return len(c.Threads) }

// String returns the canonical key.
func (c *Cycle) String() string { return c.Key }

// newCycle assembles a Cycle from a canonical node path through the graph.
// The path must start at the lexicographically smallest node ID.
func newCycle(g *rag.Graph, path []string) *Cycle {
	c := &Cycle{
		Nodes: append([]string(nil), path...),
		Key:   strings.Join(path, " -> "),
	}
	n := len(path)
	for i, id := range path {
		node, ok := g.GetNode(id)
		if !ok {
			continue
		}
		next := path[(i+1)%n]
		switch node.Kind {
		case rag.NodeThread:
			c.Threads = append(c.Threads, node.Ref)
			for _, e := range g.Outgoing(id) {
				if e.ToID == next && e.Kind == rag.EdgeWaitsFor {
					c.Waits = append(c.Waits, e)
					break
				}
			}
		case rag.NodeResource:
			c.Resources = append(c.Resources, node.Ref)
			for _, e := range g.Outgoing(id) {
				if e.ToID == next && e.Kind == rag.EdgeHolds {
					c.Holds = append(c.Holds, e)
					break
				}
			}
		}
	}
	return c
}

// Result is the detector output for one graph snapshot.
type Result struct {
	// Cycles are all elementary cycles found, sorted by Key.
	Cycles []*Cycle

	// Truncated is set when a configured cap (cycle length or total
	// cycles) cut enumeration short. Results are never dropped silently.
	Truncated bool

	// Components is the number of nontrivial strongly connected
	// components examined.
	Components int
}
