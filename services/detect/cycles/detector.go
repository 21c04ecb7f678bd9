// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package cycles

import (
	"context"
	"log/slog"
	"sort"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/saph1r0/deadlock-intelligent-detector/services/detect/rag"
)

var tracer = otel.Tracer("detect.cycles")

// Default enumeration caps. Cycle enumeration is exponential in pathological
// densely connected graphs; the caps bound cost and set Result.Truncated
// instead of silently dropping output.
const (
	// DefaultMaxCycleLen is the maximum cycle length counted in threads.
	DefaultMaxCycleLen = 16

	// DefaultMaxCycles is the maximum number of cycles reported per run.
	DefaultMaxCycles = 1024
)

// DetectorOptions configures cycle enumeration.
type DetectorOptions struct {
	// MaxCycleLen caps cycle length in participant threads.
	MaxCycleLen int

	// MaxCycles caps the total number of cycles returned.
	MaxCycles int

	// Logger receives truncation warnings.
	Logger *slog.Logger
}

// DetectorOption mutates DetectorOptions.
type DetectorOption func(*DetectorOptions)

// WithMaxCycleLen caps cycle length in participant threads.
func WithMaxCycleLen(n int) DetectorOption {
	return func(o *DetectorOptions) { o.MaxCycleLen = n }
}

// WithMaxCycles caps the total number of cycles returned.
func WithMaxCycles(n int) DetectorOption {
	return func(o *DetectorOptions) { o.MaxCycles = n }
}

// WithDetectorLogger sets the detector's logger.
func WithDetectorLogger(l *slog.Logger) DetectorOption {
	return func(o *DetectorOptions) { o.Logger = l }
}

// Detector finds all elementary cycles in a frozen graph.
//
// # Description
//
// Runs strongly-connected-component decomposition first (iterative Tarjan,
// no recursion, so deep graphs cannot overflow the stack), then enumerates
// elementary cycles inside each nontrivial component with Johnson's
// algorithm: every simple cycle is reported exactly once, canonicalized to
// start at its lexicographically smallest node ID.
//
// # Thread Safety
//
// Safe for concurrent use; per-call state is never shared.
type Detector struct {
	options DetectorOptions
}

// NewDetector creates a Detector.
func NewDetector(opts ...DetectorOption) *Detector {
	options := DetectorOptions{
		MaxCycleLen: DefaultMaxCycleLen,
		MaxCycles:   DefaultMaxCycles,
		Logger:      slog.Default(),
	}
	for _, opt := range opts {
		opt(&options)
	}
	return &Detector{options: options}
}

// FindCycles enumerates all elementary cycles of the graph snapshot.
//
// Guarantees completeness up to the configured caps: every simple cycle in
// the snapshot is returned, with no rotation duplicates. When a cap fires,
// Result.Truncated is set.
func (d *Detector) FindCycles(ctx context.Context, g *rag.Graph) (*Result, error) {
	ctx, span := tracer.Start(ctx, "cycles.FindCycles",
		trace.WithAttributes(
			attribute.Int("graph.nodes", g.NodeCount()),
			attribute.Int("graph.edges", g.EdgeCount()),
		),
	)
	defer span.End()

	result := &Result{}
	sccs := stronglyConnected(g)
	for _, scc := range sccs {
		if len(scc) < 2 {
			continue
		}
		result.Components++
		d.enumerateComponent(ctx, g, scc, result)
		if len(result.Cycles) >= d.options.MaxCycles {
			break
		}
	}

	sort.Slice(result.Cycles, func(i, j int) bool {
		return result.Cycles[i].Key < result.Cycles[j].Key
	})

	if result.Truncated {
		d.options.Logger.Warn("cycle enumeration truncated",
			"cycles", len(result.Cycles),
			"max_cycles", d.options.MaxCycles,
			"max_cycle_len", d.options.MaxCycleLen,
		)
	}
	span.SetAttributes(
		attribute.Int("cycles.found", len(result.Cycles)),
		attribute.Int("cycles.components", result.Components),
		attribute.Bool("cycles.truncated", result.Truncated),
	)
	return result, ctx.Err()
}

// =============================================================================
// Strongly Connected Components (iterative Tarjan)
// =============================================================================

// stronglyConnected decomposes the graph into SCCs without recursion.
func stronglyConnected(g *rag.Graph) [][]string {
	index := 0
	nodeIndex := make(map[string]int)
	nodeLowLink := make(map[string]int)
	onStack := make(map[string]bool)
	sccStack := make([]string, 0)
	sccs := make([][]string, 0)

	// callFrame replaces the recursive call stack.
	type callFrame struct {
		nodeID    string
		edgeIndex int
		phase     int // 0=init, 1=edges, 2=post-child, 3=finalize
		childID   string
	}

	strongConnect := func(startNodeID string) {
		callStack := []callFrame{{nodeID: startNodeID}}

		for len(callStack) > 0 {
			frame := &callStack[len(callStack)-1]

			switch frame.phase {
			case 0:
				nodeIndex[frame.nodeID] = index
				nodeLowLink[frame.nodeID] = index
				index++
				sccStack = append(sccStack, frame.nodeID)
				onStack[frame.nodeID] = true
				frame.phase = 1

			case 1:
				edges := g.Outgoing(frame.nodeID)
				advanced := false
				for frame.edgeIndex < len(edges) {
					edge := edges[frame.edgeIndex]
					frame.edgeIndex++

					if _, visited := nodeIndex[edge.ToID]; !visited {
						frame.phase = 2
						frame.childID = edge.ToID
						callStack = append(callStack, callFrame{nodeID: edge.ToID})
						advanced = true
						break
					} else if onStack[edge.ToID] {
						if nodeIndex[edge.ToID] < nodeLowLink[frame.nodeID] {
							nodeLowLink[frame.nodeID] = nodeIndex[edge.ToID]
						}
					}
				}
				if !advanced {
					frame.phase = 3
				}

			case 2:
				if nodeLowLink[frame.childID] < nodeLowLink[frame.nodeID] {
					nodeLowLink[frame.nodeID] = nodeLowLink[frame.childID]
				}
				frame.phase = 1

			case 3:
				if nodeLowLink[frame.nodeID] == nodeIndex[frame.nodeID] {
					scc := make([]string, 0)
					for {
						w := sccStack[len(sccStack)-1]
						sccStack = sccStack[:len(sccStack)-1]
						onStack[w] = false
						scc = append(scc, w)
						if w == frame.nodeID {
							break
						}
					}
					sccs = append(sccs, scc)
				}
				callStack = callStack[:len(callStack)-1]
			}
		}
	}

	for _, node := range g.Nodes() {
		if _, visited := nodeIndex[node.ID]; !visited {
			strongConnect(node.ID)
		}
	}
	return sccs
}

// =============================================================================
// Elementary Cycle Enumeration (Johnson)
// =============================================================================

// johnsonState carries the blocked sets and current path for one start node.
type johnsonState struct {
	g         *rag.Graph
	allowed   map[string]bool
	blocked   map[string]bool
	blockedOn map[string][]string // Johnson's B-lists
	path      []string
	threads   int
	start     string

	maxThreads int
	emit       func(path []string) bool // returns false to stop
	capped     bool
	stopped    bool
}

// enumerateComponent runs Johnson's circuit enumeration inside one SCC.
// Start nodes are processed in ascending ID order and each search only
// visits node IDs >= the start, so every elementary cycle is produced once,
// rooted at its smallest node (canonical rotation by construction).
func (d *Detector) enumerateComponent(ctx context.Context, g *rag.Graph, scc []string, result *Result) {
	sorted := append([]string(nil), scc...)
	sort.Strings(sorted)

	for i, start := range sorted {
		if ctx.Err() != nil {
			result.Truncated = true
			return
		}
		allowed := make(map[string]bool, len(sorted)-i)
		for _, id := range sorted[i:] {
			allowed[id] = true
		}
		st := &johnsonState{
			g:          g,
			allowed:    allowed,
			blocked:    make(map[string]bool),
			blockedOn:  make(map[string][]string),
			start:      start,
			maxThreads: d.options.MaxCycleLen,
			emit: func(path []string) bool {
				if len(result.Cycles) >= d.options.MaxCycles {
					result.Truncated = true
					return false
				}
				result.Cycles = append(result.Cycles, newCycle(g, path))
				return len(result.Cycles) < d.options.MaxCycles
			},
		}
		st.circuit(start)
		if st.capped {
			result.Truncated = true
		}
		if len(result.Cycles) >= d.options.MaxCycles {
			result.Truncated = true
			return
		}
	}
}

// circuit explores elementary paths from v back to the start node.
// Recursion depth is bounded by the component size and the thread-length
// cap, so the stack stays shallow even on dense graphs.
func (st *johnsonState) circuit(v string) bool {
	node, ok := st.g.GetNode(v)
	if !ok || st.stopped {
		return false
	}

	isThread := node.Kind == rag.NodeThread
	if isThread {
		if st.threads >= st.maxThreads {
			st.capped = true
			return false
		}
		st.threads++
	}
	st.path = append(st.path, v)
	st.blocked[v] = true

	found := false
	for _, e := range st.g.Outgoing(v) {
		if st.stopped {
			break
		}
		w := e.ToID
		if !st.allowed[w] {
			continue
		}
		if w == st.start {
			if st.threads >= 2 {
				if !st.emit(append([]string(nil), st.path...)) {
					// Caller hit the cycle cap; abandon the search.
					st.stopped = true
				}
			}
			found = true
		} else if !st.blocked[w] {
			if st.circuit(w) {
				found = true
			}
		}
	}

	if found {
		st.unblock(v)
	} else {
		for _, e := range st.g.Outgoing(v) {
			w := e.ToID
			if st.allowed[w] && w != st.start {
				st.blockedOn[w] = append(st.blockedOn[w], v)
			}
		}
	}

	st.path = st.path[:len(st.path)-1]
	if isThread {
		st.threads--
	}
	return found
}

// unblock releases v and everything transitively blocked on it.
func (st *johnsonState) unblock(v string) {
	st.blocked[v] = false
	for len(st.blockedOn[v]) > 0 {
		w := st.blockedOn[v][0]
		st.blockedOn[v] = st.blockedOn[v][1:]
		if st.blocked[w] {
			st.unblock(w)
		}
	}
}
