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
	"context"
	"log/slog"
	"sort"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/saph1r0/deadlock-intelligent-detector/services/detect/event"
)

// cancelCheckInterval is how many events are folded between context checks.
const cancelCheckInterval = 1024

// BuilderOptions configures graph construction.
type BuilderOptions struct {
	// Logger receives per-thread anomaly warnings. Defaults to slog.Default().
	Logger *slog.Logger
}

// BuilderOption mutates BuilderOptions.
type BuilderOption func(*BuilderOptions)

// WithLogger sets the builder's logger.
func WithLogger(l *slog.Logger) BuilderOption {
	return func(o *BuilderOptions) { o.Logger = l }
}

// Builder folds an event stream into a Resource Allocation Graph.
//
// # Description
//
// The builder is stateless and reusable; each Build call operates on its own
// internal state and is a pure function of the input stream: identical
// streams always yield structurally identical graphs.
//
// # Thread Safety
//
// Safe for concurrent use; per-call state is never shared.
type Builder struct {
	options BuilderOptions
}

// NewBuilder creates a Builder.
func NewBuilder(opts ...BuilderOption) *Builder {
	options := BuilderOptions{Logger: slog.Default()}
	for _, opt := range opts {
		opt(&options)
	}
	return &Builder{options: options}
}

// BuildResult carries the graph plus per-thread input failures. A malformed
// thread never fails the run; its contribution is evicted and recorded here.
type BuildResult struct {
	// Graph is the frozen snapshot.
	Graph *Graph

	// ThreadErrors lists threads dropped for protocol violations.
	ThreadErrors []*MalformedEventError

	// BlockedThreads is the number of threads left blocked at end of stream.
	BlockedThreads int

	// Duration is the wall time spent folding.
	Duration time.Duration
}

// waiter is one entry in a resource's FIFO pending queue.
type waiter struct {
	threadID string
	kind     event.Kind // KindAcquire or KindWaitFor
	loc      event.Location
	seq      int
}

// buildState is the mutable state of one Build call.
type buildState struct {
	graph  *Graph
	stream *event.Stream
	logger *slog.Logger

	holds     map[string]string          // resourceID -> owning threadID
	heldBy    map[string]map[string]bool // threadID -> held resourceIDs
	blocked   map[string]*waiter         // threadID -> what it waits on
	waitq     map[string][]waiter        // resourceID -> FIFO pending queue
	buffered  map[string][]event.Event   // events arriving while blocked
	malformed map[string]*MalformedEventError
}

// Build converts the stream into a frozen graph.
//
// # Description
//
// Events fold in global arrival order. An Acquire on an unheld resource adds
// a Holds edge; on a resource held by another thread it adds a WaitsFor edge
// and parks the thread in the resource's FIFO pending queue. A Release drops
// the Holds edge and grants ownership to the earliest pending acquirer.
// Events issued by a blocked thread are buffered and replayed once the
// thread unblocks.
//
// Protocol violations (release of an unheld resource, re-acquire without
// release) evict the offending thread: its node, edges and holdings are
// removed, held resources are granted onward, and the violation is recorded
// in the result. Other threads are unaffected.
//
// # Outputs
//
//   - *BuildResult: frozen graph plus per-thread errors. Never nil on
//     success.
//   - error: only for cancellation (ErrBuildCancelled); input anomalies are
//     reported in the result instead.
func (b *Builder) Build(ctx context.Context, stream *event.Stream) (*BuildResult, error) {
	ctx, span := startBuildSpan(ctx, len(stream.Events))
	defer span.End()
	start := time.Now()

	st := &buildState{
		graph:     NewGraph(),
		stream:    stream,
		logger:    b.options.Logger,
		holds:     make(map[string]string),
		heldBy:    make(map[string]map[string]bool),
		blocked:   make(map[string]*waiter),
		waitq:     make(map[string][]waiter),
		buffered:  make(map[string][]event.Event),
		malformed: make(map[string]*MalformedEventError),
	}

	for i, ev := range stream.Events {
		if i%cancelCheckInterval == 0 {
			select {
			case <-ctx.Done():
				span.SetStatus(codes.Error, "cancelled")
				return nil, ErrBuildCancelled
			default:
			}
		}
		st.fold(ev)
	}

	st.graph.Freeze()

	result := &BuildResult{
		Graph:          st.graph,
		BlockedThreads: len(st.blocked),
		Duration:       time.Since(start),
	}
	for _, tid := range stream.ThreadIDs {
		if merr := st.malformed[tid]; merr != nil {
			result.ThreadErrors = append(result.ThreadErrors, merr)
		}
	}

	span.SetAttributes(
		attribute.Int("rag.nodes", st.graph.NodeCount()),
		attribute.Int("rag.edges", st.graph.EdgeCount()),
		attribute.Int("rag.blocked_threads", result.BlockedThreads),
		attribute.Int("rag.thread_errors", len(result.ThreadErrors)),
	)
	recordBuildMetrics(ctx, result)
	return result, nil
}

// fold routes one event, buffering it when the thread is blocked.
func (st *buildState) fold(ev event.Event) {
	if st.malformed[ev.ThreadID] != nil {
		return
	}
	if st.blocked[ev.ThreadID] != nil {
		st.buffered[ev.ThreadID] = append(st.buffered[ev.ThreadID], ev)
		return
	}
	st.apply(ev)
}

// apply executes one event against the graph state.
func (st *buildState) apply(ev event.Event) {
	t, r := ev.ThreadID, ev.ResourceID
	switch ev.Kind {
	case event.KindAcquire:
		if st.heldBy[t][r] {
			st.evict(t, ev, "acquire of a resource already held without intervening release")
			return
		}
		owner, held := st.holds[r]
		if !held {
			st.grant(t, r, ev.Loc, ev.Seq)
			return
		}
		if owner == t {
			// heldBy covers this, but keep the guard explicit.
			st.evict(t, ev, "acquire of a resource already held without intervening release")
			return
		}
		st.block(t, r, event.KindAcquire, ev.Loc, ev.Seq)

	case event.KindRelease:
		if !st.heldBy[t][r] {
			st.evict(t, ev, "release of a resource the thread does not hold")
			return
		}
		st.release(t, r)

	case event.KindWaitFor:
		owner, held := st.holds[r]
		if held && owner != t {
			st.block(t, r, event.KindWaitFor, ev.Loc, ev.Seq)
		}
		// Unheld resource: the wait is immediately satisfied.
	}
}

// grant gives thread t ownership of resource r and records the Holds edge.
func (st *buildState) grant(t, r string, loc event.Location, seq int) {
	st.ensureNodes(t, r)
	st.holds[r] = t
	if st.heldBy[t] == nil {
		st.heldBy[t] = make(map[string]bool)
	}
	st.heldBy[t][r] = true
	_ = st.graph.addEdge(&Edge{
		FromID: ResourceNodeID(r),
		ToID:   ThreadNodeID(t),
		Kind:   EdgeHolds,
		Loc:    loc,
		Seq:    seq,
	})
}

// block parks thread t on resource r and records the WaitsFor edge.
func (st *buildState) block(t, r string, kind event.Kind, loc event.Location, seq int) {
	st.ensureNodes(t, r)
	w := waiter{threadID: t, kind: kind, loc: loc, seq: seq}
	st.blocked[t] = &w
	st.waitq[r] = append(st.waitq[r], w)
	_ = st.graph.addEdge(&Edge{
		FromID: ThreadNodeID(t),
		ToID:   ResourceNodeID(r),
		Kind:   EdgeWaitsFor,
		Loc:    loc,
		Seq:    seq,
	})
}

// release drops t's ownership of r and grants the next pending waiter.
func (st *buildState) release(t, r string) {
	delete(st.holds, r)
	delete(st.heldBy[t], r)
	st.graph.removeEdge(ResourceNodeID(r), ThreadNodeID(t), EdgeHolds)
	st.grantNext(r)
}

// grantNext resolves r's FIFO pending queue after a release: condition-style
// waiters at the head wake immediately; the earliest pending acquirer takes
// ownership and the rest stay parked.
func (st *buildState) grantNext(r string) {
	for len(st.waitq[r]) > 0 {
		w := st.waitq[r][0]
		st.waitq[r] = st.waitq[r][1:]
		if st.malformed[w.threadID] != nil {
			continue
		}
		st.graph.removeEdge(ThreadNodeID(w.threadID), ResourceNodeID(r), EdgeWaitsFor)
		delete(st.blocked, w.threadID)
		if w.kind == event.KindAcquire {
			st.grant(w.threadID, r, w.loc, w.seq)
			st.replay(w.threadID)
			return
		}
		st.replay(w.threadID)
	}
}

// replay re-applies events buffered while the thread was blocked. Replay
// stops as soon as the thread blocks or is evicted again.
func (st *buildState) replay(t string) {
	buf := st.buffered[t]
	st.buffered[t] = nil
	for i, ev := range buf {
		if st.malformed[t] != nil {
			return
		}
		if st.blocked[t] != nil {
			st.buffered[t] = append(st.buffered[t], buf[i:]...)
			return
		}
		st.apply(ev)
	}
}

// evict removes a malformed thread's entire contribution: its node, its
// edges, its queue entries, and its holdings (granted onward).
func (st *buildState) evict(t string, ev event.Event, reason string) {
	merr := &MalformedEventError{ThreadID: t, Event: ev, Reason: reason}
	st.malformed[t] = merr
	st.logger.Warn("dropping malformed thread contribution",
		"thread_id", t,
		"reason", reason,
		"event", ev.String(),
	)

	delete(st.blocked, t)
	delete(st.buffered, t)
	st.graph.removeNode(ThreadNodeID(t))

	// Grant the thread's holdings onward in deterministic order.
	held := make([]string, 0, len(st.heldBy[t]))
	for r := range st.heldBy[t] {
		held = append(held, r)
	}
	sort.Strings(held)
	delete(st.heldBy, t)
	for _, r := range held {
		delete(st.holds, r)
		st.grantNext(r)
	}
}

// ensureNodes registers the thread and resource nodes for an edge.
func (st *buildState) ensureNodes(t, r string) {
	_ = st.graph.addNode(&Node{ID: ThreadNodeID(t), Kind: NodeThread, Ref: t})
	_ = st.graph.addNode(&Node{ID: ResourceNodeID(r), Kind: NodeResource, Ref: r})
}
