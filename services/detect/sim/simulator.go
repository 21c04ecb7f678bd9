// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package sim

import (
	"context"
	"fmt"
	"log/slog"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/saph1r0/deadlock-intelligent-detector/services/detect/cycles"
	"github.com/saph1r0/deadlock-intelligent-detector/services/detect/event"
	"github.com/saph1r0/deadlock-intelligent-detector/services/detect/rag"
)

var tracer = otel.Tracer("detect.sim")

// Default search budgets.
const (
	// DefaultMaxStates bounds the exhaustive search.
	DefaultMaxStates = 100_000

	// DefaultMaxDepth of 0 means "total event count of the stream".
	DefaultMaxDepth = 0
)

// Options configures the schedule search.
type Options struct {
	// MaxStates caps distinct states explored before the search reports
	// Inconclusive.
	MaxStates int

	// MaxDepth caps schedule length. Zero means the stream's event count,
	// which is always sufficient to reach any reachable deadlock.
	MaxDepth int

	// Logger receives search diagnostics.
	Logger *slog.Logger
}

// Option mutates Options.
type Option func(*Options)

// WithMaxStates caps distinct states explored.
func WithMaxStates(n int) Option {
	return func(o *Options) { o.MaxStates = n }
}

// WithMaxDepth caps schedule length.
func WithMaxDepth(n int) Option {
	return func(o *Options) { o.MaxDepth = n }
}

// WithSimLogger sets the simulator's logger.
func WithSimLogger(l *slog.Logger) Option {
	return func(o *Options) { o.Logger = l }
}

// Simulator searches thread interleavings for a schedule reaching the
// candidate's deadlocked state.
//
// # Description
//
// A valid schedule is any total order over events that preserves each
// thread's own relative order; the interleaving itself is unconstrained.
// The search first follows a greedy heuristic that advances each cycle
// thread up to its blocking acquisition as early as possible, then falls
// back to bounded exhaustive depth-first search.
//
// # Thread Safety
//
// Safe for concurrent use; per-call state is never shared.
type Simulator struct {
	options Options
}

// NewSimulator creates a Simulator.
func NewSimulator(opts ...Option) *Simulator {
	options := Options{
		MaxStates: DefaultMaxStates,
		MaxDepth:  DefaultMaxDepth,
		Logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(&options)
	}
	return &Simulator{options: options}
}

// Simulate searches for a schedule that confirms the candidate cycle.
//
// # Outputs
//
//   - Outcome: Confirmed with a replayable witness, Refuted when the
//     bounded exhaustive search covered the space without finding one, or
//     Inconclusive when the budget ran out first.
//
// Deterministic: identical (cycle, stream, budget) always produces the
// identical outcome.
func (s *Simulator) Simulate(ctx context.Context, cycle *cycles.Cycle, stream *event.Stream) Outcome {
	ctx, span := tracer.Start(ctx, "sim.Simulate",
		trace.WithAttributes(
			attribute.String("cycle.key", cycle.Key),
			attribute.Int("cycle.threads", cycle.Len()),
		),
	)
	defer span.End()

	m := newModel(stream, cycle.Threads, cycle.Resources, waitSeqsOf(cycle))
	maxDepth := s.options.MaxDepth
	if maxDepth <= 0 {
		maxDepth = len(stream.Events)
	}

	// Greedy phase: drive cycle threads to their blocking events first.
	if st, ok := s.greedy(m, maxDepth); ok {
		span.SetAttributes(attribute.String("sim.outcome", "confirmed"), attribute.Bool("sim.greedy", true))
		return Outcome{
			Kind:           OutcomeConfirmed,
			Witness:        st.schedule,
			StatesExplored: len(st.schedule) + 1,
			Rationale:      "greedy schedule reaches a state where every cycle thread is blocked inside the cycle",
		}
	}

	out := s.exhaustive(ctx, m, maxDepth)
	span.SetAttributes(
		attribute.String("sim.outcome", out.Kind.String()),
		attribute.Int("sim.states", out.StatesExplored),
	)
	return out
}

// Replay applies a schedule from the initial state and reports whether the
// resulting state is the candidate's deadlock. Used to verify witnesses.
func Replay(cycle *cycles.Cycle, stream *event.Stream, schedule []Step) (bool, error) {
	m := newModel(stream, cycle.Threads, cycle.Resources, waitSeqsOf(cycle))
	st := initialState(m)

	index := make(map[string]int, len(m.threadIDs))
	for i, id := range m.threadIDs {
		index[id] = i
	}
	for n, step := range schedule {
		i, ok := index[step.ThreadID]
		if !ok {
			return false, fmt.Errorf("schedule step %d references unknown thread %s", n, step.ThreadID)
		}
		ev, ok := st.next(m, i)
		if !ok {
			return false, fmt.Errorf("schedule step %d runs past the end of thread %s", n, step.ThreadID)
		}
		if ev.Kind != step.Event.Kind || ev.ResourceID != step.Event.ResourceID {
			return false, fmt.Errorf("schedule step %d claims %s on %s but thread %s is at %s on %s",
				n, step.Event.Kind, step.Event.ResourceID, step.ThreadID, ev.Kind, ev.ResourceID)
		}
		if !st.enabled(m, i) {
			return false, fmt.Errorf("schedule step %d is not a legal transition for thread %s", n, step.ThreadID)
		}
		st = st.step(m, i)
	}
	return st.deadlocked(m), nil
}

// waitSeqsOf extracts, per cycle thread, the arrival sequence of its
// blocking acquisition.
func waitSeqsOf(cycle *cycles.Cycle) map[string]int {
	seqs := make(map[string]int, len(cycle.Waits))
	for _, e := range cycle.Waits {
		seqs[rag.NodeRef(e.FromID)] = e.Seq
	}
	return seqs
}

// greedy advances cycle threads toward their blocking events round-robin,
// then checks for the deadlocked state. Purely deterministic: threads are
// visited in sorted ID order.
func (s *Simulator) greedy(m *model, maxDepth int) (*state, bool) {
	st := initialState(m)
	for len(st.schedule) < maxDepth {
		advanced := false
		for i, t := range m.threadIDs {
			if !m.cycleThreads[t] {
				continue
			}
			// Stop each cycle thread just short of its blocking event.
			if block, ok := m.blockIndex[t]; ok && st.cursors[i] >= block {
				continue
			}
			if st.enabled(m, i) {
				st = st.step(m, i)
				advanced = true
			}
		}
		if !advanced {
			break
		}
	}
	return st, st.deadlocked(m)
}

// exhaustive is the bounded depth-first fallback. States are deduplicated by
// cursor fingerprint; exploration order is deterministic.
func (s *Simulator) exhaustive(ctx context.Context, m *model, maxDepth int) Outcome {
	visited := make(map[string]bool)
	stack := []*state{initialState(m)}
	explored := 0
	depthCut := false

	for len(stack) > 0 {
		if explored >= s.options.MaxStates {
			return Outcome{
				Kind:           OutcomeInconclusive,
				StatesExplored: explored,
				Rationale:      fmt.Sprintf("state budget of %d exhausted before covering the schedule space", s.options.MaxStates),
			}
		}
		if ctx.Err() != nil {
			return Outcome{
				Kind:           OutcomeInconclusive,
				StatesExplored: explored,
				Rationale:      "search cancelled before covering the schedule space",
			}
		}

		st := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		k := st.key()
		if visited[k] {
			continue
		}
		visited[k] = true
		explored++

		if st.deadlocked(m) {
			return Outcome{
				Kind:           OutcomeConfirmed,
				Witness:        st.schedule,
				StatesExplored: explored,
				Rationale:      "exhaustive search found a schedule leaving every cycle thread blocked inside the cycle",
			}
		}
		moves := s.prioritizedMoves(m, st)
		if len(st.schedule) >= maxDepth {
			// A terminal state at the depth limit is fully covered; the
			// cut only matters when enabled moves went unexplored.
			if len(moves) > 0 {
				depthCut = true
			}
			continue
		}

		// Push successors in reverse priority order so the highest
		// priority move is explored first.
		for j := len(moves) - 1; j >= 0; j-- {
			ns := st.step(m, moves[j])
			if !visited[ns.key()] {
				stack = append(stack, ns)
			}
		}
	}

	if depthCut {
		// A depth cut means part of the space went unexplored.
		return Outcome{
			Kind:           OutcomeInconclusive,
			StatesExplored: explored,
			Rationale:      "depth budget cut the search before covering the schedule space",
		}
	}
	return Outcome{
		Kind:           OutcomeRefuted,
		StatesExplored: explored,
		Rationale:      "no schedule consistent with per-thread order reaches the circular wait",
	}
}

// prioritizedMoves returns the enabled thread indices, cycle participants
// that have not yet reached their blocking event first, then the rest, each
// group in sorted thread-ID order.
func (s *Simulator) prioritizedMoves(m *model, st *state) []int {
	var preferred, rest []int
	for i, t := range m.threadIDs {
		if !st.enabled(m, i) {
			continue
		}
		if m.cycleThreads[t] {
			if block, ok := m.blockIndex[t]; !ok || st.cursors[i] < block {
				preferred = append(preferred, i)
				continue
			}
		}
		rest = append(rest, i)
	}
	return append(preferred, rest...)
}
