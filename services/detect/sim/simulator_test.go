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
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/saph1r0/deadlock-intelligent-detector/services/detect/cycles"
	"github.com/saph1r0/deadlock-intelligent-detector/services/detect/event"
	"github.com/saph1r0/deadlock-intelligent-detector/services/detect/rag"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func mkStream(t *testing.T, triples [][3]string) *event.Stream {
	t.Helper()
	kinds := map[string]event.Kind{
		"acquire":  event.KindAcquire,
		"release":  event.KindRelease,
		"wait_for": event.KindWaitFor,
	}
	events := make([]event.Event, 0, len(triples))
	for i, tr := range triples {
		events = append(events, event.Event{
			ThreadID:   tr[0],
			Kind:       kinds[tr[1]],
			ResourceID: tr[2],
			Loc:        event.Location{File: "test.go", Line: i + 1},
		})
	}
	stream, err := event.FromEvents(events, nil)
	require.NoError(t, err)
	return stream
}

// detectOne builds the graph, runs detection, and returns the single cycle.
func detectOne(t *testing.T, stream *event.Stream) *cycles.Cycle {
	t.Helper()
	built, err := rag.NewBuilder(rag.WithLogger(quietLogger())).Build(context.Background(), stream)
	require.NoError(t, err)
	result, err := cycles.NewDetector(cycles.WithDetectorLogger(quietLogger())).FindCycles(context.Background(), built.Graph)
	require.NoError(t, err)
	require.Len(t, result.Cycles, 1)
	return result.Cycles[0]
}

func classicStream(t *testing.T) *event.Stream {
	return mkStream(t, [][3]string{
		{"t1", "acquire", "a"},
		{"t2", "acquire", "b"},
		{"t1", "acquire", "b"},
		{"t2", "acquire", "a"},
	})
}

func TestSimulateConfirmsClassicDeadlock(t *testing.T) {
	stream := classicStream(t)
	cycle := detectOne(t, stream)

	out := NewSimulator(WithSimLogger(quietLogger())).Simulate(context.Background(), cycle, stream)

	assert.Equal(t, OutcomeConfirmed, out.Kind)
	require.NotEmpty(t, out.Witness)
	assert.NotEmpty(t, out.Rationale)

	// The witness must replay to the deadlocked state.
	ok, err := Replay(cycle, stream, out.Witness)
	require.NoError(t, err)
	assert.True(t, ok)
}

// orderedStream is deadlock-free: both threads release the first lock
// before taking the second, so no interleaving produces a circular wait.
func orderedStream(t *testing.T) *event.Stream {
	return mkStream(t, [][3]string{
		{"t1", "acquire", "a"},
		{"t2", "acquire", "b"},
		{"t1", "release", "a"},
		{"t2", "release", "b"},
		{"t1", "acquire", "b"},
		{"t2", "acquire", "a"},
		{"t1", "release", "b"},
		{"t2", "release", "a"},
	})
}

// orderedCycle hand-builds the candidate the analyzer would still flag from
// a lock-order heuristic, against the deadlock-free ordered stream.
func orderedCycle() *cycles.Cycle {
	return &cycles.Cycle{
		Nodes:     []string{"r:a", "t:t1", "r:b", "t:t2"},
		Threads:   []string{"t1", "t2"},
		Resources: []string{"a", "b"},
		Waits: []*rag.Edge{
			{FromID: "t:t1", ToID: "r:b", Kind: rag.EdgeWaitsFor, Seq: 4},
			{FromID: "t:t2", ToID: "r:a", Kind: rag.EdgeWaitsFor, Seq: 5},
		},
		Key: "r:a -> t:t1 -> r:b -> t:t2",
	}
}

func TestSimulateConfirmsThreeThreadRing(t *testing.T) {
	stream := mkStream(t, [][3]string{
		{"t1", "acquire", "a"},
		{"t2", "acquire", "b"},
		{"t3", "acquire", "c"},
		{"t1", "acquire", "b"},
		{"t2", "acquire", "c"},
		{"t3", "acquire", "a"},
	})
	cycle := detectOne(t, stream)

	out := NewSimulator(WithSimLogger(quietLogger())).Simulate(context.Background(), cycle, stream)

	assert.Equal(t, OutcomeConfirmed, out.Kind)
	assert.LessOrEqual(t, len(out.Witness), len(stream.Events))
	ok, err := Replay(cycle, stream, out.Witness)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestSimulateRefutesOrderedAcquisition(t *testing.T) {
	stream := orderedStream(t)

	out := NewSimulator(WithSimLogger(quietLogger())).Simulate(context.Background(), orderedCycle(), stream)

	assert.Equal(t, OutcomeRefuted, out.Kind)
	assert.Empty(t, out.Witness)
	assert.Positive(t, out.StatesExplored)
}

func TestSimulateRefutesAtExactDepthBudget(t *testing.T) {
	stream := orderedStream(t)

	// Every complete schedule has exactly len(stream.Events) steps, so a
	// depth budget of that length still covers the whole space. Terminal
	// states sitting on the limit must not be counted as cut.
	s := NewSimulator(WithMaxDepth(len(stream.Events)), WithSimLogger(quietLogger()))
	out := s.Simulate(context.Background(), orderedCycle(), stream)

	assert.Equal(t, OutcomeRefuted, out.Kind)
}

func TestSimulateInconclusiveOnStateBudget(t *testing.T) {
	stream := orderedStream(t)

	s := NewSimulator(WithMaxStates(1), WithSimLogger(quietLogger()))
	out := s.Simulate(context.Background(), orderedCycle(), stream)

	assert.Equal(t, OutcomeInconclusive, out.Kind)
	assert.Contains(t, out.Rationale, "budget")
}

func TestSimulateInconclusiveOnDepthBudget(t *testing.T) {
	stream := orderedStream(t)

	s := NewSimulator(WithMaxDepth(2), WithSimLogger(quietLogger()))
	out := s.Simulate(context.Background(), orderedCycle(), stream)

	assert.Equal(t, OutcomeInconclusive, out.Kind)
}

func TestSimulateCancelled(t *testing.T) {
	stream := orderedStream(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	out := NewSimulator(WithSimLogger(quietLogger())).Simulate(ctx, orderedCycle(), stream)
	assert.Equal(t, OutcomeInconclusive, out.Kind)
}

func TestSimulateIsDeterministic(t *testing.T) {
	stream := classicStream(t)
	cycle := detectOne(t, stream)
	s := NewSimulator(WithSimLogger(quietLogger()))

	first := s.Simulate(context.Background(), cycle, stream)
	second := s.Simulate(context.Background(), cycle, stream)

	assert.Equal(t, first.Kind, second.Kind)
	assert.Equal(t, first.Witness, second.Witness)
	assert.Equal(t, first.StatesExplored, second.StatesExplored)
}

func TestReplayRejectsIllegalSchedule(t *testing.T) {
	stream := classicStream(t)
	cycle := detectOne(t, stream)

	// t1 releasing a lock it never acquired is not a legal transition.
	_, err := Replay(cycle, stream, []Step{
		{ThreadID: "t1", Event: event.Event{ThreadID: "t1", Kind: event.KindRelease, ResourceID: "a"}},
	})
	assert.Error(t, err)

	// A step whose claimed event disagrees with the thread's actual next
	// event must be rejected, not silently replaced by the real one.
	_, err = Replay(cycle, stream, []Step{
		{ThreadID: "t1", Event: event.Event{ThreadID: "t1", Kind: event.KindAcquire, ResourceID: "b"}},
	})
	assert.Error(t, err)

	_, err = Replay(cycle, stream, []Step{{ThreadID: "ghost"}})
	assert.Error(t, err)
}

func TestReplayIncompleteScheduleIsNotDeadlock(t *testing.T) {
	stream := classicStream(t)
	cycle := detectOne(t, stream)

	ok, err := Replay(cycle, stream, nil)
	require.NoError(t, err)
	assert.False(t, ok)
}
