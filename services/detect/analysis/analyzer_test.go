// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package analysis

import (
	"context"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/saph1r0/deadlock-intelligent-detector/services/detect/cycles"
	"github.com/saph1r0/deadlock-intelligent-detector/services/detect/event"
	"github.com/saph1r0/deadlock-intelligent-detector/services/detect/knowledge"
	"github.com/saph1r0/deadlock-intelligent-detector/services/detect/rag"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// classicStream returns the two-thread opposite-order acquisition stream.
// Event locations are test.go:1 through test.go:4 in arrival order.
func classicStream(t *testing.T, resources []*event.Resource) *event.Stream {
	t.Helper()
	triples := [][2]string{
		{"t1", "a"},
		{"t2", "b"},
		{"t1", "b"},
		{"t2", "a"},
	}
	events := make([]event.Event, 0, len(triples))
	for i, tr := range triples {
		events = append(events, event.Event{
			ThreadID:   tr[0],
			Kind:       event.KindAcquire,
			ResourceID: tr[1],
			Loc:        event.Location{File: "test.go", Line: i + 1},
		})
	}
	stream, err := event.FromEvents(events, resources)
	require.NoError(t, err)
	return stream
}

// detectCandidate runs graph construction and cycle detection and wraps the
// single resulting cycle as an analysis candidate.
func detectCandidate(t *testing.T, stream *event.Stream) *Candidate {
	t.Helper()
	built, err := rag.NewBuilder(rag.WithLogger(quietLogger())).Build(context.Background(), stream)
	require.NoError(t, err)
	result, err := cycles.NewDetector(cycles.WithDetectorLogger(quietLogger())).FindCycles(context.Background(), built.Graph)
	require.NoError(t, err)
	require.Len(t, result.Cycles, 1)
	cycle := result.Cycles[0]
	return NewCandidate(cycle, knowledge.FromCycle(cycle, stream))
}

func TestAnalyzeAllStagesPass(t *testing.T) {
	stream := classicStream(t, nil)
	cand := detectCandidate(t, stream)

	a := NewAnalyzer(stream, nil, WithAnalyzerLogger(quietLogger()))
	a.Analyze(context.Background(), cand)

	require.Len(t, cand.Verdicts, 4)
	assert.Equal(t, LevelStatic, cand.Verdicts[0].Level)
	assert.Equal(t, LevelControlFlow, cand.Verdicts[1].Level)
	assert.Equal(t, LevelContextual, cand.Verdicts[2].Level)
	assert.Equal(t, LevelScoring, cand.Verdicts[3].Level)
	for _, v := range cand.Verdicts {
		assert.Equal(t, StatusPlausible, v.Status)
	}

	// Both resources default to mutex, so the structural score maxes out.
	assert.InDelta(t, 1.0, cand.Confidence, 1e-9)
	assert.Equal(t, SeverityCritical, cand.Severity)
	assert.True(t, cand.NeedsSimulation)
	assert.Equal(t, StatusPlausible, cand.Overall())
}

func TestAnalyzeStaticExcludesDeadCode(t *testing.T) {
	stream := classicStream(t, nil)
	// test.go:3 is t1's blocking acquisition of b.
	stream.Facts = event.NewFactTable([]string{"test.go:3"}, nil)
	cand := detectCandidate(t, stream)

	a := NewAnalyzer(stream, nil, WithAnalyzerLogger(quietLogger()))
	a.Analyze(context.Background(), cand)

	require.Len(t, cand.Verdicts, 1)
	assert.Equal(t, LevelStatic, cand.Verdicts[0].Level)
	assert.Equal(t, StatusImplausible, cand.Verdicts[0].Status)
	assert.Contains(t, cand.Verdicts[0].Rationale, "test.go:3")
	assert.Equal(t, StatusImplausible, cand.Overall())
	assert.Zero(t, cand.Confidence)
}

func TestAnalyzeControlFlowExcludesExclusivePaths(t *testing.T) {
	stream := classicStream(t, nil)
	// t1 acquires a at test.go:1 and blocks on b at test.go:3; declaring
	// the pair mutually exclusive makes the hold-then-wait infeasible.
	stream.Facts = event.NewFactTable(nil, [][2]string{{"test.go:1", "test.go:3"}})
	cand := detectCandidate(t, stream)

	a := NewAnalyzer(stream, nil, WithAnalyzerLogger(quietLogger()))
	a.Analyze(context.Background(), cand)

	require.Len(t, cand.Verdicts, 2)
	assert.Equal(t, StatusPlausible, cand.Verdicts[0].Status)
	assert.Equal(t, LevelControlFlow, cand.Verdicts[1].Level)
	assert.Equal(t, StatusImplausible, cand.Verdicts[1].Status)
	assert.Contains(t, cand.Verdicts[1].Rationale, "t1")
}

func TestAnalyzeContextualExcludesOrderedCycle(t *testing.T) {
	stream := classicStream(t, nil)
	stream.OrderRules = []event.OrderRule{{Before: "a", After: "b"}}
	cand := detectCandidate(t, stream)

	a := NewAnalyzer(stream, nil, WithAnalyzerLogger(quietLogger()))
	a.Analyze(context.Background(), cand)

	require.Len(t, cand.Verdicts, 3)
	assert.Equal(t, LevelContextual, cand.Verdicts[2].Level)
	assert.Equal(t, StatusImplausible, cand.Verdicts[2].Status)
}

func TestAnalyzeContextualUsesTransitiveClosure(t *testing.T) {
	stream := classicStream(t, nil)
	// a < m and m < b relate a and b only transitively.
	stream.OrderRules = []event.OrderRule{
		{Before: "a", After: "m"},
		{Before: "m", After: "b"},
	}
	cand := detectCandidate(t, stream)

	a := NewAnalyzer(stream, nil, WithAnalyzerLogger(quietLogger()))
	a.Analyze(context.Background(), cand)

	require.Len(t, cand.Verdicts, 3)
	assert.Equal(t, StatusImplausible, cand.Verdicts[2].Status)
}

func TestAnalyzeContextualGapKeepsCandidate(t *testing.T) {
	stream := classicStream(t, nil)
	// The declared order never mentions b, so t1's held/wanted pair is
	// uncovered and the candidate survives.
	stream.OrderRules = []event.OrderRule{{Before: "a", After: "c"}}
	cand := detectCandidate(t, stream)

	a := NewAnalyzer(stream, nil, WithAnalyzerLogger(quietLogger()))
	a.Analyze(context.Background(), cand)

	require.Len(t, cand.Verdicts, 4)
	assert.Equal(t, StatusPlausible, cand.Verdicts[2].Status)
	assert.Equal(t, StatusPlausible, cand.Overall())
}

func TestAnalyzeScoringTwoThreadBypassesThreshold(t *testing.T) {
	resources := []*event.Resource{
		{ID: "a", Kind: event.ResourceChannel},
		{ID: "b", Kind: event.ResourceChannel},
	}
	stream := classicStream(t, resources)
	cand := detectCandidate(t, stream)

	// Channel kinds pull the structural score below the raised gate, but a
	// direct mutual wait is always worth simulating.
	a := NewAnalyzer(stream, nil, WithThreshold(0.9), WithAnalyzerLogger(quietLogger()))
	a.Analyze(context.Background(), cand)

	assert.Less(t, cand.Confidence, 0.9)
	assert.True(t, cand.NeedsSimulation)
}

func TestAnalyzeScoringBlendsHistory(t *testing.T) {
	stream := classicStream(t, nil)
	cand := detectCandidate(t, stream)

	kb := knowledge.NewStore()
	kb.Record(cand.Signature, knowledge.VerdictRefuted)
	kb.Record(cand.Signature, knowledge.VerdictRefuted)

	a := NewAnalyzer(stream, kb, WithAnalyzerLogger(quietLogger()))
	a.Analyze(context.Background(), cand)

	// Two refutations on record drag the blended score below the purely
	// structural 1.0 of TestAnalyzeAllStagesPass.
	assert.InDelta(t, 0.8, cand.Confidence, 1e-9)
}

func TestAnalyzeCancelledContext(t *testing.T) {
	stream := classicStream(t, nil)
	cand := detectCandidate(t, stream)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	a := NewAnalyzer(stream, nil, WithAnalyzerLogger(quietLogger()))
	a.Analyze(ctx, cand)

	require.Len(t, cand.Verdicts, 1)
	assert.Equal(t, StatusInconclusive, cand.Verdicts[0].Status)
	assert.Equal(t, StatusInconclusive, cand.Overall())
}

func TestSeverityBuckets(t *testing.T) {
	assert.Equal(t, SeverityCritical, severityFor(0.85))
	assert.Equal(t, SeverityHigh, severityFor(0.7))
	assert.Equal(t, SeverityMedium, severityFor(0.5))
	assert.Equal(t, SeverityLow, severityFor(0.2))
}

func TestOverallPrefersMostAdvancedStatus(t *testing.T) {
	c := &Candidate{}
	c.record(Verdict{Level: LevelStatic, Status: StatusPlausible, Confidence: 0.5})
	c.record(Verdict{Level: LevelSimulation, Status: StatusConfirmed, Confidence: 0.95})
	assert.Equal(t, StatusConfirmed, c.Overall())
	assert.InDelta(t, 0.95, c.Confidence, 1e-9)
}
