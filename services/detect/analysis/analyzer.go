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
	"log/slog"

	"github.com/saph1r0/deadlock-intelligent-detector/services/detect/event"
	"github.com/saph1r0/deadlock-intelligent-detector/services/detect/knowledge"
)

// stage couples a level with its implementation. The table below fixes the
// escalation order; each stage either excludes the candidate or passes it
// to the next.
type stage struct {
	level Level
	run   func(*Analyzer, *Candidate) Verdict
}

var stages = []stage{
	{LevelStatic, (*Analyzer).analyzeStatic},
	{LevelControlFlow, (*Analyzer).analyzeControlFlow},
	{LevelContextual, (*Analyzer).analyzeContextual},
	{LevelScoring, (*Analyzer).analyzeScoring},
}

// Analyzer runs candidates through the escalation stages.
//
// # Description
//
// The analyzer is configured once per stream and then applied to each
// detected cycle. Cheap syntactic filters run first so that the expensive
// simulator only ever sees candidates that survived every structural and
// contextual objection.
//
// # Thread Safety
//
// Safe for concurrent use after construction. All per-candidate state
// lives on the Candidate.
type Analyzer struct {
	facts     *event.FactTable
	rules     []event.OrderRule
	resources map[string]*event.Resource
	kb        *knowledge.Store

	lengthWeight    float64
	diversityWeight float64
	historyWeight   float64
	threshold       float64
	kindWeights     map[event.ResourceKind]float64

	logger *slog.Logger
}

// Option configures an Analyzer.
type Option func(*Analyzer)

// WithWeights overrides the scoring blend.
func WithWeights(length, diversity, history float64) Option {
	return func(a *Analyzer) {
		a.lengthWeight = length
		a.diversityWeight = diversity
		a.historyWeight = history
	}
}

// WithThreshold overrides the simulation gate.
func WithThreshold(t float64) Option {
	return func(a *Analyzer) { a.threshold = t }
}

// WithKindWeights overrides the per-resource-kind scoring weights.
func WithKindWeights(w map[event.ResourceKind]float64) Option {
	return func(a *Analyzer) { a.kindWeights = w }
}

// WithAnalyzerLogger sets the structured logger.
func WithAnalyzerLogger(l *slog.Logger) Option {
	return func(a *Analyzer) { a.logger = l }
}

// NewAnalyzer builds an analyzer over one event stream. The knowledge base
// may be nil; scoring then runs on structural signals alone.
func NewAnalyzer(stream *event.Stream, kb *knowledge.Store, opts ...Option) *Analyzer {
	a := &Analyzer{
		facts:           stream.Facts,
		rules:           stream.OrderRules,
		resources:       stream.Resources,
		kb:              kb,
		lengthWeight:    DefaultLengthWeight,
		diversityWeight: DefaultDiversityWeight,
		historyWeight:   DefaultHistoryWeight,
		threshold:       DefaultThreshold,
		kindWeights:     defaultKindWeights(),
		logger:          slog.Default(),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Analyze runs the candidate through the stage table. It returns once a
// stage excludes the candidate, the context expires, or scoring completes.
// A context expiry mid-candidate records an Inconclusive verdict for the
// stage that was about to run.
func (a *Analyzer) Analyze(ctx context.Context, cand *Candidate) {
	ctx, span := startAnalyzeSpan(ctx, cand)
	defer span.End()

	for _, st := range stages {
		if err := ctx.Err(); err != nil {
			cand.record(Verdict{
				Level:      st.level,
				Status:     StatusInconclusive,
				Confidence: cand.Confidence,
				Rationale:  "analysis budget exhausted",
			})
			recordVerdict(ctx, st.level, StatusInconclusive)
			return
		}

		v := st.run(a, cand)
		cand.record(v)
		recordVerdict(ctx, st.level, v.Status)

		a.logger.Debug("analysis verdict",
			"candidate", cand.ID,
			"cycle", cand.Cycle.Key,
			"level", v.Level.String(),
			"status", v.Status.String(),
			"confidence", v.Confidence)

		if v.Status == StatusImplausible {
			return
		}
	}
}
