// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package pipeline orchestrates the full detection flow: graph build,
// cycle enumeration, multi-level analysis, simulation, knowledge-base
// update and strategy ranking.
package pipeline

import (
	"context"
	"log/slog"
	"runtime"
	"sort"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/saph1r0/deadlock-intelligent-detector/services/detect/analysis"
	"github.com/saph1r0/deadlock-intelligent-detector/services/detect/cycles"
	"github.com/saph1r0/deadlock-intelligent-detector/services/detect/event"
	"github.com/saph1r0/deadlock-intelligent-detector/services/detect/knowledge"
	"github.com/saph1r0/deadlock-intelligent-detector/services/detect/rag"
	"github.com/saph1r0/deadlock-intelligent-detector/services/detect/recommend"
	"github.com/saph1r0/deadlock-intelligent-detector/services/detect/sim"
)

// Pipeline wires the detection stages together.
//
// # Description
//
// A Pipeline is built once and reused across runs; each Run analyzes one
// event-stream snapshot against the shared knowledge base. Candidates are
// analyzed in parallel because they share only the knowledge store, which
// serializes its own writes.
//
// # Thread Safety
//
// Safe for concurrent Run calls.
type Pipeline struct {
	kb          *knowledge.Store
	detector    *cycles.Detector
	simulator   *sim.Simulator
	recommender *recommend.Recommender

	analyzerOpts []analysis.Option
	workers      int
	logger       *slog.Logger
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithWorkers bounds candidate-analysis parallelism.
func WithWorkers(n int) Option {
	return func(p *Pipeline) {
		if n > 0 {
			p.workers = n
		}
	}
}

// WithDetector replaces the default cycle detector.
func WithDetector(d *cycles.Detector) Option {
	return func(p *Pipeline) { p.detector = d }
}

// WithSimulator replaces the default simulator.
func WithSimulator(s *sim.Simulator) Option {
	return func(p *Pipeline) { p.simulator = s }
}

// WithRecommender replaces the default recommender.
func WithRecommender(r *recommend.Recommender) Option {
	return func(p *Pipeline) { p.recommender = r }
}

// WithAnalyzerOptions forwards options to the per-run analyzer.
func WithAnalyzerOptions(opts ...analysis.Option) Option {
	return func(p *Pipeline) { p.analyzerOpts = opts }
}

// WithPipelineLogger sets the structured logger.
func WithPipelineLogger(l *slog.Logger) Option {
	return func(p *Pipeline) { p.logger = l }
}

// New builds a pipeline around a knowledge base. The knowledge base may be
// nil for one-shot analyses with no cross-run memory.
func New(kb *knowledge.Store, opts ...Option) *Pipeline {
	p := &Pipeline{
		kb:      kb,
		workers: runtime.NumCPU(),
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(p)
	}
	if p.detector == nil {
		p.detector = cycles.NewDetector(cycles.WithDetectorLogger(p.logger))
	}
	if p.simulator == nil {
		p.simulator = sim.NewSimulator(sim.WithSimLogger(p.logger))
	}
	if p.recommender == nil {
		p.recommender = recommend.NewRecommender(p.kb, recommend.WithRecommenderLogger(p.logger))
	}
	return p
}

// Run analyzes one event stream end to end.
//
// # Inputs
//   - ctx: cancellation and budget control for the whole run.
//   - stream: the decoded snapshot. Must be non-empty.
//
// # Outputs
//   - *Report: one finding per detected cycle, plus run diagnostics.
//   - error: event.ErrEmptyStream, a graph build failure, or context
//     cancellation. Per-thread and per-candidate problems are reported in
//     the Report, not as errors.
func (p *Pipeline) Run(ctx context.Context, stream *event.Stream) (*Report, error) {
	if stream == nil || len(stream.Events) == 0 {
		return nil, event.ErrEmptyStream
	}

	runID := uuid.NewString()
	logger := p.logger.With("run_id", runID)
	start := time.Now()

	ctx, span := startRunSpan(ctx, runID, len(stream.Events))
	defer span.End()

	built, err := rag.NewBuilder(rag.WithLogger(logger)).Build(ctx, stream)
	if err != nil {
		return nil, err
	}
	for _, te := range built.ThreadErrors {
		logger.Warn("thread excluded from analysis",
			"thread_id", te.ThreadID, "reason", te.Reason)
	}

	detected, err := p.detector.FindCycles(ctx, built.Graph)
	if err != nil {
		return nil, err
	}
	logger.Info("cycle detection complete",
		"cycles", len(detected.Cycles),
		"components", detected.Components,
		"truncated", detected.Truncated)

	analyzer := analysis.NewAnalyzer(stream, p.kb, append(
		[]analysis.Option{analysis.WithAnalyzerLogger(logger)}, p.analyzerOpts...)...)

	findings := make([]Finding, len(detected.Cycles))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.workers)
	for i, cycle := range detected.Cycles {
		i, cycle := i, cycle
		g.Go(func() error {
			findings[i] = p.examine(gctx, analyzer, cycle, stream)
			return nil
		})
	}
	// Worker funcs never return errors; per-candidate problems become
	// Inconclusive findings.
	_ = g.Wait()

	sort.SliceStable(findings, func(i, j int) bool {
		if findings[i].Confidence != findings[j].Confidence {
			return findings[i].Confidence > findings[j].Confidence
		}
		return findings[i].Cycle.Key < findings[j].Cycle.Key
	})

	report := &Report{
		RunID:        runID,
		Findings:     findings,
		Truncated:    detected.Truncated,
		ThreadErrors: built.ThreadErrors,
		EventCount:   len(stream.Events),
		NodeCount:    built.Graph.NodeCount(),
		EdgeCount:    built.Graph.EdgeCount(),
		Components:   detected.Components,
		Duration:     time.Since(start),
	}
	recordRunMetrics(ctx, report)
	logger.Info("run complete",
		"findings", len(report.Findings),
		"confirmed", len(report.Confirmed()),
		"duration", report.Duration)
	return report, nil
}

// examine takes one cycle through analysis, simulation, knowledge-base
// update and recommendation.
func (p *Pipeline) examine(ctx context.Context, analyzer *analysis.Analyzer, cycle *cycles.Cycle, stream *event.Stream) Finding {
	sig := knowledge.FromCycle(cycle, stream)
	cand := analysis.NewCandidate(cycle, sig)
	analyzer.Analyze(ctx, cand)

	f := Finding{
		Cycle:     cycle,
		Signature: sig,
		Pattern:   knowledge.PatternName(sig),
	}

	if cand.NeedsSimulation && cand.Overall() == analysis.StatusPlausible {
		outcome := p.simulator.Simulate(ctx, cycle, stream)
		f.SimOutcome = &outcome
		cand.Verdicts = append(cand.Verdicts, simVerdict(outcome, cand.Confidence))
		switch outcome.Kind {
		case sim.OutcomeConfirmed:
			cand.Confidence = maxf(cand.Confidence, 0.95)
		case sim.OutcomeRefuted:
			cand.Confidence = 0.05
		}
		if p.kb != nil {
			p.kb.Record(sig, kbVerdict(outcome.Kind))
		}
	}

	f.Verdicts = cand.Verdicts
	f.Overall = cand.Overall()
	f.Confidence = cand.Confidence
	f.Severity = cand.Severity

	if f.Overall != analysis.StatusRefuted && f.Overall != analysis.StatusImplausible {
		f.Strategies = p.recommender.Recommend(cycle, sig, cand.Severity)
	}
	return f
}

// simVerdict maps a simulation outcome onto the verdict history. An
// inconclusive search keeps the scoring confidence.
func simVerdict(o sim.Outcome, scored float64) analysis.Verdict {
	v := analysis.Verdict{
		Level:      analysis.LevelSimulation,
		Rationale:  o.Rationale,
		Confidence: scored,
	}
	switch o.Kind {
	case sim.OutcomeConfirmed:
		v.Status = analysis.StatusConfirmed
		v.Confidence = 0.95
	case sim.OutcomeRefuted:
		v.Status = analysis.StatusRefuted
		v.Confidence = 0.05
	default:
		v.Status = analysis.StatusInconclusive
	}
	return v
}

func kbVerdict(k sim.OutcomeKind) knowledge.Verdict {
	switch k {
	case sim.OutcomeConfirmed:
		return knowledge.VerdictConfirmed
	case sim.OutcomeRefuted:
		return knowledge.VerdictRefuted
	default:
		return knowledge.VerdictInconclusive
	}
}

func maxf(a, b float64) float64 {
	if a > b {
		return a
	}
	return b
}
