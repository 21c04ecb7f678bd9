// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package analysis escalates deadlock candidates through four filters of
// increasing precision: static plausibility, control-flow feasibility,
// contextual constraints, and probabilistic scoring. Each level may
// short-circuit with Implausible or pass the candidate onward with an
// updated confidence.
package analysis

import (
	"github.com/google/uuid"

	"github.com/saph1r0/deadlock-intelligent-detector/services/detect/cycles"
	"github.com/saph1r0/deadlock-intelligent-detector/services/detect/knowledge"
)

// Status is one verdict state.
type Status int

const (
	// StatusPlausible means the candidate survived the level.
	StatusPlausible Status = iota

	// StatusImplausible means the level excluded the candidate.
	StatusImplausible

	// StatusConfirmed means the simulator validated the candidate.
	StatusConfirmed

	// StatusRefuted means the simulator excluded the candidate.
	StatusRefuted

	// StatusInconclusive means a budget ran out mid-candidate. Reported
	// explicitly, never silently dropped.
	StatusInconclusive
)

// String returns the status name.
func (s Status) String() string {
	switch s {
	case StatusPlausible:
		return "plausible"
	case StatusImplausible:
		return "implausible"
	case StatusConfirmed:
		return "confirmed"
	case StatusRefuted:
		return "refuted"
	case StatusInconclusive:
		return "inconclusive"
	default:
		return "unknown"
	}
}

// rank orders statuses by how advanced they are; higher wins when computing
// the overall candidate status.
func (s Status) rank() int {
	switch s {
	case StatusConfirmed:
		return 4
	case StatusRefuted:
		return 3
	case StatusImplausible:
		return 2
	case StatusInconclusive:
		return 1
	default:
		return 0
	}
}

// Level identifies an analysis stage.
type Level int

const (
	// LevelStatic is the syntactic-reachability filter.
	LevelStatic Level = iota + 1

	// LevelControlFlow is the per-thread path-feasibility filter.
	LevelControlFlow

	// LevelContextual applies declared ordering invariants.
	LevelContextual

	// LevelScoring computes the probabilistic confidence.
	LevelScoring

	// LevelSimulation is the interleaving-search validation stage.
	LevelSimulation
)

// String returns the level name.
func (l Level) String() string {
	switch l {
	case LevelStatic:
		return "static"
	case LevelControlFlow:
		return "control_flow"
	case LevelContextual:
		return "contextual"
	case LevelScoring:
		return "scoring"
	case LevelSimulation:
		return "simulation"
	default:
		return "unknown"
	}
}

// Verdict is one level's decision on a candidate.
type Verdict struct {
	// Level is the stage that produced this verdict.
	Level Level

	// Status is the decision.
	Status Status

	// Confidence is the candidate's confidence after this level, in [0,1].
	Confidence float64

	// Rationale is a short human-readable justification.
	Rationale string
}

// Severity buckets a candidate for reporting.
type Severity int

const (
	SeverityLow Severity = iota
	SeverityMedium
	SeverityHigh
	SeverityCritical
)

// String returns the severity name.
func (s Severity) String() string {
	switch s {
	case SeverityLow:
		return "LOW"
	case SeverityMedium:
		return "MEDIUM"
	case SeverityHigh:
		return "HIGH"
	case SeverityCritical:
		return "CRITICAL"
	default:
		return "UNKNOWN"
	}
}

// severityFor buckets a confidence score.
func severityFor(confidence float64) Severity {
	switch {
	case confidence >= 0.8:
		return SeverityCritical
	case confidence >= 0.6:
		return SeverityHigh
	case confidence >= 0.4:
		return SeverityMedium
	default:
		return SeverityLow
	}
}

// Candidate is a cycle flowing through the verdict pipeline. The cycle is
// immutable; the confidence score and verdict history accumulate per level.
type Candidate struct {
	// ID uniquely identifies the candidate within a run.
	ID string

	// Cycle is the detected waits-for loop.
	Cycle *cycles.Cycle

	// Signature is the cycle's knowledge-base fingerprint.
	Signature knowledge.Signature

	// Verdicts is the level-by-level history, in stage order.
	Verdicts []Verdict

	// Confidence is the current score in [0,1].
	Confidence float64

	// Severity is assigned once scoring completes.
	Severity Severity

	// NeedsSimulation is set when the candidate passed the threshold gate
	// (or bypassed it as a direct mutual wait).
	NeedsSimulation bool
}

// NewCandidate wraps a detected cycle for analysis.
func NewCandidate(cycle *cycles.Cycle, sig knowledge.Signature) *Candidate {
	return &Candidate{
		ID:        uuid.NewString(),
		Cycle:     cycle,
		Signature: sig,
	}
}

// Overall returns the most advanced verdict status reached.
func (c *Candidate) Overall() Status {
	best := StatusPlausible
	for _, v := range c.Verdicts {
		if v.Status.rank() > best.rank() {
			best = v.Status
		}
	}
	return best
}

// record appends a verdict and tracks the running confidence.
func (c *Candidate) record(v Verdict) {
	c.Verdicts = append(c.Verdicts, v)
	c.Confidence = v.Confidence
}
