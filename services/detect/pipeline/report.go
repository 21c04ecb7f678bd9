// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package pipeline

import (
	"time"

	"github.com/saph1r0/deadlock-intelligent-detector/services/detect/analysis"
	"github.com/saph1r0/deadlock-intelligent-detector/services/detect/cycles"
	"github.com/saph1r0/deadlock-intelligent-detector/services/detect/knowledge"
	"github.com/saph1r0/deadlock-intelligent-detector/services/detect/rag"
	"github.com/saph1r0/deadlock-intelligent-detector/services/detect/recommend"
	"github.com/saph1r0/deadlock-intelligent-detector/services/detect/sim"
)

// Finding is the full analysis record for one detected cycle. Every cycle
// the detector reports yields exactly one Finding, whatever its fate.
type Finding struct {
	// Cycle is the detected circular wait.
	Cycle *cycles.Cycle

	// Signature is the cycle's knowledge-base fingerprint.
	Signature knowledge.Signature

	// Pattern is the human-readable pattern classification.
	Pattern string

	// Verdicts is the level-by-level analysis history, including the
	// simulation verdict when one ran.
	Verdicts []analysis.Verdict

	// Overall is the most advanced status reached.
	Overall analysis.Status

	// Confidence is the final score in [0,1].
	Confidence float64

	// Severity buckets the finding for reporting.
	Severity analysis.Severity

	// SimOutcome is the interleaving-search result, nil when the
	// candidate never reached simulation.
	SimOutcome *sim.Outcome

	// Strategies is the ranked remediation list, empty for refuted or
	// implausible findings.
	Strategies []recommend.Ranked
}

// Report is the result of one pipeline run over one event stream.
type Report struct {
	// RunID uniquely identifies the run across logs and traces.
	RunID string

	// Findings are ordered by confidence, highest first, ties by cycle
	// key for determinism.
	Findings []Finding

	// Truncated is set when cycle enumeration hit a configured cap.
	// Findings may be missing; the ones present are complete.
	Truncated bool

	// ThreadErrors lists threads excluded for malformed event sequences.
	ThreadErrors []*rag.MalformedEventError

	// EventCount, NodeCount and EdgeCount describe the analyzed snapshot.
	EventCount int
	NodeCount  int
	EdgeCount  int

	// Components is the number of nontrivial strongly connected
	// components the detector examined.
	Components int

	// Duration is the wall time of the whole run.
	Duration time.Duration
}

// Confirmed returns the findings the simulator validated.
func (r *Report) Confirmed() []Finding {
	var out []Finding
	for _, f := range r.Findings {
		if f.Overall == analysis.StatusConfirmed {
			out = append(out, f)
		}
	}
	return out
}
