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
	"fmt"

	"github.com/saph1r0/deadlock-intelligent-detector/services/detect/rag"
)

// staticBaseConfidence is the score a candidate carries out of the
// syntactic filter. Later levels refine it.
const staticBaseConfidence = 0.5

// analyzeStatic checks that every edge in the cycle originates from code
// whose enclosing entry point is reachable. An edge sourced from dead code
// cannot occur at runtime, so one such edge excludes the whole cycle.
//
// # Inputs
//   - cand: the candidate under analysis.
//
// # Outputs
//   - Verdict: StatusImplausible naming the dead location, or
//     StatusPlausible with the base confidence.
func (a *Analyzer) analyzeStatic(cand *Candidate) Verdict {
	edges := make([]*rag.Edge, 0, len(cand.Cycle.Waits)+len(cand.Cycle.Holds))
	edges = append(edges, cand.Cycle.Waits...)
	edges = append(edges, cand.Cycle.Holds...)

	for _, e := range edges {
		if a.facts.EntryReachable(e.Loc) {
			continue
		}
		return Verdict{
			Level:      LevelStatic,
			Status:     StatusImplausible,
			Confidence: 0,
			Rationale:  fmt.Sprintf("edge at %s originates in unreachable code", e.Loc.Key()),
		}
	}

	return Verdict{
		Level:      LevelStatic,
		Status:     StatusPlausible,
		Confidence: staticBaseConfidence,
		Rationale:  "all cycle edges originate from reachable code",
	}
}
