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

// controlFlowConfidence is the score a candidate carries out of the
// path-feasibility filter.
const controlFlowConfidence = 0.65

// analyzeControlFlow checks that each cycle thread can reach its blocking
// wait while still holding the resource it contributes to the cycle. The
// fact table answers pairwise joint-reachability queries; absent facts
// default to feasible, so this level only ever excludes candidates the
// caller explicitly ruled out.
func (a *Analyzer) analyzeControlFlow(cand *Candidate) Verdict {
	for _, tid := range cand.Cycle.Threads {
		hold, wait := threadEdges(cand, tid)
		if hold == nil || wait == nil {
			continue
		}
		if a.facts.Reachable(hold.Loc, wait.Loc) {
			continue
		}
		return Verdict{
			Level:      LevelControlFlow,
			Status:     StatusImplausible,
			Confidence: 0,
			Rationale: fmt.Sprintf("thread %s cannot reach %s while holding the lock acquired at %s",
				tid, wait.Loc.Key(), hold.Loc.Key()),
		}
	}

	return Verdict{
		Level:      LevelControlFlow,
		Status:     StatusPlausible,
		Confidence: controlFlowConfidence,
		Rationale:  "every hold-then-wait pair is jointly reachable",
	}
}

// threadEdges returns the hold edge into and the wait edge out of one
// thread's node within the cycle.
func threadEdges(cand *Candidate, threadID string) (hold, wait *rag.Edge) {
	node := rag.ThreadNodeID(threadID)
	for _, e := range cand.Cycle.Holds {
		if e.ToID == node {
			hold = e
			break
		}
	}
	for _, e := range cand.Cycle.Waits {
		if e.FromID == node {
			wait = e
			break
		}
	}
	return hold, wait
}
