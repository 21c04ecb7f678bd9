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

	"github.com/saph1r0/deadlock-intelligent-detector/services/detect/event"
)

// Scoring knobs. The defaults favor short mutex-only cycles, which confirm
// far more often than long or channel-heavy ones.
const (
	DefaultLengthWeight    = 0.5
	DefaultDiversityWeight = 0.3
	DefaultHistoryWeight   = 0.2
	DefaultThreshold       = 0.45
)

// defaultKindWeights reflects how often each resource kind participates in
// real confirmed deadlocks.
func defaultKindWeights() map[event.ResourceKind]float64 {
	return map[event.ResourceKind]float64{
		event.ResourceMutex:     1.0,
		event.ResourceSemaphore: 0.8,
		event.ResourceChannel:   0.5,
	}
}

// analyzeScoring blends structural and historical signals into the final
// confidence and decides whether the candidate earns a simulation run.
// Two-thread cycles bypass the threshold gate: they are cheap to simulate
// and overwhelmingly the real thing.
func (a *Analyzer) analyzeScoring(cand *Candidate) Verdict {
	lengthScore := 0.0
	if n := cand.Cycle.Len(); n > 1 {
		lengthScore = 1.0 / float64(n-1)
	}

	kindScore := 0.0
	if len(cand.Cycle.Resources) > 0 {
		sum := 0.0
		for _, rid := range cand.Cycle.Resources {
			w := 0.5
			if res, ok := a.resources[rid]; ok {
				if kw, ok := a.kindWeights[res.Kind]; ok {
					w = kw
				}
			}
			sum += w
		}
		kindScore = sum / float64(len(cand.Cycle.Resources))
	}

	histScore, histKnown := 0.0, false
	if a.kb != nil {
		if stats, ok := a.kb.Query(cand.Signature); ok && stats.Count > 0 {
			histScore = stats.ConfirmedRate()
			histKnown = true
		}
	}

	wLen, wDiv, wHist := a.lengthWeight, a.diversityWeight, a.historyWeight
	if !histKnown {
		// Renormalize over the structural signals so unseen patterns are
		// not penalized for having no history.
		wHist = 0
	}
	total := wLen + wDiv + wHist
	score := 0.0
	if total > 0 {
		score = (wLen*lengthScore + wDiv*kindScore + wHist*histScore) / total
	}
	score = clamp01(score)

	cand.Severity = severityFor(score)
	cand.NeedsSimulation = cand.Cycle.Len() == 2 || score >= a.threshold

	rationale := fmt.Sprintf("length=%.2f kinds=%.2f", lengthScore, kindScore)
	if histKnown {
		rationale += fmt.Sprintf(" history=%.2f", histScore)
	}
	if cand.NeedsSimulation {
		rationale += "; scheduled for simulation"
	} else {
		rationale += fmt.Sprintf("; below threshold %.2f, reported without simulation", a.threshold)
	}

	return Verdict{
		Level:      LevelScoring,
		Status:     StatusPlausible,
		Confidence: score,
		Rationale:  rationale,
	}
}

func clamp01(v float64) float64 {
	switch {
	case v < 0:
		return 0
	case v > 1:
		return 1
	default:
		return v
	}
}
