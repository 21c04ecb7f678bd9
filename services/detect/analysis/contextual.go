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
	"github.com/saph1r0/deadlock-intelligent-detector/services/detect/rag"
)

// contextualConfidence is the score a candidate carries out of the
// ordering-constraint filter.
const contextualConfidence = 0.7

// orderClosure is the transitive closure of the declared acquisition
// partial order. before[a][b] means a must be acquired before b.
type orderClosure struct {
	before map[string]map[string]bool
}

// newOrderClosure computes the closure of the declared rules. The rule set
// is small in practice, so repeated relaxation passes are fine.
func newOrderClosure(rules []event.OrderRule) *orderClosure {
	c := &orderClosure{before: make(map[string]map[string]bool)}
	add := func(a, b string) bool {
		m, ok := c.before[a]
		if !ok {
			m = make(map[string]bool)
			c.before[a] = m
		}
		if m[b] {
			return false
		}
		m[b] = true
		return true
	}
	for _, r := range rules {
		add(r.Before, r.After)
	}
	for changed := true; changed; {
		changed = false
		for a, mids := range c.before {
			for b := range mids {
				for z := range c.before[b] {
					if add(a, z) {
						changed = true
					}
				}
			}
		}
	}
	return c
}

// comparable reports whether the declared order relates a and b in either
// direction.
func (c *orderClosure) comparable(a, b string) bool {
	if c.before[a][b] || c.before[b][a] {
		return true
	}
	return false
}

// analyzeContextual applies the declared lock-ordering discipline. When
// every held-vs-wanted resource pair in the cycle is comparable under the
// declared partial order, a discipline-respecting program cannot realize
// the cycle, so the candidate is excluded. A single uncovered pair keeps
// the candidate alive: the hierarchy has a gap exactly where the cycle
// closes.
func (a *Analyzer) analyzeContextual(cand *Candidate) Verdict {
	if len(a.rules) == 0 {
		return Verdict{
			Level:      LevelContextual,
			Status:     StatusPlausible,
			Confidence: contextualConfidence,
			Rationale:  "no acquisition order declared",
		}
	}

	closure := newOrderClosure(a.rules)
	for i, tid := range cand.Cycle.Threads {
		held := heldResource(cand, tid)
		if held == "" || i >= len(cand.Cycle.Waits) {
			continue
		}
		wanted := rag.NodeRef(cand.Cycle.Waits[i].ToID)
		if !closure.comparable(held, wanted) {
			return Verdict{
				Level:      LevelContextual,
				Status:     StatusPlausible,
				Confidence: contextualConfidence,
				Rationale: fmt.Sprintf("declared order does not relate %s and %s held/wanted by thread %s",
					held, wanted, tid),
			}
		}
	}

	return Verdict{
		Level:      LevelContextual,
		Status:     StatusImplausible,
		Confidence: 0,
		Rationale:  "declared acquisition order covers every hold/wait pair in the cycle",
	}
}

// heldResource returns the resource a thread holds within the cycle.
func heldResource(cand *Candidate, threadID string) string {
	node := rag.ThreadNodeID(threadID)
	for _, e := range cand.Cycle.Holds {
		if e.ToID == node {
			return rag.NodeRef(e.FromID)
		}
	}
	return ""
}
