// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package recommend ranks remediation strategies for confirmed or
// high-confidence deadlock candidates. The catalog is static; ranking
// blends structural fit with knowledge-base history.
package recommend

// Strategy IDs, stable across runs so the knowledge base can track fix
// outcomes per strategy.
const (
	StrategyLockOrdering = "lock_ordering"
	StrategyBoundedWait  = "try_lock_timeout"
	StrategyHierarchy    = "lock_hierarchy"
)

// Strategy is one remediation approach with its structural ratings.
// Complexity and PerformanceImpact run 1 (trivial) to 5 (invasive).
// Effectiveness is the base score on the 0-100 ranking scale.
type Strategy struct {
	ID          string
	Name        string
	Description string

	Complexity        int
	PerformanceImpact int
	Effectiveness     float64

	// TradeOffs lists the costs a team accepts by adopting the strategy.
	TradeOffs []string

	// Steps outlines the concrete refactoring, in order.
	Steps []string
}

// catalog returns the built-in strategies. Callers get fresh copies so
// rationale decoration never mutates shared state.
func catalog() []Strategy {
	return []Strategy{
		{
			ID:   StrategyLockOrdering,
			Name: "Global lock ordering",
			Description: "Impose a total acquisition order over the resources in the cycle " +
				"and rewrite each thread to acquire them in that order.",
			Complexity:        2,
			PerformanceImpact: 1,
			Effectiveness:     90,
			TradeOffs: []string{
				"every call site touching these locks must be audited",
				"the order must be documented and enforced in review",
			},
			Steps: []string{
				"assign each resource a rank (alphabetical works when no domain order exists)",
				"rewrite acquisitions so lower ranks are always taken first",
				"assert the order in debug builds",
			},
		},
		{
			ID:   StrategyBoundedWait,
			Name: "Bounded-wait acquisition",
			Description: "Replace blocking acquisition of the inner lock with a timed attempt; " +
				"on timeout, release held locks and retry with backoff.",
			Complexity:        3,
			PerformanceImpact: 2,
			Effectiveness:     70,
			TradeOffs: []string{
				"livelock is possible under contention without jittered backoff",
				"timeout tuning is workload dependent",
				"partial work may need rollback before retry",
			},
			Steps: []string{
				"switch the inner acquisition to a TryLock with deadline",
				"on failure, release everything held and back off with jitter",
				"bound the retry count and surface exhaustion as an error",
			},
		},
		{
			ID:   StrategyHierarchy,
			Name: "Lock hierarchy restructuring",
			Description: "Split or merge the contended resources so that no code path ever " +
				"needs to hold two of them at once.",
			Complexity:        5,
			PerformanceImpact: 3,
			Effectiveness:     85,
			TradeOffs: []string{
				"largest refactoring surface of the catalog",
				"coarser locks can reduce parallelism; finer ones add overhead",
				"invariants spanning the old critical sections need rework",
			},
			Steps: []string{
				"map which invariants each critical section actually protects",
				"regroup state so each invariant lives under a single lock",
				"collapse nested acquisitions into single-lock sections",
			},
		},
	}
}
