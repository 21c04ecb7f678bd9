// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package recommend

import (
	"fmt"
	"log/slog"
	"sort"

	"github.com/saph1r0/deadlock-intelligent-detector/services/detect/analysis"
	"github.com/saph1r0/deadlock-intelligent-detector/services/detect/cycles"
	"github.com/saph1r0/deadlock-intelligent-detector/services/detect/knowledge"
)

// Default scoring constants. Scores live on a 0-100 scale.
const (
	DefaultComplexityPenalty  = 4.0
	DefaultPerformancePenalty = 3.0
	DefaultSeverityBonus      = 8.0
	DefaultSimpleCaseBonus    = 10.0
	DefaultHistoryWeight      = 0.3
)

// Ranked is a strategy with its computed score for one candidate.
type Ranked struct {
	Strategy Strategy

	// Score is in [0,100]; higher ranks first.
	Score float64

	// Rationale explains the dominant scoring terms.
	Rationale string
}

// Recommender scores the strategy catalog against a candidate.
//
// # Thread Safety
//
// Safe for concurrent use; all per-call state is local.
type Recommender struct {
	kb *knowledge.Store

	complexityPenalty  float64
	performancePenalty float64
	severityBonus      float64
	simpleCaseBonus    float64
	historyWeight      float64

	logger *slog.Logger
}

// Option configures a Recommender.
type Option func(*Recommender)

// WithPenalties overrides the complexity and performance penalties.
func WithPenalties(complexity, performance float64) Option {
	return func(r *Recommender) {
		r.complexityPenalty = complexity
		r.performancePenalty = performance
	}
}

// WithBonuses overrides the severity and simple-case bonuses.
func WithBonuses(severity, simpleCase float64) Option {
	return func(r *Recommender) {
		r.severityBonus = severity
		r.simpleCaseBonus = simpleCase
	}
}

// WithHistoryWeight overrides the knowledge-base blend factor.
func WithHistoryWeight(w float64) Option {
	return func(r *Recommender) { r.historyWeight = w }
}

// WithRecommenderLogger sets the structured logger.
func WithRecommenderLogger(l *slog.Logger) Option {
	return func(r *Recommender) { r.logger = l }
}

// NewRecommender builds a recommender. The knowledge base may be nil;
// ranking then uses structural scoring alone.
func NewRecommender(kb *knowledge.Store, opts ...Option) *Recommender {
	r := &Recommender{
		kb:                 kb,
		complexityPenalty:  DefaultComplexityPenalty,
		performancePenalty: DefaultPerformancePenalty,
		severityBonus:      DefaultSeverityBonus,
		simpleCaseBonus:    DefaultSimpleCaseBonus,
		historyWeight:      DefaultHistoryWeight,
		logger:             slog.Default(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Recommend scores every catalog strategy against the cycle and returns
// them best first. Ties break on strategy ID so output is deterministic.
//
// # Description
//
// The base score is the strategy's effectiveness minus penalties for its
// complexity and runtime cost. Severe candidates add a bonus that shrinks
// with complexity, steering urgent fixes toward the lowest-risk change.
// The classic two-thread two-resource shape adds a flat bonus to lock
// ordering, which resolves it outright. When the knowledge base has seen
// this signature fixed before, the per-strategy success rate is blended in.
func (r *Recommender) Recommend(cycle *cycles.Cycle, sig knowledge.Signature, severity analysis.Severity) []Ranked {
	var stats knowledge.Stats
	haveStats := false
	if r.kb != nil {
		stats, haveStats = r.kb.Query(sig)
	}

	simple := cycle.Len() == 2 && len(cycle.Resources) == 2

	ranked := make([]Ranked, 0, 3)
	for _, s := range catalog() {
		score := s.Effectiveness
		score -= r.complexityPenalty * float64(s.Complexity-1)
		score -= r.performancePenalty * float64(s.PerformanceImpact-1)

		rationale := fmt.Sprintf("base %.0f, complexity %d, performance impact %d",
			s.Effectiveness, s.Complexity, s.PerformanceImpact)

		if severity >= analysis.SeverityHigh {
			// Urgent candidates favor the least invasive fix.
			bonus := r.severityBonus * (1 - float64(s.Complexity)/10)
			score += bonus
			rationale += fmt.Sprintf("; %s severity favors low-risk change (+%.1f)", severity, bonus)
		}

		if simple && s.ID == StrategyLockOrdering {
			score += r.simpleCaseBonus
			rationale += "; two threads over two locks, ordering resolves it directly"
		}

		if haveStats {
			if fix, ok := stats.Fixes[s.ID]; ok && fix.Applied > 0 {
				rate := fix.SuccessRate()
				score = score*(1-r.historyWeight) + 100*rate*r.historyWeight
				rationale += fmt.Sprintf("; applied %d times before with %.0f%% success",
					fix.Applied, 100*rate)
			}
		}

		ranked = append(ranked, Ranked{
			Strategy:  s,
			Score:     clamp(score, 0, 100),
			Rationale: rationale,
		})
	}

	sort.Slice(ranked, func(i, j int) bool {
		if ranked[i].Score != ranked[j].Score {
			return ranked[i].Score > ranked[j].Score
		}
		return ranked[i].Strategy.ID < ranked[j].Strategy.ID
	})

	r.logger.Debug("strategies ranked",
		"cycle", cycle.Key,
		"best", ranked[0].Strategy.ID,
		"score", ranked[0].Score)

	return ranked
}

func clamp(v, lo, hi float64) float64 {
	switch {
	case v < lo:
		return lo
	case v > hi:
		return hi
	default:
		return v
	}
}
