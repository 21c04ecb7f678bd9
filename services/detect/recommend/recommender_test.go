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
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/saph1r0/deadlock-intelligent-detector/services/detect/analysis"
	"github.com/saph1r0/deadlock-intelligent-detector/services/detect/cycles"
	"github.com/saph1r0/deadlock-intelligent-detector/services/detect/knowledge"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func twoLockCycle() *cycles.Cycle {
	return &cycles.Cycle{
		Threads:   []string{"t1", "t2"},
		Resources: []string{"a", "b"},
		Key:       "r:a -> t:t1 -> r:b -> t:t2",
	}
}

func ringCycle() *cycles.Cycle {
	return &cycles.Cycle{
		Threads:   []string{"t1", "t2", "t3"},
		Resources: []string{"a", "b", "c"},
		Key:       "r:a -> t:t1 -> r:b -> t:t2 -> r:c -> t:t3",
	}
}

func ids(ranked []Ranked) []string {
	out := make([]string, len(ranked))
	for i, r := range ranked {
		out[i] = r.Strategy.ID
	}
	return out
}

func TestRecommendSimpleCaseFavorsLockOrdering(t *testing.T) {
	r := NewRecommender(nil, WithRecommenderLogger(quietLogger()))

	ranked := r.Recommend(twoLockCycle(), knowledge.Signature{}, analysis.SeverityMedium)

	require.Len(t, ranked, 3)
	assert.Equal(t, []string{StrategyLockOrdering, StrategyHierarchy, StrategyBoundedWait}, ids(ranked))
	assert.InDelta(t, 96, ranked[0].Score, 1e-9)
	assert.Contains(t, ranked[0].Rationale, "ordering resolves it directly")
}

func TestRecommendSeverityBonusShrinksWithComplexity(t *testing.T) {
	r := NewRecommender(nil, WithRecommenderLogger(quietLogger()))

	medium := r.Recommend(ringCycle(), knowledge.Signature{}, analysis.SeverityMedium)
	critical := r.Recommend(ringCycle(), knowledge.Signature{}, analysis.SeverityCritical)

	byID := func(rk []Ranked, id string) Ranked {
		for _, x := range rk {
			if x.Strategy.ID == id {
				return x
			}
		}
		t.Fatalf("strategy %s missing", id)
		return Ranked{}
	}

	// The least complex strategy gains the most from urgency.
	gainOrdering := byID(critical, StrategyLockOrdering).Score - byID(medium, StrategyLockOrdering).Score
	gainHierarchy := byID(critical, StrategyHierarchy).Score - byID(medium, StrategyHierarchy).Score
	assert.Greater(t, gainOrdering, gainHierarchy)
	assert.Contains(t, byID(critical, StrategyLockOrdering).Rationale, "low-risk")
}

func TestRecommendBlendsFixHistory(t *testing.T) {
	sig := knowledge.Signature{Hash: 7, Canon: "3|mutex,mutex,mutex|"}
	kb := knowledge.NewStore()
	kb.RecordFix(sig, StrategyBoundedWait, true, 5)

	r := NewRecommender(kb, WithRecommenderLogger(quietLogger()))
	ranked := r.Recommend(ringCycle(), sig, analysis.SeverityLow)

	// A perfect track record lifts bounded wait above hierarchy:
	// 59*0.7 + 100*0.3 beats the unblended 63.
	assert.Equal(t, []string{StrategyLockOrdering, StrategyBoundedWait, StrategyHierarchy}, ids(ranked))

	byWait := ranked[1]
	assert.InDelta(t, 71.3, byWait.Score, 1e-9)
	assert.Contains(t, byWait.Rationale, "100% success")
}

func TestRecommendIsDeterministic(t *testing.T) {
	r := NewRecommender(nil, WithRecommenderLogger(quietLogger()))

	first := r.Recommend(ringCycle(), knowledge.Signature{}, analysis.SeverityHigh)
	second := r.Recommend(ringCycle(), knowledge.Signature{}, analysis.SeverityHigh)

	assert.Equal(t, ids(first), ids(second))
	for i := range first {
		assert.Equal(t, first[i].Score, second[i].Score)
	}
}

func TestRecommendScoresStayInRange(t *testing.T) {
	r := NewRecommender(nil, WithBonuses(1000, 1000), WithRecommenderLogger(quietLogger()))

	ranked := r.Recommend(twoLockCycle(), knowledge.Signature{}, analysis.SeverityCritical)
	for _, x := range ranked {
		assert.GreaterOrEqual(t, x.Score, 0.0)
		assert.LessOrEqual(t, x.Score, 100.0)
	}
}

func TestCatalogReturnsFreshCopies(t *testing.T) {
	first := catalog()
	first[0].Steps[0] = "mutated"
	second := catalog()
	assert.NotEqual(t, "mutated", second[0].Steps[0])
}
