// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package knowledge

import (
	"sort"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
)

// Verdict is the outcome class recorded against a signature.
type Verdict int

const (
	// VerdictConfirmed means the simulator validated the circular wait.
	VerdictConfirmed Verdict = iota

	// VerdictRefuted means the search excluded it within budget.
	VerdictRefuted

	// VerdictInconclusive means the budget ran out first.
	VerdictInconclusive
)

// String returns the verdict name.
func (v Verdict) String() string {
	switch v {
	case VerdictConfirmed:
		return "confirmed"
	case VerdictRefuted:
		return "refuted"
	case VerdictInconclusive:
		return "inconclusive"
	default:
		return "unknown"
	}
}

// FixStats tracks how one remediation strategy performed against a pattern.
type FixStats struct {
	// Applied counts how often the strategy was applied.
	Applied int

	// Succeeded counts applications reported successful.
	Succeeded int

	// RatingSum and RatingCount accumulate optional 1-5 user ratings.
	RatingSum   int
	RatingCount int
}

// SuccessRate returns the success fraction, 0 when never applied.
func (f FixStats) SuccessRate() float64 {
	if f.Applied == 0 {
		return 0
	}
	return float64(f.Succeeded) / float64(f.Applied)
}

// Stats is the aggregate record for one signature.
type Stats struct {
	// Name is the classified pattern name.
	Name string

	// Count is the total number of recorded observations.
	Count int

	// Confirmed, Refuted and Inconclusive split Count by verdict.
	Confirmed    int
	Refuted      int
	Inconclusive int

	// Fixes maps strategy ID to its outcome statistics.
	Fixes map[string]FixStats

	// LastSeen is the most recent observation time.
	LastSeen time.Time
}

// ConfirmedRate is the fraction of decided observations that confirmed.
// Inconclusive observations carry no signal and are excluded.
func (s Stats) ConfirmedRate() float64 {
	decided := s.Confirmed + s.Refuted
	if decided == 0 {
		return 0
	}
	return float64(s.Confirmed) / float64(decided)
}

// KnownFixes returns strategy IDs with at least one successful application,
// best success rate first (ties by ID for determinism).
func (s Stats) KnownFixes() []string {
	ids := make([]string, 0, len(s.Fixes))
	for id, f := range s.Fixes {
		if f.Succeeded > 0 {
			ids = append(ids, id)
		}
	}
	sort.Slice(ids, func(i, j int) bool {
		a, b := s.Fixes[ids[i]], s.Fixes[ids[j]]
		if a.SuccessRate() != b.SuccessRate() {
			return a.SuccessRate() > b.SuccessRate()
		}
		return ids[i] < ids[j]
	})
	return ids
}

// clone deep-copies the stats so callers never alias store-owned state.
func (s *Stats) clone() Stats {
	out := *s
	out.Fixes = make(map[string]FixStats, len(s.Fixes))
	for id, f := range s.Fixes {
		out.Fixes[id] = f
	}
	return out
}

// shardCount partitions signatures so writes to distinct signatures never
// contend. Same-signature writes serialize on their shard lock.
const shardCount = 16

// defaultCacheSize bounds the hot query cache.
const defaultCacheSize = 512

// shard is one lock-striped partition of the store.
type shard struct {
	mu    sync.RWMutex
	stats map[uint64]*Stats
}

// Store is the in-memory knowledge base.
//
// # Description
//
// Record updates aggregate statistics for a signature, creating the record
// if absent. Query is read-only and side-effect-free for callers, served
// through an LRU hot cache. Persistence is an external collaborator's
// concern; the store only promises the logical record/query contract.
// Records are never deleted; aging, when a policy wants it, is internal.
//
// # Thread Safety
//
// Safe for concurrent use. Reads proceed freely; writes to the same
// signature are mutually exclusive; writes to distinct signatures are
// independent.
type Store struct {
	shards  [shardCount]shard
	cache   *lru.Cache[uint64, Stats]
	histMu  sync.Mutex
	history *ringBuffer
	now     func() time.Time
}

// StoreOption mutates store construction.
type StoreOption func(*Store)

// WithHistorySize sets the detection history capacity.
func WithHistorySize(n int) StoreOption {
	return func(s *Store) { s.history = newRingBuffer(n) }
}

// WithClock overrides the time source (used in tests).
func WithClock(now func() time.Time) StoreOption {
	return func(s *Store) { s.now = now }
}

// NewStore creates an empty knowledge base.
func NewStore(opts ...StoreOption) *Store {
	s := &Store{
		history: newRingBuffer(100),
		now:     time.Now,
	}
	for i := range s.shards {
		s.shards[i].stats = make(map[uint64]*Stats)
	}
	// Cache construction only fails for non-positive sizes.
	s.cache, _ = lru.New[uint64, Stats](defaultCacheSize)
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// shardFor selects the lock-stripe for a signature.
func (s *Store) shardFor(sig Signature) *shard {
	return &s.shards[sig.Hash%shardCount]
}

// Record updates the aggregate statistics for a signature, creating the
// record when absent, and appends the observation to the history.
func (s *Store) Record(sig Signature, verdict Verdict) {
	sh := s.shardFor(sig)
	sh.mu.Lock()
	st := sh.stats[sig.Hash]
	if st == nil {
		st = &Stats{Name: PatternName(sig), Fixes: make(map[string]FixStats)}
		sh.stats[sig.Hash] = st
	}
	st.Count++
	switch verdict {
	case VerdictConfirmed:
		st.Confirmed++
	case VerdictRefuted:
		st.Refuted++
	case VerdictInconclusive:
		st.Inconclusive++
	}
	st.LastSeen = s.now()
	s.cache.Remove(sig.Hash)
	sh.mu.Unlock()

	s.histMu.Lock()
	s.history.push(Detection{Signature: sig, Verdict: verdict, When: s.now()})
	s.histMu.Unlock()
}

// RecordFix records an applied remediation outcome for a signature. The
// record is created if the signature was never observed (a fix may be
// reported for a pattern learned elsewhere). Rating 0 means "not rated";
// valid ratings are 1 through 5.
func (s *Store) RecordFix(sig Signature, strategyID string, success bool, rating int) {
	sh := s.shardFor(sig)
	sh.mu.Lock()
	defer sh.mu.Unlock()

	st := sh.stats[sig.Hash]
	if st == nil {
		st = &Stats{Name: PatternName(sig), Fixes: make(map[string]FixStats)}
		sh.stats[sig.Hash] = st
	}
	f := st.Fixes[strategyID]
	f.Applied++
	if success {
		f.Succeeded++
	}
	if rating >= 1 && rating <= 5 {
		f.RatingSum += rating
		f.RatingCount++
	}
	st.Fixes[strategyID] = f
	s.cache.Remove(sig.Hash)
}

// Query returns a copy of the aggregate statistics for a signature.
// Side-effect-free for callers; served from the hot cache when possible.
func (s *Store) Query(sig Signature) (Stats, bool) {
	if st, ok := s.cache.Get(sig.Hash); ok {
		return st, true
	}
	sh := s.shardFor(sig)
	sh.mu.RLock()
	st := sh.stats[sig.Hash]
	if st == nil {
		sh.mu.RUnlock()
		return Stats{}, false
	}
	snapshot := st.clone()
	// Populate while still holding the read lock. A concurrent writer
	// invalidates under the write lock, which cannot be acquired until
	// this read section ends, so a stale snapshot can never outlive the
	// write that supersedes it.
	s.cache.Add(sig.Hash, snapshot)
	sh.mu.RUnlock()
	return snapshot, true
}

// History returns recorded detections, oldest first.
func (s *Store) History() []Detection {
	s.histMu.Lock()
	defer s.histMu.Unlock()
	return s.history.items()
}

// Summary aggregates store-wide statistics.
type Summary struct {
	Signatures   int
	Observations int
	Confirmed    int
	Refuted      int
	Inconclusive int

	// MostSeen is the pattern name with the highest observation count.
	MostSeen string

	// BestFix is the strategy ID with the highest overall success rate.
	BestFix string
}

// Summarize computes store-wide aggregates.
func (s *Store) Summarize() Summary {
	var out Summary
	fixTotals := make(map[string]*FixStats)
	mostSeen := 0

	for i := range s.shards {
		sh := &s.shards[i]
		sh.mu.RLock()
		for _, st := range sh.stats {
			out.Signatures++
			out.Observations += st.Count
			out.Confirmed += st.Confirmed
			out.Refuted += st.Refuted
			out.Inconclusive += st.Inconclusive
			if st.Count > mostSeen {
				mostSeen = st.Count
				out.MostSeen = st.Name
			}
			for id, f := range st.Fixes {
				agg := fixTotals[id]
				if agg == nil {
					agg = &FixStats{}
					fixTotals[id] = agg
				}
				agg.Applied += f.Applied
				agg.Succeeded += f.Succeeded
			}
		}
		sh.mu.RUnlock()
	}

	bestRate := -1.0
	ids := make([]string, 0, len(fixTotals))
	for id := range fixTotals {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	for _, id := range ids {
		if rate := fixTotals[id].SuccessRate(); rate > bestRate {
			bestRate = rate
			out.BestFix = id
		}
	}
	return out
}
