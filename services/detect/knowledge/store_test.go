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
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/saph1r0/deadlock-intelligent-detector/services/detect/cycles"
	"github.com/saph1r0/deadlock-intelligent-detector/services/detect/event"
)

// sigFor fingerprints a synthetic cycle over the given resources.
func sigFor(t *testing.T, threads []string, resources []*event.Resource) Signature {
	t.Helper()
	ids := make([]string, 0, len(resources))
	events := make([]event.Event, 0, len(resources))
	for i, r := range resources {
		ids = append(ids, r.ID)
		events = append(events, event.Event{
			ThreadID:   threads[i%len(threads)],
			Kind:       event.KindAcquire,
			ResourceID: r.ID,
		})
	}
	stream, err := event.FromEvents(events, resources)
	require.NoError(t, err)
	return FromCycle(&cycles.Cycle{Threads: threads, Resources: ids}, stream)
}

func classicSig(t *testing.T) Signature {
	return sigFor(t, []string{"t1", "t2"}, []*event.Resource{
		{ID: "a", Kind: event.ResourceMutex},
		{ID: "b", Kind: event.ResourceMutex},
	})
}

func TestFromCycleCanonicalForm(t *testing.T) {
	sig := classicSig(t)
	assert.Equal(t, "2|mutex,mutex|", sig.Canon)
	assert.Equal(t, 2, sig.Threads)
	assert.Equal(t, []string{"mutex", "mutex"}, sig.Kinds)
	assert.NotZero(t, sig.Hash)
}

func TestFromCycleIsRotationIndependent(t *testing.T) {
	resources := []*event.Resource{
		{ID: "a", Kind: event.ResourceMutex, Scope: "worker"},
		{ID: "b", Kind: event.ResourceChannel},
	}
	first := sigFor(t, []string{"t1", "t2"}, resources)

	rotated := []*event.Resource{resources[1], resources[0]}
	second := sigFor(t, []string{"t2", "t1"}, rotated)

	assert.Equal(t, first.Hash, second.Hash)
	assert.Equal(t, first.Canon, second.Canon)
	assert.Equal(t, "2|channel,mutex|worker", first.Canon)
}

func TestPatternNames(t *testing.T) {
	classic := classicSig(t)
	assert.Equal(t, "classic two-thread deadlock", PatternName(classic))

	dining := sigFor(t, []string{"t1", "t2", "t3"}, []*event.Resource{
		{ID: "a", Kind: event.ResourceMutex},
		{ID: "b", Kind: event.ResourceMutex},
		{ID: "c", Kind: event.ResourceMutex},
	})
	assert.Equal(t, "dining-philosophers variant", PatternName(dining))

	mixed := sigFor(t, []string{"t1", "t2"}, []*event.Resource{
		{ID: "a", Kind: event.ResourceMutex},
		{ID: "ch", Kind: event.ResourceChannel},
	})
	assert.Equal(t, "mixed-resource circular wait", PatternName(mixed))
}

func TestStoreRecordAndQuery(t *testing.T) {
	store := NewStore()
	sig := classicSig(t)

	_, ok := store.Query(sig)
	assert.False(t, ok)

	store.Record(sig, VerdictConfirmed)
	store.Record(sig, VerdictConfirmed)
	store.Record(sig, VerdictRefuted)
	store.Record(sig, VerdictInconclusive)

	stats, ok := store.Query(sig)
	require.True(t, ok)
	assert.Equal(t, "classic two-thread deadlock", stats.Name)
	assert.Equal(t, 4, stats.Count)
	assert.Equal(t, 2, stats.Confirmed)
	assert.Equal(t, 1, stats.Refuted)
	assert.Equal(t, 1, stats.Inconclusive)
	assert.InDelta(t, 2.0/3.0, stats.ConfirmedRate(), 1e-9)
}

func TestStoreQueryReturnsIsolatedCopy(t *testing.T) {
	store := NewStore()
	sig := classicSig(t)
	store.Record(sig, VerdictConfirmed)
	store.RecordFix(sig, "lock_ordering", true, 5)

	stats, ok := store.Query(sig)
	require.True(t, ok)
	stats.Confirmed = 99
	stats.Fixes["lock_ordering"] = FixStats{Applied: 99}

	fresh, ok := store.Query(sig)
	require.True(t, ok)
	assert.Equal(t, 1, fresh.Confirmed)
	assert.Equal(t, 1, fresh.Fixes["lock_ordering"].Applied)
}

func TestStoreRecordFix(t *testing.T) {
	store := NewStore()
	sig := classicSig(t)

	// A fix may arrive for a pattern the store never observed.
	store.RecordFix(sig, "try_lock_timeout", true, 4)
	store.RecordFix(sig, "try_lock_timeout", false, 0)
	store.RecordFix(sig, "lock_ordering", true, 5)

	stats, ok := store.Query(sig)
	require.True(t, ok)

	f := stats.Fixes["try_lock_timeout"]
	assert.Equal(t, 2, f.Applied)
	assert.Equal(t, 1, f.Succeeded)
	assert.Equal(t, 4, f.RatingSum)
	assert.Equal(t, 1, f.RatingCount)
	assert.InDelta(t, 0.5, f.SuccessRate(), 1e-9)

	// lock_ordering has the better success rate.
	assert.Equal(t, []string{"lock_ordering", "try_lock_timeout"}, stats.KnownFixes())
}

func TestStoreConcurrentRecords(t *testing.T) {
	store := NewStore()
	sig := classicSig(t)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				store.Record(sig, VerdictConfirmed)
				store.Query(sig)
			}
		}()
	}
	wg.Wait()

	stats, ok := store.Query(sig)
	require.True(t, ok)
	assert.Equal(t, 400, stats.Count)
	assert.Equal(t, 400, stats.Confirmed)
}

func TestStoreCacheStaysFreshUnderConcurrentQueries(t *testing.T) {
	store := NewStore()
	sig := classicSig(t)
	store.Record(sig, VerdictConfirmed)

	// Queries racing with writes must never leave the hot cache serving a
	// pre-write snapshot once the writes are done.
	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				store.Query(sig)
			}
		}()
	}
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				store.Record(sig, VerdictRefuted)
			}
		}()
	}
	wg.Wait()

	stats, ok := store.Query(sig)
	require.True(t, ok)
	assert.Equal(t, 401, stats.Count)
	assert.Equal(t, 400, stats.Refuted)

	// A second query is served from the cache and must agree.
	cached, ok := store.Query(sig)
	require.True(t, ok)
	assert.Equal(t, stats.Count, cached.Count)
}

func TestStoreHistoryOldestFirstAndBounded(t *testing.T) {
	store := NewStore(WithHistorySize(3))
	sig := classicSig(t)

	store.Record(sig, VerdictConfirmed)
	store.Record(sig, VerdictRefuted)
	store.Record(sig, VerdictInconclusive)
	store.Record(sig, VerdictConfirmed)

	hist := store.History()
	require.Len(t, hist, 3)
	assert.Equal(t, VerdictRefuted, hist[0].Verdict)
	assert.Equal(t, VerdictInconclusive, hist[1].Verdict)
	assert.Equal(t, VerdictConfirmed, hist[2].Verdict)
}

func TestStoreClockStampsObservations(t *testing.T) {
	now := time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)
	store := NewStore(WithClock(func() time.Time { return now }))
	sig := classicSig(t)

	store.Record(sig, VerdictConfirmed)

	stats, ok := store.Query(sig)
	require.True(t, ok)
	assert.Equal(t, now, stats.LastSeen)
	require.Len(t, store.History(), 1)
	assert.Equal(t, now, store.History()[0].When)
}

func TestStoreSummarize(t *testing.T) {
	store := NewStore()
	classic := classicSig(t)
	mixed := sigFor(t, []string{"t1", "t2"}, []*event.Resource{
		{ID: "a", Kind: event.ResourceMutex},
		{ID: "ch", Kind: event.ResourceChannel},
	})

	store.Record(classic, VerdictConfirmed)
	store.Record(classic, VerdictConfirmed)
	store.Record(classic, VerdictRefuted)
	store.Record(mixed, VerdictInconclusive)
	store.RecordFix(classic, "lock_ordering", true, 5)
	store.RecordFix(classic, "try_lock_timeout", false, 0)

	sum := store.Summarize()
	assert.Equal(t, 2, sum.Signatures)
	assert.Equal(t, 4, sum.Observations)
	assert.Equal(t, 2, sum.Confirmed)
	assert.Equal(t, 1, sum.Refuted)
	assert.Equal(t, 1, sum.Inconclusive)
	assert.Equal(t, "classic two-thread deadlock", sum.MostSeen)
	assert.Equal(t, "lock_ordering", sum.BestFix)
}

func TestRingBufferWraps(t *testing.T) {
	r := newRingBuffer(2)
	for i := 0; i < 5; i++ {
		r.push(Detection{Verdict: Verdict(i % 3)})
	}
	items := r.items()
	require.Len(t, items, 2)
	assert.Equal(t, Verdict(0), items[0].Verdict) // observation 4
	assert.Equal(t, Verdict(1), items[1].Verdict) // observation 5
}

func TestSignatureStringsAreDistinct(t *testing.T) {
	seen := make(map[uint64]string)
	for threads := 2; threads <= 4; threads++ {
		ids := make([]string, threads)
		resources := make([]*event.Resource, threads)
		for i := range ids {
			ids[i] = fmt.Sprintf("t%d", i+1)
			resources[i] = &event.Resource{ID: fmt.Sprintf("r%d", i+1), Kind: event.ResourceMutex}
		}
		sig := sigFor(t, ids, resources)
		prev, dup := seen[sig.Hash]
		require.False(t, dup, "hash collision with %s", prev)
		seen[sig.Hash] = sig.Canon
	}
}
