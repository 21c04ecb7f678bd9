// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package sim

import (
	"sort"
	"strconv"
	"strings"

	"github.com/saph1r0/deadlock-intelligent-detector/services/detect/event"
)

// model is the immutable per-simulation view of the stream: thread order and
// per-thread event lists. Thread IDs are sorted so every traversal is
// deterministic regardless of input map ordering.
type model struct {
	threadIDs []string
	events    map[string][]event.Event

	cycleThreads   map[string]bool
	cycleResources map[string]bool

	// blockIndex maps each cycle thread to the index (in its own event
	// list) of the acquisition that closes its link of the candidate
	// cycle. Used by the greedy scheduling heuristic.
	blockIndex map[string]int
}

// newModel builds the simulation model for one candidate.
func newModel(stream *event.Stream, cycleThreads, cycleResources []string, waitSeqs map[string]int) *model {
	m := &model{
		events:         make(map[string][]event.Event, len(stream.Threads)),
		cycleThreads:   make(map[string]bool, len(cycleThreads)),
		cycleResources: make(map[string]bool, len(cycleResources)),
		blockIndex:     make(map[string]int, len(cycleThreads)),
	}
	for _, id := range stream.ThreadIDs {
		m.threadIDs = append(m.threadIDs, id)
		m.events[id] = stream.Threads[id].Events
	}
	sort.Strings(m.threadIDs)
	for _, t := range cycleThreads {
		m.cycleThreads[t] = true
	}
	for _, r := range cycleResources {
		m.cycleResources[r] = true
	}
	for t, seq := range waitSeqs {
		m.blockIndex[t] = len(m.events[t]) // Fallback: run to completion.
		for i, ev := range m.events[t] {
			if ev.Seq == seq {
				m.blockIndex[t] = i
				break
			}
		}
	}
	return m
}

// state is one node in the schedule search: per-thread cursor positions plus
// the derived resource ownership. The schedule prefix is carried along so a
// confirming state yields its witness directly.
type state struct {
	cursors  []int             // Parallel to model.threadIDs.
	holds    map[string]string // resourceID -> owning threadID.
	schedule []Step
}

// initialState returns the empty-schedule state.
func initialState(m *model) *state {
	return &state{
		cursors: make([]int, len(m.threadIDs)),
		holds:   make(map[string]string),
	}
}

// key is a canonical fingerprint of the cursor vector. Ownership is a pure
// function of the executed prefix per thread, so cursors identify the state.
func (s *state) key() string {
	var b strings.Builder
	for i, c := range s.cursors {
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteString(strconv.Itoa(c))
	}
	return b.String()
}

// next returns thread i's next event, or false when the thread is done.
func (s *state) next(m *model, i int) (event.Event, bool) {
	evs := m.events[m.threadIDs[i]]
	if s.cursors[i] >= len(evs) {
		return event.Event{}, false
	}
	return evs[s.cursors[i]], true
}

// enabled reports whether thread i can take its next event.
func (s *state) enabled(m *model, i int) bool {
	ev, ok := s.next(m, i)
	if !ok {
		return false
	}
	t := m.threadIDs[i]
	owner, held := s.holds[ev.ResourceID]
	switch ev.Kind {
	case event.KindAcquire:
		return !held
	case event.KindRelease:
		return held && owner == t
	case event.KindWaitFor:
		return !held || owner == t
	default:
		return false
	}
}

// step returns the successor state after thread i takes its next event.
// The caller must have checked enabled first.
func (s *state) step(m *model, i int) *state {
	ev, _ := s.next(m, i)
	t := m.threadIDs[i]

	ns := &state{
		cursors:  append([]int(nil), s.cursors...),
		holds:    make(map[string]string, len(s.holds)+1),
		schedule: append(append([]Step(nil), s.schedule...), Step{ThreadID: t, Event: ev}),
	}
	for r, owner := range s.holds {
		ns.holds[r] = owner
	}
	ns.cursors[i]++

	switch ev.Kind {
	case event.KindAcquire:
		ns.holds[ev.ResourceID] = t
	case event.KindRelease:
		delete(ns.holds, ev.ResourceID)
	}
	return ns
}

// deadlocked reports whether every cycle thread is blocked on a cycle
// resource held by another cycle thread. All holders being blocked
// themselves, no release can ever occur: the circular wait is permanent.
func (s *state) deadlocked(m *model) bool {
	for i, t := range m.threadIDs {
		if !m.cycleThreads[t] {
			continue
		}
		ev, ok := s.next(m, i)
		if !ok {
			return false // Thread ran to completion; it cannot be waiting.
		}
		if ev.Kind != event.KindAcquire && ev.Kind != event.KindWaitFor {
			return false
		}
		if !m.cycleResources[ev.ResourceID] {
			return false
		}
		owner, held := s.holds[ev.ResourceID]
		if !held || owner == t || !m.cycleThreads[owner] {
			return false
		}
	}
	return true
}
