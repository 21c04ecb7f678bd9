// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package event

// FactTable is the per-thread control-flow reachability relation supplied by
// the source-analysis front-end.
//
// # Description
//
// The table is keyed by Location.Key() ("file:line"). It records two kinds
// of negative facts:
//
//   - locations not reachable from program entry (dead code)
//   - location pairs that cannot both execute in one run of a thread
//     (mutually exclusive branches of the same conditional)
//
// Absence of a fact is treated as reachable. The analyzer is conservative:
// an empty or nil table never suppresses a finding.
//
// # Thread Safety
//
// Immutable after decoding; safe for concurrent reads.
type FactTable struct {
	entryUnreachable map[string]bool
	exclusive        map[[2]string]bool
}

// NewFactTable builds a fact table from raw front-end facts.
//
// # Inputs
//
//   - entryUnreachable: location keys with no syntactic path from entry.
//   - exclusivePairs: location-key pairs on mutually exclusive paths.
func NewFactTable(entryUnreachable []string, exclusivePairs [][2]string) *FactTable {
	t := &FactTable{
		entryUnreachable: make(map[string]bool, len(entryUnreachable)),
		exclusive:        make(map[[2]string]bool, len(exclusivePairs)*2),
	}
	for _, k := range entryUnreachable {
		t.entryUnreachable[k] = true
	}
	for _, p := range exclusivePairs {
		t.exclusive[p] = true
		t.exclusive[[2]string{p[1], p[0]}] = true
	}
	return t
}

// EntryReachable reports whether the location has at least one syntactic
// path from program entry. Nil tables report true.
func (t *FactTable) EntryReachable(loc Location) bool {
	if t == nil {
		return true
	}
	return !t.entryUnreachable[loc.Key()]
}

// Reachable reports whether b can execute after a within one run of the
// issuing thread. Nil tables and missing facts report true.
func (t *FactTable) Reachable(a, b Location) bool {
	if t == nil {
		return true
	}
	return !t.exclusive[[2]string{a.Key(), b.Key()}]
}
