// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package knowledge stores deadlock pattern signatures with aggregate
// verdict statistics and fix outcomes, and serves them back to the analyzer
// and recommender.
package knowledge

import (
	"fmt"
	"hash/fnv"
	"sort"
	"strings"

	"github.com/saph1r0/deadlock-intelligent-detector/services/detect/cycles"
	"github.com/saph1r0/deadlock-intelligent-detector/services/detect/event"
)

// Signature is a normalized, order-independent fingerprint of a cycle:
// the participant count, the sorted multiset of resource kinds, and the
// sorted set of acquisition scopes. Two cycles with the same shape hash to
// the same signature regardless of node identity or rotation.
type Signature struct {
	// Hash is the FNV-1a fingerprint of the canonical form.
	Hash uint64

	// Canon is the canonical form, e.g. "2|mutex,mutex|worker_a,worker_b".
	Canon string

	// Threads is the participant thread count.
	Threads int

	// Kinds is the sorted resource-kind multiset.
	Kinds []string
}

// String returns the canonical form.
func (s Signature) String() string { return s.Canon }

// FromCycle fingerprints a cycle. The stream supplies resource kinds and
// scopes; undeclared resources fingerprint as mutexes.
func FromCycle(cycle *cycles.Cycle, stream *event.Stream) Signature {
	kinds := make([]string, 0, len(cycle.Resources))
	scopes := make(map[string]bool)
	for _, rid := range cycle.Resources {
		kind := event.ResourceMutex
		if r := stream.Resource(rid); r != nil {
			kind = r.Kind
			if r.Scope != "" {
				scopes[r.Scope] = true
			}
		}
		kinds = append(kinds, kind.String())
	}
	sort.Strings(kinds)

	scopeList := make([]string, 0, len(scopes))
	for s := range scopes {
		scopeList = append(scopeList, s)
	}
	sort.Strings(scopeList)

	canon := fmt.Sprintf("%d|%s|%s",
		len(cycle.Threads),
		strings.Join(kinds, ","),
		strings.Join(scopeList, ","),
	)

	h := fnv.New64a()
	_, _ = h.Write([]byte(canon))

	return Signature{
		Hash:    h.Sum64(),
		Canon:   canon,
		Threads: len(cycle.Threads),
		Kinds:   kinds,
	}
}

// PatternName classifies a signature against the catalog of well-known
// deadlock shapes. Unknown shapes get a generic name.
func PatternName(sig Signature) string {
	allMutex := true
	for _, k := range sig.Kinds {
		if k != event.ResourceMutex.String() {
			allMutex = false
			break
		}
	}
	switch {
	case sig.Threads == 2 && allMutex:
		return "classic two-thread deadlock"
	case sig.Threads >= 3 && allMutex:
		return "dining-philosophers variant"
	case sig.Threads >= 2 && !allMutex:
		return "mixed-resource circular wait"
	default:
		return fmt.Sprintf("circular wait (%d threads)", sig.Threads)
	}
}
