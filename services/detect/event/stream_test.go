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

import (
	"io"
	"log/slog"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestDecodeStream(t *testing.T) {
	input := `{
		"resources": [
			{"id": "lock_a", "kind": "mutex", "scope": "worker"},
			{"id": "sem_pool", "kind": "semaphore"}
		],
		"events": [
			{"thread_id": "t1", "kind": "acquire", "resource_id": "lock_a", "source_location": {"file": "main.go", "line": 10}},
			{"thread_id": "t2", "kind": "acquire", "resource_id": "sem_pool", "source_location": {"file": "main.go", "line": 20}},
			{"thread_id": "t1", "kind": "release", "resource_id": "lock_a", "source_location": {"file": "main.go", "line": 12}}
		],
		"facts": {
			"entry_unreachable": ["dead.go:5"],
			"exclusive": [["main.go:10", "main.go:20"]]
		},
		"lock_order": [{"before": "lock_a", "after": "sem_pool"}]
	}`

	s, err := DecodeStream(strings.NewReader(input), discardLogger())
	require.NoError(t, err)

	assert.Len(t, s.Events, 3)
	assert.Equal(t, []string{"t1", "t2"}, s.ThreadIDs)
	assert.Equal(t, []string{"lock_a", "sem_pool"}, s.ResourceIDs)

	// Seq follows global arrival order, per-thread order preserved.
	assert.Equal(t, 0, s.Events[0].Seq)
	assert.Equal(t, 2, s.Events[2].Seq)
	require.NotNil(t, s.Thread("t1"))
	assert.Len(t, s.Thread("t1").Events, 2)

	require.NotNil(t, s.Resource("sem_pool"))
	assert.Equal(t, ResourceSemaphore, s.Resource("sem_pool").Kind)
	assert.True(t, s.Resource("lock_a").Declared)
	assert.Equal(t, "worker", s.Resource("lock_a").Scope)

	require.NotNil(t, s.Facts)
	assert.False(t, s.Facts.EntryReachable(Location{File: "dead.go", Line: 5}))
	assert.True(t, s.Facts.EntryReachable(Location{File: "main.go", Line: 10}))
	assert.False(t, s.Facts.Reachable(
		Location{File: "main.go", Line: 10},
		Location{File: "main.go", Line: 20}))

	require.Len(t, s.OrderRules, 1)
	assert.Equal(t, OrderRule{Before: "lock_a", After: "sem_pool"}, s.OrderRules[0])
}

func TestDecodeStreamUndeclaredResource(t *testing.T) {
	input := `{"events": [
		{"thread_id": "t1", "kind": "acquire", "resource_id": "mystery", "source_location": {"file": "a.go", "line": 1}}
	]}`

	s, err := DecodeStream(strings.NewReader(input), discardLogger())
	require.NoError(t, err)

	r := s.Resource("mystery")
	require.NotNil(t, r)
	assert.Equal(t, ResourceMutex, r.Kind)
	assert.False(t, r.Declared)
}

func TestDecodeStreamErrors(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  error
	}{
		{"empty event list", `{"events": []}`, ErrEmptyStream},
		{"missing thread", `{"events": [{"kind": "acquire", "resource_id": "a"}]}`, ErrInvalidEvent},
		{"unknown kind", `{"events": [{"thread_id": "t1", "kind": "frobnicate", "resource_id": "a"}]}`, ErrInvalidEvent},
		{"malformed json", `{"events": [`, ErrDecode},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := DecodeStream(strings.NewReader(tt.input), discardLogger())
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestFromEvents(t *testing.T) {
	events := []Event{
		{ThreadID: "t1", Kind: KindAcquire, ResourceID: "a"},
		{ThreadID: "t1", Kind: KindRelease, ResourceID: "a"},
	}
	s, err := FromEvents(events, nil)
	require.NoError(t, err)
	assert.Len(t, s.Events, 2)
	assert.Equal(t, 1, s.Events[1].Seq)
	assert.Equal(t, ResourceMutex, s.Resource("a").Kind)

	_, err = FromEvents(nil, nil)
	assert.ErrorIs(t, err, ErrEmptyStream)
}

func TestFactTableNilSafe(t *testing.T) {
	var facts *FactTable
	assert.True(t, facts.EntryReachable(Location{File: "a.go", Line: 1}))
	assert.True(t, facts.Reachable(Location{File: "a.go", Line: 1}, Location{File: "a.go", Line: 2}))
}

func TestFactTableExclusiveIsSymmetric(t *testing.T) {
	facts := NewFactTable(nil, [][2]string{{"a.go:1", "a.go:2"}})
	la := Location{File: "a.go", Line: 1}
	lb := Location{File: "a.go", Line: 2}
	assert.False(t, facts.Reachable(la, lb))
	assert.False(t, facts.Reachable(lb, la))
	assert.True(t, facts.Reachable(la, Location{File: "a.go", Line: 3}))
}
