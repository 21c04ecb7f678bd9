// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package rag builds and represents the Resource Allocation Graph.
//
// Nodes are threads and resources; edges are typed Holds (resource→thread)
// and WaitsFor (thread→resource) relations. The graph is an explicit arena:
// node and edge tables indexed by ID, never directly linked mutable
// references, so cycle enumeration and snapshotting stay safe and cheap.
//
// # Ownership Model
//
// The graph is owned by the Builder and rebuilt from scratch for each event
// set; it has no existence beyond the currently ingested events. After
// Freeze() it is read-only to downstream components.
//
// # Thread Safety
//
// A Graph is NOT safe for concurrent use while building. After Freeze() it
// may be read from any number of goroutines.
package rag

import (
	"errors"
	"fmt"

	"github.com/saph1r0/deadlock-intelligent-detector/services/detect/event"
)

// Sentinel errors for graph operations.
var (
	// ErrGraphFrozen is returned when attempting to modify a frozen graph.
	ErrGraphFrozen = errors.New("graph is frozen and cannot be modified")

	// ErrNodeNotFound is returned when an edge references a missing node.
	ErrNodeNotFound = errors.New("node not found")

	// ErrMalformedEvent tags per-thread input violations. Malformed input
	// is fatal for the offending thread's contribution only; the rest of
	// the stream still folds.
	ErrMalformedEvent = errors.New("malformed event sequence")

	// ErrBuildCancelled is returned when a build is cancelled via context.
	ErrBuildCancelled = errors.New("build cancelled")
)

// MalformedEventError describes an ill-formed per-thread event sequence:
// releasing a resource the thread does not hold, or acquiring a resource it
// already holds without an intervening release. Reentrancy, if the source
// supports it, must be pre-normalized by the front-end.
type MalformedEventError struct {
	// ThreadID is the offending thread.
	ThreadID string

	// Event is the event that violated the protocol.
	Event event.Event

	// Reason is a short human-readable explanation.
	Reason string
}

// Error implements the error interface.
func (e *MalformedEventError) Error() string {
	return fmt.Sprintf("malformed event sequence for thread %s: %s (%s)",
		e.ThreadID, e.Reason, e.Event)
}

// Unwrap lets callers match with errors.Is(err, ErrMalformedEvent).
func (e *MalformedEventError) Unwrap() error {
	return ErrMalformedEvent
}
