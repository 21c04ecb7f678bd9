// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package event defines the normalized acquisition-event model consumed by
// the detection pipeline.
//
// The event stream is produced by an external source-analysis front-end and
// decoded here into an in-memory Stream. Events are totally ordered within a
// thread and carry no cross-thread ordering; interleaving is a search
// dimension owned by the simulator, not a property of the data model.
//
// # Ownership Model
//
// A decoded Stream is immutable. Threads, resources, fact tables and order
// rules are populated once during decoding and read-only afterwards, so a
// Stream can be shared freely across goroutines.
package event

import "fmt"

// Kind identifies the type of an acquisition event.
type Kind int

const (
	// KindAcquire is a blocking acquisition of a resource.
	KindAcquire Kind = iota

	// KindRelease returns a previously acquired resource.
	KindRelease

	// KindWaitFor blocks until a resource becomes free without taking
	// ownership (condition-style wait).
	KindWaitFor
)

// String returns the wire name of the event kind.
func (k Kind) String() string {
	switch k {
	case KindAcquire:
		return "acquire"
	case KindRelease:
		return "release"
	case KindWaitFor:
		return "wait_for"
	default:
		return "unknown"
	}
}

// parseKind maps a wire string to a Kind.
func parseKind(s string) (Kind, bool) {
	switch s {
	case "acquire":
		return KindAcquire, true
	case "release":
		return KindRelease, true
	case "wait_for", "wait":
		return KindWaitFor, true
	default:
		return 0, false
	}
}

// ResourceKind classifies a lockable entity.
type ResourceKind int

const (
	// ResourceMutex is a mutual-exclusion lock.
	ResourceMutex ResourceKind = iota

	// ResourceSemaphore is a counting semaphore slot.
	ResourceSemaphore

	// ResourceChannel is a channel send/receive slot.
	ResourceChannel
)

// String returns the wire name of the resource kind.
func (k ResourceKind) String() string {
	switch k {
	case ResourceMutex:
		return "mutex"
	case ResourceSemaphore:
		return "semaphore"
	case ResourceChannel:
		return "channel"
	default:
		return "unknown"
	}
}

// parseResourceKind maps a wire string to a ResourceKind.
// Unknown strings default to mutex, the most conservative classification.
func parseResourceKind(s string) ResourceKind {
	switch s {
	case "semaphore":
		return ResourceSemaphore
	case "channel":
		return ResourceChannel
	default:
		return ResourceMutex
	}
}

// Location identifies where in the analyzed source an event was extracted.
type Location struct {
	// File is the source file path as reported by the front-end.
	File string `json:"file"`

	// Line is the 1-based source line.
	Line int `json:"line"`

	// Function is the enclosing function name, if known.
	Function string `json:"function,omitempty"`
}

// String renders the location as "file:line (function)".
func (l Location) String() string {
	if l.Function == "" {
		return fmt.Sprintf("%s:%d", l.File, l.Line)
	}
	return fmt.Sprintf("%s:%d (%s)", l.File, l.Line, l.Function)
}

// Key returns the stable "file:line" key used by the control-flow fact table.
func (l Location) Key() string {
	return fmt.Sprintf("%s:%d", l.File, l.Line)
}

// Resource is an identifier for a lockable entity. Immutable once created;
// created during event ingestion.
type Resource struct {
	// ID is the resolved identity of the resource. Aliasing resolution is
	// the front-end's concern; two events with the same ID refer to the
	// same runtime entity.
	ID string

	// Kind classifies the resource.
	Kind ResourceKind

	// Scope is the declaring function, when statically known.
	Scope string

	// Declared is false for resources first seen in an event rather than
	// in the stream's resource table.
	Declared bool
}

// Event is a single acquire/release/wait operation issued by one thread.
type Event struct {
	// ThreadID identifies the issuing thread.
	ThreadID string

	// Kind is the operation type.
	Kind Kind

	// ResourceID names the target resource.
	ResourceID string

	// Loc is the source location the front-end extracted this event from.
	Loc Location

	// Seq is the position of this event in the stream's global arrival
	// order. Within one thread, Seq is strictly increasing.
	Seq int
}

// String renders the event for logs and rationale strings.
func (e Event) String() string {
	return fmt.Sprintf("%s %s(%s) at %s", e.ThreadID, e.Kind, e.ResourceID, e.Loc)
}

// ThreadContext is a logical execution unit (thread, task, coroutine).
// Identity is immutable; events are appended during ingestion only.
type ThreadContext struct {
	// ID identifies the thread.
	ID string

	// Events is the thread's issued events in program order.
	Events []Event
}

// OrderRule declares a safe acquisition order between two resources:
// Before must always be acquired before After.
type OrderRule struct {
	Before string `json:"before"`
	After  string `json:"after"`
}

// Stream is a fully decoded event stream plus the auxiliary fact tables the
// same front-end produces.
type Stream struct {
	// Events holds all events in global arrival order.
	Events []Event

	// Threads maps thread ID to its context. ThreadIDs preserves first-seen
	// order for deterministic iteration.
	Threads   map[string]*ThreadContext
	ThreadIDs []string

	// Resources maps resource ID to its descriptor. ResourceIDs preserves
	// first-seen order.
	Resources   map[string]*Resource
	ResourceIDs []string

	// Facts is the control-flow reachability relation, or nil when the
	// front-end supplied none.
	Facts *FactTable

	// OrderRules are declared lock-ordering invariants.
	OrderRules []OrderRule
}

// Thread returns the context for the given thread ID, or nil.
func (s *Stream) Thread(id string) *ThreadContext {
	return s.Threads[id]
}

// Resource returns the descriptor for the given resource ID, or nil.
func (s *Stream) Resource(id string) *Resource {
	return s.Resources[id]
}
