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
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
)

// Wire types for the front-end JSON schema.
type (
	wireResource struct {
		ID    string `json:"id"`
		Kind  string `json:"kind"`
		Scope string `json:"scope,omitempty"`
	}

	wireEvent struct {
		ThreadID   string   `json:"thread_id"`
		Kind       string   `json:"kind"`
		ResourceID string   `json:"resource_id"`
		Loc        Location `json:"source_location"`
	}

	wireFacts struct {
		EntryUnreachable []string    `json:"entry_unreachable,omitempty"`
		ExclusivePairs   [][2]string `json:"exclusive,omitempty"`
	}

	wireStream struct {
		Resources []wireResource `json:"resources,omitempty"`
		Events    []wireEvent    `json:"events"`
		Facts     *wireFacts     `json:"facts,omitempty"`
		LockOrder []OrderRule    `json:"lock_order,omitempty"`
	}
)

// DecodeStream reads a normalized event stream from the front-end JSON
// format.
//
// # Description
//
// Events arrive in global arrival order; within one thread that order is the
// thread's program order. Resources referenced by an event but absent from
// the declared resource table are created fresh and logged as a warning
// (non-fatal anomaly). An empty event list is the only fatal condition.
//
// # Inputs
//
//   - r: JSON input. Must not be nil.
//   - logger: destination for anomaly warnings. Must not be nil.
//
// # Outputs
//
//   - *Stream: fully decoded, immutable stream.
//   - error: ErrEmptyStream, ErrInvalidEvent, or a wrapped decode error.
func DecodeStream(r io.Reader, logger *slog.Logger) (*Stream, error) {
	var wire wireStream
	dec := json.NewDecoder(r)
	if err := dec.Decode(&wire); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecode, err)
	}
	if len(wire.Events) == 0 {
		return nil, ErrEmptyStream
	}

	s := &Stream{
		Threads:   make(map[string]*ThreadContext),
		Resources: make(map[string]*Resource),
	}

	for _, wr := range wire.Resources {
		if wr.ID == "" {
			continue
		}
		s.addResource(&Resource{
			ID:       wr.ID,
			Kind:     parseResourceKind(wr.Kind),
			Scope:    wr.Scope,
			Declared: true,
		})
	}

	for i, we := range wire.Events {
		if we.ThreadID == "" || we.ResourceID == "" {
			return nil, fmt.Errorf("%w: event %d missing thread or resource", ErrInvalidEvent, i)
		}
		kind, ok := parseKind(we.Kind)
		if !ok {
			return nil, fmt.Errorf("%w: event %d has unknown kind %q", ErrInvalidEvent, i, we.Kind)
		}

		if s.Resources[we.ResourceID] == nil {
			// Undeclared resource: treat as fresh, warn, keep going.
			logger.Warn("event references undeclared resource",
				"resource_id", we.ResourceID,
				"thread_id", we.ThreadID,
				"location", we.Loc.String(),
			)
			s.addResource(&Resource{ID: we.ResourceID, Kind: ResourceMutex})
		}

		ev := Event{
			ThreadID:   we.ThreadID,
			Kind:       kind,
			ResourceID: we.ResourceID,
			Loc:        we.Loc,
			Seq:        i,
		}
		s.Events = append(s.Events, ev)

		tc := s.Threads[we.ThreadID]
		if tc == nil {
			tc = &ThreadContext{ID: we.ThreadID}
			s.Threads[we.ThreadID] = tc
			s.ThreadIDs = append(s.ThreadIDs, we.ThreadID)
		}
		tc.Events = append(tc.Events, ev)
	}

	if wire.Facts != nil {
		s.Facts = NewFactTable(wire.Facts.EntryUnreachable, wire.Facts.ExclusivePairs)
	}
	s.OrderRules = wire.LockOrder

	logger.Debug("event stream decoded",
		"events", len(s.Events),
		"threads", len(s.ThreadIDs),
		"resources", len(s.ResourceIDs),
		"order_rules", len(s.OrderRules),
	)
	return s, nil
}

// FromEvents assembles a Stream directly from events in arrival order.
//
// Intended for tests and in-process front-ends that already hold typed
// events. Resource kinds default to mutex unless declared in resources.
func FromEvents(events []Event, resources []*Resource) (*Stream, error) {
	if len(events) == 0 {
		return nil, ErrEmptyStream
	}
	s := &Stream{
		Threads:   make(map[string]*ThreadContext),
		Resources: make(map[string]*Resource),
	}
	for _, r := range resources {
		s.addResource(r)
	}
	for i, ev := range events {
		ev.Seq = i
		if ev.ThreadID == "" || ev.ResourceID == "" {
			return nil, fmt.Errorf("%w: event %d missing thread or resource", ErrInvalidEvent, i)
		}
		if s.Resources[ev.ResourceID] == nil {
			s.addResource(&Resource{ID: ev.ResourceID, Kind: ResourceMutex})
		}
		s.Events = append(s.Events, ev)
		tc := s.Threads[ev.ThreadID]
		if tc == nil {
			tc = &ThreadContext{ID: ev.ThreadID}
			s.Threads[ev.ThreadID] = tc
			s.ThreadIDs = append(s.ThreadIDs, ev.ThreadID)
		}
		tc.Events = append(tc.Events, ev)
	}
	return s, nil
}

// addResource registers a resource, preserving first-seen order.
func (s *Stream) addResource(r *Resource) {
	if _, exists := s.Resources[r.ID]; exists {
		return
	}
	s.Resources[r.ID] = r
	s.ResourceIDs = append(s.ResourceIDs, r.ID)
}
