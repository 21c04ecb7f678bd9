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

import "errors"

// Sentinel errors for stream decoding.
var (
	// ErrEmptyStream is returned when the input contains no events.
	// This is the only top-level fatal input condition.
	ErrEmptyStream = errors.New("event stream is empty")

	// ErrInvalidEvent is returned when an event entry is structurally
	// invalid (missing thread, resource, or an unknown kind).
	ErrInvalidEvent = errors.New("invalid event entry")

	// ErrDecode wraps JSON syntax failures from the underlying decoder.
	ErrDecode = errors.New("event stream decode failed")
)
