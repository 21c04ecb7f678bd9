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

import "time"

// Detection is one recorded observation of a pattern.
type Detection struct {
	// Signature identifies the observed pattern.
	Signature Signature

	// Verdict is the outcome recorded for the observation.
	Verdict Verdict

	// When is the recording time.
	When time.Time
}

// ringBuffer is a fixed-size circular buffer keeping the last N detections.
// O(1) push, bounded memory; the oldest entry is overwritten when full.
//
// NOT safe for concurrent use; the store synchronizes around it.
type ringBuffer struct {
	data  []Detection
	head  int // next write position
	count int
}

// newRingBuffer creates a buffer with the given capacity.
func newRingBuffer(capacity int) *ringBuffer {
	if capacity <= 0 {
		capacity = 100
	}
	return &ringBuffer{data: make([]Detection, capacity)}
}

// push adds a detection, overwriting the oldest when full.
func (r *ringBuffer) push(d Detection) {
	r.data[r.head] = d
	r.head = (r.head + 1) % len(r.data)
	if r.count < len(r.data) {
		r.count++
	}
}

// items returns detections oldest first.
func (r *ringBuffer) items() []Detection {
	out := make([]Detection, 0, r.count)
	start := r.head - r.count
	if start < 0 {
		start += len(r.data)
	}
	for i := 0; i < r.count; i++ {
		out = append(out, r.data[(start+i)%len(r.data)])
	}
	return out
}
