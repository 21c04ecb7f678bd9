// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package sim validates deadlock candidates by searching the space of thread
// interleavings consistent with each thread's own event order.
//
// The search is a model of concurrency, not concurrent execution: it is
// fully deterministic and reproducible for identical inputs and budgets, so
// simulator verdicts are regression-testable.
package sim

import (
	"fmt"

	"github.com/saph1r0/deadlock-intelligent-detector/services/detect/event"
)

// OutcomeKind is the simulator verdict for one candidate.
type OutcomeKind int

const (
	// OutcomeConfirmed means a reachable schedule leaves every cycle
	// thread simultaneously blocked with no further legal transition
	// among them: a true circular wait.
	OutcomeConfirmed OutcomeKind = iota

	// OutcomeRefuted means exhaustive search within budget found no such
	// schedule.
	OutcomeRefuted

	// OutcomeInconclusive means the search budget was exhausted before
	// the space was covered. Reported distinctly from Refuted, never
	// silently treated as negative.
	OutcomeInconclusive
)

// String returns the verdict name.
func (k OutcomeKind) String() string {
	switch k {
	case OutcomeConfirmed:
		return "confirmed"
	case OutcomeRefuted:
		return "refuted"
	case OutcomeInconclusive:
		return "inconclusive"
	default:
		return "unknown"
	}
}

// Step is one scheduled event in an interleaving.
type Step struct {
	// ThreadID is the thread advanced by this step.
	ThreadID string

	// Event is the event executed.
	Event event.Event
}

// String renders the step for rationale output.
func (s Step) String() string {
	return fmt.Sprintf("%s: %s(%s)", s.ThreadID, s.Event.Kind, s.Event.ResourceID)
}

// Outcome is the full simulation result for one candidate.
type Outcome struct {
	// Kind is the verdict.
	Kind OutcomeKind

	// Witness is the confirming schedule, present only when Kind is
	// OutcomeConfirmed. Replaying it reaches the deadlocked state.
	Witness []Step

	// StatesExplored counts distinct scheduler states visited.
	StatesExplored int

	// Rationale is a short human-readable explanation.
	Rationale string
}
