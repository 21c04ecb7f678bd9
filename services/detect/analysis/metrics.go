// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package analysis

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

var (
	tracer = otel.Tracer("detect.analysis")
	meter  = otel.Meter("detect.analysis")
)

var (
	verdictTotal metric.Int64Counter

	metricsOnce sync.Once
	metricsErr  error
)

// initMetrics initializes the metrics. Safe to call multiple times.
func initMetrics() error {
	metricsOnce.Do(func() {
		verdictTotal, metricsErr = meter.Int64Counter(
			"analysis_verdicts_total",
			metric.WithDescription("Verdicts emitted, by level and status"),
		)
	})
	return metricsErr
}

// startAnalyzeSpan opens the tracing span for one Analyze call.
func startAnalyzeSpan(ctx context.Context, cand *Candidate) (context.Context, trace.Span) {
	return tracer.Start(ctx, "analysis.Analyze",
		trace.WithAttributes(
			attribute.String("analysis.candidate_id", cand.ID),
			attribute.Int("analysis.cycle_len", cand.Cycle.Len()),
		),
	)
}

// recordVerdict counts one verdict; init failures are silent because
// metrics must never break analysis.
func recordVerdict(ctx context.Context, level Level, status Status) {
	if initMetrics() != nil {
		return
	}
	verdictTotal.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("level", level.String()),
			attribute.String("status", status.String()),
		),
	)
}
