// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package pipeline

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

var (
	tracer = otel.Tracer("detect.pipeline")
	meter  = otel.Meter("detect.pipeline")
)

var (
	runLatency    metric.Float64Histogram
	runTotal      metric.Int64Counter
	findingsCount metric.Int64Histogram

	metricsOnce sync.Once
	metricsErr  error
)

// initMetrics initializes the metrics. Safe to call multiple times.
func initMetrics() error {
	metricsOnce.Do(func() {
		var err error

		runLatency, err = meter.Float64Histogram(
			"pipeline_run_duration_seconds",
			metric.WithDescription("Duration of full detection runs"),
			metric.WithUnit("s"),
		)
		if err != nil {
			metricsErr = err
			return
		}

		runTotal, err = meter.Int64Counter(
			"pipeline_runs_total",
			metric.WithDescription("Total number of detection runs"),
		)
		if err != nil {
			metricsErr = err
			return
		}

		findingsCount, err = meter.Int64Histogram(
			"pipeline_findings",
			metric.WithDescription("Findings produced per run"),
		)
		if err != nil {
			metricsErr = err
			return
		}
	})
	return metricsErr
}

// startRunSpan opens the tracing span for one Run call.
func startRunSpan(ctx context.Context, runID string, eventCount int) (context.Context, trace.Span) {
	return tracer.Start(ctx, "pipeline.Run",
		trace.WithAttributes(
			attribute.String("pipeline.run_id", runID),
			attribute.Int("pipeline.event_count", eventCount),
		),
	)
}

// recordRunMetrics emits run metrics; init failures are silent because
// metrics must never break detection.
func recordRunMetrics(ctx context.Context, report *Report) {
	if initMetrics() != nil {
		return
	}
	runTotal.Add(ctx, 1)
	runLatency.Record(ctx, report.Duration.Seconds())
	findingsCount.Record(ctx, int64(len(report.Findings)),
		metric.WithAttributes(attribute.Bool("truncated", report.Truncated)),
	)
}
