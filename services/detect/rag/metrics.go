// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package rag

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

// Package-level tracer and meter for graph construction.
var (
	tracer = otel.Tracer("detect.rag")
	meter  = otel.Meter("detect.rag")
)

// Metrics for build operations.
var (
	buildLatency metric.Float64Histogram
	buildTotal   metric.Int64Counter
	nodesCreated metric.Int64Histogram
	edgesCreated metric.Int64Histogram

	metricsOnce sync.Once
	metricsErr  error
)

// initMetrics initializes the metrics. Safe to call multiple times.
func initMetrics() error {
	metricsOnce.Do(func() {
		var err error

		buildLatency, err = meter.Float64Histogram(
			"rag_build_duration_seconds",
			metric.WithDescription("Duration of graph build operations"),
			metric.WithUnit("s"),
		)
		if err != nil {
			metricsErr = err
			return
		}

		buildTotal, err = meter.Int64Counter(
			"rag_build_total",
			metric.WithDescription("Total number of graph build operations"),
		)
		if err != nil {
			metricsErr = err
			return
		}

		nodesCreated, err = meter.Int64Histogram(
			"rag_nodes_created",
			metric.WithDescription("Number of nodes in the built graph"),
		)
		if err != nil {
			metricsErr = err
			return
		}

		edgesCreated, err = meter.Int64Histogram(
			"rag_edges_created",
			metric.WithDescription("Number of edges in the built graph"),
		)
		if err != nil {
			metricsErr = err
			return
		}
	})
	return metricsErr
}

// startBuildSpan opens the tracing span for one Build call.
func startBuildSpan(ctx context.Context, eventCount int) (context.Context, trace.Span) {
	return tracer.Start(ctx, "rag.Build",
		trace.WithAttributes(attribute.Int("rag.event_count", eventCount)),
	)
}

// recordBuildMetrics emits build metrics; failures to init are silent
// because metrics must never break analysis.
func recordBuildMetrics(ctx context.Context, result *BuildResult) {
	if initMetrics() != nil {
		return
	}
	buildTotal.Add(ctx, 1)
	buildLatency.Record(ctx, result.Duration.Seconds())
	nodesCreated.Record(ctx, int64(result.Graph.NodeCount()))
	edgesCreated.Record(ctx, int64(result.Graph.EdgeCount()))
}
