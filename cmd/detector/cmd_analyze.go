// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"

	"github.com/saph1r0/deadlock-intelligent-detector/pkg/logging"
	"github.com/saph1r0/deadlock-intelligent-detector/services/detect/analysis"
	"github.com/saph1r0/deadlock-intelligent-detector/services/detect/config"
	"github.com/saph1r0/deadlock-intelligent-detector/services/detect/cycles"
	"github.com/saph1r0/deadlock-intelligent-detector/services/detect/event"
	"github.com/saph1r0/deadlock-intelligent-detector/services/detect/knowledge"
	"github.com/saph1r0/deadlock-intelligent-detector/services/detect/pipeline"
	"github.com/saph1r0/deadlock-intelligent-detector/services/detect/recommend"
	"github.com/saph1r0/deadlock-intelligent-detector/services/detect/sim"
	"github.com/saph1r0/deadlock-intelligent-detector/services/detect/telemetry"
)

// ANSI colors for terminal summaries.
const (
	colorReset  = "\033[0m"
	colorRed    = "\033[31m"
	colorGreen  = "\033[32m"
	colorYellow = "\033[33m"
	colorBold   = "\033[1m"
)

func runAnalyze(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	if logLevel != "" {
		cfg.Observability.LogLevel = logLevel
	}

	logger := logging.New(logging.Config{
		Level:   logging.ParseLevel(cfg.Observability.LogLevel),
		Service: "detector",
	})
	defer logger.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if cfg.Observability.TracingEnabled || cfg.Observability.MetricsEnabled {
		tcfg := telemetry.DefaultConfig()
		if cfg.Observability.TracingEnabled {
			tcfg.TraceExporter = "stdout"
		}
		if cfg.Observability.MetricsEnabled {
			tcfg.MetricExporter = "stdout"
		}
		shutdown, err := telemetry.Init(ctx, tcfg)
		if err != nil {
			return fmt.Errorf("init telemetry: %w", err)
		}
		defer func() { _ = shutdown(context.Background()) }()
	}

	stream, err := readStream(args[0], logger)
	if err != nil {
		return err
	}

	kb := knowledge.NewStore(knowledge.WithHistorySize(cfg.Knowledge.HistorySize))

	pipeWorkers := cfg.Pipeline.Workers
	if workers > 0 {
		pipeWorkers = workers
	}
	pipe := pipeline.New(kb,
		pipeline.WithWorkers(pipeWorkers),
		pipeline.WithPipelineLogger(logger.Slog()),
		pipeline.WithDetector(cycles.NewDetector(
			cycles.WithMaxCycleLen(cfg.Detector.MaxCycleLen),
			cycles.WithMaxCycles(cfg.Detector.MaxCycles),
			cycles.WithDetectorLogger(logger.Slog()),
		)),
		pipeline.WithSimulator(sim.NewSimulator(
			sim.WithMaxStates(cfg.Simulator.MaxStates),
			sim.WithMaxDepth(cfg.Simulator.MaxDepth),
			sim.WithSimLogger(logger.Slog()),
		)),
		pipeline.WithRecommender(recommend.NewRecommender(kb,
			recommend.WithPenalties(cfg.Recommender.ComplexityPenalty, cfg.Recommender.PerformancePenalty),
			recommend.WithBonuses(cfg.Recommender.SeverityBonus, cfg.Recommender.SimpleCaseBonus),
			recommend.WithHistoryWeight(cfg.Recommender.HistoryWeight),
			recommend.WithRecommenderLogger(logger.Slog()),
		)),
		pipeline.WithAnalyzerOptions(
			analysis.WithWeights(cfg.Analyzer.LengthWeight, cfg.Analyzer.DiversityWeight, cfg.Analyzer.HistoryWeight),
			analysis.WithThreshold(cfg.Analyzer.Threshold),
		),
	)

	report, err := pipe.Run(ctx, stream)
	if err != nil {
		return err
	}

	if jsonOutput {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(report)
	}
	printSummary(report)
	return nil
}

// readStream decodes the snapshot from a file, or stdin when path is "-".
func readStream(path string, logger *logging.Logger) (*event.Stream, error) {
	var r io.Reader
	if path == "-" {
		r = os.Stdin
	} else {
		f, err := os.Open(path)
		if err != nil {
			return nil, fmt.Errorf("open trace: %w", err)
		}
		defer f.Close()
		r = f
	}
	return event.DecodeStream(r, logger.Slog())
}

// printSummary writes the human-readable report to stdout, colored when
// stdout is a terminal.
func printSummary(report *pipeline.Report) {
	tty := isatty.IsTerminal(os.Stdout.Fd()) || isatty.IsCygwinTerminal(os.Stdout.Fd())
	paint := func(color, s string) string {
		if !tty {
			return s
		}
		return color + s + colorReset
	}

	fmt.Printf("%s  run %s\n", paint(colorBold, "Deadlock analysis"), report.RunID)
	fmt.Printf("  events=%d nodes=%d edges=%d components=%d duration=%s\n",
		report.EventCount, report.NodeCount, report.EdgeCount,
		report.Components, report.Duration.Round(0))

	if report.Truncated {
		fmt.Println(paint(colorYellow, "  warning: cycle enumeration truncated by configured caps"))
	}
	for _, te := range report.ThreadErrors {
		fmt.Printf("%s thread %s excluded: %s\n",
			paint(colorYellow, "  warning:"), te.ThreadID, te.Reason)
	}

	if len(report.Findings) == 0 {
		fmt.Println(paint(colorGreen, "  no circular waits detected"))
		return
	}

	for i, f := range report.Findings {
		status := f.Overall.String()
		switch f.Overall {
		case analysis.StatusConfirmed:
			status = paint(colorRed, status)
		case analysis.StatusRefuted, analysis.StatusImplausible:
			status = paint(colorGreen, status)
		default:
			status = paint(colorYellow, status)
		}

		fmt.Printf("\n%s %s  [%s, %s, confidence %.2f]\n",
			paint(colorBold, fmt.Sprintf("#%d", i+1)), f.Cycle.Key,
			status, f.Severity, f.Confidence)
		fmt.Printf("   pattern: %s\n", f.Pattern)
		for _, v := range f.Verdicts {
			fmt.Printf("   %-12s %-12s %s\n", v.Level, v.Status, v.Rationale)
		}
		if f.SimOutcome != nil && len(f.SimOutcome.Witness) > 0 {
			fmt.Println("   witness schedule:")
			for _, step := range f.SimOutcome.Witness {
				fmt.Printf("     %s\n", step)
			}
		}
		for j, ranked := range f.Strategies {
			if j >= 2 {
				break
			}
			fmt.Printf("   fix %d: %s (score %.0f)\n", j+1, ranked.Strategy.Name, ranked.Score)
		}
	}
}
