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
	"fmt"

	"github.com/spf13/cobra"
)

const version = "1.0.0"

// --- Global Command Variables ---
var (
	configPath string
	jsonOutput bool
	logLevel   string
	workers    int

	rootCmd = &cobra.Command{
		Use:   "detector",
		Short: "Intelligent deadlock detection for concurrency event streams",
		Long: `detector builds a resource allocation graph from a recorded event
stream, enumerates circular waits, filters them through escalating
analysis levels, and validates survivors with a deterministic
interleaving search.`,
	}

	analyzeCmd = &cobra.Command{
		Use:   "analyze [trace file]",
		Short: "Analyze an event-stream snapshot for deadlocks",
		Long: `Analyze reads a JSON event stream (use "-" for stdin), runs the
full detection pipeline, and reports every finding with its verdict
history and ranked remediation strategies.`,
		Args: cobra.ExactArgs(1),
		RunE: runAnalyze, // Defined in cmd_analyze.go
	}

	versionCmd = &cobra.Command{
		Use:   "version",
		Short: "Print the detector version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Println("detector", version)
		},
	}
)

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "detector.yaml",
		"Path to the YAML/JSON config file")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "",
		"Override the configured log level (debug, info, warn, error)")

	analyzeCmd.Flags().BoolVar(&jsonOutput, "json", false,
		"Emit the full report as JSON instead of a human summary")
	analyzeCmd.Flags().IntVar(&workers, "workers", 0,
		"Override candidate-analysis parallelism (0 = NumCPU)")

	rootCmd.AddCommand(analyzeCmd)
	rootCmd.AddCommand(versionCmd)
}
