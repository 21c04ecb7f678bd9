// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package config loads detector configuration with priority
// env > file > defaults.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// Config is the top-level detector configuration.
//
// Thread Safety: Safe to read concurrently. Not safe to modify after creation.
type Config struct {
	// Pipeline contains orchestration settings.
	Pipeline PipelineConfig `json:"pipeline" yaml:"pipeline"`

	// Detector contains cycle enumeration caps.
	Detector DetectorConfig `json:"detector" yaml:"detector"`

	// Analyzer contains scoring weights and the simulation gate.
	Analyzer AnalyzerConfig `json:"analyzer" yaml:"analyzer"`

	// Simulator contains interleaving-search budgets.
	Simulator SimulatorConfig `json:"simulator" yaml:"simulator"`

	// Recommender contains strategy ranking constants.
	Recommender RecommenderConfig `json:"recommender" yaml:"recommender"`

	// Knowledge contains knowledge-base sizing.
	Knowledge KnowledgeConfig `json:"knowledge" yaml:"knowledge"`

	// Observability contains logging and telemetry settings.
	Observability ObservabilityConfig `json:"observability" yaml:"observability"`
}

// PipelineConfig contains orchestration settings.
type PipelineConfig struct {
	// Workers bounds candidate-analysis parallelism. Zero means NumCPU.
	Workers int `json:"workers" yaml:"workers" validate:"gte=0"`
}

// DetectorConfig contains cycle enumeration caps.
type DetectorConfig struct {
	MaxCycleLen int `json:"max_cycle_len" yaml:"max_cycle_len" validate:"gte=2"`
	MaxCycles   int `json:"max_cycles" yaml:"max_cycles" validate:"gte=1"`
}

// AnalyzerConfig contains scoring weights and the simulation gate.
type AnalyzerConfig struct {
	LengthWeight    float64 `json:"length_weight" yaml:"length_weight" validate:"gte=0"`
	DiversityWeight float64 `json:"diversity_weight" yaml:"diversity_weight" validate:"gte=0"`
	HistoryWeight   float64 `json:"history_weight" yaml:"history_weight" validate:"gte=0"`
	Threshold       float64 `json:"threshold" yaml:"threshold" validate:"gte=0,lte=1"`
}

// SimulatorConfig contains interleaving-search budgets.
type SimulatorConfig struct {
	// MaxStates bounds the number of distinct states explored.
	MaxStates int `json:"max_states" yaml:"max_states" validate:"gte=1"`

	// MaxDepth bounds schedule length. Zero means the stream event count.
	MaxDepth int `json:"max_depth" yaml:"max_depth" validate:"gte=0"`
}

// RecommenderConfig contains strategy ranking constants.
type RecommenderConfig struct {
	ComplexityPenalty  float64 `json:"complexity_penalty" yaml:"complexity_penalty" validate:"gte=0"`
	PerformancePenalty float64 `json:"performance_penalty" yaml:"performance_penalty" validate:"gte=0"`
	SeverityBonus      float64 `json:"severity_bonus" yaml:"severity_bonus" validate:"gte=0"`
	SimpleCaseBonus    float64 `json:"simple_case_bonus" yaml:"simple_case_bonus" validate:"gte=0"`
	HistoryWeight      float64 `json:"history_weight" yaml:"history_weight" validate:"gte=0,lte=1"`
}

// KnowledgeConfig contains knowledge-base sizing.
type KnowledgeConfig struct {
	HistorySize int `json:"history_size" yaml:"history_size" validate:"gte=1"`
}

// ObservabilityConfig contains logging and telemetry settings.
type ObservabilityConfig struct {
	LogLevel       string `json:"log_level" yaml:"log_level" validate:"oneof=debug info warn error"`
	TracingEnabled bool   `json:"tracing_enabled" yaml:"tracing_enabled"`
	MetricsEnabled bool   `json:"metrics_enabled" yaml:"metrics_enabled"`
}

// Default returns the default configuration.
func Default() Config {
	return Config{
		Pipeline: PipelineConfig{
			Workers: 0,
		},
		Detector: DetectorConfig{
			MaxCycleLen: 16,
			MaxCycles:   1024,
		},
		Analyzer: AnalyzerConfig{
			LengthWeight:    0.5,
			DiversityWeight: 0.3,
			HistoryWeight:   0.2,
			Threshold:       0.45,
		},
		Simulator: SimulatorConfig{
			MaxStates: 100_000,
			MaxDepth:  0,
		},
		Recommender: RecommenderConfig{
			ComplexityPenalty:  4.0,
			PerformancePenalty: 3.0,
			SeverityBonus:      8.0,
			SimpleCaseBonus:    10.0,
			HistoryWeight:      0.3,
		},
		Knowledge: KnowledgeConfig{
			HistorySize: 256,
		},
		Observability: ObservabilityConfig{
			LogLevel:       "info",
			TracingEnabled: false,
			MetricsEnabled: false,
		},
	}
}

// Load loads configuration with priority: env > file > defaults.
//
// Inputs:
//   - configPath: Path to a YAML/JSON config file (optional, can be empty).
//
// Outputs:
//   - Config: Merged configuration.
//   - error: Non-nil if the file exists but is invalid, or validation fails.
func Load(configPath string) (Config, error) {
	cfg := Default()

	if configPath != "" {
		if err := loadFile(configPath, &cfg); err != nil {
			return cfg, fmt.Errorf("load config file: %w", err)
		}
	}

	loadEnv(&cfg)

	if err := cfg.Validate(); err != nil {
		return cfg, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

func loadFile(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}

	// Try YAML first, then JSON
	if err := yaml.Unmarshal(data, cfg); err != nil {
		if jsonErr := json.Unmarshal(data, cfg); jsonErr != nil {
			return fmt.Errorf("parse config (tried YAML and JSON): YAML error: %v, JSON error: %w", err, jsonErr)
		}
	}
	return nil
}

func loadEnv(cfg *Config) {
	if v := os.Getenv("DETECT_WORKERS"); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			cfg.Pipeline.Workers = i
		}
	}
	if v := os.Getenv("DETECT_MAX_CYCLE_LEN"); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			cfg.Detector.MaxCycleLen = i
		}
	}
	if v := os.Getenv("DETECT_MAX_CYCLES"); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			cfg.Detector.MaxCycles = i
		}
	}
	if v := os.Getenv("DETECT_THRESHOLD"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.Analyzer.Threshold = f
		}
	}
	if v := os.Getenv("DETECT_SIM_MAX_STATES"); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			cfg.Simulator.MaxStates = i
		}
	}
	if v := os.Getenv("DETECT_SIM_MAX_DEPTH"); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			cfg.Simulator.MaxDepth = i
		}
	}
	if v := os.Getenv("DETECT_HISTORY_SIZE"); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			cfg.Knowledge.HistorySize = i
		}
	}
	if v := os.Getenv("DETECT_LOG_LEVEL"); v != "" {
		cfg.Observability.LogLevel = v
	}
	if v := os.Getenv("DETECT_TRACING_ENABLED"); v != "" {
		cfg.Observability.TracingEnabled = v == "true" || v == "1"
	}
	if v := os.Getenv("DETECT_METRICS_ENABLED"); v != "" {
		cfg.Observability.MetricsEnabled = v == "true" || v == "1"
	}
}

// Validate checks that the configuration is valid.
func (c Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return err
	}
	// The scoring blend needs at least one nonzero weight or every
	// candidate scores zero.
	if c.Analyzer.LengthWeight+c.Analyzer.DiversityWeight+c.Analyzer.HistoryWeight == 0 {
		return fmt.Errorf("analyzer weights must not all be zero")
	}
	return nil
}
