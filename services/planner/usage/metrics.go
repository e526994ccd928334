// Copyright (C) 2026 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package usage accounts for what the pipeline spends: model tokens,
// stage retries, gate decisions, verification findings. Prometheus
// counters are always on; an optional InfluxDB sink keeps long-horizon
// token history.
package usage

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// =============================================================================
// Prometheus Metrics for Pipeline Runs
// =============================================================================

var (
	// stageRuns counts stage executions by outcome.
	// Labels: phase, stage, status (completed, failed)
	stageRuns = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "wayfinder",
		Subsystem: "pipeline",
		Name:      "stage_runs_total",
		Help:      "Total stage executions by outcome",
	}, []string{"phase", "stage", "status"})

	// stageRetries counts attempts beyond the first.
	// Labels: phase, stage
	stageRetries = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "wayfinder",
		Subsystem: "pipeline",
		Name:      "stage_retries_total",
		Help:      "Total stage retry attempts",
	}, []string{"phase", "stage"})

	// gateDecisions counts human gate decisions.
	// Labels: gate_type, action
	gateDecisions = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "wayfinder",
		Subsystem: "gates",
		Name:      "decisions_total",
		Help:      "Total gate decisions by type and action",
	}, []string{"gate_type", "action"})

	// gatesOpened counts gate suspensions.
	// Labels: gate_type, phase
	gatesOpened = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "wayfinder",
		Subsystem: "gates",
		Name:      "opened_total",
		Help:      "Total gates opened",
	}, []string{"gate_type", "phase"})

	// verificationViolations counts violations found at phase boundaries.
	// Labels: phase, severity (blocking, warning)
	verificationViolations = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "wayfinder",
		Subsystem: "verify",
		Name:      "violations_total",
		Help:      "Total verification violations by severity",
	}, []string{"phase", "severity"})

	// generationTokens counts model tokens by direction.
	// Labels: backend, model, direction (prompt, completion)
	generationTokens = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "wayfinder",
		Subsystem: "llm",
		Name:      "tokens_total",
		Help:      "Total model tokens consumed",
	}, []string{"backend", "model", "direction"})

	// generationLatency measures model call latency.
	// Labels: backend, model, status (ok, error)
	generationLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "wayfinder",
		Subsystem: "llm",
		Name:      "latency_seconds",
		Help:      "Model call latency in seconds",
		Buckets:   []float64{0.5, 1, 2, 5, 10, 20, 40, 80, 160},
	}, []string{"backend", "model", "status"})

	// runsFinished counts terminal runs.
	// Labels: status (completed, failed)
	runsFinished = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "wayfinder",
		Subsystem: "pipeline",
		Name:      "runs_finished_total",
		Help:      "Total runs reaching a terminal status",
	}, []string{"status"})
)
