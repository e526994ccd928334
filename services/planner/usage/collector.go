// Copyright (C) 2026 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package usage

import (
	"context"
	"log/slog"
	"time"

	"github.com/AleutianAI/wayfinder/services/planner/events"
	"github.com/AleutianAI/wayfinder/services/planner/llm"
)

// Collector turns run events and generation records into metrics. It is
// both an event subscriber and an llm.UsageSink, so one value covers
// the whole accounting surface.
//
// Thread Safety: Safe for concurrent use.
type Collector struct {
	logger *slog.Logger

	// forward receives every generation record after the counters are
	// incremented. Optional; used for the Influx sink.
	forward llm.UsageSink
}

// CollectorOption configures a Collector.
type CollectorOption func(*Collector)

// WithForwardSink chains another sink behind the Prometheus counters.
func WithForwardSink(sink llm.UsageSink) CollectorOption {
	return func(c *Collector) {
		c.forward = sink
	}
}

// NewCollector creates a Collector. Logger may be nil.
func NewCollector(logger *slog.Logger, opts ...CollectorOption) *Collector {
	if logger == nil {
		logger = slog.Default()
	}
	c := &Collector{logger: logger}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Attach subscribes the collector to the emitter and returns the
// subscription ID.
func (c *Collector) Attach(em *events.Emitter) string {
	return em.Subscribe(c.handle,
		events.TypeStageCompleted,
		events.TypeStageStarted,
		events.TypeGateOpened,
		events.TypeGateDecided,
		events.TypeVerification,
		events.TypeRunFinished,
	)
}

func (c *Collector) handle(event *events.Event) {
	switch event.Type {
	case events.TypeStageStarted:
		if d, ok := event.Data.(events.StageData); ok && d.Attempt > 1 {
			stageRetries.WithLabelValues(d.Phase, d.Stage).Inc()
		}

	case events.TypeStageCompleted:
		if d, ok := event.Data.(events.StageData); ok {
			status := "completed"
			if d.Error != "" {
				status = "failed"
			}
			stageRuns.WithLabelValues(d.Phase, d.Stage, status).Inc()
		}

	case events.TypeGateOpened:
		if d, ok := event.Data.(events.GateOpenedData); ok {
			gatesOpened.WithLabelValues(d.GateType, d.Phase).Inc()
		}

	case events.TypeGateDecided:
		if d, ok := event.Data.(events.GateDecidedData); ok {
			// Gate type is not on the decided event; the opened
			// counter carries it.
			gateDecisions.WithLabelValues("", d.Action).Inc()
		}

	case events.TypeVerification:
		if d, ok := event.Data.(events.VerificationData); ok {
			verificationViolations.WithLabelValues(d.Phase, "blocking").Add(float64(d.Blocking))
			verificationViolations.WithLabelValues(d.Phase, "warning").Add(float64(d.Warnings))
		}

	case events.TypeRunFinished:
		if d, ok := event.Data.(events.RunFinishedData); ok {
			runsFinished.WithLabelValues(d.Status).Inc()
		}
	}
}

// RecordGeneration implements llm.UsageSink.
func (c *Collector) RecordGeneration(ctx context.Context, rec llm.GenerationRecord) {
	status := "ok"
	if rec.Err != nil {
		status = "error"
	}
	generationLatency.WithLabelValues(rec.Backend, rec.Model, status).
		Observe(time.Duration(rec.DurationMS * int64(time.Millisecond)).Seconds())
	if rec.Usage.PromptTokens > 0 {
		generationTokens.WithLabelValues(rec.Backend, rec.Model, "prompt").
			Add(float64(rec.Usage.PromptTokens))
	}
	if rec.Usage.CompletionTokens > 0 {
		generationTokens.WithLabelValues(rec.Backend, rec.Model, "completion").
			Add(float64(rec.Usage.CompletionTokens))
	}

	if c.forward != nil {
		c.forward.RecordGeneration(ctx, rec)
	}
}
