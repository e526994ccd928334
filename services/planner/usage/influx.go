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

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api"

	"github.com/AleutianAI/wayfinder/services/planner/llm"
)

// InfluxSink writes one point per generation attempt to InfluxDB for
// long-horizon token accounting. Writes go through the client's
// buffered async API, so RecordGeneration never blocks on the network.
//
// Thread Safety: Safe for concurrent use.
type InfluxSink struct {
	client   influxdb2.Client
	writeAPI api.WriteAPI
	logger   *slog.Logger
}

// NewInfluxSink connects to InfluxDB. The connection is lazy; a dead
// server surfaces as logged write errors, not a constructor failure.
func NewInfluxSink(url, token, org, bucket string, logger *slog.Logger) *InfluxSink {
	if logger == nil {
		logger = slog.Default()
	}
	client := influxdb2.NewClient(url, token)
	writeAPI := client.WriteAPI(org, bucket)

	s := &InfluxSink{client: client, writeAPI: writeAPI, logger: logger}
	go func() {
		for err := range writeAPI.Errors() {
			s.logger.Warn("influx write failed", "error", err)
		}
	}()
	return s
}

// RecordGeneration implements llm.UsageSink.
func (s *InfluxSink) RecordGeneration(_ context.Context, rec llm.GenerationRecord) {
	status := "ok"
	if rec.Err != nil {
		status = "error"
	}
	p := influxdb2.NewPoint(
		"generation",
		map[string]string{
			"backend": rec.Backend,
			"model":   rec.Model,
			"stage":   rec.Stage,
			"status":  status,
		},
		map[string]interface{}{
			"prompt_tokens":     rec.Usage.PromptTokens,
			"completion_tokens": rec.Usage.CompletionTokens,
			"total_tokens":      rec.Usage.TotalTokens,
			"duration_ms":       rec.DurationMS,
			"attempt":           rec.Attempt,
		},
		time.Now().UTC(),
	)
	s.writeAPI.WritePoint(p)
}

// Close flushes buffered points and releases the client.
func (s *InfluxSink) Close() {
	s.writeAPI.Flush()
	s.client.Close()
}
