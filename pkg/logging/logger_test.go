// Copyright (C) 2026 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package logging

import (
	"bytes"
	"strings"
	"sync"
	"testing"
)

// =============================================================================
// Level Tests
// =============================================================================

func TestLevel_String(t *testing.T) {
	tests := []struct {
		level Level
		want  string
	}{
		{LevelDebug, "debug"},
		{LevelInfo, "info"},
		{LevelWarn, "warn"},
		{LevelError, "error"},
		{Level(99), "level(99)"},
	}

	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			got := tt.level.String()
			if got != tt.want {
				t.Errorf("Level.String() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want Level
	}{
		{"debug", LevelDebug},
		{"INFO", LevelInfo},
		{"warning", LevelWarn},
		{"error", LevelError},
		{"", LevelInfo},
		{"bogus", LevelInfo},
		{"  warn  ", LevelWarn},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			if got := ParseLevel(tt.in); got != tt.want {
				t.Errorf("ParseLevel(%q) = %v, want %v", tt.in, got, tt.want)
			}
		})
	}
}

// =============================================================================
// Logger Tests
// =============================================================================

func TestNew_WritesToWriter(t *testing.T) {
	var buf bytes.Buffer
	logger := New(Config{Level: LevelInfo, Service: "test", Writer: &buf})

	logger.Info("hello", "key", "value")

	out := buf.String()
	if !strings.Contains(out, "hello") {
		t.Errorf("output missing message: %q", out)
	}
	if !strings.Contains(out, "service=test") {
		t.Errorf("output missing service attribute: %q", out)
	}
	if !strings.Contains(out, "key=value") {
		t.Errorf("output missing attribute: %q", out)
	}
}

func TestNew_LevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	logger := New(Config{Level: LevelWarn, Writer: &buf})

	logger.Debug("drop-debug")
	logger.Info("drop-info")
	logger.Warn("keep-warn")
	logger.Error("keep-error")

	out := buf.String()
	if strings.Contains(out, "drop-debug") || strings.Contains(out, "drop-info") {
		t.Errorf("low-level records leaked: %q", out)
	}
	if !strings.Contains(out, "keep-warn") || !strings.Contains(out, "keep-error") {
		t.Errorf("high-level records missing: %q", out)
	}
}

func TestNew_JSONHandler(t *testing.T) {
	var buf bytes.Buffer
	logger := New(Config{Level: LevelInfo, JSON: true, Writer: &buf})

	logger.Info("structured")

	out := buf.String()
	if !strings.HasPrefix(strings.TrimSpace(out), "{") {
		t.Errorf("expected JSON output, got %q", out)
	}
	if !strings.Contains(out, `"msg":"structured"`) {
		t.Errorf("JSON output missing message: %q", out)
	}
}

func TestNew_QuietWithExporter(t *testing.T) {
	exp := NewBufferedExporter()
	logger := New(Config{Level: LevelInfo, Quiet: true, Exporter: exp})

	logger.Info("captured")
	logger.Debug("filtered")

	msgs := exp.Messages()
	if len(msgs) != 1 {
		t.Fatalf("expected 1 exported record, got %d", len(msgs))
	}
	if msgs[0] != "captured" {
		t.Errorf("exported message = %q, want %q", msgs[0], "captured")
	}
}

func TestLogger_With(t *testing.T) {
	var buf bytes.Buffer
	logger := New(Config{Level: LevelInfo, Writer: &buf})

	child := logger.With("run_id", "r-1")
	child.Info("scoped")

	if !strings.Contains(buf.String(), "run_id=r-1") {
		t.Errorf("child logger missing bound attribute: %q", buf.String())
	}
}

func TestLogger_CloseIdempotent(t *testing.T) {
	exp := NewBufferedExporter()
	logger := New(Config{Quiet: true, Exporter: exp})

	if err := logger.Close(); err != nil {
		t.Fatalf("first Close: %v", err)
	}
	if err := logger.Close(); err != nil {
		t.Fatalf("second Close: %v", err)
	}
}

func TestNop_DiscardsEverything(t *testing.T) {
	logger := Nop()
	// Must not panic and must not write anywhere observable.
	logger.Debug("a")
	logger.Info("b")
	logger.Warn("c")
	logger.Error("d")
}

// =============================================================================
// Exporter Tests
// =============================================================================

func TestBufferedExporter_ConcurrentExport(t *testing.T) {
	exp := NewBufferedExporter()
	logger := New(Config{Level: LevelDebug, Quiet: true, Exporter: exp})

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				logger.Info("concurrent")
			}
		}()
	}
	wg.Wait()

	if got := len(exp.Records()); got != 400 {
		t.Errorf("expected 400 records, got %d", got)
	}
}
