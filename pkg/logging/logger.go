// Copyright (C) 2026 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package logging provides structured logging for Wayfinder services.
//
// The Logger wraps log/slog with a fan-out handler so a single logger can
// write human-readable output to stderr while also feeding an exporter
// (buffered capture in tests, files in deployments). Services receive a
// *Logger and never construct slog handlers themselves.
package logging

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"
)

// Level is the log verbosity level.
type Level int

const (
	// LevelDebug logs everything including per-call diagnostics.
	LevelDebug Level = iota

	// LevelInfo logs lifecycle events and transitions. The default.
	LevelInfo

	// LevelWarn logs recoverable problems.
	LevelWarn

	// LevelError logs failures that require attention.
	LevelError
)

// String returns the lowercase name of the level.
func (l Level) String() string {
	switch l {
	case LevelDebug:
		return "debug"
	case LevelInfo:
		return "info"
	case LevelWarn:
		return "warn"
	case LevelError:
		return "error"
	default:
		return fmt.Sprintf("level(%d)", int(l))
	}
}

// ParseLevel converts a string to a Level. Unknown strings map to LevelInfo.
func ParseLevel(s string) Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return LevelDebug
	case "info", "":
		return LevelInfo
	case "warn", "warning":
		return LevelWarn
	case "error":
		return LevelError
	default:
		return LevelInfo
	}
}

func (l Level) toSlog() slog.Level {
	switch l {
	case LevelDebug:
		return slog.LevelDebug
	case LevelWarn:
		return slog.LevelWarn
	case LevelError:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// Config configures a Logger.
type Config struct {
	// Level is the minimum level to emit.
	Level Level

	// Service is attached to every record as the "service" attribute.
	Service string

	// JSON selects the JSON handler instead of the text handler.
	JSON bool

	// Quiet suppresses the stderr handler entirely (exporter still runs).
	Quiet bool

	// Writer overrides the default stderr destination. Nil means stderr.
	Writer io.Writer

	// Exporter receives a copy of every record. Optional.
	Exporter Exporter
}

// Exporter receives finished log records for capture or shipment.
//
// Thread Safety: implementations must be safe for concurrent use.
type Exporter interface {
	// Export receives one record. Errors are swallowed by the logger;
	// exporters must not block.
	Export(rec slog.Record) error

	// Close flushes and releases the exporter.
	Close() error
}

// Logger is the service logger.
//
// Thread Safety: Logger is safe for concurrent use.
type Logger struct {
	slog     *slog.Logger
	exporter Exporter
	closed   sync.Once
}

// multiHandler fans a record out to every child handler.
type multiHandler struct {
	handlers []slog.Handler
}

func (m *multiHandler) Enabled(ctx context.Context, level slog.Level) bool {
	for _, h := range m.handlers {
		if h.Enabled(ctx, level) {
			return true
		}
	}
	return false
}

func (m *multiHandler) Handle(ctx context.Context, rec slog.Record) error {
	var firstErr error
	for _, h := range m.handlers {
		if !h.Enabled(ctx, rec.Level) {
			continue
		}
		if err := h.Handle(ctx, rec.Clone()); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

func (m *multiHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	next := make([]slog.Handler, len(m.handlers))
	for i, h := range m.handlers {
		next[i] = h.WithAttrs(attrs)
	}
	return &multiHandler{handlers: next}
}

func (m *multiHandler) WithGroup(name string) slog.Handler {
	next := make([]slog.Handler, len(m.handlers))
	for i, h := range m.handlers {
		next[i] = h.WithGroup(name)
	}
	return &multiHandler{handlers: next}
}

// exporterHandler adapts an Exporter to slog.Handler.
type exporterHandler struct {
	exporter Exporter
	level    slog.Level
	attrs    []slog.Attr
}

func (e *exporterHandler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= e.level
}

func (e *exporterHandler) Handle(_ context.Context, rec slog.Record) error {
	if len(e.attrs) > 0 {
		rec = rec.Clone()
		rec.AddAttrs(e.attrs...)
	}
	return e.exporter.Export(rec)
}

func (e *exporterHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	merged := make([]slog.Attr, 0, len(e.attrs)+len(attrs))
	merged = append(merged, e.attrs...)
	merged = append(merged, attrs...)
	return &exporterHandler{exporter: e.exporter, level: e.level, attrs: merged}
}

func (e *exporterHandler) WithGroup(_ string) slog.Handler {
	return e
}

// New creates a Logger from the config.
func New(cfg Config) *Logger {
	var handlers []slog.Handler

	if !cfg.Quiet {
		w := cfg.Writer
		if w == nil {
			w = os.Stderr
		}
		opts := &slog.HandlerOptions{Level: cfg.Level.toSlog()}
		if cfg.JSON {
			handlers = append(handlers, slog.NewJSONHandler(w, opts))
		} else {
			handlers = append(handlers, slog.NewTextHandler(w, opts))
		}
	}

	if cfg.Exporter != nil {
		handlers = append(handlers, &exporterHandler{
			exporter: cfg.Exporter,
			level:    cfg.Level.toSlog(),
		})
	}

	if len(handlers) == 0 {
		handlers = append(handlers, slog.NewTextHandler(io.Discard, nil))
	}

	base := slog.New(&multiHandler{handlers: handlers})
	if cfg.Service != "" {
		base = base.With(slog.String("service", cfg.Service))
	}

	return &Logger{slog: base, exporter: cfg.Exporter}
}

// Default returns an info-level text logger for the named service.
func Default(service string) *Logger {
	return New(Config{Level: LevelInfo, Service: service})
}

// Nop returns a logger that discards everything. For tests.
func Nop() *Logger {
	return New(Config{Quiet: true})
}

// Debug logs at debug level.
func (l *Logger) Debug(msg string, args ...any) { l.slog.Debug(msg, args...) }

// Info logs at info level.
func (l *Logger) Info(msg string, args ...any) { l.slog.Info(msg, args...) }

// Warn logs at warn level.
func (l *Logger) Warn(msg string, args ...any) { l.slog.Warn(msg, args...) }

// Error logs at error level.
func (l *Logger) Error(msg string, args ...any) { l.slog.Error(msg, args...) }

// With returns a logger with the given attributes attached to every record.
func (l *Logger) With(args ...any) *Logger {
	return &Logger{slog: l.slog.With(args...), exporter: l.exporter}
}

// Slog exposes the underlying *slog.Logger for packages that take one.
func (l *Logger) Slog() *slog.Logger {
	return l.slog
}

// Close flushes the exporter, if any. Safe to call more than once.
func (l *Logger) Close() error {
	var err error
	l.closed.Do(func() {
		if l.exporter != nil {
			err = l.exporter.Close()
		}
	})
	return err
}

// BufferedExporter captures records in memory. For tests.
type BufferedExporter struct {
	mu      sync.Mutex
	records []slog.Record
}

// NewBufferedExporter creates an empty buffered exporter.
func NewBufferedExporter() *BufferedExporter {
	return &BufferedExporter{}
}

// Export appends the record to the buffer.
func (b *BufferedExporter) Export(rec slog.Record) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.records = append(b.records, rec)
	return nil
}

// Close is a no-op for the buffered exporter.
func (b *BufferedExporter) Close() error { return nil }

// Records returns a copy of the captured records.
func (b *BufferedExporter) Records() []slog.Record {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]slog.Record, len(b.records))
	copy(out, b.records)
	return out
}

// Messages returns the captured record messages in order.
func (b *BufferedExporter) Messages() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]string, len(b.records))
	for i, rec := range b.records {
		out[i] = rec.Message
	}
	return out
}
