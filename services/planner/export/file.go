// Copyright (C) 2026 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package export

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/AleutianAI/wayfinder/services/planner/resolve"
)

// FileExporter writes exports under <dir>/<run id>/. Re-exporting the
// same run overwrites; the canonical serialization makes that
// idempotent for unchanged state.
//
// Thread Safety: Safe for concurrent use; concurrent exports of the
// same run land last-writer-wins per file.
type FileExporter struct {
	dir    string
	logger *slog.Logger
}

// NewFileExporter creates the export root if needed.
func NewFileExporter(dir string, logger *slog.Logger) (*FileExporter, error) {
	if dir == "" {
		return nil, fmt.Errorf("export: empty directory")
	}
	if logger == nil {
		logger = slog.Default()
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create export dir: %w", err)
	}
	return &FileExporter{dir: dir, logger: logger}, nil
}

// ExportContext implements Exporter.
func (e *FileExporter) ExportContext(ctx context.Context, runID string, c *resolve.Context) (string, error) {
	data, err := c.MarshalCanonical()
	if err != nil {
		return "", fmt.Errorf("marshal context: %w", err)
	}
	return e.write(ctx, runID, contextName, data)
}

// ExportSpecification implements Exporter.
func (e *FileExporter) ExportSpecification(ctx context.Context, runID string, s *resolve.Specification) (string, error) {
	data, err := s.MarshalCanonical()
	if err != nil {
		return "", fmt.Errorf("marshal specification: %w", err)
	}
	return e.write(ctx, runID, specName, data)
}

func (e *FileExporter) write(ctx context.Context, runID, name string, data []byte) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	runDir := filepath.Join(e.dir, runID)
	if err := os.MkdirAll(runDir, 0o755); err != nil {
		return "", fmt.Errorf("create run export dir: %w", err)
	}

	path := filepath.Join(runDir, name)
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return "", fmt.Errorf("write export: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return "", fmt.Errorf("publish export: %w", err)
	}

	e.logger.Info("exported", "run_id", runID, "path", path, "bytes", len(data))
	return path, nil
}
