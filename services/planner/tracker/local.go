// Copyright (C) 2026 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package tracker

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

// LocalTracker writes drafts as individual JSON documents in a
// directory, one file per work item. It stands in for a real tracker
// integration; downstream tooling picks the files up.
//
// Thread Safety: Safe for concurrent use.
type LocalTracker struct {
	dir    string
	logger *slog.Logger

	mu sync.Mutex
}

// NewLocalTracker creates the draft directory if needed.
func NewLocalTracker(dir string, logger *slog.Logger) (*LocalTracker, error) {
	if dir == "" {
		return nil, fmt.Errorf("tracker: empty draft directory")
	}
	if logger == nil {
		logger = slog.Default()
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create draft dir: %w", err)
	}
	return &LocalTracker{dir: dir, logger: logger}, nil
}

// CreateDraft implements Tracker. The write is atomic: temp file then
// rename, so a watcher never sees a torn document.
func (t *LocalTracker) CreateDraft(ctx context.Context, d *Draft) (*Status, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if d == nil || d.ArtifactID == "" {
		return nil, ErrInvalidDraft
	}

	data, err := json.MarshalIndent(d, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshal draft: %w", err)
	}

	path := t.path(d.ArtifactID)
	t.mu.Lock()
	defer t.mu.Unlock()

	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return nil, fmt.Errorf("write draft: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return nil, fmt.Errorf("publish draft: %w", err)
	}

	t.logger.Debug("draft filed", "artifact_id", d.ArtifactID, "path", path)
	return &Status{ArtifactID: d.ArtifactID, State: "draft", Location: path}, nil
}

// QueryStatus implements Tracker.
func (t *LocalTracker) QueryStatus(ctx context.Context, artifactID string) (*Status, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	path := t.path(artifactID)
	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrDraftNotFound, artifactID)
		}
		return nil, fmt.Errorf("stat draft: %w", err)
	}
	return &Status{ArtifactID: artifactID, State: "draft", Location: path}, nil
}

// path maps an artifact ID to its draft file. IDs are uppercase
// prefix-hex so lowercasing keeps filenames tame on case-insensitive
// filesystems.
func (t *LocalTracker) path(artifactID string) string {
	return filepath.Join(t.dir, strings.ToLower(artifactID)+".json")
}
