// Copyright (C) 2026 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package gates

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/fsnotify/fsnotify"
)

const decisionBuffer = 16

// FileChannel is the watched decision-file gate channel.
//
// # Description
//
// Presentations are written as JSON to <dir>/pending/<gate-id>.json for
// the human (or an external tool) to inspect. A decision is made by
// dropping a JSON decision file into <dir>/decisions/; the channel
// watches that directory with fsnotify, parses each drop, and emits it on
// Decisions. Consumed decision files are removed; files that fail to
// parse are left in place and retried on the next write event, so a
// half-written file resolves itself once the writer finishes.
//
// # Thread Safety
//
// Safe for concurrent use. One goroutine owns the watcher and is the
// only sender on the decisions stream.
type FileChannel struct {
	pendingDir   string
	decisionsDir string
	watcher      *fsnotify.Watcher
	decisions    chan Decision
	done         chan struct{}
	logger       *slog.Logger
	closeOnce    sync.Once
	closeErr     error
}

var _ Channel = (*FileChannel)(nil)

// NewFileChannel creates the channel rooted at dir, creating the
// pending/ and decisions/ subdirectories as needed.
func NewFileChannel(dir string, logger *slog.Logger) (*FileChannel, error) {
	if logger == nil {
		logger = slog.Default()
	}

	pendingDir := filepath.Join(dir, "pending")
	decisionsDir := filepath.Join(dir, "decisions")
	for _, d := range []string{pendingDir, decisionsDir} {
		if err := os.MkdirAll(d, 0o755); err != nil {
			return nil, fmt.Errorf("creating gate directory %s: %w", d, err)
		}
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("creating decision watcher: %w", err)
	}
	if err := watcher.Add(decisionsDir); err != nil {
		_ = watcher.Close()
		return nil, fmt.Errorf("watching %s: %w", decisionsDir, err)
	}

	c := &FileChannel{
		pendingDir:   pendingDir,
		decisionsDir: decisionsDir,
		watcher:      watcher,
		decisions:    make(chan Decision, decisionBuffer),
		done:         make(chan struct{}),
		logger:       logger,
	}
	go c.watchLoop()
	return c, nil
}

// Present writes the presentation to the pending directory.
func (c *FileChannel) Present(ctx context.Context, p *Presentation) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := p.Validate(); err != nil {
		return err
	}

	data, err := json.MarshalIndent(p, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal presentation %s: %w", p.ID, err)
	}
	path := filepath.Join(c.pendingDir, p.ID+".json")
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write presentation %s: %w", p.ID, err)
	}

	c.logger.Info("Gate presented for decision",
		"gate_id", p.ID,
		"run_id", p.RunID,
		"phase", p.Phase,
		"type", p.Type,
		"path", path)
	return nil
}

// Decisions implements Channel.
func (c *FileChannel) Decisions() <-chan Decision {
	return c.decisions
}

// Close stops the watcher. Pending presentation files are left behind
// for inspection.
func (c *FileChannel) Close() error {
	c.closeOnce.Do(func() {
		close(c.done)
		c.closeErr = c.watcher.Close()
	})
	return c.closeErr
}

// Retract removes a pending presentation file once its gate is decided.
func (c *FileChannel) Retract(gateID string) {
	path := filepath.Join(c.pendingDir, gateID+".json")
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		c.logger.Warn("Failed to remove decided presentation",
			"gate_id", gateID,
			"error", err)
	}
}

// watchLoop handles fsnotify events until the watcher closes. Sole
// sender on the decisions stream.
func (c *FileChannel) watchLoop() {
	defer close(c.decisions)
	for {
		select {
		case event, ok := <-c.watcher.Events:
			if !ok {
				return
			}
			if event.Op&(fsnotify.Create|fsnotify.Write) == 0 {
				continue
			}
			if !strings.HasSuffix(event.Name, ".json") {
				continue
			}
			c.consume(event.Name)

		case err, ok := <-c.watcher.Errors:
			if !ok {
				return
			}
			c.logger.Warn("Decision watcher error",
				"error", err)
		}
	}
}

// consume parses one dropped decision file and emits it.
func (c *FileChannel) consume(path string) {
	data, err := os.ReadFile(path)
	if err != nil {
		if !os.IsNotExist(err) {
			c.logger.Warn("Failed to read decision file",
				"path", path,
				"error", err)
		}
		return
	}

	var d Decision
	if err := json.Unmarshal(data, &d); err != nil {
		// Likely a half-written file; the writer's final write event
		// will bring us back here.
		c.logger.Debug("Decision file not yet parseable",
			"path", path,
			"error", err)
		return
	}
	if err := d.Validate(); err != nil {
		c.logger.Warn("Dropped invalid decision file",
			"path", path,
			"error", err)
		return
	}

	if err := os.Remove(path); err != nil {
		if os.IsNotExist(err) {
			// Another event already consumed this file.
			return
		}
		c.logger.Warn("Failed to remove consumed decision file",
			"path", path,
			"error", err)
	}

	select {
	case c.decisions <- d:
		c.logger.Info("Decision received from drop directory",
			"gate_id", d.GateID,
			"action", d.Action)
	case <-c.done:
	}
}
