// Copyright (C) 2026 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package state

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// lockFileName is the advisory lock inside the data directory.
const lockFileName = "wayfinder.lock"

// lockInfo describes the holder, written into the lock file for
// diagnostics. The flock itself is what keeps processes out.
type lockInfo struct {
	PID        int    `json:"pid"`
	Hostname   string `json:"hostname"`
	AcquiredAt int64  `json:"acquired_at"`
}

// DirLock is an exclusive advisory lock on the data directory, so two
// engine processes never share one store.
//
// # Description
//
// Backed by flock(2) on Unix; released automatically if the process
// dies. On platforms without a real locker the holder info file plus a
// PID liveness check stands in.
//
// # Thread Safety
//
// A DirLock belongs to the goroutine tree that acquired it. Acquire is
// safe to race from multiple processes; exactly one wins.
type DirLock struct {
	path string
	file *os.File
}

// AcquireDirLock takes the exclusive lock for dir, creating the
// directory as needed. Non-blocking.
//
// Errors: ErrDirLocked when another live process holds the directory,
// with the holder described when known.
func AcquireDirLock(dir string) (*DirLock, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create data dir %s: %w", dir, err)
	}
	path := filepath.Join(dir, lockFileName)

	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open lock file %s: %w", path, err)
	}

	if err := lockFile(f); err != nil {
		holder := readLockInfo(path)
		_ = f.Close()
		if errors.Is(err, ErrDirLocked) {
			return nil, lockedError(dir, holder)
		}
		return nil, fmt.Errorf("lock %s: %w", path, err)
	}

	if lockNeedsPIDFallback {
		if holder := readLockInfo(path); holder != nil && holder.PID != os.Getpid() && isProcessAlive(holder.PID) {
			_ = unlockFile(f)
			_ = f.Close()
			return nil, lockedError(dir, holder)
		}
	}

	info := lockInfo{PID: os.Getpid(), AcquiredAt: time.Now().UTC().UnixMilli()}
	info.Hostname, _ = os.Hostname()
	data, err := json.MarshalIndent(&info, "", "  ")
	if err == nil {
		err = os.WriteFile(path, data, 0o644)
	}
	if err != nil {
		_ = unlockFile(f)
		_ = f.Close()
		return nil, fmt.Errorf("write lock info %s: %w", path, err)
	}

	return &DirLock{path: path, file: f}, nil
}

// Release lets the directory go. The lock file stays behind: removing
// it would race a newly acquired lock on the same inode, and the flock
// itself is what keeps other processes out. Holder info is cleared so
// platforms on the PID fallback see the directory as free.
func (l *DirLock) Release() error {
	err := l.file.Truncate(0)
	if uerr := unlockFile(l.file); err == nil {
		err = uerr
	}
	if cerr := l.file.Close(); err == nil {
		err = cerr
	}
	return err
}

// Path returns the lock file location.
func (l *DirLock) Path() string { return l.path }

func lockedError(dir string, holder *lockInfo) error {
	if holder == nil {
		return fmt.Errorf("%w: %s", ErrDirLocked, dir)
	}
	return fmt.Errorf("%w: %s held by pid %d on %s since %s",
		ErrDirLocked, dir, holder.PID, holder.Hostname,
		time.UnixMilli(holder.AcquiredAt).UTC().Format(time.RFC3339))
}

// readLockInfo best-effort reads the holder info. Nil when unreadable.
func readLockInfo(path string) *lockInfo {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil
	}
	var info lockInfo
	if err := json.Unmarshal(data, &info); err != nil {
		return nil
	}
	return &info
}
