// Copyright (C) 2026 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

//go:build windows

package state

import "os"

// Windows relies on the holder info file until LockFileEx is wired in.
const lockNeedsPIDFallback = true

// lockFile is a no-op on Windows.
//
// TODO: implement with LockFileEx via golang.org/x/sys/windows.
func lockFile(_ *os.File) error { return nil }

// unlockFile is a no-op on Windows.
//
// TODO: implement with UnlockFileEx via golang.org/x/sys/windows.
func unlockFile(_ *os.File) error { return nil }

// isProcessAlive reports whether pid refers to a live process.
//
// TODO: implement with OpenProcess via golang.org/x/sys/windows. Until
// then holders on Windows are assumed live so a crashed process leaves
// the directory locked until the info file is removed by hand.
func isProcessAlive(pid int) bool { return pid > 0 }
