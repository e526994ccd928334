// Copyright (C) 2026 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

//go:build !windows

package llm

import (
	"golang.org/x/sys/unix"
)

// minMlockLimitKB is the locked-memory headroom memguard wants for its
// enclave buffers. Below this, key pages may be swappable.
const minMlockLimitKB = 1024

// checkMlockLimit reports whether RLIMIT_MEMLOCK leaves enough room for
// sealed key buffers, and the current limit in KB (-1 for unlimited or
// unknown). A probing failure counts as sufficient; the warning exists
// for misconfigured containers, not to block key loading.
func checkMlockLimit() (bool, int64) {
	var rlimit unix.Rlimit
	if err := unix.Getrlimit(unix.RLIMIT_MEMLOCK, &rlimit); err != nil {
		return true, -1
	}
	if rlimit.Cur == unix.RLIM_INFINITY {
		return true, -1
	}
	limitKB := int64(rlimit.Cur / 1024)
	return limitKB >= minMlockLimitKB, limitKB
}
