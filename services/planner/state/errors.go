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

import "errors"

var (
	// ErrNotFound is returned when a run or revision does not exist.
	ErrNotFound = errors.New("run state not found")

	// ErrInvalidState is returned when a state snapshot fails validation.
	ErrInvalidState = errors.New("invalid run state")

	// ErrRevisionConflict is returned when a save skips or repeats a
	// revision. Revisions are strictly monotonic, one per transition.
	ErrRevisionConflict = errors.New("state revision conflict")

	// ErrSchemaIncompatible is returned when a snapshot's schema major
	// version differs from this build's.
	ErrSchemaIncompatible = errors.New("state schema incompatible")

	// ErrStoreClosed is returned by operations on a closed store.
	ErrStoreClosed = errors.New("state store closed")

	// ErrDirLocked is returned when another live process holds the data
	// directory.
	ErrDirLocked = errors.New("data directory locked by another process")
)
