// Copyright (C) 2026 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package artifact

import "errors"

var (
	// ErrNotFound is returned when an artifact ID does not exist.
	ErrNotFound = errors.New("artifact not found")

	// ErrDuplicateID is returned when appending an ID that already exists.
	ErrDuplicateID = errors.New("artifact id already exists")

	// ErrAlreadySuperseded is returned when superseding an artifact whose
	// SupersededBy link is already set. The link is never rewritten.
	ErrAlreadySuperseded = errors.New("artifact already superseded")

	// ErrKindMismatch is returned when a superseding artifact's kind
	// differs from the artifact it replaces.
	ErrKindMismatch = errors.New("superseding artifact kind mismatch")

	// ErrInvalidArtifact is returned when an envelope fails validation.
	ErrInvalidArtifact = errors.New("invalid artifact")

	// ErrStoreClosed is returned by operations on a closed store.
	ErrStoreClosed = errors.New("artifact store closed")
)
