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

import "errors"

var (
	// ErrInvalidDraft is returned for a nil draft or one without an
	// artifact ID.
	ErrInvalidDraft = errors.New("tracker: invalid draft")

	// ErrDraftNotFound is returned when QueryStatus is asked about an
	// artifact that was never filed.
	ErrDraftNotFound = errors.New("tracker: draft not found")
)
