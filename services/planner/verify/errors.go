// Copyright (C) 2026 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package verify

import "errors"

var (
	// ErrVerificationFailed indicates a pass could not produce a usable
	// report; distinct from a report that contains violations.
	ErrVerificationFailed = errors.New("verification failed")

	// ErrMissingAnchor indicates a verification target without a frozen
	// anchor to verify against.
	ErrMissingAnchor = errors.New("verification target has no anchor")
)
