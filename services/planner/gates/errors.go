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

import "errors"

var (
	// ErrInvalidDecision is returned when a decision fails validation.
	ErrInvalidDecision = errors.New("invalid gate decision")

	// ErrInvalidPresentation is returned when a presentation is missing
	// required fields.
	ErrInvalidPresentation = errors.New("invalid gate presentation")

	// ErrChannelClosed is returned when presenting on a closed channel.
	ErrChannelClosed = errors.New("gate channel closed")
)
