// Copyright (C) 2026 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package resolve

import "errors"

var (
	// ErrMissingAnchor indicates an assembly attempt without an anchor.
	ErrMissingAnchor = errors.New("resolved context requires an anchor")

	// ErrAnchorNotConfirmed indicates the anchor has not been frozen by
	// user confirmation. Downstream shapes are only assembled from a
	// confirmed identity.
	ErrAnchorNotConfirmed = errors.New("anchor not confirmed")

	// ErrMissingContext indicates AttachWorkItems was called without a
	// resolved context.
	ErrMissingContext = errors.New("missing resolved context")

	// ErrDanglingReference indicates an active artifact references an ID
	// that does not exist in the assembled set.
	ErrDanglingReference = errors.New("dangling artifact reference")

	// ErrKindMismatch indicates AttachWorkItems received an artifact that
	// is not a work item.
	ErrKindMismatch = errors.New("artifact is not a work item")
)
