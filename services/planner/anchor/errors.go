// Copyright (C) 2026 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package anchor

import "errors"

var (
	// ErrInvalidAnchor indicates a structurally broken anchor.
	ErrInvalidAnchor = errors.New("invalid anchor")

	// ErrAnchorFrozen indicates a mutation attempt after confirmation.
	ErrAnchorFrozen = errors.New("anchor is frozen")

	// ErrUnknownInvariant indicates a clarification for an invariant the
	// anchor does not contain.
	ErrUnknownInvariant = errors.New("unknown invariant")

	// ErrUnknownOption indicates a clarification option id that does not
	// exist on the targeted invariant.
	ErrUnknownOption = errors.New("unknown clarification option")

	// ErrAmbiguityUnresolved indicates a confirmation attempt while
	// invariants still need clarification.
	ErrAmbiguityUnresolved = errors.New("ambiguity unresolved")

	// ErrExtractionFailed indicates the extractor could not produce a
	// valid anchor even after corrective feedback.
	ErrExtractionFailed = errors.New("anchor extraction failed")
)
