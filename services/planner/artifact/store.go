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

import "context"

// ListOptions filters a Store.List call. Zero value lists everything.
type ListOptions struct {
	// Kind restricts results to one kind when non-empty.
	Kind Kind

	// ActiveOnly drops superseded artifacts.
	ActiveOnly bool

	// SourcePhase restricts results to one producing phase when non-empty.
	SourcePhase string
}

// Store is the append-only artifact store.
//
// # Description
//
// The store exposes no update-in-place operation. The only permitted
// mutation of an existing record is setting its SupersededBy link, once,
// through Supersede. Results from Get and List are defensive copies;
// callers may not reach the store's internal state through them.
//
// # Thread Safety
//
// Implementations are safe for concurrent use. The workflow engine is the
// only writer by convention; readers are unrestricted.
type Store interface {
	// Append validates and persists a new artifact.
	//
	// Errors: ErrInvalidArtifact, ErrDuplicateID, ErrStoreClosed.
	Append(ctx context.Context, art *Artifact) error

	// Supersede sets oldID's SupersededBy link to newID. Both artifacts
	// must exist, share a kind, and oldID must still be active.
	//
	// Errors: ErrNotFound, ErrAlreadySuperseded, ErrKindMismatch,
	// ErrStoreClosed.
	Supersede(ctx context.Context, oldID, newID string) error

	// Get returns the artifact with the given ID.
	//
	// Errors: ErrNotFound, ErrStoreClosed.
	Get(ctx context.Context, id string) (*Artifact, error)

	// List returns artifacts matching opts, ordered by ID.
	//
	// Errors: ErrStoreClosed.
	List(ctx context.Context, opts ListOptions) ([]*Artifact, error)

	// Close releases the store.
	Close() error
}
