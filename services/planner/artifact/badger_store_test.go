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

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/wayfinder/services/planner/storage"
)

// createTestStore returns a store backed by an in-memory database.
func createTestStore(t *testing.T) *BadgerStore {
	t.Helper()
	db, err := storage.OpenInMemory()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return NewBadgerStore(db)
}

// =============================================================================
// Append Tests
// =============================================================================

func TestBadgerStore_AppendAndGet(t *testing.T) {
	store := createTestStore(t)
	ctx := context.Background()

	art := testCapability(t, "requirements")
	require.NoError(t, store.Append(ctx, art))

	got, err := store.Get(ctx, art.ID)
	require.NoError(t, err)
	assert.Equal(t, art.ID, got.ID)
	assert.Equal(t, KindCapability, got.Kind)
	assert.Equal(t, art.Capability.Name, got.Capability.Name)
	assert.True(t, got.Active())
}

func TestBadgerStore_AppendDuplicate(t *testing.T) {
	store := createTestStore(t)
	ctx := context.Background()

	art := testCapability(t, "requirements")
	require.NoError(t, store.Append(ctx, art))

	err := store.Append(ctx, art)
	assert.ErrorIs(t, err, ErrDuplicateID)
}

func TestBadgerStore_AppendInvalid(t *testing.T) {
	store := createTestStore(t)

	art := New(KindCapability, "requirements") // no payload, no raw
	err := store.Append(context.Background(), art)
	assert.ErrorIs(t, err, ErrInvalidArtifact)
}

func TestBadgerStore_GetMissing(t *testing.T) {
	store := createTestStore(t)

	_, err := store.Get(context.Background(), "CAP-missing0")
	assert.ErrorIs(t, err, ErrNotFound)
}

// =============================================================================
// Supersession Tests
// =============================================================================

func TestBadgerStore_Supersede(t *testing.T) {
	store := createTestStore(t)
	ctx := context.Background()

	old := testCapability(t, "requirements")
	repl := testCapability(t, "requirements")
	require.NoError(t, store.Append(ctx, old))
	require.NoError(t, store.Append(ctx, repl))

	require.NoError(t, store.Supersede(ctx, old.ID, repl.ID))

	got, err := store.Get(ctx, old.ID)
	require.NoError(t, err)
	assert.Equal(t, repl.ID, got.SupersededBy)
	assert.False(t, got.Active())

	t.Run("active queries exclude superseded", func(t *testing.T) {
		active, err := store.List(ctx, ListOptions{Kind: KindCapability, ActiveOnly: true})
		require.NoError(t, err)
		require.Len(t, active, 1)
		assert.Equal(t, repl.ID, active[0].ID)
	})

	t.Run("link is never rewritten", func(t *testing.T) {
		third := testCapability(t, "requirements")
		require.NoError(t, store.Append(ctx, third))
		err := store.Supersede(ctx, old.ID, third.ID)
		assert.ErrorIs(t, err, ErrAlreadySuperseded)

		// Original link unchanged.
		got, gerr := store.Get(ctx, old.ID)
		require.NoError(t, gerr)
		assert.Equal(t, repl.ID, got.SupersededBy)
	})
}

func TestBadgerStore_SupersedeKindMismatch(t *testing.T) {
	store := createTestStore(t)
	ctx := context.Background()

	capArt := testCapability(t, "requirements")
	decArt := testDecision(t, "design", capArt.ID)
	require.NoError(t, store.Append(ctx, capArt))
	require.NoError(t, store.Append(ctx, decArt))

	err := store.Supersede(ctx, capArt.ID, decArt.ID)
	assert.ErrorIs(t, err, ErrKindMismatch)
}

func TestBadgerStore_SupersedeMissing(t *testing.T) {
	store := createTestStore(t)
	ctx := context.Background()

	art := testCapability(t, "requirements")
	require.NoError(t, store.Append(ctx, art))

	assert.ErrorIs(t, store.Supersede(ctx, "CAP-nothere0", art.ID), ErrNotFound)
	assert.ErrorIs(t, store.Supersede(ctx, art.ID, "CAP-nothere0"), ErrNotFound)
}

// =============================================================================
// List Tests
// =============================================================================

func TestBadgerStore_ListFilters(t *testing.T) {
	store := createTestStore(t)
	ctx := context.Background()

	cap1 := testCapability(t, "requirements")
	cap2 := testCapability(t, "requirements")
	dec := testDecision(t, "design", cap1.ID)
	require.NoError(t, store.Append(ctx, cap1))
	require.NoError(t, store.Append(ctx, cap2))
	require.NoError(t, store.Append(ctx, dec))

	t.Run("by kind", func(t *testing.T) {
		caps, err := store.List(ctx, ListOptions{Kind: KindCapability})
		require.NoError(t, err)
		assert.Len(t, caps, 2)
	})

	t.Run("by phase", func(t *testing.T) {
		arts, err := store.List(ctx, ListOptions{SourcePhase: "design"})
		require.NoError(t, err)
		require.Len(t, arts, 1)
		assert.Equal(t, dec.ID, arts[0].ID)
	})

	t.Run("ordered by id", func(t *testing.T) {
		arts, err := store.List(ctx, ListOptions{})
		require.NoError(t, err)
		require.Len(t, arts, 3)
		for i := 1; i < len(arts); i++ {
			assert.Less(t, arts[i-1].ID, arts[i].ID)
		}
	})
}

func TestBadgerStore_Closed(t *testing.T) {
	store := createTestStore(t)
	require.NoError(t, store.Close())

	ctx := context.Background()
	assert.ErrorIs(t, store.Append(ctx, testCapability(t, "p")), ErrStoreClosed)
	_, err := store.Get(ctx, "CAP-x")
	assert.ErrorIs(t, err, ErrStoreClosed)
	_, err = store.List(ctx, ListOptions{})
	assert.ErrorIs(t, err, ErrStoreClosed)
}

// =============================================================================
// Value Framing Tests
// =============================================================================

func TestDecodeValue_ChecksumMismatch(t *testing.T) {
	art := testCapability(t, "requirements")
	value, err := encodeValue(art)
	require.NoError(t, err)

	// Flip one payload byte; the CRC must catch it.
	value[len(value)-1] ^= 0xFF
	_, err = decodeValue(value)
	assert.ErrorIs(t, err, ErrInvalidArtifact)
}

func TestDecodeValue_TooShort(t *testing.T) {
	_, err := decodeValue([]byte{0x01, 0x02})
	assert.ErrorIs(t, err, ErrInvalidArtifact)
}
