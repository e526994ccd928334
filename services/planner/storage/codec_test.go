// Copyright (C) 2026 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package storage

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFrameChecksum_RoundTrip(t *testing.T) {
	payload := []byte(`{"id":"CAP-00000001"}`)
	framed := FrameChecksum(payload)
	require.Len(t, framed, len(payload)+4)

	got, err := UnframeChecksum(framed)
	require.NoError(t, err)
	assert.Equal(t, payload, got)
}

func TestFrameChecksum_EmptyPayload(t *testing.T) {
	framed := FrameChecksum(nil)
	got, err := UnframeChecksum(framed)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestUnframeChecksum_TooShort(t *testing.T) {
	_, err := UnframeChecksum([]byte{0x01, 0x02})
	assert.ErrorIs(t, err, ErrFrameTooShort)
}

func TestUnframeChecksum_Corruption(t *testing.T) {
	framed := FrameChecksum([]byte("pipeline state rev 12"))
	framed[len(framed)-1] ^= 0xFF

	_, err := UnframeChecksum(framed)
	assert.ErrorIs(t, err, ErrChecksumMismatch)
}
