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
	"encoding/binary"
	"errors"
	"fmt"
	"hash/crc32"
)

var (
	// ErrFrameTooShort is returned when a value is shorter than its
	// checksum header.
	ErrFrameTooShort = errors.New("storage: value shorter than checksum frame")

	// ErrChecksumMismatch is returned when a stored value fails its
	// integrity check, typically a torn write.
	ErrChecksumMismatch = errors.New("storage: value checksum mismatch")
)

// FrameChecksum prefixes payload with a CRC32 so torn writes are caught
// on read instead of surfacing as corrupt records downstream. Every
// record value in the keyspace uses this frame.
func FrameChecksum(payload []byte) []byte {
	buf := make([]byte, 4+len(payload))
	binary.BigEndian.PutUint32(buf[:4], crc32.ChecksumIEEE(payload))
	copy(buf[4:], payload)
	return buf
}

// UnframeChecksum verifies the CRC32 header and returns the payload.
func UnframeChecksum(raw []byte) ([]byte, error) {
	if len(raw) < 4 {
		return nil, ErrFrameTooShort
	}
	want := binary.BigEndian.Uint32(raw[:4])
	payload := raw[4:]
	if got := crc32.ChecksumIEEE(payload); got != want {
		return nil, fmt.Errorf("%w: have %08x, want %08x", ErrChecksumMismatch, got, want)
	}
	return payload, nil
}
