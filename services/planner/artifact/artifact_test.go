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
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// =============================================================================
// Test Helpers
// =============================================================================

func testCapability(t *testing.T, phase string) *Artifact {
	t.Helper()
	art := New(KindCapability, phase)
	art.Summary = "members can invite other members"
	art.Capability = &Capability{
		Name:        "invite members",
		Description: "existing members invite new members by email",
		Category:    "core",
		Priority:    1,
	}
	return art
}

func testDecision(t *testing.T, phase string, serves ...string) *Artifact {
	t.Helper()
	art := New(KindDecision, phase)
	art.Summary = "session auth backed by the existing member directory"
	art.Serves = serves
	art.Decision = &Decision{
		Title:  "authentication",
		Area:   "auth",
		Choice: "directory-backed sessions",
	}
	return art
}

func testWorkItem(t *testing.T, phase string, implements ...string) *Artifact {
	t.Helper()
	art := New(KindWorkItem, phase)
	art.Summary = "build the invite flow"
	art.Implements = implements
	art.WorkItem = &WorkItem{Title: "invite flow", Order: 1}
	return art
}

// =============================================================================
// ID Tests
// =============================================================================

func TestNewID_PrefixesByKind(t *testing.T) {
	tests := []struct {
		kind   Kind
		prefix string
	}{
		{KindCapability, "CAP-"},
		{KindDecision, "DEC-"},
		{KindEntity, "ENT-"},
		{KindWorkItem, "WI-"},
	}

	for _, tt := range tests {
		t.Run(string(tt.kind), func(t *testing.T) {
			id := NewID(tt.kind)
			assert.True(t, strings.HasPrefix(id, tt.prefix), "id %q", id)

			kind, ok := KindOfID(id)
			require.True(t, ok)
			assert.Equal(t, tt.kind, kind)
		})
	}
}

func TestNewID_Unique(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 1000; i++ {
		id := NewID(KindCapability)
		require.False(t, seen[id], "duplicate id %s", id)
		seen[id] = true
	}
}

func TestKindOfID_Unknown(t *testing.T) {
	_, ok := KindOfID("XYZ-12345678")
	assert.False(t, ok)

	_, ok = KindOfID("noprefix")
	assert.False(t, ok)
}

// =============================================================================
// Validation Tests
// =============================================================================

func TestArtifact_Validate(t *testing.T) {
	t.Run("valid capability", func(t *testing.T) {
		assert.NoError(t, testCapability(t, "requirements").Validate())
	})

	t.Run("missing payload and raw", func(t *testing.T) {
		art := New(KindCapability, "requirements")
		art.Summary = "something"
		err := art.Validate()
		assert.ErrorIs(t, err, ErrInvalidArtifact)
	})

	t.Run("legacy raw-only artifact is valid", func(t *testing.T) {
		art := New(KindCapability, "requirements")
		art.Raw = "free text capability from a pre-structured run"
		assert.NoError(t, art.Validate())
	})

	t.Run("payload kind mismatch", func(t *testing.T) {
		art := New(KindCapability, "requirements")
		art.Summary = "s"
		art.Decision = &Decision{Title: "t", Choice: "c"}
		assert.ErrorIs(t, art.Validate(), ErrInvalidArtifact)
	})

	t.Run("multiple payloads", func(t *testing.T) {
		art := testCapability(t, "requirements")
		art.Decision = &Decision{Title: "t", Choice: "c"}
		assert.ErrorIs(t, art.Validate(), ErrInvalidArtifact)
	})

	t.Run("missing summary", func(t *testing.T) {
		art := testCapability(t, "requirements")
		art.Summary = ""
		assert.ErrorIs(t, art.Validate(), ErrInvalidArtifact)
	})

	t.Run("missing source phase", func(t *testing.T) {
		art := testCapability(t, "")
		assert.ErrorIs(t, art.Validate(), ErrInvalidArtifact)
	})

	t.Run("override requires justification", func(t *testing.T) {
		art := testDecision(t, "design")
		art.Overrides = []InvariantOverride{{Property: "audience"}}
		assert.ErrorIs(t, art.Validate(), ErrInvalidArtifact)
	})

	t.Run("justified override is valid", func(t *testing.T) {
		art := testDecision(t, "design")
		art.Overrides = []InvariantOverride{{
			Property:      "audience",
			Justification: "user approved widening the audience at the scope gate",
		}}
		assert.NoError(t, art.Validate())
	})
}

func TestArtifact_Clone(t *testing.T) {
	art := testDecision(t, "design", "CAP-1")
	cp := art.Clone()

	cp.Serves[0] = "CAP-other"
	cp.Decision.Choice = "changed"

	assert.Equal(t, "CAP-1", art.Serves[0])
	assert.Equal(t, "directory-backed sessions", art.Decision.Choice)
}

// =============================================================================
// Derived Status Tests
// =============================================================================

func TestDeriveCapabilityStatus(t *testing.T) {
	cap1 := testCapability(t, "requirements")
	dec := testDecision(t, "design", cap1.ID)
	wi := testWorkItem(t, "workplan", cap1.ID)

	t.Run("uncovered without decisions", func(t *testing.T) {
		got := DeriveCapabilityStatus(cap1.ID, nil, nil)
		assert.Equal(t, StatusUncovered, got)
	})

	t.Run("decided with covering decision", func(t *testing.T) {
		got := DeriveCapabilityStatus(cap1.ID, []*Artifact{dec}, nil)
		assert.Equal(t, StatusDecided, got)
	})

	t.Run("implemented with active work item", func(t *testing.T) {
		got := DeriveCapabilityStatus(cap1.ID, []*Artifact{dec}, []*Artifact{wi})
		assert.Equal(t, StatusImplemented, got)
	})

	t.Run("superseded decision does not cover", func(t *testing.T) {
		stale := testDecision(t, "design", cap1.ID)
		stale.SupersededBy = "DEC-replacement"
		got := DeriveCapabilityStatus(cap1.ID, []*Artifact{stale}, nil)
		assert.Equal(t, StatusUncovered, got)
	})

	t.Run("superseded work item does not implement", func(t *testing.T) {
		stale := testWorkItem(t, "workplan", cap1.ID)
		stale.SupersededBy = "WI-replacement"
		got := DeriveCapabilityStatus(cap1.ID, []*Artifact{dec}, []*Artifact{stale})
		assert.Equal(t, StatusDecided, got)
	})
}
