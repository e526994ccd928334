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

import (
	"context"
	"encoding/json"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/wayfinder/services/planner/artifact"
)

func TestDraftFrom(t *testing.T) {
	a := &artifact.Artifact{
		ID:         "WRK-00000001",
		Kind:       artifact.KindWorkItem,
		Summary:    "wire the checkout flow",
		Implements: []string{"CAP-00000001", "CAP-00000002"},
		WorkItem: &artifact.WorkItem{
			Title:       "Wire the checkout flow",
			Description: "Connect cart to payment.",
			Order:       3,
			Effort:      "M",
			DependsOn:   []string{"WRK-00000000"},
			Labels:      []string{"area:payments"},
		},
	}

	d := DraftFrom("RUN-0a0a0a0a", a)
	assert.Equal(t, "Wire the checkout flow", d.Title)
	assert.Equal(t, 3, d.Order)
	assert.Contains(t, d.Labels, "area:payments")
	assert.Contains(t, d.Labels, "run:RUN-0a0a0a0a")
	assert.Contains(t, d.Labels, "implements:CAP-00000001")
	assert.Contains(t, d.Labels, "implements:CAP-00000002")
}

func TestDraftFromRawOnly(t *testing.T) {
	a := &artifact.Artifact{
		ID:      "WRK-00000002",
		Kind:    artifact.KindWorkItem,
		Summary: "migrate the schema",
		Raw:     "migrate the schema before cutover",
	}
	d := DraftFrom("RUN-0a0a0a0a", a)
	assert.Equal(t, "migrate the schema", d.Title)
	assert.Contains(t, d.Labels, "run:RUN-0a0a0a0a")
}

func TestLocalTrackerRoundTrip(t *testing.T) {
	tr, err := NewLocalTracker(t.TempDir(), nil)
	require.NoError(t, err)
	ctx := context.Background()

	d := &Draft{
		ArtifactID: "WRK-00000001",
		RunID:      "RUN-0a0a0a0a",
		Title:      "Wire the checkout flow",
		Labels:     []string{"run:RUN-0a0a0a0a"},
	}
	st, err := tr.CreateDraft(ctx, d)
	require.NoError(t, err)
	assert.Equal(t, "draft", st.State)
	require.FileExists(t, st.Location)

	// File holds the full draft document.
	data, err := os.ReadFile(st.Location)
	require.NoError(t, err)
	var got Draft
	require.NoError(t, json.Unmarshal(data, &got))
	assert.Equal(t, d.Title, got.Title)

	queried, err := tr.QueryStatus(ctx, "WRK-00000001")
	require.NoError(t, err)
	assert.Equal(t, st.Location, queried.Location)
}

func TestLocalTrackerOverwrite(t *testing.T) {
	tr, err := NewLocalTracker(t.TempDir(), nil)
	require.NoError(t, err)
	ctx := context.Background()

	_, err = tr.CreateDraft(ctx, &Draft{ArtifactID: "WRK-00000001", Title: "first"})
	require.NoError(t, err)
	st, err := tr.CreateDraft(ctx, &Draft{ArtifactID: "WRK-00000001", Title: "second"})
	require.NoError(t, err)

	data, err := os.ReadFile(st.Location)
	require.NoError(t, err)
	assert.Contains(t, string(data), "second")
}

func TestLocalTrackerErrors(t *testing.T) {
	tr, err := NewLocalTracker(t.TempDir(), nil)
	require.NoError(t, err)
	ctx := context.Background()

	_, err = tr.CreateDraft(ctx, nil)
	assert.ErrorIs(t, err, ErrInvalidDraft)

	_, err = tr.QueryStatus(ctx, "WRK-missing")
	assert.ErrorIs(t, err, ErrDraftNotFound)
}
