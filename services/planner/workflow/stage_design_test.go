// Copyright (C) 2026 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package workflow

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/wayfinder/services/planner/artifact"
	"github.com/AleutianAI/wayfinder/services/planner/diff"
)

func TestProposeDecisions_CoversCapabilities(t *testing.T) {
	ctx := context.Background()
	store, gen := newStageHarness(t)
	seedCapability(t, store, "CAP-00000001", "track loans")
	seedCapability(t, store, "CAP-00000002", "browse the shed")

	gen.Stub(StageProposeDecisions, `{"decisions": [
		{"title": "loan storage", "area": "storage", "choice": "embedded key-value store",
		 "rationale": "single block, no server to run", "alternatives": ["hosted database"],
		 "serves": ["CAP-00000001", "CAP-00000002"],
		 "summary": "loans and inventory live in an embedded store on the organizer's machine"}
	]}`)

	exec := newProposeDecisions(ExecutorConfig{Generator: gen})
	res, err := exec.Execute(ctx, testStageContext(store, confidentAnchor(), PhaseDesign, StageProposeDecisions))
	require.NoError(t, err)
	require.Len(t, res.ArtifactIDs, 1)

	stored, err := store.Get(ctx, res.ArtifactIDs[0])
	require.NoError(t, err)
	assert.Equal(t, artifact.KindDecision, stored.Kind)
	assert.Equal(t, []string{"CAP-00000001", "CAP-00000002"}, stored.Serves)
	assert.Equal(t, "loan storage", stored.Decision.Title)
	assert.Equal(t, []string{"hosted database"}, stored.Decision.Alternatives)
}

func TestProposeDecisions_DiffScopesContext(t *testing.T) {
	ctx := context.Background()
	store, gen := newStageHarness(t)
	seedCapability(t, store, "CAP-00000001", "track loans")
	seedCapability(t, store, "CAP-00000002", "browse the shed")

	gen.Stub(StageProposeDecisions, `{"decisions": [
		{"title": "shed index", "choice": "derived view over loans",
		 "serves": ["CAP-00000002"], "summary": "availability is computed, never stored"}
	]}`)

	exec := newProposeDecisions(ExecutorConfig{Generator: gen})
	sc := testStageContext(store, confidentAnchor(), PhaseDesign, StageProposeDecisions)
	sc.Diff = &diff.Diff{Uncovered: []string{"CAP-00000002"}}

	_, err := exec.Execute(ctx, sc)
	require.NoError(t, err)

	// Only the capability needing coverage made it into the prompt.
	reqs := gen.Requests()
	require.Len(t, reqs, 1)
	assert.Contains(t, reqs[0].Prompt, "CAP-00000002")
	assert.NotContains(t, reqs[0].Prompt, "CAP-00000001")
}

func TestProposeDecisions_UnknownReferenceGetsOneRetry(t *testing.T) {
	ctx := context.Background()
	store, gen := newStageHarness(t)
	seedCapability(t, store, "CAP-00000001", "track loans")

	gen.Stub(StageProposeDecisions,
		`{"decisions": [{"title": "t", "choice": "c", "serves": ["CAP-ffffffff"], "summary": "s"}]}`,
		`{"decisions": [{"title": "t", "choice": "c", "serves": ["CAP-00000001"], "summary": "s"}]}`)

	exec := newProposeDecisions(ExecutorConfig{Generator: gen})
	res, err := exec.Execute(ctx, testStageContext(store, confidentAnchor(), PhaseDesign, StageProposeDecisions))
	require.NoError(t, err)
	require.Len(t, res.ArtifactIDs, 1)

	reqs := gen.Requests()
	require.Len(t, reqs, 2)
	assert.NotEmpty(t, reqs[1].Feedback, "the bad reference went back to the model")
}

func TestProposeDecisions_PersistentBadReferenceIsPermanent(t *testing.T) {
	ctx := context.Background()
	store, gen := newStageHarness(t)
	seedCapability(t, store, "CAP-00000001", "track loans")

	gen.Stub(StageProposeDecisions,
		`{"decisions": [{"title": "t", "choice": "c", "serves": ["CAP-ffffffff"], "summary": "s"}]}`)

	exec := newProposeDecisions(ExecutorConfig{Generator: gen})
	_, err := exec.Execute(ctx, testStageContext(store, confidentAnchor(), PhaseDesign, StageProposeDecisions))
	require.ErrorIs(t, err, ErrStagePermanent)

	active, err := listActive(ctx, store, artifact.KindDecision)
	require.NoError(t, err)
	assert.Empty(t, active)
}

func TestProposeDecisions_InvariantOverridesRecorded(t *testing.T) {
	ctx := context.Background()
	store, gen := newStageHarness(t)
	seedCapability(t, store, "CAP-00000001", "track loans")

	gen.Stub(StageProposeDecisions, `{"decisions": [
		{"title": "backup copy", "choice": "nightly export off the block",
		 "serves": ["CAP-00000001"], "summary": "nightly off-site export",
		 "invariant_overrides": [
			{"property": "tenancy", "justification": "the backup leaves the block so the data survives a house fire"}
		 ]}
	]}`)

	exec := newProposeDecisions(ExecutorConfig{Generator: gen})
	res, err := exec.Execute(ctx, testStageContext(store, confidentAnchor(), PhaseDesign, StageProposeDecisions))
	require.NoError(t, err)

	stored, err := store.Get(ctx, res.ArtifactIDs[0])
	require.NoError(t, err)
	require.Len(t, stored.Overrides, 1)
	assert.Equal(t, "tenancy", stored.Overrides[0].Property)
	assert.NotEmpty(t, stored.Overrides[0].Justification)
}

func TestModelEntities_ServesDecisions(t *testing.T) {
	ctx := context.Background()
	store, gen := newStageHarness(t)
	seedCapability(t, store, "CAP-00000001", "track loans")
	seedDecision(t, store, "DEC-00000001", "loan storage", []string{"CAP-00000001"})

	gen.Stub(StageModelEntities, `{"entities": [
		{"name": "Loan", "description": "one tool lent to one neighbor",
		 "attributes": [
			{"name": "tool", "type": "ref:Tool", "required": true},
			{"name": "borrower", "type": "ref:Neighbor", "required": true},
			{"name": "returned_at", "type": "timestamp"}
		 ],
		 "serves": ["DEC-00000001"], "summary": "a Loan links a Tool to the Neighbor holding it"}
	]}`)

	exec := newModelEntities(ExecutorConfig{Generator: gen})
	res, err := exec.Execute(ctx, testStageContext(store, confidentAnchor(), PhaseDesign, StageModelEntities))
	require.NoError(t, err)
	require.Len(t, res.ArtifactIDs, 1)

	stored, err := store.Get(ctx, res.ArtifactIDs[0])
	require.NoError(t, err)
	assert.Equal(t, artifact.KindEntity, stored.Kind)
	assert.Equal(t, "Loan", stored.Entity.Name)
	require.Len(t, stored.Entity.Attributes, 3)
	assert.True(t, stored.Entity.Attributes[0].Required)
	assert.Equal(t, []string{"DEC-00000001"}, stored.Serves)
}

func TestModelEntities_UnknownDecisionIsPermanent(t *testing.T) {
	ctx := context.Background()
	store, gen := newStageHarness(t)
	seedDecision(t, store, "DEC-00000001", "loan storage", nil)

	gen.Stub(StageModelEntities, `{"entities": [
		{"name": "Loan", "serves": ["DEC-ffffffff"], "summary": "s"}
	]}`)

	exec := newModelEntities(ExecutorConfig{Generator: gen})
	_, err := exec.Execute(ctx, testStageContext(store, confidentAnchor(), PhaseDesign, StageModelEntities))
	require.ErrorIs(t, err, ErrStagePermanent)
}

func TestSketchInterface_EmitsInterfaceDecisions(t *testing.T) {
	ctx := context.Background()
	store, gen := newStageHarness(t)
	seedCapability(t, store, "CAP-00000001", "track loans")

	gen.Stub(StageSketchInterface, `{"decisions": [
		{"title": "shed board", "area": "interface",
		 "choice": "one shared screen listing every tool with its holder",
		 "serves": ["CAP-00000001"], "summary": "a single shed board screen, no per-user views"}
	]}`)

	exec := newSketchInterface(ExecutorConfig{Generator: gen})
	res, err := exec.Execute(ctx, testStageContext(store, confidentAnchor(), PhaseDesign, StageSketchInterface))
	require.NoError(t, err)
	require.Len(t, res.ArtifactIDs, 1)

	stored, err := store.Get(ctx, res.ArtifactIDs[0])
	require.NoError(t, err)
	assert.Equal(t, artifact.KindDecision, stored.Kind)
	assert.Equal(t, "interface", stored.Decision.Area)
}
