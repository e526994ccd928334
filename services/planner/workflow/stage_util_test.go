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
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/wayfinder/services/planner/anchor"
	"github.com/AleutianAI/wayfinder/services/planner/artifact"
	"github.com/AleutianAI/wayfinder/services/planner/llm"
	"github.com/AleutianAI/wayfinder/services/planner/llm/llmtest"
	"github.com/AleutianAI/wayfinder/services/planner/state"
	"github.com/AleutianAI/wayfinder/services/planner/storage"
)

// newStageHarness builds an in-memory artifact store and a scripted
// generator for executor tests.
func newStageHarness(t *testing.T) (artifact.Store, *llmtest.Generator) {
	t.Helper()
	db, err := storage.OpenInMemory()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return artifact.NewBadgerStore(db), llmtest.New()
}

// testStageContext builds a StageContext for one executor call.
func testStageContext(store artifact.Store, a *anchor.Anchor, phase, stage string) *StageContext {
	return &StageContext{
		Run:       state.New("RUN-0a0a0a0a", "a tool lending ledger for one city block"),
		Phase:     phase,
		Stage:     stage,
		Attempt:   1,
		Anchor:    a,
		Artifacts: store,
	}
}

func seedCapability(t *testing.T, store artifact.Store, id, name string) {
	t.Helper()
	a := artifact.New(artifact.KindCapability, PhaseCapabilities)
	a.ID = id
	a.Summary = name
	a.Capability = &artifact.Capability{Name: name, Description: name}
	require.NoError(t, store.Append(context.Background(), a))
}

func seedDecision(t *testing.T, store artifact.Store, id, title string, serves []string) {
	t.Helper()
	a := artifact.New(artifact.KindDecision, PhaseDesign)
	a.ID = id
	a.Summary = title
	a.Serves = serves
	a.Decision = &artifact.Decision{Title: title, Choice: title}
	require.NoError(t, store.Append(context.Background(), a))
}

func TestGenerateDecoded_FeedbackThenPermanent(t *testing.T) {
	ctx := context.Background()
	gen := llmtest.New()
	gen.Stub("s", `not json`, `{"capabilities": [{"name": "n", "description": "d", "summary": "s"}]}`)

	var out wireCapabilityList
	req := &llm.Request{Stage: "s", JSONMode: true}
	require.NoError(t, generateDecoded(ctx, gen, req, &out, nil))
	require.Len(t, out.Capabilities, 1)

	// The retry carried the decode error back to the model.
	reqs := gen.Requests()
	require.Len(t, reqs, 2)
	assert.Empty(t, reqs[0].Feedback)
	assert.NotEmpty(t, reqs[1].Feedback)

	// Two bad completions exhaust the inner loop permanently.
	gen2 := llmtest.New()
	gen2.Stub("s", `not json`)
	err := generateDecoded(ctx, gen2, &llm.Request{Stage: "s"}, &out, nil)
	require.ErrorIs(t, err, ErrStagePermanent)
}

func TestGenerateDecoded_TransportErrorIsNotPermanent(t *testing.T) {
	gen := llmtest.New()
	gen.StubError("s", errors.New("connection refused"))

	var out wireCapabilityList
	err := generateDecoded(context.Background(), gen, &llm.Request{Stage: "s"}, &out, nil)
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrStagePermanent)
	assert.Equal(t, 1, gen.CallCount("s"), "transport failures do not spend the feedback retry")
}

func TestSupersedePrior_MatchesByName(t *testing.T) {
	ctx := context.Background()
	store, _ := newStageHarness(t)

	seedCapability(t, store, "CAP-00000001", "track loans")
	seedCapability(t, store, "CAP-00000002", "send reminders")

	repl := artifact.New(artifact.KindCapability, PhaseCapabilities)
	repl.ID = "CAP-00000003"
	repl.Summary = "track loans, revised"
	repl.Capability = &artifact.Capability{Name: "track loans", Description: "revised"}
	require.NoError(t, store.Append(ctx, repl))

	prior := []string{"CAP-00000001", "CAP-00000002"}
	require.NoError(t, supersedePrior(ctx, store, prior, []*artifact.Artifact{repl}, capabilityName))

	// The name match links the revised capability to its namesake; the
	// unmatched one falls back to the first replacement so nothing stale
	// stays active.
	old1, err := store.Get(ctx, "CAP-00000001")
	require.NoError(t, err)
	assert.Equal(t, "CAP-00000003", old1.SupersededBy)

	old2, err := store.Get(ctx, "CAP-00000002")
	require.NoError(t, err)
	assert.Equal(t, "CAP-00000003", old2.SupersededBy)

	active, err := listActive(ctx, store, artifact.KindCapability)
	require.NoError(t, err)
	require.Len(t, active, 1)
	assert.Equal(t, "CAP-00000003", active[0].ID)
}

func TestCheckRefs(t *testing.T) {
	allowed := map[string]bool{"CAP-00000001": true}
	require.NoError(t, checkRefs(nil, allowed, "serves"))
	require.NoError(t, checkRefs([]string{"CAP-00000001"}, allowed, "serves"))

	err := checkRefs([]string{"CAP-ffffffff"}, allowed, "serves")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "CAP-ffffffff")
}
