// Copyright (C) 2026 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Cross-package test: drives a full planning run through the assembled
// service, from idea to exported specification, with a scripted model
// backend. Run with: go test ./test/integration/...
package integration

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/wayfinder/services/planner"
	"github.com/AleutianAI/wayfinder/services/planner/artifact"
	"github.com/AleutianAI/wayfinder/services/planner/config"
	"github.com/AleutianAI/wayfinder/services/planner/gates"
	"github.com/AleutianAI/wayfinder/services/planner/llm"
	"github.com/AleutianAI/wayfinder/services/planner/state"
	"github.com/AleutianAI/wayfinder/services/planner/workflow"
)

// storeBackedGenerator scripts completions per stage. Unlike a static
// stub it can read the artifact store at call time, which later stages
// need: their output must reference IDs minted by earlier stages in the
// same advance.
type storeBackedGenerator struct {
	scripts map[string]func(ctx context.Context, req *llm.Request) string
}

func (g *storeBackedGenerator) Name() string  { return "scripted" }
func (g *storeBackedGenerator) Model() string { return "scripted-test-model" }

func (g *storeBackedGenerator) Generate(ctx context.Context, req *llm.Request) (*llm.Result, error) {
	fn, ok := g.scripts[req.Stage]
	if !ok {
		return nil, fmt.Errorf("no script for stage %q", req.Stage)
	}
	return &llm.Result{Raw: fn(ctx, req), Model: g.Model()}, nil
}

func (g *storeBackedGenerator) static(stage, raw string) {
	g.scripts[stage] = func(context.Context, *llm.Request) string { return raw }
}

// activeIDs lists active artifact IDs of one kind, in store order.
func activeIDs(t *testing.T, store artifact.Store, kind artifact.Kind) []string {
	t.Helper()
	arts, err := store.List(context.Background(), artifact.ListOptions{Kind: kind, ActiveOnly: true})
	require.NoError(t, err)
	ids := make([]string, 0, len(arts))
	for _, a := range arts {
		ids = append(ids, a.ID)
	}
	return ids
}

// firstActiveID is activeIDs without the test helpers: verifier passes
// call their scripts from worker goroutines, where failing the test is
// not allowed.
func firstActiveID(ctx context.Context, store artifact.Store, kind artifact.Kind) string {
	arts, err := store.List(ctx, artifact.ListOptions{Kind: kind, ActiveOnly: true})
	if err != nil || len(arts) == 0 {
		return ""
	}
	return arts[0].ID
}

// soleInvariantID reads the single run's first anchor invariant ID.
func soleInvariantID(ctx context.Context, svc *planner.Service) string {
	runs, err := svc.States().Runs(ctx)
	if err != nil || len(runs) != 1 {
		return ""
	}
	st, err := svc.States().Load(ctx, runs[0])
	if err != nil || st.Anchor == nil || len(st.Anchor.Invariants) == 0 {
		return ""
	}
	return st.Anchor.Invariants[0].ID
}

func approve(t *testing.T, st *state.State) *gates.Decision {
	t.Helper()
	require.NotNil(t, st.PendingGate, "run should be suspended on a gate")
	return &gates.Decision{
		GateID:    st.PendingGate.ID,
		Action:    gates.ActionApprove,
		DecidedBy: "integration-test",
	}
}

func TestFullPipelineRun(t *testing.T) {
	ctx := context.Background()

	cfg := config.DefaultConfig()
	cfg.Service.DataDir = t.TempDir()
	cfg.Gates.Dir = ""
	cfg.Export.Dir = filepath.Join(cfg.Service.DataDir, "exports")

	gen := &storeBackedGenerator{scripts: map[string]func(context.Context, *llm.Request) string{}}
	gen.static(workflow.StageValidateIdea,
		`{"viable": true, "reasons": [], "has_user_interface": true}`)
	gen.static(workflow.StageDistillAnchor, `{
		"goal": "a reading list tracker for one book club",
		"explicit_constraints": ["no accounts beyond the club roster"],
		"non_goals": ["a social network"],
		"identity_features": [
			{"name": "club-scoped", "description": "one club, one shared list", "drift_risk": "regenerates as a general reading platform"}
		],
		"invariants": [
			{"property": "tenancy", "value": "single club", "source_quote": "for one book club", "confidence": 0.95}
		]
	}`)
	// No drift anywhere; every boundary check comes back clean.
	for _, pass := range []string{"verify_invariants", "verify_genericization", "verify_consistency"} {
		gen.static(pass, `{"violations": []}`)
	}
	gen.static(workflow.StageProposeCapabilities, `{"capabilities": [
		{"name": "track books", "description": "record what the club is reading and has read",
		 "category": "core", "priority": 1,
		 "acceptance_criteria": ["a book shows its reading status"],
		 "summary": "record the club's books with reading status"},
		{"name": "vote on next book", "description": "members pick the next read",
		 "category": "core", "priority": 2,
		 "acceptance_criteria": ["one vote per member"],
		 "summary": "vote on the next book, one vote per member"}
	]}`)

	var svc *planner.Service
	gen.scripts[workflow.StageProposeDecisions] = func(context.Context, *llm.Request) string {
		caps := activeIDs(t, svc.Artifacts(), artifact.KindCapability)
		return fmt.Sprintf(`{"decisions": [
			{"title": "list storage", "area": "storage", "choice": "embedded key-value store",
			 "rationale": "one club, no server", "alternatives": ["hosted database"],
			 "serves": ["%s"], "summary": "the list lives in an embedded store"}
		]}`, strings.Join(caps, `", "`))
	}
	gen.scripts[workflow.StageModelEntities] = func(context.Context, *llm.Request) string {
		decs := activeIDs(t, svc.Artifacts(), artifact.KindDecision)
		return fmt.Sprintf(`{"entities": [
			{"name": "Book", "description": "one book on the club list",
			 "attributes": [
				{"name": "title", "type": "string", "required": true},
				{"name": "status", "type": "enum:queued,reading,done", "required": true}
			 ],
			 "serves": ["%s"], "summary": "a Book carries its title and reading status"}
		]}`, decs[0])
	}
	gen.scripts[workflow.StageSketchInterface] = func(context.Context, *llm.Request) string {
		caps := activeIDs(t, svc.Artifacts(), artifact.KindCapability)
		return fmt.Sprintf(`{"decisions": [
			{"title": "club shelf", "area": "interface",
			 "choice": "one shared shelf screen with the voting strip",
			 "rationale": "whole club sees one list", "alternatives": [],
			 "serves": ["%s"], "summary": "a single shelf screen for the whole club"}
		]}`, caps[0])
	}
	gen.scripts[workflow.StageGenerateWorkItems] = func(context.Context, *llm.Request) string {
		caps := activeIDs(t, svc.Artifacts(), artifact.KindCapability)
		return fmt.Sprintf(`{"work_items": [
			{"title": "build the book store", "description": "persistence for the list",
			 "order": 1, "effort": "M", "implements": ["%s"],
			 "summary": "embedded store with the book schema"},
			{"title": "voting", "description": "cast and tally votes",
			 "order": 2, "effort": "S", "implements": ["%s"], "depends_on": [0],
			 "labels": ["mvp"],
			 "summary": "voting on top of the store"}
		]}`, caps[0], caps[1])
	}

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))
	var err error
	svc, err = planner.NewService(ctx, cfg, logger,
		planner.WithInMemoryStorage(), planner.WithGenerator(gen))
	require.NoError(t, err)
	t.Cleanup(func() { _ = svc.Close() })

	engine := svc.Engine()

	// Scope: anchor distilled, first gate.
	st, err := engine.Start(ctx, "A reading list tracker for one book club")
	require.NoError(t, err)
	require.Equal(t, state.RunAwaitingGate, st.Status)
	require.NotNil(t, st.Anchor)
	assert.False(t, st.Anchor.Frozen, "anchor freezes at confirmation, not extraction")
	require.NotNil(t, st.PendingGate)
	assert.Equal(t, gates.TypePhaseApproval, st.PendingGate.Type)
	assert.Equal(t, "scope", st.PendingGate.Phase)

	// Approving the scope gate confirms the anchor and runs capabilities.
	st, err = engine.Resume(ctx, st.RunID, approve(t, st))
	require.NoError(t, err)
	require.NotNil(t, st.Anchor)
	assert.True(t, st.Anchor.Frozen)
	require.NotNil(t, st.PendingGate)
	assert.Equal(t, "capabilities", st.PendingGate.Phase)
	assert.Len(t, activeIDs(t, svc.Artifacts(), artifact.KindCapability), 2)

	// Design: decisions, entities, and the interface sketch in one phase.
	st, err = engine.Resume(ctx, st.RunID, approve(t, st))
	require.NoError(t, err)
	require.NotNil(t, st.PendingGate)
	assert.Equal(t, "design", st.PendingGate.Phase)
	assert.Len(t, activeIDs(t, svc.Artifacts(), artifact.KindDecision), 2)
	assert.Len(t, activeIDs(t, svc.Artifacts(), artifact.KindEntity), 1)

	// Workplan, then done.
	st, err = engine.Resume(ctx, st.RunID, approve(t, st))
	require.NoError(t, err)
	require.NotNil(t, st.PendingGate)
	assert.Equal(t, "workplan", st.PendingGate.Phase)

	st, err = engine.Resume(ctx, st.RunID, approve(t, st))
	require.NoError(t, err)
	assert.Equal(t, state.RunCompleted, st.Status)
	assert.Nil(t, st.PendingGate)

	// The specification carries the frozen anchor and the whole plan.
	spec, err := engine.Specification(ctx, st.RunID)
	require.NoError(t, err)
	assert.True(t, spec.Anchor.Frozen)
	assert.Len(t, spec.Capabilities, 2)
	assert.Len(t, spec.Decisions, 2)
	assert.Len(t, spec.Entities, 1)
	assert.Len(t, spec.WorkItems, 2)

	// Exports are canonical: two passes produce identical bytes.
	loc, err := svc.Exporter().ExportSpecification(ctx, st.RunID, spec)
	require.NoError(t, err)
	first, err := os.ReadFile(loc)
	require.NoError(t, err)
	_, err = svc.Exporter().ExportSpecification(ctx, st.RunID, spec)
	require.NoError(t, err)
	second, err := os.ReadFile(loc)
	require.NoError(t, err)
	assert.Equal(t, first, second)

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(first, &decoded))
	assert.Contains(t, decoded, "anchor")
	assert.Contains(t, decoded, "work_items")
}

// TestGenericizedDesignCaughtAndCorrected drives the drift scenario the
// verifier exists for: the design stage flattens a distinctive feature
// (invite-only membership) into a generic default (open registration),
// the genericization pass blocks the boundary, and the corrective re-run
// supersedes the drifted entity before the gate ever opens.
func TestGenericizedDesignCaughtAndCorrected(t *testing.T) {
	ctx := context.Background()

	cfg := config.DefaultConfig()
	cfg.Service.DataDir = t.TempDir()
	cfg.Gates.Dir = ""

	gen := &storeBackedGenerator{scripts: map[string]func(context.Context, *llm.Request) string{}}
	gen.static(workflow.StageValidateIdea,
		`{"viable": true, "reasons": [], "has_user_interface": false}`)
	gen.static(workflow.StageDistillAnchor, `{
		"goal": "a supper club scheduler for an invite-only circle",
		"explicit_constraints": ["membership only by invitation from an existing member"],
		"non_goals": ["a public events platform"],
		"identity_features": [
			{"name": "invite-only membership", "description": "members join by invitation only",
			 "drift_risk": "regenerates as open public signup"}
		],
		"invariants": [
			{"property": "membership", "value": "invite only, issued by existing members",
			 "source_quote": "invite-only circle", "confidence": 0.95}
		]
	}`)
	gen.static(workflow.StageProposeCapabilities, `{"capabilities": [
		{"name": "schedule dinners", "description": "plan and announce the next dinner",
		 "category": "core", "priority": 1,
		 "acceptance_criteria": ["a dinner has a date and a host"],
		 "summary": "plan dinners for the circle"}
	]}`)

	var svc *planner.Service
	gen.scripts[workflow.StageProposeDecisions] = func(context.Context, *llm.Request) string {
		caps := activeIDs(t, svc.Artifacts(), artifact.KindCapability)
		return fmt.Sprintf(`{"decisions": [
			{"title": "membership handling", "area": "access", "choice": "invitation tokens from existing members",
			 "rationale": "the circle stays closed", "alternatives": ["open signup"],
			 "serves": ["%s"], "summary": "membership granted by invitation token only"}
		]}`, caps[0])
	}

	// First design run drifts: open registration instead of invitations.
	// The corrective re-run, fed the violation, emits the fixed entity.
	var entityFeedback [][]string
	gen.scripts[workflow.StageModelEntities] = func(_ context.Context, req *llm.Request) string {
		entityFeedback = append(entityFeedback, req.Feedback)
		decs := activeIDs(t, svc.Artifacts(), artifact.KindDecision)
		description := "anyone can create an account through open public registration"
		summary := "a Member self-registers openly"
		if len(entityFeedback) > 1 {
			description = "created only from an invitation issued by an existing member"
			summary = "a Member exists only through an invitation"
		}
		return fmt.Sprintf(`{"entities": [
			{"name": "Member", "description": "%s",
			 "attributes": [{"name": "invited_by", "type": "string", "required": true}],
			 "serves": ["%s"], "summary": "%s"}
		]}`, description, decs[0], summary)
	}
	gen.scripts[workflow.StageGenerateWorkItems] = func(ctx context.Context, _ *llm.Request) string {
		capID := firstActiveID(ctx, svc.Artifacts(), artifact.KindCapability)
		return fmt.Sprintf(`{"work_items": [
			{"title": "invitation flow", "description": "issue and redeem invitation tokens",
			 "order": 1, "effort": "M", "implements": ["%s"],
			 "summary": "invitations end to end"}
		]}`, capID)
	}

	// Verifier scripts run on worker goroutines; they read the store and
	// the run state at call time and never touch the testing.T.
	gen.scripts["verify_invariants"] = func(ctx context.Context, _ *llm.Request) string {
		return fmt.Sprintf(`{"violations": [],
			"honored_invariants": ["%s"],
			"preserved_features": []}`, soleInvariantID(ctx, svc))
	}
	gen.static("verify_consistency", `{"violations": []}`)

	genericizationCalls := 0
	gen.scripts["verify_genericization"] = func(ctx context.Context, _ *llm.Request) string {
		genericizationCalls++
		if genericizationCalls == 1 {
			return fmt.Sprintf(`{"violations": [
				{"property": "%s", "artifact_id": "%s", "severity": "blocking",
				 "detail": "Member allows open public registration, anchor requires invite-only membership"}],
				"generic_features": ["invite-only membership"]}`,
				soleInvariantID(ctx, svc),
				firstActiveID(ctx, svc.Artifacts(), artifact.KindEntity))
		}
		return fmt.Sprintf(`{"violations": [],
			"honored_invariants": ["%s"],
			"preserved_features": ["invite-only membership"]}`, soleInvariantID(ctx, svc))
	}

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))
	var err error
	svc, err = planner.NewService(ctx, cfg, logger,
		planner.WithInMemoryStorage(), planner.WithGenerator(gen))
	require.NoError(t, err)
	t.Cleanup(func() { _ = svc.Close() })

	engine := svc.Engine()

	st, err := engine.Start(ctx, "A supper club scheduler for an invite-only circle of friends")
	require.NoError(t, err)
	st, err = engine.Resume(ctx, st.RunID, approve(t, st)) // scope
	require.NoError(t, err)
	st, err = engine.Resume(ctx, st.RunID, approve(t, st)) // capabilities
	require.NoError(t, err)

	// The design boundary blocked once, re-ran the generative stages, and
	// only then opened its gate.
	require.NotNil(t, st.PendingGate)
	assert.Equal(t, "design", st.PendingGate.Phase)
	assert.Equal(t, gates.TypePhaseApproval, st.PendingGate.Type)
	rec := st.Phase("design")
	require.NotNil(t, rec)
	assert.Equal(t, 1, rec.VerifierReruns)

	// The corrective entity run received the violation as feedback.
	require.Len(t, entityFeedback, 2)
	assert.Empty(t, entityFeedback[0])
	require.NotEmpty(t, entityFeedback[1])
	assert.Contains(t, strings.Join(entityFeedback[1], "\n"), fmt.Sprintf(
		"violates %s: Member allows open public registration, anchor requires invite-only membership",
		soleInvariantID(ctx, svc)))

	// The drifted entity was superseded by the corrected one.
	entities, err := svc.Artifacts().List(ctx, artifact.ListOptions{Kind: artifact.KindEntity})
	require.NoError(t, err)
	require.Len(t, entities, 2)
	active, err := svc.Artifacts().List(ctx, artifact.ListOptions{Kind: artifact.KindEntity, ActiveOnly: true})
	require.NoError(t, err)
	require.Len(t, active, 1)
	assert.Contains(t, active[0].Entity.Description, "invitation issued by an existing member")

	// The gate report attests the recovered state, not just the absence
	// of violations.
	report := st.PendingGate.Report
	require.NotNil(t, report)
	assert.True(t, report.Passed)
	assert.Empty(t, report.Violations)
	assert.Equal(t, []string{soleInvariantID(ctx, svc)}, report.InvariantsHonored)
	assert.Equal(t, []string{"invite-only membership"}, report.IdentityPreserved)
	assert.Empty(t, report.IdentityGenericized)

	// The corrected run finishes normally.
	st, err = engine.Resume(ctx, st.RunID, approve(t, st)) // design
	require.NoError(t, err)
	assert.Equal(t, "workplan", st.PendingGate.Phase)
	st, err = engine.Resume(ctx, st.RunID, approve(t, st)) // workplan
	require.NoError(t, err)
	assert.Equal(t, state.RunCompleted, st.Status)
}

func TestRunRejectsApproveWithStaleGate(t *testing.T) {
	ctx := context.Background()

	cfg := config.DefaultConfig()
	cfg.Service.DataDir = t.TempDir()
	cfg.Gates.Dir = ""

	gen := &storeBackedGenerator{scripts: map[string]func(context.Context, *llm.Request) string{}}
	gen.static(workflow.StageValidateIdea,
		`{"viable": true, "reasons": [], "has_user_interface": false}`)
	gen.static(workflow.StageDistillAnchor, `{
		"goal": "a reading list tracker",
		"identity_features": [
			{"name": "club-scoped", "description": "one club, one list", "drift_risk": "regenerates as a general platform"}
		],
		"invariants": [
			{"property": "tenancy", "value": "single club", "source_quote": "one club", "confidence": 0.9}
		]
	}`)

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))
	svc, err := planner.NewService(ctx, cfg, logger,
		planner.WithInMemoryStorage(), planner.WithGenerator(gen))
	require.NoError(t, err)
	t.Cleanup(func() { _ = svc.Close() })

	st, err := svc.Engine().Start(ctx, "A reading list tracker for one book club")
	require.NoError(t, err)
	require.NotNil(t, st.PendingGate)

	_, err = svc.Engine().Resume(ctx, st.RunID, &gates.Decision{
		GateID: "GATE-deadbeef",
		Action: gates.ActionApprove,
	})
	require.ErrorIs(t, err, workflow.ErrGateMismatch)

	// A bare resume on a suspended run demands a decision.
	_, err = svc.Engine().Resume(ctx, st.RunID, nil)
	require.ErrorIs(t, err, workflow.ErrDecisionRequired)
}
