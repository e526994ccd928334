// Copyright (C) 2026 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package verify

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/wayfinder/services/planner/artifact"
	"github.com/AleutianAI/wayfinder/services/planner/llm/llmtest"
)

func TestInvariantPass_CleanReview(t *testing.T) {
	gen := llmtest.New()
	gen.Stub("verify_invariants", `{"violations": []}`)
	pass := NewInvariantPass(gen, "", "", nil)

	c1 := mkCapability("auth")
	report, err := pass.Verify(context.Background(), &Target{
		Phase:        "design",
		Anchor:       testAnchor(),
		Capabilities: []*artifact.Artifact{c1},
	})
	require.NoError(t, err)
	assert.Empty(t, report.Violations)
	assert.Equal(t, []string{InvariantPassName}, report.Passes)
}

func TestInvariantPass_MapsFindings(t *testing.T) {
	c1 := mkCapability("auth")
	d1 := mkDecision("hosted sync", c1.ID)

	gen := llmtest.New()
	gen.Stub("verify_invariants", fmt.Sprintf(
		`{"violations": [{"property": "INV-0001", "artifact_id": %q, "severity": "blocking", "detail": "stores data remotely"}]}`,
		d1.ID))
	pass := NewInvariantPass(gen, "", "", nil)

	report, err := pass.Verify(context.Background(), &Target{
		Phase:        "design",
		Anchor:       testAnchor(),
		Capabilities: []*artifact.Artifact{c1},
		Decisions:    []*artifact.Artifact{d1},
	})
	require.NoError(t, err)

	require.Len(t, report.Violations, 1)
	v := report.Violations[0]
	assert.Equal(t, "INV-0001", v.Property)
	assert.Equal(t, d1.ID, v.ArtifactID)
	assert.Equal(t, SeverityBlocking, v.Severity)
	assert.Equal(t, InvariantPassName, v.Pass)
	assert.True(t, report.HasBlocking())
}

func TestInvariantPass_RecordsAttestations(t *testing.T) {
	c1 := mkCapability("member directory")
	gen := llmtest.New()
	gen.Stub("verify_invariants",
		`{"violations": [],
		  "honored_invariants": ["INV-0001", "INV-made-up"],
		  "preserved_features": ["local-first", "never-mentioned"],
		  "generic_features": []}`)
	pass := NewInvariantPass(gen, "", "", nil)

	report, err := pass.Verify(context.Background(), &Target{
		Phase:        "design",
		Anchor:       testAnchor(),
		Capabilities: []*artifact.Artifact{c1},
	})
	require.NoError(t, err)

	assert.True(t, report.Passed)
	assert.Equal(t, []string{"INV-0001"}, report.InvariantsHonored,
		"attested invariants the anchor does not hold are dropped")
	assert.Equal(t, []string{"local-first"}, report.IdentityPreserved,
		"attested features the anchor does not name are dropped")
	assert.Empty(t, report.InvariantsViolated)
	assert.Empty(t, report.IdentityGenericized)
}

func TestInvariantPass_ViolatedInvariantNeverHonored(t *testing.T) {
	e1 := mkEntity("Account")
	gen := llmtest.New()
	gen.Stub("verify_genericization", fmt.Sprintf(
		`{"violations": [{"property": "INV-0001", "artifact_id": %q, "severity": "blocking", "detail": "open public registration"}],
		  "honored_invariants": ["INV-0001"],
		  "preserved_features": [],
		  "generic_features": ["local-first"]}`, e1.ID))
	pass := NewInvariantPass(gen, "genericization", "flattened identity", nil)

	report, err := pass.Verify(context.Background(), &Target{
		Phase:    "design",
		Anchor:   testAnchor(),
		Entities: []*artifact.Artifact{e1},
	})
	require.NoError(t, err)

	assert.False(t, report.Passed)
	assert.Empty(t, report.InvariantsHonored)
	assert.Equal(t, []string{"INV-0001"}, report.InvariantsViolated)
	assert.Equal(t, []string{"local-first"}, report.IdentityGenericized)
}

func TestInvariantPass_DropsUnknownArtifacts(t *testing.T) {
	gen := llmtest.New()
	gen.Stub("verify_invariants",
		`{"violations": [{"property": "INV-0001", "artifact_id": "DEC-hallucinated", "severity": "blocking", "detail": "x"}]}`)
	pass := NewInvariantPass(gen, "", "", nil)

	report, err := pass.Verify(context.Background(), &Target{
		Phase:  "design",
		Anchor: testAnchor(),
	})
	require.NoError(t, err)
	assert.Empty(t, report.Violations)
}

func TestInvariantPass_BadSeverityFailsVerification(t *testing.T) {
	gen := llmtest.New()
	gen.Stub("verify_invariants",
		`{"violations": [{"property": "INV-0001", "severity": "catastrophic", "detail": "x"}]}`)
	pass := NewInvariantPass(gen, "", "", nil)

	_, err := pass.Verify(context.Background(), &Target{Phase: "design", Anchor: testAnchor()})
	assert.ErrorIs(t, err, ErrVerificationFailed)
}

func TestInvariantPass_GarbageOutputFailsVerification(t *testing.T) {
	gen := llmtest.New()
	gen.Stub("verify_invariants", "the plan looks fine to me")
	pass := NewInvariantPass(gen, "", "", nil)

	_, err := pass.Verify(context.Background(), &Target{Phase: "design", Anchor: testAnchor()})
	assert.ErrorIs(t, err, ErrVerificationFailed)
}

func TestInvariantPass_PromptContainsAnchorAndArtifacts(t *testing.T) {
	c1 := mkCapability("offline sync")
	gen := llmtest.New()
	gen.Stub("verify_scope", `{"violations": []}`)
	pass := NewInvariantPass(gen, "scope", "look for scope creep only", nil)

	_, err := pass.Verify(context.Background(), &Target{
		Phase:        "requirements",
		Anchor:       testAnchor(),
		Capabilities: []*artifact.Artifact{c1},
	})
	require.NoError(t, err)

	reqs := gen.Requests()
	require.Len(t, reqs, 1)
	assert.Contains(t, reqs[0].Prompt, "CONCEPT ANCHOR")
	assert.Contains(t, reqs[0].Prompt, "[INV-0001] data locality: All data stays local")
	assert.Contains(t, reqs[0].Prompt, c1.ID)
	assert.Contains(t, reqs[0].System, "look for scope creep only")
	assert.True(t, reqs[0].JSONMode)
}

func TestMultiPass_MergesConcurrentPasses(t *testing.T) {
	c1 := mkCapability("auth")
	d1 := mkDecision("serves nothing") // structural blocking

	gen := llmtest.New()
	gen.Stub("verify_invariants",
		`{"violations": [{"property": "INV-0001", "severity": "warning", "detail": "borderline"}]}`)

	mp := NewMultiPass(nil, NewStructural(), NewInvariantPass(gen, "", "", nil))
	report, err := mp.Verify(context.Background(), &Target{
		Phase:        "design",
		Anchor:       testAnchor(),
		Capabilities: []*artifact.Artifact{c1},
		Decisions:    []*artifact.Artifact{d1},
	})
	require.NoError(t, err)

	assert.Equal(t, []string{"invariants", "structural"}, report.Passes)
	require.Len(t, report.Violations, 2)
	// Sorted by pass name: invariants first.
	assert.Equal(t, "invariants", report.Violations[0].Pass)
	assert.Equal(t, "structural", report.Violations[1].Pass)
	assert.True(t, report.HasBlocking())
}

func TestMultiPass_PassFailureFailsWhole(t *testing.T) {
	gen := llmtest.New()
	gen.StubError("verify_invariants", errors.New("backend down"))

	mp := NewMultiPass(nil, NewStructural(), NewInvariantPass(gen, "", "", nil))
	_, err := mp.Verify(context.Background(), &Target{
		Phase:  "design",
		Anchor: testAnchor(),
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "pass invariants")
	assert.ErrorIs(t, err, ErrVerificationFailed)
}

func TestMultiPass_NoPasses(t *testing.T) {
	mp := NewMultiPass(nil)
	_, err := mp.Verify(context.Background(), &Target{Phase: "design", Anchor: testAnchor()})
	assert.ErrorIs(t, err, ErrVerificationFailed)
}
