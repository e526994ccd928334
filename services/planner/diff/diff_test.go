// Copyright (C) 2026 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package diff

import (
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/wayfinder/services/planner/artifact"
)

func capability(t *testing.T, name string) *artifact.Artifact {
	t.Helper()
	a := artifact.New(artifact.KindCapability, "requirements")
	a.Summary = name
	a.Capability = &artifact.Capability{Name: name, Description: name, Category: "core", Priority: 1}
	require.NoError(t, a.Validate())
	return a
}

func decision(t *testing.T, title string, serves ...string) *artifact.Artifact {
	t.Helper()
	a := artifact.New(artifact.KindDecision, "design")
	a.Summary = title
	a.Serves = serves
	a.Decision = &artifact.Decision{Title: title, Area: "architecture", Choice: title, Rationale: "test"}
	require.NoError(t, a.Validate())
	return a
}

func entity(t *testing.T, name string, serves ...string) *artifact.Artifact {
	t.Helper()
	a := artifact.New(artifact.KindEntity, "design")
	a.Summary = name
	a.Serves = serves
	a.Entity = &artifact.Entity{Name: name, Description: name}
	require.NoError(t, a.Validate())
	return a
}

func workItem(t *testing.T, title string, implements ...string) *artifact.Artifact {
	t.Helper()
	a := artifact.New(artifact.KindWorkItem, "workplan")
	a.Summary = title
	a.Implements = implements
	a.WorkItem = &artifact.WorkItem{Title: title, Description: title, Order: 1, Effort: "small"}
	require.NoError(t, a.Validate())
	return a
}

func TestCompute_FullCoverageIsEmpty(t *testing.T) {
	cap1 := capability(t, "auth")
	cap2 := capability(t, "billing")
	dec1 := decision(t, "use oauth", cap1.ID)
	dec2 := decision(t, "use stripe", cap2.ID)

	d := Compute(
		[]*artifact.Artifact{cap1, cap2},
		[]*artifact.Artifact{dec1, dec2},
		nil, nil,
	)

	assert.True(t, d.Empty())
	assert.Zero(t, d.Total())
}

func TestCompute_UncoveredCapability(t *testing.T) {
	cap1 := capability(t, "auth")
	cap2 := capability(t, "billing")
	cap3 := capability(t, "export")
	dec1 := decision(t, "use oauth", cap1.ID)

	d := Compute(
		[]*artifact.Artifact{cap1, cap2, cap3},
		[]*artifact.Artifact{dec1},
		nil, nil,
	)

	assert.ElementsMatch(t, []string{cap2.ID, cap3.ID}, d.Uncovered)
	assert.Empty(t, d.AffectedDecisions)
	assert.False(t, d.Empty())
}

// A capability added after the design phase completed must surface as
// uncovered so the engine re-runs decision generation scoped to it.
func TestCompute_MidRunCapabilityAddition(t *testing.T) {
	cap1 := capability(t, "auth")
	dec1 := decision(t, "use oauth", cap1.ID)

	d := Compute([]*artifact.Artifact{cap1}, []*artifact.Artifact{dec1}, nil, nil)
	require.True(t, d.Empty())

	capNew := capability(t, "audit log")

	d = Compute([]*artifact.Artifact{cap1, capNew}, []*artifact.Artifact{dec1}, nil, nil)
	assert.Equal(t, []string{capNew.ID}, d.Uncovered)
	assert.Empty(t, d.AffectedDecisions)
	assert.Empty(t, d.AffectedWorkItems)
}

func TestCompute_SupersededDecisionDoesNotCover(t *testing.T) {
	cap1 := capability(t, "auth")
	oldDec := decision(t, "use basic auth", cap1.ID)
	newDec := decision(t, "use oauth", cap1.ID)
	oldDec.SupersededBy = newDec.ID

	d := Compute([]*artifact.Artifact{cap1}, []*artifact.Artifact{oldDec, newDec}, nil, nil)
	assert.Empty(t, d.Uncovered, "active replacement still covers")

	newDec.SupersededBy = artifact.NewID(artifact.KindDecision)
	d = Compute([]*artifact.Artifact{cap1}, []*artifact.Artifact{oldDec, newDec}, nil, nil)
	assert.Equal(t, []string{cap1.ID}, d.Uncovered,
		"capability with only superseded decisions is uncovered")
}

func TestCompute_SupersededCapabilityCascade(t *testing.T) {
	capOld := capability(t, "local accounts")
	capNew := capability(t, "sso accounts")
	capOld.SupersededBy = capNew.ID

	capStable := capability(t, "billing")

	decAffected := decision(t, "bcrypt password storage", capOld.ID)
	decNew := decision(t, "saml provider", capNew.ID)
	decStable := decision(t, "use stripe", capStable.ID)

	entAffected := entity(t, "PasswordCredential", decAffected.ID)
	entStable := entity(t, "Invoice", decStable.ID)

	wiAffected := workItem(t, "implement password hashing", capOld.ID)
	wiStable := workItem(t, "stripe webhooks", capStable.ID)

	d := Compute(
		[]*artifact.Artifact{capOld, capNew, capStable},
		[]*artifact.Artifact{decAffected, decNew, decStable},
		[]*artifact.Artifact{entAffected, entStable},
		[]*artifact.Artifact{wiAffected, wiStable},
	)

	assert.Equal(t, []string{decAffected.ID}, d.AffectedDecisions)
	assert.Equal(t, []string{entAffected.ID}, d.AffectedEntities)
	assert.Equal(t, []string{wiAffected.ID}, d.AffectedWorkItems)
	assert.Empty(t, d.Uncovered, "replacement capability is covered by its decision")
}

func TestCompute_SupersededArtifactsNeverAffected(t *testing.T) {
	capOld := capability(t, "local accounts")
	capNew := capability(t, "sso accounts")
	capOld.SupersededBy = capNew.ID

	decOld := decision(t, "bcrypt password storage", capOld.ID)
	decReplacement := decision(t, "saml provider", capNew.ID)
	decOld.SupersededBy = decReplacement.ID

	wiOld := workItem(t, "implement password hashing", capOld.ID)
	wiReplacement := workItem(t, "wire saml", capNew.ID)
	wiOld.SupersededBy = wiReplacement.ID

	d := Compute(
		[]*artifact.Artifact{capOld, capNew},
		[]*artifact.Artifact{decOld, decReplacement},
		nil,
		[]*artifact.Artifact{wiOld, wiReplacement},
	)

	assert.True(t, d.Empty(), "already-superseded artifacts are not re-flagged: %+v", d)
}

// uncovered == active capabilities minus capabilities served by active
// decisions, regardless of how the inputs are arranged.
func TestCompute_UncoveredLaw(t *testing.T) {
	caps := []*artifact.Artifact{
		capability(t, "a"), capability(t, "b"), capability(t, "c"),
		capability(t, "d"), capability(t, "e"),
	}
	caps[3].SupersededBy = caps[4].ID

	decs := []*artifact.Artifact{
		decision(t, "covers a and b", caps[0].ID, caps[1].ID),
		decision(t, "covers e", caps[4].ID),
		decision(t, "superseded cover of c", caps[2].ID),
	}
	decs[2].SupersededBy = artifact.NewID(artifact.KindDecision)

	d := Compute(caps, decs, nil, nil)

	expected := make(map[string]bool)
	for _, c := range caps {
		if c.Active() {
			expected[c.ID] = true
		}
	}
	for _, dec := range decs {
		if !dec.Active() {
			continue
		}
		for _, id := range dec.Serves {
			delete(expected, id)
		}
	}
	var want []string
	for id := range expected {
		want = append(want, id)
	}
	sort.Strings(want)

	assert.Equal(t, want, d.Uncovered)
}

func TestCompute_OutputSorted(t *testing.T) {
	var caps []*artifact.Artifact
	for i := 0; i < 20; i++ {
		caps = append(caps, capability(t, "cap"))
	}

	d := Compute(caps, nil, nil, nil)

	require.Len(t, d.Uncovered, 20)
	assert.True(t, sort.StringsAreSorted(d.Uncovered))
}

func TestCompute_EmptyInputs(t *testing.T) {
	d := Compute(nil, nil, nil, nil)
	assert.True(t, d.Empty())
	assert.Empty(t, d.Uncovered)
}

func TestCompute_IgnoresWrongKinds(t *testing.T) {
	cap1 := capability(t, "auth")
	dec1 := decision(t, "use oauth", cap1.ID)

	// Slices passed in the wrong positions are filtered by kind rather
	// than silently miscounted.
	d := Compute(
		[]*artifact.Artifact{cap1, dec1},
		[]*artifact.Artifact{dec1, cap1},
		nil, nil,
	)
	assert.True(t, d.Empty())
}
