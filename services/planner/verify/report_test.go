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
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReport_SeveritySplit(t *testing.T) {
	r := NewReport("design", "structural")
	r.Violations = []Violation{
		{Property: "a", Severity: SeverityBlocking, Pass: "structural"},
		{Property: "b", Severity: SeverityWarning, Pass: "structural"},
		{Property: "c", Severity: SeverityBlocking, Pass: "structural"},
	}

	assert.Len(t, r.Blocking(), 2)
	assert.Len(t, r.Warnings(), 1)
	assert.True(t, r.HasBlocking())

	empty := NewReport("design")
	assert.False(t, empty.HasBlocking())
}

func TestMerge_DeterministicOrder(t *testing.T) {
	r1 := &Report{
		Phase:  "design",
		Passes: []string{"invariants"},
		Violations: []Violation{
			{Pass: "invariants", ArtifactID: "DEC-bb", Property: "INV-2", Severity: SeverityWarning, Detail: "d1"},
			{Pass: "invariants", ArtifactID: "DEC-aa", Property: "INV-1", Severity: SeverityBlocking, Detail: "d2"},
		},
	}
	r2 := &Report{
		Phase:  "design",
		Passes: []string{"structural"},
		Violations: []Violation{
			{Pass: "structural", ArtifactID: "DEC-aa", Property: "structural.unserved_decision", Severity: SeverityBlocking, Detail: "d3"},
		},
	}

	a := Merge("design", r1, r2)
	b := Merge("design", r2, r1)

	assert.Equal(t, a.Violations, b.Violations, "merge order must not matter")
	assert.Equal(t, []string{"invariants", "structural"}, a.Passes)
	require.Len(t, a.Violations, 3)
	assert.Equal(t, "invariants", a.Violations[0].Pass)
	assert.Equal(t, "DEC-aa", a.Violations[0].ArtifactID)
}

func TestMerge_CollapsesExactDuplicates(t *testing.T) {
	v := Violation{Pass: "structural", ArtifactID: "WI-aa", Property: "p", Severity: SeverityBlocking, Detail: "d"}
	r1 := &Report{Phase: "workplan", Passes: []string{"structural"}, Violations: []Violation{v}}
	r2 := &Report{Phase: "workplan", Passes: []string{"structural"}, Violations: []Violation{v}}

	merged := Merge("workplan", r1, r2)
	assert.Len(t, merged.Violations, 1)
	assert.Equal(t, []string{"structural"}, merged.Passes)
}

func TestMerge_ReconcilesAttestations(t *testing.T) {
	r1 := &Report{
		Phase:             "design",
		Passes:            []string{"invariants"},
		InvariantsHonored: []string{"INV-2", "INV-1"},
		IdentityPreserved: []string{"invite-only membership", "local-first"},
	}
	r2 := &Report{
		Phase:  "design",
		Passes: []string{"genericization"},
		Violations: []Violation{
			{Pass: "genericization", Property: "INV-1", ArtifactID: "ENT-aa", Severity: SeverityBlocking, Detail: "open registration"},
		},
		IdentityGenericized: []string{"invite-only membership"},
	}

	a := Merge("design", r1, r2)
	b := Merge("design", r2, r1)
	assert.Equal(t, a.InvariantsHonored, b.InvariantsHonored, "merge order must not matter")

	// A violated invariant never stays honored, and a genericized feature
	// never stays preserved.
	assert.False(t, a.Passed)
	assert.Equal(t, []string{"INV-2"}, a.InvariantsHonored)
	assert.Equal(t, []string{"INV-1"}, a.InvariantsViolated)
	assert.Equal(t, []string{"local-first"}, a.IdentityPreserved)
	assert.Equal(t, []string{"invite-only membership"}, a.IdentityGenericized)
}

func TestMerge_CleanReportPasses(t *testing.T) {
	r := &Report{
		Phase:             "capabilities",
		Passes:            []string{"invariants"},
		InvariantsHonored: []string{"INV-1", "INV-1"},
		Violations: []Violation{
			{Pass: "invariants", Property: "INV-2", Severity: SeverityWarning, Detail: "smell"},
		},
	}
	merged := Merge("capabilities", r)

	assert.True(t, merged.Passed, "warnings never block")
	assert.Equal(t, []string{"INV-1"}, merged.InvariantsHonored, "duplicates collapse")
	assert.Equal(t, []string{"INV-2"}, merged.InvariantsViolated, "warnings still count as violated")
}

func TestMerge_NilReportsIgnored(t *testing.T) {
	merged := Merge("design", nil, NewReport("design", "structural"))
	assert.Equal(t, []string{"structural"}, merged.Passes)
	assert.Empty(t, merged.Violations)
}

func TestFeedback_BlockingOnly(t *testing.T) {
	fb := Feedback([]Violation{
		{Property: "INV-1", ArtifactID: "DEC-aa", Severity: SeverityBlocking, Detail: "stores data remotely"},
		{Property: "INV-2", Severity: SeverityWarning, Detail: "smells off"},
		{Property: "INV-3", Severity: SeverityBlocking, Detail: "phase-level drift"},
	})

	require.Len(t, fb, 2)
	assert.Equal(t, "DEC-aa violates INV-1: stores data remotely", fb[0])
	assert.Equal(t, "violates INV-3: phase-level drift", fb[1])
}

func TestViolation_Key(t *testing.T) {
	a := Violation{Property: "INV-1", ArtifactID: "DEC-aa", Pass: "invariants"}
	b := Violation{Property: "INV-1", ArtifactID: "DEC-aa", Pass: "structural"}
	assert.Equal(t, a.Key(), b.Key(), "key ignores which pass found it")
}

func TestSeverity_IsValid(t *testing.T) {
	assert.True(t, SeverityBlocking.IsValid())
	assert.True(t, SeverityWarning.IsValid())
	assert.False(t, Severity("fatal").IsValid())
}
