// Copyright (C) 2026 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/wayfinder/services/planner/anchor"
	"github.com/AleutianAI/wayfinder/services/planner/gates"
)

func TestParseSelection(t *testing.T) {
	tests := []struct {
		name    string
		raw     string
		want    gates.Selection
		wantErr bool
	}{
		{
			name: "option selection",
			raw:  "INV-1=opt-a",
			want: gates.Selection{InvariantID: "INV-1", OptionID: "opt-a"},
		},
		{
			name: "free text selection",
			raw:  "INV-2=text:single tenant only",
			want: gates.Selection{InvariantID: "INV-2", FreeText: "single tenant only"},
		},
		{
			name:    "missing separator",
			raw:     "INV-1",
			wantErr: true,
		},
		{
			name:    "empty answer",
			raw:     "INV-1=",
			wantErr: true,
		},
		{
			name:    "empty invariant",
			raw:     "=opt-a",
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := parseSelection(tt.raw)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestDecisionFromFlags(t *testing.T) {
	p := gates.NewPresentation("RUN-1", "scope", gates.TypePhaseApproval, "Phase complete")

	decideAction = "request_changes"
	decideFeedback = "split the auth capability"
	decideSelections = nil
	decideAcknowledged = nil
	decideBy = "alice"
	t.Cleanup(func() {
		decideAction, decideFeedback, decideBy = "", "", ""
	})

	d, err := decisionFromFlags(p)
	require.NoError(t, err)
	assert.Equal(t, p.ID, d.GateID)
	assert.Equal(t, gates.ActionRequestChanges, d.Action)
	assert.Equal(t, "split the auth capability", d.Feedback)
	assert.Equal(t, "alice", d.DecidedBy)
	assert.NotZero(t, d.DecidedAt)
	require.NoError(t, d.Validate())
}

func TestDecisionFromFlagsRequiresAction(t *testing.T) {
	p := gates.NewPresentation("RUN-1", "scope", gates.TypePhaseApproval, "Phase complete")

	decideAction = ""
	_, err := decisionFromFlags(p)
	require.Error(t, err)
}

func TestActionOptionsByGateType(t *testing.T) {
	approval := actionOptions(gates.TypePhaseApproval)
	require.Len(t, approval, 2)

	ambiguity := actionOptions(gates.TypeAmbiguity)
	require.Len(t, ambiguity, 1)
	assert.Equal(t, string(gates.ActionResolveAmbiguity), ambiguity[0].Value)

	escalation := actionOptions(gates.TypeViolationEscalation)
	require.Len(t, escalation, 2)
	assert.Equal(t, string(gates.ActionOverrideViolation), escalation[1].Value)
}

func TestInvariantOptions(t *testing.T) {
	p := gates.NewPresentation("RUN-1", "scope", gates.TypeAmbiguity, "Clarify")
	p.Ambiguities = []anchor.Invariant{
		{
			ID:       "INV-1",
			Property: "tenancy",
			Value:    "multi-tenant",
			Options: []anchor.ClarificationOption{
				{ID: "opt-a", Statement: "Shared database", Implication: "row-level isolation"},
				{ID: "opt-b", Statement: "Database per tenant"},
			},
		},
	}

	opts := invariantOptions(p, "INV-1")
	require.Len(t, opts, 2)
	assert.Equal(t, "opt-a", opts[0].Value)
	assert.Contains(t, opts[0].Key, "row-level isolation")

	assert.Nil(t, invariantOptions(p, "INV-9"))
}
