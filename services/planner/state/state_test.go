// Copyright (C) 2026 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package state

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/wayfinder/services/planner/gates"
)

func TestNewRunID(t *testing.T) {
	id := NewRunID()
	assert.True(t, strings.HasPrefix(id, "RUN-"), "id %q should carry the RUN- prefix", id)
	assert.Len(t, id, len("RUN-")+8)
	assert.NotEqual(t, id, NewRunID())
}

func TestNew(t *testing.T) {
	st := New("RUN-0a0a0a0a", "a seed library for the neighborhood")

	assert.Equal(t, SchemaVersion, st.SchemaVersion)
	assert.Equal(t, RunActive, st.Status)
	assert.Equal(t, uint64(0), st.Revision)
	assert.NotNil(t, st.Flags)
	assert.Positive(t, st.CreatedAt)
	assert.Equal(t, st.CreatedAt, st.UpdatedAt)
	require.NoError(t, st.Validate())
}

func TestBump(t *testing.T) {
	st := New("RUN-0a0a0a0a", "idea")
	st.Bump()
	st.Bump()
	assert.Equal(t, uint64(2), st.Revision)
	assert.GreaterOrEqual(t, st.UpdatedAt, st.CreatedAt)
}

func TestEnsurePhaseAndStage(t *testing.T) {
	st := New("RUN-0a0a0a0a", "idea")

	assert.Nil(t, st.Phase("scope"))

	rec := st.EnsureStage("scope", "extract_anchor")
	require.NotNil(t, rec)
	assert.Equal(t, StagePending, rec.Status)
	rec.Attempts = 2

	phase := st.Phase("scope")
	require.NotNil(t, phase)
	assert.Equal(t, PhaseNotStarted, phase.Status)

	// Repeated lookups hand back the same record, not a copy.
	again := st.EnsureStage("scope", "extract_anchor")
	assert.Equal(t, 2, again.Attempts)
	require.Len(t, st.Phases, 1)
	require.Len(t, st.Phases[0].Stages, 1)

	st.EnsureStage("scope", "propose_capabilities")
	assert.Len(t, st.Phases[0].Stages, 2)
}

func TestFlags(t *testing.T) {
	st := New("RUN-0a0a0a0a", "idea")
	assert.False(t, st.Flag("anchor_confirmed"))
	st.SetFlag("anchor_confirmed")
	assert.True(t, st.Flag("anchor_confirmed"))

	// A snapshot decoded from JSON may carry a nil map.
	var decoded State
	decoded.SetFlag("resumed")
	assert.True(t, decoded.Flag("resumed"))
}

func TestSuspendAndClearGate(t *testing.T) {
	st := New("RUN-0a0a0a0a", "idea")
	st.EnsurePhase("scope").Status = PhaseInProgress

	p := gates.NewPresentation(st.RunID, "scope", gates.TypePhaseApproval, "scope phase complete")
	st.Suspend(p)

	assert.Equal(t, RunAwaitingGate, st.Status)
	assert.Same(t, p, st.PendingGate)
	assert.Equal(t, PhaseAwaitingGate, st.Phase("scope").Status)
	require.NoError(t, st.Validate())

	st.ClearGate()
	assert.Nil(t, st.PendingGate)
	assert.Equal(t, RunActive, st.Status)
}

func TestClearGateKeepsTerminalStatus(t *testing.T) {
	st := New("RUN-0a0a0a0a", "idea")
	st.Status = RunCancelled
	st.ClearGate()
	assert.Equal(t, RunCancelled, st.Status)
}

func TestTerminal(t *testing.T) {
	cases := map[RunStatus]bool{
		RunActive:       false,
		RunAwaitingGate: false,
		RunCompleted:    true,
		RunFailed:       true,
		RunCancelled:    true,
	}
	for status, want := range cases {
		st := New("RUN-0a0a0a0a", "idea")
		st.Status = status
		assert.Equal(t, want, st.Terminal(), "status %s", status)
	}
}

func TestValidate(t *testing.T) {
	valid := func() *State {
		st := New("RUN-0a0a0a0a", "idea")
		st.EnsureStage("scope", "extract_anchor").Status = StageCompleted
		st.EnsureStage("scope", "propose_capabilities")
		st.EnsurePhase("design")
		return st
	}

	tests := []struct {
		name    string
		mutate  func(*State)
		wantErr string
	}{
		{
			name:   "well formed",
			mutate: func(*State) {},
		},
		{
			name:    "missing run id",
			mutate:  func(st *State) { st.RunID = "" },
			wantErr: "missing run_id",
		},
		{
			name:    "schema version not semver",
			mutate:  func(st *State) { st.SchemaVersion = "1.0.0" },
			wantErr: "not semver",
		},
		{
			name:    "unknown run status",
			mutate:  func(st *State) { st.Status = "paused" },
			wantErr: "unknown status",
		},
		{
			name:    "awaiting gate without presentation",
			mutate:  func(st *State) { st.Status = RunAwaitingGate },
			wantErr: "without a pending gate",
		},
		{
			name: "duplicate phase",
			mutate: func(st *State) {
				st.Phases = append(st.Phases, PhaseRecord{Name: "scope", Status: PhaseNotStarted})
			},
			wantErr: `duplicate phase "scope"`,
		},
		{
			name: "empty phase name",
			mutate: func(st *State) {
				st.Phases = append(st.Phases, PhaseRecord{Status: PhaseNotStarted})
			},
			wantErr: "empty name",
		},
		{
			name:    "unknown phase status",
			mutate:  func(st *State) { st.Phases[0].Status = "stalled" },
			wantErr: "unknown status",
		},
		{
			name: "duplicate stage",
			mutate: func(st *State) {
				p := st.Phase("scope")
				p.Stages = append(p.Stages, StageRecord{Name: "extract_anchor", Status: StagePending})
			},
			wantErr: `duplicate stage "extract_anchor"`,
		},
		{
			name:    "unknown stage status",
			mutate:  func(st *State) { st.Phases[0].Stages[0].Status = "retrying" },
			wantErr: "unknown status",
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			st := valid()
			tc.mutate(st)
			err := st.Validate()
			if tc.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.ErrorIs(t, err, ErrInvalidState)
			assert.Contains(t, err.Error(), tc.wantErr)
		})
	}
}

func TestCompatibleSchema(t *testing.T) {
	assert.True(t, CompatibleSchema(SchemaVersion))
	assert.True(t, CompatibleSchema("v1.9.2"))
	assert.False(t, CompatibleSchema("v2.0.0"))
	assert.False(t, CompatibleSchema("1.0.0"))
	assert.False(t, CompatibleSchema(""))
}
