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
	"fmt"
	"sort"
	"time"

	"github.com/AleutianAI/wayfinder/services/planner/state"
)

// =============================================================================
// Stage machine
// =============================================================================

// StageMachine holds the allowed stage status transitions. Completed,
// failed, and skipped stages can all re-enter running: completed for
// verifier-triggered corrective re-runs and gate change requests, failed
// for retries, skipped for predicates satisfied on a later pass.
//
// # Thread Safety
//
// The table is immutable after construction; safe for concurrent use.
type StageMachine struct {
	transitions map[state.StageStatus]map[state.StageStatus]bool
}

// NewStageMachine builds the stage lifecycle table.
func NewStageMachine() *StageMachine {
	m := &StageMachine{transitions: make(map[state.StageStatus]map[state.StageStatus]bool)}

	m.addTransition(state.StagePending, state.StageRunning)
	m.addTransition(state.StagePending, state.StageSkipped)

	m.addTransition(state.StageRunning, state.StageCompleted)
	m.addTransition(state.StageRunning, state.StageFailed)
	m.addTransition(state.StageRunning, state.StageBlocked)

	m.addTransition(state.StageBlocked, state.StageRunning)
	m.addTransition(state.StageBlocked, state.StageCompleted)

	m.addTransition(state.StageCompleted, state.StageRunning)
	m.addTransition(state.StageFailed, state.StageRunning)
	m.addTransition(state.StageSkipped, state.StageRunning)

	return m
}

func (m *StageMachine) addTransition(from, to state.StageStatus) {
	if m.transitions[from] == nil {
		m.transitions[from] = make(map[state.StageStatus]bool)
	}
	m.transitions[from][to] = true
}

// CanTransition reports whether from -> to is allowed.
func (m *StageMachine) CanTransition(from, to state.StageStatus) bool {
	return m.transitions[from][to]
}

// Transition moves a stage record to the new status, maintaining its
// timestamps: entering running stamps a fresh start and clears the prior
// completion and error; the settled statuses stamp completion.
func (m *StageMachine) Transition(rec *state.StageRecord, to state.StageStatus) error {
	if !m.CanTransition(rec.Status, to) {
		return fmt.Errorf("%w: stage %s: %s -> %s", ErrInvalidTransition, rec.Name, rec.Status, to)
	}
	now := time.Now().UTC().UnixMilli()
	switch to {
	case state.StageRunning:
		rec.StartedAt = now
		rec.CompletedAt = 0
		rec.Error = ""
	case state.StageCompleted, state.StageFailed, state.StageSkipped:
		rec.CompletedAt = now
	}
	rec.Status = to
	return nil
}

// ValidFrom returns the allowed targets from a status, sorted.
func (m *StageMachine) ValidFrom(from state.StageStatus) []state.StageStatus {
	var out []state.StageStatus
	for to := range m.transitions[from] {
		out = append(out, to)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// =============================================================================
// Phase machine
// =============================================================================

// PhaseMachine holds the allowed phase status transitions. A complete
// phase can re-enter in_progress when a later change affects its output.
//
// # Thread Safety
//
// The table is immutable after construction; safe for concurrent use.
type PhaseMachine struct {
	transitions map[state.PhaseStatus]map[state.PhaseStatus]bool
}

// NewPhaseMachine builds the phase lifecycle table.
func NewPhaseMachine() *PhaseMachine {
	m := &PhaseMachine{transitions: make(map[state.PhaseStatus]map[state.PhaseStatus]bool)}

	m.addTransition(state.PhaseNotStarted, state.PhaseInProgress)
	m.addTransition(state.PhaseNotStarted, state.PhaseSkipped)

	m.addTransition(state.PhaseInProgress, state.PhaseAwaitingGate)
	m.addTransition(state.PhaseInProgress, state.PhaseComplete)

	m.addTransition(state.PhaseAwaitingGate, state.PhaseInProgress)
	m.addTransition(state.PhaseAwaitingGate, state.PhaseComplete)

	m.addTransition(state.PhaseComplete, state.PhaseInProgress)
	m.addTransition(state.PhaseSkipped, state.PhaseInProgress)

	return m
}

func (m *PhaseMachine) addTransition(from, to state.PhaseStatus) {
	if m.transitions[from] == nil {
		m.transitions[from] = make(map[state.PhaseStatus]bool)
	}
	m.transitions[from][to] = true
}

// CanTransition reports whether from -> to is allowed.
func (m *PhaseMachine) CanTransition(from, to state.PhaseStatus) bool {
	return m.transitions[from][to]
}

// Transition moves a phase record to the new status, maintaining its
// timestamps the same way the stage machine does.
func (m *PhaseMachine) Transition(rec *state.PhaseRecord, to state.PhaseStatus) error {
	if !m.CanTransition(rec.Status, to) {
		return fmt.Errorf("%w: phase %s: %s -> %s", ErrInvalidTransition, rec.Name, rec.Status, to)
	}
	now := time.Now().UTC().UnixMilli()
	switch to {
	case state.PhaseInProgress:
		if rec.StartedAt == 0 {
			rec.StartedAt = now
		}
		rec.CompletedAt = 0
	case state.PhaseComplete, state.PhaseSkipped:
		rec.CompletedAt = now
	}
	rec.Status = to
	return nil
}

// ValidFrom returns the allowed targets from a status, sorted.
func (m *PhaseMachine) ValidFrom(from state.PhaseStatus) []state.PhaseStatus {
	var out []state.PhaseStatus
	for to := range m.transitions[from] {
		out = append(out, to)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
