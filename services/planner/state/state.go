// Copyright (C) 2026 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package state holds the pipeline run state and its persistence.
//
// # Description
//
// One State value describes one run in full: which phases and stages are
// where, the anchor, the gate the run is suspended on, and the flags
// phase predicates read. The workflow engine mutates a State in memory
// and persists it wholesale after every transition, so a run resumes
// from any point rather than restarting. Snapshots are explicitly
// versioned twice over: a semver schema version guarding compatibility
// across builds, and a strictly monotonic revision counting transitions
// within the run.
//
// # Thread Safety
//
// State values are not synchronized; the engine is the single writer.
// Store implementations are safe for concurrent use.
package state

import (
	"encoding/hex"
	"fmt"
	"time"

	"github.com/google/uuid"
	"golang.org/x/mod/semver"

	"github.com/AleutianAI/wayfinder/services/planner/anchor"
	"github.com/AleutianAI/wayfinder/services/planner/gates"
	"github.com/AleutianAI/wayfinder/services/planner/verify"
)

// SchemaVersion is the snapshot schema this build reads and writes.
// Loading a snapshot from a different major version fails.
const SchemaVersion = "v1.0.0"

// RunStatus is the run-level lifecycle state.
type RunStatus string

const (
	// RunActive means the engine is executing stages.
	RunActive RunStatus = "active"

	// RunAwaitingGate means the run is suspended on a human decision.
	RunAwaitingGate RunStatus = "awaiting_gate"

	// RunCompleted means every phase finished and the specification was
	// produced.
	RunCompleted RunStatus = "completed"

	// RunFailed means the run stopped on an unrecoverable error.
	RunFailed RunStatus = "failed"

	// RunCancelled means the user stopped the run. Partial artifacts are
	// retained; a later run diffs against them.
	RunCancelled RunStatus = "cancelled"
)

// PhaseStatus is the per-phase lifecycle state.
type PhaseStatus string

const (
	PhaseNotStarted   PhaseStatus = "not_started"
	PhaseInProgress   PhaseStatus = "in_progress"
	PhaseAwaitingGate PhaseStatus = "awaiting_gate"
	PhaseComplete     PhaseStatus = "complete"
	PhaseSkipped      PhaseStatus = "skipped"
)

// StageStatus is the per-stage lifecycle state.
type StageStatus string

const (
	StagePending   StageStatus = "pending"
	StageRunning   StageStatus = "running"
	StageCompleted StageStatus = "completed"
	StageBlocked   StageStatus = "blocked_on_approval"
	StageFailed    StageStatus = "failed"
	StageSkipped   StageStatus = "skipped"
)

// NewRunID mints a run identifier, e.g. "RUN-7c19d2aa".
func NewRunID() string {
	raw := uuid.New()
	return "RUN-" + hex.EncodeToString(raw[:4])
}

// StageRecord tracks one stage's progress within a phase.
type StageRecord struct {
	Name   string      `json:"name"`
	Status StageStatus `json:"status"`

	// Attempts counts generation attempts consumed, across feedback
	// retries. Transport retries inside one attempt are not counted.
	Attempts int `json:"attempts,omitempty"`

	// ArtifactIDs lists the artifacts this stage appended to the store.
	ArtifactIDs []string `json:"artifact_ids,omitempty"`

	// Error holds the last failure text for failed stages.
	Error string `json:"error,omitempty"`

	StartedAt   int64 `json:"started_at,omitempty"`
	CompletedAt int64 `json:"completed_at,omitempty"`
}

// PhaseRecord tracks one phase's progress.
type PhaseRecord struct {
	Name   string        `json:"name"`
	Status PhaseStatus   `json:"status"`
	Stages []StageRecord `json:"stages,omitempty"`

	// VerifierReruns counts verifier-triggered re-runs of this phase's
	// generation stages. Bounded by configuration, independent of
	// per-call generation retries.
	VerifierReruns int `json:"verifier_reruns,omitempty"`

	// LastReport is the most recent boundary verification result.
	LastReport *verify.Report `json:"last_report,omitempty"`

	// AcknowledgedViolations records the violation keys a human
	// explicitly overrode at the gate. Never cleared; traceability
	// outlives the decision.
	AcknowledgedViolations []string `json:"acknowledged_violations,omitempty"`

	StartedAt   int64 `json:"started_at,omitempty"`
	CompletedAt int64 `json:"completed_at,omitempty"`
}

// Stage returns the named stage record, or nil.
func (p *PhaseRecord) Stage(name string) *StageRecord {
	for i := range p.Stages {
		if p.Stages[i].Name == name {
			return &p.Stages[i]
		}
	}
	return nil
}

// State is one run's complete, persistable position.
type State struct {
	SchemaVersion string    `json:"schema_version"`
	RunID         string    `json:"run_id"`
	Revision      uint64    `json:"revision"`
	Status        RunStatus `json:"status"`

	// Idea is the raw original request the run started from. Retained
	// verbatim so extraction can be retried and audited.
	Idea string `json:"idea"`

	// Anchor is the concept anchor, present once extraction succeeds.
	Anchor *anchor.Anchor `json:"anchor,omitempty"`

	Phases []PhaseRecord `json:"phases"`

	// PendingGate is the presentation the run is suspended on, if any.
	PendingGate *gates.Presentation `json:"pending_gate,omitempty"`

	// Flags accumulates facts phase entry predicates read, e.g.
	// "anchor_confirmed". Set-once by convention.
	Flags map[string]bool `json:"flags,omitempty"`

	// PendingFeedback holds reviewer notes from the most recent
	// request_changes decision. The next generation re-run consumes and
	// clears them.
	PendingFeedback []string `json:"pending_feedback,omitempty"`

	CreatedAt int64 `json:"created_at"`
	UpdatedAt int64 `json:"updated_at"`
}

// New creates the revision-zero state for a fresh run. The first Save
// must follow a Bump.
func New(runID, idea string) *State {
	now := time.Now().UTC().UnixMilli()
	return &State{
		SchemaVersion: SchemaVersion,
		RunID:         runID,
		Status:        RunActive,
		Idea:          idea,
		Flags:         make(map[string]bool),
		CreatedAt:     now,
		UpdatedAt:     now,
	}
}

// Bump advances the revision before a save. One bump per transition.
func (s *State) Bump() {
	s.Revision++
	s.UpdatedAt = time.Now().UTC().UnixMilli()
}

// Phase returns the named phase record, or nil.
func (s *State) Phase(name string) *PhaseRecord {
	for i := range s.Phases {
		if s.Phases[i].Name == name {
			return &s.Phases[i]
		}
	}
	return nil
}

// EnsurePhase returns the named phase record, appending a not-started
// record if absent.
func (s *State) EnsurePhase(name string) *PhaseRecord {
	if p := s.Phase(name); p != nil {
		return p
	}
	s.Phases = append(s.Phases, PhaseRecord{Name: name, Status: PhaseNotStarted})
	return &s.Phases[len(s.Phases)-1]
}

// EnsureStage returns the stage record within a phase, appending a
// pending record if absent. The phase record is created as needed.
func (s *State) EnsureStage(phase, stage string) *StageRecord {
	p := s.EnsurePhase(phase)
	if rec := p.Stage(stage); rec != nil {
		return rec
	}
	p.Stages = append(p.Stages, StageRecord{Name: stage, Status: StagePending})
	return &p.Stages[len(p.Stages)-1]
}

// Flag reports whether a predicate flag is set.
func (s *State) Flag(name string) bool {
	return s.Flags[name]
}

// SetFlag records a predicate flag.
func (s *State) SetFlag(name string) {
	if s.Flags == nil {
		s.Flags = make(map[string]bool)
	}
	s.Flags[name] = true
}

// Suspend parks the run on a gate. The caller persists afterwards.
func (s *State) Suspend(p *gates.Presentation) {
	s.PendingGate = p
	s.Status = RunAwaitingGate
	if phase := s.Phase(p.Phase); phase != nil {
		phase.Status = PhaseAwaitingGate
	}
}

// ClearGate lifts a suspension after a decision was applied.
func (s *State) ClearGate() {
	s.PendingGate = nil
	if s.Status == RunAwaitingGate {
		s.Status = RunActive
	}
}

// Terminal reports whether the run can no longer advance.
func (s *State) Terminal() bool {
	switch s.Status {
	case RunCompleted, RunFailed, RunCancelled:
		return true
	}
	return false
}

// Validate checks the snapshot invariants.
func (s *State) Validate() error {
	if s.RunID == "" {
		return fmt.Errorf("%w: missing run_id", ErrInvalidState)
	}
	if !semver.IsValid(s.SchemaVersion) {
		return fmt.Errorf("%w: schema_version %q is not semver", ErrInvalidState, s.SchemaVersion)
	}
	switch s.Status {
	case RunActive, RunAwaitingGate, RunCompleted, RunFailed, RunCancelled:
	default:
		return fmt.Errorf("%w: unknown status %q", ErrInvalidState, s.Status)
	}
	if s.Status == RunAwaitingGate && s.PendingGate == nil {
		return fmt.Errorf("%w: awaiting_gate without a pending gate", ErrInvalidState)
	}

	seen := make(map[string]bool, len(s.Phases))
	for _, p := range s.Phases {
		if p.Name == "" {
			return fmt.Errorf("%w: phase with empty name", ErrInvalidState)
		}
		if seen[p.Name] {
			return fmt.Errorf("%w: duplicate phase %q", ErrInvalidState, p.Name)
		}
		seen[p.Name] = true

		switch p.Status {
		case PhaseNotStarted, PhaseInProgress, PhaseAwaitingGate, PhaseComplete, PhaseSkipped:
		default:
			return fmt.Errorf("%w: phase %q has unknown status %q", ErrInvalidState, p.Name, p.Status)
		}

		stages := make(map[string]bool, len(p.Stages))
		for _, st := range p.Stages {
			if st.Name == "" {
				return fmt.Errorf("%w: phase %q has a stage with empty name", ErrInvalidState, p.Name)
			}
			if stages[st.Name] {
				return fmt.Errorf("%w: phase %q has duplicate stage %q", ErrInvalidState, p.Name, st.Name)
			}
			stages[st.Name] = true

			switch st.Status {
			case StagePending, StageRunning, StageCompleted, StageBlocked, StageFailed, StageSkipped:
			default:
				return fmt.Errorf("%w: stage %q has unknown status %q", ErrInvalidState, st.Name, st.Status)
			}
		}
	}
	return nil
}

// CompatibleSchema reports whether a snapshot version can be read by
// this build. Major versions must match.
func CompatibleSchema(version string) bool {
	return semver.IsValid(version) && semver.Major(version) == semver.Major(SchemaVersion)
}
