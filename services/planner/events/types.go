// Copyright (C) 2026 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package events provides event types and broadcasting for pipeline runs.
//
// Events let external systems observe run progress, stream it over
// websockets, and collect usage without coupling to the engine.
//
// Thread Safety:
//
//	All types in this package are designed for concurrent use.
package events

import "time"

// Type identifies the kind of event.
type Type string

const (
	// TypeRunStarted is emitted when a run begins from a fresh idea.
	TypeRunStarted Type = "run_started"

	// TypeRunResumed is emitted when a suspended run picks back up.
	TypeRunResumed Type = "run_resumed"

	// TypePhaseStarted is emitted when a phase begins executing.
	TypePhaseStarted Type = "phase_started"

	// TypePhaseCompleted is emitted when a phase clears its boundary.
	TypePhaseCompleted Type = "phase_completed"

	// TypeStageStarted is emitted when a stage begins executing.
	TypeStageStarted Type = "stage_started"

	// TypeStageCompleted is emitted when a stage finishes.
	TypeStageCompleted Type = "stage_completed"

	// TypeGateOpened is emitted when the run suspends on a gate.
	TypeGateOpened Type = "gate_opened"

	// TypeGateDecided is emitted when a gate decision is applied.
	TypeGateDecided Type = "gate_decided"

	// TypeVerification is emitted after a phase-boundary verification.
	TypeVerification Type = "verification"

	// TypeArtifactsChanged is emitted when a stage changes the artifact set.
	TypeArtifactsChanged Type = "artifacts_changed"

	// TypeGeneration is emitted when a model call completes.
	TypeGeneration Type = "generation"

	// TypeError is emitted when a run hits an error.
	TypeError Type = "error"

	// TypeRunFinished is emitted when a run reaches a terminal status.
	TypeRunFinished Type = "run_finished"
)

// Metadata carries typed additional context for events.
type Metadata struct {
	// TraceID links the event to a distributed trace.
	TraceID string `json:"trace_id,omitempty"`

	// SpanID links the event to a specific span.
	SpanID string `json:"span_id,omitempty"`

	// Source identifies where the event originated.
	Source string `json:"source,omitempty"`
}

// Event is one observation of run progress.
//
// The Type determines the structure of Data; use the typed data structs
// below. Events are immutable after creation.
type Event struct {
	// ID is a unique identifier for this event.
	ID string `json:"id"`

	// Type identifies the kind of event.
	Type Type `json:"type"`

	// RunID links the event to a pipeline run.
	RunID string `json:"run_id"`

	// Timestamp is when the event occurred (Unix milliseconds UTC).
	Timestamp int64 `json:"timestamp"`

	// Revision is the run's state revision when the event was emitted.
	Revision uint64 `json:"revision"`

	// Data contains event-specific data: one of RunStartedData,
	// RunResumedData, PhaseData, StageData, GateOpenedData,
	// GateDecidedData, VerificationData, ArtifactsChangedData,
	// GenerationData, ErrorData, or RunFinishedData.
	Data any `json:"data,omitempty"`

	// Metadata carries typed additional context.
	Metadata *Metadata `json:"metadata,omitempty"`
}

// RunStartedData is the data for run start events.
type RunStartedData struct {
	// Idea is the raw idea text the run was seeded with.
	Idea string `json:"idea"`
}

// RunResumedData is the data for run resume events.
type RunResumedData struct {
	// FromRevision is the persisted revision the run resumed from.
	FromRevision uint64 `json:"from_revision"`

	// GateID is set when the resume was triggered by a gate decision.
	GateID string `json:"gate_id,omitempty"`
}

// PhaseData is the data for phase start and completion events.
type PhaseData struct {
	// Phase is the phase name.
	Phase string `json:"phase"`

	// Duration is how long the phase ran. Zero on start events.
	Duration time.Duration `json:"duration,omitempty"`
}

// StageData is the data for stage start and completion events.
type StageData struct {
	// Phase is the owning phase.
	Phase string `json:"phase"`

	// Stage is the stage name.
	Stage string `json:"stage"`

	// Attempt is the 1-based attempt number.
	Attempt int `json:"attempt"`

	// Duration is how long the stage ran. Zero on start events.
	Duration time.Duration `json:"duration,omitempty"`

	// ArtifactIDs are the artifacts the stage produced.
	ArtifactIDs []string `json:"artifact_ids,omitempty"`

	// Error is set when the stage failed.
	Error string `json:"error,omitempty"`
}

// GateOpenedData is the data for gate suspension events.
type GateOpenedData struct {
	// GateID identifies the presentation awaiting a decision.
	GateID string `json:"gate_id"`

	// GateType is the kind of gate (phase approval, ambiguity, escalation).
	GateType string `json:"gate_type"`

	// Phase is the phase that suspended.
	Phase string `json:"phase"`

	// Summary is the human-facing one-liner from the presentation.
	Summary string `json:"summary,omitempty"`
}

// GateDecidedData is the data for gate decision events.
type GateDecidedData struct {
	// GateID identifies the presentation that was decided.
	GateID string `json:"gate_id"`

	// Action is the decision action taken.
	Action string `json:"action"`

	// DecidedBy names the decider when known.
	DecidedBy string `json:"decided_by,omitempty"`
}

// VerificationData is the data for phase-boundary verification events.
type VerificationData struct {
	// Phase is the phase whose boundary was verified.
	Phase string `json:"phase"`

	// Passes are the verification passes that ran.
	Passes []string `json:"passes"`

	// Blocking is the number of blocking violations found.
	Blocking int `json:"blocking"`

	// Warnings is the number of warning violations found.
	Warnings int `json:"warnings"`

	// Rerun is the 0-based verification attempt within the phase.
	Rerun int `json:"rerun,omitempty"`
}

// ArtifactsChangedData is the data for artifact set change events.
type ArtifactsChangedData struct {
	// Phase is the phase in which the change happened.
	Phase string `json:"phase"`

	Added      int `json:"added"`
	Removed    int `json:"removed"`
	Modified   int `json:"modified"`
	Superseded int `json:"superseded"`
}

// GenerationData is the data for model call events.
type GenerationData struct {
	// Stage is the pipeline stage that made the call.
	Stage string `json:"stage"`

	// Model is the model that responded.
	Model string `json:"model"`

	// TokensIn is the prompt token count.
	TokensIn int `json:"tokens_in"`

	// TokensOut is the completion token count.
	TokensOut int `json:"tokens_out"`

	// Duration is how long the call took.
	Duration time.Duration `json:"duration"`
}

// ErrorData is the data for error events.
type ErrorData struct {
	// Error is the error message.
	Error string `json:"error"`

	// Phase is the phase where the error occurred.
	Phase string `json:"phase,omitempty"`

	// Stage is the stage where the error occurred.
	Stage string `json:"stage,omitempty"`

	// Recoverable indicates whether the run can continue.
	Recoverable bool `json:"recoverable"`
}

// RunFinishedData is the data for run termination events.
type RunFinishedData struct {
	// Status is the terminal run status.
	Status string `json:"status"`

	// TotalDuration is wall time from run start, when known.
	TotalDuration time.Duration `json:"total_duration,omitempty"`

	// Error is set when the run failed.
	Error string `json:"error,omitempty"`
}
