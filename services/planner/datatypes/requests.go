// Copyright (C) 2026 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package datatypes holds the HTTP request and response shapes for the
// planner service. Requests carry binding tags; the handlers rely on
// ShouldBindJSON for the first validation pass.
package datatypes

import (
	"github.com/AleutianAI/wayfinder/services/planner/gates"
	"github.com/AleutianAI/wayfinder/services/planner/state"
)

// StartRunRequest starts a pipeline run from a raw idea.
type StartRunRequest struct {
	// Idea is the unstructured product idea text.
	Idea string `json:"idea" binding:"required,min=10"`
}

// DecideRequest resumes a suspended run with a gate decision.
type DecideRequest struct {
	// GateID must match the run's pending gate.
	GateID string `json:"gate_id" binding:"required"`

	// Action is one of approve, request_changes, resolve_ambiguity,
	// override_violation.
	Action string `json:"action" binding:"required,oneof=approve request_changes resolve_ambiguity override_violation"`

	// Feedback carries the change request for request_changes.
	Feedback string `json:"feedback,omitempty"`

	// Selections answer ambiguities for resolve_ambiguity.
	Selections []SelectionRequest `json:"selections,omitempty"`

	// Acknowledged lists violation keys for override_violation.
	Acknowledged []string `json:"acknowledged,omitempty"`

	// DecidedBy identifies the decider.
	DecidedBy string `json:"decided_by,omitempty"`
}

// SelectionRequest answers one ambiguous invariant.
type SelectionRequest struct {
	InvariantID string `json:"invariant_id" binding:"required"`
	OptionID    string `json:"option_id,omitempty"`
	FreeText    string `json:"free_text,omitempty"`
}

// Decision converts the request into the gate decision shape. Deeper
// validation (exactly one of option/free text, action-specific field
// requirements) happens in gates.Decision.Validate.
func (r *DecideRequest) Decision() *gates.Decision {
	d := &gates.Decision{
		GateID:       r.GateID,
		Action:       gates.Action(r.Action),
		Feedback:     r.Feedback,
		Acknowledged: append([]string(nil), r.Acknowledged...),
		DecidedBy:    r.DecidedBy,
	}
	for _, sel := range r.Selections {
		d.Selections = append(d.Selections, gates.Selection{
			InvariantID: sel.InvariantID,
			OptionID:    sel.OptionID,
			FreeText:    sel.FreeText,
		})
	}
	return d
}

// RunResponse is the run summary returned by run endpoints.
type RunResponse struct {
	RunID    string `json:"run_id"`
	Status   string `json:"status"`
	Revision uint64 `json:"revision"`

	// Phases summarizes per-phase progress.
	Phases []PhaseSummary `json:"phases,omitempty"`

	// PendingGate is set while the run awaits a decision.
	PendingGate *gates.Presentation `json:"pending_gate,omitempty"`
}

// PhaseSummary is one phase's progress line.
type PhaseSummary struct {
	Name           string         `json:"name"`
	Status         string         `json:"status"`
	VerifierReruns int            `json:"verifier_reruns,omitempty"`
	Stages         []StageSummary `json:"stages,omitempty"`
}

// StageSummary is one stage's progress line.
type StageSummary struct {
	Name        string   `json:"name"`
	Status      string   `json:"status"`
	Attempts    int      `json:"attempts"`
	ArtifactIDs []string `json:"artifact_ids,omitempty"`
	Error       string   `json:"error,omitempty"`
}

// RunFrom builds the response shape from persisted run state.
func RunFrom(st *state.State) *RunResponse {
	resp := &RunResponse{
		RunID:       st.RunID,
		Status:      string(st.Status),
		Revision:    st.Revision,
		PendingGate: st.PendingGate,
	}
	for i := range st.Phases {
		ph := &st.Phases[i]
		ps := PhaseSummary{
			Name:           ph.Name,
			Status:         string(ph.Status),
			VerifierReruns: ph.VerifierReruns,
		}
		for j := range ph.Stages {
			sg := &ph.Stages[j]
			ps.Stages = append(ps.Stages, StageSummary{
				Name:        sg.Name,
				Status:      string(sg.Status),
				Attempts:    sg.Attempts,
				ArtifactIDs: sg.ArtifactIDs,
				Error:       sg.Error,
			})
		}
		resp.Phases = append(resp.Phases, ps)
	}
	return resp
}

// ErrorResponse is the uniform error body.
type ErrorResponse struct {
	// Error is the error message.
	Error string `json:"error"`

	// Code is the error code (optional).
	Code string `json:"code,omitempty"`

	// Details provides additional error context (optional).
	Details string `json:"details,omitempty"`
}

// ExportRequest selects an export target for a finished run.
type ExportRequest struct {
	// Target is "file" or "gcs".
	Target string `json:"target" binding:"required,oneof=file gcs"`

	// ContextOnly exports the work-item-free context shape.
	ContextOnly bool `json:"context_only,omitempty"`
}

// ExportResponse reports where the export landed.
type ExportResponse struct {
	RunID    string `json:"run_id"`
	Location string `json:"location"`
}
