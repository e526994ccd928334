// Copyright (C) 2026 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package gates models human decision gates: the presentation the engine
// surfaces when it suspends, and the decision the human sends back to
// resume it. Gates are suspension states, never blocking calls; the
// engine persists the pending presentation and returns, and a Channel
// delivers the eventual decision.
package gates

import (
	"encoding/hex"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/AleutianAI/wayfinder/services/planner/anchor"
	"github.com/AleutianAI/wayfinder/services/planner/diff"
	"github.com/AleutianAI/wayfinder/services/planner/verify"
)

// Type says why the engine suspended.
type Type string

const (
	// TypePhaseApproval is the routine end-of-phase review.
	TypePhaseApproval Type = "phase_approval"

	// TypeAmbiguity asks the user to resolve low-confidence anchor
	// invariants before the anchor can be confirmed.
	TypeAmbiguity Type = "ambiguity"

	// TypeViolationEscalation surfaces blocking verification violations
	// that survived the bounded re-runs.
	TypeViolationEscalation Type = "violation_escalation"
)

// Action is the decision the human takes at a gate.
type Action string

const (
	// ActionApprove accepts the phase output and lets the run advance.
	ActionApprove Action = "approve"

	// ActionRequestChanges sends the phase back with feedback.
	ActionRequestChanges Action = "request_changes"

	// ActionResolveAmbiguity answers clarification options on the anchor.
	ActionResolveAmbiguity Action = "resolve_ambiguity"

	// ActionOverrideViolation acknowledges blocking violations and lets
	// the run advance anyway. Recorded, never silent.
	ActionOverrideViolation Action = "override_violation"
)

// NewGateID mints a gate identifier, e.g. "GATE-9f2c41ab".
func NewGateID() string {
	raw := uuid.New()
	return "GATE-" + hex.EncodeToString(raw[:4])
}

// Presentation is everything the human needs to decide a gate. It is
// persisted with the run state while the engine is suspended.
type Presentation struct {
	ID      string `json:"id"`
	RunID   string `json:"run_id"`
	Phase   string `json:"phase"`
	Type    Type   `json:"type"`
	Summary string `json:"summary"`

	// Diff is the recompute result that motivated this phase, when any.
	Diff *diff.Diff `json:"diff,omitempty"`

	// Report is the phase verification report, when the phase ran one.
	Report *verify.Report `json:"report,omitempty"`

	// Ambiguities carries the unresolved invariants with their options
	// for TypeAmbiguity gates.
	Ambiguities []anchor.Invariant `json:"ambiguities,omitempty"`

	CreatedAt int64 `json:"created_at"`
}

// NewPresentation builds a presentation with a minted ID and timestamp.
func NewPresentation(runID, phase string, typ Type, summary string) *Presentation {
	return &Presentation{
		ID:        NewGateID(),
		RunID:     runID,
		Phase:     phase,
		Type:      typ,
		Summary:   summary,
		CreatedAt: time.Now().UTC().UnixMilli(),
	}
}

// Validate checks the presentation invariants.
func (p *Presentation) Validate() error {
	if p.ID == "" || p.RunID == "" || p.Phase == "" {
		return fmt.Errorf("%w: id, run_id, and phase are required", ErrInvalidPresentation)
	}
	switch p.Type {
	case TypePhaseApproval, TypeViolationEscalation:
	case TypeAmbiguity:
		if len(p.Ambiguities) == 0 {
			return fmt.Errorf("%w: ambiguity gate with no ambiguities", ErrInvalidPresentation)
		}
	default:
		return fmt.Errorf("%w: unknown type %q", ErrInvalidPresentation, p.Type)
	}
	return nil
}

// Selection answers one ambiguous invariant, by option or free text.
type Selection struct {
	InvariantID string `json:"invariant_id"`
	OptionID    string `json:"option_id,omitempty"`
	FreeText    string `json:"free_text,omitempty"`
}

// Decision is the human's answer to a presentation.
type Decision struct {
	GateID string `json:"gate_id"`
	Action Action `json:"action"`

	// Feedback carries the change request for ActionRequestChanges.
	Feedback string `json:"feedback,omitempty"`

	// Selections answer ambiguities for ActionResolveAmbiguity.
	Selections []Selection `json:"selections,omitempty"`

	// Acknowledged lists violation keys (Violation.Key) the user accepts
	// for ActionOverrideViolation.
	Acknowledged []string `json:"acknowledged,omitempty"`

	// DecidedBy identifies the decider as reported by the channel.
	DecidedBy string `json:"decided_by,omitempty"`

	DecidedAt int64 `json:"decided_at"`
}

// Validate checks the decision shape for its action.
func (d *Decision) Validate() error {
	if d.GateID == "" {
		return fmt.Errorf("%w: missing gate_id", ErrInvalidDecision)
	}
	switch d.Action {
	case ActionApprove:
	case ActionRequestChanges:
		if d.Feedback == "" {
			return fmt.Errorf("%w: request_changes without feedback", ErrInvalidDecision)
		}
	case ActionResolveAmbiguity:
		if len(d.Selections) == 0 {
			return fmt.Errorf("%w: resolve_ambiguity without selections", ErrInvalidDecision)
		}
		for i, sel := range d.Selections {
			if sel.InvariantID == "" {
				return fmt.Errorf("%w: selection %d missing invariant_id", ErrInvalidDecision, i)
			}
			if (sel.OptionID == "") == (sel.FreeText == "") {
				return fmt.Errorf("%w: selection for %s needs exactly one of option_id or free_text",
					ErrInvalidDecision, sel.InvariantID)
			}
		}
	case ActionOverrideViolation:
		if len(d.Acknowledged) == 0 {
			return fmt.Errorf("%w: override_violation without acknowledged violations", ErrInvalidDecision)
		}
	default:
		return fmt.Errorf("%w: unknown action %q", ErrInvalidDecision, d.Action)
	}
	return nil
}
