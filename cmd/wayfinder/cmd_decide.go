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
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/charmbracelet/huh"
	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"

	"github.com/AleutianAI/wayfinder/services/planner"
	"github.com/AleutianAI/wayfinder/services/planner/gates"
)

// =============================================================================
// DECIDE COMMAND
// =============================================================================

// runDecide is the CLI handler for "wayfinder decide". Without --action
// on a TTY it walks the user through an interactive form built from the
// pending gate presentation; otherwise the decision is assembled from
// flags, which is what scripts and CI use.
//
// # Exit Codes
//
//   - 0: Decision applied, run completed or still advancing
//   - 1: Run suspended on a further gate
//   - 2: Decision rejected or run failed
func runDecide(cmd *cobra.Command, args []string) {
	runID := args[0]

	err := withService(cmd.Context(), func(ctx context.Context, svc *planner.Service) error {
		st, err := svc.Engine().Load(ctx, runID)
		if err != nil {
			return err
		}
		if st.PendingGate == nil {
			return fmt.Errorf("run %s has no pending gate", runID)
		}
		p := st.PendingGate

		var decision *gates.Decision
		if decideAction == "" && isatty.IsTerminal(os.Stdin.Fd()) {
			printGate(p)
			decision, err = promptDecision(p)
		} else {
			decision, err = decisionFromFlags(p)
		}
		if err != nil {
			return err
		}
		if err := decision.Validate(); err != nil {
			return err
		}

		next, err := svc.Engine().Resume(ctx, runID, decision)
		if err != nil {
			return err
		}
		reportRun(next)
		exitForStatus(next)
		return nil
	})
	if err != nil {
		fail("decide failed", err)
	}
}

// decisionFromFlags builds a decision from --action and its companions.
func decisionFromFlags(p *gates.Presentation) (*gates.Decision, error) {
	if decideAction == "" {
		return nil, fmt.Errorf("--action is required when stdin is not a terminal")
	}
	d := &gates.Decision{
		GateID:       p.ID,
		Action:       gates.Action(decideAction),
		Feedback:     decideFeedback,
		Acknowledged: decideAcknowledged,
		DecidedBy:    decideBy,
		DecidedAt:    time.Now().UTC().UnixMilli(),
	}
	for _, raw := range decideSelections {
		sel, err := parseSelection(raw)
		if err != nil {
			return nil, err
		}
		d.Selections = append(d.Selections, sel)
	}
	return d, nil
}

// parseSelection parses "invariant_id=option_id" or
// "invariant_id=text:free form answer".
func parseSelection(raw string) (gates.Selection, error) {
	invID, answer, ok := strings.Cut(raw, "=")
	if !ok || invID == "" || answer == "" {
		return gates.Selection{}, fmt.Errorf("malformed --select %q, want invariant_id=option_id", raw)
	}
	if text, isFree := strings.CutPrefix(answer, "text:"); isFree {
		return gates.Selection{InvariantID: invID, FreeText: text}, nil
	}
	return gates.Selection{InvariantID: invID, OptionID: answer}, nil
}

// =============================================================================
// INTERACTIVE FORM
// =============================================================================

// promptDecision runs the interactive gate form. The action choices and
// follow-up prompts depend on the gate type: ambiguity gates resolve
// invariants one by one, escalation gates acknowledge violations.
func promptDecision(p *gates.Presentation) (*gates.Decision, error) {
	d := &gates.Decision{GateID: p.ID}

	var action string
	form := huh.NewForm(huh.NewGroup(
		huh.NewSelect[string]().
			Title("Decision for gate " + p.ID).
			Options(actionOptions(p.Type)...).
			Value(&action),
	))
	if err := form.Run(); err != nil {
		return nil, err
	}
	d.Action = gates.Action(action)

	switch d.Action {
	case gates.ActionRequestChanges:
		var feedback string
		err := huh.NewForm(huh.NewGroup(
			huh.NewText().
				Title("What should change?").
				Description("The phase re-runs with this feedback in the generation context.").
				Value(&feedback).
				Validate(func(s string) error {
					if strings.TrimSpace(s) == "" {
						return fmt.Errorf("feedback cannot be empty")
					}
					return nil
				}),
		)).Run()
		if err != nil {
			return nil, err
		}
		d.Feedback = feedback

	case gates.ActionResolveAmbiguity:
		for _, inv := range p.Ambiguities {
			sel, err := promptSelection(inv.ID, inv.Property, inv.Value, invariantOptions(p, inv.ID))
			if err != nil {
				return nil, err
			}
			d.Selections = append(d.Selections, sel)
		}

	case gates.ActionOverrideViolation:
		if p.Report != nil {
			keys := make([]huh.Option[string], 0, len(p.Report.Violations))
			for _, v := range p.Report.Violations {
				keys = append(keys, huh.NewOption(fmt.Sprintf("%s — %s", v.Key(), v.Detail), v.Key()))
			}
			var acked []string
			err := huh.NewForm(huh.NewGroup(
				huh.NewMultiSelect[string]().
					Title("Acknowledge violations").
					Description("Only acknowledged blocking violations are overridden.").
					Options(keys...).
					Value(&acked),
			)).Run()
			if err != nil {
				return nil, err
			}
			d.Acknowledged = acked
		}
	}

	d.DecidedBy = decideBy
	d.DecidedAt = time.Now().UTC().UnixMilli()
	return d, nil
}

// promptSelection asks for one invariant resolution, offering the
// clarification options plus a free-text escape hatch.
func promptSelection(invID, property, value string, opts []huh.Option[string]) (gates.Selection, error) {
	opts = append(opts, huh.NewOption("Something else (free text)", ""))

	var optionID string
	err := huh.NewForm(huh.NewGroup(
		huh.NewSelect[string]().
			Title(fmt.Sprintf("%s: %s = %s", invID, property, value)).
			Options(opts...).
			Value(&optionID),
	)).Run()
	if err != nil {
		return gates.Selection{}, err
	}
	if optionID != "" {
		return gates.Selection{InvariantID: invID, OptionID: optionID}, nil
	}

	var text string
	err = huh.NewForm(huh.NewGroup(
		huh.NewInput().
			Title("Your reading of " + property).
			Value(&text).
			Validate(func(s string) error {
				if strings.TrimSpace(s) == "" {
					return fmt.Errorf("an answer is required")
				}
				return nil
			}),
	)).Run()
	if err != nil {
		return gates.Selection{}, err
	}
	return gates.Selection{InvariantID: invID, FreeText: text}, nil
}

// actionOptions lists the actions that make sense for a gate type.
func actionOptions(t gates.Type) []huh.Option[string] {
	switch t {
	case gates.TypeAmbiguity:
		return []huh.Option[string]{
			huh.NewOption("Resolve the ambiguities", string(gates.ActionResolveAmbiguity)),
		}
	case gates.TypeViolationEscalation:
		return []huh.Option[string]{
			huh.NewOption("Request changes", string(gates.ActionRequestChanges)),
			huh.NewOption("Override the violations", string(gates.ActionOverrideViolation)),
		}
	default:
		return []huh.Option[string]{
			huh.NewOption("Approve", string(gates.ActionApprove)),
			huh.NewOption("Request changes", string(gates.ActionRequestChanges)),
		}
	}
}

// invariantOptions collects the clarification options for one invariant.
func invariantOptions(p *gates.Presentation, invID string) []huh.Option[string] {
	for _, inv := range p.Ambiguities {
		if inv.ID != invID {
			continue
		}
		opts := make([]huh.Option[string], 0, len(inv.Options))
		for _, o := range inv.Options {
			label := o.Statement
			if o.Implication != "" {
				label += " (" + o.Implication + ")"
			}
			opts = append(opts, huh.NewOption(label, o.ID))
		}
		return opts
	}
	return nil
}
