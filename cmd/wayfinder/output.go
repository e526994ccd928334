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
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"

	"github.com/AleutianAI/wayfinder/services/planner/gates"
	"github.com/AleutianAI/wayfinder/services/planner/state"
	"github.com/AleutianAI/wayfinder/services/planner/verify"
)

// Exit codes for CLI commands.
const (
	CLIExitSuccess  = 0 // Operation completed successfully
	CLIExitFindings = 1 // Operation completed but a gate or violation needs attention
	CLIExitError    = 2 // Operation failed
)

// =============================================================================
// STYLES
// =============================================================================

var (
	styleTitle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#2CD7C7"))

	styleLabel = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#20B9B4"))

	styleMuted = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#2C4A54"))

	styleWarn = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#F4D03F"))

	styleError = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#E74C3C"))

	styleGateBox = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("#16858E")).
			Padding(0, 1)
)

// OutputJSON writes structured data as indented JSON to stdout.
func OutputJSON(data any) error {
	encoder := json.NewEncoder(os.Stdout)
	encoder.SetIndent("", "  ")
	return encoder.Encode(data)
}

// fail prints an error and exits with CLIExitError.
func fail(msg string, err error) {
	if jsonOutput {
		_ = OutputJSON(map[string]any{"error": fmt.Sprintf("%s: %v", msg, err)})
	} else {
		fmt.Fprintln(os.Stderr, styleError.Render(fmt.Sprintf("%s: %v", msg, err)))
	}
	os.Exit(CLIExitError)
}

// =============================================================================
// RUN RENDERING
// =============================================================================

// printRun renders a run summary: identity, status, per-phase progress,
// and the pending gate when the run is suspended.
func printRun(st *state.State) {
	fmt.Println(styleTitle.Render("Run " + st.RunID))
	fmt.Printf("%s %s\n", styleLabel.Render("Status:"), renderStatus(st.Status))
	fmt.Printf("%s %d\n", styleLabel.Render("Revision:"), st.Revision)
	fmt.Printf("%s %s\n", styleLabel.Render("Updated:"), formatMillis(st.UpdatedAt))

	if len(st.Phases) > 0 {
		fmt.Println(styleLabel.Render("Phases:"))
		for _, ph := range st.Phases {
			line := fmt.Sprintf("  %-14s %s", ph.Name, ph.Status)
			if ph.VerifierReruns > 0 {
				line += styleMuted.Render(fmt.Sprintf("  (%d verifier re-runs)", ph.VerifierReruns))
			}
			fmt.Println(line)
		}
	}

	if st.PendingGate != nil {
		fmt.Println()
		printGate(st.PendingGate)
	}
}

func renderStatus(s state.RunStatus) string {
	switch s {
	case state.RunAwaitingGate:
		return styleWarn.Render(string(s))
	case state.RunFailed:
		return styleError.Render(string(s))
	default:
		return string(s)
	}
}

// printGate renders a pending gate presentation in a bordered box.
func printGate(p *gates.Presentation) {
	var body string
	body += fmt.Sprintf("Gate %s  (%s, phase %s)\n", p.ID, p.Type, p.Phase)
	body += p.Summary

	if p.Report != nil {
		body += "\n\n" + renderVerdict(p.Report)
		if len(p.Report.Violations) > 0 {
			body += "\n\nViolations:"
			for _, v := range p.Report.Violations {
				body += "\n  " + renderViolation(v)
			}
		}
	}
	if len(p.Ambiguities) > 0 {
		body += "\n\nUnresolved invariants:"
		for _, inv := range p.Ambiguities {
			body += fmt.Sprintf("\n  %s: %s = %s (confidence %.2f)",
				inv.ID, inv.Property, inv.Value, inv.Confidence)
			for _, opt := range inv.Options {
				body += fmt.Sprintf("\n    [%s] %s", opt.ID, opt.Statement)
			}
		}
	}
	if p.Diff != nil {
		body += "\n\n" + styleMuted.Render("A recompute diff is attached; see `wayfinder status --json` for detail.")
	}

	fmt.Println(styleGateBox.Render(body))
	fmt.Println(styleMuted.Render(
		fmt.Sprintf("Decide with: wayfinder decide %s", p.RunID)))
}

// renderVerdict summarizes the verification report's positive half: what
// was checked and upheld, not only what went wrong.
func renderVerdict(r *verify.Report) string {
	verdict := "passed"
	if !r.Passed {
		verdict = "blocked"
	}
	line := fmt.Sprintf("Verification %s: %d invariants honored, %d violated",
		verdict, len(r.InvariantsHonored), len(r.InvariantsViolated))
	if len(r.IdentityPreserved) > 0 {
		line += "\n  identity preserved: " + strings.Join(r.IdentityPreserved, ", ")
	}
	if len(r.IdentityGenericized) > 0 {
		line += "\n  " + styleWarn.Render("identity genericized: "+strings.Join(r.IdentityGenericized, ", "))
	}
	if !r.Passed {
		return styleError.Render(line)
	}
	return styleMuted.Render(line)
}

func renderViolation(v verify.Violation) string {
	line := fmt.Sprintf("[%s] %s: %s", v.Severity, v.Property, v.Detail)
	if v.Severity == verify.SeverityBlocking {
		return styleError.Render(line)
	}
	return styleWarn.Render(line)
}

func formatMillis(ms int64) string {
	if ms == 0 {
		return "-"
	}
	return time.UnixMilli(ms).Local().Format(time.RFC3339)
}
