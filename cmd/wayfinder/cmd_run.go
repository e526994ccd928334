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

	"github.com/spf13/cobra"

	"github.com/AleutianAI/wayfinder/services/planner"
	"github.com/AleutianAI/wayfinder/services/planner/state"
)

// =============================================================================
// RUN COMMAND
// =============================================================================

// runStart is the CLI handler for "wayfinder run". The idea comes from
// the positional arguments or, with --file, from a file. The command
// drives the pipeline until the first gate or a terminal state, then
// prints the run summary.
//
// # Exit Codes
//
//   - 0: Run completed
//   - 1: Run suspended on a decision gate
//   - 2: Run failed or could not start
func runStart(cmd *cobra.Command, args []string) {
	idea, err := readIdea(args)
	if err != nil {
		fail("could not read idea", err)
	}

	err = withService(cmd.Context(), func(ctx context.Context, svc *planner.Service) error {
		st, err := svc.Engine().Start(ctx, idea)
		if err != nil {
			if st != nil && st.Status == state.RunFailed {
				reportRun(st)
				os.Exit(CLIExitError)
			}
			return err
		}
		reportRun(st)
		exitForStatus(st)
		return nil
	})
	if err != nil {
		fail("run failed", err)
	}
}

// runResume continues an interrupted or cancelled run without a gate
// decision. Suspended runs need "wayfinder decide" instead; the engine
// rejects a bare resume on those.
func runResume(cmd *cobra.Command, args []string) {
	err := withService(cmd.Context(), func(ctx context.Context, svc *planner.Service) error {
		st, err := svc.Engine().Resume(ctx, args[0], nil)
		if err != nil {
			return err
		}
		reportRun(st)
		exitForStatus(st)
		return nil
	})
	if err != nil {
		fail("resume failed", err)
	}
}

// runCancel stops a run, retaining the artifacts it already produced.
func runCancel(cmd *cobra.Command, args []string) {
	err := withService(cmd.Context(), func(ctx context.Context, svc *planner.Service) error {
		st, err := svc.Engine().Cancel(ctx, args[0])
		if err != nil {
			return err
		}
		reportRun(st)
		return nil
	})
	if err != nil {
		fail("cancel failed", err)
	}
}

// readIdea resolves the idea text from --file or the arguments.
func readIdea(args []string) (string, error) {
	if ideaFile != "" {
		data, err := os.ReadFile(ideaFile)
		if err != nil {
			return "", err
		}
		return strings.TrimSpace(string(data)), nil
	}
	idea := strings.TrimSpace(strings.Join(args, " "))
	if idea == "" {
		return "", fmt.Errorf("provide the idea as arguments or via --file")
	}
	return idea, nil
}

// reportRun prints the run in the selected output mode.
func reportRun(st *state.State) {
	if jsonOutput {
		if err := OutputJSON(st); err != nil {
			fail("failed to encode JSON", err)
		}
		return
	}
	printRun(st)
}

// exitForStatus maps a non-failed run status to the CLI exit code.
// Suspension is a finding, not an error.
func exitForStatus(st *state.State) {
	switch st.Status {
	case state.RunAwaitingGate:
		os.Exit(CLIExitFindings)
	case state.RunFailed:
		os.Exit(CLIExitError)
	}
}
