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

	"github.com/spf13/cobra"

	"github.com/AleutianAI/wayfinder/services/planner"
	"github.com/AleutianAI/wayfinder/services/planner/state"
)

// runStatus is the CLI handler for "wayfinder status". With a run_id it
// prints that run in full; without one it lists every run in the store.
func runStatus(cmd *cobra.Command, args []string) {
	err := withService(cmd.Context(), func(ctx context.Context, svc *planner.Service) error {
		if len(args) == 1 {
			st, err := svc.Engine().Load(ctx, args[0])
			if err != nil {
				return err
			}
			reportRun(st)
			return nil
		}
		return listRuns(ctx, svc)
	})
	if err != nil {
		fail("status failed", err)
	}
}

func listRuns(ctx context.Context, svc *planner.Service) error {
	runIDs, err := svc.States().Runs(ctx)
	if err != nil {
		return err
	}

	if jsonOutput {
		states := make([]*state.State, 0, len(runIDs))
		for _, id := range runIDs {
			st, err := svc.States().Load(ctx, id)
			if err != nil {
				return err
			}
			states = append(states, st)
		}
		return OutputJSON(states)
	}

	if len(runIDs) == 0 {
		fmt.Println(styleMuted.Render("No runs yet. Start one with: wayfinder run \"your idea\""))
		return nil
	}
	fmt.Println(styleTitle.Render("Runs"))
	for _, id := range runIDs {
		st, err := svc.States().Load(ctx, id)
		if err != nil {
			return err
		}
		line := fmt.Sprintf("  %-22s %-14s rev %-4d %s",
			st.RunID, renderStatus(st.Status), st.Revision, formatMillis(st.UpdatedAt))
		if st.PendingGate != nil {
			line += styleWarn.Render("  [gate " + st.PendingGate.ID + "]")
		}
		fmt.Println(line)
	}
	return nil
}
