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
	"github.com/AleutianAI/wayfinder/services/planner/artifact"
)

// runArtifacts is the CLI handler for "wayfinder artifacts". It lists
// the structured artifacts a run produced, optionally filtered by kind
// and activity.
func runArtifacts(cmd *cobra.Command, args []string) {
	runID := args[0]

	err := withService(cmd.Context(), func(ctx context.Context, svc *planner.Service) error {
		// Surfaces a clean not-found instead of an empty listing.
		if _, err := svc.Engine().Load(ctx, runID); err != nil {
			return err
		}

		all, err := svc.Artifacts().List(ctx, artifact.ListOptions{
			Kind:       artifact.Kind(artifactKind),
			ActiveOnly: artifactActive,
		})
		if err != nil {
			return err
		}

		arts := make([]*artifact.Artifact, 0, len(all))
		for _, a := range all {
			if a.Provenance.RunID == runID {
				arts = append(arts, a)
			}
		}

		if jsonOutput {
			return OutputJSON(arts)
		}
		if len(arts) == 0 {
			fmt.Println(styleMuted.Render("No artifacts for this run."))
			return nil
		}
		fmt.Println(styleTitle.Render("Artifacts for " + runID))
		for _, a := range arts {
			status := "active"
			if !a.Active() {
				status = styleMuted.Render("superseded by " + a.SupersededBy)
			}
			fmt.Printf("  %-14s %-10s %-10s %s\n", a.ID, a.Kind, status, a.Summary)
		}
		return nil
	})
	if err != nil {
		fail("artifacts failed", err)
	}
}
