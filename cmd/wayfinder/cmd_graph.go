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
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/AleutianAI/wayfinder/services/planner/config"
	"github.com/AleutianAI/wayfinder/services/planner/workflow"
)

// runGraph is the CLI handler for "wayfinder graph". It prints the
// effective stage graph: the compiled-in default, or the file named by
// pipeline.graph_path. No service or lock is needed for this.
func runGraph(cmd *cobra.Command, args []string) {
	g := workflow.DefaultGraph()
	source := "built-in"
	if path := wfConfig.Pipeline.GraphPath; path != "" {
		loaded, err := workflow.LoadGraph(path)
		if err != nil {
			fail("could not load graph", err)
		}
		g = loaded
		source = path
	}

	if jsonOutput {
		if err := OutputJSON(g); err != nil {
			fail("failed to encode JSON", err)
		}
		return
	}

	fmt.Println(styleTitle.Render("Stage graph") + styleMuted.Render("  ("+source+")"))
	for _, ph := range g.Phases {
		header := ph.Name
		if len(ph.Entry) > 0 {
			header += styleMuted.Render("  entry: " + strings.Join(ph.Entry, ", "))
		}
		if ph.Verify != "" {
			header += styleMuted.Render("  verify: " + string(ph.Verify))
		}
		fmt.Println(styleLabel.Render(header))
		for _, st := range ph.Stages {
			line := "  " + st.Name
			if st.Generative {
				line += styleMuted.Render("  [generative]")
			}
			if len(st.Requires) > 0 {
				line += styleMuted.Render("  requires: " + strings.Join(st.Requires, ", "))
			}
			fmt.Println(line)
		}
	}
}

// runConfigInit is the CLI handler for "wayfinder config init".
func runConfigInit(cmd *cobra.Command, args []string) {
	path := "config.yaml"
	if len(args) == 1 {
		path = args[0]
	}
	if err := config.WriteDefault(path); err != nil {
		fail("config init failed", err)
	}
	fmt.Printf("%s %s\n", styleLabel.Render("Wrote default config to:"), path)
}
