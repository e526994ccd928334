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
	"github.com/spf13/cobra"
)

// --- Global Command Variables ---
var (
	configPath string
	verbose    bool
	jsonOutput bool

	ideaFile string

	decideAction       string
	decideFeedback     string
	decideSelections   []string
	decideAcknowledged []string
	decideBy           string

	artifactKind   string
	artifactActive bool

	exportTarget      string
	exportContextOnly bool

	rootCmd = &cobra.Command{
		Use:   "wayfinder",
		Short: "A cli to turn product ideas into verified implementation plans",
		Long: `Wayfinder runs a staged planning pipeline over a product idea:
				it distills a concept anchor, generates capabilities, design
				decisions, and work items, verifies every phase against the
				anchor, and suspends at decision gates for your approval.`,
	}

	// --- Runs ---
	runCmd = &cobra.Command{
		Use:   "run [idea]",
		Short: "Start a planning run from an idea (inline text or --file)",
		Run:   runStart, // Defined in cmd_run.go
	}
	resumeCmd = &cobra.Command{
		Use:   "resume [run_id]",
		Short: "Resume a suspended or interrupted run",
		Args:  cobra.ExactArgs(1),
		Run:   runResume, // Defined in cmd_run.go
	}
	cancelCmd = &cobra.Command{
		Use:   "cancel [run_id]",
		Short: "Cancel a run",
		Args:  cobra.ExactArgs(1),
		Run:   runCancel, // Defined in cmd_run.go
	}
	statusCmd = &cobra.Command{
		Use:   "status [run_id]",
		Short: "Show run status, or list all runs when no run_id is given",
		Args:  cobra.MaximumNArgs(1),
		Run:   runStatus, // Defined in cmd_status.go
	}

	// --- Gates ---
	decideCmd = &cobra.Command{
		Use:   "decide [run_id]",
		Short: "Answer the pending decision gate on a run",
		Args:  cobra.ExactArgs(1),
		Run:   runDecide, // Defined in cmd_decide.go
	}

	// --- Artifacts / Output ---
	artifactsCmd = &cobra.Command{
		Use:   "artifacts [run_id]",
		Short: "List the structured artifacts a run has produced",
		Args:  cobra.ExactArgs(1),
		Run:   runArtifacts, // Defined in cmd_artifacts.go
	}
	exportCmd = &cobra.Command{
		Use:   "export [run_id]",
		Short: "Export the resolved specification to a file or GCS bucket",
		Args:  cobra.ExactArgs(1),
		Run:   runExport, // Defined in cmd_export.go
	}

	// --- Pipeline ---
	graphCmd = &cobra.Command{
		Use:   "graph",
		Short: "Print the effective stage graph",
		Run:   runGraph, // Defined in cmd_graph.go
	}

	// --- Config ---
	configCmd = &cobra.Command{
		Use:   "config",
		Short: "Manage the wayfinder configuration file",
	}
	configInitCmd = &cobra.Command{
		Use:   "init [path]",
		Short: "Write a default config file",
		Args:  cobra.MaximumNArgs(1),
		Run:   runConfigInit, // Defined in cmd_graph.go
	}
)

// init runs when the Go program starts
func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Path to config file")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable debug logging")
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "Output machine-readable JSON")

	rootCmd.AddCommand(runCmd)
	runCmd.Flags().StringVarP(&ideaFile, "file", "f", "", "Read the idea from a file instead of arguments")

	rootCmd.AddCommand(resumeCmd)
	rootCmd.AddCommand(cancelCmd)
	rootCmd.AddCommand(statusCmd)

	rootCmd.AddCommand(decideCmd)
	decideCmd.Flags().StringVar(&decideAction, "action", "",
		"Gate action (approve, request_changes, resolve_ambiguity, override_violation); omit for the interactive form")
	decideCmd.Flags().StringVar(&decideFeedback, "feedback", "", "Change-request feedback text")
	decideCmd.Flags().StringSliceVar(&decideSelections, "select", nil,
		"Ambiguity selection as invariant_id=option_id or invariant_id=text:... (repeatable)")
	decideCmd.Flags().StringSliceVar(&decideAcknowledged, "ack", nil,
		"Violation keys to acknowledge for override_violation (repeatable)")
	decideCmd.Flags().StringVar(&decideBy, "by", "", "Identity to record as the decider")

	rootCmd.AddCommand(artifactsCmd)
	artifactsCmd.Flags().StringVar(&artifactKind, "kind", "",
		"Filter by kind (capability, decision, entity, work_item)")
	artifactsCmd.Flags().BoolVar(&artifactActive, "active", false, "Show only active artifacts")

	rootCmd.AddCommand(exportCmd)
	exportCmd.Flags().StringVar(&exportTarget, "target", "file", "Export target: file or gcs")
	exportCmd.Flags().BoolVar(&exportContextOnly, "context-only", false,
		"Export the resolved context without work items")

	rootCmd.AddCommand(graphCmd)

	rootCmd.AddCommand(configCmd)
	configCmd.AddCommand(configInitCmd)
}
