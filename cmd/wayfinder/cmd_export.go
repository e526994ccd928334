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
	"github.com/AleutianAI/wayfinder/services/planner/export"
)

// =============================================================================
// EXPORT COMMAND
// =============================================================================

// runExport is the CLI handler for "wayfinder export". It assembles the
// resolved context or full specification for a run and writes it through
// the selected adapter. The GCS target needs export.gcs_bucket in the
// config; credentials come from the ambient application default.
func runExport(cmd *cobra.Command, args []string) {
	runID := args[0]

	err := withService(cmd.Context(), func(ctx context.Context, svc *planner.Service) error {
		exporter, cleanup, err := buildExporter(ctx, svc)
		if err != nil {
			return err
		}
		defer cleanup()

		var location string
		if exportContextOnly {
			c, err := svc.Engine().Context(ctx, runID)
			if err != nil {
				return err
			}
			location, err = exporter.ExportContext(ctx, runID, c)
			if err != nil {
				return err
			}
		} else {
			spec, err := svc.Engine().Specification(ctx, runID)
			if err != nil {
				return err
			}
			location, err = exporter.ExportSpecification(ctx, runID, spec)
			if err != nil {
				return err
			}
		}

		if jsonOutput {
			return OutputJSON(map[string]string{"run_id": runID, "location": location})
		}
		fmt.Printf("%s %s\n", styleLabel.Render("Exported to:"), location)
		return nil
	})
	if err != nil {
		fail("export failed", err)
	}
}

// buildExporter picks the adapter for --target. The file adapter is the
// service default; gcs builds a fresh client per invocation.
func buildExporter(ctx context.Context, svc *planner.Service) (export.Exporter, func(), error) {
	switch exportTarget {
	case "file", "":
		return svc.Exporter(), func() {}, nil
	case "gcs":
		cfg := svc.Config()
		if cfg.Export.GCSBucket == "" {
			return nil, nil, fmt.Errorf("gcs export needs export.gcs_bucket in the config")
		}
		logger := newCLILogger()
		gcs, err := export.NewGCSExporter(ctx, cfg.Export.GCSBucket, cfg.Export.GCSPrefix, "", logger.Slog())
		if err != nil {
			logger.Close()
			return nil, nil, err
		}
		return gcs, func() {
			_ = gcs.Close()
			logger.Close()
		}, nil
	default:
		return nil, nil, fmt.Errorf("unknown export target %q, want file or gcs", exportTarget)
	}
}
