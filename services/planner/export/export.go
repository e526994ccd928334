// Copyright (C) 2026 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package export writes the resolved output of a run to downstream
// consumers: canonical JSON to local files or a cloud bucket. Exports
// carry resolved IDs only; consumers never re-parse raw model text.
package export

import (
	"context"

	"github.com/AleutianAI/wayfinder/services/planner/resolve"
)

// Exporter delivers a resolved context or full specification to one
// destination.
//
// Thread Safety: implementations must be safe for concurrent use.
type Exporter interface {
	// ExportContext writes the work-item-free context shape. Returns
	// where the export landed (path or object URL).
	ExportContext(ctx context.Context, runID string, c *resolve.Context) (string, error)

	// ExportSpecification writes the full specification.
	ExportSpecification(ctx context.Context, runID string, s *resolve.Specification) (string, error)
}

// contextName and specName are the canonical export object names under
// a run's directory or prefix.
const (
	contextName = "context.json"
	specName    = "specification.json"
)
