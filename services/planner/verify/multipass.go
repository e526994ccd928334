// Copyright (C) 2026 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package verify

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"
)

// MultiPass runs several passes concurrently and merges their reports
// deterministically. Unlike best-effort enrichment, a pass failure fails
// the whole verification: a boundary must not be crossed on a partial
// review.
type MultiPass struct {
	passes []Verifier
	logger *slog.Logger
}

var _ Verifier = (*MultiPass)(nil)

// NewMultiPass combines passes. Order does not affect the merged report.
func NewMultiPass(logger *slog.Logger, passes ...Verifier) *MultiPass {
	if logger == nil {
		logger = slog.Default()
	}
	return &MultiPass{passes: passes, logger: logger}
}

func (m *MultiPass) Name() string { return "multipass" }

// Verify implements Verifier.
func (m *MultiPass) Verify(ctx context.Context, target *Target) (*Report, error) {
	if len(m.passes) == 0 {
		return nil, fmt.Errorf("%w: no passes configured", ErrVerificationFailed)
	}

	start := time.Now()
	reports := make([]*Report, len(m.passes))

	g, gCtx := errgroup.WithContext(ctx)
	for i, pass := range m.passes {
		i, pass := i, pass // Capture loop variables
		g.Go(func() error {
			r, err := pass.Verify(gCtx, target)
			if err != nil {
				return fmt.Errorf("pass %s: %w", pass.Name(), err)
			}
			reports[i] = r
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	merged := Merge(target.Phase, reports...)
	m.logger.Info("Verification complete",
		"phase", target.Phase,
		"passes", len(m.passes),
		"violations", len(merged.Violations),
		"blocking", len(merged.Blocking()),
		"duration_ms", time.Since(start).Milliseconds())
	return merged, nil
}
