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

	"github.com/AleutianAI/wayfinder/services/planner/anchor"
	"github.com/AleutianAI/wayfinder/services/planner/artifact"
)

// Target is the material one verification examines: the frozen anchor and
// the full active artifact graph as of the phase boundary.
type Target struct {
	Phase  string
	Anchor *anchor.Anchor

	Capabilities []*artifact.Artifact
	Decisions    []*artifact.Artifact
	Entities     []*artifact.Artifact
	WorkItems    []*artifact.Artifact
}

// all returns every artifact in the target.
func (t *Target) all() []*artifact.Artifact {
	out := make([]*artifact.Artifact, 0,
		len(t.Capabilities)+len(t.Decisions)+len(t.Entities)+len(t.WorkItems))
	out = append(out, t.Capabilities...)
	out = append(out, t.Decisions...)
	out = append(out, t.Entities...)
	out = append(out, t.WorkItems...)
	return out
}

// byID indexes every artifact in the target, superseded included.
func (t *Target) byID() map[string]*artifact.Artifact {
	idx := make(map[string]*artifact.Artifact)
	for _, a := range t.all() {
		idx[a.ID] = a
	}
	return idx
}

// Verifier is one verification pass.
type Verifier interface {
	// Name identifies the pass in reports ("structural", "invariants").
	Name() string

	// Verify examines the target. A returned error means the pass could
	// not run, not that it found violations.
	Verify(ctx context.Context, target *Target) (*Report, error)
}
