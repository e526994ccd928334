// Copyright (C) 2026 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package diff computes the incremental impact of artifact changes.
//
// # Description
//
// The diff is pure set arithmetic over the current artifact store: which
// active capabilities lack a covering decision, and which decisions,
// entities, and work items reference something that has since been
// superseded. It performs no I/O and no generation calls; the workflow
// engine recomputes it on demand and uses it both to skip stages whose
// inputs are unchanged and to scope how much context a stage receives.
//
// # Thread Safety
//
// All functions are pure and safe for concurrent use.
package diff

import (
	"sort"

	"github.com/AleutianAI/wayfinder/services/planner/artifact"
)

// Diff is the computed incremental impact. Never persisted.
type Diff struct {
	// Uncovered lists active capability IDs with no covering active decision.
	Uncovered []string `json:"uncovered"`

	// AffectedDecisions lists active decision IDs whose Serves references
	// a superseded capability.
	AffectedDecisions []string `json:"affected_decisions"`

	// AffectedEntities lists active entity IDs referenced by affected
	// decisions.
	AffectedEntities []string `json:"affected_entities"`

	// AffectedWorkItems lists active work item IDs whose Implements
	// references a superseded capability.
	AffectedWorkItems []string `json:"affected_work_items"`
}

// Empty reports whether nothing is uncovered and nothing is affected.
// An empty diff means a phase's generation stage may reuse prior output.
func (d *Diff) Empty() bool {
	return len(d.Uncovered) == 0 &&
		len(d.AffectedDecisions) == 0 &&
		len(d.AffectedEntities) == 0 &&
		len(d.AffectedWorkItems) == 0
}

// Total returns the number of IDs across all categories.
func (d *Diff) Total() int {
	return len(d.Uncovered) + len(d.AffectedDecisions) +
		len(d.AffectedEntities) + len(d.AffectedWorkItems)
}

// Compute derives the diff from the four artifact slices.
//
// # Description
//
// The algorithm, exactly:
//
//	uncovered         = active capabilities − capabilities served by any
//	                    active decision
//	affected decisions = active decisions whose Serves intersects the
//	                    superseded-capability set
//	affected entities  = active entities whose Serves intersects the
//	                    affected-decision set
//	affected work items = active work items whose Implements intersects
//	                    the superseded-capability set
//
// Inputs need not be pre-filtered; superseded artifacts are recognized by
// their SupersededBy link. Output slices are sorted for determinism.
func Compute(capabilities, decisions, entities, workItems []*artifact.Artifact) *Diff {
	activeCaps := make(map[string]bool)
	supersededCaps := make(map[string]bool)
	for _, c := range capabilities {
		if c.Kind != artifact.KindCapability {
			continue
		}
		if c.Active() {
			activeCaps[c.ID] = true
		} else {
			supersededCaps[c.ID] = true
		}
	}

	covered := artifact.CoveredCapabilities(decisions)

	var uncovered []string
	for id := range activeCaps {
		if !covered[id] {
			uncovered = append(uncovered, id)
		}
	}

	affectedDecisions := make(map[string]bool)
	var affectedDecisionIDs []string
	for _, dec := range decisions {
		if dec.Kind != artifact.KindDecision || !dec.Active() {
			continue
		}
		for _, served := range dec.Serves {
			if supersededCaps[served] {
				affectedDecisions[dec.ID] = true
				affectedDecisionIDs = append(affectedDecisionIDs, dec.ID)
				break
			}
		}
	}

	var affectedEntities []string
	for _, ent := range entities {
		if ent.Kind != artifact.KindEntity || !ent.Active() {
			continue
		}
		for _, served := range ent.Serves {
			if affectedDecisions[served] {
				affectedEntities = append(affectedEntities, ent.ID)
				break
			}
		}
	}

	var affectedWorkItems []string
	for _, wi := range workItems {
		if wi.Kind != artifact.KindWorkItem || !wi.Active() {
			continue
		}
		for _, impl := range wi.Implements {
			if supersededCaps[impl] {
				affectedWorkItems = append(affectedWorkItems, wi.ID)
				break
			}
		}
	}

	sort.Strings(uncovered)
	sort.Strings(affectedDecisionIDs)
	sort.Strings(affectedEntities)
	sort.Strings(affectedWorkItems)

	return &Diff{
		Uncovered:         uncovered,
		AffectedDecisions: affectedDecisionIDs,
		AffectedEntities:  affectedEntities,
		AffectedWorkItems: affectedWorkItems,
	}
}
