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
	"sort"

	"github.com/AleutianAI/wayfinder/services/planner/artifact"
)

// Structural check property names.
const (
	PropDanglingReference  = "structural.dangling_reference"
	PropSupersededRef      = "structural.superseded_reference"
	PropUnservedDecision   = "structural.unserved_decision"
	PropUnimplementedItem  = "structural.unimplemented_work_item"
	PropDependencyCycle    = "structural.dependency_cycle"
	PropDuplicateOrder     = "structural.duplicate_order"
	PropNonPositiveOrder   = "structural.non_positive_order"
	PropUnknownInvariant   = "structural.unknown_invariant_override"
	PropMissingOverrideWhy = "structural.override_without_justification"
)

// StructuralPassName is the pass name of the deterministic checks.
const StructuralPassName = "structural"

// Structural runs the deterministic graph checks: every reference must
// resolve to the right kind, work item dependencies must be acyclic, and
// overrides must point at real anchor invariants. It never calls a model.
type Structural struct{}

var _ Verifier = (*Structural)(nil)

// NewStructural returns the structural pass.
func NewStructural() *Structural { return &Structural{} }

func (s *Structural) Name() string { return StructuralPassName }

// Verify implements Verifier.
func (s *Structural) Verify(_ context.Context, target *Target) (*Report, error) {
	if target.Anchor == nil {
		return nil, ErrMissingAnchor
	}

	report := NewReport(target.Phase, StructuralPassName)
	idx := target.byID()
	add := func(v Violation) {
		v.Pass = StructuralPassName
		report.Violations = append(report.Violations, v)
	}

	invariants := make(map[string]bool, len(target.Anchor.Invariants))
	for _, inv := range target.Anchor.Invariants {
		invariants[inv.ID] = true
	}

	for _, a := range target.all() {
		if !a.Active() {
			continue
		}
		s.checkReferences(a, idx, add)
		s.checkOverrides(a, invariants, add)
	}

	s.checkWorkItems(target, idx, add)

	report.finalize()
	return report, nil
}

// checkReferences verifies Serves and Implements resolve to live artifacts
// of the expected kind.
func (s *Structural) checkReferences(a *artifact.Artifact, idx map[string]*artifact.Artifact, add func(Violation)) {
	checkSet := func(refs []string, wantKind artifact.Kind, relation string) {
		for _, ref := range refs {
			refArt, ok := idx[ref]
			if !ok {
				add(Violation{
					Property:   PropDanglingReference,
					ArtifactID: a.ID,
					Severity:   SeverityBlocking,
					Detail:     fmt.Sprintf("%s %s which does not exist", relation, ref),
				})
				continue
			}
			if refArt.Kind != wantKind {
				add(Violation{
					Property:   PropDanglingReference,
					ArtifactID: a.ID,
					Severity:   SeverityBlocking,
					Detail:     fmt.Sprintf("%s %s which is a %s, not a %s", relation, ref, refArt.Kind, wantKind),
				})
				continue
			}
			if !refArt.Active() {
				add(Violation{
					Property:   PropSupersededRef,
					ArtifactID: a.ID,
					Severity:   SeverityWarning,
					Detail:     fmt.Sprintf("%s %s which has been superseded by %s", relation, ref, refArt.SupersededBy),
				})
			}
		}
	}

	switch a.Kind {
	case artifact.KindDecision:
		if len(a.Serves) == 0 {
			add(Violation{
				Property:   PropUnservedDecision,
				ArtifactID: a.ID,
				Severity:   SeverityBlocking,
				Detail:     "decision serves no capability",
			})
		}
		checkSet(a.Serves, artifact.KindCapability, "serves")
	case artifact.KindEntity:
		checkSet(a.Serves, artifact.KindDecision, "serves")
	case artifact.KindWorkItem:
		if len(a.Implements) == 0 {
			add(Violation{
				Property:   PropUnimplementedItem,
				ArtifactID: a.ID,
				Severity:   SeverityBlocking,
				Detail:     "work item implements no capability",
			})
		}
		checkSet(a.Implements, artifact.KindCapability, "implements")
	}
}

// checkOverrides verifies invariant overrides name real invariants and
// carry justifications.
func (s *Structural) checkOverrides(a *artifact.Artifact, invariants map[string]bool, add func(Violation)) {
	for _, ov := range a.Overrides {
		if !invariants[ov.Property] {
			add(Violation{
				Property:   PropUnknownInvariant,
				ArtifactID: a.ID,
				Severity:   SeverityBlocking,
				Detail:     fmt.Sprintf("override names invariant %s which is not in the anchor", ov.Property),
			})
		}
		if ov.Justification == "" {
			add(Violation{
				Property:   PropMissingOverrideWhy,
				ArtifactID: a.ID,
				Severity:   SeverityBlocking,
				Detail:     fmt.Sprintf("override of %s has no justification", ov.Property),
			})
		}
	}
}

// checkWorkItems verifies the plan ordering: dependencies resolve and are
// acyclic, orders are positive and unique.
func (s *Structural) checkWorkItems(target *Target, idx map[string]*artifact.Artifact, add func(Violation)) {
	active := make(map[string]*artifact.Artifact)
	for _, wi := range target.WorkItems {
		if wi.Kind == artifact.KindWorkItem && wi.Active() && wi.WorkItem != nil {
			active[wi.ID] = wi
		}
	}

	ordersSeen := make(map[int]string)
	for _, wi := range target.WorkItems {
		if wi.Kind != artifact.KindWorkItem || !wi.Active() || wi.WorkItem == nil {
			continue
		}
		for _, dep := range wi.WorkItem.DependsOn {
			if _, ok := idx[dep]; !ok {
				add(Violation{
					Property:   PropDanglingReference,
					ArtifactID: wi.ID,
					Severity:   SeverityBlocking,
					Detail:     fmt.Sprintf("depends on %s which does not exist", dep),
				})
			}
		}
		if wi.WorkItem.Order <= 0 {
			add(Violation{
				Property:   PropNonPositiveOrder,
				ArtifactID: wi.ID,
				Severity:   SeverityWarning,
				Detail:     fmt.Sprintf("order %d is not positive", wi.WorkItem.Order),
			})
		} else if other, dup := ordersSeen[wi.WorkItem.Order]; dup {
			add(Violation{
				Property:   PropDuplicateOrder,
				ArtifactID: wi.ID,
				Severity:   SeverityWarning,
				Detail:     fmt.Sprintf("order %d duplicates %s", wi.WorkItem.Order, other),
			})
		} else {
			ordersSeen[wi.WorkItem.Order] = wi.ID
		}
	}

	for _, id := range detectCycle(active) {
		add(Violation{
			Property:   PropDependencyCycle,
			ArtifactID: id,
			Severity:   SeverityBlocking,
			Detail:     "work item participates in a dependency cycle",
		})
	}
}

// detectCycle returns the IDs of active work items on dependency cycles,
// sorted. Dependencies on superseded or missing items are ignored here;
// the reference checks already flag those.
func detectCycle(items map[string]*artifact.Artifact) []string {
	const (
		white = 0
		gray  = 1
		black = 2
	)
	color := make(map[string]int, len(items))
	onCycle := make(map[string]bool)

	var visit func(id string, stack []string)
	visit = func(id string, stack []string) {
		color[id] = gray
		stack = append(stack, id)
		for _, dep := range items[id].WorkItem.DependsOn {
			if _, ok := items[dep]; !ok {
				continue
			}
			switch color[dep] {
			case white:
				visit(dep, stack)
			case gray:
				// Everything from dep's position in the stack is cyclic.
				mark := false
				for _, sid := range stack {
					if sid == dep {
						mark = true
					}
					if mark {
						onCycle[sid] = true
					}
				}
			}
		}
		color[id] = black
	}

	// Deterministic traversal order.
	ids := make([]string, 0, len(items))
	for id := range items {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	for _, id := range ids {
		if color[id] == white {
			visit(id, nil)
		}
	}

	var out []string
	for id := range onCycle {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

