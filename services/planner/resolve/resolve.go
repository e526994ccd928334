// Copyright (C) 2026 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package resolve assembles the artifact store into the two consumable
// shapes downstream code works with: the Context (anchor plus everything
// produced before work items, the input to work-item generation) and the
// full Specification (context plus work items, the terminal output).
//
// # Description
//
// Assembly is deterministic and makes no generation calls: identical store
// state always yields byte-identical output from MarshalCanonical. Every
// cross-artifact ID reference held by an active artifact is checked to
// resolve before assembly succeeds, so consumers look up full artifacts
// and never handle a bare ID that goes nowhere. Artifacts that predate
// structured output and carry only raw text are wrapped in a minimal
// placeholder payload instead of failing the whole assembly.
//
// # Thread Safety
//
// Context and Specification are plain immutable snapshots. Lookup methods
// binary-search the ID-ordered slices and keep no hidden state, so values
// are safe to share, serialize, and reload.
package resolve

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/AleutianAI/wayfinder/services/planner/anchor"
	"github.com/AleutianAI/wayfinder/services/planner/artifact"
)

// placeholderLabelLen caps the label synthesized from raw legacy text.
const placeholderLabelLen = 80

// Context is the resolved project context: the confirmed anchor and every
// capability, decision, and entity in the store. It never contains work
// items; it is the input work-item generation consumes.
//
// Slices are ordered by ID and include superseded artifacts so that links
// into history still resolve; filter with Artifact.Active for the current
// view. Uncovered lists active capability IDs no active decision serves.
type Context struct {
	Anchor       *anchor.Anchor       `json:"anchor"`
	Capabilities []*artifact.Artifact `json:"capabilities"`
	Decisions    []*artifact.Artifact `json:"decisions"`
	Entities     []*artifact.Artifact `json:"entities"`
	Uncovered    []string             `json:"uncovered"`
}

// Specification is the terminal output: the resolved context plus the
// generated work items. A separate type so no consumer of the full plan
// needs to null-check whether work items exist.
type Specification struct {
	Context
	WorkItems []*artifact.Artifact `json:"work_items"`
}

// AssembleContext builds the resolved context from the store.
//
// Inputs:
//
//   - ctx: cancellation context for store reads.
//   - store: the artifact store to read. All three pre-work-item kinds
//     are listed in full.
//   - an: the confirmed anchor. Cloned; the context never aliases the
//     caller's copy.
//
// Outputs:
//
//   - *Context: the assembled context.
//   - error: ErrMissingAnchor, ErrAnchorNotConfirmed, or
//     ErrDanglingReference when an active artifact references an ID
//     absent from the store. Store errors pass through wrapped.
func AssembleContext(ctx context.Context, store artifact.Store, an *anchor.Anchor) (*Context, error) {
	if an == nil {
		return nil, ErrMissingAnchor
	}
	if !an.Frozen {
		return nil, ErrAnchorNotConfirmed
	}

	caps, err := listKind(ctx, store, artifact.KindCapability)
	if err != nil {
		return nil, err
	}
	decisions, err := listKind(ctx, store, artifact.KindDecision)
	if err != nil {
		return nil, err
	}
	entities, err := listKind(ctx, store, artifact.KindEntity)
	if err != nil {
		return nil, err
	}

	arena := make(map[string]*artifact.Artifact, len(caps)+len(decisions)+len(entities))
	for _, group := range [][]*artifact.Artifact{caps, decisions, entities} {
		for _, a := range group {
			arena[a.ID] = a
		}
	}
	for _, group := range [][]*artifact.Artifact{decisions, entities} {
		if err := checkServes(group, arena); err != nil {
			return nil, err
		}
	}

	c := &Context{
		Anchor:       an.Clone(),
		Capabilities: caps,
		Decisions:    decisions,
		Entities:     entities,
		Uncovered:    uncovered(caps, decisions),
	}
	return c, nil
}

// AttachWorkItems completes a context into the full specification.
//
// Inputs:
//
//   - c: the resolved context. Copied, not mutated.
//   - items: the work items to attach, typically the store's full
//     work-item listing. Order does not matter; the specification keeps
//     them ID-ordered. Raw-only legacy items are placeholder-wrapped.
//
// Outputs:
//
//   - *Specification: context plus work items.
//   - error: ErrMissingContext, ErrKindMismatch for a non-work-item
//     artifact, or ErrDanglingReference when an active item implements an
//     unknown capability or depends on an unknown work item.
func AttachWorkItems(c *Context, items []*artifact.Artifact) (*Specification, error) {
	if c == nil {
		return nil, ErrMissingContext
	}

	attached := make([]*artifact.Artifact, 0, len(items))
	itemSet := make(map[string]bool, len(items))
	for _, wi := range items {
		if wi.Kind != artifact.KindWorkItem {
			return nil, fmt.Errorf("%w: %s is kind %q", ErrKindMismatch, wi.ID, wi.Kind)
		}
		attached = append(attached, placeholderWrap(wi))
		itemSet[wi.ID] = true
	}
	sort.Slice(attached, func(i, j int) bool { return attached[i].ID < attached[j].ID })

	for _, wi := range attached {
		if !wi.Active() {
			continue
		}
		for _, id := range wi.Implements {
			if _, ok := c.Artifact(id); !ok {
				return nil, fmt.Errorf("%w: %s implements unknown %s", ErrDanglingReference, wi.ID, id)
			}
		}
		if wi.WorkItem == nil {
			continue
		}
		for _, id := range wi.WorkItem.DependsOn {
			if !itemSet[id] {
				return nil, fmt.Errorf("%w: %s depends on unknown %s", ErrDanglingReference, wi.ID, id)
			}
		}
	}

	return &Specification{Context: *c, WorkItems: attached}, nil
}

// MarshalCanonical serializes the context deterministically. Identical
// store state yields byte-identical output.
func (c *Context) MarshalCanonical() ([]byte, error) {
	return json.MarshalIndent(c, "", "  ")
}

// MarshalCanonical serializes the specification deterministically.
func (s *Specification) MarshalCanonical() ([]byte, error) {
	return json.MarshalIndent(s, "", "  ")
}

// Artifact returns the full artifact for an ID, superseded included.
func (c *Context) Artifact(id string) (*artifact.Artifact, bool) {
	switch kind, _ := artifact.KindOfID(id); kind {
	case artifact.KindCapability:
		return lookup(c.Capabilities, id)
	case artifact.KindDecision:
		return lookup(c.Decisions, id)
	case artifact.KindEntity:
		return lookup(c.Entities, id)
	}
	// Legacy IDs without a known prefix: try every slice.
	for _, group := range [][]*artifact.Artifact{c.Capabilities, c.Decisions, c.Entities} {
		if a, ok := lookup(group, id); ok {
			return a, true
		}
	}
	return nil, false
}

// Artifact returns the full artifact for an ID, work items included.
func (s *Specification) Artifact(id string) (*artifact.Artifact, bool) {
	if kind, _ := artifact.KindOfID(id); kind == artifact.KindWorkItem {
		return lookup(s.WorkItems, id)
	}
	if a, ok := s.Context.Artifact(id); ok {
		return a, true
	}
	return lookup(s.WorkItems, id)
}

// Serves resolves an artifact's serves links to the full artifacts.
// Links that no longer resolve are dropped; assembly guarantees active
// artifacts resolve in full.
func (c *Context) Serves(a *artifact.Artifact) []*artifact.Artifact {
	out := make([]*artifact.Artifact, 0, len(a.Serves))
	for _, id := range a.Serves {
		if ref, ok := c.Artifact(id); ok {
			out = append(out, ref)
		}
	}
	return out
}

// Covering returns the active decisions serving a capability, ID-ordered.
func (c *Context) Covering(capabilityID string) []*artifact.Artifact {
	var out []*artifact.Artifact
	for _, dec := range c.Decisions {
		if !dec.Active() {
			continue
		}
		for _, id := range dec.Serves {
			if id == capabilityID {
				out = append(out, dec)
				break
			}
		}
	}
	return out
}

// Implements resolves a work item's implements links to the full
// capability artifacts.
func (s *Specification) Implements(wi *artifact.Artifact) []*artifact.Artifact {
	out := make([]*artifact.Artifact, 0, len(wi.Implements))
	for _, id := range wi.Implements {
		if ref, ok := s.Context.Artifact(id); ok {
			out = append(out, ref)
		}
	}
	return out
}

// Implementing returns the active work items implementing a capability,
// ID-ordered.
func (s *Specification) Implementing(capabilityID string) []*artifact.Artifact {
	var out []*artifact.Artifact
	for _, wi := range s.WorkItems {
		if !wi.Active() {
			continue
		}
		for _, id := range wi.Implements {
			if id == capabilityID {
				out = append(out, wi)
				break
			}
		}
	}
	return out
}

// Dependencies resolves a work item's depends-on links to the full work
// item artifacts.
func (s *Specification) Dependencies(wi *artifact.Artifact) []*artifact.Artifact {
	if wi.WorkItem == nil {
		return nil
	}
	out := make([]*artifact.Artifact, 0, len(wi.WorkItem.DependsOn))
	for _, id := range wi.WorkItem.DependsOn {
		if ref, ok := lookup(s.WorkItems, id); ok {
			out = append(out, ref)
		}
	}
	return out
}

// Ordered returns the active work items in execution order: ascending
// Order, ties broken by ID.
func (s *Specification) Ordered() []*artifact.Artifact {
	out := make([]*artifact.Artifact, 0, len(s.WorkItems))
	for _, wi := range s.WorkItems {
		if wi.Active() {
			out = append(out, wi)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		oi, oj := 0, 0
		if out[i].WorkItem != nil {
			oi = out[i].WorkItem.Order
		}
		if out[j].WorkItem != nil {
			oj = out[j].WorkItem.Order
		}
		if oi != oj {
			return oi < oj
		}
		return out[i].ID < out[j].ID
	})
	return out
}

// listKind lists one kind in full and placeholder-wraps legacy records.
func listKind(ctx context.Context, store artifact.Store, kind artifact.Kind) ([]*artifact.Artifact, error) {
	arts, err := store.List(ctx, artifact.ListOptions{Kind: kind})
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", kind, err)
	}
	out := make([]*artifact.Artifact, 0, len(arts))
	for _, a := range arts {
		out = append(out, placeholderWrap(a))
	}
	return out, nil
}

// checkServes verifies every active artifact's serves links resolve.
func checkServes(arts []*artifact.Artifact, arena map[string]*artifact.Artifact) error {
	for _, a := range arts {
		if !a.Active() {
			continue
		}
		for _, id := range a.Serves {
			if _, ok := arena[id]; !ok {
				return fmt.Errorf("%w: %s serves unknown %s", ErrDanglingReference, a.ID, id)
			}
		}
	}
	return nil
}

// uncovered returns active capability IDs no active decision serves.
func uncovered(caps, decisions []*artifact.Artifact) []string {
	covered := artifact.CoveredCapabilities(decisions)
	out := make([]string, 0)
	for _, c := range caps {
		if c.Active() && !covered[c.ID] {
			out = append(out, c.ID)
		}
	}
	sort.Strings(out)
	return out
}

// lookup binary-searches an ID-ordered slice.
func lookup(arts []*artifact.Artifact, id string) (*artifact.Artifact, bool) {
	i := sort.Search(len(arts), func(i int) bool { return arts[i].ID >= id })
	if i < len(arts) && arts[i].ID == id {
		return arts[i], true
	}
	return nil, false
}

// placeholderWrap gives a raw-only legacy artifact a minimal structured
// payload so no consumer has to re-parse raw text. Structured artifacts
// pass through unchanged.
func placeholderWrap(a *artifact.Artifact) *artifact.Artifact {
	if a.Raw == "" || hasPayload(a) {
		return a
	}

	out := a.Clone()
	label := placeholderLabel(a.Raw)
	if out.Summary == "" {
		out.Summary = label
	}
	switch a.Kind {
	case artifact.KindCapability:
		out.Capability = &artifact.Capability{Name: label, Description: a.Raw}
	case artifact.KindDecision:
		out.Decision = &artifact.Decision{Title: label, Choice: a.Raw}
	case artifact.KindEntity:
		out.Entity = &artifact.Entity{Name: label, Description: a.Raw}
	case artifact.KindWorkItem:
		out.WorkItem = &artifact.WorkItem{Title: label, Description: a.Raw}
	}
	return out
}

func hasPayload(a *artifact.Artifact) bool {
	return a.Capability != nil || a.Decision != nil || a.Entity != nil || a.WorkItem != nil
}

// placeholderLabel derives a short label from the first line of raw text.
func placeholderLabel(raw string) string {
	line := raw
	if i := strings.IndexByte(line, '\n'); i >= 0 {
		line = line[:i]
	}
	line = strings.TrimSpace(line)
	if len(line) > placeholderLabelLen {
		line = line[:placeholderLabelLen]
	}
	return line
}
