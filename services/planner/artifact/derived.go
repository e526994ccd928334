// Copyright (C) 2026 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package artifact

// CapabilityStatus is the derived lifecycle state of a capability.
// It is computed from linked artifacts on demand and never persisted.
type CapabilityStatus string

const (
	// StatusUncovered means no active decision serves the capability.
	StatusUncovered CapabilityStatus = "uncovered"

	// StatusDecided means an active decision serves the capability but no
	// active work item implements it.
	StatusDecided CapabilityStatus = "decided"

	// StatusImplemented means an active work item implements the capability.
	StatusImplemented CapabilityStatus = "implemented"
)

// CoveredCapabilities returns the set of capability IDs served by at least
// one active decision.
func CoveredCapabilities(decisions []*Artifact) map[string]bool {
	covered := make(map[string]bool)
	for _, dec := range decisions {
		if dec.Kind != KindDecision || !dec.Active() {
			continue
		}
		for _, id := range dec.Serves {
			covered[id] = true
		}
	}
	return covered
}

// ImplementedCapabilities returns the set of capability IDs implemented by
// at least one active work item.
func ImplementedCapabilities(workItems []*Artifact) map[string]bool {
	implemented := make(map[string]bool)
	for _, wi := range workItems {
		if wi.Kind != KindWorkItem || !wi.Active() {
			continue
		}
		for _, id := range wi.Implements {
			implemented[id] = true
		}
	}
	return implemented
}

// DeriveCapabilityStatus computes the status of one capability from the
// given decisions and work items. Pure; no store access.
func DeriveCapabilityStatus(capabilityID string, decisions, workItems []*Artifact) CapabilityStatus {
	if ImplementedCapabilities(workItems)[capabilityID] {
		return StatusImplemented
	}
	if CoveredCapabilities(decisions)[capabilityID] {
		return StatusDecided
	}
	return StatusUncovered
}
