// Copyright (C) 2026 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package tracker hands finished work items to an external work-item
// tracker. It is consumed only after a specification is produced; the
// pipeline never blocks on tracker availability.
package tracker

import (
	"context"

	"github.com/AleutianAI/wayfinder/services/planner/artifact"
)

// Draft is a tracker-ready work item: the artifact payload plus the
// traceability labels that let the tracker row be walked back to the
// producing run and the capabilities it implements.
type Draft struct {
	// ArtifactID is the work item's pipeline identifier.
	ArtifactID string `json:"artifact_id"`

	// RunID is the pipeline run that produced the item.
	RunID string `json:"run_id"`

	Title       string `json:"title"`
	Description string `json:"description,omitempty"`
	Order       int    `json:"order"`
	Effort      string `json:"effort,omitempty"`

	// DependsOn lists sibling artifact IDs that must land first.
	DependsOn []string `json:"depends_on,omitempty"`

	// Implements lists the capability IDs the item traces to.
	Implements []string `json:"implements,omitempty"`

	// Labels are the traceability tags for the external tracker,
	// always including "run:<run id>" and one "implements:<cap id>"
	// per capability.
	Labels []string `json:"labels"`
}

// Status is what the tracker reports back for a created draft.
type Status struct {
	ArtifactID string `json:"artifact_id"`

	// State is tracker-specific; the local writer reports "draft".
	State string `json:"state"`

	// Location says where the draft lives (file path, issue URL).
	Location string `json:"location,omitempty"`
}

// Tracker is the external work-item tracker contract.
//
// Thread Safety: implementations must be safe for concurrent use.
type Tracker interface {
	// CreateDraft files the work item with the tracker. Creating the
	// same artifact twice overwrites the earlier draft.
	CreateDraft(ctx context.Context, d *Draft) (*Status, error)

	// QueryStatus reports the tracker state for a previously created
	// draft. ErrDraftNotFound when the artifact was never filed.
	QueryStatus(ctx context.Context, artifactID string) (*Status, error)
}

// DraftFrom builds a Draft from a work-item artifact. Raw-only legacy
// artifacts draft with the summary as title.
func DraftFrom(runID string, a *artifact.Artifact) *Draft {
	d := &Draft{
		ArtifactID: a.ID,
		RunID:      runID,
		Title:      a.Summary,
		Implements: append([]string(nil), a.Implements...),
	}
	if wi := a.WorkItem; wi != nil {
		d.Title = wi.Title
		d.Description = wi.Description
		d.Order = wi.Order
		d.Effort = wi.Effort
		d.DependsOn = append([]string(nil), wi.DependsOn...)
		d.Labels = append([]string(nil), wi.Labels...)
	}
	d.Labels = append(d.Labels, "run:"+runID)
	for _, cap := range a.Implements {
		d.Labels = append(d.Labels, "implements:"+cap)
	}
	return d
}
