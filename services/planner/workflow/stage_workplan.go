// Copyright (C) 2026 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package workflow

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/AleutianAI/wayfinder/services/planner/artifact"
	"github.com/AleutianAI/wayfinder/services/planner/compose"
	"github.com/AleutianAI/wayfinder/services/planner/llm"
)

const generateWorkItemsSystemPrompt = `You are an implementation planner for a software planning pipeline. Given the CONCEPT ANCHOR, the capabilities, and the architecture decisions, produce the ordered work items.

## Instructions
1. Every work item must implement at least one capability listed under "Covered capabilities", referenced by its ID exactly as shown. NEVER reference a capability that is not in that list
2. Order items so each lands after the work it depends on; depends_on lists the zero-based positions of prerequisite items within YOUR OWN output array
3. Keep items small enough to estimate: effort is S, M, or L
4. Follow the architecture decisions; do not re-decide them inside a work item
5. Give each item a one-line summary field

## Output Format
Respond with ONLY a JSON object. No explanation, no markdown, just JSON:
{"work_items": [{"title": "<short imperative label>", "description": "<what to build>", "order": <1-n>, "effort": "<S|M|L>", "implements": ["<capability ID>"], "depends_on": [<zero-based index>], "labels": ["<traceability tag>"], "summary": "<one line>"}]}`

type wireWorkItem struct {
	Title       string   `json:"title" validate:"required"`
	Description string   `json:"description"`
	Order       int      `json:"order"`
	Effort      string   `json:"effort" validate:"omitempty,oneof=S M L"`
	Implements  []string `json:"implements" validate:"required,min=1"`
	DependsOn   []int    `json:"depends_on"`
	Labels      []string `json:"labels"`
	Summary     string   `json:"summary" validate:"required"`
}

type wireWorkItemList struct {
	WorkItems []wireWorkItem `json:"work_items" validate:"required,min=1,dive"`
}

// generateWorkItems produces the ordered implementation plan. Items may
// only implement covered capabilities: an uncovered capability has no
// architecture under it yet, and planning work against it would paper
// over the gap the diff is there to surface.
type generateWorkItems struct {
	gen       llm.Generator
	assembler *compose.Assembler
	logger    *slog.Logger
}

func newGenerateWorkItems(cfg ExecutorConfig) *generateWorkItems {
	cfg = cfg.withDefaults()
	return &generateWorkItems{
		gen:       cfg.Generator,
		assembler: compose.NewAssembler(cfg.MaxContextTokens),
		logger:    cfg.Logger,
	}
}

func (g *generateWorkItems) Name() string { return StageGenerateWorkItems }

func (g *generateWorkItems) Execute(ctx context.Context, sc *StageContext) (*StageResult, error) {
	caps, err := listActive(ctx, sc.Artifacts, artifact.KindCapability)
	if err != nil {
		return nil, fmt.Errorf("list capabilities: %w", err)
	}
	decisions, err := listActive(ctx, sc.Artifacts, artifact.KindDecision)
	if err != nil {
		return nil, fmt.Errorf("list decisions: %w", err)
	}
	entities, err := listActive(ctx, sc.Artifacts, artifact.KindEntity)
	if err != nil {
		return nil, fmt.Errorf("list entities: %w", err)
	}

	covered := artifact.CoveredCapabilities(decisions)
	var coveredCaps []*artifact.Artifact
	for _, c := range caps {
		if covered[c.ID] {
			coveredCaps = append(coveredCaps, c)
		}
	}
	if len(coveredCaps) == 0 {
		return nil, permanent(fmt.Errorf("no covered capabilities to plan against"))
	}

	sections := []compose.Section{
		compose.ArtifactSection("Covered capabilities", coveredCaps, false),
		compose.ArtifactSection("Architecture decisions", decisions, false),
		compose.ArtifactSection("Domain entities", entities, true),
	}
	assembled, err := g.assembler.Assemble(sc.Anchor, sections)
	if err != nil {
		return nil, err
	}

	req := &llm.Request{
		Stage:       StageGenerateWorkItems,
		System:      generateWorkItemsSystemPrompt,
		Prompt:      assembled.Prompt,
		Feedback:    sc.Feedback,
		JSONMode:    true,
		MaxTokens:   8192,
		Temperature: 0.2,
	}

	allowed := idSet(coveredCaps)
	var wire wireWorkItemList
	decode := func() error {
		if err := generateDecoded(ctx, g.gen, req, &wire, g.logger); err != nil {
			return err
		}
		for i, wi := range wire.WorkItems {
			if err := checkRefs(wi.Implements, allowed, "implements"); err != nil {
				return fmt.Errorf("work item %d: %w", i, err)
			}
			for _, dep := range wi.DependsOn {
				if dep < 0 || dep >= len(wire.WorkItems) {
					return fmt.Errorf("work item %d: depends_on index %d out of range", i, dep)
				}
				if dep == i {
					return fmt.Errorf("work item %d depends on itself", i)
				}
			}
		}
		return nil
	}
	if err := decode(); err != nil {
		req.Feedback = append(req.Feedback, err.Error())
		if err := decode(); err != nil {
			return nil, permanent(err)
		}
	}

	// Mint IDs first so index-based depends_on can resolve to IDs.
	arts := make([]*artifact.Artifact, len(wire.WorkItems))
	for i, wi := range wire.WorkItems {
		a := artifact.New(artifact.KindWorkItem, sc.Phase)
		a.Summary = wi.Summary
		a.Implements = wi.Implements
		a.Provenance = artifact.Provenance{RunID: sc.Run.RunID, Stage: sc.Stage, Attempt: sc.Attempt}
		order := wi.Order
		if order == 0 {
			order = i + 1
		}
		a.WorkItem = &artifact.WorkItem{
			Title:       wi.Title,
			Description: wi.Description,
			Order:       order,
			Effort:      wi.Effort,
			Labels:      wi.Labels,
		}
		arts[i] = a
	}
	for i, wi := range wire.WorkItems {
		for _, dep := range wi.DependsOn {
			arts[i].WorkItem.DependsOn = append(arts[i].WorkItem.DependsOn, arts[dep].ID)
		}
	}

	ids, err := appendAll(ctx, sc.Artifacts, arts)
	if err != nil {
		return nil, err
	}
	if err := supersedePrior(ctx, sc.Artifacts, sc.Prior, arts, workItemTitle); err != nil {
		return nil, err
	}

	return &StageResult{
		ArtifactIDs: ids,
		Summary:     fmt.Sprintf("%d work items planned", len(ids)),
	}, nil
}

func workItemTitle(a *artifact.Artifact) string {
	if a.WorkItem != nil {
		return a.WorkItem.Title
	}
	return a.ID
}
