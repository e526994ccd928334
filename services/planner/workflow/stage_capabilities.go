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

const proposeCapabilitiesSystemPrompt = `You are a capability analyst for a software planning pipeline. Given the CONCEPT ANCHOR of a product idea, list the capabilities the product must provide.

## Instructions
1. Derive every capability from the anchor. Do not add capabilities the anchor does not support; do not genericize the anchor's distinctive features into standard ones
2. Keep capabilities user-centered: something someone can do with the product, not an implementation task
3. Respect the anchor's non-goals: never propose a capability a non-goal rules out
4. Give each capability a priority (1 = most important) and 2-4 acceptance criteria
5. Give each capability a one-line summary field. Downstream steps see ONLY the summary, so it must carry the capability's distinctive detail
6. When the context lists current capabilities with reviewer feedback, produce the corrected full list, keeping the names of capabilities the feedback does not touch

## Output Format
Respond with ONLY a JSON object. No explanation, no markdown, just JSON:
{"capabilities": [{"name": "<short imperative label>", "description": "<one or two sentences>", "category": "<core|supporting|integration>", "priority": <1-n>, "acceptance_criteria": ["<condition>"], "summary": "<one line for downstream context>"}]}`

type wireCapability struct {
	Name               string   `json:"name" validate:"required"`
	Description        string   `json:"description" validate:"required"`
	Category           string   `json:"category"`
	Priority           int      `json:"priority"`
	AcceptanceCriteria []string `json:"acceptance_criteria"`
	Summary            string   `json:"summary" validate:"required"`
}

type wireCapabilityList struct {
	Capabilities []wireCapability `json:"capabilities" validate:"required,min=1,dive"`
}

// proposeCapabilities generates the capability list from the anchor. On
// a re-run it supersedes its prior output, name-matched, so the store
// keeps full history without ever holding two active lists.
type proposeCapabilities struct {
	gen       llm.Generator
	assembler *compose.Assembler
	logger    *slog.Logger
}

func newProposeCapabilities(cfg ExecutorConfig) *proposeCapabilities {
	cfg = cfg.withDefaults()
	return &proposeCapabilities{
		gen:       cfg.Generator,
		assembler: compose.NewAssembler(cfg.MaxContextTokens),
		logger:    cfg.Logger,
	}
}

func (p *proposeCapabilities) Name() string { return StageProposeCapabilities }

func (p *proposeCapabilities) Execute(ctx context.Context, sc *StageContext) (*StageResult, error) {
	existing, err := listActive(ctx, sc.Artifacts, artifact.KindCapability)
	if err != nil {
		return nil, fmt.Errorf("list capabilities: %w", err)
	}

	var sections []compose.Section
	if len(existing) > 0 {
		sections = append(sections, compose.ArtifactSection("Current capabilities", existing, false))
	}
	assembled, err := p.assembler.Assemble(sc.Anchor, sections)
	if err != nil {
		return nil, err
	}

	req := &llm.Request{
		Stage:       StageProposeCapabilities,
		System:      proposeCapabilitiesSystemPrompt,
		Prompt:      assembled.Prompt,
		Feedback:    sc.Feedback,
		JSONMode:    true,
		MaxTokens:   4096,
		Temperature: 0.2,
	}

	var wire wireCapabilityList
	if err := generateDecoded(ctx, p.gen, req, &wire, p.logger); err != nil {
		return nil, err
	}

	arts := make([]*artifact.Artifact, 0, len(wire.Capabilities))
	for _, wc := range wire.Capabilities {
		a := artifact.New(artifact.KindCapability, sc.Phase)
		a.Summary = wc.Summary
		a.Provenance = artifact.Provenance{RunID: sc.Run.RunID, Stage: sc.Stage, Attempt: sc.Attempt}
		a.Capability = &artifact.Capability{
			Name:               wc.Name,
			Description:        wc.Description,
			Category:           wc.Category,
			Priority:           wc.Priority,
			AcceptanceCriteria: wc.AcceptanceCriteria,
		}
		arts = append(arts, a)
	}

	ids, err := appendAll(ctx, sc.Artifacts, arts)
	if err != nil {
		return nil, err
	}
	if err := supersedePrior(ctx, sc.Artifacts, sc.Prior, arts, capabilityName); err != nil {
		return nil, err
	}

	return &StageResult{
		ArtifactIDs: ids,
		Summary:     fmt.Sprintf("%d capabilities proposed", len(ids)),
	}, nil
}

func capabilityName(a *artifact.Artifact) string {
	if a.Capability != nil {
		return a.Capability.Name
	}
	return a.ID
}
