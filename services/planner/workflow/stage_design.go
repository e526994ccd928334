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

// =============================================================================
// propose_decisions
// =============================================================================

const proposeDecisionsSystemPrompt = `You are a software architect for a planning pipeline. Given the CONCEPT ANCHOR and the capabilities needing coverage, make the architecture decisions that cover them.

## Instructions
1. Every decision must serve at least one listed capability, referenced by its ID exactly as shown (e.g. "CAP-4f1a9c2e")
2. Between them, your decisions must cover every capability listed under "Capabilities needing coverage"
3. Honor every anchor invariant. If a decision must deviate from one, record the deviation in invariant_overrides with the invariant's property name and a justification; NEVER deviate silently
4. State the choice concretely and name the rejected alternatives
5. Give each decision a one-line summary field carrying its distinctive detail; downstream steps see only the summary
6. When the context lists current decisions with reviewer feedback, produce the corrected set, keeping titles of decisions the feedback does not touch

## Output Format
Respond with ONLY a JSON object. No explanation, no markdown, just JSON:
{"decisions": [{"title": "<short label>", "area": "<concern, e.g. storage>", "choice": "<selected option>", "rationale": "<why this fits the anchor>", "alternatives": ["<rejected option>"], "serves": ["<capability ID>"], "summary": "<one line>", "invariant_overrides": [{"property": "<invariant property>", "justification": "<why the deviation is right>"}]}]}`

type wireOverride struct {
	Property      string `json:"property" validate:"required"`
	Justification string `json:"justification" validate:"required"`
}

type wireDecision struct {
	Title        string         `json:"title" validate:"required"`
	Area         string         `json:"area"`
	Choice       string         `json:"choice" validate:"required"`
	Rationale    string         `json:"rationale"`
	Alternatives []string       `json:"alternatives"`
	Serves       []string       `json:"serves" validate:"required,min=1"`
	Summary      string         `json:"summary" validate:"required"`
	Overrides    []wireOverride `json:"invariant_overrides" validate:"dive"`
}

type wireDecisionList struct {
	Decisions []wireDecision `json:"decisions" validate:"required,min=1,dive"`
}

// proposeDecisions generates architecture decisions covering the
// uncovered capabilities. The diff scopes its context: it sees the
// capabilities that need coverage, not the full history.
type proposeDecisions struct {
	gen       llm.Generator
	assembler *compose.Assembler
	logger    *slog.Logger
}

func newProposeDecisions(cfg ExecutorConfig) *proposeDecisions {
	cfg = cfg.withDefaults()
	return &proposeDecisions{
		gen:       cfg.Generator,
		assembler: compose.NewAssembler(cfg.MaxContextTokens),
		logger:    cfg.Logger,
	}
}

func (p *proposeDecisions) Name() string { return StageProposeDecisions }

func (p *proposeDecisions) Execute(ctx context.Context, sc *StageContext) (*StageResult, error) {
	caps, err := listActive(ctx, sc.Artifacts, artifact.KindCapability)
	if err != nil {
		return nil, fmt.Errorf("list capabilities: %w", err)
	}
	decisions, err := listActive(ctx, sc.Artifacts, artifact.KindDecision)
	if err != nil {
		return nil, fmt.Errorf("list decisions: %w", err)
	}

	// Scope to what the diff flagged. On a fresh run every capability is
	// uncovered, so the scoped set is the full set.
	needCoverage := caps
	if sc.Diff != nil && len(sc.Diff.Uncovered) > 0 && len(sc.Diff.Uncovered) < len(caps) {
		needCoverage = compose.Scoped(caps, sc.Diff.Uncovered)
	}

	sections := []compose.Section{
		compose.ArtifactSection("Capabilities needing coverage", needCoverage, false),
	}
	if len(decisions) > 0 {
		sections = append(sections, compose.ArtifactSection("Current decisions", decisions, true))
	}
	assembled, err := p.assembler.Assemble(sc.Anchor, sections)
	if err != nil {
		return nil, err
	}

	req := &llm.Request{
		Stage:       StageProposeDecisions,
		System:      proposeDecisionsSystemPrompt,
		Prompt:      assembled.Prompt,
		Feedback:    sc.Feedback,
		JSONMode:    true,
		MaxTokens:   4096,
		Temperature: 0.2,
	}

	known := idSet(caps)
	var wire wireDecisionList
	decode := func() error {
		if err := generateDecoded(ctx, p.gen, req, &wire, p.logger); err != nil {
			return err
		}
		for _, wd := range wire.Decisions {
			if err := checkRefs(wd.Serves, known, "serves"); err != nil {
				return err
			}
		}
		return nil
	}
	if err := decode(); err != nil {
		// One more round for reference errors the schema cannot catch.
		req.Feedback = append(req.Feedback, err.Error())
		if err := decode(); err != nil {
			return nil, permanent(err)
		}
	}

	arts := make([]*artifact.Artifact, 0, len(wire.Decisions))
	for _, wd := range wire.Decisions {
		a := artifact.New(artifact.KindDecision, sc.Phase)
		a.Summary = wd.Summary
		a.Serves = wd.Serves
		a.Provenance = artifact.Provenance{RunID: sc.Run.RunID, Stage: sc.Stage, Attempt: sc.Attempt}
		for _, ov := range wd.Overrides {
			a.Overrides = append(a.Overrides, artifact.InvariantOverride{
				Property: ov.Property, Justification: ov.Justification,
			})
		}
		a.Decision = &artifact.Decision{
			Title:        wd.Title,
			Area:         wd.Area,
			Choice:       wd.Choice,
			Rationale:    wd.Rationale,
			Alternatives: wd.Alternatives,
		}
		arts = append(arts, a)
	}

	ids, err := appendAll(ctx, sc.Artifacts, arts)
	if err != nil {
		return nil, err
	}
	if err := supersedePrior(ctx, sc.Artifacts, sc.Prior, arts, decisionTitle); err != nil {
		return nil, err
	}

	return &StageResult{
		ArtifactIDs: ids,
		Summary:     fmt.Sprintf("%d decisions covering %d capabilities", len(ids), len(needCoverage)),
	}, nil
}

func decisionTitle(a *artifact.Artifact) string {
	if a.Decision != nil {
		return a.Decision.Title
	}
	return a.ID
}

// =============================================================================
// model_entities
// =============================================================================

const modelEntitiesSystemPrompt = `You are a domain modeler for a software planning pipeline. Given the CONCEPT ANCHOR and the architecture decisions, model the domain entities the decisions imply.

## Instructions
1. Every entity must serve at least one listed decision, referenced by its ID exactly as shown (e.g. "DEC-4f1a9c2e")
2. Name entities in the anchor's own vocabulary; do not rename the idea's distinctive concepts into generic ones
3. Give each entity its attributes with coarse types (string, int, bool, timestamp, ref:<Entity>)
4. Give each entity a one-line summary field; downstream steps see only the summary

## Output Format
Respond with ONLY a JSON object. No explanation, no markdown, just JSON:
{"entities": [{"name": "<Entity>", "description": "<role in the domain>", "attributes": [{"name": "<field>", "type": "<type>", "required": <true|false>}], "serves": ["<decision ID>"], "summary": "<one line>"}]}`

type wireAttribute struct {
	Name     string `json:"name" validate:"required"`
	Type     string `json:"type" validate:"required"`
	Required bool   `json:"required"`
}

type wireEntity struct {
	Name        string          `json:"name" validate:"required"`
	Description string          `json:"description"`
	Attributes  []wireAttribute `json:"attributes" validate:"dive"`
	Serves      []string        `json:"serves" validate:"required,min=1"`
	Summary     string          `json:"summary" validate:"required"`
}

type wireEntityList struct {
	Entities []wireEntity `json:"entities" validate:"required,min=1,dive"`
}

type modelEntities struct {
	gen       llm.Generator
	assembler *compose.Assembler
	logger    *slog.Logger
}

func newModelEntities(cfg ExecutorConfig) *modelEntities {
	cfg = cfg.withDefaults()
	return &modelEntities{
		gen:       cfg.Generator,
		assembler: compose.NewAssembler(cfg.MaxContextTokens),
		logger:    cfg.Logger,
	}
}

func (m *modelEntities) Name() string { return StageModelEntities }

func (m *modelEntities) Execute(ctx context.Context, sc *StageContext) (*StageResult, error) {
	decisions, err := listActive(ctx, sc.Artifacts, artifact.KindDecision)
	if err != nil {
		return nil, fmt.Errorf("list decisions: %w", err)
	}
	caps, err := listActive(ctx, sc.Artifacts, artifact.KindCapability)
	if err != nil {
		return nil, fmt.Errorf("list capabilities: %w", err)
	}

	sections := []compose.Section{
		compose.ArtifactSection("Architecture decisions", decisions, false),
		compose.ArtifactSection("Capabilities", caps, true),
	}
	assembled, err := m.assembler.Assemble(sc.Anchor, sections)
	if err != nil {
		return nil, err
	}

	req := &llm.Request{
		Stage:       StageModelEntities,
		System:      modelEntitiesSystemPrompt,
		Prompt:      assembled.Prompt,
		Feedback:    sc.Feedback,
		JSONMode:    true,
		MaxTokens:   4096,
		Temperature: 0.2,
	}

	known := idSet(decisions)
	var wire wireEntityList
	if err := generateDecoded(ctx, m.gen, req, &wire, m.logger); err != nil {
		return nil, err
	}
	for _, we := range wire.Entities {
		if err := checkRefs(we.Serves, known, "serves"); err != nil {
			return nil, permanent(err)
		}
	}

	arts := make([]*artifact.Artifact, 0, len(wire.Entities))
	for _, we := range wire.Entities {
		a := artifact.New(artifact.KindEntity, sc.Phase)
		a.Summary = we.Summary
		a.Serves = we.Serves
		a.Provenance = artifact.Provenance{RunID: sc.Run.RunID, Stage: sc.Stage, Attempt: sc.Attempt}
		ent := &artifact.Entity{Name: we.Name, Description: we.Description}
		for _, attr := range we.Attributes {
			ent.Attributes = append(ent.Attributes, artifact.Attribute{
				Name: attr.Name, Type: attr.Type, Required: attr.Required,
			})
		}
		a.Entity = ent
		arts = append(arts, a)
	}

	ids, err := appendAll(ctx, sc.Artifacts, arts)
	if err != nil {
		return nil, err
	}
	if err := supersedePrior(ctx, sc.Artifacts, sc.Prior, arts, entityName); err != nil {
		return nil, err
	}

	return &StageResult{
		ArtifactIDs: ids,
		Summary:     fmt.Sprintf("%d entities modeled", len(ids)),
	}, nil
}

func entityName(a *artifact.Artifact) string {
	if a.Entity != nil {
		return a.Entity.Name
	}
	return a.ID
}

// =============================================================================
// sketch_interface
// =============================================================================

const sketchInterfaceSystemPrompt = `You are an interface designer for a software planning pipeline. Given the CONCEPT ANCHOR and the user-facing capabilities, decide the interface surfaces.

## Instructions
1. Decide the interface surfaces (screens, commands, conversational flows) as architecture decisions in the "interface" area
2. Every surface must serve at least one listed capability, referenced by its ID exactly as shown
3. Keep the anchor's identity visible in the surface descriptions; do not flatten distinctive interactions into a generic CRUD layout
4. Give each decision a one-line summary field

## Output Format
Respond with ONLY a JSON object. No explanation, no markdown, just JSON:
{"decisions": [{"title": "<surface name>", "area": "interface", "choice": "<surface description>", "rationale": "<why this fits>", "alternatives": [], "serves": ["<capability ID>"], "summary": "<one line>"}]}`

// sketchInterface runs only for ideas with a user-facing interface
// (gated by FlagHasUserInterface). It emits interface-area decisions;
// external mockup generators consume those from the resolved
// specification, they are not driven from here.
type sketchInterface struct {
	gen       llm.Generator
	assembler *compose.Assembler
	logger    *slog.Logger
}

func newSketchInterface(cfg ExecutorConfig) *sketchInterface {
	cfg = cfg.withDefaults()
	return &sketchInterface{
		gen:       cfg.Generator,
		assembler: compose.NewAssembler(cfg.MaxContextTokens),
		logger:    cfg.Logger,
	}
}

func (s *sketchInterface) Name() string { return StageSketchInterface }

func (s *sketchInterface) Execute(ctx context.Context, sc *StageContext) (*StageResult, error) {
	caps, err := listActive(ctx, sc.Artifacts, artifact.KindCapability)
	if err != nil {
		return nil, fmt.Errorf("list capabilities: %w", err)
	}

	sections := []compose.Section{
		compose.ArtifactSection("Capabilities", caps, false),
	}
	assembled, err := s.assembler.Assemble(sc.Anchor, sections)
	if err != nil {
		return nil, err
	}

	req := &llm.Request{
		Stage:       StageSketchInterface,
		System:      sketchInterfaceSystemPrompt,
		Prompt:      assembled.Prompt,
		Feedback:    sc.Feedback,
		JSONMode:    true,
		MaxTokens:   4096,
		Temperature: 0.3,
	}

	known := idSet(caps)
	var wire wireDecisionList
	if err := generateDecoded(ctx, s.gen, req, &wire, s.logger); err != nil {
		return nil, err
	}
	for _, wd := range wire.Decisions {
		if err := checkRefs(wd.Serves, known, "serves"); err != nil {
			return nil, permanent(err)
		}
	}

	arts := make([]*artifact.Artifact, 0, len(wire.Decisions))
	for _, wd := range wire.Decisions {
		a := artifact.New(artifact.KindDecision, sc.Phase)
		a.Summary = wd.Summary
		a.Serves = wd.Serves
		a.Provenance = artifact.Provenance{RunID: sc.Run.RunID, Stage: sc.Stage, Attempt: sc.Attempt}
		a.Decision = &artifact.Decision{
			Title:     wd.Title,
			Area:      "interface",
			Choice:    wd.Choice,
			Rationale: wd.Rationale,
		}
		arts = append(arts, a)
	}

	ids, err := appendAll(ctx, sc.Artifacts, arts)
	if err != nil {
		return nil, err
	}
	if err := supersedePrior(ctx, sc.Artifacts, sc.Prior, arts, decisionTitle); err != nil {
		return nil, err
	}

	return &StageResult{
		ArtifactIDs: ids,
		Summary:     fmt.Sprintf("%d interface surfaces sketched", len(ids)),
	}, nil
}
