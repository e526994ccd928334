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
	"strings"

	"github.com/AleutianAI/wayfinder/services/planner/compose"
	"github.com/AleutianAI/wayfinder/services/planner/llm"
)

const (
	// InvariantPassName is the default model-backed pass.
	InvariantPassName = "invariants"

	verifyTemperature = 0.1
	verifyMaxTokens   = 2048
)

const invariantSystemPrompt = `You are a drift reviewer for a software planning pipeline. You are given a CONCEPT ANCHOR (the frozen identity of the idea) and the current plan artifacts. Your job is to find places where the plan has drifted from the anchor.

## Instructions
1. Check every artifact against every anchor invariant
2. Report a violation when an artifact contradicts an invariant, ignores an identity feature, or introduces scope the anchor does not support
3. Severity "blocking" means the contradiction is real and material; "warning" means it is a smell worth human attention
4. Reference artifacts by their bracketed IDs and invariants by their INV- IDs
5. An empty violations list is a valid and common answer. Do NOT invent violations
6. List every anchor invariant the artifacts uphold under honored_invariants, by INV- ID
7. List each identity feature the plan still realizes under preserved_features, and each one flattened into a generic default under generic_features. Name features exactly as the anchor does
%s

## Output Format
Respond with ONLY a JSON object. No explanation, no markdown, just JSON:
{"violations": [{"property": "<INV-id or short name>", "artifact_id": "<artifact id or empty>", "severity": "blocking|warning", "detail": "<one sentence>"}], "honored_invariants": ["<INV-id>"], "preserved_features": ["<feature name>"], "generic_features": ["<feature name>"]}

Example outputs:
{"violations": [], "honored_invariants": ["INV-a1b2c3d4"], "preserved_features": ["invite-only membership"], "generic_features": []}
{"violations": [{"property": "INV-a1b2c3d4", "artifact_id": "DEC-11aa22bb", "severity": "blocking", "detail": "Decision stores user data in a hosted service, anchor requires local-only data"}], "honored_invariants": [], "preserved_features": [], "generic_features": ["local-only data"]}`

type wireViolation struct {
	Property   string `json:"property" validate:"required"`
	ArtifactID string `json:"artifact_id"`
	Severity   string `json:"severity" validate:"required,oneof=blocking warning"`
	Detail     string `json:"detail" validate:"required"`
}

type wireReport struct {
	Violations        []wireViolation `json:"violations" validate:"dive"`
	HonoredInvariants []string        `json:"honored_invariants"`
	PreservedFeatures []string        `json:"preserved_features"`
	GenericFeatures   []string        `json:"generic_features"`
}

// InvariantPass reviews the artifact graph against the anchor with a
// model. Multiple instances with different focus text form a multi-pass
// review.
type InvariantPass struct {
	gen    llm.Generator
	name   string
	focus  string
	logger *slog.Logger
}

var _ Verifier = (*InvariantPass)(nil)

// NewInvariantPass builds a pass. name distinguishes passes in reports;
// focus is extra reviewer guidance appended to the system prompt, may be
// empty.
func NewInvariantPass(gen llm.Generator, name, focus string, logger *slog.Logger) *InvariantPass {
	if name == "" {
		name = InvariantPassName
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &InvariantPass{gen: gen, name: name, focus: focus, logger: logger}
}

func (p *InvariantPass) Name() string { return p.name }

// Verify implements Verifier.
func (p *InvariantPass) Verify(ctx context.Context, target *Target) (*Report, error) {
	if target.Anchor == nil {
		return nil, ErrMissingAnchor
	}

	prompt, err := p.renderTarget(target)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrVerificationFailed, err)
	}

	focus := ""
	if p.focus != "" {
		focus = "8. Review focus for this pass: " + p.focus
	}

	res, err := p.gen.Generate(ctx, &llm.Request{
		Stage:       "verify_" + p.name,
		System:      fmt.Sprintf(invariantSystemPrompt, focus),
		Prompt:      prompt,
		JSONMode:    true,
		MaxTokens:   verifyMaxTokens,
		Temperature: verifyTemperature,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrVerificationFailed, err)
	}

	var wire wireReport
	if err := llm.DecodeInto(res, &wire); err != nil {
		return nil, fmt.Errorf("%w: unusable reviewer output: %v", ErrVerificationFailed, err)
	}

	report := NewReport(target.Phase, p.name)
	idx := target.byID()
	for _, wv := range wire.Violations {
		if wv.ArtifactID != "" {
			if _, ok := idx[wv.ArtifactID]; !ok {
				p.logger.Warn("Reviewer referenced unknown artifact, dropping finding",
					"pass", p.name, "artifact_id", wv.ArtifactID)
				continue
			}
		}
		report.Violations = append(report.Violations, Violation{
			Property:   wv.Property,
			ArtifactID: wv.ArtifactID,
			Severity:   Severity(wv.Severity),
			Detail:     wv.Detail,
			Pass:       p.name,
		})
	}
	p.recordAttestations(report, target, &wire)
	report.finalize()

	p.logger.Debug("Invariant pass complete",
		"pass", p.name,
		"phase", target.Phase,
		"violations", len(report.Violations),
		"honored", len(report.InvariantsHonored))
	return report, nil
}

// recordAttestations keeps the reviewer's positive verdicts: honored
// invariants filtered to IDs the anchor actually holds, preserved and
// genericized features filtered to the anchor's identity feature names.
// Hallucinated entries are dropped, not errors; the violations are the
// load-bearing half.
func (p *InvariantPass) recordAttestations(report *Report, target *Target, wire *wireReport) {
	known := make(map[string]bool, len(target.Anchor.Invariants))
	for _, inv := range target.Anchor.Invariants {
		known[inv.ID] = true
	}
	features := make(map[string]bool, len(target.Anchor.IdentityFeatures))
	for _, f := range target.Anchor.IdentityFeatures {
		features[f.Name] = true
	}

	for _, id := range wire.HonoredInvariants {
		if !known[id] {
			p.logger.Warn("Reviewer attested unknown invariant, dropping",
				"pass", p.name, "invariant_id", id)
			continue
		}
		report.InvariantsHonored = append(report.InvariantsHonored, id)
	}
	for _, name := range wire.PreservedFeatures {
		if features[name] {
			report.IdentityPreserved = append(report.IdentityPreserved, name)
		}
	}
	for _, name := range wire.GenericFeatures {
		if features[name] {
			report.IdentityGenericized = append(report.IdentityGenericized, name)
		}
	}
}

// renderTarget builds the review prompt: anchor verbatim, then the active
// artifact summaries.
func (p *InvariantPass) renderTarget(target *Target) (string, error) {
	sections := []compose.Section{
		compose.ArtifactSection("Capabilities", target.Capabilities, false),
		compose.ArtifactSection("Decisions", target.Decisions, false),
		compose.ArtifactSection("Entities", target.Entities, false),
		compose.ArtifactSection("Work items", target.WorkItems, false),
	}

	var b strings.Builder
	b.WriteString(target.Anchor.Render())
	for _, s := range sections {
		if s.Body == "" {
			continue
		}
		b.WriteString("\n")
		b.WriteString(s.Title)
		b.WriteString(":\n")
		b.WriteString(s.Body)
	}
	b.WriteString("\nReview the artifacts against the anchor and respond with JSON only.")
	return b.String(), nil
}
