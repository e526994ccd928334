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
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/AleutianAI/wayfinder/services/planner/anchor"
	"github.com/AleutianAI/wayfinder/services/planner/llm"
)

// =============================================================================
// validate_idea
// =============================================================================

const validateIdeaSystemPrompt = `You are a triage reviewer for a software planning pipeline. Judge whether the submitted idea describes a buildable software product.

## Instructions
1. An idea is viable when it names something software can do for someone. Vague is fine; empty, incoherent, or non-software requests are not
2. If not viable, give the reasons a human would need to rephrase
3. Judge whether the product would have a user-facing interface (UI, CLI, chat surface). Pure libraries and background services do not

## Output Format
Respond with ONLY a JSON object. No explanation, no markdown, just JSON:
{"viable": <true|false>, "reasons": ["<why, when not viable>"], "has_user_interface": <true|false>}`

type validatedIdea struct {
	Viable           bool     `json:"viable"`
	Reasons          []string `json:"reasons"`
	HasUserInterface bool     `json:"has_user_interface"`
}

// validateIdea triages the raw idea before anything is generated from
// it. Rejection is permanent; the pipeline never plans around an idea
// the user needs to rephrase.
type validateIdea struct {
	gen    llm.Generator
	logger *slog.Logger
}

func newValidateIdea(cfg ExecutorConfig) *validateIdea {
	cfg = cfg.withDefaults()
	return &validateIdea{gen: cfg.Generator, logger: cfg.Logger}
}

func (v *validateIdea) Name() string { return StageValidateIdea }

func (v *validateIdea) Execute(ctx context.Context, sc *StageContext) (*StageResult, error) {
	req := &llm.Request{
		Stage:       StageValidateIdea,
		System:      validateIdeaSystemPrompt,
		Prompt:      "Triage the following idea:\n\n" + boundText(sc.Run.Idea, anchor.DefaultMaxIdeaChars),
		JSONMode:    true,
		MaxTokens:   1024,
		Temperature: 0.1,
	}

	var verdict validatedIdea
	var lastErr error
	for attempt := 1; attempt <= 2; attempt++ {
		res, err := v.gen.Generate(ctx, req)
		if err != nil {
			return nil, fmt.Errorf("triage call failed: %w", err)
		}
		if err := llm.DecodeInto(res, &verdict); err == nil {
			lastErr = nil
			break
		} else {
			lastErr = err
			if attempt == 1 {
				v.logger.Warn("Triage output rejected, retrying with feedback", "error", err)
				req.Feedback = append(req.Feedback, err.Error())
			}
		}
	}
	if lastErr != nil {
		return nil, permanent(lastErr)
	}

	if !verdict.Viable {
		reason := strings.Join(verdict.Reasons, "; ")
		if reason == "" {
			reason = "no reason reported"
		}
		return nil, permanent(fmt.Errorf("%w: %s", ErrIdeaRejected, reason))
	}

	flags := []string{FlagIdeaViable}
	if verdict.HasUserInterface {
		flags = append(flags, FlagHasUserInterface)
	}
	return &StageResult{
		Flags:   flags,
		Summary: fmt.Sprintf("idea viable, user interface: %t", verdict.HasUserInterface),
	}, nil
}

// boundText caps text at n bytes, cutting back to a space so prompts do
// not end mid-word.
func boundText(s string, n int) string {
	if len(s) <= n {
		return s
	}
	cut := s[:n]
	if i := strings.LastIndexByte(cut, ' '); i > 0 {
		cut = cut[:i]
	}
	return cut
}

// =============================================================================
// distill_anchor
// =============================================================================

// distillAnchor wraps the anchor extractor as a stage. Extraction
// failure past its own feedback retry is permanent; spending engine
// retries re-asking the same question buys nothing.
type distillAnchor struct {
	extractor *anchor.Extractor
	threshold float64
}

func newDistillAnchor(cfg ExecutorConfig) *distillAnchor {
	cfg = cfg.withDefaults()
	return &distillAnchor{
		extractor: anchor.NewExtractor(cfg.Generator, cfg.Threshold, cfg.Logger),
		threshold: cfg.Threshold,
	}
}

func (d *distillAnchor) Name() string { return StageDistillAnchor }

func (d *distillAnchor) Execute(ctx context.Context, sc *StageContext) (*StageResult, error) {
	a, err := d.extractor.Extract(ctx, sc.Run.Idea)
	if err != nil {
		var exErr *anchor.ExtractionError
		if errors.As(err, &exErr) {
			return nil, permanent(err)
		}
		return nil, err
	}

	return &StageResult{
		Anchor: a,
		Flags:  []string{FlagAnchorExtracted},
		Summary: fmt.Sprintf("anchor extracted: %d invariants, %d ambiguous",
			len(a.Invariants), len(a.Ambiguous(d.threshold))),
	}, nil
}
