// Copyright (C) 2026 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package anchor

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/tmc/langchaingo/textsplitter"

	"github.com/AleutianAI/wayfinder/services/planner/llm"
)

// =============================================================================
// Constants
// =============================================================================

const (
	// StageName is the workflow stage identifier for anchor extraction.
	StageName = "distill_anchor"

	// DefaultMaxIdeaChars bounds how much of the raw idea goes into the
	// extraction prompt. Oversized ideas are cut at a natural boundary.
	DefaultMaxIdeaChars = 32768

	extractionTemperature = 0.2
	extractionMaxTokens   = 4096
)

const extractorSystemPrompt = `You are a concept distiller for a software planning pipeline. Your job is to extract the identity of a product idea: what makes it THIS idea and not a neighboring one.

## Instructions
1. Write a one-paragraph goal that captures what the idea is for
2. List the explicit constraints the user stated outright, and the non-goals the user ruled out. Leave these empty if the idea states none; never invent them
3. List 3-5 identity features: the properties that distinguish this idea, each with the drift risk: why a generic rendition would lose it
4. List the invariants: for each, the property being constrained (short noun phrase), the required value of it, and the source quote: the verbatim span of the idea text it came from. Every invariant needs a source quote
5. Score each invariant's confidence from 0.0 to 1.0 based on how clearly the quoted text supports the value
6. For any invariant below %.2f confidence, say what is ambiguous and provide 2-3 clarification options: concrete alternative readings the user can choose between
7. Do NOT guess on ambiguous points. Low confidence plus options is the correct answer, not a confident invention

## Output Format
Respond with ONLY a JSON object. No explanation, no markdown, just JSON:
{"goal": "<paragraph>", "explicit_constraints": ["<requirement stated outright>"], "non_goals": ["<thing the idea must not become>"], "identity_features": [{"name": "<short name>", "description": "<one sentence>", "drift_risk": "<why generation tends to lose this>"}], "invariants": [{"property": "<aspect constrained>", "value": "<required reading>", "source_quote": "<verbatim span from the idea>", "confidence": <0.0-1.0>, "ambiguity": "<what is unclear, only when confidence is low>", "options": [{"statement": "<alternative reading>", "implication": "<what choosing this commits to>"}]}]}

Example invariant with full confidence:
{"property": "data locality", "value": "All data stays on the user's machine", "source_quote": "everything lives on your own laptop, nothing in the cloud", "confidence": 0.95}

Example ambiguous invariant:
{"property": "tenancy", "value": "Supports multiple users", "source_quote": "my whole family could use it", "confidence": 0.4, "ambiguity": "Unclear whether family members share one device or connect over the network", "options": [{"statement": "Multiple local OS accounts share one instance", "implication": "No network auth needed"}, {"statement": "Networked multi-tenant accounts", "implication": "Requires auth and per-tenant isolation"}]}`

// =============================================================================
// Errors
// =============================================================================

// ExtractionError carries the raw model output when extraction fails past
// its feedback retry, so a human can inspect what the model produced.
type ExtractionError struct {
	Raw      string
	Attempts int
	Err      error
}

func (e *ExtractionError) Error() string {
	return fmt.Sprintf("anchor extraction failed after %d attempts: %v", e.Attempts, e.Err)
}

func (e *ExtractionError) Unwrap() []error {
	return []error{ErrExtractionFailed, e.Err}
}

// =============================================================================
// Extractor
// =============================================================================

// wire structs for the model's JSON output.
type extractedAnchor struct {
	Goal                string               `json:"goal" validate:"required"`
	ExplicitConstraints []string             `json:"explicit_constraints"`
	NonGoals            []string             `json:"non_goals"`
	IdentityFeatures    []extractedFeature   `json:"identity_features" validate:"required,min=1,dive"`
	Invariants          []extractedInvariant `json:"invariants" validate:"required,min=1,dive"`
}

type extractedFeature struct {
	Name        string `json:"name" validate:"required"`
	Description string `json:"description"`
	DriftRisk   string `json:"drift_risk"`
}

type extractedInvariant struct {
	Property    string            `json:"property" validate:"required"`
	Value       string            `json:"value" validate:"required"`
	SourceQuote string            `json:"source_quote" validate:"required"`
	Confidence  float64           `json:"confidence" validate:"gte=0,lte=1"`
	Ambiguity   string            `json:"ambiguity,omitempty"`
	Options     []extractedOption `json:"options,omitempty" validate:"omitempty,min=2,max=3,dive"`
}

type extractedOption struct {
	Statement   string `json:"statement" validate:"required"`
	Implication string `json:"implication"`
}

// Extractor distills a raw idea into an Anchor through one generation call,
// with a single corrective retry when the output fails schema or quality
// checks.
//
// # Thread Safety
//
// Safe for concurrent use when the underlying Generator is.
type Extractor struct {
	gen          llm.Generator
	threshold    float64
	maxIdeaChars int
	logger       *slog.Logger
}

// NewExtractor builds an Extractor. A zero threshold takes
// DefaultConfidenceThreshold.
func NewExtractor(gen llm.Generator, threshold float64, logger *slog.Logger) *Extractor {
	if threshold <= 0 {
		threshold = DefaultConfidenceThreshold
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Extractor{
		gen:          gen,
		threshold:    threshold,
		maxIdeaChars: DefaultMaxIdeaChars,
		logger:       logger,
	}
}

// Extract runs the distillation.
//
// # Description
//
// One generation call, decoded and quality-checked. A schema violation or
// an ambiguous invariant missing its options is fed back to the model for
// exactly one more attempt; a second failure escalates with the raw output
// preserved in the returned *ExtractionError. Ambiguity itself is not a
// failure: the returned anchor may need clarification, which the caller
// surfaces at the concept gate.
//
// Inputs:
//   - ctx: bounds both attempts.
//   - idea: the user's raw idea text. Bounded to maxIdeaChars at a natural
//     boundary before prompting.
//
// Outputs:
//   - *Anchor: validated, unfrozen, possibly ambiguous.
//   - error: *ExtractionError after the retry is spent.
func (e *Extractor) Extract(ctx context.Context, idea string) (*Anchor, error) {
	bounded, truncated := e.boundIdea(idea)
	if truncated {
		e.logger.Warn("Idea exceeds prompt budget, truncated at a natural boundary",
			"original_chars", len(idea),
			"bounded_chars", len(bounded))
	}

	req := &llm.Request{
		Stage:       StageName,
		System:      fmt.Sprintf(extractorSystemPrompt, e.threshold),
		Prompt:      "Distill the following idea:\n\n" + bounded,
		JSONMode:    true,
		MaxTokens:   extractionMaxTokens,
		Temperature: extractionTemperature,
	}

	var lastRaw string
	var lastErr error
	for attempt := 1; attempt <= 2; attempt++ {
		res, err := e.gen.Generate(ctx, req)
		if err != nil {
			// Transport failures already went through the retrier; do not
			// spend the feedback retry on them.
			return nil, fmt.Errorf("extraction call failed: %w", err)
		}
		lastRaw = res.Raw

		a, err := e.decode(res)
		if err == nil {
			e.logger.Info("Anchor extracted",
				"invariants", len(a.Invariants),
				"ambiguous", len(a.Ambiguous(e.threshold)),
				"attempt", attempt)
			return a, nil
		}
		lastErr = err

		if attempt == 1 {
			e.logger.Warn("Extraction output rejected, retrying with feedback", "error", err)
			req.Feedback = append(req.Feedback, err.Error())
		}
	}

	return nil, &ExtractionError{Raw: lastRaw, Attempts: 2, Err: lastErr}
}

// decode converts a completion into a validated Anchor.
func (e *Extractor) decode(res *llm.Result) (*Anchor, error) {
	var wire extractedAnchor
	if err := llm.DecodeInto(res, &wire); err != nil {
		return nil, err
	}

	a := &Anchor{
		Goal:                wire.Goal,
		ExplicitConstraints: wire.ExplicitConstraints,
		NonGoals:            wire.NonGoals,
		CreatedAt:           time.Now().UnixMilli(),
	}
	for _, f := range wire.IdentityFeatures {
		a.IdentityFeatures = append(a.IdentityFeatures, IdentityFeature(f))
	}
	for _, inv := range wire.Invariants {
		out := Invariant{
			ID:          NewInvariantID(),
			Property:    inv.Property,
			Value:       inv.Value,
			SourceQuote: inv.SourceQuote,
			Confidence:  inv.Confidence,
		}
		// Ambiguity text and options on a confident invariant are noise;
		// keep them only where a clarification will actually be asked.
		if inv.Confidence < e.threshold {
			out.Ambiguity = inv.Ambiguity
			for _, opt := range inv.Options {
				out.Options = append(out.Options, ClarificationOption{
					ID:          NewOptionID(),
					Statement:   opt.Statement,
					Implication: opt.Implication,
				})
			}
		}
		a.Invariants = append(a.Invariants, out)
	}

	if err := a.ValidateForExtraction(e.threshold); err != nil {
		return nil, err
	}
	return a, nil
}

// boundIdea cuts an oversized idea at a natural boundary using the same
// recursive splitter the document pipeline uses, rather than mid-sentence.
func (e *Extractor) boundIdea(idea string) (string, bool) {
	if len(idea) <= e.maxIdeaChars {
		return idea, false
	}
	splitter := textsplitter.NewRecursiveCharacter(
		textsplitter.WithChunkSize(e.maxIdeaChars),
		textsplitter.WithChunkOverlap(0),
	)
	chunks, err := splitter.SplitText(idea)
	if err != nil || len(chunks) == 0 {
		return idea[:e.maxIdeaChars], true
	}
	return chunks[0], true
}
