// Copyright (C) 2026 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package anchor defines the concept anchor: the distilled identity of the
// user's idea that every later generation stage is held to.
//
// # Description
//
// The anchor is extracted once from the raw idea, clarified while its
// invariants carry low confidence, and frozen at concept approval. After
// the freeze it never changes; downstream artifacts that need to deviate
// from an invariant record a justified override on themselves instead.
// The rendered anchor text is included verbatim in every prompt, never
// summarized.
//
// # Thread Safety
//
// Anchor values are not safe for concurrent mutation. The workflow engine
// owns the anchor for the duration of a run and persists it with run state.
package anchor

import (
	"encoding/hex"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
)

// DefaultConfidenceThreshold is the confidence below which an invariant is
// considered ambiguous and must offer clarification options.
const DefaultConfidenceThreshold = 0.7

const (
	minClarificationOptions = 2
	maxClarificationOptions = 3
)

// IdentityFeature is one of the handful of properties that make the idea
// this idea rather than a neighboring one.
type IdentityFeature struct {
	Name        string `json:"name"`
	Description string `json:"description"`

	// DriftRisk names why generic regeneration tends to erode this feature,
	// so verification knows what to watch for.
	DriftRisk string `json:"drift_risk,omitempty"`
}

// ClarificationOption is one concrete reading of an ambiguous invariant.
type ClarificationOption struct {
	ID        string `json:"id"`
	Statement string `json:"statement"`
	// Implication spells out what choosing this reading commits the plan to.
	Implication string `json:"implication,omitempty"`
}

// Resolution records how an ambiguous invariant was settled. Exactly one
// of OptionID or FreeText is set.
type Resolution struct {
	OptionID   string `json:"option_id,omitempty"`
	FreeText   string `json:"free_text,omitempty"`
	ResolvedAt int64  `json:"resolved_at"`
}

// Invariant is a property of the idea that must hold in every downstream
// artifact: which aspect is constrained, what reading of it is required,
// and the span of the user's own words it was taken from.
type Invariant struct {
	ID string `json:"id"`

	// Property names the aspect being constrained ("data locality",
	// "tenancy"). Value is the reading of it the plan must honor.
	Property string `json:"property"`
	Value    string `json:"value"`

	// SourceQuote is the verbatim span of the idea text this invariant was
	// derived from. Extraction must supply it; clarification never rewrites
	// it, so the original wording stays auditable.
	SourceQuote string `json:"source_quote,omitempty"`

	// Confidence is the extractor's certainty in [0, 1] that Value reflects
	// the user's intent. Clarification sets it to 1.0.
	Confidence float64 `json:"confidence"`

	// Ambiguity says why confidence is low. Together with Options it is
	// cleared when the invariant is resolved; only Resolution remains.
	Ambiguity string `json:"ambiguity,omitempty"`

	// Options holds 2-3 candidate readings while the invariant is below the
	// clarification threshold.
	Options []ClarificationOption `json:"options,omitempty"`

	Resolution *Resolution `json:"resolution,omitempty"`
}

// Ambiguous reports whether the invariant still needs clarification at the
// given threshold. A resolved invariant is never ambiguous.
func (inv *Invariant) Ambiguous(threshold float64) bool {
	return inv.Resolution == nil && inv.Confidence < threshold
}

// Anchor is the immutable distillation of the user's idea.
type Anchor struct {
	// Goal is the one-paragraph statement of what the idea is for.
	Goal string `json:"goal"`

	// ExplicitConstraints are requirements the user stated outright;
	// NonGoals are things the user said the idea must not become.
	ExplicitConstraints []string `json:"explicit_constraints,omitempty"`
	NonGoals            []string `json:"non_goals,omitempty"`

	IdentityFeatures []IdentityFeature `json:"identity_features"`
	Invariants       []Invariant       `json:"invariants"`

	Frozen      bool  `json:"frozen"`
	CreatedAt   int64 `json:"created_at"`
	ConfirmedAt int64 `json:"confirmed_at,omitempty"`
}

// NewInvariantID returns a fresh invariant identifier.
func NewInvariantID() string {
	u := uuid.New()
	return "INV-" + hex.EncodeToString(u[:4])
}

// NewOptionID returns a fresh clarification option identifier.
func NewOptionID() string {
	u := uuid.New()
	return "OPT-" + hex.EncodeToString(u[:4])
}

// Validate checks structural integrity: goal and invariant property/value
// pairs present, confidences in range, option sets either absent or sized
// for a real choice, resolved invariants carrying no leftover ambiguity.
// It does not check ambiguity coverage or source quotes; those are
// extraction quality rules enforced by ValidateForExtraction.
func (a *Anchor) Validate() error {
	if strings.TrimSpace(a.Goal) == "" {
		return fmt.Errorf("%w: goal is empty", ErrInvalidAnchor)
	}
	for i, c := range a.ExplicitConstraints {
		if strings.TrimSpace(c) == "" {
			return fmt.Errorf("%w: explicit constraint %d is empty", ErrInvalidAnchor, i)
		}
	}
	for i, n := range a.NonGoals {
		if strings.TrimSpace(n) == "" {
			return fmt.Errorf("%w: non-goal %d is empty", ErrInvalidAnchor, i)
		}
	}
	if len(a.IdentityFeatures) == 0 {
		return fmt.Errorf("%w: no identity features", ErrInvalidAnchor)
	}
	for i, f := range a.IdentityFeatures {
		if strings.TrimSpace(f.Name) == "" {
			return fmt.Errorf("%w: identity feature %d has no name", ErrInvalidAnchor, i)
		}
	}
	if len(a.Invariants) == 0 {
		return fmt.Errorf("%w: no invariants", ErrInvalidAnchor)
	}

	seen := make(map[string]bool, len(a.Invariants))
	for i := range a.Invariants {
		inv := &a.Invariants[i]
		if inv.ID == "" {
			return fmt.Errorf("%w: invariant %d has no id", ErrInvalidAnchor, i)
		}
		if seen[inv.ID] {
			return fmt.Errorf("%w: duplicate invariant id %s", ErrInvalidAnchor, inv.ID)
		}
		seen[inv.ID] = true
		if strings.TrimSpace(inv.Property) == "" {
			return fmt.Errorf("%w: invariant %s has no property", ErrInvalidAnchor, inv.ID)
		}
		if strings.TrimSpace(inv.Value) == "" {
			return fmt.Errorf("%w: invariant %s has no value", ErrInvalidAnchor, inv.ID)
		}
		if inv.Confidence < 0 || inv.Confidence > 1 {
			return fmt.Errorf("%w: invariant %s confidence %.2f out of range",
				ErrInvalidAnchor, inv.ID, inv.Confidence)
		}
		if n := len(inv.Options); n != 0 && (n < minClarificationOptions || n > maxClarificationOptions) {
			return fmt.Errorf("%w: invariant %s has %d options, want %d-%d",
				ErrInvalidAnchor, inv.ID, n, minClarificationOptions, maxClarificationOptions)
		}
		optSeen := make(map[string]bool, len(inv.Options))
		for j, opt := range inv.Options {
			if opt.ID == "" {
				return fmt.Errorf("%w: invariant %s option %d has no id", ErrInvalidAnchor, inv.ID, j)
			}
			if optSeen[opt.ID] {
				return fmt.Errorf("%w: invariant %s duplicate option id %s", ErrInvalidAnchor, inv.ID, opt.ID)
			}
			optSeen[opt.ID] = true
			if strings.TrimSpace(opt.Statement) == "" {
				return fmt.Errorf("%w: invariant %s option %s has no statement", ErrInvalidAnchor, inv.ID, opt.ID)
			}
		}
		if inv.Resolution != nil {
			if inv.Confidence != 1.0 {
				return fmt.Errorf("%w: invariant %s resolved but confidence is %.2f",
					ErrInvalidAnchor, inv.ID, inv.Confidence)
			}
			if inv.Ambiguity != "" || len(inv.Options) != 0 {
				return fmt.Errorf("%w: invariant %s resolved but still carries ambiguity",
					ErrInvalidAnchor, inv.ID)
			}
		}
	}
	return nil
}

// ValidateForExtraction applies Validate plus the extraction quality rules:
// every invariant must quote the idea text it came from, and every invariant
// below the threshold must say what is ambiguous and offer options. A
// violation here is fed back to the extractor rather than surfaced to the
// user.
func (a *Anchor) ValidateForExtraction(threshold float64) error {
	if err := a.Validate(); err != nil {
		return err
	}
	for i := range a.Invariants {
		inv := &a.Invariants[i]
		if strings.TrimSpace(inv.SourceQuote) == "" {
			return fmt.Errorf("%w: invariant %s has no source quote", ErrInvalidAnchor, inv.ID)
		}
		if inv.Ambiguous(threshold) {
			if strings.TrimSpace(inv.Ambiguity) == "" {
				return fmt.Errorf("%w: invariant %s has confidence %.2f but no ambiguity description",
					ErrInvalidAnchor, inv.ID, inv.Confidence)
			}
			if len(inv.Options) == 0 {
				return fmt.Errorf("%w: invariant %s has confidence %.2f but no clarification options",
					ErrInvalidAnchor, inv.ID, inv.Confidence)
			}
		}
	}
	return nil
}

// Ambiguous returns the invariants still needing clarification, ordered
// by ID.
func (a *Anchor) Ambiguous(threshold float64) []*Invariant {
	var out []*Invariant
	for i := range a.Invariants {
		if a.Invariants[i].Ambiguous(threshold) {
			out = append(out, &a.Invariants[i])
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// NeedsClarification reports whether any invariant is still ambiguous.
func (a *Anchor) NeedsClarification(threshold float64) bool {
	for i := range a.Invariants {
		if a.Invariants[i].Ambiguous(threshold) {
			return true
		}
	}
	return false
}

func (a *Anchor) invariant(id string) *Invariant {
	for i := range a.Invariants {
		if a.Invariants[i].ID == id {
			return &a.Invariants[i]
		}
	}
	return nil
}

// Clarify resolves an ambiguous invariant. Exactly one of optionID or
// freeText selects the reading; the invariant's value is rewritten to the
// chosen one, confidence goes to 1.0, and the ambiguity description and
// options are cleared. What was asked and answered survives in Resolution
// and in earlier persisted state revisions.
//
// Inputs:
//   - invariantID: the invariant to resolve.
//   - optionID: id of one of the invariant's options, or empty.
//   - freeText: the user's own wording, or empty.
//
// Outputs:
//   - error: ErrAnchorFrozen, ErrUnknownInvariant, ErrUnknownOption, or
//     ErrInvalidAnchor when the selection is malformed.
func (a *Anchor) Clarify(invariantID, optionID, freeText string) error {
	if a.Frozen {
		return fmt.Errorf("%w: cannot clarify %s", ErrAnchorFrozen, invariantID)
	}
	inv := a.invariant(invariantID)
	if inv == nil {
		return fmt.Errorf("%w: %s", ErrUnknownInvariant, invariantID)
	}
	hasOption := optionID != ""
	hasText := strings.TrimSpace(freeText) != ""
	if hasOption == hasText {
		return fmt.Errorf("%w: clarification needs exactly one of option or free text", ErrInvalidAnchor)
	}

	res := &Resolution{ResolvedAt: time.Now().UnixMilli()}
	if hasOption {
		var chosen *ClarificationOption
		for i := range inv.Options {
			if inv.Options[i].ID == optionID {
				chosen = &inv.Options[i]
				break
			}
		}
		if chosen == nil {
			return fmt.Errorf("%w: %s on invariant %s", ErrUnknownOption, optionID, invariantID)
		}
		inv.Value = chosen.Statement
		res.OptionID = optionID
	} else {
		inv.Value = strings.TrimSpace(freeText)
		res.FreeText = inv.Value
	}
	inv.Confidence = 1.0
	inv.Ambiguity = ""
	inv.Options = nil
	inv.Resolution = res
	return nil
}

// Confirm freezes the anchor. It fails while any invariant remains
// ambiguous; after it returns nil the anchor can never change again.
func (a *Anchor) Confirm(threshold float64) error {
	if a.Frozen {
		return ErrAnchorFrozen
	}
	if amb := a.Ambiguous(threshold); len(amb) > 0 {
		ids := make([]string, len(amb))
		for i, inv := range amb {
			ids[i] = inv.ID
		}
		return fmt.Errorf("%w: %s", ErrAmbiguityUnresolved, strings.Join(ids, ", "))
	}
	a.Frozen = true
	a.ConfirmedAt = time.Now().UnixMilli()
	return nil
}

// Clone returns a deep copy.
func (a *Anchor) Clone() *Anchor {
	if a == nil {
		return nil
	}
	cp := *a
	cp.ExplicitConstraints = append([]string(nil), a.ExplicitConstraints...)
	cp.NonGoals = append([]string(nil), a.NonGoals...)
	cp.IdentityFeatures = append([]IdentityFeature(nil), a.IdentityFeatures...)
	cp.Invariants = make([]Invariant, len(a.Invariants))
	for i, inv := range a.Invariants {
		invCp := inv
		invCp.Options = append([]ClarificationOption(nil), inv.Options...)
		if inv.Resolution != nil {
			resCp := *inv.Resolution
			invCp.Resolution = &resCp
		}
		cp.Invariants[i] = invCp
	}
	return &cp
}

// Render produces the verbatim anchor block placed at the top of every
// generation prompt. The output is deterministic for a given anchor.
func (a *Anchor) Render() string {
	var b strings.Builder
	b.WriteString("CONCEPT ANCHOR\n")
	b.WriteString("Goal: ")
	b.WriteString(a.Goal)
	b.WriteString("\n")
	if len(a.ExplicitConstraints) > 0 {
		b.WriteString("\nExplicit constraints:\n")
		for _, c := range a.ExplicitConstraints {
			fmt.Fprintf(&b, "- %s\n", c)
		}
	}
	if len(a.NonGoals) > 0 {
		b.WriteString("\nNon-goals:\n")
		for _, n := range a.NonGoals {
			fmt.Fprintf(&b, "- %s\n", n)
		}
	}
	b.WriteString("\nIdentity features:\n")
	for _, f := range a.IdentityFeatures {
		if f.DriftRisk != "" {
			fmt.Fprintf(&b, "- %s: %s (drift risk: %s)\n", f.Name, f.Description, f.DriftRisk)
			continue
		}
		fmt.Fprintf(&b, "- %s: %s\n", f.Name, f.Description)
	}
	b.WriteString("\nInvariants:\n")
	for i := range a.Invariants {
		inv := &a.Invariants[i]
		if inv.SourceQuote != "" {
			fmt.Fprintf(&b, "- [%s] %s: %s (from: %q)\n", inv.ID, inv.Property, inv.Value, inv.SourceQuote)
			continue
		}
		fmt.Fprintf(&b, "- [%s] %s: %s\n", inv.ID, inv.Property, inv.Value)
	}
	return b.String()
}
