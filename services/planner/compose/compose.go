// Copyright (C) 2026 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package compose assembles the context block for a generation stage.
//
// # Description
//
// Every generation prompt is built from the same ingredients in the same
// order: the anchor rendered verbatim at the top (never summarized, never
// dropped), then per-artifact summary sections the stage requires, then
// optional supporting sections. When the assembled text exceeds the token
// budget, optional sections are dropped last-first; required content is
// never silently cut. Section bodies are ordered by artifact ID, so the
// same store state always assembles to the same bytes.
package compose

import (
	"fmt"
	"sort"
	"strings"

	"github.com/AleutianAI/wayfinder/services/planner/anchor"
	"github.com/AleutianAI/wayfinder/services/planner/artifact"
)

// DefaultMaxContextTokens bounds an assembled context when the caller does
// not set a budget.
const DefaultMaxContextTokens = 8192

// EstimateTokens approximates token count at four bytes per token. The
// heuristic is deliberately cheap; budgets carry headroom for it.
func EstimateTokens(s string) int {
	return (len(s) + 3) / 4
}

// Section is one titled block of an assembled context.
type Section struct {
	Title string
	Body  string

	// Optional sections are dropped, in reverse order, when the assembled
	// context exceeds budget.
	Optional bool
}

// Assembled is the finished context for one generation call.
type Assembled struct {
	// Prompt is the full context text, anchor first.
	Prompt string

	TokenEstimate int

	// Dropped names optional sections cut for budget.
	Dropped []string
}

// ArtifactSection renders artifacts as one summary line each, ordered by
// ID. Superseded artifacts are skipped; history does not belong in a
// generation prompt.
func ArtifactSection(title string, arts []*artifact.Artifact, optional bool) Section {
	active := make([]*artifact.Artifact, 0, len(arts))
	for _, a := range arts {
		if a.Active() {
			active = append(active, a)
		}
	}
	sort.Slice(active, func(i, j int) bool { return active[i].ID < active[j].ID })

	var b strings.Builder
	for _, a := range active {
		fmt.Fprintf(&b, "- [%s] %s\n", a.ID, a.Summary)
	}
	return Section{Title: title, Body: b.String(), Optional: optional}
}

// NotesSection renders free-form stage notes.
func NotesSection(title string, notes []string) Section {
	var b strings.Builder
	for _, n := range notes {
		b.WriteString("- ")
		b.WriteString(n)
		b.WriteString("\n")
	}
	return Section{Title: title, Body: b.String(), Optional: true}
}

// Scoped filters artifacts to the given IDs, preserving ID order. Used to
// narrow a section to what the diff flagged.
func Scoped(arts []*artifact.Artifact, ids []string) []*artifact.Artifact {
	want := make(map[string]bool, len(ids))
	for _, id := range ids {
		want[id] = true
	}
	var out []*artifact.Artifact
	for _, a := range arts {
		if want[a.ID] {
			out = append(out, a)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Assembler builds contexts under a token budget.
type Assembler struct {
	maxTokens int
}

// NewAssembler returns an Assembler. A non-positive budget takes
// DefaultMaxContextTokens.
func NewAssembler(maxTokens int) *Assembler {
	if maxTokens <= 0 {
		maxTokens = DefaultMaxContextTokens
	}
	return &Assembler{maxTokens: maxTokens}
}

// Assemble builds the context: anchor verbatim, then sections in the given
// order.
//
// Outputs:
//   - *Assembled: the prompt text with its token estimate.
//   - error: ErrBudgetExceeded when the anchor plus required sections
//     alone exceed the budget; nothing can be dropped to fit.
func (as *Assembler) Assemble(a *anchor.Anchor, sections []Section) (*Assembled, error) {
	if a == nil {
		return nil, fmt.Errorf("%w: nil anchor", ErrMissingAnchor)
	}

	render := func(included []Section) string {
		var b strings.Builder
		b.WriteString(a.Render())
		for _, s := range included {
			if s.Body == "" {
				continue
			}
			b.WriteString("\n")
			b.WriteString(s.Title)
			b.WriteString(":\n")
			b.WriteString(s.Body)
		}
		return b.String()
	}

	included := append([]Section(nil), sections...)
	var dropped []string

	text := render(included)
	for EstimateTokens(text) > as.maxTokens {
		idx := -1
		for i := len(included) - 1; i >= 0; i-- {
			if included[i].Optional {
				idx = i
				break
			}
		}
		if idx < 0 {
			return nil, fmt.Errorf("%w: %d tokens of required context against a budget of %d",
				ErrBudgetExceeded, EstimateTokens(text), as.maxTokens)
		}
		dropped = append(dropped, included[idx].Title)
		included = append(included[:idx], included[idx+1:]...)
		text = render(included)
	}

	return &Assembled{
		Prompt:        text,
		TokenEstimate: EstimateTokens(text),
		Dropped:       dropped,
	}, nil
}
