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
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// Phase and stage names used by the default graph. Custom graphs may
// reorder phases or gate them differently, but stage names must map to
// registered executors.
const (
	PhaseScope        = "scope"
	PhaseCapabilities = "capabilities"
	PhaseDesign       = "design"
	PhaseWorkplan     = "workplan"

	StageValidateIdea        = "validate_idea"
	StageDistillAnchor       = "distill_anchor"
	StageProposeCapabilities = "propose_capabilities"
	StageProposeDecisions    = "propose_decisions"
	StageModelEntities       = "model_entities"
	StageSketchInterface     = "sketch_interface"
	StageGenerateWorkItems   = "generate_work_items"
)

// Run flags set by stages and gate decisions, read by conditions.
const (
	FlagIdeaViable       = "idea_viable"
	FlagAnchorExtracted  = "anchor_extracted"
	FlagAnchorConfirmed  = "anchor_confirmed"
	FlagHasUserInterface = "has_user_interface"
)

// VerifyMode selects the boundary verification depth for a phase.
type VerifyMode string

const (
	// VerifyNone skips boundary verification.
	VerifyNone VerifyMode = ""

	// VerifySingle runs the structural and invariant passes once over
	// the phase output.
	VerifySingle VerifyMode = "single"

	// VerifyMultipass adds focused invariant passes on top of the
	// single-mode checks. Used where drift compounds, such as design
	// decisions.
	VerifyMultipass VerifyMode = "multipass"
)

// StageDef declares one stage within a phase.
type StageDef struct {
	Name string `json:"name" yaml:"name"`

	// Requires lists run flags that must hold for the stage to run.
	// Prefix a flag with "!" to require it unset. An unmet condition
	// skips the stage rather than failing the phase.
	Requires []string `json:"requires,omitempty" yaml:"requires,omitempty"`

	// Generative marks stages whose output is produced by generation.
	// Only these are re-run on verifier feedback or change requests,
	// and only these are reused when a resumed run's inputs have not
	// changed.
	Generative bool `json:"generative,omitempty" yaml:"generative,omitempty"`
}

// PhaseDef declares one phase of the pipeline.
type PhaseDef struct {
	Name string `json:"name" yaml:"name"`

	// Entry lists run flags that must hold before the phase may start.
	// Unlike stage requirements, an unmet entry condition is a wiring
	// fault and fails the run.
	Entry []string `json:"entry,omitempty" yaml:"entry,omitempty"`

	Stages []StageDef `json:"stages" yaml:"stages"`

	// Verify selects the boundary verification depth.
	Verify VerifyMode `json:"verify,omitempty" yaml:"verify,omitempty"`

	// Gate suspends the run for a human decision after the phase's
	// stages and verification finish.
	Gate bool `json:"gate,omitempty" yaml:"gate,omitempty"`
}

// Graph is the ordered phase plan a run executes.
type Graph struct {
	Phases []PhaseDef `json:"phases" yaml:"phases"`
}

// DefaultGraph returns the compiled-in pipeline: scope distills and
// gates the anchor, capabilities and design build the plan under
// verification, workplan emits the ordered work items.
func DefaultGraph() *Graph {
	return &Graph{Phases: []PhaseDef{
		{
			Name: PhaseScope,
			Stages: []StageDef{
				{Name: StageValidateIdea},
				{Name: StageDistillAnchor},
			},
			Gate: true,
		},
		{
			Name:  PhaseCapabilities,
			Entry: []string{FlagAnchorConfirmed},
			Stages: []StageDef{
				{Name: StageProposeCapabilities, Generative: true},
			},
			Verify: VerifySingle,
			Gate:   true,
		},
		{
			Name:  PhaseDesign,
			Entry: []string{FlagAnchorConfirmed},
			Stages: []StageDef{
				{Name: StageProposeDecisions, Generative: true},
				{Name: StageModelEntities, Generative: true},
				{Name: StageSketchInterface, Generative: true, Requires: []string{FlagHasUserInterface}},
			},
			Verify: VerifyMultipass,
			Gate:   true,
		},
		{
			Name:  PhaseWorkplan,
			Entry: []string{FlagAnchorConfirmed},
			Stages: []StageDef{
				{Name: StageGenerateWorkItems, Generative: true},
			},
			Verify: VerifySingle,
			Gate:   true,
		},
	}}
}

// LoadGraph reads a phase plan from a YAML file and validates it.
func LoadGraph(path string) (*Graph, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read graph: %w", err)
	}
	return ParseGraph(raw)
}

// ParseGraph decodes and validates a YAML phase plan.
func ParseGraph(raw []byte) (*Graph, error) {
	var g Graph
	if err := yaml.Unmarshal(raw, &g); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidGraph, err)
	}
	if err := g.Validate(); err != nil {
		return nil, err
	}
	return &g, nil
}

// Validate checks the graph invariants: at least one phase, unique
// phase names, globally unique stage names, known verify modes, and
// well-formed conditions.
func (g *Graph) Validate() error {
	if len(g.Phases) == 0 {
		return fmt.Errorf("%w: no phases", ErrInvalidGraph)
	}
	phases := make(map[string]bool, len(g.Phases))
	stages := make(map[string]bool)
	for i, p := range g.Phases {
		if p.Name == "" {
			return fmt.Errorf("%w: phase %d has no name", ErrInvalidGraph, i)
		}
		if phases[p.Name] {
			return fmt.Errorf("%w: duplicate phase %q", ErrInvalidGraph, p.Name)
		}
		phases[p.Name] = true

		switch p.Verify {
		case VerifyNone, VerifySingle, VerifyMultipass:
		default:
			return fmt.Errorf("%w: phase %q: unknown verify mode %q", ErrInvalidGraph, p.Name, p.Verify)
		}
		if err := checkConditions(p.Entry); err != nil {
			return fmt.Errorf("%w: phase %q entry: %v", ErrInvalidGraph, p.Name, err)
		}

		if len(p.Stages) == 0 {
			return fmt.Errorf("%w: phase %q has no stages", ErrInvalidGraph, p.Name)
		}
		for j, s := range p.Stages {
			if s.Name == "" {
				return fmt.Errorf("%w: phase %q stage %d has no name", ErrInvalidGraph, p.Name, j)
			}
			if stages[s.Name] {
				return fmt.Errorf("%w: duplicate stage %q", ErrInvalidGraph, s.Name)
			}
			stages[s.Name] = true
			if err := checkConditions(s.Requires); err != nil {
				return fmt.Errorf("%w: stage %q requires: %v", ErrInvalidGraph, s.Name, err)
			}
		}
	}
	return nil
}

// Phase returns the named phase definition, or nil.
func (g *Graph) Phase(name string) *PhaseDef {
	for i := range g.Phases {
		if g.Phases[i].Name == name {
			return &g.Phases[i]
		}
	}
	return nil
}

func checkConditions(conds []string) error {
	for _, c := range conds {
		if strings.TrimPrefix(c, "!") == "" {
			return fmt.Errorf("empty condition")
		}
	}
	return nil
}

// Unmet returns the conditions a flag set does not satisfy. A "!"
// prefix inverts the condition.
func Unmet(conds []string, flag func(string) bool) []string {
	var missing []string
	for _, c := range conds {
		name, want := c, true
		if strings.HasPrefix(c, "!") {
			name, want = c[1:], false
		}
		if flag(name) != want {
			missing = append(missing, c)
		}
	}
	return missing
}
