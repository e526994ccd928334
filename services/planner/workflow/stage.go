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
	"sort"

	"github.com/AleutianAI/wayfinder/services/planner/anchor"
	"github.com/AleutianAI/wayfinder/services/planner/artifact"
	"github.com/AleutianAI/wayfinder/services/planner/compose"
	"github.com/AleutianAI/wayfinder/services/planner/diff"
	"github.com/AleutianAI/wayfinder/services/planner/llm"
	"github.com/AleutianAI/wayfinder/services/planner/state"
)

// StageContext is everything an executor may read while running. The
// engine owns the run state; executors communicate changes back through
// the StageResult, never by mutating the context.
type StageContext struct {
	// Run is the current run state, read-only by convention.
	Run *state.State

	// Phase and Stage name the position in the graph.
	Phase string
	Stage string

	// Attempt is the 1-based attempt counter across retries.
	Attempt int

	// Anchor is the current concept anchor. Nil until extraction ran.
	Anchor *anchor.Anchor

	// Diff is the incremental impact computed before the stage ran.
	// Empty on a fresh run.
	Diff *diff.Diff

	// Feedback carries corrective notes for a re-run: verifier
	// violations or reviewer change requests.
	Feedback []string

	// Prior lists artifact IDs this stage produced on earlier runs.
	// Executors supersede these when regenerating.
	Prior []string

	// Artifacts is the run's artifact store.
	Artifacts artifact.Store

	Logger *slog.Logger
}

// StageResult is what an executor hands back to the engine.
type StageResult struct {
	// ArtifactIDs lists artifacts the stage appended.
	ArtifactIDs []string

	// Flags lists run flags the stage established.
	Flags []string

	// Anchor is set when the stage produced or replaced the anchor.
	Anchor *anchor.Anchor

	// Summary is a one-line account for events and logs.
	Summary string
}

// Executor runs one stage.
type Executor interface {
	// Name returns the stage name the executor serves.
	Name() string

	// Execute runs the stage. Errors wrapped in ErrStagePermanent are
	// not retried.
	Execute(ctx context.Context, sc *StageContext) (*StageResult, error)
}

// Registry maps stage names to executors.
type Registry struct {
	executors map[string]Executor
}

// NewRegistry builds a registry from the given executors.
func NewRegistry(execs ...Executor) *Registry {
	r := &Registry{executors: make(map[string]Executor, len(execs))}
	for _, e := range execs {
		r.Register(e)
	}
	return r
}

// Register adds an executor, replacing any previous one for the name.
func (r *Registry) Register(e Executor) {
	r.executors[e.Name()] = e
}

// Get returns the executor for a stage name.
func (r *Registry) Get(name string) (Executor, error) {
	e, ok := r.executors[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownStage, name)
	}
	return e, nil
}

// Names returns the registered stage names, sorted.
func (r *Registry) Names() []string {
	out := make([]string, 0, len(r.executors))
	for name := range r.executors {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// ExecutorConfig carries the shared wiring for the default executors.
type ExecutorConfig struct {
	Generator llm.Generator

	// Threshold is the invariant confidence below which extraction must
	// offer clarification options. Zero takes the anchor default.
	Threshold float64

	// MaxContextTokens bounds assembled generation contexts. Zero takes
	// the compose default.
	MaxContextTokens int

	Logger *slog.Logger
}

func (c ExecutorConfig) withDefaults() ExecutorConfig {
	if c.Threshold <= 0 {
		c.Threshold = anchor.DefaultConfidenceThreshold
	}
	if c.MaxContextTokens <= 0 {
		c.MaxContextTokens = compose.DefaultMaxContextTokens
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
	return c
}

// NewDefaultRegistry wires the executors for every stage in the default
// graph.
func NewDefaultRegistry(cfg ExecutorConfig) *Registry {
	cfg = cfg.withDefaults()
	return NewRegistry(
		newValidateIdea(cfg),
		newDistillAnchor(cfg),
		newProposeCapabilities(cfg),
		newProposeDecisions(cfg),
		newModelEntities(cfg),
		newSketchInterface(cfg),
		newGenerateWorkItems(cfg),
	)
}
