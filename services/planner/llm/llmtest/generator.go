// Copyright (C) 2026 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package llmtest provides a scripted Generator for tests. Completions are
// queued per stage and popped in order, so a test can walk a whole run
// without a live backend.
package llmtest

import (
	"context"
	"fmt"
	"sync"

	"github.com/AleutianAI/wayfinder/services/planner/llm"
)

type scripted struct {
	raw string
	err error
}

// Generator is an in-memory llm.Generator. Safe for concurrent use.
type Generator struct {
	mu       sync.Mutex
	queues   map[string][]scripted
	fallback string
	requests []llm.Request
}

var _ llm.Generator = (*Generator)(nil)

// New returns an empty scripted generator. Unscripted stages fail unless
// SetDefault was called.
func New() *Generator {
	return &Generator{queues: make(map[string][]scripted)}
}

func (g *Generator) Name() string  { return "scripted" }
func (g *Generator) Model() string { return "scripted-test-model" }

// Stub queues completions for a stage, returned in order. The last queued
// completion repeats once the queue drains.
func (g *Generator) Stub(stage string, completions ...string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	for _, c := range completions {
		g.queues[stage] = append(g.queues[stage], scripted{raw: c})
	}
}

// StubError queues a failing call for a stage.
func (g *Generator) StubError(stage string, err error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.queues[stage] = append(g.queues[stage], scripted{err: err})
}

// SetDefault sets the completion for stages with no queue.
func (g *Generator) SetDefault(raw string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.fallback = raw
}

// Generate implements llm.Generator.
func (g *Generator) Generate(ctx context.Context, req *llm.Request) (*llm.Result, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	g.mu.Lock()
	defer g.mu.Unlock()
	g.requests = append(g.requests, *req)

	q := g.queues[req.Stage]
	var entry scripted
	switch {
	case len(q) > 1:
		entry, g.queues[req.Stage] = q[0], q[1:]
	case len(q) == 1:
		entry = q[0]
	case g.fallback != "":
		entry = scripted{raw: g.fallback}
	default:
		return nil, fmt.Errorf("no scripted completion for stage %q", req.Stage)
	}

	if entry.err != nil {
		return nil, entry.err
	}
	return &llm.Result{
		Raw:   entry.raw,
		Model: g.Model(),
		Usage: llm.Usage{PromptTokens: 100, CompletionTokens: 50, TotalTokens: 150},
	}, nil
}

// Requests returns a copy of every request seen, in order.
func (g *Generator) Requests() []llm.Request {
	g.mu.Lock()
	defer g.mu.Unlock()
	out := make([]llm.Request, len(g.requests))
	copy(out, g.requests)
	return out
}

// CallCount returns how many calls a stage has made.
func (g *Generator) CallCount(stage string) int {
	g.mu.Lock()
	defer g.mu.Unlock()
	n := 0
	for _, r := range g.requests {
		if r.Stage == stage {
			n++
		}
	}
	return n
}
