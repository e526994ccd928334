// Copyright (C) 2026 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package llm abstracts the generation backends behind a single Generator
// interface and handles the plumbing around them: transport retries, rate
// limiting, API key custody, and completion decoding.
//
// # Description
//
// Two backends are supported: any OpenAI-compatible endpoint and a local
// Ollama server. Stage executors never talk to a backend directly; they go
// through a Retrier-wrapped Generator so every call gets the same timeout,
// backoff, and usage accounting treatment.
package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
)

var validate = validator.New()

// Request describes one generation call.
type Request struct {
	// Stage names the workflow stage issuing the call, for accounting and
	// event payloads.
	Stage string

	// System is the system prompt. Backends that have no native system
	// role prepend it to the user prompt.
	System string

	// Prompt is the assembled user prompt.
	Prompt string

	// Feedback carries corrective notes from a failed prior attempt
	// (schema errors, verifier violations). Appended to the prompt in
	// order.
	Feedback []string

	// JSONMode asks the backend for a JSON-only completion.
	JSONMode bool

	MaxTokens   int
	Temperature float64
}

// rendered returns the final user prompt including feedback.
func (r *Request) rendered() string {
	if len(r.Feedback) == 0 {
		return r.Prompt
	}
	var b strings.Builder
	b.WriteString(r.Prompt)
	b.WriteString("\n\nYour previous attempt was rejected. Address the following before responding again:\n")
	for _, f := range r.Feedback {
		b.WriteString("- ")
		b.WriteString(f)
		b.WriteString("\n")
	}
	return b.String()
}

// Usage reports token consumption for one call. Zero values mean the
// backend did not report usage.
type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// Result is a raw completion plus its provenance.
type Result struct {
	Raw   string `json:"raw"`
	Model string `json:"model"`
	Usage Usage  `json:"usage"`
}

// Generator produces completions. Implementations must be safe for
// concurrent use; the workflow engine fans generation calls out across
// goroutines.
type Generator interface {
	Generate(ctx context.Context, req *Request) (*Result, error)

	// Name identifies the backend ("openai", "ollama").
	Name() string

	// Model returns the configured model identifier.
	Model() string
}

// GenerationRecord is the accounting sample emitted for every backend
// call, successful or not.
type GenerationRecord struct {
	Backend    string
	Model      string
	Stage      string
	Attempt    int
	Usage      Usage
	DurationMS int64
	Err        error
}

// UsageSink receives a record per generation attempt. Implementations
// must not block; slow sinks buffer internally.
type UsageSink interface {
	RecordGeneration(ctx context.Context, rec GenerationRecord)
}

// DecodeInto extracts the JSON body from a completion and unmarshals it
// into out, then validates struct tags. Models wrap JSON in prose or code
// fences often enough that decoding tolerates both.
//
// Outputs:
//   - error: ErrSchemaValidation wrapping the parse or validation detail.
//     The raw completion stays available on the Result for escalation.
func DecodeInto(res *Result, out any) error {
	body := ExtractJSON(res.Raw)
	if body == "" {
		return fmt.Errorf("%w: no JSON object in completion", ErrSchemaValidation)
	}
	if err := json.Unmarshal([]byte(body), out); err != nil {
		return fmt.Errorf("%w: %v", ErrSchemaValidation, err)
	}
	if isStruct(out) {
		if err := validate.Struct(out); err != nil {
			return fmt.Errorf("%w: %v", ErrSchemaValidation, err)
		}
	}
	return nil
}

func isStruct(v any) bool {
	t := reflect.TypeOf(v)
	for t != nil && t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	return t != nil && t.Kind() == reflect.Struct
}

// ExtractJSON returns the JSON value embedded in raw model output,
// stripping markdown fences and surrounding prose. Returns "" when no
// object or array is present.
func ExtractJSON(raw string) string {
	s := strings.TrimSpace(raw)
	if fenced, ok := stripFence(s); ok {
		s = fenced
	}
	start := strings.IndexAny(s, "{[")
	if start < 0 {
		return ""
	}
	var end int
	if s[start] == '{' {
		end = strings.LastIndex(s, "}")
	} else {
		end = strings.LastIndex(s, "]")
	}
	if end <= start {
		return ""
	}
	return s[start : end+1]
}

func stripFence(s string) (string, bool) {
	if !strings.HasPrefix(s, "```") {
		return "", false
	}
	rest := s[3:]
	if nl := strings.IndexByte(rest, '\n'); nl >= 0 {
		// Drop the language tag line.
		rest = rest[nl+1:]
	}
	if idx := strings.LastIndex(rest, "```"); idx >= 0 {
		rest = rest[:idx]
	}
	return strings.TrimSpace(rest), true
}
