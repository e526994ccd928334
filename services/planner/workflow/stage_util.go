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
	"github.com/AleutianAI/wayfinder/services/planner/llm"
)

// schemaFeedbackAttempts is how many times a generative stage re-asks
// after a schema rejection, with the rejection appended as feedback.
// Past this the failure is permanent; the engine's retry budget is for
// transport problems, not for a model that will not follow the schema.
const schemaFeedbackAttempts = 2

// generateDecoded runs one generation call with an inner schema-feedback
// loop: a completion that fails to decode is re-requested once with the
// decode error appended. A failure past that is wrapped permanent.
func generateDecoded(ctx context.Context, gen llm.Generator, req *llm.Request, out any, logger *slog.Logger) error {
	var lastErr error
	for attempt := 1; attempt <= schemaFeedbackAttempts; attempt++ {
		res, err := gen.Generate(ctx, req)
		if err != nil {
			return fmt.Errorf("generation call failed: %w", err)
		}
		if lastErr = llm.DecodeInto(res, out); lastErr == nil {
			return nil
		}
		if attempt < schemaFeedbackAttempts {
			logger.Warn("Stage output rejected, retrying with feedback",
				"stage", req.Stage, "error", lastErr)
			req.Feedback = append(req.Feedback, lastErr.Error())
		}
	}
	return permanent(lastErr)
}

// listActive returns the active artifacts of one kind, ordered by ID.
func listActive(ctx context.Context, store artifact.Store, kind artifact.Kind) ([]*artifact.Artifact, error) {
	return store.List(ctx, artifact.ListOptions{Kind: kind, ActiveOnly: true})
}

// appendAll validates and appends the artifacts, returning their IDs.
// Appending stops at the first invalid artifact; nothing is rolled back,
// the envelope validation runs before any append so a bad batch fails
// before touching the store.
func appendAll(ctx context.Context, store artifact.Store, arts []*artifact.Artifact) ([]string, error) {
	for _, a := range arts {
		if err := a.Validate(); err != nil {
			return nil, err
		}
	}
	ids := make([]string, 0, len(arts))
	for _, a := range arts {
		if err := store.Append(ctx, a); err != nil {
			return nil, fmt.Errorf("append %s: %w", a.ID, err)
		}
		ids = append(ids, a.ID)
	}
	return ids, nil
}

// supersedePrior links each prior artifact to its regenerated
// replacement. Matching is by the artifact's display name: a regenerated
// capability named like an old one supersedes it. Priors with no name
// match are superseded by the first new artifact so no stale output
// stays active after a re-run.
func supersedePrior(ctx context.Context, store artifact.Store, prior []string, replacements []*artifact.Artifact, nameOf func(*artifact.Artifact) string) error {
	if len(replacements) == 0 {
		return nil
	}
	byName := make(map[string]*artifact.Artifact, len(replacements))
	for _, a := range replacements {
		byName[nameOf(a)] = a
	}
	for _, oldID := range prior {
		old, err := store.Get(ctx, oldID)
		if err != nil || !old.Active() {
			continue
		}
		repl, ok := byName[nameOf(old)]
		if !ok {
			repl = replacements[0]
		}
		if err := store.Supersede(ctx, oldID, repl.ID); err != nil {
			return fmt.Errorf("supersede %s: %w", oldID, err)
		}
	}
	return nil
}

// checkRefs verifies every referenced ID exists in the allowed set.
// Returned as a plain error so the caller can feed it back to the model.
func checkRefs(refs []string, allowed map[string]bool, field string) error {
	for _, id := range refs {
		if !allowed[id] {
			return fmt.Errorf("%s references unknown ID %q; use only the IDs listed in the context", field, id)
		}
	}
	return nil
}

// idSet builds a membership set from artifacts.
func idSet(arts []*artifact.Artifact) map[string]bool {
	out := make(map[string]bool, len(arts))
	for _, a := range arts {
		out[a.ID] = true
	}
	return out
}
