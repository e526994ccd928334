// Copyright (C) 2026 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package artifact defines the structured artifacts the pipeline produces
// and the append-only store that holds them.
//
// # Description
//
// Every generated unit of output (capability, architecture decision, domain
// entity, work item) is wrapped in one Artifact envelope. Artifacts are
// immutable after creation: change is modeled as a new artifact that
// supersedes the old one via the SupersededBy link. Status such as
// "implemented" is always derived by querying linked artifacts, never
// stored on the artifact itself.
//
// # Thread Safety
//
// Artifact values are treated as immutable after creation. Store
// implementations are safe for concurrent use.
package artifact

import (
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Kind identifies the payload variant carried by an Artifact.
type Kind string

const (
	// KindCapability is a user-facing capability the product must provide.
	KindCapability Kind = "capability"

	// KindDecision is an architecture decision covering one or more capabilities.
	KindDecision Kind = "decision"

	// KindEntity is a domain entity referenced by decisions.
	KindEntity Kind = "entity"

	// KindWorkItem is an ordered unit of implementation work.
	KindWorkItem Kind = "work_item"
)

// Kinds lists every valid kind in canonical order.
func Kinds() []Kind {
	return []Kind{KindCapability, KindDecision, KindEntity, KindWorkItem}
}

// idPrefixes maps each kind to its human-readable ID prefix.
var idPrefixes = map[Kind]string{
	KindCapability: "CAP",
	KindDecision:   "DEC",
	KindEntity:     "ENT",
	KindWorkItem:   "WI",
}

// NewID mints an artifact ID for the kind, e.g. "CAP-4f1a9c2e".
func NewID(kind Kind) string {
	prefix, ok := idPrefixes[kind]
	if !ok {
		prefix = "ART"
	}
	raw := uuid.New()
	return prefix + "-" + hex.EncodeToString(raw[:4])
}

// KindOfID reports the kind encoded in an artifact ID prefix, if any.
func KindOfID(id string) (Kind, bool) {
	head, _, ok := strings.Cut(id, "-")
	if !ok {
		return "", false
	}
	for kind, prefix := range idPrefixes {
		if head == prefix {
			return kind, true
		}
	}
	return "", false
}

// InvariantOverride records a deliberate, justified deviation from a frozen
// anchor invariant by the artifact that carries it. Deviations are never
// silent; the override is attached to the producing artifact.
type InvariantOverride struct {
	// Property names the anchor invariant being overridden.
	Property string `json:"property"`

	// Justification explains the deviation. Required.
	Justification string `json:"justification"`
}

// Provenance records which run and stage produced an artifact.
type Provenance struct {
	// RunID is the pipeline run that produced this artifact.
	RunID string `json:"run_id"`

	// Stage is the stage name that produced this artifact.
	Stage string `json:"stage"`

	// Attempt is the 1-based stage attempt that produced this artifact.
	Attempt int `json:"attempt"`

	// Incomplete marks artifacts retained from a cancelled or aborted
	// phase. They are kept, never deleted; the diff engine decides what
	// still needs work.
	Incomplete bool `json:"incomplete,omitempty"`
}

// Artifact is the generic envelope for one generated unit of output.
//
// Exactly one payload pointer matching Kind must be set, except for legacy
// artifacts carrying only Raw (see Validate).
type Artifact struct {
	// ID is the stable artifact identifier, e.g. "CAP-4f1a9c2e".
	ID string `json:"id"`

	// Kind discriminates the payload variant.
	Kind Kind `json:"kind"`

	// SourcePhase is the phase that produced this artifact.
	SourcePhase string `json:"source_phase"`

	// Summary is the short-form structured summary used for downstream
	// context assembly. Produced by the stage, never derived by
	// truncating prose.
	Summary string `json:"summary"`

	// Serves lists IDs of artifacts this one satisfies (decision serves
	// capabilities, entity serves decisions).
	Serves []string `json:"serves,omitempty"`

	// Implements lists capability IDs a work item implements.
	Implements []string `json:"implements,omitempty"`

	// SupersededBy links to the replacing artifact. Empty while active.
	// Set at most once and never cleared.
	SupersededBy string `json:"superseded_by,omitempty"`

	// Overrides records justified deviations from anchor invariants.
	Overrides []InvariantOverride `json:"invariant_overrides,omitempty"`

	// Provenance records the producing run, stage, and attempt.
	Provenance Provenance `json:"provenance"`

	// CreatedAt is the creation time in Unix milliseconds UTC.
	CreatedAt int64 `json:"created_at"`

	// Raw holds unstructured text for artifacts that predate structured
	// output. When set, the payload pointers may all be nil and resolvers
	// wrap the text in a placeholder payload.
	// TODO(jinterlante): remove once no pre-v1 run data remains in the wild.
	Raw string `json:"raw,omitempty"`

	// Capability is set when Kind == KindCapability.
	Capability *Capability `json:"capability,omitempty"`

	// Decision is set when Kind == KindDecision.
	Decision *Decision `json:"decision,omitempty"`

	// Entity is set when Kind == KindEntity.
	Entity *Entity `json:"entity,omitempty"`

	// WorkItem is set when Kind == KindWorkItem.
	WorkItem *WorkItem `json:"work_item,omitempty"`
}

// New creates an envelope of the given kind with a minted ID and timestamp.
// The caller attaches the payload and link fields.
func New(kind Kind, sourcePhase string) *Artifact {
	return &Artifact{
		ID:          NewID(kind),
		Kind:        kind,
		SourcePhase: sourcePhase,
		CreatedAt:   time.Now().UTC().UnixMilli(),
	}
}

// Active reports whether the artifact has not been superseded.
func (a *Artifact) Active() bool {
	return a.SupersededBy == ""
}

// payloadCount returns how many payload pointers are set.
func (a *Artifact) payloadCount() int {
	n := 0
	if a.Capability != nil {
		n++
	}
	if a.Decision != nil {
		n++
	}
	if a.Entity != nil {
		n++
	}
	if a.WorkItem != nil {
		n++
	}
	return n
}

// payloadMatchesKind reports whether the set payload matches Kind.
func (a *Artifact) payloadMatchesKind() bool {
	switch a.Kind {
	case KindCapability:
		return a.Capability != nil
	case KindDecision:
		return a.Decision != nil
	case KindEntity:
		return a.Entity != nil
	case KindWorkItem:
		return a.WorkItem != nil
	default:
		return false
	}
}

// Validate checks the envelope invariants.
//
// Outputs:
//
//   - error: nil when valid, otherwise a description wrapped in
//     ErrInvalidArtifact.
func (a *Artifact) Validate() error {
	if a.ID == "" {
		return fmt.Errorf("%w: empty id", ErrInvalidArtifact)
	}
	if _, ok := idPrefixes[a.Kind]; !ok {
		return fmt.Errorf("%w: unknown kind %q", ErrInvalidArtifact, a.Kind)
	}
	if a.SourcePhase == "" {
		return fmt.Errorf("%w: %s missing source phase", ErrInvalidArtifact, a.ID)
	}

	// Legacy artifacts carry raw text and no structured payload.
	if a.payloadCount() == 0 {
		if a.Raw == "" {
			return fmt.Errorf("%w: %s has neither payload nor raw text", ErrInvalidArtifact, a.ID)
		}
		return nil
	}

	if a.payloadCount() > 1 {
		return fmt.Errorf("%w: %s has multiple payloads", ErrInvalidArtifact, a.ID)
	}
	if !a.payloadMatchesKind() {
		return fmt.Errorf("%w: %s payload does not match kind %q", ErrInvalidArtifact, a.ID, a.Kind)
	}
	if a.Summary == "" {
		return fmt.Errorf("%w: %s missing summary", ErrInvalidArtifact, a.ID)
	}
	for i, ov := range a.Overrides {
		if ov.Property == "" || ov.Justification == "" {
			return fmt.Errorf("%w: %s override %d missing property or justification", ErrInvalidArtifact, a.ID, i)
		}
	}
	return nil
}

// Clone returns a deep copy of the artifact.
func (a *Artifact) Clone() *Artifact {
	out := *a
	out.Serves = append([]string(nil), a.Serves...)
	out.Implements = append([]string(nil), a.Implements...)
	out.Overrides = append([]InvariantOverride(nil), a.Overrides...)
	if a.Capability != nil {
		cp := a.Capability.clone()
		out.Capability = &cp
	}
	if a.Decision != nil {
		cp := a.Decision.clone()
		out.Decision = &cp
	}
	if a.Entity != nil {
		cp := a.Entity.clone()
		out.Entity = &cp
	}
	if a.WorkItem != nil {
		cp := a.WorkItem.clone()
		out.WorkItem = &cp
	}
	return &out
}
