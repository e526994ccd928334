// Copyright (C) 2026 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package verify checks phase output against the anchor and the artifact
// graph before a phase boundary may be crossed.
//
// # Description
//
// Verification runs as one or more passes. The structural pass is pure Go:
// reference integrity, dependency cycles, override completeness. The
// invariant passes are model-backed reviews of the phase's artifacts
// against the frozen anchor. Blocking violations send the stage back for
// a bounded corrective re-run; warnings ride along to the gate but never
// block. A human can override a blocking violation at the gate, which is
// recorded on the producing artifact, not on the anchor.
package verify

import (
	"fmt"
	"sort"
	"strings"
	"time"
)

// Severity classifies a violation.
type Severity string

const (
	// SeverityBlocking prevents the phase boundary from being crossed
	// until fixed or overridden.
	SeverityBlocking Severity = "blocking"

	// SeverityWarning is surfaced at the gate but never blocks.
	SeverityWarning Severity = "warning"
)

// IsValid reports whether s is a known severity.
func (s Severity) IsValid() bool {
	return s == SeverityBlocking || s == SeverityWarning
}

// Violation is one finding from one pass.
type Violation struct {
	// Property names what was violated: an anchor invariant ID, or a
	// structural check like "structural.dangling_reference".
	Property string `json:"property"`

	// ArtifactID is the offending artifact. Empty for phase-level findings.
	ArtifactID string `json:"artifact_id,omitempty"`

	Severity Severity `json:"severity"`
	Detail   string   `json:"detail"`

	// Pass names the verifier pass that found it.
	Pass string `json:"pass"`
}

// Key identifies a violation for gate acknowledgements. Two passes
// flagging the same property on the same artifact share a key.
func (v *Violation) Key() string {
	return v.Property + "|" + v.ArtifactID
}

// invariantIDPrefix matches the IDs minted by anchor.NewInvariantID.
const invariantIDPrefix = "INV-"

// Report is the merged outcome of a verification. Beyond the violations,
// it carries the review's positive attestations: which invariants were
// checked and upheld, and which identity features the plan still
// realizes. A gate reviewer approves against both halves.
type Report struct {
	Phase string `json:"phase"`

	// Passed is the verdict: no blocking violation remains.
	Passed bool `json:"passed"`

	Passes []string `json:"passes"`

	// InvariantsHonored lists anchor invariant IDs the review attested as
	// upheld. An invariant any pass also violated is never listed here.
	InvariantsHonored []string `json:"invariants_honored"`

	// InvariantsViolated lists the anchor invariant IDs named by
	// violations, severity regardless.
	InvariantsViolated []string `json:"invariants_violated"`

	// IdentityPreserved and IdentityGenericized partition the identity
	// features the review reached a verdict on. A feature flagged as
	// genericized by any pass is never listed as preserved.
	IdentityPreserved   []string `json:"identity_preserved"`
	IdentityGenericized []string `json:"identity_genericized"`

	Violations []Violation `json:"violations"`
	CreatedAt  int64       `json:"created_at"`
}

// NewReport returns an empty report for a phase. The verdict and the
// attestation lists are reconciled when the pass finalizes it.
func NewReport(phase string, passes ...string) *Report {
	sort.Strings(passes)
	return &Report{
		Phase:     phase,
		Passes:    passes,
		CreatedAt: time.Now().UnixMilli(),
	}
}

// Blocking returns the blocking violations.
func (r *Report) Blocking() []Violation {
	var out []Violation
	for _, v := range r.Violations {
		if v.Severity == SeverityBlocking {
			out = append(out, v)
		}
	}
	return out
}

// Warnings returns the warning violations.
func (r *Report) Warnings() []Violation {
	var out []Violation
	for _, v := range r.Violations {
		if v.Severity == SeverityWarning {
			out = append(out, v)
		}
	}
	return out
}

// HasBlocking reports whether any violation blocks the boundary.
func (r *Report) HasBlocking() bool {
	for _, v := range r.Violations {
		if v.Severity == SeverityBlocking {
			return true
		}
	}
	return false
}

// finalize reconciles the attestation lists against the violations and
// derives the verdict. A violated invariant drops out of honored; a
// genericized feature drops out of preserved. Lists come out sorted and
// deduplicated so reports are byte-stable.
func (r *Report) finalize() {
	violated := make(map[string]bool)
	for _, v := range r.Violations {
		if strings.HasPrefix(v.Property, invariantIDPrefix) {
			violated[v.Property] = true
		}
	}
	genericized := toSet(r.IdentityGenericized)

	r.InvariantsViolated = setToSorted(violated)
	r.InvariantsHonored = sortedExcluding(r.InvariantsHonored, violated)
	r.IdentityGenericized = setToSorted(genericized)
	r.IdentityPreserved = sortedExcluding(r.IdentityPreserved, genericized)
	r.Passed = !r.HasBlocking()
}

func toSet(vals []string) map[string]bool {
	set := make(map[string]bool, len(vals))
	for _, v := range vals {
		set[v] = true
	}
	return set
}

func setToSorted(set map[string]bool) []string {
	if len(set) == 0 {
		return nil
	}
	out := make([]string, 0, len(set))
	for k := range set {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

func sortedExcluding(vals []string, drop map[string]bool) []string {
	set := make(map[string]bool, len(vals))
	for _, v := range vals {
		if !drop[v] {
			set[v] = true
		}
	}
	return setToSorted(set)
}

// Merge combines pass reports into one, deterministically: violations
// sorted by pass, artifact, property, detail; exact duplicates collapsed;
// attestation lists unioned and re-reconciled against the merged
// violations.
func Merge(phase string, reports ...*Report) *Report {
	merged := &Report{Phase: phase, CreatedAt: time.Now().UnixMilli()}

	seen := make(map[Violation]bool)
	passSeen := make(map[string]bool)
	for _, r := range reports {
		if r == nil {
			continue
		}
		for _, p := range r.Passes {
			if !passSeen[p] {
				passSeen[p] = true
				merged.Passes = append(merged.Passes, p)
			}
		}
		for _, v := range r.Violations {
			if !seen[v] {
				seen[v] = true
				merged.Violations = append(merged.Violations, v)
			}
		}
		merged.InvariantsHonored = append(merged.InvariantsHonored, r.InvariantsHonored...)
		merged.IdentityPreserved = append(merged.IdentityPreserved, r.IdentityPreserved...)
		merged.IdentityGenericized = append(merged.IdentityGenericized, r.IdentityGenericized...)
	}

	sort.Strings(merged.Passes)
	sort.Slice(merged.Violations, func(i, j int) bool {
		a, b := merged.Violations[i], merged.Violations[j]
		if a.Pass != b.Pass {
			return a.Pass < b.Pass
		}
		if a.ArtifactID != b.ArtifactID {
			return a.ArtifactID < b.ArtifactID
		}
		if a.Property != b.Property {
			return a.Property < b.Property
		}
		return a.Detail < b.Detail
	})
	merged.finalize()
	return merged
}

// Feedback renders blocking violations as corrective notes for a stage
// re-run.
func Feedback(violations []Violation) []string {
	var out []string
	for _, v := range violations {
		if v.Severity != SeverityBlocking {
			continue
		}
		if v.ArtifactID != "" {
			out = append(out, fmt.Sprintf("%s violates %s: %s", v.ArtifactID, v.Property, v.Detail))
		} else {
			out = append(out, fmt.Sprintf("violates %s: %s", v.Property, v.Detail))
		}
	}
	return out
}
