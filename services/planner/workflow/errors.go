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
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrInvalidGraph indicates a phase graph that fails validation.
	ErrInvalidGraph = errors.New("invalid phase graph")

	// ErrInvalidTransition indicates a phase or stage status change the
	// lifecycle does not allow.
	ErrInvalidTransition = errors.New("invalid transition")

	// ErrUnknownStage indicates a graph stage with no registered executor.
	ErrUnknownStage = errors.New("unknown stage")

	// ErrEntryCondition indicates a phase whose entry conditions are not
	// met. This is a wiring fault, not a skip: predicates that may
	// legitimately be unmet belong on stages.
	ErrEntryCondition = errors.New("phase entry condition failed")

	// ErrStageFailed indicates a stage that exhausted its retries.
	ErrStageFailed = errors.New("stage failed")

	// ErrStagePermanent marks a stage error that retrying cannot fix: a
	// domain verdict or an exhausted inner feedback loop. The engine fails
	// the stage without spending further attempts.
	ErrStagePermanent = errors.New("permanent stage failure")

	// ErrIdeaRejected indicates the viability check judged the idea not
	// plannable as stated.
	ErrIdeaRejected = errors.New("idea rejected")

	// ErrRunTerminal indicates an operation on a completed, failed, or
	// cancelled run.
	ErrRunTerminal = errors.New("run already terminal")

	// ErrNoPendingGate indicates a decision for a run that is not
	// suspended on a gate.
	ErrNoPendingGate = errors.New("no pending gate")

	// ErrGateMismatch indicates a decision naming a gate other than the
	// one the run is suspended on.
	ErrGateMismatch = errors.New("decision does not match pending gate")

	// ErrDecisionRequired indicates a resume without a decision while the
	// run is suspended on a gate.
	ErrDecisionRequired = errors.New("run is awaiting a gate decision")
)

// EntryConditionError reports which conditions blocked a phase.
type EntryConditionError struct {
	Phase   string
	Missing []string
}

func (e *EntryConditionError) Error() string {
	return fmt.Sprintf("phase %s entry conditions not met: %s",
		e.Phase, strings.Join(e.Missing, ", "))
}

func (e *EntryConditionError) Unwrap() error { return ErrEntryCondition }

// permanent wraps err so the engine stops retrying the stage.
func permanent(err error) error {
	return fmt.Errorf("%w: %w", ErrStagePermanent, err)
}
