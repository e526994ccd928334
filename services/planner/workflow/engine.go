// Copyright (C) 2026 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package workflow drives a planning run through its phases and stages.
//
// # Description
//
// The engine is a state machine, not a script: every transition mutates
// the run State in memory and persists it wholesale before anything else
// happens, so a run can resume from any point. Human decision gates are
// suspension states; the engine parks the run, presents the gate, and
// returns. Resume re-enters with the decision as input. The engine is
// the only writer to the artifact store, and it writes only finished
// stage results, never speculatively.
//
// # Thread Safety
//
// One engine may serve many runs concurrently, but each run has a single
// writer at a time: callers must not Start/Resume the same run from two
// goroutines.
package workflow

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/AleutianAI/wayfinder/services/planner/anchor"
	"github.com/AleutianAI/wayfinder/services/planner/artifact"
	"github.com/AleutianAI/wayfinder/services/planner/diff"
	"github.com/AleutianAI/wayfinder/services/planner/events"
	"github.com/AleutianAI/wayfinder/services/planner/gates"
	"github.com/AleutianAI/wayfinder/services/planner/llm"
	"github.com/AleutianAI/wayfinder/services/planner/resolve"
	"github.com/AleutianAI/wayfinder/services/planner/state"
	"github.com/AleutianAI/wayfinder/services/planner/verify"
)

// Config wires an Engine.
type Config struct {
	// Graph is the phase plan. Nil takes DefaultGraph.
	Graph *Graph

	// Registry maps stage names to executors. Required.
	Registry *Registry

	// Artifacts is the run's artifact store. Required.
	Artifacts artifact.Store

	// States persists run snapshots. Required.
	States *state.Store

	// Generator backs the verifier's model passes. Required when any
	// phase verifies.
	Generator llm.Generator

	// Emitter publishes run events. Optional.
	Emitter *events.Emitter

	// Channels receive gate presentations. Optional; the HTTP and CLI
	// surfaces decide gates directly through Resume.
	Channels []gates.Channel

	// Threshold is the invariant confidence below which clarification is
	// required. Zero takes the anchor default.
	Threshold float64

	// MaxStageAttempts bounds engine-level stage retries. These cover
	// stage logic failures; transport retries live inside the Retrier.
	// Default 3.
	MaxStageAttempts int

	// StageRetryBackoff is the delay before a stage retry, doubled per
	// attempt. Default 2s.
	StageRetryBackoff time.Duration

	// MaxVerifierReruns bounds verifier-triggered corrective re-runs per
	// phase before escalating to the gate. Default 2.
	MaxVerifierReruns int

	Logger *slog.Logger
}

func (c Config) withDefaults() Config {
	if c.Graph == nil {
		c.Graph = DefaultGraph()
	}
	if c.Threshold <= 0 {
		c.Threshold = anchor.DefaultConfidenceThreshold
	}
	if c.MaxStageAttempts <= 0 {
		c.MaxStageAttempts = 3
	}
	if c.StageRetryBackoff <= 0 {
		c.StageRetryBackoff = 2 * time.Second
	}
	if c.MaxVerifierReruns <= 0 {
		c.MaxVerifierReruns = 2
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
	return c
}

// Engine executes runs against the phase graph.
type Engine struct {
	cfg       Config
	stages    *StageMachine
	phases    *PhaseMachine
	verifiers map[VerifyMode]verify.Verifier
	logger    *slog.Logger
}

// NewEngine validates the wiring and builds an engine.
func NewEngine(cfg Config) (*Engine, error) {
	cfg = cfg.withDefaults()
	if cfg.Registry == nil {
		return nil, fmt.Errorf("workflow: registry is required")
	}
	if cfg.Artifacts == nil {
		return nil, fmt.Errorf("workflow: artifact store is required")
	}
	if cfg.States == nil {
		return nil, fmt.Errorf("workflow: state store is required")
	}
	if err := cfg.Graph.Validate(); err != nil {
		return nil, err
	}

	needsModel := false
	for _, p := range cfg.Graph.Phases {
		if p.Verify != VerifyNone {
			needsModel = true
		}
		for _, s := range p.Stages {
			if _, err := cfg.Registry.Get(s.Name); err != nil {
				return nil, err
			}
		}
	}
	if needsModel && cfg.Generator == nil {
		return nil, fmt.Errorf("workflow: graph verifies phases but no generator is configured")
	}

	e := &Engine{
		cfg:    cfg,
		stages: NewStageMachine(),
		phases: NewPhaseMachine(),
		logger: cfg.Logger.With("component", "workflow.engine"),
	}
	e.verifiers = map[VerifyMode]verify.Verifier{
		VerifySingle: verify.NewMultiPass(cfg.Logger,
			verify.NewStructural(),
			verify.NewInvariantPass(cfg.Generator, verify.InvariantPassName,
				"anchor invariant compliance and drift from the anchor", cfg.Logger),
		),
		VerifyMultipass: verify.NewMultiPass(cfg.Logger,
			verify.NewStructural(),
			verify.NewInvariantPass(cfg.Generator, verify.InvariantPassName,
				"anchor invariant compliance", cfg.Logger),
			verify.NewInvariantPass(cfg.Generator, "genericization",
				"identity features flattened into generic defaults", cfg.Logger),
			verify.NewInvariantPass(cfg.Generator, "consistency",
				"contradictions between sibling artifacts of this phase", cfg.Logger),
		),
	}
	return e, nil
}

// Graph returns the engine's phase plan.
func (e *Engine) Graph() *Graph { return e.cfg.Graph }

// =============================================================================
// Run entry points
// =============================================================================

// Start creates a new run from an idea and executes until the first
// suspension or terminal state. The returned state is the persisted
// snapshot the run stopped at.
func (e *Engine) Start(ctx context.Context, idea string) (*state.State, error) {
	if idea == "" {
		return nil, fmt.Errorf("workflow: empty idea")
	}

	st := state.New(state.NewRunID(), idea)
	if err := e.persist(ctx, st); err != nil {
		return nil, err
	}
	e.emit(st, events.TypeRunStarted, events.RunStartedData{Idea: idea})
	e.logger.Info("Run started", "run_id", st.RunID)

	if err := e.advance(ctx, st); err != nil {
		return st, err
	}
	return st, nil
}

// Resume loads a run and continues it. When the run is suspended on a
// gate, decision must address that gate; when it is not suspended,
// decision must be nil and Resume simply picks up where the last process
// left off. A cancelled run may be resumed; completed and failed runs
// may not.
func (e *Engine) Resume(ctx context.Context, runID string, decision *gates.Decision) (*state.State, error) {
	st, err := e.cfg.States.Load(ctx, runID)
	if err != nil {
		return nil, err
	}

	switch st.Status {
	case state.RunCompleted, state.RunFailed:
		return st, fmt.Errorf("%w: %s is %s", ErrRunTerminal, runID, st.Status)
	case state.RunCancelled:
		// Cancellation retains partial artifacts; resuming diffs against
		// them rather than restarting.
		st.Status = state.RunActive
	}

	fromRev := st.Revision
	if st.PendingGate != nil {
		if decision == nil {
			return st, ErrDecisionRequired
		}
		if err := e.applyDecision(ctx, st, decision); err != nil {
			return st, err
		}
	} else if decision != nil {
		return st, fmt.Errorf("%w: run %s", ErrNoPendingGate, runID)
	}

	e.emit(st, events.TypeRunResumed, events.RunResumedData{
		FromRevision: fromRev,
		GateID:       gateID(decision),
	})

	if err := e.advance(ctx, st); err != nil {
		return st, err
	}
	return st, nil
}

// Cancel stops a run, retaining every artifact already produced. Stages
// caught mid-flight are marked failed with a cancellation note; their
// partial output stays in the store flagged incomplete by provenance.
func (e *Engine) Cancel(ctx context.Context, runID string) (*state.State, error) {
	st, err := e.cfg.States.Load(ctx, runID)
	if err != nil {
		return nil, err
	}
	if st.Terminal() {
		return st, fmt.Errorf("%w: %s is %s", ErrRunTerminal, runID, st.Status)
	}

	for pi := range st.Phases {
		for si := range st.Phases[pi].Stages {
			rec := &st.Phases[pi].Stages[si]
			if rec.Status == state.StageRunning {
				rec.Status = state.StageFailed
				rec.Error = "run cancelled"
				rec.CompletedAt = time.Now().UTC().UnixMilli()
			}
		}
	}
	st.ClearGate()
	st.Status = state.RunCancelled
	if err := e.persist(ctx, st); err != nil {
		return st, err
	}
	e.emit(st, events.TypeRunFinished, events.RunFinishedData{Status: string(st.Status)})
	e.logger.Info("Run cancelled", "run_id", runID)
	return st, nil
}

// Load returns the latest persisted snapshot of a run without advancing it.
func (e *Engine) Load(ctx context.Context, runID string) (*state.State, error) {
	return e.cfg.States.Load(ctx, runID)
}

// Context assembles the resolved context-only shape for a run: the
// confirmed anchor plus capabilities, decisions, and entities, work
// items excluded. It is the input handed to work-item generation and to
// design collaborators.
func (e *Engine) Context(ctx context.Context, runID string) (*resolve.Context, error) {
	st, err := e.cfg.States.Load(ctx, runID)
	if err != nil {
		return nil, err
	}
	return resolve.AssembleContext(ctx, e.cfg.Artifacts, st.Anchor)
}

// Specification assembles the full resolved specification for a run.
func (e *Engine) Specification(ctx context.Context, runID string) (*resolve.Specification, error) {
	c, err := e.Context(ctx, runID)
	if err != nil {
		return nil, err
	}
	items, err := e.cfg.Artifacts.List(ctx, artifact.ListOptions{
		Kind: artifact.KindWorkItem, ActiveOnly: true,
	})
	if err != nil {
		return nil, err
	}
	return resolve.AttachWorkItems(c, items)
}

// =============================================================================
// Main loop
// =============================================================================

// advance runs phases in graph order until the run suspends, finishes,
// or fails. Returned errors are infrastructure faults (store down);
// domain outcomes land in the run status instead.
func (e *Engine) advance(ctx context.Context, st *state.State) error {
	for {
		if st.Terminal() || st.PendingGate != nil {
			return nil
		}

		ph := e.nextPhase(st)
		if ph == nil {
			return e.finish(ctx, st)
		}

		suspended, err := e.runPhase(ctx, st, ph)
		if err != nil {
			return err
		}
		if suspended || st.Terminal() {
			return nil
		}
	}
}

// nextPhase returns the first graph phase that is not complete or
// skipped, or nil when every phase is done.
func (e *Engine) nextPhase(st *state.State) *PhaseDef {
	for i := range e.cfg.Graph.Phases {
		ph := &e.cfg.Graph.Phases[i]
		rec := st.Phase(ph.Name)
		if rec == nil {
			return ph
		}
		switch rec.Status {
		case state.PhaseComplete, state.PhaseSkipped:
			continue
		default:
			return ph
		}
	}
	return nil
}

func (e *Engine) runPhase(ctx context.Context, st *state.State, ph *PhaseDef) (suspended bool, err error) {
	rec := st.EnsurePhase(ph.Name)

	if missing := Unmet(ph.Entry, st.Flag); len(missing) > 0 {
		return false, e.failRun(ctx, st, ph.Name, "",
			&EntryConditionError{Phase: ph.Name, Missing: missing})
	}

	if rec.Status == state.PhaseNotStarted {
		if err := e.phases.Transition(rec, state.PhaseInProgress); err != nil {
			return false, err
		}
		if err := e.persist(ctx, st); err != nil {
			return false, err
		}
		e.emit(st, events.TypePhaseStarted, events.PhaseData{Phase: ph.Name})
		e.logger.Info("Phase started", "run_id", st.RunID, "phase", ph.Name)
	}

	d, err := e.computeDiff(ctx)
	if err != nil {
		return false, err
	}

	// Reviewer feedback from a request_changes decision is consumed by
	// this pass; it applies to the phase's generative stages once.
	feedback := st.PendingFeedback
	st.PendingFeedback = nil

	for i := range ph.Stages {
		def := &ph.Stages[i]
		srec := st.EnsureStage(ph.Name, def.Name)

		switch srec.Status {
		case state.StageCompleted:
			if !def.Generative || (len(feedback) == 0 && !stageDirty(def.Name, d)) {
				continue
			}
			e.logger.Info("Re-running completed stage",
				"run_id", st.RunID, "stage", def.Name,
				"feedback", len(feedback) > 0, "diff", d.Total())
		case state.StageSkipped:
			if len(Unmet(def.Requires, st.Flag)) > 0 {
				continue
			}
		}

		if missing := Unmet(def.Requires, st.Flag); len(missing) > 0 {
			if srec.Status == state.StagePending {
				if err := e.stages.Transition(srec, state.StageSkipped); err != nil {
					return false, err
				}
				if err := e.persist(ctx, st); err != nil {
					return false, err
				}
				e.logger.Info("Stage skipped", "run_id", st.RunID,
					"stage", def.Name, "unmet", missing)
			}
			continue
		}

		suspended, err := e.runStage(ctx, st, ph, def, srec, d, feedback)
		if err != nil || suspended || st.Terminal() {
			return suspended, err
		}
	}

	if ph.Verify != VerifyNone {
		suspended, err := e.verifyBoundary(ctx, st, ph, rec, d)
		if err != nil || suspended {
			return suspended, err
		}
	}

	if ph.Gate {
		return true, e.openPhaseGate(ctx, st, ph, rec, d)
	}
	return false, e.completePhase(ctx, st, rec)
}

// =============================================================================
// Stage execution
// =============================================================================

func (e *Engine) runStage(ctx context.Context, st *state.State, ph *PhaseDef, def *StageDef, srec *state.StageRecord, d *diff.Diff, feedback []string) (suspended bool, err error) {
	exec, err := e.cfg.Registry.Get(def.Name)
	if err != nil {
		return false, err
	}

	prior := append([]string(nil), srec.ArtifactIDs...)
	backoff := e.cfg.StageRetryBackoff

	for {
		srec.Attempts++
		attempt := srec.Attempts

		if err := e.stages.Transition(srec, state.StageRunning); err != nil {
			return false, err
		}
		if err := e.persist(ctx, st); err != nil {
			return false, err
		}
		e.emit(st, events.TypeStageStarted, events.StageData{
			Phase: ph.Name, Stage: def.Name, Attempt: attempt,
		})

		started := time.Now()
		res, execErr := exec.Execute(ctx, &StageContext{
			Run:       st,
			Phase:     ph.Name,
			Stage:     def.Name,
			Attempt:   attempt,
			Anchor:    st.Anchor,
			Diff:      d,
			Feedback:  feedback,
			Prior:     prior,
			Artifacts: e.cfg.Artifacts,
			Logger:    e.logger.With("stage", def.Name),
		})

		if execErr == nil {
			e.applyResult(st, srec, res)
			if err := e.stages.Transition(srec, state.StageCompleted); err != nil {
				return false, err
			}
			if err := e.persist(ctx, st); err != nil {
				return false, err
			}
			e.emit(st, events.TypeStageCompleted, events.StageData{
				Phase: ph.Name, Stage: def.Name, Attempt: attempt,
				Duration: time.Since(started), ArtifactIDs: res.ArtifactIDs,
			})
			if len(res.ArtifactIDs) > 0 {
				e.emit(st, events.TypeArtifactsChanged, events.ArtifactsChangedData{
					Phase: ph.Name, Added: len(res.ArtifactIDs), Superseded: len(prior),
				})
			}
			e.logger.Info("Stage completed", "run_id", st.RunID,
				"stage", def.Name, "attempt", attempt, "summary", res.Summary)
			return false, nil
		}

		srec.Error = execErr.Error()
		if err := e.stages.Transition(srec, state.StageFailed); err != nil {
			return false, err
		}
		if err := e.persist(ctx, st); err != nil {
			return false, err
		}
		e.emit(st, events.TypeError, events.ErrorData{
			Error: execErr.Error(), Phase: ph.Name, Stage: def.Name,
			Recoverable: !errors.Is(execErr, ErrStagePermanent),
		})

		if errors.Is(execErr, ErrIdeaRejected) {
			return false, e.failRun(ctx, st, ph.Name, def.Name, execErr)
		}

		retryable := !errors.Is(execErr, ErrStagePermanent) &&
			!errors.Is(execErr, context.Canceled) &&
			srec.Attempts < e.cfg.MaxStageAttempts

		if !retryable {
			e.logger.Warn("Stage exhausted, escalating to gate",
				"run_id", st.RunID, "stage", def.Name,
				"attempts", srec.Attempts, "error", execErr)
			return true, e.openEscalationGate(ctx, st, ph, nil,
				fmt.Sprintf("stage %s failed after %d attempts: %v", def.Name, srec.Attempts, execErr))
		}

		e.logger.Warn("Stage failed, retrying", "run_id", st.RunID,
			"stage", def.Name, "attempt", attempt, "error", execErr)
		select {
		case <-ctx.Done():
			return false, ctx.Err()
		case <-time.After(backoff):
		}
		backoff *= 2
	}
}

// applyResult folds a stage result into the run state. It never touches
// the artifact store; the executor already appended its output.
func (e *Engine) applyResult(st *state.State, srec *state.StageRecord, res *StageResult) {
	if len(res.ArtifactIDs) > 0 {
		srec.ArtifactIDs = res.ArtifactIDs
	}
	for _, f := range res.Flags {
		st.SetFlag(f)
	}
	if res.Anchor != nil {
		st.Anchor = res.Anchor
	}
	srec.Error = ""
}

// stageDirty reports whether the diff invalidates a completed stage's
// output. The mapping is per stage: an uncovered capability is the
// decisions stage's problem, not the capability stage's.
func stageDirty(stage string, d *diff.Diff) bool {
	if d == nil || d.Empty() {
		return false
	}
	switch stage {
	case StageProposeDecisions:
		return len(d.Uncovered) > 0 || len(d.AffectedDecisions) > 0
	case StageSketchInterface:
		return len(d.AffectedDecisions) > 0
	case StageModelEntities:
		return len(d.AffectedEntities) > 0
	case StageGenerateWorkItems:
		return len(d.AffectedWorkItems) > 0
	default:
		return false
	}
}

// =============================================================================
// Phase boundary
// =============================================================================

// verifyBoundary runs the phase's verification, re-running the phase's
// generative stages with corrective feedback while blocking violations
// remain and the rerun budget lasts, then escalates what is left.
func (e *Engine) verifyBoundary(ctx context.Context, st *state.State, ph *PhaseDef, rec *state.PhaseRecord, d *diff.Diff) (suspended bool, err error) {
	verifier := e.verifiers[ph.Verify]

	for {
		target, err := e.buildTarget(ctx, st, ph.Name)
		if err != nil {
			return false, err
		}
		report, err := verifier.Verify(ctx, target)
		if err != nil {
			return false, fmt.Errorf("verify phase %s: %w", ph.Name, err)
		}

		rec.LastReport = report
		if err := e.persist(ctx, st); err != nil {
			return false, err
		}
		e.emit(st, events.TypeVerification, events.VerificationData{
			Phase:    ph.Name,
			Passes:   report.Passes,
			Blocking: len(report.Blocking()),
			Warnings: len(report.Warnings()),
			Rerun:    rec.VerifierReruns,
		})

		if !report.HasBlocking() {
			return false, nil
		}
		if rec.VerifierReruns >= e.cfg.MaxVerifierReruns {
			e.logger.Warn("Verifier rerun budget exhausted, escalating",
				"run_id", st.RunID, "phase", ph.Name,
				"blocking", len(report.Blocking()))
			return true, e.openEscalationGate(ctx, st, ph, report,
				fmt.Sprintf("phase %s: %d blocking violations after %d corrective re-runs",
					ph.Name, len(report.Blocking()), rec.VerifierReruns))
		}

		rec.VerifierReruns++
		corrective := verify.Feedback(report.Blocking())
		e.logger.Info("Blocking violations, re-running generative stages",
			"run_id", st.RunID, "phase", ph.Name,
			"rerun", rec.VerifierReruns, "blocking", len(report.Blocking()))

		for i := range ph.Stages {
			def := &ph.Stages[i]
			if !def.Generative {
				continue
			}
			srec := st.EnsureStage(ph.Name, def.Name)
			if srec.Status != state.StageCompleted {
				continue
			}
			suspended, err := e.runStage(ctx, st, ph, def, srec, d, corrective)
			if err != nil || suspended || st.Terminal() {
				return suspended, err
			}
		}
	}
}

// buildTarget loads the active artifact graph for verification. The
// phase name bounds what the model passes focus on; structural checks
// need the cross-phase references either way.
func (e *Engine) buildTarget(ctx context.Context, st *state.State, phase string) (*verify.Target, error) {
	t := &verify.Target{Phase: phase, Anchor: st.Anchor}
	var err error
	if t.Capabilities, err = listActive(ctx, e.cfg.Artifacts, artifact.KindCapability); err != nil {
		return nil, err
	}
	if t.Decisions, err = listActive(ctx, e.cfg.Artifacts, artifact.KindDecision); err != nil {
		return nil, err
	}
	if t.Entities, err = listActive(ctx, e.cfg.Artifacts, artifact.KindEntity); err != nil {
		return nil, err
	}
	if t.WorkItems, err = listActive(ctx, e.cfg.Artifacts, artifact.KindWorkItem); err != nil {
		return nil, err
	}
	return t, nil
}

func (e *Engine) computeDiff(ctx context.Context) (*diff.Diff, error) {
	list := func(kind artifact.Kind) ([]*artifact.Artifact, error) {
		return e.cfg.Artifacts.List(ctx, artifact.ListOptions{Kind: kind})
	}
	caps, err := list(artifact.KindCapability)
	if err != nil {
		return nil, err
	}
	decisions, err := list(artifact.KindDecision)
	if err != nil {
		return nil, err
	}
	entities, err := list(artifact.KindEntity)
	if err != nil {
		return nil, err
	}
	items, err := list(artifact.KindWorkItem)
	if err != nil {
		return nil, err
	}
	return diff.Compute(caps, decisions, entities, items), nil
}

// =============================================================================
// Gates
// =============================================================================

// openPhaseGate suspends the run at the phase boundary. The scope phase
// gates on ambiguity first: while any anchor invariant needs
// clarification, approval is not yet on offer.
func (e *Engine) openPhaseGate(ctx context.Context, st *state.State, ph *PhaseDef, rec *state.PhaseRecord, d *diff.Diff) error {
	var p *gates.Presentation
	if st.Anchor != nil && !st.Anchor.Frozen && st.Anchor.NeedsClarification(e.cfg.Threshold) {
		amb := st.Anchor.Ambiguous(e.cfg.Threshold)
		p = gates.NewPresentation(st.RunID, ph.Name, gates.TypeAmbiguity,
			fmt.Sprintf("%d anchor invariants need clarification before the anchor can be confirmed", len(amb)))
		for _, inv := range amb {
			p.Ambiguities = append(p.Ambiguities, *inv)
		}
	} else {
		p = gates.NewPresentation(st.RunID, ph.Name, gates.TypePhaseApproval,
			fmt.Sprintf("phase %s complete, awaiting review", ph.Name))
		p.Report = rec.LastReport
		if d != nil && !d.Empty() {
			p.Diff = d
		}
	}
	return e.suspend(ctx, st, p)
}

// openEscalationGate suspends the run on an unrecoverable stage failure
// or on blocking violations that survived their rerun budget.
func (e *Engine) openEscalationGate(ctx context.Context, st *state.State, ph *PhaseDef, report *verify.Report, summary string) error {
	p := gates.NewPresentation(st.RunID, ph.Name, gates.TypeViolationEscalation, summary)
	p.Report = report
	return e.suspend(ctx, st, p)
}

func (e *Engine) suspend(ctx context.Context, st *state.State, p *gates.Presentation) error {
	if err := p.Validate(); err != nil {
		return err
	}
	st.Suspend(p)
	if err := e.persist(ctx, st); err != nil {
		return err
	}

	if len(e.cfg.Channels) > 0 {
		g, gctx := errgroup.WithContext(ctx)
		for _, ch := range e.cfg.Channels {
			ch := ch
			g.Go(func() error { return ch.Present(gctx, p) })
		}
		if err := g.Wait(); err != nil {
			// The gate is durable in the run state; a broken channel is
			// not a reason to lose the suspension.
			e.logger.Warn("Gate presentation failed on a channel",
				"run_id", st.RunID, "gate_id", p.ID, "error", err)
		}
	}

	e.emit(st, events.TypeGateOpened, events.GateOpenedData{
		GateID: p.ID, GateType: string(p.Type), Phase: p.Phase, Summary: p.Summary,
	})
	e.logger.Info("Gate opened", "run_id", st.RunID,
		"gate_id", p.ID, "type", p.Type, "phase", p.Phase)
	return nil
}

// applyDecision folds a human decision into the suspended run. The
// caller has verified a gate is pending.
func (e *Engine) applyDecision(ctx context.Context, st *state.State, d *gates.Decision) error {
	if err := d.Validate(); err != nil {
		return err
	}
	pending := st.PendingGate
	if d.GateID != pending.ID {
		return fmt.Errorf("%w: got %s, pending %s", ErrGateMismatch, d.GateID, pending.ID)
	}

	rec := st.EnsurePhase(pending.Phase)

	switch d.Action {
	case gates.ActionApprove:
		if pending.Type != gates.TypePhaseApproval {
			return fmt.Errorf("%w: approve is only valid at a phase approval gate, this gate is %s",
				gates.ErrInvalidDecision, pending.Type)
		}
		if pending.Report != nil && pending.Report.HasBlocking() {
			return fmt.Errorf("%w: blocking violations require override_violation or request_changes",
				gates.ErrInvalidDecision)
		}
		if err := e.confirmAnchorIfReady(st); err != nil {
			return err
		}
		st.ClearGate()
		if err := e.completePhase(ctx, st, rec); err != nil {
			return err
		}

	case gates.ActionRequestChanges:
		st.PendingFeedback = []string{d.Feedback}
		rec.VerifierReruns = 0
		st.ClearGate()
		if rec.Status == state.PhaseAwaitingGate {
			if err := e.phases.Transition(rec, state.PhaseInProgress); err != nil {
				return err
			}
		}
		if err := e.persist(ctx, st); err != nil {
			return err
		}

	case gates.ActionResolveAmbiguity:
		if pending.Type != gates.TypeAmbiguity {
			return fmt.Errorf("%w: no ambiguities pending at this gate", gates.ErrInvalidDecision)
		}
		if st.Anchor == nil {
			return fmt.Errorf("%w: run has no anchor", gates.ErrInvalidDecision)
		}
		for _, sel := range d.Selections {
			if err := st.Anchor.Clarify(sel.InvariantID, sel.OptionID, sel.FreeText); err != nil {
				return fmt.Errorf("%w: %v", gates.ErrInvalidDecision, err)
			}
		}
		st.ClearGate()
		if err := e.persist(ctx, st); err != nil {
			return err
		}
		// Remaining ambiguity re-gates; a fully clarified anchor still
		// goes through approval before it is frozen.
		if rec.Status == state.PhaseAwaitingGate {
			if err := e.phases.Transition(rec, state.PhaseInProgress); err != nil {
				return err
			}
		}
		ph := e.cfg.Graph.Phase(pending.Phase)
		if ph == nil {
			return fmt.Errorf("%w: %s", ErrInvalidGraph, pending.Phase)
		}
		e.retract(pending.ID)
		e.emitDecided(st, pending, d)
		return e.openPhaseGate(ctx, st, ph, rec, nil)

	case gates.ActionOverrideViolation:
		if pending.Report == nil || !pending.Report.HasBlocking() {
			return fmt.Errorf("%w: nothing to override at this gate", gates.ErrInvalidDecision)
		}
		acked := make(map[string]bool, len(d.Acknowledged))
		for _, k := range d.Acknowledged {
			acked[k] = true
		}
		for _, v := range pending.Report.Blocking() {
			if !acked[v.Key()] {
				return fmt.Errorf("%w: blocking violation %s not acknowledged",
					gates.ErrInvalidDecision, v.Key())
			}
		}
		rec.AcknowledgedViolations = append(rec.AcknowledgedViolations, d.Acknowledged...)
		if err := e.confirmAnchorIfReady(st); err != nil {
			return err
		}
		st.ClearGate()
		e.logger.Warn("Blocking violations overridden at gate",
			"run_id", st.RunID, "phase", pending.Phase, "keys", d.Acknowledged)
		if err := e.completePhase(ctx, st, rec); err != nil {
			return err
		}

	default:
		return fmt.Errorf("%w: %q", gates.ErrInvalidDecision, d.Action)
	}

	e.retract(pending.ID)
	e.emitDecided(st, pending, d)
	return nil
}

// confirmAnchorIfReady freezes the anchor the first time a gate approves
// past it. Idempotent; later gates see a frozen anchor and skip.
func (e *Engine) confirmAnchorIfReady(st *state.State) error {
	if st.Anchor == nil || st.Anchor.Frozen {
		return nil
	}
	if err := st.Anchor.Confirm(e.cfg.Threshold); err != nil {
		return fmt.Errorf("%w: %v", gates.ErrInvalidDecision, err)
	}
	st.SetFlag(FlagAnchorConfirmed)
	e.logger.Info("Anchor confirmed", "run_id", st.RunID,
		"invariants", len(st.Anchor.Invariants))
	return nil
}

func (e *Engine) completePhase(ctx context.Context, st *state.State, rec *state.PhaseRecord) error {
	if err := e.phases.Transition(rec, state.PhaseComplete); err != nil {
		return err
	}
	if err := e.persist(ctx, st); err != nil {
		return err
	}
	e.emit(st, events.TypePhaseCompleted, events.PhaseData{
		Phase:    rec.Name,
		Duration: time.Duration(rec.CompletedAt-rec.StartedAt) * time.Millisecond,
	})
	e.logger.Info("Phase completed", "run_id", st.RunID, "phase", rec.Name)
	return nil
}

// retract withdraws a decided presentation from channels that support it.
func (e *Engine) retract(gateID string) {
	for _, ch := range e.cfg.Channels {
		if r, ok := ch.(interface{ Retract(string) }); ok {
			r.Retract(gateID)
		}
	}
}

func (e *Engine) emitDecided(st *state.State, p *gates.Presentation, d *gates.Decision) {
	e.emit(st, events.TypeGateDecided, events.GateDecidedData{
		GateID: p.ID, Action: string(d.Action), DecidedBy: d.DecidedBy,
	})
}

// =============================================================================
// Termination
// =============================================================================

func (e *Engine) finish(ctx context.Context, st *state.State) error {
	st.Status = state.RunCompleted
	if err := e.persist(ctx, st); err != nil {
		return err
	}
	e.emit(st, events.TypeRunFinished, events.RunFinishedData{
		Status:        string(st.Status),
		TotalDuration: time.Duration(st.UpdatedAt-st.CreatedAt) * time.Millisecond,
	})
	e.logger.Info("Run completed", "run_id", st.RunID, "revision", st.Revision)
	return nil
}

// failRun marks the run failed. Used for wiring faults and permanent
// domain verdicts; recoverable problems escalate to a gate instead.
func (e *Engine) failRun(ctx context.Context, st *state.State, phase, stage string, cause error) error {
	st.Status = state.RunFailed
	if err := e.persist(ctx, st); err != nil {
		return err
	}
	e.emit(st, events.TypeError, events.ErrorData{
		Error: cause.Error(), Phase: phase, Stage: stage, Recoverable: false,
	})
	e.emit(st, events.TypeRunFinished, events.RunFinishedData{Status: string(st.Status)})
	e.logger.Error("Run failed", "run_id", st.RunID,
		"phase", phase, "stage", stage, "error", cause)
	return nil
}

// =============================================================================
// Plumbing
// =============================================================================

func (e *Engine) persist(ctx context.Context, st *state.State) error {
	st.Bump()
	return e.cfg.States.Save(ctx, st)
}

func (e *Engine) emit(st *state.State, typ events.Type, data any) {
	if e.cfg.Emitter == nil {
		return
	}
	e.cfg.Emitter.Emit(st.RunID, st.Revision, typ, data)
}

func gateID(d *gates.Decision) string {
	if d == nil {
		return ""
	}
	return d.GateID
}
