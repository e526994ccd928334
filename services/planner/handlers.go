// Copyright (C) 2026 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package planner

import (
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/AleutianAI/wayfinder/services/planner/artifact"
	"github.com/AleutianAI/wayfinder/services/planner/datatypes"
	"github.com/AleutianAI/wayfinder/services/planner/gates"
	"github.com/AleutianAI/wayfinder/services/planner/resolve"
	"github.com/AleutianAI/wayfinder/services/planner/state"
	"github.com/AleutianAI/wayfinder/services/planner/tracker"
	"github.com/AleutianAI/wayfinder/services/planner/workflow"
)

// Handlers contains the HTTP handlers for the planner service.
//
// Thread Safety: Handlers is safe for concurrent use.
type Handlers struct {
	svc *Service
}

// NewHandlers creates handlers backed by the service.
func NewHandlers(svc *Service) *Handlers {
	return &Handlers{svc: svc}
}

// HandleStartRun handles POST /v1/planner/runs.
//
// Description:
//
//	Starts a pipeline run from a raw idea. The run executes until its
//	first gate or terminal status before the response returns; clients
//	wanting progress subscribe to the event stream first.
//
// Response:
//
//	201 Created: RunResponse
//	400 Bad Request: Validation error
//	422 Unprocessable Entity: Idea rejected as non-viable
//	500 Internal Server Error: Engine error
//
// Thread Safety: This method is safe for concurrent use.
func (h *Handlers) HandleStartRun(c *gin.Context) {
	requestID := getOrCreateRequestID(c)
	logger := slog.With("request_id", requestID, "handler", "HandleStartRun")

	var req datatypes.StartRunRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		logger.Warn("Invalid request body", "error", err)
		c.JSON(http.StatusBadRequest, datatypes.ErrorResponse{
			Error: "Invalid request body",
			Code:  "INVALID_REQUEST",
		})
		return
	}

	logger.Info("Starting run", "idea_len", len(req.Idea))
	st, err := h.svc.Engine().Start(c.Request.Context(), req.Idea)
	if err != nil {
		logger.Error("Run start failed", "error", err)
		c.JSON(http.StatusInternalServerError, datatypes.ErrorResponse{
			Error: err.Error(),
			Code:  "ENGINE_ERROR",
		})
		return
	}

	// A rejected idea is a completed call with a failed run, not a
	// transport error.
	status := http.StatusCreated
	if st.Status == state.RunFailed {
		status = http.StatusUnprocessableEntity
	}
	c.JSON(status, datatypes.RunFrom(st))
}

// HandleListRuns handles GET /v1/planner/runs.
func (h *Handlers) HandleListRuns(c *gin.Context) {
	requestID := getOrCreateRequestID(c)
	logger := slog.With("request_id", requestID, "handler", "HandleListRuns")

	runs, err := h.svc.States().Runs(c.Request.Context())
	if err != nil {
		logger.Error("Run listing failed", "error", err)
		c.JSON(http.StatusInternalServerError, datatypes.ErrorResponse{
			Error: err.Error(),
			Code:  "STORE_ERROR",
		})
		return
	}
	c.JSON(http.StatusOK, gin.H{"runs": runs})
}

// HandleRunStatus handles GET /v1/planner/runs/:id.
//
// Response:
//
//	200 OK: RunResponse
//	404 Not Found: Unknown run
//
// Thread Safety: This method is safe for concurrent use.
func (h *Handlers) HandleRunStatus(c *gin.Context) {
	requestID := getOrCreateRequestID(c)
	logger := slog.With("request_id", requestID, "handler", "HandleRunStatus")

	st, err := h.svc.Engine().Load(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.runError(c, logger, err)
		return
	}
	c.JSON(http.StatusOK, datatypes.RunFrom(st))
}

// HandleDecide handles POST /v1/planner/runs/:id/decide.
//
// Description:
//
//	Resumes a suspended run with a gate decision. The run executes
//	until its next gate or terminal status before the response
//	returns.
//
// Response:
//
//	200 OK: RunResponse
//	400 Bad Request: Invalid decision for the pending gate
//	404 Not Found: Unknown run
//	409 Conflict: Run is not awaiting this gate
//
// Thread Safety: This method is safe for concurrent use.
func (h *Handlers) HandleDecide(c *gin.Context) {
	requestID := getOrCreateRequestID(c)
	logger := slog.With("request_id", requestID, "handler", "HandleDecide")

	var req datatypes.DecideRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		logger.Warn("Invalid request body", "error", err)
		c.JSON(http.StatusBadRequest, datatypes.ErrorResponse{
			Error: "Invalid request body",
			Code:  "INVALID_REQUEST",
		})
		return
	}

	d := req.Decision()
	d.DecidedAt = time.Now().UTC().UnixMilli()

	logger.Info("Applying decision",
		"run_id", c.Param("id"), "gate_id", d.GateID, "action", d.Action)
	st, err := h.svc.Engine().Resume(c.Request.Context(), c.Param("id"), d)
	if err != nil {
		h.runError(c, logger, err)
		return
	}
	c.JSON(http.StatusOK, datatypes.RunFrom(st))
}

// HandleCancelRun handles POST /v1/planner/runs/:id/cancel.
func (h *Handlers) HandleCancelRun(c *gin.Context) {
	requestID := getOrCreateRequestID(c)
	logger := slog.With("request_id", requestID, "handler", "HandleCancelRun")

	st, err := h.svc.Engine().Cancel(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.runError(c, logger, err)
		return
	}
	c.JSON(http.StatusOK, datatypes.RunFrom(st))
}

// HandleListArtifacts handles GET /v1/planner/runs/:id/artifacts.
//
// Query Parameters:
//
//	kind - Restrict to one artifact kind (capability, decision,
//	  entity, work_item).
//	active - "true" drops superseded artifacts.
//
// Thread Safety: This method is safe for concurrent use.
func (h *Handlers) HandleListArtifacts(c *gin.Context) {
	requestID := getOrCreateRequestID(c)
	logger := slog.With("request_id", requestID, "handler", "HandleListArtifacts")

	opts := artifact.ListOptions{
		Kind:       artifact.Kind(c.Query("kind")),
		ActiveOnly: c.Query("active") == "true",
	}
	arts, err := h.svc.Artifacts().List(c.Request.Context(), opts)
	if err != nil {
		logger.Error("Artifact listing failed", "error", err)
		c.JSON(http.StatusInternalServerError, datatypes.ErrorResponse{
			Error: err.Error(),
			Code:  "STORE_ERROR",
		})
		return
	}

	runID := c.Param("id")
	filtered := make([]*artifact.Artifact, 0, len(arts))
	for _, a := range arts {
		if a.Provenance.RunID == runID {
			filtered = append(filtered, a)
		}
	}
	c.JSON(http.StatusOK, gin.H{"artifacts": filtered})
}

// HandleContext handles GET /v1/planner/runs/:id/context.
//
// Response:
//
//	200 OK: resolve.Context
//	409 Conflict: Anchor not yet confirmed
//
// Thread Safety: This method is safe for concurrent use.
func (h *Handlers) HandleContext(c *gin.Context) {
	requestID := getOrCreateRequestID(c)
	logger := slog.With("request_id", requestID, "handler", "HandleContext")

	rc, err := h.svc.Engine().Context(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.resolveError(c, logger, err)
		return
	}
	c.JSON(http.StatusOK, rc)
}

// HandleSpecification handles GET /v1/planner/runs/:id/specification.
func (h *Handlers) HandleSpecification(c *gin.Context) {
	requestID := getOrCreateRequestID(c)
	logger := slog.With("request_id", requestID, "handler", "HandleSpecification")

	spec, err := h.svc.Engine().Specification(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.resolveError(c, logger, err)
		return
	}
	c.JSON(http.StatusOK, spec)
}

// HandleExport handles POST /v1/planner/runs/:id/export.
//
// Description:
//
//	Writes the run's resolved specification (or context-only shape)
//	through the configured export adapter and files tracker drafts
//	for the work items.
//
// Thread Safety: This method is safe for concurrent use.
func (h *Handlers) HandleExport(c *gin.Context) {
	requestID := getOrCreateRequestID(c)
	logger := slog.With("request_id", requestID, "handler", "HandleExport")

	var req datatypes.ExportRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		logger.Warn("Invalid request body", "error", err)
		c.JSON(http.StatusBadRequest, datatypes.ErrorResponse{
			Error: "Invalid request body",
			Code:  "INVALID_REQUEST",
		})
		return
	}
	if req.Target != "file" {
		c.JSON(http.StatusBadRequest, datatypes.ErrorResponse{
			Error: "only the file target is served over HTTP; use the CLI for gcs",
			Code:  "UNSUPPORTED_TARGET",
		})
		return
	}

	ctx := c.Request.Context()
	runID := c.Param("id")

	var location string
	if req.ContextOnly {
		rc, err := h.svc.Engine().Context(ctx, runID)
		if err != nil {
			h.resolveError(c, logger, err)
			return
		}
		location, err = h.svc.Exporter().ExportContext(ctx, runID, rc)
		if err != nil {
			logger.Error("Export failed", "error", err)
			c.JSON(http.StatusInternalServerError, datatypes.ErrorResponse{
				Error: err.Error(), Code: "EXPORT_ERROR",
			})
			return
		}
	} else {
		spec, err := h.svc.Engine().Specification(ctx, runID)
		if err != nil {
			h.resolveError(c, logger, err)
			return
		}
		location, err = h.svc.Exporter().ExportSpecification(ctx, runID, spec)
		if err != nil {
			logger.Error("Export failed", "error", err)
			c.JSON(http.StatusInternalServerError, datatypes.ErrorResponse{
				Error: err.Error(), Code: "EXPORT_ERROR",
			})
			return
		}
		h.fileDrafts(c, logger, runID, spec)
	}

	c.JSON(http.StatusOK, datatypes.ExportResponse{RunID: runID, Location: location})
}

// fileDrafts writes tracker drafts for the specification's active work
// items. Draft failures are logged, not fatal; the export already
// succeeded.
func (h *Handlers) fileDrafts(c *gin.Context, logger *slog.Logger, runID string, spec *resolve.Specification) {
	tr := h.svc.Tracker()
	for _, wi := range spec.WorkItems {
		if !wi.Active() {
			continue
		}
		if _, err := tr.CreateDraft(c.Request.Context(), tracker.DraftFrom(runID, wi)); err != nil {
			logger.Warn("Draft filing failed", "artifact_id", wi.ID, "error", err)
		}
	}
}

// HandleHealth handles GET /v1/planner/health.
func (h *Handlers) HandleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// runError maps engine errors onto HTTP statuses.
func (h *Handlers) runError(c *gin.Context, logger *slog.Logger, err error) {
	statusCode := http.StatusInternalServerError
	errCode := "ENGINE_ERROR"

	switch {
	case errors.Is(err, state.ErrNotFound):
		statusCode = http.StatusNotFound
		errCode = "RUN_NOT_FOUND"
	case errors.Is(err, workflow.ErrRunTerminal):
		statusCode = http.StatusConflict
		errCode = "RUN_TERMINAL"
	case errors.Is(err, workflow.ErrNoPendingGate):
		statusCode = http.StatusConflict
		errCode = "NO_PENDING_GATE"
	case errors.Is(err, workflow.ErrDecisionRequired):
		statusCode = http.StatusConflict
		errCode = "DECISION_REQUIRED"
	case errors.Is(err, workflow.ErrGateMismatch):
		statusCode = http.StatusConflict
		errCode = "GATE_MISMATCH"
	case errors.Is(err, gates.ErrInvalidDecision):
		statusCode = http.StatusBadRequest
		errCode = "INVALID_DECISION"
	}

	logger.Error("Run operation failed", "error", err)
	c.JSON(statusCode, datatypes.ErrorResponse{
		Error: err.Error(),
		Code:  errCode,
	})
}

// resolveError maps context/specification assembly errors.
func (h *Handlers) resolveError(c *gin.Context, logger *slog.Logger, err error) {
	statusCode := http.StatusInternalServerError
	errCode := "RESOLVE_ERROR"

	switch {
	case errors.Is(err, state.ErrNotFound):
		statusCode = http.StatusNotFound
		errCode = "RUN_NOT_FOUND"
	case errors.Is(err, resolve.ErrAnchorNotConfirmed), errors.Is(err, resolve.ErrMissingAnchor):
		statusCode = http.StatusConflict
		errCode = "ANCHOR_NOT_CONFIRMED"
	case errors.Is(err, resolve.ErrDanglingReference):
		statusCode = http.StatusUnprocessableEntity
		errCode = "DANGLING_REFERENCE"
	}

	logger.Error("Resolve failed", "error", err)
	c.JSON(statusCode, datatypes.ErrorResponse{
		Error: err.Error(),
		Code:  errCode,
	})
}

// getOrCreateRequestID returns the request's correlation ID, minting
// one when the client sent none.
func getOrCreateRequestID(c *gin.Context) string {
	requestID := c.GetHeader("X-Request-ID")
	if requestID == "" {
		requestID = uuid.NewString()
	}
	c.Header("X-Request-ID", requestID)
	return requestID
}
