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
	"github.com/gin-gonic/gin"
)

// RegisterRoutes registers all planner routes with the router.
//
// Description:
//
//	Registers all /v1/planner/* endpoints with the given Gin router
//	group. The router group should already have any required
//	middleware applied.
//
// Inputs:
//
//	rg - Gin router group (typically /v1)
//	handlers - The handlers instance
//
// Endpoints:
//
//	POST /v1/planner/runs - Start a pipeline run
//	GET  /v1/planner/runs - List run IDs
//	GET  /v1/planner/runs/:id - Run status
//	POST /v1/planner/runs/:id/decide - Decide the pending gate
//	POST /v1/planner/runs/:id/cancel - Cancel a run
//	GET  /v1/planner/runs/:id/artifacts - List the run's artifacts
//	GET  /v1/planner/runs/:id/context - Resolved context
//	GET  /v1/planner/runs/:id/specification - Resolved specification
//	POST /v1/planner/runs/:id/export - Export to the file adapter
//	GET  /v1/planner/runs/:id/events - Websocket event stream
//	GET  /v1/planner/health - Health check
//
// Example:
//
//	svc, _ := planner.NewService(ctx, cfg, logger)
//	handlers := planner.NewHandlers(svc)
//
//	v1 := router.Group("/v1")
//	planner.RegisterRoutes(v1, handlers)
func RegisterRoutes(rg *gin.RouterGroup, handlers *Handlers) {
	pl := rg.Group("/planner")
	{
		// Run lifecycle
		pl.POST("/runs", handlers.HandleStartRun)
		pl.GET("/runs", handlers.HandleListRuns)
		pl.GET("/runs/:id", handlers.HandleRunStatus)
		pl.POST("/runs/:id/decide", handlers.HandleDecide)
		pl.POST("/runs/:id/cancel", handlers.HandleCancelRun)

		// Run outputs
		pl.GET("/runs/:id/artifacts", handlers.HandleListArtifacts)
		pl.GET("/runs/:id/context", handlers.HandleContext)
		pl.GET("/runs/:id/specification", handlers.HandleSpecification)
		pl.POST("/runs/:id/export", handlers.HandleExport)

		// Event streaming
		pl.GET("/runs/:id/events", handlers.HandleEventStream)

		// Health checks
		pl.GET("/health", handlers.HandleHealth)
	}
}
