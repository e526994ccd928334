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
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/wayfinder/services/planner/config"
	"github.com/AleutianAI/wayfinder/services/planner/datatypes"
	"github.com/AleutianAI/wayfinder/services/planner/llm/llmtest"
)

func newTestRouter(t *testing.T) (*gin.Engine, *Service) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	cfg := config.DefaultConfig()
	cfg.Service.DataDir = t.TempDir()
	cfg.Gates.Dir = ""

	svc, err := NewService(context.Background(), cfg, nil,
		WithInMemoryStorage(),
		WithGenerator(llmtest.New()),
	)
	require.NoError(t, err)
	t.Cleanup(func() { svc.Close() })

	router := gin.New()
	RegisterRoutes(router.Group("/v1"), NewHandlers(svc))
	return router, svc
}

func doJSON(t *testing.T, router *gin.Engine, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func TestHandleHealth(t *testing.T) {
	router, _ := newTestRouter(t)
	w := doJSON(t, router, http.MethodGet, "/v1/planner/health", "")
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestHandleStartRunRejectsBadBody(t *testing.T) {
	router, _ := newTestRouter(t)

	tests := []struct {
		name string
		body string
	}{
		{"empty body", ""},
		{"no idea", `{}`},
		{"idea too short", `{"idea":"short"}`},
		{"malformed json", `{"idea":`},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			w := doJSON(t, router, http.MethodPost, "/v1/planner/runs", tc.body)
			assert.Equal(t, http.StatusBadRequest, w.Code)

			var resp datatypes.ErrorResponse
			require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
			assert.Equal(t, "INVALID_REQUEST", resp.Code)
		})
	}
}

func TestHandleRunStatusNotFound(t *testing.T) {
	router, _ := newTestRouter(t)
	w := doJSON(t, router, http.MethodGet, "/v1/planner/runs/RUN-ffffffff", "")
	assert.Equal(t, http.StatusNotFound, w.Code)

	var resp datatypes.ErrorResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "RUN_NOT_FOUND", resp.Code)
}

func TestHandleDecideValidation(t *testing.T) {
	router, _ := newTestRouter(t)

	// Unknown action rejected at binding.
	w := doJSON(t, router, http.MethodPost, "/v1/planner/runs/RUN-ffffffff/decide",
		`{"gate_id":"GATE-1","action":"ship_it"}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	// Valid shape but unknown run.
	w = doJSON(t, router, http.MethodPost, "/v1/planner/runs/RUN-ffffffff/decide",
		`{"gate_id":"GATE-1","action":"approve"}`)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestHandleListRunsEmpty(t *testing.T) {
	router, _ := newTestRouter(t)
	w := doJSON(t, router, http.MethodGet, "/v1/planner/runs", "")
	assert.Equal(t, http.StatusOK, w.Code)

	var resp struct {
		Runs []string `json:"runs"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Empty(t, resp.Runs)
}

func TestHandleListArtifactsEmpty(t *testing.T) {
	router, _ := newTestRouter(t)
	w := doJSON(t, router, http.MethodGet, "/v1/planner/runs/RUN-ffffffff/artifacts?active=true", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "artifacts")
}

func TestHandleContextNotFound(t *testing.T) {
	router, _ := newTestRouter(t)
	w := doJSON(t, router, http.MethodGet, "/v1/planner/runs/RUN-ffffffff/context", "")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestHandleExportUnsupportedTarget(t *testing.T) {
	router, _ := newTestRouter(t)
	w := doJSON(t, router, http.MethodPost, "/v1/planner/runs/RUN-ffffffff/export",
		`{"target":"gcs"}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	var resp datatypes.ErrorResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "UNSUPPORTED_TARGET", resp.Code)
}

func TestDecideRequestDecision(t *testing.T) {
	req := datatypes.DecideRequest{
		GateID: "GATE-1",
		Action: "resolve_ambiguity",
		Selections: []datatypes.SelectionRequest{
			{InvariantID: "INV-00000001", OptionID: "OPT-00000001"},
		},
		DecidedBy: "reviewer",
	}
	d := req.Decision()
	assert.Equal(t, "GATE-1", d.GateID)
	require.Len(t, d.Selections, 1)
	assert.Equal(t, "OPT-00000001", d.Selections[0].OptionID)
	assert.NoError(t, d.Validate())
}
