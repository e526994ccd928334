// Copyright (C) 2026 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Command wayfinderd starts the planning pipeline API server.
//
// Usage:
//
//	go run ./cmd/wayfinderd
//	go run ./cmd/wayfinderd -config ~/.wayfinder/config.yaml -debug
//
// Example requests:
//
//	# Health check
//	curl http://localhost:8740/v1/planner/health
//
//	# Start a run
//	curl -X POST http://localhost:8740/v1/planner/runs \
//	  -H "Content-Type: application/json" \
//	  -d '{"idea": "A CLI that tracks personal reading lists"}'
//
//	# Watch a run's events
//	websocat ws://localhost:8740/v1/planner/runs/RUN_ID/events
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"github.com/AleutianAI/wayfinder/pkg/logging"
	"github.com/AleutianAI/wayfinder/services/planner"
	"github.com/AleutianAI/wayfinder/services/planner/config"
	"github.com/AleutianAI/wayfinder/services/planner/state"
	"github.com/AleutianAI/wayfinder/services/planner/telemetry"
)

// version is set at build time via -ldflags.
var version = "dev"

func main() {
	configPath := flag.String("config", "", "Path to config file (optional)")
	debug := flag.Bool("debug", false, "Enable debug mode")
	flag.Parse()

	if *debug {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "wayfinderd: invalid configuration: %v\n", err)
		os.Exit(1)
	}

	level := logging.LevelInfo
	if *debug {
		level = logging.LevelDebug
	}
	logger := logging.New(logging.Config{
		Level:   level,
		Service: cfg.Service.Name,
		JSON:    !*debug,
	})
	defer logger.Close()
	slogger := logger.Slog()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	telShutdown, err := telemetry.Init(ctx, telemetry.Config{
		ServiceName:    cfg.Service.Name,
		ServiceVersion: version,
		TraceExporter:  cfg.Telemetry.TraceExporter,
		MetricExporter: cfg.Telemetry.MetricExporter,
		OTLPEndpoint:   cfg.Telemetry.OTLPEndpoint,
		OTLPInsecure:   true,
	})
	if err != nil {
		slogger.Error("telemetry init failed", "error", err)
		os.Exit(1)
	}

	svc, err := planner.NewService(ctx, cfg, slogger)
	if err != nil {
		if errors.Is(err, state.ErrDirLocked) {
			slogger.Error("data directory is locked by another wayfinder process",
				"data_dir", cfg.Service.DataDir, "error", err)
		} else {
			slogger.Error("service init failed", "error", err)
		}
		os.Exit(1)
	}

	router := gin.New()
	router.Use(gin.Recovery())
	if *debug {
		router.Use(gin.Logger())
	}
	router.Use(otelgin.Middleware(cfg.Service.Name))

	v1 := router.Group("/v1")
	planner.RegisterRoutes(v1, planner.NewHandlers(svc))

	if h := telemetry.MetricsHandler(); h != nil {
		router.GET("/metrics", gin.WrapH(h))
	}

	srv := &http.Server{
		Addr:         cfg.Server.Addr,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		slogger.Info("server listening", "addr", cfg.Server.Addr, "version", version)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		slogger.Info("shutdown signal received")
	case err := <-errCh:
		slogger.Error("server failed", "error", err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		slogger.Warn("server shutdown incomplete", "error", err)
	}
	if err := svc.Close(); err != nil {
		slogger.Warn("service shutdown incomplete", "error", err)
	}
	if err := telShutdown(shutdownCtx); err != nil {
		slogger.Warn("telemetry shutdown incomplete", "error", err)
	}
	slogger.Info("wayfinderd stopped")
}
