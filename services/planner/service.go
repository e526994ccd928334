// Copyright (C) 2026 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package planner assembles the idea-to-plan pipeline service: the run
// engine, its stores, gate channels, usage accounting, and export
// adapters, behind one constructor the daemon and CLI share.
package planner

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/AleutianAI/wayfinder/services/planner/artifact"
	"github.com/AleutianAI/wayfinder/services/planner/config"
	"github.com/AleutianAI/wayfinder/services/planner/events"
	"github.com/AleutianAI/wayfinder/services/planner/export"
	"github.com/AleutianAI/wayfinder/services/planner/gates"
	"github.com/AleutianAI/wayfinder/services/planner/llm"
	"github.com/AleutianAI/wayfinder/services/planner/state"
	"github.com/AleutianAI/wayfinder/services/planner/storage"
	"github.com/AleutianAI/wayfinder/services/planner/tracker"
	"github.com/AleutianAI/wayfinder/services/planner/usage"
	"github.com/AleutianAI/wayfinder/services/planner/workflow"
)

// Service owns the wired pipeline and its lifecycle.
//
// Thread Safety: Service is safe for concurrent use.
type Service struct {
	cfg    config.Config
	logger *slog.Logger

	db        *storage.DB
	lock      *state.DirLock
	artifacts artifact.Store
	states    *state.Store
	emitter   *events.Emitter
	collector *usage.Collector
	influx    *usage.InfluxSink
	engine    *workflow.Engine

	fileChannel *gates.FileChannel
	exporter    *export.FileExporter
	drafts      tracker.Tracker

	// gateRuns maps open gate IDs to their runs so file-channel
	// decisions, which carry only the gate ID, can be routed.
	gateRunsMu sync.Mutex
	gateRuns   map[string]string

	stopOnce sync.Once
	done     chan struct{}
	loopWG   sync.WaitGroup
}

// ServiceOption configures NewService beyond the file config.
type ServiceOption func(*serviceOptions)

type serviceOptions struct {
	generator llm.Generator
	inMemory  bool
}

// WithGenerator overrides the backend built from config. Tests inject
// stub generators this way.
func WithGenerator(gen llm.Generator) ServiceOption {
	return func(o *serviceOptions) {
		o.generator = gen
	}
}

// WithInMemoryStorage uses an in-memory badger store and skips the
// data-directory lock.
func WithInMemoryStorage() ServiceOption {
	return func(o *serviceOptions) {
		o.inMemory = true
	}
}

// NewService wires the full pipeline from configuration.
//
// Description:
//
//	Locks the data directory, opens storage, builds the generation
//	backend, the engine with its default stage registry, usage
//	accounting, the optional file gate channel, and export adapters.
//	On error every partially-initialized resource is released.
//
// Inputs:
//
//	ctx - Used for backend and sink connections.
//	cfg - Validated configuration, from config.Load.
//	logger - Service logger. Nil takes slog.Default.
//
// Outputs:
//
//	*Service - The running service. Call Close on shutdown.
//	error - state.ErrDirLocked when another process owns the data
//	  directory; construction errors otherwise.
func NewService(ctx context.Context, cfg config.Config, logger *slog.Logger, opts ...ServiceOption) (*Service, error) {
	if logger == nil {
		logger = slog.Default()
	}
	var o serviceOptions
	for _, opt := range opts {
		opt(&o)
	}

	s := &Service{
		cfg:      cfg,
		logger:   logger,
		emitter:  events.NewEmitter(),
		gateRuns: make(map[string]string),
		done:     make(chan struct{}),
	}

	ok := false
	defer func() {
		if !ok {
			s.Close()
		}
	}()

	if o.inMemory {
		db, err := storage.OpenInMemory()
		if err != nil {
			return nil, fmt.Errorf("open storage: %w", err)
		}
		s.db = db
	} else {
		lock, err := state.AcquireDirLock(cfg.Service.DataDir)
		if err != nil {
			return nil, err
		}
		s.lock = lock

		dbCfg := storage.DefaultConfig(filepath.Join(cfg.Service.DataDir, "db"))
		dbCfg.Logger = logger
		db, err := storage.Open(dbCfg)
		if err != nil {
			return nil, fmt.Errorf("open storage: %w", err)
		}
		db.StartGC()
		s.db = db
	}

	s.artifacts = artifact.NewBadgerStore(s.db)
	s.states = state.NewStore(s.db)

	// Usage accounting: Prometheus always, Influx when configured.
	var collectorOpts []usage.CollectorOption
	if cfg.Usage.InfluxURL != "" {
		token := os.Getenv(cfg.Usage.InfluxTokenEnv)
		s.influx = usage.NewInfluxSink(cfg.Usage.InfluxURL, token,
			cfg.Usage.InfluxOrg, cfg.Usage.InfluxBucket, logger)
		collectorOpts = append(collectorOpts, usage.WithForwardSink(s.influx))
	}
	s.collector = usage.NewCollector(logger, collectorOpts...)
	s.collector.Attach(s.emitter)

	gen := o.generator
	if gen == nil {
		var err error
		gen, err = buildGenerator(cfg.Backend, s.collector, logger)
		if err != nil {
			return nil, err
		}
	}

	graph := workflow.DefaultGraph()
	if cfg.Pipeline.GraphPath != "" {
		var err error
		graph, err = workflow.LoadGraph(cfg.Pipeline.GraphPath)
		if err != nil {
			return nil, fmt.Errorf("load graph: %w", err)
		}
	}

	var channels []gates.Channel
	if cfg.Gates.Dir != "" {
		ch, err := gates.NewFileChannel(cfg.Gates.Dir, logger)
		if err != nil {
			return nil, fmt.Errorf("open gate channel: %w", err)
		}
		s.fileChannel = ch
		channels = append(channels, ch)
	}

	registry := workflow.NewDefaultRegistry(workflow.ExecutorConfig{
		Generator:        gen,
		Threshold:        cfg.Pipeline.ConfidenceThreshold,
		MaxContextTokens: cfg.Pipeline.MaxContextTokens,
		Logger:           logger,
	})

	engine, err := workflow.NewEngine(workflow.Config{
		Graph:             graph,
		Registry:          registry,
		Artifacts:         s.artifacts,
		States:            s.states,
		Generator:         gen,
		Emitter:           s.emitter,
		Channels:          channels,
		Threshold:         cfg.Pipeline.ConfidenceThreshold,
		MaxStageAttempts:  cfg.Pipeline.MaxStageAttempts,
		MaxVerifierReruns: cfg.Pipeline.MaxVerifierReruns,
		Logger:            logger,
	})
	if err != nil {
		return nil, fmt.Errorf("build engine: %w", err)
	}
	s.engine = engine

	exportDir := cfg.Export.Dir
	if exportDir == "" {
		exportDir = filepath.Join(cfg.Service.DataDir, "exports")
	}
	s.exporter, err = export.NewFileExporter(exportDir, logger)
	if err != nil {
		return nil, err
	}

	draftDir := cfg.Tracker.DraftDir
	if draftDir == "" {
		draftDir = filepath.Join(cfg.Service.DataDir, "drafts")
	}
	s.drafts, err = tracker.NewLocalTracker(draftDir, logger)
	if err != nil {
		return nil, err
	}

	s.emitter.Subscribe(s.trackGate, events.TypeGateOpened, events.TypeGateDecided)
	if s.fileChannel != nil {
		s.loopWG.Add(1)
		go s.decisionLoop()
	}

	ok = true
	return s, nil
}

// buildGenerator constructs the configured backend wrapped in the
// retrier, which owns rate limiting, per-call timeouts, and the usage
// sink.
func buildGenerator(cfg config.BackendConfig, sink llm.UsageSink, logger *slog.Logger) (llm.Generator, error) {
	var base llm.Generator
	switch cfg.Type {
	case "ollama":
		client, err := llm.NewOllamaClient(llm.OllamaConfig{
			BaseURL:     cfg.BaseURL,
			Model:       cfg.Model,
			HTTPTimeout: cfg.PerCallTimeout,
			Logger:      logger,
		})
		if err != nil {
			return nil, fmt.Errorf("build ollama backend: %w", err)
		}
		base = client

	case "openai":
		key, err := llm.LoadAPIKey(cfg.APIKeyEnv, cfg.APIKeyFile)
		if err != nil {
			return nil, fmt.Errorf("load API key: %w", err)
		}
		client, err := llm.NewOpenAIClient(llm.OpenAIConfig{
			Model:   cfg.Model,
			BaseURL: cfg.BaseURL,
			Key:     key,
			Logger:  logger,
		})
		if err != nil {
			return nil, fmt.Errorf("build openai backend: %w", err)
		}
		base = client

	default:
		return nil, fmt.Errorf("unknown backend type %q", cfg.Type)
	}

	return llm.NewRetrier(base, llm.RetryOptions{
		MaxAttempts:       cfg.MaxAttempts,
		PerCallTimeout:    cfg.PerCallTimeout,
		RequestsPerSecond: cfg.RequestsPerSecond,
		Sink:              sink,
		Logger:            logger,
	}), nil
}

// trackGate keeps the gate-to-run index current from emitter traffic.
func (s *Service) trackGate(event *events.Event) {
	s.gateRunsMu.Lock()
	defer s.gateRunsMu.Unlock()
	switch data := event.Data.(type) {
	case events.GateOpenedData:
		s.gateRuns[data.GateID] = event.RunID
	case events.GateDecidedData:
		delete(s.gateRuns, data.GateID)
	}
}

// runForGate resolves the run a gate belongs to, falling back to a
// state scan for gates opened before this process started.
func (s *Service) runForGate(ctx context.Context, gateID string) (string, error) {
	s.gateRunsMu.Lock()
	runID, found := s.gateRuns[gateID]
	s.gateRunsMu.Unlock()
	if found {
		return runID, nil
	}

	runs, err := s.states.Runs(ctx)
	if err != nil {
		return "", err
	}
	for _, id := range runs {
		st, err := s.states.Load(ctx, id)
		if err != nil {
			continue
		}
		if st.PendingGate != nil && st.PendingGate.ID == gateID {
			return id, nil
		}
	}
	return "", fmt.Errorf("%w: no run awaits gate %s", workflow.ErrGateMismatch, gateID)
}

// decisionLoop feeds file-channel decisions into the engine.
func (s *Service) decisionLoop() {
	defer s.loopWG.Done()
	for {
		select {
		case <-s.done:
			return
		case d, open := <-s.fileChannel.Decisions():
			if !open {
				return
			}
			ctx, cancel := context.WithTimeout(context.Background(), time.Hour)
			runID, err := s.runForGate(ctx, d.GateID)
			if err != nil {
				s.logger.Warn("dropping decision for unknown gate",
					"gate_id", d.GateID, "error", err)
				cancel()
				continue
			}
			if _, err := s.engine.Resume(ctx, runID, &d); err != nil {
				s.logger.Error("file-channel decision failed",
					"gate_id", d.GateID, "run_id", runID, "error", err)
			}
			cancel()
		}
	}
}

// Engine exposes the run engine to handlers and the CLI.
func (s *Service) Engine() *workflow.Engine { return s.engine }

// Emitter exposes the event stream.
func (s *Service) Emitter() *events.Emitter { return s.emitter }

// Artifacts exposes the artifact store.
func (s *Service) Artifacts() artifact.Store { return s.artifacts }

// States exposes the run state store.
func (s *Service) States() *state.Store { return s.states }

// Exporter returns the local file exporter.
func (s *Service) Exporter() *export.FileExporter { return s.exporter }

// Tracker returns the work-item draft tracker.
func (s *Service) Tracker() tracker.Tracker { return s.drafts }

// Config returns the service's configuration.
func (s *Service) Config() config.Config { return s.cfg }

// Close releases everything the constructor acquired. Safe to call on
// a partially constructed service and safe to call twice.
func (s *Service) Close() error {
	var firstErr error
	s.stopOnce.Do(func() {
		close(s.done)
		if s.fileChannel != nil {
			if err := s.fileChannel.Close(); err != nil && firstErr == nil {
				firstErr = err
			}
		}
		s.loopWG.Wait()

		if s.influx != nil {
			s.influx.Close()
		}
		if s.db != nil {
			if err := s.db.Close(); err != nil && firstErr == nil {
				firstErr = err
			}
		}
		if s.lock != nil {
			if err := s.lock.Release(); err != nil && firstErr == nil {
				firstErr = err
			}
		}
	})
	return firstErr
}
