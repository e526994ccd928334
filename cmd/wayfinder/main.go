// Copyright (C) 2026 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Command wayfinder is the CLI for the planning pipeline: start runs,
// answer decision gates, inspect artifacts, and export specifications.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"

	"github.com/AleutianAI/wayfinder/pkg/logging"
	"github.com/AleutianAI/wayfinder/services/planner"
	"github.com/AleutianAI/wayfinder/services/planner/config"
	"github.com/AleutianAI/wayfinder/services/planner/state"
)

var wfConfig config.Config

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, styleError.Render(fmt.Sprintf("Error: %v", err)))
		os.Exit(CLIExitError)
	}
}

func init() {
	rootCmd.PersistentPreRun = func(cmd *cobra.Command, args []string) {
		// "config init" must work before a config file exists.
		if cmd.Name() == "init" && cmd.Parent() != nil && cmd.Parent().Name() == "config" {
			return
		}
		cfg, err := config.Load(configPath)
		if err != nil {
			fail("invalid configuration", err)
		}
		wfConfig = cfg
	}
}

// newCLILogger builds a quiet logger for CLI invocations. TTY sessions
// get the human text handler; piped output gets JSON.
func newCLILogger() *logging.Logger {
	level := logging.LevelWarn
	if verbose {
		level = logging.LevelDebug
	}
	return logging.New(logging.Config{
		Level:   level,
		Service: wfConfig.Service.Name,
		JSON:    !isatty.IsTerminal(os.Stderr.Fd()),
		Writer:  os.Stderr,
	})
}

// withService opens the planner service against the local data
// directory, runs fn, and closes it. Lock contention gets a dedicated
// message since it usually means wayfinderd is running.
func withService(ctx context.Context, fn func(ctx context.Context, svc *planner.Service) error) error {
	logger := newCLILogger()
	defer logger.Close()

	svc, err := planner.NewService(ctx, wfConfig, logger.Slog())
	if err != nil {
		if errors.Is(err, state.ErrDirLocked) {
			return fmt.Errorf("data directory %s is in use (is wayfinderd running?): %w",
				wfConfig.Service.DataDir, err)
		}
		return err
	}
	defer func() {
		if cerr := svc.Close(); cerr != nil {
			slog.Warn("service close failed", "error", cerr)
		}
	}()
	return fn(ctx, svc)
}
