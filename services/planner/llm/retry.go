// Copyright (C) 2026 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package llm

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/time/rate"
)

// RetryOptions tunes the Retrier. Zero values take the defaults.
type RetryOptions struct {
	// MaxAttempts bounds transport attempts per call. Default 3.
	MaxAttempts int

	// BaseDelay is the first backoff delay, doubled per attempt up to
	// MaxDelay. Defaults 500ms and 8s.
	BaseDelay time.Duration
	MaxDelay  time.Duration

	// PerCallTimeout bounds each backend attempt. Default 2m.
	PerCallTimeout time.Duration

	// RequestsPerSecond throttles calls across all goroutines. Zero
	// disables throttling.
	RequestsPerSecond float64
	Burst             int

	// Sink receives one GenerationRecord per attempt. Optional.
	Sink UsageSink

	Logger *slog.Logger
}

func (o *RetryOptions) withDefaults() RetryOptions {
	out := *o
	if out.MaxAttempts <= 0 {
		out.MaxAttempts = 3
	}
	if out.BaseDelay <= 0 {
		out.BaseDelay = 500 * time.Millisecond
	}
	if out.MaxDelay <= 0 {
		out.MaxDelay = 8 * time.Second
	}
	if out.PerCallTimeout <= 0 {
		out.PerCallTimeout = 2 * time.Minute
	}
	if out.Burst <= 0 {
		out.Burst = 1
	}
	if out.Logger == nil {
		out.Logger = slog.Default()
	}
	return out
}

// Retrier wraps a Generator with bounded transport retries, per-call
// timeouts, rate limiting, and usage accounting. It retries only
// transport-level failures; schema problems in an otherwise successful
// completion are the caller's feedback loop, not a transport retry.
type Retrier struct {
	gen     Generator
	opts    RetryOptions
	limiter *rate.Limiter
}

var _ Generator = (*Retrier)(nil)

// NewRetrier wraps gen.
func NewRetrier(gen Generator, opts RetryOptions) *Retrier {
	o := opts.withDefaults()
	r := &Retrier{gen: gen, opts: o}
	if o.RequestsPerSecond > 0 {
		r.limiter = rate.NewLimiter(rate.Limit(o.RequestsPerSecond), o.Burst)
	}
	return r
}

func (r *Retrier) Name() string  { return r.gen.Name() }
func (r *Retrier) Model() string { return r.gen.Model() }

// Generate runs the call with retries. The context bounds the whole
// sequence including backoff sleeps.
func (r *Retrier) Generate(ctx context.Context, req *Request) (*Result, error) {
	var lastErr error
	delay := r.opts.BaseDelay

	for attempt := 1; attempt <= r.opts.MaxAttempts; attempt++ {
		if r.limiter != nil {
			if err := r.limiter.Wait(ctx); err != nil {
				return nil, err
			}
		}

		res, err := r.attempt(ctx, req, attempt)
		if err == nil {
			return res, nil
		}
		lastErr = err

		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		if attempt == r.opts.MaxAttempts {
			break
		}

		r.opts.Logger.Warn("generation attempt failed, retrying",
			"backend", r.gen.Name(),
			"stage", req.Stage,
			"attempt", attempt,
			"delay", delay.String(),
			"error", err)

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(delay):
		}
		delay *= 2
		if delay > r.opts.MaxDelay {
			delay = r.opts.MaxDelay
		}
	}

	return nil, fmt.Errorf("%w: %d attempts on %s: %v",
		ErrGenerationFailed, r.opts.MaxAttempts, r.gen.Name(), lastErr)
}

func (r *Retrier) attempt(ctx context.Context, req *Request, attempt int) (*Result, error) {
	callCtx, cancel := context.WithTimeout(ctx, r.opts.PerCallTimeout)
	defer cancel()

	start := time.Now()
	res, err := r.gen.Generate(callCtx, req)

	if r.opts.Sink != nil {
		rec := GenerationRecord{
			Backend:    r.gen.Name(),
			Model:      r.gen.Model(),
			Stage:      req.Stage,
			Attempt:    attempt,
			DurationMS: time.Since(start).Milliseconds(),
			Err:        err,
		}
		if res != nil {
			rec.Usage = res.Usage
		}
		r.opts.Sink.RecordGeneration(ctx, rec)
	}

	if err != nil {
		// A per-call deadline is retryable; cancellation of the outer
		// context is not.
		if errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil {
			return nil, fmt.Errorf("attempt timed out after %s: %w", r.opts.PerCallTimeout, err)
		}
		return nil, err
	}
	if res == nil || res.Raw == "" {
		return nil, ErrEmptyCompletion
	}
	return res, nil
}
