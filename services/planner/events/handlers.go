// Copyright (C) 2026 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package events

import "log/slog"

// LoggingHandler creates a handler that logs events.
//
// Inputs:
//
//	logger - The slog logger to use.
//	level - The log level for events.
//
// Outputs:
//
//	Handler - A handler function that logs events.
func LoggingHandler(logger *slog.Logger, level slog.Level) Handler {
	return func(event *Event) {
		attrs := []any{
			slog.String("event_id", event.ID),
			slog.String("event_type", string(event.Type)),
			slog.String("run_id", event.RunID),
			slog.Uint64("revision", event.Revision),
		}

		switch data := event.Data.(type) {
		case *PhaseData:
			attrs = append(attrs, slog.String("phase", data.Phase))
			if data.Duration > 0 {
				attrs = append(attrs, slog.Duration("duration", data.Duration))
			}

		case *StageData:
			attrs = append(attrs,
				slog.String("phase", data.Phase),
				slog.String("stage", data.Stage),
				slog.Int("attempt", data.Attempt),
			)
			if data.Error != "" {
				attrs = append(attrs, slog.String("error", data.Error))
			}

		case *GateOpenedData:
			attrs = append(attrs,
				slog.String("gate_id", data.GateID),
				slog.String("gate_type", data.GateType),
				slog.String("phase", data.Phase),
			)

		case *GateDecidedData:
			attrs = append(attrs,
				slog.String("gate_id", data.GateID),
				slog.String("action", data.Action),
			)

		case *VerificationData:
			attrs = append(attrs,
				slog.String("phase", data.Phase),
				slog.Int("blocking", data.Blocking),
				slog.Int("warnings", data.Warnings),
			)

		case *ArtifactsChangedData:
			attrs = append(attrs,
				slog.String("phase", data.Phase),
				slog.Int("added", data.Added),
				slog.Int("removed", data.Removed),
				slog.Int("modified", data.Modified),
				slog.Int("superseded", data.Superseded),
			)

		case *GenerationData:
			attrs = append(attrs,
				slog.String("stage", data.Stage),
				slog.String("model", data.Model),
				slog.Int("tokens_in", data.TokensIn),
				slog.Int("tokens_out", data.TokensOut),
				slog.Duration("duration", data.Duration),
			)

		case *ErrorData:
			attrs = append(attrs,
				slog.String("error", data.Error),
				slog.Bool("recoverable", data.Recoverable),
			)

		case *RunFinishedData:
			attrs = append(attrs, slog.String("status", data.Status))
			if data.Error != "" {
				attrs = append(attrs, slog.String("error", data.Error))
			}
		}

		logger.Log(nil, level, "run event", attrs...)
	}
}

// ChannelHandler creates a handler that sends events to a channel.
//
// Inputs:
//
//	ch - The channel to send events to.
//	dropOnFull - If true, drops events when the channel is full; if
//	false, blocks the emitter.
//
// Outputs:
//
//	Handler - A handler function that sends events to the channel.
func ChannelHandler(ch chan<- Event, dropOnFull bool) Handler {
	return func(event *Event) {
		if dropOnFull {
			select {
			case ch <- *event:
			default:
			}
		} else {
			ch <- *event
		}
	}
}

// MultiHandler creates a handler that calls multiple handlers in order.
func MultiHandler(handlers ...Handler) Handler {
	return func(event *Event) {
		for _, h := range handlers {
			h(event)
		}
	}
}

// TypeFilter creates a filter that matches specific event types.
func TypeFilter(types ...Type) Filter {
	typeSet := make(map[Type]bool, len(types))
	for _, t := range types {
		typeSet[t] = true
	}

	return func(event *Event) bool {
		return typeSet[event.Type]
	}
}

// RunFilter creates a filter that matches a specific run.
func RunFilter(runID string) Filter {
	return func(event *Event) bool {
		return event.RunID == runID
	}
}
