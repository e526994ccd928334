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
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"github.com/AleutianAI/wayfinder/services/planner/events"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
	ReadBufferSize:  64 * 1024,
	WriteBufferSize: 64 * 1024,
}

// eventStreamBuffer bounds queued events per websocket client. A client
// that cannot keep up is disconnected rather than stalling the emitter.
const eventStreamBuffer = 256

// HandleEventStream handles GET /v1/planner/runs/:id/events.
//
// Description:
//
//	Upgrades to a websocket and streams the run's events as JSON. The
//	buffered recent events replay first so a late subscriber catches
//	up, then live events follow until the client disconnects.
//
// Thread Safety: This method is safe for concurrent use.
func (h *Handlers) HandleEventStream(c *gin.Context) {
	requestID := getOrCreateRequestID(c)
	logger := slog.With("request_id", requestID, "handler", "HandleEventStream")
	runID := c.Param("id")

	ws, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		logger.Error("failed to upgrade the websocket", "error", err)
		return
	}
	defer ws.Close()
	logger.Info("Event stream connected", "run_id", runID)

	em := h.svc.Emitter()

	// Replay buffered history before subscribing so nothing between the
	// two is missed twice; duplicates at the seam are acceptable,
	// clients dedupe on event ID.
	for _, ev := range em.BufferForRun(runID) {
		if err := ws.WriteJSON(ev); err != nil {
			logger.Info("Event stream client gone during replay", "error", err)
			return
		}
	}

	live := make(chan *events.Event, eventStreamBuffer)
	subID := em.SubscribeWithFilter(func(event *events.Event) {
		select {
		case live <- event:
		default:
			// Queue full; drop and let the disconnect below handle it.
		}
	}, func(event *events.Event) bool {
		return event.RunID == runID
	})
	defer em.Unsubscribe(subID)

	// Reader goroutine notices the client closing.
	closed := make(chan struct{})
	go func() {
		defer close(closed)
		for {
			if _, _, err := ws.ReadMessage(); err != nil {
				return
			}
		}
	}()

	for {
		select {
		case <-closed:
			logger.Info("Event stream client disconnected", "run_id", runID)
			return
		case ev := <-live:
			if err := ws.WriteJSON(ev); err != nil {
				logger.Info("Event stream write failed", "error", err)
				return
			}
		}
	}
}
