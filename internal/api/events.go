// Copyright 2024 Google, LLC
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     https://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// This file implements the per-job WebSocket event feed. A client that
// connects mid-job still sees the full picture: the job's event history
// is replayed first, then live events follow until the job finishes or
// the client disconnects.
package api

import (
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

// upgrader accepts any origin; cross-origin policy is enforced by the
// CORS middleware on the router, not per socket.
var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(*http.Request) bool { return true },
}

// streamEvents upgrades the request to a WebSocket and streams the
// job's events as JSON messages, history first.
func (h *Handler) streamEvents(c *gin.Context) {
	job, err := h.Manager.Get(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		slog.Error("websocket upgrade failed", "job_id", job.ID(), "error", err)
		return
	}
	defer conn.Close()

	live, history, cancel := job.Subscribe()
	defer cancel()

	for _, ev := range history {
		if err := conn.WriteJSON(ev); err != nil {
			return
		}
		// A finished job has nothing further to stream.
		if ev.Type == "done" {
			return
		}
	}

	// The reader goroutine exists only to observe the client closing
	// the socket; the API is write-only.
	closed := make(chan struct{})
	go func() {
		defer close(closed)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	for {
		select {
		case ev, ok := <-live:
			if !ok {
				return
			}
			if err := conn.WriteJSON(ev); err != nil {
				return
			}
			if ev.Type == "done" {
				return
			}
		case <-closed:
			return
		}
	}
}
