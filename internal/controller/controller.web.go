// Copyright (C) 2025 Josh Simonot
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU General Public License for more details.
//
// You should have received a copy of the GNU General Public License
// along with this program.  If not, see <https://www.gnu.org/licenses/>.

package controller

import (
	"encoding/json"
	"net/http"
	"strings"

	"autoflow/internal/events"

	"github.com/gorilla/websocket"
)

func (c *Controller) newServeMux() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/state", c.handleAPIState)
	mux.HandleFunc("/ws", c.serveWebSocket)
	return mux
}

// ServeHTTP serves the last cycle as JSON on /api/state and streams every
// following cycle on /ws.
func (c *Controller) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	c.mux.Do(func() { c.handler = c.newServeMux() })
	c.handler.ServeHTTP(w, r)
}

func (c *Controller) handleAPIState(w http.ResponseWriter, r *http.Request) {
	if c.bus == nil {
		http.Error(w, "no event bus", http.StatusServiceUnavailable)
		return
	}
	last, ok := c.bus.GetLast(events.TopicCycle)
	if !ok {
		http.Error(w, "no cycle completed yet", http.StatusServiceUnavailable)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(last); err != nil {
		c.log.Error("failed to encode state: %v", err)
	}
}

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" || strings.Contains(origin, "localhost") {
			return true
		}
		return strings.Contains(origin, r.Host)
	},
}

func (c *Controller) serveWebSocket(w http.ResponseWriter, r *http.Request) {
	if c.bus == nil {
		http.Error(w, "no event bus", http.StatusServiceUnavailable)
		return
	}
	ws, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		c.log.Error("failed to upgrade websocket: %v", err)
		return
	}
	defer ws.Close()

	ctx := r.Context()
	updates, unsub := c.bus.Subscribe(ctx, events.TopicCycle, true)
	defer unsub()

	// the read side only detects the client going away
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
		case ev, ok := <-updates:
			if !ok {
				return
			}
			if err := ws.WriteJSON(ev); err != nil {
				if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
					c.log.Error("failed ws WriteJSON: %v", err)
				}
				return
			}
		case <-closed:
			return
		case <-ctx.Done():
			return
		}
	}
}
