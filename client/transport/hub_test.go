// Copyright (C) 2025 efchat.net <tj@efchat.net>
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.

package transport

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"
)

// fakeHub accepts hub connections, answers the handshake and records the
// invocations it receives.
type fakeHub struct {
	t        *testing.T
	upgrader websocket.Upgrader
	reject   atomic.Bool

	mu     sync.Mutex
	tokens []string

	connected chan *websocket.Conn
	received  chan frame
}

func newFakeHub(t *testing.T) (*fakeHub, string) {
	h := &fakeHub{
		t:         t,
		connected: make(chan *websocket.Conn, 8),
		received:  make(chan frame, 64),
	}
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	return h, "ws" + strings.TrimPrefix(srv.URL, "http") + "/hubs/messagehub"
}

func (h *fakeHub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if h.reject.Load() {
		http.Error(w, "unavailable", http.StatusServiceUnavailable)
		return
	}
	ws, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	h.mu.Lock()
	h.tokens = append(h.tokens, r.URL.Query().Get("access_token"))
	h.mu.Unlock()

	_, data, err := ws.ReadMessage()
	if err != nil || !strings.Contains(string(data), `"protocol":"json"`) {
		ws.Close()
		return
	}
	if err := ws.WriteMessage(websocket.TextMessage, []byte("{}\x1e")); err != nil {
		return
	}
	h.connected <- ws

	for {
		_, data, err := ws.ReadMessage()
		if err != nil {
			return
		}
		for _, rec := range splitFrames(data) {
			var f frame
			if json.Unmarshal(rec, &f) == nil {
				h.received <- f
			}
		}
	}
}

func (h *fakeHub) send(ws *websocket.Conn, target string, args ...interface{}) {
	b, err := EncodeCallback(target, args...)
	require.NoError(h.t, err)
	require.NoError(h.t, ws.WriteMessage(websocket.TextMessage, b))
}

func (h *fakeHub) waitConn() *websocket.Conn {
	select {
	case ws := <-h.connected:
		return ws
	case <-time.After(2 * time.Second):
		h.t.Fatal("hub saw no connection")
		return nil
	}
}

func (h *fakeHub) waitFrame() frame {
	select {
	case f := <-h.received:
		return f
	case <-time.After(2 * time.Second):
		h.t.Fatal("hub received no frame")
		return frame{}
	}
}

type stateLog struct {
	mu     sync.Mutex
	states []State
}

func (l *stateLog) add(s State) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.states = append(l.states, s)
}

func (l *stateLog) get() []State {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]State(nil), l.states...)
}

func newTestConnection(t *testing.T, url string) (*Connection, *stateLog) {
	c := NewConnection(Options{
		URL:             url,
		ReconnectDelays: []time.Duration{0, 10 * time.Millisecond, 10 * time.Millisecond},
	})
	log := &stateLog{}
	c.Events().States.Subscribe(log.add)
	t.Cleanup(func() { c.Disconnect() })
	return c, log
}
