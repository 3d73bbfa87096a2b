// Copyright (C) 2025 efchat.net <tj@efchat.net>
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.

package handlers

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/efchatnet/efmsg/client/controller"
	"github.com/efchatnet/efmsg/client/logger"
	"github.com/efchatnet/efmsg/client/middleware"
	"github.com/efchatnet/efmsg/client/models"
)

const (
	writeWait    = 10 * time.Second
	pongWait     = 60 * time.Second
	pingPeriod   = (pongWait * 9) / 10
	streamBuffer = 16
)

const (
	EventView         = "view"
	EventNotification = "notification"
)

// StreamEvent is one frame pushed to a view stream.
type StreamEvent struct {
	Type string      `json:"type"`
	Data interface{} `json:"data"`
}

type streamClient struct {
	id   string
	conn *websocket.Conn
	send chan []byte
	done chan struct{}
	log  *logger.Logger
}

// Stream upgrades to a websocket that receives every new view and every
// notification. The current view is sent first.
func (h *MessagesHandler) Stream(w http.ResponseWriter, r *http.Request) {
	upgrader := websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			return middleware.OriginAllowed(h.allowedOrigins, r.Header.Get("Origin"))
		},
	}
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Debug("stream upgrade failed", "err", err)
		return
	}

	id := uuid.New().String()
	c := &streamClient{
		id:   id,
		conn: conn,
		send: make(chan []byte, streamBuffer),
		done: make(chan struct{}),
		log:  h.log.With("stream", id),
	}
	c.log.Debug("stream opened")

	c.push(EventView, h.messenger.View())
	viewSub := h.messenger.OnChange(func(v controller.View) { c.push(EventView, v) })
	notifySub := h.messenger.OnNotify(func(n models.Notification) { c.push(EventNotification, n) })

	go c.writePump()
	c.readPump()

	viewSub.Cancel()
	notifySub.Cancel()
	close(c.done)
	c.log.Debug("stream closed")
}

// push queues an event without blocking. When the client lags, the oldest
// queued frame is dropped.
func (c *streamClient) push(kind string, data interface{}) {
	b, err := json.Marshal(StreamEvent{Type: kind, Data: data})
	if err != nil {
		c.log.Warn("failed to encode stream event", "type", kind, "err", err)
		return
	}
	for {
		select {
		case c.send <- b:
			return
		default:
		}
		select {
		case <-c.send:
			c.log.Debug("stream client lagging, dropped a frame")
		default:
		}
	}
}

// readPump discards inbound frames and returns once the peer goes away.
func (c *streamClient) readPump() {
	c.conn.SetReadLimit(512)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (c *streamClient) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case b := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, b); err != nil {
				c.log.Debug("stream write failed", "err", err)
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-c.done:
			_ = c.conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
				time.Now().Add(writeWait))
			return
		}
	}
}
