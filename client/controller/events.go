// Copyright (C) 2025 efchat.net <tj@efchat.net>
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.

package controller

import (
	"context"

	"github.com/efchatnet/efmsg/client/models"
	"github.com/efchatnet/efmsg/client/store"
	"github.com/efchatnet/efmsg/client/transport"
)

// attach subscribes the controller to every hub event stream. The hub
// calls it after each (re)connect with all previous handlers cleared.
func (c *Controller) attach(e *transport.Events) {
	e.Messages.Subscribe(func(raw models.RawMessage) {
		c.loop.Post(func() { c.onMessage(raw) })
	})
	e.Reads.Subscribe(func(r transport.ReadReceipt) {
		c.loop.Post(func() { c.onRead(r) })
	})
	e.Deletes.Subscribe(func(id int64) {
		c.loop.Post(func() { c.onDeleted(id) })
	})
	e.Typing.Subscribe(func(id int64) {
		c.loop.Post(func() { c.onTyping(id, true) })
	})
	e.StoppedTyping.Subscribe(func(id int64) {
		c.loop.Post(func() { c.onTyping(id, false) })
	})
	e.Online.Subscribe(func(id int64) {
		c.loop.Post(func() {
			c.presence.MarkOnline(id)
			c.publish()
		})
	})
	e.Offline.Subscribe(func(id int64) {
		c.loop.Post(func() {
			c.presence.MarkOffline(id)
			c.publish()
		})
	})
	e.OnlineUsers.Subscribe(func(ids []int64) {
		c.loop.Post(func() {
			c.presence.SetOnlineSnapshot(ids)
			c.publish()
		})
	})
}

func (c *Controller) onConnectionState(s transport.State) {
	c.connection = s
	switch s {
	case transport.Connected:
		c.hub.JoinUserGroup(c.me)
		c.joined = true
	case transport.Disconnected:
		c.joined = false
	}
	c.publish()
}

func (c *Controller) onMessage(raw models.RawMessage) {
	res, err := c.store.ApplyIncoming(raw)
	if err != nil {
		c.log.Debug("dropping malformed message", "err", err)
		return
	}

	m := res.Message
	switch res.Outcome {
	case store.Duplicate:
		c.log.Debug("dropping duplicate message", "id", m.ID, "peer", res.PeerID)
		c.publish()
		return
	case store.Appended:
		c.scrollSeq++
		c.scheduleReplay()
		if m.SenderID != c.me && c.focused && c.state == Open {
			c.scheduleAutoRead(m.ID)
		}
	}
	if m.SenderID != c.me {
		c.maybeNotify(m)
	}
	c.publish()
}

func (c *Controller) maybeNotify(m models.Message) {
	if !c.gate.ShouldNotify(m.SenderID) {
		return
	}
	summary := c.summaryFor(m.SenderID)
	if summary.PeerUsername == "" {
		summary.PeerUsername = m.SenderUsername
	}
	n := c.gate.Build(m, func() {
		go func() {
			if err := c.Select(context.Background(), summary); err != nil {
				c.log.Warn("failed to open conversation from notification", "peer", summary.PeerID, "err", err)
			}
		}()
	})
	c.notifications.Publish(n)
}

func (c *Controller) onRead(r transport.ReadReceipt) {
	switch c.store.MarkRead(r.MessageID, r.ReaderID) {
	case store.ReadApplied:
		c.publish()
	case store.ReadBuffered:
		c.log.Debug("buffering read receipt for unknown message", "id", r.MessageID)
	}
}

func (c *Controller) onDeleted(id int64) {
	if _, _, ok := c.store.DeleteMessage(id); ok {
		c.publish()
	}
}

func (c *Controller) onTyping(peerID int64, typing bool) {
	c.presence.SetPeerTyping(peerID, typing)
	if c.store.IsOpen(peerID) {
		c.publish()
	}
}
