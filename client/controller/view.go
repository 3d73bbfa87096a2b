// Copyright (C) 2025 efchat.net <tj@efchat.net>
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.

package controller

import (
	"github.com/efchatnet/efmsg/client/models"
)

type State int

const (
	Idle State = iota
	Loading
	Open
)

func (s State) String() string {
	switch s {
	case Loading:
		return "loading"
	case Open:
		return "open"
	default:
		return "idle"
	}
}

func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// View is an immutable snapshot of everything the messaging screen shows.
type View struct {
	State          State                        `json:"state"`
	Peer           *models.ConversationSummary  `json:"peer,omitempty"`
	Messages       []models.Message             `json:"messages"`
	Conversations  []models.ConversationSummary `json:"conversations"`
	LikedUsers     []models.Member              `json:"likedUsers"`
	ShowLikedUsers bool                         `json:"showLikedUsers"`
	PeerTyping     bool                         `json:"peerTyping"`
	PeerOnline     bool                         `json:"peerOnline"`
	OnlineUsers    []int64                      `json:"onlineUsers"`
	Connection     string                       `json:"connection"`
	Draft          string                       `json:"draft"`
	Focused        bool                         `json:"focused"`
	UnreadTotal    int                          `json:"unreadTotal"`

	// ScrollSeq grows whenever the message list should scroll to the bottom.
	ScrollSeq uint64 `json:"scrollSeq"`
}

// snapshot builds the current View. Runs on the loop.
func (c *Controller) snapshot() View {
	v := View{
		State:         c.state,
		Messages:      c.store.Messages(),
		Conversations: c.store.Conversations(),
		LikedUsers:    append([]models.Member(nil), c.likedUsers...),
		OnlineUsers:   c.presence.OnlineUsers(),
		Connection:    c.connection.String(),
		Draft:         c.draft,
		Focused:       c.focused,
		ScrollSeq:     c.scrollSeq,
	}
	if peer, ok := c.store.OpenPeer(); ok {
		v.Peer = &peer
		v.PeerTyping = c.presence.PeerTyping(peer.PeerID)
		v.PeerOnline = c.presence.IsOnline(peer.PeerID)
	}
	v.ShowLikedUsers = c.state == Idle && len(v.Conversations) == 0

	// the server count only stands in while no list is loaded
	if len(v.Conversations) > 0 {
		v.UnreadTotal = c.store.UnreadTotal()
	} else {
		v.UnreadTotal = c.serverUnread
	}
	return v
}

// publish stores a fresh snapshot and hands it to OnChange subscribers.
func (c *Controller) publish() {
	v := c.snapshot()
	c.viewMu.Lock()
	c.view = v
	c.viewMu.Unlock()
	c.changes.Publish(v)
}
