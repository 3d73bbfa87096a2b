// Copyright (C) 2025 efchat.net <tj@efchat.net>
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.

// Package presence tracks who is online and who is typing. A Tracker is
// owned by the controller loop and is not safe for concurrent use.
package presence

import (
	"sort"
	"time"

	"github.com/efchatnet/efmsg/client/loop"
)

// Scheduler runs callbacks on the owning loop after a delay.
type Scheduler interface {
	AfterFunc(d time.Duration, fn func()) *loop.Task
}

// Signaler carries the local user's typing state to the peer.
type Signaler interface {
	SendTyping(peerID int64)
	SendStopTyping(peerID int64)
}

const DefaultTypingTimeout = 2 * time.Second

type Tracker struct {
	sched   Scheduler
	signal  Signaler
	timeout time.Duration

	online map[int64]struct{}
	typing map[int64]bool

	typingPeer int64
	typingTask *loop.Task
}

func New(sched Scheduler, signal Signaler, timeout time.Duration) *Tracker {
	if timeout <= 0 {
		timeout = DefaultTypingTimeout
	}
	return &Tracker{
		sched:   sched,
		signal:  signal,
		timeout: timeout,
		online:  make(map[int64]struct{}),
		typing:  make(map[int64]bool),
	}
}

// SetOnlineSnapshot replaces the online set.
func (t *Tracker) SetOnlineSnapshot(ids []int64) {
	t.online = make(map[int64]struct{}, len(ids))
	for _, id := range ids {
		t.online[id] = struct{}{}
	}
}

func (t *Tracker) MarkOnline(id int64) {
	t.online[id] = struct{}{}
}

func (t *Tracker) MarkOffline(id int64) {
	delete(t.online, id)
}

func (t *Tracker) IsOnline(id int64) bool {
	_, ok := t.online[id]
	return ok
}

// OnlineUsers returns the online ids in ascending order.
func (t *Tracker) OnlineUsers() []int64 {
	out := make([]int64, 0, len(t.online))
	for id := range t.online {
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// SetPeerTyping records an inbound typing or stopped-typing event.
func (t *Tracker) SetPeerTyping(peerID int64, typing bool) {
	if typing {
		t.typing[peerID] = true
		return
	}
	delete(t.typing, peerID)
}

func (t *Tracker) PeerTyping(peerID int64) bool {
	return t.typing[peerID]
}

// ResetTyping forgets every inbound typing flag.
func (t *Tracker) ResetTyping() {
	t.typing = make(map[int64]bool)
}

// StartTyping signals that the local user is typing to peerID and sends
// stop-typing once no keystroke has been seen for the timeout.
func (t *Tracker) StartTyping(peerID int64) {
	if t.typingTask.Pending() && t.typingPeer != peerID {
		t.StopTyping()
	}
	t.signal.SendTyping(peerID)
	t.typingPeer = peerID
	if t.typingTask != nil {
		t.typingTask.Reset(t.timeout)
		return
	}
	t.typingTask = t.sched.AfterFunc(t.timeout, func() {
		t.signal.SendStopTyping(t.typingPeer)
	})
}

// StopTyping sends stop-typing now if a typing session is active.
func (t *Tracker) StopTyping() {
	if !t.typingTask.Pending() {
		return
	}
	t.typingTask.Cancel()
	t.signal.SendStopTyping(t.typingPeer)
}

// CancelTyping drops a pending stop-typing signal without sending it.
func (t *Tracker) CancelTyping() {
	t.typingTask.Cancel()
}

// Typing reports whether a local typing session is active.
func (t *Tracker) Typing() bool {
	return t.typingTask.Pending()
}
