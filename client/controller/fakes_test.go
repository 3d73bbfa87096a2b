// Copyright (C) 2025 efchat.net <tj@efchat.net>
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.

package controller

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/stretchr/testify/require"

	"github.com/efchatnet/efmsg/client/logger"
	"github.com/efchatnet/efmsg/client/models"
	"github.com/efchatnet/efmsg/client/transport"
)

const (
	me    int64 = 1
	peerP int64 = 2
	peerQ int64 = 3
)

var t0 = time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)

// fakeHub is an in-memory transport.Hub.
type fakeHub struct {
	events *transport.Events

	mu         sync.Mutex
	state      transport.State
	binder     func(*transport.Events)
	calls      []string
	connectErr error
}

func newFakeHub() *fakeHub {
	return &fakeHub{events: transport.NewEvents()}
}

func (h *fakeHub) Connect(ctx context.Context, token string) error {
	if h.connectErr != nil {
		h.setState(transport.Disconnected)
		return h.connectErr
	}
	h.setState(transport.Connected)
	return nil
}

func (h *fakeHub) Disconnect() error {
	h.setState(transport.Disconnected)
	return nil
}

func (h *fakeHub) State() transport.State {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.state
}

func (h *fakeHub) Events() *transport.Events { return h.events }

func (h *fakeHub) Bind(attach func(*transport.Events)) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.binder = attach
}

func (h *fakeHub) setState(s transport.State) {
	h.mu.Lock()
	if h.state == s {
		h.mu.Unlock()
		return
	}
	h.state = s
	binder := h.binder
	h.mu.Unlock()

	if s == transport.Connected {
		h.events.ClearHandlers()
		if binder != nil {
			binder(h.events)
		}
	}
	h.events.States.Publish(s)
}

func (h *fakeHub) reconnect() {
	h.setState(transport.Reconnecting)
	h.setState(transport.Connected)
}

func (h *fakeHub) record(format string, args ...interface{}) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.calls = append(h.calls, fmt.Sprintf(format, args...))
}

func (h *fakeHub) SendTyping(peerID int64) { h.record("typing:%d", peerID) }
func (h *fakeHub) SendStopTyping(peerID int64) { h.record("stop:%d", peerID) }
func (h *fakeHub) MarkAsRead(messageID, senderID int64) {
	h.record("read:%d:%d", messageID, senderID)
}
func (h *fakeHub) JoinUserGroup(userID int64) { h.record("join:%d", userID) }
func (h *fakeHub) LeaveUserGroup(userID int64) { h.record("leave:%d", userID) }

func (h *fakeHub) getCalls() []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]string(nil), h.calls...)
}

func (h *fakeHub) count(call string) int {
	n := 0
	for _, c := range h.getCalls() {
		if c == call {
			n++
		}
	}
	return n
}

// fakeAPI is an in-memory restapi.API.
type fakeAPI struct {
	now func() time.Time

	mu            sync.Mutex
	conversations []models.ConversationSummary
	convErr       error
	convCalls     int
	likes         []models.Member
	unread        int
	history       map[int64][]models.Message
	historyGate   map[int64]chan struct{}
	sendErr       error
	nextID        int64
	deleteOK      bool
	deleteErr     error
	markReads     []int64
	deletes       []int64
}

func newFakeAPI(now func() time.Time) *fakeAPI {
	return &fakeAPI{
		now:         now,
		history:     make(map[int64][]models.Message),
		historyGate: make(map[int64]chan struct{}),
		nextID:      100,
		deleteOK:    true,
	}
}

func (a *fakeAPI) GetConversations(ctx context.Context) ([]models.ConversationSummary, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.convCalls++
	if a.convErr != nil {
		return nil, a.convErr
	}
	return append([]models.ConversationSummary(nil), a.conversations...), nil
}

func (a *fakeAPI) GetMessages(ctx context.Context, peerID int64) ([]models.Message, error) {
	a.mu.Lock()
	gate := a.historyGate[peerID]
	a.mu.Unlock()
	if gate != nil {
		<-gate
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]models.Message(nil), a.history[peerID]...), nil
}

func (a *fakeAPI) SendMessage(ctx context.Context, msg models.CreateMessage) (models.Message, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.sendErr != nil {
		return models.Message{}, a.sendErr
	}
	a.nextID++
	return models.Message{
		ID:          a.nextID,
		SenderID:    me,
		RecipientID: msg.RecipientID,
		Content:     msg.Content,
		Emoji:       msg.Emoji,
		SentAt:      a.now(),
	}, nil
}

func (a *fakeAPI) MarkRead(ctx context.Context, messageID int64) (bool, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.markReads = append(a.markReads, messageID)
	return true, nil
}

func (a *fakeAPI) DeleteMessage(ctx context.Context, messageID int64) (bool, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.deletes = append(a.deletes, messageID)
	return a.deleteOK, a.deleteErr
}

func (a *fakeAPI) UnreadCount(ctx context.Context) (int, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.unread, nil
}

func (a *fakeAPI) GetMyLikes(ctx context.Context) ([]models.Member, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]models.Member(nil), a.likes...), nil
}

func (a *fakeAPI) getMarkReads() []int64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]int64(nil), a.markReads...)
}

func (a *fakeAPI) getConvCalls() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.convCalls
}

type harness struct {
	c   *Controller
	hub *fakeHub
	api *fakeAPI
	clk *clock.Mock
}

func newHarness(t *testing.T) *harness {
	clk := clock.NewMock()
	clk.Set(t0)
	hub := newFakeHub()
	api := newFakeAPI(clk.Now)

	c, err := New(Options{
		UserID: me,
		Token:  "tok",
		Hub:    hub,
		API:    api,
		Clock:  clk,
		Logger: logger.NewNop(),
	})
	require.NoError(t, err)
	t.Cleanup(func() { c.Stop() })
	return &harness{c: c, hub: hub, api: api, clk: clk}
}

func (h *harness) start(t *testing.T) {
	require.NoError(t, h.c.Start(context.Background()))
	h.settle(t)
}

// settle waits until everything posted to the loop so far has run.
func (h *harness) settle(t *testing.T) {
	require.NoError(t, h.c.loop.Do(func() {}))
}

func (h *harness) open(t *testing.T, peer int64) {
	require.NoError(t, h.c.Select(context.Background(), models.ConversationSummary{PeerID: peer}))
}

func (h *harness) emitMessage(t *testing.T, fields map[string]interface{}) {
	raw := models.RawMessage{}
	for k, v := range fields {
		b, err := json.Marshal(v)
		require.NoError(t, err)
		raw[k] = b
	}
	h.hub.events.Messages.Publish(raw)
	h.settle(t)
}

func msg(id, from, to int64, content string, at time.Time) models.Message {
	return models.Message{ID: id, SenderID: from, RecipientID: to, Content: content, SentAt: at}
}

func ids(list []models.Message) []int64 {
	out := make([]int64, 0, len(list))
	for _, m := range list {
		out = append(out, m.ID)
	}
	return out
}
