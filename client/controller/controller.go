// Copyright (C) 2025 efchat.net <tj@efchat.net>
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

// Package controller drives the messaging screen. Every state change runs
// on a single event loop; REST calls run on the caller's goroutine and
// hand their results back to the loop.
package controller

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/benbjohnson/clock"

	"github.com/efchatnet/efmsg/client/broadcast"
	"github.com/efchatnet/efmsg/client/config"
	apperrors "github.com/efchatnet/efmsg/client/errors"
	"github.com/efchatnet/efmsg/client/logger"
	"github.com/efchatnet/efmsg/client/loop"
	"github.com/efchatnet/efmsg/client/models"
	"github.com/efchatnet/efmsg/client/notify"
	"github.com/efchatnet/efmsg/client/presence"
	"github.com/efchatnet/efmsg/client/restapi"
	"github.com/efchatnet/efmsg/client/store"
	"github.com/efchatnet/efmsg/client/transport"
)

var ErrDeleteRejected = apperrors.New(apperrors.CodeRequest, "server refused to delete the message")

type Options struct {
	UserID         int64
	Token          string
	Hub            transport.Hub
	API            restapi.API
	Messaging      config.MessagingConfig
	RequestTimeout time.Duration
	Clock          clock.Clock
	Logger         *logger.Logger
}

type Controller struct {
	me      int64
	token   string
	hub     transport.Hub
	api     restapi.API
	cfg     config.MessagingConfig
	timeout time.Duration
	log     *logger.Logger
	loop    *loop.Loop

	// owned by the loop
	store        *store.Store
	presence     *presence.Tracker
	gate         *notify.Gate
	state        State
	gen          uint64
	likedUsers   []models.Member
	draft        string
	focused      bool
	serverUnread int
	connection   transport.State
	joined       bool
	scrollSeq    uint64
	readTimers   map[int64]*loop.Task
	replayTask   *loop.Task

	changes       *broadcast.Broadcaster[View]
	notifications *broadcast.Broadcaster[models.Notification]
	stateSub      broadcast.Subscription

	viewMu sync.Mutex
	view   View

	ctx    context.Context
	cancel context.CancelFunc
}

func New(opts Options) (*Controller, error) {
	if opts.UserID == 0 {
		return nil, apperrors.InvalidArg("user id is required")
	}
	if opts.Hub == nil || opts.API == nil {
		return nil, apperrors.InvalidArg("hub and api are required")
	}
	if opts.Clock == nil {
		opts.Clock = clock.New()
	}
	if opts.Logger == nil {
		opts.Logger = logger.NewNop()
	}
	if opts.RequestTimeout <= 0 {
		opts.RequestTimeout = 15 * time.Second
	}
	cfg := withDefaults(opts.Messaging)
	log := opts.Logger.Named("controller")

	l := loop.New(opts.Clock, log)
	ctx, cancel := context.WithCancel(context.Background())
	c := &Controller{
		me:      opts.UserID,
		token:   opts.Token,
		hub:     opts.Hub,
		api:     opts.API,
		cfg:     cfg,
		timeout: opts.RequestTimeout,
		log:     log,
		loop:    l,
		store: store.New(opts.UserID, opts.Clock, store.Options{
			DedupWindow: cfg.DedupWindow,
			MaxPending:  cfg.MaxPendingReads,
		}, log.Named("store")),
		presence:      presence.New(l, opts.Hub, cfg.TypingTimeout),
		gate:          notify.NewGate(opts.Clock, cfg.NotifyCooldown, cfg.PreviewLength),
		connection:    opts.Hub.State(),
		readTimers:    make(map[int64]*loop.Task),
		changes:       broadcast.New[View](),
		notifications: broadcast.New[models.Notification](),
		ctx:           ctx,
		cancel:        cancel,
	}
	c.view = c.snapshot()
	return c, nil
}

func withDefaults(m config.MessagingConfig) config.MessagingConfig {
	d := config.DefaultMessaging()
	if m.TypingTimeout <= 0 {
		m.TypingTimeout = d.TypingTimeout
	}
	if m.AutoReadDelay <= 0 {
		m.AutoReadDelay = d.AutoReadDelay
	}
	if m.ReplayDelay <= 0 {
		m.ReplayDelay = d.ReplayDelay
	}
	if m.DedupWindow <= 0 {
		m.DedupWindow = d.DedupWindow
	}
	if m.NotifyCooldown <= 0 {
		m.NotifyCooldown = d.NotifyCooldown
	}
	if m.PreviewLength <= 0 {
		m.PreviewLength = d.PreviewLength
	}
	if m.MaxPendingReads <= 0 {
		m.MaxPendingReads = d.MaxPendingReads
	}
	return m
}

// Start attaches to the hub, connects it and loads the conversation list
// and liked users in parallel. A hub that cannot be reached is logged and
// does not fail Start; REST stays usable without it.
func (c *Controller) Start(ctx context.Context) error {
	c.hub.Bind(c.attach)
	c.stateSub = c.hub.Events().States.Subscribe(func(s transport.State) {
		c.loop.Post(func() { c.onConnectionState(s) })
	})

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := c.hub.Connect(ctx, c.token); err != nil {
			c.log.Warn("message hub unavailable, continuing without live updates", "err", err)
		}
	}()
	err := c.RefreshConversations(ctx)
	wg.Wait()
	return err
}

// Stop leaves the user group, disconnects the hub and stops the loop.
func (c *Controller) Stop() error {
	var joined bool
	_ = c.loop.Do(func() {
		c.closeConversation()
		c.state = Idle
		joined = c.joined
		c.joined = false
	})
	if joined {
		c.hub.LeaveUserGroup(c.me)
	}
	if c.stateSub != nil {
		c.stateSub.Cancel()
	}
	err := c.hub.Disconnect()
	c.hub.Events().ClearHandlers()
	c.cancel()
	c.loop.Stop()
	return err
}

// View returns the latest snapshot.
func (c *Controller) View() View {
	c.viewMu.Lock()
	defer c.viewMu.Unlock()
	return c.view
}

// OnChange subscribes fn to every new View. fn runs on the loop and must
// not call back into the controller synchronously.
func (c *Controller) OnChange(fn func(View)) broadcast.Subscription {
	return c.changes.Subscribe(fn)
}

// OnNotify subscribes fn to notifications for messages from peers whose
// conversation is not on screen. The same rules as OnChange apply.
func (c *Controller) OnNotify(fn func(models.Notification)) broadcast.Subscription {
	return c.notifications.Subscribe(fn)
}

// RefreshConversations reloads the conversation list, the server unread
// count and the liked users. Failures degrade to empty lists.
func (c *Controller) RefreshConversations(ctx context.Context) error {
	var (
		wg            sync.WaitGroup
		conversations []models.ConversationSummary
		likes         []models.Member
		unread        int
		convErr       error
	)
	rctx, cancel := c.requestContext(ctx)
	defer cancel()

	wg.Add(3)
	go func() {
		defer wg.Done()
		conversations, convErr = c.api.GetConversations(rctx)
		if convErr != nil {
			c.log.Warn("failed to load conversations", "err", convErr)
		}
	}()
	go func() {
		defer wg.Done()
		var err error
		if likes, err = c.api.GetMyLikes(rctx); err != nil {
			c.log.Warn("failed to load liked users", "err", err)
		}
	}()
	go func() {
		defer wg.Done()
		var err error
		if unread, err = c.api.UnreadCount(rctx); err != nil {
			c.log.Warn("failed to load unread count", "err", err)
		}
	}()
	wg.Wait()

	return c.loop.Do(func() {
		if convErr == nil {
			c.store.SetConversations(conversations)
		}
		c.likedUsers = likes
		c.serverUnread = unread
		c.publish()
	})
}

// Select opens the conversation with peer and loads its history.
func (c *Controller) Select(ctx context.Context, peer models.ConversationSummary) error {
	if peer.PeerID == 0 || peer.PeerID == c.me {
		return apperrors.InvalidArg("invalid conversation peer")
	}
	var gen uint64
	if err := c.loop.Do(func() { gen = c.beginSelect(peer) }); err != nil {
		return err
	}

	rctx, cancel := c.requestContext(ctx)
	history, err := c.api.GetMessages(rctx, peer.PeerID)
	cancel()
	if err != nil {
		c.log.Warn("failed to load message history", "peer", peer.PeerID, "err", err)
		history = nil
	}
	return c.loop.Do(func() { c.finishLoad(gen, peer.PeerID, history) })
}

// StartChatWithUser opens a conversation with a member from the liked
// users list.
func (c *Controller) StartChatWithUser(ctx context.Context, member models.Member) error {
	return c.Select(ctx, member.Summary())
}

// SelectPeer opens the conversation with peerID, taking the summary from
// the conversation list or the liked users when present.
func (c *Controller) SelectPeer(ctx context.Context, peerID int64) error {
	var summary models.ConversationSummary
	if err := c.loop.Do(func() { summary = c.summaryFor(peerID) }); err != nil {
		return err
	}
	return c.Select(ctx, summary)
}

func (c *Controller) summaryFor(peerID int64) models.ConversationSummary {
	if s, ok := c.store.Summary(peerID); ok {
		return s
	}
	for _, m := range c.likedUsers {
		if m.ID == peerID {
			return m.Summary()
		}
	}
	return models.ConversationSummary{PeerID: peerID}
}

func (c *Controller) beginSelect(peer models.ConversationSummary) uint64 {
	c.closeConversation()
	c.gen++
	c.state = Loading
	c.store.Open(peer)
	c.gate.SetCurrentChatPeer(peer.PeerID)
	c.publish()
	return c.gen
}

func (c *Controller) finishLoad(gen uint64, peerID int64, history []models.Message) {
	if gen != c.gen || !c.store.IsOpen(peerID) {
		c.log.Debug("discarding stale history response", "peer", peerID)
		return
	}
	unread := c.store.LoadHistory(peerID, history)
	c.state = Open
	c.scrollSeq++
	for _, id := range unread {
		c.markRead(id)
	}
	c.scheduleReplay()
	c.publish()
}

// Back closes the open conversation and returns to the list, refetching
// it when nothing is cached.
func (c *Controller) Back(ctx context.Context) error {
	var refetch bool
	err := c.loop.Do(func() {
		c.closeConversation()
		c.gen++
		c.state = Idle
		refetch = len(c.store.Conversations()) == 0
		c.publish()
	})
	if err != nil || !refetch {
		return err
	}
	return c.RefreshConversations(ctx)
}

// closeConversation tears down everything scoped to the open conversation.
func (c *Controller) closeConversation() {
	for id, t := range c.readTimers {
		t.Cancel()
		delete(c.readTimers, id)
	}
	c.replayTask.Cancel()
	c.replayTask = nil
	c.presence.CancelTyping()
	c.presence.ResetTyping()
	c.store.Close()
	c.gate.ClearCurrentChatPeer()
	c.draft = ""
}

// Send posts text to the open conversation. The draft is cleared at once
// and put back if the request fails.
func (c *Controller) Send(ctx context.Context, text, emoji string) error {
	content := strings.TrimSpace(text)
	if content == "" {
		return apperrors.ErrEmptyMessage
	}

	var (
		peerID int64
		gen    uint64
		noPeer bool
	)
	err := c.loop.Do(func() {
		peer, ok := c.store.OpenPeer()
		if !ok {
			noPeer = true
			return
		}
		peerID, gen = peer.PeerID, c.gen
		c.draft = ""
		c.presence.StopTyping()
		c.publish()
	})
	if err != nil {
		return err
	}
	if noPeer {
		return apperrors.ErrNoConversation
	}

	rctx, cancel := c.requestContext(ctx)
	sent, err := c.api.SendMessage(rctx, models.CreateMessage{RecipientID: peerID, Content: content, Emoji: emoji})
	cancel()
	if err != nil {
		c.log.Warn("failed to send message", "peer", peerID, "err", err)
		_ = c.loop.Do(func() {
			if gen == c.gen && c.draft == "" {
				c.draft = content
				c.publish()
			}
		})
		return err
	}

	return c.loop.Do(func() {
		res := c.store.RecordSent(sent)
		if res.Outcome == store.Appended {
			c.scrollSeq++
			c.scheduleReplay()
		}
		c.publish()
	})
}

// Input records the draft and drives the outbound typing signal.
func (c *Controller) Input(text string) error {
	return c.loop.Do(func() {
		c.draft = text
		peer, ok := c.store.OpenPeer()
		switch {
		case !ok:
		case strings.TrimSpace(text) == "":
			c.presence.StopTyping()
		default:
			c.presence.StartTyping(peer.PeerID)
		}
		c.publish()
	})
}

// MarkRead marks one message of the open conversation as read.
func (c *Controller) MarkRead(messageID int64) error {
	return c.loop.Do(func() {
		if c.markRead(messageID) {
			c.publish()
		}
	})
}

// markRead sets ReadAt locally and tells the server, at most once per
// message.
func (c *Controller) markRead(messageID int64) bool {
	m, ok := c.store.BeginMarkRead(messageID)
	if !ok {
		return false
	}
	if t, ok := c.readTimers[messageID]; ok {
		t.Cancel()
		delete(c.readTimers, messageID)
	}
	c.hub.MarkAsRead(m.ID, m.SenderID)
	go func() {
		ctx, cancel := c.requestContext(c.ctx)
		defer cancel()
		ok, err := c.api.MarkRead(ctx, m.ID)
		if err != nil || !ok {
			c.log.Warn("failed to mark message as read", "id", m.ID, "err", err)
		}
	}()
	return true
}

// Delete removes a message optimistically and restores it when the server
// refuses.
func (c *Controller) Delete(ctx context.Context, messageID int64) error {
	var (
		removed models.Message
		index   int
		found   bool
		gen     uint64
	)
	err := c.loop.Do(func() {
		removed, index, found = c.store.DeleteMessage(messageID)
		gen = c.gen
		if found {
			c.publish()
		}
	})
	if err != nil {
		return err
	}
	if !found {
		return apperrors.NotFound("message not found")
	}
	if removed.Synthetic {
		return nil
	}

	rctx, cancel := c.requestContext(ctx)
	ok, err := c.api.DeleteMessage(rctx, messageID)
	cancel()
	if err == nil && ok {
		return nil
	}
	if err == nil {
		err = ErrDeleteRejected
	}
	c.log.Warn("failed to delete message", "id", messageID, "err", err)
	_ = c.loop.Do(func() {
		if gen == c.gen {
			c.store.RestoreMessage(removed, index)
			c.publish()
		}
	})
	return err
}

// SetFocus records whether the conversation is visible to the user.
// Regaining focus schedules reads for messages that arrived meanwhile.
func (c *Controller) SetFocus(focused bool) error {
	return c.loop.Do(func() {
		c.focused = focused
		if !focused {
			for id, t := range c.readTimers {
				t.Cancel()
				delete(c.readTimers, id)
			}
		} else if c.state == Open {
			for _, m := range c.store.Messages() {
				if m.ReadAt == nil && m.SenderID != c.me && !m.Synthetic {
					c.scheduleAutoRead(m.ID)
				}
			}
		}
		c.publish()
	})
}

func (c *Controller) scheduleAutoRead(messageID int64) {
	if _, ok := c.readTimers[messageID]; ok {
		return
	}
	c.readTimers[messageID] = c.loop.AfterFunc(c.cfg.AutoReadDelay, func() {
		delete(c.readTimers, messageID)
		if c.markRead(messageID) {
			c.publish()
		}
	})
}

// scheduleReplay retries buffered read receipts once the list settles.
func (c *Controller) scheduleReplay() {
	if c.replayTask != nil {
		c.replayTask.Reset(c.cfg.ReplayDelay)
		return
	}
	c.replayTask = c.loop.AfterFunc(c.cfg.ReplayDelay, func() {
		if c.store.ReplayPending() > 0 {
			c.publish()
		}
	})
}

func (c *Controller) requestContext(parent context.Context) (context.Context, context.CancelFunc) {
	if parent == nil {
		parent = c.ctx
	}
	return context.WithTimeout(parent, c.timeout)
}
