// Copyright (C) 2025 efchat.net <tj@efchat.net>
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.

// Package redisbus is a hub transport over redis pub/sub, for deployments
// where the message hub fans events out through redis instead of serving
// websockets.
package redisbus

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	apperrors "github.com/efchatnet/efmsg/client/errors"
	"github.com/efchatnet/efmsg/client/logger"
	"github.com/efchatnet/efmsg/client/transport"
)

const (
	// Redis channel names
	userChannelPrefix = "messagehub:user:"    // messagehub:user:{userId} - events for one user
	PresenceChannel   = "messagehub:presence" // online/offline events for everyone
	InvokeChannel     = "messagehub:invoke"   // client -> hub invocations

	publishTimeout = 5 * time.Second
)

// UserChannel returns the channel carrying events addressed to userID.
func UserChannel(userID int64) string {
	return userChannelPrefix + strconv.FormatInt(userID, 10)
}

// Invocation is published on InvokeChannel for every outbound call.
type Invocation struct {
	ConnectionID string        `json:"connectionId"`
	UserID       int64         `json:"userId"`
	AccessToken  string        `json:"accessToken"`
	Target       string        `json:"target"`
	Arguments    []interface{} `json:"arguments"`
}

type Bus struct {
	rdb    *redis.Client
	me     int64
	id     string
	events *transport.Events
	log    *logger.Logger

	mu     sync.Mutex
	state  transport.State
	token  string
	pubsub *redis.PubSub
	binder func(*transport.Events)
}

func NewBus(rdb *redis.Client, userID int64, log *logger.Logger) *Bus {
	if log == nil {
		log = logger.NewNop()
	}
	id := uuid.NewString()
	return &Bus{
		rdb:    rdb,
		me:     userID,
		id:     id,
		events: transport.NewEvents(),
		log:    log.With("connection", id),
	}
}

func (b *Bus) Events() *transport.Events { return b.events }

func (b *Bus) State() transport.State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

func (b *Bus) Bind(attach func(*transport.Events)) {
	b.mu.Lock()
	b.binder = attach
	connected := b.state == transport.Connected
	b.mu.Unlock()

	if connected {
		b.events.ClearHandlers()
		attach(b.events)
	}
}

// Connect subscribes to the user's channel and the presence channel.
// go-redis re-establishes the subscription by itself after a drop.
func (b *Bus) Connect(ctx context.Context, token string) error {
	if token == "" {
		return apperrors.ErrMissingToken
	}

	b.mu.Lock()
	if b.state == transport.Connected {
		b.mu.Unlock()
		return nil
	}
	stale := b.pubsub
	b.pubsub = nil
	b.mu.Unlock()
	if stale != nil {
		stale.Close()
	}

	b.setState(transport.Connecting)
	ps, err := b.subscribe(ctx)
	if err != nil {
		b.setState(transport.Disconnected)
		b.log.Warn("failed to subscribe to message bus", "err", err)
		return apperrors.ErrConnectFailed(err)
	}

	b.mu.Lock()
	b.pubsub = ps
	b.token = token
	b.mu.Unlock()

	b.setState(transport.Connected)
	go b.listen(ps)
	return nil
}

func (b *Bus) subscribe(ctx context.Context) (*redis.PubSub, error) {
	if err := b.rdb.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to ping redis: %w", err)
	}
	ps := b.rdb.Subscribe(ctx, UserChannel(b.me), PresenceChannel)
	// wait for the subscription confirmation
	if _, err := ps.Receive(ctx); err != nil {
		ps.Close()
		return nil, fmt.Errorf("failed to subscribe: %w", err)
	}
	return ps, nil
}

func (b *Bus) listen(ps *redis.PubSub) {
	for msg := range ps.Channel() {
		b.handle(msg.Channel, msg.Payload)
	}
}

func (b *Bus) handle(channel, payload string) {
	if err := b.events.DispatchFrames([]byte(payload)); err != nil {
		b.log.Debug("dropping malformed bus event", "channel", channel, "err", err)
	}
}

func (b *Bus) Disconnect() error {
	b.mu.Lock()
	ps := b.pubsub
	b.pubsub = nil
	b.mu.Unlock()

	var err error
	if ps != nil {
		err = ps.Close()
	}
	b.setState(transport.Disconnected)
	return err
}

func (b *Bus) SendTyping(peerID int64) {
	b.invoke(transport.TargetTyping, peerID)
}

func (b *Bus) SendStopTyping(peerID int64) {
	b.invoke(transport.TargetStopTyping, peerID)
}

func (b *Bus) MarkAsRead(messageID, senderID int64) {
	b.invoke(transport.TargetMarkAsRead, messageID, senderID)
}

func (b *Bus) JoinUserGroup(userID int64) {
	b.invoke(transport.TargetJoinUserGroup, userID)
}

func (b *Bus) LeaveUserGroup(userID int64) {
	b.invoke(transport.TargetLeaveUserGroup, userID)
}

func (b *Bus) invoke(target string, args ...interface{}) {
	b.mu.Lock()
	connected, token := b.state == transport.Connected, b.token
	b.mu.Unlock()

	if !connected {
		b.log.Debug("dropping invocation while not connected", "target", target)
		return
	}
	data, err := json.Marshal(Invocation{
		ConnectionID: b.id,
		UserID:       b.me,
		AccessToken:  token,
		Target:       target,
		Arguments:    args,
	})
	if err != nil {
		b.log.Error("failed to encode invocation", "target", target, "err", err)
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), publishTimeout)
	defer cancel()
	if err := b.rdb.Publish(ctx, InvokeChannel, data).Err(); err != nil {
		b.log.Warn("failed to publish invocation", "target", target, "err", err)
	}
}

// setState records s; entering Connected re-attaches all event handlers.
func (b *Bus) setState(s transport.State) {
	b.mu.Lock()
	if b.state == s {
		b.mu.Unlock()
		return
	}
	b.state = s
	binder := b.binder
	b.mu.Unlock()

	if s == transport.Connected {
		b.events.ClearHandlers()
		if binder != nil {
			binder(b.events)
		}
	}
	b.log.Info("message bus state changed", "state", s.String())
	b.events.States.Publish(s)
}

var _ transport.Hub = (*Bus)(nil)
