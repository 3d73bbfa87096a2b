// Copyright (C) 2025 efchat.net <tj@efchat.net>
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.

package notify

import (
	"strings"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/stretchr/testify/assert"

	"github.com/efchatnet/efmsg/client/models"
)

func TestGate_SuppressesOpenConversation(t *testing.T) {
	g := NewGate(clock.NewMock(), 0, 0)

	g.SetCurrentChatPeer(7)
	assert.False(t, g.ShouldNotify(7))
	assert.True(t, g.ShouldNotify(8))

	g.ClearCurrentChatPeer()
	assert.True(t, g.ShouldNotify(7), "suppression ends when the view closes")
}

func TestGate_Cooldown(t *testing.T) {
	clk := clock.NewMock()
	g := NewGate(clk, 3*time.Minute, 0)

	assert.True(t, g.ShouldNotify(7))
	clk.Add(179 * time.Second)
	assert.False(t, g.ShouldNotify(7))
	assert.True(t, g.ShouldNotify(9), "cooldown is per sender")

	clk.Add(time.Second)
	assert.True(t, g.ShouldNotify(7))
	assert.False(t, g.ShouldNotify(7))
}

func TestGate_SuppressedMessageDoesNotStartCooldown(t *testing.T) {
	g := NewGate(clock.NewMock(), 0, 0)
	g.SetCurrentChatPeer(7)
	assert.False(t, g.ShouldNotify(7))
	g.ClearCurrentChatPeer()
	assert.True(t, g.ShouldNotify(7))
}

func TestGate_Build(t *testing.T) {
	clk := clock.NewMock()
	g := NewGate(clk, 0, 50)
	opened := false

	long := strings.Repeat("ä", 60)
	n := g.Build(models.Message{ID: 3, SenderID: 7, SenderUsername: "ana", Content: long}, func() { opened = true })

	assert.Equal(t, int64(3), n.MessageID)
	assert.Equal(t, "ana", n.SenderName)
	assert.Equal(t, strings.Repeat("ä", 50)+"...", n.Preview)
	n.Open()
	assert.True(t, opened)
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "short", Truncate("short", 50))
	assert.Equal(t, strings.Repeat("x", 50), Truncate(strings.Repeat("x", 50), 50))
	assert.Equal(t, "abc...", Truncate("abcdef", 3))
}
