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

package notify

import (
	"sync"
	"time"
	"unicode/utf8"

	"github.com/benbjohnson/clock"

	"github.com/efchatnet/efmsg/client/models"
)

const (
	DefaultCooldown      = 3 * time.Minute
	DefaultPreviewLength = 50
	ellipsis             = "..."
)

// Gate decides whether a live message deserves a user-facing notification.
type Gate struct {
	clock      clock.Clock
	cooldown   time.Duration
	previewLen int

	mu           sync.Mutex
	currentPeer  int64
	hasPeer      bool
	lastNotified map[int64]time.Time
}

func NewGate(clk clock.Clock, cooldown time.Duration, previewLen int) *Gate {
	if cooldown <= 0 {
		cooldown = DefaultCooldown
	}
	if previewLen <= 0 {
		previewLen = DefaultPreviewLength
	}
	return &Gate{
		clock:        clk,
		cooldown:     cooldown,
		previewLen:   previewLen,
		lastNotified: make(map[int64]time.Time),
	}
}

// SetCurrentChatPeer suppresses notifications from peerID while its
// conversation is on screen.
func (g *Gate) SetCurrentChatPeer(peerID int64) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.currentPeer = peerID
	g.hasPeer = true
}

// ClearCurrentChatPeer is called when the conversation view closes.
func (g *Gate) ClearCurrentChatPeer() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.currentPeer = 0
	g.hasPeer = false
}

// CurrentChatPeer returns the suppressed peer, if any.
func (g *Gate) CurrentChatPeer() (int64, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.currentPeer, g.hasPeer
}

// ShouldNotify reports whether senderID may be notified now and, if so,
// starts its cooldown.
func (g *Gate) ShouldNotify(senderID int64) bool {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.hasPeer && g.currentPeer == senderID {
		return false
	}
	now := g.clock.Now()
	if last, ok := g.lastNotified[senderID]; ok && now.Sub(last) < g.cooldown {
		return false
	}
	g.lastNotified[senderID] = now
	return true
}

// Build turns an accepted message into a notification. open is invoked
// when the user interacts with it.
func (g *Gate) Build(m models.Message, open func()) models.Notification {
	name := m.SenderUsername
	if name == "" {
		name = "Someone"
	}
	return models.Notification{
		MessageID:  m.ID,
		SenderID:   m.SenderID,
		SenderName: name,
		Preview:    Truncate(m.Content, g.previewLen),
		ReceivedAt: g.clock.Now(),
		Open:       open,
	}
}

// Truncate shortens s to max characters, marking the cut with an ellipsis.
func Truncate(s string, max int) string {
	if utf8.RuneCountInString(s) <= max {
		return s
	}
	runes := []rune(s)
	return string(runes[:max]) + ellipsis
}
