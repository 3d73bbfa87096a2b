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

// Package store holds the in-memory state of the open conversation and the
// conversation list. A Store is not safe for concurrent use; it is owned by
// the controller loop.
package store

import (
	"time"

	"github.com/benbjohnson/clock"

	"github.com/efchatnet/efmsg/client/logger"
	"github.com/efchatnet/efmsg/client/models"
)

type Outcome int

const (
	Rejected Outcome = iota
	Duplicate
	Appended
	SummaryOnly
)

func (o Outcome) String() string {
	switch o {
	case Duplicate:
		return "duplicate"
	case Appended:
		return "appended"
	case SummaryOnly:
		return "summary_only"
	default:
		return "rejected"
	}
}

// Result describes what ApplyIncoming or RecordSent did with a message.
type Result struct {
	Outcome Outcome
	Message models.Message
	PeerID  int64
}

type ReadOutcome int

const (
	ReadIgnored ReadOutcome = iota
	ReadApplied
	ReadAlreadySet
	ReadBuffered
)

type Options struct {
	DedupWindow time.Duration
	MaxPending  int
}

func DefaultOptions() Options {
	return Options{DedupWindow: time.Second, MaxPending: 256}
}

type Store struct {
	me    int64
	clock clock.Clock
	opts  Options
	log   *logger.Logger

	open     bool
	peer     models.ConversationSummary
	messages []models.Message
	pending  []models.PendingReadEvent

	conversations []models.ConversationSummary
	nextSynthetic int64
}

func New(me int64, clk clock.Clock, opts Options, log *logger.Logger) *Store {
	if opts.DedupWindow <= 0 {
		opts.DedupWindow = time.Second
	}
	if opts.MaxPending <= 0 {
		opts.MaxPending = DefaultOptions().MaxPending
	}
	return &Store{me: me, clock: clk, opts: opts, log: log}
}

// Me returns the local user's id.
func (s *Store) Me() int64 { return s.me }

// Open makes peer the open conversation, discarding any previous one.
func (s *Store) Open(peer models.ConversationSummary) {
	s.Close()
	s.open = true
	s.peer = peer
	if existing, ok := s.Summary(peer.PeerID); ok {
		s.peer = existing
	}
}

// Close clears the open message list and every buffered read event.
func (s *Store) Close() {
	s.open = false
	s.peer = models.ConversationSummary{}
	s.messages = nil
	s.pending = nil
}

// IsOpen reports whether a conversation with peerID is open.
func (s *Store) IsOpen(peerID int64) bool {
	return s.open && s.peer.PeerID == peerID
}

// OpenPeer returns the summary of the open conversation.
func (s *Store) OpenPeer() (models.ConversationSummary, bool) {
	return s.peer, s.open
}

// Messages returns a copy of the open conversation in arrival order.
func (s *Store) Messages() []models.Message {
	out := make([]models.Message, len(s.messages))
	copy(out, s.messages)
	return out
}

// Message looks a message up by id in the open conversation.
func (s *Store) Message(id int64) (models.Message, bool) {
	if i := s.indexOf(id); i >= 0 {
		return s.messages[i], true
	}
	return models.Message{}, false
}

// LoadHistory replaces the open list for peerID with history. Live messages
// that arrived while the history request was in flight are kept after it.
// It returns the ids of unread messages addressed to the local user.
func (s *Store) LoadHistory(peerID int64, history []models.Message) []int64 {
	if !s.IsOpen(peerID) {
		s.Open(models.ConversationSummary{PeerID: peerID})
	}

	live := s.messages
	s.messages = make([]models.Message, 0, len(history)+len(live))
	for _, m := range history {
		if !m.Involves(s.me) || !m.Involves(peerID) {
			s.log.Debug("dropping history message outside conversation", "id", m.ID, "peer", peerID)
			continue
		}
		if m.ID == 0 {
			s.assignSynthetic(&m)
		}
		if m.SentAt.IsZero() {
			m.SentAt = s.clock.Now()
		}
		if s.findDuplicate(m) >= 0 {
			continue
		}
		s.messages = append(s.messages, m)
	}
	for _, m := range live {
		if i := s.findDuplicate(m); i >= 0 {
			if s.messages[i].ReadAt == nil && m.ReadAt != nil {
				s.messages[i].ReadAt = m.ReadAt
			}
			continue
		}
		s.messages = append(s.messages, m)
	}

	s.ReplayPending()

	if i := s.summaryIndex(peerID); i >= 0 {
		s.conversations[i].UnreadCount = 0
	}
	s.peer.UnreadCount = 0
	if len(s.messages) > 0 {
		s.refreshPreview()
	}

	var unread []int64
	for _, m := range s.messages {
		if s.needsRead(m) {
			unread = append(unread, m.ID)
		}
	}
	return unread
}

// ApplyIncoming normalizes a live payload and merges it.
func (s *Store) ApplyIncoming(raw models.RawMessage) (Result, error) {
	m, err := models.Normalize(raw)
	if err != nil {
		return Result{Outcome: Rejected}, err
	}
	return s.merge(m), nil
}

// RecordSent merges the server's response to a local send so that a later
// hub echo of the same message is recognised as a duplicate.
func (s *Store) RecordSent(m models.Message) Result {
	return s.merge(m)
}

func (s *Store) merge(m models.Message) Result {
	if m.ID == 0 {
		s.assignSynthetic(&m)
	}
	if m.SentAt.IsZero() {
		m.SentAt = s.clock.Now()
	}
	peerID := m.PeerOf(s.me)
	res := Result{Message: m, PeerID: peerID}

	if !s.IsOpen(peerID) {
		s.touchSummary(peerID, m, true)
		res.Outcome = SummaryOnly
		return res
	}

	if i := s.findDuplicate(m); i >= 0 {
		existing := &s.messages[i]
		if existing.Synthetic && !m.Synthetic {
			// the server id arrived after a synthetic copy; adopt it
			existing.ID = m.ID
			existing.Synthetic = false
			s.replayFor(existing.ID)
		}
		if existing.ReadAt == nil && m.ReadAt != nil {
			existing.ReadAt = m.ReadAt
		}
		res.Outcome = Duplicate
		res.Message = *existing
		return res
	}

	s.messages = append(s.messages, m)
	s.touchSummary(peerID, m, false)
	res.Outcome = Appended
	return res
}

// DeleteMessage removes a message from the open list and recomputes the
// conversation preview from the new tail.
func (s *Store) DeleteMessage(id int64) (models.Message, int, bool) {
	i := s.indexOf(id)
	if i < 0 {
		return models.Message{}, -1, false
	}
	removed := s.messages[i]
	s.messages = append(s.messages[:i:i], s.messages[i+1:]...)
	s.dropPending(id)
	s.refreshPreview()
	return removed, i, true
}

// RestoreMessage puts back a message removed by DeleteMessage.
func (s *Store) RestoreMessage(m models.Message, index int) {
	if !s.IsOpen(m.PeerOf(s.me)) || s.indexOf(m.ID) >= 0 {
		return
	}
	if index < 0 || index > len(s.messages) {
		index = len(s.messages)
	}
	s.messages = append(s.messages[:index:index], append([]models.Message{m}, s.messages[index:]...)...)
	s.refreshPreview()
}

func (s *Store) indexOf(id int64) int {
	for i := range s.messages {
		if s.messages[i].ID == id {
			return i
		}
	}
	return -1
}

// findDuplicate returns the index of an existing message m duplicates, or -1.
// Two server ids match exactly; when either side has a synthetic id the
// sender, content and a send time within the dedup window must match.
func (s *Store) findDuplicate(m models.Message) int {
	for i := range s.messages {
		e := &s.messages[i]
		if !e.Synthetic && !m.Synthetic {
			if e.ID == m.ID {
				return i
			}
			continue
		}
		if e.SenderID == m.SenderID && e.Content == m.Content && within(e.SentAt, m.SentAt, s.opts.DedupWindow) {
			return i
		}
	}
	return -1
}

func within(a, b time.Time, window time.Duration) bool {
	d := a.Sub(b)
	if d < 0 {
		d = -d
	}
	return d < window
}

func (s *Store) assignSynthetic(m *models.Message) {
	s.nextSynthetic--
	m.ID = s.nextSynthetic
	m.Synthetic = true
}

func (s *Store) needsRead(m models.Message) bool {
	return m.ReadAt == nil && m.RecipientID == s.me && m.SenderID != s.me && !m.Synthetic
}
