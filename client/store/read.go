// Copyright (C) 2025 efchat.net <tj@efchat.net>
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.

package store

import (
	"github.com/efchatnet/efmsg/client/models"
)

// MarkRead applies a read receipt. The first recorded time wins. Receipts
// for messages that are not loaded yet are buffered while a conversation
// is open and dropped otherwise.
func (s *Store) MarkRead(messageID, readerID int64) ReadOutcome {
	if i := s.indexOf(messageID); i >= 0 {
		if s.messages[i].ReadAt != nil {
			return ReadAlreadySet
		}
		now := s.clock.Now()
		s.messages[i].ReadAt = &now
		return ReadApplied
	}
	if !s.open {
		return ReadIgnored
	}
	for _, p := range s.pending {
		if p.MessageID == messageID {
			return ReadBuffered
		}
	}
	if len(s.pending) >= s.opts.MaxPending {
		s.log.Warn("pending read buffer full, dropping oldest", "dropped", s.pending[0].MessageID)
		s.pending = s.pending[1:]
	}
	s.pending = append(s.pending, models.PendingReadEvent{
		MessageID:  messageID,
		ReaderID:   readerID,
		ReceivedAt: s.clock.Now(),
	})
	return ReadBuffered
}

// BeginMarkRead claims the local read of an incoming message. It sets
// ReadAt and returns true only once per message, so callers issue the
// outbound request exactly when it returns true.
func (s *Store) BeginMarkRead(messageID int64) (models.Message, bool) {
	i := s.indexOf(messageID)
	if i < 0 || !s.needsRead(s.messages[i]) {
		return models.Message{}, false
	}
	now := s.clock.Now()
	s.messages[i].ReadAt = &now
	return s.messages[i], true
}

// ReplayPending applies buffered receipts whose message is now loaded and
// returns how many were consumed.
func (s *Store) ReplayPending() int {
	if len(s.pending) == 0 {
		return 0
	}
	kept := s.pending[:0]
	replayed := 0
	for _, p := range s.pending {
		if s.indexOf(p.MessageID) < 0 {
			kept = append(kept, p)
			continue
		}
		s.MarkRead(p.MessageID, p.ReaderID)
		replayed++
	}
	s.pending = kept
	if len(s.pending) == 0 {
		s.pending = nil
	}
	return replayed
}

func (s *Store) replayFor(messageID int64) {
	for i, p := range s.pending {
		if p.MessageID == messageID {
			s.pending = append(s.pending[:i:i], s.pending[i+1:]...)
			s.MarkRead(p.MessageID, p.ReaderID)
			return
		}
	}
}

func (s *Store) dropPending(messageID int64) {
	for i, p := range s.pending {
		if p.MessageID == messageID {
			s.pending = append(s.pending[:i:i], s.pending[i+1:]...)
			return
		}
	}
}

// Pending returns a copy of the buffered read receipts.
func (s *Store) Pending() []models.PendingReadEvent {
	out := make([]models.PendingReadEvent, len(s.pending))
	copy(out, s.pending)
	return out
}
