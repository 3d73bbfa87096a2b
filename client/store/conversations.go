// Copyright (C) 2025 efchat.net <tj@efchat.net>
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.

package store

import (
	"time"

	"github.com/efchatnet/efmsg/client/models"
)

// SetConversations replaces the conversation list wholesale.
func (s *Store) SetConversations(list []models.ConversationSummary) {
	s.conversations = make([]models.ConversationSummary, len(list))
	copy(s.conversations, list)
	if s.open {
		if i := s.summaryIndex(s.peer.PeerID); i >= 0 {
			s.conversations[i].LastMessage = s.peer.LastMessage
			s.conversations[i].LastMessageAt = s.peer.LastMessageAt
			s.conversations[i].UnreadCount = 0
		}
	}
}

// Conversations returns a copy of the conversation list, most recent first.
func (s *Store) Conversations() []models.ConversationSummary {
	out := make([]models.ConversationSummary, len(s.conversations))
	copy(out, s.conversations)
	return out
}

// Summary returns the list entry for peerID.
func (s *Store) Summary(peerID int64) (models.ConversationSummary, bool) {
	if i := s.summaryIndex(peerID); i >= 0 {
		return s.conversations[i], true
	}
	return models.ConversationSummary{}, false
}

// UnreadTotal sums unread counts across the conversation list.
func (s *Store) UnreadTotal() int {
	total := 0
	for _, c := range s.conversations {
		total += c.UnreadCount
	}
	return total
}

func (s *Store) summaryIndex(peerID int64) int {
	for i := range s.conversations {
		if s.conversations[i].PeerID == peerID {
			return i
		}
	}
	return -1
}

// touchSummary records m as the latest message with peerID and moves the
// entry to the front. Unread only grows for messages from the peer.
func (s *Store) touchSummary(peerID int64, m models.Message, countUnread bool) {
	mine := m.SenderID == s.me

	i := s.summaryIndex(peerID)
	var entry models.ConversationSummary
	if i >= 0 {
		entry = s.conversations[i]
		s.conversations = append(s.conversations[:i:i], s.conversations[i+1:]...)
	} else {
		entry = models.ConversationSummary{PeerID: peerID}
		if mine {
			entry.PeerUsername = m.RecipientUsername
		} else {
			entry.PeerUsername = m.SenderUsername
		}
	}
	entry.LastMessage = m.Content
	entry.LastMessageAt = m.SentAt
	switch {
	case mine:
		entry.UnreadCount = 0
	case countUnread:
		entry.UnreadCount++
	}
	s.conversations = append([]models.ConversationSummary{entry}, s.conversations...)

	if s.IsOpen(peerID) {
		s.peer.LastMessage = entry.LastMessage
		s.peer.LastMessageAt = entry.LastMessageAt
		s.peer.UnreadCount = 0
	}
}

// refreshPreview derives the open conversation's preview from the tail of
// the message list, clearing it when the list is empty.
func (s *Store) refreshPreview() {
	if !s.open {
		return
	}
	text, at := "", time.Time{}
	if n := len(s.messages); n > 0 {
		text, at = s.messages[n-1].Content, s.messages[n-1].SentAt
	}
	s.peer.LastMessage = text
	s.peer.LastMessageAt = at
	if i := s.summaryIndex(s.peer.PeerID); i >= 0 {
		s.conversations[i].LastMessage = text
		s.conversations[i].LastMessageAt = at
	}
}
