// Copyright (C) 2025 efchat.net <tj@efchat.net>
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.

package models

import (
	"encoding/json"
	"time"
)

// Message represents a direct message between the local user and a peer.
// ReadAt is nil while the message is unread.
type Message struct {
	ID                int64      `json:"id"`
	SenderID          int64      `json:"senderId"`
	SenderUsername    string     `json:"senderUsername"`
	RecipientID       int64      `json:"recipientId"`
	RecipientUsername string     `json:"recipientUsername"`
	Content           string     `json:"content"`
	Emoji             string     `json:"emoji,omitempty"`
	SentAt            time.Time  `json:"messageSent"`
	ReadAt            *time.Time `json:"dateRead,omitempty"`

	// Synthetic is set when ID was assigned locally because the payload
	// carried none.
	Synthetic bool `json:"synthetic,omitempty"`
}

// IsRead reports whether the message has a read timestamp.
func (m *Message) IsRead() bool { return m.ReadAt != nil }

// Involves reports whether userID is the sender or the recipient.
func (m *Message) Involves(userID int64) bool {
	return m.SenderID == userID || m.RecipientID == userID
}

// PeerOf returns the other participant relative to userID.
func (m *Message) PeerOf(userID int64) int64 {
	if m.SenderID == userID {
		return m.RecipientID
	}
	return m.SenderID
}

// RawMessage is a message payload as received, before normalization.
// Field names may use either camelCase (REST) or PascalCase (hub).
type RawMessage map[string]json.RawMessage

// CreateMessage is the body of a send request.
type CreateMessage struct {
	RecipientID int64  `json:"recipientId"`
	Content     string `json:"content"`
	Emoji       string `json:"emoji,omitempty"`
}

// PendingReadEvent is a read receipt whose target message is not loaded yet.
type PendingReadEvent struct {
	MessageID  int64     `json:"messageId"`
	ReaderID   int64     `json:"readerId"`
	ReceivedAt time.Time `json:"receivedAt"`
}
