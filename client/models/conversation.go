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

package models

import (
	"time"
)

// ConversationSummary is one row of the conversation list
type ConversationSummary struct {
	PeerID        int64     `json:"otherUserId"`
	PeerUsername  string    `json:"otherUsername"`
	PeerPhotoURL  string    `json:"otherUserPhotoUrl,omitempty"`
	LastMessage   string    `json:"lastMessage"`
	LastMessageAt time.Time `json:"lastMessageTime"`
	UnreadCount   int       `json:"unreadCount"`
}

// Member represents a user from the liked-users list
type Member struct {
	ID       int64  `json:"id"`
	UserName string `json:"userName"`
	KnownAs  string `json:"knownAs,omitempty"`
	PhotoURL string `json:"photoUrl,omitempty"`
	City     string `json:"city,omitempty"`
	Age      int    `json:"age,omitempty"`
}

// Summary builds an empty conversation summary for starting a chat with m.
func (m Member) Summary() ConversationSummary {
	return ConversationSummary{
		PeerID:       m.ID,
		PeerUsername: m.UserName,
		PeerPhotoURL: m.PhotoURL,
	}
}

// Notification is surfaced to the user for a live message from a peer
// whose conversation is not open.
type Notification struct {
	MessageID  int64     `json:"messageId"`
	SenderID   int64     `json:"senderId"`
	SenderName string    `json:"senderName"`
	Preview    string    `json:"preview"`
	ReceivedAt time.Time `json:"receivedAt"`

	// Open navigates to the sender's conversation.
	Open func() `json:"-"`
}
