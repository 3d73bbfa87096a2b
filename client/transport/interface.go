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

// Package transport carries live messaging events between the client and
// the message hub.
package transport

import (
	"context"
)

// Hub names of the server-side methods and client callbacks.
const (
	TargetTyping         = "Typing"
	TargetStopTyping     = "StopTyping"
	TargetMarkAsRead     = "MarkAsRead"
	TargetJoinUserGroup  = "JoinUserGroup"
	TargetLeaveUserGroup = "LeaveUserGroup"

	TargetReceiveMessage    = "ReceiveMessage"
	TargetMessageRead       = "MessageRead"
	TargetMessageDeleted    = "MessageDeleted"
	TargetUserTyping        = "UserTyping"
	TargetUserStoppedTyping = "UserStoppedTyping"
	TargetUserOnline        = "UserOnline"
	TargetUserOffline       = "UserOffline"
	TargetOnlineUsersUpdate = "OnlineUsersUpdate"
)

// Hub is a push connection to the message hub. Outbound calls are best
// effort and are dropped while the hub is not connected.
type Hub interface {
	Connect(ctx context.Context, token string) error
	Disconnect() error
	State() State
	Events() *Events

	// Bind registers the function that attaches event handlers. It runs
	// after every successful (re)connect, once all previous handlers
	// have been cleared.
	Bind(attach func(*Events))

	SendTyping(peerID int64)
	SendStopTyping(peerID int64)
	MarkAsRead(messageID, senderID int64)
	JoinUserGroup(userID int64)
	LeaveUserGroup(userID int64)
}
