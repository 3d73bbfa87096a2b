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

package transport

import (
	"encoding/json"
	"fmt"

	"github.com/efchatnet/efmsg/client/broadcast"
	apperrors "github.com/efchatnet/efmsg/client/errors"
	"github.com/efchatnet/efmsg/client/models"
)

// ReadReceipt reports that ReaderID has read MessageID.
type ReadReceipt struct {
	MessageID int64 `json:"messageId"`
	ReaderID  int64 `json:"readerId"`
}

// Events holds one stream per hub callback. A subscriber only sees events
// published after it subscribed.
type Events struct {
	Messages      *broadcast.Broadcaster[models.RawMessage]
	Reads         *broadcast.Broadcaster[ReadReceipt]
	Deletes       *broadcast.Broadcaster[int64]
	Typing        *broadcast.Broadcaster[int64]
	StoppedTyping *broadcast.Broadcaster[int64]
	Online        *broadcast.Broadcaster[int64]
	Offline       *broadcast.Broadcaster[int64]
	OnlineUsers   *broadcast.Broadcaster[[]int64]

	// States survives ClearHandlers.
	States *broadcast.Broadcaster[State]
}

func NewEvents() *Events {
	return &Events{
		Messages:      broadcast.New[models.RawMessage](),
		Reads:         broadcast.New[ReadReceipt](),
		Deletes:       broadcast.New[int64](),
		Typing:        broadcast.New[int64](),
		StoppedTyping: broadcast.New[int64](),
		Online:        broadcast.New[int64](),
		Offline:       broadcast.New[int64](),
		OnlineUsers:   broadcast.New[[]int64](),
		States:        broadcast.New[State](),
	}
}

// ClearHandlers detaches every hub event handler.
func (e *Events) ClearHandlers() {
	e.Messages.Clear()
	e.Reads.Clear()
	e.Deletes.Clear()
	e.Typing.Clear()
	e.StoppedTyping.Clear()
	e.Online.Clear()
	e.Offline.Clear()
	e.OnlineUsers.Clear()
}

// HandlerCount returns the number of attached hub event handlers.
func (e *Events) HandlerCount() int {
	return e.Messages.Len() + e.Reads.Len() + e.Deletes.Len() + e.Typing.Len() +
		e.StoppedTyping.Len() + e.Online.Len() + e.Offline.Len() + e.OnlineUsers.Len()
}

// Dispatch decodes the arguments of a hub callback and publishes them on
// the matching stream. Unknown targets are ignored.
func (e *Events) Dispatch(target string, args []json.RawMessage) error {
	switch target {
	case TargetReceiveMessage:
		if len(args) < 1 {
			return missingArgs(target)
		}
		var raw models.RawMessage
		if err := json.Unmarshal(args[0], &raw); err != nil {
			return apperrors.ErrMalformedPayload(err)
		}
		e.Messages.Publish(raw)
	case TargetMessageRead:
		ids, err := decodeIDs(target, args, 2)
		if err != nil {
			return err
		}
		e.Reads.Publish(ReadReceipt{MessageID: ids[0], ReaderID: ids[1]})
	case TargetMessageDeleted:
		return publishID(e.Deletes, target, args)
	case TargetUserTyping:
		return publishID(e.Typing, target, args)
	case TargetUserStoppedTyping:
		return publishID(e.StoppedTyping, target, args)
	case TargetUserOnline:
		return publishID(e.Online, target, args)
	case TargetUserOffline:
		return publishID(e.Offline, target, args)
	case TargetOnlineUsersUpdate:
		if len(args) < 1 {
			return missingArgs(target)
		}
		var list []json.RawMessage
		if err := json.Unmarshal(args[0], &list); err != nil {
			return apperrors.ErrMalformedPayload(err)
		}
		ids, err := decodeIDs(target, list, 0)
		if err != nil {
			return err
		}
		e.OnlineUsers.Publish(ids)
	}
	return nil
}

// DispatchFrames decodes a batch of separator-terminated frames and
// dispatches every invocation in it.
func (e *Events) DispatchFrames(data []byte) error {
	var firstErr error
	for _, rec := range splitFrames(data) {
		var f frame
		if err := json.Unmarshal(rec, &f); err != nil {
			if firstErr == nil {
				firstErr = apperrors.ErrMalformedPayload(err)
			}
			continue
		}
		if f.Type != frameInvocation {
			continue
		}
		if err := e.Dispatch(f.Target, f.Arguments); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

func publishID(b *broadcast.Broadcaster[int64], target string, args []json.RawMessage) error {
	ids, err := decodeIDs(target, args, 1)
	if err != nil {
		return err
	}
	b.Publish(ids[0])
	return nil
}

func decodeIDs(target string, args []json.RawMessage, want int) ([]int64, error) {
	if len(args) < want {
		return nil, missingArgs(target)
	}
	n := want
	if n == 0 {
		n = len(args)
	}
	ids := make([]int64, 0, n)
	for _, a := range args[:n] {
		id, err := models.DecodeID(a)
		if err != nil {
			return nil, apperrors.ErrMalformedPayload(err)
		}
		ids = append(ids, id)
	}
	return ids, nil
}

func missingArgs(target string) error {
	return apperrors.ErrMalformedPayload(fmt.Errorf("%s: missing arguments", target))
}
