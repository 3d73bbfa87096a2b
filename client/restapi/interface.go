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

package restapi

import (
	"context"

	"github.com/efchatnet/efmsg/client/models"
)

type MessageAPI interface {
	GetConversations(ctx context.Context) ([]models.ConversationSummary, error)
	GetMessages(ctx context.Context, peerID int64) ([]models.Message, error)
	SendMessage(ctx context.Context, msg models.CreateMessage) (models.Message, error)
	MarkRead(ctx context.Context, messageID int64) (bool, error)
	DeleteMessage(ctx context.Context, messageID int64) (bool, error)
	UnreadCount(ctx context.Context) (int, error)
}

type LikesAPI interface {
	GetMyLikes(ctx context.Context) ([]models.Member, error)
}

// API is everything the messaging view needs from the REST server.
type API interface {
	MessageAPI
	LikesAPI
}
