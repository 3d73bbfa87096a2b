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

// Package restapi is the client for the messaging REST endpoints.
package restapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	apperrors "github.com/efchatnet/efmsg/client/errors"
	"github.com/efchatnet/efmsg/client/logger"
	"github.com/efchatnet/efmsg/client/models"
)

const (
	pathConversations = "conversations"
	pathMessages      = "messages"
	pathUnreadCount   = "messages/unread-count"
	pathMyLikes       = "likes/mine"

	maxErrorBody = 4 << 10
)

type Options struct {
	BaseURL    string
	Token      string
	Timeout    time.Duration
	HTTPClient *http.Client
	Logger     *logger.Logger
}

type Client struct {
	base  *url.URL
	token string
	http  *http.Client
	log   *logger.Logger
}

func NewClient(opts Options) (*Client, error) {
	if opts.BaseURL == "" {
		return nil, apperrors.InvalidArg("api url is required")
	}
	base, err := url.Parse(opts.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse api url: %w", err)
	}
	if !strings.HasSuffix(base.Path, "/") {
		base.Path += "/"
	}
	hc := opts.HTTPClient
	if hc == nil {
		timeout := opts.Timeout
		if timeout <= 0 {
			timeout = 15 * time.Second
		}
		hc = &http.Client{Timeout: timeout}
	}
	log := opts.Logger
	if log == nil {
		log = logger.NewNop()
	}
	return &Client{base: base, token: opts.Token, http: hc, log: log}, nil
}

// GetConversations returns the conversation list, most recent first.
func (c *Client) GetConversations(ctx context.Context) ([]models.ConversationSummary, error) {
	var wire []conversationWire
	if err := c.do(ctx, http.MethodGet, pathConversations, nil, &wire); err != nil {
		return nil, err
	}
	out := make([]models.ConversationSummary, 0, len(wire))
	for _, w := range wire {
		out = append(out, w.summary())
	}
	return out, nil
}

// GetMessages returns the history with peerID. Entries that fail
// normalization are skipped.
func (c *Client) GetMessages(ctx context.Context, peerID int64) ([]models.Message, error) {
	var raws []models.RawMessage
	if err := c.do(ctx, http.MethodGet, pathMessages+"/"+strconv.FormatInt(peerID, 10), nil, &raws); err != nil {
		return nil, err
	}
	out := make([]models.Message, 0, len(raws))
	for _, raw := range raws {
		m, err := models.Normalize(raw)
		if err != nil {
			c.log.Debug("skipping malformed history message", "peer", peerID, "err", err)
			continue
		}
		out = append(out, m)
	}
	return out, nil
}

// SendMessage posts a new message and returns the stored copy.
func (c *Client) SendMessage(ctx context.Context, msg models.CreateMessage) (models.Message, error) {
	var raw models.RawMessage
	if err := c.do(ctx, http.MethodPost, pathMessages, msg, &raw); err != nil {
		return models.Message{}, err
	}
	m, err := models.Normalize(raw)
	if err != nil {
		return models.Message{}, fmt.Errorf("failed to decode sent message: %w", err)
	}
	return m, nil
}

func (c *Client) MarkRead(ctx context.Context, messageID int64) (bool, error) {
	var resp successResponse
	path := pathMessages + "/" + strconv.FormatInt(messageID, 10) + "/read"
	if err := c.do(ctx, http.MethodPut, path, struct{}{}, &resp); err != nil {
		return false, err
	}
	return resp.Success, nil
}

func (c *Client) DeleteMessage(ctx context.Context, messageID int64) (bool, error) {
	var resp successResponse
	if err := c.do(ctx, http.MethodDelete, pathMessages+"/"+strconv.FormatInt(messageID, 10), nil, &resp); err != nil {
		return false, err
	}
	return resp.Success, nil
}

// UnreadCount returns the server's count of unread messages for the user.
func (c *Client) UnreadCount(ctx context.Context) (int, error) {
	var resp struct {
		UnreadCount int `json:"unreadCount"`
	}
	if err := c.do(ctx, http.MethodGet, pathUnreadCount, nil, &resp); err != nil {
		return 0, err
	}
	return resp.UnreadCount, nil
}

// GetMyLikes returns the members the user has liked.
func (c *Client) GetMyLikes(ctx context.Context) ([]models.Member, error) {
	var members []models.Member
	if err := c.do(ctx, http.MethodGet, pathMyLikes, nil, &members); err != nil {
		return nil, err
	}
	return members, nil
}

func (c *Client) do(ctx context.Context, method, path string, body, out interface{}) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to encode request body: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	u := c.base.ResolveReference(&url.URL{Path: path})
	req, err := http.NewRequestWithContext(ctx, method, u.String(), reader)
	if err != nil {
		return requestFailed(method, path, 0, err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Request-ID", uuid.NewString())
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return requestFailed(method, path, 0, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		c.log.Debug("request rejected", "method", method, "path", path, "status", resp.StatusCode, "body", string(msg))
		return requestFailed(method, path, resp.StatusCode, nil)
	}
	if out == nil || resp.StatusCode == http.StatusNoContent {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return requestFailed(method, path, resp.StatusCode, fmt.Errorf("failed to decode response: %w", err))
	}
	return nil
}

func requestFailed(method, path string, status int, cause error) error {
	return apperrors.Wrap(apperrors.CodeRequest, "request failed", &apperrors.RequestError{
		Method: method,
		Path:   "/" + path,
		Status: status,
		Cause:  cause,
	})
}

type successResponse struct {
	Success bool `json:"success"`
}

// conversationWire accepts the server's zone-less timestamps.
type conversationWire struct {
	OtherUserID       int64  `json:"otherUserId"`
	OtherUsername     string `json:"otherUsername"`
	OtherUserPhotoURL string `json:"otherUserPhotoUrl"`
	LastMessage       string `json:"lastMessage"`
	LastMessageTime   string `json:"lastMessageTime"`
	UnreadCount       int    `json:"unreadCount"`
}

func (w conversationWire) summary() models.ConversationSummary {
	at, _ := models.ParseTimestamp(w.LastMessageTime)
	return models.ConversationSummary{
		PeerID:        w.OtherUserID,
		PeerUsername:  w.OtherUsername,
		PeerPhotoURL:  w.OtherUserPhotoURL,
		LastMessage:   w.LastMessage,
		LastMessageAt: at,
		UnreadCount:   w.UnreadCount,
	}
}

var _ API = (*Client)(nil)
