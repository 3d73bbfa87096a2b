// Copyright (C) 2025 efchat.net <tj@efchat.net>
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.

package restapi

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gorilla/mux"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/efchatnet/efmsg/client/errors"
	"github.com/efchatnet/efmsg/client/models"
)

func newTestClient(t *testing.T, register func(r *mux.Router)) *Client {
	r := mux.NewRouter()
	api := r.PathPrefix("/api").Subrouter()
	api.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			if req.Header.Get("Authorization") != "Bearer tok" {
				http.Error(w, "Unauthorized", http.StatusUnauthorized)
				return
			}
			if req.Header.Get("X-Request-ID") == "" {
				http.Error(w, "missing request id", http.StatusBadRequest)
				return
			}
			next.ServeHTTP(w, req)
		})
	})
	register(api)

	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)

	c, err := NewClient(Options{BaseURL: srv.URL + "/api", Token: "tok"})
	require.NoError(t, err)
	return c
}

func writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(v)
}

func TestClient_GetConversations(t *testing.T) {
	c := newTestClient(t, func(r *mux.Router) {
		r.HandleFunc("/conversations", func(w http.ResponseWriter, _ *http.Request) {
			w.Write([]byte(`[{"otherUserId":2,"otherUsername":"ana","lastMessage":"hi","lastMessageTime":"2025-03-01T10:00:00","unreadCount":3}]`))
		}).Methods(http.MethodGet)
	})

	list, err := c.GetConversations(context.Background())
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, int64(2), list[0].PeerID)
	assert.Equal(t, "ana", list[0].PeerUsername)
	assert.Equal(t, 3, list[0].UnreadCount)
	assert.Equal(t, time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC), list[0].LastMessageAt)
}

func TestClient_GetMessagesSkipsMalformed(t *testing.T) {
	c := newTestClient(t, func(r *mux.Router) {
		r.HandleFunc("/messages/{peerId}", func(w http.ResponseWriter, req *http.Request) {
			assert.Equal(t, "2", mux.Vars(req)["peerId"])
			w.Write([]byte(`[
				{"id":1,"senderId":2,"recipientId":1,"content":"hi","messageSent":"2025-03-01T10:00:00"},
				{"id":2,"senderId":2,"recipientId":1,"content":""},
				{"id":3,"senderId":1,"recipientId":2,"content":"yo","messageSent":"2025-03-01T10:01:00","dateRead":"2025-03-01T10:02:00"}
			]`))
		}).Methods(http.MethodGet)
	})

	msgs, err := c.GetMessages(context.Background(), 2)
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	assert.Equal(t, int64(1), msgs[0].ID)
	assert.False(t, msgs[0].IsRead())
	assert.Equal(t, int64(3), msgs[1].ID)
	assert.True(t, msgs[1].IsRead())
}

func TestClient_SendMessage(t *testing.T) {
	c := newTestClient(t, func(r *mux.Router) {
		r.HandleFunc("/messages", func(w http.ResponseWriter, req *http.Request) {
			var body models.CreateMessage
			require.NoError(t, json.NewDecoder(req.Body).Decode(&body))
			assert.Equal(t, "application/json", req.Header.Get("Content-Type"))
			writeJSON(w, map[string]interface{}{
				"id": 10, "senderId": 1, "recipientId": body.RecipientID,
				"content": body.Content, "emoji": body.Emoji, "messageSent": "2025-03-01T10:00:00Z",
			})
		}).Methods(http.MethodPost)
	})

	m, err := c.SendMessage(context.Background(), models.CreateMessage{RecipientID: 2, Content: "hey", Emoji: "👋"})
	require.NoError(t, err)
	assert.Equal(t, int64(10), m.ID)
	assert.Equal(t, int64(2), m.RecipientID)
	assert.Equal(t, "hey", m.Content)
	assert.Equal(t, "👋", m.Emoji)
}

func TestClient_MarkReadAndDelete(t *testing.T) {
	c := newTestClient(t, func(r *mux.Router) {
		r.HandleFunc("/messages/{messageId}/read", func(w http.ResponseWriter, _ *http.Request) {
			writeJSON(w, map[string]bool{"success": true})
		}).Methods(http.MethodPut)
		r.HandleFunc("/messages/{messageId}", func(w http.ResponseWriter, req *http.Request) {
			writeJSON(w, map[string]bool{"success": mux.Vars(req)["messageId"] == "5"})
		}).Methods(http.MethodDelete)
	})

	ok, err := c.MarkRead(context.Background(), 5)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = c.DeleteMessage(context.Background(), 5)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = c.DeleteMessage(context.Background(), 6)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestClient_UnreadCountAndLikes(t *testing.T) {
	c := newTestClient(t, func(r *mux.Router) {
		r.HandleFunc("/messages/unread-count", func(w http.ResponseWriter, _ *http.Request) {
			writeJSON(w, map[string]int{"unreadCount": 4})
		}).Methods(http.MethodGet)
		r.HandleFunc("/likes/mine", func(w http.ResponseWriter, _ *http.Request) {
			writeJSON(w, []models.Member{{ID: 9, UserName: "bo"}})
		}).Methods(http.MethodGet)
	})

	n, err := c.UnreadCount(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 4, n)

	likes, err := c.GetMyLikes(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []models.Member{{ID: 9, UserName: "bo"}}, likes)
}

func TestClient_ErrorStatusIsRequestError(t *testing.T) {
	c := newTestClient(t, func(r *mux.Router) {
		r.HandleFunc("/conversations", func(w http.ResponseWriter, _ *http.Request) {
			http.Error(w, "boom", http.StatusInternalServerError)
		})
	})

	_, err := c.GetConversations(context.Background())
	require.Error(t, err)
	assert.Equal(t, apperrors.CodeRequest, apperrors.CodeOf(err))

	var reqErr *apperrors.RequestError
	require.True(t, stderrors.As(err, &reqErr))
	assert.Equal(t, http.StatusInternalServerError, reqErr.Status)
	assert.Equal(t, "/conversations", reqErr.Path)
}

func TestClient_UnknownRouteIsRequestError(t *testing.T) {
	r := mux.NewRouter()
	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)

	c, err := NewClient(Options{BaseURL: srv.URL, Token: "other"})
	require.NoError(t, err)
	_, err = c.GetMyLikes(context.Background())

	var reqErr *apperrors.RequestError
	require.True(t, stderrors.As(err, &reqErr))
	assert.Equal(t, http.StatusNotFound, reqErr.Status)
}

func TestNewClient_RequiresURL(t *testing.T) {
	_, err := NewClient(Options{})
	assert.Equal(t, apperrors.CodeInvalidArgument, apperrors.CodeOf(err))
}
