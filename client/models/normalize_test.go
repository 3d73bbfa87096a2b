// Copyright (C) 2025 efchat.net <tj@efchat.net>
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.

package models

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/efchatnet/efmsg/client/errors"
)

func decodeRaw(t *testing.T, s string) RawMessage {
	t.Helper()
	var raw RawMessage
	require.NoError(t, json.Unmarshal([]byte(s), &raw))
	return raw
}

func TestNormalize_RestShape(t *testing.T) {
	raw := decodeRaw(t, `{
		"id": 5, "senderId": 1, "senderUsername": "ana",
		"recipientId": 2, "recipientUsername": "ben",
		"content": "hi", "emoji": "👋",
		"messageSent": "2025-03-01T10:00:00Z", "dateRead": null
	}`)

	m, err := Normalize(raw)
	require.NoError(t, err)
	assert.Equal(t, int64(5), m.ID)
	assert.Equal(t, int64(1), m.SenderID)
	assert.Equal(t, "ana", m.SenderUsername)
	assert.Equal(t, int64(2), m.RecipientID)
	assert.Equal(t, "ben", m.RecipientUsername)
	assert.Equal(t, "hi", m.Content)
	assert.Equal(t, "👋", m.Emoji)
	assert.Equal(t, time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC), m.SentAt)
	assert.Nil(t, m.ReadAt)
}

func TestNormalize_HubShape(t *testing.T) {
	raw := decodeRaw(t, `{
		"SenderId": 1, "SenderName": "ana", "RecipientId": "2",
		"Content": "hi", "MessageSent": "2025-03-01T10:00:00.2000000"
	}`)

	m, err := Normalize(raw)
	require.NoError(t, err)
	assert.Zero(t, m.ID)
	assert.Equal(t, int64(2), m.RecipientID)
	assert.Equal(t, "ana", m.SenderUsername)
	assert.Equal(t, time.Date(2025, 3, 1, 10, 0, 0, 200_000_000, time.UTC), m.SentAt)
}

func TestNormalize_UnixMillis(t *testing.T) {
	raw := decodeRaw(t, `{"senderId":1,"recipientId":2,"content":"x","messageSent":1700000000000,"dateRead":1700000001000}`)
	m, err := Normalize(raw)
	require.NoError(t, err)
	assert.Equal(t, time.UnixMilli(1700000000000).UTC(), m.SentAt)
	require.NotNil(t, m.ReadAt)
	assert.Equal(t, time.UnixMilli(1700000001000).UTC(), *m.ReadAt)
}

func TestNormalize_Rejects(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want error
	}{
		{"no sender", `{"recipientId":2,"content":"x"}`, apperrors.ErrMissingSender},
		{"zero sender", `{"SenderId":0,"recipientId":2,"content":"x"}`, apperrors.ErrMissingSender},
		{"no recipient", `{"senderId":1,"content":"x"}`, apperrors.ErrMissingReceiver},
		{"no content", `{"senderId":1,"recipientId":2,"Content":""}`, apperrors.ErrMissingContent},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Normalize(decodeRaw(t, tt.raw))
			assert.ErrorIs(t, err, tt.want)
			assert.Equal(t, apperrors.CodeMalformedMessage, apperrors.CodeOf(err))
		})
	}
}

func TestNormalize_BadFieldType(t *testing.T) {
	_, err := Normalize(decodeRaw(t, `{"senderId":{"nested":true},"recipientId":2,"content":"x"}`))
	require.Error(t, err)
	assert.Equal(t, apperrors.CodeMalformedMessage, apperrors.CodeOf(err))
}

func TestMessage_PeerOf(t *testing.T) {
	m := Message{SenderID: 1, RecipientID: 2}
	assert.Equal(t, int64(2), m.PeerOf(1))
	assert.Equal(t, int64(1), m.PeerOf(2))
	assert.True(t, m.Involves(2))
	assert.False(t, m.Involves(3))
}
