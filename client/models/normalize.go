// Copyright (C) 2025 efchat.net <tj@efchat.net>
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.

package models

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	apperrors "github.com/efchatnet/efmsg/client/errors"
)

// Field spellings seen across the REST API and the hub.
var (
	idKeys            = []string{"id", "Id", "ID"}
	senderIDKeys      = []string{"senderId", "SenderId", "SenderID"}
	recipientIDKeys   = []string{"recipientId", "RecipientId", "RecipientID"}
	senderNameKeys    = []string{"senderUsername", "SenderUsername", "SenderName", "senderName"}
	recipientNameKeys = []string{"recipientUsername", "RecipientUsername", "RecipientName", "recipientName"}
	contentKeys       = []string{"content", "Content"}
	emojiKeys         = []string{"emoji", "Emoji"}
	sentAtKeys        = []string{"messageSent", "MessageSent", "sentAt", "SentAt"}
	readAtKeys        = []string{"dateRead", "DateRead", "readAt", "ReadAt"}
)

var timeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.9999999",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
}

// Normalize maps a payload in either casing onto a Message. A zero ID or a
// zero SentAt means the payload did not carry one. Payloads without a
// sender, a recipient or content are rejected.
func Normalize(raw RawMessage) (Message, error) {
	var m Message
	var err error

	if m.ID, err = probeInt(raw, idKeys); err != nil {
		return Message{}, apperrors.ErrMalformedPayload(err)
	}
	if m.SenderID, err = probeInt(raw, senderIDKeys); err != nil {
		return Message{}, apperrors.ErrMalformedPayload(err)
	}
	if m.RecipientID, err = probeInt(raw, recipientIDKeys); err != nil {
		return Message{}, apperrors.ErrMalformedPayload(err)
	}
	if m.Content, err = probeString(raw, contentKeys); err != nil {
		return Message{}, apperrors.ErrMalformedPayload(err)
	}

	switch {
	case m.SenderID == 0:
		return Message{}, apperrors.ErrMissingSender
	case m.RecipientID == 0:
		return Message{}, apperrors.ErrMissingReceiver
	case m.Content == "":
		return Message{}, apperrors.ErrMissingContent
	}

	// optional fields degrade to empty rather than rejecting the message
	m.SenderUsername, _ = probeString(raw, senderNameKeys)
	m.RecipientUsername, _ = probeString(raw, recipientNameKeys)
	m.Emoji, _ = probeString(raw, emojiKeys)
	m.SentAt, _ = probeTime(raw, sentAtKeys)
	if readAt, _ := probeTime(raw, readAtKeys); !readAt.IsZero() {
		m.ReadAt = &readAt
	}
	return m, nil
}

// DecodeID reads a user or message id sent as a JSON number or a numeric
// string.
func DecodeID(v json.RawMessage) (int64, error) {
	return probeInt(RawMessage{"id": v}, idKeys)
}

func lookup(raw RawMessage, keys []string) (json.RawMessage, bool) {
	for _, k := range keys {
		v, ok := raw[k]
		if !ok {
			continue
		}
		if len(v) == 0 || bytes.Equal(bytes.TrimSpace(v), []byte("null")) {
			continue
		}
		return v, true
	}
	return nil, false
}

func probeInt(raw RawMessage, keys []string) (int64, error) {
	v, ok := lookup(raw, keys)
	if !ok {
		return 0, nil
	}
	var n json.Number
	if err := json.Unmarshal(v, &n); err == nil {
		return parseInt(string(n), keys[0])
	}
	var s string
	if err := json.Unmarshal(v, &s); err != nil {
		return 0, fmt.Errorf("field %s is not a number", keys[0])
	}
	if s == "" {
		return 0, nil
	}
	return parseInt(s, keys[0])
}

func parseInt(s, field string) (int64, error) {
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		f, ferr := strconv.ParseFloat(s, 64)
		if ferr != nil || f != float64(int64(f)) {
			return 0, fmt.Errorf("field %s is not an integer: %q", field, s)
		}
		return int64(f), nil
	}
	return n, nil
}

func probeString(raw RawMessage, keys []string) (string, error) {
	v, ok := lookup(raw, keys)
	if !ok {
		return "", nil
	}
	var s string
	if err := json.Unmarshal(v, &s); err != nil {
		return "", fmt.Errorf("field %s is not a string", keys[0])
	}
	return s, nil
}

func probeTime(raw RawMessage, keys []string) (time.Time, error) {
	v, ok := lookup(raw, keys)
	if !ok {
		return time.Time{}, nil
	}
	var ms int64
	if err := json.Unmarshal(v, &ms); err == nil {
		return time.UnixMilli(ms).UTC(), nil
	}
	var s string
	if err := json.Unmarshal(v, &s); err != nil {
		return time.Time{}, fmt.Errorf("field %s is not a timestamp", keys[0])
	}
	return ParseTimestamp(s)
}

// ParseTimestamp accepts RFC 3339 and the zone-less layouts the server
// emits; zone-less values are taken as UTC.
func ParseTimestamp(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, nil
	}
	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognised timestamp %q", s)
}
