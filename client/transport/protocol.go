// Copyright (C) 2025 efchat.net <tj@efchat.net>
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.

package transport

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// Frames are JSON objects terminated by the record separator.
const recordSeparator = 0x1e

const (
	frameInvocation = 1
	framePing       = 6
	frameClose      = 7
)

var (
	handshakeRequest = []byte(`{"protocol":"json","version":1}` + "\x1e")
	pingFrame        = []byte(`{"type":6}` + "\x1e")
)

type frame struct {
	Type           int               `json:"type"`
	Target         string            `json:"target,omitempty"`
	Arguments      []json.RawMessage `json:"arguments,omitempty"`
	Error          string            `json:"error,omitempty"`
	AllowReconnect bool              `json:"allowReconnect,omitempty"`
}

type handshakeResponse struct {
	Error string `json:"error,omitempty"`
}

// splitFrames returns the non-empty records in data.
func splitFrames(data []byte) [][]byte {
	var out [][]byte
	for _, rec := range bytes.Split(data, []byte{recordSeparator}) {
		if len(bytes.TrimSpace(rec)) > 0 {
			out = append(out, rec)
		}
	}
	return out
}

// encodeInvocation builds a fire-and-forget invocation; no invocation id
// is sent so the hub does not reply.
func encodeInvocation(target string, args ...interface{}) ([]byte, error) {
	encoded := make([]json.RawMessage, 0, len(args))
	for _, a := range args {
		b, err := json.Marshal(a)
		if err != nil {
			return nil, fmt.Errorf("failed to encode %s argument: %w", target, err)
		}
		encoded = append(encoded, b)
	}
	b, err := json.Marshal(frame{Type: frameInvocation, Target: target, Arguments: encoded})
	if err != nil {
		return nil, fmt.Errorf("failed to encode %s invocation: %w", target, err)
	}
	return append(b, recordSeparator), nil
}

// EncodeCallback builds the frame the hub sends for a client callback.
func EncodeCallback(target string, args ...interface{}) ([]byte, error) {
	return encodeInvocation(target, args...)
}

func parseHandshake(rec []byte) error {
	var resp handshakeResponse
	if err := json.Unmarshal(rec, &resp); err != nil {
		return fmt.Errorf("failed to decode handshake response: %w", err)
	}
	if resp.Error != "" {
		return fmt.Errorf("handshake rejected: %s", resp.Error)
	}
	return nil
}
