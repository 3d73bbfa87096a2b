// Copyright (C) 2025 efchat.net <tj@efchat.net>
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.

package session

import (
	"encoding/base64"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/efchatnet/efmsg/client/errors"
)

func token(payload string) string {
	enc := base64.RawURLEncoding
	return enc.EncodeToString([]byte(`{"alg":"HS512","typ":"JWT"}`)) + "." +
		enc.EncodeToString([]byte(payload)) + ".c2ln"
}

func TestNew_ReadsNameID(t *testing.T) {
	s, err := New(token(`{"nameid":"42","unique_name":"ana","exp":1767225600}`), 0)
	require.NoError(t, err)

	assert.Equal(t, int64(42), s.UserID())
	assert.Equal(t, "ana", s.Username())
	assert.False(t, s.Expired(time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)))
	assert.True(t, s.Expired(time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC)))
}

func TestNew_NumericNameID(t *testing.T) {
	s, err := New(token(`{"nameid":7}`), 0)
	require.NoError(t, err)
	assert.Equal(t, int64(7), s.UserID())
	assert.False(t, s.Expired(time.Now()))
}

func TestNew_ExplicitUserIDWins(t *testing.T) {
	s, err := New(token(`{"nameid":"42"}`), 5)
	require.NoError(t, err)
	assert.Equal(t, int64(5), s.UserID())

	s, err = New("opaque-token", 5)
	require.NoError(t, err)
	assert.Equal(t, "opaque-token", s.Token())
}

func TestNew_Rejects(t *testing.T) {
	_, err := New("", 0)
	assert.ErrorIs(t, err, apperrors.ErrMissingToken)

	_, err = New("opaque-token", 0)
	assert.Equal(t, apperrors.CodeUnauthenticated, apperrors.CodeOf(err))

	_, err = New(token(`{"unique_name":"ana"}`), 0)
	assert.Equal(t, apperrors.CodeUnauthenticated, apperrors.CodeOf(err))

	_, err = New(token(`{"nameid":"abc"}`), 0)
	assert.Equal(t, apperrors.CodeUnauthenticated, apperrors.CodeOf(err))
}
