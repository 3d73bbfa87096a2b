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

// Package session identifies the local user from the bearer token issued
// by the API server.
package session

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	apperrors "github.com/efchatnet/efmsg/client/errors"
	"github.com/efchatnet/efmsg/client/models"
)

// Claims represents the JWT claims the client reads
type Claims struct {
	NameID     json.RawMessage `json:"nameid"`
	UniqueName string          `json:"unique_name"`
	ExpiresAt  int64           `json:"exp"`
	IssuedAt   int64           `json:"iat"`
	Issuer     string          `json:"iss"`
}

// ParseClaims decodes the payload of a JWT. The signature is not checked;
// the client does not hold the signing key and the server verifies every
// request anyway.
func ParseClaims(token string) (*Claims, error) {
	parts := strings.Split(token, ".")
	if len(parts) != 3 {
		return nil, fmt.Errorf("invalid token format")
	}

	payload, err := base64.RawURLEncoding.DecodeString(strings.TrimRight(parts[1], "="))
	if err != nil {
		return nil, fmt.Errorf("failed to decode claims: %w", err)
	}

	var claims Claims
	if err := json.Unmarshal(payload, &claims); err != nil {
		return nil, fmt.Errorf("failed to parse claims: %w", err)
	}
	return &claims, nil
}

// Session holds the bearer token and the id of the signed-in user.
type Session struct {
	token     string
	userID    int64
	username  string
	expiresAt time.Time
}

// New builds a session from token. A non-zero userID overrides the id
// found in the token's nameid claim.
func New(token string, userID int64) (*Session, error) {
	if token == "" {
		return nil, apperrors.ErrMissingToken
	}
	s := &Session{token: token, userID: userID}

	claims, err := ParseClaims(token)
	if err != nil {
		if userID == 0 {
			return nil, apperrors.Wrap(apperrors.CodeUnauthenticated, "failed to read user id from token", err)
		}
		return s, nil
	}
	if s.userID == 0 && len(claims.NameID) > 0 {
		id, err := models.DecodeID(claims.NameID)
		if err != nil {
			return nil, apperrors.Wrap(apperrors.CodeUnauthenticated, "token has an invalid nameid claim", err)
		}
		s.userID = id
	}
	if s.userID == 0 {
		return nil, apperrors.Unauthorized("token carries no user id")
	}
	s.username = claims.UniqueName
	if claims.ExpiresAt > 0 {
		s.expiresAt = time.Unix(claims.ExpiresAt, 0).UTC()
	}
	return s, nil
}

func (s *Session) Token() string { return s.token }

// UserID is the current user's id.
func (s *Session) UserID() int64 { return s.userID }

func (s *Session) Username() string { return s.username }

// Expired reports whether the token's exp claim is before now. Tokens
// without exp never expire.
func (s *Session) Expired(now time.Time) bool {
	return !s.expiresAt.IsZero() && now.After(s.expiresAt)
}
