// Copyright (C) 2025 efchat.net <tj@efchat.net>
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.

package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
)

func okHandler(t *testing.T, wantUser int64) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id, ok := GetUserID(r)
		assert.True(t, ok)
		assert.Equal(t, wantUser, id)
		w.WriteHeader(http.StatusOK)
	})
}

func TestAuthMiddleware(t *testing.T) {
	h := NewAuthMiddleware("tok", 1)(okHandler(t, 1))

	tests := []struct {
		name   string
		target string
		header string
		want   int
	}{
		{"no credentials", "/api/messages/view", "", http.StatusUnauthorized},
		{"wrong scheme", "/api/messages/view", "Basic tok", http.StatusUnauthorized},
		{"wrong token", "/api/messages/view", "Bearer other", http.StatusUnauthorized},
		{"bearer header", "/api/messages/view", "Bearer tok", http.StatusOK},
		{"query token", "/api/messages/stream?access_token=tok", "", http.StatusOK},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, tc.target, nil)
			if tc.header != "" {
				req.Header.Set("Authorization", tc.header)
			}
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)
			assert.Equal(t, tc.want, rec.Code)
		})
	}
}

func TestCORS(t *testing.T) {
	h := NewCORS([]string{"http://localhost:4200"})(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodOptions, "/api/messages/view", nil)
	req.Header.Set("Origin", "http://localhost:4200")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "http://localhost:4200", rec.Header().Get("Access-Control-Allow-Origin"))

	req = httptest.NewRequest(http.MethodGet, "/api/messages/view", nil)
	req.Header.Set("Origin", "http://evil.example")
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestOriginAllowed(t *testing.T) {
	allowed := []string{"http://localhost:4200"}
	assert.True(t, OriginAllowed(allowed, ""))
	assert.True(t, OriginAllowed(allowed, "http://localhost:4200"))
	assert.False(t, OriginAllowed(allowed, "http://evil.example"))
}
