// Copyright (C) 2025 efchat.net <tj@efchat.net>
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.

package handlers

import (
	"github.com/gorilla/mux"
)

// Register mounts the view API on api, which is expected to be the
// /api/messages subrouter.
func (h *MessagesHandler) Register(api *mux.Router) {
	api.HandleFunc("/view", h.GetView).Methods("GET", "OPTIONS")
	api.HandleFunc("/stream", h.Stream).Methods("GET")
	api.HandleFunc("/conversations/refresh", h.Refresh).Methods("POST", "OPTIONS")
	api.HandleFunc("/conversations/{peerId}/open", h.OpenConversation).Methods("POST", "OPTIONS")
	api.HandleFunc("/back", h.Back).Methods("POST", "OPTIONS")
	api.HandleFunc("/send", h.Send).Methods("POST", "OPTIONS")
	api.HandleFunc("/input", h.Input).Methods("POST", "OPTIONS")
	api.HandleFunc("/focus", h.Focus).Methods("POST", "OPTIONS")
	api.HandleFunc("/{messageId}/read", h.MarkRead).Methods("PUT", "OPTIONS")
	api.HandleFunc("/{messageId}", h.Delete).Methods("DELETE", "OPTIONS")
}
