// Copyright (C) 2025 efchat.net <tj@efchat.net>
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.

package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	"github.com/efchatnet/efmsg/client/broadcast"
	"github.com/efchatnet/efmsg/client/controller"
	apperrors "github.com/efchatnet/efmsg/client/errors"
	"github.com/efchatnet/efmsg/client/logger"
	"github.com/efchatnet/efmsg/client/models"
)

// Messenger is the part of the controller the view API drives.
type Messenger interface {
	View() controller.View
	OnChange(fn func(controller.View)) broadcast.Subscription
	OnNotify(fn func(models.Notification)) broadcast.Subscription
	RefreshConversations(ctx context.Context) error
	SelectPeer(ctx context.Context, peerID int64) error
	Back(ctx context.Context) error
	Send(ctx context.Context, text, emoji string) error
	Input(text string) error
	SetFocus(focused bool) error
	MarkRead(messageID int64) error
	Delete(ctx context.Context, messageID int64) error
}

var _ Messenger = (*controller.Controller)(nil)

type MessagesHandler struct {
	messenger      Messenger
	allowedOrigins []string
	log            *logger.Logger
}

func NewMessagesHandler(messenger Messenger, allowedOrigins []string, log *logger.Logger) *MessagesHandler {
	if log == nil {
		log = logger.NewNop()
	}
	return &MessagesHandler{
		messenger:      messenger,
		allowedOrigins: allowedOrigins,
		log:            log.Named("handlers"),
	}
}

// GetView returns the current snapshot of the messaging screen
func (h *MessagesHandler) GetView(w http.ResponseWriter, r *http.Request) {
	h.writeView(w)
}

// OpenConversation opens the conversation with the peer in the path
func (h *MessagesHandler) OpenConversation(w http.ResponseWriter, r *http.Request) {
	peerID, ok := pathID(w, r, "peerId")
	if !ok {
		return
	}
	if err := h.messenger.SelectPeer(r.Context(), peerID); err != nil {
		h.writeError(w, err)
		return
	}
	h.writeView(w)
}

// Back returns to the conversation list
func (h *MessagesHandler) Back(w http.ResponseWriter, r *http.Request) {
	if err := h.messenger.Back(r.Context()); err != nil {
		h.writeError(w, err)
		return
	}
	h.writeView(w)
}

// Refresh reloads the conversation list and liked users
func (h *MessagesHandler) Refresh(w http.ResponseWriter, r *http.Request) {
	if err := h.messenger.RefreshConversations(r.Context()); err != nil {
		h.writeError(w, err)
		return
	}
	h.writeView(w)
}

// Send posts a message to the open conversation
func (h *MessagesHandler) Send(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Content string `json:"content"`
		Emoji   string `json:"emoji"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	if err := h.messenger.Send(r.Context(), req.Content, req.Emoji); err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusCreated, h.messenger.View())
}

// Input records the draft and drives the typing indicator
func (h *MessagesHandler) Input(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Content string `json:"content"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if err := h.messenger.Input(req.Content); err != nil {
		h.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Focus records whether the conversation is visible
func (h *MessagesHandler) Focus(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Focused *bool `json:"focused"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Focused == nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if err := h.messenger.SetFocus(*req.Focused); err != nil {
		h.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// MarkRead marks a message of the open conversation as read
func (h *MessagesHandler) MarkRead(w http.ResponseWriter, r *http.Request) {
	messageID, ok := pathID(w, r, "messageId")
	if !ok {
		return
	}
	if err := h.messenger.MarkRead(messageID); err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]string{
		"status": "marked_read",
	})
}

// Delete removes a message from the open conversation
func (h *MessagesHandler) Delete(w http.ResponseWriter, r *http.Request) {
	messageID, ok := pathID(w, r, "messageId")
	if !ok {
		return
	}
	if err := h.messenger.Delete(r.Context(), messageID); err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]string{
		"status": "deleted",
	})
}

func pathID(w http.ResponseWriter, r *http.Request, name string) (int64, bool) {
	id, err := strconv.ParseInt(mux.Vars(r)[name], 10, 64)
	if err != nil || id <= 0 {
		http.Error(w, "Invalid "+name, http.StatusBadRequest)
		return 0, false
	}
	return id, true
}

func (h *MessagesHandler) writeView(w http.ResponseWriter) {
	h.writeJSON(w, http.StatusOK, h.messenger.View())
}

func (h *MessagesHandler) writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		h.log.Debug("failed to write response", "err", err)
	}
}

func (h *MessagesHandler) writeError(w http.ResponseWriter, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		h.log.Warn("request failed", "err", err)
	}
	http.Error(w, err.Error(), status)
}

func statusFor(err error) int {
	switch apperrors.CodeOf(err) {
	case apperrors.CodeInvalidArgument, apperrors.CodeMalformedMessage:
		return http.StatusBadRequest
	case apperrors.CodeNotFound:
		return http.StatusNotFound
	case apperrors.CodeUnauthenticated:
		return http.StatusUnauthorized
	case apperrors.CodeRequest, apperrors.CodeTransport:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
