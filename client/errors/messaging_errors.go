// Copyright (C) 2025 efchat.net <tj@efchat.net>
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.

package errors

var (
	ErrEmptyMessage    = InvalidArg("message content is empty")
	ErrNoConversation  = New(CodeInvalidArgument, "no conversation is open")
	ErrMissingToken    = Unauthorized("bearer token is missing")
	ErrMissingSender   = Malformed("message has no sender")
	ErrMissingReceiver = Malformed("message has no recipient")
	ErrMissingContent  = Malformed("message has no content")
)

func ErrConnectFailed(cause error) error {
	return Wrap(CodeTransport, "failed to connect to message hub", cause)
}

func ErrMalformedPayload(cause error) error {
	return Wrap(CodeMalformedMessage, "failed to decode message payload", cause)
}
