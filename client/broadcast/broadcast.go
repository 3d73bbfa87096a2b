// Copyright (C) 2025 efchat.net <tj@efchat.net>
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.

// Package broadcast fans a stream of values out to any number of handlers.
// A handler only sees values published after it subscribed.
package broadcast

import (
	"sync"
)

// Subscription detaches a handler from its broadcaster.
type Subscription interface {
	Cancel()
}

type handler[T any] struct {
	id uint64
	fn func(T)
}

type Broadcaster[T any] struct {
	mu       sync.RWMutex
	nextID   uint64
	handlers []handler[T]
}

func New[T any]() *Broadcaster[T] {
	return &Broadcaster[T]{}
}

// Subscribe registers fn. Handlers run in subscription order on the
// publishing goroutine.
func (b *Broadcaster[T]) Subscribe(fn func(T)) Subscription {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.nextID++
	id := b.nextID
	b.handlers = append(b.handlers, handler[T]{id: id, fn: fn})
	return &subscription{cancel: func() { b.remove(id) }}
}

func (b *Broadcaster[T]) remove(id uint64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for i, h := range b.handlers {
		if h.id == id {
			b.handlers = append(b.handlers[:i:i], b.handlers[i+1:]...)
			return
		}
	}
}

// Publish delivers v to every current handler.
func (b *Broadcaster[T]) Publish(v T) {
	b.mu.RLock()
	snapshot := make([]handler[T], len(b.handlers))
	copy(snapshot, b.handlers)
	b.mu.RUnlock()

	for _, h := range snapshot {
		h.fn(v)
	}
}

// Clear removes all handlers.
func (b *Broadcaster[T]) Clear() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.handlers = nil
}

// Len returns the number of registered handlers.
func (b *Broadcaster[T]) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.handlers)
}

type subscription struct {
	once   sync.Once
	cancel func()
}

func (s *subscription) Cancel() {
	s.once.Do(s.cancel)
}
