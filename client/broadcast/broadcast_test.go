// Copyright (C) 2025 efchat.net <tj@efchat.net>
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.

package broadcast

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestBroadcaster_FanOut(t *testing.T) {
	b := New[int]()
	var a, c []int
	b.Subscribe(func(v int) { a = append(a, v) })
	b.Publish(1)
	b.Subscribe(func(v int) { c = append(c, v) })
	b.Publish(2)

	assert.Equal(t, []int{1, 2}, a)
	assert.Equal(t, []int{2}, c, "late subscriber must not see earlier values")
}

func TestBroadcaster_Cancel(t *testing.T) {
	b := New[string]()
	var got []string
	first := b.Subscribe(func(v string) { got = append(got, "first:"+v) })
	b.Subscribe(func(v string) { got = append(got, "second:"+v) })

	first.Cancel()
	first.Cancel()
	b.Publish("x")

	assert.Equal(t, []string{"second:x"}, got)
	assert.Equal(t, 1, b.Len())
}

func TestBroadcaster_Clear(t *testing.T) {
	b := New[int]()
	calls := 0
	sub := b.Subscribe(func(int) { calls++ })
	b.Clear()
	b.Publish(1)
	sub.Cancel()

	assert.Zero(t, calls)
	assert.Zero(t, b.Len())
}

func TestBroadcaster_HandlerMayUnsubscribeDuringPublish(t *testing.T) {
	b := New[int]()
	var sub Subscription
	calls := 0
	sub = b.Subscribe(func(int) {
		calls++
		sub.Cancel()
	})
	b.Publish(1)
	b.Publish(2)
	assert.Equal(t, 1, calls)
}
