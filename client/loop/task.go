// Copyright (C) 2025 efchat.net <tj@efchat.net>
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.

package loop

import (
	"time"

	"github.com/benbjohnson/clock"
)

// Task is a callback scheduled to run on the loop after a delay.
// Cancel and Reset must be called from the loop.
type Task struct {
	loop      *Loop
	fn        func()
	timer     *clock.Timer
	gen       uint64
	cancelled bool
	fired     bool
}

// AfterFunc schedules fn to run on the loop once d has elapsed.
func (l *Loop) AfterFunc(d time.Duration, fn func()) *Task {
	t := &Task{loop: l, fn: fn}
	t.arm(d)
	return t
}

func (t *Task) arm(d time.Duration) {
	t.gen++
	gen := t.gen
	t.timer = t.loop.clock.AfterFunc(d, func() {
		t.loop.Post(func() {
			// a stale firing from before Reset or Cancel is ignored
			if t.cancelled || t.fired || gen != t.gen {
				return
			}
			t.fired = true
			t.fn()
		})
	})
}

// Cancel prevents the task from running. Safe on a nil or fired task.
func (t *Task) Cancel() {
	if t == nil {
		return
	}
	t.cancelled = true
	if t.timer != nil {
		t.timer.Stop()
	}
}

// Reset restarts the delay, reviving a cancelled or fired task.
func (t *Task) Reset(d time.Duration) {
	if t.timer != nil {
		t.timer.Stop()
	}
	t.cancelled = false
	t.fired = false
	t.arm(d)
}

// Pending reports whether the task is still waiting to run.
func (t *Task) Pending() bool {
	return t != nil && !t.cancelled && !t.fired
}
