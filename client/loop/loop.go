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

// Package loop runs callbacks one at a time on a single goroutine.
// Everything that mutates conversation state is posted here, so state
// owned by the loop needs no locking.
package loop

import (
	"errors"
	"sync"
	"time"

	"github.com/benbjohnson/clock"

	"github.com/efchatnet/efmsg/client/logger"
)

var ErrStopped = errors.New("loop is stopped")

type Loop struct {
	clock clock.Clock
	log   *logger.Logger

	mu      sync.Mutex
	pending []func()
	stopped bool

	wake chan struct{}
	quit chan struct{}
	done chan struct{}
}

// New starts a loop. Stop must be called to release its goroutine.
func New(clk clock.Clock, log *logger.Logger) *Loop {
	l := &Loop{
		clock: clk,
		log:   log,
		wake:  make(chan struct{}, 1),
		quit:  make(chan struct{}),
		done:  make(chan struct{}),
	}
	go l.run()
	return l
}

func (l *Loop) run() {
	defer close(l.done)
	for {
		select {
		case <-l.wake:
			l.drain()
		case <-l.quit:
			return
		}
	}
}

func (l *Loop) drain() {
	for {
		l.mu.Lock()
		batch := l.pending
		l.pending = nil
		l.mu.Unlock()
		if len(batch) == 0 {
			return
		}
		for _, fn := range batch {
			l.exec(fn)
		}
	}
}

func (l *Loop) exec(fn func()) {
	defer func() {
		if r := recover(); r != nil {
			l.log.Error("loop callback panicked", "panic", r)
		}
	}()
	fn()
}

// Post queues fn. It returns false once the loop is stopped.
func (l *Loop) Post(fn func()) bool {
	l.mu.Lock()
	if l.stopped {
		l.mu.Unlock()
		return false
	}
	l.pending = append(l.pending, fn)
	l.mu.Unlock()

	select {
	case l.wake <- struct{}{}:
	default:
	}
	return true
}

// Do runs fn on the loop and waits for it. Never call Do from the loop itself.
func (l *Loop) Do(fn func()) error {
	finished := make(chan struct{})
	if !l.Post(func() {
		defer close(finished)
		fn()
	}) {
		return ErrStopped
	}
	select {
	case <-finished:
		return nil
	case <-l.done:
		return ErrStopped
	}
}

// Now returns the loop's clock time.
func (l *Loop) Now() time.Time {
	return l.clock.Now()
}

// Clock exposes the clock driving scheduled tasks.
func (l *Loop) Clock() clock.Clock {
	return l.clock
}

// Stop discards queued callbacks and waits for the loop goroutine to exit.
func (l *Loop) Stop() {
	l.mu.Lock()
	if l.stopped {
		l.mu.Unlock()
		<-l.done
		return
	}
	l.stopped = true
	l.pending = nil
	l.mu.Unlock()

	close(l.quit)
	<-l.done
}
