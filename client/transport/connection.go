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

package transport

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	apperrors "github.com/efchatnet/efmsg/client/errors"
	"github.com/efchatnet/efmsg/client/logger"
)

const (
	writeWait        = 10 * time.Second
	handshakeTimeout = 15 * time.Second
)

var errStopped = errors.New("connection stopped")

type Options struct {
	// URL is the websocket address of the hub, e.g.
	// ws://localhost:5000/hubs/messagehub.
	URL             string
	PingInterval    time.Duration
	ServerTimeout   time.Duration
	ReconnectDelays []time.Duration
	Dialer          *websocket.Dialer
	Clock           clock.Clock
	Logger          *logger.Logger
}

// Connection is a Hub over a websocket speaking the hub JSON protocol.
type Connection struct {
	opts   Options
	events *Events
	log    *logger.Logger
	clock  clock.Clock

	mu        sync.Mutex
	state     State
	token     string
	conn      *websocket.Conn
	session   int64
	stopped   bool
	binder    func(*Events)
	cancelRec context.CancelFunc

	writeMu sync.Mutex
}

func NewConnection(opts Options) *Connection {
	if opts.PingInterval <= 0 {
		opts.PingInterval = 15 * time.Second
	}
	if opts.ServerTimeout <= 0 {
		opts.ServerTimeout = 30 * time.Second
	}
	if opts.ReconnectDelays == nil {
		opts.ReconnectDelays = DefaultReconnectDelays
	}
	if opts.Dialer == nil {
		opts.Dialer = &websocket.Dialer{HandshakeTimeout: handshakeTimeout}
	}
	if opts.Clock == nil {
		opts.Clock = clock.New()
	}
	if opts.Logger == nil {
		opts.Logger = logger.NewNop()
	}
	return &Connection{
		opts:   opts,
		events: NewEvents(),
		log:    opts.Logger.With("connection", uuid.NewString()),
		clock:  opts.Clock,
	}
}

func (c *Connection) Events() *Events { return c.events }

func (c *Connection) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

func (c *Connection) Bind(attach func(*Events)) {
	c.mu.Lock()
	c.binder = attach
	connected := c.state == Connected
	c.mu.Unlock()

	if connected {
		c.events.ClearHandlers()
		attach(c.events)
	}
}

// Connect opens the hub connection. It is a no-op while connected; a
// stale connection left in any other state is torn down first.
func (c *Connection) Connect(ctx context.Context, token string) error {
	if token == "" {
		return apperrors.ErrMissingToken
	}

	c.mu.Lock()
	if c.state == Connected {
		c.mu.Unlock()
		return nil
	}
	stale := c.detachLocked()
	c.token = token
	c.stopped = false
	c.mu.Unlock()
	closeQuietly(stale)

	c.setState(Connecting)
	if err := c.dial(ctx, token); err != nil {
		c.setState(Disconnected)
		c.log.Warn("failed to connect to message hub", "err", err)
		return apperrors.ErrConnectFailed(err)
	}
	return nil
}

// Disconnect closes the connection and stops any reconnect in progress.
func (c *Connection) Disconnect() error {
	c.mu.Lock()
	c.stopped = true
	ws := c.detachLocked()
	c.mu.Unlock()

	var err error
	if ws != nil {
		c.writeMu.Lock()
		_ = ws.SetWriteDeadline(time.Now().Add(writeWait))
		_ = ws.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
		c.writeMu.Unlock()
		err = ws.Close()
	}
	c.setState(Disconnected)
	return err
}

// detachLocked invalidates the current session and returns its socket.
func (c *Connection) detachLocked() *websocket.Conn {
	c.session++
	if c.cancelRec != nil {
		c.cancelRec()
		c.cancelRec = nil
	}
	ws := c.conn
	c.conn = nil
	return ws
}

func (c *Connection) SendTyping(peerID int64) {
	c.invoke(TargetTyping, peerID)
}

func (c *Connection) SendStopTyping(peerID int64) {
	c.invoke(TargetStopTyping, peerID)
}

func (c *Connection) MarkAsRead(messageID, senderID int64) {
	c.invoke(TargetMarkAsRead, messageID, senderID)
}

func (c *Connection) JoinUserGroup(userID int64) {
	c.invoke(TargetJoinUserGroup, userID)
}

func (c *Connection) LeaveUserGroup(userID int64) {
	c.invoke(TargetLeaveUserGroup, userID)
}

func (c *Connection) invoke(target string, args ...interface{}) {
	c.mu.Lock()
	ws, state := c.conn, c.state
	c.mu.Unlock()

	if ws == nil || state != Connected {
		c.log.Debug("dropping invocation while not connected", "target", target)
		return
	}
	payload, err := encodeInvocation(target, args...)
	if err != nil {
		c.log.Error("failed to encode invocation", "target", target, "err", err)
		return
	}
	if err := c.write(ws, payload); err != nil {
		c.log.Warn("failed to send invocation", "target", target, "err", err)
	}
}

func (c *Connection) write(ws *websocket.Conn, payload []byte) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	_ = ws.SetWriteDeadline(time.Now().Add(writeWait))
	return ws.WriteMessage(websocket.TextMessage, payload)
}

func (c *Connection) endpoint(token string) (string, error) {
	u, err := url.Parse(c.opts.URL)
	if err != nil {
		return "", fmt.Errorf("failed to parse hub url: %w", err)
	}
	q := u.Query()
	q.Set("access_token", token)
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// dial opens a socket, performs the protocol handshake and starts the
// read and ping pumps for a new session.
func (c *Connection) dial(ctx context.Context, token string) error {
	endpoint, err := c.endpoint(token)
	if err != nil {
		return err
	}
	ws, _, err := c.opts.Dialer.DialContext(ctx, endpoint, nil)
	if err != nil {
		return fmt.Errorf("failed to dial hub: %w", err)
	}
	rest, err := c.handshake(ws)
	if err != nil {
		ws.Close()
		return err
	}

	c.mu.Lock()
	if c.stopped || ctx.Err() != nil {
		c.mu.Unlock()
		ws.Close()
		return errStopped
	}
	c.session++
	sess := c.session
	c.conn = ws
	c.mu.Unlock()

	// handlers must be attached before the first frame is read
	c.setState(Connected)

	done := make(chan struct{})
	go c.readPump(ws, sess, rest, done)
	go c.pingPump(ws, done)
	return nil
}

func (c *Connection) handshake(ws *websocket.Conn) ([][]byte, error) {
	if err := c.write(ws, handshakeRequest); err != nil {
		return nil, fmt.Errorf("failed to send handshake: %w", err)
	}
	_ = ws.SetReadDeadline(time.Now().Add(handshakeTimeout))
	_, data, err := ws.ReadMessage()
	if err != nil {
		return nil, fmt.Errorf("failed to read handshake response: %w", err)
	}
	records := splitFrames(data)
	if len(records) == 0 {
		return nil, errors.New("empty handshake response")
	}
	if err := parseHandshake(records[0]); err != nil {
		return nil, err
	}
	return records[1:], nil
}

func (c *Connection) readPump(ws *websocket.Conn, sess int64, pending [][]byte, done chan struct{}) {
	allowReconnect, cause := c.readFrames(ws, pending)
	close(done)
	c.sessionEnded(ws, sess, cause, allowReconnect)
}

// readFrames dispatches frames until the socket fails or the hub sends a
// close frame.
func (c *Connection) readFrames(ws *websocket.Conn, pending [][]byte) (bool, error) {
	for _, rec := range pending {
		if closed, allow := c.handleFrame(rec); closed {
			return allow, errors.New("hub closed the connection")
		}
	}
	for {
		_ = ws.SetReadDeadline(time.Now().Add(c.opts.ServerTimeout))
		_, data, err := ws.ReadMessage()
		if err != nil {
			return true, err
		}
		for _, rec := range splitFrames(data) {
			if closed, allow := c.handleFrame(rec); closed {
				return allow, errors.New("hub closed the connection")
			}
		}
	}
}

// handleFrame dispatches one record and reports whether the hub closed
// the session.
func (c *Connection) handleFrame(rec []byte) (closed bool, allowReconnect bool) {
	var f frame
	if err := json.Unmarshal(rec, &f); err != nil {
		c.log.Debug("dropping undecodable frame", "err", err)
		return false, false
	}
	switch f.Type {
	case frameInvocation:
		if err := c.events.Dispatch(f.Target, f.Arguments); err != nil {
			c.log.Debug("dropping malformed hub event", "target", f.Target, "err", err)
		}
	case framePing:
	case frameClose:
		if f.Error != "" {
			c.log.Warn("hub closed the connection", "err", f.Error)
		}
		return true, f.AllowReconnect
	}
	return false, false
}

func (c *Connection) pingPump(ws *websocket.Conn, done chan struct{}) {
	ticker := c.clock.Ticker(c.opts.PingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			if err := c.write(ws, pingFrame); err != nil {
				return
			}
		}
	}
}

// sessionEnded starts reconnecting unless the session was replaced or
// stopped on purpose.
func (c *Connection) sessionEnded(ws *websocket.Conn, sess int64, cause error, allowReconnect bool) {
	c.mu.Lock()
	if sess != c.session || c.stopped {
		c.mu.Unlock()
		ws.Close()
		return
	}
	c.conn = nil
	ctx, cancel := context.WithCancel(context.Background())
	c.cancelRec = cancel
	c.mu.Unlock()
	ws.Close()

	if !allowReconnect {
		cancel()
		c.setState(Disconnected)
		return
	}
	c.log.Warn("hub connection lost", "err", cause)
	c.setState(Reconnecting)
	c.reconnect(ctx)
}

func (c *Connection) reconnect(ctx context.Context) {
	delays := c.opts.ReconnectDelays
	if len(delays) == 0 {
		c.setState(Disconnected)
		return
	}
	if first := delays[0]; first > 0 {
		t := c.clock.Timer(first)
		select {
		case <-ctx.Done():
			t.Stop()
			return
		case <-t.C:
		}
	}

	attempt := 0
	op := func() error {
		attempt++
		c.mu.Lock()
		token, stopped := c.token, c.stopped
		c.mu.Unlock()
		if stopped {
			return backoff.Permanent(errStopped)
		}
		c.log.Info("reconnecting to message hub", "attempt", attempt)
		err := c.dial(ctx, token)
		if errors.Is(err, errStopped) {
			return backoff.Permanent(err)
		}
		return err
	}
	notify := func(err error, next time.Duration) {
		c.log.Warn("reconnect attempt failed", "attempt", attempt, "retry_in", next, "err", err)
	}

	b := backoff.WithContext(newSchedule(delays[1:]), ctx)
	err := backoff.RetryNotifyWithTimer(op, b, notify, &clockTimer{clk: c.clock})
	if err == nil {
		return
	}
	if errors.Is(err, errStopped) || ctx.Err() != nil {
		return
	}
	c.log.Error("giving up on message hub", "attempts", attempt, "err", apperrors.ErrConnectFailed(err))

	c.mu.Lock()
	if c.conn == nil && !c.stopped {
		c.cancelRec = nil
		c.mu.Unlock()
		c.setState(Disconnected)
		return
	}
	c.mu.Unlock()
}

// setState records s and, on entering Connected, clears every event
// handler and re-attaches them through the binder before publishing.
func (c *Connection) setState(s State) {
	c.mu.Lock()
	if c.state == s {
		c.mu.Unlock()
		return
	}
	c.state = s
	binder := c.binder
	c.mu.Unlock()

	if s == Connected {
		c.events.ClearHandlers()
		if binder != nil {
			binder(c.events)
		}
	}
	c.log.Info("hub connection state changed", "state", s.String())
	c.events.States.Publish(s)
}

func closeQuietly(ws *websocket.Conn) {
	if ws != nil {
		ws.Close()
	}
}

var _ Hub = (*Connection)(nil)
