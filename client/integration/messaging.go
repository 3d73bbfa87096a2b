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

package integration

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/gorilla/mux"
	"github.com/redis/go-redis/v9"
	"go.uber.org/multierr"

	"github.com/efchatnet/efmsg/client/config"
	"github.com/efchatnet/efmsg/client/controller"
	"github.com/efchatnet/efmsg/client/handlers"
	"github.com/efchatnet/efmsg/client/logger"
	"github.com/efchatnet/efmsg/client/middleware"
	"github.com/efchatnet/efmsg/client/restapi"
	"github.com/efchatnet/efmsg/client/session"
	"github.com/efchatnet/efmsg/client/transport"
	"github.com/efchatnet/efmsg/client/transport/redisbus"
)

// Messaging wires the messaging view together so it can be embedded into
// another server or run on its own.
type Messaging struct {
	cfg        *config.Config
	session    *session.Session
	api        *restapi.Client
	hub        transport.Hub
	redis      *redis.Client
	controller *controller.Controller
	handler    *handlers.MessagesHandler
	log        *logger.Logger
}

// Options overrides collaborators, mostly for tests.
type Options struct {
	Clock      clock.Clock
	HTTPClient *http.Client
	Logger     *logger.Logger
}

// NewMessaging validates cfg and builds the session, the REST client, the
// hub transport named by cfg.Transport.Kind and the controller.
func NewMessaging(cfg *config.Config, opts Options) (*Messaging, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	log := opts.Logger
	if log == nil {
		log = logger.NewNop()
	}
	if opts.Clock == nil {
		opts.Clock = clock.New()
	}

	sess, err := session.New(cfg.Token, cfg.UserID)
	if err != nil {
		return nil, fmt.Errorf("failed to open session: %w", err)
	}
	log = log.With("user", sess.UserID())

	api, err := restapi.NewClient(restapi.Options{
		BaseURL:    cfg.API.URL,
		Token:      sess.Token(),
		Timeout:    cfg.API.Timeout,
		HTTPClient: opts.HTTPClient,
		Logger:     log,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create api client: %w", err)
	}

	m := &Messaging{
		cfg:     cfg,
		session: sess,
		api:     api,
		log:     log,
	}

	switch cfg.Transport.Kind {
	case config.TransportRedis:
		m.redis = redis.NewClient(&redis.Options{Addr: cfg.Transport.RedisAddr})
		m.hub = redisbus.NewBus(m.redis, sess.UserID(), log)
	default:
		m.hub = transport.NewConnection(transport.Options{
			URL:          HubURL(cfg.Hub),
			PingInterval: cfg.Transport.PingInterval,
			Clock:        opts.Clock,
			Logger:       log,
		})
	}

	m.controller, err = controller.New(controller.Options{
		UserID:         sess.UserID(),
		Token:          sess.Token(),
		Hub:            m.hub,
		API:            api,
		Messaging:      cfg.Messaging,
		RequestTimeout: cfg.API.Timeout,
		Clock:          opts.Clock,
		Logger:         log,
	})
	if err != nil {
		return nil, multierr.Append(err, m.closeRedis())
	}
	m.handler = handlers.NewMessagesHandler(m.controller, cfg.Server.AllowedOrigins, log)
	return m, nil
}

// HubURL joins the hub base url and the hub path.
func HubURL(hub config.HubConfig) string {
	if hub.Path == "" {
		return hub.URL
	}
	return strings.TrimSuffix(hub.URL, "/") + "/" + strings.TrimPrefix(hub.Path, "/")
}

// Start connects the hub and loads the conversation list.
func (m *Messaging) Start(ctx context.Context) error {
	if m.session.Expired(time.Now()) {
		m.log.Warn("bearer token has expired, requests will likely be rejected")
	}
	return m.controller.Start(ctx)
}

// RegisterRoutes adds the view API to an existing router.
// If authMiddleware is nil, requests must present the session's own token.
func (m *Messaging) RegisterRoutes(router *mux.Router, authMiddleware func(http.Handler) http.Handler) {
	api := router.PathPrefix("/api/messages").Subrouter()

	api.Use(middleware.NewCORS(m.cfg.Server.AllowedOrigins))
	if authMiddleware != nil {
		api.Use(authMiddleware)
	} else {
		api.Use(middleware.NewAuthMiddleware(m.session.Token(), m.session.UserID()))
	}

	m.handler.Register(api)
}

// Health reports whether the hub is connected. REST keeps working without
// it, so callers usually treat this as degraded rather than down.
func (m *Messaging) Health(ctx context.Context) error {
	if m.redis != nil {
		if err := m.redis.Ping(ctx).Err(); err != nil {
			return fmt.Errorf("redis unavailable: %w", err)
		}
	}
	if s := m.hub.State(); s != transport.Connected {
		return fmt.Errorf("message hub is %s", s)
	}
	return nil
}

func (m *Messaging) Controller() *controller.Controller {
	return m.controller
}

func (m *Messaging) Session() *session.Session {
	return m.session
}

// Close stops the controller and releases the transport.
func (m *Messaging) Close() error {
	return multierr.Combine(m.controller.Stop(), m.closeRedis())
}

func (m *Messaging) closeRedis() error {
	if m.redis == nil {
		return nil
	}
	return m.redis.Close()
}
