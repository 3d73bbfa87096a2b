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

package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	"github.com/jessevdk/go-flags"

	"github.com/efchatnet/efmsg/client/config"
	"github.com/efchatnet/efmsg/client/integration"
	"github.com/efchatnet/efmsg/client/logger"
)

type options struct {
	Config    string `short:"c" long:"config" description:"path to a YAML config file"`
	Listen    string `short:"l" long:"listen" description:"address of the local view API"`
	Transport string `short:"t" long:"transport" choice:"websocket" choice:"redis" description:"hub transport"`
	LogLevel  string `long:"loglevel" description:"set the logging level [debug, info, warn, error]"`
}

func main() {
	var opts options
	if _, err := flags.Parse(&opts); err != nil {
		var ferr *flags.Error
		if errors.As(err, &ferr) && ferr.Type == flags.ErrHelp {
			os.Exit(0)
		}
		os.Exit(1)
	}

	cfg, err := config.Load(opts.Config)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	if opts.Listen != "" {
		cfg.Server.ListenAddr = opts.Listen
	}
	if opts.Transport != "" {
		cfg.Transport.Kind = opts.Transport
	}
	if opts.LogLevel != "" {
		cfg.Logger.Level = opts.LogLevel
	}

	logr, err := logger.NewLogger(cfg)
	if err != nil {
		log.Fatalf("Failed to create logger: %v", err)
	}
	defer logr.Sync()

	if err := run(cfg, logr); err != nil {
		logr.Error("messenger stopped", "err", err)
		logr.Sync()
		os.Exit(1)
	}
}

func run(cfg *config.Config, logr *logger.Logger) error {
	messaging, err := integration.NewMessaging(cfg, integration.Options{Logger: logr})
	if err != nil {
		return err
	}
	defer func() {
		if err := messaging.Close(); err != nil {
			logr.Warn("failed to shut down messaging", "err", err)
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	r := mux.NewRouter()
	messaging.RegisterRoutes(r, nil)

	// Health check (no auth required)
	r.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		if err := messaging.Health(r.Context()); err != nil {
			w.WriteHeader(http.StatusServiceUnavailable)
			w.Write([]byte(err.Error()))
			return
		}
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	}).Methods("GET")

	srv := &http.Server{
		Addr:              cfg.Server.ListenAddr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		if err := messaging.Start(ctx); err != nil {
			logr.Warn("initial load failed", "err", err)
		}
	}()

	serveErr := make(chan error, 1)
	go func() {
		logr.Info("view API listening", "addr", cfg.Server.ListenAddr, "transport", cfg.Transport.Kind)
		serveErr <- srv.ListenAndServe()
	}()

	select {
	case err := <-serveErr:
		if !errors.Is(err, http.ErrServerClosed) {
			return err
		}
	case <-ctx.Done():
		logr.Info("shutting down")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
