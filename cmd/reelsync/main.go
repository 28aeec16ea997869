// ReelSync - Offline-First Movie Recommendation Sync Engine
// Copyright 2026 M. Veldt (mveldt)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/mveldt/reelsync

// Command reelsync runs the offline-first recommendation sync daemon:
// a local cache and pending-action queue in front of the remote
// recommendation service, exposed to the UI through a loopback HTTP
// bridge.
package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/mveldt/reelsync/internal/api"
	"github.com/mveldt/reelsync/internal/config"
	"github.com/mveldt/reelsync/internal/connectivity"
	"github.com/mveldt/reelsync/internal/engine"
	"github.com/mveldt/reelsync/internal/events"
	"github.com/mveldt/reelsync/internal/logging"
	"github.com/mveldt/reelsync/internal/remote"
	"github.com/mveldt/reelsync/internal/store"
	"github.com/mveldt/reelsync/internal/supervisor"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logging.Fatal().Err(err).Msg("failed to load configuration")
	}

	logging.Init(logging.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Caller: cfg.Logging.Caller,
	})

	logging.Info().
		Str("remote_url", cfg.Remote.URL).
		Str("store_path", cfg.Store.Path).
		Str("listen", cfg.Server.Addr()).
		Msg("starting reelsync")

	st, err := store.Open(cfg.Store)
	if err != nil {
		logging.Fatal().Err(err).Msg("failed to open local cache")
	}
	defer func() {
		if err := st.Close(); err != nil {
			logging.Error().Err(err).Msg("error closing local cache")
		}
	}()

	var remoteClient remote.Service = remote.NewClient(cfg.Remote)
	if cfg.Remote.BreakerEnabled {
		remoteClient = remote.NewBreakerClient(remoteClient)
	}

	monitor := connectivity.NewMonitor(remoteClient, cfg.Connectivity)
	bus := events.NewBus(cfg.Sync.EventBufferSize)
	defer func() {
		if err := bus.Close(); err != nil {
			logging.Error().Err(err).Msg("error closing event bus")
		}
	}()

	eng := engine.NewEngine(st, remoteClient, monitor, bus, cfg.Sync)

	router := api.NewRouter(cfg.Server, api.NewHandlers(eng))
	server := api.NewServer(cfg.Server, router)

	tree := supervisor.NewTree(supervisor.DefaultTreeConfig())
	tree.AddDataService(store.NewGCService(st))
	tree.AddSyncService(monitor)
	tree.AddSyncService(eng)
	tree.AddSyncService(events.NewForwarder(bus))
	tree.AddAPIService(server)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		logging.Info().Str("signal", sig.String()).Msg("received shutdown signal")
		cancel()
	}()

	if err := tree.Serve(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logging.Error().Err(err).Msg("supervisor tree error")
	}

	logging.Info().Msg("reelsync stopped")
}
