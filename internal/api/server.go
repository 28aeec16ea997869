// ReelSync - Offline-First Movie Recommendation Sync Engine
// Copyright 2026 M. Veldt (mveldt)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/mveldt/reelsync

package api

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/mveldt/reelsync/internal/config"
	"github.com/mveldt/reelsync/internal/logging"
)

// shutdownGrace is how long in-flight requests get to finish on stop.
const shutdownGrace = 10 * time.Second

// Server runs the bridge HTTP server as a suture service.
type Server struct {
	srv *http.Server
}

// NewServer builds the HTTP server around the router.
func NewServer(cfg config.ServerConfig, handler http.Handler) *Server {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Server{
		srv: &http.Server{
			Addr:         cfg.Addr(),
			Handler:      handler,
			ReadTimeout:  timeout,
			WriteTimeout: timeout,
			IdleTimeout:  2 * timeout,
		},
	}
}

// Serve runs the server until the context is canceled, then drains
// in-flight requests.
func (s *Server) Serve(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		logging.Info().Str("addr", s.srv.Addr).Msg("bridge API listening")
		errCh <- s.srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
	defer cancel()
	if err := s.srv.Shutdown(shutdownCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	logging.Info().Msg("bridge API stopped")
	return ctx.Err()
}

func (s *Server) String() string { return "http-server" }
