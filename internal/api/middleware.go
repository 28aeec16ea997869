// ReelSync - Offline-First Movie Recommendation Sync Engine
// Copyright 2026 M. Veldt (mveldt)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/mveldt/reelsync

package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-chi/httprate"

	"github.com/mveldt/reelsync/internal/config"
	"github.com/mveldt/reelsync/internal/logging"
	"github.com/mveldt/reelsync/internal/metrics"
)

// corsMiddleware builds the CORS handler. The default config allows any
// origin: the bridge binds loopback, so reachability is the boundary and
// the desktop shell's origin varies by packaging. Narrow it with
// server.cors_origins when the shell's origin is fixed.
func corsMiddleware(cfg config.ServerConfig) func(http.Handler) http.Handler {
	return cors.Handler(cors.Options{
		AllowedOrigins: cfg.CORSOrigins,
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Content-Type"},
		MaxAge:         86400,
	})
}

// rateLimitMiddleware limits per client IP.
func rateLimitMiddleware(cfg config.ServerConfig) func(http.Handler) http.Handler {
	requests := cfg.RateLimitReqs
	if requests <= 0 {
		requests = 100
	}
	window := cfg.RateLimitWindow
	if window <= 0 {
		window = time.Minute
	}
	return httprate.LimitByIP(requests, window)
}

// requestLogger logs each request through zerolog and records API
// metrics, using chi's route pattern to keep label cardinality bounded.
func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := chimiddleware.NewWrapResponseWriter(w, r.ProtoMajor)

		next.ServeHTTP(ww, r)

		routeCtx := chi.RouteContext(r.Context())
		pattern := r.URL.Path
		if routeCtx != nil && routeCtx.RoutePattern() != "" {
			pattern = routeCtx.RoutePattern()
		}

		took := time.Since(start)
		metrics.RecordAPIRequest(r.Method, pattern, ww.Status(), took)
		logging.Debug().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", ww.Status()).
			Dur("took", took).
			Msg("api request")
	})
}
