// ReelSync - Offline-First Movie Recommendation Sync Engine
// Copyright 2026 M. Veldt (mveldt)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/mveldt/reelsync

package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/mveldt/reelsync/internal/config"
)

// NewRouter builds the bridge API router.
func NewRouter(cfg config.ServerConfig, h *Handlers) chi.Router {
	r := chi.NewRouter()

	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(requestLogger)
	r.Use(chimiddleware.Recoverer)
	r.Use(corsMiddleware(cfg))
	r.Use(rateLimitMiddleware(cfg))

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/recommendations/{userID}", h.GetRecommendations)
		r.Post("/recommendations/{userID}/regenerate", h.Regenerate)
		r.Post("/actions", h.RecordAction)
		r.Post("/sync/drain", h.Drain)
		r.Post("/sync/refresh/{userID}", h.Refresh)
		r.Get("/subscription/{userID}", h.GetSubscription)
		r.Get("/status", h.GetStatus)
		r.Get("/events/recent", h.GetRecentEvents)
	})

	r.Get("/healthz", h.Healthz)
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, http.StatusNotFound, ErrCodeNotFound, "no such route")
	})

	return r
}
