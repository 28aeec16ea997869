// ReelSync - Offline-First Movie Recommendation Sync Engine
// Copyright 2026 M. Veldt (mveldt)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/mveldt/reelsync

package api

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/goccy/go-json"

	"github.com/mveldt/reelsync/internal/engine"
	"github.com/mveldt/reelsync/internal/models"
	"github.com/mveldt/reelsync/internal/remote"
)

// Handlers holds the bridge API handlers.
type Handlers struct {
	engine   *engine.Engine
	validate *validator.Validate
}

// NewHandlers creates the handler set.
func NewHandlers(eng *engine.Engine) *Handlers {
	return &Handlers{
		engine:   eng,
		validate: validator.New(),
	}
}

// recommendationsPayload is the data half of recommendation responses.
type recommendationsPayload struct {
	Movies []models.Movie `json:"movies"`
	Count  int            `json:"count"`
}

// GetRecommendations serves the recommendation list, cache-first offline.
func (h *Handlers) GetRecommendations(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userID")

	movies, stale, err := h.engine.FetchRecommendations(r.Context(), userID)
	if err != nil {
		h.writeEngineError(w, err)
		return
	}
	if movies == nil {
		movies = []models.Movie{}
	}
	writeStale(w, recommendationsPayload{Movies: movies, Count: len(movies)}, stale)
}

// regenerateRequest narrows a model rebuild.
type regenerateRequest struct {
	Genres        []string `json:"genres"`
	ExcludeTitles []string `json:"excludeTitles"`
}

// Regenerate triggers a remote model rebuild. Fails with 503 when
// offline: regeneration has no cached equivalent.
func (h *Handlers) Regenerate(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userID")

	var req regenerateRequest
	if r.Body != nil && r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, ErrCodeBadRequest, "malformed request body")
			return
		}
	}

	movies, err := h.engine.Regenerate(r.Context(), userID, models.RegeneratePrefs{
		Genres:        req.Genres,
		ExcludeTitles: req.ExcludeTitles,
	})
	if err != nil {
		h.writeEngineError(w, err)
		return
	}
	if movies == nil {
		movies = []models.Movie{}
	}
	writeData(w, recommendationsPayload{Movies: movies, Count: len(movies)})
}

// actionRequest is a user action to record.
type actionRequest struct {
	Type    string `json:"type" validate:"required,oneof=like save history delete"`
	UserID  string `json:"userId" validate:"required"`
	MovieID string `json:"movieId" validate:"required"`
}

// actionPayload reports how an action was handled.
type actionPayload struct {
	Queued bool `json:"queued"`
}

// RecordAction records a user action, queueing it when offline.
func (h *Handlers) RecordAction(w http.ResponseWriter, r *http.Request) {
	var req actionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, ErrCodeBadRequest, "malformed request body")
		return
	}
	if err := h.validate.Struct(&req); err != nil {
		writeError(w, http.StatusBadRequest, ErrCodeValidationFailed, err.Error())
		return
	}

	action, err := models.ParseActionType(req.Type)
	if err != nil {
		writeError(w, http.StatusBadRequest, ErrCodeValidationFailed, err.Error())
		return
	}

	queued, err := h.engine.RecordAction(r.Context(), action, req.UserID, req.MovieID)
	if err != nil {
		h.writeEngineError(w, err)
		return
	}
	writeData(w, actionPayload{Queued: queued})
}

// Drain replays all pending mutations now.
func (h *Handlers) Drain(w http.ResponseWriter, r *http.Request) {
	report, err := h.engine.DrainQueues(r.Context())
	if err != nil {
		h.writeEngineError(w, err)
		return
	}
	writeData(w, report)
}

// refreshPayload reports a dataset refresh outcome.
type refreshPayload struct {
	Complete bool   `json:"complete"`
	Error    string `json:"error,omitempty"`
}

// Refresh re-fetches all ancillary datasets for a user. Partial failure
// is a 200 with complete=false: whatever could refresh, did.
func (h *Handlers) Refresh(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userID")

	if !h.engine.Online() {
		writeError(w, http.StatusServiceUnavailable, ErrCodeOffline, "offline")
		return
	}

	if err := h.engine.RefreshAll(r.Context(), userID); err != nil {
		writeData(w, refreshPayload{Complete: false, Error: err.Error()})
		return
	}
	writeData(w, refreshPayload{Complete: true})
}

// subscriptionPayload wraps subscription responses.
type subscriptionPayload struct {
	Subscription *models.Subscription `json:"subscription"`
}

// GetSubscription serves subscription status, cache-first offline.
func (h *Handlers) GetSubscription(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userID")

	sub, stale, err := h.engine.Subscription(r.Context(), userID)
	if err != nil {
		h.writeEngineError(w, err)
		return
	}
	writeStale(w, subscriptionPayload{Subscription: sub}, stale)
}

// GetStatus reports connectivity, queue depths, and store stats.
func (h *Handlers) GetStatus(w http.ResponseWriter, r *http.Request) {
	status, err := h.engine.Status(r.Context())
	if err != nil {
		h.writeEngineError(w, err)
		return
	}
	writeData(w, status)
}

// GetRecentEvents serves the buffered lifecycle events, oldest first.
func (h *Handlers) GetRecentEvents(w http.ResponseWriter, r *http.Request) {
	writeData(w, h.engine.RecentEvents())
}

// Healthz is the liveness probe.
func (h *Handlers) Healthz(w http.ResponseWriter, r *http.Request) {
	writeData(w, map[string]string{"status": "ok"})
}

// writeEngineError maps engine and remote errors onto HTTP statuses.
func (h *Handlers) writeEngineError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, engine.ErrUnavailable):
		writeError(w, http.StatusServiceUnavailable, ErrCodeOffline, "offline")
	case remote.IsConflict(err):
		writeError(w, http.StatusConflict, ErrCodeConflict, err.Error())
	default:
		writeError(w, http.StatusInternalServerError, ErrCodeInternalError, err.Error())
	}
}
