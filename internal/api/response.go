// ReelSync - Offline-First Movie Recommendation Sync Engine
// Copyright 2026 M. Veldt (mveldt)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/mveldt/reelsync

// Package api is the local HTTP bridge the UI talks to. It is the only
// consumer surface of the sync engine: every response is served from
// engine state, never by proxying the remote directly.
package api

import (
	"net/http"

	"github.com/goccy/go-json"

	"github.com/mveldt/reelsync/internal/logging"
)

// Response is the envelope for all bridge API responses.
type Response struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Error   *Error      `json:"error,omitempty"`

	// Stale marks data served from the local cache because the remote
	// was unreachable.
	Stale bool `json:"stale,omitempty"`
}

// Error is the error half of the envelope.
type Error struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Error codes.
const (
	ErrCodeBadRequest       = "BAD_REQUEST"
	ErrCodeNotFound         = "NOT_FOUND"
	ErrCodeValidationFailed = "VALIDATION_FAILED"
	ErrCodeOffline          = "OFFLINE"
	ErrCodeConflict         = "CONFLICT"
	ErrCodeInternalError    = "INTERNAL_ERROR"
)

// writeJSON writes the envelope with the given status.
func writeJSON(w http.ResponseWriter, status int, resp Response) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		logging.Error().Err(err).Msg("api: write response failed")
	}
}

// writeData writes a 200 success envelope.
func writeData(w http.ResponseWriter, data interface{}) {
	writeJSON(w, http.StatusOK, Response{Success: true, Data: data})
}

// writeStale writes a 200 success envelope with the stale marker.
func writeStale(w http.ResponseWriter, data interface{}, stale bool) {
	writeJSON(w, http.StatusOK, Response{Success: true, Data: data, Stale: stale})
}

// writeError writes an error envelope.
func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, Response{
		Success: false,
		Error:   &Error{Code: code, Message: message},
	})
}
