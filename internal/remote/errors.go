// ReelSync - Offline-First Movie Recommendation Sync Engine
// Copyright 2026 M. Veldt (mveldt)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/mveldt/reelsync

package remote

import (
	"errors"
	"fmt"
)

// Replay failures fall into exactly two classes, and the drain loop treats
// them differently: unavailable mutations are retained for a later drain,
// conflicting mutations are dropped after one logged attempt.
var (
	// ErrUnavailable means the remote could not be reached or answered with
	// a server-side failure (network error, timeout, 5xx, 429 after
	// retries, open circuit). The request may have never arrived.
	ErrUnavailable = errors.New("remote unavailable")

	// ErrConflict means the remote definitively rejected the request
	// (4xx). Retrying the identical request can never succeed.
	ErrConflict = errors.New("remote rejected request")
)

// StatusError carries the HTTP status behind a classified error.
type StatusError struct {
	Endpoint string
	Status   int
	Body     string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s returned status %d: %s", e.Endpoint, e.Status, e.Body)
}

// Unwrap maps the status onto the two replay classes.
func (e *StatusError) Unwrap() error {
	if e.Status >= 400 && e.Status < 500 {
		return ErrConflict
	}
	return ErrUnavailable
}

// classifyStatus builds the classified error for a non-2xx response.
func classifyStatus(endpoint string, status int, body string) error {
	return &StatusError{Endpoint: endpoint, Status: status, Body: body}
}

// IsUnavailable reports whether err is a retainable remote failure.
func IsUnavailable(err error) bool {
	return errors.Is(err, ErrUnavailable)
}

// IsConflict reports whether err is a definitive remote rejection.
func IsConflict(err error) bool {
	return errors.Is(err, ErrConflict)
}
