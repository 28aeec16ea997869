// ReelSync - Offline-First Movie Recommendation Sync Engine
// Copyright 2026 M. Veldt (mveldt)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/mveldt/reelsync

package engine

import (
	"context"

	"github.com/mveldt/reelsync/internal/logging"
)

// Serve is the reconnect worker: every offline-to-online transition
// triggers a queue drain, followed (when configured) by a full dataset
// refresh for the most recent user. It implements suture.Service.
func (e *Engine) Serve(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-e.reconnect:
			e.onReconnect(ctx)
		}
	}
}

func (e *Engine) onReconnect(ctx context.Context) {
	logging.Info().Msg("connectivity restored, draining pending mutations")

	report, err := e.DrainQueues(ctx)
	if err != nil {
		logging.Error().Err(err).Msg("post-reconnect drain failed")
		return
	}
	totals := report.Totals()
	if totals.Remaining > 0 {
		// The remote flapped mid-drain; the next transition retries.
		logging.Warn().Int("remaining", totals.Remaining).Msg("drain left mutations pending")
		return
	}

	if !e.cfg.RefreshOnReconnect {
		return
	}
	userID := e.currentUser()
	if userID == "" {
		return
	}

	if _, _, err := e.FetchRecommendations(ctx, userID); err != nil {
		logging.Warn().Err(err).Msg("post-reconnect recommendation refresh failed")
	}
	if err := e.RefreshAll(ctx, userID); err != nil {
		logging.Warn().Err(err).Msg("post-reconnect dataset refresh incomplete")
	}
}

func (e *Engine) String() string { return "sync-engine" }
