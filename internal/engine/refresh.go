// ReelSync - Offline-First Movie Recommendation Sync Engine
// Copyright 2026 M. Veldt (mveldt)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/mveldt/reelsync

package engine

import (
	"context"
	"errors"
	"fmt"

	"github.com/mveldt/reelsync/internal/events"
	"github.com/mveldt/reelsync/internal/logging"
	"github.com/mveldt/reelsync/internal/models"
	"github.com/mveldt/reelsync/internal/normalize"
	"github.com/mveldt/reelsync/internal/remote"
)

// RefreshAll refreshes every ancillary dataset for a user: subscription,
// streamer profile (and its genre list), and the carousel lists. Each
// dataset is best-effort; one failing fetch does not abort the rest. The
// returned error joins whatever failed.
//
// Recommendations are refreshed separately through FetchRecommendations,
// which owns the last-caller-wins semantics.
func (e *Engine) RefreshAll(ctx context.Context, userID string) error {
	e.rememberUser(userID)

	var errs []error

	if _, _, err := e.Subscription(ctx, userID); err != nil {
		errs = append(errs, fmt.Errorf("subscription: %w", err))
	}
	if err := e.refreshProfile(ctx, userID); err != nil {
		errs = append(errs, fmt.Errorf("streamer profile: %w", err))
	}
	for _, dataset := range models.CarouselDatasets {
		if err := e.refreshCarousel(ctx, dataset, userID); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", dataset, err))
		}
	}

	if len(errs) > 0 {
		err := errors.Join(errs...)
		logging.Warn().Err(err).Str("user", userID).Msg("partial dataset refresh")
		return err
	}
	logging.Info().Str("user", userID).Msg("all datasets refreshed")
	return nil
}

// refreshProfile fetches the streamer profile and derives the cached
// genre list from it.
func (e *Engine) refreshProfile(ctx context.Context, userID string) error {
	profile, err := e.remote.GetStreamerProfile(ctx, userID)
	if err != nil {
		if remote.IsUnavailable(err) {
			e.monitor.SetOnline(false)
		}
		return err
	}
	if err := profile.Validate(); err != nil {
		return err
	}

	if err := e.store.SaveDataset(ctx, models.DatasetStreamerProfile, profile); err != nil {
		return err
	}
	if err := e.store.SaveDataset(ctx, models.DatasetUserGenres, profile.Genres); err != nil {
		return err
	}

	e.bus.Publish(events.TypeCacheRefreshed, map[string]string{
		"dataset": models.DatasetStreamerProfile,
	})
	return nil
}

// refreshCarousel fetches one carousel list and persists its normalized
// form.
func (e *Engine) refreshCarousel(ctx context.Context, dataset, userID string) error {
	raw, err := e.remote.GetCarousel(ctx, dataset, userID)
	if err != nil {
		if remote.IsUnavailable(err) {
			e.monitor.SetOnline(false)
		}
		return err
	}

	if err := e.store.SaveDataset(ctx, dataset, normalize.Movies(raw)); err != nil {
		return err
	}

	e.bus.Publish(events.TypeCacheRefreshed, map[string]string{"dataset": dataset})
	return nil
}
