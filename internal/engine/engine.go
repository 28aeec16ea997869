// ReelSync - Offline-First Movie Recommendation Sync Engine
// Copyright 2026 M. Veldt (mveldt)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/mveldt/reelsync

// Package engine implements the offline-first sync core. It owns the
// local cache, decides when to hit the remote versus serve cached data,
// queues user actions taken while offline, and replays them when
// connectivity returns.
package engine

import (
	"context"
	"errors"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/mveldt/reelsync/internal/config"
	"github.com/mveldt/reelsync/internal/events"
	"github.com/mveldt/reelsync/internal/logging"
	"github.com/mveldt/reelsync/internal/models"
	"github.com/mveldt/reelsync/internal/normalize"
	"github.com/mveldt/reelsync/internal/remote"
	"github.com/mveldt/reelsync/internal/store"
)

// topRatedCount is how many titles the top-rated dataset keeps.
const topRatedCount = 10

// ErrUnavailable is returned for operations that require the remote and
// have no cached fallback (regeneration, first fetch with an empty cache).
var ErrUnavailable = remote.ErrUnavailable

// Connectivity is the monitor surface the engine needs.
type Connectivity interface {
	IsOnline() bool
	SetOnline(online bool)
	OnChange(fn func(online bool))
}

// Engine coordinates the cache, the remote client, and the pending
// mutation queues.
//
// Concurrency: all methods are safe for concurrent use. Recommendation
// fetches are last-caller-wins — when fetches overlap, only the most
// recently started call persists its result. Drains are singleflight —
// overlapping drain requests share one run and its report.
type Engine struct {
	store   *store.Store
	remote  remote.Service
	monitor Connectivity
	bus     *events.Bus
	cfg     config.SyncConfig

	// fetchGen implements last-caller-wins for recommendation fetches;
	// fetchMu serializes the generation re-check with the cache write so
	// a superseded fetch can never persist over the winner.
	fetchGen atomic.Uint64
	fetchMu  sync.Mutex

	mu         sync.Mutex
	inflight   *drainCall
	lastDrain  *models.SyncReport
	lastUserID string

	reconnect chan struct{}
}

// NewEngine wires the sync engine. The reconnect worker (Serve) must be
// started separately under the supervision tree.
func NewEngine(st *store.Store, rc remote.Service, monitor Connectivity, bus *events.Bus, cfg config.SyncConfig) *Engine {
	e := &Engine{
		store:     st,
		remote:    rc,
		monitor:   monitor,
		bus:       bus,
		cfg:       cfg,
		reconnect: make(chan struct{}, 1),
	}

	monitor.OnChange(func(online bool) {
		e.bus.Publish(events.TypeConnectivityChanged, map[string]string{
			"online": boolStr(online),
		})
		if online {
			select {
			case e.reconnect <- struct{}{}:
			default:
			}
		}
	})

	return e
}

// FetchRecommendations returns the recommendation list for a user.
//
// Online, it fetches from the remote, normalizes, persists the result
// (and the derived top-rated list), and returns fresh data. When the
// remote fails it falls back to the cached list; stale reports which
// one the caller got, and an empty cache surfaces the remote error.
// Offline, the cached list is served directly — an empty cache yields
// an empty list, not an error.
//
// An empty fresh list is a valid result: it is persisted and returned
// with no error.
//
// Overlapping fetches are last-caller-wins: only the most recently
// started call persists and returns its remote result; a superseded
// call is answered from the cache.
func (e *Engine) FetchRecommendations(ctx context.Context, userID string) (movies []models.Movie, stale bool, err error) {
	e.rememberUser(userID)

	if !e.monitor.IsOnline() {
		return e.cachedRecommendations(ctx, nil)
	}

	gen := e.fetchGen.Add(1)

	raw, err := e.remote.GetRecommendations(ctx, userID)
	if err != nil {
		if remote.IsUnavailable(err) {
			e.monitor.SetOnline(false)
		}
		return e.cachedRecommendations(ctx, err)
	}
	e.monitor.SetOnline(true)

	fresh := normalize.Movies(raw)

	// A newer fetch started while this one was in flight; its result is
	// the one that counts. The generation check and the cache write share
	// a lock so a fetch superseded mid-save still cannot clobber the
	// winner. The superseded caller is served the cache, never its own
	// out-of-date list.
	e.fetchMu.Lock()
	if e.fetchGen.Load() != gen {
		e.fetchMu.Unlock()
		return e.cachedRecommendations(ctx, nil)
	}

	if err := e.store.SaveDataset(ctx, models.DatasetRecommended, fresh); err != nil {
		e.fetchMu.Unlock()
		return nil, false, err
	}
	if err := e.store.SaveDataset(ctx, models.DatasetTopRated, normalize.TopRated(fresh, topRatedCount)); err != nil {
		e.fetchMu.Unlock()
		return nil, false, err
	}
	e.fetchMu.Unlock()

	e.bus.Publish(events.TypeCacheRefreshed, map[string]string{
		"dataset": models.DatasetRecommended,
		"count":   strconv.Itoa(len(fresh)),
	})
	return fresh, false, nil
}

// cachedRecommendations serves the cached list after a failed or skipped
// remote fetch. cause is non-nil only when a remote call actually failed;
// it is surfaced when there is no cache to fall back on. A plain offline
// read with no cache returns an empty list.
func (e *Engine) cachedRecommendations(ctx context.Context, cause error) ([]models.Movie, bool, error) {
	var cached []models.Movie
	found, err := e.store.LoadDataset(ctx, models.DatasetRecommended, &cached)
	if err != nil {
		return nil, false, err
	}
	if !found {
		if cause != nil {
			return nil, false, errors.Join(ErrUnavailable, cause)
		}
		return []models.Movie{}, false, nil
	}
	logging.Debug().Int("count", len(cached)).Msg("serving cached recommendations")
	return cached, true, nil
}

// Regenerate asks the remote to rebuild the user's recommendation model
// and refreshes the cache with the new list. Regeneration is remote-side
// computation: offline there is nothing to fall back to, so the call
// fails with ErrUnavailable instead of pretending.
func (e *Engine) Regenerate(ctx context.Context, userID string, prefs models.RegeneratePrefs) ([]models.Movie, error) {
	e.rememberUser(userID)

	if !e.monitor.IsOnline() {
		return nil, ErrUnavailable
	}

	if err := e.remote.Regenerate(ctx, userID, prefs); err != nil {
		if remote.IsUnavailable(err) {
			e.monitor.SetOnline(false)
		}
		return nil, err
	}

	movies, _, err := e.FetchRecommendations(ctx, userID)
	return movies, err
}

// RecordAction applies a user action. Online it goes straight to the
// remote; offline, or when the remote turns out to be unreachable, the
// action is queued for later replay. queued reports which path was taken.
//
// A conflict answer from the remote is surfaced to the caller and never
// queued: replaying it could not succeed.
func (e *Engine) RecordAction(ctx context.Context, action models.ActionType, userID, movieID string) (queued bool, err error) {
	e.rememberUser(userID)

	if e.monitor.IsOnline() {
		err := e.remote.RecordAction(ctx, action, userID, movieID)
		if err == nil {
			e.bus.Publish(events.TypeActionRecorded, map[string]string{
				"action": string(action),
				"movie":  movieID,
			})
			return false, nil
		}
		if remote.IsConflict(err) {
			return false, err
		}
		e.monitor.SetOnline(false)
	}

	if err := e.enqueue(ctx, action, userID, movieID); err != nil {
		return false, err
	}
	return true, nil
}

func (e *Engine) enqueue(ctx context.Context, action models.ActionType, userID, movieID string) error {
	err := e.store.Enqueue(ctx, models.PendingMutation{
		Type:      action,
		UserID:    userID,
		MovieID:   movieID,
		CreatedAt: time.Now().UTC(),
	})
	if err != nil {
		return err
	}

	e.bus.Publish(events.TypeActionQueued, map[string]string{
		"action": string(action),
		"movie":  movieID,
	})
	logging.Info().Str("action", string(action)).Str("movie", movieID).Msg("action queued for replay")
	return nil
}

// Subscription returns the user's subscription status, remote-first with
// cached fallback.
func (e *Engine) Subscription(ctx context.Context, userID string) (*models.Subscription, bool, error) {
	if e.monitor.IsOnline() {
		sub, err := e.remote.GetSubscription(ctx, userID)
		if err == nil {
			if serr := e.store.SaveDataset(ctx, models.DatasetSubscription, sub); serr != nil {
				return nil, false, serr
			}
			return sub, false, nil
		}
		if remote.IsUnavailable(err) {
			e.monitor.SetOnline(false)
		}
	}

	var cached models.Subscription
	found, err := e.store.LoadDataset(ctx, models.DatasetSubscription, &cached)
	if err != nil {
		return nil, false, err
	}
	if !found {
		return nil, false, ErrUnavailable
	}
	return &cached, true, nil
}

// CachedDataset loads a dataset snapshot for read-only consumers.
func (e *Engine) CachedDataset(ctx context.Context, name string, out interface{}) (bool, error) {
	return e.store.LoadDataset(ctx, name, out)
}

// Status is a point-in-time view of the engine for the bridge API.
type Status struct {
	Online      bool                      `json:"online"`
	QueueDepths map[models.ActionType]int `json:"queue_depths"`
	Store       store.Stats               `json:"store"`
	LastDrain   *models.SyncReport        `json:"last_drain,omitempty"`
}

// Status reports connectivity, queue depths, and the last drain outcome.
func (e *Engine) Status(ctx context.Context) (*Status, error) {
	depths, err := e.store.QueueDepths(ctx)
	if err != nil {
		return nil, err
	}

	e.mu.Lock()
	lastDrain := e.lastDrain
	e.mu.Unlock()

	return &Status{
		Online:      e.monitor.IsOnline(),
		QueueDepths: depths,
		Store:       e.store.Stats(),
		LastDrain:   lastDrain,
	}, nil
}

// RecentEvents exposes the event ring for the bridge API.
func (e *Engine) RecentEvents() []events.Event {
	return e.bus.Recent()
}

// Online reports current connectivity.
func (e *Engine) Online() bool {
	return e.monitor.IsOnline()
}

// rememberUser records the most recent user so the reconnect worker can
// refresh on their behalf.
func (e *Engine) rememberUser(userID string) {
	if userID == "" {
		return
	}
	e.mu.Lock()
	e.lastUserID = userID
	e.mu.Unlock()
}

func (e *Engine) currentUser() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.lastUserID
}

func boolStr(b bool) string {
	if b {
		return "true"
	}
	return "false"
}
