// ReelSync - Offline-First Movie Recommendation Sync Engine
// Copyright 2026 M. Veldt (mveldt)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/mveldt/reelsync

package store

import (
	"context"
	"time"

	"github.com/mveldt/reelsync/internal/logging"
)

// GCService runs periodic badger value-log garbage collection. It is run
// under the supervision tree alongside the other background workers.
type GCService struct {
	store    *Store
	interval time.Duration
}

// NewGCService creates a GC worker for the store.
func NewGCService(s *Store) *GCService {
	interval := s.cfg.GCInterval
	if interval <= 0 {
		interval = 10 * time.Minute
	}
	return &GCService{store: s, interval: interval}
}

// Serve runs the GC loop until the context is canceled.
func (g *GCService) Serve(ctx context.Context) error {
	ticker := time.NewTicker(g.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if err := g.store.RunGC(); err != nil {
				logging.Warn().Err(err).Msg("store: value-log GC failed")
			}
		}
	}
}

func (g *GCService) String() string { return "store-gc" }
