// ReelSync - Offline-First Movie Recommendation Sync Engine
// Copyright 2026 M. Veldt (mveldt)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/mveldt/reelsync

// Package connectivity tracks whether the remote recommendation service
// is reachable. The monitor starts pessimistic (offline) and flips state
// only on probe evidence, notifying subscribers on transitions.
package connectivity

import (
	"context"
	"sync"
	"time"

	"github.com/mveldt/reelsync/internal/config"
	"github.com/mveldt/reelsync/internal/logging"
	"github.com/mveldt/reelsync/internal/metrics"
)

// Prober is the single remote call the monitor needs. The remote client
// satisfies it.
type Prober interface {
	Probe(ctx context.Context) error
}

// Monitor polls the remote and maintains the current online/offline state.
//
// State changes are deduplicated: subscribers hear about transitions, not
// individual probe results. Until the first successful probe the engine
// behaves as offline, which keeps startup reads on the cache instead of
// blocking on a dead network.
type Monitor struct {
	prober   Prober
	interval time.Duration
	timeout  time.Duration

	mu        sync.RWMutex
	online    bool
	callbacks []func(online bool)
}

// NewMonitor creates a connectivity monitor. Initial state is offline.
func NewMonitor(prober Prober, cfg config.ConnectivityConfig) *Monitor {
	interval := cfg.ProbeInterval
	if interval <= 0 {
		interval = 15 * time.Second
	}
	timeout := cfg.ProbeTimeout
	if timeout <= 0 {
		timeout = 3 * time.Second
	}

	metrics.SetOnline(false)
	return &Monitor{
		prober:   prober,
		interval: interval,
		timeout:  timeout,
	}
}

// IsOnline returns the current connectivity state.
func (m *Monitor) IsOnline() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.online
}

// OnChange registers a transition callback. Callbacks run on the
// goroutine that flips the state and must not block for long.
// Registration is expected during wiring, before the probe loop starts.
func (m *Monitor) OnChange(fn func(online bool)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.callbacks = append(m.callbacks, fn)
}

// SetOnline records an observed connectivity state. Besides the probe
// loop, the engine calls this when a live request succeeds or fails, so
// state converges faster than the probe interval.
func (m *Monitor) SetOnline(online bool) {
	m.mu.Lock()
	if m.online == online {
		m.mu.Unlock()
		return
	}
	m.online = online
	callbacks := make([]func(online bool), len(m.callbacks))
	copy(callbacks, m.callbacks)
	m.mu.Unlock()

	metrics.SetOnline(online)
	if online {
		metrics.ConnectivityTransitions.WithLabelValues("online").Inc()
		logging.Info().Msg("remote is reachable")
	} else {
		metrics.ConnectivityTransitions.WithLabelValues("offline").Inc()
		logging.Warn().Msg("remote is unreachable, switching to cached data")
	}

	for _, fn := range callbacks {
		fn(online)
	}
}

// probe runs one reachability check and folds the result into state.
func (m *Monitor) probe(ctx context.Context) {
	probeCtx, cancel := context.WithTimeout(ctx, m.timeout)
	defer cancel()

	err := m.prober.Probe(probeCtx)
	m.SetOnline(err == nil)
}

// Serve runs the probe loop until the context is canceled. It implements
// suture.Service and probes immediately on start.
func (m *Monitor) Serve(ctx context.Context) error {
	m.probe(ctx)

	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			m.probe(ctx)
		}
	}
}

func (m *Monitor) String() string { return "connectivity-monitor" }
