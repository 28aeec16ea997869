// ReelSync - Offline-First Movie Recommendation Sync Engine
// Copyright 2026 M. Veldt (mveldt)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/mveldt/reelsync

package engine

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/mveldt/reelsync/internal/events"
	"github.com/mveldt/reelsync/internal/logging"
	"github.com/mveldt/reelsync/internal/metrics"
	"github.com/mveldt/reelsync/internal/models"
	"github.com/mveldt/reelsync/internal/remote"
	"github.com/mveldt/reelsync/internal/store"
)

// drainCall is one in-flight drain that concurrent callers attach to.
type drainCall struct {
	done   chan struct{}
	report *models.SyncReport
	err    error
}

// DrainQueues replays all pending mutations against the remote, queue by
// queue, oldest first within each queue.
//
// Per-mutation outcomes:
//   - applied: remote accepted, mutation removed
//   - conflict: remote rejected (4xx), mutation dropped after one logged
//     attempt — replaying an identical rejected request cannot succeed
//   - failed: remote unreachable, mutation retained for the next run;
//     the drain moves on to the next mutation
//   - evicted: mutation exceeded the attempt budget and was removed
//
// A run with failures flips the monitor offline when it finishes.
//
// Overlapping DrainQueues calls coalesce onto one run and share its
// report.
func (e *Engine) DrainQueues(ctx context.Context) (*models.SyncReport, error) {
	e.mu.Lock()
	if call := e.inflight; call != nil {
		e.mu.Unlock()
		select {
		case <-call.done:
			return call.report, call.err
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	call := &drainCall{done: make(chan struct{})}
	e.inflight = call
	e.mu.Unlock()

	report, err := e.drain(ctx)

	e.mu.Lock()
	e.inflight = nil
	if report != nil {
		e.lastDrain = report
	}
	e.mu.Unlock()

	call.report = report
	call.err = err
	close(call.done)
	return report, err
}

func (e *Engine) drain(ctx context.Context) (*models.SyncReport, error) {
	start := time.Now()
	metrics.DrainRuns.Inc()
	e.bus.Publish(events.TypeDrainStarted, nil)

	report := &models.SyncReport{
		StartedAt: start.UTC(),
		Queues:    make(map[models.ActionType]models.QueueReport, len(models.ActionTypes)),
	}

	for _, action := range models.ActionTypes {
		qr, err := e.drainQueue(ctx, action)
		if err != nil {
			return nil, err
		}
		report.Queues[action] = qr
	}

	report.FinishedAt = time.Now().UTC()
	metrics.DrainDuration.Observe(time.Since(start).Seconds())

	totals := report.Totals()
	e.bus.Publish(events.TypeDrainFinished, map[string]string{
		"applied":   strconv.Itoa(totals.Applied),
		"conflicts": strconv.Itoa(totals.Conflicts),
		"evicted":   strconv.Itoa(totals.Evicted),
		"remaining": strconv.Itoa(totals.Remaining),
	})
	logging.Info().
		Int("applied", totals.Applied).
		Int("conflicts", totals.Conflicts).
		Int("evicted", totals.Evicted).
		Int("remaining", totals.Remaining).
		Dur("took", time.Since(start)).
		Msg("queue drain finished")

	if totals.Failed > 0 {
		e.monitor.SetOnline(false)
	}
	return report, nil
}

// drainQueue replays one queue in FIFO order. A failed mutation is
// retained and the replay moves on; it never blocks the rest of the
// queue.
func (e *Engine) drainQueue(ctx context.Context, action models.ActionType) (models.QueueReport, error) {
	var qr models.QueueReport

	pending, err := e.store.ListQueue(ctx, action)
	if err != nil {
		return qr, err
	}

	label := string(action)
	for i := range pending {
		m := &pending[i]

		if ctx.Err() != nil {
			qr.Remaining += len(pending) - i
			return qr, ctx.Err()
		}

		err := e.remote.RecordAction(ctx, m.Type, m.UserID, m.MovieID)
		switch {
		case err == nil:
			if derr := e.dequeue(ctx, m); derr != nil {
				return qr, derr
			}
			qr.Applied++
			metrics.DrainOutcomes.WithLabelValues(label, "applied").Inc()
			e.bus.Publish(events.TypeMutationApplied, mutationFields(m))

		case remote.IsConflict(err):
			// One strike: the remote answered and said no. Keeping the
			// mutation would replay a request that can never succeed.
			logging.Warn().
				Err(err).
				Str("action", label).
				Str("movie", m.MovieID).
				Msg("mutation rejected by remote, dropping")
			if derr := e.dequeue(ctx, m); derr != nil {
				return qr, derr
			}
			qr.Conflicts++
			metrics.DrainOutcomes.WithLabelValues(label, "conflict").Inc()
			e.bus.Publish(events.TypeMutationConflict, mutationFields(m))

		default:
			// Remote unreachable: record the attempt, evict over budget,
			// otherwise retain for the next run.
			if rerr := e.store.RecordAttempt(ctx, m.Type, m.MovieID, err.Error()); rerr != nil {
				return qr, rerr
			}
			if m.Attempts+1 >= e.maxAttempts() {
				logging.Error().
					Str("action", label).
					Str("movie", m.MovieID).
					Int("attempts", m.Attempts+1).
					Msg("mutation exceeded attempt budget, evicting")
				if derr := e.dequeue(ctx, m); derr != nil {
					return qr, derr
				}
				qr.Evicted++
				metrics.DrainOutcomes.WithLabelValues(label, "evicted").Inc()
				e.bus.Publish(events.TypeMutationEvicted, mutationFields(m))
				continue
			}

			qr.Failed++
			qr.Remaining++
			metrics.DrainOutcomes.WithLabelValues(label, "failed").Inc()
		}
	}

	return qr, nil
}

func (e *Engine) dequeue(ctx context.Context, m *models.PendingMutation) error {
	err := e.store.Dequeue(ctx, m.Type, m.MovieID)
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		return err
	}
	return nil
}

func (e *Engine) maxAttempts() int {
	if e.cfg.MaxAttempts <= 0 {
		return 10
	}
	return e.cfg.MaxAttempts
}

func mutationFields(m *models.PendingMutation) map[string]string {
	return map[string]string{
		"action": string(m.Type),
		"movie":  m.MovieID,
		"user":   m.UserID,
	}
}
