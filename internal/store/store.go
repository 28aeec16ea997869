// ReelSync - Offline-First Movie Recommendation Sync Engine
// Copyright 2026 M. Veldt (mveldt)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/mveldt/reelsync

// Package store implements the durable local cache: named datasets holding
// the last successfully fetched remote value, and per-action pending
// mutation queues for actions recorded while offline.
//
// Values are persisted to BadgerDB (ACID, fsync when sync_writes is on),
// so pending mutations survive process crashes. The store is owned
// exclusively by the sync engine; the UI only ever sees snapshots.
package store

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/goccy/go-json"

	"github.com/mveldt/reelsync/internal/config"
	"github.com/mveldt/reelsync/internal/logging"
	"github.com/mveldt/reelsync/internal/metrics"
	"github.com/mveldt/reelsync/internal/models"
)

// Key prefixes. Datasets and queues live in the same database under
// disjoint key spaces.
const (
	prefixDataset = "ds:"
	prefixQueue   = "q:"
	keySeq        = "meta:seq"
)

// Errors
var (
	// ErrStoreClosed is returned when the store is closed.
	ErrStoreClosed = errors.New("store is closed")

	// ErrNotFound is returned when a queue entry doesn't exist.
	ErrNotFound = errors.New("entry not found")

	// ErrUnknownDataset is returned for dataset names outside the fixed set.
	ErrUnknownDataset = errors.New("unknown dataset")
)

// Stats contains store counters for monitoring.
type Stats struct {
	// PendingCount is the total number of pending mutations across queues.
	PendingCount int64 `json:"pending_count"`

	// DatasetCount is the number of populated datasets.
	DatasetCount int64 `json:"dataset_count"`

	// DBSizeBytes is the estimated database size.
	DBSizeBytes int64 `json:"db_size_bytes"`
}

// Store is the badger-backed local cache.
type Store struct {
	db  *badger.DB
	cfg config.StoreConfig

	mu     sync.RWMutex
	closed bool
}

// Open creates (or reopens) the store at the configured path.
func Open(cfg config.StoreConfig) (*Store, error) {
	if cfg.Path == "" {
		return nil, fmt.Errorf("store path is required")
	}
	if cfg.GCRatio <= 0 || cfg.GCRatio > 1 {
		cfg.GCRatio = 0.5
	}

	opts := badger.DefaultOptions(cfg.Path)
	opts.SyncWrites = cfg.SyncWrites
	opts.Logger = nil // badger is chatty; the store logs its own lifecycle

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open badger: %w", err)
	}

	s := &Store{db: db, cfg: cfg}

	logging.Info().
		Str("path", cfg.Path).
		Bool("sync_writes", cfg.SyncWrites).
		Msg("local cache opened")
	return s, nil
}

// SaveDataset persists a dataset value, replacing any previous value.
func (s *Store) SaveDataset(ctx context.Context, name string, value interface{}) error {
	if err := s.guard(name); err != nil {
		return err
	}

	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("marshal dataset %s: %w", name, err)
	}

	err = s.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(prefixDataset+name), data)
	})
	if err != nil {
		return fmt.Errorf("save dataset %s: %w", name, err)
	}

	metrics.CacheRefreshes.WithLabelValues(name).Inc()
	return nil
}

// LoadDataset reads a dataset into out. Returns false with a nil error when
// the dataset has never been populated — an empty cache is not an error.
func (s *Store) LoadDataset(ctx context.Context, name string, out interface{}) (bool, error) {
	if err := s.guard(name); err != nil {
		return false, err
	}

	var found bool
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(prefixDataset + name))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		found = true
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, out)
		})
	})
	if err != nil {
		return false, fmt.Errorf("load dataset %s: %w", name, err)
	}

	if found {
		metrics.CacheHits.WithLabelValues(name).Inc()
	} else {
		metrics.CacheMisses.WithLabelValues(name).Inc()
	}
	return found, nil
}

// ClearDataset removes a dataset value.
func (s *Store) ClearDataset(ctx context.Context, name string) error {
	if err := s.guard(name); err != nil {
		return err
	}
	return s.db.Update(func(txn *badger.Txn) error {
		err := txn.Delete([]byte(prefixDataset + name))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil
		}
		return err
	})
}

// Enqueue records a pending mutation. Idempotent per (type, movieID): a
// second enqueue for the same pair replaces the earlier entry instead of
// duplicating it, and the original FIFO position (sequence number) is
// retained so replay order matches first intent.
func (s *Store) Enqueue(ctx context.Context, m models.PendingMutation) error {
	if err := s.open(); err != nil {
		return err
	}
	if m.MovieID == "" {
		return fmt.Errorf("pending mutation requires a movie ID")
	}
	if _, err := models.ParseActionType(string(m.Type)); err != nil {
		return err
	}

	if m.CreatedAt.IsZero() {
		m.CreatedAt = time.Now().UTC()
	}

	key := queueKey(m.Type, m.MovieID)
	err := s.db.Update(func(txn *badger.Txn) error {
		// Replacement keeps the existing slot in the queue.
		if item, err := txn.Get(key); err == nil {
			var prev models.PendingMutation
			if verr := item.Value(func(val []byte) error {
				return json.Unmarshal(val, &prev)
			}); verr == nil {
				m.Seq = prev.Seq
			}
		} else if !errors.Is(err, badger.ErrKeyNotFound) {
			return err
		}

		if m.Seq == 0 {
			seq, err := nextSeq(txn)
			if err != nil {
				return err
			}
			m.Seq = seq
		}

		data, err := json.Marshal(&m)
		if err != nil {
			return fmt.Errorf("marshal mutation: %w", err)
		}
		return txn.Set(key, data)
	})
	if err != nil {
		return fmt.Errorf("enqueue %s/%s: %w", m.Type, m.MovieID, err)
	}

	metrics.QueueEnqueued.WithLabelValues(string(m.Type)).Inc()
	s.updateDepthGauge(m.Type)
	return nil
}

// Dequeue removes a pending mutation after successful replay.
func (s *Store) Dequeue(ctx context.Context, action models.ActionType, movieID string) error {
	if err := s.open(); err != nil {
		return err
	}

	err := s.db.Update(func(txn *badger.Txn) error {
		key := queueKey(action, movieID)
		if _, err := txn.Get(key); errors.Is(err, badger.ErrKeyNotFound) {
			return ErrNotFound
		} else if err != nil {
			return err
		}
		return txn.Delete(key)
	})
	if err != nil {
		return err
	}

	s.updateDepthGauge(action)
	return nil
}

// ListQueue returns all pending mutations for one action type, oldest
// enqueue first. Reads from a snapshot, so a concurrent enqueue never
// produces a partial view.
func (s *Store) ListQueue(ctx context.Context, action models.ActionType) ([]models.PendingMutation, error) {
	if err := s.open(); err != nil {
		return nil, err
	}

	var out []models.PendingMutation
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = true
		it := txn.NewIterator(opts)
		defer it.Close()

		prefix := []byte(prefixQueue + string(action) + ":")
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			select {
			case <-ctx.Done():
				return ctx.Err()
			default:
			}

			var m models.PendingMutation
			err := it.Item().Value(func(val []byte) error {
				return json.Unmarshal(val, &m)
			})
			if err != nil {
				logging.Warn().Err(err).Str("key", string(it.Item().Key())).Msg("store: skipping malformed queue entry")
				continue
			}
			out = append(out, m)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("list queue %s: %w", action, err)
	}

	sort.Slice(out, func(i, j int) bool { return out[i].Seq < out[j].Seq })
	return out, nil
}

// QueueDepths returns the number of pending mutations per queue.
func (s *Store) QueueDepths(ctx context.Context) (map[models.ActionType]int, error) {
	if err := s.open(); err != nil {
		return nil, err
	}

	depths := make(map[models.ActionType]int, len(models.ActionTypes))
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		it := txn.NewIterator(opts)
		defer it.Close()

		for _, action := range models.ActionTypes {
			prefix := []byte(prefixQueue + string(action) + ":")
			count := 0
			for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
				count++
			}
			depths[action] = count
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("queue depths: %w", err)
	}
	return depths, nil
}

// RecordAttempt increments the persisted attempt counter for a mutation
// after a failed replay. The counter survives restarts, so the eviction
// budget is enforced across process lifetimes.
func (s *Store) RecordAttempt(ctx context.Context, action models.ActionType, movieID, lastError string) error {
	if err := s.open(); err != nil {
		return err
	}

	return s.db.Update(func(txn *badger.Txn) error {
		key := queueKey(action, movieID)
		item, err := txn.Get(key)
		if errors.Is(err, badger.ErrKeyNotFound) {
			return ErrNotFound
		}
		if err != nil {
			return err
		}

		var m models.PendingMutation
		if err := item.Value(func(val []byte) error {
			return json.Unmarshal(val, &m)
		}); err != nil {
			return fmt.Errorf("unmarshal mutation: %w", err)
		}

		m.Attempts++
		m.LastAttemptAt = time.Now().UTC()
		m.LastError = lastError

		data, err := json.Marshal(&m)
		if err != nil {
			return fmt.Errorf("marshal mutation: %w", err)
		}
		return txn.Set(key, data)
	})
}

// Stats returns current store counters.
func (s *Store) Stats() Stats {
	s.mu.RLock()
	closed := s.closed
	s.mu.RUnlock()
	if closed {
		return Stats{}
	}

	var pending, datasets int64
	if err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		it := txn.NewIterator(opts)
		defer it.Close()

		qp := []byte(prefixQueue)
		for it.Seek(qp); it.ValidForPrefix(qp); it.Next() {
			pending++
		}
		dp := []byte(prefixDataset)
		for it.Seek(dp); it.ValidForPrefix(dp); it.Next() {
			datasets++
		}
		return nil
	}); err != nil {
		logging.Warn().Err(err).Msg("store: stats scan failed")
	}

	lsm, vlog := s.db.Size()
	return Stats{
		PendingCount: pending,
		DatasetCount: datasets,
		DBSizeBytes:  lsm + vlog,
	}
}

// RunGC triggers badger value-log garbage collection until no more space
// can be reclaimed.
func (s *Store) RunGC() error {
	if err := s.open(); err != nil {
		return err
	}

	for {
		err := s.db.RunValueLogGC(s.cfg.GCRatio)
		if errors.Is(err, badger.ErrNoRewrite) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("run GC: %w", err)
		}
	}
}

// Close shuts down the store with the configured timeout. A close that
// exceeds the timeout returns an error instead of hanging shutdown.
func (s *Store) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	timeout := s.cfg.CloseTimeout
	if timeout == 0 {
		timeout = 30 * time.Second
	}
	s.mu.Unlock()

	done := make(chan error, 1)
	go func() {
		done <- s.db.Close()
	}()

	select {
	case err := <-done:
		if err != nil {
			return fmt.Errorf("close badger: %w", err)
		}
		logging.Info().Msg("local cache closed")
		return nil
	case <-time.After(timeout):
		return fmt.Errorf("badger close timeout after %v", timeout)
	}
}

// guard validates the dataset name and store state.
func (s *Store) guard(name string) error {
	if err := s.open(); err != nil {
		return err
	}
	if !models.ValidDataset(name) {
		return fmt.Errorf("%w: %s", ErrUnknownDataset, name)
	}
	return nil
}

// open checks the store is usable.
func (s *Store) open() error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return ErrStoreClosed
	}
	return nil
}

// updateDepthGauge refreshes the prometheus gauge for one queue.
func (s *Store) updateDepthGauge(action models.ActionType) {
	depths, err := s.QueueDepths(context.Background())
	if err != nil {
		return
	}
	metrics.QueueDepth.WithLabelValues(string(action)).Set(float64(depths[action]))
}

// queueKey builds the storage key for a pending mutation.
func queueKey(action models.ActionType, movieID string) []byte {
	return []byte(prefixQueue + string(action) + ":" + movieID)
}

// nextSeq increments the global enqueue sequence inside txn.
func nextSeq(txn *badger.Txn) (uint64, error) {
	var seq uint64 = 1
	item, err := txn.Get([]byte(keySeq))
	if err == nil {
		if verr := item.Value(func(val []byte) error {
			return json.Unmarshal(val, &seq)
		}); verr != nil {
			return 0, verr
		}
		seq++
	} else if !errors.Is(err, badger.ErrKeyNotFound) {
		return 0, err
	}

	data, err := json.Marshal(seq)
	if err != nil {
		return 0, err
	}
	if err := txn.Set([]byte(keySeq), data); err != nil {
		return 0, err
	}
	return seq, nil
}
