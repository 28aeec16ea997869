// ReelSync - Offline-First Movie Recommendation Sync Engine
// Copyright 2026 M. Veldt (mveldt)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/mveldt/reelsync

package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/mveldt/reelsync/internal/config"
	"github.com/mveldt/reelsync/internal/models"
)

func testStore(t *testing.T) *Store {
	t.Helper()

	cfg := config.StoreConfig{
		Path:         t.TempDir(),
		SyncWrites:   false,
		GCRatio:      0.5,
		CloseTimeout: 5 * time.Second,
	}
	s, err := Open(cfg)
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() {
		if err := s.Close(); err != nil {
			t.Errorf("close store: %v", err)
		}
	})
	return s
}

func TestDatasetRoundTrip(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	movies := []models.Movie{
		{MovieID: "1", Title: "Heat"},
		{MovieID: "2", Title: "Ronin"},
	}
	if err := s.SaveDataset(ctx, models.DatasetRecommended, movies); err != nil {
		t.Fatalf("save: %v", err)
	}

	var got []models.Movie
	found, err := s.LoadDataset(ctx, models.DatasetRecommended, &got)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if !found {
		t.Fatal("expected dataset to be found")
	}
	if len(got) != 2 || got[0].Title != "Heat" {
		t.Errorf("unexpected round trip result: %+v", got)
	}
}

func TestLoadDataset_MissingIsNotAnError(t *testing.T) {
	s := testStore(t)

	var got []models.Movie
	found, err := s.LoadDataset(context.Background(), models.DatasetTopRated, &got)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if found {
		t.Error("expected dataset to be absent")
	}
}

func TestDataset_UnknownNameRejected(t *testing.T) {
	s := testStore(t)

	err := s.SaveDataset(context.Background(), "bogus", []string{})
	if !errors.Is(err, ErrUnknownDataset) {
		t.Errorf("expected ErrUnknownDataset, got %v", err)
	}
}

func TestClearDataset(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	if err := s.SaveDataset(ctx, models.DatasetSubscription, models.Subscription{Plan: "premium"}); err != nil {
		t.Fatalf("save: %v", err)
	}
	if err := s.ClearDataset(ctx, models.DatasetSubscription); err != nil {
		t.Fatalf("clear: %v", err)
	}

	var got models.Subscription
	found, err := s.LoadDataset(ctx, models.DatasetSubscription, &got)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if found {
		t.Error("dataset should be gone after clear")
	}

	// Clearing an absent dataset is a no-op.
	if err := s.ClearDataset(ctx, models.DatasetSubscription); err != nil {
		t.Errorf("clear absent: %v", err)
	}
}

func TestEnqueue_FIFOOrder(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	for _, id := range []string{"m1", "m2", "m3"} {
		err := s.Enqueue(ctx, models.PendingMutation{
			Type: models.ActionLike, UserID: "u1", MovieID: id,
		})
		if err != nil {
			t.Fatalf("enqueue %s: %v", id, err)
		}
	}

	queue, err := s.ListQueue(ctx, models.ActionLike)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(queue) != 3 {
		t.Fatalf("expected 3 entries, got %d", len(queue))
	}
	for i, want := range []string{"m1", "m2", "m3"} {
		if queue[i].MovieID != want {
			t.Errorf("position %d: got %s, want %s", i, queue[i].MovieID, want)
		}
	}
}

func TestEnqueue_IdempotentKeepsPosition(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	for _, id := range []string{"m1", "m2"} {
		if err := s.Enqueue(ctx, models.PendingMutation{Type: models.ActionSave, UserID: "u1", MovieID: id}); err != nil {
			t.Fatalf("enqueue: %v", err)
		}
	}

	// Re-enqueue m1; it must keep its slot at the head, not move to the tail.
	if err := s.Enqueue(ctx, models.PendingMutation{Type: models.ActionSave, UserID: "u2", MovieID: "m1"}); err != nil {
		t.Fatalf("re-enqueue: %v", err)
	}

	queue, err := s.ListQueue(ctx, models.ActionSave)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(queue) != 2 {
		t.Fatalf("expected 2 entries after idempotent enqueue, got %d", len(queue))
	}
	if queue[0].MovieID != "m1" {
		t.Errorf("re-enqueued mutation lost its FIFO position: head is %s", queue[0].MovieID)
	}
	if queue[0].UserID != "u2" {
		t.Errorf("payload was not replaced: userID = %s", queue[0].UserID)
	}
}

func TestEnqueue_QueuesAreIndependent(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	if err := s.Enqueue(ctx, models.PendingMutation{Type: models.ActionLike, UserID: "u1", MovieID: "m1"}); err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	if err := s.Enqueue(ctx, models.PendingMutation{Type: models.ActionDelete, UserID: "u1", MovieID: "m1"}); err != nil {
		t.Fatalf("enqueue: %v", err)
	}

	depths, err := s.QueueDepths(ctx)
	if err != nil {
		t.Fatalf("depths: %v", err)
	}
	if depths[models.ActionLike] != 1 || depths[models.ActionDelete] != 1 {
		t.Errorf("unexpected depths: %v", depths)
	}
	if depths[models.ActionSave] != 0 || depths[models.ActionHistory] != 0 {
		t.Errorf("untouched queues must be empty: %v", depths)
	}
}

func TestEnqueue_Validation(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	if err := s.Enqueue(ctx, models.PendingMutation{Type: "bogus", MovieID: "m1"}); err == nil {
		t.Error("expected unknown action type to be rejected")
	}
	if err := s.Enqueue(ctx, models.PendingMutation{Type: models.ActionLike}); err == nil {
		t.Error("expected empty movie ID to be rejected")
	}
}

func TestDequeue(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	if err := s.Enqueue(ctx, models.PendingMutation{Type: models.ActionHistory, UserID: "u1", MovieID: "m1"}); err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	if err := s.Dequeue(ctx, models.ActionHistory, "m1"); err != nil {
		t.Fatalf("dequeue: %v", err)
	}
	if err := s.Dequeue(ctx, models.ActionHistory, "m1"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound for missing entry, got %v", err)
	}
}

func TestRecordAttempt(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	if err := s.Enqueue(ctx, models.PendingMutation{Type: models.ActionLike, UserID: "u1", MovieID: "m1"}); err != nil {
		t.Fatalf("enqueue: %v", err)
	}

	for i := 0; i < 3; i++ {
		if err := s.RecordAttempt(ctx, models.ActionLike, "m1", "connection refused"); err != nil {
			t.Fatalf("record attempt: %v", err)
		}
	}

	queue, err := s.ListQueue(ctx, models.ActionLike)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if queue[0].Attempts != 3 {
		t.Errorf("expected 3 attempts, got %d", queue[0].Attempts)
	}
	if queue[0].LastError != "connection refused" {
		t.Errorf("last error not recorded: %q", queue[0].LastError)
	}
	if queue[0].LastAttemptAt.IsZero() {
		t.Error("last attempt time not recorded")
	}

	if err := s.RecordAttempt(ctx, models.ActionLike, "missing", "x"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestQueueSurvivesReopen(t *testing.T) {
	dir := t.TempDir()
	cfg := config.StoreConfig{Path: dir, CloseTimeout: 5 * time.Second, GCRatio: 0.5}
	ctx := context.Background()

	s, err := Open(cfg)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	for _, id := range []string{"m1", "m2"} {
		if err := s.Enqueue(ctx, models.PendingMutation{Type: models.ActionLike, UserID: "u1", MovieID: id}); err != nil {
			t.Fatalf("enqueue: %v", err)
		}
	}
	if err := s.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	s2, err := Open(cfg)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer func() {
		if err := s2.Close(); err != nil {
			t.Errorf("close: %v", err)
		}
	}()

	queue, err := s2.ListQueue(ctx, models.ActionLike)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(queue) != 2 || queue[0].MovieID != "m1" {
		t.Errorf("queue did not survive reopen in order: %+v", queue)
	}

	// New enqueues continue the sequence past persisted entries.
	if err := s2.Enqueue(ctx, models.PendingMutation{Type: models.ActionLike, UserID: "u1", MovieID: "m3"}); err != nil {
		t.Fatalf("enqueue after reopen: %v", err)
	}
	queue, err = s2.ListQueue(ctx, models.ActionLike)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if queue[len(queue)-1].MovieID != "m3" {
		t.Errorf("post-reopen enqueue must land at the tail: %+v", queue)
	}
}

func TestStats(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	if err := s.SaveDataset(ctx, models.DatasetRecommended, []models.Movie{{MovieID: "1"}}); err != nil {
		t.Fatalf("save: %v", err)
	}
	if err := s.Enqueue(ctx, models.PendingMutation{Type: models.ActionLike, UserID: "u1", MovieID: "m1"}); err != nil {
		t.Fatalf("enqueue: %v", err)
	}

	stats := s.Stats()
	if stats.DatasetCount != 1 {
		t.Errorf("expected 1 dataset, got %d", stats.DatasetCount)
	}
	if stats.PendingCount != 1 {
		t.Errorf("expected 1 pending mutation, got %d", stats.PendingCount)
	}
}

func TestClosedStoreRejectsOperations(t *testing.T) {
	cfg := config.StoreConfig{Path: t.TempDir(), CloseTimeout: 5 * time.Second, GCRatio: 0.5}
	s, err := Open(cfg)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	ctx := context.Background()
	if err := s.SaveDataset(ctx, models.DatasetRecommended, nil); !errors.Is(err, ErrStoreClosed) {
		t.Errorf("expected ErrStoreClosed, got %v", err)
	}
	if _, err := s.ListQueue(ctx, models.ActionLike); !errors.Is(err, ErrStoreClosed) {
		t.Errorf("expected ErrStoreClosed, got %v", err)
	}
	if err := s.Close(); err != nil {
		t.Errorf("double close must be a no-op, got %v", err)
	}
}
