// ReelSync - Offline-First Movie Recommendation Sync Engine
// Copyright 2026 M. Veldt (mveldt)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/mveldt/reelsync

package models

import (
	"fmt"
	"time"
)

// ActionType names a pending-mutation queue. Each user action recorded
// while offline lands in the queue for its type.
type ActionType string

// The four queued action types. They target independent pieces of remote
// state, so no ordering is guaranteed across queues.
const (
	ActionLike    ActionType = "like"
	ActionSave    ActionType = "save"
	ActionHistory ActionType = "history"
	ActionDelete  ActionType = "delete"
)

// ActionTypes lists all queues in a stable order.
var ActionTypes = []ActionType{ActionLike, ActionSave, ActionHistory, ActionDelete}

// ParseActionType validates a queue name from external input.
func ParseActionType(s string) (ActionType, error) {
	switch ActionType(s) {
	case ActionLike, ActionSave, ActionHistory, ActionDelete:
		return ActionType(s), nil
	}
	return "", fmt.Errorf("unknown action type %q", s)
}

// PendingMutation is a user action recorded locally while offline, awaiting
// replay against the remote service.
//
// Lifecycle: Queued -> Applying -> Applied (removed) or Queued (retained on
// failure). The Applying state is never persisted; a process crash mid-apply
// reverts the mutation to Queued on next load, giving at-least-once replay.
// A mutation is never modified after creation except for its attempt
// accounting.
type PendingMutation struct {
	Type    ActionType `json:"type"`
	UserID  string     `json:"user_id"`
	MovieID string     `json:"movie_id"`

	// CreatedAt is when the action was recorded.
	CreatedAt time.Time `json:"created_at"`

	// Seq fixes the mutation's FIFO position within its queue. Re-enqueuing
	// the same (type, movieID) replaces the payload but keeps the original
	// sequence number.
	Seq uint64 `json:"seq"`

	// Attempts counts failed replay attempts.
	Attempts int `json:"attempts"`

	// LastAttemptAt is the time of the last replay attempt.
	LastAttemptAt time.Time `json:"last_attempt_at,omitempty"`

	// LastError is the error message from the last failed attempt.
	LastError string `json:"last_error,omitempty"`
}

// QueueReport is the per-queue outcome of a drain.
type QueueReport struct {
	Applied   int `json:"applied"`
	Failed    int `json:"failed"`
	Conflicts int `json:"conflicts"`
	Evicted   int `json:"evicted"`
	Remaining int `json:"remaining"`
}

// SyncReport summarizes a full drain run across all queues.
type SyncReport struct {
	StartedAt  time.Time                  `json:"started_at"`
	FinishedAt time.Time                  `json:"finished_at"`
	Queues     map[ActionType]QueueReport `json:"queues"`
}

// Totals sums the per-queue reports.
func (r *SyncReport) Totals() QueueReport {
	var t QueueReport
	for _, q := range r.Queues {
		t.Applied += q.Applied
		t.Failed += q.Failed
		t.Conflicts += q.Conflicts
		t.Evicted += q.Evicted
		t.Remaining += q.Remaining
	}
	return t
}
