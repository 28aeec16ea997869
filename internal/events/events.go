// ReelSync - Offline-First Movie Recommendation Sync Engine
// Copyright 2026 M. Veldt (mveldt)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/mveldt/reelsync

// Package events carries sync lifecycle notifications over an in-process
// Watermill pub/sub. The UI polls the recent-events ring through the
// bridge API instead of holding a push channel open.
package events

import (
	"time"

	"github.com/goccy/go-json"
	"github.com/google/uuid"
)

// TopicSync is the single topic all lifecycle events flow through.
const TopicSync = "reelsync.sync"

// Event types emitted by the engine and its workers.
const (
	TypeConnectivityChanged = "connectivity.changed"
	TypeCacheRefreshed      = "cache.refreshed"
	TypeActionRecorded      = "action.recorded"
	TypeActionQueued        = "action.queued"
	TypeDrainStarted        = "drain.started"
	TypeDrainFinished       = "drain.finished"
	TypeMutationApplied     = "mutation.applied"
	TypeMutationConflict    = "mutation.conflict"
	TypeMutationEvicted     = "mutation.evicted"
)

// Event is the wire form of a lifecycle notification.
type Event struct {
	EventID   string            `json:"event_id"`
	Type      string            `json:"type"`
	Timestamp time.Time         `json:"timestamp"`
	Fields    map[string]string `json:"fields,omitempty"`
}

// NewEvent creates an event with a unique ID and current timestamp.
func NewEvent(eventType string, fields map[string]string) Event {
	return Event{
		EventID:   uuid.New().String(),
		Type:      eventType,
		Timestamp: time.Now().UTC(),
		Fields:    fields,
	}
}

// Marshal encodes the event for publishing.
func (e Event) Marshal() ([]byte, error) {
	return json.Marshal(e)
}

// Unmarshal decodes an event payload.
func Unmarshal(data []byte) (Event, error) {
	var e Event
	err := json.Unmarshal(data, &e)
	return e, err
}
