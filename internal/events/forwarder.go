// ReelSync - Offline-First Movie Recommendation Sync Engine
// Copyright 2026 M. Veldt (mveldt)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/mveldt/reelsync

package events

import (
	"context"

	"github.com/mveldt/reelsync/internal/logging"
)

// Forwarder is the bus's standing subscriber: it consumes every published
// lifecycle event and forwards it to the structured log, so the sync
// history is visible in the daemon's log stream and not only through the
// recent-events API. Runs as a suture service.
type Forwarder struct {
	bus    *Bus
	handle func(Event)
}

// NewForwarder creates a forwarder consuming from bus.
func NewForwarder(bus *Bus) *Forwarder {
	return &Forwarder{bus: bus, handle: logEvent}
}

// Serve subscribes to the sync topic and forwards events until ctx is
// canceled or the bus shuts down.
func (f *Forwarder) Serve(ctx context.Context) error {
	msgs, err := f.bus.Subscribe(ctx)
	if err != nil {
		return err
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg, ok := <-msgs:
			if !ok {
				// Bus closed; shutdown is in progress.
				return ctx.Err()
			}
			event, err := Unmarshal(msg.Payload)
			if err != nil {
				logging.Warn().Err(err).Str("message", msg.UUID).Msg("events: undecodable event")
				msg.Ack()
				continue
			}
			f.handle(event)
			msg.Ack()
		}
	}
}

func (f *Forwarder) String() string { return "event-forwarder" }

func logEvent(e Event) {
	ev := logging.Info().Str("type", e.Type).Time("at", e.Timestamp)
	for k, v := range e.Fields {
		ev = ev.Str(k, v)
	}
	ev.Msg("sync event")
}
