// ReelSync - Offline-First Movie Recommendation Sync Engine
// Copyright 2026 M. Veldt (mveldt)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/mveldt/reelsync

package events

import (
	"context"
	"fmt"
	"sync"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"github.com/rs/zerolog"

	"github.com/mveldt/reelsync/internal/logging"
)

// defaultRingSize bounds the recent-events ring when no size is configured.
const defaultRingSize = 100

// Bus is the in-process event bus. Publishing never blocks the engine's
// hot path: the recent-events ring is recorded inline so the API always
// sees an event it just caused, while subscribers (the log Forwarder)
// consume asynchronously through the pub/sub channel.
type Bus struct {
	pubsub *gochannel.GoChannel

	mu     sync.RWMutex
	ring   []Event
	next   int
	filled bool
	closed bool
}

// NewBus creates a bus with a bounded recent-events ring.
func NewBus(ringSize int) *Bus {
	if ringSize <= 0 {
		ringSize = defaultRingSize
	}

	pubsub := gochannel.NewGoChannel(gochannel.Config{
		OutputChannelBuffer: int64(ringSize),
	}, newWatermillLogger())

	return &Bus{
		pubsub: pubsub,
		ring:   make([]Event, ringSize),
	}
}

// Publish emits a lifecycle event. Failures are logged, never propagated:
// eventing is observability, not correctness.
func (b *Bus) Publish(eventType string, fields map[string]string) {
	b.mu.RLock()
	closed := b.closed
	b.mu.RUnlock()
	if closed {
		return
	}

	event := NewEvent(eventType, fields)
	payload, err := event.Marshal()
	if err != nil {
		logging.Warn().Err(err).Str("type", eventType).Msg("events: marshal failed")
		return
	}

	msg := message.NewMessage(event.EventID, payload)
	if err := b.pubsub.Publish(TopicSync, msg); err != nil {
		logging.Warn().Err(err).Str("type", eventType).Msg("events: publish failed")
		return
	}

	b.record(event)
}

// record appends to the ring buffer.
func (b *Bus) record(e Event) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.ring[b.next] = e
	b.next = (b.next + 1) % len(b.ring)
	if b.next == 0 {
		b.filled = true
	}
}

// Recent returns the buffered events, oldest first.
func (b *Bus) Recent() []Event {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if !b.filled {
		out := make([]Event, b.next)
		copy(out, b.ring[:b.next])
		return out
	}

	out := make([]Event, 0, len(b.ring))
	out = append(out, b.ring[b.next:]...)
	out = append(out, b.ring[:b.next]...)
	return out
}

// Subscribe returns a message channel for the sync topic. The channel
// closes when ctx is canceled or the bus shuts down.
func (b *Bus) Subscribe(ctx context.Context) (<-chan *message.Message, error) {
	msgs, err := b.pubsub.Subscribe(ctx, TopicSync)
	if err != nil {
		return nil, fmt.Errorf("subscribe %s: %w", TopicSync, err)
	}
	return msgs, nil
}

// Close shuts the bus down. Further publishes are dropped silently.
func (b *Bus) Close() error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil
	}
	b.closed = true
	b.mu.Unlock()

	return b.pubsub.Close()
}

// watermillLogger adapts zerolog to watermill.LoggerAdapter.
type watermillLogger struct {
	fields watermill.LogFields
}

func newWatermillLogger() watermill.LoggerAdapter {
	return &watermillLogger{}
}

func (l *watermillLogger) Error(msg string, err error, fields watermill.LogFields) {
	ev := logging.Error().Err(err)
	addFields(ev, l.fields, fields)
	ev.Msg("watermill: " + msg)
}

func (l *watermillLogger) Info(msg string, fields watermill.LogFields) {
	ev := logging.Debug() // watermill's Info is wiring chatter, not app info
	addFields(ev, l.fields, fields)
	ev.Msg("watermill: " + msg)
}

func (l *watermillLogger) Debug(msg string, fields watermill.LogFields) {
	ev := logging.Debug()
	addFields(ev, l.fields, fields)
	ev.Msg("watermill: " + msg)
}

func (l *watermillLogger) Trace(msg string, fields watermill.LogFields) {
	ev := logging.Trace()
	addFields(ev, l.fields, fields)
	ev.Msg("watermill: " + msg)
}

func (l *watermillLogger) With(fields watermill.LogFields) watermill.LoggerAdapter {
	merged := make(watermill.LogFields, len(l.fields)+len(fields))
	for k, v := range l.fields {
		merged[k] = v
	}
	for k, v := range fields {
		merged[k] = v
	}
	return &watermillLogger{fields: merged}
}

func addFields(ev *zerolog.Event, base, extra watermill.LogFields) {
	for k, v := range base {
		ev.Interface(k, v)
	}
	for k, v := range extra {
		ev.Interface(k, v)
	}
}
