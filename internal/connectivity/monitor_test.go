// ReelSync - Offline-First Movie Recommendation Sync Engine
// Copyright 2026 M. Veldt (mveldt)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/mveldt/reelsync

package connectivity

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/mveldt/reelsync/internal/config"
)

type fakeProber struct {
	mu  sync.Mutex
	err error
}

func (f *fakeProber) Probe(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.err
}

func (f *fakeProber) setErr(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.err = err
}

func TestMonitor_StartsOffline(t *testing.T) {
	m := NewMonitor(&fakeProber{}, config.ConnectivityConfig{})
	if m.IsOnline() {
		t.Error("monitor must start offline")
	}
}

func TestSetOnline_DeduplicatesTransitions(t *testing.T) {
	m := NewMonitor(&fakeProber{}, config.ConnectivityConfig{})

	var transitions []bool
	m.OnChange(func(online bool) {
		transitions = append(transitions, online)
	})

	m.SetOnline(true)
	m.SetOnline(true) // no-op
	m.SetOnline(false)
	m.SetOnline(false) // no-op
	m.SetOnline(true)

	want := []bool{true, false, true}
	if len(transitions) != len(want) {
		t.Fatalf("expected %d transitions, got %d: %v", len(want), len(transitions), transitions)
	}
	for i := range want {
		if transitions[i] != want[i] {
			t.Errorf("transition %d: got %v, want %v", i, transitions[i], want[i])
		}
	}
}

func TestSetOnline_NotifiesAllSubscribers(t *testing.T) {
	m := NewMonitor(&fakeProber{}, config.ConnectivityConfig{})

	var a, b bool
	m.OnChange(func(online bool) { a = online })
	m.OnChange(func(online bool) { b = online })

	m.SetOnline(true)
	if !a || !b {
		t.Errorf("both subscribers must be notified: a=%v b=%v", a, b)
	}
}

func TestServe_ProbesAndFlipsState(t *testing.T) {
	prober := &fakeProber{err: errors.New("unreachable")}
	m := NewMonitor(prober, config.ConnectivityConfig{
		ProbeInterval: 10 * time.Millisecond,
		ProbeTimeout:  time.Second,
	})

	changes := make(chan bool, 8)
	m.OnChange(func(online bool) { changes <- online })

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = m.Serve(ctx)
	}()

	// Failing probes keep the monitor offline; no transition fires.
	select {
	case online := <-changes:
		t.Fatalf("unexpected transition to %v while probes fail", online)
	case <-time.After(50 * time.Millisecond):
	}

	prober.setErr(nil)
	select {
	case online := <-changes:
		if !online {
			t.Error("expected transition to online")
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for online transition")
	}
	if !m.IsOnline() {
		t.Error("monitor must report online after successful probe")
	}

	prober.setErr(errors.New("down again"))
	select {
	case online := <-changes:
		if online {
			t.Error("expected transition to offline")
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for offline transition")
	}

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Serve did not stop on context cancel")
	}
}
