// ReelSync - Offline-First Movie Recommendation Sync Engine
// Copyright 2026 M. Veldt (mveldt)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/mveldt/reelsync

// Package config defines the ReelSync configuration model and its koanf-based
// loader. Precedence is ENV > config file > built-in defaults.
package config

import (
	"fmt"
	"strings"
	"time"
)

// Config is the root configuration for the ReelSync daemon.
type Config struct {
	Remote       RemoteConfig       `koanf:"remote"`
	Store        StoreConfig        `koanf:"store"`
	Connectivity ConnectivityConfig `koanf:"connectivity"`
	Sync         SyncConfig         `koanf:"sync"`
	Server       ServerConfig       `koanf:"server"`
	Logging      LoggingConfig      `koanf:"logging"`
}

// RemoteConfig configures the recommendation service client.
type RemoteConfig struct {
	// URL is the base URL of the remote movie/recommendation service,
	// e.g. http://127.0.0.1:8000.
	URL string `koanf:"url"`

	// Timeout bounds every remote call. Remote failures past this deadline
	// are treated as RemoteUnavailable, never as a crash.
	Timeout time.Duration `koanf:"timeout"`

	// MaxRetries is the retry budget for HTTP 429 responses.
	MaxRetries int `koanf:"max_retries"`

	// RetryBaseDelay is the base delay for 429 exponential backoff.
	RetryBaseDelay time.Duration `koanf:"retry_base_delay"`

	// RateLimit is the client-side request rate toward the remote service,
	// in requests per second. 0 disables client-side rate limiting.
	RateLimit float64 `koanf:"rate_limit"`

	// RateBurst is the burst size for the client-side rate limiter.
	RateBurst int `koanf:"rate_burst"`

	// BreakerEnabled wraps the client in a circuit breaker.
	BreakerEnabled bool `koanf:"breaker_enabled"`
}

// StoreConfig configures the badger-backed local cache.
type StoreConfig struct {
	// Path is the on-disk location of the cache database.
	Path string `koanf:"path"`

	// SyncWrites enables fsync on every write. Pending mutations survive
	// process crashes only when this is on.
	SyncWrites bool `koanf:"sync_writes"`

	// GCInterval is how often badger value-log garbage collection runs.
	GCInterval time.Duration `koanf:"gc_interval"`

	// GCRatio is the badger value-log GC rewrite threshold.
	GCRatio float64 `koanf:"gc_ratio"`

	// CloseTimeout bounds database shutdown.
	CloseTimeout time.Duration `koanf:"close_timeout"`
}

// ConnectivityConfig configures the online/offline monitor.
type ConnectivityConfig struct {
	// ProbeInterval is how often the remote service is probed.
	ProbeInterval time.Duration `koanf:"probe_interval"`

	// ProbeTimeout bounds a single probe request.
	ProbeTimeout time.Duration `koanf:"probe_timeout"`
}

// SyncConfig configures the sync engine.
type SyncConfig struct {
	// MaxAttempts is the replay budget for a pending mutation before it is
	// evicted from its queue. Conflict rejections are evicted after one
	// attempt regardless.
	MaxAttempts int `koanf:"max_attempts"`

	// RefreshOnReconnect runs a full cache refresh after every drain that
	// follows an offline-to-online transition.
	RefreshOnReconnect bool `koanf:"refresh_on_reconnect"`

	// EventBufferSize is the capacity of the recent sync events ring.
	EventBufferSize int `koanf:"event_buffer_size"`
}

// ServerConfig configures the HTTP bridge the UI shell talks to.
type ServerConfig struct {
	Host    string        `koanf:"host"`
	Port    int           `koanf:"port"`
	Timeout time.Duration `koanf:"timeout"`

	// CORSOrigins lists allowed origins for the UI shell.
	CORSOrigins []string `koanf:"cors_origins"`

	// RateLimitReqs / RateLimitWindow bound requests per client IP.
	// RateLimitReqs of 0 disables rate limiting.
	RateLimitReqs   int           `koanf:"rate_limit_reqs"`
	RateLimitWindow time.Duration `koanf:"rate_limit_window"`
}

// LoggingConfig configures the global logger.
type LoggingConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
	Caller bool   `koanf:"caller"`
}

// Validate checks the configuration for values that would make the daemon
// misbehave at runtime. Errors name the offending key.
func (c *Config) Validate() error {
	if c.Remote.URL == "" {
		return fmt.Errorf("remote.url is required")
	}
	if !strings.HasPrefix(c.Remote.URL, "http://") && !strings.HasPrefix(c.Remote.URL, "https://") {
		return fmt.Errorf("remote.url must start with http:// or https://, got %q", c.Remote.URL)
	}
	if c.Remote.Timeout <= 0 {
		return fmt.Errorf("remote.timeout must be positive, got %v", c.Remote.Timeout)
	}
	if c.Remote.MaxRetries < 0 {
		return fmt.Errorf("remote.max_retries must be >= 0, got %d", c.Remote.MaxRetries)
	}
	if c.Store.Path == "" {
		return fmt.Errorf("store.path is required")
	}
	if c.Store.GCRatio <= 0 || c.Store.GCRatio >= 1 {
		return fmt.Errorf("store.gc_ratio must be in (0, 1), got %v", c.Store.GCRatio)
	}
	if c.Connectivity.ProbeInterval <= 0 {
		return fmt.Errorf("connectivity.probe_interval must be positive, got %v", c.Connectivity.ProbeInterval)
	}
	if c.Connectivity.ProbeTimeout <= 0 || c.Connectivity.ProbeTimeout > c.Connectivity.ProbeInterval {
		return fmt.Errorf("connectivity.probe_timeout must be positive and not exceed the probe interval")
	}
	if c.Sync.MaxAttempts < 1 {
		return fmt.Errorf("sync.max_attempts must be >= 1, got %d", c.Sync.MaxAttempts)
	}
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port must be in [1, 65535], got %d", c.Server.Port)
	}
	return nil
}

// Addr returns the listen address for the HTTP bridge.
func (s *ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}
