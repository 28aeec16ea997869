// ReelSync - Offline-First Movie Recommendation Sync Engine
// Copyright 2026 M. Veldt (mveldt)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/mveldt/reelsync

package remote

import (
	"context"
	"errors"
	"fmt"
	"time"

	gobreaker "github.com/sony/gobreaker/v2"

	"github.com/mveldt/reelsync/internal/logging"
	"github.com/mveldt/reelsync/internal/metrics"
	"github.com/mveldt/reelsync/internal/models"
)

// BreakerClient wraps Client with a circuit breaker so a flapping or slow
// remote stops burning retry budgets. Only unavailable-class failures
// count against the breaker: a conflict is a definitive answer from a
// healthy remote.
//
// The breaker uses real time for its interval and timeout; unit tests
// should exercise the wrapped Client directly.
type BreakerClient struct {
	client Service
	cb     *gobreaker.CircuitBreaker[interface{}]
	name   string
}

var _ Service = (*BreakerClient)(nil)

// NewBreakerClient wraps a remote client with circuit breaker protection.
//
// Configuration:
//   - max 3 concurrent requests in half-open state
//   - 1 minute measurement window
//   - 2 minute open period before recovery attempts
//   - opens at 60% failure rate with minimum 10 requests
func NewBreakerClient(client Service) *BreakerClient {
	cbName := "recommendation-api"

	metrics.CircuitBreakerState.WithLabelValues(cbName).Set(0)

	cb := gobreaker.NewCircuitBreaker[interface{}](gobreaker.Settings{
		Name:        cbName,
		MaxRequests: 3,
		Interval:    time.Minute,
		Timeout:     2 * time.Minute,

		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if counts.Requests < 10 {
				return false
			}
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			shouldTrip := failureRatio >= 0.6
			if shouldTrip {
				logging.Warn().
					Uint32("failures", counts.TotalFailures).
					Float64("failure_rate", failureRatio*100).
					Msg("circuit breaker opening")
			}
			return shouldTrip
		},

		// A conflict means the remote answered; only unavailability
		// counts as failure.
		IsSuccessful: func(err error) bool {
			return err == nil || IsConflict(err)
		},

		OnStateChange: func(name string, from, to gobreaker.State) {
			fromStr := stateToString(from)
			toStr := stateToString(to)
			logging.Info().Str("from", fromStr).Str("to", toStr).Msg("circuit breaker state transition")
			metrics.CircuitBreakerState.WithLabelValues(name).Set(stateToFloat(to))
			metrics.CircuitBreakerTransitions.WithLabelValues(name, fromStr, toStr).Inc()
		},
	})

	return &BreakerClient{client: client, cb: cb, name: cbName}
}

// execute wraps one remote call with the breaker and updates metrics.
// An open circuit surfaces as ErrUnavailable so callers see a single
// failure taxonomy.
func (bc *BreakerClient) execute(fn func() (interface{}, error)) (interface{}, error) {
	result, err := bc.cb.Execute(fn)
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			metrics.CircuitBreakerRequests.WithLabelValues(bc.name, "rejected").Inc()
			return nil, fmt.Errorf("%w: circuit open: %v", ErrUnavailable, err)
		}
		metrics.CircuitBreakerRequests.WithLabelValues(bc.name, "failure").Inc()
		return nil, err
	}
	metrics.CircuitBreakerRequests.WithLabelValues(bc.name, "success").Inc()
	return result, nil
}

func castResult[T any](result interface{}, err error) (T, error) {
	var zero T
	if err != nil {
		return zero, err
	}
	typed, ok := result.(T)
	if !ok {
		return zero, fmt.Errorf("circuit breaker: unexpected result type %T", result)
	}
	return typed, nil
}

func stateToFloat(state gobreaker.State) float64 {
	switch state {
	case gobreaker.StateClosed:
		return 0
	case gobreaker.StateHalfOpen:
		return 1
	case gobreaker.StateOpen:
		return 2
	default:
		return -1
	}
}

func stateToString(state gobreaker.State) string {
	switch state {
	case gobreaker.StateClosed:
		return "closed"
	case gobreaker.StateHalfOpen:
		return "half-open"
	case gobreaker.StateOpen:
		return "open"
	default:
		return "unknown"
	}
}

// Probe checks remote reachability through the breaker.
func (bc *BreakerClient) Probe(ctx context.Context) error {
	_, err := bc.execute(func() (interface{}, error) {
		return nil, bc.client.Probe(ctx)
	})
	return err
}

// GetRecommendations fetches recommendations through the breaker.
func (bc *BreakerClient) GetRecommendations(ctx context.Context, userID string) ([]models.RawMovie, error) {
	return castResult[[]models.RawMovie](bc.execute(func() (interface{}, error) {
		return bc.client.GetRecommendations(ctx, userID)
	}))
}

// Regenerate triggers a model rebuild through the breaker.
func (bc *BreakerClient) Regenerate(ctx context.Context, userID string, prefs models.RegeneratePrefs) error {
	_, err := bc.execute(func() (interface{}, error) {
		return nil, bc.client.Regenerate(ctx, userID, prefs)
	})
	return err
}

// RecordAction applies a user action through the breaker.
func (bc *BreakerClient) RecordAction(ctx context.Context, action models.ActionType, userID, movieID string) error {
	_, err := bc.execute(func() (interface{}, error) {
		return nil, bc.client.RecordAction(ctx, action, userID, movieID)
	})
	return err
}

// GetSubscription fetches subscription status through the breaker.
func (bc *BreakerClient) GetSubscription(ctx context.Context, userID string) (*models.Subscription, error) {
	return castResult[*models.Subscription](bc.execute(func() (interface{}, error) {
		return bc.client.GetSubscription(ctx, userID)
	}))
}

// GetStreamerProfile fetches the account profile through the breaker.
func (bc *BreakerClient) GetStreamerProfile(ctx context.Context, userID string) (*models.StreamerProfile, error) {
	return castResult[*models.StreamerProfile](bc.execute(func() (interface{}, error) {
		return bc.client.GetStreamerProfile(ctx, userID)
	}))
}

// GetCarousel fetches a carousel list through the breaker.
func (bc *BreakerClient) GetCarousel(ctx context.Context, dataset, userID string) ([]models.RawMovie, error) {
	return castResult[[]models.RawMovie](bc.execute(func() (interface{}, error) {
		return bc.client.GetCarousel(ctx, dataset, userID)
	}))
}
