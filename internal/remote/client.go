// ReelSync - Offline-First Movie Recommendation Sync Engine
// Copyright 2026 M. Veldt (mveldt)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/mveldt/reelsync

// Package remote implements the HTTP client for the recommendation
// service. It owns retry and backoff behavior, rate limiting, and the
// two-way classification of failures (unavailable vs conflict) that the
// sync engine's drain loop depends on.
package remote

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/goccy/go-json"
	"golang.org/x/time/rate"

	"github.com/mveldt/reelsync/internal/config"
	"github.com/mveldt/reelsync/internal/metrics"
	"github.com/mveldt/reelsync/internal/models"
)

// maxErrorBodySize caps how much of an error response body is read for
// diagnostics.
const maxErrorBodySize = 64 * 1024

// Service is the remote surface the sync engine depends on. Client
// implements it directly; BreakerClient wraps it with circuit breaker
// protection. Tests substitute mocks.
type Service interface {
	Probe(ctx context.Context) error
	GetRecommendations(ctx context.Context, userID string) ([]models.RawMovie, error)
	Regenerate(ctx context.Context, userID string, prefs models.RegeneratePrefs) error
	RecordAction(ctx context.Context, action models.ActionType, userID, movieID string) error
	GetSubscription(ctx context.Context, userID string) (*models.Subscription, error)
	GetStreamerProfile(ctx context.Context, userID string) (*models.StreamerProfile, error)
	GetCarousel(ctx context.Context, dataset, userID string) ([]models.RawMovie, error)
}

// Client talks to the recommendation service over HTTP.
//
// Resilience:
//   - client-side rate limiting (token bucket)
//   - HTTP 429 handled with exponential backoff, honoring Retry-After
//   - all failures classified as ErrUnavailable or ErrConflict
//
// Thread safety: safe for concurrent use.
type Client struct {
	baseURL        string
	client         *http.Client
	limiter        *rate.Limiter
	maxRetries     int
	retryBaseDelay time.Duration
}

var _ Service = (*Client)(nil)

// NewClient creates a remote client from configuration.
func NewClient(cfg config.RemoteConfig) *Client {
	maxRetries := cfg.MaxRetries
	if maxRetries <= 0 {
		maxRetries = 5
	}
	baseDelay := cfg.RetryBaseDelay
	if baseDelay <= 0 {
		baseDelay = time.Second
	}
	limit := rate.Limit(cfg.RateLimit)
	if cfg.RateLimit <= 0 {
		limit = rate.Inf
	}
	burst := cfg.RateBurst
	if burst <= 0 {
		burst = 1
	}

	return &Client{
		baseURL: cfg.URL,
		client: &http.Client{
			Timeout: cfg.Timeout,
		},
		limiter:        rate.NewLimiter(limit, burst),
		maxRetries:     maxRetries,
		retryBaseDelay: baseDelay,
	}
}

// Probe checks whether the remote is reachable. It hits a cheap list
// endpoint rather than a dedicated health route because the upstream
// service does not expose one.
func (c *Client) Probe(ctx context.Context) error {
	var raw json.RawMessage
	return c.get(ctx, "/api/movies/top-liked", "probe", &raw)
}

// recommendationsEnvelope tolerates the two shapes the remote produces:
// a bare array or an object wrapping the list.
type recommendationsEnvelope struct {
	Movies          []models.RawMovie `json:"movies"`
	Recommendations []models.RawMovie `json:"recommendations"`
	Data            []models.RawMovie `json:"data"`
}

// GetRecommendations fetches the personalized recommendation list.
func (c *Client) GetRecommendations(ctx context.Context, userID string) ([]models.RawMovie, error) {
	endpoint := "/api/movies/recommendations/" + userID
	var raw json.RawMessage
	if err := c.get(ctx, endpoint, "recommendations", &raw); err != nil {
		return nil, err
	}
	return decodeMovieList(raw, "recommendations")
}

// Regenerate asks the remote to rebuild the user's recommendation model.
// This is a remote-side computation with no offline equivalent.
func (c *Client) Regenerate(ctx context.Context, userID string, prefs models.RegeneratePrefs) error {
	body := struct {
		UserID string `json:"userId"`
		models.RegeneratePrefs
	}{UserID: userID, RegeneratePrefs: prefs}
	return c.post(ctx, "/api/movies/regenerate", "regenerate", body, nil)
}

// actionPath maps a queued action type onto its remote route.
func actionPath(action models.ActionType) (string, error) {
	switch action {
	case models.ActionLike:
		return "/api/movies/like", nil
	case models.ActionSave:
		return "/api/movies/watchLater", nil
	case models.ActionHistory:
		return "/api/movies/history", nil
	case models.ActionDelete:
		return "/api/movies/recommended/delete", nil
	}
	return "", fmt.Errorf("unknown action type %q", action)
}

// RecordAction applies a user action (like, save, history, delete) against
// the remote.
func (c *Client) RecordAction(ctx context.Context, action models.ActionType, userID, movieID string) error {
	path, err := actionPath(action)
	if err != nil {
		return err
	}
	body := map[string]string{"userId": userID, "movieId": movieID}
	return c.post(ctx, path, string(action), body, nil)
}

// GetSubscription fetches the user's subscription status. The remote
// answers either a flat object or one nested under "subscription".
func (c *Client) GetSubscription(ctx context.Context, userID string) (*models.Subscription, error) {
	var raw json.RawMessage
	if err := c.get(ctx, "/api/subscription/"+userID, "subscription", &raw); err != nil {
		return nil, err
	}

	var envelope struct {
		Subscription *models.Subscription `json:"subscription"`
	}
	if err := json.Unmarshal(raw, &envelope); err == nil && envelope.Subscription != nil {
		return envelope.Subscription, nil
	}

	var sub models.Subscription
	if err := json.Unmarshal(raw, &sub); err != nil {
		return nil, fmt.Errorf("decode subscription response: %w", err)
	}
	return &sub, nil
}

// GetStreamerProfile fetches the streamer account profile. The remote
// wraps the payload in varying envelopes; all are unwrapped here.
func (c *Client) GetStreamerProfile(ctx context.Context, userID string) (*models.StreamerProfile, error) {
	var envelope struct {
		User     *models.StreamerProfile `json:"user"`
		Data     *models.StreamerProfile `json:"data"`
		Streamer *models.StreamerProfile `json:"streamer"`
		models.StreamerProfile
	}
	if err := c.get(ctx, "/api/auth/users/streamer/"+userID, "streamer_profile", &envelope); err != nil {
		return nil, err
	}

	profile := &envelope.StreamerProfile
	switch {
	case envelope.User != nil:
		profile = envelope.User
	case envelope.Data != nil:
		profile = envelope.Data
	case envelope.Streamer != nil:
		profile = envelope.Streamer
	}
	if profile.UserID == "" {
		profile.UserID = userID
	}
	return profile, nil
}

// carouselPath maps a carousel dataset onto its remote route.
func carouselPath(dataset, userID string) (string, error) {
	switch dataset {
	case models.DatasetTopLiked:
		return "/api/movies/top-liked", nil
	case models.DatasetLikedTitles:
		return "/api/movies/likedMovies/" + userID, nil
	case models.DatasetSavedTitles:
		return "/api/movies/watchLater/" + userID, nil
	case models.DatasetWatchedTitles:
		return "/api/movies/historyMovies/" + userID, nil
	}
	return "", fmt.Errorf("no remote route for dataset %q", dataset)
}

// GetCarousel fetches one of the remote movie lists backing the UI
// carousels.
func (c *Client) GetCarousel(ctx context.Context, dataset, userID string) ([]models.RawMovie, error) {
	path, err := carouselPath(dataset, userID)
	if err != nil {
		return nil, err
	}
	var raw json.RawMessage
	if err := c.get(ctx, path, dataset, &raw); err != nil {
		return nil, err
	}
	return decodeMovieList(raw, dataset)
}

// decodeMovieList accepts either a bare JSON array or a wrapping object.
func decodeMovieList(raw json.RawMessage, endpoint string) ([]models.RawMovie, error) {
	var list []models.RawMovie
	if err := json.Unmarshal(raw, &list); err == nil {
		return list, nil
	}

	var envelope recommendationsEnvelope
	if err := json.Unmarshal(raw, &envelope); err != nil {
		return nil, fmt.Errorf("decode %s response: %w", endpoint, err)
	}
	switch {
	case envelope.Movies != nil:
		return envelope.Movies, nil
	case envelope.Recommendations != nil:
		return envelope.Recommendations, nil
	case envelope.Data != nil:
		return envelope.Data, nil
	}
	return nil, nil
}

// get performs a GET request and decodes the JSON response into result.
func (c *Client) get(ctx context.Context, path, endpoint string, result interface{}) error {
	return c.do(ctx, http.MethodGet, path, endpoint, nil, result)
}

// post performs a POST request with a JSON body.
func (c *Client) post(ctx context.Context, path, endpoint string, body, result interface{}) error {
	return c.do(ctx, http.MethodPost, path, endpoint, body, result)
}

// do executes one logical request: rate limit, send with 429 backoff,
// classify the outcome, decode the body.
func (c *Client) do(ctx context.Context, method, path, endpoint string, body, result interface{}) error {
	start := time.Now()
	err := c.doOnce(ctx, method, path, endpoint, body, result)
	metrics.RecordRemoteRequest(endpoint, outcomeLabel(err), time.Since(start))
	return err
}

func outcomeLabel(err error) string {
	switch {
	case err == nil:
		return "success"
	case IsConflict(err):
		return "conflict"
	default:
		return "unavailable"
	}
}

func (c *Client) doOnce(ctx context.Context, method, path, endpoint string, body, result interface{}) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("%w: rate limiter: %v", ErrUnavailable, err)
	}

	var payload []byte
	if body != nil {
		var err error
		payload, err = json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal %s request: %w", endpoint, err)
		}
	}

	resp, err := c.doWithRateLimit(ctx, method, c.baseURL+path, payload)
	if err != nil {
		return fmt.Errorf("%w: %s: %v", ErrUnavailable, endpoint, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		errBody := readBodyForError(resp.Body)
		return classifyStatus(endpoint, resp.StatusCode, string(errBody))
	}

	if result == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(result); err != nil {
		return fmt.Errorf("decode %s response: %w", endpoint, err)
	}
	return nil
}

// doWithRateLimit sends the request, retrying HTTP 429 with exponential
// backoff (base, 2x, 4x, ...) and honoring Retry-After when present.
func (c *Client) doWithRateLimit(ctx context.Context, method, reqURL string, payload []byte) (*http.Response, error) {
	var lastErr error

	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}

		var reqBody io.Reader = http.NoBody
		if payload != nil {
			reqBody = bytes.NewReader(payload)
		}
		req, err := http.NewRequestWithContext(ctx, method, reqURL, reqBody)
		if err != nil {
			return nil, fmt.Errorf("create request: %w", err)
		}
		if payload != nil {
			req.Header.Set("Content-Type", "application/json")
		}

		resp, err := c.client.Do(req)
		if err != nil {
			return nil, err
		}

		if resp.StatusCode != http.StatusTooManyRequests {
			return resp, nil
		}

		_ = resp.Body.Close()

		if attempt == c.maxRetries {
			lastErr = fmt.Errorf("rate limit exceeded after %d retries (HTTP 429)", c.maxRetries)
			break
		}

		delay := c.retryBaseDelay * time.Duration(1<<uint(attempt))
		if retryAfter := resp.Header.Get("Retry-After"); retryAfter != "" {
			if seconds, perr := strconv.Atoi(retryAfter); perr == nil {
				delay = time.Duration(seconds) * time.Second
			}
		}

		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	return nil, lastErr
}

// readBodyForError reads at most maxErrorBodySize bytes of the response
// body for error reporting.
func readBodyForError(r io.Reader) []byte {
	body, err := io.ReadAll(io.LimitReader(r, maxErrorBodySize))
	if err != nil {
		return []byte("(failed to read response body)")
	}
	if len(body) == maxErrorBodySize {
		return append(body, []byte("... (truncated)")...)
	}
	return body
}
