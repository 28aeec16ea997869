// ReelSync - Offline-First Movie Recommendation Sync Engine
// Copyright 2026 M. Veldt (mveldt)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/mveldt/reelsync

package remote

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/goccy/go-json"

	"github.com/mveldt/reelsync/internal/config"
	"github.com/mveldt/reelsync/internal/models"
)

func testClient(t *testing.T, handler http.Handler) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	return NewClient(config.RemoteConfig{
		URL:            srv.URL,
		Timeout:        5 * time.Second,
		MaxRetries:     2,
		RetryBaseDelay: time.Millisecond,
	})
}

func TestGetRecommendations_BareArray(t *testing.T) {
	c := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/movies/recommendations/u1" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		w.Write([]byte(`[{"title":"Heat"},{"title":"Ronin"}]`))
	}))

	got, err := c.GetRecommendations(context.Background(), "u1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(got) != 2 || got[0].Title != "Heat" {
		t.Errorf("unexpected result: %+v", got)
	}
}

func TestGetRecommendations_Envelope(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{name: "movies key", body: `{"movies":[{"title":"Heat"}]}`},
		{name: "recommendations key", body: `{"recommendations":[{"title":"Heat"}]}`},
		{name: "data key", body: `{"data":[{"title":"Heat"}]}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.Write([]byte(tt.body))
			}))
			got, err := c.GetRecommendations(context.Background(), "u1")
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if len(got) != 1 || got[0].Title != "Heat" {
				t.Errorf("unexpected result: %+v", got)
			}
		})
	}
}

func TestErrorClassification(t *testing.T) {
	tests := []struct {
		name        string
		status      int
		wantConfl   bool
		wantUnavail bool
	}{
		{name: "400 is conflict", status: http.StatusBadRequest, wantConfl: true},
		{name: "404 is conflict", status: http.StatusNotFound, wantConfl: true},
		{name: "409 is conflict", status: http.StatusConflict, wantConfl: true},
		{name: "500 is unavailable", status: http.StatusInternalServerError, wantUnavail: true},
		{name: "503 is unavailable", status: http.StatusServiceUnavailable, wantUnavail: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
			}))
			err := c.RecordAction(context.Background(), models.ActionLike, "u1", "m1")
			if err == nil {
				t.Fatal("expected an error")
			}
			if IsConflict(err) != tt.wantConfl {
				t.Errorf("IsConflict = %v, want %v (err: %v)", IsConflict(err), tt.wantConfl, err)
			}
			if IsUnavailable(err) != tt.wantUnavail {
				t.Errorf("IsUnavailable = %v, want %v (err: %v)", IsUnavailable(err), tt.wantUnavail, err)
			}
		})
	}
}

func TestNetworkErrorIsUnavailable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	srv.Close() // connection refused from here on

	c := NewClient(config.RemoteConfig{
		URL:            srv.URL,
		Timeout:        time.Second,
		MaxRetries:     1,
		RetryBaseDelay: time.Millisecond,
	})

	err := c.Probe(context.Background())
	if !IsUnavailable(err) {
		t.Errorf("expected ErrUnavailable for refused connection, got %v", err)
	}
}

func TestRateLimitRetry(t *testing.T) {
	var calls atomic.Int32
	c := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.Header().Set("Retry-After", "0")
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		w.Write([]byte(`[]`))
	}))

	if err := c.Probe(context.Background()); err != nil {
		t.Fatalf("expected retry to succeed, got %v", err)
	}
	if calls.Load() != 2 {
		t.Errorf("expected 2 calls, got %d", calls.Load())
	}
}

func TestRateLimitExhaustedIsUnavailable(t *testing.T) {
	c := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))

	err := c.Probe(context.Background())
	if !IsUnavailable(err) {
		t.Errorf("expected ErrUnavailable after retry exhaustion, got %v", err)
	}
}

func TestRegenerate_RouteAndBody(t *testing.T) {
	var gotPath string
	var gotBody struct {
		UserID        string   `json:"userId"`
		Genres        []string `json:"genres"`
		ExcludeTitles []string `json:"excludeTitles"`
	}
	c := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		if err := json.NewDecoder(r.Body).Decode(&gotBody); err != nil {
			t.Errorf("decode body: %v", err)
		}
		w.Write([]byte(`{}`))
	}))

	prefs := models.RegeneratePrefs{Genres: []string{"Crime"}, ExcludeTitles: []string{"Heat"}}
	if err := c.Regenerate(context.Background(), "u1", prefs); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if gotPath != "/api/movies/regenerate" {
		t.Errorf("path = %s", gotPath)
	}
	if gotBody.UserID != "u1" || len(gotBody.Genres) != 1 || gotBody.ExcludeTitles[0] != "Heat" {
		t.Errorf("unexpected body: %+v", gotBody)
	}
}

func TestRecordAction_Routes(t *testing.T) {
	tests := []struct {
		action models.ActionType
		path   string
	}{
		{action: models.ActionLike, path: "/api/movies/like"},
		{action: models.ActionSave, path: "/api/movies/watchLater"},
		{action: models.ActionHistory, path: "/api/movies/history"},
		{action: models.ActionDelete, path: "/api/movies/recommended/delete"},
	}

	for _, tt := range tests {
		t.Run(string(tt.action), func(t *testing.T) {
			var gotPath, gotMethod string
			c := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				gotPath = r.URL.Path
				gotMethod = r.Method
				w.Write([]byte(`{}`))
			}))

			if err := c.RecordAction(context.Background(), tt.action, "u1", "m1"); err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if gotPath != tt.path {
				t.Errorf("path = %s, want %s", gotPath, tt.path)
			}
			if gotMethod != http.MethodPost {
				t.Errorf("method = %s, want POST", gotMethod)
			}
		})
	}
}

func TestGetSubscription(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{name: "flat", body: `{"isActive":true,"plan":"premium"}`},
		{name: "nested", body: `{"subscription":{"isActive":true,"plan":"premium"}}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.Write([]byte(tt.body))
			}))
			sub, err := c.GetSubscription(context.Background(), "u1")
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if !sub.IsActive || sub.Plan != "premium" {
				t.Errorf("unexpected subscription: %+v", sub)
			}
		})
	}
}

func TestGetStreamerProfile_EnvelopeUnwrap(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{name: "user envelope", body: `{"user":{"userId":"u1","username":"kino","genres":["Drama"]}}`},
		{name: "data envelope", body: `{"data":{"userId":"u1","username":"kino","genres":["Drama"]}}`},
		{name: "streamer envelope", body: `{"streamer":{"userId":"u1","username":"kino","genres":["Drama"]}}`},
		{name: "flat", body: `{"userId":"u1","username":"kino","genres":["Drama"]}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.Write([]byte(tt.body))
			}))
			p, err := c.GetStreamerProfile(context.Background(), "u1")
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if p.Username != "kino" || len(p.Genres) != 1 {
				t.Errorf("unexpected profile: %+v", p)
			}
		})
	}
}

func TestGetStreamerProfile_FillsUserID(t *testing.T) {
	c := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"username":"kino"}`))
	}))
	p, err := c.GetStreamerProfile(context.Background(), "u9")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if p.UserID != "u9" {
		t.Errorf("expected userID backfill, got %q", p.UserID)
	}
}

func TestGetCarousel_Routes(t *testing.T) {
	tests := []struct {
		dataset string
		path    string
	}{
		{dataset: models.DatasetTopLiked, path: "/api/movies/top-liked"},
		{dataset: models.DatasetLikedTitles, path: "/api/movies/likedMovies/u1"},
		{dataset: models.DatasetSavedTitles, path: "/api/movies/watchLater/u1"},
		{dataset: models.DatasetWatchedTitles, path: "/api/movies/historyMovies/u1"},
	}

	for _, tt := range tests {
		t.Run(tt.dataset, func(t *testing.T) {
			var gotPath string
			c := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				gotPath = r.URL.Path
				w.Write([]byte(`[]`))
			}))
			if _, err := c.GetCarousel(context.Background(), tt.dataset, "u1"); err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if gotPath != tt.path {
				t.Errorf("path = %s, want %s", gotPath, tt.path)
			}
		})
	}

	if _, err := testClient(t, http.NewServeMux()).GetCarousel(context.Background(), "recommendedMovies", "u1"); err == nil {
		t.Error("non-carousel dataset must be rejected")
	}
}
