// ReelSync - Offline-First Movie Recommendation Sync Engine
// Copyright 2026 M. Veldt (mveldt)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/mveldt/reelsync

// Package models defines the data shapes shared across the sync engine:
// canonical and raw movie records, pending mutations, cached dataset names,
// and the remote profile/subscription payloads.
package models

import "fmt"

// Named datasets held in the local cache. The UI only ever reads snapshots
// of these; all writes go through the sync engine.
const (
	DatasetRecommended     = "recommendedMovies"
	DatasetTopRated        = "topRatedMovies"
	DatasetUserGenres      = "userGenres"
	DatasetSubscription    = "subscription"
	DatasetStreamerProfile = "streamerProfile"

	// Carousel datasets mirror the remote list endpoints.
	DatasetTopLiked      = "topLiked"
	DatasetLikedTitles   = "likedTitles"
	DatasetSavedTitles   = "savedTitles"
	DatasetWatchedTitles = "watchedTitles"
)

// Datasets lists every named dataset in a stable order.
var Datasets = []string{
	DatasetRecommended,
	DatasetTopRated,
	DatasetUserGenres,
	DatasetSubscription,
	DatasetStreamerProfile,
	DatasetTopLiked,
	DatasetLikedTitles,
	DatasetSavedTitles,
	DatasetWatchedTitles,
}

// ValidDataset reports whether name is a known dataset.
func ValidDataset(name string) bool {
	for _, d := range Datasets {
		if d == name {
			return true
		}
	}
	return false
}

// CarouselDatasets maps carousel dataset names to the remote list they
// mirror.
var CarouselDatasets = []string{
	DatasetTopLiked,
	DatasetLikedTitles,
	DatasetSavedTitles,
	DatasetWatchedTitles,
}

// RegeneratePrefs narrows a recommendation model rebuild: restrict to
// the given genres and keep the listed titles out of the new model.
type RegeneratePrefs struct {
	Genres        []string `json:"genres,omitempty"`
	ExcludeTitles []string `json:"excludeTitles,omitempty"`
}

// Subscription is the remote subscription status for a user.
type Subscription struct {
	IsActive    bool    `json:"isActive"`
	Plan        string  `json:"plan"`
	Cycle       string  `json:"cycle"`
	Price       float64 `json:"price"`
	NextPayment string  `json:"nextPayment"`
}

// StreamerProfile is the normalized streamer account profile. The remote
// wraps it in varying envelopes ("user", "data", "streamer"); the remote
// client unwraps before handing it over.
type StreamerProfile struct {
	UserID       string   `json:"userId"`
	Username     string   `json:"username"`
	Email        string   `json:"email"`
	ProfileImage string   `json:"profileImage"`
	Genres       []string `json:"genres"`
}

// Validate checks profile fields the engine relies on.
func (p *StreamerProfile) Validate() error {
	if p.UserID == "" {
		return fmt.Errorf("streamer profile missing userId")
	}
	return nil
}
