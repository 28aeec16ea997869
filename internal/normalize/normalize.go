// ReelSync - Offline-First Movie Recommendation Sync Engine
// Copyright 2026 M. Veldt (mveldt)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/mveldt/reelsync

// Package normalize converts heterogeneous remote movie records into the
// canonical Movie shape.
//
// The rules mirror the remote service's actual behavior rather than an
// idealized schema: records without a usable poster or trailer are dropped
// outright, list fields may arrive delimited or as arrays, and trailer keys
// are extracted from the two YouTube URL forms the catalog contains.
package normalize

import (
	"hash/fnv"
	"strconv"
	"strings"

	"github.com/mveldt/reelsync/internal/logging"
	"github.com/mveldt/reelsync/internal/models"
)

// youtubeIDLen is the length of a YouTube video identifier.
const youtubeIDLen = 11

// Movies converts raw remote records into canonical movies.
//
// Records missing a poster or trailer URL (or carrying the literal "nan")
// are dropped. Duplicate titles are removed, first occurrence wins — the
// remote deduplicates by title, and the engine preserves that contract
// rather than inventing a stronger key. Dropped records are logged at
// debug level and never fail the batch.
func Movies(raw []models.RawMovie) []models.Movie {
	out := make([]models.Movie, 0, len(raw))
	seenTitles := make(map[string]struct{}, len(raw))
	seenIDs := make(map[string]struct{}, len(raw))

	for i := range raw {
		r := &raw[i]
		if !usableURL(r.PosterURL) || !usableURL(r.TrailerURL) {
			logging.Debug().Str("title", r.Title).Msg("normalize: dropping record without poster or trailer")
			continue
		}

		titleKey := strings.ToLower(strings.TrimSpace(r.Title))
		if _, dup := seenTitles[titleKey]; dup {
			continue
		}
		seenTitles[titleKey] = struct{}{}

		m := models.Movie{
			MovieID:         movieID(r),
			Title:           strings.TrimSpace(r.Title),
			PosterURL:       strings.TrimSpace(r.PosterURL),
			TrailerURL:      strings.TrimSpace(r.TrailerURL),
			TrailerKey:      TrailerKey(r.TrailerURL),
			Genres:          orEmpty(r.Genres),
			Actors:          orEmpty(r.Actors),
			Producers:       orEmpty(r.Producers),
			Director:        orNA(r.Director),
			PredictedRating: float64(r.PredictedRating),
		}

		// Title collisions after hashing are possible in theory; an ID seen
		// twice keeps the cached list invariant intact by skipping.
		if _, dup := seenIDs[m.MovieID]; dup {
			continue
		}
		seenIDs[m.MovieID] = struct{}{}

		out = append(out, m)
	}
	return out
}

// TopRated returns the count highest-rated movies, descending by predicted
// rating. The input slice is not modified.
func TopRated(movies []models.Movie, count int) []models.Movie {
	sorted := make([]models.Movie, len(movies))
	copy(sorted, movies)

	// Insertion sort keeps ties in input order; lists are small (tens).
	for i := 1; i < len(sorted); i++ {
		for j := i; j > 0 && sorted[j].PredictedRating > sorted[j-1].PredictedRating; j-- {
			sorted[j], sorted[j-1] = sorted[j-1], sorted[j]
		}
	}

	if count > len(sorted) {
		count = len(sorted)
	}
	return sorted[:count]
}

// TrailerKey extracts the YouTube video ID from a trailer URL.
// Supported forms: "...watch?v=<id>..." and "...youtu.be/<id>...".
// Returns "" when neither pattern matches or the ID is malformed.
func TrailerKey(rawURL string) string {
	var id string
	if _, after, found := strings.Cut(rawURL, "v="); found {
		id = after
	} else if _, after, found := strings.Cut(rawURL, "youtu.be/"); found {
		id = after
	} else {
		return ""
	}

	// Strip trailing query or fragment.
	if idx := strings.IndexAny(id, "&?#"); idx >= 0 {
		id = id[:idx]
	}
	if len(id) != youtubeIDLen {
		return ""
	}
	return id
}

// usableURL reports whether a poster/trailer URL is present and not the
// literal "nan" the catalog export produces for missing values.
func usableURL(s string) bool {
	s = strings.TrimSpace(s)
	return s != "" && !strings.EqualFold(s, "nan")
}

// movieID returns the record's stable identifier, falling back to an
// FNV-1a hash of the lower-cased title when the remote omits one.
func movieID(r *models.RawMovie) string {
	if id := strings.TrimSpace(r.MovieID); id != "" {
		return id
	}
	if id := strings.TrimSpace(r.ID); id != "" {
		return id
	}
	h := fnv.New64a()
	_, _ = h.Write([]byte(strings.ToLower(strings.TrimSpace(r.Title))))
	return "t-" + strconv.FormatUint(h.Sum64(), 16)
}

// orEmpty guarantees a non-nil slice for JSON round-trips.
func orEmpty(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}

// orNA substitutes "N/A" for absent person fields.
func orNA(s string) string {
	if s = strings.TrimSpace(s); s == "" {
		return "N/A"
	}
	return s
}
