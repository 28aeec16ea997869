// ReelSync - Offline-First Movie Recommendation Sync Engine
// Copyright 2026 M. Veldt (mveldt)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/mveldt/reelsync

package models

import (
	"math"
	"strconv"
	"strings"

	"github.com/goccy/go-json"
)

// RawMovie is a movie record as the remote recommendation service returns
// it. The service is loose about types: list fields arrive either as a
// delimited string ("Action, Comedy|Drama") or as an array, ratings arrive
// as a float, an int, or a numeric string, and identifiers may be missing
// entirely. RawMovie absorbs all of that; normalization produces the
// canonical Movie shape.
type RawMovie struct {
	MovieID         string     `json:"movieId"`
	ID              string     `json:"id"`
	Title           string     `json:"title"`
	PosterURL       string     `json:"poster_url"`
	TrailerURL      string     `json:"trailer_url"`
	Genres          StringList `json:"genres"`
	Actors          StringList `json:"actors"`
	Producers       StringList `json:"producers"`
	Director        string     `json:"director"`
	PredictedRating FlexFloat  `json:"predicted_rating"`
}

// Movie is the canonical cached recommendation record.
//
// Invariant: MovieID is non-empty and unique within a cached dataset.
// Records that fail validation (missing poster or trailer) never reach
// this type.
type Movie struct {
	MovieID         string   `json:"movieId"`
	Title           string   `json:"title"`
	PosterURL       string   `json:"posterUrl"`
	TrailerURL      string   `json:"trailerUrl"`
	TrailerKey      string   `json:"trailerKey,omitempty"`
	Genres          []string `json:"genres"`
	Actors          []string `json:"actors"`
	Producers       []string `json:"producers"`
	Director        string   `json:"director"`
	PredictedRating float64  `json:"predictedRating"`
}

// StringList accepts a JSON array of strings, a single delimited string,
// or null. Elements are split on ',' and '|' and trimmed; blanks are
// dropped.
type StringList []string

// UnmarshalJSON implements json.Unmarshaler.
func (s *StringList) UnmarshalJSON(data []byte) error {
	if len(data) == 0 || string(data) == "null" {
		*s = nil
		return nil
	}

	var arr []string
	if err := json.Unmarshal(data, &arr); err == nil {
		out := make([]string, 0, len(arr))
		for _, v := range arr {
			if v = strings.TrimSpace(v); v != "" {
				out = append(out, v)
			}
		}
		*s = out
		return nil
	}

	var str string
	if err := json.Unmarshal(data, &str); err == nil {
		*s = SplitList(str)
		return nil
	}

	// Unexpected shape (object, number); treat as empty rather than
	// failing the whole record.
	*s = nil
	return nil
}

// SplitList splits a delimited string on ',' or '|' and trims each element.
func SplitList(s string) []string {
	if s == "" {
		return nil
	}
	fields := strings.FieldsFunc(s, func(r rune) bool {
		return r == ',' || r == '|'
	})
	out := make([]string, 0, len(fields))
	for _, f := range fields {
		if f = strings.TrimSpace(f); f != "" {
			out = append(out, f)
		}
	}
	return out
}

// FlexFloat accepts a JSON number, a numeric string, or null. Anything
// unparseable or non-finite decodes to 0.
type FlexFloat float64

// UnmarshalJSON implements json.Unmarshaler.
func (f *FlexFloat) UnmarshalJSON(data []byte) error {
	*f = 0
	if len(data) == 0 || string(data) == "null" {
		return nil
	}

	var num float64
	if err := json.Unmarshal(data, &num); err == nil {
		if !math.IsNaN(num) && !math.IsInf(num, 0) {
			*f = FlexFloat(num)
		}
		return nil
	}

	var str string
	if err := json.Unmarshal(data, &str); err == nil {
		num, err := strconv.ParseFloat(strings.TrimSpace(str), 64)
		if err == nil && !math.IsNaN(num) && !math.IsInf(num, 0) {
			*f = FlexFloat(num)
		}
	}
	return nil
}
