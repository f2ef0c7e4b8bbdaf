package types

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// DistanceMode selects how an explicit max distance combines with scoring.
type DistanceMode string

const (
	// DistanceExcludeThenScore drops candidates outside the radius (or without
	// coordinates) before ranking.
	DistanceExcludeThenScore DistanceMode = "exclude_then_score"
	// DistanceScoreOnly keeps every candidate and lets location_match carry distance.
	DistanceScoreOnly DistanceMode = "score_only"
)

func ParseDistanceMode(s string) (DistanceMode, error) {
	switch DistanceMode(s) {
	case DistanceExcludeThenScore, DistanceScoreOnly:
		return DistanceMode(s), nil
	case "":
		return DistanceExcludeThenScore, nil
	default:
		return "", fmt.Errorf("unknown distance mode %q", s)
	}
}

type SearchMode string

const (
	SearchSemantic SearchMode = "semantic"
	SearchFallback SearchMode = "fallback"
)

// LocationFilter names how the request's place narrowed the candidates.
type LocationFilter string

const (
	// LocationFilterVenueText keeps events whose location text contains the
	// unresolved place name.
	LocationFilterVenueText LocationFilter = "venue_text"
)

// RetrievalRequest is the input to tiered event retrieval.
type RetrievalRequest struct {
	Query        string     `json:"query"`
	LocationID   *uuid.UUID `json:"location_id,omitempty"`
	LocationText string     `json:"location,omitempty"`
	// DefaultState qualifies LocationText when it carries no state of its own.
	DefaultState string `json:"default_state,omitempty"`
	// UserLat and UserLng give a center directly; used when no place resolves.
	UserLat             *float64          `json:"user_lat,omitempty"`
	UserLng             *float64          `json:"user_lng,omitempty"`
	DateFrom            *time.Time        `json:"date_from,omitempty"`
	DateTo              *time.Time        `json:"date_to,omitempty"`
	IsVirtual           *bool             `json:"is_virtual,omitempty"`
	SimilarityThreshold *float64          `json:"similarity_threshold,omitempty"`
	Weights             *ScoringWeights   `json:"weights,omitempty"`
	TierCaps            *TierCapsOverride `json:"tiers,omitempty"`
	MaxDistanceMiles    *float64          `json:"max_distance_miles,omitempty"`
	DistanceMode        DistanceMode      `json:"distance_mode,omitempty"`
}

// RetrievalMetadata explains how a result was produced.
type RetrievalMetadata struct {
	SearchMode          SearchMode     `json:"search_mode"`
	Degraded            bool           `json:"degraded"`
	DegradedReason      string         `json:"degraded_reason,omitempty"`
	Weights             ScoringWeights `json:"weights"`
	WeightsAdvisory     string         `json:"weights_advisory,omitempty"`
	TierCaps            TierCaps       `json:"tier_caps"`
	SimilarityThreshold float64        `json:"similarity_threshold"`
	DistanceMode        DistanceMode   `json:"distance_mode"`
	MaxDistanceMiles    *float64       `json:"max_distance_miles,omitempty"`
	LocationFilter      LocationFilter `json:"location_filter,omitempty"`
	VenueText           string         `json:"venue_text,omitempty"`
	CandidateCount      int            `json:"candidate_count"`
	ExcludedByRadius    int            `json:"excluded_by_radius"`
	RankedCount         int            `json:"ranked_count"`
	CorpusSize          int            `json:"corpus_size"`
}

// RAGResult is the tiered retrieval response.
type RAGResult struct {
	RecommendedEvents []RankedEvent     `json:"recommended_events"`
	AdditionalEvents  []RankedEvent     `json:"additional_events"`
	ContextEvents     []RankedEvent     `json:"context_events"`
	Location          *ResolvedLocation `json:"location"`
	Metadata          RetrievalMetadata `json:"metadata"`
}

// TotalEvents is the number of events across all tiers.
func (r RAGResult) TotalEvents() int {
	return len(r.RecommendedEvents) + len(r.AdditionalEvents) + len(r.ContextEvents)
}
