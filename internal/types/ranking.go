package types

import (
	"errors"
	"fmt"
	"math"
)

var ErrInvalidWeight = errors.New("invalid scoring weight")

// ScoringWeights holds one weight per ranking factor. Build it with
// NewScoringWeights so malformed values are rejected up front.
type ScoringWeights struct {
	SemanticSimilarity float64 `json:"semantic_similarity" mapstructure:"semanticSimilarity"`
	LocationMatch      float64 `json:"location_match" mapstructure:"locationMatch"`
	TimeRelevance      float64 `json:"time_relevance" mapstructure:"timeRelevance"`
	CategoryMatch      float64 `json:"category_match" mapstructure:"categoryMatch"`
	Popularity         float64 `json:"popularity" mapstructure:"popularity"`
}

// DefaultScoringWeights favours semantic relevance, then proximity and timing.
func DefaultScoringWeights() ScoringWeights {
	return ScoringWeights{
		SemanticSimilarity: 0.40,
		LocationMatch:      0.25,
		TimeRelevance:      0.20,
		CategoryMatch:      0.10,
		Popularity:         0.05,
	}
}

// NewScoringWeights validates and returns a weight set. Negative or
// non-finite values are rejected; a sum other than 1 is allowed.
func NewScoringWeights(semantic, location, time, category, popularity float64) (ScoringWeights, error) {
	w := ScoringWeights{
		SemanticSimilarity: semantic,
		LocationMatch:      location,
		TimeRelevance:      time,
		CategoryMatch:      category,
		Popularity:         popularity,
	}
	if err := w.Validate(); err != nil {
		return ScoringWeights{}, err
	}
	return w, nil
}

// Validate checks every weight is finite and non-negative.
func (w ScoringWeights) Validate() error {
	fields := []struct {
		name  string
		value float64
	}{
		{"semantic_similarity", w.SemanticSimilarity},
		{"location_match", w.LocationMatch},
		{"time_relevance", w.TimeRelevance},
		{"category_match", w.CategoryMatch},
		{"popularity", w.Popularity},
	}
	for _, f := range fields {
		if math.IsNaN(f.value) || math.IsInf(f.value, 0) {
			return fmt.Errorf("%w: %s is not a finite number", ErrInvalidWeight, f.name)
		}
		if f.value < 0 {
			return fmt.Errorf("%w: %s must be non-negative, got %g", ErrInvalidWeight, f.name, f.value)
		}
	}
	return nil
}

func (w ScoringWeights) Sum() float64 {
	return w.SemanticSimilarity + w.LocationMatch + w.TimeRelevance + w.CategoryMatch + w.Popularity
}

// SumAdvisory returns a human readable note when the weights do not add up to 1.
// Weights are never renormalized; the note only surfaces in response metadata.
func (w ScoringWeights) SumAdvisory() string {
	sum := w.Sum()
	if math.Abs(sum-1) <= 0.01 {
		return ""
	}
	return fmt.Sprintf("scoring weights sum to %.3f, not 1.0; scores are not normalized", sum)
}

// TierCaps bounds the size of each output tier.
type TierCaps struct {
	MaxRecommended int `json:"max_recommended" mapstructure:"maxRecommended"`
	MaxAdditional  int `json:"max_additional" mapstructure:"maxAdditional"`
	MaxContext     int `json:"max_context" mapstructure:"maxContext"`
}

func DefaultTierCaps() TierCaps {
	return TierCaps{MaxRecommended: 10, MaxAdditional: 15, MaxContext: 50}
}

// Total is the largest number of events a tiering can emit.
func (c TierCaps) Total() int {
	return c.MaxRecommended + c.MaxAdditional + c.MaxContext
}

func (c TierCaps) Validate() error {
	if c.MaxRecommended < 0 || c.MaxAdditional < 0 || c.MaxContext < 0 {
		return fmt.Errorf("tier caps must be non-negative: %+v", c)
	}
	return nil
}

// TierCapsOverride is a partial TierCaps; unset fields keep the base value.
type TierCapsOverride struct {
	MaxRecommended *int `json:"max_recommended,omitempty"`
	MaxAdditional  *int `json:"max_additional,omitempty"`
	MaxContext     *int `json:"max_context,omitempty"`
}

// Apply merges the override into base field by field and validates the result.
func (o TierCapsOverride) Apply(base TierCaps) (TierCaps, error) {
	if o.MaxRecommended != nil {
		base.MaxRecommended = *o.MaxRecommended
	}
	if o.MaxAdditional != nil {
		base.MaxAdditional = *o.MaxAdditional
	}
	if o.MaxContext != nil {
		base.MaxContext = *o.MaxContext
	}
	if err := base.Validate(); err != nil {
		return TierCaps{}, err
	}
	return base, nil
}

type Tier string

const (
	TierRecommended Tier = "recommended"
	TierAdditional  Tier = "additional"
	TierContext     Tier = "context"
)

// RankingFactors are the per-event component scores, each in [0,1].
type RankingFactors struct {
	SemanticSimilarity float64  `json:"semantic_similarity"`
	LocationMatch      float64  `json:"location_match"`
	TimeRelevance      float64  `json:"time_relevance"`
	CategoryMatch      float64  `json:"category_match"`
	Popularity         float64  `json:"popularity"`
	DistanceMiles      *float64 `json:"distance_miles,omitempty"`
	DaysUntilEvent     *float64 `json:"days_until_event,omitempty"`
}

// Weighted combines the factors with w. No renormalization is applied.
func (f RankingFactors) Weighted(w ScoringWeights) float64 {
	return w.SemanticSimilarity*f.SemanticSimilarity +
		w.LocationMatch*f.LocationMatch +
		w.TimeRelevance*f.TimeRelevance +
		w.CategoryMatch*f.CategoryMatch +
		w.Popularity*f.Popularity
}

type RankedEvent struct {
	Event      EventCandidate `json:"event"`
	Factors    RankingFactors `json:"ranking_factors"`
	Similarity float64        `json:"similarity_score"`
	FinalScore float64        `json:"final_score"`
	Fallback   bool           `json:"fallback"`
	Tier       Tier           `json:"tier"`
}

// TieredEvents is the ranked output split into disjoint tiers.
type TieredEvents struct {
	Recommended []RankedEvent `json:"recommended_events"`
	Additional  []RankedEvent `json:"additional_events"`
	Context     []RankedEvent `json:"context_events"`
	// Dropped counts candidates removed by the similarity threshold or tier caps.
	Dropped int `json:"dropped"`
}

func (t TieredEvents) Len() int {
	return len(t.Recommended) + len(t.Additional) + len(t.Context)
}
