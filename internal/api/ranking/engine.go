package ranking

import (
	"log/slog"
	"sort"
	"time"

	"github.com/SuperSchedules/superschedules/internal/types"
)

// Config holds the tunables that are not part of a request.
type Config struct {
	SimilarityThreshold  float64
	NeutralLocationScore float64
	NeutralPopularity    float64
}

func DefaultConfig() Config {
	return Config{
		SimilarityThreshold:  0.1,
		NeutralLocationScore: 0.5,
		NeutralPopularity:    0.5,
	}
}

// RankContext is the per-request input shared by every candidate.
type RankContext struct {
	QueryText   string
	HasLocation bool
	Now         time.Time
	// SimilarityThreshold overrides Config.SimilarityThreshold when set.
	SimilarityThreshold *float64
}

type Engine struct {
	logger *slog.Logger
	cfg    Config
}

func NewEngine(cfg Config, logger *slog.Logger) *Engine {
	return &Engine{
		logger: logger,
		cfg:    cfg,
	}
}

func (e *Engine) Config() Config {
	return e.cfg
}

// Factors computes the component scores for one candidate.
func (e *Engine) Factors(c types.ScoredEvent, keywords []string, rc RankContext) types.RankingFactors {
	f := types.RankingFactors{
		SemanticSimilarity: SemanticScore(c.Similarity),
		LocationMatch:      LocationScore(c.DistanceMiles, rc.HasLocation, e.cfg.NeutralLocationScore),
		CategoryMatch:      CategoryScore(keywords, c.Event.Tags, c.Event.Audience),
		Popularity:         PopularityScore(c.Event.Popularity, e.cfg.NeutralPopularity),
	}
	if rc.HasLocation {
		f.DistanceMiles = c.DistanceMiles
	}
	f.TimeRelevance, f.DaysUntilEvent = TimeScore(c.Event.StartTime, rc.Now)
	return f
}

// Rank scores candidates, drops those below the similarity threshold (fallback
// hits are exempt), sorts them and splits the top of the list into tiers.
// Weights are applied as given.
func (e *Engine) Rank(candidates []types.ScoredEvent, rc RankContext, w types.ScoringWeights, caps types.TierCaps) types.TieredEvents {
	if rc.Now.IsZero() {
		rc.Now = time.Now()
	}
	keywords := QueryKeywords(rc.QueryText)
	threshold := e.cfg.SimilarityThreshold
	if rc.SimilarityThreshold != nil {
		threshold = *rc.SimilarityThreshold
	}

	ranked := make([]types.RankedEvent, 0, len(candidates))
	belowThreshold := 0
	for _, c := range candidates {
		if !c.Fallback && c.Similarity < threshold {
			belowThreshold++
			continue
		}
		f := e.Factors(c, keywords, rc)
		ranked = append(ranked, types.RankedEvent{
			Event:      c.Event,
			Factors:    f,
			Similarity: c.Similarity,
			FinalScore: f.Weighted(w),
			Fallback:   c.Fallback,
		})
	}

	sort.SliceStable(ranked, func(i, j int) bool {
		a, b := ranked[i], ranked[j]
		if a.FinalScore != b.FinalScore {
			return a.FinalScore > b.FinalScore
		}
		return startsBefore(a.Event, b.Event)
	})

	out := tier(ranked, caps)
	out.Dropped += belowThreshold
	e.logger.Debug("Ranked candidates",
		slog.Int("candidates", len(candidates)),
		slog.Int("below_threshold", belowThreshold),
		slog.Int("recommended", len(out.Recommended)),
		slog.Int("additional", len(out.Additional)),
		slog.Int("context", len(out.Context)))
	return out
}

// tier splits an already sorted list. The tiers are disjoint and, together,
// cover the first caps.Total() entries.
func tier(ranked []types.RankedEvent, caps types.TierCaps) types.TieredEvents {
	var out types.TieredEvents
	take := func(n int, t types.Tier) []types.RankedEvent {
		if n <= 0 || len(ranked) == 0 {
			return []types.RankedEvent{}
		}
		if n > len(ranked) {
			n = len(ranked)
		}
		slice := make([]types.RankedEvent, n)
		copy(slice, ranked[:n])
		for i := range slice {
			slice[i].Tier = t
		}
		ranked = ranked[n:]
		return slice
	}
	out.Recommended = take(caps.MaxRecommended, types.TierRecommended)
	out.Additional = take(caps.MaxAdditional, types.TierAdditional)
	out.Context = take(caps.MaxContext, types.TierContext)
	out.Dropped = len(ranked)
	return out
}

func startsBefore(a, b types.EventCandidate) bool {
	switch {
	case a.StartTime != nil && b.StartTime != nil:
		if !a.StartTime.Equal(*b.StartTime) {
			return a.StartTime.Before(*b.StartTime)
		}
	case a.StartTime != nil:
		return true
	case b.StartTime != nil:
		return false
	}
	return a.ID.String() < b.ID.String()
}
