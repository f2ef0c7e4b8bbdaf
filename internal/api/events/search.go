package events

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/SuperSchedules/superschedules/internal/api/embedding"
	"github.com/SuperSchedules/superschedules/internal/types"
)

const DefaultMaxCandidates = 100

// QueryEmbedder turns a query into a vector in the corpus space.
type QueryEmbedder interface {
	EmbedQuery(ctx context.Context, text string) ([]float32, error)
}

type SearchOptions struct {
	OnlyFutureEvents bool
	MaxCandidates    int
	// TimeWindowDays limits candidates to events starting within the window; 0 disables it.
	TimeWindowDays int
	// DateFrom and DateTo bound the start time, both inclusive. Events with no
	// start time never match a date bound.
	DateFrom *time.Time
	DateTo   *time.Time
	// IsVirtual keeps only virtual (true) or only in-person (false) events.
	IsVirtual *bool
	// VenueText keeps events whose location text contains it, ignoring case.
	VenueText string
	Now       time.Time
}

func DefaultSearchOptions(now time.Time) SearchOptions {
	return SearchOptions{
		OnlyFutureEvents: true,
		MaxCandidates:    DefaultMaxCandidates,
		Now:              now,
	}
}

func (o SearchOptions) withDefaults() SearchOptions {
	if o.MaxCandidates <= 0 {
		o.MaxCandidates = DefaultMaxCandidates
	}
	if o.Now.IsZero() {
		o.Now = time.Now()
	}
	o.VenueText = strings.ToLower(strings.TrimSpace(o.VenueText))
	return o
}

// matches applies every filter except the embedding checks.
func (o SearchOptions) matches(e types.EventCandidate) bool {
	if o.OnlyFutureEvents && !e.IsUpcoming(o.Now) {
		return false
	}
	if o.TimeWindowDays > 0 {
		horizon := o.Now.AddDate(0, 0, o.TimeWindowDays)
		if e.StartTime == nil || e.StartTime.After(horizon) {
			return false
		}
	}
	if o.DateFrom != nil && (e.StartTime == nil || e.StartTime.Before(*o.DateFrom)) {
		return false
	}
	if o.DateTo != nil && (e.StartTime == nil || e.StartTime.After(*o.DateTo)) {
		return false
	}
	if o.IsVirtual != nil && e.IsVirtual != *o.IsVirtual {
		return false
	}
	if o.VenueText != "" && !strings.Contains(strings.ToLower(e.LocationText), o.VenueText) {
		return false
	}
	return true
}

// Searcher runs semantic and fallback searches over an event source.
type Searcher struct {
	logger   *slog.Logger
	source   EventSource
	embedder QueryEmbedder
}

func NewSearcher(source EventSource, embedder QueryEmbedder, logger *slog.Logger) *Searcher {
	return &Searcher{
		logger:   logger,
		source:   source,
		embedder: embedder,
	}
}

// SemanticSearch ranks embedded events by cosine similarity to the query.
// A stored vector whose length differs from the query vector aborts the
// search with embedding.ErrDimensionMismatch.
func (s *Searcher) SemanticSearch(ctx context.Context, query string, opts SearchOptions) ([]types.ScoredEvent, error) {
	ctx, span := otel.Tracer("EventsSearcher").Start(ctx, "SemanticSearch")
	defer span.End()

	opts = opts.withDefaults()

	qv, err := s.embedder.EmbedQuery(ctx, query)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "embed query failed")
		return nil, fmt.Errorf("failed to embed query: %w", err)
	}

	var hits []types.ScoredEvent
	for _, e := range s.source.Events() {
		if !e.HasEmbedding() {
			continue
		}
		if !opts.matches(e) {
			continue
		}
		if len(e.Embedding) != len(qv) {
			err := fmt.Errorf("%w: event %s has %d dimensions, query has %d",
				embedding.ErrDimensionMismatch, e.ID, len(e.Embedding), len(qv))
			span.RecordError(err)
			span.SetStatus(codes.Error, "dimension mismatch")
			return nil, err
		}
		hits = append(hits, types.ScoredEvent{
			Event:      e,
			Similarity: embedding.CosineSimilarity(qv, e.Embedding),
		})
	}

	sort.SliceStable(hits, func(i, j int) bool {
		if hits[i].Similarity != hits[j].Similarity {
			return hits[i].Similarity > hits[j].Similarity
		}
		return startsBefore(hits[i].Event, hits[j].Event)
	})
	if len(hits) > opts.MaxCandidates {
		hits = hits[:opts.MaxCandidates]
	}

	span.SetAttributes(attribute.Int("search.candidates", len(hits)))
	s.logger.DebugContext(ctx, "Semantic search complete",
		slog.String("query", query),
		slog.Int("candidates", len(hits)))
	return hits, nil
}

// FallbackSearch returns up to opts.MaxCandidates upcoming events matching
// opts, soonest first, each marked as a fallback hit with zero similarity.
// It never fails.
func (s *Searcher) FallbackSearch(ctx context.Context, query string, opts SearchOptions) []types.ScoredEvent {
	_, span := otel.Tracer("EventsSearcher").Start(ctx, "FallbackSearch")
	defer span.End()

	opts.OnlyFutureEvents = true
	opts = opts.withDefaults()

	var hits []types.ScoredEvent
	for _, e := range s.source.Events() {
		if !opts.matches(e) {
			continue
		}
		hits = append(hits, types.ScoredEvent{Event: e, Fallback: true})
	}
	sort.SliceStable(hits, func(i, j int) bool {
		return startsBefore(hits[i].Event, hits[j].Event)
	})
	if len(hits) > opts.MaxCandidates {
		hits = hits[:opts.MaxCandidates]
	}

	span.SetAttributes(attribute.Int("search.candidates", len(hits)))
	s.logger.DebugContext(ctx, "Fallback search complete",
		slog.String("query", query),
		slog.Int("candidates", len(hits)))
	return hits
}

// startsBefore orders by start time (unknown last), then id.
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
