package rag

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/SuperSchedules/superschedules/app/observability/metrics"
	"github.com/SuperSchedules/superschedules/internal/api/embedding"
	"github.com/SuperSchedules/superschedules/internal/api/events"
	"github.com/SuperSchedules/superschedules/internal/api/geo"
	"github.com/SuperSchedules/superschedules/internal/api/ranking"
	"github.com/SuperSchedules/superschedules/internal/types"
)

var ErrInvalidRequest = errors.New("invalid retrieval request")

var _ Service = (*ServiceImpl)(nil)

// Service produces tiered event context for a query.
type Service interface {
	GetContextEventsTiered(ctx context.Context, req types.RetrievalRequest) (*types.RAGResult, error)
}

// LocationResolver is the part of the location service retrieval depends on.
type LocationResolver interface {
	ResolveWithDefaultState(ctx context.Context, query, defaultState string) types.ResolvedLocation
	GetByID(ctx context.Context, id uuid.UUID) (types.ResolvedLocation, bool)
}

type EventSearcher interface {
	SemanticSearch(ctx context.Context, query string, opts events.SearchOptions) ([]types.ScoredEvent, error)
	FallbackSearch(ctx context.Context, query string, opts events.SearchOptions) []types.ScoredEvent
}

// CorpusSizer reports how many events are searchable.
type CorpusSizer interface {
	Len() int
}

// Config holds the request defaults.
type Config struct {
	MaxCandidates  int
	TimeWindowDays int
	// DefaultRadiusMiles replaces a non-positive max_distance_miles.
	DefaultRadiusMiles float64
	DistanceMode       types.DistanceMode
	Weights            types.ScoringWeights
	Tiers              types.TierCaps
}

func DefaultConfig() Config {
	return Config{
		MaxCandidates:      events.DefaultMaxCandidates,
		DefaultRadiusMiles: geo.DefaultRadiusMiles,
		DistanceMode:       types.DistanceExcludeThenScore,
		Weights:            types.DefaultScoringWeights(),
		Tiers:              types.DefaultTierCaps(),
	}
}

type ServiceImpl struct {
	logger    *slog.Logger
	cfg       Config
	locations LocationResolver
	searcher  EventSearcher
	engine    *ranking.Engine
	corpus    CorpusSizer
	now       func() time.Time
}

func NewServiceImpl(
	locations LocationResolver,
	searcher EventSearcher,
	engine *ranking.Engine,
	corpus CorpusSizer,
	cfg Config,
	logger *slog.Logger,
) *ServiceImpl {
	return &ServiceImpl{
		logger:    logger,
		cfg:       cfg,
		locations: locations,
		searcher:  searcher,
		engine:    engine,
		corpus:    corpus,
		now:       time.Now,
	}
}

type resolvedParams struct {
	weights   types.ScoringWeights
	caps      types.TierCaps
	mode      types.DistanceMode
	radius    *float64
	threshold float64
	advisory  string
}

func invalid(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidRequest, fmt.Sprintf(format, args...))
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

func (s *ServiceImpl) resolveParams(req types.RetrievalRequest) (resolvedParams, error) {
	p := resolvedParams{
		weights:   s.cfg.Weights,
		caps:      s.cfg.Tiers,
		mode:      s.cfg.DistanceMode,
		threshold: s.engine.Config().SimilarityThreshold,
	}
	if req.Weights != nil {
		w, err := types.NewScoringWeights(req.Weights.SemanticSimilarity, req.Weights.LocationMatch,
			req.Weights.TimeRelevance, req.Weights.CategoryMatch, req.Weights.Popularity)
		if err != nil {
			return p, fmt.Errorf("%w: %w", ErrInvalidRequest, err)
		}
		p.weights = w
	}
	if req.TierCaps != nil {
		caps, err := req.TierCaps.Apply(s.cfg.Tiers)
		if err != nil {
			return p, fmt.Errorf("%w: %w", ErrInvalidRequest, err)
		}
		p.caps = caps
	}
	if req.DistanceMode != "" {
		mode, err := types.ParseDistanceMode(string(req.DistanceMode))
		if err != nil {
			return p, fmt.Errorf("%w: %w", ErrInvalidRequest, err)
		}
		p.mode = mode
	}
	if p.mode == "" {
		p.mode = types.DistanceExcludeThenScore
	}
	if r := req.MaxDistanceMiles; r != nil {
		if !finite(*r) {
			return p, invalid("max_distance_miles must be a finite number")
		}
		radius := *r
		if radius <= 0 {
			radius = s.cfg.DefaultRadiusMiles
		}
		if radius <= 0 {
			radius = geo.DefaultRadiusMiles
		}
		p.radius = &radius
	}
	if t := req.SimilarityThreshold; t != nil {
		if !finite(*t) || *t < 0 || *t > 1 {
			return p, invalid("similarity_threshold must be between 0 and 1")
		}
		p.threshold = *t
	}
	if req.DateFrom != nil && req.DateTo != nil && req.DateFrom.After(*req.DateTo) {
		return p, invalid("date_from must not be after date_to")
	}
	if (req.UserLat == nil) != (req.UserLng == nil) {
		return p, invalid("user_lat and user_lng must be given together")
	}
	if req.UserLat != nil {
		lat, lng := *req.UserLat, *req.UserLng
		if !finite(lat) || !finite(lng) || lat < -90 || lat > 90 || lng < -180 || lng > 180 {
			return p, invalid("user_lat/user_lng are not valid coordinates")
		}
	}
	p.advisory = p.weights.SumAdvisory()
	return p, nil
}

// resolveLocation prefers an explicit id and falls back to free text. It
// returns nil when the request names no place at all.
func (s *ServiceImpl) resolveLocation(ctx context.Context, req types.RetrievalRequest) *types.ResolvedLocation {
	if req.LocationID != nil {
		if res, ok := s.locations.GetByID(ctx, *req.LocationID); ok {
			return &res
		}
		s.logger.WarnContext(ctx, "Unknown location id", slog.String("location_id", req.LocationID.String()))
	}
	text := strings.TrimSpace(req.LocationText)
	if text == "" {
		if req.LocationID != nil {
			return &types.ResolvedLocation{
				Query:        req.LocationID.String(),
				Alternatives: []types.Location{},
				Method:       types.ResolutionNotFound,
			}
		}
		return nil
	}
	res := s.locations.ResolveWithDefaultState(ctx, text, req.DefaultState)
	return &res
}

// venueText is the place part of free location text ("Ozarks, MO" -> "Ozarks").
func venueText(text string) string {
	text = strings.TrimSpace(text)
	if i := strings.Index(text, ","); i >= 0 {
		text = strings.TrimSpace(text[:i])
	}
	return text
}

// userLocation describes a center taken from request coordinates.
func userLocation(lat, lng float64) *types.ResolvedLocation {
	return &types.ResolvedLocation{
		Query:        fmt.Sprintf("%.6f,%.6f", lat, lng),
		Location:     &types.Location{Latitude: lat, Longitude: lng},
		Confidence:   1,
		Alternatives: []types.Location{},
		Method:       types.ResolutionCoordinates,
	}
}

// GetContextEventsTiered resolves the location and runs semantic search
// concurrently, then filters by distance, ranks and tiers the candidates.
// A place name that does not resolve narrows the search to events whose
// location text contains it. Search failures degrade to the fallback search;
// only a vector dimension mismatch or an invalid request is returned as an error.
func (s *ServiceImpl) GetContextEventsTiered(ctx context.Context, req types.RetrievalRequest) (*types.RAGResult, error) {
	ctx, span := otel.Tracer("RAGService").Start(ctx, "GetContextEventsTiered")
	defer span.End()

	start := time.Now()
	now := s.now()
	l := s.logger.With(slog.String("method", "GetContextEventsTiered"))

	params, err := s.resolveParams(req)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "invalid request")
		return nil, err
	}

	opts := events.SearchOptions{
		OnlyFutureEvents: true,
		MaxCandidates:    s.cfg.MaxCandidates,
		TimeWindowDays:   s.cfg.TimeWindowDays,
		DateFrom:         req.DateFrom,
		DateTo:           req.DateTo,
		IsVirtual:        req.IsVirtual,
		Now:              now,
	}

	var (
		location  *types.ResolvedLocation
		hits      []types.ScoredEvent
		searchErr error
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		location = s.resolveLocation(gctx, req)
		return nil
	})
	g.Go(func() error {
		hits, searchErr = s.searcher.SemanticSearch(gctx, req.Query, opts)
		if errors.Is(searchErr, embedding.ErrDimensionMismatch) {
			return searchErr
		}
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, s.misconfigured(ctx, l, span, err)
	}

	meta := types.RetrievalMetadata{
		SearchMode:          types.SearchSemantic,
		Weights:             params.weights,
		WeightsAdvisory:     params.advisory,
		TierCaps:            params.caps,
		SimilarityThreshold: params.threshold,
		DistanceMode:        params.mode,
		MaxDistanceMiles:    params.radius,
	}
	if s.corpus != nil {
		meta.CorpusSize = s.corpus.Len()
	}

	if location != nil && !location.Found() {
		if venue := venueText(req.LocationText); venue != "" {
			opts.VenueText = venue
			meta.LocationFilter = types.LocationFilterVenueText
			meta.VenueText = venue
			span.AddEvent("venue_text_filter", trace.WithAttributes(attribute.String("venue", venue)))
			if searchErr == nil {
				// The query vector is cached by now; only the corpus scan repeats.
				hits, searchErr = s.searcher.SemanticSearch(ctx, req.Query, opts)
				if errors.Is(searchErr, embedding.ErrDimensionMismatch) {
					return nil, s.misconfigured(ctx, l, span, searchErr)
				}
			}
		}
	}

	if searchErr != nil {
		l.WarnContext(ctx, "Semantic search unavailable, using fallback", slog.Any("error", searchErr))
		span.AddEvent("fallback_search", trace.WithAttributes(attribute.String("reason", searchErr.Error())))
		hits = s.searcher.FallbackSearch(ctx, req.Query, opts)
		meta.SearchMode = types.SearchFallback
		meta.Degraded = true
		meta.DegradedReason = searchErr.Error()
		metrics.Get().FallbackSearchesTotal.Add(ctx, 1)
	}
	meta.CandidateCount = len(hits)

	var (
		center    geo.Point
		hasCenter bool
	)
	switch {
	case location != nil && location.Found():
		center = geo.Point{Lat: location.Location.Latitude, Lng: location.Location.Longitude}
		hasCenter = true
	case req.UserLat != nil:
		center = geo.Point{Lat: *req.UserLat, Lng: *req.UserLng}
		hasCenter = true
		if location == nil {
			location = userLocation(center.Lat, center.Lng)
		}
	}
	if hasCenter {
		hits = geo.AnnotateDistances(hits, center)
		if params.radius != nil && params.mode == types.DistanceExcludeThenScore {
			before := len(hits)
			hits = geo.FilterByDistance(hits, center, *params.radius)
			meta.ExcludedByRadius = before - len(hits)
		}
	}

	threshold := params.threshold
	tiers := s.engine.Rank(hits, ranking.RankContext{
		QueryText:           req.Query,
		HasLocation:         hasCenter,
		Now:                 now,
		SimilarityThreshold: &threshold,
	}, params.weights, params.caps)
	meta.RankedCount = tiers.Len()

	result := &types.RAGResult{
		RecommendedEvents: tiers.Recommended,
		AdditionalEvents:  tiers.Additional,
		ContextEvents:     tiers.Context,
		Location:          location,
		Metadata:          meta,
	}

	took := time.Since(start)
	attrs := metric.WithAttributes(
		attribute.String("search_mode", string(meta.SearchMode)),
		attribute.Bool("has_location", hasCenter),
	)
	m := metrics.Get()
	m.RetrievalRequestsTotal.Add(ctx, 1, attrs)
	m.RetrievalDurationSeconds.Record(ctx, took.Seconds(), attrs)

	span.SetAttributes(
		attribute.String("retrieval.search_mode", string(meta.SearchMode)),
		attribute.Int("retrieval.candidates", meta.CandidateCount),
		attribute.Int("retrieval.ranked", meta.RankedCount),
		attribute.Bool("retrieval.has_location", hasCenter),
	)
	span.SetStatus(codes.Ok, "")
	l.InfoContext(ctx, "Retrieved tiered events",
		slog.String("search_mode", string(meta.SearchMode)),
		slog.Int("recommended", len(result.RecommendedEvents)),
		slog.Int("additional", len(result.AdditionalEvents)),
		slog.Int("context", len(result.ContextEvents)),
		slog.Int64("took_ms", took.Milliseconds()))
	return result, nil
}

func (s *ServiceImpl) misconfigured(ctx context.Context, l *slog.Logger, span trace.Span, err error) error {
	l.ErrorContext(ctx, "Semantic search misconfigured", slog.Any("error", err))
	span.RecordError(err)
	span.SetStatus(codes.Error, "dimension mismatch")
	return fmt.Errorf("semantic search failed: %w", err)
}
