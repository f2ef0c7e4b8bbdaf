package locations

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/patrickmn/go-cache"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"

	"github.com/SuperSchedules/superschedules/app/observability/metrics"
	"github.com/SuperSchedules/superschedules/internal/types"
)

var ErrGazetteerNotLoaded = errors.New("location gazetteer not loaded")

var _ Service = (*ServiceImpl)(nil)

// Service resolves free-text places and serves gazetteer lookups.
// Resolution never fails: an unmatched query yields a not-found value.
type Service interface {
	Load(ctx context.Context) error
	Resolve(ctx context.Context, query string) types.ResolvedLocation
	ResolveWithDefaultState(ctx context.Context, query, defaultState string) types.ResolvedLocation
	GetByID(ctx context.Context, id uuid.UUID) (types.ResolvedLocation, bool)
	Suggest(ctx context.Context, query string, opts types.SuggestOptions) ([]types.LocationSuggestion, error)
}

type ServiceImpl struct {
	logger    *slog.Logger
	repo      Repository
	cfg       ResolverConfig
	gazetteer atomic.Pointer[Gazetteer]
	cache     *cache.Cache
}

func NewServiceImpl(repo Repository, cfg ResolverConfig, cacheTTL time.Duration, logger *slog.Logger) *ServiceImpl {
	if cacheTTL <= 0 {
		cacheTTL = 10 * time.Minute
	}
	s := &ServiceImpl{
		logger: logger,
		repo:   repo,
		cfg:    cfg,
		cache:  cache.New(cacheTTL, 2*cacheTTL),
	}
	s.gazetteer.Store(NewGazetteer(nil))
	return s
}

// Load rebuilds the in-memory gazetteer from the repository and drops cached
// resolutions. Queries in flight keep using the previous index.
func (s *ServiceImpl) Load(ctx context.Context) error {
	ctx, span := otel.Tracer("LocationsService").Start(ctx, "Load")
	defer span.End()

	locs, err := s.repo.ListLocations(ctx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "list locations failed")
		return fmt.Errorf("failed to load gazetteer: %w", err)
	}
	s.SetGazetteer(NewGazetteer(locs))
	span.SetAttributes(attribute.Int("locations.count", len(locs)))
	s.logger.InfoContext(ctx, "Location gazetteer loaded", slog.Int("locations", len(locs)))
	return nil
}

// SetGazetteer swaps the active index.
func (s *ServiceImpl) SetGazetteer(g *Gazetteer) {
	s.gazetteer.Store(g)
	s.cache.Flush()
}

func (s *ServiceImpl) Resolve(ctx context.Context, query string) types.ResolvedLocation {
	return s.ResolveWithDefaultState(ctx, query, "")
}

func (s *ServiceImpl) ResolveWithDefaultState(ctx context.Context, query, defaultState string) types.ResolvedLocation {
	_, span := otel.Tracer("LocationsService").Start(ctx, "Resolve")
	defer span.End()

	key := cacheKey(query, defaultState)
	if cached, ok := s.cache.Get(key); ok {
		res := cached.(types.ResolvedLocation)
		res.Query = query
		span.SetAttributes(attribute.Bool("cache.hit", true))
		return res
	}

	res := s.gazetteer.Load().Resolve(query, defaultState, s.cfg)
	s.cache.SetDefault(key, res)

	span.SetAttributes(
		attribute.String("location.method", string(res.Method)),
		attribute.Float64("location.confidence", res.Confidence),
		attribute.Bool("location.ambiguous", res.IsAmbiguous),
	)
	metrics.Get().LocationResolutionsTotal.Add(ctx, 1,
		metric.WithAttributes(attribute.String("method", string(res.Method))))

	l := s.logger.With(slog.String("method", "Resolve"), slog.String("query", query))
	if res.Found() {
		l.DebugContext(ctx, "Location resolved",
			slog.String("location", res.Location.Label()),
			slog.String("rule", string(res.Method)),
			slog.Float64("confidence", res.Confidence),
			slog.Int("alternatives", len(res.Alternatives)))
	} else {
		l.DebugContext(ctx, "No location matched", slog.String("normalized", res.NormalizedQuery))
	}
	return res
}

// cacheKey collapses queries that normalize identically.
func cacheKey(query, defaultState string) string {
	normalized, state := NormalizeQuery(query)
	return normalized + "|" + state + "|" + strings.ToUpper(strings.TrimSpace(defaultState))
}

// GetByID resolves a location id directly; a hit always carries full confidence.
func (s *ServiceImpl) GetByID(ctx context.Context, id uuid.UUID) (types.ResolvedLocation, bool) {
	loc, ok := s.gazetteer.Load().ByID(id)
	if !ok {
		s.logger.DebugContext(ctx, "Location id not found", slog.String("location_id", id.String()))
		return types.ResolvedLocation{Method: types.ResolutionNotFound, Alternatives: []types.Location{}}, false
	}
	return types.ResolvedLocation{
		Query:           loc.Name,
		NormalizedQuery: loc.NormalizedName,
		StateUsed:       loc.State,
		Location:        &loc,
		Confidence:      1.0,
		Alternatives:    []types.Location{},
		Method:          types.ResolutionByID,
	}, true
}

func (s *ServiceImpl) Suggest(ctx context.Context, query string, opts types.SuggestOptions) ([]types.LocationSuggestion, error) {
	g := s.gazetteer.Load()
	if g.Len() == 0 {
		return nil, ErrGazetteerNotLoaded
	}
	results, err := g.Suggest(query, opts)
	if err != nil {
		return nil, err
	}
	s.logger.DebugContext(ctx, "Location suggestions", slog.String("query", query), slog.Int("results", len(results)))
	return results, nil
}
