package embedding

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"golang.org/x/sync/semaphore"
	"golang.org/x/sync/singleflight"

	"github.com/SuperSchedules/superschedules/app/observability/metrics"
)

type ServiceConfig struct {
	Dimension              int
	CacheSize              int
	CacheTTL               time.Duration
	MaxConcurrentInference int64
}

// Service owns the embedding provider for the process. The provider is built
// on first use (or by Warmup), query vectors are cached, concurrent misses for
// the same query share one inference call and inference concurrency is bounded.
type Service struct {
	logger    *slog.Logger
	factory   Factory
	dimension int

	mu       sync.Mutex
	provider Provider

	cache    *QueryCache
	inflight singleflight.Group
	sem      *semaphore.Weighted
}

func NewService(factory Factory, cfg ServiceConfig, logger *slog.Logger) *Service {
	limit := cfg.MaxConcurrentInference
	if limit <= 0 {
		limit = 1
	}
	return &Service{
		logger:    logger,
		factory:   factory,
		dimension: cfg.Dimension,
		cache:     NewQueryCache(cfg.CacheSize, cfg.CacheTTL),
		sem:       semaphore.NewWeighted(limit),
	}
}

// Warmup builds the provider now instead of on the first query.
func (s *Service) Warmup(ctx context.Context) error {
	start := time.Now()
	p, err := s.getProvider(ctx)
	if err != nil {
		return err
	}
	s.logger.InfoContext(ctx, "Embedding provider ready",
		slog.String("provider", p.Name()),
		slog.String("model", p.Model()),
		slog.Int("dimension", p.Dimension()),
		slog.Duration("took", time.Since(start)))
	return nil
}

// Ready reports whether the provider has been initialized.
func (s *Service) Ready() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.provider != nil
}

// Dimension is the vector size every returned embedding has.
func (s *Service) Dimension() int {
	return s.dimension
}

func (s *Service) getProvider(ctx context.Context) (Provider, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.provider != nil {
		return s.provider, nil
	}

	p, err := s.factory(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: init: %w", ErrProviderFailed, err)
	}
	if p.Dimension() != s.dimension {
		_ = p.Close()
		return nil, fmt.Errorf("%w: provider %s produces %d dimensions, configured %d",
			ErrDimensionMismatch, p.Name(), p.Dimension(), s.dimension)
	}
	s.provider = p
	return p, nil
}

// EmbedQuery returns the vector for a search query, using the cache when possible.
func (s *Service) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	ctx, span := otel.Tracer("EmbeddingService").Start(ctx, "EmbedQuery")
	defer span.End()

	key := CacheKey(text)
	if key == "" {
		return nil, ErrEmptyText
	}
	m := metrics.Get()

	if v, ok := s.cache.Get(key); ok {
		span.SetAttributes(attribute.Bool("cache.hit", true))
		m.EmbeddingCacheHitsTotal.Add(ctx, 1)
		return v, nil
	}
	m.EmbeddingCacheMissesTotal.Add(ctx, 1)
	span.SetAttributes(attribute.Bool("cache.hit", false))

	ch := s.inflight.DoChan(key, func() (any, error) {
		// Detached from the caller: other callers may be waiting on this result.
		vectors, err := s.embed(context.WithoutCancel(ctx), []string{strings.TrimSpace(text)}, TaskQuery)
		if err != nil {
			return nil, err
		}
		s.cache.Add(key, vectors[0])
		return vectors[0], nil
	})

	select {
	case <-ctx.Done():
		span.RecordError(ctx.Err())
		span.SetStatus(codes.Error, "caller gave up")
		return nil, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			span.RecordError(res.Err)
			span.SetStatus(codes.Error, "embed query failed")
			return nil, res.Err
		}
		span.SetAttributes(attribute.Bool("singleflight.shared", res.Shared))
		return copyVector(res.Val.([]float32)), nil
	}
}

// EmbedBatch embeds documents without caching; used for indexing events.
func (s *Service) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	for i, t := range texts {
		if strings.TrimSpace(t) == "" {
			return nil, fmt.Errorf("%w: batch item %d", ErrEmptyText, i)
		}
	}
	return s.embed(ctx, texts, TaskDocument)
}

func (s *Service) embed(ctx context.Context, texts []string, task Task) ([][]float32, error) {
	p, err := s.getProvider(ctx)
	if err != nil {
		return nil, err
	}

	if err := s.sem.Acquire(ctx, 1); err != nil {
		return nil, err
	}
	defer s.sem.Release(1)

	start := time.Now()
	vectors, err := p.Embed(ctx, texts, task)
	metrics.Get().EmbeddingDurationSeconds.Record(ctx, time.Since(start).Seconds(),
		metric.WithAttributes(attribute.String("provider", p.Name())))
	if err != nil {
		s.logger.WarnContext(ctx, "Embedding provider call failed",
			slog.String("provider", p.Name()),
			slog.Int("texts", len(texts)),
			slog.Any("error", err))
		return nil, err
	}
	if len(vectors) != len(texts) {
		return nil, fmt.Errorf("%w: got %d vectors for %d texts", ErrProviderFailed, len(vectors), len(texts))
	}
	for i, v := range vectors {
		if len(v) != s.dimension {
			return nil, fmt.Errorf("%w: vector %d has %d dimensions, expected %d", ErrDimensionMismatch, i, len(v), s.dimension)
		}
	}
	return vectors, nil
}

// CacheLen is the number of cached query vectors.
func (s *Service) CacheLen() int {
	return s.cache.Len()
}

func (s *Service) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.provider == nil {
		return nil
	}
	err := s.provider.Close()
	s.provider = nil
	return err
}
