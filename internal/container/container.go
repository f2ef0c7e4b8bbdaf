package container

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5/pgxpool"

	database "github.com/SuperSchedules/superschedules/app/db"
	"github.com/SuperSchedules/superschedules/config"
	"github.com/SuperSchedules/superschedules/internal/api/embedding"
	"github.com/SuperSchedules/superschedules/internal/api/events"
	"github.com/SuperSchedules/superschedules/internal/api/locations"
	"github.com/SuperSchedules/superschedules/internal/api/rag"
	"github.com/SuperSchedules/superschedules/internal/api/ranking"
	"github.com/SuperSchedules/superschedules/internal/types"
)

// Container holds all application dependencies
type Container struct {
	Config *config.Config
	Logger *slog.Logger
	Pool   *pgxpool.Pool

	Embeddings *embedding.Service
	Locations  *locations.ServiceImpl
	Corpus     *events.Corpus
	Searcher   *events.Searcher
	Indexer    *events.Indexer
	Ranking    *ranking.Engine
	RAG        *rag.ServiceImpl

	LocationsHandler *locations.HandlerImpl
	RAGHandler       *rag.HandlerImpl
}

// NewContainer opens the database pool and wires every service on top of it.
func NewContainer(cfg *config.Config, logger *slog.Logger) (*Container, error) {
	dbConfig, err := database.NewDatabaseConfig(cfg, logger)
	if err != nil {
		logger.Error("Failed to generate database config", slog.Any("error", err))
		return nil, err
	}

	pool, err := database.Init(dbConfig, logger)
	if err != nil {
		logger.Error("Failed to initialize database pool", slog.Any("error", err))
		return nil, err
	}

	c, err := NewContainerWithDB(cfg, pool, logger)
	if err != nil {
		pool.Close()
		return nil, err
	}
	c.Pool = pool
	return c, nil
}

// NewContainerWithDB wires the services over any DBTX, which lets tests run
// against pgxmock or with preloaded in-memory data.
func NewContainerWithDB(cfg *config.Config, db database.DBTX, logger *slog.Logger) (*Container, error) {
	factory, err := embedding.NewFactory(cfg.Embedding, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to configure embedding provider: %w", err)
	}
	embeddings := embedding.NewService(factory, embedding.ServiceConfig{
		Dimension:              cfg.Embedding.Dimension,
		CacheSize:              cfg.Embedding.Cache.Size,
		CacheTTL:               cfg.Embedding.Cache.TTL,
		MaxConcurrentInference: cfg.Embedding.MaxConcurrentInference,
	}, logger)

	locationsRepo := locations.NewRepositoryImpl(db, logger)
	locationsService := locations.NewServiceImpl(locationsRepo, resolverConfig(cfg.Locations), cfg.Locations.CacheTTL, logger)
	locationsHandler := locations.NewHandlerImpl(locationsService, logger)

	eventsRepo := events.NewRepositoryImpl(db, logger)
	corpus := events.NewCorpus(eventsRepo, logger)
	searcher := events.NewSearcher(corpus, embeddings, logger)
	indexer := events.NewIndexer(eventsRepo, embeddings, cfg.Corpus.BatchSize, logger)

	engine := ranking.NewEngine(ranking.Config{
		SimilarityThreshold:  cfg.Retrieval.SimilarityThreshold,
		NeutralLocationScore: cfg.Retrieval.NeutralLocationScore,
		NeutralPopularity:    cfg.Retrieval.NeutralPopularity,
	}, logger)

	mode, err := types.ParseDistanceMode(cfg.Retrieval.DistanceMode)
	if err != nil {
		return nil, err
	}
	ragService := rag.NewServiceImpl(locationsService, searcher, engine, corpus, rag.Config{
		MaxCandidates:      cfg.Retrieval.MaxCandidates,
		TimeWindowDays:     cfg.Retrieval.TimeWindowDays,
		DefaultRadiusMiles: cfg.Retrieval.DefaultRadiusMiles,
		DistanceMode:       mode,
		Weights:            cfg.Retrieval.Weights,
		Tiers:              cfg.Retrieval.Tiers,
	}, logger)
	ragHandler := rag.NewHandlerImpl(ragService, logger)

	return &Container{
		Config:           cfg,
		Logger:           logger,
		Embeddings:       embeddings,
		Locations:        locationsService,
		Corpus:           corpus,
		Searcher:         searcher,
		Indexer:          indexer,
		Ranking:          engine,
		RAG:              ragService,
		LocationsHandler: locationsHandler,
		RAGHandler:       ragHandler,
	}, nil
}

func resolverConfig(cfg config.Locations) locations.ResolverConfig {
	rc := locations.DefaultResolverConfig()
	if len(cfg.PreferredStates) > 0 {
		rc.PreferredStates = cfg.PreferredStates
	}
	if cfg.MaxAlternatives > 0 {
		rc.MaxAlternatives = cfg.MaxAlternatives
	}
	if cfg.Confidence.Exact != nil {
		rc.ExactConfidence = *cfg.Confidence.Exact
	}
	if cfg.Confidence.Unique != nil {
		rc.UniqueConfidence = *cfg.Confidence.Unique
	}
	if cfg.Confidence.Preferred != nil {
		rc.PreferredConfidence = *cfg.Confidence.Preferred
	}
	if cfg.Confidence.Ambiguous != nil {
		rc.AmbiguousConfidence = *cfg.Confidence.Ambiguous
	}
	return rc
}

// Load reads the gazetteer and the event corpus into memory.
func (c *Container) Load(ctx context.Context) error {
	if err := c.Locations.Load(ctx); err != nil {
		return err
	}
	return c.Corpus.Refresh(ctx)
}

// Close releases all resources held by the container
func (c *Container) Close() error {
	var err error
	if c.Embeddings != nil {
		err = errors.Join(err, c.Embeddings.Close())
	}
	if c.Pool != nil {
		c.Pool.Close()
	}
	return err
}

// WaitForDB waits for the database to be ready
func (c *Container) WaitForDB(ctx context.Context) bool {
	return database.WaitForDB(ctx, c.Pool, c.Logger)
}
