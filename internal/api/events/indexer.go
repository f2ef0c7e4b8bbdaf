package events

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/SuperSchedules/superschedules/internal/types"
)

const DefaultBackfillBatchSize = 64

// BatchEmbedder embeds many texts in one call.
type BatchEmbedder interface {
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
}

// Indexer computes vectors for events stored without one.
type Indexer struct {
	logger    *slog.Logger
	repo      Repository
	embedder  BatchEmbedder
	batchSize int
}

func NewIndexer(repo Repository, embedder BatchEmbedder, batchSize int, logger *slog.Logger) *Indexer {
	if batchSize <= 0 {
		batchSize = DefaultBackfillBatchSize
	}
	return &Indexer{
		logger:    logger,
		repo:      repo,
		embedder:  embedder,
		batchSize: batchSize,
	}
}

// Backfill embeds events missing a vector, one page at a time in id order,
// until the table has been walked to the end. Events with no searchable text
// are skipped and stay without a vector. It returns the number of events updated.
func (ix *Indexer) Backfill(ctx context.Context) (int, error) {
	l := ix.logger.With(slog.String("method", "Backfill"))
	total, skipped := 0, 0
	cursor := uuid.Nil
	for {
		if err := ctx.Err(); err != nil {
			return total, err
		}
		batch, err := ix.repo.ListEventsMissingEmbedding(ctx, cursor, ix.batchSize)
		if err != nil {
			return total, fmt.Errorf("failed to list events missing embeddings: %w", err)
		}
		if len(batch) == 0 {
			break
		}
		cursor = batch[len(batch)-1].ID

		var pending []types.EventCandidate
		var texts []string
		for _, e := range batch {
			text := SearchText(e)
			if text == "" {
				l.WarnContext(ctx, "Skipping event with no searchable text", slog.String("event_id", e.ID.String()))
				skipped++
				continue
			}
			pending = append(pending, e)
			texts = append(texts, text)
		}

		if len(texts) > 0 {
			vectors, err := ix.embedder.EmbedBatch(ctx, texts)
			if err != nil {
				return total, fmt.Errorf("failed to embed batch: %w", err)
			}
			updates := make([]types.EventEmbeddingUpdate, len(pending))
			for i, e := range pending {
				updates[i] = types.EventEmbeddingUpdate{EventID: e.ID, Embedding: vectors[i]}
			}
			if err := ix.repo.UpdateEventEmbeddings(ctx, updates); err != nil {
				return total, fmt.Errorf("failed to store embeddings: %w", err)
			}
			total += len(updates)
			l.InfoContext(ctx, "Embedded event batch", slog.Int("batch", len(updates)), slog.Int("total", total))
		}

		if len(batch) < ix.batchSize {
			break
		}
	}
	if skipped > 0 {
		l.WarnContext(ctx, "Events left without a vector", slog.Int("skipped", skipped))
	}
	return total, nil
}
