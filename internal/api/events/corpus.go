package events

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/SuperSchedules/superschedules/app/observability/metrics"
	"github.com/SuperSchedules/superschedules/internal/types"
)

// EventSource exposes the current searchable events.
type EventSource interface {
	Events() []types.EventCandidate
}

var _ EventSource = (*Corpus)(nil)

// Corpus is an in-memory snapshot of upcoming events. Refresh swaps the whole
// snapshot at once, so readers see either the old or the new set.
type Corpus struct {
	logger   *slog.Logger
	repo     Repository
	now      func() time.Time
	snapshot atomic.Pointer[[]types.EventCandidate]
}

func NewCorpus(repo Repository, logger *slog.Logger) *Corpus {
	c := &Corpus{
		logger: logger,
		repo:   repo,
		now:    time.Now,
	}
	empty := []types.EventCandidate{}
	c.snapshot.Store(&empty)
	return c
}

// Events returns the current snapshot. Callers must not modify it.
func (c *Corpus) Events() []types.EventCandidate {
	return *c.snapshot.Load()
}

func (c *Corpus) Len() int {
	return len(c.Events())
}

// Replace installs events as the new snapshot.
func (c *Corpus) Replace(ctx context.Context, events []types.EventCandidate) {
	snap := make([]types.EventCandidate, len(events))
	copy(snap, events)
	c.snapshot.Store(&snap)
	metrics.Get().CorpusEvents.Record(ctx, int64(len(snap)))
}

// Refresh reloads upcoming events from the repository.
func (c *Corpus) Refresh(ctx context.Context) error {
	ctx, span := otel.Tracer("EventsCorpus").Start(ctx, "Refresh")
	defer span.End()

	start := time.Now()
	events, err := c.repo.ListUpcomingEvents(ctx, c.now())
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "list upcoming events failed")
		return fmt.Errorf("failed to refresh event corpus: %w", err)
	}
	c.Replace(ctx, events)

	embedded := 0
	for _, e := range events {
		if e.HasEmbedding() {
			embedded++
		}
	}
	span.SetAttributes(attribute.Int("events.count", len(events)), attribute.Int("events.embedded", embedded))
	c.logger.InfoContext(ctx, "Event corpus refreshed",
		slog.Int("events", len(events)),
		slog.Int("embedded", embedded),
		slog.Duration("took", time.Since(start)))
	return nil
}

// RunRefresher reloads the corpus every interval until ctx is cancelled.
// A failed refresh keeps the previous snapshot.
func (c *Corpus) RunRefresher(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := c.Refresh(ctx); err != nil {
				c.logger.WarnContext(ctx, "Corpus refresh failed, keeping previous snapshot", slog.Any("error", err))
			}
		}
	}
}
