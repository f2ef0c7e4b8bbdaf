package events

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/pgvector/pgvector-go"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"

	database "github.com/SuperSchedules/superschedules/app/db"
	"github.com/SuperSchedules/superschedules/app/observability/metrics"
	"github.com/SuperSchedules/superschedules/internal/types"
)

var _ Repository = (*RepositoryImpl)(nil)

// Repository is the persistent event store.
type Repository interface {
	ListUpcomingEvents(ctx context.Context, after time.Time) ([]types.EventCandidate, error)
	ListEventsMissingEmbedding(ctx context.Context, afterID uuid.UUID, limit int) ([]types.EventCandidate, error)
	UpdateEventEmbeddings(ctx context.Context, updates []types.EventEmbeddingUpdate) error
}

type RepositoryImpl struct {
	logger *slog.Logger
	db     database.DBTX
}

func NewRepositoryImpl(db database.DBTX, logger *slog.Logger) *RepositoryImpl {
	return &RepositoryImpl{
		logger: logger,
		db:     db,
	}
}

const eventColumns = `id, title, description, location_text, organizer, url, tags, audience,
	start_time, end_time, latitude, longitude, popularity, is_virtual, embedding`

func observeQuery(ctx context.Context, op string, start time.Time, err error) {
	m := metrics.Get()
	attrs := metric.WithAttributes(attribute.String("operation", op))
	m.DbQueryDurationSeconds.Record(ctx, time.Since(start).Seconds(), attrs)
	if err != nil {
		m.DbQueryErrorsTotal.Add(ctx, 1, attrs)
	}
}

func (r *RepositoryImpl) queryEvents(ctx context.Context, op, query string, args ...any) (events []types.EventCandidate, err error) {
	ctx, span := otel.Tracer("EventsRepository").Start(ctx, op)
	defer span.End()
	start := time.Now()
	defer func() { observeQuery(ctx, op, start, err) }()

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "query failed")
		r.logger.ErrorContext(ctx, "Failed to query events", slog.String("method", op), slog.Any("error", err))
		return nil, fmt.Errorf("failed to query events: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		e, err := scanEvent(rows)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "scan failed")
			return nil, fmt.Errorf("failed to scan event row: %w", err)
		}
		events = append(events, e)
	}
	if err = rows.Err(); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "rows error")
		return nil, fmt.Errorf("error iterating event rows: %w", err)
	}
	span.SetAttributes(attribute.Int("events.count", len(events)))
	return events, nil
}

func scanEvent(row pgx.Row) (types.EventCandidate, error) {
	var e types.EventCandidate
	var embedding *pgvector.Vector
	err := row.Scan(
		&e.ID, &e.Title, &e.Description, &e.LocationText, &e.Organizer, &e.URL, &e.Tags, &e.Audience,
		&e.StartTime, &e.EndTime, &e.Latitude, &e.Longitude, &e.Popularity, &e.IsVirtual, &embedding,
	)
	if err != nil {
		return e, err
	}
	if embedding != nil {
		e.Embedding = embedding.Slice()
	}
	return e, nil
}

// ListUpcomingEvents returns events starting after the given instant, soonest first.
func (r *RepositoryImpl) ListUpcomingEvents(ctx context.Context, after time.Time) ([]types.EventCandidate, error) {
	query := `SELECT ` + eventColumns + ` FROM events WHERE start_time > $1 ORDER BY start_time, id`
	return r.queryEvents(ctx, "ListUpcomingEvents", query, after)
}

// ListEventsMissingEmbedding returns up to limit events with no vector yet,
// in id order, starting after afterID. Pass uuid.Nil for the first page.
func (r *RepositoryImpl) ListEventsMissingEmbedding(ctx context.Context, afterID uuid.UUID, limit int) ([]types.EventCandidate, error) {
	query := `SELECT ` + eventColumns + ` FROM events WHERE embedding IS NULL AND id > $1 ORDER BY id LIMIT $2`
	return r.queryEvents(ctx, "ListEventsMissingEmbedding", query, afterID, limit)
}

func (r *RepositoryImpl) UpdateEventEmbeddings(ctx context.Context, updates []types.EventEmbeddingUpdate) (err error) {
	ctx, span := otel.Tracer("EventsRepository").Start(ctx, "UpdateEventEmbeddings")
	defer span.End()
	span.SetAttributes(attribute.Int("events.count", len(updates)))
	start := time.Now()
	defer func() { observeQuery(ctx, "UpdateEventEmbeddings", start, err) }()

	query := `UPDATE events SET embedding = $2, updated_at = NOW() WHERE id = $1`
	for _, u := range updates {
		if _, err = r.db.Exec(ctx, query, u.EventID, pgvector.NewVector(u.Embedding)); err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "update failed")
			return fmt.Errorf("failed to update embedding for event %s: %w", u.EventID, err)
		}
	}
	return nil
}
