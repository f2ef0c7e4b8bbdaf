package locations

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	database "github.com/SuperSchedules/superschedules/app/db"
	"github.com/SuperSchedules/superschedules/internal/types"
)

var _ Repository = (*RepositoryImpl)(nil)

// Repository reads the gazetteer. It is only consulted when the in-memory
// index is (re)built; query-time resolution never touches the database.
type Repository interface {
	ListLocations(ctx context.Context) ([]types.Location, error)
	GetLocationByID(ctx context.Context, id uuid.UUID) (*types.Location, error)
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

const locationColumns = `id, geoid, name, normalized_name, state, country_code, latitude, longitude, population, source`

func scanLocation(row pgx.Row) (types.Location, error) {
	var loc types.Location
	err := row.Scan(
		&loc.ID, &loc.GeoID, &loc.Name, &loc.NormalizedName, &loc.State, &loc.CountryCode,
		&loc.Latitude, &loc.Longitude, &loc.Population, &loc.Source,
	)
	return loc, err
}

func (r *RepositoryImpl) ListLocations(ctx context.Context) ([]types.Location, error) {
	ctx, span := otel.Tracer("LocationsRepository").Start(ctx, "ListLocations")
	defer span.End()

	l := r.logger.With(slog.String("method", "ListLocations"))

	query := `SELECT ` + locationColumns + ` FROM locations ORDER BY normalized_name, state`
	rows, err := r.db.Query(ctx, query)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "query failed")
		l.ErrorContext(ctx, "Failed to query locations", slog.Any("error", err))
		return nil, fmt.Errorf("failed to query locations: %w", err)
	}
	defer rows.Close()

	var locations []types.Location
	for rows.Next() {
		loc, err := scanLocation(rows)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "scan failed")
			return nil, fmt.Errorf("failed to scan location row: %w", err)
		}
		locations = append(locations, loc)
	}
	if err := rows.Err(); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "rows error")
		return nil, fmt.Errorf("error iterating location rows: %w", err)
	}

	span.SetAttributes(attribute.Int("locations.count", len(locations)))
	span.SetStatus(codes.Ok, "")
	l.DebugContext(ctx, "Loaded locations", slog.Int("count", len(locations)))
	return locations, nil
}

func (r *RepositoryImpl) GetLocationByID(ctx context.Context, id uuid.UUID) (*types.Location, error) {
	ctx, span := otel.Tracer("LocationsRepository").Start(ctx, "GetLocationByID")
	defer span.End()
	span.SetAttributes(attribute.String("location.id", id.String()))

	query := `SELECT ` + locationColumns + ` FROM locations WHERE id = $1`
	loc, err := scanLocation(r.db.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, "query failed")
		return nil, fmt.Errorf("failed to get location %s: %w", id, err)
	}
	return &loc, nil
}
