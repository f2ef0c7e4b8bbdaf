package events

import (
	"context"
	"io"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/mock"

	"github.com/SuperSchedules/superschedules/internal/types"
)

var testNow = time.Date(2025, time.June, 2, 12, 0, 0, 0, time.UTC)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func at(days float64) *time.Time {
	t := testNow.Add(time.Duration(days * 24 * float64(time.Hour)))
	return &t
}

func f64(v float64) *float64 { return &v }

// eventWith builds an embedded event starting days from testNow.
func eventWith(id string, days float64, vec ...float32) types.EventCandidate {
	return types.EventCandidate{
		ID:        uuid.MustParse(id),
		Title:     "event " + id[:4],
		StartTime: at(days),
		Embedding: vec,
	}
}

type staticSource []types.EventCandidate

func (s staticSource) Events() []types.EventCandidate { return s }

type MockRepository struct {
	mock.Mock
}

func (m *MockRepository) ListUpcomingEvents(ctx context.Context, after time.Time) ([]types.EventCandidate, error) {
	args := m.Called(ctx, after)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]types.EventCandidate), args.Error(1)
}

func (m *MockRepository) ListEventsMissingEmbedding(ctx context.Context, afterID uuid.UUID, limit int) ([]types.EventCandidate, error) {
	args := m.Called(ctx, afterID, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]types.EventCandidate), args.Error(1)
}

func (m *MockRepository) UpdateEventEmbeddings(ctx context.Context, updates []types.EventEmbeddingUpdate) error {
	args := m.Called(ctx, updates)
	return args.Error(0)
}

type MockEmbedder struct {
	mock.Mock
}

func (m *MockEmbedder) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	args := m.Called(ctx, text)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]float32), args.Error(1)
}

func (m *MockEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	args := m.Called(ctx, texts)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([][]float32), args.Error(1)
}
