package rag

import (
	"context"
	"io"
	"log/slog"
	"math"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/SuperSchedules/superschedules/internal/api/embedding"
	"github.com/SuperSchedules/superschedules/internal/api/events"
	"github.com/SuperSchedules/superschedules/internal/api/locations"
	"github.com/SuperSchedules/superschedules/internal/api/ranking"
	"github.com/SuperSchedules/superschedules/internal/types"
)

var ragNow = time.Date(2025, time.June, 2, 9, 0, 0, 0, time.UTC)

var (
	newtonID        = uuid.MustParse("10000000-0000-0000-0000-000000000001")
	springfieldMAID = uuid.MustParse("10000000-0000-0000-0000-000000000002")
	springfieldMOID = uuid.MustParse("10000000-0000-0000-0000-000000000003")
	springfieldILID = uuid.MustParse("10000000-0000-0000-0000-000000000004")
	nearEventID     = uuid.MustParse("20000000-0000-0000-0000-000000000001")
	farEventID      = uuid.MustParse("20000000-0000-0000-0000-000000000002")
	virtualEventID  = uuid.MustParse("20000000-0000-0000-0000-000000000003")
	pastEventID     = uuid.MustParse("20000000-0000-0000-0000-000000000004")
	missouriEventID = uuid.MustParse("20000000-0000-0000-0000-000000000005")
	newtonLat       = 42.3378
	newtonLng       = -71.2092
)

type stubEmbedder struct {
	vec []float32
	err error
}

func (s stubEmbedder) EmbedQuery(context.Context, string) ([]float32, error) {
	return s.vec, s.err
}

type sliceSource []types.EventCandidate

func (s sliceSource) Events() []types.EventCandidate { return s }
func (s sliceSource) Len() int { return len(s) }

func ptr[T any](v T) *T { return &v }
func i64(v int64) *int64 { return &v }
func f64(v float64) *float64 { return &v }
func days(n float64) *time.Time {
	t := ragNow.Add(time.Duration(n * 24 * float64(time.Hour)))
	return &t
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testGazetteer() *locations.Gazetteer {
	return locations.NewGazetteer([]types.Location{
		{ID: newtonID, Name: "Newton", State: "MA", Latitude: newtonLat, Longitude: newtonLng, Population: i64(88923)},
		{ID: springfieldMAID, Name: "Springfield", State: "MA", Latitude: 42.1015, Longitude: -72.5898, Population: i64(155929)},
		{ID: springfieldMOID, Name: "Springfield", State: "MO", Latitude: 37.2090, Longitude: -93.2923, Population: i64(169176)},
		{ID: springfieldILID, Name: "Springfield", State: "IL", Latitude: 39.7817, Longitude: -89.6501, Population: i64(114394)},
	})
}

func testEvents() sliceSource {
	return sliceSource{
		{
			ID: nearEventID, Title: "Kids Science Day", Tags: []string{"science"}, Audience: []string{"kids"},
			StartTime: days(2), Latitude: f64(newtonLat + 2.0/69), Longitude: f64(newtonLng), Embedding: []float32{1, 0},
		},
		{
			ID: farEventID, Title: "Kids Art Fair", Tags: []string{"art"}, Audience: []string{"kids"},
			StartTime: days(2), Latitude: f64(newtonLat + 50.0/69), Longitude: f64(newtonLng), Embedding: []float32{1, 0},
		},
		{
			ID: virtualEventID, Title: "Online Storytime", Audience: []string{"kids"},
			StartTime: days(3), IsVirtual: true, Embedding: []float32{0.9, 0.1},
		},
		{
			ID: pastEventID, Title: "Last Week's Puppet Show", Audience: []string{"kids"},
			StartTime: days(-7), Latitude: f64(newtonLat), Longitude: f64(newtonLng), Embedding: []float32{1, 0},
		},
		{
			ID: missouriEventID, Title: "Ozarks Kids Camp", Audience: []string{"kids"}, LocationText: "Table Rock Lake, The Ozarks",
			StartTime: days(1), Latitude: f64(37.21), Longitude: f64(-93.29), Embedding: []float32{0.8, 0.2},
		},
	}
}

func newTestService(t *testing.T, embedder events.QueryEmbedder) *ServiceImpl {
	t.Helper()
	logger := testLogger()
	locSvc := locations.NewServiceImpl(nil, locations.DefaultResolverConfig(), time.Minute, logger)
	locSvc.SetGazetteer(testGazetteer())

	corpus := testEvents()
	searcher := events.NewSearcher(corpus, embedder, logger)
	engine := ranking.NewEngine(ranking.DefaultConfig(), logger)

	svc := NewServiceImpl(locSvc, searcher, engine, corpus, DefaultConfig(), logger)
	svc.now = func() time.Time { return ragNow }
	return svc
}

func allIDs(res *types.RAGResult) []uuid.UUID {
	var ids []uuid.UUID
	for _, tier := range [][]types.RankedEvent{res.RecommendedEvents, res.AdditionalEvents, res.ContextEvents} {
		for _, e := range tier {
			ids = append(ids, e.Event.ID)
		}
	}
	return ids
}

func TestGetContextEventsTiered_NoLocation(t *testing.T) {
	svc := newTestService(t, stubEmbedder{vec: []float32{1, 0}})

	res, err := svc.GetContextEventsTiered(context.Background(), types.RetrievalRequest{Query: "activities for kids"})
	require.NoError(t, err)
	assert.Nil(t, res.Location)
	assert.Equal(t, types.SearchSemantic, res.Metadata.SearchMode)
	assert.False(t, res.Metadata.Degraded)
	assert.Equal(t, 4, res.Metadata.CandidateCount)
	assert.Equal(t, 5, res.Metadata.CorpusSize)
	assert.NotContains(t, allIDs(res), pastEventID)
	for _, e := range res.RecommendedEvents {
		assert.Equal(t, 0.5, e.Factors.LocationMatch)
		assert.Nil(t, e.Factors.DistanceMiles)
	}
}

func TestGetContextEventsTiered_NearBeatsFar(t *testing.T) {
	svc := newTestService(t, stubEmbedder{vec: []float32{1, 0}})

	res, err := svc.GetContextEventsTiered(context.Background(), types.RetrievalRequest{
		Query:        "activities for kids",
		LocationText: "Newton, MA",
	})
	require.NoError(t, err)
	require.NotNil(t, res.Location)
	assert.Equal(t, newtonID, res.Location.Location.ID)
	assert.Equal(t, types.ResolutionExact, res.Location.Method)

	ids := allIDs(res)
	require.Contains(t, ids, nearEventID)
	require.Contains(t, ids, farEventID)
	assert.Equal(t, nearEventID, ids[0])
	near, far := -1, -1
	for i, id := range ids {
		switch id {
		case nearEventID:
			near = i
		case farEventID:
			far = i
		}
	}
	assert.Less(t, near, far)
}

func TestGetContextEventsTiered_SpringfieldPrefersRegion(t *testing.T) {
	svc := newTestService(t, stubEmbedder{vec: []float32{1, 0}})

	res, err := svc.GetContextEventsTiered(context.Background(), types.RetrievalRequest{
		Query:        "kids camp",
		LocationText: "Springfield",
	})
	require.NoError(t, err)
	require.NotNil(t, res.Location)
	require.True(t, res.Location.Found())
	assert.Equal(t, "MA", res.Location.Location.State)
	assert.InDelta(t, 0.8, res.Location.Confidence, 1e-9)
	assert.False(t, res.Location.IsAmbiguous)
	assert.Equal(t, types.ResolutionPreferredRegion, res.Location.Method)
}

func TestGetContextEventsTiered_LocationIDWins(t *testing.T) {
	svc := newTestService(t, stubEmbedder{vec: []float32{1, 0}})
	id := newtonID

	res, err := svc.GetContextEventsTiered(context.Background(), types.RetrievalRequest{
		Query:        "kids",
		LocationID:   &id,
		LocationText: "Springfield",
	})
	require.NoError(t, err)
	require.NotNil(t, res.Location)
	assert.Equal(t, newtonID, res.Location.Location.ID)
	assert.Equal(t, types.ResolutionByID, res.Location.Method)
	assert.Equal(t, 1.0, res.Location.Confidence)
}

func TestGetContextEventsTiered_UnknownLocationID(t *testing.T) {
	svc := newTestService(t, stubEmbedder{vec: []float32{1, 0}})
	id := uuid.New()

	res, err := svc.GetContextEventsTiered(context.Background(), types.RetrievalRequest{Query: "kids", LocationID: &id})
	require.NoError(t, err)
	require.NotNil(t, res.Location)
	assert.False(t, res.Location.Found())
	assert.Equal(t, types.ResolutionNotFound, res.Location.Method)
	assert.Len(t, allIDs(res), 4)
}

func TestGetContextEventsTiered_MaxDistance(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(t, stubEmbedder{vec: []float32{1, 0}})
	id := newtonID

	t.Run("exclude then score", func(t *testing.T) {
		res, err := svc.GetContextEventsTiered(ctx, types.RetrievalRequest{
			Query:            "kids",
			LocationID:       &id,
			MaxDistanceMiles: f64(10),
		})
		require.NoError(t, err)
		assert.Equal(t, []uuid.UUID{nearEventID}, allIDs(res))
		assert.Equal(t, 3, res.Metadata.ExcludedByRadius)
		assert.Equal(t, types.DistanceExcludeThenScore, res.Metadata.DistanceMode)
	})

	t.Run("non-positive radius uses the default", func(t *testing.T) {
		res, err := svc.GetContextEventsTiered(ctx, types.RetrievalRequest{
			Query:            "kids",
			LocationID:       &id,
			MaxDistanceMiles: f64(0),
		})
		require.NoError(t, err)
		require.NotNil(t, res.Metadata.MaxDistanceMiles)
		assert.Equal(t, 10.0, *res.Metadata.MaxDistanceMiles)
		assert.Equal(t, []uuid.UUID{nearEventID}, allIDs(res))
	})

	t.Run("score only", func(t *testing.T) {
		res, err := svc.GetContextEventsTiered(ctx, types.RetrievalRequest{
			Query:            "kids",
			LocationID:       &id,
			MaxDistanceMiles: f64(10),
			DistanceMode:     types.DistanceScoreOnly,
		})
		require.NoError(t, err)
		ids := allIDs(res)
		assert.Len(t, ids, 4)
		assert.Equal(t, nearEventID, ids[0])
		assert.Zero(t, res.Metadata.ExcludedByRadius)
	})
}

func TestGetContextEventsTiered_FallbackWhenEmbeddingUnavailable(t *testing.T) {
	svc := newTestService(t, stubEmbedder{err: embedding.ErrProviderFailed})

	res, err := svc.GetContextEventsTiered(context.Background(), types.RetrievalRequest{
		Query:        "activities for kids",
		LocationText: "Newton, MA",
	})
	require.NoError(t, err)
	require.NotNil(t, res)
	assert.Equal(t, types.SearchFallback, res.Metadata.SearchMode)
	assert.True(t, res.Metadata.Degraded)
	assert.Contains(t, res.Metadata.DegradedReason, "embedding provider failed")
	require.Len(t, allIDs(res), 4)
	for _, e := range res.RecommendedEvents {
		assert.True(t, e.Fallback)
		assert.Zero(t, e.Similarity)
	}
	assert.NotContains(t, allIDs(res), pastEventID)
}

func TestGetContextEventsTiered_DimensionMismatchFails(t *testing.T) {
	svc := newTestService(t, stubEmbedder{vec: []float32{1, 0, 0}})

	res, err := svc.GetContextEventsTiered(context.Background(), types.RetrievalRequest{Query: "kids"})
	require.Error(t, err)
	assert.ErrorIs(t, err, embedding.ErrDimensionMismatch)
	assert.Nil(t, res)
}

func TestGetContextEventsTiered_RequestValidation(t *testing.T) {
	svc := newTestService(t, stubEmbedder{vec: []float32{1, 0}})
	ctx := context.Background()

	tests := []struct {
		name string
		req  types.RetrievalRequest
	}{
		{"negative weight", types.RetrievalRequest{Query: "kids", Weights: &types.ScoringWeights{SemanticSimilarity: -1}}},
		{"negative tier cap", types.RetrievalRequest{Query: "kids", TierCaps: &types.TierCapsOverride{MaxRecommended: ptr(-1)}}},
		{"unknown distance mode", types.RetrievalRequest{Query: "kids", DistanceMode: "nearest"}},
		{"infinite radius", types.RetrievalRequest{Query: "kids", MaxDistanceMiles: f64(math.Inf(1))}},
		{"threshold above one", types.RetrievalRequest{Query: "kids", SimilarityThreshold: f64(1.5)}},
		{"threshold not a number", types.RetrievalRequest{Query: "kids", SimilarityThreshold: f64(math.NaN())}},
		{"date range reversed", types.RetrievalRequest{Query: "kids", DateFrom: days(3), DateTo: days(1)}},
		{"latitude without longitude", types.RetrievalRequest{Query: "kids", UserLat: f64(newtonLat)}},
		{"latitude out of range", types.RetrievalRequest{Query: "kids", UserLat: f64(91), UserLng: f64(0)}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.GetContextEventsTiered(ctx, tt.req)
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrInvalidRequest)
		})
	}

	_, err := svc.GetContextEventsTiered(ctx, tests[0].req)
	assert.ErrorIs(t, err, types.ErrInvalidWeight)
}

func TestGetContextEventsTiered_WeightOverrides(t *testing.T) {
	svc := newTestService(t, stubEmbedder{vec: []float32{1, 0}})

	res, err := svc.GetContextEventsTiered(context.Background(), types.RetrievalRequest{
		Query:    "kids",
		Weights:  &types.ScoringWeights{SemanticSimilarity: 1, TimeRelevance: 1},
		TierCaps: &types.TierCapsOverride{MaxRecommended: ptr(1), MaxAdditional: ptr(1), MaxContext: ptr(1)},
	})
	require.NoError(t, err)
	assert.NotEmpty(t, res.Metadata.WeightsAdvisory)
	assert.Equal(t, 2.0, res.Metadata.Weights.Sum())
	assert.Len(t, res.RecommendedEvents, 1)
	assert.Len(t, res.AdditionalEvents, 1)
	assert.Len(t, res.ContextEvents, 1)
	assert.Equal(t, 3, res.Metadata.RankedCount)
}

func TestGetContextEventsTiered_Idempotent(t *testing.T) {
	svc := newTestService(t, stubEmbedder{vec: []float32{1, 0}})
	req := types.RetrievalRequest{Query: "activities for kids", LocationText: "Springfield"}

	first, err := svc.GetContextEventsTiered(context.Background(), req)
	require.NoError(t, err)
	second, err := svc.GetContextEventsTiered(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

func TestGetContextEventsTiered_PartialTierOverride(t *testing.T) {
	svc := newTestService(t, stubEmbedder{vec: []float32{1, 0}})

	res, err := svc.GetContextEventsTiered(context.Background(), types.RetrievalRequest{
		Query:    "kids",
		TierCaps: &types.TierCapsOverride{MaxRecommended: ptr(1)},
	})
	require.NoError(t, err)
	assert.Equal(t, types.TierCaps{MaxRecommended: 1, MaxAdditional: 15, MaxContext: 50}, res.Metadata.TierCaps)
	assert.Len(t, res.RecommendedEvents, 1)
	assert.Len(t, res.AdditionalEvents, 3)
}

func TestGetContextEventsTiered_UnresolvedPlaceMatchesVenueText(t *testing.T) {
	ctx := context.Background()
	req := types.RetrievalRequest{Query: "kids activities", LocationText: "Ozarks"}

	t.Run("semantic", func(t *testing.T) {
		svc := newTestService(t, stubEmbedder{vec: []float32{1, 0}})
		res, err := svc.GetContextEventsTiered(ctx, req)
		require.NoError(t, err)
		require.NotNil(t, res.Location)
		assert.False(t, res.Location.Found())
		assert.Equal(t, types.ResolutionNotFound, res.Location.Method)
		assert.Equal(t, types.LocationFilterVenueText, res.Metadata.LocationFilter)
		assert.Equal(t, "Ozarks", res.Metadata.VenueText)
		assert.Equal(t, types.SearchSemantic, res.Metadata.SearchMode)
		assert.Equal(t, []uuid.UUID{missouriEventID}, allIDs(res))
	})

	t.Run("fallback", func(t *testing.T) {
		svc := newTestService(t, stubEmbedder{err: embedding.ErrProviderFailed})
		res, err := svc.GetContextEventsTiered(ctx, req)
		require.NoError(t, err)
		assert.Equal(t, types.SearchFallback, res.Metadata.SearchMode)
		assert.Equal(t, []uuid.UUID{missouriEventID}, allIDs(res))
	})

	t.Run("state suffix is ignored", func(t *testing.T) {
		svc := newTestService(t, stubEmbedder{vec: []float32{1, 0}})
		res, err := svc.GetContextEventsTiered(ctx, types.RetrievalRequest{Query: "kids", LocationText: "the ozarks, MO"})
		require.NoError(t, err)
		assert.Equal(t, "the ozarks", res.Metadata.VenueText)
		assert.Equal(t, []uuid.UUID{missouriEventID}, allIDs(res))
	})

	t.Run("resolved place does not filter by venue", func(t *testing.T) {
		svc := newTestService(t, stubEmbedder{vec: []float32{1, 0}})
		res, err := svc.GetContextEventsTiered(ctx, types.RetrievalRequest{Query: "kids", LocationText: "Newton, MA"})
		require.NoError(t, err)
		assert.Empty(t, res.Metadata.LocationFilter)
		assert.Len(t, allIDs(res), 4)
	})
}

func TestGetContextEventsTiered_DefaultState(t *testing.T) {
	svc := newTestService(t, stubEmbedder{vec: []float32{1, 0}})

	res, err := svc.GetContextEventsTiered(context.Background(), types.RetrievalRequest{
		Query:        "kids activities",
		LocationText: "Springfield",
		DefaultState: "MO",
	})
	require.NoError(t, err)
	require.True(t, res.Location.Found())
	assert.Equal(t, springfieldMOID, res.Location.Location.ID)
	assert.Equal(t, types.ResolutionExact, res.Location.Method)
	assert.Equal(t, missouriEventID, allIDs(res)[0])
}

func TestGetContextEventsTiered_UserCoordinates(t *testing.T) {
	svc := newTestService(t, stubEmbedder{vec: []float32{1, 0}})

	res, err := svc.GetContextEventsTiered(context.Background(), types.RetrievalRequest{
		Query:            "kids",
		UserLat:          f64(newtonLat),
		UserLng:          f64(newtonLng),
		MaxDistanceMiles: f64(10),
	})
	require.NoError(t, err)
	require.NotNil(t, res.Location)
	assert.Equal(t, types.ResolutionCoordinates, res.Location.Method)
	assert.Equal(t, newtonLat, res.Location.Location.Latitude)
	assert.Equal(t, []uuid.UUID{nearEventID}, allIDs(res))
	require.NotNil(t, res.RecommendedEvents[0].Factors.DistanceMiles)
	assert.InDelta(t, 2.0, *res.RecommendedEvents[0].Factors.DistanceMiles, 0.1)
}

func TestGetContextEventsTiered_EventFilters(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(t, stubEmbedder{vec: []float32{1, 0}})

	tests := []struct {
		name     string
		req      types.RetrievalRequest
		expected []uuid.UUID
	}{
		{
			"date range",
			types.RetrievalRequest{Query: "kids", DateFrom: days(0.5), DateTo: days(1.5)},
			[]uuid.UUID{missouriEventID},
		},
		{
			"virtual only",
			types.RetrievalRequest{Query: "kids", IsVirtual: ptr(true)},
			[]uuid.UUID{virtualEventID},
		},
		{
			"similarity threshold",
			types.RetrievalRequest{Query: "kids", SimilarityThreshold: f64(0.995)},
			[]uuid.UUID{nearEventID, farEventID},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := svc.GetContextEventsTiered(ctx, tt.req)
			require.NoError(t, err)
			assert.ElementsMatch(t, tt.expected, allIDs(res))
		})
	}

	res, err := svc.GetContextEventsTiered(ctx, types.RetrievalRequest{Query: "kids", IsVirtual: ptr(false)})
	require.NoError(t, err)
	assert.NotContains(t, allIDs(res), virtualEventID)
	assert.Len(t, allIDs(res), 3)
	assert.Equal(t, 0.1, res.Metadata.SimilarityThreshold)
}
