package embedding

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"math"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type MockProvider struct {
	mock.Mock
}

func (m *MockProvider) Embed(ctx context.Context, texts []string, task Task) ([][]float32, error) {
	args := m.Called(ctx, texts, task)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([][]float32), args.Error(1)
}

func (m *MockProvider) Dimension() int { return m.Called().Int(0) }
func (m *MockProvider) Name() string   { return "mock" }
func (m *MockProvider) Model() string  { return "mock-model" }
func (m *MockProvider) Close() error   { return nil }

// countingProvider wraps the hashing provider and blocks until release is closed.
type countingProvider struct {
	*HashingProvider
	calls   atomic.Int32
	release chan struct{}
}

func (p *countingProvider) Embed(ctx context.Context, texts []string, task Task) ([][]float32, error) {
	p.calls.Add(1)
	if p.release != nil {
		<-p.release
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return p.HashingProvider.Embed(ctx, texts, task)
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func norm(v []float32) float64 {
	var s float64
	for _, x := range v {
		s += float64(x) * float64(x)
	}
	return math.Sqrt(s)
}

func TestHashingProvider(t *testing.T) {
	ctx := context.Background()
	p := NewHashingProvider(384, "")

	vectors, err := p.Embed(ctx, []string{
		"family friendly activities for kids",
		"Family-friendly ACTIVITIES for kids!",
		"kids activities at the library",
		"jazz concert downtown tonight",
	}, TaskDocument)
	require.NoError(t, err)
	require.Len(t, vectors, 4)

	t.Run("unit length and configured dimension", func(t *testing.T) {
		for _, v := range vectors {
			assert.Len(t, v, 384)
			assert.InDelta(t, 1.0, norm(v), 1e-5)
		}
	})

	t.Run("deterministic across case and punctuation", func(t *testing.T) {
		assert.Equal(t, vectors[0], vectors[1])
	})

	t.Run("related text scores higher than unrelated text", func(t *testing.T) {
		related := CosineSimilarity(vectors[0], vectors[2])
		unrelated := CosineSimilarity(vectors[0], vectors[3])
		assert.Greater(t, related, unrelated)
	})

	t.Run("empty text yields a zero vector", func(t *testing.T) {
		v, err := p.Embed(ctx, []string{"   "}, TaskQuery)
		require.NoError(t, err)
		assert.Equal(t, 0.0, norm(v[0]))
		assert.Equal(t, 0.0, CosineSimilarity(v[0], vectors[0]))
	})
}

func TestQueryCache(t *testing.T) {
	c := NewQueryCache(2, time.Minute)

	assert.Equal(t, "kids events in newton", CacheKey("  Kids   EVENTS in\tNewton "))

	v := []float32{1, 2, 3}
	c.Add("a", v)
	v[0] = 99

	got, ok := c.Get("a")
	require.True(t, ok)
	assert.Equal(t, []float32{1, 2, 3}, got)

	got[1] = 42
	again, _ := c.Get("a")
	assert.Equal(t, float32(2), again[1])

	c.Add("b", []float32{1})
	c.Add("c", []float32{1})
	assert.Equal(t, 2, c.Len())
	_, ok = c.Get("a")
	assert.False(t, ok)
}

func TestService_EmbedQuery(t *testing.T) {
	ctx := context.Background()

	t.Run("provider is built lazily and once", func(t *testing.T) {
		var builds atomic.Int32
		factory := func(context.Context) (Provider, error) {
			builds.Add(1)
			return NewHashingProvider(64, ""), nil
		}
		s := NewService(factory, ServiceConfig{Dimension: 64}, testLogger())
		assert.False(t, s.Ready())

		_, err := s.EmbedQuery(ctx, "one")
		require.NoError(t, err)
		_, err = s.EmbedQuery(ctx, "two")
		require.NoError(t, err)
		require.NoError(t, s.Warmup(ctx))

		assert.True(t, s.Ready())
		assert.Equal(t, int32(1), builds.Load())
	})

	t.Run("cache hit skips the provider", func(t *testing.T) {
		mockProvider := new(MockProvider)
		mockProvider.On("Dimension").Return(3)
		mockProvider.On("Embed", mock.Anything, []string{"Kids Events"}, TaskQuery).Return([][]float32{{0.1, 0.2, 0.3}}, nil).Once()

		s := NewService(func(context.Context) (Provider, error) { return mockProvider, nil }, ServiceConfig{Dimension: 3}, testLogger())

		first, err := s.EmbedQuery(ctx, "Kids Events")
		require.NoError(t, err)
		second, err := s.EmbedQuery(ctx, "  kids   events ")
		require.NoError(t, err)

		assert.Equal(t, first, second)
		assert.Equal(t, 1, s.CacheLen())
		mockProvider.AssertExpectations(t)
	})

	t.Run("concurrent misses share one inference", func(t *testing.T) {
		p := &countingProvider{HashingProvider: NewHashingProvider(32, ""), release: make(chan struct{})}
		s := NewService(func(context.Context) (Provider, error) { return p, nil },
			ServiceConfig{Dimension: 32, MaxConcurrentInference: 4}, testLogger())
		require.NoError(t, s.Warmup(ctx))

		var wg sync.WaitGroup
		results := make([][]float32, 8)
		for i := range results {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				v, err := s.EmbedQuery(ctx, "story time")
				assert.NoError(t, err)
				results[i] = v
			}(i)
		}
		time.Sleep(50 * time.Millisecond)
		close(p.release)
		wg.Wait()

		assert.Equal(t, int32(1), p.calls.Load())
		for _, r := range results {
			assert.Equal(t, results[0], r)
		}
	})

	t.Run("a cancelled caller does not fail callers sharing its call", func(t *testing.T) {
		p := &countingProvider{HashingProvider: NewHashingProvider(32, ""), release: make(chan struct{})}
		s := NewService(func(context.Context) (Provider, error) { return p, nil },
			ServiceConfig{Dimension: 32}, testLogger())
		require.NoError(t, s.Warmup(ctx))

		first, cancel := context.WithCancel(ctx)
		firstErr := make(chan error, 1)
		go func() {
			_, err := s.EmbedQuery(first, "kids activities")
			firstErr <- err
		}()
		require.Eventually(t, func() bool { return p.calls.Load() == 1 }, time.Second, time.Millisecond)

		type result struct {
			vec []float32
			err error
		}
		second := make(chan result, 1)
		go func() {
			v, err := s.EmbedQuery(ctx, "kids activities")
			second <- result{v, err}
		}()
		time.Sleep(50 * time.Millisecond)

		cancel()
		assert.ErrorIs(t, <-firstErr, context.Canceled)

		close(p.release)
		got := <-second
		require.NoError(t, got.err)
		assert.Len(t, got.vec, 32)
		assert.Equal(t, int32(1), p.calls.Load())
		assert.Equal(t, 1, s.CacheLen())
	})

	t.Run("provider with wrong dimension is rejected", func(t *testing.T) {
		s := NewService(func(context.Context) (Provider, error) { return NewHashingProvider(16, ""), nil },
			ServiceConfig{Dimension: 384}, testLogger())
		_, err := s.EmbedQuery(ctx, "anything")
		assert.ErrorIs(t, err, ErrDimensionMismatch)
		assert.False(t, s.Ready())
	})

	t.Run("provider returning short vectors is rejected", func(t *testing.T) {
		mockProvider := new(MockProvider)
		mockProvider.On("Dimension").Return(3)
		mockProvider.On("Embed", mock.Anything, mock.Anything, TaskQuery).Return([][]float32{{0.1, 0.2}}, nil).Once()

		s := NewService(func(context.Context) (Provider, error) { return mockProvider, nil }, ServiceConfig{Dimension: 3}, testLogger())
		_, err := s.EmbedQuery(ctx, "short")
		assert.ErrorIs(t, err, ErrDimensionMismatch)
		assert.Equal(t, 0, s.CacheLen())
	})

	t.Run("failed initialization is retried on the next call", func(t *testing.T) {
		var attempts atomic.Int32
		factory := func(context.Context) (Provider, error) {
			if attempts.Add(1) == 1 {
				return nil, errors.New("model still downloading")
			}
			return NewHashingProvider(8, ""), nil
		}
		s := NewService(factory, ServiceConfig{Dimension: 8}, testLogger())

		_, err := s.EmbedQuery(ctx, "first")
		assert.ErrorIs(t, err, ErrProviderFailed)

		_, err = s.EmbedQuery(ctx, "second")
		assert.NoError(t, err)
	})

	t.Run("empty query", func(t *testing.T) {
		s := NewService(func(context.Context) (Provider, error) { return NewHashingProvider(8, ""), nil },
			ServiceConfig{Dimension: 8}, testLogger())
		_, err := s.EmbedQuery(ctx, " \n ")
		assert.ErrorIs(t, err, ErrEmptyText)
	})
}

func TestService_TaskSelection(t *testing.T) {
	ctx := context.Background()
	mockProvider := new(MockProvider)
	mockProvider.On("Dimension").Return(2)
	mockProvider.On("Embed", mock.Anything, []string{"jazz tonight"}, TaskQuery).Return([][]float32{{1, 0}}, nil).Once()
	mockProvider.On("Embed", mock.Anything, []string{"Jazz Night at the library"}, TaskDocument).Return([][]float32{{0, 1}}, nil).Once()

	s := NewService(func(context.Context) (Provider, error) { return mockProvider, nil }, ServiceConfig{Dimension: 2}, testLogger())

	_, err := s.EmbedQuery(ctx, "jazz tonight")
	require.NoError(t, err)
	_, err = s.EmbedBatch(ctx, []string{"Jazz Night at the library"})
	require.NoError(t, err)
	mockProvider.AssertExpectations(t)

	assert.Equal(t, "RETRIEVAL_QUERY", geminiTaskType(TaskQuery))
	assert.Equal(t, "RETRIEVAL_DOCUMENT", geminiTaskType(TaskDocument))
}

func TestService_EmbedBatch(t *testing.T) {
	ctx := context.Background()
	s := NewService(func(context.Context) (Provider, error) { return NewHashingProvider(16, ""), nil },
		ServiceConfig{Dimension: 16}, testLogger())

	vectors, err := s.EmbedBatch(ctx, []string{"a b", "c d"})
	require.NoError(t, err)
	assert.Len(t, vectors, 2)
	assert.Equal(t, 0, s.CacheLen())

	_, err = s.EmbedBatch(ctx, []string{"ok", ""})
	assert.ErrorIs(t, err, ErrEmptyText)
}

func TestCosineSimilarity(t *testing.T) {
	assert.InDelta(t, 1.0, CosineSimilarity([]float32{1, 0}, []float32{2, 0}), 1e-9)
	assert.InDelta(t, 0.0, CosineSimilarity([]float32{1, 0}, []float32{0, 1}), 1e-9)
	assert.InDelta(t, -1.0, CosineSimilarity([]float32{1, 0}, []float32{-1, 0}), 1e-9)
}
