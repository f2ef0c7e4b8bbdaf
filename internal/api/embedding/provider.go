package embedding

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"strings"

	"github.com/SuperSchedules/superschedules/config"
)

var (
	ErrEmptyText         = errors.New("text cannot be empty")
	ErrProviderFailed    = errors.New("embedding provider failed")
	ErrUnknownProvider   = errors.New("unknown embedding provider")
	ErrDimensionMismatch = errors.New("embedding dimension mismatch")
	ErrBatchTooLarge     = errors.New("batch size exceeds limit")
)

const (
	ProviderHashing = "hashing"
	ProviderGemini  = "gemini"
	ProviderService = "service"
)

// Task tells a provider what the vectors are for. Asymmetric models embed
// queries and documents differently.
type Task string

const (
	TaskQuery    Task = "query"
	TaskDocument Task = "document"
)

// Provider turns text into fixed-size vectors. Implementations must be
// deterministic for a given input, task and model.
type Provider interface {
	Embed(ctx context.Context, texts []string, task Task) ([][]float32, error)
	Dimension() int
	Name() string
	Model() string
	Close() error
}

// Factory builds a provider. It is invoked lazily, once, by Service.
type Factory func(ctx context.Context) (Provider, error)

// NewFactory returns the factory for the configured provider.
func NewFactory(cfg config.Embedding, logger *slog.Logger) (Factory, error) {
	switch strings.ToLower(cfg.Provider) {
	case ProviderHashing, "":
		return func(context.Context) (Provider, error) {
			return NewHashingProvider(cfg.Dimension, cfg.Model), nil
		}, nil
	case ProviderGemini:
		return func(ctx context.Context) (Provider, error) {
			return NewGeminiProvider(ctx, cfg.APIKey, cfg.Model, cfg.Dimension)
		}, nil
	case ProviderService:
		return func(ctx context.Context) (Provider, error) {
			return NewServiceProvider(ctx, ServiceProviderConfig{
				BaseURL:    cfg.ServiceURL,
				Model:      cfg.Model,
				Dimension:  cfg.Dimension,
				Timeout:    cfg.Timeout,
				MaxRetries: cfg.MaxRetries,
			}, logger)
		}, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownProvider, cfg.Provider)
	}
}

// NormalizeVector scales v to unit length in place. Zero vectors are left as is.
func NormalizeVector(v []float32) []float32 {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	if sum == 0 {
		return v
	}
	norm := float32(math.Sqrt(sum))
	for i := range v {
		v[i] /= norm
	}
	return v
}

// CosineSimilarity returns the cosine of the angle between a and b, or 0 when
// either is a zero vector. Callers must pass vectors of equal length.
func CosineSimilarity(a, b []float32) float64 {
	var dot, normA, normB float64
	for i := range a {
		x, y := float64(a[i]), float64(b[i])
		dot += x * y
		normA += x * x
		normB += y * y
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}
