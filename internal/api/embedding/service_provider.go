package embedding

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/sony/gobreaker"
)

// MaxServiceBatch is the largest batch the embedding service accepts.
const MaxServiceBatch = 100

var _ Provider = (*ServiceProvider)(nil)

type ServiceProviderConfig struct {
	BaseURL    string
	Model      string
	Dimension  int
	Timeout    time.Duration
	MaxRetries int
}

// EmbedRequest is the body of POST /embed on the embedding service.
type EmbedRequest struct {
	Texts []string `json:"texts"`
}

// EmbedResponse is the embedding service reply.
type EmbedResponse struct {
	Embeddings       [][]float32 `json:"embeddings"`
	Model            string      `json:"model"`
	ProcessingTimeMS float64     `json:"processing_time_ms"`
}

// HealthResponse is the body of GET /health on the embedding service.
type HealthResponse struct {
	Status      string `json:"status"`
	ModelLoaded bool   `json:"model_loaded"`
	ModelName   string `json:"model_name"`
}

// statusError marks non-2xx replies; 4xx replies are not retried.
type statusError struct {
	code int
	body string
}

func (e *statusError) Error() string {
	return fmt.Sprintf("embedding service returned %d: %s", e.code, e.body)
}

// ServiceProvider calls a standalone embedding inference service over HTTP,
// guarded by a circuit breaker so a dead service fails fast.
type ServiceProvider struct {
	cfg     ServiceProviderConfig
	client  *http.Client
	breaker *gobreaker.CircuitBreaker
	retry   RetryConfig
	logger  *slog.Logger
}

// NewServiceProvider checks the service health endpoint before returning.
func NewServiceProvider(ctx context.Context, cfg ServiceProviderConfig, logger *slog.Logger) (*ServiceProvider, error) {
	if cfg.BaseURL == "" {
		return nil, errors.New("embedding service URL is not configured")
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}

	retry := DefaultRetryConfig()
	retry.MaxRetries = max(cfg.MaxRetries, 1)

	p := &ServiceProvider{
		cfg:    cfg,
		client: &http.Client{Timeout: cfg.Timeout},
		retry:  retry,
		logger: logger,
	}
	p.breaker = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "embedding-service",
		MaxRequests: 1,
		Interval:    time.Minute,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("Circuit breaker state changed",
				slog.String("breaker", name),
				slog.String("from", from.String()),
				slog.String("to", to.String()))
		},
	})

	health, err := p.Health(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: embedding service unreachable: %w", ErrProviderFailed, err)
	}
	if !health.ModelLoaded {
		logger.WarnContext(ctx, "Embedding service is up but its model is not loaded yet",
			slog.String("model", health.ModelName))
	}
	return p, nil
}

func (p *ServiceProvider) Health(ctx context.Context) (*HealthResponse, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.cfg.BaseURL+"/health", nil)
	if err != nil {
		return nil, err
	}
	resp, err := p.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, &statusError{code: resp.StatusCode, body: string(body)}
	}
	var health HealthResponse
	if err := json.NewDecoder(resp.Body).Decode(&health); err != nil {
		return nil, fmt.Errorf("failed to decode health response: %w", err)
	}
	return &health, nil
}

func (p *ServiceProvider) Embed(ctx context.Context, texts []string, _ Task) ([][]float32, error) {
	if len(texts) > MaxServiceBatch {
		return nil, fmt.Errorf("%w: %d > %d", ErrBatchTooLarge, len(texts), MaxServiceBatch)
	}
	result, err := p.breaker.Execute(func() (interface{}, error) {
		return retryWithBackoff(ctx, p.retry, isRetryable, func() (*EmbedResponse, error) {
			return p.post(ctx, texts)
		})
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrProviderFailed, err)
	}

	resp := result.(*EmbedResponse)
	if len(resp.Embeddings) != len(texts) {
		return nil, fmt.Errorf("%w: service returned %d embeddings for %d texts", ErrProviderFailed, len(resp.Embeddings), len(texts))
	}
	return resp.Embeddings, nil
}

func (p *ServiceProvider) post(ctx context.Context, texts []string) (*EmbedResponse, error) {
	body, err := json.Marshal(EmbedRequest{Texts: texts})
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.cfg.BaseURL+"/embed", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, &statusError{code: resp.StatusCode, body: string(msg)}
	}
	var out EmbedResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("failed to decode embed response: %w", err)
	}
	return &out, nil
}

func isRetryable(err error) bool {
	var se *statusError
	if errors.As(err, &se) {
		return se.code >= 500 || se.code == http.StatusTooManyRequests
	}
	return true
}

func (p *ServiceProvider) Dimension() int { return p.cfg.Dimension }
func (p *ServiceProvider) Name() string   { return ProviderService }
func (p *ServiceProvider) Model() string  { return p.cfg.Model }

func (p *ServiceProvider) Close() error {
	p.client.CloseIdleConnections()
	return nil
}
