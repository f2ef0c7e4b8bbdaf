package embedding

import (
	"context"
	"errors"
	"fmt"

	"google.golang.org/genai"
)

const (
	defaultGeminiModel = "text-embedding-004"
	// Gemini accepts at most this many contents per EmbedContent call.
	geminiMaxBatch = 100
)

var _ Provider = (*GeminiProvider)(nil)

// GeminiProvider embeds text through the Gemini API.
type GeminiProvider struct {
	client    *genai.Client
	model     string
	dimension int
}

func NewGeminiProvider(ctx context.Context, apiKey, model string, dimension int) (*GeminiProvider, error) {
	if apiKey == "" {
		return nil, errors.New("gemini embedding provider requires an API key")
	}
	if model == "" {
		model = defaultGeminiModel
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create gemini client: %w", err)
	}
	return &GeminiProvider{client: client, model: model, dimension: dimension}, nil
}

func (p *GeminiProvider) Embed(ctx context.Context, texts []string, task Task) ([][]float32, error) {
	out := make([][]float32, 0, len(texts))
	for start := 0; start < len(texts); start += geminiMaxBatch {
		end := min(start+geminiMaxBatch, len(texts))

		contents := make([]*genai.Content, 0, end-start)
		for _, text := range texts[start:end] {
			contents = append(contents, genai.NewContentFromText(text, genai.RoleUser))
		}

		resp, err := p.client.Models.EmbedContent(ctx, p.model, contents, &genai.EmbedContentConfig{
			TaskType:             geminiTaskType(task),
			OutputDimensionality: genai.Ptr[int32](int32(p.dimension)),
		})
		if err != nil {
			return nil, fmt.Errorf("%w: gemini embed: %w", ErrProviderFailed, err)
		}
		if len(resp.Embeddings) != end-start {
			return nil, fmt.Errorf("%w: gemini returned %d embeddings for %d texts", ErrProviderFailed, len(resp.Embeddings), end-start)
		}
		for _, e := range resp.Embeddings {
			// Truncated Gemini vectors are not unit length.
			out = append(out, NormalizeVector(e.Values))
		}
	}
	return out, nil
}

func geminiTaskType(task Task) string {
	if task == TaskDocument {
		return "RETRIEVAL_DOCUMENT"
	}
	return "RETRIEVAL_QUERY"
}

func (p *GeminiProvider) Dimension() int { return p.dimension }
func (p *GeminiProvider) Name() string   { return ProviderGemini }
func (p *GeminiProvider) Model() string  { return p.model }
func (p *GeminiProvider) Close() error   { return nil }
