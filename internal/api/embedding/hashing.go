package embedding

import (
	"context"
	"strings"
	"unicode"

	"github.com/cespare/xxhash/v2"
)

var _ Provider = (*HashingProvider)(nil)

// HashingProvider is a local, dependency-free embedder based on signed feature
// hashing of unigrams and bigrams. It needs no model download, so it backs
// development, tests and the degraded mode when no inference service exists.
type HashingProvider struct {
	dimension int
	model     string
}

func NewHashingProvider(dimension int, model string) *HashingProvider {
	if dimension <= 0 {
		dimension = 384
	}
	if model == "" {
		model = "feature-hashing"
	}
	return &HashingProvider{dimension: dimension, model: model}
}

func (p *HashingProvider) Embed(ctx context.Context, texts []string, _ Task) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, text := range texts {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		out[i] = p.embed(text)
	}
	return out, nil
}

func (p *HashingProvider) embed(text string) []float32 {
	v := make([]float32, p.dimension)
	tokens := tokenize(text)
	for i, tok := range tokens {
		p.add(v, tok, 1)
		if i > 0 {
			p.add(v, tokens[i-1]+" "+tok, 0.5)
		}
	}
	return NormalizeVector(v)
}

func (p *HashingProvider) add(v []float32, feature string, weight float32) {
	h := xxhash.Sum64String(feature)
	idx := int(h % uint64(p.dimension))
	if h&(1<<63) != 0 {
		weight = -weight
	}
	v[idx] += weight
}

func tokenize(text string) []string {
	return strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}

func (p *HashingProvider) Dimension() int { return p.dimension }
func (p *HashingProvider) Name() string   { return ProviderHashing }
func (p *HashingProvider) Model() string  { return p.model }
func (p *HashingProvider) Close() error   { return nil }
