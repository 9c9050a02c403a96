package embedding

import (
	"context"
	"fmt"

	"github.com/jonathan/job-tracker/internal/types"
	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
)

// OpenAIProvider embeds texts with the OpenAI embeddings API
type OpenAIProvider struct {
	client openai.Client
	model  string
}

// NewOpenAIProvider creates an OpenAI embedding provider.
// An empty model selects text-embedding-3-small; an empty baseURL uses the public API.
func NewOpenAIProvider(apiKey, model, baseURL string) (*OpenAIProvider, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("OpenAI API key is required")
	}
	if model == "" {
		model = DefaultOpenAIModel
	}

	// Failures surface to the caller unretried.
	opts := []option.RequestOption{
		option.WithAPIKey(apiKey),
		option.WithMaxRetries(0),
	}
	if baseURL != "" {
		opts = append(opts, option.WithBaseURL(baseURL))
	}

	return &OpenAIProvider{
		client: openai.NewClient(opts...),
		model:  model,
	}, nil
}

// Name implements Provider.
func (p *OpenAIProvider) Name() string {
	return "openai"
}

// Embed implements Provider with a single batched request.
func (p *OpenAIProvider) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return [][]float32{}, nil
	}

	resp, err := p.client.Embeddings.New(ctx, openai.EmbeddingNewParams{
		Input: openai.EmbeddingNewParamsInputUnion{OfArrayOfStrings: texts},
		Model: openai.EmbeddingModel(p.model),
	})
	if err != nil {
		return nil, &types.UpstreamError{Service: p.Name(), Message: "failed to create embeddings", Cause: err}
	}

	out := make([][]float32, len(texts))
	for _, d := range resp.Data {
		idx := int(d.Index)
		if idx < 0 || idx >= len(out) {
			return nil, &types.UpstreamError{Service: p.Name(), Message: fmt.Sprintf("embedding index %d out of range", idx)}
		}
		out[idx] = toFloat32(d.Embedding)
	}
	for i, vec := range out {
		if vec == nil {
			return nil, &types.UpstreamError{Service: p.Name(), Message: fmt.Sprintf("missing embedding for input %d", i)}
		}
	}

	return out, nil
}
