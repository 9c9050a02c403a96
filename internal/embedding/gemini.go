package embedding

import (
	"context"
	"fmt"

	"github.com/google/generative-ai-go/genai"
	"github.com/jonathan/job-tracker/internal/types"
	"google.golang.org/api/option"
)

// GeminiProvider embeds texts with the Gemini embedding models
type GeminiProvider struct {
	client *genai.Client
	model  string
}

// NewGeminiProvider creates a new Gemini embedding provider
func NewGeminiProvider(ctx context.Context, apiKey, model string) (*GeminiProvider, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("API key is required")
	}
	if model == "" {
		model = DefaultGeminiModel
	}

	client, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("failed to create Gemini client: %w", err)
	}

	return &GeminiProvider{
		client: client,
		model:  model,
	}, nil
}

// Name implements Provider.
func (p *GeminiProvider) Name() string {
	return "gemini"
}

// Embed implements Provider using one BatchEmbedContents call.
func (p *GeminiProvider) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return [][]float32{}, nil
	}

	em := p.client.EmbeddingModel(p.model)
	batch := em.NewBatch()
	for _, text := range texts {
		batch.AddContent(genai.Text(text))
	}

	resp, err := em.BatchEmbedContents(ctx, batch)
	if err != nil {
		return nil, &types.UpstreamError{Service: p.Name(), Message: "failed to embed contents", Cause: err}
	}
	if resp == nil || len(resp.Embeddings) != len(texts) {
		got := 0
		if resp != nil {
			got = len(resp.Embeddings)
		}
		return nil, &types.UpstreamError{Service: p.Name(), Message: fmt.Sprintf("got %d embeddings for %d texts", got, len(texts))}
	}

	out := make([][]float32, len(texts))
	for i, e := range resp.Embeddings {
		if e == nil || len(e.Values) == 0 {
			return nil, &types.UpstreamError{Service: p.Name(), Message: fmt.Sprintf("empty embedding for input %d", i)}
		}
		out[i] = e.Values
	}
	return out, nil
}

// Close releases the underlying client
func (p *GeminiProvider) Close() error {
	return p.client.Close()
}
