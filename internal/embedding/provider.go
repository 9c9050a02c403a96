// Package embedding turns text into unit-length vectors and memoizes them per comparison session.
package embedding

import (
	"context"
	"fmt"
)

// Provider turns texts into embedding vectors, one per input, in input order.
type Provider interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
	// Name identifies the provider in logs and errors
	Name() string
}

// ProviderKind selects an embedding backend
type ProviderKind string

// Supported providers
const (
	ProviderOpenAI ProviderKind = "openai"
	ProviderGemini ProviderKind = "gemini"
	ProviderMock   ProviderKind = "mock"
)

// Default models per provider
const (
	DefaultOpenAIModel = "text-embedding-3-small"
	DefaultGeminiModel = "text-embedding-004"
)

// Options configures a provider built by NewProvider
type Options struct {
	Provider          ProviderKind
	Model             string
	APIKey            string
	BaseURL           string
	RequestsPerSecond float64
	Burst             int
}

// NewProvider builds the configured provider, wrapped in a rate limiter when
// RequestsPerSecond is set.
func NewProvider(ctx context.Context, opts Options) (Provider, error) {
	var (
		p   Provider
		err error
	)

	switch opts.Provider {
	case ProviderOpenAI, "":
		p, err = NewOpenAIProvider(opts.APIKey, opts.Model, opts.BaseURL)
	case ProviderGemini:
		p, err = NewGeminiProvider(ctx, opts.APIKey, opts.Model)
	case ProviderMock:
		p = NewMockProvider(0)
	default:
		return nil, fmt.Errorf("unknown embedding provider %q", opts.Provider)
	}
	if err != nil {
		return nil, err
	}

	if opts.RequestsPerSecond > 0 {
		p = NewRateLimited(p, opts.RequestsPerSecond, opts.Burst)
	}
	return p, nil
}
