package embedding

import (
	"context"
	"crypto/sha256"
	"sync"
)

// MockProvider returns deterministic embeddings without network access.
// Texts registered with Set get exactly that vector; anything else gets a
// vector derived from its SHA-256 digest.
type MockProvider struct {
	dimension int

	mu      sync.Mutex
	vectors map[string][]float32
	calls   int
	texts   []string
	err     error
}

// NewMockProvider creates a mock provider with the given fallback dimension.
func NewMockProvider(dimension int) *MockProvider {
	if dimension <= 0 {
		dimension = 32
	}
	return &MockProvider{
		dimension: dimension,
		vectors:   make(map[string][]float32),
	}
}

// Set pins the vector returned for text.
func (m *MockProvider) Set(text string, vec []float32) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.vectors[text] = vec
}

// FailWith makes every subsequent Embed call return err.
func (m *MockProvider) FailWith(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.err = err
}

// Calls returns how many times Embed reached the provider.
func (m *MockProvider) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

// Texts returns every text sent to the provider, in call order.
func (m *MockProvider) Texts() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.texts...)
}

// Name implements Provider.
func (m *MockProvider) Name() string {
	return "mock"
}

// Embed implements Provider.
func (m *MockProvider) Embed(_ context.Context, texts []string) ([][]float32, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.calls++
	m.texts = append(m.texts, texts...)
	if m.err != nil {
		return nil, m.err
	}

	out := make([][]float32, len(texts))
	for i, text := range texts {
		if vec, ok := m.vectors[text]; ok {
			out[i] = append([]float32(nil), vec...)
			continue
		}
		out[i] = m.digestVector(text)
	}
	return out, nil
}

func (m *MockProvider) digestVector(text string) []float32 {
	vec := make([]float32, m.dimension)
	sum := sha256.Sum256([]byte(text))
	for j := range vec {
		vec[j] = float32(int(sum[j%len(sum)])-128) / 128.0
	}
	// guarantee a non-zero vector
	vec[0] += 0.01
	return vec
}
