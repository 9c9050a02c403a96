package vectorindex

import (
	"context"
	"sort"
	"sync"

	"github.com/google/uuid"
	"github.com/jonathan/job-tracker/internal/embedding"
)

// Memory is an in-process Index using exact cosine distance
type Memory struct {
	mu          sync.RWMutex
	collections map[string][]Document
}

// NewMemory creates an empty in-memory index
func NewMemory() *Memory {
	return &Memory{collections: make(map[string][]Document)}
}

// Insert implements Index.
func (m *Memory) Insert(_ context.Context, collection string, docs []Document) error {
	if len(docs) == 0 {
		return nil
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	for _, doc := range docs {
		stored := Document{
			ID:       doc.ID,
			Text:     doc.Text,
			Vector:   append([]float32(nil), doc.Vector...),
			Metadata: copyMetadata(doc.Metadata),
		}
		if stored.ID == "" {
			stored.ID = uuid.NewString()
		}
		m.collections[collection] = append(m.collections[collection], stored)
	}
	return nil
}

// Query implements Index.
func (m *Memory) Query(ctx context.Context, collection string, vector []float32, k int) ([]Hit, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if k <= 0 {
		return []Hit{}, nil
	}

	query, ok := embedding.Normalize(vector)
	if !ok {
		return []Hit{}, nil
	}

	m.mu.RLock()
	docs := m.collections[collection]
	hits := make([]Hit, 0, len(docs))
	for _, doc := range docs {
		unit, ok := embedding.Normalize(doc.Vector)
		if !ok {
			continue
		}
		hits = append(hits, Hit{
			ID:       doc.ID,
			Text:     doc.Text,
			Metadata: copyMetadata(doc.Metadata),
			Distance: 1 - embedding.Dot(query, unit),
		})
	}
	m.mu.RUnlock()

	sort.SliceStable(hits, func(i, j int) bool {
		return hits[i].Distance < hits[j].Distance
	})
	if len(hits) > k {
		hits = hits[:k]
	}
	return hits, nil
}

// Get implements Index.
func (m *Memory) Get(_ context.Context, collection string, filter Filter) ([]Hit, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	hits := []Hit{}
	for _, doc := range m.collections[collection] {
		if filter.matches(doc.Metadata) {
			hits = append(hits, Hit{ID: doc.ID, Text: doc.Text, Metadata: copyMetadata(doc.Metadata)})
		}
	}
	return hits, nil
}

// Delete implements Index.
func (m *Memory) Delete(_ context.Context, collection string, filter Filter) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	docs := m.collections[collection]
	kept := docs[:0]
	for _, doc := range docs {
		if !filter.matches(doc.Metadata) {
			kept = append(kept, doc)
		}
	}
	m.collections[collection] = kept
	return nil
}

// Len returns the number of documents in collection
func (m *Memory) Len(collection string) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.collections[collection])
}

func copyMetadata(in map[string]any) map[string]any {
	out := make(map[string]any, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}
