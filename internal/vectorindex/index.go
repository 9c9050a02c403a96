// Package vectorindex stores embedded documents in named collections and answers
// nearest-neighbor queries. Every collection uses cosine distance, so
// similarity = 1 - distance.
package vectorindex

import (
	"context"
	"fmt"
	"strconv"
)

// Collection names
const (
	CollectionListings          = "listings"
	CollectionExperienceBullets = "experience_bullets"
)

// Metadata keys
const (
	KeyListingID    = "listing_id"
	KeyExperienceID = "experience_id"
	KeyBulletIndex  = "bullet_index"
)

// Document is a text with its embedding and flat metadata
type Document struct {
	ID       string
	Text     string
	Vector   []float32
	Metadata map[string]any
}

// Hit is a stored document returned by a query or fetch
type Hit struct {
	ID       string
	Text     string
	Metadata map[string]any
	// Distance is the cosine distance to the query vector; zero for fetches
	Distance float64
}

// Similarity converts the cosine distance back to a similarity score.
func (h Hit) Similarity() float64 {
	return 1 - h.Distance
}

// Filter matches documents whose metadata equals every key/value pair
type Filter map[string]any

// Index is a collection-partitioned vector store
type Index interface {
	// Insert stores documents, creating the collection on first use
	Insert(ctx context.Context, collection string, docs []Document) error
	// Query returns up to k nearest documents ordered by ascending distance
	Query(ctx context.Context, collection string, vector []float32, k int) ([]Hit, error)
	// Get returns every document matching filter
	Get(ctx context.Context, collection string, filter Filter) ([]Hit, error)
	// Delete removes every document matching filter
	Delete(ctx context.Context, collection string, filter Filter) error
}

// MetadataString returns metadata[key] as a string.
func MetadataString(metadata map[string]any, key string) (string, bool) {
	v, ok := metadata[key]
	if !ok || v == nil {
		return "", false
	}
	switch tv := v.(type) {
	case string:
		return tv, tv != ""
	case fmt.Stringer:
		return tv.String(), true
	default:
		return fmt.Sprint(tv), true
	}
}

// MetadataInt returns metadata[key] as an int, accepting the numeric
// representations different backends decode to.
func MetadataInt(metadata map[string]any, key string) (int, bool) {
	v, ok := metadata[key]
	if !ok || v == nil {
		return 0, false
	}
	switch tv := v.(type) {
	case int:
		return tv, true
	case int32:
		return int(tv), true
	case int64:
		return int(tv), true
	case float64:
		if tv != float64(int(tv)) {
			return 0, false
		}
		return int(tv), true
	case string:
		n, err := strconv.Atoi(tv)
		if err != nil {
			return 0, false
		}
		return n, true
	default:
		return 0, false
	}
}

func valuesEqual(a, b any) bool {
	an, aNum := asNumber(a)
	bn, bNum := asNumber(b)
	if aNum || bNum {
		return aNum && bNum && an == bn
	}
	return fmt.Sprint(a) == fmt.Sprint(b)
}

func asNumber(v any) (float64, bool) {
	switch tv := v.(type) {
	case int:
		return float64(tv), true
	case int32:
		return float64(tv), true
	case int64:
		return float64(tv), true
	case float32:
		return float64(tv), true
	case float64:
		return tv, true
	default:
		return 0, false
	}
}

func (f Filter) matches(metadata map[string]any) bool {
	for k, want := range f {
		got, ok := metadata[k]
		if !ok || !valuesEqual(got, want) {
			return false
		}
	}
	return true
}
