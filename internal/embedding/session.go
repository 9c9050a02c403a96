package embedding

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sync"

	"github.com/jonathan/job-tracker/internal/types"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"
)

// Session is a short-lived comparison scope that memoizes text embeddings.
// One session is created per batch or ranking request and shared by every
// engine call in that scope; it is never reused across unrelated requests.
// Safe for concurrent use.
type Session struct {
	provider Provider
	logger   *zap.Logger

	mu       sync.Mutex
	cache    map[string][]float32
	inflight map[string]*pendingEmbed
	hits     int
	misses   int
}

// SessionStats reports cache effectiveness for a session
type SessionStats struct {
	Entries int `json:"entries"`
	Hits    int `json:"hits"`
	Misses  int `json:"misses"`
}

// NewSession creates an empty session backed by provider.
func NewSession(provider Provider, logger *zap.Logger) *Session {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Session{
		provider: provider,
		logger:   logger,
		cache:    make(map[string][]float32),
		inflight: make(map[string]*pendingEmbed),
	}
}

// HashText returns the cache key for text (SHA-256 hex).
func HashText(text string) string {
	sum := sha256.Sum256([]byte(text))
	return hex.EncodeToString(sum[:])
}

// pendingEmbed is a miss owned by one Embed call. done is closed once vec or err is set.
type pendingEmbed struct {
	done chan struct{}
	vec  []float32
	err  error
}

// Embed returns one unit vector per text, in input order.
// Cached texts are served from the session; all misses are sent to the provider
// in a single batched call. A miss already being embedded by a concurrent call
// is awaited rather than sent again. Either every miss embeds or the call fails.
func (s *Session) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return [][]float32{}, nil
	}

	out := make([][]float32, len(texts))
	keys := make([]string, len(texts))

	var missTexts []string
	missIndex := make(map[string]int)
	owned := make(map[string]*pendingEmbed)
	waiting := make(map[string]*pendingEmbed)

	s.mu.Lock()
	for i, text := range texts {
		key := HashText(text)
		keys[i] = key
		if vec, ok := s.cache[key]; ok {
			out[i] = vec
			s.hits++
			continue
		}
		if _, ok := missIndex[key]; ok {
			continue
		}
		if _, ok := waiting[key]; ok {
			continue
		}
		if p, ok := s.inflight[key]; ok {
			waiting[key] = p
			s.hits++
			continue
		}
		p := &pendingEmbed{done: make(chan struct{})}
		s.inflight[key] = p
		owned[key] = p
		missIndex[key] = len(missTexts)
		missTexts = append(missTexts, text)
		s.misses++
	}
	s.mu.Unlock()

	if len(missTexts) > 0 {
		normalized, err := s.embedMisses(ctx, missTexts)
		s.resolve(owned, missIndex, normalized, err)
		if err != nil {
			return nil, err
		}
		for i, key := range keys {
			if idx, ok := missIndex[key]; ok {
				out[i] = normalized[idx]
			}
		}
		s.logger.Debug("embedded texts",
			zap.String("provider", s.provider.Name()),
			zap.Int("requested", len(texts)),
			zap.Int("sent", len(missTexts)))
	}

	if len(waiting) == 0 {
		return out, nil
	}

	// texts whose pending embed failed are retried under this caller's ctx
	var retry []string
	for i, key := range keys {
		p, ok := waiting[key]
		if !ok {
			continue
		}
		select {
		case <-p.done:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
		if p.err != nil {
			retry = append(retry, texts[i])
			continue
		}
		out[i] = p.vec
	}
	if len(retry) == 0 {
		return out, nil
	}

	vecs, err := s.Embed(ctx, retry)
	if err != nil {
		return nil, err
	}
	n := 0
	for i := range out {
		if out[i] == nil {
			out[i] = vecs[n]
			n++
		}
	}
	return out, nil
}

// embedMisses sends one batch to the provider and returns unit vectors in input order.
func (s *Session) embedMisses(ctx context.Context, missTexts []string) ([][]float32, error) {
	ctx, span := otel.Tracer("job-tracker/embedding").Start(ctx, "embedding.batch")
	defer span.End()
	span.SetAttributes(
		attribute.String("embedding.provider", s.provider.Name()),
		attribute.Int("embedding.misses", len(missTexts)),
	)

	vectors, err := s.provider.Embed(ctx, missTexts)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		if types.IsUpstream(err) {
			return nil, err
		}
		return nil, &types.UpstreamError{Service: s.provider.Name(), Message: "embedding request failed", Cause: err}
	}
	if len(vectors) != len(missTexts) {
		err := &types.UpstreamError{
			Service: s.provider.Name(),
			Message: fmt.Sprintf("provider returned %d vectors for %d texts", len(vectors), len(missTexts)),
		}
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	normalized := make([][]float32, len(vectors))
	for i, vec := range vectors {
		unit, ok := Normalize(vec)
		if !ok {
			err := &types.UpstreamError{
				Service: s.provider.Name(),
				Message: fmt.Sprintf("provider returned a zero vector for input %d", i),
			}
			span.SetStatus(codes.Error, err.Error())
			return nil, err
		}
		normalized[i] = unit
	}
	return normalized, nil
}

// resolve publishes the outcome of an owned batch to the cache and to any waiters.
func (s *Session) resolve(owned map[string]*pendingEmbed, missIndex map[string]int, normalized [][]float32, err error) {
	s.mu.Lock()
	for key, p := range owned {
		if err != nil {
			p.err = err
		} else {
			p.vec = normalized[missIndex[key]]
			s.cache[key] = p.vec
		}
		delete(s.inflight, key)
	}
	s.mu.Unlock()

	for _, p := range owned {
		close(p.done)
	}
}

// EmbedOne embeds a single text through the session.
func (s *Session) EmbedOne(ctx context.Context, text string) ([]float32, error) {
	vectors, err := s.Embed(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vectors[0], nil
}

// Stats returns a snapshot of the session's cache counters.
func (s *Session) Stats() SessionStats {
	s.mu.Lock()
	defer s.mu.Unlock()
	return SessionStats{Entries: len(s.cache), Hits: s.hits, Misses: s.misses}
}
