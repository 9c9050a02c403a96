package dedup

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/jonathan/job-tracker/internal/embedding"
	"github.com/jonathan/job-tracker/internal/fuzzy"
	"github.com/jonathan/job-tracker/internal/ingestion"
	"github.com/jonathan/job-tracker/internal/types"
	"github.com/jonathan/job-tracker/internal/vectorindex"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeStore struct {
	listings []types.Listing
	err      error
}

func (s *fakeStore) ListListings(_ context.Context) ([]types.Listing, error) {
	if s.err != nil {
		return nil, s.err
	}
	return append([]types.Listing(nil), s.listings...), nil
}

func (s *fakeStore) GetListingByURL(_ context.Context, url string) (*types.Listing, error) {
	if s.err != nil {
		return nil, s.err
	}
	for i := range s.listings {
		if s.listings[i].URL == url {
			l := s.listings[i]
			return &l, nil
		}
	}
	return nil, nil
}

type failingSearcher struct{}

func (failingSearcher) Query(context.Context, string, []float32, int) ([]vectorindex.Hit, error) {
	return nil, &types.UpstreamError{Service: "qdrant", Message: "search failed"}
}

// harness wires an engine over in-memory ports
type harness struct {
	provider *embedding.MockProvider
	index    *vectorindex.Memory
	store    *fakeStore
	engine   *Engine
}

func newHarness(t *testing.T, cfg Config) *harness {
	t.Helper()
	h := &harness{
		provider: embedding.NewMockProvider(2),
		index:    vectorindex.NewMemory(),
		store:    &fakeStore{},
	}
	h.engine = NewEngine(h.index, h.store, fuzzy.Matcher{}, cfg, nil)
	return h
}

func (h *harness) session() *embedding.Session {
	return embedding.NewSession(h.provider, nil)
}

// pin fixes the embedding of a listing's text
func (h *harness) pin(l types.Listing, vec []float32) {
	h.provider.Set(l.EmbeddingText(), vec)
}

// persist stores a listing and indexes it with vec
func (h *harness) persist(t *testing.T, l types.Listing, vec []float32) {
	t.Helper()
	h.store.listings = append(h.store.listings, l)
	h.pin(l, vec)
	err := h.index.Insert(context.Background(), vectorindex.CollectionListings, []vectorindex.Document{{
		Text:     l.EmbeddingText(),
		Vector:   vec,
		Metadata: map[string]any{vectorindex.KeyListingID: l.ID.String()},
	}})
	require.NoError(t, err)
}

func listing(title, company, description string) types.Listing {
	return types.Listing{
		ID:          uuid.New(),
		URL:         "https://jobs.example.com/" + uuid.NewString(),
		Title:       title,
		Company:     company,
		Description: description,
	}
}

var (
	unit  = []float32{1, 0}
	ortho = []float32{0, 1}
	// cosine with unit is 0.95 and 0.99
	cos95 = []float32{0.95, 0.31224990}
	cos99 = []float32{0.99, 0.14106736}
)

func TestFindDuplicate_NoCorpusNoCalls(t *testing.T) {
	h := newHarness(t, DefaultConfig())
	candidate := listing("Backend Engineer", "Acme", "")

	verdict, err := h.engine.FindDuplicate(context.Background(), h.session(), candidate, nil)
	require.NoError(t, err)
	assert.False(t, verdict.Matched)
	assert.Equal(t, 0, h.provider.Calls())

	verdict, err = h.engine.FindDuplicate(context.Background(), h.session(), candidate, []types.Listing{})
	require.NoError(t, err)
	assert.False(t, verdict.Matched)
	assert.Equal(t, 0, h.provider.Calls())
}

func TestFindDuplicate_SemanticCorpusMatch(t *testing.T) {
	h := newHarness(t, DefaultConfig())
	candidate := listing("Backend Engineer", "Acme", "Go services")
	target := listing("Server Developer", "Acme", "Go microservices")
	h.pin(candidate, unit)
	h.persist(t, target, cos95)

	verdict, err := h.engine.FindDuplicate(context.Background(), h.session(), candidate, nil)
	require.NoError(t, err)
	require.True(t, verdict.Matched)
	assert.Equal(t, target.ID, verdict.Target.ID)
	assert.Equal(t, types.MethodSemantic, verdict.Method)
	assert.InDelta(t, 0.95, verdict.Score, 1e-4)
}

func TestFindDuplicate_BelowThreshold(t *testing.T) {
	h := newHarness(t, DefaultConfig())
	candidate := listing("Backend Engineer", "Acme", "")
	target := listing("Data Scientist", "Acme", "")
	h.pin(candidate, unit)
	h.persist(t, target, []float32{0.8, 0.6})

	verdict, err := h.engine.FindDuplicate(context.Background(), h.session(), candidate, nil)
	require.NoError(t, err)
	assert.False(t, verdict.Matched)
	assert.Nil(t, verdict.Target)
}

func TestFindDuplicate_BatchTakesPrecedence(t *testing.T) {
	h := newHarness(t, DefaultConfig())
	candidate := listing("Backend Engineer", "Acme", "")
	batchTarget := listing("Platform Developer", "Acme", "")
	corpusTarget := listing("Site Reliability Lead", "Acme", "")
	h.pin(candidate, unit)
	h.pin(batchTarget, cos95)
	h.persist(t, corpusTarget, cos99)

	verdict, err := h.engine.FindDuplicate(context.Background(), h.session(), candidate, []types.Listing{batchTarget})
	require.NoError(t, err)
	require.True(t, verdict.Matched)
	assert.Equal(t, batchTarget.ID, verdict.Target.ID)
	assert.InDelta(t, 0.95, verdict.Score, 1e-4)
}

func TestFindDuplicate_BatchMissFallsBackToCorpus(t *testing.T) {
	h := newHarness(t, DefaultConfig())
	candidate := listing("Backend Engineer", "Acme", "")
	batchTarget := listing("Product Designer", "Acme", "")
	corpusTarget := listing("Site Reliability Lead", "Acme", "")
	h.pin(candidate, unit)
	h.pin(batchTarget, ortho)
	h.persist(t, corpusTarget, cos99)

	verdict, err := h.engine.FindDuplicate(context.Background(), h.session(), candidate, []types.Listing{batchTarget})
	require.NoError(t, err)
	require.True(t, verdict.Matched)
	assert.Equal(t, corpusTarget.ID, verdict.Target.ID)
	assert.InDelta(t, 0.99, verdict.Score, 1e-4)
}

func TestFindDuplicate_VetoedBatchFallsThrough(t *testing.T) {
	h := newHarness(t, DefaultConfig())
	candidate := listing("Backend Engineer", "Acme", "")
	batchTarget := listing("Backend Engineer", "ACME", "same role")
	corpusTarget := listing("Platform Developer", "Acme", "")
	h.pin(candidate, unit)
	h.pin(batchTarget, unit)
	h.persist(t, corpusTarget, cos95)

	verdict, err := h.engine.FindDuplicate(context.Background(), h.session(), candidate, []types.Listing{batchTarget})
	require.NoError(t, err)
	require.True(t, verdict.Matched)
	assert.Equal(t, corpusTarget.ID, verdict.Target.ID)
}

func TestFindDuplicate_CompanyVeto(t *testing.T) {
	tests := []struct {
		name             string
		candidateCompany string
		targetCompany    string
		targetVector     []float32
	}{
		{
			name:             "semantic match with different casing",
			candidateCompany: "Acme",
			targetCompany:    "ACME",
			targetVector:     unit,
		},
		{
			name:             "heuristic match with punctuation",
			candidateCompany: "Acme Corp",
			targetCompany:    "Acme Corp.",
			targetVector:     ortho,
		},
		{
			name:             "semantic match with another company",
			candidateCompany: "Acme",
			targetCompany:    "Globex",
			targetVector:     unit,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t, DefaultConfig())
			candidate := listing("Backend Engineer", tt.candidateCompany, "")
			target := listing("Backend Engineer", tt.targetCompany, "")
			h.pin(candidate, unit)
			h.persist(t, target, tt.targetVector)

			verdict, err := h.engine.FindDuplicate(context.Background(), h.session(), candidate, nil)
			require.NoError(t, err)
			assert.False(t, verdict.Matched)
		})
	}
}

func TestFindDuplicate_HeuristicBeatsWeakerSemantic(t *testing.T) {
	h := newHarness(t, DefaultConfig())
	candidate := listing("Backend Engineer", "Acme", "Build APIs")
	target := listing("Backend Engineer", "Acme", "Own the billing platform")
	h.pin(candidate, unit)
	h.persist(t, target, []float32{0.92, 0.39191836})

	verdict, err := h.engine.FindDuplicate(context.Background(), h.session(), candidate, nil)
	require.NoError(t, err)
	require.True(t, verdict.Matched)
	assert.Equal(t, types.MethodHeuristic, verdict.Method)
	assert.InDelta(t, 1.0, verdict.Score, 1e-9)
}

func TestFindDuplicate_TieFavorsSemantic(t *testing.T) {
	h := newHarness(t, DefaultConfig())
	candidate := listing("Backend Engineer", "Acme", "Build APIs")
	target := listing("Backend Engineer", "Acme", "Build HTTP APIs")
	h.pin(candidate, unit)
	h.pin(target, unit)

	verdict, err := h.engine.FindDuplicate(context.Background(), h.session(), candidate, []types.Listing{target})
	require.NoError(t, err)
	require.True(t, verdict.Matched)
	assert.Equal(t, types.MethodSemantic, verdict.Method)
	assert.Equal(t, 1.0, verdict.Score)
}

func TestFindDuplicate_SkipsSelfAndUnknownHits(t *testing.T) {
	h := newHarness(t, DefaultConfig())
	candidate := listing("Backend Engineer", "Acme", "")
	h.persist(t, candidate, unit)

	// indexed but no longer stored
	ghost := listing("Backend Engineer II", "Acme", "")
	require.NoError(t, h.index.Insert(context.Background(), vectorindex.CollectionListings, []vectorindex.Document{{
		Text:     ghost.EmbeddingText(),
		Vector:   unit,
		Metadata: map[string]any{vectorindex.KeyListingID: ghost.ID.String()},
	}}))

	unrelated := listing("Data Scientist", "Globex", "")
	h.persist(t, unrelated, ortho)

	verdict, err := h.engine.FindDuplicate(context.Background(), h.session(), candidate, nil)
	require.NoError(t, err)
	assert.False(t, verdict.Matched)
}

func TestFindDuplicate_UpstreamErrorsPropagate(t *testing.T) {
	t.Run("embedding provider", func(t *testing.T) {
		h := newHarness(t, DefaultConfig())
		h.persist(t, listing("Backend Engineer", "Acme", ""), unit)
		h.provider.FailWith(errors.New("connection reset"))

		_, err := h.engine.FindDuplicate(context.Background(), h.session(), listing("Go Developer", "Acme", ""), nil)
		require.Error(t, err)
		assert.True(t, types.IsUpstream(err))
	})

	t.Run("vector index", func(t *testing.T) {
		provider := embedding.NewMockProvider(2)
		store := &fakeStore{listings: []types.Listing{listing("Backend Engineer", "Acme", "")}}
		engine := NewEngine(failingSearcher{}, store, fuzzy.Matcher{}, DefaultConfig(), nil)

		_, err := engine.FindDuplicate(context.Background(), embedding.NewSession(provider, nil), listing("Go Developer", "Acme", ""), nil)
		require.Error(t, err)
		assert.True(t, types.IsUpstream(err))
	})

	t.Run("record store", func(t *testing.T) {
		h := newHarness(t, DefaultConfig())
		h.store.err = errors.New("database unavailable")

		_, err := h.engine.FindDuplicate(context.Background(), h.session(), listing("Go Developer", "Acme", ""), nil)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "failed to load listing corpus")
	})
}

func TestFindDuplicate_SessionSharedAcrossCalls(t *testing.T) {
	h := newHarness(t, DefaultConfig())
	h.persist(t, listing("Data Scientist", "Globex", ""), ortho)
	candidate := listing("Backend Engineer", "Acme", "")
	h.pin(candidate, unit)
	session := h.session()

	for i := 0; i < 3; i++ {
		_, err := h.engine.FindDuplicate(context.Background(), session, candidate, nil)
		require.NoError(t, err)
	}
	assert.Equal(t, 1, h.provider.Calls())
}

func TestCheckURL(t *testing.T) {
	h := newHarness(t, DefaultConfig())
	stored := listing("Backend Engineer", "Acme", "")
	stored.URL = "https://example.com/jobs/42"
	h.store.listings = append(h.store.listings, stored)

	canonical, found, err := h.engine.CheckURL(context.Background(), "HTTP://www.Example.com/jobs/42/?utm_source=feed#apply")
	require.NoError(t, err)
	assert.Equal(t, "https://example.com/jobs/42", canonical)
	require.NotNil(t, found)
	assert.Equal(t, stored.ID, found.ID)

	canonical, found, err = h.engine.CheckURL(context.Background(), "https://example.com/jobs/43")
	require.NoError(t, err)
	assert.Equal(t, "https://example.com/jobs/43", canonical)
	assert.Nil(t, found)

	_, _, err = h.engine.CheckURL(context.Background(), "not a url")
	assert.ErrorIs(t, err, ingestion.ErrInvalidURL)
}
