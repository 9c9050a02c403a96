package pipeline

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jonathan/job-tracker/internal/dedup"
	"github.com/jonathan/job-tracker/internal/embedding"
	"github.com/jonathan/job-tracker/internal/fuzzy"
	"github.com/jonathan/job-tracker/internal/types"
	"github.com/jonathan/job-tracker/internal/vectorindex"
)

type memoryStore struct {
	listings []types.Listing
	urlErr   error
}

func (s *memoryStore) ListListings(_ context.Context) ([]types.Listing, error) {
	return append([]types.Listing(nil), s.listings...), nil
}

func (s *memoryStore) GetListingByURL(_ context.Context, url string) (*types.Listing, error) {
	for i := range s.listings {
		if s.listings[i].URL == url {
			l := s.listings[i]
			return &l, nil
		}
	}
	return nil, nil
}

func (s *memoryStore) GetListingsByURLs(_ context.Context, urls []string) ([]types.Listing, error) {
	if s.urlErr != nil {
		return nil, s.urlErr
	}
	want := map[string]bool{}
	for _, u := range urls {
		want[u] = true
	}
	var out []types.Listing
	for _, l := range s.listings {
		if want[l.URL] {
			out = append(out, l)
		}
	}
	return out, nil
}

// selectiveFinder fails for candidates whose title contains "boom"
type selectiveFinder struct {
	mu      sync.Mutex
	batches map[string][]types.Listing
}

func (f *selectiveFinder) FindDuplicate(_ context.Context, _ *embedding.Session, candidate types.Listing, batch []types.Listing) (types.MatchVerdict, error) {
	f.mu.Lock()
	if f.batches == nil {
		f.batches = map[string][]types.Listing{}
	}
	f.batches[candidate.Title] = batch
	f.mu.Unlock()

	if strings.Contains(candidate.Title, "boom") {
		return types.NoMatch(), &types.UpstreamError{Service: "mock", Message: "embedding failed"}
	}
	return types.NoMatch(), nil
}

func newListing(url, title, company string) types.Listing {
	return types.Listing{URL: url, Title: title, Company: company}
}

func TestRun_URLChecks(t *testing.T) {
	stored := types.Listing{ID: uuid.New(), URL: "https://example.com/jobs/1", Title: "Backend Engineer", Company: "Acme"}
	store := &memoryStore{listings: []types.Listing{stored}}
	finder := &selectiveFinder{}
	d := NewDeduplicator(finder, store, embedding.NewMockProvider(4), Options{Concurrency: 2}, nil)

	drafts, err := d.Run(context.Background(), []types.Listing{
		newListing("http://www.example.com/jobs/1/?utm_source=board", "Backend Engineer", "Acme"),
		newListing("https://example.com/jobs/2", "Data Engineer", "Acme"),
		newListing("https://EXAMPLE.com/jobs/2#apply", "Data Engineer", "Acme"),
		newListing("mailto:jobs@example.com", "Recruiter", "Acme"),
	})
	require.NoError(t, err)
	require.Len(t, drafts, 4)

	assert.Equal(t, types.DraftDuplicateURL, drafts[0].Status)
	assert.Equal(t, "https://example.com/jobs/1", drafts[0].URL)
	require.NotNil(t, drafts[0].DuplicateOf)
	assert.Equal(t, stored.ID, drafts[0].DuplicateOf.ID)

	assert.Equal(t, types.DraftUnique, drafts[1].Status)

	assert.Equal(t, types.DraftDuplicateURL, drafts[2].Status)
	require.NotNil(t, drafts[2].DuplicateOf)
	assert.Equal(t, drafts[1].ID, drafts[2].DuplicateOf.ID)

	assert.Equal(t, types.DraftFailed, drafts[3].Status)
	assert.Contains(t, drafts[3].Error, "invalid URL")

	for _, draft := range drafts {
		assert.NotEqual(t, uuid.Nil, draft.ID)
	}
}

func TestRun_PrecedingListingsAreBatchTargets(t *testing.T) {
	finder := &selectiveFinder{}
	d := NewDeduplicator(finder, &memoryStore{}, embedding.NewMockProvider(4), Options{Concurrency: 3}, nil)

	_, err := d.Run(context.Background(), []types.Listing{
		newListing("https://a.example.com/1", "first", "Acme"),
		newListing("https://a.example.com/2", "second", "Acme"),
		newListing("https://a.example.com/3", "third", "Acme"),
	})
	require.NoError(t, err)

	require.NotNil(t, finder.batches["first"])
	assert.Empty(t, finder.batches["first"])
	require.Len(t, finder.batches["second"], 1)
	assert.Equal(t, "first", finder.batches["second"][0].Title)
	require.Len(t, finder.batches["third"], 2)
	assert.Equal(t, "second", finder.batches["third"][1].Title)
}

func TestRun_FailuresAreIsolated(t *testing.T) {
	var events []ProgressEvent
	finder := &selectiveFinder{}
	d := NewDeduplicator(finder, &memoryStore{}, embedding.NewMockProvider(4), Options{
		Concurrency: 4,
		OnProgress:  func(e ProgressEvent) { events = append(events, e) },
	}, nil)

	drafts, err := d.Run(context.Background(), []types.Listing{
		newListing("https://a.example.com/1", "ok one", "Acme"),
		newListing("https://a.example.com/2", "boom", "Acme"),
		newListing("https://a.example.com/3", "ok two", "Acme"),
		newListing("https://a.example.com/4", "", "Acme"),
	})
	require.NoError(t, err)

	assert.Equal(t, types.DraftUnique, drafts[0].Status)
	assert.Equal(t, types.DraftFailed, drafts[1].Status)
	assert.Contains(t, drafts[1].Error, "embedding failed")
	assert.Equal(t, types.DraftUnique, drafts[2].Status)
	assert.Equal(t, types.DraftFailed, drafts[3].Status)
	assert.Contains(t, drafts[3].Error, "invalid listing")

	assert.Len(t, events, 4)
	for _, e := range events {
		assert.Equal(t, 4, e.Total)
	}
}

func TestRun_URLLookupFailure(t *testing.T) {
	store := &memoryStore{urlErr: errors.New("connection refused")}
	d := NewDeduplicator(&selectiveFinder{}, store, embedding.NewMockProvider(4), Options{}, nil)

	_, err := d.Run(context.Background(), []types.Listing{
		newListing("https://a.example.com/1", "Backend Engineer", "Acme"),
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to look up listing URLs")
}

func TestRun_EmptyBatch(t *testing.T) {
	d := NewDeduplicator(&selectiveFinder{}, &memoryStore{}, embedding.NewMockProvider(4), Options{}, nil)

	drafts, err := d.Run(context.Background(), nil)
	require.NoError(t, err)
	assert.Empty(t, drafts)
}

func TestRun_SemanticDuplicateWithinBatch(t *testing.T) {
	provider := embedding.NewMockProvider(2)
	first := newListing("https://jobs.acme.com/101", "Backend Engineer", "Acme")
	first.Description = "Build Go services"
	second := newListing("https://boards.example.com/acme-backend", "Backend Engineer (Go)", "Acme")
	second.Description = "Build services in Go"
	other := newListing("https://jobs.globex.com/7", "Product Designer", "Globex")
	provider.Set(first.EmbeddingText(), []float32{1, 0})
	provider.Set(second.EmbeddingText(), []float32{0.97, 0.2431})
	provider.Set(other.EmbeddingText(), []float32{0, 1})

	store := &memoryStore{}
	engine := dedup.NewEngine(vectorindex.NewMemory(), store, fuzzy.Matcher{}, dedup.DefaultConfig(), nil)
	d := NewDeduplicator(engine, store, provider, Options{Concurrency: 2}, nil)

	drafts, err := d.Run(context.Background(), []types.Listing{first, second, other})
	require.NoError(t, err)

	assert.Equal(t, types.DraftUnique, drafts[0].Status)
	assert.Equal(t, types.DraftDuplicateSemantic, drafts[1].Status)
	require.NotNil(t, drafts[1].DuplicateOf)
	assert.Equal(t, drafts[0].ID, drafts[1].DuplicateOf.ID)
	assert.Equal(t, types.MethodSemantic, drafts[1].Method)
	assert.InDelta(t, 0.97, drafts[1].Score, 1e-3)
	assert.Equal(t, types.DraftUnique, drafts[2].Status)
	assert.True(t, drafts[1].IsDuplicate())
}

// slowProvider delays every call so concurrent workers overlap on the same texts
type slowProvider struct {
	*embedding.MockProvider
	delay time.Duration
}

func (p slowProvider) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	time.Sleep(p.delay)
	return p.MockProvider.Embed(ctx, texts)
}

func TestRun_EmbedsEachTextOnce(t *testing.T) {
	mock := embedding.NewMockProvider(16)
	provider := slowProvider{MockProvider: mock, delay: 20 * time.Millisecond}

	listings := []types.Listing{
		newListing("https://jobs.acme.com/1", "Backend Engineer", "Acme"),
		newListing("https://jobs.globex.com/2", "Product Designer", "Globex"),
		newListing("https://jobs.initech.com/3", "Data Analyst", "Initech"),
		newListing("https://jobs.umbrella.com/4", "Site Reliability Engineer", "Umbrella"),
		newListing("https://jobs.hooli.com/5", "Mobile Developer", "Hooli"),
		newListing("https://jobs.stark.com/6", "Security Engineer", "Stark"),
	}

	store := &memoryStore{}
	engine := dedup.NewEngine(vectorindex.NewMemory(), store, fuzzy.Matcher{}, dedup.DefaultConfig(), nil)
	d := NewDeduplicator(engine, store, provider, Options{Concurrency: 4}, nil)

	drafts, err := d.Run(context.Background(), listings)
	require.NoError(t, err)
	require.Len(t, drafts, len(listings))

	sent := map[string]int{}
	for _, text := range mock.Texts() {
		sent[text]++
	}
	assert.Len(t, sent, len(listings))
	for text, n := range sent {
		assert.Equal(t, 1, n, "embedded more than once: %q", text)
	}
}

func TestRun_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	d := NewDeduplicator(&selectiveFinder{}, &memoryStore{}, embedding.NewMockProvider(4), Options{}, nil)

	_, err := d.Run(ctx, []types.Listing{newListing("https://a.example.com/1", "Backend Engineer", "Acme")})
	assert.ErrorIs(t, err, context.Canceled)
}
