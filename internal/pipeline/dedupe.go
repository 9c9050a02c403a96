// Package pipeline runs duplicate detection over a batch of incoming listings.
package pipeline

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/jonathan/job-tracker/internal/embedding"
	"github.com/jonathan/job-tracker/internal/ingestion"
	"github.com/jonathan/job-tracker/internal/logger"
	"github.com/jonathan/job-tracker/internal/types"
)

// ProgressEvent reports the outcome of one listing in a batch
type ProgressEvent struct {
	Index   int               `json:"index"`
	Total   int               `json:"total"`
	Status  types.DraftStatus `json:"status"`
	Message string            `json:"message"`
}

// ProgressCallback is called once per listing as its draft is decided
type ProgressCallback func(event ProgressEvent)

// DuplicateFinder is the content-dedup port
type DuplicateFinder interface {
	FindDuplicate(ctx context.Context, session *embedding.Session, candidate types.Listing, batchTargets []types.Listing) (types.MatchVerdict, error)
}

// URLStore resolves persisted listings by canonical URL
type URLStore interface {
	GetListingsByURLs(ctx context.Context, urls []string) ([]types.Listing, error)
}

// Options holds configuration for a Deduplicator
type Options struct {
	Concurrency int
	OnProgress  ProgressCallback
}

// Deduplicator turns a batch of listings into drafts annotated with their dedup outcome
type Deduplicator struct {
	finder   DuplicateFinder
	urls     URLStore
	provider embedding.Provider
	opts     Options
	logger   *zap.Logger
	tracer   trace.Tracer

	progressMu sync.Mutex
}

// NewDeduplicator creates a batch deduplicator. Each Run gets a fresh embedding session over provider.
func NewDeduplicator(finder DuplicateFinder, urls URLStore, provider embedding.Provider, opts Options, log *zap.Logger) *Deduplicator {
	if log == nil {
		log = zap.NewNop()
	}
	if opts.Concurrency <= 0 {
		opts.Concurrency = 1
	}
	return &Deduplicator{
		finder:   finder,
		urls:     urls,
		provider: provider,
		opts:     opts,
		logger:   log,
		tracer:   otel.Tracer("job-tracker/pipeline"),
	}
}

// emitProgress calls the progress callback if configured
func (d *Deduplicator) emitProgress(index, total int, status types.DraftStatus, message string) {
	if d.opts.OnProgress == nil {
		return
	}
	d.progressMu.Lock()
	defer d.progressMu.Unlock()
	d.opts.OnProgress(ProgressEvent{Index: index, Total: total, Status: status, Message: message})
}

// Run returns one draft per input listing, in input order.
//
// URLs are canonicalized first; a listing whose canonical URL is already stored
// or appeared earlier in the batch is a URL duplicate. The rest go through the
// content check with the listings before them in the batch as in-batch targets.
// A failure on one listing marks only that draft failed. The returned error is
// set when the URL lookup fails or ctx is cancelled.
func (d *Deduplicator) Run(ctx context.Context, listings []types.Listing) ([]types.ListingDraft, error) {
	return d.RunWithSession(ctx, embedding.NewSession(d.provider, d.logger), listings)
}

// RunWithSession is Run with a caller-owned embedding session.
func (d *Deduplicator) RunWithSession(ctx context.Context, session *embedding.Session, listings []types.Listing) ([]types.ListingDraft, error) {
	ctx, span := d.tracer.Start(ctx, "pipeline.dedupe")
	defer span.End()
	span.SetAttributes(attribute.Int("pipeline.listings", len(listings)))

	drafts, err := d.run(ctx, session, listings)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return drafts, err
	}
	return drafts, nil
}

func (d *Deduplicator) run(ctx context.Context, session *embedding.Session, listings []types.Listing) ([]types.ListingDraft, error) {
	total := len(listings)
	drafts := make([]types.ListingDraft, total)
	pending := make([]bool, total)

	// Step 1: canonicalize and validate
	var urls []string
	for i := range listings {
		listing := listings[i]
		if listing.ID == uuid.Nil {
			listing.ID = uuid.New()
		}
		drafts[i] = types.ListingDraft{ID: listing.ID, URL: listing.URL, Listing: &listing}

		canonical, err := ingestion.NormalizeURL(listing.URL)
		if err != nil {
			d.fail(&drafts[i], i, total, err)
			continue
		}
		listing.URL = canonical
		drafts[i].URL = canonical

		if err := listing.Validate(); err != nil {
			d.fail(&drafts[i], i, total, fmt.Errorf("invalid listing: %w", err))
			continue
		}
		pending[i] = true
		urls = append(urls, canonical)
	}

	// Step 2: exact URL duplicates against the store and earlier batch entries
	stored := map[string]types.Listing{}
	if len(urls) > 0 {
		existing, err := d.urls.GetListingsByURLs(ctx, urls)
		if err != nil {
			return drafts, fmt.Errorf("failed to look up listing URLs: %w", err)
		}
		for _, l := range existing {
			stored[l.URL] = l
		}
	}

	seen := map[string]*types.Listing{}
	var contentIdx []int
	for i := range drafts {
		if !pending[i] {
			continue
		}
		url := drafts[i].URL
		if match, ok := stored[url]; ok {
			d.markURLDuplicate(&drafts[i], &match, i, total)
			continue
		}
		if earlier, ok := seen[url]; ok {
			d.markURLDuplicate(&drafts[i], earlier, i, total)
			continue
		}
		seen[url] = drafts[i].Listing
		contentIdx = append(contentIdx, i)
	}

	// Step 3: content check, bounded concurrency
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(d.opts.Concurrency)

	for n, i := range contentIdx {
		batch := make([]types.Listing, 0, n)
		for _, j := range contentIdx[:n] {
			batch = append(batch, *drafts[j].Listing)
		}
		candidate := *drafts[i].Listing

		g.Go(func() error {
			verdict, err := d.finder.FindDuplicate(gctx, session, candidate, batch)
			if err != nil {
				d.fail(&drafts[i], i, total, err)
				return nil
			}
			if !verdict.Matched {
				drafts[i].Status = types.DraftUnique
				d.emitProgress(i, total, types.DraftUnique, candidate.Title)
				return nil
			}
			drafts[i].Status = types.DraftDuplicateSemantic
			drafts[i].DuplicateOf = verdict.Target
			drafts[i].Score = verdict.Score
			drafts[i].Method = verdict.Method
			d.emitProgress(i, total, types.DraftDuplicateSemantic,
				fmt.Sprintf("%s duplicates %s (%s %.2f)", candidate.Title, verdict.Target.ID, verdict.Method, verdict.Score))
			return nil
		})
	}
	_ = g.Wait()

	stats := session.Stats()
	d.logger.Debug("batch dedup complete",
		zap.Int("listings", total),
		zap.Int("content_checked", len(contentIdx)),
		zap.Int("embedding_cache_entries", stats.Entries),
		zap.Int("embedding_cache_hits", stats.Hits))

	if err := ctx.Err(); err != nil {
		return drafts, err
	}
	return drafts, nil
}

func (d *Deduplicator) fail(draft *types.ListingDraft, index, total int, err error) {
	draft.Status = types.DraftFailed
	draft.Error = err.Error()
	d.logger.Warn("listing dedup failed",
		zap.Int("index", index),
		zap.String("url", logger.Truncate(draft.URL, 200)),
		zap.Error(err))
	d.emitProgress(index, total, types.DraftFailed, err.Error())
}

func (d *Deduplicator) markURLDuplicate(draft *types.ListingDraft, of *types.Listing, index, total int) {
	draft.Status = types.DraftDuplicateURL
	draft.DuplicateOf = of
	d.emitProgress(index, total, types.DraftDuplicateURL, fmt.Sprintf("%s already known", draft.URL))
}
