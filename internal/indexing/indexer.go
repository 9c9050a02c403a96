// Package indexing keeps the vector index in step with stored listings and experiences.
package indexing

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jonathan/job-tracker/internal/embedding"
	"github.com/jonathan/job-tracker/internal/types"
	"github.com/jonathan/job-tracker/internal/vectorindex"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// Indexer writes listing and bullet documents to the vector index
type Indexer struct {
	index  vectorindex.Index
	logger *zap.Logger
	tracer trace.Tracer
}

// Stats summarizes a bulk reindex
type Stats struct {
	Listings    int `json:"listings"`
	Experiences int `json:"experiences"`
	Bullets     int `json:"bullets"`
}

// NewIndexer creates an indexer over index
func NewIndexer(index vectorindex.Index, logger *zap.Logger) *Indexer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Indexer{
		index:  index,
		logger: logger,
		tracer: otel.Tracer("job-tracker/indexing"),
	}
}

// documentID derives a stable point id so re-indexing overwrites rather than duplicates
func documentID(parts ...any) string {
	return uuid.NewSHA1(uuid.NameSpaceOID, []byte(fmt.Sprint(parts...))).String()
}

// IndexListing replaces the listing's document in the listings collection.
func (ix *Indexer) IndexListing(ctx context.Context, session *embedding.Session, listing types.Listing) error {
	if listing.ID == uuid.Nil {
		return fmt.Errorf("listing has no id")
	}

	text := listing.EmbeddingText()
	vector, err := session.EmbedOne(ctx, text)
	if err != nil {
		return fmt.Errorf("failed to embed listing %s: %w", listing.ID, err)
	}

	if err := ix.RemoveListing(ctx, listing.ID); err != nil {
		return err
	}

	doc := vectorindex.Document{
		ID:       documentID("listing/", listing.ID),
		Text:     text,
		Vector:   vector,
		Metadata: map[string]any{vectorindex.KeyListingID: listing.ID.String()},
	}
	if err := ix.index.Insert(ctx, vectorindex.CollectionListings, []vectorindex.Document{doc}); err != nil {
		return fmt.Errorf("failed to index listing %s: %w", listing.ID, err)
	}

	ix.logger.Debug("indexed listing", zap.Stringer("listing_id", listing.ID))
	return nil
}

// IndexExperience replaces every bullet document of the experience.
func (ix *Indexer) IndexExperience(ctx context.Context, session *embedding.Session, exp types.Experience) (int, error) {
	if exp.ID == uuid.Nil {
		return 0, fmt.Errorf("experience has no id")
	}

	texts := make([]string, len(exp.Bullets))
	for i := range exp.Bullets {
		texts[i] = exp.BulletEmbeddingText(i)
	}

	vectors, err := session.Embed(ctx, texts)
	if err != nil {
		return 0, fmt.Errorf("failed to embed bullets of experience %s: %w", exp.ID, err)
	}

	if err := ix.RemoveExperience(ctx, exp.ID); err != nil {
		return 0, err
	}
	if len(texts) == 0 {
		return 0, nil
	}

	docs := make([]vectorindex.Document, len(texts))
	for i, text := range texts {
		docs[i] = vectorindex.Document{
			ID:     documentID("experience/", exp.ID, "/", i),
			Text:   text,
			Vector: vectors[i],
			Metadata: map[string]any{
				vectorindex.KeyExperienceID: exp.ID.String(),
				vectorindex.KeyBulletIndex:  i,
			},
		}
	}
	if err := ix.index.Insert(ctx, vectorindex.CollectionExperienceBullets, docs); err != nil {
		return 0, fmt.Errorf("failed to index experience %s: %w", exp.ID, err)
	}

	ix.logger.Debug("indexed experience",
		zap.Stringer("experience_id", exp.ID),
		zap.Int("bullets", len(docs)))
	return len(docs), nil
}

// RemoveListing deletes the listing's document.
func (ix *Indexer) RemoveListing(ctx context.Context, id uuid.UUID) error {
	filter := vectorindex.Filter{vectorindex.KeyListingID: id.String()}
	if err := ix.index.Delete(ctx, vectorindex.CollectionListings, filter); err != nil {
		return fmt.Errorf("failed to remove listing %s from index: %w", id, err)
	}
	return nil
}

// RemoveExperience deletes every bullet document of the experience.
func (ix *Indexer) RemoveExperience(ctx context.Context, id uuid.UUID) error {
	filter := vectorindex.Filter{vectorindex.KeyExperienceID: id.String()}
	if err := ix.index.Delete(ctx, vectorindex.CollectionExperienceBullets, filter); err != nil {
		return fmt.Errorf("failed to remove experience %s from index: %w", id, err)
	}
	return nil
}

// Reindex rebuilds the documents of every given listing and experience,
// running up to concurrency items at once. The first failure cancels the rest.
func (ix *Indexer) Reindex(ctx context.Context, session *embedding.Session, listings []types.Listing, experiences []types.Experience, concurrency int) (Stats, error) {
	ctx, span := ix.tracer.Start(ctx, "indexing.reindex")
	defer span.End()

	if concurrency <= 0 {
		concurrency = 1
	}

	bullets := make([]int, len(experiences))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(concurrency)

	for _, listing := range listings {
		g.Go(func() error {
			return ix.IndexListing(gctx, session, listing)
		})
	}
	for i, exp := range experiences {
		g.Go(func() error {
			n, err := ix.IndexExperience(gctx, session, exp)
			bullets[i] = n
			return err
		})
	}

	if err := g.Wait(); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return Stats{}, err
	}

	stats := Stats{Listings: len(listings), Experiences: len(experiences)}
	for _, n := range bullets {
		stats.Bullets += n
	}
	ix.logger.Info("reindex complete",
		zap.Int("listings", stats.Listings),
		zap.Int("experiences", stats.Experiences),
		zap.Int("bullets", stats.Bullets))
	return stats, nil
}
