// Package dedup decides whether a candidate listing is the same opportunity as
// one already seen, combining embedding similarity with fuzzy title/company
// matching and a hard same-company rule.
package dedup

import (
	"context"
	"fmt"
	"sort"

	"github.com/google/uuid"
	"github.com/jonathan/job-tracker/internal/embedding"
	"github.com/jonathan/job-tracker/internal/ingestion"
	"github.com/jonathan/job-tracker/internal/logger"
	"github.com/jonathan/job-tracker/internal/types"
	"github.com/jonathan/job-tracker/internal/vectorindex"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

// Searcher is the similarity-search port over the listings collection
type Searcher interface {
	Query(ctx context.Context, collection string, vector []float32, k int) ([]vectorindex.Hit, error)
}

// Matcher is the fuzzy-match port
type Matcher interface {
	Similarity(a, b string) float64
}

// ListingStore is the read-only view of persisted listings
type ListingStore interface {
	ListListings(ctx context.Context) ([]types.Listing, error)
	GetListingByURL(ctx context.Context, url string) (*types.Listing, error)
}

// Config holds the thresholds for one comparison
type Config struct {
	SemanticThreshold float64
	TitleThreshold    float64
	CompanyThreshold  float64
	SearchK           int
}

// DefaultConfig returns the standard thresholds
func DefaultConfig() Config {
	return Config{
		SemanticThreshold: 0.90,
		TitleThreshold:    0.85,
		CompanyThreshold:  0.90,
		SearchK:           5,
	}
}

// Engine produces one duplicate verdict per candidate listing.
// It never writes to the store or the index.
type Engine struct {
	searcher Searcher
	store    ListingStore
	matcher  Matcher
	cfg      Config
	logger   *zap.Logger
	tracer   trace.Tracer
}

// NewEngine wires an engine from its ports. A nil logger disables logging.
func NewEngine(searcher Searcher, store ListingStore, matcher Matcher, cfg Config, log *zap.Logger) *Engine {
	if log == nil {
		log = zap.NewNop()
	}
	if cfg.SearchK <= 0 {
		cfg.SearchK = DefaultConfig().SearchK
	}
	return &Engine{
		searcher: searcher,
		store:    store,
		matcher:  matcher,
		cfg:      cfg,
		logger:   log,
		tracer:   otel.Tracer("job-tracker/dedup"),
	}
}

// match is a scored comparison target before the company rule is applied
type match struct {
	target types.Listing
	score  float64
	method types.MatchMethod
}

// FindDuplicate checks candidate against batchTargets first (when non-nil),
// then against the persisted corpus. The first scope that yields a match wins.
// Embedding and index failures are returned unretried.
func (e *Engine) FindDuplicate(ctx context.Context, session *embedding.Session, candidate types.Listing, batchTargets []types.Listing) (types.MatchVerdict, error) {
	ctx, span := e.tracer.Start(ctx, "dedup.find_duplicate")
	defer span.End()

	verdict, err := e.findDuplicate(ctx, session, candidate, batchTargets)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return types.NoMatch(), err
	}

	span.SetAttributes(
		attribute.Bool("dedup.matched", verdict.Matched),
		attribute.String("dedup.method", string(verdict.Method)),
		attribute.Float64("dedup.score", verdict.Score),
	)
	return verdict, nil
}

func (e *Engine) findDuplicate(ctx context.Context, session *embedding.Session, candidate types.Listing, batchTargets []types.Listing) (types.MatchVerdict, error) {
	if batchTargets != nil {
		verdict, err := e.compareBatch(ctx, session, candidate, batchTargets)
		if err != nil {
			return types.NoMatch(), err
		}
		if verdict.Matched {
			e.logVerdict("batch", candidate, verdict)
			return verdict, nil
		}
	}

	verdict, err := e.compareCorpus(ctx, session, candidate)
	if err != nil {
		return types.NoMatch(), err
	}
	if verdict.Matched {
		e.logVerdict("corpus", candidate, verdict)
	}
	return verdict, nil
}

// compareBatch embeds the candidate and every target through the session and
// compares them directly; unit vectors make the dot product the cosine.
func (e *Engine) compareBatch(ctx context.Context, session *embedding.Session, candidate types.Listing, targets []types.Listing) (types.MatchVerdict, error) {
	targets = excludeSelf(candidate, targets)
	if len(targets) == 0 {
		return types.NoMatch(), nil
	}

	texts := make([]string, 0, len(targets)+1)
	texts = append(texts, candidate.EmbeddingText())
	for i := range targets {
		texts = append(texts, targets[i].EmbeddingText())
	}

	vectors, err := session.Embed(ctx, texts)
	if err != nil {
		return types.NoMatch(), fmt.Errorf("failed to embed batch: %w", err)
	}

	var semantic []match
	for i, target := range targets {
		sim := embedding.Dot(vectors[0], vectors[i+1])
		if sim >= e.cfg.SemanticThreshold {
			semantic = append(semantic, match{target: target, score: sim, method: types.MethodSemantic})
		}
	}

	return e.decide(candidate, top(semantic), e.heuristic(candidate, targets)), nil
}

// compareCorpus queries the listings collection and fuzzy-matches every stored listing.
func (e *Engine) compareCorpus(ctx context.Context, session *embedding.Session, candidate types.Listing) (types.MatchVerdict, error) {
	corpus, err := e.store.ListListings(ctx)
	if err != nil {
		return types.NoMatch(), fmt.Errorf("failed to load listing corpus: %w", err)
	}
	corpus = excludeSelf(candidate, corpus)
	if len(corpus) == 0 {
		return types.NoMatch(), nil
	}

	byID := make(map[uuid.UUID]types.Listing, len(corpus))
	for _, l := range corpus {
		byID[l.ID] = l
	}

	vector, err := session.EmbedOne(ctx, candidate.EmbeddingText())
	if err != nil {
		return types.NoMatch(), fmt.Errorf("failed to embed candidate: %w", err)
	}

	hits, err := e.searcher.Query(ctx, vectorindex.CollectionListings, vector, e.cfg.SearchK)
	if err != nil {
		return types.NoMatch(), fmt.Errorf("failed to query listings index: %w", err)
	}

	var semantic []match
	for _, hit := range hits {
		sim := hit.Similarity()
		if sim < e.cfg.SemanticThreshold {
			continue
		}
		idStr, ok := vectorindex.MetadataString(hit.Metadata, vectorindex.KeyListingID)
		if !ok {
			continue
		}
		id, err := uuid.Parse(idStr)
		if err != nil {
			continue
		}
		target, ok := byID[id]
		if !ok {
			// index entry without a live record
			continue
		}
		semantic = append(semantic, match{target: target, score: sim, method: types.MethodSemantic})
	}

	return e.decide(candidate, top(semantic), e.heuristic(candidate, corpus)), nil
}

// heuristic returns the best target whose title and company both clear their thresholds.
func (e *Engine) heuristic(candidate types.Listing, targets []types.Listing) *match {
	var found []match
	for _, target := range targets {
		titleSim := e.matcher.Similarity(candidate.Title, target.Title)
		if titleSim < e.cfg.TitleThreshold {
			continue
		}
		companySim := e.matcher.Similarity(candidate.Company, target.Company)
		if companySim < e.cfg.CompanyThreshold {
			continue
		}
		found = append(found, match{
			target: target,
			score:  (titleSim + companySim) / 2,
			method: types.MethodHeuristic,
		})
	}
	return top(found)
}

// decide picks the higher-scoring pass (semantic wins ties) and applies the
// company rule: different companies are never the same opportunity.
func (e *Engine) decide(candidate types.Listing, semantic, heuristic *match) types.MatchVerdict {
	best := semantic
	if best == nil || (heuristic != nil && heuristic.score > best.score) {
		best = heuristic
	}
	if best == nil {
		return types.NoMatch()
	}

	if best.target.Company != candidate.Company {
		e.logger.Debug("duplicate vetoed: company differs",
			zap.String("candidate_company", candidate.Company),
			zap.String("target_company", best.target.Company),
			zap.String("method", string(best.method)),
			zap.Float64("score", best.score))
		return types.NoMatch()
	}

	target := best.target
	return types.MatchVerdict{
		Matched: true,
		Target:  &target,
		Score:   best.score,
		Method:  best.method,
	}
}

// CheckURL canonicalizes rawURL and returns the canonical form with the stored
// listing at that URL, or a nil listing when none exists.
func (e *Engine) CheckURL(ctx context.Context, rawURL string) (string, *types.Listing, error) {
	canonical, err := ingestion.NormalizeURL(rawURL)
	if err != nil {
		return "", nil, err
	}
	existing, err := e.store.GetListingByURL(ctx, canonical)
	if err != nil {
		return canonical, nil, fmt.Errorf("failed to look up listing by URL: %w", err)
	}
	return canonical, existing, nil
}

func (e *Engine) logVerdict(scope string, candidate types.Listing, v types.MatchVerdict) {
	e.logger.Debug("duplicate found",
		zap.String("scope", scope),
		zap.String("candidate", logger.Truncate(candidate.Title, 80)),
		zap.String("company", logger.Truncate(candidate.Company, 80)),
		zap.Stringer("target_id", v.Target.ID),
		zap.String("method", string(v.Method)),
		zap.Float64("score", v.Score))
}

// top returns the highest-scoring match, keeping the earliest on ties.
func top(matches []match) *match {
	if len(matches) == 0 {
		return nil
	}
	sort.SliceStable(matches, func(i, j int) bool {
		return matches[i].score > matches[j].score
	})
	return &matches[0]
}

func excludeSelf(candidate types.Listing, targets []types.Listing) []types.Listing {
	if candidate.ID == uuid.Nil {
		return targets
	}
	out := make([]types.Listing, 0, len(targets))
	for _, t := range targets {
		if t.ID != candidate.ID {
			out = append(out, t)
		}
	}
	return out
}
