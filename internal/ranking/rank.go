// Package ranking selects the experiences and bullets most relevant to a job listing.
package ranking

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jonathan/job-tracker/internal/embedding"
	"github.com/jonathan/job-tracker/internal/types"
	"github.com/jonathan/job-tracker/internal/vectorindex"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// Searcher is the similarity-search port over the experience bullets collection
type Searcher interface {
	Query(ctx context.Context, collection string, vector []float32, k int) ([]vectorindex.Hit, error)
}

// ExperienceStore resolves experience records; a missing experience returns nil, nil
type ExperienceStore interface {
	GetExperience(ctx context.Context, id uuid.UUID) (*types.Experience, error)
}

// Config holds the ranking defaults
type Config struct {
	TopK       int
	MaxBullets int
	SearchK    int
}

// DefaultConfig returns the standard ranking limits
func DefaultConfig() Config {
	return Config{TopK: 3, MaxBullets: 4, SearchK: 5}
}

// Engine ranks stored experiences against listing requirements
type Engine struct {
	searcher Searcher
	store    ExperienceStore
	cfg      Config
	logger   *zap.Logger
	tracer   trace.Tracer
}

// NewEngine creates a ranking engine. Zero config fields take the defaults.
func NewEngine(searcher Searcher, store ExperienceStore, cfg Config, logger *zap.Logger) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	def := DefaultConfig()
	if cfg.TopK <= 0 {
		cfg.TopK = def.TopK
	}
	if cfg.MaxBullets <= 0 {
		cfg.MaxBullets = def.MaxBullets
	}
	if cfg.SearchK <= 0 {
		cfg.SearchK = def.SearchK
	}
	return &Engine{
		searcher: searcher,
		store:    store,
		cfg:      cfg,
		logger:   logger,
		tracer:   otel.Tracer("job-tracker/ranking"),
	}
}

// QueryText is the text embedded for one requirement of a listing with the given title
func QueryText(title, requirement string) string {
	return fmt.Sprintf("Role: %s\nAchievement: %s", title, requirement)
}

// RankExperiences returns up to topK experiences, most relevant first, each
// carrying at most maxBullets of its best-matching bullets. topK and maxBullets
// values <= 0 use the configured defaults.
func (e *Engine) RankExperiences(ctx context.Context, session *embedding.Session, requirements []string, title string, topK, maxBullets int) ([]types.Experience, error) {
	if len(requirements) == 0 {
		return []types.Experience{}, nil
	}
	if topK <= 0 {
		topK = e.cfg.TopK
	}
	if maxBullets <= 0 {
		maxBullets = e.cfg.MaxBullets
	}

	ctx, span := e.tracer.Start(ctx, "ranking.rank_experiences")
	defer span.End()
	span.SetAttributes(
		attribute.Int("ranking.requirements", len(requirements)),
		attribute.Int("ranking.top_k", topK),
		attribute.Int("ranking.max_bullets", maxBullets),
	)

	result, err := e.rank(ctx, session, requirements, title, topK, maxBullets)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	span.SetAttributes(attribute.Int("ranking.selected", len(result)))
	return result, nil
}

func (e *Engine) rank(ctx context.Context, session *embedding.Session, requirements []string, title string, topK, maxBullets int) ([]types.Experience, error) {
	queries := make([]string, len(requirements))
	for i, req := range requirements {
		queries[i] = QueryText(title, req)
	}

	vectors, err := session.Embed(ctx, queries)
	if err != nil {
		return nil, fmt.Errorf("failed to embed requirements: %w", err)
	}

	results := make([][]vectorindex.Hit, len(vectors))
	g, gctx := errgroup.WithContext(ctx)
	for i := range vectors {
		g.Go(func() error {
			hits, err := e.searcher.Query(gctx, vectorindex.CollectionExperienceBullets, vectors[i], e.cfg.SearchK)
			if err != nil {
				return fmt.Errorf("failed to query bullets for requirement %d: %w", i, err)
			}
			results[i] = hits
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	ranked := rankByAccumulatedScore(accumulate(results))

	selected := make([]types.Experience, 0, topK)
	seen := make(map[uuid.UUID]bool, topK)
	for _, candidate := range ranked {
		if len(selected) >= topK {
			break
		}
		if seen[candidate.id] {
			continue
		}
		seen[candidate.id] = true

		exp, err := e.store.GetExperience(ctx, candidate.id)
		if err != nil {
			return nil, fmt.Errorf("failed to load experience %s: %w", candidate.id, err)
		}
		if exp == nil {
			e.logger.Debug("skipping experience missing from store", zap.Stringer("experience_id", candidate.id))
			continue
		}

		bullets := pruneBullets(exp, candidate.bullets, maxBullets)
		selected = append(selected, exp.WithBullets(bullets))

		e.logger.Debug("selected experience",
			zap.Stringer("experience_id", candidate.id),
			zap.String("title", exp.Title),
			zap.Float64("score", candidate.score),
			zap.Int("bullets", len(bullets)))
	}

	return selected, nil
}
