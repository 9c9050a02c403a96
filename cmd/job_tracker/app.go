package main

import (
	"context"
	"fmt"
	"io"
	"os"

	"go.uber.org/zap"

	"github.com/jonathan/job-tracker/internal/config"
	"github.com/jonathan/job-tracker/internal/db"
	"github.com/jonathan/job-tracker/internal/dedup"
	"github.com/jonathan/job-tracker/internal/embedding"
	"github.com/jonathan/job-tracker/internal/fuzzy"
	"github.com/jonathan/job-tracker/internal/logger"
	"github.com/jonathan/job-tracker/internal/ranking"
	"github.com/jonathan/job-tracker/internal/types"
	"github.com/jonathan/job-tracker/internal/vectorindex"
)

// apiKeyEnv maps providers to the conventional environment variable for their key
var apiKeyEnv = map[string]string{
	string(embedding.ProviderOpenAI): "OPENAI_API_KEY",
	string(embedding.ProviderGemini): "GEMINI_API_KEY",
}

// app holds the dependencies shared by every command
type app struct {
	cfg      *config.Config
	logger   *zap.Logger
	db       *db.DB
	index    vectorindex.Index
	provider embedding.Provider

	closers []func()
}

type appNeeds struct {
	db         bool
	dbOptional bool // connect only when a database URL is configured
	index      bool
	provider   bool
}

// loadConfig reads the config file and applies the global flags
func loadConfig() (*config.Config, error) {
	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		return nil, err
	}
	merged := cfg.MergeWithDefaults(config.Default())
	cfg = &merged

	if debugLogs {
		cfg.Log.Debug = true
	}
	if jsonLogs {
		cfg.Log.JSON = true
	}
	if cfg.Embedding.APIKey == "" {
		if env, ok := apiKeyEnv[cfg.Embedding.Provider]; ok {
			cfg.Embedding.APIKey = os.Getenv(env)
		}
	}
	if cfg.DatabaseURL == "" {
		cfg.DatabaseURL = os.Getenv("DATABASE_URL")
	}
	return cfg, nil
}

// newApp wires only the dependencies a command needs
func newApp(ctx context.Context, needs appNeeds) (*app, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}

	log, err := logger.New(cfg.Log.JSON, cfg.Log.Debug)
	if err != nil {
		return nil, fmt.Errorf("failed to create logger: %w", err)
	}
	a := &app{cfg: cfg, logger: log}
	a.closers = append(a.closers, func() { _ = log.Sync() })

	if needs.provider || needs.index {
		if err := cfg.Validate(); err != nil {
			a.close()
			return nil, err
		}
	}

	if needs.db || (needs.dbOptional && cfg.DatabaseURL != "") {
		if cfg.DatabaseURL == "" {
			a.close()
			return nil, fmt.Errorf("database_url is required (set it in the config file or DATABASE_URL)")
		}
		database, err := db.Connect(ctx, cfg.DatabaseURL)
		if err != nil {
			a.close()
			return nil, err
		}
		a.db = database
		a.closers = append(a.closers, database.Close)
	}

	if needs.index {
		switch cfg.Vector.Backend {
		case "memory":
			a.index = vectorindex.NewMemory()
		default:
			q, err := vectorindex.NewQdrant(cfg.Vector.QdrantAddr, log)
			if err != nil {
				a.close()
				return nil, err
			}
			a.index = q
			a.closers = append(a.closers, func() { _ = q.Close() })
		}
	}

	if needs.provider {
		p, err := embedding.NewProvider(ctx, embedding.Options{
			Provider:          embedding.ProviderKind(cfg.Embedding.Provider),
			Model:             cfg.Embedding.Model,
			APIKey:            cfg.Embedding.APIKey,
			BaseURL:           cfg.Embedding.BaseURL,
			RequestsPerSecond: cfg.Embedding.RequestsPerSecond,
			Burst:             cfg.Embedding.Burst,
		})
		if err != nil {
			a.close()
			return nil, fmt.Errorf("failed to create embedding provider: %w", err)
		}
		a.provider = p
		if c, ok := p.(io.Closer); ok {
			a.closers = append(a.closers, func() { _ = c.Close() })
		}
	}

	log.Debug("app initialized",
		zap.String("embedding_provider", cfg.Embedding.Provider),
		zap.String("vector_backend", cfg.Vector.Backend),
		zap.Bool("database", a.db != nil))
	return a, nil
}

// close releases resources in reverse order of acquisition
func (a *app) close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
}

// session starts a new embedding session for one command run
func (a *app) session() *embedding.Session {
	return embedding.NewSession(a.provider, a.logger)
}

// listingStore returns the database, or an empty store when none is configured
func (a *app) listingStore() listingStore {
	if a.db != nil {
		return a.db
	}
	return emptyStore{}
}

// dedupEngine builds the duplicate detector over the configured index and store
func (a *app) dedupEngine(store listingStore) *dedup.Engine {
	return dedup.NewEngine(a.index, store, fuzzy.Matcher{}, dedup.Config{
		SemanticThreshold: a.cfg.Listings.SemanticThreshold,
		TitleThreshold:    a.cfg.Listings.TitleThreshold,
		CompanyThreshold:  a.cfg.Listings.CompanyThreshold,
		SearchK:           a.cfg.Listings.SearchK,
	}, a.logger)
}

// rankingEngine builds the experience ranker; it requires a database
func (a *app) rankingEngine() *ranking.Engine {
	return ranking.NewEngine(a.index, a.db, ranking.Config{
		TopK:       a.cfg.Experiences.TopK,
		MaxBullets: a.cfg.Experiences.MaxBullets,
		SearchK:    a.cfg.Experiences.SearchK,
	}, a.logger)
}

type listingStore interface {
	ListListings(ctx context.Context) ([]types.Listing, error)
	GetListingByURL(ctx context.Context, url string) (*types.Listing, error)
	GetListingsByURLs(ctx context.Context, urls []string) ([]types.Listing, error)
}

// emptyStore stands in for the database when dedupe runs against the batch alone
type emptyStore struct{}

func (emptyStore) ListListings(context.Context) ([]types.Listing, error) {
	return []types.Listing{}, nil
}

func (emptyStore) GetListingByURL(context.Context, string) (*types.Listing, error) {
	return nil, nil
}

func (emptyStore) GetListingsByURLs(context.Context, []string) ([]types.Listing, error) {
	return []types.Listing{}, nil
}
