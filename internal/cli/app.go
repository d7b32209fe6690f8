package cli

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"

	"lexcheck/internal/cache"
	"lexcheck/internal/compare"
	"lexcheck/internal/index"
	"lexcheck/internal/ingest"
	"lexcheck/internal/logger"
	"lexcheck/internal/match"
	"lexcheck/internal/metrics"
	"lexcheck/internal/model"
	"lexcheck/internal/similarity"
	"lexcheck/internal/store"
	"lexcheck/internal/verify"
	"lexcheck/internal/worker"
)

// app holds the fully wired verification core for one CLI invocation.
type app struct {
	cfg      *model.Config
	db       *sql.DB
	repo     store.Repo
	orch     *verify.Orchestrator
	ingest   *ingest.Service
	registry *prometheus.Registry
	log      zerolog.Logger
}

// newApp wires the database, caches, similarity provider, matcher,
// comparator, and orchestrator from the effective configuration.
func newApp(cfg *model.Config) (*app, error) {
	log := logger.New(logger.Config{Level: cfg.Log.Level, Pretty: cfg.Log.Pretty})
	if verbose {
		log = logger.New(logger.Config{Level: "debug", Pretty: cfg.Log.Pretty})
	}

	db, err := store.Open(cfg.Workspace)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}
	repo := store.Repo{DB: db}

	var indexCache cache.Cache
	if cfg.Cache.Enabled {
		dir := filepath.Join(cfg.Workspace, ".lexcheck", "index-cache")
		indexCache = cache.NewLayeredCache(cfg.Cache.TTL, dir, cfg.Cache.TTL)
	}
	indexes := index.NewStore(indexCache, cfg.Cache.TTL)

	provider, err := similarity.NewProvider(cfg.Similarity)
	if err != nil {
		return nil, fmt.Errorf("similarity provider: %w", err)
	}
	var comparer similarity.Comparer
	var searcher similarity.Searcher
	service := "lexical"
	if engine := similarity.NewEngine(provider); engine != nil {
		comparer = engine
		searcher = engine
		service = provider.Name()
	}

	limiter := worker.NewLimiter(cfg.Similarity.RequestsPerSecond, cfg.Similarity.Burst)
	registry := prometheus.NewRegistry()
	mets := metrics.New(registry)

	orch := verify.New(verify.Options{
		Repo:       repo,
		Indexes:    indexes,
		Matcher:    match.New(searcher, cfg.Matching),
		Comparator: compare.New(comparer, cfg.Matching),
		Limiter:    limiter,
		Metrics:    mets,
		Log:        log,
		Service:    service,
		Batch:      cfg.Batch,
		Matching:   cfg.Matching,
	})

	fetcher := ingest.NewFetcher(cfg.HTTP)
	svc := ingest.NewService(repo, fetcher, log)

	return &app{
		cfg:      cfg,
		db:       db,
		repo:     repo,
		orch:     orch,
		ingest:   svc,
		registry: registry,
		log:      log,
	}, nil
}

func (a *app) Close() {
	if err := a.db.Close(); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: close database: %v\n", err)
	}
}
