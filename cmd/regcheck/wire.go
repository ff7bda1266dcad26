package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/kailas-cloud/regcheck/internal/config"
	"github.com/kailas-cloud/regcheck/internal/db"
	"github.com/kailas-cloud/regcheck/internal/db/postgres"
	dbRedis "github.com/kailas-cloud/regcheck/internal/db/redis"
	"github.com/kailas-cloud/regcheck/internal/domain"
	"github.com/kailas-cloud/regcheck/internal/metrics"
	documentrepo "github.com/kailas-cloud/regcheck/internal/repository/document"
	docmem "github.com/kailas-cloud/regcheck/internal/repository/document/memory"
	docpg "github.com/kailas-cloud/regcheck/internal/repository/document/postgres"
	"github.com/kailas-cloud/regcheck/internal/repository/embcache"
	redisindex "github.com/kailas-cloud/regcheck/internal/repository/index"
	idxmem "github.com/kailas-cloud/regcheck/internal/repository/index/memory"
	"github.com/kailas-cloud/regcheck/internal/repository/index/pgvector"
	"github.com/kailas-cloud/regcheck/internal/resilience"
	chiTransport "github.com/kailas-cloud/regcheck/internal/transport/chi"
	natsTransport "github.com/kailas-cloud/regcheck/internal/transport/nats"
	openaiTransport "github.com/kailas-cloud/regcheck/internal/transport/openai"
	checkuc "github.com/kailas-cloud/regcheck/internal/usecase/check"
	"github.com/kailas-cloud/regcheck/internal/usecase/decision"
	embeddinguc "github.com/kailas-cloud/regcheck/internal/usecase/embedding"
	healthuc "github.com/kailas-cloud/regcheck/internal/usecase/health"
	"github.com/kailas-cloud/regcheck/internal/usecase/ingest"
	"github.com/kailas-cloud/regcheck/internal/usecase/retrieval"
)

var errNoBackend = errors.New("backend connection is not configured")

// documentStore is what the services need from any Document Store backend.
type documentStore interface {
	ingest.Store
	retrieval.DocumentReader
	healthuc.StorePinger
}

// vectorIndex is what the services need from any Vector Index backend.
type vectorIndex interface {
	ingest.Index
	retrieval.Index
}

// application holds the wired services and the resources to release on exit.
type application struct {
	server   *chiTransport.Server
	ingest   *ingest.Service
	consumer *natsTransport.Consumer
	closers  []func()
}

func (a *application) close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
}

// backends holds the shared connections opened for the configured drivers.
type backends struct {
	redis *dbRedis.Store
	pg    *sql.DB
}

func (b backends) needsRedis(cfg config.Config) bool {
	return cfg.Storage.Driver == config.DriverRedis || cfg.Index.Backend == config.IndexRedis || cfg.Embedding.Cache
}

func (b backends) needsPostgres(cfg config.Config) bool {
	return cfg.Storage.Driver == config.DriverPostgres || cfg.Index.Backend == config.IndexPGVector
}

// build is the composition root.
func build(ctx context.Context, cfg config.Config, logger *zap.Logger) (_ *application, err error) {
	app := &application{}
	defer func() {
		if err != nil {
			app.close()
		}
	}()

	var be backends
	if be.needsRedis(cfg) {
		be.redis, err = dbRedis.NewStore(dbRedis.Config{
			Addrs:    cfg.Redis.Addrs,
			Username: cfg.Redis.Username,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err != nil {
			return nil, fmt.Errorf("redis store: %w", err)
		}
		app.closers = append(app.closers, be.redis.Close)

		timeout := time.Duration(cfg.Redis.ReadinessTimeout) * time.Second
		if err := be.redis.WaitForReady(ctx, timeout); err != nil {
			return nil, fmt.Errorf("redis not ready: %w", err)
		}
		logger.Info("Connected to Redis", zap.Strings("addrs", cfg.Redis.Addrs))
	}
	if be.needsPostgres(cfg) {
		be.pg, err = postgres.Open(ctx, postgres.Config{
			DSN:             cfg.Postgres.DSN,
			MaxOpenConns:    cfg.Postgres.MaxOpenConns,
			MaxIdleConns:    cfg.Postgres.MaxIdleConns,
			ConnMaxLifetime: cfg.Postgres.ConnMaxLifetime,
		})
		if err != nil {
			return nil, fmt.Errorf("postgres: %w", err)
		}
		pg := be.pg
		app.closers = append(app.closers, func() { _ = pg.Close() })
		logger.Info("Connected to PostgreSQL")
	}

	store, err := buildStore(ctx, cfg, be)
	if err != nil {
		return nil, err
	}
	index, err := buildIndex(ctx, cfg, be, logger)
	if err != nil {
		return nil, err
	}

	exec := resilience.NewExecutor(cfg.Resilience, logger)

	docEmbedder := buildEmbedder(cfg, cfg.Embedding.DocumentInstruction, exec, be.redis, logger)
	queryEmbedder := buildEmbedder(cfg, cfg.Embedding.QueryInstruction, exec, be.redis, logger)
	logger.Info("Embedders created",
		zap.String("provider", cfg.Embedding.Provider),
		zap.String("model", cfg.Embedding.Model),
		zap.Int("dimensions", cfg.Index.Dimensions),
		zap.Bool("cache", be.redis != nil && cfg.Embedding.Cache),
	)

	retrievalMode, err := retrieval.ParseMode(cfg.Retrieval.Mode)
	if err != nil {
		return nil, err
	}
	retrievalOpts := []retrieval.Option{
		retrieval.WithNormalization(cfg.Retrieval.Lowercase),
		retrieval.WithMissingCounter(metrics.RetrievalMissingDocumentsTotal),
		retrieval.WithLogger(logger),
	}
	if retrievalMode == retrieval.ModeHybrid {
		retrievalOpts = append(retrievalOpts, retrieval.WithKeywordSearch(store, cfg.Retrieval.ExactThreshold))
	}
	retrievalSvc := retrieval.New(queryEmbedder, index, store, retrievalOpts...)
	logger.Info("Retrieval configured", zap.String("mode", string(retrievalSvc.Mode())))

	policy, err := decision.New(cfg.Decision)
	if err != nil {
		return nil, fmt.Errorf("decision policy: %w", err)
	}

	mode, err := checkuc.ParseGenerationMode(cfg.Generation.Mode)
	if err != nil {
		return nil, err
	}
	defaults := retrieval.Options{TopK: cfg.Retrieval.TopK, MinSimilarity: cfg.Retrieval.MinSimilarity}
	checkSvc := checkuc.New(retrievalSvc, policy, buildGenerator(cfg, exec, logger), checkuc.Config{
		Timeout:           cfg.Check.Timeout,
		GenerationMode:    mode,
		GenerationTimeout: cfg.Generation.Timeout,
		Retrieval:         defaults,
	}, logger)

	app.ingest = ingest.New(store, index, docEmbedder,
		ingest.WithMaxBatchSize(cfg.Ingest.MaxBatchSize),
		ingest.WithNormalization(cfg.Retrieval.Lowercase),
		ingest.WithEnrichment(cfg.Ingest.Enrich),
		ingest.WithLogger(logger),
	)

	healthOpts := []healthuc.Option{healthuc.WithIndex(index)}
	if cfg.Embedding.HealthCheck {
		healthOpts = append(healthOpts, healthuc.WithEmbedding(newEmbeddingHealthChecker(docEmbedder)))
	}
	healthSvc := healthuc.New(store, healthOpts...)

	app.server = chiTransport.NewServer(checkSvc, retrievalSvc, app.ingest, healthSvc, chiTransport.Config{
		APIKeys:      cfg.Auth.APIKeys,
		Retrieval:    defaults,
		MaxBatchSize: cfg.Ingest.MaxBatchSize,
	}, logger)

	if cfg.NATS.Enabled {
		nc, err := natsTransport.Connect(cfg.NATS.URL, natsTransport.ConnOptions{Logger: logger})
		if err != nil {
			return nil, fmt.Errorf("nats: %w", err)
		}
		app.closers = append(app.closers, nc.Close)
		app.consumer = natsTransport.NewConsumer(nc, app.ingest, natsTransport.ConsumerConfig{
			UpsertSubject:  cfg.NATS.UpsertSubject,
			RetractSubject: cfg.NATS.RetractSubject,
			Queue:          cfg.NATS.Queue,
			HandlerTimeout: cfg.NATS.HandlerTimeout,
			DrainTimeout:   cfg.NATS.DrainTimeout,
		}, logger)
		logger.Info("NATS ingestion enabled", zap.String("url", cfg.NATS.URL))
	}

	return app, nil
}

func buildStore(ctx context.Context, cfg config.Config, be backends) (documentStore, error) {
	switch cfg.Storage.Driver {
	case config.DriverMemory:
		return docmem.New(), nil
	case config.DriverRedis:
		if be.redis == nil {
			return nil, fmt.Errorf("redis document store: %w", errNoBackend)
		}
		return documentrepo.New(be.redis, cfg.Storage.KeyPrefix+"doc:"), nil
	case config.DriverPostgres:
		if be.pg == nil {
			return nil, fmt.Errorf("postgres document store: %w", errNoBackend)
		}
		s := docpg.New(be.pg)
		if err := s.EnsureSchema(ctx); err != nil {
			return nil, fmt.Errorf("document schema: %w", err)
		}
		return s, nil
	default:
		return nil, fmt.Errorf("unknown storage driver %q", cfg.Storage.Driver)
	}
}

func buildIndex(ctx context.Context, cfg config.Config, be backends, logger *zap.Logger) (vectorIndex, error) {
	dim := cfg.Index.Dimensions
	switch cfg.Index.Backend {
	case config.IndexMemory:
		x, err := idxmem.New(dim)
		if err != nil {
			return nil, fmt.Errorf("memory index: %w", err)
		}
		return x, nil
	case config.IndexRedis:
		if be.redis == nil {
			return nil, fmt.Errorf("redis index: %w", errNoBackend)
		}
		algo, err := db.ParseVectorAlgorithm(cfg.Index.Algorithm)
		if err != nil {
			return nil, err
		}
		params := db.VectorParams{Algorithm: algo, Distance: db.DistanceCosine}
		if algo == db.VectorHNSW {
			params.M = cfg.Index.HNSWM
			params.EFConstruction = cfg.Index.HNSWEFConstruct
		}
		x := redisindex.New(be.redis, cfg.Storage.KeyPrefix, dim,
			redisindex.WithVectorParams(params),
			redisindex.WithEFRuntime(cfg.Index.HNSWEFRuntime),
			redisindex.WithLogger(logger),
		)
		if err := x.EnsureIndex(ctx); err != nil {
			return nil, fmt.Errorf("vector index: %w", err)
		}
		return x, nil
	case config.IndexPGVector:
		if be.pg == nil {
			return nil, fmt.Errorf("pgvector index: %w", errNoBackend)
		}
		var opts []pgvector.Option
		if cfg.Index.Algorithm == "hnsw" {
			opts = append(opts, pgvector.WithHNSW(pgvector.HNSW{
				M:              cfg.Index.HNSWM,
				EFConstruction: cfg.Index.HNSWEFConstruct,
			}))
		}
		x := pgvector.New(be.pg, dim, append(opts, pgvector.WithLogger(logger))...)
		if err := x.EnsureSchema(ctx); err != nil {
			return nil, fmt.Errorf("vector schema: %w", err)
		}
		return x, nil
	default:
		return nil, fmt.Errorf("unknown index backend %q", cfg.Index.Backend)
	}
}

// buildEmbedder assembles the decorator chain: OpenAI -> Cached -> Instrumented -> Instruction.
// The instruction is outermost so the cache key includes it.
func buildEmbedder(
	cfg config.Config,
	instruction string,
	exec *resilience.Executor,
	cache *dbRedis.Store,
	logger *zap.Logger,
) domain.Embedder {
	ec := cfg.Embedding
	base := openaiTransport.NewEmbedder(&openaiTransport.Config{
		APIKey:     ec.APIKey,
		BaseURL:    ec.BaseURL,
		Model:      ec.Model,
		Dimensions: cfg.Index.Dimensions,
		Provider:   ec.Provider,
		Executor:   exec,
		Logger:     logger,
	})

	var embedder domain.Embedder = base
	if ec.Cache && cache != nil {
		embedder = embcache.New(base, cache, cfg.Storage.KeyPrefix+"emb:", ec.Model,
			embcache.WithTTL(ec.CacheTTL),
			embcache.WithMetrics(metrics.EmbeddingCacheTotal),
			embcache.WithLogger(logger),
		)
	}

	embedder = embeddinguc.NewInstrumentedEmbedder(embedder, ec.Provider, ec.Model, cfg.Index.Dimensions, logger).
		WithBatchSize(ec.MaxBatchSize)

	if instruction != "" {
		return domain.NewInstructionEmbedder(embedder, instruction)
	}
	return embedder
}

// buildGenerator returns nil when generation is off. The return type is the interface so a
// disabled generator stays an untyped nil.
func buildGenerator(cfg config.Config, exec *resilience.Executor, logger *zap.Logger) checkuc.Generator {
	gc := cfg.Generation
	if gc.Mode == string(checkuc.GenerationOff) {
		return nil
	}
	return openaiTransport.NewGenerator(&openaiTransport.GeneratorConfig{
		APIKey:       gc.APIKey,
		BaseURL:      gc.BaseURL,
		Model:        gc.Model,
		MaxTokens:    gc.MaxTokens,
		Temperature:  gc.Temperature,
		SystemPrompt: gc.SystemPrompt,
		Executor:     exec,
		Logger:       logger,
	})
}

// embeddingHealthChecker adapts domain.Embedder to health.EmbeddingChecker.
type embeddingHealthChecker struct {
	embedder domain.Embedder
}

func newEmbeddingHealthChecker(embedder domain.Embedder) *embeddingHealthChecker {
	return &embeddingHealthChecker{embedder: embedder}
}

func (h *embeddingHealthChecker) HealthCheck(ctx context.Context) error {
	hc, ok := h.embedder.(domain.HealthChecker)
	if !ok {
		return nil
	}
	if err := hc.HealthCheck(ctx); err != nil {
		return fmt.Errorf("embedding health check: %w", err)
	}
	return nil
}
