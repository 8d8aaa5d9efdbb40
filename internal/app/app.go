package app

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"nexnews/internal/config"
	"nexnews/internal/httpapi"
	"nexnews/internal/infrastructure/feed"
	"nexnews/internal/infrastructure/llm"
	"nexnews/internal/infrastructure/scheduler"
	"nexnews/internal/infrastructure/storage"
	"nexnews/internal/infrastructure/vectorindex"
	"nexnews/internal/usecase"
)

// Ingestor wires the periodic collection/enrichment process.
type Ingestor struct {
	cfg        config.Config
	db         *sql.DB
	repository *storage.PostgresRepository
	index      *vectorindex.QdrantIndex
	pipeline   *usecase.Pipeline
	scheduler  *usecase.Scheduler
	logger     *slog.Logger
}

// NewIngestor builds the ingestion process from configuration.
func NewIngestor(cfg config.Config, logger *slog.Logger) (*Ingestor, error) {
	db, err := sql.Open("postgres", cfg.Database.DSN)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	repository := storage.NewPostgresRepository(db)
	index := vectorindex.NewQdrantIndex(cfg.Qdrant, nil)

	source := feed.NewRSSSource(cfg.Feeds, nil, cfg.Ingestor.ItemsPerFeed,
		logger.With("component", "feed"))

	pipeline, err := usecase.NewPipeline(usecase.PipelineDeps{
		Source:     source,
		Repository: repository,
		Classifier: llm.NewClassifier(cfg.OpenAI, logger.With("component", "classifier")),
		Embedder:   llm.NewEmbedder(cfg.OpenAI, logger.With("component", "embedder")),
		Index:      index,
		Logger:     logger.With("component", "pipeline"),
		Workers:    cfg.Ingestor.Workers,
	})
	if err != nil {
		_ = db.Close()
		return nil, err
	}

	driver := scheduler.NewIntervalScheduler(time.Duration(cfg.Ingestor.IntervalMinutes) * time.Minute)

	return &Ingestor{
		cfg:        cfg,
		db:         db,
		repository: repository,
		index:      index,
		pipeline:   pipeline,
		scheduler:  usecase.NewScheduler(driver, pipeline, logger.With("component", "scheduler")),
		logger:     logger,
	}, nil
}

// Run prepares both stores, heals missing embeddings, then keeps collecting
// until the context is cancelled.
func (i *Ingestor) Run(ctx context.Context) error {
	defer i.pipeline.Close()
	defer i.db.Close()

	if err := i.repository.EnsureSchema(ctx); err != nil {
		return err
	}
	if err := i.index.EnsureCollection(ctx); err != nil {
		return fmt.Errorf("ensure vector collection: %w", err)
	}

	if err := i.pipeline.SyncMissingEmbeddings(ctx); err != nil {
		// Startup healing is best-effort; the next cycle retries.
		i.logger.Warn("embedding sync incomplete", "error", err)
	}

	i.logger.Info("ingestor started",
		"interval_minutes", i.cfg.Ingestor.IntervalMinutes,
		"feeds", len(i.cfg.Feeds))

	if err := i.scheduler.Start(ctx); err != nil {
		return fmt.Errorf("start scheduler: %w", err)
	}

	<-ctx.Done()
	return i.scheduler.Stop(context.Background())
}

// API wires the read-only query-serving process.
type API struct {
	cfg    config.Config
	db     *sql.DB
	server *http.Server
	logger *slog.Logger
}

// NewAPI builds the serving process from configuration.
func NewAPI(cfg config.Config, logger *slog.Logger) (*API, error) {
	db, err := sql.Open("postgres", cfg.Database.DSN)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	engine := usecase.NewQueryEngine(
		storage.NewPostgresRepository(db),
		vectorindex.NewQdrantIndex(cfg.Qdrant, nil),
		llm.NewEmbedder(cfg.OpenAI, logger.With("component", "embedder")),
		logger.With("component", "query"),
	)

	server := &http.Server{
		Addr:              cfg.API.Addr,
		Handler:           httpapi.NewServer(engine, logger.With("component", "httpapi")).Router(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	return &API{cfg: cfg, db: db, server: server, logger: logger}, nil
}

// Run serves HTTP until the context is cancelled, then shuts down gracefully.
func (a *API) Run(ctx context.Context) error {
	defer a.db.Close()

	errCh := make(chan error, 1)
	go func() {
		a.logger.Info("api listening", "addr", a.cfg.API.Addr)
		errCh <- a.server.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return a.server.Shutdown(shutdownCtx)
}
