// Package app wires configuration into the running services.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/raphaelgruber/sitechat/internal/config"
	"github.com/raphaelgruber/sitechat/internal/crawler"
	"github.com/raphaelgruber/sitechat/internal/db"
	"github.com/raphaelgruber/sitechat/internal/llm"
	"github.com/raphaelgruber/sitechat/internal/metrics"
	"github.com/raphaelgruber/sitechat/internal/parser"
	"github.com/raphaelgruber/sitechat/internal/service"
	"github.com/raphaelgruber/sitechat/internal/store"
	"github.com/raphaelgruber/sitechat/internal/vectorindex"
)

// App holds every long-lived component. Build one per process.
type App struct {
	Config  config.Config
	Log     *slog.Logger
	Metrics *metrics.Collector

	Index  vectorindex.Index
	Store  store.Store
	Ingest *service.IngestService
	Search *service.SearchService
	Chat   *service.ChatService
	Stats  service.StatsSource

	closers []func(context.Context) error
}

// New validates cfg and builds the component graph. On error everything
// already opened is closed again.
func New(ctx context.Context, cfg config.Config, log *slog.Logger) (_ *App, err error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if log == nil {
		log = slog.Default()
	}

	a := &App{Config: cfg, Log: log, Metrics: metrics.NewCollector()}
	defer func() {
		if err != nil {
			_ = a.Close(context.WithoutCancel(ctx))
		}
	}()

	encoder, err := llm.NewEncoder(ctx, cfg, a.Metrics, log)
	if err != nil {
		return nil, fmt.Errorf("init encoder: %w", err)
	}
	model, err := llm.NewModel(ctx, cfg, a.Metrics, log)
	if err != nil {
		return nil, fmt.Errorf("init model: %w", err)
	}

	// The tokenizer is resolved once; every segmentation uses the same path.
	tokenizer := parser.ResolveTokenizer(cfg.TokenizerEncoding, log)
	segmenter, err := parser.NewSegmenter(cfg.ChunkSize, cfg.ChunkOverlap, tokenizer)
	if err != nil {
		return nil, fmt.Errorf("init segmenter: %w", err)
	}

	if a.Store, err = openStore(cfg); err != nil {
		return nil, err
	}
	a.closers = append(a.closers, func(context.Context) error { return a.Store.Close() })

	if a.Index, err = a.openIndex(ctx, encoder.Dimension()); err != nil {
		return nil, err
	}
	a.closers = append(a.closers, a.Index.Close)

	fetcher, err := a.openFetcher(ctx)
	if err != nil {
		return nil, err
	}
	crawl := crawler.New(fetcher,
		crawler.WithExcludePatterns(cfg.CrawlExclude),
		crawler.WithLinksPerPage(cfg.CrawlLinksPerPage),
		crawler.WithLogger(log),
		crawler.WithMetrics(a.Metrics),
	)

	jobs := service.NewJobManager(a.Store, log)
	if _, err := jobs.FailInterruptedJobs(ctx); err != nil {
		return nil, fmt.Errorf("recover jobs: %w", err)
	}
	a.Ingest = service.NewIngestService(jobs, crawl, crawler.NewFileExtractor(log), segmenter, encoder, a.Index, service.IngestOptions{
		BatchSize:  cfg.IngestBatchSize,
		BatchPause: cfg.IngestBatchPause,
		Logger:     log,
	})
	// Background jobs stop before the index and store close.
	a.closers = append(a.closers, func(context.Context) error {
		a.Ingest.Close()
		return nil
	})

	a.Search = service.NewSearchService(encoder, a.Index, model, service.SearchOptions{
		TopK:        cfg.TopK,
		MaxDistance: cfg.MaxDistance,
		Logger:      log,
	})
	a.Chat = service.NewChatService(a.Search, a.Store, log)
	a.Stats = service.StatsSource{
		Index:              a.Index,
		Jobs:               jobs,
		Search:             a.Search,
		Model:              model.Model(),
		EmbeddingModel:     encoder.Model(),
		TokenizerAvailable: segmenter.TokenizerAvailable(),
		Metrics:            a.Metrics,
	}

	log.Info("sitechat ready",
		"index", cfg.IndexBackend,
		"store", cfg.StoreBackend,
		"embed_provider", cfg.EmbedProvider,
		"llm_provider", cfg.LLMProvider,
		"tokenizer", segmenter.TokenizerAvailable(),
	)
	return a, nil
}

func openStore(cfg config.Config) (store.Store, error) {
	switch cfg.StoreBackend {
	case config.StoreSQLite:
		st, err := store.OpenSQLite(cfg.SQLitePath)
		if err != nil {
			return nil, fmt.Errorf("open job store: %w", err)
		}
		return st, nil
	default:
		return store.NewMemory(), nil
	}
}

func (a *App) openIndex(ctx context.Context, dimension int) (vectorindex.Index, error) {
	cfg := a.Config
	opts := []vectorindex.Option{vectorindex.WithLogger(a.Log), vectorindex.WithMetrics(a.Metrics)}

	switch cfg.IndexBackend {
	case config.IndexSurrealDB:
		client, err := db.NewClient(ctx, db.Config{
			URL:       cfg.SurrealDBURL,
			Namespace: cfg.SurrealDBNamespace,
			Database:  cfg.SurrealDBDatabase,
			Username:  cfg.SurrealDBUser,
			Password:  cfg.SurrealDBPass,
			AuthLevel: cfg.SurrealDBAuthLevel,
		}, a.Log)
		if err != nil {
			return nil, fmt.Errorf("connect to surrealdb: %w", err)
		}
		idx, err := vectorindex.NewSurreal(ctx, client, cfg.IndexTable, dimension, opts...)
		if err != nil {
			_ = client.Close(ctx)
			return nil, fmt.Errorf("open surrealdb index: %w", err)
		}
		return idx, nil
	case config.IndexPgvector:
		idx, err := vectorindex.OpenPgvector(ctx, cfg.PostgresDSN, cfg.IndexTable, dimension, opts...)
		if err != nil {
			return nil, fmt.Errorf("open pgvector index: %w", err)
		}
		return idx, nil
	default:
		return vectorindex.NewMemory(opts...), nil
	}
}

func (a *App) openFetcher(ctx context.Context) (crawler.Fetcher, error) {
	cfg := a.Config
	if cfg.CrawlRenderer != config.RendererBrowser {
		return crawler.NewHTTPFetcher(cfg.CrawlPageTimeout, cfg.CrawlUserAgent), nil
	}
	f, err := crawler.NewBrowserFetcher(ctx, cfg.CrawlPageTimeout, cfg.CrawlUserAgent)
	if err != nil {
		return nil, fmt.Errorf("start browser: %w", err)
	}
	a.closers = append(a.closers, func(context.Context) error { return f.Close() })
	return f, nil
}

// Close releases components in reverse order of construction.
func (a *App) Close(ctx context.Context) error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](ctx); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}
