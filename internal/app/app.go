// Package app initializes and holds long-lived application services, acting as a dependency injection container.
package app

import (
	"context"
	"fmt"
	"time"

	"cloud.google.com/go/storage"
	"go.uber.org/zap"

	"github.com/JakeFAU/site-indexer/internal/clock/system"
	"github.com/JakeFAU/site-indexer/internal/config"
	"github.com/JakeFAU/site-indexer/internal/crawler"
	collyfetcher "github.com/JakeFAU/site-indexer/internal/fetcher/colly"
	"github.com/JakeFAU/site-indexer/internal/fetcher/headless"
	"github.com/JakeFAU/site-indexer/internal/id/uuid"
	"github.com/JakeFAU/site-indexer/internal/indexing"
	pubsubpublisher "github.com/JakeFAU/site-indexer/internal/publisher/pubsub"
	"github.com/JakeFAU/site-indexer/internal/statistics"
	"github.com/JakeFAU/site-indexer/internal/storage/gcs"
	"github.com/JakeFAU/site-indexer/internal/storage/local"
	"github.com/JakeFAU/site-indexer/internal/storage/memory"
	"github.com/JakeFAU/site-indexer/internal/storage/postgres"
	"github.com/JakeFAU/site-indexer/internal/telemetry"
)

const serviceName = "site-indexer"

// App holds the shared, long-lived services built from one Config.
type App struct {
	cfg         config.Config
	logger      *zap.Logger
	sites       crawler.SiteStore
	pages       crawler.PageStore
	coordinator *indexing.Coordinator
	statistics  *statistics.Service
	ready       func(ctx context.Context) error
	closers     []func() error
}

// Config returns the configuration the App was built from.
func (a *App) Config() config.Config {
	return a.cfg
}

// Logger returns the shared zap logger.
func (a *App) Logger() *zap.Logger {
	return a.logger
}

// Coordinator returns the indexing coordinator.
func (a *App) Coordinator() *indexing.Coordinator {
	return a.coordinator
}

// Statistics returns the statistics service.
func (a *App) Statistics() *statistics.Service {
	return a.statistics
}

// Ready reports whether downstream dependencies are reachable.
func (a *App) Ready(ctx context.Context) error {
	if a.ready == nil {
		return nil
	}
	return a.ready(ctx)
}

// New builds every service from cfg. It fails fast when a configured
// backend cannot be reached.
func New(ctx context.Context, cfg config.Config, logger *zap.Logger) (*App, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	a := &App{cfg: cfg, logger: logger}
	logger.Info("initializing application services",
		zap.String("storage", cfg.Storage.Driver),
		zap.String("archive", cfg.Archive.Driver),
		zap.String("fetcher", cfg.Crawler.Fetcher),
		zap.Int("sites", len(cfg.Indexing.Sites)),
	)

	tp, err := telemetry.InitTracerProvider(ctx, serviceName)
	if err != nil {
		return nil, fmt.Errorf("init tracing: %w", err)
	}
	a.closers = append(a.closers, func() error {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return tp.Shutdown(shutdownCtx)
	})

	if err := a.initStorage(ctx); err != nil {
		a.Close()
		return nil, err
	}

	var publisher crawler.Publisher
	if cfg.PubSub.Enabled() {
		logger.Info("publishing site events to Pub/Sub", zap.String("topic", cfg.PubSub.TopicName))
		p, err := pubsubpublisher.New(ctx, cfg.PubSub.ProjectID, cfg.PubSub.TopicName)
		if err != nil {
			a.Close()
			return nil, fmt.Errorf("init pubsub publisher: %w", err)
		}
		publisher = p
		a.closers = append(a.closers, p.Close)
	}

	fetcher, err := a.initFetcher()
	if err != nil {
		a.Close()
		return nil, err
	}
	var crawlerOpts []crawler.Option
	archive, err := a.initArchive(ctx)
	if err != nil {
		a.Close()
		return nil, err
	}
	if archive != nil {
		crawlerOpts = append(crawlerOpts, crawler.WithArchive(archive))
	}

	clock := system.New()
	ids := uuid.New()
	engine := crawler.New(fetcher, a.pages, a.sites, ids, clock, cfg.CrawlerSettings(), logger.Named("crawler"), crawlerOpts...)

	coordinator, err := indexing.New(indexing.Options{
		Sites:     cfg.Indexing.Sites,
		Crawler:   engine,
		SiteStore: a.sites,
		PageStore: a.pages,
		IDs:       ids,
		Clock:     clock,
		Publisher: publisher,
		Topic:     cfg.PubSub.TopicName,
		Logger:    logger,
	})
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("init coordinator: %w", err)
	}
	a.coordinator = coordinator
	a.statistics = statistics.New(a.sites, a.pages, coordinator)

	logger.Info("application services initialized")
	return a, nil
}

func (a *App) initStorage(ctx context.Context) error {
	switch a.cfg.Storage.Driver {
	case config.DriverMemory:
		a.logger.Info("using in-memory storage; indexed data is lost on exit")
		a.sites = memory.NewSiteStore()
		a.pages = memory.NewPageStore()
		return nil
	case config.DriverPostgres:
		pool, err := postgres.Open(ctx, postgres.Config{
			DSN:             a.cfg.DB.DSN,
			MaxConns:        a.cfg.DB.MaxConns,
			MinConns:        a.cfg.DB.MinConns,
			MaxConnLifetime: time.Duration(a.cfg.DB.MaxConnLifetimeSeconds) * time.Second,
		})
		if err != nil {
			return fmt.Errorf("init postgres: %w", err)
		}
		a.closers = append(a.closers, func() error { pool.Close(); return nil })
		if err := postgres.EnsureSchema(ctx, pool); err != nil {
			return err
		}
		sites, err := postgres.NewSiteStore(pool)
		if err != nil {
			return err
		}
		pages, err := postgres.NewPageStore(pool)
		if err != nil {
			return err
		}
		a.sites, a.pages = sites, pages
		a.ready = pool.Ping
		return nil
	default:
		return fmt.Errorf("unknown storage driver: %s", a.cfg.Storage.Driver)
	}
}

func (a *App) initFetcher() (crawler.Fetcher, error) {
	direct := collyfetcher.New(collyfetcher.Config{
		UserAgent:    a.cfg.Crawler.UserAgent,
		Timeout:      a.cfg.FetchTimeout(),
		MaxBodyBytes: a.cfg.Crawler.MaxBodyBytes,
	})
	switch a.cfg.Crawler.Fetcher {
	case config.FetcherColly:
		return direct, nil
	case config.FetcherHeadless:
		a.logger.Info("rendering pages with headless Chrome",
			zap.Int("max_parallel", a.cfg.Crawler.Headless.MaxParallel),
			zap.Duration("navigation_timeout", a.cfg.NavigationTimeout()),
		)
		renderer, err := headless.NewChromedp(headless.Config{
			MaxParallel:       a.cfg.Crawler.Headless.MaxParallel,
			UserAgent:         a.cfg.Crawler.UserAgent,
			NavigationTimeout: a.cfg.NavigationTimeout(),
			Direct:            direct,
		})
		if err != nil {
			return nil, fmt.Errorf("init headless fetcher: %w", err)
		}
		a.closers = append(a.closers, renderer.Close)
		return renderer, nil
	default:
		return nil, fmt.Errorf("unknown fetcher: %s", a.cfg.Crawler.Fetcher)
	}
}

// initArchive returns nil when archiving is off.
func (a *App) initArchive(ctx context.Context) (crawler.Archive, error) {
	switch a.cfg.Archive.Driver {
	case config.ArchiveNone:
		return nil, nil
	case config.ArchiveLocal:
		a.logger.Info("archiving page bodies on disk", zap.String("base_dir", a.cfg.Archive.BaseDir))
		archive, err := local.New(local.Config{BaseDir: a.cfg.Archive.BaseDir})
		if err != nil {
			return nil, fmt.Errorf("init local archive: %w", err)
		}
		return archive, nil
	case config.ArchiveGCS:
		a.logger.Info("archiving page bodies in GCS", zap.String("bucket", a.cfg.Archive.Bucket))
		client, err := storage.NewClient(ctx)
		if err != nil {
			return nil, fmt.Errorf("init gcs client: %w", err)
		}
		a.closers = append(a.closers, client.Close)
		archive, err := gcs.New(client, gcs.Config{Bucket: a.cfg.Archive.Bucket, Prefix: a.cfg.Archive.Prefix})
		if err != nil {
			return nil, fmt.Errorf("init gcs archive: %w", err)
		}
		return archive, nil
	default:
		return nil, fmt.Errorf("unknown archive driver: %s", a.cfg.Archive.Driver)
	}
}

// Close releases services in reverse order of construction and flushes the logger.
func (a *App) Close() {
	a.logger.Info("shutting down application services")
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			a.logger.Warn("error closing service", zap.Error(err))
		}
	}
	a.closers = nil
	_ = a.logger.Sync() //nolint:errcheck // stderr sync fails on some platforms
}
