package indexing

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/JakeFAU/site-indexer/internal/crawler"
	"github.com/JakeFAU/site-indexer/internal/metrics"
)

var (
	// ErrAlreadyRunning is returned when a job is requested while another is active.
	ErrAlreadyRunning = errors.New("indexing is already running")
	// ErrExecutorStopped is returned by StartIndexing once Run has returned.
	ErrExecutorStopped = errors.New("indexing executor is stopped")
)

const (
	finalWriteTimeout = 10 * time.Second
	tracerName        = "github.com/JakeFAU/site-indexer/internal/indexing"
)

// Job outcomes recorded in metrics.
const (
	outcomeCompleted = "completed"
	outcomeCanceled  = "canceled"
	outcomePanicked  = "panicked"
)

// SiteCrawler crawls one site and streams its pages into storage.
type SiteCrawler interface {
	Run(ctx context.Context, site crawler.Site) (crawler.RunStats, error)
}

// Options wires a Coordinator.
type Options struct {
	Sites     []crawler.SiteConfig
	Crawler   SiteCrawler
	SiteStore crawler.SiteStore
	PageStore crawler.PageStore
	IDs       crawler.IDGenerator
	Clock     crawler.Clock
	// Publisher is optional. Events are published only when Topic is set too.
	Publisher crawler.Publisher
	Topic     string
	Logger    *zap.Logger
	// Tracer defaults to the global provider's tracer.
	Tracer trace.Tracer
}

// JobResult summarizes one indexing job.
type JobResult struct {
	Indexed int
	Failed  int
	Skipped int
}

// Coordinator owns the single-flight guard and the indexing executor.
type Coordinator struct {
	opts   Options
	guard  Guard
	jobs   chan struct{}
	logger *zap.Logger

	// mu orders job hand-off against executor shutdown.
	mu      sync.Mutex
	stopped bool
}

// New validates opts and constructs a Coordinator.
func New(opts Options) (*Coordinator, error) {
	switch {
	case opts.Crawler == nil:
		return nil, fmt.Errorf("crawler is required")
	case opts.SiteStore == nil || opts.PageStore == nil:
		return nil, fmt.Errorf("site and page stores are required")
	case opts.IDs == nil:
		return nil, fmt.Errorf("id generator is required")
	case opts.Clock == nil:
		return nil, fmt.Errorf("clock is required")
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	if opts.Tracer == nil {
		opts.Tracer = otel.Tracer(tracerName)
	}
	return &Coordinator{
		opts:   opts,
		jobs:   make(chan struct{}, 1),
		logger: logger.Named("indexing"),
	}, nil
}

// IsIndexing reports whether a job is queued or running.
func (c *Coordinator) IsIndexing() bool {
	return c.guard.Held()
}

// StartIndexing schedules a job on the executor and returns without waiting.
// It returns ErrAlreadyRunning, with no side effects, when a job is active.
func (c *Coordinator) StartIndexing() error {
	if !c.guard.TryAcquire() {
		return ErrAlreadyRunning
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.stopped {
		c.guard.Release()
		return ErrExecutorStopped
	}
	metrics.SetIndexing(true)
	// The guard keeps the slot empty until the executor drains it.
	c.jobs <- struct{}{}
	c.logger.Info("indexing job scheduled", zap.Int("sites", len(c.opts.Sites)))
	return nil
}

// Run executes scheduled jobs until ctx ends. Cancelling ctx cancels the
// in-flight crawl; the current site is recorded as FAILED.
// Jobs accepted before Run starts wait for it; once Run returns, StartIndexing
// fails with ErrExecutorStopped until Run is called again.
func (c *Coordinator) Run(ctx context.Context) error {
	c.mu.Lock()
	c.stopped = false
	c.mu.Unlock()
	defer c.stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-c.jobs:
			c.runJob(ctx)
		}
	}
}

// stop rejects further jobs and drops one that was queued but never started.
func (c *Coordinator) stop() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.stopped = true
	select {
	case <-c.jobs:
		metrics.SetIndexing(false)
		c.guard.Release()
		c.logger.Warn("queued indexing job dropped at shutdown")
	default:
	}
}

// IndexAll runs one job synchronously on the caller's goroutine.
func (c *Coordinator) IndexAll(ctx context.Context) (JobResult, error) {
	if !c.guard.TryAcquire() {
		return JobResult{}, ErrAlreadyRunning
	}
	metrics.SetIndexing(true)
	res := c.runJob(ctx)
	if err := ctx.Err(); err != nil {
		return res, fmt.Errorf("indexing interrupted: %w", err)
	}
	return res, nil
}

// runJob indexes every configured site in order and releases the guard,
// including when a site panics past its own recovery.
func (c *Coordinator) runJob(ctx context.Context) (res JobResult) {
	start := time.Now()
	outcome := outcomeCompleted
	defer func() {
		if r := recover(); r != nil {
			outcome = outcomePanicked
			c.logger.Error("indexing job panicked",
				zap.Any("panic", r),
				zap.ByteString("stack", debug.Stack()),
			)
		}
		metrics.ObserveJob(outcome)
		metrics.SetIndexing(false)
		c.guard.Release()
		c.logger.Info("indexing job finished",
			zap.String("outcome", outcome),
			zap.Int("indexed", res.Indexed),
			zap.Int("failed", res.Failed),
			zap.Int("skipped", res.Skipped),
			zap.Duration("elapsed", time.Since(start)),
		)
	}()

	c.logger.Info("indexing job started", zap.Int("sites", len(c.opts.Sites)))
	for _, cfg := range c.opts.Sites {
		if ctx.Err() != nil {
			res.Skipped++
			continue
		}
		status, err := c.indexSite(ctx, cfg)
		switch {
		case status == crawler.SiteStatusIndexed:
			res.Indexed++
		case status == crawler.SiteStatusFailed:
			res.Failed++
		default:
			res.Skipped++
		}
		if err != nil {
			c.logger.Error("site not indexed", zap.String("site", cfg.URL), zap.Error(err))
		}
	}
	if ctx.Err() != nil {
		outcome = outcomeCanceled
	}
	return res
}

// indexSite runs the reset, INDEXING, crawl, final-status sequence for one site
// and returns the terminal status it recorded. An empty status means the site
// was skipped before it reached INDEXING.
func (c *Coordinator) indexSite(ctx context.Context, cfg crawler.SiteConfig) (status crawler.SiteStatus, err error) {
	ctx, span := c.opts.Tracer.Start(ctx, "index_site", trace.WithAttributes(
		attribute.String("site.url", cfg.URL),
		attribute.String("site.name", cfg.Name),
	))
	defer func() {
		span.SetAttributes(attribute.String("site.status", string(status)))
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}()
	logger := c.logger.With(zap.String("site", cfg.URL))

	deletedPages, err := c.opts.PageStore.DeleteBySiteURL(ctx, cfg.URL)
	if err != nil {
		return "", fmt.Errorf("reset pages: %w", err)
	}
	deletedSites, err := c.opts.SiteStore.DeleteByURL(ctx, cfg.URL)
	if err != nil {
		return "", fmt.Errorf("reset site: %w", err)
	}
	logger.Info("site reset",
		zap.Int64("deleted_pages", deletedPages),
		zap.Int64("deleted_sites", deletedSites),
	)

	id, err := c.opts.IDs.NewID()
	if err != nil {
		return "", fmt.Errorf("site id: %w", err)
	}
	site, err := c.opts.SiteStore.Save(ctx, crawler.Site{
		ID:         id,
		URL:        cfg.URL,
		Name:       cfg.Name,
		Status:     crawler.SiteStatusIndexing,
		StatusTime: c.opts.Clock.Now(),
	})
	if err != nil {
		return "", fmt.Errorf("save site: %w", err)
	}
	metrics.ObserveSiteStatus(string(crawler.SiteStatusIndexing))
	c.publish(ctx, site, 0)
	logger.Info("site indexing started", zap.String("site_id", site.ID))

	stats, crawlErr := c.crawl(ctx, site)
	span.SetAttributes(
		attribute.Int("crawl.pages", stats.Pages),
		attribute.Int("crawl.resources", stats.Resources),
	)
	if crawlErr != nil {
		span.RecordError(crawlErr)
	}

	prev := site.StatusTime
	if stats.LastStatusTime.After(prev) {
		prev = stats.LastStatusTime
	}
	site.StatusTime = crawler.AdvanceStatusTime(prev, c.opts.Clock.Now())
	site.Status = crawler.SiteStatusIndexed
	site.LastError = ""
	if crawlErr != nil {
		site.Status = crawler.SiteStatusFailed
		site.LastError = crawlErr.Error()
	}

	// The final write must land even when ctx was canceled mid-crawl.
	writeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), finalWriteTimeout)
	defer cancel()
	if err := c.opts.SiteStore.UpdateStatus(writeCtx, site.URL, site.Status, site.StatusTime, site.LastError); err != nil {
		return "", fmt.Errorf("record %s: %w", site.Status, err)
	}
	metrics.ObserveSiteStatus(string(site.Status))
	c.publish(writeCtx, site, stats.Pages+stats.Resources)

	fields := []zap.Field{
		zap.String("status", string(site.Status)),
		zap.Int("pages", stats.Pages),
		zap.Int("resources", stats.Resources),
		zap.Int("failures", stats.Failures),
	}
	if crawlErr != nil {
		logger.Warn("site indexing failed", append(fields, zap.Error(crawlErr))...)
	} else {
		logger.Info("site indexed", fields...)
	}
	return site.Status, nil
}

// crawl runs the crawler and turns a panic into an error so the site ends FAILED.
func (c *Coordinator) crawl(ctx context.Context, site crawler.Site) (stats crawler.RunStats, err error) {
	defer func() {
		if r := recover(); r != nil {
			c.logger.Error("crawl panicked",
				zap.String("site", site.URL),
				zap.Any("panic", r),
				zap.ByteString("stack", debug.Stack()),
			)
			err = fmt.Errorf("crawl panic: %v", r)
		}
	}()
	return c.opts.Crawler.Run(ctx, site)
}

func (c *Coordinator) publish(ctx context.Context, site crawler.Site, pages int) {
	if c.opts.Publisher == nil || c.opts.Topic == "" {
		return
	}
	event := crawler.SiteEvent{
		URL:        site.URL,
		Name:       site.Name,
		Status:     site.Status,
		StatusTime: site.StatusTime,
		Error:      site.LastError,
		Pages:      pages,
	}
	if _, err := c.opts.Publisher.Publish(ctx, c.opts.Topic, event); err != nil {
		c.logger.Warn("publish site event failed",
			zap.String("site", site.URL),
			zap.String("status", string(site.Status)),
			zap.Error(err),
		)
	}
}
