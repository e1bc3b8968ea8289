package crawler

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/site-indexer/internal/metrics"
)

// Crawler walks every same-origin page reachable from a site's root URL and
// streams one Page record per unique URL into the PageStore.
type Crawler struct {
	fetcher Fetcher
	pages   PageStore
	sites   SiteStore
	ids     IDGenerator
	clock   Clock
	archive Archive
	cfg     Config
	logger  *zap.Logger
}

// Option customizes a Crawler.
type Option func(*Crawler)

// WithArchive stores the raw body of every textual page in archive as well.
// Archive failures are logged and counted but never fail the crawl.
func WithArchive(archive Archive) Option {
	return func(c *Crawler) {
		c.archive = archive
	}
}

// New constructs a Crawler.
func New(
	fetcher Fetcher,
	pages PageStore,
	sites SiteStore,
	ids IDGenerator,
	clock Clock,
	cfg Config,
	logger *zap.Logger,
	opts ...Option,
) *Crawler {
	if logger == nil {
		logger = zap.NewNop()
	}
	c := &Crawler{
		fetcher: fetcher,
		pages:   pages,
		sites:   sites,
		ids:     ids,
		clock:   clock,
		cfg:     cfg.withDefaults(),
		logger:  logger,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// run is the state owned by one Run call. Only the Run loop touches it.
type run struct {
	site     Site
	scope    Scope
	visited  *VisitedSet
	stats    RunStats
	lastBeat time.Time
	logger   *zap.Logger
}

// Run crawls site and blocks until the reachable same-origin set is exhausted.
// Per-URL fetch failures are logged and skipped. An unreachable root, a store
// failure, the crawl deadline, or cancellation of ctx end the crawl with an error.
func (c *Crawler) Run(ctx context.Context, site Site) (RunStats, error) {
	scope, err := NewScope(site.URL)
	if err != nil {
		return RunStats{}, fmt.Errorf("site scope: %w", err)
	}

	runCtx := ctx
	if c.cfg.Deadline > 0 {
		var cancelDeadline context.CancelFunc
		runCtx, cancelDeadline = context.WithTimeout(ctx, c.cfg.Deadline)
		defer cancelDeadline()
	}
	workCtx, stop := context.WithCancel(runCtx)

	tasks := make(chan task)
	results := make(chan result, c.cfg.Concurrency)
	var wg sync.WaitGroup
	for i := 0; i < c.cfg.Concurrency; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			c.worker(workCtx, tasks, results)
		}()
	}
	defer func() {
		stop()
		close(tasks)
		wg.Wait()
	}()

	r := &run{
		site:     site,
		scope:    scope,
		visited:  NewVisitedSet(),
		stats:    RunStats{LastStatusTime: site.StatusTime},
		lastBeat: c.clock.Now(),
		logger:   c.logger.With(zap.String("site", site.URL)),
	}
	r.visited.TryVisit(scope.Root())
	queue := []task{{url: scope.Root(), kind: taskPage}}
	inflight := 0

	r.logger.Info("crawl started", zap.Int("concurrency", c.cfg.Concurrency))
	for len(queue) > 0 || inflight > 0 {
		var out chan<- task
		var next task
		if len(queue) > 0 {
			out = tasks
			next = queue[0]
		}

		select {
		case out <- next:
			queue = queue[1:]
			inflight++
		case res := <-results:
			inflight--
			discovered, err := c.handle(runCtx, ctx, r, res)
			if err != nil {
				return r.stats, err
			}
			queue = append(queue, discovered...)
		case <-runCtx.Done():
			return r.stats, contextError(ctx, runCtx, c.cfg.Deadline)
		}
	}

	r.logger.Info("crawl finished",
		zap.Int("pages", r.stats.Pages),
		zap.Int("resources", r.stats.Resources),
		zap.Int("failures", r.stats.Failures),
		zap.Int("visited", r.visited.Len()),
	)
	return r.stats, nil
}

// handle persists one fetch result and returns the newly admitted tasks.
func (c *Crawler) handle(runCtx, parent context.Context, r *run, res result) ([]task, error) {
	if res.err != nil {
		if runCtx.Err() != nil {
			return nil, contextError(parent, runCtx, c.cfg.Deadline)
		}
		if res.task.url == r.scope.Root() {
			return nil, fmt.Errorf("%w: %w", ErrRootUnavailable, res.err)
		}
		r.stats.Failures++
		reason := "fetch"
		if res.resp.StatusCode != 0 {
			reason = "status"
		}
		metrics.ObserveFetchFailure(r.site.URL, reason)
		r.logger.Warn("skipping url",
			zap.String("url", res.task.url),
			zap.String("kind", res.task.kind.String()),
			zap.Int("status", res.resp.StatusCode),
			zap.Error(res.err),
		)
		return nil, nil
	}

	// A resource reference can point at a document, e.g. <link rel="alternate">.
	// The HEAD response's content type decides: documents are fetched again as pages.
	if res.task.kind == taskResource && IsMarkup(res.resp.ContentType) {
		r.logger.Debug("resource reference is a document",
			zap.String("url", res.task.url),
			zap.String("content_type", res.resp.ContentType),
		)
		return []task{{url: res.task.url, kind: taskPage}}, nil
	}

	if res.task.kind == taskResource && !IsIndexableResource(res.resp.ContentType) {
		r.logger.Debug("skipping resource with unsupported content type",
			zap.String("url", res.task.url),
			zap.String("content_type", res.resp.ContentType),
		)
		return nil, nil
	}

	if err := c.persist(runCtx, r, res); err != nil {
		return nil, err
	}
	if err := c.heartbeat(runCtx, r); err != nil {
		return nil, err
	}

	var discovered []task
	admit := func(urls []string, kind taskKind) {
		for _, u := range urls {
			if r.scope.Contains(u) && r.visited.TryVisit(u) {
				discovered = append(discovered, task{url: u, kind: kind})
			}
		}
	}
	admit(res.links.Pages, taskPage)
	admit(res.links.Resources, taskResource)
	return discovered, nil
}

func (c *Crawler) persist(ctx context.Context, r *run, res result) error {
	id, err := c.ids.NewID()
	if err != nil {
		return fmt.Errorf("page id: %w", err)
	}
	page := Page{
		ID:         id,
		SiteID:     r.site.ID,
		SiteURL:    r.site.URL,
		Path:       res.task.url,
		StatusCode: res.resp.StatusCode,
	}
	if res.task.kind == taskPage && IsTextual(res.resp.ContentType) {
		page.Content = string(res.resp.Body)
	}
	if err := c.pages.Save(ctx, page); err != nil {
		return fmt.Errorf("save page %s: %w", page.Path, err)
	}
	if page.Content != "" {
		c.archiveBody(ctx, r, page, res.resp.ContentType)
	}

	if res.task.kind == taskResource {
		r.stats.Resources++
	} else {
		r.stats.Pages++
	}
	metrics.ObservePage(r.site.URL, res.task.kind.String(), len(page.Content))
	r.logger.Debug("page saved",
		zap.String("url", page.Path),
		zap.Int("status", page.StatusCode),
		zap.Int("bytes", len(page.Content)),
	)
	return nil
}

func (c *Crawler) archiveBody(ctx context.Context, r *run, page Page, contentType string) {
	if c.archive == nil {
		return
	}
	key := ArchiveKey(page.SiteID, page.ID, contentType)
	uri, err := c.archive.PutObject(ctx, key, contentType, strings.NewReader(page.Content))
	if err != nil {
		metrics.ObserveArchiveFailure(r.site.URL)
		r.logger.Warn("archive page body failed",
			zap.String("url", page.Path),
			zap.String("key", key),
			zap.Error(err),
		)
		return
	}
	r.logger.Debug("page body archived", zap.String("url", page.Path), zap.String("uri", uri))
}

// heartbeat refreshes the site's status time at most once per interval so a
// long crawl stays observably alive.
func (c *Crawler) heartbeat(ctx context.Context, r *run) error {
	now := c.clock.Now()
	if now.Sub(r.lastBeat) < c.cfg.HeartbeatInterval {
		return nil
	}
	at := AdvanceStatusTime(r.stats.LastStatusTime, now)
	if err := c.sites.Touch(ctx, r.site.URL, at); err != nil {
		return fmt.Errorf("heartbeat: %w", err)
	}
	r.lastBeat = now
	r.stats.LastStatusTime = at
	return nil
}

func contextError(parent, runCtx context.Context, deadline time.Duration) error {
	if parent.Err() != nil {
		return fmt.Errorf("crawl canceled: %w", parent.Err())
	}
	if errors.Is(runCtx.Err(), context.DeadlineExceeded) {
		return fmt.Errorf("%w after %s", ErrCrawlDeadline, deadline)
	}
	return fmt.Errorf("crawl stopped: %w", runCtx.Err())
}
