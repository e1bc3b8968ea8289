package crawler

import (
	"context"
	"fmt"
	"net/http"

	"go.uber.org/zap"

	"github.com/JakeFAU/site-indexer/internal/metrics"
)

type taskKind int

const (
	taskPage taskKind = iota
	taskResource
)

func (k taskKind) String() string {
	if k == taskResource {
		return metrics.KindResource
	}
	return metrics.KindPage
}

// task is one admitted URL waiting for a fetch.
type task struct {
	url  string
	kind taskKind
}

// result carries a finished fetch back to the crawl loop.
type result struct {
	task  task
	resp  FetchResponse
	links Links
	err   error
}

// worker fetches tasks until the channel closes or the context ends.
func (c *Crawler) worker(ctx context.Context, tasks <-chan task, results chan<- result) {
	for t := range tasks {
		res := c.process(ctx, t)
		select {
		case results <- res:
		case <-ctx.Done():
			return
		}
	}
}

func (c *Crawler) process(ctx context.Context, t task) result {
	method := http.MethodGet
	if t.kind == taskResource {
		method = http.MethodHead
	}

	resp, err := c.fetcher.Fetch(ctx, FetchRequest{URL: t.url, Method: method})
	if err != nil {
		return result{task: t, err: fmt.Errorf("fetch %s: %w", t.url, err)}
	}
	metrics.ObserveFetch(method, resp.Duration)
	if !resp.OK() {
		return result{task: t, resp: resp, err: fmt.Errorf("fetch %s: unexpected status %d", t.url, resp.StatusCode)}
	}

	res := result{task: t, resp: resp}
	if t.kind == taskPage && IsTextual(resp.ContentType) {
		base := resp.URL
		if base == "" {
			base = t.url
		}
		links, err := ExtractLinks(base, resp.Body)
		if err != nil {
			c.logger.Warn("link extraction failed", zap.String("url", t.url), zap.Error(err))
		}
		res.links = links
	}
	return res
}
