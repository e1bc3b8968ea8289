// Package headless renders pages in headless Chrome so links injected by
// JavaScript are indexed too.
package headless

import (
	"context"
	"errors"
	"fmt"
	"mime"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/chromedp/cdproto/emulation"
	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/chromedp"

	"github.com/JakeFAU/site-indexer/internal/crawler"
)

const defaultNavigationTimeout = 45 * time.Second

// Config controls the headless fetcher.
type Config struct {
	// MaxParallel caps concurrent browser tabs. Zero means no cap.
	MaxParallel       int
	UserAgent         string
	NavigationTimeout time.Duration
	// Direct serves HEAD requests and documents a browser cannot render as markup.
	Direct crawler.Fetcher
}

// Fetcher implements crawler.Fetcher on top of chromedp.
type Fetcher struct {
	cfg         Config
	tabs        chan struct{}
	allocator   context.Context
	allocCancel context.CancelFunc
}

// NewChromedp builds a Fetcher. Chrome is launched lazily on the first render.
func NewChromedp(cfg Config) (*Fetcher, error) {
	if cfg.MaxParallel < 0 {
		return nil, fmt.Errorf("max parallel must be >= 0, got %d", cfg.MaxParallel)
	}
	if cfg.Direct == nil {
		return nil, errors.New("direct fetcher is required")
	}
	var tabs chan struct{}
	if cfg.MaxParallel > 0 {
		tabs = make(chan struct{}, cfg.MaxParallel)
	}

	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", "new"),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("hide-scrollbars", true),
		chromedp.Flag("enable-automation", false),
	)
	allocCtx, allocCancel := chromedp.NewExecAllocator(context.Background(), opts...)

	return &Fetcher{
		cfg:         cfg,
		tabs:        tabs,
		allocator:   allocCtx,
		allocCancel: allocCancel,
	}, nil
}

// Close shuts the browser down.
func (f *Fetcher) Close() error {
	f.allocCancel()
	return nil
}

// Fetch renders GET requests and hands everything else to the direct fetcher.
func (f *Fetcher) Fetch(ctx context.Context, request crawler.FetchRequest) (crawler.FetchResponse, error) {
	if request.Method != "" && request.Method != http.MethodGet {
		return f.cfg.Direct.Fetch(ctx, request)
	}
	if err := f.acquire(ctx); err != nil {
		return crawler.FetchResponse{}, err
	}
	defer f.release()

	start := time.Now()
	doc := &documentMeta{}
	html, finalURL, err := f.render(ctx, request.URL, doc)
	snap := doc.snapshot(request.URL, finalURL)
	if snap.seen && !renderable(snap.contentType) {
		// PDFs and feeds open a viewer or a download; fetch the raw bytes instead.
		return f.cfg.Direct.Fetch(ctx, request)
	}
	if err != nil {
		return crawler.FetchResponse{}, err
	}

	return crawler.FetchResponse{
		URL:         snap.url,
		StatusCode:  snap.status,
		ContentType: snap.contentType,
		Body:        []byte(html),
		Duration:    time.Since(start),
	}, nil
}

func (f *Fetcher) render(ctx context.Context, target string, doc *documentMeta) (string, string, error) {
	tabCtx, tabCancel := chromedp.NewContext(f.allocator)
	defer tabCancel()
	// The tab derives from the allocator rather than ctx, so cancellation is bridged.
	stop := context.AfterFunc(ctx, tabCancel)
	defer stop()

	tabCtx, cancel := context.WithTimeout(tabCtx, f.navTimeout())
	defer cancel()

	chromedp.ListenTarget(tabCtx, doc.listen)

	var html, finalURL string
	err := chromedp.Run(tabCtx,
		f.setupAction(),
		chromedp.Navigate(target),
		chromedp.WaitReady("body", chromedp.ByQuery),
		chromedp.Sleep(500*time.Millisecond),
		chromedp.Location(&finalURL),
		chromedp.OuterHTML("html", &html, chromedp.ByQuery),
	)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return "", "", ctxErr
		}
		return "", "", fmt.Errorf("render %s: %w", target, err)
	}
	return html, finalURL, nil
}

func (f *Fetcher) setupAction() chromedp.Action {
	return chromedp.ActionFunc(func(ctx context.Context) error {
		if err := network.Enable().Do(ctx); err != nil {
			return fmt.Errorf("enable network domain: %w", err)
		}
		if f.cfg.UserAgent == "" {
			return nil
		}
		if err := emulation.SetUserAgentOverride(f.cfg.UserAgent).Do(ctx); err != nil {
			return fmt.Errorf("set user-agent: %w", err)
		}
		return nil
	})
}

func (f *Fetcher) acquire(ctx context.Context) error {
	if f.tabs == nil {
		return nil
	}
	select {
	case f.tabs <- struct{}{}:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("wait for browser tab: %w", ctx.Err())
	}
}

func (f *Fetcher) release() {
	if f.tabs == nil {
		return
	}
	<-f.tabs
}

func (f *Fetcher) navTimeout() time.Duration {
	if f.cfg.NavigationTimeout > 0 {
		return f.cfg.NavigationTimeout
	}
	return defaultNavigationTimeout
}

// documentMeta records the main document response seen by the browser.
type documentMeta struct {
	mu          sync.Mutex
	seen        bool
	status      int
	url         string
	contentType string
}

type documentSnapshot struct {
	seen        bool
	status      int
	url         string
	contentType string
}

func (m *documentMeta) listen(ev any) {
	if resp, ok := ev.(*network.EventResponseReceived); ok {
		m.capture(resp)
	}
}

func (m *documentMeta) capture(event *network.EventResponseReceived) {
	if event.Type != network.ResourceTypeDocument || event.Response == nil {
		return
	}
	contentType := headerValue(event.Response.Headers, "Content-Type")
	if contentType == "" {
		contentType = event.Response.MimeType
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.seen = true
	m.status = int(event.Response.Status)
	m.url = event.Response.URL
	m.contentType = contentType
}

// snapshot fills gaps left by a navigation that never reported a document.
func (m *documentMeta) snapshot(requestURL, finalURL string) documentSnapshot {
	m.mu.Lock()
	snap := documentSnapshot{seen: m.seen, status: m.status, url: m.url, contentType: m.contentType}
	m.mu.Unlock()

	switch {
	case snap.url != "":
	case finalURL != "":
		snap.url = finalURL
	default:
		snap.url = requestURL
	}
	if snap.status == 0 {
		snap.status = http.StatusOK
	}
	if snap.contentType == "" {
		snap.contentType = "text/html"
	}
	return snap
}

// renderable reports whether the browser's DOM is the document itself.
func renderable(contentType string) bool {
	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		mediaType, _, _ = strings.Cut(contentType, ";")
	}
	switch strings.ToLower(strings.TrimSpace(mediaType)) {
	case "text/html", "application/xhtml+xml":
		return true
	default:
		return false
	}
}

func headerValue(headers network.Headers, name string) string {
	h := http.Header{}
	for key, value := range headers {
		switch v := value.(type) {
		case string:
			h.Add(key, v)
		case []any:
			for _, entry := range v {
				h.Add(key, fmt.Sprint(entry))
			}
		default:
			h.Add(key, fmt.Sprint(v))
		}
	}
	return h.Get(name)
}
