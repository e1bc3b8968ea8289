package api

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/JakeFAU/site-indexer/internal/crawler"
	"github.com/JakeFAU/site-indexer/internal/indexing"
	"github.com/JakeFAU/site-indexer/internal/statistics"
	"github.com/JakeFAU/site-indexer/internal/storage/memory"
)

func TestServer_StartIndexing_Succeeds(t *testing.T) {
	t.Parallel()

	idx := &fakeIndexer{}
	server := NewServer(idx, &fakeStats{}, Config{}, zap.NewNop())

	rec := serve(server, "/api/startIndexing")

	require.Equal(t, http.StatusOK, rec.Code)
	require.JSONEq(t, `{"result":true}`, rec.Body.String())
	require.Equal(t, 1, idx.calls)
}

func TestServer_StartIndexing_AlreadyRunning(t *testing.T) {
	t.Parallel()

	idx := &fakeIndexer{err: indexing.ErrAlreadyRunning}
	server := NewServer(idx, &fakeStats{}, Config{}, zap.NewNop())

	rec := serve(server, "/api/startIndexing")

	require.Equal(t, http.StatusBadRequest, rec.Code)
	require.JSONEq(t, `{"result":false,"error":"Indexing is already running"}`, rec.Body.String())
}

func TestServer_StartIndexing_ExecutorStopped(t *testing.T) {
	t.Parallel()

	server := NewServer(&fakeIndexer{err: indexing.ErrExecutorStopped}, &fakeStats{}, Config{}, zap.NewNop())

	rec := serve(server, "/api/startIndexing")

	require.Equal(t, http.StatusServiceUnavailable, rec.Code)
	require.JSONEq(t, `{"result":false,"error":"Indexing is unavailable while the service shuts down"}`, rec.Body.String())
}

func TestServer_StartIndexing_UnexpectedError(t *testing.T) {
	t.Parallel()

	server := NewServer(&fakeIndexer{err: errors.New("boom")}, &fakeStats{}, Config{}, zap.NewNop())

	rec := serve(server, "/api/startIndexing")

	require.Equal(t, http.StatusInternalServerError, rec.Code)
	require.Contains(t, rec.Body.String(), `"result":false`)
}

func TestServer_StartIndexing_WithCoordinator(t *testing.T) {
	t.Parallel()

	release := make(chan struct{})
	coord, err := indexing.New(indexing.Options{
		Sites:     []crawler.SiteConfig{{URL: "https://a.example/", Name: "A"}},
		Crawler:   blockingCrawler(release),
		SiteStore: memory.NewSiteStore(),
		PageStore: memory.NewPageStore(),
		IDs:       &fakeIDGen{},
		Clock:     &fakeClock{now: time.Unix(100, 0)},
	})
	require.NoError(t, err)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = coord.Run(ctx) }()

	server := NewServer(coord, &fakeStats{}, Config{}, zap.NewNop())
	require.Equal(t, http.StatusOK, serve(server, "/api/startIndexing").Code)
	require.Equal(t, http.StatusBadRequest, serve(server, "/api/startIndexing").Code)

	close(release)
	require.Eventually(t, func() bool { return !coord.IsIndexing() }, time.Second, 5*time.Millisecond)
	require.Equal(t, http.StatusOK, serve(server, "/api/startIndexing").Code)
}

func TestServer_Statistics_ReturnsPayload(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	sites := memory.NewSiteStore()
	pages := memory.NewPageStore()
	at := time.UnixMilli(1714564800000).UTC()
	_, err := sites.Save(ctx, crawler.Site{ID: "01", URL: "https://a.example/", Name: "A", Status: crawler.SiteStatusIndexing, StatusTime: at})
	require.NoError(t, err)
	require.NoError(t, sites.UpdateStatus(ctx, "https://a.example/", crawler.SiteStatusFailed, at, "root down"))
	require.NoError(t, pages.Save(ctx, crawler.Page{SiteURL: "https://a.example/", Path: "https://a.example/"}))

	server := NewServer(&fakeIndexer{}, statistics.New(sites, pages, staticState(true)), Config{}, zap.NewNop())
	rec := serve(server, "/api/statistics")

	require.Equal(t, http.StatusOK, rec.Code)
	require.JSONEq(t, `{
		"result": true,
		"statistics": {
			"total": {"sites": 1, "pages": 1, "indexing": true},
			"detailed": [{
				"url": "https://a.example/",
				"name": "A",
				"status": "FAILED",
				"statusTime": 1714564800000,
				"error": "root down",
				"pages": 1
			}]
		}
	}`, rec.Body.String())
}

func TestServer_Statistics_Error(t *testing.T) {
	t.Parallel()

	server := NewServer(&fakeIndexer{}, &fakeStats{err: errors.New("db down")}, Config{}, zap.NewNop())
	rec := serve(server, "/api/statistics")

	require.Equal(t, http.StatusInternalServerError, rec.Code)
	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Equal(t, false, body["result"])
	require.Equal(t, "failed to load statistics", body["error"])
}

func TestServer_HealthEndpoints(t *testing.T) {
	t.Parallel()

	server := NewServer(&fakeIndexer{}, &fakeStats{}, Config{}, zap.NewNop())
	require.Equal(t, http.StatusOK, serve(server, "/healthz").Code)
	require.Equal(t, http.StatusOK, serve(server, "/readyz").Code)

	notReady := NewServer(&fakeIndexer{}, &fakeStats{}, Config{
		Ready: func(context.Context) error { return errors.New("db unreachable") },
	}, zap.NewNop())
	require.Equal(t, http.StatusServiceUnavailable, serve(notReady, "/readyz").Code)
}

func TestServer_MetricsEndpoint(t *testing.T) {
	t.Parallel()

	server := NewServer(&fakeIndexer{}, &fakeStats{}, Config{}, zap.NewNop())
	serve(server, "/healthz")
	rec := serve(server, "/metrics")

	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), "http_requests_total")
}

func TestServer_RecoversPanics(t *testing.T) {
	t.Parallel()

	server := NewServer(panicIndexer{}, &fakeStats{}, Config{}, zap.NewNop())
	rec := serve(server, "/api/startIndexing")

	require.Equal(t, http.StatusInternalServerError, rec.Code)
	require.Contains(t, rec.Body.String(), "internal server error")
}

func TestRequestIDMiddlewareSetsHeader(t *testing.T) {
	t.Parallel()

	server := NewServer(&fakeIndexer{}, &fakeStats{}, Config{}, zap.NewNop())
	rec := serve(server, "/healthz")
	require.NotEmpty(t, rec.Header().Get("X-Request-ID"))

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	req.Header.Set("X-Request-ID", "caller-id")
	rec = httptest.NewRecorder()
	server.Handler().ServeHTTP(rec, req)
	require.Equal(t, "caller-id", rec.Header().Get("X-Request-ID"))
}

func TestResponseWriterHijackBehavior(t *testing.T) {
	t.Parallel()

	rw := &responseWriter{ResponseWriter: httptest.NewRecorder()}
	if _, _, err := rw.Hijack(); err == nil || err.Error() != "hijacker not supported" {
		t.Fatalf("expected unsupported hijacker error, got %v", err)
	}

	h := &hijackableRecorder{ResponseRecorder: httptest.NewRecorder()}
	rw = &responseWriter{ResponseWriter: h}
	conn, buf, err := rw.Hijack()
	if err != nil {
		t.Fatalf("expected successful hijack, got %v", err)
	}
	if err := conn.Close(); err != nil {
		t.Fatalf("close hijacked conn: %v", err)
	}
	if err := h.CloseClient(); err != nil {
		t.Fatalf("close hijacked client: %v", err)
	}
	if buf == nil {
		t.Fatal("expected buf to be non-nil")
	}
}

// --- helpers/fakes ---

func serve(s *Server, path string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, path, nil)
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	return rec
}

type fakeIndexer struct {
	calls int
	err   error
}

func (f *fakeIndexer) StartIndexing() error {
	f.calls++
	return f.err
}

type panicIndexer struct{}

func (panicIndexer) StartIndexing() error { panic("boom") }

type fakeStats struct {
	stats statistics.Statistics
	err   error
}

func (f *fakeStats) Get(context.Context) (statistics.Statistics, error) {
	return f.stats, f.err
}

type staticState bool

func (s staticState) IsIndexing() bool { return bool(s) }

type crawlerFunc func(ctx context.Context, site crawler.Site) (crawler.RunStats, error)

func (f crawlerFunc) Run(ctx context.Context, site crawler.Site) (crawler.RunStats, error) {
	return f(ctx, site)
}

func blockingCrawler(release <-chan struct{}) crawlerFunc {
	return func(_ context.Context, site crawler.Site) (crawler.RunStats, error) {
		<-release
		return crawler.RunStats{LastStatusTime: site.StatusTime}, nil
	}
}

type fakeIDGen struct {
	n int
}

func (f *fakeIDGen) NewID() (string, error) {
	f.n++
	return fmt.Sprintf("id-%d", f.n), nil
}

type fakeClock struct {
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	return c.now
}

type hijackableRecorder struct {
	*httptest.ResponseRecorder
	client net.Conn
}

func (h *hijackableRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	server, client := net.Pipe()
	h.client = client
	return server, bufio.NewReadWriter(bufio.NewReader(client), bufio.NewWriter(client)), nil
}

func (h *hijackableRecorder) CloseClient() error {
	if h.client != nil {
		if err := h.client.Close(); err != nil {
			return fmt.Errorf("close hijacker client: %w", err)
		}
	}
	return nil
}
