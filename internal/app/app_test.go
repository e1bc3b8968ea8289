package app_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/JakeFAU/site-indexer/internal/app"
	"github.com/JakeFAU/site-indexer/internal/config"
	"github.com/JakeFAU/site-indexer/internal/crawler"
)

func baseConfig() config.Config {
	return config.Config{
		Server:  config.ServerConfig{Port: 8080},
		Crawler: config.CrawlerConfig{Concurrency: 2, HeartbeatSeconds: 10, UserAgent: "app-test", Fetcher: config.FetcherColly},
		HTTP:    config.HTTPConfig{TimeoutSeconds: 5},
		Storage: config.StorageConfig{Driver: config.DriverMemory},
		Archive: config.ArchiveConfig{Driver: config.ArchiveNone},
	}
}

func TestNewWithMemoryStorageIndexesSite(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		switch r.URL.Path {
		case "/":
			_, _ = w.Write([]byte(`<a href="/about">about</a>`))
		case "/about":
			_, _ = w.Write([]byte(`<a href="/">home</a>`))
		default:
			http.NotFound(w, r)
		}
	}))
	t.Cleanup(srv.Close)

	cfg := baseConfig()
	cfg.Indexing.Sites = []crawler.SiteConfig{{URL: srv.URL + "/", Name: "Local"}}

	a, err := app.New(context.Background(), cfg, zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(a.Close)

	require.NoError(t, a.Ready(context.Background()))
	res, err := a.Coordinator().IndexAll(context.Background())
	require.NoError(t, err)
	require.Equal(t, 1, res.Indexed)

	stats, err := a.Statistics().Get(context.Background())
	require.NoError(t, err)
	require.Len(t, stats.Detailed, 1)
	require.Equal(t, "INDEXED", stats.Detailed[0].Status)
	require.EqualValues(t, 2, stats.Detailed[0].Pages)
	require.False(t, stats.Total.Indexing)
}

func TestNewArchivesPageBodiesLocally(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/" {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "text/html")
		_, _ = w.Write([]byte(`<h1>archived home</h1>`))
	}))
	t.Cleanup(srv.Close)

	dir := t.TempDir()
	cfg := baseConfig()
	cfg.Archive = config.ArchiveConfig{Driver: config.ArchiveLocal, BaseDir: dir}
	cfg.Indexing.Sites = []crawler.SiteConfig{{URL: srv.URL + "/", Name: "Archived"}}

	a, err := app.New(context.Background(), cfg, zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(a.Close)

	_, err = a.Coordinator().IndexAll(context.Background())
	require.NoError(t, err)

	matches, err := filepath.Glob(filepath.Join(dir, "sites", "*", "pages", "*.html"))
	require.NoError(t, err)
	require.Len(t, matches, 1)
	// #nosec G304 -- reads from the test temp directory.
	body, err := os.ReadFile(matches[0])
	require.NoError(t, err)
	require.Equal(t, `<h1>archived home</h1>`, string(body))
}

func TestNewHeadlessFetcherStartsWithoutBrowser(t *testing.T) {
	t.Parallel()

	cfg := baseConfig()
	cfg.Crawler.Fetcher = config.FetcherHeadless
	cfg.Crawler.Headless = config.HeadlessConfig{MaxParallel: 1, NavigationTimeoutSeconds: 5}

	a, err := app.New(context.Background(), cfg, zap.NewNop())
	require.NoError(t, err)
	a.Close()
}

func TestNewRejectsUnknownFetcherAndArchive(t *testing.T) {
	t.Parallel()

	cfg := baseConfig()
	cfg.Crawler.Fetcher = "curl"
	_, err := app.New(context.Background(), cfg, zap.NewNop())
	require.ErrorContains(t, err, "unknown fetcher")

	cfg = baseConfig()
	cfg.Archive.Driver = "s3"
	_, err = app.New(context.Background(), cfg, zap.NewNop())
	require.ErrorContains(t, err, "unknown archive driver")
}

func TestNewRejectsUnknownDriver(t *testing.T) {
	t.Parallel()

	cfg := baseConfig()
	cfg.Storage.Driver = "sqlite"
	_, err := app.New(context.Background(), cfg, zap.NewNop())
	require.ErrorContains(t, err, "unknown storage driver")
}

func TestNewFailsFastOnUnreachablePostgres(t *testing.T) {
	t.Parallel()

	cfg := baseConfig()
	cfg.Storage.Driver = config.DriverPostgres
	cfg.DB.DSN = "postgres://indexer@127.0.0.1:1/indexer?connect_timeout=1"

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_, err := app.New(ctx, cfg, zap.NewNop())
	require.ErrorContains(t, err, "init postgres")
}
