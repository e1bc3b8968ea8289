package crawler

import (
	"context"
	"io"
	"time"
)

// SiteStore persists site records keyed by URL.
type SiteStore interface {
	// Save upserts the site by URL and returns the stored record.
	Save(ctx context.Context, site Site) (Site, error)
	UpdateStatus(ctx context.Context, url string, status SiteStatus, at time.Time, lastError string) error
	// Touch refreshes the status time of a site that is still indexing.
	Touch(ctx context.Context, url string, at time.Time) error
	DeleteByURL(ctx context.Context, url string) (int64, error)
	// FindByURL returns ErrSiteNotFound when no site matches.
	FindByURL(ctx context.Context, url string) (Site, error)
	List(ctx context.Context) ([]Site, error)
}

// PageStore persists page records keyed by (site, path).
type PageStore interface {
	Save(ctx context.Context, page Page) error
	DeleteBySiteURL(ctx context.Context, siteURL string) (int64, error)
	CountBySiteURL(ctx context.Context, siteURL string) (int64, error)
	ListBySiteURL(ctx context.Context, siteURL string) ([]Page, error)
	Count(ctx context.Context) (int64, error)
}

// Fetcher fetches a URL and returns the body plus metadata.
type Fetcher interface {
	Fetch(ctx context.Context, request FetchRequest) (FetchResponse, error)
}

// Archive keeps raw page bodies in a blob store (local disk, GCS) and
// returns the URI of the stored object.
type Archive interface {
	PutObject(ctx context.Context, path, contentType string, body io.Reader) (string, error)
}

// Publisher pushes site events to Pub/Sub (or similar).
type Publisher interface {
	Publish(ctx context.Context, topic string, payload any) (string, error)
}

// Clock returns the current time (useful for testing).
type Clock interface {
	Now() time.Time
}

// IDGenerator produces record IDs (UUIDs).
type IDGenerator interface {
	NewID() (string, error)
}
