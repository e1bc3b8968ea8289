package crawler

import (
	"errors"
	"time"
)

// SiteStatus represents the indexing state of a site.
type SiteStatus string

// Site status values persisted in the site store.
const (
	SiteStatusIndexing SiteStatus = "INDEXING"
	SiteStatusIndexed  SiteStatus = "INDEXED"
	SiteStatusFailed   SiteStatus = "FAILED"
)

var (
	// ErrSiteNotFound is returned by site stores when no site matches a URL.
	ErrSiteNotFound = errors.New("site not found")
	// ErrInvalidTransition is returned when a status change violates the site state machine.
	ErrInvalidTransition = errors.New("invalid site status transition")
	// ErrRootUnavailable means the site's root URL could not be fetched, so nothing was crawled.
	ErrRootUnavailable = errors.New("site root unavailable")
	// ErrCrawlDeadline means the per-site crawl deadline elapsed before traversal finished.
	ErrCrawlDeadline = errors.New("crawl deadline exceeded")
)

// CanTransition reports whether a site may move from s to next. The empty
// status stands for a site that has no record yet.
func (s SiteStatus) CanTransition(next SiteStatus) bool {
	switch s {
	case "":
		return next == SiteStatusIndexing
	case SiteStatusIndexing:
		return next == SiteStatusIndexed || next == SiteStatusFailed
	default:
		return false
	}
}

// SiteConfig is one configured (url, name) pair to index.
type SiteConfig struct {
	URL  string `json:"url" mapstructure:"url"`
	Name string `json:"name" mapstructure:"name"`
}

// Site is the persisted record for an indexed website.
type Site struct {
	ID         string     `json:"id"`
	URL        string     `json:"url"`
	Name       string     `json:"name"`
	Status     SiteStatus `json:"status"`
	StatusTime time.Time  `json:"status_time"`
	LastError  string     `json:"last_error,omitempty"`
}

// Page is persisted once per unique URL discovered while crawling a site.
// Content is empty for media and other non-text resources.
type Page struct {
	ID         string `json:"id"`
	SiteID     string `json:"site_id"`
	SiteURL    string `json:"site_url"`
	Path       string `json:"path"`
	StatusCode int    `json:"status_code"`
	Content    string `json:"content"`
}

// FetchRequest captures everything needed to fetch a URL.
type FetchRequest struct {
	URL    string
	Method string
}

// FetchResponse is the result returned by a Fetcher implementation.
type FetchResponse struct {
	URL         string
	StatusCode  int
	ContentType string
	Body        []byte
	Duration    time.Duration
}

// OK reports whether the response carried a 2xx status.
func (r FetchResponse) OK() bool {
	return r.StatusCode >= 200 && r.StatusCode < 300
}

// RunStats summarizes one site crawl.
type RunStats struct {
	Pages          int
	Resources      int
	Failures       int
	LastStatusTime time.Time
}

// SiteEvent is published whenever a site changes status.
type SiteEvent struct {
	URL        string     `json:"url"`
	Name       string     `json:"name"`
	Status     SiteStatus `json:"status"`
	StatusTime time.Time  `json:"status_time"`
	Error      string     `json:"error,omitempty"`
	Pages      int        `json:"pages"`
}

// AdvanceStatusTime returns now, or the smallest representable instant after
// prev when the clock has not moved past it. Stores keep microsecond precision.
func AdvanceStatusTime(prev, now time.Time) time.Time {
	if now.Sub(prev) >= time.Microsecond {
		return now
	}
	return prev.Add(time.Microsecond)
}
