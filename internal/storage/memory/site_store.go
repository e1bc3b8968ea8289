// Package memory provides in-memory site and page stores for development and tests.
package memory

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/JakeFAU/site-indexer/internal/crawler"
)

// SiteStore keeps site records keyed by URL.
type SiteStore struct {
	mu    sync.RWMutex
	sites map[string]crawler.Site
}

// NewSiteStore constructs a SiteStore.
func NewSiteStore() *SiteStore {
	return &SiteStore{sites: make(map[string]crawler.Site)}
}

// Save upserts the site by URL. An existing record keeps its ID.
func (s *SiteStore) Save(_ context.Context, site crawler.Site) (crawler.Site, error) {
	if site.URL == "" {
		return crawler.Site{}, errors.New("site url is required")
	}
	if site.Status == "" {
		return crawler.Site{}, errors.New("site status is required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if existing, ok := s.sites[site.URL]; ok {
		site.ID = existing.ID
	} else if site.ID == "" {
		return crawler.Site{}, errors.New("site id is required")
	}
	if site.Status != crawler.SiteStatusFailed {
		site.LastError = ""
	}
	site.StatusTime = site.StatusTime.UTC()
	s.sites[site.URL] = site
	return site, nil
}

// UpdateStatus moves a site to status, enforcing the site state machine.
func (s *SiteStore) UpdateStatus(
	_ context.Context,
	url string,
	status crawler.SiteStatus,
	at time.Time,
	lastError string,
) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	site, ok := s.sites[url]
	if !ok {
		return crawler.ErrSiteNotFound
	}
	if !site.Status.CanTransition(status) {
		return fmt.Errorf("%w: %s -> %s", crawler.ErrInvalidTransition, site.Status, status)
	}
	site.Status = status
	site.StatusTime = at.UTC()
	site.LastError = ""
	if status == crawler.SiteStatusFailed {
		site.LastError = lastError
	}
	s.sites[url] = site
	return nil
}

// Touch refreshes the status time of a site that is still indexing.
func (s *SiteStore) Touch(_ context.Context, url string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	site, ok := s.sites[url]
	if !ok {
		return crawler.ErrSiteNotFound
	}
	if site.Status != crawler.SiteStatusIndexing {
		return fmt.Errorf("%w: touch in status %s", crawler.ErrInvalidTransition, site.Status)
	}
	site.StatusTime = at.UTC()
	s.sites[url] = site
	return nil
}

// DeleteByURL removes the site and reports how many records were removed.
func (s *SiteStore) DeleteByURL(_ context.Context, url string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.sites[url]; !ok {
		return 0, nil
	}
	delete(s.sites, url)
	return 1, nil
}

// FindByURL fetches a site by URL.
func (s *SiteStore) FindByURL(_ context.Context, url string) (crawler.Site, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	site, ok := s.sites[url]
	if !ok {
		return crawler.Site{}, crawler.ErrSiteNotFound
	}
	return site, nil
}

// List returns every site ordered by ID.
func (s *SiteStore) List(_ context.Context) ([]crawler.Site, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]crawler.Site, 0, len(s.sites))
	for _, site := range s.sites {
		out = append(out, site)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}
