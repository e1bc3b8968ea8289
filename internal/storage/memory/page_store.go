package memory

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/JakeFAU/site-indexer/internal/crawler"
)

// ErrDuplicatePage is returned when a (site, path) pair is saved twice.
var ErrDuplicatePage = errors.New("duplicate page")

// PageStore keeps page records grouped by site URL in insertion order.
type PageStore struct {
	mu    sync.RWMutex
	pages map[string][]crawler.Page
	paths map[string]map[string]struct{}
}

// NewPageStore constructs a PageStore.
func NewPageStore() *PageStore {
	return &PageStore{
		pages: make(map[string][]crawler.Page),
		paths: make(map[string]map[string]struct{}),
	}
}

// Save appends a page for its site.
func (s *PageStore) Save(_ context.Context, page crawler.Page) error {
	if page.SiteURL == "" || page.Path == "" {
		return errors.New("page site url and path are required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	seen, ok := s.paths[page.SiteURL]
	if !ok {
		seen = make(map[string]struct{})
		s.paths[page.SiteURL] = seen
	}
	if _, dup := seen[page.Path]; dup {
		return fmt.Errorf("%w: %s", ErrDuplicatePage, page.Path)
	}
	seen[page.Path] = struct{}{}
	s.pages[page.SiteURL] = append(s.pages[page.SiteURL], page)
	return nil
}

// DeleteBySiteURL removes all pages of a site and reports how many were removed.
func (s *PageStore) DeleteBySiteURL(_ context.Context, siteURL string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := int64(len(s.pages[siteURL]))
	delete(s.pages, siteURL)
	delete(s.paths, siteURL)
	return n, nil
}

// CountBySiteURL returns the number of pages stored for a site.
func (s *PageStore) CountBySiteURL(_ context.Context, siteURL string) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return int64(len(s.pages[siteURL])), nil
}

// ListBySiteURL returns a copy of the pages stored for a site.
func (s *PageStore) ListBySiteURL(_ context.Context, siteURL string) ([]crawler.Page, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]crawler.Page(nil), s.pages[siteURL]...), nil
}

// Count returns the number of pages across all sites.
func (s *PageStore) Count(_ context.Context) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var n int64
	for _, pages := range s.pages {
		n += int64(len(pages))
	}
	return n, nil
}
