// Package statistics summarizes stored sites and pages for the API.
package statistics

import (
	"context"
	"fmt"

	"github.com/JakeFAU/site-indexer/internal/crawler"
)

// Total aggregates across every stored site.
type Total struct {
	Sites    int   `json:"sites"`
	Pages    int64 `json:"pages"`
	Indexing bool  `json:"indexing"`
}

// Detailed describes one stored site. StatusTime is epoch milliseconds.
type Detailed struct {
	URL        string `json:"url"`
	Name       string `json:"name"`
	Status     string `json:"status"`
	StatusTime int64  `json:"statusTime"`
	Error      string `json:"error"`
	Pages      int64  `json:"pages"`
}

// Statistics is the payload of the statistics endpoint.
type Statistics struct {
	Total    Total      `json:"total"`
	Detailed []Detailed `json:"detailed"`
}

// IndexingState reports whether an indexing job is active.
type IndexingState interface {
	IsIndexing() bool
}

// Service builds Statistics from the stores.
type Service struct {
	sites crawler.SiteStore
	pages crawler.PageStore
	state IndexingState
}

// New constructs a Service.
func New(sites crawler.SiteStore, pages crawler.PageStore, state IndexingState) *Service {
	return &Service{sites: sites, pages: pages, state: state}
}

// Get reads the current statistics.
func (s *Service) Get(ctx context.Context) (Statistics, error) {
	sites, err := s.sites.List(ctx)
	if err != nil {
		return Statistics{}, fmt.Errorf("list sites: %w", err)
	}
	total, err := s.pages.Count(ctx)
	if err != nil {
		return Statistics{}, fmt.Errorf("count pages: %w", err)
	}

	stats := Statistics{
		Total: Total{
			Sites:    len(sites),
			Pages:    total,
			Indexing: s.state != nil && s.state.IsIndexing(),
		},
		Detailed: make([]Detailed, 0, len(sites)),
	}
	for _, site := range sites {
		n, err := s.pages.CountBySiteURL(ctx, site.URL)
		if err != nil {
			return Statistics{}, fmt.Errorf("count pages for %s: %w", site.URL, err)
		}
		stats.Detailed = append(stats.Detailed, Detailed{
			URL:        site.URL,
			Name:       site.Name,
			Status:     string(site.Status),
			StatusTime: site.StatusTime.UnixMilli(),
			Error:      site.LastError,
			Pages:      n,
		})
	}
	return stats, nil
}
