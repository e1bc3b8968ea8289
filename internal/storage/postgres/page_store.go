package postgres

import (
	"context"
	"fmt"

	"github.com/JakeFAU/site-indexer/internal/crawler"
)

// PageStore persists pages in the pages table.
type PageStore struct {
	db DB
}

// NewPageStore constructs a PageStore on top of db.
func NewPageStore(db DB) (*PageStore, error) {
	if db == nil {
		return nil, fmt.Errorf("db is required")
	}
	return &PageStore{db: db}, nil
}

// Save inserts a page row. A repeated (site, path) pair violates the unique key.
func (s *PageStore) Save(ctx context.Context, page crawler.Page) error {
	if page.ID == "" || page.SiteID == "" {
		return fmt.Errorf("page id and site id are required")
	}
	query := `
		INSERT INTO pages (id, site_id, path, code, content)
		VALUES ($1, $2, $3, $4, $5);
	`
	_, err := s.db.Exec(ctx, query, page.ID, page.SiteID, page.Path, page.StatusCode, sanitizeText(page.Content))
	if err != nil {
		return fmt.Errorf("insert page: %w", err)
	}
	return nil
}

// DeleteBySiteURL removes all pages of a site and reports how many were removed.
func (s *PageStore) DeleteBySiteURL(ctx context.Context, siteURL string) (int64, error) {
	query := `DELETE FROM pages WHERE site_id IN (SELECT id FROM sites WHERE url = $1);`
	tag, err := s.db.Exec(ctx, query, siteURL)
	if err != nil {
		return 0, fmt.Errorf("delete pages: %w", err)
	}
	return tag.RowsAffected(), nil
}

// CountBySiteURL returns the number of pages stored for a site.
func (s *PageStore) CountBySiteURL(ctx context.Context, siteURL string) (int64, error) {
	query := `SELECT count(*) FROM pages p JOIN sites s ON s.id = p.site_id WHERE s.url = $1;`
	var n int64
	if err := s.db.QueryRow(ctx, query, siteURL).Scan(&n); err != nil {
		return 0, fmt.Errorf("count pages: %w", err)
	}
	return n, nil
}

// ListBySiteURL returns the pages stored for a site ordered by ID.
func (s *PageStore) ListBySiteURL(ctx context.Context, siteURL string) ([]crawler.Page, error) {
	query := `
		SELECT p.id::text, p.site_id::text, s.url, p.path, p.code, p.content
		FROM pages p JOIN sites s ON s.id = p.site_id
		WHERE s.url = $1
		ORDER BY p.id;
	`
	rows, err := s.db.Query(ctx, query, siteURL)
	if err != nil {
		return nil, fmt.Errorf("list pages: %w", err)
	}
	defer rows.Close()

	var pages []crawler.Page
	for rows.Next() {
		var p crawler.Page
		if err := rows.Scan(&p.ID, &p.SiteID, &p.SiteURL, &p.Path, &p.StatusCode, &p.Content); err != nil {
			return nil, fmt.Errorf("scan page: %w", err)
		}
		pages = append(pages, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list pages: %w", err)
	}
	return pages, nil
}

// Count returns the number of pages across all sites.
func (s *PageStore) Count(ctx context.Context) (int64, error) {
	var n int64
	if err := s.db.QueryRow(ctx, `SELECT count(*) FROM pages;`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count pages: %w", err)
	}
	return n, nil
}
