package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/JakeFAU/site-indexer/internal/crawler"
)

const siteColumns = `id::text, url, name, status, status_time, last_error`

// SiteStore persists sites in the sites table.
type SiteStore struct {
	db DB
}

// NewSiteStore constructs a SiteStore on top of db.
func NewSiteStore(db DB) (*SiteStore, error) {
	if db == nil {
		return nil, fmt.Errorf("db is required")
	}
	return &SiteStore{db: db}, nil
}

// Save upserts the site by URL and returns it with the stored ID.
func (s *SiteStore) Save(ctx context.Context, site crawler.Site) (crawler.Site, error) {
	if site.URL == "" || site.ID == "" {
		return crawler.Site{}, fmt.Errorf("site id and url are required")
	}
	if site.Status != crawler.SiteStatusFailed {
		site.LastError = ""
	}
	site.StatusTime = site.StatusTime.UTC()
	query := `
		INSERT INTO sites (id, url, name, status, status_time, last_error)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (url) DO UPDATE
		SET name = EXCLUDED.name,
			status = EXCLUDED.status,
			status_time = EXCLUDED.status_time,
			last_error = EXCLUDED.last_error
		RETURNING id::text;
	`
	err := s.db.QueryRow(ctx, query,
		site.ID, site.URL, site.Name, string(site.Status), site.StatusTime, site.LastError,
	).Scan(&site.ID)
	if err != nil {
		return crawler.Site{}, fmt.Errorf("upsert site: %w", err)
	}
	return site, nil
}

// UpdateStatus finishes an indexing run. Only sites still INDEXING are updated.
func (s *SiteStore) UpdateStatus(
	ctx context.Context,
	url string,
	status crawler.SiteStatus,
	at time.Time,
	lastError string,
) error {
	if !crawler.SiteStatusIndexing.CanTransition(status) {
		return fmt.Errorf("%w: -> %s", crawler.ErrInvalidTransition, status)
	}
	if status != crawler.SiteStatusFailed {
		lastError = ""
	}
	query := `
		UPDATE sites
		SET status = $2, status_time = $3, last_error = $4
		WHERE url = $1 AND status = 'INDEXING';
	`
	tag, err := s.db.Exec(ctx, query, url, string(status), at.UTC(), lastError)
	if err != nil {
		return fmt.Errorf("update site status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return s.missingOrInvalid(ctx, url, status)
	}
	return nil
}

// Touch refreshes the status time of a site that is still indexing.
func (s *SiteStore) Touch(ctx context.Context, url string, at time.Time) error {
	query := `UPDATE sites SET status_time = $2 WHERE url = $1 AND status = 'INDEXING';`
	tag, err := s.db.Exec(ctx, query, url, at.UTC())
	if err != nil {
		return fmt.Errorf("touch site: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return s.missingOrInvalid(ctx, url, crawler.SiteStatusIndexing)
	}
	return nil
}

func (s *SiteStore) missingOrInvalid(ctx context.Context, url string, next crawler.SiteStatus) error {
	site, err := s.FindByURL(ctx, url)
	if err != nil {
		return err
	}
	return fmt.Errorf("%w: %s -> %s", crawler.ErrInvalidTransition, site.Status, next)
}

// DeleteByURL removes the site; its pages go with it through the foreign key.
func (s *SiteStore) DeleteByURL(ctx context.Context, url string) (int64, error) {
	tag, err := s.db.Exec(ctx, `DELETE FROM sites WHERE url = $1;`, url)
	if err != nil {
		return 0, fmt.Errorf("delete site: %w", err)
	}
	return tag.RowsAffected(), nil
}

// FindByURL returns crawler.ErrSiteNotFound when no row matches.
func (s *SiteStore) FindByURL(ctx context.Context, url string) (crawler.Site, error) {
	query := `SELECT ` + siteColumns + ` FROM sites WHERE url = $1;`
	site, err := scanSite(s.db.QueryRow(ctx, query, url))
	if errors.Is(err, pgx.ErrNoRows) {
		return crawler.Site{}, crawler.ErrSiteNotFound
	}
	if err != nil {
		return crawler.Site{}, fmt.Errorf("find site: %w", err)
	}
	return site, nil
}

// List returns every site ordered by ID.
func (s *SiteStore) List(ctx context.Context) ([]crawler.Site, error) {
	rows, err := s.db.Query(ctx, `SELECT `+siteColumns+` FROM sites ORDER BY id;`)
	if err != nil {
		return nil, fmt.Errorf("list sites: %w", err)
	}
	defer rows.Close()

	var sites []crawler.Site
	for rows.Next() {
		site, err := scanSite(rows)
		if err != nil {
			return nil, fmt.Errorf("scan site: %w", err)
		}
		sites = append(sites, site)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list sites: %w", err)
	}
	return sites, nil
}

func scanSite(row pgx.Row) (crawler.Site, error) {
	var (
		site   crawler.Site
		status string
	)
	if err := row.Scan(&site.ID, &site.URL, &site.Name, &status, &site.StatusTime, &site.LastError); err != nil {
		return crawler.Site{}, err
	}
	site.Status = crawler.SiteStatus(status)
	return site, nil
}
