package memory

import (
	"context"
	"errors"
	"testing"

	"github.com/JakeFAU/site-indexer/internal/crawler"
)

func TestPageStoreLifecycle(t *testing.T) {
	t.Parallel()

	store := NewPageStore()
	ctx := context.Background()
	site := "https://example.com/"
	for _, path := range []string{site, site + "a", site + "logo.png"} {
		if err := store.Save(ctx, crawler.Page{ID: path, SiteURL: site, Path: path, StatusCode: 200}); err != nil {
			t.Fatalf("Save(%s) error = %v", path, err)
		}
	}
	if err := store.Save(ctx, crawler.Page{SiteURL: "https://other.example/", Path: "https://other.example/"}); err != nil {
		t.Fatalf("Save() other site error = %v", err)
	}

	if n, _ := store.CountBySiteURL(ctx, site); n != 3 {
		t.Fatalf("CountBySiteURL() = %d", n)
	}
	if n, _ := store.Count(ctx); n != 4 {
		t.Fatalf("Count() = %d", n)
	}

	pages, err := store.ListBySiteURL(ctx, site)
	if err != nil || len(pages) != 3 {
		t.Fatalf("ListBySiteURL() pages=%v err=%v", pages, err)
	}
	if pages[0].Path != site {
		t.Fatalf("expected insertion order, got %+v", pages)
	}
	pages[0].Path = "modified"
	if store.pages[site][0].Path != site {
		t.Fatal("expected ListBySiteURL to return a copy")
	}

	n, err := store.DeleteBySiteURL(ctx, site)
	if err != nil || n != 3 {
		t.Fatalf("DeleteBySiteURL() = %d, %v", n, err)
	}
	if n, _ := store.CountBySiteURL(ctx, site); n != 0 {
		t.Fatalf("expected no pages after delete, got %d", n)
	}
	if err := store.Save(ctx, crawler.Page{SiteURL: site, Path: site}); err != nil {
		t.Fatalf("expected path reusable after delete, got %v", err)
	}
}

func TestPageStoreRejectsDuplicatePath(t *testing.T) {
	t.Parallel()

	store := NewPageStore()
	ctx := context.Background()
	page := crawler.Page{SiteURL: "https://example.com/", Path: "https://example.com/a"}
	if err := store.Save(ctx, page); err != nil {
		t.Fatalf("Save() error = %v", err)
	}
	if err := store.Save(ctx, page); !errors.Is(err, ErrDuplicatePage) {
		t.Fatalf("expected ErrDuplicatePage, got %v", err)
	}
}

func TestPageStoreRequiresKeys(t *testing.T) {
	t.Parallel()

	store := NewPageStore()
	if err := store.Save(context.Background(), crawler.Page{Path: "https://example.com/"}); err == nil {
		t.Fatal("expected missing site url to fail")
	}
}

func TestPageStoreDeleteUnknownSite(t *testing.T) {
	t.Parallel()

	store := NewPageStore()
	n, err := store.DeleteBySiteURL(context.Background(), "https://missing/")
	if err != nil || n != 0 {
		t.Fatalf("DeleteBySiteURL() = %d, %v", n, err)
	}
}
