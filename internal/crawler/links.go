package crawler

import (
	"bytes"
	"fmt"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// Links holds the absolute, normalized URLs referenced by one HTML page.
// Pages come from anchors; Resources from img, link, and script tags.
type Links struct {
	Pages     []string
	Resources []string
}

var resourceSelectors = []struct {
	selector string
	attr     string
}{
	{"img[src]", "src"},
	{"link[href]", "href"},
	{"script[src]", "src"},
}

// ExtractLinks parses body as HTML and resolves every reference against
// pageURL, or against the document's <base href> when present.
func ExtractLinks(pageURL string, body []byte) (Links, error) {
	base, err := url.Parse(pageURL)
	if err != nil {
		return Links{}, fmt.Errorf("parse page url: %w", err)
	}
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return Links{}, fmt.Errorf("parse html: %w", err)
	}
	if href, ok := doc.Find("base[href]").First().Attr("href"); ok {
		if ref, err := url.Parse(strings.TrimSpace(href)); err == nil {
			base = base.ResolveReference(ref)
		}
	}

	var links Links
	seen := make(map[string]struct{})
	collect := func(dst *[]string, raw string) {
		abs, ok := resolve(base, raw)
		if !ok {
			return
		}
		if _, dup := seen[abs]; dup {
			return
		}
		seen[abs] = struct{}{}
		*dst = append(*dst, abs)
	}

	doc.Find("a[href]").Each(func(_ int, s *goquery.Selection) {
		href, _ := s.Attr("href")
		collect(&links.Pages, href)
	})
	for _, rs := range resourceSelectors {
		doc.Find(rs.selector).Each(func(_ int, s *goquery.Selection) {
			ref, _ := s.Attr(rs.attr)
			collect(&links.Resources, ref)
		})
	}
	return links, nil
}

func resolve(base *url.URL, raw string) (string, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" || strings.HasPrefix(raw, "#") {
		return "", false
	}
	ref, err := url.Parse(raw)
	if err != nil {
		return "", false
	}
	abs := base.ResolveReference(ref)
	if abs.Scheme != "http" && abs.Scheme != "https" {
		return "", false
	}
	normalized, err := NormalizeURL(abs.String())
	if err != nil {
		return "", false
	}
	return normalized, true
}
