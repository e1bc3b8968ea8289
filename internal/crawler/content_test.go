package crawler

import "testing"

func TestIsTextual(t *testing.T) {
	t.Parallel()

	cases := map[string]bool{
		"":                         true,
		"text/html":                true,
		"text/html; charset=UTF-8": true,
		"TEXT/PLAIN":               true,
		"application/xml":          true,
		"application/xhtml+xml":    true,
		"application/rss+xml":      true,
		"image/png":                false,
		"application/pdf":          false,
		"application/octet-stream": false,
		"application/javascript":   false,
		"text/css":                 false,
		"text/javascript":          false,
		"image/svg+xml":            false,
		"text/html;;broken=":       true,
	}
	for contentType, want := range cases {
		if got := IsTextual(contentType); got != want {
			t.Errorf("IsTextual(%q) = %v, want %v", contentType, got, want)
		}
	}
}

func TestIsMarkup(t *testing.T) {
	t.Parallel()

	cases := map[string]bool{
		"text/html; charset=utf-8": true,
		"application/xhtml+xml":    true,
		"application/atom+xml":     true,
		"text/xml":                 true,
		"":                         false,
		"text/plain":               false,
		"text/css":                 false,
		"image/svg+xml":            false,
	}
	for contentType, want := range cases {
		if got := IsMarkup(contentType); got != want {
			t.Errorf("IsMarkup(%q) = %v, want %v", contentType, got, want)
		}
	}
}

func TestIsIndexableResource(t *testing.T) {
	t.Parallel()

	cases := map[string]bool{
		"image/svg+xml":          true,
		"text/css":               true,
		"application/javascript": true,
		"font/woff2":             true,
		"":                       false,
		"video/mp4":              false,
	}
	for contentType, want := range cases {
		if got := IsIndexableResource(contentType); got != want {
			t.Errorf("IsIndexableResource(%q) = %v, want %v", contentType, got, want)
		}
	}
}

func TestArchiveKey(t *testing.T) {
	t.Parallel()

	cases := map[string]string{
		"text/html; charset=utf-8": "sites/s1/pages/p1.html",
		"":                         "sites/s1/pages/p1.html",
		"application/xhtml+xml":    "sites/s1/pages/p1.html",
		"text/plain":               "sites/s1/pages/p1.txt",
		"application/rss+xml":      "sites/s1/pages/p1.xml",
		"text/xml":                 "sites/s1/pages/p1.xml",
	}
	for contentType, want := range cases {
		if got := ArchiveKey("s1", "p1", contentType); got != want {
			t.Errorf("ArchiveKey(%q) = %q, want %q", contentType, got, want)
		}
	}
}
