package crawler

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
)

// NormalizeURL standardizes a URL to avoid duplicates.
// It lowercases the scheme and host, removes default ports, and sorts query parameters.
// It also removes fragments and gives an empty path the root path.
func NormalizeURL(rawURL string) (string, error) {
	u, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil {
		return "", fmt.Errorf("parse url: %w", err)
	}
	if !u.IsAbs() || u.Host == "" {
		return "", fmt.Errorf("url %q is not absolute", rawURL)
	}

	u.Scheme = strings.ToLower(u.Scheme)
	u.Host = strings.ToLower(u.Host)

	if u.Scheme == "http" && strings.HasSuffix(u.Host, ":80") {
		u.Host = strings.TrimSuffix(u.Host, ":80")
	}
	if u.Scheme == "https" && strings.HasSuffix(u.Host, ":443") {
		u.Host = strings.TrimSuffix(u.Host, ":443")
	}

	u.Fragment = ""
	u.RawFragment = ""
	if u.Path == "" {
		u.Path = "/"
	}

	if u.RawQuery != "" {
		u.RawQuery = u.Query().Encode()
	}

	return u.String(), nil
}

// Scope decides which URLs belong to a site: same scheme and host as the
// root, with a path under the root's path.
type Scope struct {
	root   string
	scheme string
	host   string
	path   string
}

// NewScope builds a Scope from a site root URL.
func NewScope(rootURL string) (Scope, error) {
	normalized, err := NormalizeURL(rootURL)
	if err != nil {
		return Scope{}, err
	}
	u, err := url.Parse(normalized)
	if err != nil {
		return Scope{}, fmt.Errorf("parse root: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return Scope{}, errors.New("root url must use http or https")
	}
	return Scope{root: normalized, scheme: u.Scheme, host: u.Host, path: u.Path}, nil
}

// Root returns the normalized root URL.
func (s Scope) Root() string {
	return s.root
}

// Contains reports whether a normalized URL falls under the scope.
func (s Scope) Contains(normalized string) bool {
	u, err := url.Parse(normalized)
	if err != nil {
		return false
	}
	if u.Scheme != s.scheme || u.Host != s.host {
		return false
	}
	return strings.HasPrefix(u.Path, s.path)
}
