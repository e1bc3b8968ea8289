// Package crawler implements site traversal for the indexer: URL scoping and
// normalization, the run-scoped visited set, link extraction, content
// classification, and the bounded fetch pool that streams pages into a
// PageStore. It also defines the site and page types shared by the storage,
// indexing, and API packages.
package crawler
