// Package indexing runs indexing jobs over the configured sites.
//
// At most one job exists at a time. StartIndexing hands a job to the background
// executor started with Coordinator.Run and returns immediately; IndexAll runs a
// job on the caller's goroutine. A job walks the sites in configuration order,
// and for each one it resets stored data, marks the site INDEXING, crawls it,
// and records INDEXED or FAILED. A failing site never stops the job.
package indexing
