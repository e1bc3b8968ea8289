// Package cmd defines the CLI commands for the indexer executable.
//
// The root command loads configuration (file, then INDEXER_* environment
// overrides), builds the zap logger and the application services, and hands
// them to subcommands through the command context:
//   - serve runs the HTTP API and the indexing executor until SIGINT/SIGTERM.
//   - index runs one indexing job over every configured site and exits.
package cmd
