// Package config loads and validates indexer configuration via Viper.
package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/JakeFAU/site-indexer/internal/crawler"
)

// Storage drivers accepted by storage.driver.
const (
	DriverMemory   = "memory"
	DriverPostgres = "postgres"
)

// Archive drivers accepted by archive.driver.
const (
	ArchiveNone  = "none"
	ArchiveLocal = "local"
	ArchiveGCS   = "gcs"
)

// Fetchers accepted by crawler.fetcher.
const (
	FetcherColly    = "colly"
	FetcherHeadless = "headless"
)

// Config captures all service configuration knobs loaded via Viper.
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Crawler  CrawlerConfig  `mapstructure:"crawler"`
	HTTP     HTTPConfig     `mapstructure:"http"`
	Storage  StorageConfig  `mapstructure:"storage"`
	Archive  ArchiveConfig  `mapstructure:"archive"`
	DB       DBConfig       `mapstructure:"db"`
	PubSub   PubSubConfig   `mapstructure:"pubsub"`
	Logging  LoggingConfig  `mapstructure:"logging"`
	Indexing IndexingConfig `mapstructure:"indexing"`
}

// ServerConfig controls HTTP server behavior.
type ServerConfig struct {
	Port                   int `mapstructure:"port"`
	RequestTimeoutSeconds  int `mapstructure:"request_timeout_seconds"`
	ShutdownTimeoutSeconds int `mapstructure:"shutdown_timeout_seconds"`
}

// CrawlerConfig governs per-site crawl behavior.
type CrawlerConfig struct {
	Concurrency         int    `mapstructure:"concurrency"`
	UserAgent           string `mapstructure:"user_agent"`
	SiteDeadlineSeconds int    `mapstructure:"site_deadline_seconds"`
	HeartbeatSeconds    int    `mapstructure:"heartbeat_seconds"`
	MaxBodyBytes        int    `mapstructure:"max_body_bytes"`
	Fetcher             string `mapstructure:"fetcher"`
	// Headless only applies when Fetcher is headless.
	Headless HeadlessConfig `mapstructure:"headless"`
}

// HeadlessConfig tunes the chromedp renderer.
type HeadlessConfig struct {
	MaxParallel              int `mapstructure:"max_parallel"`
	NavigationTimeoutSeconds int `mapstructure:"navigation_timeout_seconds"`
}

// HTTPConfig configures the fetch client.
type HTTPConfig struct {
	TimeoutSeconds int `mapstructure:"timeout_seconds"`
}

// StorageConfig selects the site and page store backend.
type StorageConfig struct {
	Driver string `mapstructure:"driver"`
}

// ArchiveConfig selects where raw page bodies are copied, if anywhere.
type ArchiveConfig struct {
	Driver  string `mapstructure:"driver"`
	BaseDir string `mapstructure:"base_dir"`
	Bucket  string `mapstructure:"bucket"`
	Prefix  string `mapstructure:"prefix"`
}

// DBConfig controls access to Postgres when storage.driver is postgres.
type DBConfig struct {
	DSN                    string `mapstructure:"dsn"`
	MaxConns               int32  `mapstructure:"max_conns"`
	MinConns               int32  `mapstructure:"min_conns"`
	MaxConnLifetimeSeconds int    `mapstructure:"max_conn_lifetime_seconds"`
}

// PubSubConfig enables site event notifications when both fields are set.
type PubSubConfig struct {
	ProjectID string `mapstructure:"project_id"`
	TopicName string `mapstructure:"topic_name"`
}

// Enabled reports whether site events should be published.
func (p PubSubConfig) Enabled() bool {
	return p.ProjectID != "" && p.TopicName != ""
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool   `mapstructure:"development"`
	Level       string `mapstructure:"level"`
}

// IndexingConfig lists the sites to index, in order.
type IndexingConfig struct {
	Sites []crawler.SiteConfig `mapstructure:"sites"`
}

// Load builds a Config from disk/environment.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("INDEXER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.request_timeout_seconds", 60)
	v.SetDefault("server.shutdown_timeout_seconds", 10)
	v.SetDefault("crawler.concurrency", crawler.DefaultConcurrency)
	v.SetDefault("crawler.user_agent", "site-indexer/0.1")
	v.SetDefault("crawler.site_deadline_seconds", 0)
	v.SetDefault("crawler.heartbeat_seconds", int(crawler.DefaultHeartbeatInterval/time.Second))
	v.SetDefault("crawler.max_body_bytes", 10<<20)
	v.SetDefault("crawler.fetcher", FetcherColly)
	v.SetDefault("crawler.headless.max_parallel", 2)
	v.SetDefault("crawler.headless.navigation_timeout_seconds", 45)
	v.SetDefault("http.timeout_seconds", 15)
	v.SetDefault("storage.driver", DriverMemory)
	v.SetDefault("archive.driver", ArchiveNone)
	v.SetDefault("archive.base_dir", "")
	v.SetDefault("archive.bucket", "")
	v.SetDefault("archive.prefix", "")
	v.SetDefault("db.dsn", "")
	v.SetDefault("db.max_conns", 8)
	v.SetDefault("db.min_conns", 0)
	v.SetDefault("db.max_conn_lifetime_seconds", 0)
	v.SetDefault("pubsub.project_id", "")
	v.SetDefault("pubsub.topic_name", "")
	v.SetDefault("logging.development", true)
	v.SetDefault("logging.level", "")
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if c.Server.Port <= 0 {
		return fmt.Errorf("server.port must be > 0")
	}
	if c.Crawler.Concurrency <= 0 {
		return fmt.Errorf("crawler.concurrency must be > 0")
	}
	if c.Crawler.SiteDeadlineSeconds < 0 {
		return fmt.Errorf("crawler.site_deadline_seconds must be >= 0")
	}
	if c.Crawler.HeartbeatSeconds <= 0 {
		return fmt.Errorf("crawler.heartbeat_seconds must be > 0")
	}
	switch c.Crawler.Fetcher {
	case FetcherColly:
	case FetcherHeadless:
		if c.Crawler.Headless.MaxParallel < 0 {
			return fmt.Errorf("crawler.headless.max_parallel must be >= 0")
		}
		if c.Crawler.Headless.NavigationTimeoutSeconds <= 0 {
			return fmt.Errorf("crawler.headless.navigation_timeout_seconds must be > 0")
		}
	default:
		return fmt.Errorf("crawler.fetcher must be %s or %s, got %q", FetcherColly, FetcherHeadless, c.Crawler.Fetcher)
	}
	if c.HTTP.TimeoutSeconds <= 0 {
		return fmt.Errorf("http.timeout_seconds must be > 0")
	}
	switch c.Storage.Driver {
	case DriverMemory:
	case DriverPostgres:
		if c.DB.DSN == "" {
			return fmt.Errorf("db.dsn must be set when storage.driver is %s", DriverPostgres)
		}
	default:
		return fmt.Errorf("storage.driver must be %s or %s, got %q", DriverMemory, DriverPostgres, c.Storage.Driver)
	}
	switch c.Archive.Driver {
	case ArchiveNone:
	case ArchiveLocal:
		if strings.TrimSpace(c.Archive.BaseDir) == "" {
			return fmt.Errorf("archive.base_dir must be set when archive.driver is %s", ArchiveLocal)
		}
	case ArchiveGCS:
		if strings.TrimSpace(c.Archive.Bucket) == "" {
			return fmt.Errorf("archive.bucket must be set when archive.driver is %s", ArchiveGCS)
		}
	default:
		return fmt.Errorf("archive.driver must be %s, %s or %s, got %q", ArchiveNone, ArchiveLocal, ArchiveGCS, c.Archive.Driver)
	}
	if (c.PubSub.ProjectID == "") != (c.PubSub.TopicName == "") {
		return fmt.Errorf("pubsub.project_id and pubsub.topic_name must be set together")
	}
	return validateSites(c.Indexing.Sites)
}

func validateSites(sites []crawler.SiteConfig) error {
	seen := make(map[string]struct{}, len(sites))
	for i, site := range sites {
		u, err := url.Parse(site.URL)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			return fmt.Errorf("indexing.sites[%d].url must be an absolute http(s) URL, got %q", i, site.URL)
		}
		if strings.TrimSpace(site.Name) == "" {
			return fmt.Errorf("indexing.sites[%d].name is required", i)
		}
		if _, dup := seen[site.URL]; dup {
			return fmt.Errorf("indexing.sites[%d].url %q is listed twice", i, site.URL)
		}
		seen[site.URL] = struct{}{}
	}
	return nil
}

// CrawlerSettings converts the crawler section into crawler.Config.
func (c Config) CrawlerSettings() crawler.Config {
	return crawler.Config{
		Concurrency:       c.Crawler.Concurrency,
		Deadline:          time.Duration(c.Crawler.SiteDeadlineSeconds) * time.Second,
		HeartbeatInterval: time.Duration(c.Crawler.HeartbeatSeconds) * time.Second,
	}
}

// NavigationTimeout bounds one headless page render.
func (c Config) NavigationTimeout() time.Duration {
	return time.Duration(c.Crawler.Headless.NavigationTimeoutSeconds) * time.Second
}

// FetchTimeout bounds a single page or resource request.
func (c Config) FetchTimeout() time.Duration {
	return time.Duration(c.HTTP.TimeoutSeconds) * time.Second
}
