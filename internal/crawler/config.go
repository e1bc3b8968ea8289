package crawler

import (
	"fmt"
	"time"
)

// Default tuning values applied by Config.withDefaults.
const (
	DefaultConcurrency       = 4
	DefaultHeartbeatInterval = 10 * time.Second
)

// Config holds the settings for a crawl session.
// This struct is decoupled from Viper, making the crawler and its configuration
// more modular and easier to test independently.
type Config struct {
	// Concurrency bounds the number of fetches in flight for one site.
	Concurrency int
	// Deadline caps a whole site crawl. Zero disables it.
	Deadline time.Duration
	// HeartbeatInterval is the minimum gap between status time refreshes.
	HeartbeatInterval time.Duration
}

// Validate checks for obviously bad configuration combinations.
func (c Config) Validate() error {
	if c.Concurrency < 0 {
		return fmt.Errorf("concurrency must be >= 0")
	}
	if c.Deadline < 0 {
		return fmt.Errorf("deadline must be >= 0")
	}
	if c.HeartbeatInterval < 0 {
		return fmt.Errorf("heartbeat interval must be >= 0")
	}
	return nil
}

func (c Config) withDefaults() Config {
	if c.Concurrency == 0 {
		c.Concurrency = DefaultConcurrency
	}
	if c.HeartbeatInterval == 0 {
		c.HeartbeatInterval = DefaultHeartbeatInterval
	}
	return c
}
