package uploadclient

import (
	"time"

	"resumable-upload/apperr"
)

// Config controls chunking, parallelism and retry behaviour of a Scheduler.
type Config struct {
	ChunkSize      int64         // Requested chunk size; the server may override it
	MaxConcurrency int           // Chunk uploads in flight at once
	MaxRetries     int           // Retries per chunk after the first attempt
	BaseBackoff    time.Duration // First retry delay, doubled per attempt
	MaxBackoff     time.Duration

	SpeedWindow      time.Duration // Trailing window for speed and ETA
	SnapshotInterval time.Duration
	PollInterval     time.Duration // Status polling while another finalize runs
}

// DefaultConfig returns the defaults used by the CLI.
func DefaultConfig() Config {
	return Config{
		ChunkSize:        5 * 1024 * 1024,
		MaxConcurrency:   3,
		MaxRetries:       5,
		BaseBackoff:      500 * time.Millisecond,
		MaxBackoff:       30 * time.Second,
		SpeedWindow:      10 * time.Second,
		SnapshotInterval: 2 * time.Second,
		PollInterval:     time.Second,
	}
}

// Validate checks every field and fills optional ones with defaults.
func (c *Config) Validate() error {
	if c.ChunkSize <= 0 {
		return apperr.Validation("chunk size must be positive, got %d", c.ChunkSize)
	}
	if c.MaxConcurrency <= 0 {
		return apperr.Validation("max concurrency must be positive, got %d", c.MaxConcurrency)
	}
	if c.MaxRetries < 0 {
		return apperr.Validation("max retries must not be negative, got %d", c.MaxRetries)
	}
	if c.BaseBackoff <= 0 {
		return apperr.Validation("base backoff must be positive, got %s", c.BaseBackoff)
	}

	defaults := DefaultConfig()
	if c.MaxBackoff <= 0 {
		c.MaxBackoff = defaults.MaxBackoff
	}
	if c.MaxBackoff < c.BaseBackoff {
		c.MaxBackoff = c.BaseBackoff
	}
	if c.SpeedWindow <= 0 {
		c.SpeedWindow = defaults.SpeedWindow
	}
	if c.SnapshotInterval <= 0 {
		c.SnapshotInterval = defaults.SnapshotInterval
	}
	if c.PollInterval <= 0 {
		c.PollInterval = defaults.PollInterval
	}
	return nil
}
