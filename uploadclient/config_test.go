package uploadclient

import (
	"testing"
	"time"

	"resumable-upload/apperr"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{name: "defaults", mutate: func(*Config) {}},
		{name: "zero chunk size", mutate: func(c *Config) { c.ChunkSize = 0 }, wantErr: true},
		{name: "zero concurrency", mutate: func(c *Config) { c.MaxConcurrency = 0 }, wantErr: true},
		{name: "negative retries", mutate: func(c *Config) { c.MaxRetries = -1 }, wantErr: true},
		{name: "zero retries allowed", mutate: func(c *Config) { c.MaxRetries = 0 }},
		{name: "zero backoff", mutate: func(c *Config) { c.BaseBackoff = 0 }, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if tt.wantErr {
				assert.True(t, apperr.Is(err, apperr.CategoryValidation), "got %v", err)
				return
			}
			assert.NoError(t, err)
		})
	}
}

func TestConfigValidateFillsOptional(t *testing.T) {
	cfg := Config{ChunkSize: 1, MaxConcurrency: 1, BaseBackoff: time.Minute}
	require.NoError(t, cfg.Validate())
	assert.Equal(t, time.Minute, cfg.MaxBackoff)
	assert.Equal(t, DefaultConfig().SpeedWindow, cfg.SpeedWindow)
	assert.Equal(t, DefaultConfig().PollInterval, cfg.PollInterval)
}

func TestBackoffDelay(t *testing.T) {
	base, max := 100*time.Millisecond, time.Second
	tests := []struct {
		attempt int
		floor   time.Duration
	}{
		{attempt: 0, floor: 100 * time.Millisecond},
		{attempt: 1, floor: 100 * time.Millisecond},
		{attempt: 2, floor: 200 * time.Millisecond},
		{attempt: 3, floor: 400 * time.Millisecond},
		{attempt: 10, floor: time.Second},
	}
	for _, tt := range tests {
		for i := 0; i < 20; i++ {
			d := backoffDelay(tt.attempt, base, max)
			assert.GreaterOrEqual(t, d, tt.floor)
			assert.LessOrEqual(t, d, tt.floor+tt.floor/2)
		}
	}
}
