package conf

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfigExampleFile(t *testing.T) {
	v := viper.New()
	v.SetConfigFile("conf_example.yaml")
	require.NoError(t, v.ReadInConfig())

	cfg := LoadConfig(v)
	assert.Equal(t, "7282", cfg.Uploader.Port)
	assert.Equal(t, int64(5*1024*1024), cfg.Uploader.ChunkSize)
	assert.Equal(t, int64(64*1024*1024), cfg.Uploader.MaxChunkSize)
	assert.Equal(t, 10*time.Minute, cfg.Uploader.SweepInterval)
	assert.Equal(t, 24*time.Hour, cfg.Uploader.SweepMaxAge)
	assert.Equal(t, "pebble", cfg.Database.Type)
	assert.Equal(t, "none", cfg.Storage.Type)
	assert.False(t, cfg.Redis.Enabled)
}

func TestLoadConfigDefaults(t *testing.T) {
	cfg := LoadConfig(viper.New())
	assert.Equal(t, "7282", cfg.Uploader.Port)
	assert.Equal(t, "./data", cfg.Uploader.DataDir)
	assert.Equal(t, int64(5*1024*1024), cfg.Uploader.ChunkSize)
	assert.Equal(t, 100, cfg.Uploader.PeekMaxEntries)
	assert.Equal(t, "./data/db", cfg.Database.DataDir)
	assert.Equal(t, "localhost:7282", cfg.Uploader.SwaggerBaseUrl)
	assert.Equal(t, 300, cfg.Redis.CacheTTL)
}

func TestParseEnvironment(t *testing.T) {
	env, err := ParseEnvironment("prod")
	require.NoError(t, err)
	assert.Equal(t, ProdEnvironmentEnum, env)

	_, err = ParseEnvironment("mainnet")
	assert.Error(t, err)
}

func TestLoadDotEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".env")
	require.NoError(t, os.WriteFile(path, []byte("UPLOADER_TEST_DOTENV=from-file\n"), 0644))
	t.Setenv("UPLOADER_TEST_DOTENV", "")
	os.Unsetenv("UPLOADER_TEST_DOTENV")

	require.NoError(t, LoadDotEnv(filepath.Join(t.TempDir(), "missing.env"), path))
	assert.Equal(t, "from-file", os.Getenv("UPLOADER_TEST_DOTENV"))
}
