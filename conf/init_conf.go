package conf

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config application configuration structure
type Config struct {
	// Uploader service configuration
	Uploader UploaderConfig

	// Database configuration
	Database DatabaseConfig

	// Mirror storage configuration
	Storage StorageConfig

	// Redis configuration
	Redis RedisConfig

	// Completion notification configuration
	Notify NotifyConfig
}

// UploaderConfig uploader configuration
type UploaderConfig struct {
	Port           string
	DataDir        string        // Temp and published files live under this directory
	ChunkSize      int64         // Default chunk size in bytes
	MaxChunkSize   int64         // Largest chunk size a client may request, in bytes
	MaxFileSize    int64         // Largest accepted file, in bytes
	PeekMaxEntries int           // Top-level entries reported by finalize
	SweepInterval  time.Duration // Orphan sweep period
	SweepMaxAge    time.Duration // Sessions idle longer than this are reclaimed
	SweepBatchSize int           // Sessions reclaimed per sweep
	SwaggerBaseUrl string        // Swagger API base URL (e.g., "example.com:7282")
}

// DatabaseConfig database configuration
type DatabaseConfig struct {
	Type         string // Ledger database type: mysql, sqlite, pebble
	Dsn          string // MySQL DSN or SQLite file path
	MaxOpenConns int    // MySQL max open connections
	MaxIdleConns int    // MySQL max idle connections
	DataDir      string // PebbleDB data directory
}

// StorageConfig mirror storage configuration
type StorageConfig struct {
	Type  string // none, local, oss, s3, minio
	Local LocalStorageConfig
	OSS   OSSStorageConfig
	S3    S3StorageConfig
	MinIO MinIOStorageConfig
}

// LocalStorageConfig local storage configuration
type LocalStorageConfig struct {
	BasePath string
}

// OSSStorageConfig OSS storage configuration
type OSSStorageConfig struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
}

// S3StorageConfig AWS S3 storage configuration
type S3StorageConfig struct {
	Region    string
	AccessKey string
	SecretKey string
	Bucket    string
	Endpoint  string // Optional custom endpoint
}

// MinIOStorageConfig MinIO storage configuration
type MinIOStorageConfig struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
}

// RedisConfig redis configuration
type RedisConfig struct {
	Enabled  bool   // Enable Redis sweep lock and completed-session cache
	Host     string // Redis host
	Port     int    // Redis port
	Password string // Redis password (optional)
	DB       int    // Redis database number
	CacheTTL int    // Cache TTL in seconds (default: 300)
}

// NotifyConfig completion notification configuration
type NotifyConfig struct {
	ZmqEnabled bool   // Publish completion events over ZMQ
	ZmqAddress string // PUB socket address (e.g., "tcp://*:28400")
}

// Cfg global configuration instance
var Cfg *Config

// InitConfig initialize configuration
func InitConfig() error {
	viper.SetConfigFile(GetYaml())
	viper.SetEnvPrefix("UPLOADER")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()
	if err := viper.ReadInConfig(); err != nil {
		return fmt.Errorf("Fatal error config file: %s", err)
	}

	Cfg = LoadConfig(viper.GetViper())
	return nil
}

// LoadConfig builds a Config from v and applies defaults
func LoadConfig(v *viper.Viper) *Config {
	cfg := &Config{
		Uploader: UploaderConfig{
			Port:           v.GetString("uploader.port"),
			DataDir:        v.GetString("uploader.data_dir"),
			ChunkSize:      v.GetInt64("uploader.chunk_size") * 1024 * 1024,     // MB to bytes
			MaxChunkSize:   v.GetInt64("uploader.max_chunk_size") * 1024 * 1024, // MB to bytes
			MaxFileSize:    v.GetInt64("uploader.max_file_size") * 1024 * 1024,  // MB to bytes
			PeekMaxEntries: v.GetInt("uploader.peek_max_entries"),
			SweepInterval:  v.GetDuration("uploader.sweep_interval"),
			SweepMaxAge:    v.GetDuration("uploader.sweep_max_age"),
			SweepBatchSize: v.GetInt("uploader.sweep_batch_size"),
			SwaggerBaseUrl: v.GetString("uploader.swagger_base_url"),
		},

		Database: DatabaseConfig{
			Type:         v.GetString("database.type"),
			Dsn:          v.GetString("database.dsn"),
			MaxOpenConns: v.GetInt("database.max_open_conns"),
			MaxIdleConns: v.GetInt("database.max_idle_conns"),
			DataDir:      v.GetString("database.data_dir"),
		},

		Storage: StorageConfig{
			Type: v.GetString("storage.type"),
			Local: LocalStorageConfig{
				BasePath: v.GetString("storage.local.base_path"),
			},
			OSS: OSSStorageConfig{
				Endpoint:  v.GetString("storage.oss.endpoint"),
				AccessKey: v.GetString("storage.oss.access_key"),
				SecretKey: v.GetString("storage.oss.secret_key"),
				Bucket:    v.GetString("storage.oss.bucket"),
			},
			S3: S3StorageConfig{
				Region:    v.GetString("storage.s3.region"),
				AccessKey: v.GetString("storage.s3.access_key"),
				SecretKey: v.GetString("storage.s3.secret_key"),
				Bucket:    v.GetString("storage.s3.bucket"),
				Endpoint:  v.GetString("storage.s3.endpoint"),
			},
			MinIO: MinIOStorageConfig{
				Endpoint:  v.GetString("storage.minio.endpoint"),
				AccessKey: v.GetString("storage.minio.access_key"),
				SecretKey: v.GetString("storage.minio.secret_key"),
				Bucket:    v.GetString("storage.minio.bucket"),
			},
		},

		Redis: RedisConfig{
			Enabled:  v.GetBool("redis.enabled"),
			Host:     v.GetString("redis.host"),
			Port:     v.GetInt("redis.port"),
			Password: v.GetString("redis.password"),
			DB:       v.GetInt("redis.db"),
			CacheTTL: v.GetInt("redis.cache_ttl"),
		},

		Notify: NotifyConfig{
			ZmqEnabled: v.GetBool("notify.zmq_enabled"),
			ZmqAddress: v.GetString("notify.zmq_address"),
		},
	}

	// Set default values
	if cfg.Uploader.Port == "" {
		cfg.Uploader.Port = "7282"
	}
	if cfg.Uploader.DataDir == "" {
		cfg.Uploader.DataDir = "./data"
	}
	if cfg.Uploader.ChunkSize == 0 {
		cfg.Uploader.ChunkSize = 5 * 1024 * 1024
	}
	if cfg.Uploader.MaxChunkSize == 0 {
		cfg.Uploader.MaxChunkSize = 64 * 1024 * 1024
	}
	if cfg.Uploader.MaxChunkSize < cfg.Uploader.ChunkSize {
		cfg.Uploader.MaxChunkSize = cfg.Uploader.ChunkSize
	}
	if cfg.Uploader.MaxFileSize == 0 {
		cfg.Uploader.MaxFileSize = 50 * 1024 * 1024 * 1024
	}
	if cfg.Uploader.PeekMaxEntries == 0 {
		cfg.Uploader.PeekMaxEntries = 100
	}
	if cfg.Uploader.SweepInterval == 0 {
		cfg.Uploader.SweepInterval = 10 * time.Minute
	}
	if cfg.Uploader.SweepMaxAge == 0 {
		cfg.Uploader.SweepMaxAge = 24 * time.Hour
	}
	if cfg.Uploader.SweepBatchSize == 0 {
		cfg.Uploader.SweepBatchSize = 100
	}
	if cfg.Uploader.SwaggerBaseUrl == "" {
		cfg.Uploader.SwaggerBaseUrl = "localhost:" + cfg.Uploader.Port
	}
	if cfg.Database.Type == "" {
		cfg.Database.Type = "pebble"
	}
	if cfg.Database.DataDir == "" {
		cfg.Database.DataDir = cfg.Uploader.DataDir + "/db"
	}
	if cfg.Database.MaxOpenConns == 0 {
		cfg.Database.MaxOpenConns = 100
	}
	if cfg.Database.MaxIdleConns == 0 {
		cfg.Database.MaxIdleConns = 10
	}
	if cfg.Storage.Type == "" {
		cfg.Storage.Type = "none"
	}
	if cfg.Redis.CacheTTL == 0 {
		cfg.Redis.CacheTTL = 300
	}
	if cfg.Notify.ZmqAddress == "" {
		cfg.Notify.ZmqAddress = "tcp://*:28400"
	}

	return cfg
}
