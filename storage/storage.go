package storage

import (
	"context"
	"errors"
	"io"

	"resumable-upload/conf"
)

// Storage mirror target for published files
type Storage interface {
	Save(ctx context.Context, key string, body io.Reader, size int64) error
	Delete(ctx context.Context, key string) error
	Exists(ctx context.Context, key string) (bool, error)
}

var (
	ErrNotFound = errors.New("file not found")
	ErrInvalid  = errors.New("invalid storage configuration")
)

// NewStorage create mirror storage by configuration. Returns nil for type "none".
func NewStorage() (Storage, error) {
	storageType := conf.Cfg.Storage.Type

	switch storageType {
	case "", "none":
		return nil, nil
	case "local":
		return NewLocalStorage(conf.Cfg.Storage.Local.BasePath)
	case "oss":
		return NewOSSStorage(conf.Cfg.Storage.OSS.Endpoint, conf.Cfg.Storage.OSS.AccessKey,
			conf.Cfg.Storage.OSS.SecretKey, conf.Cfg.Storage.OSS.Bucket)
	case "s3":
		return NewS3Storage(conf.Cfg.Storage.S3.Region, conf.Cfg.Storage.S3.Endpoint,
			conf.Cfg.Storage.S3.AccessKey, conf.Cfg.Storage.S3.SecretKey, conf.Cfg.Storage.S3.Bucket)
	case "minio":
		return NewMinIOStorage(conf.Cfg.Storage.MinIO.Endpoint, conf.Cfg.Storage.MinIO.AccessKey,
			conf.Cfg.Storage.MinIO.SecretKey, conf.Cfg.Storage.MinIO.Bucket)
	default:
		return nil, ErrInvalid
	}
}

// MirrorKey object key of a published file
func MirrorKey(sessionID, filename string) string {
	return "uploads/" + sessionID + "/" + publishName(filename)
}
