package storage

import (
	"bytes"
	"context"
	"fmt"
	"io"

	"github.com/aliyun/aliyun-oss-go-sdk/oss"
)

// ossPartSize part size for OSS multipart uploads
const ossPartSize int64 = 16 * 1024 * 1024

// OSSStorage Alibaba Cloud OSS storage
type OSSStorage struct {
	bucket *oss.Bucket
}

// NewOSSStorage create OSS storage instance
func NewOSSStorage(endpoint, accessKey, secretKey, bucketName string) (*OSSStorage, error) {
	if endpoint == "" || accessKey == "" || secretKey == "" || bucketName == "" {
		return nil, ErrInvalid
	}

	// Create OSS client instance
	client, err := oss.New(endpoint, accessKey, secretKey)
	if err != nil {
		return nil, fmt.Errorf("failed to create oss client: %w", err)
	}

	// Get storage bucket
	bucket, err := client.Bucket(bucketName)
	if err != nil {
		return nil, fmt.Errorf("failed to get bucket: %w", err)
	}

	return &OSSStorage{
		bucket: bucket,
	}, nil
}

// Save uploads body with a single PUT, or part by part when larger than one part
func (s *OSSStorage) Save(ctx context.Context, key string, body io.Reader, size int64) error {
	if size >= 0 && size <= ossPartSize {
		if err := s.bucket.PutObject(key, body, oss.WithContext(ctx)); err != nil {
			return fmt.Errorf("failed to upload to oss: %w", err)
		}
		return nil
	}

	imur, err := s.bucket.InitiateMultipartUpload(key, oss.WithContext(ctx))
	if err != nil {
		return fmt.Errorf("failed to initiate multipart upload: %w", err)
	}

	var parts []oss.UploadPart
	for partNumber := 1; ; partNumber++ {
		part := io.LimitReader(body, ossPartSize)
		buf, err := io.ReadAll(part)
		if err != nil {
			s.bucket.AbortMultipartUpload(imur)
			return fmt.Errorf("failed to read part %d: %w", partNumber, err)
		}
		if len(buf) == 0 {
			break
		}
		uploaded, err := s.bucket.UploadPart(imur, bytes.NewReader(buf), int64(len(buf)), partNumber, oss.WithContext(ctx))
		if err != nil {
			s.bucket.AbortMultipartUpload(imur)
			return fmt.Errorf("failed to upload part %d: %w", partNumber, err)
		}
		parts = append(parts, uploaded)
	}

	if _, err := s.bucket.CompleteMultipartUpload(imur, parts, oss.WithContext(ctx)); err != nil {
		s.bucket.AbortMultipartUpload(imur)
		return fmt.Errorf("failed to complete multipart upload: %w", err)
	}
	return nil
}

// Delete delete file from OSS
func (s *OSSStorage) Delete(ctx context.Context, key string) error {
	if err := s.bucket.DeleteObject(key, oss.WithContext(ctx)); err != nil {
		return fmt.Errorf("failed to delete from oss: %w", err)
	}
	return nil
}

// Exists check if file exists in OSS
func (s *OSSStorage) Exists(ctx context.Context, key string) (bool, error) {
	return s.bucket.IsObjectExist(key, oss.WithContext(ctx))
}
