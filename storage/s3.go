package storage

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"
)

// mirrorPartSize multipart part size used by the S3 upload manager
const mirrorPartSize int64 = 16 * 1024 * 1024

// S3Storage AWS S3 compatible storage (supports AWS S3 and MinIO)
type S3Storage struct {
	client *s3.Client
	bucket string
}

// NewS3Storage create S3 storage instance
func NewS3Storage(region, endpoint, accessKey, secretKey, bucketName string) (*S3Storage, error) {
	if accessKey == "" || secretKey == "" || bucketName == "" {
		return nil, ErrInvalid
	}

	// Load AWS configuration with static credentials
	cfg, err := config.LoadDefaultConfig(context.Background(),
		config.WithRegion(region),
		config.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(accessKey, secretKey, "")),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	client := s3.NewFromConfig(cfg, func(o *s3.Options) {
		if endpoint != "" {
			// Custom endpoint (for MinIO or S3-compatible services)
			o.BaseEndpoint = aws.String(endpoint)
			o.UsePathStyle = true
		}
	})

	return &S3Storage{
		client: client,
		bucket: bucketName,
	}, nil
}

// NewMinIOStorage create MinIO storage instance (alias for S3Storage)
func NewMinIOStorage(endpoint, accessKey, secretKey, bucketName string) (*S3Storage, error) {
	// MinIO ignores the region
	return NewS3Storage("us-east-1", endpoint, accessKey, secretKey, bucketName)
}

// Save streams body to S3, switching to multipart for large files
func (s *S3Storage) Save(ctx context.Context, key string, body io.Reader, size int64) error {
	uploader := manager.NewUploader(s.client, func(u *manager.Uploader) {
		u.PartSize = mirrorPartSize
	})

	input := &s3.PutObjectInput{
		Bucket:            aws.String(s.bucket),
		Key:               aws.String(key),
		Body:              body,
		ChecksumAlgorithm: types.ChecksumAlgorithmSha256,
	}
	if size >= 0 {
		input.ContentLength = aws.Int64(size)
	}
	if _, err := uploader.Upload(ctx, input); err != nil {
		return fmt.Errorf("failed to upload to s3: %w", err)
	}
	return nil
}

// Delete delete file from S3
func (s *S3Storage) Delete(ctx context.Context, key string) error {
	_, err := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return fmt.Errorf("failed to delete from s3: %w", err)
	}
	return nil
}

// Exists check if file exists in S3
func (s *S3Storage) Exists(ctx context.Context, key string) (bool, error) {
	_, err := s.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err == nil {
		return true, nil
	}
	var apiError smithy.APIError
	if errors.As(err, &apiError) {
		switch apiError.(type) {
		case *types.NotFound:
			return false, nil
		}
	}
	return false, fmt.Errorf("failed to head s3 object: %w", err)
}
