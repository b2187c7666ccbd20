package storage

import (
	"bytes"
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/google/uuid"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/leaseledger/lease-ledger-api/internal/config"
)

// Storage persists original document bytes. Store returns a stable URL whose
// key carries a uniqueness token, so re-uploads of same-named files never
// collide.
type Storage interface {
	Store(ctx context.Context, filename string, data []byte) (fileURL string, err error)
	Delete(ctx context.Context, fileURL string) error
}

type s3Storage struct {
	client     *minio.Client
	bucketName string
	baseURL    string
}

func NewS3Storage(cfg *config.Config) (Storage, error) {
	client, err := minio.New(cfg.S3Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.S3AccessKeyID, cfg.S3SecretAccessKey, ""),
		Secure: cfg.S3UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create S3 client: %w", err)
	}

	// Ensure bucket exists
	ctx := context.Background()
	exists, err := client.BucketExists(ctx, cfg.S3BucketName)
	if err != nil {
		return nil, fmt.Errorf("failed to check bucket existence: %w", err)
	}

	if !exists {
		err = client.MakeBucket(ctx, cfg.S3BucketName, minio.MakeBucketOptions{})
		if err != nil {
			return nil, fmt.Errorf("failed to create bucket: %w", err)
		}
	}

	scheme := "http"
	if cfg.S3UseSSL {
		scheme = "https"
	}

	return &s3Storage{
		client:     client,
		bucketName: cfg.S3BucketName,
		baseURL:    fmt.Sprintf("%s://%s/%s", scheme, cfg.S3Endpoint, cfg.S3BucketName),
	}, nil
}

func (s *s3Storage) Store(ctx context.Context, filename string, data []byte) (string, error) {
	key := fmt.Sprintf("%s_%s", uuid.NewString(), filename)

	_, err := s.client.PutObject(
		ctx,
		s.bucketName,
		key,
		bytes.NewReader(data),
		int64(len(data)),
		minio.PutObjectOptions{
			ContentType: "application/pdf",
		},
	)
	if err != nil {
		return "", fmt.Errorf("failed to upload to S3: %w", err)
	}

	return fmt.Sprintf("%s/%s", s.baseURL, url.PathEscape(key)), nil
}

func (s *s3Storage) Delete(ctx context.Context, fileURL string) error {
	key, err := s.keyFromURL(fileURL)
	if err != nil {
		return err
	}

	if err := s.client.RemoveObject(ctx, s.bucketName, key, minio.RemoveObjectOptions{}); err != nil {
		return fmt.Errorf("failed to delete from S3: %w", err)
	}

	return nil
}

func (s *s3Storage) keyFromURL(fileURL string) (string, error) {
	if !strings.HasPrefix(fileURL, s.baseURL+"/") {
		return "", fmt.Errorf("file URL %q does not belong to bucket %s", fileURL, s.bucketName)
	}
	key, err := url.PathUnescape(strings.TrimPrefix(fileURL, s.baseURL+"/"))
	if err != nil {
		return "", fmt.Errorf("failed to decode object key: %w", err)
	}
	return key, nil
}
