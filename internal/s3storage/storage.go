package s3storage

import (
	"bytes"
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/dharsanguruparan/FormSink/internal/config"
)

// Storage wraps MinIO/S3 interactions for form attachments.
type Storage struct {
	client    *minio.Client
	bucket    string
	region    string
	publicURL string
	linkTTL   time.Duration
}

// New creates a MinIO client from the Config.
func New(cfg *config.Config) (*Storage, error) {
	client, err := minio.New(cfg.S3Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.S3AccessKey, cfg.S3SecretKey, ""),
		Secure: cfg.S3UseSSL,
		Region: cfg.S3Region,
	})
	if err != nil {
		return nil, fmt.Errorf("init minio: %w", err)
	}
	ttl := cfg.LinkTTL
	// Presigned URLs are capped at seven days by S3.
	if ttl > 7*24*time.Hour {
		ttl = 7 * 24 * time.Hour
	}
	return &Storage{
		client:    client,
		bucket:    cfg.Bucket,
		region:    cfg.S3Region,
		publicURL: strings.TrimRight(cfg.S3PublicURL, "/"),
		linkTTL:   ttl,
	}, nil
}

// EnsureBucket makes sure the attachment bucket exists before use.
func (s *Storage) EnsureBucket(ctx context.Context) error {
	exists, err := s.client.BucketExists(ctx, s.bucket)
	if err != nil {
		return fmt.Errorf("check bucket %s: %w", s.bucket, err)
	}
	if !exists {
		if err := s.client.MakeBucket(ctx, s.bucket, minio.MakeBucketOptions{Region: s.region}); err != nil {
			return fmt.Errorf("make bucket %s: %w", s.bucket, err)
		}
	}
	return nil
}

// Store uploads data under key and returns its public URL when one is
// configured. Without one it returns "": presigned URLs expire, so callers
// link through the service instead.
func (s *Storage) Store(ctx context.Context, key string, data []byte, contentType string) (string, error) {
	opts := minio.PutObjectOptions{ContentType: contentType}
	if _, err := s.client.PutObject(ctx, s.bucket, key, bytes.NewReader(data), int64(len(data)), opts); err != nil {
		return "", fmt.Errorf("upload object: %w", err)
	}
	if s.publicURL != "" {
		return s.publicURL + "/" + s.bucket + "/" + key, nil
	}
	return "", nil
}

// URL returns a presigned GET URL for key, valid for the link TTL.
func (s *Storage) URL(ctx context.Context, key string) (string, error) {
	u, err := s.client.PresignedGetObject(ctx, s.bucket, key, s.linkTTL, url.Values{})
	if err != nil {
		return "", fmt.Errorf("presign object: %w", err)
	}
	return u.String(), nil
}
