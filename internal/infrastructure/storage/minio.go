// Package storage implements the media-upload collaborator on top of
// MinIO-compatible object storage.
package storage

import (
	"context"
	"fmt"
	"mime"
	"os"
	"path/filepath"

	"github.com/google/uuid"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// Config captures the settings for the object storage backend.
type Config struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	UseSSL    bool
	// PublicBaseURL is the externally reachable base for stored objects,
	// e.g. https://media.example.com. Defaults to the endpoint scheme+host.
	PublicBaseURL string
}

// MediaStore uploads local files to a bucket and returns durable URLs.
type MediaStore struct {
	mc      *minio.Client
	bucket  string
	baseURL string
}

func NewMediaStore(cfg Config) (*MediaStore, error) {
	if cfg.Endpoint == "" {
		return nil, fmt.Errorf("media storage endpoint is required")
	}
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("media storage bucket is required")
	}

	mc, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("create object storage client: %w", err)
	}

	baseURL := cfg.PublicBaseURL
	if baseURL == "" {
		scheme := "http"
		if cfg.UseSSL {
			scheme = "https"
		}
		baseURL = scheme + "://" + cfg.Endpoint
	}

	return &MediaStore{mc: mc, bucket: cfg.Bucket, baseURL: baseURL}, nil
}

// EnsureBucket creates the bucket when it does not exist yet. Call once at
// startup.
func (s *MediaStore) EnsureBucket(ctx context.Context) error {
	exists, err := s.mc.BucketExists(ctx, s.bucket)
	if err != nil {
		return fmt.Errorf("check bucket: %w", err)
	}
	if !exists {
		if err := s.mc.MakeBucket(ctx, s.bucket, minio.MakeBucketOptions{}); err != nil {
			return fmt.Errorf("create bucket: %w", err)
		}
	}
	return nil
}

// Upload stores the local file under a fresh object key and returns its
// public URL. The local temp file is removed once consumed; on upload failure
// cleanup is still attempted before the error propagates.
func (s *MediaStore) Upload(ctx context.Context, localPath string) (string, error) {
	if localPath == "" {
		return "", fmt.Errorf("local file path is required")
	}

	ext := filepath.Ext(localPath)
	key := uuid.NewString() + ext

	contentType := mime.TypeByExtension(ext)
	if contentType == "" {
		contentType = "application/octet-stream"
	}

	_, err := s.mc.FPutObject(ctx, s.bucket, key, localPath, minio.PutObjectOptions{
		ContentType: contentType,
	})
	if err != nil {
		_ = os.Remove(localPath)
		return "", fmt.Errorf("upload %s: %w", key, err)
	}

	// Best effort: a leftover temp file must not fail a completed upload.
	_ = os.Remove(localPath)

	return fmt.Sprintf("%s/%s/%s", s.baseURL, s.bucket, key), nil
}
