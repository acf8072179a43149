// Package objstore wraps the artifact bucket. The pipeline only needs a
// key→bytes store with presigned retrieval; everything else stays behind here.
package objstore

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/docstreamhq/docstream/internal/common"
)

type Service struct {
	client *minio.Client
	bucket string
	cfg    common.StorageConfig
	logger *slog.Logger
}

func NewService(cfg common.StorageConfig, logger *slog.Logger) (*Service, error) {
	if logger == nil {
		logger = slog.Default()
	}
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("create minio client: %w", err)
	}
	return &Service{client: client, bucket: cfg.Bucket, cfg: cfg, logger: logger}, nil
}

// EnsureBucket creates the bucket if it doesn't exist.
func (s *Service) EnsureBucket(ctx context.Context) error {
	exists, err := s.client.BucketExists(ctx, s.bucket)
	if err != nil {
		return fmt.Errorf("check bucket: %w", err)
	}
	if !exists {
		if err := s.client.MakeBucket(ctx, s.bucket, minio.MakeBucketOptions{}); err != nil {
			return fmt.Errorf("create bucket: %w", err)
		}
	}
	return nil
}

// Put uploads bytes under key.
func (s *Service) Put(ctx context.Context, key string, data []byte, contentType string) error {
	_, err := s.client.PutObject(ctx, s.bucket, key, bytes.NewReader(data), int64(len(data)), minio.PutObjectOptions{
		ContentType: contentType,
	})
	if err != nil {
		return common.StorageError(fmt.Sprintf("upload %s", key), err)
	}
	return nil
}

// Get fetches the bytes stored under key.
func (s *Service) Get(ctx context.Context, key string) ([]byte, error) {
	obj, err := s.client.GetObject(ctx, s.bucket, key, minio.GetObjectOptions{})
	if err != nil {
		return nil, common.StorageError(fmt.Sprintf("fetch %s", key), err)
	}
	defer func() {
		if err := obj.Close(); err != nil {
			s.logger.Warn("objstore.close_failed", "key", key, "error", err)
		}
	}()

	data, err := io.ReadAll(obj)
	if err != nil {
		var resp minio.ErrorResponse
		if errors.As(err, &resp) && resp.Code == "NoSuchKey" {
			return nil, common.NotFoundError(fmt.Sprintf("object %s not found", key))
		}
		return nil, common.StorageError(fmt.Sprintf("read %s", key), err)
	}
	return data, nil
}

// Delete removes the object under key. Callers treat failures as non-fatal.
func (s *Service) Delete(ctx context.Context, key string) error {
	if err := s.client.RemoveObject(ctx, s.bucket, key, minio.RemoveObjectOptions{}); err != nil {
		return common.StorageError(fmt.Sprintf("delete %s", key), err)
	}
	return nil
}

// PresignedURL generates a time-limited retrieval URL for the object.
func (s *Service) PresignedURL(ctx context.Context, key string) (string, error) {
	u, err := s.client.PresignedGetObject(ctx, s.bucket, key, s.cfg.PresignExpiry, nil)
	if err != nil {
		return "", common.StorageError(fmt.Sprintf("presign %s", key), err)
	}
	return u.String(), nil
}
