// Package s3storage wraps MinIO/S3 interactions for export artifacts and
// intake scans.
package s3storage

import (
	"context"
	"fmt"
	"io"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/harborcare/careexport/internal/config"
)

// Storage holds a MinIO client plus the two buckets careexport uses.
type Storage struct {
	client        *minio.Client
	exportsBucket string
	intakeBucket  string
	region        string
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
	return &Storage{
		client:        client,
		exportsBucket: cfg.ExportsBucket,
		intakeBucket:  cfg.IntakeBucket,
		region:        cfg.S3Region,
	}, nil
}

// EnsureBuckets makes sure both buckets exist before use.
func (s *Storage) EnsureBuckets(ctx context.Context) error {
	for _, bucket := range []string{s.exportsBucket, s.intakeBucket} {
		exists, err := s.client.BucketExists(ctx, bucket)
		if err != nil {
			return fmt.Errorf("check bucket %s: %w", bucket, err)
		}
		if !exists {
			if err := s.client.MakeBucket(ctx, bucket, minio.MakeBucketOptions{Region: s.region}); err != nil {
				return fmt.Errorf("make bucket %s: %w", bucket, err)
			}
		}
	}
	return nil
}

// UploadExport streams a finished artifact into the exports bucket. Size may
// be -1 when the artifact is produced by a streaming encoder.
func (s *Storage) UploadExport(ctx context.Context, objectKey string, reader io.Reader, size int64, contentType string) error {
	opts := minio.PutObjectOptions{ContentType: contentType}
	if _, err := s.client.PutObject(ctx, s.exportsBucket, objectKey, reader, size, opts); err != nil {
		return fmt.Errorf("upload export artifact: %w", err)
	}
	return nil
}

// OpenExport returns a reader over a stored artifact. The caller must close
// it.
func (s *Storage) OpenExport(ctx context.Context, objectKey string) (io.ReadCloser, error) {
	obj, err := s.client.GetObject(ctx, s.exportsBucket, objectKey, minio.GetObjectOptions{})
	if err != nil {
		return nil, fmt.Errorf("get export artifact: %w", err)
	}
	return obj, nil
}

// UploadScan stores an uploaded paper-form scan in the intake bucket.
func (s *Storage) UploadScan(ctx context.Context, objectKey string, reader io.Reader, size int64, contentType string) error {
	opts := minio.PutObjectOptions{ContentType: contentType}
	if _, err := s.client.PutObject(ctx, s.intakeBucket, objectKey, reader, size, opts); err != nil {
		return fmt.Errorf("upload scan: %w", err)
	}
	return nil
}

// DownloadScan fetches the raw scan bytes for extraction.
func (s *Storage) DownloadScan(ctx context.Context, objectKey string) ([]byte, error) {
	obj, err := s.client.GetObject(ctx, s.intakeBucket, objectKey, minio.GetObjectOptions{})
	if err != nil {
		return nil, fmt.Errorf("get scan: %w", err)
	}
	defer obj.Close()
	buf, err := io.ReadAll(obj)
	if err != nil {
		return nil, fmt.Errorf("read scan: %w", err)
	}
	return buf, nil
}
