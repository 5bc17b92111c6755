package export

import (
	"bytes"
	"context"
	"fmt"
	"path"
	"strings"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/shadderzzz/UmmahHub/internal/thread"
)

// Archiver writes thread snapshots to an S3-compatible bucket before the
// thread is deleted.
type Archiver struct {
	client   *minio.Client
	bucket   string
	exporter *Service
}

func NewArchiver(cfg ArchiveConfig, exporter *Service) (*Archiver, error) {
	if strings.TrimSpace(cfg.Endpoint) == "" {
		return nil, ErrArchiveNotConfigured
	}
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("archive bucket required")
	}
	region := cfg.Region
	if region == "" {
		region = "us-east-1"
	}
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
		Region: region,
	})
	if err != nil {
		return nil, fmt.Errorf("create archive client: %w", err)
	}
	return &Archiver{client: client, bucket: cfg.Bucket, exporter: exporter}, nil
}

// EnsureBucket creates the bucket when it does not exist yet.
func (a *Archiver) EnsureBucket(ctx context.Context) error {
	exists, err := a.client.BucketExists(ctx, a.bucket)
	if err != nil {
		return fmt.Errorf("check archive bucket: %w", err)
	}
	if exists {
		return nil
	}
	if err := a.client.MakeBucket(ctx, a.bucket, minio.MakeBucketOptions{}); err != nil {
		return fmt.Errorf("create archive bucket: %w", err)
	}
	return nil
}

// Archive uploads the HTML rendering and the JSON snapshot of a thread.
func (a *Archiver) Archive(ctx context.Context, view thread.View, categoryLabel string) ([]ArchivedObject, error) {
	prefix := path.Join("threads", string(view.Category), fmt.Sprint(view.Question.ID), timestamp(a.exporter.now()))

	objects := make([]ArchivedObject, 0, 2)
	for _, format := range []Format{FormatHTML, FormatJSON} {
		result, err := a.exporter.Export(view, categoryLabel, format)
		if err != nil {
			return objects, err
		}
		key := prefix + "." + string(format)
		info, err := a.client.PutObject(ctx, a.bucket, key, bytes.NewReader(result.Data), int64(len(result.Data)), minio.PutObjectOptions{
			ContentType: result.MimeType,
		})
		if err != nil {
			return objects, fmt.Errorf("upload %s: %w", key, err)
		}
		objects = append(objects, ArchivedObject{Key: key, Size: info.Size})
	}
	return objects, nil
}
