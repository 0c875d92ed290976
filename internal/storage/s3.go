// Package storage archives sweep reports in S3-compatible object storage.
package storage

import (
	"context"
	"fmt"
	"io"
	"path"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/winkmatch/backend/internal/config"
)

const reportContentType = "application/json"

// S3Archive uploads JSON documents to a bucket.
type S3Archive struct {
	uploader *manager.Uploader
	bucket   string
	baseURL  string
}

// NewS3Archive configures an uploader targeting the provided object store.
func NewS3Archive(ctx context.Context, cfg config.ObjectStoreConfig) (*S3Archive, error) {
	if strings.TrimSpace(cfg.Bucket) == "" {
		return nil, fmt.Errorf("s3 archive: bucket is required")
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.Region))
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	endpoint := strings.TrimSpace(cfg.Endpoint)
	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if endpoint != "" {
			o.BaseEndpoint = aws.String(endpoint)
			// MinIO and most self-hosted stores only speak path-style.
			o.UsePathStyle = true
		}
	})

	uploader := manager.NewUploader(client, func(u *manager.Uploader) {
		u.LeavePartsOnError = false
	})

	return &S3Archive{
		uploader: uploader,
		bucket:   cfg.Bucket,
		baseURL:  strings.TrimSuffix(cfg.PublicBaseURL, "/"),
	}, nil
}

// Save uploads r under key and returns the object's location.
func (s *S3Archive) Save(ctx context.Context, key string, r io.Reader) (string, error) {
	key = strings.TrimLeft(key, "/")
	if key == "" {
		return "", fmt.Errorf("s3 archive: empty key")
	}

	_, err := s.uploader.Upload(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(key),
		Body:        r,
		ContentType: aws.String(reportContentType),
	})
	if err != nil {
		return "", fmt.Errorf("s3 archive upload %s: %w", key, err)
	}

	return s.location(key), nil
}

func (s *S3Archive) location(key string) string {
	if s.baseURL == "" {
		return fmt.Sprintf("s3://%s/%s", s.bucket, key)
	}
	return fmt.Sprintf("%s/%s", s.baseURL, key)
}

// SweepReportKey places a sweep run's report under a UTC date prefix, e.g.
// sweeps/2024/06/01/<run-id>.json.
func SweepReportKey(runID string, at time.Time) string {
	at = at.UTC()
	return path.Join("sweeps", at.Format("2006"), at.Format("01"), at.Format("02"), runID+".json")
}
