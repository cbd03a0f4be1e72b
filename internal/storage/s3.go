package storage

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awscfg "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/iliyamo/farmwise/internal/config"
)

// S3 uploads objects with the multipart upload manager and returns their
// public URL.  The bucket is expected to allow public reads, or
// S3PublicBaseURL to point at a CDN in front of it.
type S3 struct {
	uploader *manager.Uploader
	bucket   string
	region   string
	baseURL  string
}

func NewS3(ctx context.Context, cfg config.UploadConfig) (*S3, error) {
	if cfg.S3Bucket == "" {
		return nil, fmt.Errorf("s3: S3_BUCKET is required")
	}
	ac, err := awscfg.LoadDefaultConfig(ctx, awscfg.WithRegion(cfg.S3Region))
	if err != nil {
		return nil, fmt.Errorf("s3: %w", err)
	}
	return &S3{
		uploader: manager.NewUploader(s3.NewFromConfig(ac)),
		bucket:   cfg.S3Bucket,
		region:   cfg.S3Region,
		baseURL:  strings.TrimRight(cfg.S3PublicBaseURL, "/"),
	}, nil
}

func (s *S3) Upload(ctx context.Context, folder string, f File) (string, error) {
	key := objectKey(folder, f.Name)
	ct := f.ContentType
	if ct == "" {
		ct = "application/octet-stream"
	}
	if _, err := s.uploader.Upload(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(key),
		Body:        f.Body,
		ContentType: aws.String(ct),
	}); err != nil {
		return "", fmt.Errorf("s3 upload: %w", err)
	}
	return s.publicURL(key), nil
}

func (s *S3) publicURL(key string) string {
	escaped := (&url.URL{Path: key}).EscapedPath()
	if s.baseURL != "" {
		return s.baseURL + "/" + escaped
	}
	return fmt.Sprintf("https://%s.s3.%s.amazonaws.com/%s", s.bucket, s.region, escaped)
}
