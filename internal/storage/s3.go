package storage

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// S3DocumentStore issues presigned GET URLs for documents in one bucket.
type S3DocumentStore struct {
	presigner *s3.PresignClient
	bucket    string
}

func NewS3DocumentStore(cfg aws.Config, bucket string) (*S3DocumentStore, error) {
	if strings.TrimSpace(bucket) == "" {
		return nil, fmt.Errorf("document bucket is required")
	}

	client := s3.NewFromConfig(cfg)
	return &S3DocumentStore{
		presigner: s3.NewPresignClient(client),
		bucket:    bucket,
	}, nil
}

func (s *S3DocumentStore) SignedURL(ctx context.Context, key string, ttl time.Duration) (string, error) {
	if strings.TrimSpace(key) == "" {
		return "", fmt.Errorf("document key is required")
	}
	if ttl <= 0 {
		return "", fmt.Errorf("ttl must be positive")
	}

	req, err := s.presigner.PresignGetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	}, s3.WithPresignExpires(ttl))
	if err != nil {
		return "", fmt.Errorf("failed to presign document %q: %w", key, err)
	}

	return req.URL, nil
}
