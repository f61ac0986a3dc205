package services

import (
	"context"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// AvatarSigner turns a stored avatar key into a URL a client can load.
type AvatarSigner interface {
	ReadURL(ctx context.Context, key string) (string, error)
}

// S3AvatarSigner presigns GET requests for avatar objects in one bucket.
type S3AvatarSigner struct {
	presigner *s3.PresignClient
	bucket    string
	ttl       time.Duration
}

// NewS3AvatarSigner builds a signer from the default AWS config for region.
func NewS3AvatarSigner(ctx context.Context, region, bucket string, ttl time.Duration) (*S3AvatarSigner, error) {
	cfg, err := config.LoadDefaultConfig(ctx, config.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}
	return &S3AvatarSigner{
		presigner: s3.NewPresignClient(s3.NewFromConfig(cfg)),
		bucket:    bucket,
		ttl:       ttl,
	}, nil
}

// ReadURL generates a presigned URL for reading key
func (s *S3AvatarSigner) ReadURL(ctx context.Context, key string) (string, error) {
	params := &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	}
	presigned, err := s.presigner.PresignGetObject(ctx, params, s3.WithPresignExpires(s.ttl))
	if err != nil {
		return "", fmt.Errorf("failed to presign avatar %s: %w", key, err)
	}
	return presigned.URL, nil
}
