package storage

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/smithy-go"

	"github.com/tbourn/go-social-backend/internal/retry"
)

// s3API is the subset of *s3.Client used by S3Store.
type s3API interface {
	PutObject(ctx context.Context, in *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	DeleteObject(ctx context.Context, in *s3.DeleteObjectInput, optFns ...func(*s3.Options)) (*s3.DeleteObjectOutput, error)
}

// S3Store uploads images to an S3 bucket. Public access is granted by the
// bucket policy, not per-object ACLs.
type S3Store struct {
	client  s3API
	bucket  string
	baseURL string
}

// NewS3Store loads the default AWS credential chain for region. endpoint is
// optional and switches to path-style addressing for S3-compatible stores.
// When baseURL is empty, virtual-hosted bucket URLs are used.
func NewS3Store(ctx context.Context, region, bucket, endpoint, baseURL string) (*S3Store, error) {
	cfg, err := config.LoadDefaultConfig(ctx, config.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}
	client := s3.NewFromConfig(cfg, func(o *s3.Options) {
		if endpoint != "" {
			o.BaseEndpoint = aws.String(endpoint)
			o.UsePathStyle = true
		}
	})
	if baseURL == "" || baseURL == "/media" {
		baseURL = fmt.Sprintf("https://%s.s3.%s.amazonaws.com", bucket, region)
	}
	return &S3Store{client: client, bucket: bucket, baseURL: baseURL}, nil
}

// Put uploads data under key, replacing any existing object.
func (s *S3Store) Put(ctx context.Context, key, contentType string, data []byte) (string, error) {
	k, err := cleanKey(key)
	if err != nil {
		return "", err
	}
	_, err = s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(s.bucket),
		Key:           aws.String(k),
		Body:          bytes.NewReader(data),
		ContentLength: aws.Int64(int64(len(data))),
		ContentType:   aws.String(contentType),
		// Keys are stable (avatar/cover are overwritten in place), so keep
		// caches short.
		CacheControl: aws.String("max-age=3600"),
		Metadata: map[string]string{
			"upload-timestamp": time.Now().UTC().Format(time.RFC3339),
		},
	})
	if err != nil {
		return "", classify(fmt.Errorf("failed to upload to S3: %w", err))
	}
	return publicURL(s.baseURL, k), nil
}

// Delete removes the object under key.
func (s *S3Store) Delete(ctx context.Context, key string) error {
	k, err := cleanKey(key)
	if err != nil {
		return err
	}
	_, err = s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(k),
	})
	if err != nil {
		return classify(fmt.Errorf("failed to delete from S3: %w", err))
	}
	return nil
}

// classify tags throttling responses as rate-limit errors so they are not
// retried.
func classify(err error) error {
	var ae smithy.APIError
	if errors.As(err, &ae) {
		switch ae.ErrorCode() {
		case "SlowDown", "Throttling", "ThrottlingException", "RequestLimitExceeded", "TooManyRequests":
			return fmt.Errorf("%w: %w", retry.ErrRateLimited, err)
		}
	}
	return err
}
