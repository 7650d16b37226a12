package pdf

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/ignite/immo-leads/internal/pkg/logger"
)

// S3Config configures the S3 store.
type S3Config struct {
	Bucket string
	Region string
	Prefix string // e.g. "guides/"
}

type s3API interface {
	PutObject(ctx context.Context, in *s3.PutObjectInput, opts ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	GetObject(ctx context.Context, in *s3.GetObjectInput, opts ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	DeleteObject(ctx context.Context, in *s3.DeleteObjectInput, opts ...func(*s3.Options)) (*s3.DeleteObjectOutput, error)
}

type presigner interface {
	PresignGetObject(ctx context.Context, in *s3.GetObjectInput, opts ...func(*s3.PresignOptions)) (*presignedRequest, error)
}

type presignedRequest struct{ URL string }

// presignAdapter narrows the SDK presign client to what we use.
type presignAdapter struct{ c *s3.PresignClient }

func (a presignAdapter) PresignGetObject(ctx context.Context, in *s3.GetObjectInput, opts ...func(*s3.PresignOptions)) (*presignedRequest, error) {
	r, err := a.c.PresignGetObject(ctx, in, opts...)
	if err != nil {
		return nil, err
	}
	return &presignedRequest{URL: r.URL}, nil
}

// S3Store keeps guide PDFs in a bucket and hands out presigned URLs.
type S3Store struct {
	client  s3API
	presign presigner
	bucket  string
	prefix  string
}

// NewS3Store loads AWS credentials from the default chain.
func NewS3Store(ctx context.Context, cfg S3Config) (*S3Store, error) {
	if cfg.Bucket == "" {
		return nil, errors.New("pdf: s3 bucket is required")
	}
	if cfg.Region == "" {
		cfg.Region = "eu-west-3"
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.Region))
	if err != nil {
		return nil, fmt.Errorf("pdf: load aws config: %w", err)
	}
	client := s3.NewFromConfig(awsCfg)
	logger.Info("pdf: s3 store ready", "bucket", cfg.Bucket, "prefix", cfg.Prefix, "region", cfg.Region)
	return newS3Store(client, presignAdapter{s3.NewPresignClient(client)}, cfg), nil
}

func newS3Store(client s3API, p presigner, cfg S3Config) *S3Store {
	return &S3Store{client: client, presign: p, bucket: cfg.Bucket, prefix: cfg.Prefix}
}

func (s *S3Store) key(k string) string { return s.prefix + k }

func (s *S3Store) Put(ctx context.Context, key string, data []byte) error {
	_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:             aws.String(s.bucket),
		Key:                aws.String(s.key(key)),
		Body:               bytes.NewReader(data),
		ContentType:        aws.String("application/pdf"),
		ContentDisposition: aws.String("attachment"),
		CacheControl:       aws.String("private, max-age=3600"),
	})
	if err != nil {
		return fmt.Errorf("pdf: s3 put %s: %w", key, err)
	}
	return nil
}

func (s *S3Store) Open(ctx context.Context, key string) (io.ReadCloser, error) {
	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.key(key)),
	})
	if err != nil {
		var nsk *types.NoSuchKey
		if errors.As(err, &nsk) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("pdf: s3 get %s: %w", key, err)
	}
	return out.Body, nil
}

// URL presigns a GET valid for ttl.
func (s *S3Store) URL(ctx context.Context, key string, ttl time.Duration) (string, error) {
	if ttl <= 0 {
		ttl = 15 * time.Minute
	}
	req, err := s.presign.PresignGetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.key(key)),
	}, s3.WithPresignExpires(ttl))
	if err != nil {
		return "", fmt.Errorf("pdf: presign %s: %w", key, err)
	}
	return req.URL, nil
}

func (s *S3Store) Delete(ctx context.Context, key string) error {
	_, err := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.key(key)),
	})
	if err != nil {
		return fmt.Errorf("pdf: s3 delete %s: %w", key, err)
	}
	return nil
}
