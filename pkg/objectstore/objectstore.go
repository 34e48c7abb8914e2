// Package objectstore uploads export artifacts to MinIO or S3.
package objectstore

import (
	"bytes"
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	awscredentials "github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"chat-archive/config"
)

const (
	BackendMinIO = "minio"
	BackendS3    = "s3"
)

type Store interface {
	Put(ctx context.Context, key, contentType string, body []byte) error
}

// New builds the store selected by cfg.Backend.
func New(ctx context.Context, cfg config.Export) (Store, error) {
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("objectstore: no bucket configured")
	}
	switch cfg.Backend {
	case BackendMinIO:
		return NewMinIO(ctx, cfg.MinIO, cfg.Bucket)
	case BackendS3:
		return NewS3(ctx, cfg.S3, cfg.Bucket)
	default:
		return nil, fmt.Errorf("objectstore: unknown backend %q", cfg.Backend)
	}
}

type minioStore struct {
	client *minio.Client
	bucket string
}

func NewMinIO(ctx context.Context, cfg config.MinIO, bucket string) (Store, error) {
	client, err := minio.New(cfg.URL, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessID, cfg.SecretAccessKey, ""),
		Secure: cfg.Secure,
	})
	if err != nil {
		return nil, err
	}

	exists, err := client.BucketExists(ctx, bucket)
	if err != nil {
		return nil, fmt.Errorf("objectstore: check bucket %s: %w", bucket, err)
	}
	if !exists {
		if err := client.MakeBucket(ctx, bucket, minio.MakeBucketOptions{}); err != nil {
			return nil, fmt.Errorf("objectstore: create bucket %s: %w", bucket, err)
		}
	}

	return &minioStore{client: client, bucket: bucket}, nil
}

func (s *minioStore) Put(ctx context.Context, key, contentType string, body []byte) error {
	_, err := s.client.PutObject(ctx, s.bucket, key, bytes.NewReader(body), int64(len(body)), minio.PutObjectOptions{
		ContentType: contentType,
	})
	return err
}

type s3Store struct {
	client *s3.Client
	bucket string
}

// NewS3 uses the default AWS credential chain unless static keys are set.
// A custom endpoint switches to path-style addressing for S3 compatible
// services.
func NewS3(ctx context.Context, cfg config.S3, bucket string) (Store, error) {
	opts := []func(*awsconfig.LoadOptions) error{
		awsconfig.WithRegion(cfg.Region),
	}
	if cfg.AccessKeyID != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			awscredentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("load AWS config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = true
		}
	})
	return &s3Store{client: client, bucket: bucket}, nil
}

func (s *s3Store) Put(ctx context.Context, key, contentType string, body []byte) error {
	_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(body),
		ContentType: aws.String(contentType),
	})
	return err
}
