package artifacts

import (
	"bytes"
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// S3Store keeps artifacts in an S3 bucket (or an S3-compatible service) and
// hands out short-lived presigned GET URLs for downloads.
type S3Store struct {
	client    *s3.Client
	presigner *s3.PresignClient
	bucket    string
	prefix    string
	ttl       time.Duration
}

// S3StoreConfig holds configuration for S3Store.
type S3StoreConfig struct {
	Bucket     string
	Region     string
	Endpoint   string        // optional custom endpoint (MinIO, LocalStack, ...)
	Prefix     string        // optional key prefix, e.g. "artifacts/"
	PresignTTL time.Duration // validity of download URLs; defaults to 15m
}

// NewS3Store loads the default AWS credential chain and builds the client.
func NewS3Store(ctx context.Context, cfg S3StoreConfig) (*S3Store, error) {
	if strings.TrimSpace(cfg.Bucket) == "" {
		return nil, fmt.Errorf("s3 bucket must not be empty")
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.Region))
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}
	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = true // required for MinIO/LocalStack
		}
	})
	return newS3Store(client, cfg), nil
}

func newS3Store(client *s3.Client, cfg S3StoreConfig) *S3Store {
	ttl := cfg.PresignTTL
	if ttl <= 0 {
		ttl = 15 * time.Minute
	}
	return &S3Store{
		client:    client,
		presigner: s3.NewPresignClient(client),
		bucket:    cfg.Bucket,
		prefix:    cfg.Prefix,
		ttl:       ttl,
	}
}

// Key returns the object key for a reference.
func (s *S3Store) Key(ref string) string { return s.prefix + ref }

// Put uploads the artifact; the reference is the file name, not the key, so
// changing the prefix never breaks stored references.
func (s *S3Store) Put(ctx context.Context, name, contentType string, data []byte) (string, error) {
	ref, err := cleanRef(name)
	if err != nil {
		return "", err
	}
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	_, err = s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:             aws.String(s.bucket),
		Key:                aws.String(s.Key(ref)),
		Body:               bytes.NewReader(data),
		ContentType:        aws.String(contentType),
		ContentDisposition: aws.String(fmt.Sprintf("attachment; filename=%q", ref)),
	})
	if err != nil {
		return "", fmt.Errorf("s3 put failed: %w", err)
	}
	return ref, nil
}

// URL presigns a GET for the object.
func (s *S3Store) URL(ctx context.Context, ref string) (string, error) {
	ref, err := cleanRef(ref)
	if err != nil {
		return "", err
	}
	req, err := s.presigner.PresignGetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.Key(ref)),
	}, s3.WithPresignExpires(s.ttl))
	if err != nil {
		return "", fmt.Errorf("s3 presign failed for %s: %w", ref, err)
	}
	return req.URL, nil
}
