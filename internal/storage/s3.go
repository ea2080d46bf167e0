package storage

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/smithy-go"
	"github.com/google/uuid"
)

// S3Config contains minimal configuration for creating an S3 client.
// Region, Profile and credentials fall back to the standard AWS chain.
type S3Config struct {
	Bucket string
	// Prefix is prepended to every object key, e.g. "clipmix/".
	Prefix       string
	Region       string
	Profile      string
	UsePathStyle bool
}

// S3 delivers archives to an S3 (or S3-compatible) bucket.
type S3 struct {
	client  *s3.Client
	presign *s3.PresignClient
	bucket  string
	prefix  string
}

func NewS3(ctx context.Context, cfg S3Config) (*S3, error) {
	if cfg.Bucket == "" {
		return nil, errors.New("S3 bucket is required")
	}

	var loadOpts []func(*config.LoadOptions) error
	if cfg.Region != "" {
		loadOpts = append(loadOpts, config.WithRegion(cfg.Region))
	}
	if cfg.Profile != "" {
		loadOpts = append(loadOpts, config.WithSharedConfigProfile(cfg.Profile))
	}

	awsCfg, err := config.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("unable to load SDK config: %w", err)
	}

	c := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		o.UsePathStyle = cfg.UsePathStyle
	})
	return newS3FromClient(c, cfg.Bucket, cfg.Prefix), nil
}

func newS3FromClient(c *s3.Client, bucket, prefix string) *S3 {
	if prefix != "" && !strings.HasSuffix(prefix, "/") {
		prefix += "/"
	}
	return &S3{
		client:  c,
		presign: s3.NewPresignClient(c),
		bucket:  bucket,
		prefix:  prefix,
	}
}

func (s *S3) key(sessionID, batchID uuid.UUID, filename string) string {
	return s.prefix + ObjectKey(sessionID, batchID, filename)
}

// Put uploads a local file to key.
func (s *S3) Put(ctx context.Context, key, localPath, contentType string) error {
	f, err := os.Open(localPath)
	if err != nil {
		return fmt.Errorf("failed to open %s: %w", localPath, err)
	}
	defer f.Close()

	in := &s3.PutObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
		Body:   f,
	}
	if contentType != "" {
		in.ContentType = aws.String(contentType)
	}

	if _, err := s.client.PutObject(ctx, in); err != nil {
		var apiErr smithy.APIError
		if errors.As(err, &apiErr) {
			return fmt.Errorf("failed to upload object to S3 (%s): %w", apiErr.ErrorCode(), err)
		}
		return fmt.Errorf("failed to upload object to S3: %w", err)
	}
	return nil
}

// PresignGet returns a time-limited GET URL for key.
func (s *S3) PresignGet(ctx context.Context, key string) (string, error) {
	req, err := s.presign.PresignGetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	}, s3.WithPresignExpires(SignedURLTTL))
	if err != nil {
		return "", fmt.Errorf("failed to presign %s: %w", key, err)
	}
	return req.URL, nil
}

// Deliver uploads the archive and returns a presigned download URL.
func (s *S3) Deliver(ctx context.Context, sessionID, batchID uuid.UUID, localPath string) (string, error) {
	key := s.key(sessionID, batchID, filepath.Base(localPath))
	if err := s.Put(ctx, key, localPath, ContentTypeZip); err != nil {
		return "", err
	}
	log.Printf("[Storage] Uploaded %s to s3://%s/%s", filepath.Base(localPath), s.bucket, key)
	return s.PresignGet(ctx, key)
}
