package storage

import (
	"bytes"
	"context"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// S3Config holds settings for S3-compatible snapshot storage.
type S3Config struct {
	Bucket          string
	Region          string
	Endpoint        string // optional: DO Spaces, R2, etc.
	AccessKeyID     string
	SecretAccessKey string
}

// S3Archiver keeps raw fetch payloads so a bad normalization can be
// replayed without re-hitting the upstream portal.
type S3Archiver struct {
	client *s3.Client
	bucket string
}

func NewS3Archiver(ctx context.Context, cfg S3Config) (*S3Archiver, error) {
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx,
		awsconfig.WithRegion(cfg.Region),
		awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	var client *s3.Client
	if cfg.Endpoint != "" {
		client = s3.NewFromConfig(awsCfg, func(o *s3.Options) {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = true
		})
	} else {
		client = s3.NewFromConfig(awsCfg)
	}

	return &S3Archiver{client: client, bucket: cfg.Bucket}, nil
}

// ArchiveSnapshot stores one raw payload under raw/<dataset>/<timestamp>.json.
func (a *S3Archiver) ArchiveSnapshot(ctx context.Context, dataset string, payload []byte) (string, error) {
	key := fmt.Sprintf("raw/%s/%s.json", dataset, time.Now().UTC().Format("20060102T150405Z"))

	_, err := a.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(a.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(payload),
		ContentType: aws.String("application/json"),
	})
	if err != nil {
		return "", fmt.Errorf("put object: %w", err)
	}
	return key, nil
}
