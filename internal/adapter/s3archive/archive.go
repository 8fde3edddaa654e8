package s3archive

import (
	"bytes"
	"context"
	"fmt"
	"path"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// Options locate the archive bucket. Empty keys fall back to the default AWS credential chain.
type Options struct {
	Bucket    string
	Region    string
	Prefix    string
	AccessKey string
	SecretKey string
	Endpoint  string
}

// Archive stores ledger exports as JSON objects in S3
type Archive struct {
	client *s3.Client
	bucket string
	prefix string
}

// New builds an S3 client from opts
func New(ctx context.Context, opts Options) (*Archive, error) {
	if opts.Bucket == "" {
		return nil, fmt.Errorf("S3 bucket is required")
	}
	if opts.Region == "" {
		opts.Region = "us-east-1"
	}

	loadOpts := []func(*config.LoadOptions) error{config.WithRegion(opts.Region)}
	if opts.AccessKey != "" && opts.SecretKey != "" {
		loadOpts = append(loadOpts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(opts.AccessKey, opts.SecretKey, ""),
		))
	}

	cfg, err := config.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	client := s3.NewFromConfig(cfg, func(o *s3.Options) {
		if opts.Endpoint != "" {
			o.BaseEndpoint = aws.String(opts.Endpoint)
			o.UsePathStyle = true
		}
	})

	return &Archive{client: client, bucket: opts.Bucket, prefix: opts.Prefix}, nil
}

// ObjectKey names the object for an export taken at t
func (a *Archive) ObjectKey(t time.Time) string {
	return path.Join(a.prefix, "ledger-"+t.UTC().Format("20060102T150405Z")+".json")
}

// Put uploads one export and returns its object key
func (a *Archive) Put(ctx context.Context, exportedAt time.Time, data []byte) (string, error) {
	key := a.ObjectKey(exportedAt)
	_, err := a.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(a.bucket),
		Key:           aws.String(key),
		Body:          bytes.NewReader(data),
		ContentLength: aws.Int64(int64(len(data))),
		ContentType:   aws.String("application/json"),
	})
	if err != nil {
		return "", fmt.Errorf("S3 upload failed: %w", err)
	}
	return key, nil
}
