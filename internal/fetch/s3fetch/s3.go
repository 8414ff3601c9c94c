// Package s3fetch implements a fetcher over contract state blobs in AWS S3.
package s3fetch

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"

	"github.com/soroban-registry/statecache/internal/codec"
	"github.com/soroban-registry/statecache/internal/fetch"
)

// Compile-time checks.
var (
	_ fetch.Fetcher = (*Fetcher)(nil)
	_ fetch.Writer  = (*Fetcher)(nil)
)

// API is the subset of the S3 client the fetcher uses.
type API interface {
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// Fetcher reads and writes state blobs in one S3 bucket.
type Fetcher struct {
	client API
	bucket string
	prefix string
	codec  codec.Codec
}

// Option configures a Fetcher.
type Option func(*Fetcher) error

// New creates a new S3 fetcher using the default AWS configuration chain.
// The bucket must already exist.
func New(ctx context.Context, bucketName string, c codec.Codec, opts ...Option) (*Fetcher, error) {
	cfg, err := config.LoadDefaultConfig(ctx)
	if err != nil {
		return nil, fmt.Errorf("loading AWS config: %w", err)
	}

	f := &Fetcher{
		client: s3.NewFromConfig(cfg),
		bucket: bucketName,
		codec:  c,
	}

	for _, opt := range opts {
		if err := opt(f); err != nil {
			return nil, err
		}
	}

	return f, nil
}

// WithPrefix sets a key prefix for all operations.
func WithPrefix(prefix string) Option {
	return func(f *Fetcher) error {
		f.prefix = fetch.NormalizePrefix(prefix)
		return nil
	}
}

// WithRegion sets the AWS region.
func WithRegion(region string) Option {
	return func(f *Fetcher) error {
		cfg, err := config.LoadDefaultConfig(context.Background(), config.WithRegion(region))
		if err != nil {
			return fmt.Errorf("loading AWS config with region: %w", err)
		}
		f.client = s3.NewFromConfig(cfg)
		return nil
	}
}

// WithEndpoint sets a custom endpoint (for S3-compatible services like MinIO).
func WithEndpoint(endpoint string) Option {
	return func(f *Fetcher) error {
		cfg, err := config.LoadDefaultConfig(context.Background())
		if err != nil {
			return fmt.Errorf("loading AWS config for endpoint: %w", err)
		}
		f.client = s3.NewFromConfig(cfg, func(o *s3.Options) {
			o.BaseEndpoint = aws.String(endpoint)
			o.UsePathStyle = true
		})
		return nil
	}
}

// WithClient replaces the S3 client.
func WithClient(client API) Option {
	return func(f *Fetcher) error {
		if client == nil {
			return errors.New("s3fetch: nil client")
		}
		f.client = client
		return nil
	}
}

// Fetch reads and decompresses one state value.
func (f *Fetcher) Fetch(ctx context.Context, contractID, key string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	result, err := f.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(f.bucket),
		Key:    aws.String(f.objectKey(contractID, key)),
	})
	if err != nil {
		var nsk *types.NoSuchKey
		if errors.As(err, &nsk) {
			return nil, fetch.ErrNotFound
		}
		return nil, fmt.Errorf("reading state: %w", err)
	}
	defer result.Body.Close()

	compressed, err := io.ReadAll(result.Body)
	if err != nil {
		return nil, fmt.Errorf("reading state body: %w", err)
	}

	data, err := f.codec.Decode(compressed)
	if err != nil {
		return nil, fmt.Errorf("decompressing state: %w", err)
	}
	return data, nil
}

// Put compresses and uploads one state value.
func (f *Fetcher) Put(ctx context.Context, contractID, key string, value []byte) error {
	compressed, err := f.codec.Encode(value)
	if err != nil {
		return fmt.Errorf("compressing state: %w", err)
	}

	_, err = f.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(f.bucket),
		Key:           aws.String(f.objectKey(contractID, key)),
		Body:          bytes.NewReader(compressed),
		ContentLength: aws.Int64(int64(len(compressed))),
	})
	if err != nil {
		return fmt.Errorf("writing state: %w", err)
	}
	return nil
}

// Close releases resources.
func (f *Fetcher) Close() error {
	// S3 client doesn't need explicit closing.
	return nil
}

// objectKey returns the full object key for a state value.
func (f *Fetcher) objectKey(contractID, key string) string {
	return f.prefix + fetch.ObjectName(contractID, key, f.codec.Extension())
}
