// Package storage serves runtime archives from S3-compatible object storage
// for s3://bucket/key download URLs.
package storage

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/url"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/runtimeboot/runtimeboot/pkg/errors"
)

// Options configures a Client.
type Options struct {
	Region string
	// Endpoint overrides the AWS endpoint, e.g. a MinIO or R2 mirror.
	Endpoint string
}

// Client reads runtime archives from S3 with anonymous credentials.
type Client struct {
	s3Client *s3.Client
	opts     Options
}

// NewClient creates a new S3 client for anonymous access.
func NewClient(ctx context.Context, opts Options) (*Client, error) {
	slog.Info("s3_client_init", "region", opts.Region, "endpoint", opts.Endpoint)

	cfg, err := config.LoadDefaultConfig(ctx,
		config.WithRegion(opts.Region),
		config.WithCredentialsProvider(aws.AnonymousCredentials{}),
	)
	if err != nil {
		slog.Error("aws_config_load_failed", "error", err)
		return nil, errors.Wrap(err, "failed to load AWS config")
	}

	s3Client := s3.NewFromConfig(cfg, func(o *s3.Options) {
		if opts.Endpoint != "" {
			o.BaseEndpoint = aws.String(opts.Endpoint)
			o.UsePathStyle = true
		}
	})

	return &Client{s3Client: s3Client, opts: opts}, nil
}

// Object is an open object body and its declared length (-1 when unknown).
type Object struct {
	Body          io.ReadCloser
	ContentLength int64
}

// ParseURL splits s3://bucket/key into bucket and key.
func ParseURL(u *url.URL) (bucket, key string, err error) {
	if u.Scheme != "s3" {
		return "", "", fmt.Errorf("not an s3 url: %s", u)
	}
	bucket = u.Host
	key = strings.TrimPrefix(u.Path, "/")
	if bucket == "" || key == "" {
		return "", "", fmt.Errorf("s3 url needs a bucket and a key: %s", u)
	}
	return bucket, key, nil
}

// Open starts streaming the object at bucket/key.
func (c *Client) Open(ctx context.Context, bucket, key string) (*Object, error) {
	slog.Info("s3_download_start", "bucket", bucket, "s3_key", key)

	result, err := c.s3Client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		slog.Error("s3_get_object_failed", "bucket", bucket, "s3_key", key, "error", err)
		return nil, errors.Wrap(err, "failed to get object from S3")
	}

	size := int64(-1)
	if result.ContentLength != nil {
		size = *result.ContentLength
	}
	return &Object{Body: result.Body, ContentLength: size}, nil
}

// Server returns the host:port the client talks to for bucket, used for the
// connectivity preflight.
func (c *Client) Server(bucket string) string {
	if c.opts.Endpoint != "" {
		if u, err := url.Parse(c.opts.Endpoint); err == nil && u.Host != "" {
			if u.Port() != "" {
				return u.Host
			}
			port := "443"
			if u.Scheme == "http" {
				port = "80"
			}
			return net.JoinHostPort(u.Hostname(), port)
		}
	}

	region := c.opts.Region
	if region == "" {
		region = "us-east-1"
	}
	return net.JoinHostPort(fmt.Sprintf("%s.s3.%s.amazonaws.com", bucket, region), "443")
}
