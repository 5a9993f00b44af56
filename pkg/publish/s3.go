// Package publish mirrors written artifacts to S3-compatible object storage.
package publish

import (
	"context"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
)

var (
	uploadsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "citydata_mirror_uploads_total",
		Help: "Total artifact uploads by outcome",
	}, []string{"outcome"})

	uploadBytesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "citydata_mirror_upload_bytes_total",
		Help: "Total bytes uploaded to object storage",
	})
)

// S3Config holds the object storage target.
type S3Config struct {
	Endpoint  string
	Region    string
	Bucket    string
	Prefix    string
	AccessKey string
	SecretKey string
	UseSSL    bool
}

// Enabled reports whether a bucket is configured.
func (c S3Config) Enabled() bool {
	return c.Bucket != ""
}

// objectPutter is the subset of the S3 client used for uploads.
type objectPutter interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// S3Mirror uploads artifacts under <prefix>/<file name>.
type S3Mirror struct {
	client objectPutter
	bucket string
	prefix string
	logger zerolog.Logger
}

// NewS3Mirror creates a mirror. Without an endpoint the default AWS
// resolution is used; with one, path-style addressing is enabled for
// S3-compatible services.
func NewS3Mirror(ctx context.Context, cfg S3Config, logger zerolog.Logger) (*S3Mirror, error) {
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("bucket is required")
	}

	region := cfg.Region
	if region == "" {
		region = "us-east-1"
	}

	opts := []func(*config.LoadOptions) error{config.WithRegion(region)}
	if cfg.AccessKey != "" {
		opts = append(opts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, ""),
		))
	}

	awsCfg, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(endpointURL(cfg.Endpoint, cfg.UseSSL))
			o.UsePathStyle = true
		}
	})

	return newS3Mirror(client, cfg.Bucket, cfg.Prefix, logger), nil
}

func newS3Mirror(client objectPutter, bucket, prefix string, logger zerolog.Logger) *S3Mirror {
	return &S3Mirror{
		client: client,
		bucket: bucket,
		prefix: strings.Trim(prefix, "/"),
		logger: logger,
	}
}

// Key returns the object key for a local artifact path.
func (m *S3Mirror) Key(localPath string) string {
	name := filepath.Base(localPath)
	if m.prefix == "" {
		return name
	}
	return path.Join(m.prefix, name)
}

// Mirror uploads the file at localPath.
func (m *S3Mirror) Mirror(ctx context.Context, localPath string) error {
	f, err := os.Open(localPath)
	if err != nil {
		uploadsTotal.WithLabelValues("error").Inc()
		return fmt.Errorf("open artifact: %w", err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		uploadsTotal.WithLabelValues("error").Inc()
		return fmt.Errorf("stat artifact: %w", err)
	}

	key := m.Key(localPath)
	_, err = m.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(m.bucket),
		Key:           aws.String(key),
		Body:          f,
		ContentLength: aws.Int64(info.Size()),
		ContentType:   aws.String("text/csv"),
	})
	if err != nil {
		uploadsTotal.WithLabelValues("error").Inc()
		return fmt.Errorf("failed to upload object: %w", err)
	}

	uploadsTotal.WithLabelValues("ok").Inc()
	uploadBytesTotal.Add(float64(info.Size()))

	m.logger.Info().
		Str("bucket", m.bucket).
		Str("key", key).
		Int64("bytes", info.Size()).
		Msg("Mirrored artifact")

	return nil
}

// endpointURL normalizes a host or URL into a base endpoint.
func endpointURL(endpoint string, useSSL bool) string {
	endpoint = strings.TrimPrefix(endpoint, "https://")
	endpoint = strings.TrimPrefix(endpoint, "http://")
	if idx := strings.Index(endpoint, "/"); idx != -1 {
		endpoint = endpoint[:idx]
	}

	scheme := "http"
	if useSSL {
		scheme = "https"
	}
	return scheme + "://" + endpoint
}
