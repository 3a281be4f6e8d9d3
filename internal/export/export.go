// Package export writes failed-row CSV files to a local directory or S3.
package export

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/emla-tracker/internal/result"
)

const contentTypeCSV = "text/csv"

// Sink stores a named export and returns where it went.
type Sink interface {
	Put(ctx context.Context, name string, data []byte) (string, error)
}

// FileSink writes exports into a directory.
type FileSink struct {
	Dir string
}

func (s FileSink) Put(_ context.Context, name string, data []byte) (string, error) {
	dir := s.Dir
	if dir == "" {
		dir = "."
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", eris.Wrapf(err, "export: create dir %s", dir)
	}
	path := filepath.Join(dir, filepath.Base(name))
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", eris.Wrapf(err, "export: write %s", path)
	}
	return path, nil
}

// putter is the subset of *s3.Client used by S3Sink.
type putter interface {
	PutObject(ctx context.Context, in *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// S3Config locates exports in a bucket.
type S3Config struct {
	Bucket string `yaml:"bucket" mapstructure:"bucket"`
	Prefix string `yaml:"prefix" mapstructure:"prefix"`
	Region string `yaml:"region" mapstructure:"region"`
}

// S3Sink uploads exports as objects under Prefix.
type S3Sink struct {
	client putter
	bucket string
	prefix string
}

// NewS3Sink builds an S3Sink from the default AWS credential chain.
func NewS3Sink(ctx context.Context, cfg S3Config) (*S3Sink, error) {
	if cfg.Bucket == "" {
		return nil, eris.New("export: s3 bucket is required")
	}
	var opts []func(*awsconfig.LoadOptions) error
	if cfg.Region != "" {
		opts = append(opts, awsconfig.WithRegion(cfg.Region))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, eris.Wrap(err, "export: load aws config")
	}
	return newS3Sink(s3.NewFromConfig(awsCfg), cfg), nil
}

func newS3Sink(client putter, cfg S3Config) *S3Sink {
	prefix := strings.Trim(cfg.Prefix, "/")
	if prefix != "" {
		prefix += "/"
	}
	return &S3Sink{client: client, bucket: cfg.Bucket, prefix: prefix}
}

func (s *S3Sink) Put(ctx context.Context, name string, data []byte) (string, error) {
	key := s.prefix + name
	_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(data),
		ContentType: aws.String(contentTypeCSV),
	})
	if err != nil {
		return "", eris.Wrapf(err, "export: put s3://%s/%s", s.bucket, key)
	}
	return fmt.Sprintf("s3://%s/%s", s.bucket, key), nil
}

// FailedRowsName names the export of an upload finished at t.
func FailedRowsName(t time.Time) string {
	return "failed-rows-" + t.UTC().Format("20060102-150405") + ".csv"
}

// FailedRows stores res.FailedRowsCSV through sink. It returns "" without
// writing when the upload had no failed rows.
func FailedRows(ctx context.Context, sink Sink, res *result.UploadResult, t time.Time) (string, error) {
	if res == nil || res.FailedRowsCSV == "" {
		return "", nil
	}
	loc, err := sink.Put(ctx, FailedRowsName(t), []byte(res.FailedRowsCSV))
	if err != nil {
		return "", err
	}
	zap.L().Info("export: failed rows written",
		zap.String("location", loc),
		zap.Int("rows", len(res.FailedRows)),
	)
	return loc, nil
}
