package report

import (
	"bytes"
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/Iron-Ham/monosplit/internal/errors"
)

// ObjectName is the object name of a report under its run prefix.
const ObjectName = "monorepo_analysis.json"

// S3Config configures an S3Store.
type S3Config struct {
	Endpoint  string
	Region    string
	AccessKey string
	SecretKey string
	Bucket    string
	UseSSL    bool
	Prefix    string
}

// S3Store uploads reports to <prefix><run id>/monorepo_analysis.json.
type S3Store struct {
	client   *minio.Client
	bucket   string
	region   string
	prefix   string
	initOnce sync.Once
	initErr  error
}

// NewS3Store validates cfg and creates the client. No request is made
// until the first Put.
func NewS3Store(cfg S3Config) (*S3Store, error) {
	endpoint := strings.TrimSpace(cfg.Endpoint)
	endpoint = strings.TrimPrefix(strings.TrimPrefix(endpoint, "https://"), "http://")
	if endpoint == "" {
		return nil, errors.NewValidationError("s3 endpoint is required").WithField("report.s3.endpoint")
	}
	access := strings.TrimSpace(cfg.AccessKey)
	secret := strings.TrimSpace(cfg.SecretKey)
	if access == "" || secret == "" {
		return nil, errors.NewValidationError("s3 access key and secret key are required").WithField("report.s3.access_key")
	}
	bucket := strings.TrimSpace(cfg.Bucket)
	if bucket == "" {
		return nil, errors.NewValidationError("s3 bucket is required").WithField("report.s3.bucket")
	}
	region := strings.TrimSpace(cfg.Region)
	if region == "" {
		region = "us-east-1"
	}

	client, err := minio.New(endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(access, secret, ""),
		Secure: cfg.UseSSL,
		Region: region,
	})
	if err != nil {
		return nil, errors.Wrap(err, "init s3 client")
	}

	return &S3Store{
		client: client,
		bucket: bucket,
		region: region,
		prefix: cfg.Prefix,
	}, nil
}

func (s *S3Store) ensureBucket(ctx context.Context) error {
	s.initOnce.Do(func() {
		exists, err := s.client.BucketExists(ctx, s.bucket)
		if err != nil {
			s.initErr = err
			return
		}
		if exists {
			return
		}
		s.initErr = s.client.MakeBucket(ctx, s.bucket, minio.MakeBucketOptions{Region: s.region})
	})
	return s.initErr
}

// Put uploads data and returns its s3:// location.
func (s *S3Store) Put(ctx context.Context, runID string, data []byte) (string, error) {
	runID = strings.TrimSpace(runID)
	if runID == "" {
		return "", errors.NewValidationError("run id is required").WithField("run_id")
	}
	if err := s.ensureBucket(ctx); err != nil {
		return "", errors.Wrap(err, "ensure bucket")
	}

	key := s.ObjectKey(runID)
	_, err := s.client.PutObject(ctx, s.bucket, key, bytes.NewReader(data), int64(len(data)), minio.PutObjectOptions{
		ContentType: "application/json",
	})
	if err != nil {
		return "", errors.Wrapf(err, "upload report to %s", key)
	}
	return fmt.Sprintf("s3://%s/%s", s.bucket, key), nil
}

// ObjectKey returns the key a run's report is stored under.
func (s *S3Store) ObjectKey(runID string) string {
	prefix := strings.TrimLeft(s.prefix, "/")
	if prefix != "" && !strings.HasSuffix(prefix, "/") {
		prefix += "/"
	}
	return prefix + strings.TrimSpace(runID) + "/" + ObjectName
}
