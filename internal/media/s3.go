package media

import (
	"bytes"
	"context"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// S3Config points at an S3-compatible bucket (MinIO in development).
type S3Config struct {
	Endpoint  string // host:port, scheme optional
	AccessKey string
	SecretKey string
	UseSSL    bool
	Bucket    string
	// PublicURL is the base that objects are served from. Empty means the
	// endpoint itself in path-style: <endpoint>/<bucket>/<key>.
	PublicURL string
}

// S3 uploads to an S3-compatible bucket.
type S3 struct {
	cfg    S3Config
	client *minio.Client
	now    func() time.Time

	bucketOnce sync.Once
	bucketErr  error
}

// NewS3 creates the client. No network traffic happens until the first
// upload.
func NewS3(cfg S3Config) (*S3, error) {
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("s3: bucket is required")
	}
	endpoint := cfg.Endpoint
	if strings.HasPrefix(endpoint, "https://") {
		cfg.UseSSL = true
	}
	endpoint = strings.TrimPrefix(strings.TrimPrefix(endpoint, "http://"), "https://")
	cl, err := minio.New(endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("s3 client: %w", err)
	}
	cfg.Endpoint = endpoint
	return &S3{cfg: cfg, client: cl, now: time.Now}, nil
}

// EnsureBucket creates the bucket when missing.
func (s *S3) EnsureBucket(ctx context.Context) error {
	exists, err := s.client.BucketExists(ctx, s.cfg.Bucket)
	if err != nil {
		return fmt.Errorf("bucket exists: %w", err)
	}
	if !exists {
		if err := s.client.MakeBucket(ctx, s.cfg.Bucket, minio.MakeBucketOptions{}); err != nil {
			return fmt.Errorf("make bucket: %w", err)
		}
	}
	return nil
}

func (s *S3) Upload(ctx context.Context, name string, data []byte) (string, error) {
	ct, err := check(name, data)
	if err != nil {
		return "", err
	}
	s.bucketOnce.Do(func() { s.bucketErr = s.EnsureBucket(ctx) })
	if s.bucketErr != nil {
		return "", s.bucketErr
	}

	key := ObjectKey(name, s.now())
	_, err = s.client.PutObject(ctx, s.cfg.Bucket, key, bytes.NewReader(data), int64(len(data)),
		minio.PutObjectOptions{ContentType: ct})
	if err != nil {
		return "", fmt.Errorf("put object %s: %w", key, err)
	}
	return s.ObjectURL(key), nil
}

// ObjectURL is the public URL of key.
func (s *S3) ObjectURL(key string) string {
	if s.cfg.PublicURL != "" {
		return strings.TrimRight(s.cfg.PublicURL, "/") + "/" + key
	}
	scheme := "http"
	if s.cfg.UseSSL {
		scheme = "https"
	}
	u := url.URL{Scheme: scheme, Host: s.cfg.Endpoint, Path: "/" + s.cfg.Bucket + "/" + key}
	return u.String()
}
