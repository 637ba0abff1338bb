package backup

import (
	"context"
	"fmt"
	"net/url"
	"path"
	"strings"
	"sync"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

const (
	defaultS3Endpoint   = "s3.amazonaws.com"
	defaultS3Region     = "us-east-1"
	snapshotContentType = "application/octet-stream"
)

// S3Config holds S3 uploader parameters for snapshot uploads.
type S3Config struct {
	BucketURL    string
	Endpoint     string
	Region       string
	AccessKey    string
	SecretKey    string
	SessionToken string
	UseSSL       bool
	CreateBucket bool
}

// S3Uploader uploads snapshot files to any S3-compatible store (AWS, MinIO)
// through minio-go.
type S3Uploader struct {
	client    *minio.Client
	bucket    string
	keyPrefix string
	region    string
	create    bool

	bucketMu    sync.Mutex
	bucketReady bool
}

// NewS3Uploader constructs an uploader from an S3 bucket URL and static
// credentials. BucketURL format: s3://bucket/prefix (prefix optional).
// No request is made until the first upload.
func NewS3Uploader(cfg S3Config) (*S3Uploader, error) {
	bucket, prefix, err := parseS3BucketURL(cfg.BucketURL)
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(cfg.AccessKey) == "" || strings.TrimSpace(cfg.SecretKey) == "" {
		return nil, fmt.Errorf("s3: access key and secret key are required")
	}
	region := strings.TrimSpace(cfg.Region)
	if region == "" {
		region = defaultS3Region
	}
	endpoint, secure := normalizeEndpoint(cfg.Endpoint, cfg.UseSSL)

	client, err := minio.New(endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, cfg.SessionToken),
		Secure: secure,
		Region: region,
	})
	if err != nil {
		return nil, fmt.Errorf("s3: client: %w", err)
	}

	return &S3Uploader{
		client:    client,
		bucket:    bucket,
		keyPrefix: prefix,
		region:    region,
		create:    cfg.CreateBucket,
	}, nil
}

// ObjectKey returns the key a local file is uploaded under.
func (u *S3Uploader) ObjectKey(localPath string) string {
	key := path.Base(localPath)
	if u.keyPrefix != "" {
		key = path.Join(u.keyPrefix, key)
	}
	return key
}

// UploadFile uploads localPath to the configured bucket and key prefix.
func (u *S3Uploader) UploadFile(ctx context.Context, localPath string) error {
	if err := u.ensureBucket(ctx); err != nil {
		return err
	}
	_, err := u.client.FPutObject(ctx, u.bucket, u.ObjectKey(localPath), localPath, minio.PutObjectOptions{
		ContentType: snapshotContentType,
	})
	if err != nil {
		return fmt.Errorf("s3: put %s: %w", u.ObjectKey(localPath), err)
	}
	return nil
}

// ensureBucket creates the bucket on first use when CreateBucket is set.
func (u *S3Uploader) ensureBucket(ctx context.Context) error {
	if !u.create {
		return nil
	}
	u.bucketMu.Lock()
	defer u.bucketMu.Unlock()
	if u.bucketReady {
		return nil
	}

	exists, err := u.client.BucketExists(ctx, u.bucket)
	if err != nil {
		return fmt.Errorf("s3: bucket exists %s: %w", u.bucket, err)
	}
	if !exists {
		if err := u.client.MakeBucket(ctx, u.bucket, minio.MakeBucketOptions{Region: u.region}); err != nil {
			return fmt.Errorf("s3: make bucket %s: %w", u.bucket, err)
		}
	}
	u.bucketReady = true
	return nil
}

// normalizeEndpoint strips a scheme from endpoint, letting an explicit
// http:// or https:// override useSSL.
func normalizeEndpoint(endpoint string, useSSL bool) (string, bool) {
	endpoint = strings.TrimSpace(endpoint)
	switch {
	case endpoint == "":
		return defaultS3Endpoint, true
	case strings.HasPrefix(endpoint, "https://"):
		return strings.TrimSuffix(strings.TrimPrefix(endpoint, "https://"), "/"), true
	case strings.HasPrefix(endpoint, "http://"):
		return strings.TrimSuffix(strings.TrimPrefix(endpoint, "http://"), "/"), false
	}
	return endpoint, useSSL
}

func parseS3BucketURL(raw string) (bucket string, prefix string, err error) {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return "", "", fmt.Errorf("s3: parse bucket-url: %w", err)
	}
	if u.Scheme != "s3" {
		return "", "", fmt.Errorf("s3: bucket-url must use s3:// scheme")
	}
	if strings.TrimSpace(u.Host) == "" {
		return "", "", fmt.Errorf("s3: bucket-url missing bucket name")
	}

	prefix = strings.Trim(strings.TrimSpace(u.Path), "/")
	return u.Host, prefix, nil
}
