package export

import (
	"bytes"
	"context"
	"fmt"
	"net/url"
	"path"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// ObjectStore uploads reports to an S3-compatible bucket.
type ObjectStore struct {
	client *minio.Client
	bucket string
}

type ObjectStoreConfig struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	UseSSL    bool
}

func NewObjectStore(ctx context.Context, cfg ObjectStoreConfig) (*ObjectStore, error) {
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("create object storage client: %w", err)
	}

	exists, err := client.BucketExists(ctx, cfg.Bucket)
	if err != nil {
		return nil, fmt.Errorf("check bucket %s: %w", cfg.Bucket, err)
	}
	if !exists {
		if err := client.MakeBucket(ctx, cfg.Bucket, minio.MakeBucketOptions{}); err != nil {
			return nil, fmt.Errorf("create bucket %s: %w", cfg.Bucket, err)
		}
	}
	return &ObjectStore{client: client, bucket: cfg.Bucket}, nil
}

// Put uploads result under reports/<projectID>/ and returns a presigned
// download URL valid for ttl.
func (o *ObjectStore) Put(ctx context.Context, projectID string, result *Result, ttl time.Duration) (Published, error) {
	key := path.Join("reports", sanitizeFilename(projectID), result.Filename)
	_, err := o.client.PutObject(ctx, o.bucket, key, bytes.NewReader(result.Data), int64(len(result.Data)), minio.PutObjectOptions{
		ContentType: result.MimeType,
	})
	if err != nil {
		return Published{}, fmt.Errorf("upload %s: %w", key, err)
	}

	params := url.Values{}
	params.Set("response-content-disposition", fmt.Sprintf("attachment; filename=%q", result.Filename))
	signed, err := o.client.PresignedGetObject(ctx, o.bucket, key, ttl, params)
	if err != nil {
		return Published{}, fmt.Errorf("presign %s: %w", key, err)
	}
	return Published{
		Bucket:    o.bucket,
		Key:       key,
		URL:       signed.String(),
		ExpiresAt: time.Now().Add(ttl).UTC(),
	}, nil
}

func (o *ObjectStore) Ping(ctx context.Context) error {
	if _, err := o.client.BucketExists(ctx, o.bucket); err != nil {
		return fmt.Errorf("object storage: %w", err)
	}
	return nil
}
