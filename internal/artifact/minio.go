package artifact

import (
	"context"
	"fmt"
	"io"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// MinIOFetcher downloads minio://bucket/key artifacts from an
// S3-compatible endpoint such as an on-prem MinIO deployment.
type MinIOFetcher struct {
	client *minio.Client
}

type MinIOOptions struct {
	Endpoint        string
	AccessKeyID     string
	SecretAccessKey string
	UseSSL          bool
}

func NewMinIOFetcher(opts MinIOOptions) (*MinIOFetcher, error) {
	client, err := minio.New(opts.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(opts.AccessKeyID, opts.SecretAccessKey, ""),
		Secure: opts.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create minio client: %w", err)
	}
	return &MinIOFetcher{client: client}, nil
}

func (f *MinIOFetcher) Fetch(ctx context.Context, uri string) ([]byte, error) {
	bucket, key, err := SplitBucketKey(uri)
	if err != nil {
		return nil, err
	}

	obj, err := f.client.GetObject(ctx, bucket, key, minio.GetObjectOptions{})
	if err != nil {
		return nil, fmt.Errorf("failed to open artifact %s: %w", uri, err)
	}
	defer obj.Close()

	data, err := io.ReadAll(obj)
	if err != nil {
		return nil, fmt.Errorf("failed to read artifact %s: %w", uri, err)
	}
	return data, nil
}
