package artifact

import (
	"context"
	"fmt"
	"io"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/s3"
	"github.com/aws/aws-sdk-go/service/s3/s3iface"
)

// S3Fetcher downloads s3://bucket/key artifacts from AWS S3.
type S3Fetcher struct {
	client s3iface.S3API
}

func NewS3Fetcher(region string) (*S3Fetcher, error) {
	sess, err := session.NewSession(&aws.Config{
		Region: aws.String(region),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create aws session: %w", err)
	}
	return &S3Fetcher{client: s3.New(sess)}, nil
}

func NewS3FetcherWithClient(client s3iface.S3API) *S3Fetcher {
	return &S3Fetcher{client: client}
}

func (f *S3Fetcher) Fetch(ctx context.Context, uri string) ([]byte, error) {
	bucket, key, err := SplitBucketKey(uri)
	if err != nil {
		return nil, err
	}

	result, err := f.client.GetObjectWithContext(ctx, &s3.GetObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to download artifact %s: %w", uri, err)
	}
	defer result.Body.Close()

	data, err := io.ReadAll(result.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read artifact %s: %w", uri, err)
	}
	return data, nil
}
