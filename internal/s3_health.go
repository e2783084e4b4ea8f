package internal

import (
	"context"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

type s3BucketHeader interface {
	HeadBucket(ctx context.Context, params *s3.HeadBucketInput, optFns ...func(*s3.Options)) (*s3.HeadBucketOutput, error)
}

// S3HealthCheck checks the bucket exists and the configured credentials may access it.
// timeout may be 0 to use a sensible default (5s).
func S3HealthCheck(ctx context.Context, client s3BucketHeader, bucket string, timeout time.Duration) error {
	if bucket == "" {
		return fmt.Errorf("s3 bucket not configured")
	}
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	if _, err := client.HeadBucket(ctx, &s3.HeadBucketInput{Bucket: aws.String(bucket)}); err != nil {
		if isS3NotFound(err) {
			return fmt.Errorf("s3 bucket %s does not exist: %w", bucket, err)
		}
		return fmt.Errorf("s3 bucket %s not reachable: %w", bucket, err)
	}
	return nil
}
