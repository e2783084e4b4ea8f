package internal

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	awsCreds "github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"
	"github.com/lychee-technology/datamodel"
)

// s3API is the subset of *s3.Client used by the schema store.
type s3API interface {
	manager.UploadAPIClient
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	DeleteObject(ctx context.Context, params *s3.DeleteObjectInput, optFns ...func(*s3.Options)) (*s3.DeleteObjectOutput, error)
	HeadBucket(ctx context.Context, params *s3.HeadBucketInput, optFns ...func(*s3.Options)) (*s3.HeadBucketOutput, error)
	s3.ListObjectsV2APIClient
}

// S3SchemaStore keeps schema files as objects under an optional key prefix.
type S3SchemaStore struct {
	client   s3API
	uploader *manager.Uploader
	bucket   string
	prefix   string
}

var _ datamodel.SchemaStore = (*S3SchemaStore)(nil)

func NewS3SchemaStore(client s3API, bucket, prefix string) *S3SchemaStore {
	return &S3SchemaStore{
		client:   client,
		uploader: manager.NewUploader(client),
		bucket:   bucket,
		prefix:   strings.Trim(prefix, "/"),
	}
}

// NewS3Client builds a client from the default AWS chain, overridden by cfg where set.
func NewS3Client(ctx context.Context, cfg datamodel.S3Config) (*s3.Client, error) {
	opts := []func(*config.LoadOptions) error{}
	if cfg.Region != "" {
		opts = append(opts, config.WithRegion(cfg.Region))
	}
	if cfg.AccessKey != "" {
		opts = append(opts, config.WithCredentialsProvider(
			awsCreds.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, ""),
		))
	}
	awsCfg, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	return s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
		o.UsePathStyle = cfg.UsePathStyle
	}), nil
}

func (s *S3SchemaStore) key(path string) string {
	path = strings.TrimPrefix(path, "/")
	if s.prefix == "" {
		return path
	}
	return s.prefix + "/" + path
}

func (s *S3SchemaStore) Read(ctx context.Context, path string) (string, error) {
	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.key(path)),
	})
	if err != nil {
		if isS3NotFound(err) {
			return "", datamodel.NewSchemaNotFoundError(path, err)
		}
		return "", &datamodel.SchemaError{Type: datamodel.SchemaErrorTypeProviderError, Path: path, Message: "get object failed", Cause: err}
	}
	defer out.Body.Close()

	data, err := io.ReadAll(out.Body)
	if err != nil {
		return "", &datamodel.SchemaError{Type: datamodel.SchemaErrorTypeProviderError, Path: path, Message: "read object body failed", Cause: err}
	}
	return string(data), nil
}

func (s *S3SchemaStore) Write(ctx context.Context, path string, content string) error {
	_, err := s.uploader.Upload(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(s.key(path)),
		Body:        strings.NewReader(content),
		ContentType: aws.String(contentTypeFor(path)),
	})
	if err != nil {
		return &datamodel.SchemaError{Type: datamodel.SchemaErrorTypeProviderError, Path: path, Message: "upload object failed", Cause: err}
	}
	return nil
}

// Delete removes the object; S3 reports success for missing keys.
func (s *S3SchemaStore) Delete(ctx context.Context, path string) error {
	_, err := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.key(path)),
	})
	if err != nil && !isS3NotFound(err) {
		return &datamodel.SchemaError{Type: datamodel.SchemaErrorTypeProviderError, Path: path, Message: "delete object failed", Cause: err}
	}
	return nil
}

func (s *S3SchemaStore) List(ctx context.Context, prefix string) ([]string, error) {
	keyPrefix := s.key(prefix)
	paginator := s3.NewListObjectsV2Paginator(s.client, &s3.ListObjectsV2Input{
		Bucket: aws.String(s.bucket),
		Prefix: aws.String(keyPrefix),
	})

	var out []string
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, &datamodel.SchemaError{Type: datamodel.SchemaErrorTypeProviderError, Path: prefix, Message: "list objects failed", Cause: err}
		}
		for _, obj := range page.Contents {
			key := aws.ToString(obj.Key)
			if s.prefix != "" {
				key = strings.TrimPrefix(key, s.prefix+"/")
			}
			out = append(out, key)
		}
	}
	return out, nil
}

func isS3NotFound(err error) bool {
	var noSuchKey *types.NoSuchKey
	if errors.As(err, &noSuchKey) {
		return true
	}
	var notFound *types.NotFound
	if errors.As(err, &notFound) {
		return true
	}
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.ErrorCode() {
		case "NoSuchKey", "NotFound":
			return true
		}
	}
	return false
}

func contentTypeFor(path string) string {
	if strings.HasSuffix(path, XsdSuffix) {
		return "application/xml"
	}
	return "application/json"
}
