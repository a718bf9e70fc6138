package objstore

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	awscreds "github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"

	"github.com/rescale/rescale-foldernav/internal/config"
	"github.com/rescale/rescale-foldernav/internal/constants"
	"github.com/rescale/rescale-foldernav/internal/http"
)

// S3Bucket is a Bucket backed by an S3 (or S3 compatible) bucket.
type S3Bucket struct {
	client *s3.Client
	bucket string
}

// NewS3Bucket builds an S3 client from the [s3] section of cfg. The HTTP
// client is shared with the rest of the process so proxy settings apply.
// Without static keys the default AWS credential chain is used.
func NewS3Bucket(ctx context.Context, cfg *config.Config) (*S3Bucket, error) {
	if cfg.S3.Bucket == "" {
		return nil, config.ErrMissingBucket
	}

	httpClient, err := http.CreateOptimizedClient(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create HTTP client: %w", err)
	}

	loadOpts := []func(*awsconfig.LoadOptions) error{
		awsconfig.WithRegion(cfg.S3.Region),
		awsconfig.WithHTTPClient(httpClient),
	}
	if cfg.S3.AccessKey != "" && cfg.S3.SecretKey != "" {
		loadOpts = append(loadOpts, awsconfig.WithCredentialsProvider(
			awscreds.NewStaticCredentialsProvider(cfg.S3.AccessKey, cfg.S3.SecretKey, ""),
		))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		o.UsePathStyle = cfg.S3.UsePathStyle
		if cfg.S3.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.S3.Endpoint)
		}
	})
	return &S3Bucket{client: client, bucket: cfg.S3.Bucket}, nil
}

// isS3NotFound matches both the typed errors and the bare 404 code that
// HeadObject returns (it has no body to carry a typed error).
func isS3NotFound(err error) bool {
	var nsk *types.NoSuchKey
	var nf *types.NotFound
	if errors.As(err, &nsk) || errors.As(err, &nf) {
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

func s3Error(op, key string, err error) error {
	if isS3NotFound(err) {
		return fmt.Errorf("%s %s: %w", op, key, ErrObjectNotFound)
	}
	return fmt.Errorf("%s %s: %w", op, key, err)
}

// List pages through ListObjectsV2, stopping at MaxPaginationPages.
func (b *S3Bucket) List(ctx context.Context, prefix, delim string) (Listing, error) {
	input := &s3.ListObjectsV2Input{
		Bucket: aws.String(b.bucket),
		Prefix: aws.String(prefix),
	}
	if delim != "" {
		input.Delimiter = aws.String(delim)
	}

	var l Listing
	paginator := s3.NewListObjectsV2Paginator(b.client, input)
	for pages := 0; paginator.HasMorePages(); pages++ {
		if pages >= constants.MaxPaginationPages {
			return l, fmt.Errorf("list %s: more than %d pages", prefix, constants.MaxPaginationPages)
		}
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return Listing{}, s3Error("list", prefix, err)
		}
		for _, cp := range page.CommonPrefixes {
			l.Prefixes = append(l.Prefixes, aws.ToString(cp.Prefix))
		}
		for _, obj := range page.Contents {
			l.Objects = append(l.Objects, Object{
				Key:          aws.ToString(obj.Key),
				Size:         aws.ToInt64(obj.Size),
				LastModified: aws.ToTime(obj.LastModified),
			})
		}
	}
	return l, nil
}

// Get downloads an object into memory.
func (b *S3Bucket) Get(ctx context.Context, key string) ([]byte, Object, error) {
	out, err := b.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(b.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return nil, Object{}, s3Error("get", key, err)
	}
	defer out.Body.Close()

	body, err := io.ReadAll(out.Body)
	if err != nil {
		return nil, Object{}, fmt.Errorf("read %s: %w", key, err)
	}
	return body, Object{
		Key:          key,
		Size:         aws.ToInt64(out.ContentLength),
		LastModified: aws.ToTime(out.LastModified),
		Metadata:     lowerKeys(out.Metadata),
	}, nil
}

// Head returns object properties without the body.
func (b *S3Bucket) Head(ctx context.Context, key string) (Object, error) {
	out, err := b.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(b.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return Object{}, s3Error("head", key, err)
	}
	return Object{
		Key:          key,
		Size:         aws.ToInt64(out.ContentLength),
		LastModified: aws.ToTime(out.LastModified),
		Metadata:     lowerKeys(out.Metadata),
	}, nil
}

// Put uploads body in a single request.
func (b *S3Bucket) Put(ctx context.Context, key string, body []byte, metadata map[string]string) error {
	_, err := b.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(b.bucket),
		Key:           aws.String(key),
		Body:          bytes.NewReader(body),
		ContentLength: aws.Int64(int64(len(body))),
		Metadata:      metadata,
	})
	if err != nil {
		return s3Error("put", key, err)
	}
	return nil
}

// Copy is a server-side copy; metadata is carried over.
func (b *S3Bucket) Copy(ctx context.Context, src, dst string) error {
	_, err := b.client.CopyObject(ctx, &s3.CopyObjectInput{
		Bucket:     aws.String(b.bucket),
		Key:        aws.String(dst),
		CopySource: aws.String(copySource(b.bucket, src)),
	})
	if err != nil {
		return s3Error("copy", src, err)
	}
	return nil
}

// Delete removes key. S3 reports success for missing keys.
func (b *S3Bucket) Delete(ctx context.Context, key string) error {
	_, err := b.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(b.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return s3Error("delete", key, err)
	}
	return nil
}

// copySource URL-encodes "bucket/key" one segment at a time.
func copySource(bucket, key string) string {
	segments := strings.Split(key, "/")
	for i, s := range segments {
		segments[i] = url.PathEscape(s)
	}
	return bucket + "/" + strings.Join(segments, "/")
}

func lowerKeys(m map[string]string) map[string]string {
	out := make(map[string]string, len(m))
	for k, v := range m {
		out[strings.ToLower(k)] = v
	}
	return out
}
