package event

import (
	"bytes"
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// s3API is the slice of the S3 client the uploader needs.
type s3API interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// s3Uploader writes each batch as one object under
// [prefix/]kind/YYYY-MM-DD/<id>.json. Credentials come from the ambient SDK
// chain (env, shared config, instance role).
type s3Uploader struct {
	client s3API
	bucket string
	prefix string
}

// NewS3Sink creates a batching sink backed by an S3 bucket.
func NewS3Sink(ctx context.Context, bucket, prefix string, opts Options) (Sink, error) {
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	up := &s3Uploader{
		client: s3.NewFromConfig(awsCfg),
		bucket: bucket,
		prefix: strings.Trim(prefix, "/"),
	}
	return newChannelSink(up, opts), nil
}

func (u *s3Uploader) Upload(ctx context.Context, kind string, payload []byte) error {
	key := u.key(kind, time.Now().UTC())

	_, err := u.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(u.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(payload),
		ContentType: aws.String("application/x-ndjson"),
	})
	if err != nil {
		return fmt.Errorf("s3 put %s: %w", key, err)
	}
	return nil
}

func (u *s3Uploader) key(kind string, now time.Time) string {
	key := fmt.Sprintf("%s/%s/%s.json", kind, now.Format("2006-01-02"), NewID())
	if u.prefix != "" {
		key = u.prefix + "/" + key
	}
	return key
}
