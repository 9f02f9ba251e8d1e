// Package s3 implements blob.Bucket on Amazon S3 (or any S3 compatible
// endpoint such as R2 or MinIO).
package s3

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/awserr"
	"github.com/aws/aws-sdk-go/aws/session"
	awss3 "github.com/aws/aws-sdk-go/service/s3"
	"github.com/aws/aws-sdk-go/service/s3/s3manager"

	"github.com/sakif/artwall/internal/blob"
)

var _ blob.Bucket = (*Bucket)(nil)

// Config selects the bucket. Endpoint is only needed for non-AWS providers.
type Config struct {
	Bucket     string
	Region     string
	Endpoint   string
	PublicBase string
}

type Bucket struct {
	api        *awss3.S3
	uploader   *s3manager.Uploader
	bucket     string
	publicBase string
}

// New builds a session from the usual AWS environment (AWS_ACCESS_KEY_ID,
// shared config, instance role).
func New(cfg Config) (*Bucket, error) {
	awsCfg := &aws.Config{Region: aws.String(cfg.Region)}
	if cfg.Endpoint != "" {
		awsCfg.Endpoint = aws.String(cfg.Endpoint)
		awsCfg.S3ForcePathStyle = aws.Bool(true)
	}

	sess, err := session.NewSession(awsCfg)
	if err != nil {
		return nil, fmt.Errorf("s3: creating session: %w", err)
	}

	publicBase := cfg.PublicBase
	if publicBase == "" {
		publicBase = fmt.Sprintf("https://%s.s3.%s.amazonaws.com", cfg.Bucket, cfg.Region)
	}

	return &Bucket{
		api:        awss3.New(sess),
		uploader:   s3manager.NewUploader(sess),
		bucket:     cfg.Bucket,
		publicBase: publicBase,
	}, nil
}

func (b *Bucket) Put(ctx context.Context, key string, data []byte, contentType string) error {
	_, err := b.uploader.UploadWithContext(ctx, &s3manager.UploadInput{
		Bucket:      aws.String(b.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(data),
		ContentType: aws.String(contentType),
	})
	if err != nil {
		return fmt.Errorf("s3: uploading %s: %w", key, err)
	}
	return nil
}

func (b *Bucket) Get(ctx context.Context, key string) ([]byte, error) {
	out, err := b.api.GetObjectWithContext(ctx, &awss3.GetObjectInput{
		Bucket: aws.String(b.bucket),
		Key:    aws.String(key),
	})
	if isNotFound(err) {
		return nil, blob.ErrNotExist
	}
	if err != nil {
		return nil, fmt.Errorf("s3: reading %s: %w", key, err)
	}
	defer out.Body.Close()
	return io.ReadAll(out.Body)
}

func (b *Bucket) Delete(ctx context.Context, key string) error {
	_, err := b.api.DeleteObjectWithContext(ctx, &awss3.DeleteObjectInput{
		Bucket: aws.String(b.bucket),
		Key:    aws.String(key),
	})
	if err != nil && !isNotFound(err) {
		return fmt.Errorf("s3: deleting %s: %w", key, err)
	}
	return nil
}

func (b *Bucket) List(ctx context.Context, prefix, pageToken string, pageSize int) ([]blob.Object, string, error) {
	in := &awss3.ListObjectsV2Input{
		Bucket:  aws.String(b.bucket),
		Prefix:  aws.String(prefix),
		MaxKeys: aws.Int64(int64(pageSize)),
	}
	if pageToken != "" {
		in.ContinuationToken = aws.String(pageToken)
	}

	out, err := b.api.ListObjectsV2WithContext(ctx, in)
	if err != nil {
		return nil, "", fmt.Errorf("s3: listing %s: %w", prefix, err)
	}

	objs := make([]blob.Object, 0, len(out.Contents))
	for _, o := range out.Contents {
		objs = append(objs, blob.Object{
			Key:     aws.StringValue(o.Key),
			Size:    aws.Int64Value(o.Size),
			Updated: aws.TimeValue(o.LastModified),
		})
	}

	next := ""
	if aws.BoolValue(out.IsTruncated) {
		next = aws.StringValue(out.NextContinuationToken)
	}
	return objs, next, nil
}

func (b *Bucket) URL(key string) string {
	return blob.JoinURL(b.publicBase, key)
}

func isNotFound(err error) bool {
	var aerr awserr.Error
	if !errors.As(err, &aerr) {
		return false
	}
	return aerr.Code() == awss3.ErrCodeNoSuchKey || aerr.Code() == "NotFound"
}
