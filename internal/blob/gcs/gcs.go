// Package gcs implements blob.Bucket on Google Cloud Storage.
package gcs

import (
	"context"
	"errors"
	"fmt"
	"io"

	"cloud.google.com/go/storage"
	"google.golang.org/api/iterator"

	"github.com/sakif/artwall/internal/blob"
)

var _ blob.Bucket = (*Bucket)(nil)

type Bucket struct {
	client     *storage.Client
	handle     *storage.BucketHandle
	name       string
	publicBase string
}

// New opens a client with application default credentials. publicBase
// overrides the URL prefix handed to browsers (a CDN, for example); empty
// means https://storage.googleapis.com/<bucket>.
func New(ctx context.Context, bucketName, publicBase string) (*Bucket, error) {
	client, err := storage.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("gcs: creating client: %w", err)
	}
	if publicBase == "" {
		publicBase = "https://storage.googleapis.com/" + bucketName
	}
	return &Bucket{
		client:     client,
		handle:     client.Bucket(bucketName),
		name:       bucketName,
		publicBase: publicBase,
	}, nil
}

func (b *Bucket) Close() error {
	return b.client.Close()
}

func (b *Bucket) Put(ctx context.Context, key string, data []byte, contentType string) error {
	w := b.handle.Object(key).NewWriter(ctx)
	w.ObjectAttrs.ContentType = contentType
	if contentType == "application/json" {
		w.ObjectAttrs.CacheControl = "no-cache"
	}

	if _, err := w.Write(data); err != nil {
		w.Close()
		return fmt.Errorf("gcs: writing %s: %w", key, err)
	}
	// the object is only committed on Close
	if err := w.Close(); err != nil {
		return fmt.Errorf("gcs: committing %s: %w", key, err)
	}
	return nil
}

func (b *Bucket) Get(ctx context.Context, key string) ([]byte, error) {
	r, err := b.handle.Object(key).NewReader(ctx)
	if errors.Is(err, storage.ErrObjectNotExist) {
		return nil, blob.ErrNotExist
	}
	if err != nil {
		return nil, fmt.Errorf("gcs: reading %s: %w", key, err)
	}
	defer r.Close()
	return io.ReadAll(r)
}

func (b *Bucket) Delete(ctx context.Context, key string) error {
	err := b.handle.Object(key).Delete(ctx)
	if err != nil && !errors.Is(err, storage.ErrObjectNotExist) {
		return fmt.Errorf("gcs: deleting %s: %w", key, err)
	}
	return nil
}

func (b *Bucket) List(ctx context.Context, prefix, pageToken string, pageSize int) ([]blob.Object, string, error) {
	it := b.handle.Objects(ctx, &storage.Query{Prefix: prefix})

	var attrs []*storage.ObjectAttrs
	next, err := iterator.NewPager(it, pageSize, pageToken).NextPage(&attrs)
	if err != nil {
		return nil, "", fmt.Errorf("gcs: listing %s: %w", prefix, err)
	}

	objs := make([]blob.Object, 0, len(attrs))
	for _, a := range attrs {
		objs = append(objs, blob.Object{Key: a.Name, Size: a.Size, Updated: a.Updated})
	}
	return objs, next, nil
}

func (b *Bucket) URL(key string) string {
	return blob.JoinURL(b.publicBase, key)
}
