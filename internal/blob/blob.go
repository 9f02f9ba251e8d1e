// Package blob abstracts the object store that holds artwork images and
// their JSON metadata. Drivers live in the gcs, s3 and memblob
// subpackages.
package blob

import (
	"context"
	"errors"
	"strings"
	"time"
)

// ErrNotExist is returned by Get when the object is missing.
var ErrNotExist = errors.New("blob: object does not exist")

// Object describes one listed object.
type Object struct {
	Key     string
	Size    int64
	Updated time.Time
}

// Bucket is the minimal object store surface the repository needs.
//
// Delete of a missing object is not an error. List returns one page; an
// empty next token means the listing is complete.
type Bucket interface {
	Put(ctx context.Context, key string, data []byte, contentType string) error
	Get(ctx context.Context, key string) ([]byte, error)
	Delete(ctx context.Context, key string) error
	List(ctx context.Context, prefix, pageToken string, pageSize int) (objs []Object, next string, err error)
	URL(key string) string
}

// JoinURL appends an object key to a public base URL.
func JoinURL(base, key string) string {
	return strings.TrimRight(base, "/") + "/" + strings.TrimLeft(key, "/")
}
