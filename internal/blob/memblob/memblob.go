// Package memblob is an in-process blob.Bucket for local development and
// tests. Nothing survives a restart.
package memblob

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/sakif/artwall/internal/blob"
)

var _ blob.Bucket = (*Bucket)(nil)

type object struct {
	data        []byte
	contentType string
	updated     time.Time
}

type Bucket struct {
	mu         sync.RWMutex
	objects    map[string]object
	publicBase string
}

func New(publicBase string) *Bucket {
	if publicBase == "" {
		publicBase = "http://localhost/blobs"
	}
	return &Bucket{objects: make(map[string]object), publicBase: publicBase}
}

func (b *Bucket) Put(_ context.Context, key string, data []byte, contentType string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	cp := make([]byte, len(data))
	copy(cp, data)
	b.objects[key] = object{data: cp, contentType: contentType, updated: time.Now()}
	return nil
}

func (b *Bucket) Get(_ context.Context, key string) ([]byte, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	o, ok := b.objects[key]
	if !ok {
		return nil, blob.ErrNotExist
	}
	cp := make([]byte, len(o.data))
	copy(cp, o.data)
	return cp, nil
}

func (b *Bucket) Delete(_ context.Context, key string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.objects, key)
	return nil
}

// List pages in key order; the page token is the last key returned.
func (b *Bucket) List(_ context.Context, prefix, pageToken string, pageSize int) ([]blob.Object, string, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	keys := make([]string, 0, len(b.objects))
	for k := range b.objects {
		if strings.HasPrefix(k, prefix) && k > pageToken {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)

	next := ""
	if pageSize > 0 && len(keys) > pageSize {
		keys = keys[:pageSize]
		next = keys[len(keys)-1]
	}

	objs := make([]blob.Object, len(keys))
	for i, k := range keys {
		o := b.objects[k]
		objs[i] = blob.Object{Key: k, Size: int64(len(o.data)), Updated: o.updated}
	}
	return objs, next, nil
}

func (b *Bucket) URL(key string) string {
	return blob.JoinURL(b.publicBase, key)
}

// ContentType reports the stored content type of key.
func (b *Bucket) ContentType(key string) (string, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	o, ok := b.objects[key]
	return o.contentType, ok
}

// Len is the number of stored objects.
func (b *Bucket) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.objects)
}
