// Package blobstore keeps artworks in the object store: one JSON metadata
// document per artwork plus its image and thumbnail objects.
//
// LAYOUT:
//
//	meta/<id>.json     metadata (model.Artwork)
//	images/<id>.<ext>  original upload
//	thumbs/<id>.jpg    gallery thumbnail
//
// Listing pages through the whole meta/ prefix and keeps the newest ids up
// to a fixed number (the scan cap). Artwork ids are xids, which sort by
// creation time, so newest-first order is reverse key order and the ids
// beyond the cap are always the oldest.
package blobstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/sakif/artwall/internal/apperror"
	"github.com/sakif/artwall/internal/blob"
	"github.com/sakif/artwall/internal/model"
	"github.com/sakif/artwall/internal/repository"
)

var _ repository.ArtworkRepository = (*Repository)(nil)

const (
	metaPrefix  = "meta/"
	ImagePrefix = "images/"
	ThumbPrefix = "thumbs/"

	listPageSize = 1000
	fetchWorkers = 8

	DefaultScanCap = 5000
)

func MetaKey(id string) string  { return metaPrefix + id + ".json" }
func ThumbKey(id string) string { return ThumbPrefix + id + ".jpg" }
func ImageKey(id, ext string) string {
	return ImagePrefix + id + "." + strings.TrimPrefix(ext, ".")
}

type Repository struct {
	bucket  blob.Bucket
	scanCap int
	logger  *slog.Logger
}

// New wraps a bucket. scanCap <= 0 uses DefaultScanCap.
func New(bucket blob.Bucket, scanCap int, logger *slog.Logger) *Repository {
	if scanCap <= 0 {
		scanCap = DefaultScanCap
	}
	return &Repository{bucket: bucket, scanCap: scanCap, logger: logger}
}

func (r *Repository) PutImage(ctx context.Context, key string, data []byte, contentType string) (string, error) {
	if err := r.bucket.Put(ctx, key, data, contentType); err != nil {
		return "", fmt.Errorf("storing image %s: %w", key, err)
	}
	return r.bucket.URL(key), nil
}

func (r *Repository) HasImage(ctx context.Context, key string) (bool, error) {
	_, err := r.bucket.Get(ctx, key)
	if errors.Is(err, blob.ErrNotExist) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("checking image %s: %w", key, err)
	}
	return true, nil
}

func (r *Repository) ImageURL(key string) string {
	return r.bucket.URL(key)
}

func (r *Repository) GetImage(ctx context.Context, key string) ([]byte, error) {
	data, err := r.bucket.Get(ctx, key)
	if errors.Is(err, blob.ErrNotExist) {
		return nil, apperror.NotFound("image", key)
	}
	if err != nil {
		return nil, fmt.Errorf("reading image %s: %w", key, err)
	}
	return data, nil
}

func (r *Repository) Create(ctx context.Context, a *model.Artwork) error {
	return r.writeMeta(ctx, a)
}

func (r *Repository) GetByID(ctx context.Context, id string) (*model.Artwork, error) {
	data, err := r.bucket.Get(ctx, MetaKey(id))
	if errors.Is(err, blob.ErrNotExist) {
		return nil, apperror.NotFound("artwork", id)
	}
	if err != nil {
		return nil, fmt.Errorf("reading artwork %s: %w", id, err)
	}

	var a model.Artwork
	if err := json.Unmarshal(data, &a); err != nil {
		return nil, fmt.Errorf("decoding artwork %s: %w", id, err)
	}
	if a.ID == "" {
		a.ID = id
	}
	return &a, nil
}

func (r *Repository) Update(ctx context.Context, a *model.Artwork) error {
	if _, err := r.GetByID(ctx, a.ID); err != nil {
		return err
	}
	return r.writeMeta(ctx, a)
}

// Delete removes metadata before the images so a failure half way leaves an
// orphaned image rather than a listed artwork with a broken image.
func (r *Repository) Delete(ctx context.Context, a *model.Artwork) error {
	if err := r.bucket.Delete(ctx, MetaKey(a.ID)); err != nil {
		return fmt.Errorf("deleting artwork %s metadata: %w", a.ID, err)
	}

	keys := []string{ThumbKey(a.ID)}
	if k := r.imageKeyOf(a); k != "" {
		keys = append(keys, k)
	}
	for _, k := range keys {
		if err := r.bucket.Delete(ctx, k); err != nil {
			return fmt.Errorf("deleting artwork %s object %s: %w", a.ID, k, err)
		}
	}
	return nil
}

// imageKeyOf recovers the object key of records that predate ImageKey from
// their public URL.
func (r *Repository) imageKeyOf(a *model.Artwork) string {
	if a.ImageKey != "" {
		return a.ImageKey
	}
	if i := strings.Index(a.ImageURL, ImagePrefix); i >= 0 {
		return a.ImageURL[i:]
	}
	return ""
}

func (r *Repository) List(ctx context.Context, opts repository.ListOptions) (repository.ListResult, error) {
	ids, truncated, err := r.listIDs(ctx)
	if err != nil {
		return repository.ListResult{}, err
	}

	// newest first
	sort.Sort(sort.Reverse(sort.StringSlice(ids)))

	res := repository.ListResult{Total: len(ids), Truncated: truncated}
	if opts.Offset >= len(ids) {
		res.Artworks = []model.Artwork{}
		return res, nil
	}
	page := ids[opts.Offset:]
	if opts.Limit > 0 && opts.Limit < len(page) {
		page = page[:opts.Limit]
	}

	arts, err := r.fetch(ctx, page)
	if err != nil {
		return repository.ListResult{}, err
	}
	res.Artworks = arts
	return res, nil
}

func (r *Repository) Scan(ctx context.Context, fn func(model.Artwork) error) (bool, error) {
	ids, truncated, err := r.listIDs(ctx)
	if err != nil {
		return false, err
	}

	const chunk = 200
	for start := 0; start < len(ids); start += chunk {
		end := min(start+chunk, len(ids))
		arts, err := r.fetch(ctx, ids[start:end])
		if err != nil {
			return truncated, err
		}
		for _, a := range arts {
			if err := fn(a); err != nil {
				return truncated, err
			}
		}
	}
	return truncated, nil
}

// listIDs pages through meta/ and returns at most scanCap ids in ascending
// (oldest first) order. Listings are key ordered, so once the cap is
// exceeded the window slides forward and the oldest ids are dropped.
func (r *Repository) listIDs(ctx context.Context) ([]string, bool, error) {
	var (
		ids       []string
		token     string
		truncated bool
	)
	for {
		objs, next, err := r.bucket.List(ctx, metaPrefix, token, listPageSize)
		if err != nil {
			return nil, false, fmt.Errorf("listing artworks: %w", err)
		}
		for _, o := range objs {
			if !strings.HasSuffix(o.Key, ".json") {
				continue
			}
			ids = append(ids, strings.TrimSuffix(strings.TrimPrefix(o.Key, metaPrefix), ".json"))
			if len(ids) > r.scanCap {
				ids = ids[1:]
				truncated = true
			}
		}
		if next == "" {
			break
		}
		token = next
	}

	if truncated {
		r.logger.Warn("artwork listing truncated, oldest artworks skipped", slog.Int("cap", r.scanCap))
		// keep the backing array from growing with the full catalog
		ids = append([]string(nil), ids...)
	}
	return ids, truncated, nil
}

// fetch loads metadata documents concurrently, preserving the order of ids.
// Documents deleted between listing and fetching are skipped.
func (r *Repository) fetch(ctx context.Context, ids []string) ([]model.Artwork, error) {
	results := make([]*model.Artwork, len(ids))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(fetchWorkers)
	for i, id := range ids {
		i, id := i, id
		g.Go(func() error {
			a, err := r.GetByID(gctx, id)
			if errors.Is(err, apperror.ErrNotFound) {
				return nil
			}
			if err != nil {
				return err
			}
			results[i] = a
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	out := make([]model.Artwork, 0, len(ids))
	for _, a := range results {
		if a != nil {
			out = append(out, *a)
		}
	}
	return out, nil
}

func (r *Repository) writeMeta(ctx context.Context, a *model.Artwork) error {
	data, err := json.Marshal(a)
	if err != nil {
		return fmt.Errorf("encoding artwork %s: %w", a.ID, err)
	}
	if err := r.bucket.Put(ctx, MetaKey(a.ID), data, "application/json"); err != nil {
		return fmt.Errorf("writing artwork %s: %w", a.ID, err)
	}
	return nil
}
