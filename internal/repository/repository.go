// Package repository declares the persistence interfaces the services depend
// on. Implementations live in subpackages: blobstore (artwork metadata and
// images in the object store) and sqlite (leaderboard archive).
package repository

import (
	"context"

	"github.com/sakif/artwall/internal/model"
)

type ListOptions struct {
	Limit  int
	Offset int
}

// ListResult is one page of artworks, newest first.
type ListResult struct {
	Artworks []model.Artwork
	// Total is the number of artworks seen while listing, capped by the scan
	// limit. Truncated reports that the cap was reached.
	Total     int
	Truncated bool
}

// ArtworkRepository stores artwork metadata and image files.
//
// Metadata is the record of existence: an artwork whose metadata is missing
// does not exist, even if its image is still in the bucket.
type ArtworkRepository interface {
	// PutImage stores an image object and returns its public URL.
	PutImage(ctx context.Context, key string, data []byte, contentType string) (url string, err error)
	// HasImage reports whether an image object exists.
	HasImage(ctx context.Context, key string) (bool, error)
	// ImageURL is the public URL of an image object.
	ImageURL(key string) string
	// GetImage reads an image object back.
	GetImage(ctx context.Context, key string) ([]byte, error)
	Create(ctx context.Context, artwork *model.Artwork) error
	GetByID(ctx context.Context, id string) (*model.Artwork, error)
	Update(ctx context.Context, artwork *model.Artwork) error
	// Delete removes the metadata first, then the image files.
	Delete(ctx context.Context, artwork *model.Artwork) error
	List(ctx context.Context, opts ListOptions) (ListResult, error)
	// Scan calls fn for every stored artwork (bounded by the scan cap).
	Scan(ctx context.Context, fn func(model.Artwork) error) (truncated bool, err error)
}

// SnapshotRepository archives leaderboard contents before they are reset.
type SnapshotRepository interface {
	Save(ctx context.Context, snap *model.Snapshot) error
	Latest(ctx context.Context, entity, scope, period string) (*model.Snapshot, error)
	Periods(ctx context.Context, entity, scope string) ([]string, error)
}
