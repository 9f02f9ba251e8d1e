package blobstore

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/rs/xid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sakif/artwall/internal/apperror"
	"github.com/sakif/artwall/internal/blob/memblob"
	"github.com/sakif/artwall/internal/model"
	"github.com/sakif/artwall/internal/repository"
)

func newTestRepo(t *testing.T, scanCap int) (*Repository, *memblob.Bucket) {
	t.Helper()
	b := memblob.New("https://cdn.test")
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return New(b, scanCap, logger), b
}

// createTestArtwork stores image + metadata the way the service does.
func createTestArtwork(t *testing.T, r *Repository, title string, at time.Time) *model.Artwork {
	t.Helper()
	ctx := context.Background()
	id := xid.NewWithTime(at).String()

	key := ImageKey(id, "png")
	url, err := r.PutImage(ctx, key, []byte("png-bytes"), "image/png")
	require.NoError(t, err)

	a := &model.Artwork{ID: id, Title: title, ImageURL: url, ImageKey: key, CreatedAt: at}
	require.NoError(t, r.Create(ctx, a))
	return a
}

func TestCreateAndGet(t *testing.T) {
	r, _ := newTestRepo(t, 0)
	a := createTestArtwork(t, r, "Dusk", time.Now())

	got, err := r.GetByID(context.Background(), a.ID)
	require.NoError(t, err)
	assert.Equal(t, "Dusk", got.Title)
	assert.Equal(t, "https://cdn.test/images/"+a.ID+".png", got.ImageURL)
}

func TestGetByID_NotFound(t *testing.T) {
	r, _ := newTestRepo(t, 0)

	_, err := r.GetByID(context.Background(), "missing")
	assert.True(t, errors.Is(err, apperror.ErrNotFound))
}

func TestUpdate_RequiresExisting(t *testing.T) {
	r, _ := newTestRepo(t, 0)
	ctx := context.Background()

	err := r.Update(ctx, &model.Artwork{ID: "ghost"})
	assert.True(t, errors.Is(err, apperror.ErrNotFound))

	a := createTestArtwork(t, r, "Dusk", time.Now())
	a.Title = "Dawn"
	require.NoError(t, r.Update(ctx, a))

	got, err := r.GetByID(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, "Dawn", got.Title)
}

func TestDelete_RemovesEverything(t *testing.T) {
	r, b := newTestRepo(t, 0)
	ctx := context.Background()
	a := createTestArtwork(t, r, "Dusk", time.Now())
	_, err := r.PutImage(ctx, ThumbKey(a.ID), []byte("jpg"), "image/jpeg")
	require.NoError(t, err)

	require.NoError(t, r.Delete(ctx, a))
	assert.Equal(t, 0, b.Len())
}

func TestDelete_LegacyRecordWithoutImageKey(t *testing.T) {
	r, b := newTestRepo(t, 0)
	ctx := context.Background()
	a := createTestArtwork(t, r, "Dusk", time.Now())
	a.ImageKey = ""

	require.NoError(t, r.Delete(ctx, a))
	assert.Equal(t, 0, b.Len())
}

func TestList_NewestFirstWithPaging(t *testing.T) {
	r, _ := newTestRepo(t, 0)
	ctx := context.Background()
	base := time.Date(2025, 10, 11, 0, 0, 0, 0, time.UTC)
	for i, title := range []string{"one", "two", "three"} {
		createTestArtwork(t, r, title, base.Add(time.Duration(i)*time.Hour))
	}

	res, err := r.List(ctx, repository.ListOptions{Limit: 2})
	require.NoError(t, err)
	require.Len(t, res.Artworks, 2)
	assert.Equal(t, "three", res.Artworks[0].Title)
	assert.Equal(t, "two", res.Artworks[1].Title)
	assert.Equal(t, 3, res.Total)
	assert.False(t, res.Truncated)

	res, err = r.List(ctx, repository.ListOptions{Limit: 2, Offset: 2})
	require.NoError(t, err)
	require.Len(t, res.Artworks, 1)
	assert.Equal(t, "one", res.Artworks[0].Title)

	res, err = r.List(ctx, repository.ListOptions{Limit: 2, Offset: 10})
	require.NoError(t, err)
	assert.Empty(t, res.Artworks)
}

func TestList_TruncationKeepsNewest(t *testing.T) {
	r, _ := newTestRepo(t, 2)
	base := time.Date(2025, 10, 11, 0, 0, 0, 0, time.UTC)
	var arts []*model.Artwork
	for i, title := range []string{"oldest", "middle", "newest"} {
		arts = append(arts, createTestArtwork(t, r, title, base.Add(time.Duration(i)*time.Hour)))
	}

	res, err := r.List(context.Background(), repository.ListOptions{Limit: 10})
	require.NoError(t, err)
	assert.True(t, res.Truncated)
	assert.Equal(t, 2, res.Total)
	require.Len(t, res.Artworks, 2)
	assert.Equal(t, arts[2].ID, res.Artworks[0].ID)
	assert.Equal(t, arts[1].ID, res.Artworks[1].ID)

	var scanned []string
	_, err = r.Scan(context.Background(), func(a model.Artwork) error {
		scanned = append(scanned, a.Title)
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"middle", "newest"}, scanned)
}

func TestScan_StopsAtCap(t *testing.T) {
	r, _ := newTestRepo(t, 2)
	base := time.Now()
	for i := 0; i < 3; i++ {
		createTestArtwork(t, r, "art", base.Add(time.Duration(i)*time.Second))
	}

	seen := 0
	truncated, err := r.Scan(context.Background(), func(model.Artwork) error {
		seen++
		return nil
	})
	require.NoError(t, err)
	assert.True(t, truncated)
	assert.Equal(t, 2, seen)
}

func TestHasImage(t *testing.T) {
	r, _ := newTestRepo(t, 0)
	ctx := context.Background()
	a := createTestArtwork(t, r, "Dusk", time.Now())

	ok, err := r.HasImage(ctx, a.ImageKey)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = r.HasImage(ctx, ImageKey("nope", "png"))
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestGetImage(t *testing.T) {
	r, _ := newTestRepo(t, 0)
	ctx := context.Background()
	a := createTestArtwork(t, r, "Dusk", time.Now())

	data, err := r.GetImage(ctx, a.ImageKey)
	require.NoError(t, err)
	assert.Equal(t, "png-bytes", string(data))

	_, err = r.GetImage(ctx, ImageKey("nope", "png"))
	assert.True(t, errors.Is(err, apperror.ErrNotFound))
}
