package service

import (
	"bytes"
	"context"
	"image"
	"image/color"
	"image/png"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/require"

	"github.com/sakif/artwall/internal/auth"
	"github.com/sakif/artwall/internal/blob/memblob"
	"github.com/sakif/artwall/internal/kv"
	"github.com/sakif/artwall/internal/period"
	"github.com/sakif/artwall/internal/repository/blobstore"
	"github.com/sakif/artwall/internal/repository/sqlite"
)

// 2025-10-11 is a Saturday; 12:00Z is 19:00 at the default UTC+7 offset.
var testNow = time.Date(2025, 10, 11, 12, 0, 0, 0, time.UTC)

// testEnv bundles real in-process backends: miniredis, an in-memory bucket
// and an in-memory sqlite archive.
type testEnv struct {
	mr      *miniredis.Miniredis
	store   *kv.Store
	bucket  *memblob.Bucket
	repo    *blobstore.Repository
	archive *sqlite.DB
	calc    *period.Calculator

	artworks     *ArtworkService
	likes        *LikeService
	leaderboards *LeaderboardService
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	archive, err := sqlite.New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { archive.Close() })

	tickets, err := auth.NewTicketService("service-test-secret-0123456789", 0)
	require.NoError(t, err)

	env := &testEnv{
		mr:      mr,
		store:   kv.NewFromClient(client),
		bucket:  memblob.New("https://cdn.test"),
		archive: archive,
		calc:    period.Default(),
	}
	env.repo = blobstore.New(env.bucket, 0, logger)
	env.artworks = NewArtworkService(env.repo, env.store, env.calc, tickets, 1<<20, logger)
	env.likes = NewLikeService(env.repo, env.store, env.calc, logger)
	env.leaderboards = NewLeaderboardService(env.repo, archive, env.store, env.calc, logger)
	env.setNow(testNow)
	return env
}

func (e *testEnv) setNow(t time.Time) {
	now := func() time.Time { return t }
	e.artworks.now = now
	e.likes.now = now
	e.leaderboards.now = now
}

// submit stores an artwork created at the given time.
func (e *testEnv) submit(t *testing.T, title, x string, at time.Time) *SubmitResult {
	t.Helper()
	prev := e.artworks.now
	e.artworks.now = func() time.Time { return at }
	defer func() { e.artworks.now = prev }()

	res, err := e.artworks.Submit(context.Background(), SubmitInput{Title: title, X: x, Image: testPNG(t, 64, 48)})
	require.NoError(t, err)
	return res
}

func (e *testEnv) score(t *testing.T, key, member string) float64 {
	t.Helper()
	s, err := e.store.Score(context.Background(), key, member)
	require.NoError(t, err)
	return s
}

func testPNG(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, color.RGBA{B: 180, A: 255})
		}
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}
