package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/sakif/artwall/internal/blob"
	"github.com/sakif/artwall/internal/blob/gcs"
	"github.com/sakif/artwall/internal/blob/memblob"
	"github.com/sakif/artwall/internal/blob/s3"
	"github.com/sakif/artwall/internal/config"
	"github.com/sakif/artwall/internal/kv"
	"github.com/sakif/artwall/internal/period"
	"github.com/sakif/artwall/internal/repository/blobstore"
	sqliteRepo "github.com/sakif/artwall/internal/repository/sqlite"
)

// Deps are the stores shared by the HTTP server and the admin CLI. The
// owner must call Close.
type Deps struct {
	Store    *kv.Store
	Artworks *blobstore.Repository
	Archive  *sqliteRepo.DB
	Calc     *period.Calculator

	closers []func() error
}

// OpenDeps connects to Redis, the object store and the archive database.
func OpenDeps(ctx context.Context, cfg config.Config, logger *slog.Logger) (*Deps, error) {
	d := &Deps{Calc: cfg.Calculator()}

	bucket, closeBucket, err := openBucket(ctx, cfg)
	if err != nil {
		return nil, err
	}
	if closeBucket != nil {
		d.closers = append(d.closers, closeBucket)
	}
	d.Artworks = blobstore.New(bucket, cfg.MetadataScanCap, logger)

	store, err := kv.New(ctx, kv.Config{Addr: cfg.RedisAddr, Password: cfg.RedisPassword, DB: cfg.RedisDB})
	if err != nil {
		d.Close()
		return nil, fmt.Errorf("connecting to redis: %w", err)
	}
	d.Store = store
	d.closers = append(d.closers, store.Close)

	// The archive directory is created on demand (like `mkdir -p`).
	if dir := filepath.Dir(cfg.ArchiveDBPath); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			d.Close()
			return nil, fmt.Errorf("creating archive directory %s: %w", dir, err)
		}
	}
	archive, err := sqliteRepo.New(cfg.ArchiveDBPath)
	if err != nil {
		d.Close()
		return nil, fmt.Errorf("opening archive database: %w", err)
	}
	d.Archive = archive
	d.closers = append(d.closers, archive.Close)

	return d, nil
}

// Close releases everything in reverse order of opening.
func (d *Deps) Close() error {
	var errs []error
	for i := len(d.closers) - 1; i >= 0; i-- {
		if err := d.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	d.closers = nil
	return errors.Join(errs...)
}

func openBucket(ctx context.Context, cfg config.Config) (blob.Bucket, func() error, error) {
	switch cfg.BlobDriver {
	case config.BlobGCS:
		b, err := gcs.New(ctx, cfg.BlobBucket, cfg.BlobPublicBase)
		if err != nil {
			return nil, nil, fmt.Errorf("opening gcs bucket: %w", err)
		}
		return b, b.Close, nil
	case config.BlobS3:
		b, err := s3.New(s3.Config{
			Bucket:     cfg.BlobBucket,
			Region:     cfg.AWSRegion,
			Endpoint:   cfg.S3Endpoint,
			PublicBase: cfg.BlobPublicBase,
		})
		if err != nil {
			return nil, nil, fmt.Errorf("opening s3 bucket: %w", err)
		}
		return b, nil, nil
	case config.BlobMemory:
		return memblob.New(cfg.BlobPublicBase), nil, nil
	default:
		return nil, nil, fmt.Errorf("unknown blob driver %q", cfg.BlobDriver)
	}
}
