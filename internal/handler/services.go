package handler

import (
	"context"

	"github.com/sakif/artwall/internal/model"
	"github.com/sakif/artwall/internal/service"
)

// The handlers depend on these narrow views of the services so tests can
// substitute mocks.

type ArtworkService interface {
	Submit(ctx context.Context, in service.SubmitInput) (*service.SubmitResult, error)
	IssueUploadSlot(ctx context.Context, contentType string) (*service.UploadSlot, error)
	StoreUpload(ctx context.Context, id, ticket string, data []byte) error
	Get(ctx context.Context, id string) (*model.Public, error)
	List(ctx context.Context, limit int, cursor string) (*service.GalleryPage, error)
	Patch(ctx context.Context, id, ownerToken string, p model.Patch) (*model.Public, error)
	Delete(ctx context.Context, id, ownerToken string, admin bool) error
	MaxUploadBytes() int64
}

type LikeService interface {
	Toggle(ctx context.Context, voterID, artworkID string, want *bool) (*model.LikeStatus, error)
	Status(ctx context.Context, voterID string, artworkIDs []string) (map[string]model.LikeStatus, error)
}

type LeaderboardService interface {
	Top(ctx context.Context, q service.BoardQuery) (*model.Leaderboard, error)
	Periods(ctx context.Context, entity, scope string) ([]string, error)
	Rebuild(ctx context.Context, entity, scope, period string) (*service.RebuildResult, error)
	Reset(ctx context.Context, entity, scope, period string) (*service.ResetResult, error)
}

var (
	_ ArtworkService     = (*service.ArtworkService)(nil)
	_ LikeService        = (*service.LikeService)(nil)
	_ LeaderboardService = (*service.LeaderboardService)(nil)
)
