package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/sakif/artwall/internal/apperror"
	"github.com/sakif/artwall/internal/kv"
	"github.com/sakif/artwall/internal/model"
	"github.com/sakif/artwall/internal/period"
	"github.com/sakif/artwall/internal/repository"
)

// unlikeAttempts bounds the re-reads when an unlike races another toggle.
const unlikeAttempts = 3

// LikeService flips the like state of (voter, artwork) pairs and keeps the
// counters and like boards in step.
type LikeService struct {
	repo   repository.ArtworkRepository
	store  *kv.Store
	calc   *period.Calculator
	logger *slog.Logger
	now    func() time.Time
}

func NewLikeService(repo repository.ArtworkRepository, store *kv.Store, calc *period.Calculator, logger *slog.Logger) *LikeService {
	return &LikeService{
		repo:   repo,
		store:  store,
		calc:   calc,
		logger: logger,
		now:    time.Now,
	}
}

// Toggle sets the like state. want == nil flips the current state; otherwise
// the state is driven to *want, and asking for the state already held is a
// no-op.
func (s *LikeService) Toggle(ctx context.Context, voterID, artworkID string, want *bool) (*model.LikeStatus, error) {
	if voterID == "" {
		return nil, apperror.Unauthorized("voter id required")
	}

	a, err := s.repo.GetByID(ctx, artworkID)
	if err != nil {
		return nil, err
	}
	creator := a.Creator()

	for attempt := 0; attempt < unlikeAttempts; attempt++ {
		likedAt, raw, liked, err := s.store.LikedAt(ctx, voterID, artworkID)
		if err != nil {
			return nil, fmt.Errorf("reading like state: %w", err)
		}

		desired := !liked
		if want != nil {
			desired = *want
		}

		switch {
		case desired && !liked:
			now := s.now()
			_, count, err := s.store.Like(ctx, s.target(voterID, artworkID, creator, now), now)
			if err != nil {
				s.logger.Error("failed to like", slog.String("artwork", artworkID), slog.String("error", err.Error()))
				return nil, fmt.Errorf("liking artwork: %w", err)
			}
			return &model.LikeStatus{Liked: true, Count: count}, nil

		case !desired && liked:
			// the boards of the like's own periods are decremented
			_, count, err := s.store.Unlike(ctx, s.target(voterID, artworkID, creator, likedAt), raw)
			if errors.Is(err, kv.ErrFlagChanged) {
				continue
			}
			if err != nil {
				s.logger.Error("failed to unlike", slog.String("artwork", artworkID), slog.String("error", err.Error()))
				return nil, fmt.Errorf("unliking artwork: %w", err)
			}
			return &model.LikeStatus{Liked: false, Count: count}, nil

		default:
			count, err := s.store.Count(ctx, kv.CountKey(artworkID))
			if err != nil {
				return nil, fmt.Errorf("reading like count: %w", err)
			}
			return &model.LikeStatus{Liked: liked, Count: count}, nil
		}
	}

	s.logger.Warn("like state kept changing", slog.String("artwork", artworkID))
	return nil, &apperror.AppError{Err: apperror.ErrConflict, Message: "like state changed concurrently, try again"}
}

func (s *LikeService) target(voterID, artworkID, creator string, at time.Time) kv.LikeTarget {
	return kv.LikeTarget{
		VoterID:       voterID,
		ArtworkID:     artworkID,
		Creator:       creator,
		ArtBoards:     boardKeys(s.calc, kv.EntityArt, at),
		CreatorBoards: boardKeys(s.calc, kv.EntityCreatorLikes, at),
	}
}

// Status reports, per artwork id, whether the voter likes it and its count.
// An empty voter id reports every artwork as not liked.
func (s *LikeService) Status(ctx context.Context, voterID string, artworkIDs []string) (map[string]model.LikeStatus, error) {
	ids := dedupe(artworkIDs)
	if len(ids) > MaxStatusIDs {
		return nil, apperror.ValidationFailed("ids", fmt.Sprintf("at most %d ids per request", MaxStatusIDs))
	}

	counts, err := s.store.Counts(ctx, ids)
	if err != nil {
		return nil, err
	}
	flags := map[string]bool{}
	if voterID != "" {
		flags, err = s.store.Flags(ctx, voterID, ids)
		if err != nil {
			return nil, err
		}
	}

	out := make(map[string]model.LikeStatus, len(ids))
	for _, id := range ids {
		out[id] = model.LikeStatus{Liked: flags[id], Count: counts[id]}
	}
	return out, nil
}

func dedupe(ids []string) []string {
	seen := make(map[string]struct{}, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if id == "" {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
