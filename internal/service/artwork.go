package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/rs/xid"

	"github.com/sakif/artwall/internal/apperror"
	"github.com/sakif/artwall/internal/auth"
	"github.com/sakif/artwall/internal/imaging"
	"github.com/sakif/artwall/internal/kv"
	"github.com/sakif/artwall/internal/model"
	"github.com/sakif/artwall/internal/period"
	"github.com/sakif/artwall/internal/repository"
	"github.com/sakif/artwall/internal/repository/blobstore"
)

// artBoardScanCap bounds the SCAN over art boards when an artwork is deleted.
const artBoardScanCap = 10000

// SubmitInput is a new artwork. Exactly one of Image or Ticket is set:
// Image carries the bytes inline, Ticket refers to a finished direct upload.
type SubmitInput struct {
	Title   string `json:"title" validate:"required,max=100"`
	X       string `json:"x" validate:"max=64"`
	Discord string `json:"discord" validate:"max=64"`
	PostURL string `json:"postUrl" validate:"max=500,weburl"`
	Image   []byte `json:"-"`
	Ticket  string `json:"-"`
}

// SubmitResult carries the owner token. It is never shown again.
type SubmitResult struct {
	Artwork    model.Public `json:"artwork"`
	OwnerToken string       `json:"ownerToken"`
}

// UploadSlot is handed out for a direct upload.
type UploadSlot struct {
	ID        string    `json:"id"`
	Ticket    string    `json:"ticket"`
	ExpiresAt time.Time `json:"expiresAt"`
}

// GalleryPage is one page of the gallery, newest first.
type GalleryPage struct {
	Artworks   []model.Public `json:"artworks"`
	NextCursor string         `json:"nextCursor,omitempty"`
	Total      int            `json:"total"`
	Truncated  bool           `json:"truncated,omitempty"`
}

// ArtworkService handles submission, lookup, edits and removal of artworks.
type ArtworkService struct {
	repo           repository.ArtworkRepository
	store          *kv.Store
	calc           *period.Calculator
	tickets        *auth.TicketService
	validate       *validator.Validate
	maxUploadBytes int64
	logger         *slog.Logger
	now            func() time.Time
}

// NewArtworkService wires the artwork service. tickets may be nil, which
// disables direct uploads.
func NewArtworkService(
	repo repository.ArtworkRepository,
	store *kv.Store,
	calc *period.Calculator,
	tickets *auth.TicketService,
	maxUploadBytes int64,
	logger *slog.Logger,
) *ArtworkService {
	return &ArtworkService{
		repo:           repo,
		store:          store,
		calc:           calc,
		tickets:        tickets,
		validate:       newValidator(),
		maxUploadBytes: maxUploadBytes,
		logger:         logger,
		now:            time.Now,
	}
}

// MaxUploadBytes is the largest accepted image.
func (s *ArtworkService) MaxUploadBytes() int64 { return s.maxUploadBytes }

// Submit validates and stores a new artwork. The image is written before
// the metadata, so a failed submission never shows up in the gallery.
func (s *ArtworkService) Submit(ctx context.Context, in SubmitInput) (*SubmitResult, error) {
	in.Title = cleanText(in.Title)
	in.X = cleanText(in.X)
	in.Discord = cleanText(in.Discord)
	in.PostURL = cleanText(in.PostURL)
	if err := s.validate.Struct(in); err != nil {
		return nil, validationError(err)
	}

	now := s.now().UTC()
	a := &model.Artwork{
		Title:     in.Title,
		X:         in.X,
		Discord:   in.Discord,
		PostURL:   in.PostURL,
		CreatedAt: now,
	}

	var data []byte
	switch {
	case in.Ticket != "":
		t, err := s.redeemTicket(ctx, in.Ticket)
		if err != nil {
			return nil, err
		}
		a.ID = t.ArtworkID
		a.ImageKey = blobstore.ImageKey(t.ArtworkID, t.Ext)
		if _, err := s.repo.GetByID(ctx, a.ID); err == nil {
			return nil, apperror.Conflict("artwork", a.ID)
		}
		data, err = s.repo.GetImage(ctx, a.ImageKey)
		if errors.Is(err, apperror.ErrNotFound) {
			return nil, apperror.ValidationFailed("ticket", "no image has been uploaded for this ticket")
		}
		if err != nil {
			return nil, fmt.Errorf("reading uploaded image: %w", err)
		}
		a.ImageURL = s.repo.ImageURL(a.ImageKey)

	case len(in.Image) > 0:
		kind, err := s.checkImage(in.Image)
		if err != nil {
			return nil, err
		}
		data = in.Image
		a.ID = xid.NewWithTime(now).String()
		a.ImageKey = blobstore.ImageKey(a.ID, kind.Ext)
		a.ImageURL, err = s.repo.PutImage(ctx, a.ImageKey, data, kind.ContentType)
		if err != nil {
			s.logger.Error("failed to store image", slog.String("id", a.ID), slog.String("error", err.Error()))
			return nil, fmt.Errorf("storing image: %w", err)
		}

	default:
		return nil, apperror.ValidationFailed("image", "image is required")
	}

	thumb, err := imaging.Thumbnail(data)
	if err != nil {
		return nil, apperror.ValidationFailed("image", "image could not be decoded")
	}
	a.ThumbURL, err = s.repo.PutImage(ctx, blobstore.ThumbKey(a.ID), thumb, "image/jpeg")
	if err != nil {
		return nil, fmt.Errorf("storing thumbnail: %w", err)
	}

	token, err := auth.NewOwnerToken()
	if err != nil {
		return nil, err
	}
	a.OwnerTokenHash = auth.HashOwnerToken(token)

	if err := s.repo.Create(ctx, a); err != nil {
		s.logger.Error("failed to save artwork", slog.String("id", a.ID), slog.String("error", err.Error()))
		return nil, fmt.Errorf("saving artwork: %w", err)
	}

	s.adjustUploads(ctx, a.Creator(), a.CreatedAt, 1)

	s.logger.Info("artwork submitted",
		slog.String("id", a.ID),
		slog.String("creator", a.Creator()),
		slog.Int("bytes", len(data)),
	)
	return &SubmitResult{Artwork: a.ToPublic(0), OwnerToken: token}, nil
}

// IssueUploadSlot reserves an artwork id for a direct upload of the given
// content type.
func (s *ArtworkService) IssueUploadSlot(ctx context.Context, contentType string) (*UploadSlot, error) {
	if s.tickets == nil {
		return nil, apperror.Forbidden("direct uploads are disabled")
	}
	kind, ok := imaging.KindFor(contentType)
	if !ok {
		return nil, apperror.ValidationFailed("contentType", "contentType must be image/png, image/jpeg, image/gif or image/webp")
	}

	id := xid.NewWithTime(s.now()).String()
	ticket, exp, err := s.tickets.Issue(id, kind.Ext)
	if err != nil {
		return nil, fmt.Errorf("issuing upload ticket: %w", err)
	}
	return &UploadSlot{ID: id, Ticket: ticket, ExpiresAt: exp}, nil
}

// StoreUpload writes the image of a direct upload. Each slot takes one
// image; a second upload is a conflict.
func (s *ArtworkService) StoreUpload(ctx context.Context, id, ticket string, data []byte) error {
	t, err := s.redeemTicket(ctx, ticket)
	if err != nil {
		return err
	}
	if t.ArtworkID != id {
		return apperror.Forbidden("upload ticket was issued for a different artwork")
	}

	kind, err := s.checkImage(data)
	if err != nil {
		return err
	}
	if kind.Ext != t.Ext {
		return apperror.ValidationFailed("image", fmt.Sprintf("image is %s but the ticket was issued for %s", kind.Ext, t.Ext))
	}

	key := blobstore.ImageKey(id, kind.Ext)
	exists, err := s.repo.HasImage(ctx, key)
	if err != nil {
		return fmt.Errorf("checking upload: %w", err)
	}
	if exists {
		return apperror.Conflict("upload", id)
	}
	if _, err := s.repo.PutImage(ctx, key, data, kind.ContentType); err != nil {
		return fmt.Errorf("storing upload: %w", err)
	}

	s.logger.Info("direct upload stored", slog.String("id", id), slog.Int("bytes", len(data)))
	return nil
}

func (s *ArtworkService) redeemTicket(_ context.Context, ticket string) (*auth.Ticket, error) {
	if s.tickets == nil {
		return nil, apperror.Forbidden("direct uploads are disabled")
	}
	if ticket == "" {
		return nil, apperror.Unauthorized("upload ticket required")
	}
	t, err := s.tickets.Validate(ticket)
	if errors.Is(err, auth.ErrTicketExpired) {
		return nil, apperror.Unauthorized("upload ticket has expired")
	}
	if err != nil {
		return nil, apperror.Unauthorized("invalid upload ticket")
	}
	if _, ok := imaging.KindForExt(t.Ext); !ok {
		return nil, apperror.Unauthorized("invalid upload ticket")
	}
	return t, nil
}

func (s *ArtworkService) checkImage(data []byte) (imaging.Kind, error) {
	if len(data) == 0 {
		return imaging.Kind{}, apperror.ValidationFailed("image", "image is required")
	}
	if int64(len(data)) > s.maxUploadBytes {
		return imaging.Kind{}, apperror.TooLarge("image", s.maxUploadBytes)
	}
	kind, err := imaging.Sniff(data)
	if err != nil {
		return imaging.Kind{}, apperror.ValidationFailed("image", "image must be png, jpeg, gif or webp")
	}
	return kind, nil
}

// Get returns one artwork with its like count.
func (s *ArtworkService) Get(ctx context.Context, id string) (*model.Public, error) {
	a, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	count, err := s.store.Count(ctx, kv.CountKey(id))
	if err != nil {
		s.logger.Error("failed to read like count", slog.String("id", id), slog.String("error", err.Error()))
	}
	pub := a.ToPublic(count)
	return &pub, nil
}

// List returns a gallery page. cursor is the opaque value from the previous
// page's NextCursor; empty starts from the newest artwork.
func (s *ArtworkService) List(ctx context.Context, limit int, cursor string) (*GalleryPage, error) {
	limit = clampLimit(limit, DefaultGalleryLimit, MaxGalleryLimit)

	offset := 0
	if cursor != "" {
		n, err := strconv.Atoi(cursor)
		if err != nil || n < 0 {
			return nil, apperror.ValidationFailed("cursor", "cursor is invalid")
		}
		offset = n
	}

	res, err := s.repo.List(ctx, repository.ListOptions{Limit: limit, Offset: offset})
	if err != nil {
		s.logger.Error("failed to list artworks", slog.String("error", err.Error()))
		return nil, fmt.Errorf("listing artworks: %w", err)
	}

	ids := make([]string, len(res.Artworks))
	for i, a := range res.Artworks {
		ids[i] = a.ID
	}
	counts, err := s.store.Counts(ctx, ids)
	if err != nil {
		// the gallery still renders, with zero likes
		s.logger.Error("failed to read like counts", slog.String("error", err.Error()))
		counts = map[string]int64{}
	}

	page := &GalleryPage{
		Artworks:  make([]model.Public, len(res.Artworks)),
		Total:     res.Total,
		Truncated: res.Truncated,
	}
	for i := range res.Artworks {
		page.Artworks[i] = res.Artworks[i].ToPublic(counts[res.Artworks[i].ID])
	}
	if next := offset + limit; next < res.Total {
		page.NextCursor = strconv.Itoa(next)
	}
	return page, nil
}

// Patch applies an owner's edit. Only title, handles and post link can
// change.
func (s *ArtworkService) Patch(ctx context.Context, id, ownerToken string, p model.Patch) (*model.Public, error) {
	if p.Empty() {
		return nil, apperror.ValidationFailed("", "nothing to update")
	}

	a, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := checkOwner(a, ownerToken); err != nil {
		return nil, err
	}

	oldCreator := a.Creator()
	in := SubmitInput{Title: a.Title, X: a.X, Discord: a.Discord, PostURL: a.PostURL}
	if p.Title != nil {
		in.Title = cleanText(*p.Title)
	}
	if p.X != nil {
		in.X = cleanText(*p.X)
	}
	if p.Discord != nil {
		in.Discord = cleanText(*p.Discord)
	}
	if p.PostURL != nil {
		in.PostURL = cleanText(*p.PostURL)
	}
	if err := s.validate.Struct(in); err != nil {
		return nil, validationError(err)
	}

	a.Title, a.X, a.Discord, a.PostURL = in.Title, in.X, in.Discord, in.PostURL
	if err := s.repo.Update(ctx, a); err != nil {
		s.logger.Error("failed to update artwork", slog.String("id", id), slog.String("error", err.Error()))
		return nil, fmt.Errorf("updating artwork: %w", err)
	}

	if newCreator := a.Creator(); newCreator != oldCreator {
		s.adjustUploads(ctx, oldCreator, a.CreatedAt, -1)
		s.adjustUploads(ctx, newCreator, a.CreatedAt, 1)
	}

	s.logger.Info("artwork updated", slog.String("id", id))
	return s.Get(ctx, id)
}

// Delete removes an artwork. The owner token or the admin flag authorises
// it. Score cleanup after the metadata is gone is best effort: leaderboard
// reads skip artworks that no longer exist.
func (s *ArtworkService) Delete(ctx context.Context, id, ownerToken string, admin bool) error {
	a, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if !admin {
		if err := checkOwner(a, ownerToken); err != nil {
			return err
		}
	}

	if err := s.repo.Delete(ctx, a); err != nil {
		s.logger.Error("failed to delete artwork", slog.String("id", id), slog.String("error", err.Error()))
		return fmt.Errorf("deleting artwork: %w", err)
	}

	creator := a.Creator()
	likes, err := s.store.Count(ctx, kv.CountKey(id))
	if err != nil {
		s.logger.Warn("failed to read like count before delete", slog.String("id", id), slog.String("error", err.Error()))
	}
	if err := s.store.Del(ctx, kv.CountKey(id)); err != nil {
		s.logger.Warn("failed to delete like counter", slog.String("id", id), slog.String("error", err.Error()))
	}

	boards, _, err := s.store.ScanKeys(ctx, kv.EntityPattern(kv.EntityArt), artBoardScanCap)
	if err == nil {
		err = s.store.RemoveFromBoards(ctx, boards, id)
	}
	if err != nil {
		s.logger.Warn("failed to remove artwork from boards", slog.String("id", id), slog.String("error", err.Error()))
	}

	s.adjustUploads(ctx, creator, a.CreatedAt, -1)
	if creator != "" && likes > 0 {
		key := kv.BoardKey(kv.EntityCreatorLikes, string(period.AllTime), period.AllTimeKey)
		if err := s.store.AdjustBoards(ctx, []string{key}, creator, -float64(likes)); err != nil {
			s.logger.Warn("failed to adjust creator likes", slog.String("creator", creator), slog.String("error", err.Error()))
		}
	}

	s.logger.Info("artwork deleted", slog.String("id", id), slog.Bool("admin", admin))
	return nil
}

// adjustUploads moves a creator's upload count on every board of t. Failures
// are logged; a rebuild repairs the boards.
func (s *ArtworkService) adjustUploads(ctx context.Context, creator string, t time.Time, delta float64) {
	if creator == "" {
		return
	}
	keys := boardKeys(s.calc, kv.EntityCreator, t)
	if err := s.store.AdjustBoards(ctx, keys, creator, delta); err != nil {
		s.logger.Error("failed to update creator boards",
			slog.String("creator", creator),
			slog.Float64("delta", delta),
			slog.String("error", err.Error()),
		)
	}
}

// checkOwner distinguishes a missing token (401) from a wrong one (403).
func checkOwner(a *model.Artwork, token string) error {
	if token == "" {
		return apperror.Unauthorized("owner token required")
	}
	if !auth.VerifyOwner(a, token) {
		return apperror.Forbidden("owner token does not match")
	}
	return nil
}
