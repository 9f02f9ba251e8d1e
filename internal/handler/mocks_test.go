package handler_test

import (
	"context"
	"io"
	"log/slog"

	"github.com/sakif/artwall/internal/model"
	"github.com/sakif/artwall/internal/service"
)

var testLogger = slog.New(slog.NewTextHandler(io.Discard, nil))

// mockArtworks records the last call and returns canned results.
type mockArtworks struct {
	maxBytes int64

	gotSubmit service.SubmitInput
	submitRes *service.SubmitResult

	gotID, gotToken string
	gotAdmin        bool
	gotPatch        model.Patch
	gotUpload       []byte
	gotLimit        int
	gotCursor       string
	gotContentType  string

	public *model.Public
	page   *service.GalleryPage
	slot   *service.UploadSlot
	err    error
}

func (m *mockArtworks) Submit(_ context.Context, in service.SubmitInput) (*service.SubmitResult, error) {
	m.gotSubmit = in
	return m.submitRes, m.err
}

func (m *mockArtworks) IssueUploadSlot(_ context.Context, contentType string) (*service.UploadSlot, error) {
	m.gotContentType = contentType
	return m.slot, m.err
}

func (m *mockArtworks) StoreUpload(_ context.Context, id, ticket string, data []byte) error {
	m.gotID, m.gotToken, m.gotUpload = id, ticket, data
	return m.err
}

func (m *mockArtworks) Get(_ context.Context, id string) (*model.Public, error) {
	m.gotID = id
	return m.public, m.err
}

func (m *mockArtworks) List(_ context.Context, limit int, cursor string) (*service.GalleryPage, error) {
	m.gotLimit, m.gotCursor = limit, cursor
	return m.page, m.err
}

func (m *mockArtworks) Patch(_ context.Context, id, token string, p model.Patch) (*model.Public, error) {
	m.gotID, m.gotToken, m.gotPatch = id, token, p
	return m.public, m.err
}

func (m *mockArtworks) Delete(_ context.Context, id, token string, admin bool) error {
	m.gotID, m.gotToken, m.gotAdmin = id, token, admin
	return m.err
}

func (m *mockArtworks) MaxUploadBytes() int64 { return m.maxBytes }

type mockLikes struct {
	gotVoter, gotID string
	gotWant         *bool
	gotIDs          []string

	status   *model.LikeStatus
	statuses map[string]model.LikeStatus
	err      error
}

func (m *mockLikes) Toggle(_ context.Context, voter, id string, want *bool) (*model.LikeStatus, error) {
	m.gotVoter, m.gotID, m.gotWant = voter, id, want
	return m.status, m.err
}

func (m *mockLikes) Status(_ context.Context, voter string, ids []string) (map[string]model.LikeStatus, error) {
	m.gotVoter, m.gotIDs = voter, ids
	return m.statuses, m.err
}

type mockBoards struct {
	gotQuery                       service.BoardQuery
	gotEntity, gotScope, gotPeriod string

	board   *model.Leaderboard
	periods []string
	rebuilt *service.RebuildResult
	reset   *service.ResetResult
	err     error
}

func (m *mockBoards) Top(_ context.Context, q service.BoardQuery) (*model.Leaderboard, error) {
	m.gotQuery = q
	return m.board, m.err
}

func (m *mockBoards) Periods(_ context.Context, entity, scope string) ([]string, error) {
	m.gotEntity, m.gotScope = entity, scope
	return m.periods, m.err
}

func (m *mockBoards) Rebuild(_ context.Context, entity, scope, period string) (*service.RebuildResult, error) {
	m.gotEntity, m.gotScope, m.gotPeriod = entity, scope, period
	return m.rebuilt, m.err
}

func (m *mockBoards) Reset(_ context.Context, entity, scope, period string) (*service.ResetResult, error) {
	m.gotEntity, m.gotScope, m.gotPeriod = entity, scope, period
	return m.reset, m.err
}
