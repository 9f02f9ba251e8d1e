package handler_test

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sakif/artwall/internal/handler"
	"github.com/sakif/artwall/internal/middleware"
	"github.com/sakif/artwall/internal/model"
)

const testVoter = "3e1f4c2a-8b7d-4e6f-a1b2-c3d4e5f60718"

func likeRouter(m *mockLikes) http.Handler {
	h := handler.NewLikeHandler(m, testLogger)
	r := chi.NewRouter()
	r.Use(middleware.Voter(false))
	r.Post("/api/artworks/{id}/like", h.HandleToggle)
	r.Post("/api/likes/status", h.HandleStatus)
	return r
}

func TestHandleToggle(t *testing.T) {
	t.Run("empty body flips", func(t *testing.T) {
		m := &mockLikes{status: &model.LikeStatus{Liked: true, Count: 5}}
		req := httptest.NewRequest(http.MethodPost, "/api/artworks/a1/like", nil)
		req.Header.Set(middleware.VoterHeader, testVoter)
		rr := httptest.NewRecorder()
		likeRouter(m).ServeHTTP(rr, req)

		assert.Equal(t, http.StatusOK, rr.Code)
		assert.Equal(t, testVoter, m.gotVoter)
		assert.Equal(t, "a1", m.gotID)
		assert.Nil(t, m.gotWant)

		var st model.LikeStatus
		require.NoError(t, json.NewDecoder(rr.Body).Decode(&st))
		assert.Equal(t, model.LikeStatus{Liked: true, Count: 5}, st)
	})

	t.Run("explicit state", func(t *testing.T) {
		m := &mockLikes{status: &model.LikeStatus{}}
		req := httptest.NewRequest(http.MethodPost, "/api/artworks/a1/like", strings.NewReader(`{"liked":false}`))
		req.Header.Set(middleware.VoterHeader, testVoter)
		rr := httptest.NewRecorder()
		likeRouter(m).ServeHTTP(rr, req)

		assert.Equal(t, http.StatusOK, rr.Code)
		require.NotNil(t, m.gotWant)
		assert.False(t, *m.gotWant)
	})

	t.Run("new voter gets a cookie", func(t *testing.T) {
		m := &mockLikes{status: &model.LikeStatus{Liked: true, Count: 1}}
		rr := httptest.NewRecorder()
		likeRouter(m).ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/api/artworks/a1/like", nil))

		assert.Equal(t, http.StatusOK, rr.Code)
		assert.NotEmpty(t, m.gotVoter)
		assert.Contains(t, rr.Header().Get("Set-Cookie"), middleware.VoterCookie+"="+m.gotVoter)
	})

	t.Run("store failure is a generic 500", func(t *testing.T) {
		m := &mockLikes{err: errors.New("dial tcp 10.0.0.3:6379: connection refused")}
		rr := httptest.NewRecorder()
		likeRouter(m).ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/api/artworks/a1/like", nil))

		assert.Equal(t, http.StatusInternalServerError, rr.Code)
		assert.NotContains(t, rr.Body.String(), "10.0.0.3")
	})
}

func TestHandleStatus(t *testing.T) {
	m := &mockLikes{statuses: map[string]model.LikeStatus{"a1": {Liked: true, Count: 2}}}
	req := httptest.NewRequest(http.MethodPost, "/api/likes/status", strings.NewReader(`{"ids":["a1","a2"]}`))
	req.Header.Set(middleware.VoterHeader, testVoter)
	rr := httptest.NewRecorder()
	likeRouter(m).ServeHTTP(rr, req)

	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, []string{"a1", "a2"}, m.gotIDs)

	var body struct {
		Statuses map[string]model.LikeStatus `json:"statuses"`
	}
	require.NoError(t, json.NewDecoder(rr.Body).Decode(&body))
	assert.True(t, body.Statuses["a1"].Liked)
}
