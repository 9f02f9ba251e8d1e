package handler

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/sakif/artwall/internal/middleware"
)

type LikeHandler struct {
	likes  LikeService
	logger *slog.Logger
}

func NewLikeHandler(likes LikeService, logger *slog.Logger) *LikeHandler {
	return &LikeHandler{likes: likes, logger: logger}
}

// HandleToggle serves POST /api/artworks/{id}/like. An optional body
// {"liked": bool} sets the state instead of flipping it.
func (h *LikeHandler) HandleToggle(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Liked *bool `json:"liked"`
	}
	r.Body = http.MaxBytesReader(w, r.Body, 1<<10)
	if err := decodeJSON(r, &req, true); err != nil {
		writeError(w, h.logger, err)
		return
	}

	st, err := h.likes.Toggle(r.Context(), middleware.VoterID(r.Context()), chi.URLParam(r, "id"), req.Liked)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, st)
}

// HandleStatus serves POST /api/likes/status: {"ids": [...]}.
func (h *LikeHandler) HandleStatus(w http.ResponseWriter, r *http.Request) {
	var req struct {
		IDs []string `json:"ids"`
	}
	r.Body = http.MaxBytesReader(w, r.Body, 16<<10)
	if err := decodeJSON(r, &req, false); err != nil {
		writeError(w, h.logger, err)
		return
	}

	st, err := h.likes.Status(r.Context(), middleware.VoterID(r.Context()), req.IDs)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"statuses": st})
}
