package handler

import (
	"log/slog"
	"net/http"

	"github.com/sakif/artwall/internal/service"
)

type LeaderboardHandler struct {
	boards LeaderboardService
	logger *slog.Logger
}

func NewLeaderboardHandler(boards LeaderboardService, logger *slog.Logger) *LeaderboardHandler {
	return &LeaderboardHandler{boards: boards, logger: logger}
}

// HandleTop serves GET /api/leaderboard?entity=&scope=&period=&limit=&metric=.
func (h *LeaderboardHandler) HandleTop(w http.ResponseWriter, r *http.Request) {
	limit, err := queryInt(r, "limit")
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	q := r.URL.Query()

	lb, err := h.boards.Top(r.Context(), service.BoardQuery{
		Entity: q.Get("entity"),
		Scope:  q.Get("scope"),
		Period: q.Get("period"),
		Limit:  limit,
		Metric: q.Get("metric"),
	})
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, lb)
}

// HandlePeriods serves GET /api/leaderboard/periods?entity=&scope=.
func (h *LeaderboardHandler) HandlePeriods(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	periods, err := h.boards.Periods(r.Context(), q.Get("entity"), q.Get("scope"))
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"periods": periods})
}

type boardJobRequest struct {
	Entity string `json:"entity"`
	Scope  string `json:"scope"`
	Period string `json:"period"`
}

// HandleRebuild serves POST /api/admin/leaderboard/rebuild.
func (h *LeaderboardHandler) HandleRebuild(w http.ResponseWriter, r *http.Request) {
	var req boardJobRequest
	if err := decodeJSON(r, &req, true); err != nil {
		writeError(w, h.logger, err)
		return
	}

	res, err := h.boards.Rebuild(r.Context(), req.Entity, req.Scope, req.Period)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// HandleReset serves POST /api/admin/leaderboard/reset. Period "*" clears
// every period of the scope.
func (h *LeaderboardHandler) HandleReset(w http.ResponseWriter, r *http.Request) {
	var req boardJobRequest
	if err := decodeJSON(r, &req, true); err != nil {
		writeError(w, h.logger, err)
		return
	}

	res, err := h.boards.Reset(r.Context(), req.Entity, req.Scope, req.Period)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}
