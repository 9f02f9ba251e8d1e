package handler

import (
	"errors"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/sakif/artwall/internal/apperror"
	"github.com/sakif/artwall/internal/auth"
	"github.com/sakif/artwall/internal/imaging"
	"github.com/sakif/artwall/internal/model"
	"github.com/sakif/artwall/internal/service"
)

// OwnerTokenHeader carries the owner token on edits and deletes.
const OwnerTokenHeader = "X-Owner-Token"

// formOverhead is allowed on top of the image for the other form fields.
const formOverhead = 64 << 10

type ArtworkHandler struct {
	artworks ArtworkService
	admin    *auth.AdminVerifier
	logger   *slog.Logger
}

func NewArtworkHandler(artworks ArtworkService, admin *auth.AdminVerifier, logger *slog.Logger) *ArtworkHandler {
	return &ArtworkHandler{artworks: artworks, admin: admin, logger: logger}
}

// HandleList serves GET /api/artworks?limit=&cursor=.
func (h *ArtworkHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	limit, err := queryInt(r, "limit")
	if err != nil {
		writeError(w, h.logger, err)
		return
	}

	page, err := h.artworks.List(r.Context(), limit, r.URL.Query().Get("cursor"))
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, page)
}

func (h *ArtworkHandler) HandleGet(w http.ResponseWriter, r *http.Request) {
	a, err := h.artworks.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, a)
}

// submitRequest is the JSON form of a submission. Image is a data URL;
// Ticket refers to a finished direct upload.
type submitRequest struct {
	Title   string `json:"title"`
	X       string `json:"x"`
	Discord string `json:"discord"`
	PostURL string `json:"postUrl"`
	Image   string `json:"image"`
	Ticket  string `json:"ticket"`
}

// HandleSubmit serves POST /api/artworks, as multipart/form-data with an
// "image" file or as JSON.
func (h *ArtworkHandler) HandleSubmit(w http.ResponseWriter, r *http.Request) {
	maxBytes := h.artworks.MaxUploadBytes()

	var (
		in  service.SubmitInput
		err error
	)
	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if mediaType == "multipart/form-data" {
		r.Body = http.MaxBytesReader(w, r.Body, maxBytes+formOverhead)
		in, err = h.readMultipart(r, maxBytes)
	} else {
		// base64 inflates by 4/3
		r.Body = http.MaxBytesReader(w, r.Body, maxBytes*4/3+formOverhead)
		in, err = h.readJSONSubmit(r)
	}
	if err != nil {
		writeError(w, h.logger, err)
		return
	}

	res, err := h.artworks.Submit(r.Context(), in)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, res)
}

func (h *ArtworkHandler) readMultipart(r *http.Request, maxBytes int64) (service.SubmitInput, error) {
	if err := r.ParseMultipartForm(maxBytes + formOverhead); err != nil {
		var tooBig *http.MaxBytesError
		if errors.As(err, &tooBig) {
			return service.SubmitInput{}, apperror.TooLarge("image", maxBytes)
		}
		return service.SubmitInput{}, apperror.ValidationFailed("body", "invalid multipart form")
	}

	in := service.SubmitInput{
		Title:   r.FormValue("title"),
		X:       r.FormValue("x"),
		Discord: r.FormValue("discord"),
		PostURL: r.FormValue("postUrl"),
		Ticket:  r.FormValue("ticket"),
	}

	f, _, err := r.FormFile("image")
	if errors.Is(err, http.ErrMissingFile) {
		return in, nil
	}
	if err != nil {
		return in, apperror.ValidationFailed("image", "invalid image upload")
	}
	defer f.Close()

	data, err := io.ReadAll(io.LimitReader(f, maxBytes+1))
	if err != nil {
		return in, err
	}
	if int64(len(data)) > maxBytes {
		return in, apperror.TooLarge("image", maxBytes)
	}
	in.Image = data
	return in, nil
}

func (h *ArtworkHandler) readJSONSubmit(r *http.Request) (service.SubmitInput, error) {
	var req submitRequest
	if err := decodeJSON(r, &req, false); err != nil {
		return service.SubmitInput{}, err
	}

	in := service.SubmitInput{
		Title:   req.Title,
		X:       req.X,
		Discord: req.Discord,
		PostURL: req.PostURL,
		Ticket:  req.Ticket,
	}
	if req.Image != "" {
		data, _, err := imaging.DecodeDataURL(req.Image)
		if err != nil {
			return in, apperror.ValidationFailed("image", "image must be a base64 data URL of a png, jpeg, gif or webp")
		}
		in.Image = data
	}
	return in, nil
}

// HandlePatch serves PATCH /api/artworks/{id}.
func (h *ArtworkHandler) HandlePatch(w http.ResponseWriter, r *http.Request) {
	var p model.Patch
	if err := decodeJSON(r, &p, false); err != nil {
		writeError(w, h.logger, err)
		return
	}

	a, err := h.artworks.Patch(r.Context(), chi.URLParam(r, "id"), r.Header.Get(OwnerTokenHeader), p)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, a)
}

// HandleDelete serves DELETE /api/artworks/{id}. Either the owner token or
// the admin key authorises it.
func (h *ArtworkHandler) HandleDelete(w http.ResponseWriter, r *http.Request) {
	token := r.Header.Get(OwnerTokenHeader)
	admin := h.admin.IsAdmin(r)
	if !admin && token == "" && r.Header.Get(auth.AdminKeyHeader) != "" {
		writeError(w, h.logger, apperror.Forbidden("invalid admin key"))
		return
	}

	if err := h.artworks.Delete(r.Context(), chi.URLParam(r, "id"), token, admin); err != nil {
		writeError(w, h.logger, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// HandleCreateUpload serves POST /api/uploads: {"contentType": "image/png"}.
func (h *ArtworkHandler) HandleCreateUpload(w http.ResponseWriter, r *http.Request) {
	var req struct {
		ContentType string `json:"contentType"`
	}
	r.Body = http.MaxBytesReader(w, r.Body, formOverhead)
	if err := decodeJSON(r, &req, false); err != nil {
		writeError(w, h.logger, err)
		return
	}

	slot, err := h.artworks.IssueUploadSlot(r.Context(), req.ContentType)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, slot)
}

// HandlePutUpload serves PUT /api/uploads/{id} with the raw image as body
// and "Authorization: Bearer <ticket>".
func (h *ArtworkHandler) HandlePutUpload(w http.ResponseWriter, r *http.Request) {
	ticket, ok := bearer(r)
	if !ok {
		writeError(w, h.logger, apperror.Unauthorized("upload ticket required"))
		return
	}

	maxBytes := h.artworks.MaxUploadBytes()
	data, err := io.ReadAll(io.LimitReader(r.Body, maxBytes+1))
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	if int64(len(data)) > maxBytes {
		writeError(w, h.logger, apperror.TooLarge("image", maxBytes))
		return
	}

	if err := h.artworks.StoreUpload(r.Context(), chi.URLParam(r, "id"), ticket, data); err != nil {
		writeError(w, h.logger, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func bearer(r *http.Request) (string, bool) {
	h := r.Header.Get("Authorization")
	const prefix = "Bearer "
	if len(h) <= len(prefix) || !strings.EqualFold(h[:len(prefix)], prefix) {
		return "", false
	}
	return strings.TrimSpace(h[len(prefix):]), true
}

// queryInt parses an optional integer query parameter; absent is zero.
func queryInt(r *http.Request, name string) (int, error) {
	v := r.URL.Query().Get(name)
	if v == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		return 0, apperror.ValidationFailed(name, name+" must be a non-negative integer")
	}
	return n, nil
}
