package api

import (
	"errors"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/starford/craftwiki/internal/apperr"
	"github.com/starford/craftwiki/internal/checksum"
	"github.com/starford/craftwiki/internal/metrics"
	"github.com/starford/craftwiki/internal/summary"
)

// Handler holds API route handlers.
type Handler struct {
	svc *summary.Service
	log *slog.Logger
}

// NewHandler creates a new Handler.
func NewHandler(svc *summary.Service, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{svc: svc, log: logger}
}

// pageSlug extracts the slug from the URL (everything after /pages/).
// Encoded slashes (guides%2Fintro) are accepted.
func pageSlug(r *http.Request) string {
	raw := strings.Trim(chi.URLParam(r, "*"), "/")
	if raw == "" {
		return ""
	}
	decoded, err := url.PathUnescape(raw)
	if err != nil {
		return raw
	}
	return decoded
}

// GetSummary handles GET /summary.
//
//	@Summary		Current SUMMARY.md text generated from the store
//	@Tags			summary
//	@Produce		text/markdown
//	@Success		200	{string}	string
//	@Success		304	"Not modified"
//	@Security		BearerAuth
//	@Router			/summary [get]
func (h *Handler) GetSummary(w http.ResponseWriter, r *http.Request) {
	text, err := h.svc.PullCurrentOutlineText(r.Context())
	if err != nil {
		h.log.Error("pull outline failed", slog.String("error", err.Error()))
		writeJSON(w, http.StatusInternalServerError, errorBody("internal error"))
		return
	}
	tag := etag(checksum.Sum([]byte(text)))
	w.Header().Set("ETag", tag)
	if r.Header.Get("If-None-Match") == tag {
		w.WriteHeader(http.StatusNotModified)
		return
	}
	w.Header().Set("Content-Type", "text/markdown; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(text))
}

// PutSummary handles PUT /summary.
//
//	@Summary		Apply edited SUMMARY.md text to the store
//	@Tags			summary
//	@Accept			json,text/markdown
//	@Produce		json
//	@Param			If-Match	header		string			false	"ETag of the text the edit is based on"
//	@Param			body		body		ContentRequest	true	"Outline text"
//	@Success		200			{object}	SyncResult
//	@Failure		409			{object}	SyncResult
//	@Failure		422			{object}	SyncResult
//	@Failure		500			{object}	SyncResult
//	@Security		BearerAuth
//	@Router			/summary [put]
func (h *Handler) PutSummary(w http.ResponseWriter, r *http.Request) {
	text, err := readContent(w, r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody(err.Error()))
		return
	}

	res := h.svc.ApplyOutlineTextIfMatch(r.Context(), text, ifMatch(r))
	switch res.Outcome {
	case metrics.OutcomeSuccess:
		w.Header().Set("ETag", etag(checksum.Sum([]byte(res.Text))))
		writeJSON(w, http.StatusOK, res)
	case metrics.OutcomeInvalid:
		writeJSON(w, http.StatusUnprocessableEntity, res)
	case metrics.OutcomeConflict:
		writeJSON(w, http.StatusConflict, res)
	default:
		writeJSON(w, http.StatusInternalServerError, res)
	}
}

// GetOutline handles GET /outline.
//
//	@Summary		Current outline as a tree
//	@Tags			summary
//	@Produce		json
//	@Success		200	{object}	OutlineResponse
//	@Security		BearerAuth
//	@Router			/outline [get]
func (h *Handler) GetOutline(w http.ResponseWriter, r *http.Request) {
	nodes, err := h.svc.PullOutline(r.Context())
	if err != nil {
		h.log.Error("pull outline failed", slog.String("error", err.Error()))
		writeJSON(w, http.StatusInternalServerError, errorBody("internal error"))
		return
	}
	writeJSON(w, http.StatusOK, OutlineResponse{Nodes: nodes})
}

// GetPage handles GET /pages/*.
//
//	@Summary		Get a page by slug
//	@Tags			pages
//	@Produce		json
//	@Param			slug	path		string	true	"Page slug"
//	@Success		200		{object}	PageDetail
//	@Failure		404		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/pages/{slug} [get]
func (h *Handler) GetPage(w http.ResponseWriter, r *http.Request) {
	slug := pageSlug(r)
	if slug == "" {
		writeJSON(w, http.StatusBadRequest, errorBody("slug is required"))
		return
	}
	page, err := h.svc.GetPage(r.Context(), slug)
	if err != nil {
		h.pageError(w, slug, err)
		return
	}
	w.Header().Set("ETag", etag(page.Checksum))
	writeJSON(w, http.StatusOK, page)
}

// UpdatePage handles PUT /pages/*.
//
//	@Summary		Replace a page body with optimistic concurrency
//	@Tags			pages
//	@Accept			json,text/markdown
//	@Produce		json
//	@Param			slug		path		string			true	"Page slug"
//	@Param			If-Match	header		string			false	"Checksum of the body being replaced"
//	@Param			body		body		ContentRequest	true	"New body"
//	@Success		200			{object}	PageDetail
//	@Failure		400			{object}	errResponse
//	@Failure		404			{object}	errResponse
//	@Failure		409			{object}	errResponse
//	@Security		BearerAuth
//	@Router			/pages/{slug} [put]
func (h *Handler) UpdatePage(w http.ResponseWriter, r *http.Request) {
	slug := pageSlug(r)
	if slug == "" {
		writeJSON(w, http.StatusBadRequest, errorBody("slug is required"))
		return
	}
	content, err := readContent(w, r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody(err.Error()))
		return
	}
	page, err := h.svc.UpdatePageContent(r.Context(), slug, content, ifMatch(r))
	if err != nil {
		h.pageError(w, slug, err)
		return
	}
	w.Header().Set("ETag", etag(page.Checksum))
	writeJSON(w, http.StatusOK, page)
}

func (h *Handler) pageError(w http.ResponseWriter, slug string, err error) {
	switch {
	case errors.Is(err, apperr.ErrNotFound):
		writeJSON(w, http.StatusNotFound, errorBody("not found"))
	case errors.Is(err, apperr.ErrConflict):
		writeJSON(w, http.StatusConflict, errorBody("checksum mismatch"))
	default:
		h.log.Error("page request failed", slog.String("slug", slug), slog.String("error", err.Error()))
		writeJSON(w, http.StatusInternalServerError, errorBody("internal error"))
	}
}

// Search handles GET /search.
//
//	@Summary		Search visible pages by title and body
//	@Tags			pages
//	@Produce		json
//	@Param			q		query		string	true	"Search query"
//	@Param			limit	query		int		false	"Max results"
//	@Success		200		{object}	SearchResponse
//	@Failure		400		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/search [get]
func (h *Handler) Search(w http.ResponseWriter, r *http.Request) {
	q := strings.TrimSpace(r.URL.Query().Get("q"))
	if q == "" {
		writeJSON(w, http.StatusBadRequest, errorBody("query parameter 'q' is required"))
		return
	}
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	results, err := h.svc.SearchPages(r.Context(), q, limit)
	if err != nil {
		h.log.Error("search failed", slog.String("query", q), slog.String("error", err.Error()))
		writeJSON(w, http.StatusInternalServerError, errorBody("internal error"))
		return
	}
	writeJSON(w, http.StatusOK, SearchResponse{Results: results})
}

// Export handles POST /export.
//
//	@Summary		Write SUMMARY.md and page files to the wiki directory
//	@Tags			summary
//	@Produce		json
//	@Success		200	{object}	ExportResult
//	@Failure		409	{object}	errResponse
//	@Security		BearerAuth
//	@Router			/export [post]
func (h *Handler) Export(w http.ResponseWriter, r *http.Request) {
	res, err := h.svc.Export(r.Context())
	if err != nil {
		if errors.Is(err, summary.ErrNoFiles) {
			writeJSON(w, http.StatusConflict, errorBody("no wiki directory configured"))
			return
		}
		h.log.Error("export failed", slog.String("error", err.Error()))
		writeJSON(w, http.StatusInternalServerError, errorBody("internal error"))
		return
	}
	writeJSON(w, http.StatusOK, res)
}
