package handlers

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"skiff/internal/core"
	"skiff/internal/feed/models"
	"skiff/internal/feed/reader"
	"skiff/internal/feed/store"
	"skiff/internal/sync/cloud"
	"skiff/internal/sync/fever"
)

// ArticleHandler serves the article list and user-state endpoints
type ArticleHandler struct {
	logger    *core.Logger
	articles  *store.ArticleStore
	extractor *reader.Extractor
	cloud     *cloud.Engine
	fever     *fever.Engine
}

// NewArticleHandler creates an article handler. The cloud and fever
// engines may be nil when the corresponding sync is disabled.
func NewArticleHandler(logger *core.Logger, articles *store.ArticleStore, extractor *reader.Extractor, cloudEngine *cloud.Engine, feverEngine *fever.Engine) *ArticleHandler {
	return &ArticleHandler{
		logger:    logger.ForComponent("articles-api"),
		articles:  articles,
		extractor: extractor,
		cloud:     cloudEngine,
		fever:     feverEngine,
	}
}

// ListArticles returns articles filtered by the query string
func (h *ArticleHandler) ListArticles(w http.ResponseWriter, r *http.Request) {
	params := listParamsFromQuery(r)

	articles, err := h.articles.List(r.Context(), params)
	if err != nil {
		h.logger.Error("Failed to list articles", "error", err)
		core.HandleError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{"articles": articles})
}

// GetArticle returns a single article by id
func (h *ArticleHandler) GetArticle(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	article, err := h.articles.GetByID(r.Context(), id)
	if err != nil {
		core.HandleError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{"article": article})
}

// SetRead marks an article read or unread. This is the explicit user
// action; sync merges can only move the flag towards read.
func (h *ArticleHandler) SetRead(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	var req struct {
		Read bool `json:"read"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		core.HandleError(w, core.NewValidationError("invalid request body", err))
		return
	}

	if err := h.articles.SetRead(r.Context(), id, req.Read); err != nil {
		core.HandleError(w, err)
		return
	}

	article := h.noteStateChanged(r, id)
	if article != nil && article.RemoteID != "" && h.fever != nil {
		if err := h.fever.MarkRead(r.Context(), article.RemoteID, req.Read); err != nil {
			h.logger.Error("Failed to mirror read state", "article_id", id, "error", err)
		}
	}

	w.WriteHeader(http.StatusNoContent)
}

// SetStarred stars or unstars an article
func (h *ArticleHandler) SetStarred(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	var req struct {
		Starred bool `json:"starred"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		core.HandleError(w, core.NewValidationError("invalid request body", err))
		return
	}

	if err := h.articles.SetStarred(r.Context(), id, req.Starred); err != nil {
		core.HandleError(w, err)
		return
	}

	article := h.noteStateChanged(r, id)
	if article != nil && article.RemoteID != "" && h.fever != nil {
		if err := h.fever.MarkSaved(r.Context(), article.RemoteID, req.Starred); err != nil {
			h.logger.Error("Failed to mirror starred state", "article_id", id, "error", err)
		}
	}

	w.WriteHeader(http.StatusNoContent)
}

// AdvancePlayback records a playback position. Positions only move
// forward; a stale report never rewinds the stored position.
func (h *ArticleHandler) AdvancePlayback(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	var req struct {
		Position int `json:"position"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		core.HandleError(w, core.NewValidationError("invalid request body", err))
		return
	}
	if req.Position < 0 {
		core.HandleError(w, core.NewValidationError("position must not be negative", nil))
		return
	}

	if err := h.articles.AdvancePlayback(r.Context(), id, req.Position); err != nil {
		core.HandleError(w, err)
		return
	}

	h.noteStateChanged(r, id)
	w.WriteHeader(http.StatusNoContent)
}

// PrefetchReader extracts the readable article body from the source page
// and stores it for offline reading
func (h *ArticleHandler) PrefetchReader(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	article, err := h.articles.GetByID(r.Context(), id)
	if err != nil {
		core.HandleError(w, err)
		return
	}

	if err := h.extractor.Prefetch(r.Context(), article); err != nil {
		h.logger.Error("Failed to prefetch reader content", "article_id", id, "error", err)
		core.HandleError(w, err)
		return
	}

	article, err = h.articles.GetByID(r.Context(), id)
	if err != nil {
		core.HandleError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{"article": article})
}

// noteStateChanged re-reads the article and queues its state for cloud
// sync. Returns the fresh article for callers that mirror to other
// backends, or nil if the re-read failed.
func (h *ArticleHandler) noteStateChanged(r *http.Request, id string) *models.Article {
	article, err := h.articles.GetByID(r.Context(), id)
	if err != nil {
		h.logger.Error("Failed to re-read article after state change", "article_id", id, "error", err)
		return nil
	}

	if h.cloud != nil {
		if err := h.cloud.NoteArticleState(r.Context(), article); err != nil {
			h.logger.Error("Failed to queue article state", "article_id", id, "error", err)
		}
	}
	return article
}

func listParamsFromQuery(r *http.Request) *models.ArticleListParams {
	query := r.URL.Query()
	params := &models.ArticleListParams{
		Search: query.Get("search"),
		Limit:  50,
	}

	if value := query.Get("feed_id"); value != "" {
		params.FeedID = &value
	}
	if value := query.Get("folder_id"); value != "" {
		params.FolderID = &value
	}
	if value := query.Get("unread"); value == "true" {
		isRead := false
		params.IsRead = &isRead
	}
	if value := query.Get("starred"); value == "true" {
		isStarred := true
		params.IsStarred = &isStarred
	}
	if value := query.Get("limit"); value != "" {
		if limit, err := strconv.Atoi(value); err == nil && limit > 0 {
			params.Limit = limit
		}
	}
	if value := query.Get("offset"); value != "" {
		if offset, err := strconv.Atoi(value); err == nil && offset >= 0 {
			params.Offset = offset
		}
	}

	return params
}
