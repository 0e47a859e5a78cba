package handlers

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"skiff/internal/core"
	"skiff/internal/feed/models"
	"skiff/internal/feed/services"
	"skiff/internal/feed/store"
	"skiff/internal/sync/cloud"
)

// FeedHandler serves the feed subscription endpoints
type FeedHandler struct {
	logger  *core.Logger
	feeds   *store.FeedStore
	refresh *services.RefreshService
	cloud   *cloud.Engine
}

// NewFeedHandler creates a feed handler. The cloud engine may be nil when
// cloud sync is disabled.
func NewFeedHandler(logger *core.Logger, feeds *store.FeedStore, refresh *services.RefreshService, cloudEngine *cloud.Engine) *FeedHandler {
	return &FeedHandler{
		logger:  logger.ForComponent("feeds-api"),
		feeds:   feeds,
		refresh: refresh,
		cloud:   cloudEngine,
	}
}

// ListFeeds returns all subscribed feeds
func (h *FeedHandler) ListFeeds(w http.ResponseWriter, r *http.Request) {
	feeds, err := h.feeds.List(r.Context())
	if err != nil {
		h.logger.Error("Failed to list feeds", "error", err)
		core.HandleError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{"feeds": feeds})
}

// GetFeed returns a single feed by id
func (h *FeedHandler) GetFeed(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	feed, err := h.feeds.GetByID(r.Context(), id)
	if err != nil {
		core.HandleError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{"feed": feed})
}

// Subscribe fetches a new feed URL, stores the subscription and ingests
// its current entries
func (h *FeedHandler) Subscribe(w http.ResponseWriter, r *http.Request) {
	var req struct {
		URL      string  `json:"url"`
		FolderID *string `json:"folder_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		core.HandleError(w, core.NewValidationError("invalid request body", err))
		return
	}
	if req.URL == "" {
		core.HandleError(w, core.NewValidationError("url is required", nil))
		return
	}

	feed, err := h.refresh.Subscribe(r.Context(), req.URL, req.FolderID)
	if err != nil {
		h.logger.Error("Failed to subscribe", "url", req.URL, "error", err)
		core.HandleError(w, err)
		return
	}

	h.noteChanged(r, feed)
	writeJSON(w, http.StatusCreated, map[string]interface{}{"feed": feed})
}

// UpdateFeed applies a partial update to a feed
func (h *FeedHandler) UpdateFeed(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	var update models.FeedUpdate
	if err := json.NewDecoder(r.Body).Decode(&update); err != nil {
		core.HandleError(w, core.NewValidationError("invalid request body", err))
		return
	}

	feed, err := h.feeds.Update(r.Context(), id, &update)
	if err != nil {
		h.logger.Error("Failed to update feed", "id", id, "error", err)
		core.HandleError(w, err)
		return
	}

	h.noteChanged(r, feed)
	writeJSON(w, http.StatusOK, map[string]interface{}{"feed": feed})
}

// DeleteFeed removes a feed and its articles
func (h *FeedHandler) DeleteFeed(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	if err := h.feeds.Delete(r.Context(), id); err != nil {
		core.HandleError(w, err)
		return
	}

	if h.cloud != nil {
		if err := h.cloud.NoteFeedDeleted(r.Context(), id); err != nil {
			h.logger.Error("Failed to queue feed deletion", "id", id, "error", err)
		}
	}

	w.WriteHeader(http.StatusNoContent)
}

// RefreshFeed fetches and merges one feed immediately
func (h *FeedHandler) RefreshFeed(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	ingested, err := h.refresh.RefreshFeedByID(r.Context(), id)
	if err != nil {
		h.logger.Error("Failed to refresh feed", "id", id, "error", err)
		core.HandleError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{"ingested": ingested})
}

// RefreshAll triggers a refresh cycle over every refreshable feed. The
// cycle outlives the request, so it runs against a fresh context.
func (h *FeedHandler) RefreshAll(w http.ResponseWriter, r *http.Request) {
	go h.refresh.RefreshAll(context.Background())
	w.WriteHeader(http.StatusAccepted)
}

func (h *FeedHandler) noteChanged(r *http.Request, feed *models.Feed) {
	if h.cloud == nil {
		return
	}
	if err := h.cloud.NoteFeedChanged(r.Context(), feed); err != nil {
		h.logger.Error("Failed to queue feed change", "id", feed.ID, "error", err)
	}
}
