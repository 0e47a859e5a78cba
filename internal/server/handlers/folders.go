package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"skiff/internal/core"
	"skiff/internal/feed/store"
	"skiff/internal/sync/cloud"
)

// FolderHandler serves the folder endpoints
type FolderHandler struct {
	logger  *core.Logger
	folders *store.FolderStore
	cloud   *cloud.Engine
}

// NewFolderHandler creates a folder handler. The cloud engine may be nil
// when cloud sync is disabled.
func NewFolderHandler(logger *core.Logger, folders *store.FolderStore, cloudEngine *cloud.Engine) *FolderHandler {
	return &FolderHandler{
		logger:  logger.ForComponent("folders-api"),
		folders: folders,
		cloud:   cloudEngine,
	}
}

// ListFolders returns all folders in display order
func (h *FolderHandler) ListFolders(w http.ResponseWriter, r *http.Request) {
	folders, err := h.folders.List(r.Context())
	if err != nil {
		h.logger.Error("Failed to list folders", "error", err)
		core.HandleError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{"folders": folders})
}

// CreateFolder creates a new folder
func (h *FolderHandler) CreateFolder(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Name     string `json:"name"`
		Position int    `json:"position"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		core.HandleError(w, core.NewValidationError("invalid request body", err))
		return
	}
	if req.Name == "" {
		core.HandleError(w, core.NewValidationError("name is required", nil))
		return
	}

	folder, err := h.folders.Create(r.Context(), req.Name, req.Position)
	if err != nil {
		h.logger.Error("Failed to create folder", "name", req.Name, "error", err)
		core.HandleError(w, err)
		return
	}

	if h.cloud != nil {
		if err := h.cloud.NoteFolderChanged(r.Context(), folder); err != nil {
			h.logger.Error("Failed to queue folder change", "id", folder.ID, "error", err)
		}
	}

	writeJSON(w, http.StatusCreated, map[string]interface{}{"folder": folder})
}

// RenameFolder updates a folder's name and position
func (h *FolderHandler) RenameFolder(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	var req struct {
		Name     string `json:"name"`
		Position int    `json:"position"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		core.HandleError(w, core.NewValidationError("invalid request body", err))
		return
	}
	if req.Name == "" {
		core.HandleError(w, core.NewValidationError("name is required", nil))
		return
	}

	if err := h.folders.Rename(r.Context(), id, req.Name, req.Position); err != nil {
		h.logger.Error("Failed to rename folder", "id", id, "error", err)
		core.HandleError(w, err)
		return
	}

	folder, err := h.folders.GetByID(r.Context(), id)
	if err != nil {
		core.HandleError(w, err)
		return
	}

	if h.cloud != nil {
		if err := h.cloud.NoteFolderChanged(r.Context(), folder); err != nil {
			h.logger.Error("Failed to queue folder change", "id", id, "error", err)
		}
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{"folder": folder})
}

// DeleteFolder removes a folder; its feeds become unfiled
func (h *FolderHandler) DeleteFolder(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	if err := h.folders.Delete(r.Context(), id); err != nil {
		core.HandleError(w, err)
		return
	}

	if h.cloud != nil {
		if err := h.cloud.NoteFolderDeleted(r.Context(), id); err != nil {
			h.logger.Error("Failed to queue folder deletion", "id", id, "error", err)
		}
	}

	w.WriteHeader(http.StatusNoContent)
}
