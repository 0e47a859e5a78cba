package handlers

import (
	"context"
	"encoding/json"
	"net/http"

	"skiff/internal/core"
	"skiff/internal/sync/cloud"
	"skiff/internal/sync/fever"
)

// SyncHandler serves the sync trigger and status endpoints
type SyncHandler struct {
	logger      *core.Logger
	coordinator *cloud.Coordinator
	queue       *cloud.QueueStore
	cloud       *cloud.Engine
	fever       *fever.Engine
}

// NewSyncHandler creates a sync handler. Either engine may be nil when
// the corresponding sync is disabled.
func NewSyncHandler(logger *core.Logger, coordinator *cloud.Coordinator, queue *cloud.QueueStore, cloudEngine *cloud.Engine, feverEngine *fever.Engine) *SyncHandler {
	return &SyncHandler{
		logger:      logger.ForComponent("sync-api"),
		coordinator: coordinator,
		queue:       queue,
		cloud:       cloudEngine,
		fever:       feverEngine,
	}
}

// Status reports the coordinator state, the last sync error and the
// pending queue depth
func (h *SyncHandler) Status(w http.ResponseWriter, r *http.Request) {
	status := map[string]interface{}{
		"state":         h.coordinator.State().String(),
		"cloud_enabled": h.cloud != nil,
		"fever_enabled": h.fever != nil,
	}

	if err := h.coordinator.LastError(); err != nil {
		status["last_error"] = err.Error()
	}

	if h.queue != nil {
		pending, err := h.queue.Len(r.Context())
		if err != nil {
			core.HandleError(w, err)
			return
		}
		status["queue_pending"] = pending
	}

	writeJSON(w, http.StatusOK, status)
}

// TriggerFullSync starts a full cloud sync in the background
func (h *SyncHandler) TriggerFullSync(w http.ResponseWriter, r *http.Request) {
	if h.cloud == nil {
		core.HandleError(w, core.NewValidationError("cloud sync is not enabled", nil))
		return
	}

	go func() {
		if err := h.cloud.FullSync(context.Background()); err != nil {
			h.logger.Error("Full sync failed", "error", err)
		}
	}()

	w.WriteHeader(http.StatusAccepted)
}

// TriggerIncrementalSync starts an incremental cloud sync in the
// background
func (h *SyncHandler) TriggerIncrementalSync(w http.ResponseWriter, r *http.Request) {
	if h.cloud == nil {
		core.HandleError(w, core.NewValidationError("cloud sync is not enabled", nil))
		return
	}

	go func() {
		if err := h.cloud.IncrementalSync(context.Background()); err != nil {
			h.logger.Error("Incremental sync failed", "error", err)
		}
	}()

	w.WriteHeader(http.StatusAccepted)
}

// TriggerFeverSync runs a fever sync pass and waits for it to finish
func (h *SyncHandler) TriggerFeverSync(w http.ResponseWriter, r *http.Request) {
	if h.fever == nil {
		core.HandleError(w, core.NewValidationError("fever sync is not enabled", nil))
		return
	}

	if err := h.fever.Sync(r.Context()); err != nil {
		h.logger.Error("Fever sync failed", "error", err)
		core.HandleError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// writeJSON writes a JSON response body with the given status
func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
	}
}
