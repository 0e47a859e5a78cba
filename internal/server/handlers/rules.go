package handlers

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"skiff/internal/core"
	"skiff/internal/feed/models"
	"skiff/internal/feed/store"
)

// RuleHandler serves the filter rule endpoints
type RuleHandler struct {
	logger *core.Logger
	rules  *store.RuleStore
}

// NewRuleHandler creates a rule handler
func NewRuleHandler(logger *core.Logger, rules *store.RuleStore) *RuleHandler {
	return &RuleHandler{
		logger: logger.ForComponent("rules-api"),
		rules:  rules,
	}
}

// ListRules returns the enabled filter rules
func (h *RuleHandler) ListRules(w http.ResponseWriter, r *http.Request) {
	rules, err := h.rules.ListEnabled(r.Context())
	if err != nil {
		h.logger.Error("Failed to list rules", "error", err)
		core.HandleError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{"rules": rules})
}

// CreateRule creates a new filter rule
func (h *RuleHandler) CreateRule(w http.ResponseWriter, r *http.Request) {
	var rule models.FilterRule
	if err := json.NewDecoder(r.Body).Decode(&rule); err != nil {
		core.HandleError(w, core.NewValidationError("invalid request body", err))
		return
	}

	created, err := h.rules.Create(r.Context(), &rule)
	if err != nil {
		h.logger.Error("Failed to create rule", "error", err)
		core.HandleError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, map[string]interface{}{"rule": created})
}

// SetRuleEnabled toggles a rule on or off
func (h *RuleHandler) SetRuleEnabled(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		core.HandleError(w, core.NewValidationError("invalid rule id", err))
		return
	}

	var req struct {
		Enabled bool `json:"enabled"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		core.HandleError(w, core.NewValidationError("invalid request body", err))
		return
	}

	if err := h.rules.SetEnabled(r.Context(), id, req.Enabled); err != nil {
		core.HandleError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// DeleteRule removes a filter rule
func (h *RuleHandler) DeleteRule(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		core.HandleError(w, core.NewValidationError("invalid rule id", err))
		return
	}

	if err := h.rules.Delete(r.Context(), id); err != nil {
		core.HandleError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}
