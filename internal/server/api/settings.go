package api

import (
	"errors"
	"net/http"

	"github.com/ayusman/tabletouch/internal/store"
)

// SettingsHandler exposes the operator key-value settings.
type SettingsHandler struct {
	store *store.Store
}

// NewSettingsHandler creates a new SettingsHandler.
func NewSettingsHandler(s *store.Store) *SettingsHandler {
	return &SettingsHandler{store: s}
}

type settingRequest struct {
	Value *string `json:"value" validate:"required"`
}

// ServeHTTP routes:
//
//	GET /api/settings
//	GET /api/settings/{key}
//	PUT /api/settings/{key}
func (h *SettingsHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	parts := splitPath(r.URL.Path, "/api/settings")

	switch {
	case len(parts) == 0 && r.Method == http.MethodGet:
		all, err := h.store.Settings().All()
		if err != nil {
			writeError(w, http.StatusInternalServerError, "Failed to load settings")
			return
		}
		writeJSON(w, http.StatusOK, map[string]interface{}{"settings": all})
	case len(parts) == 1 && r.Method == http.MethodGet:
		value, err := h.store.Settings().Get(parts[0])
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "Setting not found")
			return
		}
		if err != nil {
			writeError(w, http.StatusInternalServerError, "Failed to load setting")
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"key": parts[0], "value": value})
	case len(parts) == 1 && r.Method == http.MethodPut:
		var req settingRequest
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, "Invalid request body")
			return
		}
		if err := h.store.Settings().Set(parts[0], *req.Value); err != nil {
			writeError(w, http.StatusInternalServerError, "Failed to save setting")
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"key": parts[0], "value": *req.Value})
	case len(parts) <= 1:
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
	default:
		http.NotFound(w, r)
	}
}
