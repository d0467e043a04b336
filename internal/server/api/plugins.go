package api

import (
	"errors"
	"net/http"

	"github.com/ayusman/tabletouch/internal/plugin"
	"github.com/ayusman/tabletouch/internal/store"
)

// PluginHandler lists the discovered plugins.
type PluginHandler struct {
	plugins *plugin.Manager
}

// NewPluginHandler creates a new PluginHandler.
func NewPluginHandler(m *plugin.Manager) *PluginHandler {
	return &PluginHandler{plugins: m}
}

type pluginResponse struct {
	Name        string   `json:"name"`
	Version     string   `json:"version"`
	Description string   `json:"description"`
	Actions     []string `json:"actions"`
}

// ServeHTTP handles GET /api/plugins. POST rescans the plugin directory.
// Directories skipped by the last scan are listed under "rejected" with the
// reason.
func (h *PluginHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
	case http.MethodPost:
		if err := h.plugins.Discover(); err != nil {
			writeError(w, http.StatusInternalServerError, "Failed to discover plugins")
			return
		}
	default:
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	list := h.plugins.List()
	out := make([]pluginResponse, 0, len(list))
	for _, p := range list {
		actions := p.Manifest.Actions
		if actions == nil {
			actions = []string{}
		}
		out = append(out, pluginResponse{
			Name:        p.Manifest.Name,
			Version:     p.Manifest.Version,
			Description: p.Manifest.Description,
			Actions:     actions,
		})
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"plugins":  out,
		"rejected": h.plugins.Rejected(),
	})
}

// ContactHandler serves the persisted contact log.
type ContactHandler struct {
	store *store.Store
}

// NewContactHandler creates a new ContactHandler.
func NewContactHandler(s *store.Store) *ContactHandler {
	return &ContactHandler{store: s}
}

type contactResponse struct {
	ID            int64   `json:"id"`
	CalibrationID string  `json:"calibration_id,omitempty"`
	ControlID     string  `json:"control_id"`
	ControlType   string  `json:"control_type"`
	Difference    float64 `json:"difference"`
	Timestamp     int64   `json:"timestamp"`
	CreatedAt     string  `json:"created_at"`
}

// ServeHTTP routes:
//
//	GET /api/contacts?limit=N                    newest first
//	GET /api/contacts/summary?calibration={id}   events per control
func (h *ContactHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	switch parts := splitPath(r.URL.Path, "/api/contacts"); {
	case len(parts) == 0:
	case len(parts) == 1 && parts[0] == "summary":
		h.summary(w, r)
		return
	default:
		http.NotFound(w, r)
		return
	}

	records, err := h.store.Contacts().Recent(queryInt(r, "limit", 50, 1000))
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list contacts")
		return
	}

	out := make([]contactResponse, 0, len(records))
	for _, c := range records {
		out = append(out, contactResponse{
			ID:            c.ID,
			CalibrationID: c.CalibrationID.String,
			ControlID:     c.ControlID,
			ControlType:   c.ControlType,
			Difference:    c.Difference,
			Timestamp:     c.FrameTS,
			CreatedAt:     formatTime(c.CreatedAt),
		})
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"contacts": out})
}

// summary counts logged events per control. Without a calibration parameter
// the latest committed calibration is used.
func (h *ContactHandler) summary(w http.ResponseWriter, r *http.Request) {
	id := r.URL.Query().Get("calibration")
	if id == "" {
		latest, err := h.store.Calibrations().Latest()
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "No calibration committed")
			return
		}
		if err != nil {
			writeError(w, http.StatusInternalServerError, "Failed to load calibration")
			return
		}
		id = latest.ID
	}

	counts, err := h.store.Contacts().CountByControl(id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to count contacts")
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"calibration_id": id, "counts": counts})
}
