package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/ayusman/tabletouch/internal/plugin"
	"github.com/ayusman/tabletouch/internal/store"
	"github.com/ayusman/tabletouch/internal/surface"
)

// BindingHandler handles HTTP requests for control-type to plugin bindings.
type BindingHandler struct {
	store   *store.Store
	plugins *plugin.Manager
}

// NewBindingHandler creates a new BindingHandler. When plugins is non-nil new
// bindings must name a discovered plugin and one of its actions.
func NewBindingHandler(s *store.Store, plugins *plugin.Manager) *BindingHandler {
	return &BindingHandler{store: s, plugins: plugins}
}

type createBindingRequest struct {
	ControlType string          `json:"control_type" validate:"required,oneof=square circle slider"`
	PluginName  string          `json:"plugin_name" validate:"required"`
	ActionName  string          `json:"action_name" validate:"required"`
	Config      json.RawMessage `json:"config"`
	Enabled     *bool           `json:"enabled"`
}

type updateBindingRequest struct {
	Enabled *bool `json:"enabled" validate:"required"`
}

type bindingResponse struct {
	ID          string          `json:"id"`
	ControlType string          `json:"control_type"`
	PluginName  string          `json:"plugin_name"`
	ActionName  string          `json:"action_name"`
	Config      json.RawMessage `json:"config"`
	Enabled     bool            `json:"enabled"`
	CreatedAt   string          `json:"created_at"`
}

type listBindingsResponse struct {
	Bindings []bindingResponse `json:"bindings"`
}

func toBinding(b *store.Binding) bindingResponse {
	return bindingResponse{
		ID:          b.ID,
		ControlType: b.ControlType.String(),
		PluginName:  b.PluginName,
		ActionName:  b.ActionName,
		Config:      b.Config,
		Enabled:     b.Enabled,
		CreatedAt:   formatTime(b.CreatedAt),
	}
}

// ServeHTTP implements the http.Handler interface and routes requests to appropriate methods.
func (h *BindingHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	parts := splitPath(r.URL.Path, "/api/bindings")

	switch len(parts) {
	case 0:
		switch r.Method {
		case http.MethodGet:
			h.list(w, r)
		case http.MethodPost:
			h.create(w, r)
		default:
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		}
	case 1:
		id := parts[0]
		switch r.Method {
		case http.MethodGet:
			h.get(w, r, id)
		case http.MethodPut:
			h.update(w, r, id)
		case http.MethodDelete:
			h.delete(w, r, id)
		default:
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		}
	default:
		writeError(w, http.StatusNotFound, "Not found")
	}
}

func (h *BindingHandler) list(w http.ResponseWriter, r *http.Request) {
	bindings, err := h.store.Bindings().List()
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list bindings")
		return
	}

	resp := listBindingsResponse{Bindings: make([]bindingResponse, 0, len(bindings))}
	for i := range bindings {
		resp.Bindings = append(resp.Bindings, toBinding(&bindings[i]))
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *BindingHandler) get(w http.ResponseWriter, r *http.Request, id string) {
	b, err := h.store.Bindings().GetByID(id)
	if errors.Is(err, store.ErrNotFound) {
		writeError(w, http.StatusNotFound, "Binding not found")
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to get binding")
		return
	}
	writeJSON(w, http.StatusOK, toBinding(b))
}

func (h *BindingHandler) create(w http.ResponseWriter, r *http.Request) {
	var req createBindingRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "control_type, plugin_name and action_name are required")
		return
	}
	if len(req.Config) > 0 && !json.Valid(req.Config) {
		writeError(w, http.StatusBadRequest, "Config must be valid JSON")
		return
	}

	if h.plugins != nil {
		p, err := h.plugins.Get(req.PluginName)
		if err != nil {
			writeError(w, http.StatusBadRequest, "Unknown plugin")
			return
		}
		if !p.Manifest.HasAction(req.ActionName) {
			writeError(w, http.StatusBadRequest, "Plugin does not provide this action")
			return
		}
	}

	b := &store.Binding{
		ControlType: surface.ParseControlType(req.ControlType),
		PluginName:  req.PluginName,
		ActionName:  req.ActionName,
		Config:      req.Config,
		Enabled:     req.Enabled == nil || *req.Enabled,
	}
	if err := h.store.Bindings().Create(b); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to create binding")
		return
	}
	if b.Config == nil {
		b.Config = json.RawMessage("{}")
	}
	writeJSON(w, http.StatusCreated, toBinding(b))
}

func (h *BindingHandler) update(w http.ResponseWriter, r *http.Request, id string) {
	var req updateBindingRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Enabled is required")
		return
	}

	err := h.store.Bindings().SetEnabled(id, *req.Enabled)
	if errors.Is(err, store.ErrNotFound) {
		writeError(w, http.StatusNotFound, "Binding not found")
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to update binding")
		return
	}

	h.get(w, r, id)
}

func (h *BindingHandler) delete(w http.ResponseWriter, r *http.Request, id string) {
	err := h.store.Bindings().Delete(id)
	if errors.Is(err, store.ErrNotFound) {
		writeError(w, http.StatusNotFound, "Binding not found")
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to delete binding")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
