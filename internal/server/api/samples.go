package api

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/ayusman/tabletouch/internal/app"
	"github.com/ayusman/tabletouch/internal/store"
	"github.com/ayusman/tabletouch/internal/surface"
	"github.com/ayusman/tabletouch/internal/training"
)

// SamplesHandler handles HTTP requests for shape training samples.
type SamplesHandler struct {
	store   *store.Store
	app     *app.App
	trainer *training.Service
}

// NewSamplesHandler creates a new SamplesHandler.
func NewSamplesHandler(s *store.Store, a *app.App, t *training.Service) *SamplesHandler {
	return &SamplesHandler{store: s, app: a, trainer: t}
}

type captureRequest struct {
	Label string `json:"label" validate:"required,oneof=square circle slider"`
}

type importRequest struct {
	Dir string `json:"dir" validate:"required"`
}

type sampleResponse struct {
	ID        int64  `json:"id"`
	Label     string `json:"label"`
	Width     int    `json:"width"`
	Height    int    `json:"height"`
	CreatedAt string `json:"created_at"`
}

type listSamplesResponse struct {
	Counts  map[string]int   `json:"counts"`
	Samples []sampleResponse `json:"samples"`
}

// ServeHTTP routes:
//
//	GET    /api/samples
//	DELETE /api/samples
//	POST   /api/samples/capture
//	POST   /api/samples/import
//	GET    /api/samples/{id}/image
//	DELETE /api/samples/{id}
func (h *SamplesHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	parts := splitPath(r.URL.Path, "/api/samples")

	switch {
	case len(parts) == 0:
		switch r.Method {
		case http.MethodGet:
			h.list(w, r)
		case http.MethodDelete:
			h.deleteAll(w, r)
		default:
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		}
	case len(parts) == 1 && parts[0] == "capture":
		if r.Method != http.MethodPost {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}
		h.capture(w, r)
	case len(parts) == 1 && parts[0] == "import":
		if r.Method != http.MethodPost {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}
		h.importDir(w, r)
	default:
		id, err := strconv.ParseInt(parts[0], 10, 64)
		if err != nil || len(parts) > 2 || (len(parts) == 2 && parts[1] != "image") {
			writeError(w, http.StatusNotFound, "Not found")
			return
		}
		switch {
		case len(parts) == 2 && r.Method == http.MethodGet:
			h.image(w, r, id)
		case len(parts) == 1 && r.Method == http.MethodDelete:
			h.delete(w, r, id)
		default:
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		}
	}
}

func (h *SamplesHandler) list(w http.ResponseWriter, r *http.Request) {
	samples, err := h.store.Samples().List()
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list samples")
		return
	}

	resp := listSamplesResponse{
		Counts:  make(map[string]int, len(surface.ControlTypes)),
		Samples: make([]sampleResponse, 0, len(samples)),
	}
	for _, t := range surface.ControlTypes {
		resp.Counts[t.String()] = 0
	}
	for _, s := range samples {
		resp.Counts[s.Label.String()]++
		resp.Samples = append(resp.Samples, sampleResponse{
			ID:        s.ID,
			Label:     s.Label.String(),
			Width:     s.Width,
			Height:    s.Height,
			CreatedAt: formatTime(s.CreatedAt),
		})
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *SamplesHandler) capture(w http.ResponseWriter, r *http.Request) {
	var req captureRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Label must be one of square, circle, slider")
		return
	}

	err := h.app.CaptureSamples(surface.ParseControlType(req.Label))
	switch {
	case err == nil:
		writeJSON(w, http.StatusAccepted, map[string]string{"status": "armed", "label": req.Label})
	case errors.Is(err, app.ErrAlreadyRunning):
		writeError(w, http.StatusConflict, "Samples can only be captured while calibrating")
	default:
		writeError(w, http.StatusInternalServerError, "Failed to arm capture")
	}
}

func (h *SamplesHandler) importDir(w http.ResponseWriter, r *http.Request) {
	var req importRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Dir is required")
		return
	}

	n, err := h.trainer.ImportDir(r.Context(), req.Dir)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Failed to import samples")
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"imported": n})
}

func (h *SamplesHandler) image(w http.ResponseWriter, r *http.Request, id int64) {
	s, err := h.store.Samples().GetByID(id)
	if errors.Is(err, store.ErrNotFound) {
		writeError(w, http.StatusNotFound, "Sample not found")
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to get sample")
		return
	}

	w.Header().Set("Content-Type", "image/png")
	w.WriteHeader(http.StatusOK)
	w.Write(s.Image)
}

func (h *SamplesHandler) delete(w http.ResponseWriter, r *http.Request, id int64) {
	err := h.store.Samples().Delete(id)
	if errors.Is(err, store.ErrNotFound) {
		writeError(w, http.StatusNotFound, "Sample not found")
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to delete sample")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *SamplesHandler) deleteAll(w http.ResponseWriter, r *http.Request) {
	n, err := h.store.Samples().DeleteAll()
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to delete samples")
		return
	}
	writeJSON(w, http.StatusOK, map[string]int64{"deleted": n})
}
