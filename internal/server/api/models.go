package api

import (
	"errors"
	"net/http"

	"github.com/ayusman/tabletouch/internal/app"
	"github.com/ayusman/tabletouch/internal/classifier"
	"github.com/ayusman/tabletouch/internal/store"
	"github.com/ayusman/tabletouch/internal/training"
)

// ModelHandler trains and manages classifier models.
type ModelHandler struct {
	store   *store.Store
	app     *app.App
	trainer *training.Service
}

// NewModelHandler creates a new ModelHandler.
func NewModelHandler(s *store.Store, a *app.App, t *training.Service) *ModelHandler {
	return &ModelHandler{store: s, app: a, trainer: t}
}

type trainRequest struct {
	Name     string `json:"name" validate:"omitempty,max=64"`
	Activate *bool  `json:"activate"`
}

type modelResponse struct {
	ID        string  `json:"id"`
	Name      string  `json:"name"`
	Samples   int     `json:"samples"`
	Accuracy  float64 `json:"accuracy"`
	Active    bool    `json:"active"`
	PatchSize int     `json:"patch_size"`
	Features  int     `json:"features"`
	CreatedAt string  `json:"created_at"`
}

type trainResponse struct {
	Model      modelResponse `json:"model"`
	Skipped    int           `json:"skipped"`
	Epochs     int           `json:"epochs"`
	DurationMS int64         `json:"duration_ms"`
}

func toModel(m *store.ModelRecord) modelResponse {
	return modelResponse{
		ID:        m.ID,
		Name:      m.Name,
		Samples:   m.Samples,
		Accuracy:  m.Accuracy,
		Active:    m.Active,
		PatchSize: m.Descriptor.PatchSize,
		Features:  m.Descriptor.Len(),
		CreatedAt: formatTime(m.CreatedAt),
	}
}

// ServeHTTP routes:
//
//	GET    /api/models
//	POST   /api/models
//	GET    /api/models/{id}
//	DELETE /api/models/{id}
//	POST   /api/models/{id}/activate
func (h *ModelHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	parts := splitPath(r.URL.Path, "/api/models")

	switch len(parts) {
	case 0:
		switch r.Method {
		case http.MethodGet:
			h.list(w, r)
		case http.MethodPost:
			h.train(w, r)
		default:
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		}
	case 1:
		switch r.Method {
		case http.MethodGet:
			h.get(w, r, parts[0])
		case http.MethodDelete:
			h.delete(w, r, parts[0])
		default:
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		}
	case 2:
		if parts[1] != "activate" {
			writeError(w, http.StatusNotFound, "Not found")
			return
		}
		if r.Method != http.MethodPost {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}
		h.activate(w, r, parts[0])
	default:
		writeError(w, http.StatusNotFound, "Not found")
	}
}

func (h *ModelHandler) list(w http.ResponseWriter, r *http.Request) {
	models, err := h.store.Models().List()
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list models")
		return
	}

	out := make([]modelResponse, 0, len(models))
	for i := range models {
		out = append(out, toModel(&models[i]))
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"models": out})
}

func (h *ModelHandler) get(w http.ResponseWriter, r *http.Request, id string) {
	m, err := h.store.Models().GetByID(id)
	if errors.Is(err, store.ErrNotFound) {
		writeError(w, http.StatusNotFound, "Model not found")
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to get model")
		return
	}
	writeJSON(w, http.StatusOK, toModel(m))
}

func (h *ModelHandler) train(w http.ResponseWriter, r *http.Request) {
	var req trainRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid training request")
		return
	}
	activate := req.Activate == nil || *req.Activate

	report, err := h.trainer.Train(r.Context(), req.Name, activate)
	if errors.Is(err, classifier.ErrNoSamples) || errors.Is(err, training.ErrTooFewLabels) {
		writeError(w, http.StatusUnprocessableEntity, err.Error())
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to train model")
		return
	}

	writeJSON(w, http.StatusCreated, trainResponse{
		Model:      toModel(report.Model),
		Skipped:    report.Skipped,
		Epochs:     report.Result.Epochs,
		DurationMS: report.Duration.Milliseconds(),
	})
}

func (h *ModelHandler) activate(w http.ResponseWriter, r *http.Request, id string) {
	err := h.trainer.Activate(id)
	if errors.Is(err, store.ErrNotFound) {
		writeError(w, http.StatusNotFound, "Model not found")
		return
	}
	if errors.Is(err, classifier.ErrDescriptorMismatch) {
		writeError(w, http.StatusConflict, "Model descriptor does not match the classifier")
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to activate model")
		return
	}

	m, err := h.store.Models().GetByID(id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to get model")
		return
	}
	writeJSON(w, http.StatusOK, toModel(m))
}

func (h *ModelHandler) delete(w http.ResponseWriter, r *http.Request, id string) {
	err := h.store.Models().Delete(id)
	if errors.Is(err, store.ErrNotFound) {
		writeError(w, http.StatusNotFound, "Model not found")
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to delete model")
		return
	}

	// the deleted model may have been the active one
	if err := h.app.ReloadModel(); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to reload model")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
