package api

import (
	"errors"
	"net/http"
	"strings"

	"github.com/ayusman/tabletouch/internal/app"
	"github.com/ayusman/tabletouch/internal/sensor"
	"github.com/ayusman/tabletouch/internal/store"
	"github.com/ayusman/tabletouch/internal/surface"
)

// StateHandler reports the pipeline state.
type StateHandler struct {
	app *app.App
}

// NewStateHandler creates a new StateHandler.
func NewStateHandler(a *app.App) *StateHandler {
	return &StateHandler{app: a}
}

type stateResponse struct {
	app.State
	Controls    []controlResponse `json:"controls"`
	Pending     []controlResponse `json:"pending"`
	CommittedAt string            `json:"committed_at,omitempty"`
}

// ServeHTTP handles GET /api/state.
func (h *StateHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	s := h.app.State()
	cal := h.app.Calibration()
	writeJSON(w, http.StatusOK, stateResponse{
		State:       s,
		Controls:    toControls(s.Controls),
		Pending:     toControls(cal.Staged()),
		CommittedAt: formatTime(cal.CommittedAt()),
	})
}

// CalibrationHandler commits and restores control sets.
type CalibrationHandler struct {
	app   *app.App
	store *store.Store
}

// NewCalibrationHandler creates a new CalibrationHandler. The store may be nil.
func NewCalibrationHandler(a *app.App, s *store.Store) *CalibrationHandler {
	return &CalibrationHandler{app: a, store: s}
}

type calibrationResponse struct {
	ID          string            `json:"id"`
	ColorWidth  int               `json:"color_width"`
	ColorHeight int               `json:"color_height"`
	CommittedAt string            `json:"committed_at"`
	Controls    []controlResponse `json:"controls"`
}

type commitResponse struct {
	Controls []controlResponse `json:"controls"`
	Counts   map[string]int    `json:"counts"`
}

// ServeHTTP routes:
//
//	POST /api/calibration/commit
//	POST /api/calibration/resume
//	GET  /api/calibrations
//	GET  /api/calibrations/{id}
func (h *CalibrationHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if strings.HasPrefix(r.URL.Path, "/api/calibrations") {
		if r.Method != http.MethodGet {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}
		switch parts := splitPath(r.URL.Path, "/api/calibrations"); len(parts) {
		case 0:
			h.list(w, r)
		case 1:
			h.get(w, r, parts[0])
		default:
			writeError(w, http.StatusNotFound, "Not found")
		}
		return
	}

	parts := splitPath(r.URL.Path, "/api/calibration")
	if len(parts) != 1 {
		writeError(w, http.StatusNotFound, "Not found")
		return
	}
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	switch parts[0] {
	case "commit":
		h.commit(w, r)
	case "resume":
		h.resume(w, r)
	default:
		writeError(w, http.StatusNotFound, "Not found")
	}
}

func (h *CalibrationHandler) commit(w http.ResponseWriter, r *http.Request) {
	controls, err := h.app.Commit()
	if errors.Is(err, app.ErrAlreadyRunning) {
		writeError(w, http.StatusConflict, "Calibration already committed")
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to commit calibration")
		return
	}

	writeJSON(w, http.StatusOK, commitResponse{Controls: toControls(controls), Counts: countTypes(controls)})
}

func (h *CalibrationHandler) resume(w http.ResponseWriter, r *http.Request) {
	controls, err := h.app.ResumeCalibration()
	switch {
	case err == nil:
		writeJSON(w, http.StatusOK, commitResponse{Controls: toControls(controls), Counts: countTypes(controls)})
	case errors.Is(err, app.ErrNoStore):
		writeError(w, http.StatusServiceUnavailable, "Persistence is disabled")
	case errors.Is(err, store.ErrNotFound):
		writeError(w, http.StatusNotFound, "No saved calibration")
	case errors.Is(err, app.ErrAlreadyRunning):
		writeError(w, http.StatusConflict, "Calibration already committed")
	case errors.Is(err, sensor.ErrGeometryMismatch):
		writeError(w, http.StatusConflict, "Saved calibration was made at a different resolution")
	default:
		writeError(w, http.StatusInternalServerError, "Failed to resume calibration")
	}
}

func (h *CalibrationHandler) list(w http.ResponseWriter, r *http.Request) {
	if h.store == nil {
		writeError(w, http.StatusServiceUnavailable, "Persistence is disabled")
		return
	}

	cals, err := h.store.Calibrations().List(queryInt(r, "limit", 20, 200))
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list calibrations")
		return
	}

	out := make([]calibrationResponse, 0, len(cals))
	for i := range cals {
		out = append(out, toCalibration(&cals[i]))
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"calibrations": out})
}

func (h *CalibrationHandler) get(w http.ResponseWriter, r *http.Request, id string) {
	if h.store == nil {
		writeError(w, http.StatusServiceUnavailable, "Persistence is disabled")
		return
	}

	cal, err := h.store.Calibrations().GetByID(id)
	if errors.Is(err, store.ErrNotFound) {
		writeError(w, http.StatusNotFound, "Calibration not found")
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to get calibration")
		return
	}
	writeJSON(w, http.StatusOK, toCalibration(cal))
}

func countTypes(controls []surface.Control) map[string]int {
	counts := make(map[string]int)
	for t, n := range surface.CountByType(controls) {
		counts[t.String()] = n
	}
	return counts
}

func toCalibration(c *store.Calibration) calibrationResponse {
	return calibrationResponse{
		ID:          c.ID,
		ColorWidth:  c.ColorWidth,
		ColorHeight: c.ColorHeight,
		CommittedAt: formatTime(c.CommittedAt),
		Controls:    toControls(c.Controls),
	}
}
