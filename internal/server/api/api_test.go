package api

import (
	"bytes"
	"encoding/json"
	"image"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/sirupsen/logrus"

	"github.com/ayusman/tabletouch/internal/app"
	"github.com/ayusman/tabletouch/internal/classifier"
	"github.com/ayusman/tabletouch/internal/detector"
	"github.com/ayusman/tabletouch/internal/plugin"
	"github.com/ayusman/tabletouch/internal/sensor"
	"github.com/ayusman/tabletouch/internal/store"
	"github.com/ayusman/tabletouch/internal/surface"
	"github.com/ayusman/tabletouch/internal/training"
)

// newTestStore creates a new Store with a temporary database for testing.
func newTestStore(t *testing.T) *store.Store {
	t.Helper()

	tmpDir, err := os.MkdirTemp("", "tabletouch-api-test-*")
	if err != nil {
		t.Fatalf("failed to create temp dir: %v", err)
	}
	t.Cleanup(func() {
		os.RemoveAll(tmpDir)
	})

	s, err := store.New(filepath.Join(tmpDir, "test.db"))
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}
	t.Cleanup(func() {
		s.Close()
	})
	return s
}

func newTestApp(t *testing.T, s *store.Store) *app.App {
	t.Helper()

	config := app.DefaultConfig()
	config.Geometry = sensor.Geometry{ColorWidth: 320, ColorHeight: 240, DepthWidth: 160, DepthHeight: 120}
	mock := detector.NewMockDetector()
	opts := []app.Option{app.WithShapeFinder(mock), app.WithFingerFinder(mock)}
	if s != nil {
		opts = append(opts, app.WithStore(s))
	}

	a, err := app.New(config, opts...)
	if err != nil {
		t.Fatalf("failed to create app: %v", err)
	}
	return a
}

func newTestTrainer(s *store.Store, a *app.App) *training.Service {
	log := logrus.New()
	log.SetOutput(bytes.NewBuffer(nil))
	return training.NewService(s, a.Classifier(), classifier.DefaultTrainerConfig(), log)
}

func do(t *testing.T, h http.Handler, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("failed to encode body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder, v interface{}) {
	t.Helper()
	if ct := rec.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("expected Content-Type application/json, got %s", ct)
	}
	if err := json.NewDecoder(rec.Body).Decode(v); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
}

func TestStateHandler(t *testing.T) {
	a := newTestApp(t, nil)
	h := NewStateHandler(a)

	rec := do(t, h, http.MethodGet, "/api/state", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected status %d, got %d", http.StatusOK, rec.Code)
	}

	var resp map[string]interface{}
	decode(t, rec, &resp)
	if resp["phase"] != "calibrating" {
		t.Errorf("expected phase calibrating, got %v", resp["phase"])
	}
	if resp["model_available"] != false {
		t.Errorf("expected model_available false, got %v", resp["model_available"])
	}
	if _, ok := resp["controls"]; !ok {
		t.Error("expected controls field")
	}

	if rec := do(t, h, http.MethodPost, "/api/state", nil); rec.Code != http.StatusMethodNotAllowed {
		t.Errorf("expected status %d, got %d", http.StatusMethodNotAllowed, rec.Code)
	}
}

func TestCalibrationHandler(t *testing.T) {
	s := newTestStore(t)
	a := newTestApp(t, s)
	h := NewCalibrationHandler(a, s)

	rec := do(t, h, http.MethodPost, "/api/calibration/resume", nil)
	if rec.Code != http.StatusNotFound {
		t.Errorf("resume without saved calibration: expected %d, got %d", http.StatusNotFound, rec.Code)
	}

	rec = do(t, h, http.MethodPost, "/api/calibration/commit", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("commit: expected %d, got %d", http.StatusOK, rec.Code)
	}
	var committed commitResponse
	decode(t, rec, &committed)
	if len(committed.Controls) != 0 {
		t.Errorf("expected no controls, got %d", len(committed.Controls))
	}

	rec = do(t, h, http.MethodPost, "/api/calibration/commit", nil)
	if rec.Code != http.StatusConflict {
		t.Errorf("second commit: expected %d, got %d", http.StatusConflict, rec.Code)
	}

	rec = do(t, h, http.MethodGet, "/api/calibrations", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("list: expected %d, got %d", http.StatusOK, rec.Code)
	}
	var list struct {
		Calibrations []calibrationResponse `json:"calibrations"`
	}
	decode(t, rec, &list)
	if len(list.Calibrations) != 1 {
		t.Fatalf("expected 1 calibration, got %d", len(list.Calibrations))
	}
	if list.Calibrations[0].ColorWidth != 320 {
		t.Errorf("expected color width 320, got %d", list.Calibrations[0].ColorWidth)
	}

	rec = do(t, h, http.MethodGet, "/api/calibrations/"+list.Calibrations[0].ID, nil)
	if rec.Code != http.StatusOK {
		t.Errorf("get: expected %d, got %d", http.StatusOK, rec.Code)
	}
	rec = do(t, h, http.MethodGet, "/api/calibrations/missing", nil)
	if rec.Code != http.StatusNotFound {
		t.Errorf("get missing: expected %d, got %d", http.StatusNotFound, rec.Code)
	}

	// a second session resumes the saved set
	b := newTestApp(t, s)
	rec = do(t, NewCalibrationHandler(b, s), http.MethodPost, "/api/calibration/resume", nil)
	if rec.Code != http.StatusOK {
		t.Errorf("resume: expected %d, got %d", http.StatusOK, rec.Code)
	}

	if rec := do(t, h, http.MethodPost, "/api/calibration/bogus", nil); rec.Code != http.StatusNotFound {
		t.Errorf("unknown action: expected %d, got %d", http.StatusNotFound, rec.Code)
	}
	if rec := do(t, h, http.MethodGet, "/api/calibration/commit", nil); rec.Code != http.StatusMethodNotAllowed {
		t.Errorf("GET commit: expected %d, got %d", http.StatusMethodNotAllowed, rec.Code)
	}
}

func TestCalibrationHandler_NoStore(t *testing.T) {
	h := NewCalibrationHandler(newTestApp(t, nil), nil)

	if rec := do(t, h, http.MethodGet, "/api/calibrations", nil); rec.Code != http.StatusServiceUnavailable {
		t.Errorf("expected %d, got %d", http.StatusServiceUnavailable, rec.Code)
	}
	if rec := do(t, h, http.MethodPost, "/api/calibration/resume", nil); rec.Code != http.StatusServiceUnavailable {
		t.Errorf("expected %d, got %d", http.StatusServiceUnavailable, rec.Code)
	}
}

func TestSamplesHandler(t *testing.T) {
	s := newTestStore(t)
	a := newTestApp(t, s)
	h := NewSamplesHandler(s, a, newTestTrainer(s, a))

	rec := do(t, h, http.MethodPost, "/api/samples/capture", map[string]string{"label": "triangle"})
	if rec.Code != http.StatusBadRequest {
		t.Errorf("invalid label: expected %d, got %d", http.StatusBadRequest, rec.Code)
	}

	rec = do(t, h, http.MethodPost, "/api/samples/capture", map[string]string{"label": "circle"})
	if rec.Code != http.StatusAccepted {
		t.Errorf("capture: expected %d, got %d", http.StatusAccepted, rec.Code)
	}
	if got := a.State().CaptureLabel; got != "circle" {
		t.Errorf("expected capture armed for circle, got %q", got)
	}

	rec = do(t, h, http.MethodGet, "/api/samples", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("list: expected %d, got %d", http.StatusOK, rec.Code)
	}
	var list listSamplesResponse
	decode(t, rec, &list)
	if len(list.Counts) != 3 || list.Counts["square"] != 0 {
		t.Errorf("expected zero counts for every type, got %v", list.Counts)
	}

	rec = do(t, h, http.MethodPost, "/api/samples/import", map[string]string{})
	if rec.Code != http.StatusBadRequest {
		t.Errorf("import without dir: expected %d, got %d", http.StatusBadRequest, rec.Code)
	}
	rec = do(t, h, http.MethodPost, "/api/samples/import", map[string]string{"dir": t.TempDir()})
	if rec.Code != http.StatusOK {
		t.Errorf("import empty dir: expected %d, got %d", http.StatusOK, rec.Code)
	}

	if rec := do(t, h, http.MethodGet, "/api/samples/42/image", nil); rec.Code != http.StatusNotFound {
		t.Errorf("missing image: expected %d, got %d", http.StatusNotFound, rec.Code)
	}
	if rec := do(t, h, http.MethodDelete, "/api/samples/42", nil); rec.Code != http.StatusNotFound {
		t.Errorf("delete missing: expected %d, got %d", http.StatusNotFound, rec.Code)
	}
	if rec := do(t, h, http.MethodGet, "/api/samples/abc", nil); rec.Code != http.StatusNotFound {
		t.Errorf("bad id: expected %d, got %d", http.StatusNotFound, rec.Code)
	}
	if rec := do(t, h, http.MethodDelete, "/api/samples", nil); rec.Code != http.StatusOK {
		t.Errorf("delete all: expected %d, got %d", http.StatusOK, rec.Code)
	}

	if _, err := a.Commit(); err != nil {
		t.Fatalf("commit failed: %v", err)
	}
	rec = do(t, h, http.MethodPost, "/api/samples/capture", map[string]string{"label": "square"})
	if rec.Code != http.StatusConflict {
		t.Errorf("capture while running: expected %d, got %d", http.StatusConflict, rec.Code)
	}
}

func TestModelHandler(t *testing.T) {
	s := newTestStore(t)
	a := newTestApp(t, s)
	h := NewModelHandler(s, a, newTestTrainer(s, a))

	rec := do(t, h, http.MethodPost, "/api/models", map[string]string{"name": "first"})
	if rec.Code != http.StatusUnprocessableEntity {
		t.Errorf("train without samples: expected %d, got %d", http.StatusUnprocessableEntity, rec.Code)
	}

	m := classifier.NewModel(classifier.DefaultDescriptorConfig(), []int{0, 1, 2})
	created, err := s.Models().Create("imported", m, 12, 0.9, false)
	if err != nil {
		t.Fatalf("failed to create model: %v", err)
	}

	rec = do(t, h, http.MethodGet, "/api/models", nil)
	var list struct {
		Models []modelResponse `json:"models"`
	}
	decode(t, rec, &list)
	if len(list.Models) != 1 || list.Models[0].Active {
		t.Fatalf("expected one inactive model, got %+v", list.Models)
	}

	rec = do(t, h, http.MethodPost, "/api/models/"+created.ID+"/activate", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("activate: expected %d, got %d", http.StatusOK, rec.Code)
	}
	var activated modelResponse
	decode(t, rec, &activated)
	if !activated.Active {
		t.Error("expected model to be active")
	}
	if !a.State().ModelAvailable {
		t.Error("expected the classifier to have a model")
	}

	if rec := do(t, h, http.MethodPost, "/api/models/missing/activate", nil); rec.Code != http.StatusNotFound {
		t.Errorf("activate missing: expected %d, got %d", http.StatusNotFound, rec.Code)
	}

	rec = do(t, h, http.MethodDelete, "/api/models/"+created.ID, nil)
	if rec.Code != http.StatusNoContent {
		t.Errorf("delete: expected %d, got %d", http.StatusNoContent, rec.Code)
	}
	if a.State().ModelAvailable {
		t.Error("deleting the active model should disable classification")
	}
	if rec := do(t, h, http.MethodGet, "/api/models/"+created.ID, nil); rec.Code != http.StatusNotFound {
		t.Errorf("get deleted: expected %d, got %d", http.StatusNotFound, rec.Code)
	}
}

func TestBindingHandler(t *testing.T) {
	s := newTestStore(t)
	h := NewBindingHandler(s, nil)

	rec := do(t, h, http.MethodPost, "/api/bindings", map[string]string{"control_type": "hexagon", "plugin_name": "keyboard", "action_name": "press"})
	if rec.Code != http.StatusBadRequest {
		t.Errorf("invalid type: expected %d, got %d", http.StatusBadRequest, rec.Code)
	}

	rec = do(t, h, http.MethodPost, "/api/bindings", map[string]interface{}{
		"control_type": "square",
		"plugin_name":  "keyboard",
		"action_name":  "press",
		"config":       map[string]string{"key": "space"},
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("create: expected %d, got %d: %s", http.StatusCreated, rec.Code, rec.Body.String())
	}
	var created bindingResponse
	decode(t, rec, &created)
	if created.ID == "" || !created.Enabled || created.ControlType != "square" {
		t.Errorf("unexpected binding %+v", created)
	}

	rec = do(t, h, http.MethodPut, "/api/bindings/"+created.ID, map[string]bool{"enabled": false})
	if rec.Code != http.StatusOK {
		t.Fatalf("update: expected %d, got %d", http.StatusOK, rec.Code)
	}
	var updated bindingResponse
	decode(t, rec, &updated)
	if updated.Enabled {
		t.Error("expected binding to be disabled")
	}

	rec = do(t, h, http.MethodGet, "/api/bindings", nil)
	var list listBindingsResponse
	decode(t, rec, &list)
	if len(list.Bindings) != 1 {
		t.Errorf("expected 1 binding, got %d", len(list.Bindings))
	}

	if rec := do(t, h, http.MethodPut, "/api/bindings/"+created.ID, map[string]string{}); rec.Code != http.StatusBadRequest {
		t.Errorf("update without enabled: expected %d, got %d", http.StatusBadRequest, rec.Code)
	}
	if rec := do(t, h, http.MethodDelete, "/api/bindings/"+created.ID, nil); rec.Code != http.StatusNoContent {
		t.Errorf("delete: expected %d, got %d", http.StatusNoContent, rec.Code)
	}
	if rec := do(t, h, http.MethodDelete, "/api/bindings/"+created.ID, nil); rec.Code != http.StatusNotFound {
		t.Errorf("delete again: expected %d, got %d", http.StatusNotFound, rec.Code)
	}
}

func TestContactHandler(t *testing.T) {
	s := newTestStore(t)
	h := NewContactHandler(s)

	rec := do(t, h, http.MethodGet, "/api/contacts?limit=5", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected %d, got %d", http.StatusOK, rec.Code)
	}
	var resp struct {
		Contacts []contactResponse `json:"contacts"`
	}
	decode(t, rec, &resp)
	if len(resp.Contacts) != 0 {
		t.Errorf("expected empty log, got %d", len(resp.Contacts))
	}
}

func TestContactHandler_Summary(t *testing.T) {
	s := newTestStore(t)
	h := NewContactHandler(s)

	rec := do(t, h, http.MethodGet, "/api/contacts/summary", nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("no calibration: expected %d, got %d", http.StatusNotFound, rec.Code)
	}

	cal := &store.Calibration{
		ColorWidth:  320,
		ColorHeight: 240,
		Controls:    []surface.Control{{ID: "a", Type: surface.Square, Bounds: image.Rect(0, 0, 50, 50)}},
	}
	if err := s.Calibrations().Save(cal); err != nil {
		t.Fatalf("Save() error = %v", err)
	}
	event := surface.ContactEvent{ControlID: "a", ControlType: surface.Square, Timestamp: 1}
	for i := 0; i < 3; i++ {
		if err := s.Contacts().Record(cal.ID, []surface.ContactEvent{event}); err != nil {
			t.Fatalf("Record() error = %v", err)
		}
	}

	rec = do(t, h, http.MethodGet, "/api/contacts/summary", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected %d, got %d", http.StatusOK, rec.Code)
	}
	var resp struct {
		CalibrationID string         `json:"calibration_id"`
		Counts        map[string]int `json:"counts"`
	}
	decode(t, rec, &resp)
	if resp.CalibrationID != cal.ID || resp.Counts["a"] != 3 {
		t.Errorf("summary = %+v, want 3 touches on a for %s", resp, cal.ID)
	}

	rec = do(t, h, http.MethodGet, "/api/contacts/summary?calibration=other", nil)
	decode(t, rec, &resp)
	if len(resp.Counts) != 0 {
		t.Errorf("unknown calibration: expected no counts, got %v", resp.Counts)
	}

	rec = do(t, h, http.MethodGet, "/api/contacts/bogus", nil)
	if rec.Code != http.StatusNotFound {
		t.Errorf("unknown path: expected %d, got %d", http.StatusNotFound, rec.Code)
	}
}

func TestSettingsHandler(t *testing.T) {
	s := newTestStore(t)
	h := NewSettingsHandler(s)

	rec := do(t, h, http.MethodGet, "/api/settings/resume_on_start", nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("missing setting: expected %d, got %d", http.StatusNotFound, rec.Code)
	}

	rec = do(t, h, http.MethodPut, "/api/settings/resume_on_start", map[string]string{})
	if rec.Code != http.StatusBadRequest {
		t.Errorf("missing value: expected %d, got %d", http.StatusBadRequest, rec.Code)
	}

	rec = do(t, h, http.MethodPut, "/api/settings/resume_on_start", map[string]string{"value": "true"})
	if rec.Code != http.StatusOK {
		t.Fatalf("put: expected %d, got %d", http.StatusOK, rec.Code)
	}

	rec = do(t, h, http.MethodGet, "/api/settings", nil)
	var resp struct {
		Settings map[string]string `json:"settings"`
	}
	decode(t, rec, &resp)
	if resp.Settings["resume_on_start"] != "true" {
		t.Errorf("settings = %v, want resume_on_start=true", resp.Settings)
	}

	rec = do(t, h, http.MethodDelete, "/api/settings/resume_on_start", nil)
	if rec.Code != http.StatusMethodNotAllowed {
		t.Errorf("delete: expected %d, got %d", http.StatusMethodNotAllowed, rec.Code)
	}
}

func TestPluginHandler(t *testing.T) {
	root := t.TempDir()
	good := filepath.Join(root, "lamp")
	if err := os.MkdirAll(good, 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(good, "plugin.json"), []byte(`{"name":"lamp","executable":"run"}`), 0644); err != nil {
		t.Fatal(err)
	}

	m := plugin.NewManager(root)
	h := NewPluginHandler(m)

	var resp struct {
		Plugins  []pluginResponse  `json:"plugins"`
		Rejected map[string]string `json:"rejected"`
	}
	rec := do(t, h, http.MethodGet, "/api/plugins", nil)
	decode(t, rec, &resp)
	if len(resp.Plugins) != 0 || len(resp.Rejected) != 0 {
		t.Errorf("nothing is listed before a scan, got %+v", resp)
	}

	rec = do(t, h, http.MethodPost, "/api/plugins", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("rescan: expected %d, got %d", http.StatusOK, rec.Code)
	}
	decode(t, rec, &resp)
	if len(resp.Plugins) != 0 || resp.Rejected["lamp"] == "" {
		t.Errorf("plugin without executable should be rejected, got %+v", resp)
	}

	if err := os.WriteFile(filepath.Join(good, "run"), []byte("#!/bin/sh\n"), 0755); err != nil {
		t.Fatal(err)
	}
	resp.Rejected = nil
	rec = do(t, h, http.MethodPost, "/api/plugins", nil)
	decode(t, rec, &resp)
	if len(resp.Plugins) != 1 || resp.Plugins[0].Name != "lamp" || len(resp.Rejected) != 0 {
		t.Errorf("unexpected listing %+v", resp)
	}
	if resp.Plugins[0].Actions == nil {
		t.Error("actions should be an empty list, not null")
	}

	if rec := do(t, h, http.MethodDelete, "/api/plugins", nil); rec.Code != http.StatusMethodNotAllowed {
		t.Errorf("expected %d, got %d", http.StatusMethodNotAllowed, rec.Code)
	}
}
