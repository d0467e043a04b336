package server

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/ayusman/tabletouch/internal/app"
	"github.com/ayusman/tabletouch/internal/detector"
	"github.com/ayusman/tabletouch/internal/sensor"
	"github.com/ayusman/tabletouch/internal/store"
)

func newTestStore(t *testing.T) *store.Store {
	t.Helper()
	s, err := store.New(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("store.New() error = %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func newTestApp(t *testing.T, s *store.Store) *app.App {
	t.Helper()
	config := app.DefaultConfig()
	config.Geometry = sensor.Geometry{ColorWidth: 320, ColorHeight: 240, DepthWidth: 160, DepthHeight: 120}
	mock := detector.NewMockDetector()
	a, err := app.New(config, app.WithShapeFinder(mock), app.WithFingerFinder(mock), app.WithStore(s))
	if err != nil {
		t.Fatalf("app.New() error = %v", err)
	}
	return a
}

func serve(s *Server, method, path string) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, httptest.NewRequest(method, path, nil))
	return rec
}

func TestServer_Health(t *testing.T) {
	t.Run("bare server", func(t *testing.T) {
		rec := serve(New(Config{}), http.MethodGet, "/api/health")
		if rec.Code != http.StatusOK {
			t.Fatalf("expected status %d, got %d", http.StatusOK, rec.Code)
		}
		if ct := rec.Header().Get("Content-Type"); ct != "application/json" {
			t.Errorf("expected Content-Type application/json, got %s", ct)
		}

		var response map[string]interface{}
		if err := json.NewDecoder(rec.Body).Decode(&response); err != nil {
			t.Fatalf("failed to decode response: %v", err)
		}
		if response["status"] != "ok" {
			t.Errorf("expected status 'ok', got %v", response["status"])
		}
		if _, exists := response["uptime"]; !exists {
			t.Error("expected 'uptime' field in response")
		}
		if _, exists := response["phase"]; exists {
			t.Error("phase should be absent without an app")
		}
	})

	t.Run("with app and store", func(t *testing.T) {
		st := newTestStore(t)
		rec := serve(New(Config{App: newTestApp(t, st), Store: st}), http.MethodGet, "/api/health")

		var response struct {
			Status string      `json:"status"`
			Phase  string      `json:"phase"`
			Store  store.Stats `json:"store"`
		}
		if err := json.NewDecoder(rec.Body).Decode(&response); err != nil {
			t.Fatalf("failed to decode response: %v", err)
		}
		if response.Status != "ok" || response.Phase != "calibrating" {
			t.Errorf("health = %+v, want ok while calibrating", response)
		}
	})

	t.Run("closed store degrades", func(t *testing.T) {
		st, err := store.New(filepath.Join(t.TempDir(), "test.db"))
		if err != nil {
			t.Fatalf("store.New() error = %v", err)
		}
		st.Close()

		var response map[string]interface{}
		rec := serve(New(Config{Store: st}), http.MethodGet, "/api/health")
		if err := json.NewDecoder(rec.Body).Decode(&response); err != nil {
			t.Fatalf("failed to decode response: %v", err)
		}
		if response["status"] != "degraded" {
			t.Errorf("expected status 'degraded', got %v", response["status"])
		}
	})

	t.Run("only allows GET method", func(t *testing.T) {
		s := New(Config{})
		for _, method := range []string{http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodPatch} {
			if rec := serve(s, method, "/api/health"); rec.Code != http.StatusMethodNotAllowed {
				t.Errorf("method %s: expected status %d, got %d", method, http.StatusMethodNotAllowed, rec.Code)
			}
		}
	})
}

func TestServer_Routes(t *testing.T) {
	st := newTestStore(t)
	a := newTestApp(t, st)

	tests := []struct {
		name   string
		config Config
		path   string
		want   int
	}{
		{"unknown path", Config{}, "/api/nonexistent", http.StatusNotFound},
		{"state needs app", Config{}, "/api/state", http.StatusNotFound},
		{"state", Config{App: a}, "/api/state", http.StatusOK},
		{"calibrations need app", Config{Store: st}, "/api/calibrations", http.StatusNotFound},
		{"calibrations", Config{App: a, Store: st}, "/api/calibrations", http.StatusOK},
		{"bindings need store", Config{App: a}, "/api/bindings", http.StatusNotFound},
		{"bindings", Config{Store: st}, "/api/bindings", http.StatusOK},
		{"contacts", Config{Store: st}, "/api/contacts", http.StatusOK},
		{"settings", Config{Store: st}, "/api/settings", http.StatusOK},
		{"samples need trainer", Config{App: a, Store: st}, "/api/samples", http.StatusNotFound},
		{"plugins need manager", Config{}, "/api/plugins", http.StatusNotFound},
		{"snapshot needs frames", Config{}, "/api/snapshot", http.StatusNotFound},
		{"snapshot before first frame", Config{Frames: NewFrameBuffer(0)}, "/api/snapshot", http.StatusServiceUnavailable},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := serve(New(tt.config), http.MethodGet, tt.path)
			if rec.Code != tt.want {
				t.Errorf("GET %s: expected status %d, got %d", tt.path, tt.want, rec.Code)
			}
		})
	}
}

func TestServer_StaticFiles(t *testing.T) {
	tmpDir := t.TempDir()

	testContent := "<html><body>tabletouch</body></html>"
	if err := os.WriteFile(filepath.Join(tmpDir, "index.html"), []byte(testContent), 0644); err != nil {
		t.Fatalf("failed to create test file: %v", err)
	}
	jsContent := "const events = new WebSocket('/api/events');"
	if err := os.WriteFile(filepath.Join(tmpDir, "app.js"), []byte(jsContent), 0644); err != nil {
		t.Fatalf("failed to create test JS file: %v", err)
	}

	s := New(Config{StaticDir: tmpDir})

	tests := []struct {
		path string
		want int
		body string
	}{
		{"/", http.StatusOK, testContent},
		{"/app.js", http.StatusOK, jsContent},
		{"/nonexistent.html", http.StatusNotFound, ""},
	}
	for _, tt := range tests {
		rec := serve(s, http.MethodGet, tt.path)
		if rec.Code != tt.want {
			t.Errorf("GET %s: expected status %d, got %d", tt.path, tt.want, rec.Code)
		}
		if tt.body != "" && rec.Body.String() != tt.body {
			t.Errorf("GET %s: expected body %q, got %q", tt.path, tt.body, rec.Body.String())
		}
	}

	// API routes win over the file server
	if rec := serve(s, http.MethodGet, "/api/health"); rec.Code != http.StatusOK {
		t.Errorf("health behind static dir: expected %d, got %d", http.StatusOK, rec.Code)
	}
	if rec := serve(New(Config{}), http.MethodGet, "/"); rec.Code != http.StatusNotFound {
		t.Errorf("root without static dir: expected %d, got %d", http.StatusNotFound, rec.Code)
	}
}
