// Package server provides the HTTP server for the tabletouch surface.
package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	jsoniter "github.com/json-iterator/go"
	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"

	"github.com/ayusman/tabletouch/internal/app"
	"github.com/ayusman/tabletouch/internal/logging"
	"github.com/ayusman/tabletouch/internal/plugin"
	"github.com/ayusman/tabletouch/internal/server/api"
	"github.com/ayusman/tabletouch/internal/store"
	"github.com/ayusman/tabletouch/internal/training"
)

// Config holds the server configuration.
type Config struct {
	StaticDir string
	App       *app.App
	Store     *store.Store
	Trainer   *training.Service
	Plugins   *plugin.Manager
	Frames    *FrameBuffer
	Events    *EventsHandler
	StreamFPS float64
	Logger    logrus.FieldLogger

	// RateLimit bounds API requests per client IP. Zero disables limiting.
	RateLimit rate.Limit
	RateBurst int
}

// Server represents the HTTP server for the tabletouch application.
type Server struct {
	config  Config
	mux     *http.ServeMux
	start   time.Time
	log     logrus.FieldLogger
	limiter *rateLimiter
}

// New creates a new Server with the given configuration.
func New(config Config) *Server {
	log := config.Logger
	if log == nil {
		log = logging.Discard()
	}
	s := &Server{
		config: config,
		mux:    http.NewServeMux(),
		start:  time.Now(),
		log:    log,
	}
	if config.RateLimit > 0 {
		burst := config.RateBurst
		if burst <= 0 {
			burst = 1
		}
		s.limiter = newRateLimiter(config.RateLimit, burst, log)
	}
	s.setupRoutes()
	return s
}

// setupRoutes configures all HTTP routes for the server. Endpoints whose
// dependencies are missing are not registered.
func (s *Server) setupRoutes() {
	c := s.config
	s.handleAPI("/api/health", http.HandlerFunc(s.handleHealth))

	if c.App != nil {
		s.handleAPI("/api/state", api.NewStateHandler(c.App))

		calibration := api.NewCalibrationHandler(c.App, c.Store)
		s.handleAPI("/api/calibration/", calibration)
		s.handleAPI("/api/calibrations", calibration)
		s.handleAPI("/api/calibrations/", calibration)
	}

	if c.Store != nil {
		contacts := api.NewContactHandler(c.Store)
		s.handleAPI("/api/contacts", contacts)
		s.handleAPI("/api/contacts/", contacts)

		settings := api.NewSettingsHandler(c.Store)
		s.handleAPI("/api/settings", settings)
		s.handleAPI("/api/settings/", settings)

		bindings := api.NewBindingHandler(c.Store, c.Plugins)
		s.handleAPI("/api/bindings", bindings)
		s.handleAPI("/api/bindings/", bindings)

		if c.App != nil && c.Trainer != nil {
			samples := api.NewSamplesHandler(c.Store, c.App, c.Trainer)
			s.handleAPI("/api/samples", samples)
			s.handleAPI("/api/samples/", samples)

			models := api.NewModelHandler(c.Store, c.App, c.Trainer)
			s.handleAPI("/api/models", models)
			s.handleAPI("/api/models/", models)
		}
	}

	if c.Plugins != nil {
		s.handleAPI("/api/plugins", api.NewPluginHandler(c.Plugins))
	}

	// Streaming endpoints skip the access log and the rate limiter.
	if c.Frames != nil {
		s.mux.Handle("/api/stream", requestID(NewStreamHandler(c.Frames, c.StreamFPS)))
		s.handleAPI("/api/snapshot", &SnapshotHandler{frames: c.Frames})
	}
	if c.Events != nil {
		s.mux.Handle("/api/events", requestID(c.Events))
	}

	// Serve static files if StaticDir is configured
	if c.StaticDir != "" {
		fs := http.FileServer(http.Dir(c.StaticDir))
		s.mux.Handle("/", fs)
	}
}

func (s *Server) handleAPI(pattern string, h http.Handler) {
	if s.limiter != nil {
		h = s.limiter.wrap(h)
	}
	s.mux.Handle(pattern, requestID(accessLog(s.log, h)))
}

// ServeHTTP implements the http.Handler interface.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}

// handleHealth handles GET requests to /api/health.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	response := map[string]interface{}{
		"status": "ok",
		"uptime": time.Since(s.start).String(),
	}
	if s.config.App != nil {
		st := s.config.App.State()
		response["phase"] = st.PhaseName
		response["fps"] = st.FPS
	}
	if s.config.Store != nil {
		stats, err := s.config.Store.Stats()
		if err != nil {
			s.log.WithError(err).Warn("store stats unavailable")
			response["status"] = "degraded"
		} else {
			response["store"] = stats
		}
	}

	w.Header().Set("Content-Type", "application/json")
	if err := jsoniter.NewEncoder(w).Encode(response); err != nil {
		http.Error(w, "Failed to encode response", http.StatusInternalServerError)
		return
	}
}

// ListenAndServe starts the HTTP server on the given address.
func (s *Server) ListenAndServe(addr string) error {
	return http.ListenAndServe(addr, s)
}

// Run serves on addr until ctx is done, then shuts down gracefully.
func (s *Server) Run(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.log.WithField("addr", addr).Info("http server listening")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errCh; !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
