// Package app runs the touch-surface pipeline: it pulls frames from a sensor
// device, registers printed controls while calibrating and reports fingertip
// contacts with them once running.
package app

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"gocv.io/x/gocv"

	"github.com/ayusman/tabletouch/internal/classifier"
	"github.com/ayusman/tabletouch/internal/contact"
	"github.com/ayusman/tabletouch/internal/detector"
	"github.com/ayusman/tabletouch/internal/logging"
	"github.com/ayusman/tabletouch/internal/mapping"
	"github.com/ayusman/tabletouch/internal/render"
	"github.com/ayusman/tabletouch/internal/sensor"
	"github.com/ayusman/tabletouch/internal/store"
	"github.com/ayusman/tabletouch/internal/surface"
)

var (
	// ErrBusy is returned by ProcessFrame while another frame is being processed.
	// The rejected frame is dropped.
	ErrBusy = errors.New("pipeline busy")
	// ErrNoDevice is returned by Start when no sensor device was configured.
	ErrNoDevice = errors.New("no sensor device configured")
	// ErrNoStore is returned by operations that need persistence when the app
	// runs without a store.
	ErrNoStore = errors.New("no store configured")
)

// FrameSink receives the rendered output of every processed frame. Publish
// takes ownership of img and must Close it.
type FrameSink interface {
	Publish(img gocv.Mat)
}

// ContactListener receives the complete contact set of every frame processed
// while running, including empty sets.
type ContactListener interface {
	HandleContacts(events []surface.ContactEvent)
}

// ContactListenerFunc adapts a function to ContactListener.
type ContactListenerFunc func(events []surface.ContactEvent)

// HandleContacts calls f(events).
func (f ContactListenerFunc) HandleContacts(events []surface.ContactEvent) {
	f(events)
}

// Config holds configuration options for the application.
type Config struct {
	Geometry         sensor.Geometry
	RequireBodyIndex bool
	// FPS is the acquisition rate of the Start loop.
	FPS         float64
	MapperSlots int
	Contact     contact.Config
	Render      render.Config
}

// DefaultConfig returns a Config with sensible default values.
func DefaultConfig() Config {
	return Config{
		Geometry:    sensor.DefaultGeometry(),
		FPS:         30,
		MapperSlots: mapping.DefaultSlots,
		Contact:     contact.DefaultConfig(),
		Render:      render.DefaultConfig(),
	}
}

// Result is the outcome of one processed frame.
type Result struct {
	Phase      surface.Phase
	Timestamp  int64
	Candidates []surface.Candidate
	// Controls are the controls staged by this frame while calibrating, or the
	// live controls while running.
	Controls  []surface.Control
	Fingertip *surface.Fingertip
	Contacts  []surface.ContactEvent
	Captured  int
	FPS       float64
}

// State summarises the application for status displays.
type State struct {
	Phase          surface.Phase     `json:"-"`
	PhaseName      string            `json:"phase"`
	Running        bool              `json:"running"`
	Controls       []surface.Control `json:"-"`
	Staged         int               `json:"staged"`
	FPS            float64           `json:"fps"`
	MeanFPS        float64           `json:"mean_fps"`
	Frames         int64             `json:"frames"`
	ModelAvailable bool              `json:"model_available"`
	CalibrationID  string            `json:"calibration_id,omitempty"`
	CaptureLabel   string            `json:"capture_label,omitempty"`
}

// Option configures an App.
type Option func(*App) error

// WithDevice sets the sensor device the Start loop pulls frames from.
func WithDevice(d sensor.Device) Option {
	return func(a *App) error {
		a.device = d
		return nil
	}
}

// WithShapeFinder replaces the default shape candidate detector.
func WithShapeFinder(f detector.ShapeFinder) Option {
	return func(a *App) error {
		a.shapes = f
		return nil
	}
}

// WithFingerFinder replaces the default fingertip tracker.
func WithFingerFinder(f detector.FingerFinder) Option {
	return func(a *App) error {
		a.fingers = f
		return nil
	}
}

// WithClassifier replaces the default, model-less classifier.
func WithClassifier(c *classifier.Classifier) Option {
	return func(a *App) error {
		a.classifier = c
		return nil
	}
}

// WithStore enables persistence of calibrations, contacts, samples and models.
func WithStore(s *store.Store) Option {
	return func(a *App) error {
		a.store = s
		return nil
	}
}

// WithSink sets where rendered frames go.
func WithSink(s FrameSink) Option {
	return func(a *App) error {
		a.sink = s
		return nil
	}
}

// WithLogger sets the logger.
func WithLogger(l logrus.FieldLogger) Option {
	return func(a *App) error {
		if l == nil {
			return errors.New("nil logger")
		}
		a.log = l
		return nil
	}
}

// WithContactListener registers a listener for running-phase contacts.
func WithContactListener(l ContactListener) Option {
	return func(a *App) error {
		a.listeners = append(a.listeners, l)
		return nil
	}
}

// App is the main application that orchestrates control registration and
// contact detection.
type App struct {
	config      Config
	device      sensor.Device
	mapper      *mapping.SpatialMapper
	shapes      detector.ShapeFinder
	fingers     detector.FingerFinder
	classifier  *classifier.Classifier
	contacts    *contact.Detector
	renderer    *render.Renderer
	calibration *Calibration
	store       *store.Store
	sink        FrameSink
	log         logrus.FieldLogger
	fps         FPSMeter
	frames      atomic.Int64

	// processing serialises ProcessFrame.
	processing sync.Mutex

	mu            sync.RWMutex
	listeners     []ContactListener
	calibrationID string
	capture       surface.ControlType
	stopCh        chan struct{}
	done          chan struct{}
}

// New creates an App. Missing collaborators get their default implementation.
func New(config Config, opts ...Option) (*App, error) {
	if err := config.Geometry.Validate(); err != nil {
		return nil, err
	}

	a := &App{
		config:      config,
		contacts:    contact.NewDetector(config.Contact),
		renderer:    render.NewRenderer(config.Render),
		calibration: NewCalibration(),
		log:         logging.Discard(),
		capture:     surface.Unknown,
	}
	for _, opt := range opts {
		if err := opt(a); err != nil {
			return nil, fmt.Errorf("failed to apply option: %w", err)
		}
	}

	if a.device != nil && a.device.Geometry() != config.Geometry {
		return nil, fmt.Errorf("%w: device %+v, configured %+v",
			sensor.ErrGeometryMismatch, a.device.Geometry(), config.Geometry)
	}

	var coords sensor.CoordinateMapper = sensor.NewLinearMapper(config.Geometry)
	if a.device != nil && a.device.Mapper() != nil {
		coords = a.device.Mapper()
	}
	a.mapper = mapping.NewSpatialMapper(config.Geometry, coords, config.MapperSlots)

	if a.shapes == nil {
		a.shapes = detector.NewShapeDetector(detector.DefaultShapeConfig())
	}
	if a.fingers == nil {
		a.fingers = detector.NewFingertipTracker(detector.DefaultTrackerConfig())
	}
	if a.classifier == nil {
		c, err := classifier.New(classifier.DefaultConfig())
		if err != nil {
			return nil, err
		}
		a.classifier = c
	}

	return a, nil
}

// Calibration returns the calibration controller.
func (a *App) Calibration() *Calibration {
	return a.calibration
}

// Classifier returns the shape classifier.
func (a *App) Classifier() *classifier.Classifier {
	return a.classifier
}

// Store returns the store, or nil.
func (a *App) Store() *store.Store {
	return a.store
}

// Config returns the application configuration.
func (a *App) Config() Config {
	return a.config
}

// AddContactListener registers a listener for running-phase contacts.
func (a *App) AddContactListener(l ContactListener) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.listeners = append(a.listeners, l)
}

// ProcessFrame runs one frame through the pipeline. Only one frame is
// processed at a time; a call made while another is in progress returns
// ErrBusy without touching the frame. The caller keeps ownership of frame.
//
// A frame missing a required stream returns sensor.ErrNoFrame and a frame
// whose size disagrees with the configured geometry returns
// sensor.ErrGeometryMismatch. Neither produces output.
func (a *App) ProcessFrame(frame *sensor.Frame) (*Result, error) {
	if !a.processing.TryLock() {
		return nil, ErrBusy
	}
	defer a.processing.Unlock()

	if frame == nil {
		return nil, sensor.ErrNoFrame
	}
	if err := frame.Validate(a.config.Geometry, a.config.RequireBodyIndex); err != nil {
		if errors.Is(err, sensor.ErrGeometryMismatch) {
			a.log.WithError(err).Error("frame geometry does not match the sensor configuration")
		}
		return nil, err
	}

	corr, err := a.mapper.Build(frame.Depth)
	if err != nil {
		if errors.Is(err, sensor.ErrGeometryMismatch) {
			a.log.WithError(err).Error("depth geometry does not match the sensor configuration")
		}
		return nil, err
	}
	defer corr.Release()

	res := &Result{
		Phase:     a.calibration.Phase(),
		Timestamp: frame.Timestamp,
	}

	switch res.Phase {
	case surface.PhaseCalibrating:
		if err := a.registerControls(frame, corr, res); err != nil {
			return nil, err
		}
	case surface.PhaseRunning:
		a.trackContacts(frame, corr, res)
	}

	a.frames.Add(1)
	res.FPS = a.fps.Tick(time.Now())
	a.publish(frame, res)
	return res, nil
}

// registerControls detects and classifies candidates and stages the typed
// ones as this frame's control set.
func (a *App) registerControls(frame *sensor.Frame, corr *mapping.Correspondence, res *Result) error {
	det, err := a.shapes.Detect(frame.Color)
	if err != nil {
		return fmt.Errorf("detect shapes: %w", err)
	}
	defer det.Close()

	res.Candidates = det.Candidates

	var controls []surface.Control
	if a.classifier.Available() {
		for _, cand := range det.Candidates {
			t := a.classifier.Classify(cand, det.Edges)
			if !t.Valid() {
				continue
			}
			c := surface.Control{ID: uuid.NewString(), Type: t, Bounds: cand.Bounds}
			corr.SampleControl(&c)
			controls = append(controls, c)
		}
	}
	res.Controls = controls

	if label := a.takeCapture(); label.Valid() {
		res.Captured = a.captureSamples(label, det)
	}

	if err := a.calibration.Stage(controls); err != nil {
		// Commit landed while this frame was in flight.
		a.log.WithError(err).Debug("staging skipped")
	}
	return nil
}

// trackContacts finds the fingertip and tests it against the live controls.
func (a *App) trackContacts(frame *sensor.Frame, corr *mapping.Correspondence, res *Result) {
	res.Controls = a.calibration.Controls()

	tip, err := a.fingers.Track(frame.Color)
	if err != nil {
		a.log.WithError(err).Warn("fingertip tracking failed")
	}
	res.Fingertip = tip
	if tip != nil {
		corr.SampleFingertip(tip)
		res.Contacts = a.contacts.Detect(tip, res.Controls, corr, frame.Timestamp)
	}

	a.mu.RLock()
	listeners := a.listeners
	calID := a.calibrationID
	a.mu.RUnlock()

	for _, l := range listeners {
		l.HandleContacts(res.Contacts)
	}

	if a.store != nil && len(res.Contacts) > 0 {
		if err := a.store.Contacts().Record(calID, res.Contacts); err != nil {
			a.log.WithError(err).Warn("failed to log contacts")
		}
	}
}

func (a *App) publish(frame *sensor.Frame, res *Result) {
	if a.sink == nil {
		return
	}
	out := a.renderer.Render(frame.Color, render.Overlay{
		Phase:      res.Phase,
		Candidates: res.Candidates,
		Controls:   res.Controls,
		Fingertip:  res.Fingertip,
		Contacts:   res.Contacts,
		FPS:        res.FPS,
	})
	a.sink.Publish(out)
}

// Commit freezes the latest staged controls and switches to running. With a
// store the calibration is saved. It returns the committed controls.
func (a *App) Commit() ([]surface.Control, error) {
	controls, err := a.calibration.Commit()
	if err != nil {
		return nil, err
	}

	counts := surface.CountByType(controls)
	a.log.WithFields(logrus.Fields{
		"controls": len(controls),
		"square":   counts[surface.Square],
		"circle":   counts[surface.Circle],
		"slider":   counts[surface.Slider],
	}).Info("calibration committed")

	if a.store != nil {
		cal := &store.Calibration{
			ColorWidth:  a.config.Geometry.ColorWidth,
			ColorHeight: a.config.Geometry.ColorHeight,
			Controls:    controls,
		}
		if err := a.store.Calibrations().Save(cal); err != nil {
			a.log.WithError(err).Error("failed to save calibration")
		} else {
			a.mu.Lock()
			a.calibrationID = cal.ID
			a.mu.Unlock()
		}
	}
	return controls, nil
}

// ResumeCalibration restores the most recent saved calibration and starts
// running with it. It returns store.ErrNotFound when nothing usable is saved.
func (a *App) ResumeCalibration() ([]surface.Control, error) {
	if a.store == nil {
		return nil, ErrNoStore
	}
	cal, err := a.store.Calibrations().Latest()
	if err != nil {
		return nil, err
	}
	g := a.config.Geometry
	if cal.ColorWidth != g.ColorWidth || cal.ColorHeight != g.ColorHeight {
		return nil, fmt.Errorf("%w: calibration %s was made at %dx%d",
			sensor.ErrGeometryMismatch, cal.ID, cal.ColorWidth, cal.ColorHeight)
	}

	if err := a.calibration.Restore(cal.Controls); err != nil {
		return nil, err
	}
	a.mu.Lock()
	a.calibrationID = cal.ID
	a.mu.Unlock()

	a.log.WithFields(logrus.Fields{"calibration": cal.ID, "controls": len(cal.Controls)}).
		Info("calibration resumed")
	return a.calibration.Controls(), nil
}

// SetModel installs a classifier model. A nil model disables classification.
func (a *App) SetModel(m *classifier.Model) error {
	return a.classifier.SetModel(m)
}

// ReloadModel installs the active model from the store. Without an active
// model classification is disabled and only candidate outlines are reported.
func (a *App) ReloadModel() error {
	if a.store == nil {
		return ErrNoStore
	}

	rec, m, err := a.store.Models().Active()
	if errors.Is(err, store.ErrNotFound) {
		a.log.Warn("no trained model available, shapes will not be classified")
		return a.classifier.SetModel(nil)
	}
	if err != nil {
		return err
	}
	if err := a.classifier.SetModel(m); err != nil {
		return err
	}
	a.log.WithFields(logrus.Fields{"model": rec.ID, "name": rec.Name, "accuracy": rec.Accuracy}).
		Info("classifier model loaded")
	return nil
}

// CaptureSamples arms a one-shot capture: the next calibrating frame stores
// the edge patch of every candidate as a training sample labelled label.
func (a *App) CaptureSamples(label surface.ControlType) error {
	if a.store == nil {
		return ErrNoStore
	}
	if !label.Valid() {
		return fmt.Errorf("invalid sample label %d", label)
	}
	if a.calibration.Phase() != surface.PhaseCalibrating {
		return ErrAlreadyRunning
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	a.capture = label
	return nil
}

func (a *App) takeCapture() surface.ControlType {
	a.mu.Lock()
	defer a.mu.Unlock()
	label := a.capture
	a.capture = surface.Unknown
	return label
}

func (a *App) captureSamples(label surface.ControlType, det *detector.ShapeDetection) int {
	stored := 0
	for _, cand := range det.Candidates {
		patch, err := a.classifier.Preprocess(cand.Bounds, det.Edges)
		if err != nil {
			continue
		}
		_, err = a.store.Samples().Add(label, patch)
		patch.Close()
		if err != nil {
			a.log.WithError(err).Warn("failed to store sample")
			continue
		}
		stored++
	}
	a.log.WithFields(logrus.Fields{"label": label.String(), "samples": stored}).Info("samples captured")
	return stored
}

// State returns a snapshot of the application state.
func (a *App) State() State {
	phase := a.calibration.Phase()

	a.mu.RLock()
	calID := a.calibrationID
	capture := a.capture
	running := a.stopCh != nil
	a.mu.RUnlock()

	s := State{
		Phase:          phase,
		PhaseName:      phase.String(),
		Running:        running,
		Controls:       a.calibration.Controls(),
		Staged:         len(a.calibration.Staged()),
		FPS:            a.fps.Current(),
		MeanFPS:        a.fps.Mean(),
		Frames:         a.frames.Load(),
		ModelAvailable: a.classifier.Available(),
		CalibrationID:  calID,
	}
	if capture.Valid() {
		s.CaptureLabel = capture.String()
	}
	return s
}
