package plugin

import (
	"context"
	"math"
	"sync"
	"sync/atomic"

	"github.com/sirupsen/logrus"

	"github.com/ayusman/tabletouch/internal/surface"
)

// BindingSource supplies the current control-type to action bindings.
type BindingSource interface {
	Bindings() ([]Binding, error)
}

// DispatcherConfig holds configuration options for the Dispatcher.
type DispatcherConfig struct {
	// QueueSize bounds the touches waiting for a plugin run. Touches arriving
	// while the queue is full are dropped.
	QueueSize int
	// SliderStep is the position change that re-fires a held slider.
	SliderStep float64
}

// DefaultDispatcherConfig returns a DispatcherConfig with sensible default values.
func DefaultDispatcherConfig() DispatcherConfig {
	return DispatcherConfig{
		QueueSize:  16,
		SliderStep: 0.05,
	}
}

// Dispatcher turns per-frame contact events into plugin runs. A control fires
// once when it is first touched and again only after the fingertip leaves it.
// A held slider also fires whenever the fingertip moves along it by at least
// SliderStep.
type Dispatcher struct {
	manager  *Manager
	executor *Executor
	source   BindingSource
	config   DispatcherConfig
	log      logrus.FieldLogger

	mu   sync.Mutex
	held map[string]float64

	queue   chan surface.ContactEvent
	wg      sync.WaitGroup
	cancel  context.CancelFunc
	fired   atomic.Int64
	dropped atomic.Int64
}

// NewDispatcher creates a Dispatcher. Call Start to begin running plugins.
func NewDispatcher(manager *Manager, executor *Executor, source BindingSource, config DispatcherConfig, log logrus.FieldLogger) *Dispatcher {
	if config.QueueSize <= 0 {
		config.QueueSize = 1
	}
	return &Dispatcher{
		manager:  manager,
		executor: executor,
		source:   source,
		config:   config,
		log:      log,
		held:     make(map[string]float64),
		queue:    make(chan surface.ContactEvent, config.QueueSize),
	}
}

// Start launches the worker that runs queued touches. It is a no-op when the
// dispatcher is already running.
func (d *Dispatcher) Start(ctx context.Context) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.cancel != nil {
		return
	}

	ctx, d.cancel = context.WithCancel(ctx)
	d.wg.Add(1)
	go d.run(ctx)
}

// Stop halts the worker and waits for the running plugin, if any, to finish.
// Touches still queued are discarded.
func (d *Dispatcher) Stop() {
	d.mu.Lock()
	cancel := d.cancel
	d.cancel = nil
	d.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	d.wg.Wait()
}

// HandleContacts receives the complete contact set of one frame. Controls
// missing from events count as released.
func (d *Dispatcher) HandleContacts(events []surface.ContactEvent) {
	d.mu.Lock()
	defer d.mu.Unlock()

	current := make(map[string]bool, len(events))
	for _, e := range events {
		current[e.ControlID] = true
		pos := e.Position()

		last, held := d.held[e.ControlID]
		switch {
		case !held:
		case e.ControlType == surface.Slider && math.Abs(pos-last) >= d.config.SliderStep:
		default:
			continue
		}
		d.held[e.ControlID] = pos

		select {
		case d.queue <- e:
			d.fired.Add(1)
		default:
			d.dropped.Add(1)
			d.log.WithField("control", e.ControlID).Warn("plugin queue full, touch dropped")
		}
	}

	for id := range d.held {
		if !current[id] {
			delete(d.held, id)
		}
	}
}

// Fired returns the number of touches queued for execution.
func (d *Dispatcher) Fired() int64 {
	return d.fired.Load()
}

// Dropped returns the number of touches dropped because the queue was full.
func (d *Dispatcher) Dropped() int64 {
	return d.dropped.Load()
}

func (d *Dispatcher) run(ctx context.Context) {
	defer d.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case e := <-d.queue:
			d.dispatch(ctx, e)
		}
	}
}

func (d *Dispatcher) dispatch(ctx context.Context, e surface.ContactEvent) {
	bindings, err := d.source.Bindings()
	if err != nil {
		d.log.WithError(err).Error("failed to load bindings")
		return
	}

	for _, b := range bindings {
		if b.ControlType != e.ControlType {
			continue
		}
		log := d.log.WithFields(logrus.Fields{
			"control": e.ControlID,
			"plugin":  b.Plugin,
			"action":  b.Action,
		})

		p, err := d.manager.Get(b.Plugin)
		if err != nil {
			log.WithError(err).Warn("bound plugin unavailable")
			continue
		}
		if !p.Manifest.HasAction(b.Action) {
			log.Warn("plugin does not declare bound action")
			continue
		}

		resp, err := d.executor.Execute(ctx, p, NewRequest(b.Action, e, b.Config))
		switch {
		case err != nil:
			log.WithError(err).Error("plugin run failed")
		case !resp.Success:
			log.WithField("error", resp.Error).Warn("plugin reported failure")
		default:
			log.Debug("plugin run succeeded")
		}
	}
}
