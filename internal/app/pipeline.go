package app

import (
	"context"
	"errors"
	"time"

	"github.com/ayusman/tabletouch/internal/sensor"
)

// Start opens the device and begins acquiring frames at the configured rate.
// Calling Start on a running app is a no-op. The loop ends when ctx is done
// or Stop is called.
func (a *App) Start(ctx context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.stopCh != nil {
		return nil
	}
	if a.device == nil {
		return ErrNoDevice
	}
	if err := a.device.Open(); err != nil {
		return err
	}

	a.stopCh = make(chan struct{})
	a.done = make(chan struct{})
	go a.runPipeline(ctx, a.stopCh, a.done)

	a.log.WithField("fps", a.frameRate()).Info("pipeline started")
	return nil
}

// Stop halts the acquisition loop, waits for the frame in flight and closes
// the device.
func (a *App) Stop() {
	a.mu.Lock()
	stopCh, done := a.stopCh, a.done
	a.stopCh, a.done = nil, nil
	a.mu.Unlock()

	if stopCh == nil {
		return
	}
	close(stopCh)
	<-done

	if err := a.device.Close(); err != nil {
		a.log.WithError(err).Warn("error closing device")
	}
	a.log.Info("pipeline stopped")
}

// Close stops the pipeline and releases the fingertip tracker.
func (a *App) Close() error {
	a.Stop()
	return a.fingers.Close()
}

func (a *App) frameRate() float64 {
	if a.config.FPS <= 0 {
		return DefaultConfig().FPS
	}
	return a.config.FPS
}

// runPipeline pulls one frame per tick and hands it to ProcessFrame. Missing
// frames are skipped quietly; other failures are logged and the loop goes on.
func (a *App) runPipeline(ctx context.Context, stopCh <-chan struct{}, done chan<- struct{}) {
	defer close(done)

	ticker := time.NewTicker(time.Duration(float64(time.Second) / a.frameRate()))
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-stopCh:
			return
		case <-ticker.C:
			a.step()
		}
	}
}

func (a *App) step() {
	frame, err := a.device.AcquireFrame()
	if errors.Is(err, sensor.ErrNoFrame) {
		return
	}
	if err != nil {
		a.log.WithError(err).Warn("error acquiring frame")
		return
	}
	defer frame.Close()

	if _, err := a.ProcessFrame(frame); err != nil && !errors.Is(err, sensor.ErrNoFrame) {
		a.log.WithError(err).Warn("error processing frame")
	}
}
