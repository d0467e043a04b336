// Package training fits classifier models from the shape samples kept in the
// store.
package training

import (
	"context"
	"errors"
	"fmt"
	"image"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"gocv.io/x/gocv"

	"github.com/ayusman/tabletouch/internal/classifier"
	"github.com/ayusman/tabletouch/internal/store"
	"github.com/ayusman/tabletouch/internal/surface"
)

// ErrTooFewLabels is returned when the samples do not cover at least two
// control types.
var ErrTooFewLabels = errors.New("samples cover fewer than two control types")

// Report describes a finished training run.
type Report struct {
	Model    *store.ModelRecord
	Result   classifier.TrainResult
	Used     int
	Skipped  int
	Duration time.Duration
}

// Service trains models and keeps the live classifier in sync with the
// active one.
type Service struct {
	store      *store.Store
	classifier *classifier.Classifier
	trainer    *classifier.Trainer
	log        logrus.FieldLogger
}

// NewService creates a Service. The classifier supplies the descriptor layout
// and receives newly activated models; it may be nil.
func NewService(s *store.Store, c *classifier.Classifier, config classifier.TrainerConfig, log logrus.FieldLogger) *Service {
	return &Service{
		store:      s,
		classifier: c,
		trainer:    classifier.NewTrainer(config),
		log:        log,
	}
}

func (s *Service) descriptorSource() (*classifier.Classifier, error) {
	if s.classifier != nil {
		return s.classifier, nil
	}
	return classifier.New(classifier.DefaultConfig())
}

// Train fits a model on every stored sample and saves it under name. With
// activate set the model becomes the active one and is installed in the
// classifier. Samples whose patch does not fit the descriptor are skipped.
func (s *Service) Train(ctx context.Context, name string, activate bool) (*Report, error) {
	start := time.Now()

	c, err := s.descriptorSource()
	if err != nil {
		return nil, err
	}

	stored, err := s.store.Samples().List()
	if err != nil {
		return nil, fmt.Errorf("list samples: %w", err)
	}

	report := &Report{}
	samples := make([]classifier.Sample, 0, len(stored))
	labels := make(map[surface.ControlType]bool)
	for _, ss := range stored {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		features, err := describe(c, ss)
		if err != nil {
			s.log.WithError(err).WithField("sample", ss.ID).Debug("skipping sample")
			report.Skipped++
			continue
		}
		samples = append(samples, classifier.Sample{Label: int(ss.Label), Features: features})
		labels[ss.Label] = true
	}
	if len(samples) == 0 {
		return nil, classifier.ErrNoSamples
	}
	if len(labels) < 2 {
		return nil, ErrTooFewLabels
	}

	model, res, err := s.trainer.Train(c.Config().Descriptor, samples)
	if err != nil {
		return nil, err
	}

	if name == "" {
		name = "model-" + start.UTC().Format("20060102-150405")
	}
	rec, err := s.store.Models().Create(name, model, len(samples), res.Accuracy, activate)
	if err != nil {
		return nil, fmt.Errorf("save model: %w", err)
	}

	if activate && s.classifier != nil {
		if err := s.classifier.SetModel(model); err != nil {
			return nil, err
		}
	}

	report.Model = rec
	report.Result = res
	report.Used = len(samples)
	report.Duration = time.Since(start)

	s.log.WithFields(logrus.Fields{
		"model":    rec.ID,
		"samples":  report.Used,
		"skipped":  report.Skipped,
		"accuracy": res.Accuracy,
		"epochs":   res.Epochs,
		"active":   activate,
	}).Info("model trained")
	return report, nil
}

func describe(c *classifier.Classifier, ss store.ShapeSample) ([]float64, error) {
	patch, err := ss.Decode()
	if err != nil {
		return nil, err
	}
	defer patch.Close()
	return c.Features(patch)
}

// Activate makes a stored model the active one and installs it. A model
// whose descriptor does not fit the classifier is left inactive.
func (s *Service) Activate(id string) error {
	if s.classifier != nil {
		m, err := s.store.Models().Load(id)
		if err != nil {
			return err
		}
		if err := s.classifier.SetModel(m); err != nil {
			return err
		}
	}
	return s.store.Models().SetActive(id)
}

// ImportDir loads labelled patches from a directory with one sub-directory
// per control type ("square", "circle", "slider"). Images are converted to
// grayscale and resized to the descriptor patch size. Files that cannot be
// read are skipped. It returns the number of samples stored.
func (s *Service) ImportDir(ctx context.Context, dir string) (int, error) {
	c, err := s.descriptorSource()
	if err != nil {
		return 0, err
	}
	side := c.Config().Descriptor.PatchSize

	imported := 0
	for _, t := range surface.ControlTypes {
		entries, err := os.ReadDir(filepath.Join(dir, t.String()))
		if errors.Is(err, os.ErrNotExist) {
			continue
		}
		if err != nil {
			return imported, err
		}

		for _, e := range entries {
			if err := ctx.Err(); err != nil {
				return imported, err
			}
			if e.IsDir() || !isImage(e.Name()) {
				continue
			}

			path := filepath.Join(dir, t.String(), e.Name())
			if err := s.importFile(path, t, side); err != nil {
				s.log.WithError(err).WithField("file", path).Warn("skipping sample image")
				continue
			}
			imported++
		}
	}

	s.log.WithFields(logrus.Fields{"dir": dir, "samples": imported}).Info("samples imported")
	return imported, nil
}

func (s *Service) importFile(path string, t surface.ControlType, side int) error {
	img := gocv.IMRead(path, gocv.IMReadGrayScale)
	if img.Empty() {
		img.Close()
		return fmt.Errorf("cannot decode %s", path)
	}
	defer img.Close()

	patch := gocv.NewMat()
	defer patch.Close()
	gocv.Resize(img, &patch, image.Pt(side, side), 0, 0, gocv.InterpolationLinear)

	_, err := s.store.Samples().Add(t, patch)
	return err
}

func isImage(name string) bool {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".png", ".jpg", ".jpeg", ".bmp":
		return true
	}
	return false
}
