package classifier

import (
	"errors"
	"fmt"
	"math/rand"
	"sort"

	"gonum.org/v1/gonum/floats"
)

// ErrNoSamples is returned when training is attempted without samples.
var ErrNoSamples = errors.New("no training samples")

// Sample is one labelled descriptor vector.
type Sample struct {
	Label    int
	Features []float64
}

// TrainerConfig holds options for linear model training.
type TrainerConfig struct {
	Epochs       int
	LearningRate float64
	// Lambda is the L2 weight decay applied once per epoch.
	Lambda float64
	Margin float64
	Seed   int64
}

// DefaultTrainerConfig returns a TrainerConfig with sensible default values.
func DefaultTrainerConfig() TrainerConfig {
	return TrainerConfig{
		Epochs:       50,
		LearningRate: 0.05,
		Lambda:       1e-4,
		Margin:       1.0,
		Seed:         1,
	}
}

// TrainResult summarises a training run.
type TrainResult struct {
	Epochs     int
	Violations int
	Accuracy   float64
	PerLabel   map[int]int
}

// Trainer fits a multi-class hinge-loss linear model by stochastic gradient descent.
type Trainer struct {
	config TrainerConfig
}

// NewTrainer creates a new Trainer instance.
func NewTrainer(config TrainerConfig) *Trainer {
	return &Trainer{config: config}
}

// Train fits a model for desc from samples. Training stops early once an
// epoch passes without any margin violation.
func (t *Trainer) Train(desc DescriptorConfig, samples []Sample) (*Model, TrainResult, error) {
	if len(samples) == 0 {
		return nil, TrainResult{}, ErrNoSamples
	}

	n := desc.Len()
	perLabel := make(map[int]int)
	for i, s := range samples {
		if len(s.Features) != n {
			return nil, TrainResult{}, fmt.Errorf("sample %d: %w: %d, want %d", i, ErrFeatureLength, len(s.Features), n)
		}
		perLabel[s.Label]++
	}

	labels := make([]int, 0, len(perLabel))
	for l := range perLabel {
		labels = append(labels, l)
	}
	sort.Ints(labels)
	row := make(map[int]int, len(labels))
	for i, l := range labels {
		row[l] = i
	}

	model := NewModel(desc, labels)
	rng := rand.New(rand.NewSource(t.config.Seed))
	order := rng.Perm(len(samples))

	result := TrainResult{PerLabel: perLabel}
	for epoch := 1; epoch <= t.config.Epochs; epoch++ {
		rng.Shuffle(len(order), func(i, j int) { order[i], order[j] = order[j], order[i] })

		violations := 0
		for _, idx := range order {
			s := samples[idx]
			if t.step(model, row[s.Label], s.Features) {
				violations++
			}
		}

		if t.config.Lambda > 0 {
			model.Weights.Scale(1-t.config.LearningRate*t.config.Lambda, model.Weights)
		}

		result.Epochs = epoch
		result.Violations = violations
		if violations == 0 {
			break
		}
	}

	correct := 0
	for _, s := range samples {
		if label, err := model.Predict(s.Features); err == nil && label == s.Label {
			correct++
		}
	}
	result.Accuracy = float64(correct) / float64(len(samples))

	return model, result, nil
}

// step applies one hinge update and reports whether the margin was violated.
func (t *Trainer) step(m *Model, truth int, x []float64) bool {
	scores, err := m.Scores(x)
	if err != nil {
		return false
	}
	if len(scores) < 2 {
		return false
	}

	rival := -1
	for i, s := range scores {
		if i == truth {
			continue
		}
		if rival < 0 || s > scores[rival] {
			rival = i
		}
	}

	if scores[truth]-scores[rival] >= t.config.Margin {
		return false
	}

	lr := t.config.LearningRate
	floats.AddScaled(m.Weights.RawRowView(truth), lr, x)
	floats.AddScaled(m.Weights.RawRowView(rival), -lr, x)
	m.Bias[truth] += lr
	m.Bias[rival] -= lr
	return true
}
