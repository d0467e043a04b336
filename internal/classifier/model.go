package classifier

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"

	jsoniter "github.com/json-iterator/go"
	"gonum.org/v1/gonum/mat"

	"github.com/ayusman/tabletouch/internal/surface"
)

var (
	// ErrDescriptorMismatch is returned when a model was trained with a
	// different descriptor layout than the one configured.
	ErrDescriptorMismatch = errors.New("model descriptor does not match configuration")
	// ErrFeatureLength is returned for feature vectors of the wrong length.
	ErrFeatureLength = errors.New("feature vector has wrong length")
	// ErrCorruptModel is returned when a serialized model cannot be decoded.
	ErrCorruptModel = errors.New("corrupt model")
)

var modelMagic = [4]byte{'T', 'T', 'L', 'M'}

const modelVersion uint32 = 1

// Model is a multi-class linear classifier over descriptor vectors.
// Row i of Weights scores class Labels[i].
type Model struct {
	Descriptor DescriptorConfig
	Labels     []int
	Weights    *mat.Dense
	Bias       []float64
}

// NewModel returns a zero model for the given labels.
func NewModel(desc DescriptorConfig, labels []int) *Model {
	return &Model{
		Descriptor: desc,
		Labels:     append([]int(nil), labels...),
		Weights:    mat.NewDense(len(labels), desc.Len(), nil),
		Bias:       make([]float64, len(labels)),
	}
}

// Scores returns one score per class row.
func (m *Model) Scores(features []float64) ([]float64, error) {
	_, c := m.Weights.Dims()
	if len(features) != c {
		return nil, fmt.Errorf("%w: %d, want %d", ErrFeatureLength, len(features), c)
	}

	var out mat.VecDense
	out.MulVec(m.Weights, mat.NewVecDense(len(features), features))
	scores := make([]float64, len(m.Labels))
	for i := range scores {
		scores[i] = out.AtVec(i) + m.Bias[i]
	}
	return scores, nil
}

// Predict returns the label of the highest-scoring class.
func (m *Model) Predict(features []float64) (int, error) {
	scores, err := m.Scores(features)
	if err != nil {
		return 0, err
	}
	return m.Labels[argmax(scores)], nil
}

// PredictType maps the predicted label onto a control type.
// Labels outside the closed set yield surface.Unknown.
func (m *Model) PredictType(features []float64) (surface.ControlType, error) {
	label, err := m.Predict(features)
	if err != nil {
		return surface.Unknown, err
	}
	return surface.ControlTypeFromLabel(label), nil
}

func argmax(v []float64) int {
	best := 0
	for i := 1; i < len(v); i++ {
		if v[i] > v[best] {
			best = i
		}
	}
	return best
}

// modelHeader precedes the weight matrix in the serialized model.
type modelHeader struct {
	Version    uint32           `json:"version"`
	Descriptor DescriptorConfig `json:"descriptor"`
	Labels     []int            `json:"labels"`
	Bias       []float64        `json:"bias"`
}

// maxHeaderLen bounds the header a reader will allocate for.
const maxHeaderLen = 1 << 20

var headerJSON = jsoniter.ConfigCompatibleWithStandardLibrary

// MarshalBinary encodes the model as a magic number, a length-prefixed JSON
// header carrying the descriptor layout, labels and bias, and the gonum
// weight matrix.
func (m *Model) MarshalBinary() ([]byte, error) {
	header, err := headerJSON.Marshal(modelHeader{
		Version:    modelVersion,
		Descriptor: m.Descriptor,
		Labels:     m.Labels,
		Bias:       m.Bias,
	})
	if err != nil {
		return nil, fmt.Errorf("encode header: %w", err)
	}

	var buf bytes.Buffer
	buf.Write(modelMagic[:])
	if err := binary.Write(&buf, binary.LittleEndian, uint32(len(header))); err != nil {
		return nil, err
	}
	buf.Write(header)

	if _, err := m.Weights.MarshalBinaryTo(&buf); err != nil {
		return nil, fmt.Errorf("encode weights: %w", err)
	}
	return buf.Bytes(), nil
}

// UnmarshalBinary decodes a model written by MarshalBinary.
func (m *Model) UnmarshalBinary(data []byte) error {
	r := bytes.NewReader(data)

	var magic [4]byte
	if _, err := io.ReadFull(r, magic[:]); err != nil || magic != modelMagic {
		return fmt.Errorf("%w: bad magic", ErrCorruptModel)
	}

	var size uint32
	if err := binary.Read(r, binary.LittleEndian, &size); err != nil {
		return fmt.Errorf("%w: %v", ErrCorruptModel, err)
	}
	if size == 0 || size > maxHeaderLen || int64(size) > int64(r.Len()) {
		return fmt.Errorf("%w: header length %d", ErrCorruptModel, size)
	}
	raw := make([]byte, size)
	if _, err := io.ReadFull(r, raw); err != nil {
		return fmt.Errorf("%w: %v", ErrCorruptModel, err)
	}

	var h modelHeader
	if err := headerJSON.Unmarshal(raw, &h); err != nil {
		return fmt.Errorf("%w: header: %v", ErrCorruptModel, err)
	}
	if h.Version != modelVersion {
		return fmt.Errorf("%w: unsupported version %d", ErrCorruptModel, h.Version)
	}
	if err := h.Descriptor.Validate(); err != nil {
		return fmt.Errorf("%w: %v", ErrCorruptModel, err)
	}
	n := len(h.Labels)
	if n == 0 || len(h.Bias) != n {
		return fmt.Errorf("%w: %d labels, %d biases", ErrCorruptModel, n, len(h.Bias))
	}

	var w mat.Dense
	if _, err := w.UnmarshalBinaryFrom(r); err != nil {
		return fmt.Errorf("%w: weights: %v", ErrCorruptModel, err)
	}
	rows, cols := w.Dims()
	if rows != n || cols != h.Descriptor.Len() {
		return fmt.Errorf("%w: weights are %dx%d, want %dx%d", ErrCorruptModel, rows, cols, n, h.Descriptor.Len())
	}

	m.Descriptor = h.Descriptor
	m.Labels = h.Labels
	m.Bias = h.Bias
	m.Weights = &w
	return nil
}

// Save writes the model to path.
func (m *Model) Save(path string) error {
	data, err := m.MarshalBinary()
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

// LoadModel reads a model written by Save.
func LoadModel(path string) (*Model, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	m := &Model{}
	if err := m.UnmarshalBinary(data); err != nil {
		return nil, err
	}
	return m, nil
}
