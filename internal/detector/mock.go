package detector

import (
	"sync"

	"gocv.io/x/gocv"

	"github.com/ayusman/tabletouch/internal/surface"
)

// MockDetector is a test implementation of ShapeFinder and FingerFinder.
// It allows tests to control the detection results.
type MockDetector struct {
	mu         sync.Mutex
	candidates []surface.Candidate
	fingertip  *surface.Fingertip
	err        error
	calls      int
}

// NewMockDetector creates a new MockDetector instance.
func NewMockDetector() *MockDetector {
	return &MockDetector{}
}

// SetCandidates sets the candidates that will be returned by Detect.
func (m *MockDetector) SetCandidates(candidates []surface.Candidate) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.candidates = candidates
}

// SetFingertip sets the fingertip that will be returned by Track.
// A nil fingertip simulates a frame without a qualifying blob.
func (m *MockDetector) SetFingertip(tip *surface.Fingertip) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.fingertip = tip
}

// SetError sets the error that will be returned by Detect and Track.
func (m *MockDetector) SetError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.err = err
}

// Calls returns how many times Detect or Track was invoked.
func (m *MockDetector) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

// Detect returns the pre-configured candidates with a grayscale copy of the
// frame standing in for the edge map.
func (m *MockDetector) Detect(color gocv.Mat) (*ShapeDetection, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++

	if m.err != nil {
		return nil, m.err
	}

	edges := gocv.NewMat()
	if !color.Empty() {
		toGray(color, &edges)
	}
	out := make([]surface.Candidate, len(m.candidates))
	copy(out, m.candidates)
	return &ShapeDetection{Candidates: out, Edges: edges}, nil
}

// Track returns the pre-configured fingertip or error.
func (m *MockDetector) Track(color gocv.Mat) (*surface.Fingertip, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++

	if m.err != nil {
		return nil, m.err
	}
	if m.fingertip == nil {
		return nil, nil
	}
	tip := *m.fingertip
	return &tip, nil
}

// Close is a no-op for the mock detector.
func (m *MockDetector) Close() error {
	return nil
}
