package detector

import (
	"image"
	"math"
	"sync"

	"gocv.io/x/gocv"

	"github.com/ayusman/tabletouch/internal/surface"
)

// FingertipTracker picks the largest round blob in a frame as the fingertip.
// No identity is kept between frames.
type FingertipTracker struct {
	config TrackerConfig

	mu     sync.Mutex
	blobs  gocv.SimpleBlobDetector
	closed bool
}

// NewFingertipTracker creates a tracker backed by an OpenCV blob detector.
func NewFingertipTracker(config TrackerConfig) *FingertipTracker {
	params := gocv.NewSimpleBlobDetectorParams()
	params.SetFilterByCircularity(true)
	params.SetMinCircularity(config.MinCircularity)
	params.SetMaxCircularity(config.MaxCircularity)
	params.SetFilterByArea(true)
	params.SetMinArea(config.MinArea)
	params.SetMaxArea(config.MaxArea)
	params.SetFilterByColor(true)
	params.SetBlobColor(config.BlobColor)

	return &FingertipTracker{
		config: config,
		blobs:  gocv.NewSimpleBlobDetectorWithParams(params),
	}
}

// Track implements FingerFinder.
func (t *FingertipTracker) Track(color gocv.Mat) (*surface.Fingertip, error) {
	if color.Empty() {
		return nil, ErrEmptyFrame
	}

	gray := gocv.NewMat()
	defer gray.Close()
	toGray(color, &gray)

	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return nil, nil
	}
	keypoints := t.blobs.Detect(gray)
	t.mu.Unlock()

	best, ok := largestKeyPoint(keypoints)
	if !ok {
		return nil, nil
	}

	center := image.Pt(int(math.Round(best.X)), int(math.Round(best.Y)))
	return &surface.Fingertip{
		Center: center,
		Size:   best.Size,
		Bounds: surface.FingertipBounds(center, best.Size),
	}, nil
}

// largestKeyPoint returns the keypoint with the greatest size.
// On ties the earliest keypoint wins.
func largestKeyPoint(kps []gocv.KeyPoint) (gocv.KeyPoint, bool) {
	if len(kps) == 0 {
		return gocv.KeyPoint{}, false
	}
	best := kps[0]
	for _, kp := range kps[1:] {
		if kp.Size > best.Size {
			best = kp
		}
	}
	return best, true
}

// Close releases the underlying blob detector.
func (t *FingertipTracker) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.closed {
		return nil
	}
	t.closed = true
	return t.blobs.Close()
}
