package server

import (
	"fmt"
	"net/http"
	"sync"

	"gocv.io/x/gocv"
	"golang.org/x/time/rate"
)

// DefaultJPEGQuality is the encoding quality of streamed frames.
const DefaultJPEGQuality = 80

// FrameBuffer keeps the latest rendered frame as JPEG. It is the pipeline's
// frame sink.
type FrameBuffer struct {
	quality int

	mu   sync.RWMutex
	jpeg []byte
	seq  uint64
}

// NewFrameBuffer creates a FrameBuffer encoding at the given JPEG quality.
func NewFrameBuffer(quality int) *FrameBuffer {
	if quality <= 0 || quality > 100 {
		quality = DefaultJPEGQuality
	}
	return &FrameBuffer{quality: quality}
}

// Publish encodes img and replaces the buffered frame. It closes img.
func (b *FrameBuffer) Publish(img gocv.Mat) {
	defer img.Close()
	if img.Empty() {
		return
	}

	buf, err := gocv.IMEncodeWithParams(gocv.JPEGFileExt, img, []int{gocv.IMWriteJpegQuality, b.quality})
	if err != nil {
		return
	}
	data := append([]byte(nil), buf.GetBytes()...)
	buf.Close()

	b.mu.Lock()
	b.jpeg = data
	b.seq++
	b.mu.Unlock()
}

// Latest returns the buffered JPEG and its sequence number. The sequence is
// zero until the first frame arrives.
func (b *FrameBuffer) Latest() ([]byte, uint64) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.jpeg, b.seq
}

// StreamHandler serves buffered frames as an MJPEG stream.
type StreamHandler struct {
	frames *FrameBuffer
	fps    float64
}

// NewStreamHandler creates a new StreamHandler sending at most fps frames per
// second to each client.
func NewStreamHandler(frames *FrameBuffer, fps float64) *StreamHandler {
	if fps <= 0 {
		fps = 15
	}
	return &StreamHandler{frames: frames, fps: fps}
}

// ServeHTTP streams MJPEG frames until the client goes away.
func (h *StreamHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	w.Header().Set("Content-Type", "multipart/x-mixed-replace; boundary=frame")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	limiter := rate.NewLimiter(rate.Limit(h.fps), 1)
	var sent uint64
	for {
		if err := limiter.Wait(r.Context()); err != nil {
			return
		}

		frame, seq := h.frames.Latest()
		if seq == sent {
			continue
		}
		sent = seq

		fmt.Fprintf(w, "--frame\r\n")
		fmt.Fprintf(w, "Content-Type: image/jpeg\r\n")
		fmt.Fprintf(w, "Content-Length: %d\r\n\r\n", len(frame))
		if _, err := w.Write(frame); err != nil {
			return
		}
		fmt.Fprintf(w, "\r\n")

		if f, ok := w.(http.Flusher); ok {
			f.Flush()
		}
	}
}

// SnapshotHandler serves the latest frame as a single JPEG.
type SnapshotHandler struct {
	frames *FrameBuffer
}

// ServeHTTP handles GET /api/snapshot.
func (h *SnapshotHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	frame, seq := h.frames.Latest()
	if seq == 0 {
		http.Error(w, "No frame yet", http.StatusServiceUnavailable)
		return
	}
	w.Header().Set("Content-Type", "image/jpeg")
	w.Header().Set("Cache-Control", "no-cache")
	w.Write(frame)
}
