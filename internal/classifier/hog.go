package classifier

import (
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"
)

// ErrInvalidDescriptor is returned for a descriptor configuration whose
// windows, blocks and cells do not tile the patch.
var ErrInvalidDescriptor = errors.New("invalid descriptor configuration")

// DescriptorConfig describes the histogram-of-oriented-gradients layout.
// Sizes are in patch pixels. A model is only valid for the configuration it
// was trained with.
type DescriptorConfig struct {
	PatchSize    int `json:"patch_size"`
	WindowSize   int `json:"window_size"`
	WindowStride int `json:"window_stride"`
	BlockSize    int `json:"block_size"`
	BlockStride  int `json:"block_stride"`
	CellSize     int `json:"cell_size"`
	Bins         int `json:"bins"`
}

// DefaultDescriptorConfig returns the layout the shipped models use.
func DefaultDescriptorConfig() DescriptorConfig {
	return DescriptorConfig{
		PatchSize:    128,
		WindowSize:   32,
		WindowStride: 16,
		BlockSize:    4,
		BlockStride:  2,
		CellSize:     4,
		Bins:         9,
	}
}

// Validate checks that the layout tiles the patch exactly.
func (c DescriptorConfig) Validate() error {
	if c.PatchSize <= 0 || c.WindowSize <= 0 || c.WindowStride <= 0 ||
		c.BlockSize <= 0 || c.BlockStride <= 0 || c.CellSize <= 0 || c.Bins <= 0 {
		return fmt.Errorf("%w: non-positive field in %+v", ErrInvalidDescriptor, c)
	}
	if c.WindowSize > c.PatchSize || c.BlockSize > c.WindowSize {
		return fmt.Errorf("%w: window or block larger than its container", ErrInvalidDescriptor)
	}
	if (c.PatchSize-c.WindowSize)%c.WindowStride != 0 {
		return fmt.Errorf("%w: windows do not tile the patch", ErrInvalidDescriptor)
	}
	if (c.WindowSize-c.BlockSize)%c.BlockStride != 0 {
		return fmt.Errorf("%w: blocks do not tile the window", ErrInvalidDescriptor)
	}
	if c.BlockSize%c.CellSize != 0 {
		return fmt.Errorf("%w: cells do not tile the block", ErrInvalidDescriptor)
	}
	return nil
}

func (c DescriptorConfig) windowsPerSide() int { return (c.PatchSize-c.WindowSize)/c.WindowStride + 1 }
func (c DescriptorConfig) blocksPerSide() int  { return (c.WindowSize-c.BlockSize)/c.BlockStride + 1 }
func (c DescriptorConfig) cellsPerSide() int   { return c.BlockSize / c.CellSize }

// Len returns the length of the feature vector.
func (c DescriptorConfig) Len() int {
	w, b, cl := c.windowsPerSide(), c.blocksPerSide(), c.cellsPerSide()
	return w * w * b * b * cl * cl * c.Bins
}

// HOG computes descriptors for square grayscale patches.
type HOG struct {
	config DescriptorConfig

	// integral holds one summed-area table per orientation bin.
	integral [][]float64
	mag      []float64
	bin      []float64
}

// NewHOG creates a descriptor extractor for config.
func NewHOG(config DescriptorConfig) (*HOG, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}

	n := config.PatchSize
	h := &HOG{
		config:   config,
		integral: make([][]float64, config.Bins),
		mag:      make([]float64, n*n),
		bin:      make([]float64, n*n),
	}
	for i := range h.integral {
		h.integral[i] = make([]float64, (n+1)*(n+1))
	}
	return h, nil
}

// Config returns the descriptor layout.
func (h *HOG) Config() DescriptorConfig {
	return h.config
}

// Compute returns the descriptor of a PatchSize x PatchSize patch given as
// row-major 8-bit intensities. HOG is not safe for concurrent use.
func (h *HOG) Compute(patch []byte) ([]float64, error) {
	n := h.config.PatchSize
	if len(patch) != n*n {
		return nil, fmt.Errorf("patch has %d pixels, want %d", len(patch), n*n)
	}

	h.gradients(patch)
	h.accumulate()

	out := make([]float64, 0, h.config.Len())
	wps := h.config.windowsPerSide()
	bps := h.config.blocksPerSide()
	for wy := 0; wy < wps; wy++ {
		for wx := 0; wx < wps; wx++ {
			ox, oy := wx*h.config.WindowStride, wy*h.config.WindowStride
			for by := 0; by < bps; by++ {
				for bx := 0; bx < bps; bx++ {
					out = h.appendBlock(out, ox+bx*h.config.BlockStride, oy+by*h.config.BlockStride)
				}
			}
		}
	}
	return out, nil
}

// gradients computes per-pixel magnitude and unsigned orientation (in bins)
// with centred differences, replicating the border.
func (h *HOG) gradients(patch []byte) {
	n := h.config.PatchSize
	binWidth := math.Pi / float64(h.config.Bins)

	at := func(x, y int) float64 {
		if x < 0 {
			x = 0
		} else if x >= n {
			x = n - 1
		}
		if y < 0 {
			y = 0
		} else if y >= n {
			y = n - 1
		}
		return float64(patch[y*n+x])
	}

	for y := 0; y < n; y++ {
		for x := 0; x < n; x++ {
			gx := at(x+1, y) - at(x-1, y)
			gy := at(x, y+1) - at(x, y-1)
			angle := math.Atan2(gy, gx)
			if angle < 0 {
				angle += math.Pi
			}
			if angle >= math.Pi {
				angle -= math.Pi
			}
			h.mag[y*n+x] = math.Hypot(gx, gy)
			h.bin[y*n+x] = angle/binWidth - 0.5
		}
	}
}

// accumulate builds the per-bin summed-area tables, splitting each pixel's
// magnitude linearly between its two nearest orientation bins.
func (h *HOG) accumulate() {
	n := h.config.PatchSize
	bins := h.config.Bins
	stride := n + 1

	for b := range h.integral {
		tbl := h.integral[b]
		for i := range tbl {
			tbl[i] = 0
		}
	}

	for y := 0; y < n; y++ {
		for x := 0; x < n; x++ {
			m := h.mag[y*n+x]
			if m == 0 {
				continue
			}
			pos := h.bin[y*n+x]
			lo := int(math.Floor(pos))
			frac := pos - float64(lo)
			b0 := (lo + bins) % bins
			b1 := (lo + 1) % bins
			h.integral[b0][(y+1)*stride+x+1] += m * (1 - frac)
			h.integral[b1][(y+1)*stride+x+1] += m * frac
		}
	}

	for _, tbl := range h.integral {
		for y := 1; y <= n; y++ {
			for x := 1; x <= n; x++ {
				i := y*stride + x
				tbl[i] += tbl[i-1] + tbl[i-stride] - tbl[i-stride-1]
			}
		}
	}
}

func (h *HOG) cellSum(bin, x, y, size int) float64 {
	stride := h.config.PatchSize + 1
	tbl := h.integral[bin]
	x1, y1 := x+size, y+size
	return tbl[y1*stride+x1] - tbl[y*stride+x1] - tbl[y1*stride+x] + tbl[y*stride+x]
}

// appendBlock appends the L2-Hys normalised histogram of the block at (x, y).
func (h *HOG) appendBlock(out []float64, x, y int) []float64 {
	start := len(out)
	cps := h.config.cellsPerSide()
	cs := h.config.CellSize
	for cy := 0; cy < cps; cy++ {
		for cx := 0; cx < cps; cx++ {
			for b := 0; b < h.config.Bins; b++ {
				out = append(out, h.cellSum(b, x+cx*cs, y+cy*cs, cs))
			}
		}
	}

	block := out[start:]
	normalize(block)
	for i, v := range block {
		if v > 0.2 {
			block[i] = 0.2
		}
	}
	normalize(block)
	return out
}

func normalize(v []float64) {
	norm := math.Sqrt(floats.Dot(v, v) + 1e-6)
	floats.Scale(1/norm, v)
}
