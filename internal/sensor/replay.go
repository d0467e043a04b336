package sensor

import (
	"encoding/binary"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"gocv.io/x/gocv"
)

// Depth reliability bounds reported by the Kinect v2, in millimetres.
const (
	DefaultMinReliableDepth = 500
	DefaultMaxReliableDepth = 4500
)

// Recorded bundle file names. Each bundle shares a numeric suffix.
const (
	colorPrefix = "color_"
	depthPrefix = "depth_"
	bodyPrefix  = "body_"
)

// ReplayDevice plays back frame bundles recorded to a directory.
// A bundle is a color_<n>.png image with a matching depth_<n>.raw file of
// little-endian uint16 distances and, optionally, a body_<n>.raw body-index map.
type ReplayDevice struct {
	dir      string
	geometry Geometry
	mapper   CoordinateMapper
	loop     bool

	mu      sync.Mutex
	running bool
	bundles []string
	index   int
}

// NewReplayDevice creates a ReplayDevice reading bundles from dir.
func NewReplayDevice(dir string, g Geometry, loop bool) *ReplayDevice {
	return &ReplayDevice{
		dir:      dir,
		geometry: g,
		mapper:   NewLinearMapper(g),
		loop:     loop,
	}
}

// Open scans the directory for recorded bundles.
func (d *ReplayDevice) Open() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.running {
		return nil
	}

	matches, err := filepath.Glob(filepath.Join(d.dir, colorPrefix+"*.png"))
	if err != nil {
		return fmt.Errorf("scan %s: %w", d.dir, err)
	}
	if len(matches) == 0 {
		return fmt.Errorf("no recorded frames in %s", d.dir)
	}

	bundles := make([]string, 0, len(matches))
	for _, m := range matches {
		name := strings.TrimSuffix(filepath.Base(m), ".png")
		bundles = append(bundles, strings.TrimPrefix(name, colorPrefix))
	}
	sort.Strings(bundles)

	d.bundles = bundles
	d.index = 0
	d.running = true
	return nil
}

// Close stops playback.
func (d *ReplayDevice) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.running = false
	d.bundles = nil
	return nil
}

// IsOpen returns true if the device is open.
func (d *ReplayDevice) IsOpen() bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	return d.running
}

// Geometry implements Device.
func (d *ReplayDevice) Geometry() Geometry {
	return d.geometry
}

// Mapper implements Device.
func (d *ReplayDevice) Mapper() CoordinateMapper {
	return d.mapper
}

// SetMapper replaces the coordinate mapper, e.g. with a calibrated one.
func (d *ReplayDevice) SetMapper(m CoordinateMapper) {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.mapper = m
}

// AcquireFrame loads the next recorded bundle.
// A bundle whose depth file is missing yields ErrNoFrame and is skipped.
func (d *ReplayDevice) AcquireFrame() (*Frame, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if !d.running {
		return nil, ErrDeviceNotOpen
	}

	if d.index >= len(d.bundles) {
		if !d.loop {
			return nil, ErrNoFrame
		}
		d.index = 0
	}

	id := d.bundles[d.index]
	d.index++

	depth, err := ReadDepthRaw(filepath.Join(d.dir, depthPrefix+id+".raw"))
	if errors.Is(err, os.ErrNotExist) {
		return nil, ErrNoFrame
	}
	if err != nil {
		return nil, err
	}

	color, err := loadColor(filepath.Join(d.dir, colorPrefix+id+".png"))
	if err != nil {
		return nil, err
	}

	frame := &Frame{
		Color: color,
		Depth: DepthFrame{
			Width:       d.geometry.DepthWidth,
			Height:      d.geometry.DepthHeight,
			Data:        depth,
			MinReliable: DefaultMinReliableDepth,
			MaxReliable: DefaultMaxReliableDepth,
		},
		Timestamp: time.Now().UnixNano(),
	}

	body, err := os.ReadFile(filepath.Join(d.dir, bodyPrefix+id+".raw"))
	if err == nil {
		frame.BodyIndex = body
	}

	return frame, nil
}

// loadColor reads an image and converts it to packed BGRA.
func loadColor(path string) (gocv.Mat, error) {
	img := gocv.IMRead(path, gocv.IMReadUnchanged)
	if img.Empty() {
		img.Close()
		return gocv.Mat{}, fmt.Errorf("read color image %s", path)
	}

	var code gocv.ColorConversionCode
	switch img.Channels() {
	case 4:
		return img, nil
	case 3:
		code = gocv.ColorBGRToBGRA
	case 1:
		code = gocv.ColorGrayToBGRA
	default:
		img.Close()
		return gocv.Mat{}, fmt.Errorf("color image %s has %d channels", path, img.Channels())
	}

	bgra := gocv.NewMat()
	gocv.CvtColor(img, &bgra, code)
	img.Close()
	return bgra, nil
}

// ReadDepthRaw reads a file of little-endian uint16 depth values.
func ReadDepthRaw(path string) ([]uint16, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	if len(raw)%2 != 0 {
		return nil, fmt.Errorf("depth file %s has odd length %d", path, len(raw))
	}

	data := make([]uint16, len(raw)/2)
	for i := range data {
		data[i] = binary.LittleEndian.Uint16(raw[i*2:])
	}
	return data, nil
}

// WriteDepthRaw writes depth values as little-endian uint16.
func WriteDepthRaw(path string, data []uint16) error {
	raw := make([]byte, len(data)*2)
	for i, v := range data {
		binary.LittleEndian.PutUint16(raw[i*2:], v)
	}
	return os.WriteFile(path, raw, 0o644)
}

// WriteBundle records frame under dir with the given sequence number so it can
// be played back by a ReplayDevice.
func WriteBundle(dir string, seq int, frame *Frame) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}

	id := fmt.Sprintf("%06d", seq)
	if ok := gocv.IMWrite(filepath.Join(dir, colorPrefix+id+".png"), frame.Color); !ok {
		return fmt.Errorf("write color image %s", id)
	}
	if err := WriteDepthRaw(filepath.Join(dir, depthPrefix+id+".raw"), frame.Depth.Data); err != nil {
		return err
	}
	if len(frame.BodyIndex) > 0 {
		if err := os.WriteFile(filepath.Join(dir, bodyPrefix+id+".raw"), frame.BodyIndex, 0o644); err != nil {
			return err
		}
	}
	return nil
}
