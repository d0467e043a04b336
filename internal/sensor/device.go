package sensor

// Device is the sensor collaborator delivering synchronized frame bundles.
type Device interface {
	Open() error
	Close() error
	IsOpen() bool

	// Geometry is fixed for the lifetime of the device.
	Geometry() Geometry

	// Mapper returns the device's color-to-depth coordinate mapping.
	Mapper() CoordinateMapper

	// AcquireFrame returns the next frame bundle, or ErrNoFrame when no complete
	// bundle is available this cycle. The caller must Close the returned frame.
	AcquireFrame() (*Frame, error)
}
