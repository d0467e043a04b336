// Package config loads process configuration from the environment.
//
// Every setting has a TABLETOUCH_ prefixed variable. Variables may also come
// from a .env file in the working directory; real environment variables win.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"

	"github.com/ayusman/tabletouch/internal/sensor"
)

// Device kinds.
const (
	DeviceDemo   = "demo"
	DeviceReplay = "replay"
)

// Config is the validated process configuration.
type Config struct {
	Env      string `validate:"required"`
	LogLevel string `validate:"oneof=trace debug info warn warning error fatal panic"`
	LogDir   string

	DataDir string `validate:"required"`
	DBPath  string `validate:"required"`

	Addr      string `validate:"required,hostname_port"`
	StaticDir string
	StreamFPS float64 `validate:"gt=0,lte=60"`

	Device    string `validate:"oneof=demo replay"`
	ReplayDir string `validate:"required_if=Device replay"`
	Loop      bool

	ColorWidth  int `validate:"gt=0"`
	ColorHeight int `validate:"gt=0"`
	DepthWidth  int `validate:"gt=0"`
	DepthHeight int `validate:"gt=0"`

	FPS              float64 `validate:"gt=0,lte=120"`
	ContactThreshold float64 `validate:"gt=0"`
	RequireBodyIndex bool

	PluginDir     string
	PluginTimeout time.Duration `validate:"gt=0"`

	Tray bool
}

// Geometry returns the configured sensor geometry.
func (c Config) Geometry() sensor.Geometry {
	return sensor.Geometry{
		ColorWidth:  c.ColorWidth,
		ColorHeight: c.ColorHeight,
		DepthWidth:  c.DepthWidth,
		DepthHeight: c.DepthHeight,
	}
}

// Default returns the configuration used when no variable is set.
func Default() Config {
	home, err := os.UserHomeDir()
	if err != nil {
		home = "."
	}
	dataDir := filepath.Join(home, ".tabletouch")
	g := sensor.DefaultGeometry()

	return Config{
		Env:              "development",
		LogLevel:         "info",
		DataDir:          dataDir,
		DBPath:           filepath.Join(dataDir, "tabletouch.db"),
		Addr:             "127.0.0.1:8080",
		StreamFPS:        10,
		Device:           DeviceDemo,
		Loop:             true,
		ColorWidth:       g.ColorWidth,
		ColorHeight:      g.ColorHeight,
		DepthWidth:       g.DepthWidth,
		DepthHeight:      g.DepthHeight,
		FPS:              30,
		ContactThreshold: 15,
		PluginDir:        filepath.Join(dataDir, "plugins"),
		PluginTimeout:    5 * time.Second,
	}
}

// Load reads an optional .env file and then the environment.
func Load(envFiles ...string) (Config, error) {
	if len(envFiles) == 0 {
		envFiles = []string{".env"}
	}
	for _, f := range envFiles {
		if err := godotenv.Load(f); err != nil && !errors.Is(err, os.ErrNotExist) {
			return Config{}, fmt.Errorf("load %s: %w", f, err)
		}
	}
	return FromEnv(os.LookupEnv)
}

// FromEnv builds a Config from lookup, starting from Default.
func FromEnv(lookup func(string) (string, bool)) (Config, error) {
	c := Default()
	p := parser{lookup: lookup}

	p.str("ENV", &c.Env)
	p.str("LOG_LEVEL", &c.LogLevel)
	p.str("LOG_DIR", &c.LogDir)
	if p.str("DATA_DIR", &c.DataDir) {
		c.DBPath = filepath.Join(c.DataDir, "tabletouch.db")
		c.PluginDir = filepath.Join(c.DataDir, "plugins")
	}
	p.str("DB_PATH", &c.DBPath)
	p.str("ADDR", &c.Addr)
	p.str("STATIC_DIR", &c.StaticDir)
	p.float("STREAM_FPS", &c.StreamFPS)
	p.str("DEVICE", &c.Device)
	p.str("REPLAY_DIR", &c.ReplayDir)
	p.bool("LOOP", &c.Loop)
	p.integer("COLOR_WIDTH", &c.ColorWidth)
	p.integer("COLOR_HEIGHT", &c.ColorHeight)
	p.integer("DEPTH_WIDTH", &c.DepthWidth)
	p.integer("DEPTH_HEIGHT", &c.DepthHeight)
	p.float("FPS", &c.FPS)
	p.float("CONTACT_THRESHOLD", &c.ContactThreshold)
	p.bool("REQUIRE_BODY_INDEX", &c.RequireBodyIndex)
	p.str("PLUGIN_DIR", &c.PluginDir)
	p.duration("PLUGIN_TIMEOUT", &c.PluginTimeout)
	p.bool("TRAY", &c.Tray)

	c.Device = strings.ToLower(c.Device)
	c.LogLevel = strings.ToLower(c.LogLevel)

	if len(p.errs) > 0 {
		return Config{}, errors.Join(p.errs...)
	}
	if err := c.Validate(); err != nil {
		return Config{}, err
	}
	return c, nil
}

var validate = validator.New()

// Validate checks the configuration against its struct constraints.
func (c Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}

// Prefix is prepended to every variable name.
const Prefix = "TABLETOUCH_"

type parser struct {
	lookup func(string) (string, bool)
	errs   []error
}

func (p *parser) get(key string) (string, bool) {
	v, ok := p.lookup(Prefix + key)
	if !ok || strings.TrimSpace(v) == "" {
		return "", false
	}
	return strings.TrimSpace(v), true
}

func (p *parser) str(key string, dst *string) bool {
	v, ok := p.get(key)
	if ok {
		*dst = v
	}
	return ok
}

func (p *parser) integer(key string, dst *int) {
	if v, ok := p.get(key); ok {
		n, err := strconv.Atoi(v)
		if err != nil {
			p.errs = append(p.errs, fmt.Errorf("%s%s: %w", Prefix, key, err))
			return
		}
		*dst = n
	}
}

func (p *parser) float(key string, dst *float64) {
	if v, ok := p.get(key); ok {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			p.errs = append(p.errs, fmt.Errorf("%s%s: %w", Prefix, key, err))
			return
		}
		*dst = f
	}
}

func (p *parser) bool(key string, dst *bool) {
	if v, ok := p.get(key); ok {
		b, err := strconv.ParseBool(v)
		if err != nil {
			p.errs = append(p.errs, fmt.Errorf("%s%s: %w", Prefix, key, err))
			return
		}
		*dst = b
	}
}

func (p *parser) duration(key string, dst *time.Duration) {
	if v, ok := p.get(key); ok {
		d, err := time.ParseDuration(v)
		if err != nil {
			p.errs = append(p.errs, fmt.Errorf("%s%s: %w", Prefix, key, err))
			return
		}
		*dst = d
	}
}
