package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ayusman/tabletouch/internal/sensor"
)

func env(vars map[string]string) func(string) (string, bool) {
	return func(key string) (string, bool) {
		v, ok := vars[key]
		return v, ok
	}
}

func TestDefault(t *testing.T) {
	c := Default()
	require.NoError(t, c.Validate())
	assert.Equal(t, DeviceDemo, c.Device)
	assert.Equal(t, 15.0, c.ContactThreshold)
	assert.Equal(t, sensor.DefaultGeometry(), c.Geometry())
}

func TestFromEnv(t *testing.T) {
	c, err := FromEnv(env(map[string]string{
		"TABLETOUCH_DATA_DIR":          "/tmp/tt",
		"TABLETOUCH_DEVICE":            "Replay",
		"TABLETOUCH_REPLAY_DIR":        "/tmp/frames",
		"TABLETOUCH_LOOP":              "false",
		"TABLETOUCH_COLOR_WIDTH":       "640",
		"TABLETOUCH_COLOR_HEIGHT":      "480",
		"TABLETOUCH_CONTACT_THRESHOLD": "12.5",
		"TABLETOUCH_PLUGIN_TIMEOUT":    "2s",
		"TABLETOUCH_LOG_LEVEL":         "DEBUG",
		"TABLETOUCH_ADDR":              " :9090 ",
	}))
	require.NoError(t, err)

	assert.Equal(t, "/tmp/tt/tabletouch.db", c.DBPath)
	assert.Equal(t, "/tmp/tt/plugins", c.PluginDir)
	assert.Equal(t, DeviceReplay, c.Device)
	assert.Equal(t, "/tmp/frames", c.ReplayDir)
	assert.False(t, c.Loop)
	assert.Equal(t, 640, c.Geometry().ColorWidth)
	assert.Equal(t, 12.5, c.ContactThreshold)
	assert.Equal(t, 2*time.Second, c.PluginTimeout)
	assert.Equal(t, "debug", c.LogLevel)
	assert.Equal(t, ":9090", c.Addr)
}

func TestFromEnv_Errors(t *testing.T) {
	tests := []struct {
		name string
		vars map[string]string
	}{
		{"bad integer", map[string]string{"TABLETOUCH_COLOR_WIDTH": "wide"}},
		{"bad bool", map[string]string{"TABLETOUCH_TRAY": "maybe"}},
		{"bad duration", map[string]string{"TABLETOUCH_PLUGIN_TIMEOUT": "soon"}},
		{"unknown device", map[string]string{"TABLETOUCH_DEVICE": "kinect9"}},
		{"replay without dir", map[string]string{"TABLETOUCH_DEVICE": "replay"}},
		{"zero threshold", map[string]string{"TABLETOUCH_CONTACT_THRESHOLD": "0"}},
		{"bad level", map[string]string{"TABLETOUCH_LOG_LEVEL": "loud"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := FromEnv(env(tt.vars))
			assert.Error(t, err)
		})
	}
}

func TestLoad_DotEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.env")
	require.NoError(t, os.WriteFile(path, []byte("TABLETOUCH_FPS=24\nTABLETOUCH_STREAM_FPS=5\n"), 0644))
	t.Setenv("TABLETOUCH_STREAM_FPS", "8")
	t.Cleanup(func() { os.Unsetenv("TABLETOUCH_FPS") })

	c, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 24.0, c.FPS)
	assert.Equal(t, 8.0, c.StreamFPS, "process environment wins over the file")

	_, err = Load(filepath.Join(t.TempDir(), "missing.env"))
	assert.NoError(t, err, "a missing file is not an error")
}
