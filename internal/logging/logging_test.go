package logging

import (
	"bytes"
	"os"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_Levels(t *testing.T) {
	var buf bytes.Buffer
	logger, err := New(Options{Level: "warn", NoColor: true, Output: &buf})
	require.NoError(t, err)

	logger.Info("hidden")
	logger.WithField("control", "a").Warn("shown")

	out := buf.String()
	assert.NotContains(t, out, "hidden")
	assert.Contains(t, out, "shown")
	assert.Contains(t, out, "control:a")
	assert.Equal(t, logrus.WarnLevel, logger.GetLevel())

	_, err = New(Options{Level: "loud"})
	assert.Error(t, err)
}

func TestNew_FileOutput(t *testing.T) {
	dir := t.TempDir()

	logger, err := New(Options{Dir: dir, Output: &bytes.Buffer{}})
	require.NoError(t, err)
	logger.Info("to file")

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Len(t, entries, 1)

	testDir := t.TempDir()
	logger, err = New(Options{Dir: testDir, Env: "test", Output: &bytes.Buffer{}})
	require.NoError(t, err)
	logger.Info("not to file")

	entries, err = os.ReadDir(testDir)
	require.NoError(t, err)
	assert.Empty(t, entries, "test environment skips the file writer")
}

func TestDiscard(t *testing.T) {
	logger := Discard()
	logger.Error("nothing happens")
	assert.Equal(t, logrus.InfoLevel, logger.GetLevel())
}
