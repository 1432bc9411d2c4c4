package logging

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestNewRejectsUnknownLevel(t *testing.T) {
	_, err := New(Config{Level: "chatty"})
	assert.Error(t, err)
}

func TestNewWritesJSON(t *testing.T) {
	out := filepath.Join(t.TempDir(), "log.json")
	logger, err := New(Config{Level: "info", OutputPaths: []string{out}})
	require.NoError(t, err)

	logger.Debug("hidden")
	logger.Info("dispatched", zap.String("operation", "index"))
	require.NoError(t, logger.Sync())

	data, err := os.ReadFile(out)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	require.Len(t, lines, 1)
	assert.Contains(t, lines[0], `"message":"dispatched"`)
	assert.Contains(t, lines[0], `"operation":"index"`)
	assert.Contains(t, lines[0], `"logger":"vfs"`)
}

func TestSetLevel(t *testing.T) {
	out := filepath.Join(t.TempDir(), "log.json")
	logger, err := New(Config{Level: "warn", OutputPaths: []string{out}})
	require.NoError(t, err)
	assert.Equal(t, "warn", logger.Level())

	logger.Info("dropped")
	require.NoError(t, logger.SetLevel("debug"))
	logger.Debug("kept")
	require.NoError(t, logger.Sync())

	data, err := os.ReadFile(out)
	require.NoError(t, err)
	assert.NotContains(t, string(data), "dropped")
	assert.Contains(t, string(data), "kept")

	assert.Error(t, logger.SetLevel("nope"))
}

func TestNewNopDiscards(t *testing.T) {
	nop := NewNop()
	nop.Error("never written")
	assert.Equal(t, "fatal", nop.Level())
}
