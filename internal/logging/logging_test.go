package logging

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/abhisek/mathdrill/internal/config"
)

func TestNew_WritesJSONFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "app.log")
	cfg := config.DefaultConfig().Log
	cfg.File = path

	logger, closeFn, err := New(cfg, Options{})
	require.NoError(t, err)

	logger.Info("autosave discarded", zap.Int("page", 2))
	logger.Debug("hidden at info level")
	require.NoError(t, closeFn())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	require.Len(t, lines, 1)

	var entry map[string]any
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &entry))
	assert.Equal(t, "autosave discarded", entry["msg"])
	assert.Equal(t, "INFO", entry["level"])
	assert.Equal(t, float64(2), entry["page"])
}

func TestNew_ConsoleCopy(t *testing.T) {
	var buf bytes.Buffer
	cfg := config.DefaultConfig().Log
	cfg.File = filepath.Join(t.TempDir(), "app.log")
	cfg.Level = "debug"

	logger, closeFn, err := New(cfg, Options{Console: &buf})
	require.NoError(t, err)
	logger.Debug("listening", zap.String("addr", ":8787"))
	require.NoError(t, closeFn())

	assert.Contains(t, buf.String(), "listening")
	assert.Contains(t, buf.String(), ":8787")
}

func TestNew_BadLevel(t *testing.T) {
	cfg := config.DefaultConfig().Log
	cfg.File = filepath.Join(t.TempDir(), "app.log")
	cfg.Level = "chatty"
	_, _, err := New(cfg, Options{})
	assert.Error(t, err)
}

func TestDefaultLogPath(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("XDG_STATE_HOME", dir)
	p, err := DefaultLogPath()
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "mathdrill", "mathdrill.log"), p)
}
