package logger

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/antigravity/feed-gateway/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestNew_WritesJSONFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "feedgate.log")
	log, err := build(config.LoggingConfig{Level: "info", Output: path, MaxSize: 1}, &bytes.Buffer{})
	require.NoError(t, err)

	log.Info("Gateway request rejected", zap.String("kind", "IpNotAuthorized"))
	log.Debug("hidden at info level")
	_ = log.Sync()

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	require.Len(t, lines, 1)

	var entry map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &entry))
	assert.Equal(t, "info", entry["level"])
	assert.Equal(t, "Gateway request rejected", entry["msg"])
	assert.Equal(t, "IpNotAuthorized", entry["kind"])
	assert.Contains(t, entry, "caller")
}

func TestNew_FallsBackToConsole(t *testing.T) {
	var buf bytes.Buffer
	log, err := build(config.LoggingConfig{Level: "not-a-level"}, &buf)
	require.NoError(t, err)

	log.Info("console line")
	log.Debug("dropped")
	_ = log.Sync()

	assert.Contains(t, buf.String(), "console line")
	assert.NotContains(t, buf.String(), "dropped")
}

func TestNew_FileAndConsole(t *testing.T) {
	var buf bytes.Buffer
	path := filepath.Join(t.TempDir(), "feedgate.log")
	log, err := build(config.LoggingConfig{Level: "debug", Output: path, ConsoleOutput: true}, &buf)
	require.NoError(t, err)

	log.Debug("both sinks")
	_ = log.Sync()

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "both sinks")
	assert.Contains(t, buf.String(), "both sinks")
}
