package bootstrap

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"testing"

	"github.com/IliaW/link-repair-kit/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSetupLoggerJSON(t *testing.T) {
	defer slog.SetDefault(slog.Default())
	var buf bytes.Buffer

	logger := SetupLogger(&config.Config{LogLevel: "info", LogType: "json", Env: "prod"}, &buf)
	logger.Info("scan finished.", slog.Int("broken", 2))
	logger.Debug("hidden")

	lines := bytes.Split(bytes.TrimSpace(buf.Bytes()), []byte("\n"))
	require.Len(t, lines, 1)
	var entry map[string]any
	require.NoError(t, json.Unmarshal(lines[0], &entry))
	assert.Equal(t, "scan finished.", entry["msg"])
	assert.Equal(t, float64(2), entry["broken"])
	source, ok := entry["source"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "bootstrap_test.go", source["file"])
}

func TestSetupLoggerUnknownLevelFallsBackToDebug(t *testing.T) {
	defer slog.SetDefault(slog.Default())
	var buf bytes.Buffer

	logger := SetupLogger(&config.Config{LogLevel: "verbose", LogType: "text", Env: "prod"}, &buf)
	logger.Debug("visible")

	assert.Contains(t, buf.String(), "visible")
}
