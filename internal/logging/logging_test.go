package logging

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func TestBuildJSON(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "log.json")
	log, err := build("info", "json", []string{path})
	require.NoError(t, err)

	log.Debug("hidden")
	log.Info("connected", zap.String("stream", "tcp+tls"))
	require.NoError(t, log.Sync())

	data, err := os.ReadFile(path) //nolint:gosec // Test path from t.TempDir().
	require.NoError(t, err)

	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	require.Len(t, lines, 1)

	var entry map[string]any
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &entry))
	assert.Equal(t, "info", entry["level"])
	assert.Equal(t, "connected", entry["message"])
	assert.Equal(t, "tcp+tls", entry["stream"])
	assert.NotContains(t, entry, "caller")
}

func TestLevels(t *testing.T) {
	t.Parallel()

	tests := []struct {
		level string
		want  zapcore.Level
	}{
		{"debug", zap.DebugLevel},
		{"info", zap.InfoLevel},
		{"warn", zap.WarnLevel},
		{"error", zap.ErrorLevel},
		{"verbose", zap.ErrorLevel},
	}

	for _, tt := range tests {
		log, err := New(tt.level, "console")
		require.NoError(t, err)
		assert.True(t, log.Core().Enabled(tt.want), tt.level)
		if tt.want > zap.DebugLevel {
			assert.False(t, log.Core().Enabled(tt.want-1), tt.level)
		}
	}
}

func TestUnknownFormat(t *testing.T) {
	t.Parallel()

	_, err := New("info", "xml")
	require.Error(t, err)
}
