package logger

import (
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"adgate/internal/models"
	"adgate/internal/version"
)

func TestSetup_Stdout(t *testing.T) {
	log, closer, err := Setup(models.LoggingConfig{
		Level:  "info",
		Format: "json",
		Output: "stdout",
	}, version.GetInfo())

	require.NoError(t, err)
	require.NotNil(t, log)
	assert.Nil(t, closer, "stdout needs no closer")
}

func TestSetup_InvalidLevel(t *testing.T) {
	_, _, err := Setup(models.LoggingConfig{
		Level:  "verbose",
		Format: "json",
		Output: "stdout",
	}, version.GetInfo())

	assert.Error(t, err)
}

func TestSetup_FileOutput(t *testing.T) {
	path := filepath.Join(t.TempDir(), "adgate.log")
	log, closer, err := Setup(models.LoggingConfig{
		Level:    "debug",
		Format:   "json",
		Output:   "file",
		FilePath: path,
	}, version.GetInfo())

	require.NoError(t, err)
	require.NotNil(t, closer)

	log.Info("test message", "key", "value")
	require.NoError(t, closer.Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	content := string(data)
	assert.Contains(t, content, "test message")
	assert.Contains(t, content, "instance_id", "version fields attach to every record")
}

func TestSetup_FileOutputWithoutPath(t *testing.T) {
	_, _, err := Setup(models.LoggingConfig{
		Level:  "info",
		Format: "json",
		Output: "file",
	}, version.GetInfo())

	assert.Error(t, err)
}

func TestSetup_TextFormat(t *testing.T) {
	path := filepath.Join(t.TempDir(), "adgate.log")
	log, closer, err := Setup(models.LoggingConfig{
		Level:    "info",
		Format:   "text",
		Output:   "file",
		FilePath: path,
	}, version.GetInfo())

	require.NoError(t, err)
	log.Info("text record")
	require.NoError(t, closer.Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.False(t, strings.HasPrefix(strings.TrimSpace(string(data)), "{"), "text format is not JSON")
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in      string
		want    slog.Level
		wantErr bool
	}{
		{"debug", slog.LevelDebug, false},
		{"info", slog.LevelInfo, false},
		{"warn", slog.LevelWarn, false},
		{"error", slog.LevelError, false},
		{"WARN", slog.LevelWarn, false},
		{"fatal", 0, true},
		{"", 0, true},
	}

	for _, tt := range tests {
		got, err := parseLevel(tt.in)
		if tt.wantErr {
			assert.Error(t, err, "level %q", tt.in)
			continue
		}
		require.NoError(t, err, "level %q", tt.in)
		assert.Equal(t, tt.want, got)
	}
}
