package logging

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLogFilePath(t *testing.T) {
	sessionStart := time.Date(2026, 2, 12, 21, 38, 36, 0, time.UTC)

	tests := []struct {
		name    string
		logsDir string
		want    string
	}{
		{
			name:    "basic path",
			logsDir: "zonelogs",
			want:    filepath.Join("zonelogs", "zoneserver.20260212_213836.log"),
		},
		{
			name:    "relative path with dot",
			logsDir: "./zonelogs",
			want:    filepath.Join(".", "zonelogs", "zoneserver.20260212_213836.log"),
		},
		{
			name:    "absolute path",
			logsDir: filepath.Join("/var", "log", "zone"),
			want:    filepath.Join("/var", "log", "zone", "zoneserver.20260212_213836.log"),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, LogFilePath(tt.logsDir, "zoneserver", sessionStart))
		})
	}
}

func TestOpenLogFile_RotatesExisting(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "logs")
	start := time.Date(2026, 2, 12, 21, 38, 36, 0, time.UTC)

	f, err := OpenLogFile(dir, "zoneserver", start)
	require.NoError(t, err)
	_, err = f.WriteString("first run\n")
	require.NoError(t, err)
	require.NoError(t, f.Close())

	f, err = OpenLogFile(dir, "zoneserver", start)
	require.NoError(t, err)
	require.NoError(t, f.Close())

	old, err := os.ReadFile(LogFilePath(dir, "zoneserver", start) + ".old")
	require.NoError(t, err)
	assert.Equal(t, "first run\n", string(old))
}
