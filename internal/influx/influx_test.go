package influx

import (
	"bufio"
	"compress/gzip"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/pdazone/engine/internal/config"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var at = time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)

func readBackup(t *testing.T, path string) []string {
	t.Helper()
	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()
	zr, err := gzip.NewReader(f)
	require.NoError(t, err)

	var lines []string
	sc := bufio.NewScanner(zr)
	for sc.Scan() {
		if line := strings.TrimSpace(sc.Text()); line != "" {
			lines = append(lines, line)
		}
	}
	require.NoError(t, sc.Err())
	return lines
}

func TestRecord_QueuesWithoutIO(t *testing.T) {
	m := NewManager(config.InfluxConfig{}, zerolog.Nop(), "")
	m.Record("tick", map[string]string{"player": "p1"}, map[string]any{"radiation": 12.5}, at)
	m.Record("death", map[string]string{"player": "p1"}, map[string]any{"radiation": 100.0}, at)
	assert.Equal(t, 2, m.Pending())

	// nowhere to write: points are dropped
	require.NoError(t, m.Flush())
	assert.Equal(t, 0, m.Pending())
	require.NoError(t, m.Close())
}

func TestDisabled_WritesBackup(t *testing.T) {
	path := filepath.Join(t.TempDir(), "telemetry.lp.gz")
	m := NewManager(config.InfluxConfig{Enabled: false}, zerolog.Nop(), path)
	require.NoError(t, m.Connect(context.Background()))
	assert.False(t, m.IsValid)

	m.Record("trade", map[string]string{"player": "p1", "direction": "buy"}, map[string]any{"total": int64(240)}, at)
	m.Record("extraction", map[string]string{"player": "p1", "type": "medusa"}, map[string]any{"count": int64(1)}, at)
	require.NoError(t, m.Close())

	lines := readBackup(t, path)
	require.Len(t, lines, 2)
	assert.True(t, strings.HasPrefix(lines[0], "trade,"), lines[0])
	assert.Contains(t, lines[0], "direction=buy")
	assert.Contains(t, lines[0], "total=240i")
	assert.True(t, strings.HasSuffix(lines[0], "1777636800000000000"), lines[0])
	assert.Contains(t, lines[1], "type=medusa")
}

func TestUnreachable_FallsBackToBackup(t *testing.T) {
	path := filepath.Join(t.TempDir(), "telemetry.lp.gz")
	m := NewManager(config.InfluxConfig{
		Enabled:  true,
		Protocol: "http",
		Host:     "127.0.0.1",
		Port:     "1",
		Org:      "zone",
		Bucket:   "gameplay",
	}, zerolog.Nop(), path)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, m.Connect(ctx))
	assert.False(t, m.IsValid)

	m.Record("tick", map[string]string{"player": "p1"}, map[string]any{"dose": 1.5}, at)
	require.NoError(t, m.Close())
	assert.Len(t, readBackup(t, path), 1)
}

func TestRun_FlushesOnTickAndStop(t *testing.T) {
	path := filepath.Join(t.TempDir(), "telemetry.lp.gz")
	m := NewManager(config.InfluxConfig{}, zerolog.Nop(), path)
	m.flushInterval = 10 * time.Millisecond
	require.NoError(t, m.Connect(context.Background()))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- m.Run(ctx) }()

	m.Record("tick", nil, map[string]any{"dose": 1.0}, at)
	assert.Eventually(t, func() bool { return m.Pending() == 0 }, time.Second, 5*time.Millisecond)

	m.Record("tick", nil, map[string]any{"dose": 2.0}, at)
	cancel()
	require.NoError(t, <-done)
	require.NoError(t, m.Close())
	assert.Len(t, readBackup(t, path), 2)
}

func TestOpenBackup_BadPath(t *testing.T) {
	m := NewManager(config.InfluxConfig{}, zerolog.Nop(), filepath.Join(t.TempDir(), "missing", "x.gz"))
	assert.Error(t, m.Connect(context.Background()))
}
