// internal/storage/memory/export.go
package memory

import (
	"compress/gzip"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// snapshotName is the base name of the state file in OutputDir.
const snapshotName = "zone_state"

// snapshotRow is one record in the JSON snapshot.
type snapshotRow struct {
	Version int64           `json:"version"`
	Data    json.RawMessage `json:"data"`
}

// Snapshot is the root JSON structure: table name to id to row.
type Snapshot map[string]map[string]snapshotRow

func (b *Backend) snapshotPath() string {
	if b.cfg.CompressOutput {
		return filepath.Join(b.cfg.OutputDir, snapshotName+".json.gz")
	}
	return filepath.Join(b.cfg.OutputDir, snapshotName+".json")
}

func (b *Backend) buildSnapshot() Snapshot {
	b.mu.RLock()
	defer b.mu.RUnlock()

	snap := make(Snapshot, len(b.tables))
	for kind, rows := range b.tables {
		out := make(map[string]snapshotRow, len(rows))
		for id, r := range rows {
			out[id] = snapshotRow{Version: r.version, Data: json.RawMessage(r.data)}
		}
		snap[kind] = out
	}
	return snap
}

// Export writes the committed state to OutputDir and returns the file path.
func (b *Backend) Export() (string, error) {
	if err := os.MkdirAll(b.cfg.OutputDir, 0755); err != nil {
		return "", fmt.Errorf("failed to create output directory: %w", err)
	}

	path := b.snapshotPath()
	tmp := path + ".tmp"
	var err error
	if b.cfg.CompressOutput {
		err = writeGzipJSON(tmp, b.buildSnapshot())
	} else {
		err = writeJSON(tmp, b.buildSnapshot())
	}
	if err != nil {
		return "", err
	}
	if err := os.Rename(tmp, path); err != nil {
		return "", fmt.Errorf("failed to move snapshot into place: %w", err)
	}
	return path, nil
}

// importSnapshot replaces the in-memory tables with the stored snapshot.
// A missing file leaves the store empty.
func (b *Backend) importSnapshot() error {
	f, err := os.Open(b.snapshotPath())
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to open snapshot: %w", err)
	}
	defer f.Close()

	var r io.Reader = f
	if b.cfg.CompressOutput {
		gz, err := gzip.NewReader(f)
		if err != nil {
			return fmt.Errorf("failed to open gzip snapshot: %w", err)
		}
		defer gz.Close()
		r = gz
	}

	var snap Snapshot
	if err := json.NewDecoder(r).Decode(&snap); err != nil {
		return fmt.Errorf("failed to decode snapshot: %w", err)
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	b.tables = make(map[string]map[string]record, len(snap))
	for kind, rows := range snap {
		table := make(map[string]record, len(rows))
		for id, row := range rows {
			table[id] = record{data: []byte(row.Data), version: row.Version}
		}
		b.tables[kind] = table
	}
	return nil
}

func writeJSON(path string, data Snapshot) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create file: %w", err)
	}
	defer f.Close()

	return json.NewEncoder(f).Encode(data)
}

func writeGzipJSON(path string, data Snapshot) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create file: %w", err)
	}
	defer f.Close()

	gw := gzip.NewWriter(f)
	if err := json.NewEncoder(gw).Encode(data); err != nil {
		gw.Close()
		return fmt.Errorf("failed to encode snapshot: %w", err)
	}
	return gw.Close()
}
