// internal/storage/memory/memory.go
package memory

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/pdazone/engine/internal/config"
	"github.com/pdazone/engine/internal/storage"
)

// Table names. They double as section names in the JSON snapshot.
const (
	kindPlayer      = "players"
	kindZone        = "zones"
	kindZoneControl = "zone_controls"
	kindArtifact    = "artifacts"
	kindAttempt     = "extraction_attempts"
	kindItem        = "items"
	kindInventory   = "inventories"
	kindQuest       = "quests"
	kindTrader      = "traders"
	kindSession     = "trade_sessions"
	kindTradePair   = "trade_pairs"
	kindEvent       = "game_events"
)

var errReadOnly = errors.New("write in read-only transaction")

// record is one stored row: its JSON encoding and committed version.
type record struct {
	data    []byte
	version int64
}

// Backend keeps every record in memory as JSON and applies optimistic
// version checks at commit. Transactions never hold the lock while the
// caller's function runs.
type Backend struct {
	cfg config.MemoryConfig

	mu     sync.RWMutex
	tables map[string]map[string]record
}

// New creates a new memory backend
func New(cfg config.MemoryConfig) *Backend {
	return &Backend{
		cfg:    cfg,
		tables: make(map[string]map[string]record),
	}
}

// Init loads the last snapshot from OutputDir if one exists.
func (b *Backend) Init() error {
	if b.cfg.OutputDir == "" {
		return nil
	}
	return b.importSnapshot()
}

// Close writes a snapshot to OutputDir when one is configured.
func (b *Backend) Close() error {
	if b.cfg.OutputDir == "" {
		return nil
	}
	_, err := b.Export()
	return err
}

// View runs fn in a read-only transaction.
func (b *Backend) View(ctx context.Context, fn func(storage.Tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return fn(&tx{b: b, readOnly: true})
}

// Update runs fn and commits its writes atomically.
func (b *Backend) Update(ctx context.Context, fn func(storage.Tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	t := &tx{b: b, writes: make(map[string]map[string]*write), reads: make(map[string]map[string]int64)}
	if err := fn(t); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	return b.commit(t)
}

func (b *Backend) committed(kind, id string) (record, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	r, ok := b.tables[kind][id]
	return r, ok
}

func (b *Backend) committedIDs(kind string) []string {
	b.mu.RLock()
	defer b.mu.RUnlock()
	ids := make([]string, 0, len(b.tables[kind]))
	for id := range b.tables[kind] {
		ids = append(ids, id)
	}
	return ids
}

// commit validates every point read and staged write against the committed
// versions and applies them all, or none.
func (b *Backend) commit(t *tx) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	for kind, rows := range t.reads {
		for id, v := range rows {
			if b.tables[kind][id].version != v {
				return storage.ErrConflict
			}
		}
	}
	for kind, rows := range t.writes {
		for id, w := range rows {
			if b.tables[kind][id].version != w.base {
				return storage.ErrConflict
			}
		}
	}
	for kind, rows := range t.writes {
		table, ok := b.tables[kind]
		if !ok {
			table = make(map[string]record)
			b.tables[kind] = table
		}
		for id, w := range rows {
			if w.deleted {
				delete(table, id)
				continue
			}
			table[id] = record{data: w.data, version: w.version}
		}
	}
	return nil
}

// write is a staged change. base is the committed version seen when the
// key was first written in this transaction.
type write struct {
	data    []byte
	version int64
	base    int64
	deleted bool
}

// reads holds the committed version of every record fetched by id, 0 for
// a missing one. Scans are not tracked.
type tx struct {
	b        *Backend
	readOnly bool
	writes   map[string]map[string]*write
	reads    map[string]map[string]int64
}

// observe remembers the committed version of (kind, id) the first time it
// is read outside this transaction's own writes.
func (t *tx) observe(kind, id string) {
	if t.readOnly {
		return
	}
	if _, ok := t.writes[kind][id]; ok {
		return
	}
	rows, ok := t.reads[kind]
	if !ok {
		rows = make(map[string]int64)
		t.reads[kind] = rows
	}
	if _, ok := rows[id]; ok {
		return
	}
	r, _ := t.b.committed(kind, id)
	rows[id] = r.version
}

func (t *tx) raw(kind, id string) ([]byte, int64, bool) {
	if w, ok := t.writes[kind][id]; ok {
		if w.deleted {
			return nil, 0, false
		}
		return w.data, w.version, true
	}
	r, ok := t.b.committed(kind, id)
	if !ok {
		return nil, 0, false
	}
	return r.data, r.version, true
}

func (t *tx) version(kind, id string) int64 {
	_, v, _ := t.raw(kind, id)
	return v
}

// stage records w. seen is the version the caller compared against; it
// becomes the commit-time base unless the key was already staged.
func (t *tx) stage(kind, id string, w *write, seen int64) {
	rows, ok := t.writes[kind]
	if !ok {
		rows = make(map[string]*write)
		t.writes[kind] = rows
	}
	w.base = seen
	if prev, ok := rows[id]; ok {
		w.base = prev.base
	}
	rows[id] = w
}

// put checks *version against the current version of (kind, id), bumps it
// and stages the encoded value.
func (t *tx) put(kind, id string, version *int64, v any) error {
	if t.readOnly {
		return errReadOnly
	}
	if id == "" {
		return fmt.Errorf("put %s: empty id", kind)
	}
	base := *version
	seen := t.version(kind, id)
	if seen != base {
		return storage.ErrConflict
	}
	*version = base + 1
	data, err := json.Marshal(v)
	if err != nil {
		*version = base
		return fmt.Errorf("encode %s %s: %w", kind, id, err)
	}
	t.stage(kind, id, &write{data: data, version: *version}, seen)
	return nil
}

func (t *tx) del(kind, id string, version int64) error {
	if t.readOnly {
		return errReadOnly
	}
	_, seen, ok := t.raw(kind, id)
	if !ok {
		return storage.ErrNotFound
	}
	if seen != version {
		return storage.ErrConflict
	}
	t.stage(kind, id, &write{deleted: true}, seen)
	return nil
}

// ids returns the live ids of kind, sorted.
func (t *tx) ids(kind string) []string {
	seen := make(map[string]bool)
	var out []string
	for _, id := range t.b.committedIDs(kind) {
		seen[id] = true
		if w, ok := t.writes[kind][id]; ok && w.deleted {
			continue
		}
		out = append(out, id)
	}
	for id, w := range t.writes[kind] {
		if seen[id] || w.deleted {
			continue
		}
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

// get reads one record by id and tracks its version for commit.
func get[T any](t *tx, kind, id string) (T, error) {
	t.observe(kind, id)
	return load[T](t, kind, id)
}

func load[T any](t *tx, kind, id string) (T, error) {
	var out T
	data, _, ok := t.raw(kind, id)
	if !ok {
		return out, storage.ErrNotFound
	}
	if err := json.Unmarshal(data, &out); err != nil {
		return out, fmt.Errorf("decode %s %s: %w", kind, id, err)
	}
	return out, nil
}

func list[T any](t *tx, kind string, keep func(T) bool) ([]T, error) {
	var out []T
	for _, id := range t.ids(kind) {
		v, err := load[T](t, kind, id)
		if errors.Is(err, storage.ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		if keep == nil || keep(v) {
			out = append(out, v)
		}
	}
	return out, nil
}
