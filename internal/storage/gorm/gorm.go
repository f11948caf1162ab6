// Package gormstorage implements storage.Store on top of GORM. It is shared
// by the SQLite and Postgres backends, which only differ in how they open
// the database.
package gormstorage

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/pdazone/engine/internal/database"
	"github.com/pdazone/engine/internal/storage"
	"gorm.io/gorm"
)

var errReadOnly = errors.New("write in read-only transaction")

// Dependencies holds all dependencies for the GORM storage backend.
type Dependencies struct {
	DB     *gorm.DB
	Logger *slog.Logger
}

// Backend implements storage.Store. Every View and Update runs in its own
// database transaction; writes compare the version column and fail with
// storage.ErrConflict when another writer got there first.
type Backend struct {
	deps Dependencies
}

// New creates a new GORM storage backend.
func New(deps Dependencies) *Backend {
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	return &Backend{deps: deps}
}

// DB exposes the underlying connection for wrappers.
func (b *Backend) DB() *gorm.DB {
	return b.deps.DB
}

// Init migrates the schema.
func (b *Backend) Init() error {
	if b.deps.DB == nil {
		return errors.New("gorm backend: no database")
	}
	if err := database.Migrate(b.deps.DB); err != nil {
		return err
	}
	b.deps.Logger.Info("Storage ready", "dialect", b.deps.DB.Dialector.Name())
	return nil
}

// Close closes the connection pool.
func (b *Backend) Close() error {
	if b.deps.DB == nil {
		return nil
	}
	sqlDB, err := b.deps.DB.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// View runs fn in a read-only transaction.
func (b *Backend) View(ctx context.Context, fn func(storage.Tx) error) error {
	return b.run(ctx, true, fn)
}

// Update runs fn and commits its writes atomically.
func (b *Backend) Update(ctx context.Context, fn func(storage.Tx) error) error {
	return b.run(ctx, false, fn)
}

func (b *Backend) run(ctx context.Context, readOnly bool, fn func(storage.Tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	err := b.deps.DB.WithContext(ctx).Transaction(func(db *gorm.DB) error {
		return fn(&tx{db: db, readOnly: readOnly})
	})
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return fmt.Errorf("%w: %v", storage.ErrConflict, err)
	}
	return err
}
