package gormstorage

import (
	"context"
	"errors"
	"testing"

	"github.com/pdazone/engine/internal/database"
	"github.com/pdazone/engine/internal/storage"
	"github.com/pdazone/engine/internal/storage/storagetest"
	"github.com/pdazone/engine/pkg/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Compile-time interface check
var _ storage.Store = (*Backend)(nil)

func newTestBackend(t *testing.T) *Backend {
	t.Helper()
	db, err := database.GetSqliteDB("")
	require.NoError(t, err)
	b := New(Dependencies{DB: db})
	require.NoError(t, b.Init())
	t.Cleanup(func() { _ = b.Close() })
	return b
}

func TestContract(t *testing.T) {
	storagetest.Run(t, func(t *testing.T) storage.Store { return newTestBackend(t) })
}

func TestInit_NoDatabase(t *testing.T) {
	b := New(Dependencies{})
	assert.Error(t, b.Init())
	assert.NoError(t, b.Close())
}

func TestViewIsReadOnly(t *testing.T) {
	b := newTestBackend(t)
	err := b.View(context.Background(), func(tx storage.Tx) error {
		return tx.PutPlayer(&core.Player{ID: "p1"})
	})
	assert.ErrorIs(t, err, errReadOnly)

	err = b.View(context.Background(), func(tx storage.Tx) error {
		return tx.AppendEvent(&core.GameEvent{Type: core.EventDeath})
	})
	assert.ErrorIs(t, err, errReadOnly)
}

func TestPut_RestoresVersionOnConflict(t *testing.T) {
	b := newTestBackend(t)
	ctx := context.Background()
	require.NoError(t, b.Update(ctx, func(tx storage.Tx) error {
		return tx.PutPlayer(&core.Player{ID: "p1"})
	}))

	dup := &core.Player{ID: "p1"}
	err := b.Update(ctx, func(tx storage.Tx) error { return tx.PutPlayer(dup) })
	assert.ErrorIs(t, err, storage.ErrConflict)
	assert.Equal(t, int64(0), dup.Version)
}

func TestDelete_Missing(t *testing.T) {
	b := newTestBackend(t)
	err := b.Update(context.Background(), func(tx storage.Tx) error {
		return tx.DeleteAttempt(core.ExtractionAttempt{ArtifactID: "nope", Version: 1})
	})
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestDelete_StaleVersion(t *testing.T) {
	b := newTestBackend(t)
	ctx := context.Background()
	a := &core.ExtractionAttempt{ArtifactID: "a1", PlayerID: "p1"}
	require.NoError(t, b.Update(ctx, func(tx storage.Tx) error { return tx.PutAttempt(a) }))

	err := b.Update(ctx, func(tx storage.Tx) error {
		return tx.DeleteAttempt(core.ExtractionAttempt{ArtifactID: "a1", Version: 7})
	})
	assert.ErrorIs(t, err, storage.ErrConflict)
}

func TestUpdate_CanceledContext(t *testing.T) {
	b := newTestBackend(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	called := false
	err := b.Update(ctx, func(storage.Tx) error {
		called = true
		return nil
	})
	assert.True(t, errors.Is(err, context.Canceled))
	assert.False(t, called)
}

func TestLocationColumnIsProjected(t *testing.T) {
	b := newTestBackend(t)
	ctx := context.Background()
	require.NoError(t, b.Update(ctx, func(tx storage.Tx) error {
		return tx.PutPlayer(&core.Player{ID: "p1", Position: &core.Point{Lat: 51.389, Lng: 30.099}})
	}))

	var n int64
	require.NoError(t, b.DB().Table("players").Where("location IS NOT NULL").Count(&n).Error)
	assert.Equal(t, int64(1), n)
}
