package janitor

import (
	"context"
	"io"
	"testing"
	"time"

	"github.com/pdazone/engine/internal/clock"
	"github.com/pdazone/engine/internal/config"
	"github.com/pdazone/engine/internal/dispatcher"
	"github.com/pdazone/engine/internal/engine"
	"github.com/pdazone/engine/internal/logging"
	"github.com/pdazone/engine/internal/storage"
	"github.com/pdazone/engine/internal/storage/memory"
	"github.com/pdazone/engine/pkg/core"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var t0 = time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)

type fixture struct {
	store *memory.Backend
	clock *clock.Fake
	j     *Janitor
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	s := memory.New(config.MemoryConfig{})
	require.NoError(t, s.Init())
	fake := clock.NewFake(t0)
	e, err := engine.New(s, config.DefaultEngineConfig(), engine.WithClock(fake))
	require.NoError(t, err)
	return &fixture{store: s, clock: fake, j: New(e, nil)}
}

func (f *fixture) put(t *testing.T, fn func(tx storage.Tx) error) {
	t.Helper()
	require.NoError(t, f.store.Update(context.Background(), fn))
}

func (f *fixture) artifact(t *testing.T, id string) core.ArtifactSpawn {
	t.Helper()
	var a core.ArtifactSpawn
	require.NoError(t, f.store.View(context.Background(), func(tx storage.Tx) error {
		var err error
		a, err = tx.Artifact(id)
		return err
	}))
	return a
}

func at(d time.Duration) *time.Time {
	v := t0.Add(d)
	return &v
}

func TestSweep_Empty(t *testing.T) {
	f := newFixture(t)
	rep, err := f.j.Sweep(context.Background())
	require.NoError(t, err)
	assert.False(t, rep.Changed())
	assert.Equal(t, Report{}, rep)
}

func TestSweep_ExpiredSessions(t *testing.T) {
	f := newFixture(t)
	f.put(t, func(tx storage.Tx) error {
		if err := tx.PutSession(&core.TradeSession{ID: "old", PlayerID: "p1", TraderID: "t1", StartedAt: t0, ExpiresAt: t0.Add(5 * time.Minute)}); err != nil {
			return err
		}
		return tx.PutSession(&core.TradeSession{ID: "fresh", PlayerID: "p1", TraderID: "t2", StartedAt: t0, ExpiresAt: t0.Add(time.Hour)})
	})

	f.clock.Advance(301 * time.Second)
	rep, err := f.j.Sweep(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, rep.SessionsExpired)

	require.NoError(t, f.store.View(context.Background(), func(tx storage.Tx) error {
		all, err := tx.Sessions()
		require.NoError(t, err)
		require.Len(t, all, 1)
		assert.Equal(t, "fresh", all[0].ID)
		return nil
	}))
}

func TestSweep_ReapsStaleAttempt(t *testing.T) {
	f := newFixture(t)
	f.put(t, func(tx storage.Tx) error {
		if err := tx.PutArtifact(&core.ArtifactSpawn{ID: "a1", TypeID: "medusa", State: core.ArtifactExtracting}); err != nil {
			return err
		}
		return tx.PutAttempt(&core.ExtractionAttempt{ArtifactID: "a1", PlayerID: "p1", StartedAt: t0})
	})

	// inside hold plus grace the hold stands
	f.clock.Advance(45 * time.Second)
	rep, err := f.j.Sweep(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, rep.AttemptsReaped)
	assert.Equal(t, core.ArtifactExtracting, f.artifact(t, "a1").State)

	f.clock.Advance(20 * time.Second)
	rep, err = f.j.Sweep(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, rep.AttemptsReaped)
	assert.Equal(t, core.ArtifactVisible, f.artifact(t, "a1").State)
}

func TestSweep_ExpiredSpawnsBecomeLost(t *testing.T) {
	f := newFixture(t)
	f.put(t, func(tx storage.Tx) error {
		for _, a := range []*core.ArtifactSpawn{
			{ID: "expired", TypeID: "medusa", State: core.ArtifactVisible, ExpiresAt: at(time.Minute)},
			{ID: "later", TypeID: "medusa", State: core.ArtifactVisible, ExpiresAt: at(time.Hour)},
			{ID: "owned", TypeID: "medusa", State: core.ArtifactExtracted, OwnerID: "p1", ExpiresAt: at(time.Minute)},
		} {
			if err := tx.PutArtifact(a); err != nil {
				return err
			}
		}
		return nil
	})

	f.clock.Advance(2 * time.Minute)
	rep, err := f.j.Sweep(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, rep.ArtifactsLost)
	assert.Equal(t, core.ArtifactLost, f.artifact(t, "expired").State)
	assert.Equal(t, core.ArtifactVisible, f.artifact(t, "later").State)
	assert.Equal(t, core.ArtifactExtracted, f.artifact(t, "owned").State)

	require.NoError(t, f.store.View(context.Background(), func(tx storage.Tx) error {
		events, err := tx.Events("")
		require.NoError(t, err)
		require.Len(t, events, 1)
		assert.Equal(t, core.EventArtifactLost, events[0].Type)
		assert.Equal(t, "expired", events[0].Data["artifactId"])
		return nil
	}))

	// a second pass finds nothing left to do
	rep, err = f.j.Sweep(context.Background())
	require.NoError(t, err)
	assert.False(t, rep.Changed())
}

func TestSweep_RevealsDueHiddenSpawns(t *testing.T) {
	f := newFixture(t)
	f.put(t, func(tx storage.Tx) error {
		if err := tx.PutArtifact(&core.ArtifactSpawn{ID: "due", TypeID: "medusa", State: core.ArtifactHidden, RevealAt: at(time.Minute)}); err != nil {
			return err
		}
		return tx.PutArtifact(&core.ArtifactSpawn{ID: "notyet", TypeID: "medusa", State: core.ArtifactHidden, RevealAt: at(time.Hour)})
	})

	f.clock.Advance(time.Minute)
	rep, err := f.j.Sweep(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, rep.ArtifactsRevealed)
	assert.Equal(t, core.ArtifactVisible, f.artifact(t, "due").State)
	assert.Equal(t, core.ArtifactHidden, f.artifact(t, "notyet").State)
}

func TestSweep_CanceledContext(t *testing.T) {
	f := newFixture(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := f.j.Sweep(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestRun_DispatchesSweeps(t *testing.T) {
	f := newFixture(t)
	f.put(t, func(tx storage.Tx) error {
		return tx.PutArtifact(&core.ArtifactSpawn{ID: "due", TypeID: "medusa", State: core.ArtifactHidden, RevealAt: at(0)})
	})

	d, err := dispatcher.New(logging.NewDispatcherLogger(zerolog.New(io.Discard)))
	require.NoError(t, err)
	defer d.Close()
	f.j.Register(d)
	require.True(t, d.HasHandler(CmdSweep))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- f.j.Run(ctx, d, 10*time.Millisecond) }()

	assert.Eventually(t, func() bool {
		return f.artifact(t, "due").State == core.ArtifactVisible
	}, 2*time.Second, 10*time.Millisecond)

	cancel()
	assert.NoError(t, <-done)
}
