// Package janitor runs the periodic hygiene sweep: expired trade sessions
// are deleted, abandoned extraction holds released, expired spawns marked
// lost and due hidden spawns revealed. Correctness never depends on it; every
// one of these is also enforced when a player touches the record.
package janitor

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/pdazone/engine/internal/dispatcher"
	"github.com/pdazone/engine/internal/engine"
	"github.com/pdazone/engine/internal/identity"
	"github.com/pdazone/engine/internal/storage"
	"github.com/pdazone/engine/pkg/core"
)

// CmdSweep is the dispatcher command that runs one sweep.
const CmdSweep = "janitor.sweep"

// Report counts what one sweep changed.
type Report struct {
	SessionsExpired   int `json:"sessionsExpired"`
	AttemptsReaped    int `json:"attemptsReaped"`
	ArtifactsLost     int `json:"artifactsLost"`
	ArtifactsRevealed int `json:"artifactsRevealed"`
	Skipped           int `json:"skipped"`
}

// Changed reports whether the sweep touched anything.
func (r Report) Changed() bool {
	return r.SessionsExpired+r.AttemptsReaped+r.ArtifactsLost+r.ArtifactsRevealed > 0
}

// Janitor sweeps one engine's store.
type Janitor struct {
	engine *engine.Engine
	log    *slog.Logger
}

// New creates a janitor for e.
func New(e *engine.Engine, log *slog.Logger) *Janitor {
	if log == nil {
		log = slog.Default()
	}
	return &Janitor{engine: e, log: log.With("component", "janitor")}
}

// Register adds the sweep command. It is buffered with room for one pending
// sweep so ticks never pile up behind a slow one.
func (j *Janitor) Register(d *dispatcher.Dispatcher) {
	d.Register(CmdSweep, func(ctx context.Context, _ dispatcher.Event) (any, error) {
		return j.Sweep(ctx)
	}, dispatcher.Buffered(1))
}

// Run dispatches a sweep every interval until ctx is done.
func (j *Janitor) Run(ctx context.Context, d *dispatcher.Dispatcher, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			_, err := d.Dispatch(ctx, dispatcher.Event{Command: CmdSweep, Caller: identity.Identity{PlayerID: "janitor"}, Timestamp: time.Now()})
			if errors.Is(err, dispatcher.ErrQueueFull) {
				j.log.Debug("sweep already pending")
			} else if err != nil {
				j.log.Error("sweep dispatch failed", "error", err)
			}
		}
	}
}

// Sweep makes one pass. Each record is handled in its own transaction; a
// record that loses a race with a player is skipped until the next pass.
func (j *Janitor) Sweep(ctx context.Context) (Report, error) {
	var (
		rep       Report
		sessions  []core.TradeSession
		artifacts []core.ArtifactSpawn
	)
	store := j.engine.Store()
	err := store.View(ctx, func(tx storage.Tx) error {
		var err error
		if sessions, err = tx.Sessions(); err != nil {
			return err
		}
		artifacts, err = tx.Artifacts()
		return err
	})
	if err != nil {
		return rep, err
	}

	now := j.engine.Now()
	for _, s := range sessions {
		if !s.ExpiredAt(now) {
			continue
		}
		err := j.each(ctx, &rep, &rep.SessionsExpired, "session", s.ID, func(tx storage.Tx) (bool, error) {
			return j.engine.Trade().Sweep(tx, s.ID, now)
		})
		if err != nil {
			return rep, err
		}
	}

	for _, a := range artifacts {
		var (
			counter *int
			fn      func(tx storage.Tx) (bool, error)
		)
		switch {
		case a.State == core.ArtifactExtracting:
			counter = &rep.AttemptsReaped
			fn = func(tx storage.Tx) (bool, error) { return j.engine.Extraction().Reap(tx, a.ID, now) }
		case expirable(a) && a.ExpiredAt(now):
			counter = &rep.ArtifactsLost
			fn = func(tx storage.Tx) (bool, error) { return markLost(tx, a.ID, now) }
		case a.State == core.ArtifactHidden && a.RevealAt != nil && !now.Before(*a.RevealAt):
			counter = &rep.ArtifactsRevealed
			fn = func(tx storage.Tx) (bool, error) { return reveal(tx, a.ID, now) }
		default:
			continue
		}
		if err := j.each(ctx, &rep, counter, "artifact", a.ID, fn); err != nil {
			return rep, err
		}
	}

	if rep.Changed() {
		j.log.Info("sweep done",
			"sessions", rep.SessionsExpired, "attempts", rep.AttemptsReaped,
			"lost", rep.ArtifactsLost, "revealed", rep.ArtifactsRevealed, "skipped", rep.Skipped)
	}
	return rep, nil
}

// each runs fn in its own transaction and bumps *counter if it changed
// the record. Any failure other than a context error skips the record.
func (j *Janitor) each(ctx context.Context, rep *Report, counter *int, kind, id string, fn func(tx storage.Tx) (bool, error)) error {
	var changed bool
	err := j.engine.Store().Update(ctx, func(tx storage.Tx) error {
		var err error
		changed, err = fn(tx)
		return err
	})
	switch {
	case err == nil:
		if changed {
			*counter++
		}
		return nil
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return err
	case errors.Is(err, storage.ErrConflict), errors.Is(err, storage.ErrNotFound):
		j.log.Debug("sweep skipped record", "kind", kind, "id", id, "error", err)
	default:
		j.log.Warn("sweep failed for record", "kind", kind, "id", id, "error", err)
	}
	rep.Skipped++
	return nil
}

// expirable holds for spawns nobody owns or holds.
func expirable(a core.ArtifactSpawn) bool {
	return a.OwnerID == "" && (a.State == core.ArtifactVisible || a.State == core.ArtifactHidden)
}

func markLost(tx storage.Tx, id string, now time.Time) (bool, error) {
	a, err := tx.Artifact(id)
	if err != nil {
		return false, err
	}
	if !expirable(a) || !a.ExpiredAt(now) {
		return false, nil
	}
	a.State = core.ArtifactLost
	if err := tx.PutArtifact(&a); err != nil {
		return false, err
	}
	return true, tx.AppendEvent(&core.GameEvent{
		Type: core.EventArtifactLost,
		At:   now,
		Data: map[string]any{"artifactId": a.ID, "typeId": a.TypeID},
	})
}

func reveal(tx storage.Tx, id string, now time.Time) (bool, error) {
	a, err := tx.Artifact(id)
	if err != nil {
		return false, err
	}
	if a.State != core.ArtifactHidden || a.RevealAt == nil || now.Before(*a.RevealAt) {
		return false, nil
	}
	a.State = core.ArtifactVisible
	return true, tx.PutArtifact(&a)
}
