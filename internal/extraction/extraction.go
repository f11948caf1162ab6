// internal/extraction/extraction.go
package extraction

import (
	"errors"
	"log/slog"
	"time"

	"github.com/pdazone/engine/internal/config"
	"github.com/pdazone/engine/internal/gameerr"
	"github.com/pdazone/engine/internal/geo"
	"github.com/pdazone/engine/internal/quest"
	"github.com/pdazone/engine/internal/storage"
	"github.com/pdazone/engine/pkg/core"
)

// Coordinator grants one player at a time a timed hold on an artifact spawn.
// Exclusivity comes from the versioned write of the artifact record: of two
// transactions that both saw the spawn visible, only one commits.
type Coordinator struct {
	PickupRadius float64
	Hold         time.Duration
	Grace        time.Duration
	Reputation   int

	quests *quest.Engine
	log    *slog.Logger
}

// New creates a coordinator from the game constants.
func New(cfg config.EngineConfig, quests *quest.Engine, log *slog.Logger) *Coordinator {
	if log == nil {
		log = slog.Default()
	}
	return &Coordinator{
		PickupRadius: cfg.PickupRadiusMeters,
		Hold:         cfg.ExtractionHold,
		Grace:        cfg.ExtractionGrace,
		Reputation:   cfg.ExtractionReputation,
		quests:       quests,
		log:          log,
	}
}

// Result describes the artifact after an extraction call.
type Result struct {
	Artifact     core.ArtifactSpawn
	Attempt      *core.ExtractionAttempt
	Remaining    time.Duration
	QuestChanges []quest.Change
}

func (c *Coordinator) load(tx storage.Tx, id string) (core.ArtifactSpawn, error) {
	a, err := tx.Artifact(id)
	if errors.Is(err, storage.ErrNotFound) {
		return a, gameerr.NotFound(gameerr.CodeArtifactNotFound, "artifact %s not found", id)
	}
	return a, err
}

// stale reports whether an attempt has outlived the hold plus grace period.
func (c *Coordinator) stale(at core.ExtractionAttempt, now time.Time) bool {
	return now.Sub(at.StartedAt) > c.Hold+c.Grace
}

func (c *Coordinator) remaining(at core.ExtractionAttempt, now time.Time) time.Duration {
	left := c.Hold - now.Sub(at.StartedAt)
	if left < 0 {
		return 0
	}
	return left
}

// release reverts an extracting artifact to visible and drops its attempt.
func (c *Coordinator) release(tx storage.Tx, a *core.ArtifactSpawn, at core.ExtractionAttempt) error {
	a.State = core.ArtifactVisible
	if err := tx.PutArtifact(a); err != nil {
		return err
	}
	return tx.DeleteAttempt(at)
}

// Start begins a hold on a visible artifact within pickup range of p.
func (c *Coordinator) Start(tx storage.Tx, p core.Player, artifactID string, now time.Time) (Result, error) {
	if !p.Alive() {
		return Result{}, gameerr.Precondition(gameerr.CodePlayerDead, "dead players cannot extract")
	}
	a, err := c.load(tx, artifactID)
	if err != nil {
		return Result{}, err
	}

	switch a.State {
	case core.ArtifactExtracting:
		at, err := tx.Attempt(a.ID)
		switch {
		case errors.Is(err, storage.ErrNotFound):
			// orphaned state without an attempt: treat as abandoned
			a.State = core.ArtifactVisible
		case err != nil:
			return Result{}, err
		case at.PlayerID == p.ID && !c.stale(at, now):
			return Result{Artifact: a, Attempt: &at, Remaining: c.remaining(at, now)}, nil
		case !c.stale(at, now):
			return Result{Artifact: a}, gameerr.Conflict(gameerr.CodeArtifactBeingExtracted, "artifact %s is being extracted", a.ID)
		default:
			c.log.Info("clearing abandoned extraction", "artifact", a.ID, "player", at.PlayerID, "started", at.StartedAt)
			if err := tx.DeleteAttempt(at); err != nil {
				return Result{}, err
			}
			a.State = core.ArtifactVisible
		}
	case core.ArtifactExtracted:
		return Result{Artifact: a}, gameerr.Conflict(gameerr.CodeArtifactAlreadyTaken, "artifact %s was already extracted", a.ID)
	case core.ArtifactHidden, core.ArtifactLost:
		return Result{Artifact: a}, gameerr.Precondition(gameerr.CodeArtifactNotAvailable, "artifact %s is %s", a.ID, a.State)
	}

	if a.ExpiredAt(now) {
		a.State = core.ArtifactLost
		if err := tx.PutArtifact(&a); err != nil {
			return Result{}, err
		}
		return Result{Artifact: a}, gameerr.Expired(gameerr.CodeArtifactExpired, "artifact %s expired", a.ID)
	}
	if p.Position == nil {
		return Result{Artifact: a}, gameerr.Precondition(gameerr.CodeNoPosition, "no reported position")
	}
	if d := geo.Distance(*p.Position, a.Position); d > c.PickupRadius {
		return Result{Artifact: a}, gameerr.Precondition(gameerr.CodeTooFar, "%.1fm from artifact, pickup radius is %.1fm", d, c.PickupRadius)
	}

	a.State = core.ArtifactExtracting
	if err := tx.PutArtifact(&a); err != nil {
		return Result{}, err
	}
	at := core.ExtractionAttempt{ArtifactID: a.ID, PlayerID: p.ID, StartedAt: now}
	if err := tx.PutAttempt(&at); err != nil {
		return Result{}, err
	}
	c.log.Info("extraction started", "artifact", a.ID, "player", p.ID)
	return Result{Artifact: a, Attempt: &at, Remaining: c.Hold}, nil
}

// holder loads the artifact and the attempt held by playerID.
func (c *Coordinator) holder(tx storage.Tx, playerID, artifactID string) (core.ArtifactSpawn, core.ExtractionAttempt, error) {
	var at core.ExtractionAttempt
	a, err := c.load(tx, artifactID)
	if err != nil {
		return a, at, err
	}
	if a.State != core.ArtifactExtracting {
		return a, at, gameerr.Precondition(gameerr.CodeNotExtracting, "artifact %s is not being extracted", a.ID)
	}
	at, err = tx.Attempt(a.ID)
	if errors.Is(err, storage.ErrNotFound) {
		return a, at, gameerr.Precondition(gameerr.CodeNotExtracting, "artifact %s has no extraction attempt", a.ID)
	}
	if err != nil {
		return a, at, err
	}
	if at.PlayerID != playerID {
		return a, at, gameerr.Precondition(gameerr.CodeNotExtracting, "artifact %s is held by another player", a.ID)
	}
	return a, at, nil
}

// Complete finishes the hold of p once it has lasted the full hold duration.
// The artifact goes to p's inventory and artifact collection quests advance;
// p is mutated and the caller persists it.
func (c *Coordinator) Complete(tx storage.Tx, p *core.Player, artifactID string, now time.Time) (Result, error) {
	if a, err := c.load(tx, artifactID); err == nil && a.State == core.ArtifactExtracted && a.OwnerID == p.ID {
		return Result{Artifact: a}, nil
	}
	a, at, err := c.holder(tx, p.ID, artifactID)
	if err != nil {
		return Result{Artifact: a}, err
	}
	if left := c.remaining(at, now); left > 0 {
		return Result{Artifact: a, Attempt: &at, Remaining: left},
			gameerr.Precondition(gameerr.CodeExtractionNotComplete, "hold for another %s", left.Round(time.Second))
	}
	if p.Position == nil || geo.Distance(*p.Position, a.Position) > c.PickupRadius {
		if err := c.release(tx, &a, at); err != nil {
			return Result{}, err
		}
		c.log.Info("extraction cancelled, player moved away", "artifact", a.ID, "player", p.ID)
		return Result{Artifact: a}, gameerr.Keep(gameerr.Precondition(gameerr.CodeTooFar, "moved out of pickup radius"))
	}

	a.State = core.ArtifactExtracted
	a.OwnerID = p.ID
	a.ExtractedAt = &now
	if err := tx.PutArtifact(&a); err != nil {
		return Result{}, err
	}
	if err := tx.DeleteAttempt(at); err != nil {
		return Result{}, err
	}

	inv, err := tx.Inventory(p.ID)
	if err != nil {
		return Result{}, err
	}
	inv.Add(a.TypeID, 1)
	if err := tx.PutInventory(&inv); err != nil {
		return Result{}, err
	}

	p.Reputation += c.Reputation
	p.Stats.ArtifactsFound++
	changes, err := c.quests.ArtifactCollected(tx, p, a.TypeID, now)
	if err != nil {
		return Result{}, err
	}
	if err := tx.AppendEvent(&core.GameEvent{
		Type: core.EventExtraction, PlayerID: p.ID, At: now,
		Data: map[string]any{"artifactId": a.ID, "typeId": a.TypeID},
	}); err != nil {
		return Result{}, err
	}
	c.log.Info("extraction completed", "artifact", a.ID, "type", a.TypeID, "player", p.ID)
	return Result{Artifact: a, QuestChanges: changes}, nil
}

// Cancel releases the hold of playerID.
func (c *Coordinator) Cancel(tx storage.Tx, playerID, artifactID string) (Result, error) {
	a, at, err := c.holder(tx, playerID, artifactID)
	if err != nil {
		return Result{Artifact: a}, err
	}
	if err := c.release(tx, &a, at); err != nil {
		return Result{}, err
	}
	c.log.Info("extraction cancelled", "artifact", a.ID, "player", playerID)
	return Result{Artifact: a}, nil
}

// Reap reverts an abandoned hold on artifactID to visible. It reports
// whether anything changed.
func (c *Coordinator) Reap(tx storage.Tx, artifactID string, now time.Time) (bool, error) {
	a, err := c.load(tx, artifactID)
	if err != nil {
		return false, err
	}
	if a.State != core.ArtifactExtracting {
		return false, nil
	}
	at, err := tx.Attempt(a.ID)
	if errors.Is(err, storage.ErrNotFound) {
		a.State = core.ArtifactVisible
		return true, tx.PutArtifact(&a)
	}
	if err != nil || !c.stale(at, now) {
		return false, err
	}
	return true, c.release(tx, &a, at)
}
