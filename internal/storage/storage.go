// internal/storage/storage.go
package storage

import (
	"context"
	"errors"

	"github.com/pdazone/engine/pkg/core"
)

var (
	// ErrNotFound is returned by getters when no record has the requested id.
	ErrNotFound = errors.New("record not found")
	// ErrConflict is returned when a write carries a stale version or
	// creates a record that already exists.
	ErrConflict = errors.New("version conflict")
)

// Store is the interface all storage implementations must satisfy.
// Writes made inside one Update commit atomically or not at all.
type Store interface {
	// Lifecycle
	Init() error
	Close() error

	View(ctx context.Context, fn func(Tx) error) error
	Update(ctx context.Context, fn func(Tx) error) error
}

// Tx is one transaction. Every Put compares the record's Version with the
// stored version (0 means create) and bumps it on success; a mismatch
// yields ErrConflict. Deletes are version checked the same way.
type Tx interface {
	Player(id string) (core.Player, error)
	PutPlayer(p *core.Player) error
	// PlayerByQRCode returns ErrNotFound for an unknown or empty code.
	PlayerByQRCode(code string) (core.Player, error)

	Zone(id string) (core.Zone, error)
	Zones() ([]core.Zone, error)
	PutZone(z *core.Zone) error

	// ZoneControl returns ErrNotFound for an uncaptured zone.
	ZoneControl(zoneID string) (core.ZoneControl, error)
	PutZoneControl(c *core.ZoneControl) error

	Artifact(id string) (core.ArtifactSpawn, error)
	Artifacts() ([]core.ArtifactSpawn, error)
	PutArtifact(a *core.ArtifactSpawn) error

	Attempt(artifactID string) (core.ExtractionAttempt, error)
	Attempts() ([]core.ExtractionAttempt, error)
	PutAttempt(a *core.ExtractionAttempt) error
	DeleteAttempt(a core.ExtractionAttempt) error

	Item(id string) (core.Item, error)
	PutItem(i *core.Item) error

	// Inventory returns an empty inventory with version 0 when the owner has none.
	Inventory(ownerID string) (core.Inventory, error)
	PutInventory(inv *core.Inventory) error

	Quest(id string) (core.Quest, error)
	// QuestsAcceptedBy returns the accepted and in-progress quests of a player.
	QuestsAcceptedBy(playerID string) ([]core.Quest, error)
	PutQuest(q *core.Quest) error

	Trader(id string) (core.Trader, error)
	PutTrader(t *core.Trader) error

	Session(id string) (core.TradeSession, error)
	// SessionFor returns the session of a (player, trader) pair if one exists.
	SessionFor(playerID, traderID string) (core.TradeSession, error)
	Sessions() ([]core.TradeSession, error)
	PutSession(s *core.TradeSession) error
	DeleteSession(s core.TradeSession) error

	AppendEvent(e *core.GameEvent) error
	Events(playerID string) ([]core.GameEvent, error)
}
