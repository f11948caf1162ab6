// internal/storage/memory/tx.go
package memory

import (
	"errors"
	"sort"

	"github.com/google/uuid"
	"github.com/pdazone/engine/internal/storage"
	"github.com/pdazone/engine/pkg/core"
)

// tradePair is the unique index row of an active (player, trader) session.
type tradePair struct {
	SessionID string `json:"sessionId"`
	Version   int64  `json:"version"`
}

func pairKey(playerID, traderID string) string {
	return playerID + "|" + traderID
}

func (t *tx) Player(id string) (core.Player, error) {
	return get[core.Player](t, kindPlayer, id)
}

func (t *tx) PutPlayer(p *core.Player) error {
	return t.put(kindPlayer, p.ID, &p.Version, p)
}

func (t *tx) PlayerByQRCode(code string) (core.Player, error) {
	if code == "" {
		return core.Player{}, storage.ErrNotFound
	}
	found, err := list(t, kindPlayer, func(p core.Player) bool { return p.QRCode == code })
	if err != nil {
		return core.Player{}, err
	}
	if len(found) == 0 {
		return core.Player{}, storage.ErrNotFound
	}
	return found[0], nil
}

func (t *tx) Zone(id string) (core.Zone, error) {
	return get[core.Zone](t, kindZone, id)
}

func (t *tx) Zones() ([]core.Zone, error) {
	return list[core.Zone](t, kindZone, nil)
}

func (t *tx) PutZone(z *core.Zone) error {
	return t.put(kindZone, z.ID, &z.Version, z)
}

func (t *tx) ZoneControl(zoneID string) (core.ZoneControl, error) {
	return get[core.ZoneControl](t, kindZoneControl, zoneID)
}

func (t *tx) PutZoneControl(c *core.ZoneControl) error {
	return t.put(kindZoneControl, c.ZoneID, &c.Version, c)
}

func (t *tx) Artifact(id string) (core.ArtifactSpawn, error) {
	return get[core.ArtifactSpawn](t, kindArtifact, id)
}

func (t *tx) Artifacts() ([]core.ArtifactSpawn, error) {
	return list[core.ArtifactSpawn](t, kindArtifact, nil)
}

func (t *tx) PutArtifact(a *core.ArtifactSpawn) error {
	return t.put(kindArtifact, a.ID, &a.Version, a)
}

func (t *tx) Attempt(artifactID string) (core.ExtractionAttempt, error) {
	return get[core.ExtractionAttempt](t, kindAttempt, artifactID)
}

func (t *tx) Attempts() ([]core.ExtractionAttempt, error) {
	return list[core.ExtractionAttempt](t, kindAttempt, nil)
}

func (t *tx) PutAttempt(a *core.ExtractionAttempt) error {
	return t.put(kindAttempt, a.ArtifactID, &a.Version, a)
}

func (t *tx) DeleteAttempt(a core.ExtractionAttempt) error {
	return t.del(kindAttempt, a.ArtifactID, a.Version)
}

func (t *tx) Item(id string) (core.Item, error) {
	return get[core.Item](t, kindItem, id)
}

func (t *tx) PutItem(i *core.Item) error {
	return t.put(kindItem, i.ID, &i.Version, i)
}

func (t *tx) Inventory(ownerID string) (core.Inventory, error) {
	inv, err := get[core.Inventory](t, kindInventory, ownerID)
	if errors.Is(err, storage.ErrNotFound) {
		return core.Inventory{OwnerID: ownerID, Items: map[string]int{}}, nil
	}
	if inv.Items == nil {
		inv.Items = map[string]int{}
	}
	return inv, err
}

func (t *tx) PutInventory(inv *core.Inventory) error {
	return t.put(kindInventory, inv.OwnerID, &inv.Version, inv)
}

func (t *tx) Quest(id string) (core.Quest, error) {
	return get[core.Quest](t, kindQuest, id)
}

func (t *tx) QuestsAcceptedBy(playerID string) ([]core.Quest, error) {
	return list(t, kindQuest, func(q core.Quest) bool {
		return q.AcceptedBy == playerID && q.Active()
	})
}

func (t *tx) PutQuest(q *core.Quest) error {
	return t.put(kindQuest, q.ID, &q.Version, q)
}

func (t *tx) Trader(id string) (core.Trader, error) {
	return get[core.Trader](t, kindTrader, id)
}

func (t *tx) PutTrader(tr *core.Trader) error {
	return t.put(kindTrader, tr.ID, &tr.Version, tr)
}

func (t *tx) Session(id string) (core.TradeSession, error) {
	return get[core.TradeSession](t, kindSession, id)
}

func (t *tx) SessionFor(playerID, traderID string) (core.TradeSession, error) {
	pair, err := get[tradePair](t, kindTradePair, pairKey(playerID, traderID))
	if err != nil {
		return core.TradeSession{}, err
	}
	return t.Session(pair.SessionID)
}

func (t *tx) Sessions() ([]core.TradeSession, error) {
	return list[core.TradeSession](t, kindSession, nil)
}

// PutSession also claims the (player, trader) index on create, so two
// sessions for one pair cannot both commit.
func (t *tx) PutSession(s *core.TradeSession) error {
	if s.Version == 0 {
		pair := tradePair{SessionID: s.ID}
		if err := t.put(kindTradePair, pairKey(s.PlayerID, s.TraderID), &pair.Version, &pair); err != nil {
			return err
		}
	}
	return t.put(kindSession, s.ID, &s.Version, s)
}

func (t *tx) DeleteSession(s core.TradeSession) error {
	if err := t.del(kindSession, s.ID, s.Version); err != nil {
		return err
	}
	key := pairKey(s.PlayerID, s.TraderID)
	pair, err := get[tradePair](t, kindTradePair, key)
	if errors.Is(err, storage.ErrNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	if pair.SessionID != s.ID {
		return nil
	}
	return t.del(kindTradePair, key, pair.Version)
}

func (t *tx) AppendEvent(e *core.GameEvent) error {
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	var version int64
	return t.put(kindEvent, e.ID, &version, e)
}

func (t *tx) Events(playerID string) ([]core.GameEvent, error) {
	events, err := list(t, kindEvent, func(e core.GameEvent) bool {
		return playerID == "" || e.PlayerID == playerID
	})
	if err != nil {
		return nil, err
	}
	sort.SliceStable(events, func(i, j int) bool { return events[i].At.Before(events[j].At) })
	return events, nil
}
