package engine

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/pdazone/engine/internal/gameerr"
	"github.com/pdazone/engine/internal/geo"
	"github.com/pdazone/engine/internal/identity"
	"github.com/pdazone/engine/internal/quest"
	"github.com/pdazone/engine/internal/storage"
	"github.com/pdazone/engine/pkg/core"
)

func invalid(format string, args ...any) error {
	return gameerr.Validation(gameerr.CodeInvalidInput, format, args...)
}

// created maps a failed create to an already-exists conflict.
func created(kind, id string, err error) error {
	if errors.Is(err, storage.ErrConflict) {
		return gameerr.Conflict(gameerr.CodeAlreadyExists, "%s %s already exists", kind, id)
	}
	return err
}

// RegisterPlayer creates a player with the configured starting lives and balance.
func (e *Engine) RegisterPlayer(ctx context.Context, id identity.Identity, p core.Player) (core.Player, error) {
	if err := operator(id); err != nil {
		return p, err
	}
	if p.ID == "" {
		return p, invalid("player id is required")
	}
	if p.Position != nil {
		if err := geo.Validate(*p.Position); err != nil {
			return p, invalid("%v", err)
		}
	}
	p.Status = core.StatusAlive
	p.CurrentRadiation = 0
	p.CurrentLives = e.cfg.DefaultLives
	p.Balance = e.cfg.DefaultBalance
	p.Equipment = nil
	p.Modifiers = core.Modifiers{}
	p.Version = 0
	if p.QRCode == "" {
		p.QRCode = uuid.NewString()
	}

	defer e.lock(p.ID)()
	err := e.update(ctx, "register_player", func(tx storage.Tx) error {
		_, err := tx.PlayerByQRCode(p.QRCode)
		if err == nil {
			return gameerr.Conflict(gameerr.CodeAlreadyExists, "qr code %s is already issued", p.QRCode)
		}
		if !errors.Is(err, storage.ErrNotFound) {
			return err
		}
		return created("player", p.ID, tx.PutPlayer(&p))
	})
	return p, err
}

func validZone(z core.Zone) error {
	if z.ID == "" {
		return invalid("zone id is required")
	}
	switch z.Type {
	case core.ZoneRadiation:
		if z.RadiationLevel < 0 {
			return invalid("radiationLevel must not be negative")
		}
	case core.ZoneRespawn:
		if z.RespawnTimeSeconds < 0 {
			return invalid("respawnTimeSeconds must not be negative")
		}
	case core.ZoneControlPoint:
	default:
		return invalid("unknown zone type %q", z.Type)
	}
	if z.Radius <= 0 {
		return invalid("radius must be positive")
	}
	if z.ActiveFrom != nil && z.ActiveTo != nil && !z.ActiveTo.After(*z.ActiveFrom) {
		return invalid("activeTo must be after activeFrom")
	}
	if err := geo.Validate(z.Center); err != nil {
		return invalid("%v", err)
	}
	return nil
}

// UpsertZone creates or replaces a zone and drops the zone cache.
func (e *Engine) UpsertZone(ctx context.Context, id identity.Identity, z core.Zone) (core.Zone, error) {
	if err := operator(id); err != nil {
		return z, err
	}
	if err := validZone(z); err != nil {
		return z, err
	}
	err := e.update(ctx, "upsert_zone", func(tx storage.Tx) error {
		z.Version = 0
		if cur, err := tx.Zone(z.ID); err == nil {
			z.Version = cur.Version
		} else if !errors.Is(err, storage.ErrNotFound) {
			return err
		}
		return tx.PutZone(&z)
	})
	if err == nil {
		e.zones.Reset()
		e.log.Info("zone saved", "zone", z.ID, "type", z.Type)
	}
	return z, err
}

// SpawnArtifact places a new artifact of an artifact-kind item type. Spawns
// with a future reveal time start hidden.
func (e *Engine) SpawnArtifact(ctx context.Context, id identity.Identity, a core.ArtifactSpawn) (core.ArtifactSpawn, error) {
	if err := operator(id); err != nil {
		return a, err
	}
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	if err := geo.Validate(a.Position); err != nil {
		return a, invalid("%v", err)
	}
	now := e.clock.Now()
	a.State = core.ArtifactVisible
	if a.RevealAt != nil && a.RevealAt.After(now) {
		a.State = core.ArtifactHidden
	}
	a.OwnerID = ""
	a.ExtractedAt = nil
	a.Version = 0

	err := e.update(ctx, "spawn_artifact", func(tx storage.Tx) error {
		it, err := loadItem(tx, a.TypeID)
		if err != nil {
			return err
		}
		if it.Kind != core.ItemArtifact {
			return invalid("item %s is not an artifact type", it.ID)
		}
		return created("artifact", a.ID, tx.PutArtifact(&a))
	})
	return a, err
}

// UpsertItem creates or replaces a catalog item.
func (e *Engine) UpsertItem(ctx context.Context, id identity.Identity, it core.Item) (core.Item, error) {
	if err := operator(id); err != nil {
		return it, err
	}
	if it.ID == "" {
		return it, invalid("item id is required")
	}
	switch it.Kind {
	case core.ItemEquipment, core.ItemConsumable, core.ItemArtifact:
	default:
		return it, invalid("unknown item kind %q", it.Kind)
	}
	if it.BasePrice < 0 {
		return it, invalid("basePrice must not be negative")
	}
	err := e.update(ctx, "upsert_item", func(tx storage.Tx) error {
		it.Version = 0
		if cur, err := tx.Item(it.ID); err == nil {
			it.Version = cur.Version
		} else if !errors.Is(err, storage.ErrNotFound) {
			return err
		}
		return tx.PutItem(&it)
	})
	return it, err
}

// UpsertTrader creates or replaces a trader.
func (e *Engine) UpsertTrader(ctx context.Context, id identity.Identity, tr core.Trader) (core.Trader, error) {
	if err := operator(id); err != nil {
		return tr, err
	}
	if tr.ID == "" {
		return tr, invalid("trader id is required")
	}
	if tr.InteractionRadius <= 0 {
		return tr, invalid("interactionRadius must be positive")
	}
	if tr.CommissionBuyPct < 0 || tr.CommissionSellPct < 0 || tr.CommissionSellPct > 100 {
		return tr, invalid("commissions must be between 0 and 100")
	}
	if err := geo.Validate(tr.Position); err != nil {
		return tr, invalid("%v", err)
	}
	err := e.update(ctx, "upsert_trader", func(tx storage.Tx) error {
		tr.Version = 0
		if cur, err := tx.Trader(tr.ID); err == nil {
			tr.Version = cur.Version
		} else if !errors.Is(err, storage.ErrNotFound) {
			return err
		}
		return tx.PutTrader(&tr)
	})
	return tr, err
}

// StockInventory adds quantities to the inventory of a player or trader.
// Negative quantities remove stock.
func (e *Engine) StockInventory(ctx context.Context, id identity.Identity, ownerID string, items map[string]int) (core.Inventory, error) {
	var inv core.Inventory
	if err := operator(id); err != nil {
		return inv, err
	}
	if ownerID == "" || len(items) == 0 {
		return inv, invalid("owner and items are required")
	}
	defer e.lock(ownerID)()
	err := e.update(ctx, "stock_inventory", func(tx storage.Tx) error {
		var err error
		if inv, err = tx.Inventory(ownerID); err != nil {
			return err
		}
		for itemID, n := range items {
			if _, err := loadItem(tx, itemID); err != nil {
				return err
			}
			inv.Add(itemID, n)
		}
		inv.OwnerID = ownerID
		return tx.PutInventory(&inv)
	})
	return inv, err
}

// PublishQuest validates and posts a quest on the board. The caller becomes
// the issuer unless one is given.
func (e *Engine) PublishQuest(ctx context.Context, id identity.Identity, q core.Quest) (core.Quest, error) {
	if err := operator(id); err != nil {
		return q, err
	}
	if q.ID == "" {
		q.ID = uuid.NewString()
	}
	if q.IssuerID == "" {
		q.IssuerID = id.PlayerID
	}
	q.Status = core.QuestAvailable
	q.AwaitingConfirmation = false
	q.AcceptedBy = ""
	q.AcceptedAt = nil
	q.CompletedAt = nil
	q.FailedAt = nil
	q.FailReason = ""
	q.RewardGranted = false
	q.Version = 0
	q.Objective.ResetProgress()
	if err := quest.Validate(q); err != nil {
		return q, err
	}
	err := e.update(ctx, "publish_quest", func(tx storage.Tx) error {
		if q.RewardItemID != "" {
			if _, err := loadItem(tx, q.RewardItemID); err != nil {
				return err
			}
		}
		return created("quest", q.ID, tx.PutQuest(&q))
	})
	return q, err
}

// RecordKill counts a kill for the killer's elimination quests and updates
// both players' counters. Both player keys are locked in lexical order.
func (e *Engine) RecordKill(ctx context.Context, id identity.Identity, killerID, victimID string) ([]quest.Change, error) {
	if err := operator(id); err != nil {
		return nil, err
	}
	if killerID == "" || victimID == "" || killerID == victimID {
		return nil, invalid("killer and victim must be two different players")
	}
	defer e.lockAll(killerID, victimID)()
	now := e.clock.Now()
	var changes []quest.Change
	err := e.update(ctx, "record_kill", func(tx storage.Tx) error {
		killer, err := loadPlayer(tx, killerID)
		if err != nil {
			return err
		}
		victim, err := loadPlayer(tx, victimID)
		if err != nil {
			return err
		}
		killer.Stats.Kills++
		victim.Stats.Deaths++
		if changes, err = e.quests.RecordKill(tx, &killer, victim.Faction, now); err != nil {
			return err
		}
		if err := tx.PutPlayer(&killer); err != nil {
			return err
		}
		if err := tx.PutPlayer(&victim); err != nil {
			return err
		}
		return tx.AppendEvent(&core.GameEvent{
			Type: core.EventKill, PlayerID: killerID, At: now,
			Data: map[string]any{"victimId": victimID, "victimFaction": string(victim.Faction)},
		})
	})
	return changes, err
}
