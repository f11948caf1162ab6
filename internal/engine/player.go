package engine

import (
	"context"
	"errors"

	"github.com/pdazone/engine/internal/gameerr"
	"github.com/pdazone/engine/internal/identity"
	"github.com/pdazone/engine/internal/loot"
	"github.com/pdazone/engine/internal/radiation"
	"github.com/pdazone/engine/internal/storage"
	"github.com/pdazone/engine/internal/tick"
	"github.com/pdazone/engine/pkg/core"
)

// ReportLocation processes one location report of the caller. A tick that
// keeps conflicting in the store is dropped with a transient error and none
// of its effects apply.
func (e *Engine) ReportLocation(ctx context.Context, id identity.Identity, r tick.Report) (tick.Diff, error) {
	if err := caller(id); err != nil {
		return tick.Diff{}, err
	}
	zones, err := e.zoneSet(ctx)
	if err != nil {
		return tick.Diff{}, err
	}

	defer e.lock(id.PlayerID)()
	now := e.clock.Now()
	var diff tick.Diff
	err = e.update(ctx, "report_location", func(tx storage.Tx) error {
		p, err := loadPlayer(tx, id.PlayerID)
		if err != nil {
			return err
		}
		diff, err = e.ticks.Apply(tx, &p, r, zones, now)
		if err != nil {
			return err
		}
		return tx.PutPlayer(&p)
	})
	if errors.Is(err, &gameerr.Error{Kind: gameerr.KindConflict, Code: gameerr.CodeConcurrentUpdate}) {
		return tick.Diff{}, gameerr.Transient(err)
	}
	if err != nil {
		return tick.Diff{}, err
	}

	if !diff.Duplicate {
		e.telemetry.Record("tick", map[string]string{"player": id.PlayerID, "status": string(diff.Status)}, map[string]any{
			"radiation":      diff.CurrentRadiation,
			"radiationDelta": diff.RadiationDelta,
			"elapsed":        diff.Elapsed,
			"zones":          len(diff.Zones),
			"artifacts":      len(diff.NearbyArtifacts),
		}, now)
	}
	if diff.Death {
		e.telemetry.Record("death", map[string]string{"player": id.PlayerID}, map[string]any{"radiation": diff.CurrentRadiation}, now)
	}
	if diff.Resurrection {
		e.telemetry.Record("resurrection", map[string]string{"player": id.PlayerID}, map[string]any{"lives": diff.CurrentLives}, now)
	}
	return diff, nil
}

// Player returns the caller's own record.
func (e *Engine) Player(ctx context.Context, id identity.Identity) (core.Player, error) {
	if err := caller(id); err != nil {
		return core.Player{}, err
	}
	var p core.Player
	err := e.view(ctx, "get_player", func(tx storage.Tx) error {
		var err error
		p, err = loadPlayer(tx, id.PlayerID)
		return err
	})
	return p, err
}

// Inventory returns the caller's inventory.
func (e *Engine) Inventory(ctx context.Context, id identity.Identity) (core.Inventory, error) {
	if err := caller(id); err != nil {
		return core.Inventory{}, err
	}
	var inv core.Inventory
	err := e.view(ctx, "get_inventory", func(tx storage.Tx) error {
		var err error
		inv, err = tx.Inventory(id.PlayerID)
		return err
	})
	return inv, err
}

// Events returns the caller's game event log.
func (e *Engine) Events(ctx context.Context, id identity.Identity) ([]core.GameEvent, error) {
	if err := caller(id); err != nil {
		return nil, err
	}
	var events []core.GameEvent
	err := e.view(ctx, "get_events", func(tx storage.Tx) error {
		var err error
		events, err = tx.Events(id.PlayerID)
		return err
	})
	return events, err
}

func loadItem(tx storage.Tx, itemID string) (core.Item, error) {
	it, err := tx.Item(itemID)
	if errors.Is(err, storage.ErrNotFound) {
		return it, gameerr.NotFound(gameerr.CodeItemNotFound, "item %s not found", itemID)
	}
	return it, err
}

// EquipItem moves one unit of itemID from the caller's inventory into
// their equipment and applies its bonus lives.
func (e *Engine) EquipItem(ctx context.Context, id identity.Identity, itemID string) (core.Player, error) {
	if err := caller(id); err != nil {
		return core.Player{}, err
	}
	defer e.lock(id.PlayerID)()
	var p core.Player
	err := e.update(ctx, "equip_item", func(tx storage.Tx) error {
		var err error
		if p, err = loadPlayer(tx, id.PlayerID); err != nil {
			return err
		}
		it, err := loadItem(tx, itemID)
		if err != nil {
			return err
		}
		if !it.Equippable() {
			return gameerr.Validation(gameerr.CodeNotEquippable, "item %s cannot be equipped", it.ID)
		}
		if p.HasEquipped(it.ID) {
			return gameerr.Precondition(gameerr.CodeAlreadyExists, "item %s is already equipped", it.ID)
		}
		inv, err := tx.Inventory(p.ID)
		if err != nil {
			return err
		}
		if inv.Quantity(it.ID) < 1 {
			return gameerr.Precondition(gameerr.CodeInsufficientItems, "item %s not in inventory", it.ID)
		}
		inv.Add(it.ID, -1)
		if err := tx.PutInventory(&inv); err != nil {
			return err
		}

		p.Equipment = append(p.Equipment, it.ID)
		p.CurrentLives += it.BonusLives
		if p.Modifiers, err = loot.Modifiers(tx, p); err != nil {
			return err
		}
		return tx.PutPlayer(&p)
	})
	if err == nil {
		e.log.Info("item equipped", "player", id.PlayerID, "item", itemID)
	}
	return p, err
}

// UnequipItem returns itemID to the caller's inventory. Bonus lives are
// taken back even if that leaves the player in debt.
func (e *Engine) UnequipItem(ctx context.Context, id identity.Identity, itemID string) (core.Player, error) {
	if err := caller(id); err != nil {
		return core.Player{}, err
	}
	defer e.lock(id.PlayerID)()
	var p core.Player
	err := e.update(ctx, "unequip_item", func(tx storage.Tx) error {
		var err error
		if p, err = loadPlayer(tx, id.PlayerID); err != nil {
			return err
		}
		if !p.HasEquipped(itemID) {
			return gameerr.Precondition(gameerr.CodeNotEquipped, "item %s is not equipped", itemID)
		}
		it, err := loadItem(tx, itemID)
		if err != nil {
			return err
		}

		kept := p.Equipment[:0:0]
		for _, eq := range p.Equipment {
			if eq != itemID {
				kept = append(kept, eq)
			}
		}
		p.Equipment = kept
		p.CurrentLives -= it.BonusLives
		if p.Modifiers, err = loot.Modifiers(tx, p); err != nil {
			return err
		}

		inv, err := tx.Inventory(p.ID)
		if err != nil {
			return err
		}
		inv.Add(it.ID, 1)
		if err := tx.PutInventory(&inv); err != nil {
			return err
		}
		return tx.PutPlayer(&p)
	})
	if err == nil {
		e.log.Info("item unequipped", "player", id.PlayerID, "item", itemID, "lives", p.CurrentLives)
	}
	return p, err
}

// UseConsumable spends one unit of a consumable and removes radiation.
func (e *Engine) UseConsumable(ctx context.Context, id identity.Identity, itemID string) (core.Player, error) {
	if err := caller(id); err != nil {
		return core.Player{}, err
	}
	defer e.lock(id.PlayerID)()
	var p core.Player
	err := e.update(ctx, "use_consumable", func(tx storage.Tx) error {
		var err error
		if p, err = loadPlayer(tx, id.PlayerID); err != nil {
			return err
		}
		if !p.Alive() {
			return gameerr.Precondition(gameerr.CodePlayerDead, "dead players cannot use items")
		}
		it, err := loadItem(tx, itemID)
		if err != nil {
			return err
		}
		if it.Kind != core.ItemConsumable {
			return gameerr.Validation(gameerr.CodeNotConsumable, "item %s is not a consumable", it.ID)
		}
		inv, err := tx.Inventory(p.ID)
		if err != nil {
			return err
		}
		if inv.Quantity(it.ID) < 1 {
			return gameerr.Precondition(gameerr.CodeInsufficientItems, "item %s not in inventory", it.ID)
		}
		inv.Add(it.ID, -1)
		if err := tx.PutInventory(&inv); err != nil {
			return err
		}
		radiation.Remove(&p, it.RadiationRemoval)
		return tx.PutPlayer(&p)
	})
	return p, err
}
