package engine

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/pdazone/engine/internal/gameerr"
	"github.com/pdazone/engine/internal/identity"
	"github.com/pdazone/engine/internal/loot"
	"github.com/pdazone/engine/internal/storage"
	"github.com/pdazone/engine/internal/tick"
	"github.com/pdazone/engine/pkg/core"
)

// ReportDeath kills the caller on their own word. Carried items may be
// lost and accepted quests fail just like a radiation death.
func (e *Engine) ReportDeath(ctx context.Context, id identity.Identity) (tick.Diff, error) {
	var diff tick.Diff
	var at time.Time
	err := e.playerCall(ctx, "report_death", id, func(tx storage.Tx, p *core.Player, now time.Time) error {
		var err error
		diff, err = e.ticks.Kill(tx, p, now)
		at = now
		return err
	})
	if err != nil {
		return diff, err
	}
	e.telemetry.Record("death", map[string]string{"player": id.PlayerID, "cause": "reported"}, map[string]any{"itemsLost": len(diff.ItemsLost)}, at)
	return diff, nil
}

// LootPlayer searches the dead player whose badge carries qrCode.
func (e *Engine) LootPlayer(ctx context.Context, id identity.Identity, qrCode string) (loot.Haul, error) {
	if err := caller(id); err != nil {
		return loot.Haul{}, err
	}
	if qrCode == "" {
		return loot.Haul{}, invalid("qr code is required")
	}

	var victimID string
	err := e.view(ctx, "find_player_by_qr", func(tx storage.Tx) error {
		v, err := tx.PlayerByQRCode(qrCode)
		if errors.Is(err, storage.ErrNotFound) {
			return gameerr.NotFound(gameerr.CodePlayerNotFound, "no player carries this qr code")
		}
		victimID = v.ID
		return err
	})
	if err != nil {
		return loot.Haul{}, err
	}
	if victimID == id.PlayerID {
		return loot.Haul{}, gameerr.Validation(gameerr.CodeCannotLootSelf, "cannot loot yourself")
	}

	defer e.lockAll(id.PlayerID, victimID)()
	now := e.clock.Now()
	var haul loot.Haul
	err = e.update(ctx, "loot_player", func(tx storage.Tx) error {
		looter, err := loadPlayer(tx, id.PlayerID)
		if err != nil {
			return err
		}
		victim, err := loadPlayer(tx, victimID)
		if err != nil {
			return err
		}
		if victim.QRCode != qrCode {
			return gameerr.NotFound(gameerr.CodePlayerNotFound, "no player carries this qr code")
		}
		if haul, err = loot.Loot(tx, &looter, &victim, e.loot, e.roll, now); err != nil {
			return err
		}
		if err := tx.PutPlayer(&looter); err != nil {
			return err
		}
		return tx.PutPlayer(&victim)
	})
	if err != nil {
		return loot.Haul{}, err
	}
	e.log.Info("player looted", "looter", id.PlayerID, "victim", victimID, "money", haul.Money, "items", len(haul.Items))
	e.telemetry.Record("looting", map[string]string{"player": id.PlayerID, "victim": victimID}, map[string]any{"money": haul.Money, "items": len(haul.Items)}, now)
	return haul, nil
}

// DropArtifact gives up an artifact the caller owns.
func (e *Engine) DropArtifact(ctx context.Context, id identity.Identity, artifactID string) (core.ArtifactSpawn, error) {
	var a core.ArtifactSpawn
	err := e.playerCall(ctx, "drop_artifact", id, func(tx storage.Tx, p *core.Player, now time.Time) error {
		var err error
		a, err = loot.Drop(tx, p, artifactID, now)
		return err
	})
	return a, err
}

// Redemption is the code a player shows at the bar to collect an item.
type Redemption struct {
	ItemID string    `json:"itemId"`
	Code   string    `json:"redeemCode"`
	At     time.Time `json:"redeemedAt"`
}

// RedeemItem spends one unit of a redeemable item for a collection code.
// A spent unit cannot be redeemed twice.
func (e *Engine) RedeemItem(ctx context.Context, id identity.Identity, itemID string) (Redemption, error) {
	if err := caller(id); err != nil {
		return Redemption{}, err
	}
	defer e.lock(id.PlayerID)()
	now := e.clock.Now()
	r := Redemption{ItemID: itemID, Code: strings.ToUpper(uuid.NewString()[:8]), At: now}
	err := e.update(ctx, "redeem_item", func(tx storage.Tx) error {
		if _, err := loadPlayer(tx, id.PlayerID); err != nil {
			return err
		}
		it, err := loadItem(tx, itemID)
		if err != nil {
			return err
		}
		if !it.Redeemable {
			return gameerr.Validation(gameerr.CodeNotRedeemable, "item %s cannot be redeemed", it.ID)
		}
		inv, err := tx.Inventory(id.PlayerID)
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
		return tx.AppendEvent(&core.GameEvent{
			Type: core.EventRedeem, PlayerID: id.PlayerID, At: now,
			Data: map[string]any{"itemId": it.ID, "redeemCode": r.Code},
		})
	})
	if err != nil {
		return Redemption{}, err
	}
	e.log.Info("item redeemed", "player", id.PlayerID, "item", itemID, "code", r.Code)
	return r, nil
}
