// internal/loot/loot.go
package loot

import (
	"errors"
	"math/rand/v2"
	"sort"
	"time"

	"github.com/pdazone/engine/internal/config"
	"github.com/pdazone/engine/internal/gameerr"
	"github.com/pdazone/engine/internal/storage"
	"github.com/pdazone/engine/pkg/core"
)

// Roller draws uniform integers.
type Roller interface {
	// IntN returns a value in [0, n).
	IntN(n int) int
}

type randRoller struct{}

func (randRoller) IntN(n int) int { return rand.IntN(n) }

// NewRoller returns a roller backed by math/rand/v2.
func NewRoller() Roller { return randRoller{} }

// Policy holds the loss and looting chances, all in percent.
type Policy struct {
	DeathLossPct int
	MoneyMinPct  int
	MoneyMaxPct  int
	EquipmentPct int
	ArtifactPct  int
}

// PolicyFrom reads the policy from the game constants.
func PolicyFrom(cfg config.EngineConfig) Policy {
	return Policy{
		DeathLossPct: cfg.DeathItemLossPct,
		MoneyMinPct:  cfg.LootMoneyMinPct,
		MoneyMaxPct:  cfg.LootMoneyMaxPct,
		EquipmentPct: cfg.LootEquipmentPct,
		ArtifactPct:  cfg.LootArtifactPct,
	}
}

func chance(r Roller, pct int) bool {
	return pct > 0 && r.IntN(100) < pct
}

// moneyPct picks the share of the victim's balance taken by a looter.
func (pol Policy) moneyPct(r Roller) int {
	pct := pol.MoneyMinPct
	if span := pol.MoneyMaxPct - pol.MoneyMinPct; span > 0 {
		pct += r.IntN(span + 1)
	}
	return max(0, min(100, pct))
}

// Modifiers sums the effects of everything p has equipped.
func Modifiers(tx storage.Tx, p core.Player) (core.Modifiers, error) {
	var m core.Modifiers
	for _, itemID := range p.Equipment {
		it, err := tx.Item(itemID)
		if errors.Is(err, storage.ErrNotFound) {
			continue
		}
		if err != nil {
			return m, err
		}
		m.RadiationResist += it.RadiationResist
		m.BonusLives += it.BonusLives
	}
	return m, nil
}

type unit struct {
	item     core.Item
	equipped bool
}

// carried lists every wearable unit p holds, equipped ones first.
func carried(tx storage.Tx, p core.Player, inv core.Inventory) ([]unit, error) {
	var units []unit
	lookup := func(id string) (core.Item, bool, error) {
		it, err := tx.Item(id)
		if errors.Is(err, storage.ErrNotFound) {
			return it, false, nil
		}
		return it, err == nil && it.Equippable(), err
	}

	for _, id := range p.Equipment {
		it, ok, err := lookup(id)
		if err != nil {
			return nil, err
		}
		if ok {
			units = append(units, unit{item: it, equipped: true})
		}
	}

	ids := make([]string, 0, len(inv.Items))
	for id := range inv.Items {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	for _, id := range ids {
		it, ok, err := lookup(id)
		if err != nil {
			return nil, err
		}
		if !ok {
			continue
		}
		for range inv.Quantity(id) {
			units = append(units, unit{item: it})
		}
	}
	return units, nil
}

// take removes one unit from p. Losing an equipped item takes its bonus
// lives back.
func take(p *core.Player, inv *core.Inventory, u unit) {
	if !u.equipped {
		inv.Add(u.item.ID, -1)
		return
	}
	for i, id := range p.Equipment {
		if id == u.item.ID {
			p.Equipment = append(p.Equipment[:i:i], p.Equipment[i+1:]...)
			break
		}
	}
	p.CurrentLives -= u.item.BonusLives
}

// moveSpawn hands one extracted spawn of typeID owned by from to the new
// owner. An empty owner marks the spawn lost.
func moveSpawn(tx storage.Tx, from, to, typeID string) error {
	spawns, err := tx.Artifacts()
	if err != nil {
		return err
	}
	for _, a := range spawns {
		if a.OwnerID != from || a.TypeID != typeID || a.State != core.ArtifactExtracted {
			continue
		}
		a.OwnerID = to
		if to == "" {
			a.State = core.ArtifactLost
		}
		return tx.PutArtifact(&a)
	}
	return nil
}

// LoseOnDeath rolls DeathLossPct for every wearable unit p carries and
// destroys the ones that hit. Lost artifacts are marked lost. p is mutated
// and the caller writes it; the inventory is written here.
func LoseOnDeath(tx storage.Tx, p *core.Player, pol Policy, r Roller) ([]string, error) {
	if pol.DeathLossPct <= 0 {
		return nil, nil
	}
	inv, err := tx.Inventory(p.ID)
	if err != nil {
		return nil, err
	}
	units, err := carried(tx, *p, inv)
	if err != nil {
		return nil, err
	}

	var lost []string
	for _, u := range units {
		if !chance(r, pol.DeathLossPct) {
			continue
		}
		take(p, &inv, u)
		if u.item.Kind == core.ItemArtifact {
			if err := moveSpawn(tx, p.ID, "", u.item.ID); err != nil {
				return nil, err
			}
		}
		lost = append(lost, u.item.ID)
	}
	if len(lost) == 0 {
		return nil, nil
	}
	if p.Modifiers, err = Modifiers(tx, *p); err != nil {
		return nil, err
	}
	return lost, tx.PutInventory(&inv)
}

// Haul is what one looting moved from the victim to the looter.
type Haul struct {
	VictimID string   `json:"victimId"`
	Money    int64    `json:"money"`
	Items    []string `json:"items"`
}

// Loot lets an alive looter search a dead victim's body once per death.
// Both players are mutated and the caller writes them.
func Loot(tx storage.Tx, looter, victim *core.Player, pol Policy, r Roller, now time.Time) (Haul, error) {
	haul := Haul{VictimID: victim.ID}
	switch {
	case looter.ID == victim.ID:
		return haul, gameerr.Validation(gameerr.CodeCannotLootSelf, "cannot loot yourself")
	case !looter.Alive():
		return haul, gameerr.Precondition(gameerr.CodePlayerDead, "dead players cannot loot")
	case victim.Alive():
		return haul, gameerr.Precondition(gameerr.CodeTargetAlive, "player %s is alive", victim.ID)
	case victim.LootedSinceDeath():
		return haul, gameerr.Conflict(gameerr.CodeAlreadyLooted, "player %s was already looted", victim.ID)
	}

	if victim.Balance > 0 {
		haul.Money = victim.Balance * int64(pol.moneyPct(r)) / 100
		victim.Balance -= haul.Money
		looter.Balance += haul.Money
	}

	vinv, err := tx.Inventory(victim.ID)
	if err != nil {
		return haul, err
	}
	linv, err := tx.Inventory(looter.ID)
	if err != nil {
		return haul, err
	}
	units, err := carried(tx, *victim, vinv)
	if err != nil {
		return haul, err
	}
	for _, u := range units {
		pct := pol.EquipmentPct
		if u.item.Kind == core.ItemArtifact {
			pct = pol.ArtifactPct
		}
		if !chance(r, pct) {
			continue
		}
		take(victim, &vinv, u)
		linv.Add(u.item.ID, 1)
		if u.item.Kind == core.ItemArtifact {
			if err := moveSpawn(tx, victim.ID, looter.ID, u.item.ID); err != nil {
				return haul, err
			}
		}
		haul.Items = append(haul.Items, u.item.ID)
	}
	if len(haul.Items) > 0 {
		if victim.Modifiers, err = Modifiers(tx, *victim); err != nil {
			return haul, err
		}
		if err := tx.PutInventory(&vinv); err != nil {
			return haul, err
		}
		if err := tx.PutInventory(&linv); err != nil {
			return haul, err
		}
	}
	victim.LootedAt = &now

	data := map[string]any{"looterId": looter.ID, "victimId": victim.ID, "money": haul.Money, "items": haul.Items}
	for _, id := range []string{looter.ID, victim.ID} {
		if err := tx.AppendEvent(&core.GameEvent{Type: core.EventLooting, PlayerID: id, At: now, Data: data}); err != nil {
			return haul, err
		}
	}
	return haul, nil
}

// Drop gives up an owned artifact spawn. The spawn becomes lost and one
// unit of its type leaves the inventory, or the equipment if none is left
// in the bag.
func Drop(tx storage.Tx, p *core.Player, artifactID string, now time.Time) (core.ArtifactSpawn, error) {
	a, err := tx.Artifact(artifactID)
	if errors.Is(err, storage.ErrNotFound) || (err == nil && a.OwnerID != p.ID) {
		return a, gameerr.NotFound(gameerr.CodeArtifactNotFound, "artifact %s not found in your possession", artifactID)
	}
	if err != nil {
		return a, err
	}

	a.OwnerID = ""
	a.State = core.ArtifactLost
	if err := tx.PutArtifact(&a); err != nil {
		return a, err
	}

	inv, err := tx.Inventory(p.ID)
	if err != nil {
		return a, err
	}
	switch {
	case inv.Quantity(a.TypeID) > 0:
		inv.Add(a.TypeID, -1)
		if err := tx.PutInventory(&inv); err != nil {
			return a, err
		}
	case p.HasEquipped(a.TypeID):
		it, err := tx.Item(a.TypeID)
		if err != nil && !errors.Is(err, storage.ErrNotFound) {
			return a, err
		}
		it.ID = a.TypeID
		take(p, &inv, unit{item: it, equipped: true})
		if p.Modifiers, err = Modifiers(tx, *p); err != nil {
			return a, err
		}
	}

	return a, tx.AppendEvent(&core.GameEvent{
		Type: core.EventArtifactDrop, PlayerID: p.ID, At: now,
		Data: map[string]any{"artifactId": a.ID, "typeId": a.TypeID},
	})
}
