package loot

import (
	"context"
	"testing"
	"time"

	"github.com/pdazone/engine/internal/config"
	"github.com/pdazone/engine/internal/gameerr"
	"github.com/pdazone/engine/internal/storage"
	"github.com/pdazone/engine/internal/storage/memory"
	"github.com/pdazone/engine/pkg/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var t0 = time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)

// roller returns v clamped into [0, n).
type roller int

func (r roller) IntN(n int) int { return min(int(r), n-1) }

const (
	hit  = roller(0)
	miss = roller(1000)
)

func newStore(t *testing.T) storage.Store {
	t.Helper()
	s := memory.New(config.MemoryConfig{})
	require.NoError(t, s.Init())
	require.NoError(t, s.Update(context.Background(), func(tx storage.Tx) error {
		for _, it := range []core.Item{
			{ID: "suit", Kind: core.ItemEquipment, RadiationResist: 30, BonusLives: 1},
			{ID: "helmet", Kind: core.ItemEquipment, RadiationResist: 10},
			{ID: "medusa", Kind: core.ItemArtifact, BonusLives: 1},
			{ID: "vodka", Kind: core.ItemConsumable, RadiationRemoval: 20},
		} {
			if err := tx.PutItem(&it); err != nil {
				return err
			}
		}
		return tx.PutArtifact(&core.ArtifactSpawn{ID: "a1", TypeID: "medusa", State: core.ArtifactExtracted, OwnerID: "victim"})
	}))
	return s
}

func dead(id string, diedAt time.Time) *core.Player {
	return &core.Player{ID: id, Status: core.StatusDead, DiedAt: &diedAt, Balance: 1000}
}

func stock(t *testing.T, s storage.Store, owner string, items map[string]int) {
	t.Helper()
	require.NoError(t, s.Update(context.Background(), func(tx storage.Tx) error {
		inv, err := tx.Inventory(owner)
		if err != nil {
			return err
		}
		for id, n := range items {
			inv.Add(id, n)
		}
		return tx.PutInventory(&inv)
	}))
}

func inventory(t *testing.T, s storage.Store, owner string) core.Inventory {
	t.Helper()
	var inv core.Inventory
	require.NoError(t, s.View(context.Background(), func(tx storage.Tx) error {
		var err error
		inv, err = tx.Inventory(owner)
		return err
	}))
	return inv
}

func spawn(t *testing.T, s storage.Store) core.ArtifactSpawn {
	t.Helper()
	var a core.ArtifactSpawn
	require.NoError(t, s.View(context.Background(), func(tx storage.Tx) error {
		var err error
		a, err = tx.Artifact("a1")
		return err
	}))
	return a
}

func TestModifiers_SkipsUnknownItems(t *testing.T) {
	s := newStore(t)
	require.NoError(t, s.View(context.Background(), func(tx storage.Tx) error {
		m, err := Modifiers(tx, core.Player{Equipment: []string{"suit", "ghost", "helmet"}})
		assert.InDelta(t, 40, m.RadiationResist, 1e-9)
		assert.Equal(t, 1, m.BonusLives)
		return err
	}))
}

func TestPolicyFrom(t *testing.T) {
	pol := PolicyFrom(config.DefaultEngineConfig())
	assert.Equal(t, Policy{DeathLossPct: 10, MoneyMinPct: 1, MoneyMaxPct: 50, EquipmentPct: 5, ArtifactPct: 3}, pol)
}

func TestLoseOnDeath(t *testing.T) {
	tests := []struct {
		name      string
		pol       Policy
		roll      Roller
		lost      []string
		lives     int
		equipment []string
		bag       map[string]int
		spawn     core.ArtifactState
	}{
		{
			name: "zero chance", pol: Policy{}, roll: hit,
			lives: 3, equipment: []string{"suit"}, bag: map[string]int{"helmet": 1, "medusa": 1, "vodka": 1},
			spawn: core.ArtifactExtracted,
		},
		{
			name: "roll misses", pol: Policy{DeathLossPct: 20}, roll: miss,
			lives: 3, equipment: []string{"suit"}, bag: map[string]int{"helmet": 1, "medusa": 1, "vodka": 1},
			spawn: core.ArtifactExtracted,
		},
		{
			name: "every roll hits", pol: Policy{DeathLossPct: 20}, roll: hit,
			lost:  []string{"suit", "helmet", "medusa"},
			lives: 2, bag: map[string]int{"vodka": 1},
			spawn: core.ArtifactLost,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newStore(t)
			stock(t, s, "victim", map[string]int{"helmet": 1, "medusa": 1, "vodka": 1})
			p := &core.Player{ID: "victim", CurrentLives: 3, Equipment: []string{"suit"}, Modifiers: core.Modifiers{RadiationResist: 30, BonusLives: 1}}

			var lost []string
			require.NoError(t, s.Update(context.Background(), func(tx storage.Tx) error {
				var err error
				lost, err = LoseOnDeath(tx, p, tt.pol, tt.roll)
				return err
			}))
			assert.Equal(t, tt.lost, lost)
			assert.Equal(t, tt.lives, p.CurrentLives)
			if tt.equipment == nil {
				assert.Empty(t, p.Equipment)
				assert.Zero(t, p.Modifiers.RadiationResist)
			} else {
				assert.Equal(t, tt.equipment, p.Equipment)
			}
			assert.Equal(t, tt.bag, inventory(t, s, "victim").Items)
			assert.Equal(t, tt.spawn, spawn(t, s).State)
		})
	}
}

func TestLoot_Preconditions(t *testing.T) {
	s := newStore(t)
	looter := &core.Player{ID: "looter", Status: core.StatusAlive}
	alive := &core.Player{ID: "victim", Status: core.StatusAlive}
	looted := dead("victim", t0)
	lootedAt := t0.Add(time.Minute)
	looted.LootedAt = &lootedAt

	tests := []struct {
		name           string
		looter, victim *core.Player
		code           string
	}{
		{"self", looter, looter, gameerr.CodeCannotLootSelf},
		{"dead looter", dead("looter", t0), dead("victim", t0), gameerr.CodePlayerDead},
		{"alive victim", looter, alive, gameerr.CodeTargetAlive},
		{"looted body", looter, looted, gameerr.CodeAlreadyLooted},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := s.Update(context.Background(), func(tx storage.Tx) error {
				_, err := Loot(tx, tt.looter, tt.victim, Policy{MoneyMinPct: 50, MoneyMaxPct: 50}, hit, t0.Add(time.Hour))
				return err
			})
			assert.Equal(t, tt.code, gameerr.CodeOf(err))
		})
	}
}

func TestLoot_TransfersMoneyAndItems(t *testing.T) {
	s := newStore(t)
	stock(t, s, "victim", map[string]int{"helmet": 1, "medusa": 1, "vodka": 2})
	looter := &core.Player{ID: "looter", Status: core.StatusAlive, Balance: 100}
	victim := dead("victim", t0)
	victim.Equipment = []string{"suit"}
	victim.CurrentLives = 2

	pol := Policy{MoneyMinPct: 10, MoneyMaxPct: 30, EquipmentPct: 5, ArtifactPct: 3}
	var haul Haul
	now := t0.Add(time.Minute)
	require.NoError(t, s.Update(context.Background(), func(tx storage.Tx) error {
		var err error
		haul, err = Loot(tx, looter, victim, pol, hit, now)
		return err
	}))

	assert.Equal(t, int64(100), haul.Money)
	assert.Equal(t, []string{"suit", "helmet", "medusa"}, haul.Items)
	assert.Equal(t, int64(200), looter.Balance)
	assert.Equal(t, int64(900), victim.Balance)
	assert.Empty(t, victim.Equipment)
	assert.Equal(t, 1, victim.CurrentLives)
	assert.True(t, victim.LootedSinceDeath())

	assert.Equal(t, map[string]int{"suit": 1, "helmet": 1, "medusa": 1}, inventory(t, s, "looter").Items)
	assert.Equal(t, map[string]int{"vodka": 2}, inventory(t, s, "victim").Items)
	a := spawn(t, s)
	assert.Equal(t, "looter", a.OwnerID)
	assert.Equal(t, core.ArtifactExtracted, a.State)

	require.NoError(t, s.View(context.Background(), func(tx storage.Tx) error {
		for _, id := range []string{"looter", "victim"} {
			events, err := tx.Events(id)
			require.NoError(t, err)
			require.Len(t, events, 1, id)
			assert.Equal(t, core.EventLooting, events[0].Type)
		}
		return nil
	}))
}

func TestLoot_HighestRollTakesMaximumShare(t *testing.T) {
	s := newStore(t)
	looter := &core.Player{ID: "looter", Status: core.StatusAlive}
	victim := dead("victim", t0)

	var haul Haul
	require.NoError(t, s.Update(context.Background(), func(tx storage.Tx) error {
		var err error
		haul, err = Loot(tx, looter, victim, Policy{MoneyMinPct: 10, MoneyMaxPct: 30, EquipmentPct: 5}, miss, t0)
		return err
	}))
	assert.Equal(t, int64(300), haul.Money)
	assert.Empty(t, haul.Items)
	assert.Empty(t, inventory(t, s, "looter").Items)
}

func TestLoot_AgainAfterNextDeath(t *testing.T) {
	victim := dead("victim", t0)
	first := t0.Add(time.Minute)
	victim.LootedAt = &first
	assert.True(t, victim.LootedSinceDeath())

	died := t0.Add(time.Hour)
	victim.DiedAt = &died
	assert.False(t, victim.LootedSinceDeath())
}

func TestDrop(t *testing.T) {
	s := newStore(t)
	stock(t, s, "victim", map[string]int{"medusa": 1})
	owner := &core.Player{ID: "victim", Status: core.StatusAlive}
	other := &core.Player{ID: "other", Status: core.StatusAlive}

	err := s.Update(context.Background(), func(tx storage.Tx) error {
		_, err := Drop(tx, other, "a1", t0)
		return err
	})
	assert.Equal(t, gameerr.CodeArtifactNotFound, gameerr.CodeOf(err))
	err = s.Update(context.Background(), func(tx storage.Tx) error {
		_, err := Drop(tx, owner, "missing", t0)
		return err
	})
	assert.ErrorIs(t, err, gameerr.ErrNotFound)

	require.NoError(t, s.Update(context.Background(), func(tx storage.Tx) error {
		_, err := Drop(tx, owner, "a1", t0)
		return err
	}))
	a := spawn(t, s)
	assert.Equal(t, core.ArtifactLost, a.State)
	assert.Empty(t, a.OwnerID)
	assert.Zero(t, inventory(t, s, "victim").Quantity("medusa"))
}

func TestDrop_EquippedArtifact(t *testing.T) {
	s := newStore(t)
	owner := &core.Player{ID: "victim", Status: core.StatusAlive, CurrentLives: 5, Equipment: []string{"medusa"}, Modifiers: core.Modifiers{BonusLives: 1}}

	require.NoError(t, s.Update(context.Background(), func(tx storage.Tx) error {
		_, err := Drop(tx, owner, "a1", t0)
		return err
	}))
	assert.Empty(t, owner.Equipment)
	assert.Equal(t, 4, owner.CurrentLives)
	assert.Zero(t, owner.Modifiers.BonusLives)
}
