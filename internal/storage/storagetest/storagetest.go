// Package storagetest holds the behavioural contract every storage.Store
// must pass. Backends call Run from their own tests.
package storagetest

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/pdazone/engine/internal/storage"
	"github.com/pdazone/engine/pkg/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Factory returns a fresh, initialized store for one subtest.
type Factory func(t *testing.T) storage.Store

var errBoom = errors.New("boom")

// Run executes the contract suite.
func Run(t *testing.T, newStore Factory) {
	t.Run("CreateAndGet", func(t *testing.T) { testCreateAndGet(t, newStore(t)) })
	t.Run("NotFound", func(t *testing.T) { testNotFound(t, newStore(t)) })
	t.Run("VersionConflict", func(t *testing.T) { testVersionConflict(t, newStore(t)) })
	t.Run("CreateTwiceConflicts", func(t *testing.T) { testCreateTwice(t, newStore(t)) })
	t.Run("RollbackOnError", func(t *testing.T) { testRollback(t, newStore(t)) })
	t.Run("ReadYourWrites", func(t *testing.T) { testReadYourWrites(t, newStore(t)) })
	t.Run("Inventory", func(t *testing.T) { testInventory(t, newStore(t)) })
	t.Run("QuestsAcceptedBy", func(t *testing.T) { testQuestsAcceptedBy(t, newStore(t)) })
	t.Run("SessionPairUnique", func(t *testing.T) { testSessionPair(t, newStore(t)) })
	t.Run("Attempts", func(t *testing.T) { testAttempts(t, newStore(t)) })
	t.Run("Zones", func(t *testing.T) { testZones(t, newStore(t)) })
	t.Run("Events", func(t *testing.T) { testEvents(t, newStore(t)) })
	t.Run("PlayerByQRCode", func(t *testing.T) { testPlayerByQRCode(t, newStore(t)) })
}

var t0 = time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)

func samplePlayer(id string) *core.Player {
	return &core.Player{
		ID:           id,
		Nickname:     "Strelok",
		Faction:      core.FactionStalker,
		Status:       core.StatusAlive,
		Position:     &core.Point{Lat: 51.389, Lng: 30.099},
		CurrentLives: 4,
		Balance:      1000,
		Equipment:    []string{"suit"},
		Modifiers:    core.Modifiers{RadiationResist: 20},
	}
}

func testCreateAndGet(t *testing.T, s storage.Store) {
	ctx := context.Background()
	p := samplePlayer("p1")
	require.NoError(t, s.Update(ctx, func(tx storage.Tx) error { return tx.PutPlayer(p) }))
	assert.Equal(t, int64(1), p.Version)

	var got core.Player
	require.NoError(t, s.View(ctx, func(tx storage.Tx) error {
		var err error
		got, err = tx.Player("p1")
		return err
	}))
	assert.Equal(t, "Strelok", got.Nickname)
	assert.Equal(t, int64(1), got.Version)
	require.NotNil(t, got.Position)
	assert.InDelta(t, 51.389, got.Position.Lat, 1e-9)
	assert.Equal(t, []string{"suit"}, got.Equipment)
	assert.Equal(t, 20.0, got.Modifiers.RadiationResist)
}

func testNotFound(t *testing.T, s storage.Store) {
	err := s.View(context.Background(), func(tx storage.Tx) error {
		_, err := tx.Player("missing")
		return err
	})
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func testVersionConflict(t *testing.T, s storage.Store) {
	ctx := context.Background()
	require.NoError(t, s.Update(ctx, func(tx storage.Tx) error { return tx.PutPlayer(samplePlayer("p1")) }))

	var stale core.Player
	require.NoError(t, s.View(ctx, func(tx storage.Tx) error {
		var err error
		stale, err = tx.Player("p1")
		return err
	}))

	require.NoError(t, s.Update(ctx, func(tx storage.Tx) error {
		p, err := tx.Player("p1")
		if err != nil {
			return err
		}
		p.Balance = 500
		return tx.PutPlayer(&p)
	}))

	err := s.Update(ctx, func(tx storage.Tx) error {
		stale.Balance = 0
		return tx.PutPlayer(&stale)
	})
	assert.ErrorIs(t, err, storage.ErrConflict)

	require.NoError(t, s.View(ctx, func(tx storage.Tx) error {
		p, err := tx.Player("p1")
		assert.Equal(t, int64(500), p.Balance)
		assert.Equal(t, int64(2), p.Version)
		return err
	}))
}

func testCreateTwice(t *testing.T, s storage.Store) {
	ctx := context.Background()
	require.NoError(t, s.Update(ctx, func(tx storage.Tx) error { return tx.PutPlayer(samplePlayer("p1")) }))
	err := s.Update(ctx, func(tx storage.Tx) error { return tx.PutPlayer(samplePlayer("p1")) })
	assert.ErrorIs(t, err, storage.ErrConflict)
}

func testRollback(t *testing.T, s storage.Store) {
	ctx := context.Background()
	require.NoError(t, s.Update(ctx, func(tx storage.Tx) error { return tx.PutPlayer(samplePlayer("p1")) }))

	err := s.Update(ctx, func(tx storage.Tx) error {
		p, err := tx.Player("p1")
		if err != nil {
			return err
		}
		p.Balance = 0
		if err := tx.PutPlayer(&p); err != nil {
			return err
		}
		inv := core.Inventory{OwnerID: "p1"}
		inv.Add("medkit", 3)
		if err := tx.PutInventory(&inv); err != nil {
			return err
		}
		return errBoom
	})
	require.ErrorIs(t, err, errBoom)

	require.NoError(t, s.View(ctx, func(tx storage.Tx) error {
		p, err := tx.Player("p1")
		require.NoError(t, err)
		assert.Equal(t, int64(1000), p.Balance)
		inv, err := tx.Inventory("p1")
		require.NoError(t, err)
		assert.Equal(t, 0, inv.Quantity("medkit"))
		return nil
	}))
}

func testReadYourWrites(t *testing.T, s storage.Store) {
	ctx := context.Background()
	require.NoError(t, s.Update(ctx, func(tx storage.Tx) error {
		p := samplePlayer("p1")
		if err := tx.PutPlayer(p); err != nil {
			return err
		}
		got, err := tx.Player("p1")
		require.NoError(t, err)
		assert.Equal(t, "Strelok", got.Nickname)

		// second write in the same transaction uses the bumped version
		got.Balance = 42
		return tx.PutPlayer(&got)
	}))

	require.NoError(t, s.View(ctx, func(tx storage.Tx) error {
		p, err := tx.Player("p1")
		assert.Equal(t, int64(42), p.Balance)
		return err
	}))
}

func testInventory(t *testing.T, s storage.Store) {
	ctx := context.Background()
	require.NoError(t, s.View(ctx, func(tx storage.Tx) error {
		inv, err := tx.Inventory("nobody")
		require.NoError(t, err)
		assert.Equal(t, "nobody", inv.OwnerID)
		assert.Equal(t, int64(0), inv.Version)
		assert.Empty(t, inv.Items)
		return nil
	}))

	require.NoError(t, s.Update(ctx, func(tx storage.Tx) error {
		inv, err := tx.Inventory("trader-1")
		if err != nil {
			return err
		}
		inv.Add("medkit", 5)
		inv.Add("vodka", 2)
		return tx.PutInventory(&inv)
	}))

	require.NoError(t, s.View(ctx, func(tx storage.Tx) error {
		inv, err := tx.Inventory("trader-1")
		require.NoError(t, err)
		assert.Equal(t, 5, inv.Quantity("medkit"))
		assert.Equal(t, 2, inv.Quantity("vodka"))
		assert.Equal(t, int64(1), inv.Version)
		return nil
	}))
}

func testQuestsAcceptedBy(t *testing.T, s storage.Store) {
	ctx := context.Background()
	quests := []*core.Quest{
		{ID: "q1", Type: core.QuestVisit, Status: core.QuestAccepted, AcceptedBy: "p1",
			Objective: core.Objective{Visit: &core.VisitObjective{Radius: 10}}},
		{ID: "q2", Type: core.QuestManual, Status: core.QuestInProgress, AcceptedBy: "p1",
			Objective: core.Objective{Manual: &core.ManualObjective{Description: "talk"}}},
		{ID: "q3", Type: core.QuestManual, Status: core.QuestCompleted, AcceptedBy: "p1"},
		{ID: "q4", Type: core.QuestManual, Status: core.QuestAccepted, AcceptedBy: "p2"},
		{ID: "q5", Type: core.QuestManual, Status: core.QuestAvailable},
	}
	require.NoError(t, s.Update(ctx, func(tx storage.Tx) error {
		for _, q := range quests {
			if err := tx.PutQuest(q); err != nil {
				return err
			}
		}
		return nil
	}))

	require.NoError(t, s.View(ctx, func(tx storage.Tx) error {
		got, err := tx.QuestsAcceptedBy("p1")
		require.NoError(t, err)
		require.Len(t, got, 2)
		ids := []string{got[0].ID, got[1].ID}
		assert.ElementsMatch(t, []string{"q1", "q2"}, ids)

		q, err := tx.Quest("q1")
		require.NoError(t, err)
		require.NotNil(t, q.Objective.Visit)
		assert.Equal(t, 10.0, q.Objective.Visit.Radius)
		return nil
	}))
}

func testSessionPair(t *testing.T, s storage.Store) {
	ctx := context.Background()
	first := &core.TradeSession{ID: "s1", PlayerID: "p1", TraderID: "t1", StartedAt: t0, ExpiresAt: t0.Add(5 * time.Minute), BuyCommissionPct: 10}
	require.NoError(t, s.Update(ctx, func(tx storage.Tx) error { return tx.PutSession(first) }))

	second := &core.TradeSession{ID: "s2", PlayerID: "p1", TraderID: "t1", StartedAt: t0, ExpiresAt: t0.Add(5 * time.Minute)}
	err := s.Update(ctx, func(tx storage.Tx) error { return tx.PutSession(second) })
	assert.ErrorIs(t, err, storage.ErrConflict)

	other := &core.TradeSession{ID: "s3", PlayerID: "p1", TraderID: "t2", StartedAt: t0, ExpiresAt: t0.Add(5 * time.Minute)}
	require.NoError(t, s.Update(ctx, func(tx storage.Tx) error { return tx.PutSession(other) }))

	require.NoError(t, s.View(ctx, func(tx storage.Tx) error {
		got, err := tx.SessionFor("p1", "t1")
		require.NoError(t, err)
		assert.Equal(t, "s1", got.ID)
		assert.Equal(t, 10.0, got.BuyCommissionPct)
		assert.True(t, got.ExpiresAt.Equal(t0.Add(5*time.Minute)))
		all, err := tx.Sessions()
		require.NoError(t, err)
		assert.Len(t, all, 2)
		return nil
	}))

	require.NoError(t, s.Update(ctx, func(tx storage.Tx) error {
		got, err := tx.Session("s1")
		if err != nil {
			return err
		}
		return tx.DeleteSession(got)
	}))

	require.NoError(t, s.View(ctx, func(tx storage.Tx) error {
		_, err := tx.SessionFor("p1", "t1")
		assert.ErrorIs(t, err, storage.ErrNotFound)
		return nil
	}))

	// the pair is free again
	again := &core.TradeSession{ID: "s4", PlayerID: "p1", TraderID: "t1", StartedAt: t0, ExpiresAt: t0.Add(5 * time.Minute)}
	require.NoError(t, s.Update(ctx, func(tx storage.Tx) error { return tx.PutSession(again) }))
}

func testAttempts(t *testing.T, s storage.Store) {
	ctx := context.Background()
	a := &core.ExtractionAttempt{ArtifactID: "a1", PlayerID: "p1", StartedAt: t0}
	require.NoError(t, s.Update(ctx, func(tx storage.Tx) error { return tx.PutAttempt(a) }))

	dup := &core.ExtractionAttempt{ArtifactID: "a1", PlayerID: "p2", StartedAt: t0}
	err := s.Update(ctx, func(tx storage.Tx) error { return tx.PutAttempt(dup) })
	assert.ErrorIs(t, err, storage.ErrConflict)

	require.NoError(t, s.Update(ctx, func(tx storage.Tx) error {
		got, err := tx.Attempt("a1")
		if err != nil {
			return err
		}
		assert.Equal(t, "p1", got.PlayerID)
		return tx.DeleteAttempt(got)
	}))

	require.NoError(t, s.View(ctx, func(tx storage.Tx) error {
		all, err := tx.Attempts()
		require.NoError(t, err)
		assert.Empty(t, all)
		return nil
	}))
}

func testZones(t *testing.T, s storage.Store) {
	ctx := context.Background()
	require.NoError(t, s.Update(ctx, func(tx storage.Tx) error {
		for _, z := range []*core.Zone{
			{ID: "z2", Type: core.ZoneRespawn, Center: core.Point{Lat: 1, Lng: 2}, Radius: 30, RespawnTimeSeconds: 60, IsActive: true},
			{ID: "z1", Type: core.ZoneRadiation, Center: core.Point{Lat: 1, Lng: 2}, Radius: 50, RadiationLevel: 40, IsActive: true},
		} {
			if err := tx.PutZone(z); err != nil {
				return err
			}
		}
		return tx.PutZoneControl(&core.ZoneControl{ZoneID: "z3", Faction: core.FactionDuty, PlayerID: "p1", CapturedAt: t0})
	}))

	require.NoError(t, s.View(ctx, func(tx storage.Tx) error {
		zones, err := tx.Zones()
		require.NoError(t, err)
		require.Len(t, zones, 2)
		assert.Equal(t, "z1", zones[0].ID)
		assert.Equal(t, 40.0, zones[0].RadiationLevel)
		assert.Equal(t, 60.0, zones[1].RespawnTimeSeconds)

		c, err := tx.ZoneControl("z3")
		require.NoError(t, err)
		assert.Equal(t, core.FactionDuty, c.Faction)

		_, err = tx.ZoneControl("z1")
		assert.ErrorIs(t, err, storage.ErrNotFound)
		return nil
	}))
}

func testEvents(t *testing.T, s storage.Store) {
	ctx := context.Background()
	require.NoError(t, s.Update(ctx, func(tx storage.Tx) error {
		if err := tx.AppendEvent(&core.GameEvent{Type: core.EventDeath, PlayerID: "p1", At: t0.Add(time.Minute)}); err != nil {
			return err
		}
		if err := tx.AppendEvent(&core.GameEvent{Type: core.EventResurrection, PlayerID: "p1", At: t0.Add(2 * time.Minute)}); err != nil {
			return err
		}
		return tx.AppendEvent(&core.GameEvent{Type: core.EventTrade, PlayerID: "p2", At: t0, Data: map[string]any{"total": 10}})
	}))

	require.NoError(t, s.View(ctx, func(tx storage.Tx) error {
		events, err := tx.Events("p1")
		require.NoError(t, err)
		require.Len(t, events, 2)
		assert.Equal(t, core.EventDeath, events[0].Type)
		assert.Equal(t, core.EventResurrection, events[1].Type)
		assert.NotEmpty(t, events[0].ID)

		all, err := tx.Events("")
		require.NoError(t, err)
		assert.Len(t, all, 3)
		return nil
	}))
}

func testPlayerByQRCode(t *testing.T, s storage.Store) {
	ctx := context.Background()
	require.NoError(t, s.Update(ctx, func(tx storage.Tx) error {
		p1 := samplePlayer("p1")
		p1.QRCode = "QR-ONE"
		if err := tx.PutPlayer(p1); err != nil {
			return err
		}
		return tx.PutPlayer(samplePlayer("p2"))
	}))

	require.NoError(t, s.View(ctx, func(tx storage.Tx) error {
		p, err := tx.PlayerByQRCode("QR-ONE")
		require.NoError(t, err)
		assert.Equal(t, "p1", p.ID)
		assert.Equal(t, "QR-ONE", p.QRCode)

		_, err = tx.PlayerByQRCode("QR-TWO")
		assert.ErrorIs(t, err, storage.ErrNotFound)
		_, err = tx.PlayerByQRCode("")
		assert.ErrorIs(t, err, storage.ErrNotFound, "players without a badge never match")
		return nil
	}))
}
