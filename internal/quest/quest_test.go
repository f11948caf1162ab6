package quest

import (
	"context"
	"math"
	"testing"
	"time"

	"github.com/pdazone/engine/internal/config"
	"github.com/pdazone/engine/internal/gameerr"
	"github.com/pdazone/engine/internal/geo"
	"github.com/pdazone/engine/internal/storage"
	"github.com/pdazone/engine/internal/storage/memory"
	"github.com/pdazone/engine/pkg/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	t0   = time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
	base = core.Point{Lat: 51.3890, Lng: 30.0990}
)

func north(meters float64) core.Point {
	return core.Point{Lat: base.Lat + meters/geo.EarthRadiusMeters*180/math.Pi, Lng: base.Lng}
}

type fixture struct {
	store  storage.Store
	engine *Engine
}

func newFixture(t *testing.T) *fixture {
	s := memory.New(config.MemoryConfig{})
	require.NoError(t, s.Init())
	f := &fixture{store: s, engine: New(5, nil)}
	f.put(t, func(tx storage.Tx) error {
		return tx.PutPlayer(&core.Player{ID: "p1", Faction: core.FactionStalker, Status: core.StatusAlive, Position: &base})
	})
	return f
}

func (f *fixture) put(t *testing.T, fn func(tx storage.Tx) error) {
	t.Helper()
	require.NoError(t, f.store.Update(context.Background(), fn))
}

// do runs fn and commits even when fn reports a game error, mirroring how
// the engine keeps expiry cleanup.
func (f *fixture) do(t *testing.T, fn func(tx storage.Tx) error) error {
	t.Helper()
	var gameErr error
	err := f.store.Update(context.Background(), func(tx storage.Tx) error {
		gameErr = fn(tx)
		if gameerr.KindOf(gameErr) == gameerr.KindExpired {
			return nil
		}
		return gameErr
	})
	if gameErr != nil {
		return gameErr
	}
	require.NoError(t, err)
	return nil
}

func (f *fixture) quest(t *testing.T, id string) core.Quest {
	t.Helper()
	var q core.Quest
	require.NoError(t, f.store.View(context.Background(), func(tx storage.Tx) error {
		var err error
		q, err = tx.Quest(id)
		return err
	}))
	return q
}

func (f *fixture) player(t *testing.T, id string) core.Player {
	t.Helper()
	var p core.Player
	require.NoError(t, f.store.View(context.Background(), func(tx storage.Tx) error {
		var err error
		p, err = tx.Player(id)
		return err
	}))
	return p
}

func (f *fixture) publish(t *testing.T, q core.Quest) {
	t.Helper()
	q.Status = core.QuestAvailable
	if q.IssuerID == "" {
		q.IssuerID = "trader-1"
	}
	require.NoError(t, Validate(q))
	f.put(t, func(tx storage.Tx) error { return tx.PutQuest(&q) })
}

func (f *fixture) accept(t *testing.T, questID string) {
	t.Helper()
	require.NoError(t, f.do(t, func(tx storage.Tx) error {
		p, err := tx.Player("p1")
		if err != nil {
			return err
		}
		_, err = f.engine.Accept(tx, p, questID, t0)
		return err
	}))
}

// report moves p1 to pos and advances its quests by dt seconds.
func (f *fixture) report(t *testing.T, pos core.Point, dt float64, now time.Time) []Change {
	t.Helper()
	var changes []Change
	f.put(t, func(tx storage.Tx) error {
		p, err := tx.Player("p1")
		if err != nil {
			return err
		}
		p.Position = &pos
		quests, err := tx.QuestsAcceptedBy(p.ID)
		if err != nil {
			return err
		}
		changes, err = f.engine.Advance(tx, &p, quests, dt, now)
		if err != nil {
			return err
		}
		return tx.PutPlayer(&p)
	})
	return changes
}

func visitQuest(id string, auto bool) core.Quest {
	return core.Quest{
		ID: id, Title: "Go look", Type: core.QuestVisit, AutoComplete: auto,
		Reward: 500, RewardReputation: 10, RewardItemID: "medkit",
		Objective: core.Objective{Visit: &core.VisitObjective{Target: north(100), Radius: 20}},
	}
}

func TestVisit_AutoCompleteGrantsRewardOnce(t *testing.T) {
	f := newFixture(t)
	f.publish(t, visitQuest("q1", true))
	f.accept(t, "q1")

	assert.Empty(t, f.report(t, base, 15, t0.Add(15*time.Second)))

	changes := f.report(t, north(95), 15, t0.Add(30*time.Second))
	require.Len(t, changes, 1)
	assert.True(t, changes[0].Completed)

	q := f.quest(t, "q1")
	assert.Equal(t, core.QuestCompleted, q.Status)
	assert.True(t, q.RewardGranted)
	assert.True(t, q.Objective.Visit.Visited)

	p := f.player(t, "p1")
	assert.Equal(t, int64(500), p.Balance)
	assert.Equal(t, 10, p.Reputation)
	assert.Equal(t, 1, p.Stats.QuestsCompleted)

	// completed quests are no longer touched
	assert.Empty(t, f.report(t, north(95), 15, t0.Add(45*time.Second)))
	assert.Equal(t, int64(500), f.player(t, "p1").Balance)

	require.NoError(t, f.store.View(context.Background(), func(tx storage.Tx) error {
		inv, err := tx.Inventory("p1")
		assert.Equal(t, 1, inv.Quantity("medkit"))
		events, _ := tx.Events("p1")
		require.Len(t, events, 1)
		assert.Equal(t, core.EventQuestCompleted, events[0].Type)
		return err
	}))
}

func TestVisit_ClaimAndConfirm(t *testing.T) {
	f := newFixture(t)
	f.publish(t, visitQuest("q1", false))
	f.accept(t, "q1")

	claim := func() error {
		return f.do(t, func(tx storage.Tx) error {
			_, err := f.engine.Claim(tx, "p1", "q1", t0.Add(time.Minute))
			return err
		})
	}

	err := claim()
	assert.ErrorIs(t, err, gameerr.ErrPrecondition)
	assert.Equal(t, gameerr.CodeObjectiveIncomplete, gameerr.CodeOf(err))

	f.report(t, north(100), 15, t0.Add(30*time.Second))
	q := f.quest(t, "q1")
	assert.Equal(t, core.QuestInProgress, q.Status)
	assert.False(t, q.AwaitingConfirmation)

	require.NoError(t, claim())
	q = f.quest(t, "q1")
	assert.Equal(t, core.QuestInProgress, q.Status)
	assert.True(t, q.AwaitingConfirmation)

	confirm := func(caller string, operator bool) error {
		return f.do(t, func(tx storage.Tx) error {
			_, err := f.engine.Confirm(tx, caller, operator, "q1", t0.Add(2*time.Minute))
			return err
		})
	}

	assert.ErrorIs(t, confirm("p1", false), gameerr.ErrForbidden)
	require.NoError(t, confirm("trader-1", false))
	require.NoError(t, confirm("someone", true))

	q = f.quest(t, "q1")
	assert.Equal(t, core.QuestCompleted, q.Status)
	p := f.player(t, "p1")
	assert.Equal(t, int64(500), p.Balance, "reward granted once")
	assert.Equal(t, 1, p.Stats.QuestsCompleted)
}

func TestClaim_AutoCompleteRejected(t *testing.T) {
	f := newFixture(t)
	f.publish(t, visitQuest("q1", true))
	f.accept(t, "q1")

	err := f.do(t, func(tx storage.Tx) error {
		_, err := f.engine.Claim(tx, "p1", "q1", t0)
		return err
	})
	assert.Equal(t, gameerr.CodeAutoComplete, gameerr.CodeOf(err))
}

func TestConfirm_NotClaimed(t *testing.T) {
	f := newFixture(t)
	f.publish(t, visitQuest("q1", false))
	f.accept(t, "q1")

	err := f.do(t, func(tx storage.Tx) error {
		_, err := f.engine.Confirm(tx, "trader-1", false, "q1", t0)
		return err
	})
	assert.Equal(t, gameerr.CodeNotAwaiting, gameerr.CodeOf(err))
}

func TestPatrol_OutOfOrderAndPause(t *testing.T) {
	f := newFixture(t)
	f.publish(t, core.Quest{
		ID: "patrol", Type: core.QuestPatrol, AutoComplete: true, Reward: 100,
		Objective: core.Objective{Patrol: &core.PatrolObjective{
			RequiredTimeMinutes: 1,
			Checkpoints: []core.Checkpoint{
				{Position: north(0), Radius: 10},
				{Position: north(200), Radius: 10},
				{Position: north(400), Radius: 10},
			},
		}},
	})
	f.accept(t, "patrol")

	now := t0
	step := func(pos core.Point, dt float64) {
		now = now.Add(time.Duration(dt) * time.Second)
		f.report(t, pos, dt, now)
	}

	step(north(400), 20) // checkpoint 2 first
	q := f.quest(t, "patrol")
	assert.Equal(t, core.QuestInProgress, q.Status)
	assert.True(t, q.Objective.Patrol.Checkpoints[2].Visited)
	assert.Equal(t, 20.0, q.Objective.Patrol.AccumulatedTimeSeconds)

	step(north(300), 60) // between checkpoints: paused, not reset
	q = f.quest(t, "patrol")
	assert.Equal(t, 20.0, q.Objective.Patrol.AccumulatedTimeSeconds)

	step(north(0), 20)
	step(north(200), 15)
	q = f.quest(t, "patrol")
	assert.Equal(t, core.QuestInProgress, q.Status, "55s < 60s required")
	for _, cp := range q.Objective.Patrol.Checkpoints {
		assert.True(t, cp.Visited)
	}

	step(north(200), 5)
	q = f.quest(t, "patrol")
	assert.Equal(t, core.QuestCompleted, q.Status)
	assert.Equal(t, 60.0, q.Objective.Patrol.AccumulatedTimeSeconds)
}

func TestPatrol_VisitedNeverUnset(t *testing.T) {
	f := newFixture(t)
	f.publish(t, core.Quest{
		ID: "patrol", Type: core.QuestPatrol,
		Objective: core.Objective{Patrol: &core.PatrolObjective{
			RequiredTimeMinutes: 10,
			Checkpoints:         []core.Checkpoint{{Position: north(0), Radius: 10}, {Position: north(100), Radius: 10}},
		}},
	})
	f.accept(t, "patrol")

	f.report(t, north(0), 10, t0.Add(10*time.Second))
	f.report(t, north(50), 10, t0.Add(20*time.Second))
	q := f.quest(t, "patrol")
	assert.True(t, q.Objective.Patrol.Checkpoints[0].Visited)
	assert.False(t, q.Objective.Patrol.Checkpoints[1].Visited)
}

func TestElimination_FactionPredicate(t *testing.T) {
	f := newFixture(t)
	f.publish(t, core.Quest{
		ID: "hunt", Type: core.QuestElimination, AutoComplete: true, Reward: 300,
		Objective: core.Objective{Elimination: &core.EliminationObjective{TargetFaction: core.FactionBandit, TargetCount: 2}},
	})
	f.publish(t, core.Quest{
		ID: "anyone-but-duty", Type: core.QuestElimination,
		Objective: core.Objective{Elimination: &core.EliminationObjective{ExcludeFaction: core.FactionDuty, TargetCount: 5}},
	})
	f.accept(t, "hunt")
	f.accept(t, "anyone-but-duty")

	kill := func(victim core.Faction) []Change {
		var changes []Change
		f.put(t, func(tx storage.Tx) error {
			p, err := tx.Player("p1")
			if err != nil {
				return err
			}
			changes, err = f.engine.RecordKill(tx, &p, victim, t0)
			if err != nil {
				return err
			}
			return tx.PutPlayer(&p)
		})
		return changes
	}

	assert.Empty(t, kill(core.FactionDuty))
	assert.Len(t, kill(core.FactionBandit), 2)
	assert.Len(t, kill(core.FactionFreedom), 1)

	hunt := f.quest(t, "hunt")
	assert.Equal(t, 1, hunt.Objective.Elimination.CurrentCount)
	assert.Equal(t, core.QuestInProgress, hunt.Status, "freedom kill must not complete a bandit hunt")

	changes := kill(core.FactionBandit)
	require.Len(t, changes, 2)
	hunt = f.quest(t, "hunt")
	assert.Equal(t, core.QuestCompleted, hunt.Status)
	assert.Equal(t, int64(300), f.player(t, "p1").Balance)

	other := f.quest(t, "anyone-but-duty")
	assert.Equal(t, 3, other.Objective.Elimination.CurrentCount)
}

func TestElimination_TickDoesNotProgress(t *testing.T) {
	f := newFixture(t)
	f.publish(t, core.Quest{
		ID: "hunt", Type: core.QuestElimination,
		Objective: core.Objective{Elimination: &core.EliminationObjective{TargetCount: 1}},
	})
	f.accept(t, "hunt")
	assert.Empty(t, f.report(t, base, 15, t0.Add(15*time.Second)))
}

func TestArtifactCollection(t *testing.T) {
	f := newFixture(t)
	f.publish(t, core.Quest{
		ID: "collect", Type: core.QuestArtifactCollection, AutoComplete: true,
		Objective: core.Objective{ArtifactCollection: &core.CollectionObjective{
			TargetCounts: map[string]int{"medusa": 2, "flash": 1},
		}},
	})
	f.accept(t, "collect")

	collect := func(typeID string) {
		f.put(t, func(tx storage.Tx) error {
			p, err := tx.Player("p1")
			if err != nil {
				return err
			}
			if _, err := f.engine.ArtifactCollected(tx, &p, typeID, t0); err != nil {
				return err
			}
			return tx.PutPlayer(&p)
		})
	}

	collect("medusa")
	collect("stone") // not a target
	collect("flash")
	q := f.quest(t, "collect")
	assert.Equal(t, core.QuestInProgress, q.Status)
	assert.Equal(t, map[string]int{"medusa": 1, "flash": 1}, q.Objective.ArtifactCollection.CurrentCounts)

	collect("medusa")
	assert.Equal(t, core.QuestCompleted, f.quest(t, "collect").Status)
}

func TestAccept_FactionRestricted(t *testing.T) {
	f := newFixture(t)
	q := visitQuest("duty-only", false)
	q.FactionRestriction = []core.Faction{core.FactionDuty}
	f.publish(t, q)

	err := f.do(t, func(tx storage.Tx) error {
		p, _ := tx.Player("p1")
		_, err := f.engine.Accept(tx, p, "duty-only", t0)
		return err
	})
	assert.ErrorIs(t, err, gameerr.ErrForbidden)
	assert.Equal(t, core.QuestAvailable, f.quest(t, "duty-only").Status)
}

func TestAccept_TakenByOther(t *testing.T) {
	f := newFixture(t)
	f.put(t, func(tx storage.Tx) error {
		return tx.PutPlayer(&core.Player{ID: "p2", Status: core.StatusAlive})
	})
	f.publish(t, visitQuest("q1", false))
	f.accept(t, "q1")

	err := f.do(t, func(tx storage.Tx) error {
		p, _ := tx.Player("p2")
		_, err := f.engine.Accept(tx, p, "q1", t0)
		return err
	})
	assert.ErrorIs(t, err, gameerr.ErrConflict)
}

func TestAccept_MaxActive(t *testing.T) {
	f := newFixture(t)
	f.engine.MaxActive = 2
	for _, id := range []string{"a", "b", "c"} {
		f.publish(t, visitQuest(id, false))
	}
	f.accept(t, "a")
	f.accept(t, "b")

	err := f.do(t, func(tx storage.Tx) error {
		p, _ := tx.Player("p1")
		_, err := f.engine.Accept(tx, p, "c", t0)
		return err
	})
	assert.Equal(t, gameerr.CodeMaxQuests, gameerr.CodeOf(err))
}

func TestAccept_NotFound(t *testing.T) {
	f := newFixture(t)
	err := f.do(t, func(tx storage.Tx) error {
		p, _ := tx.Player("p1")
		_, err := f.engine.Accept(tx, p, "nope", t0)
		return err
	})
	assert.ErrorIs(t, err, gameerr.ErrNotFound)
}

func TestExpiry_FailsOnTouch(t *testing.T) {
	f := newFixture(t)
	q := visitQuest("q1", false)
	deadline := t0.Add(10 * time.Minute)
	q.ExpiresAt = &deadline
	f.publish(t, q)
	f.accept(t, "q1")

	err := f.do(t, func(tx storage.Tx) error {
		_, err := f.engine.Claim(tx, "p1", "q1", deadline.Add(time.Second))
		return err
	})
	assert.ErrorIs(t, err, gameerr.ErrExpired)

	got := f.quest(t, "q1")
	assert.Equal(t, core.QuestFailed, got.Status)
	assert.Equal(t, core.FailExpired, got.FailReason)
}

func TestExpiry_FailsOnTick(t *testing.T) {
	f := newFixture(t)
	q := visitQuest("q1", false)
	deadline := t0.Add(time.Minute)
	q.ExpiresAt = &deadline
	f.publish(t, q)
	f.accept(t, "q1")

	changes := f.report(t, north(100), 15, deadline)
	require.Len(t, changes, 1)
	assert.True(t, changes[0].Failed)
	got := f.quest(t, "q1")
	assert.Equal(t, core.QuestFailed, got.Status)
	assert.False(t, got.Objective.Visit.Visited)
}

func TestCancel_DiscardsProgress(t *testing.T) {
	f := newFixture(t)
	f.publish(t, core.Quest{
		ID: "patrol", Type: core.QuestPatrol,
		Objective: core.Objective{Patrol: &core.PatrolObjective{
			RequiredTimeMinutes: 5,
			Checkpoints:         []core.Checkpoint{{Position: base, Radius: 10}},
		}},
	})
	f.accept(t, "patrol")
	f.report(t, base, 30, t0.Add(30*time.Second))

	err := f.do(t, func(tx storage.Tx) error {
		_, err := f.engine.Cancel(tx, "p2", "patrol", t0)
		return err
	})
	assert.ErrorIs(t, err, gameerr.ErrForbidden)

	require.NoError(t, f.do(t, func(tx storage.Tx) error {
		_, err := f.engine.Cancel(tx, "p1", "patrol", t0.Add(time.Minute))
		return err
	}))

	q := f.quest(t, "patrol")
	assert.Equal(t, core.QuestAvailable, q.Status)
	assert.Empty(t, q.AcceptedBy)
	assert.Equal(t, 0.0, q.Objective.Patrol.AccumulatedTimeSeconds)
	assert.False(t, q.Objective.Patrol.Checkpoints[0].Visited)

	err = f.do(t, func(tx storage.Tx) error {
		_, err := f.engine.Cancel(tx, "p1", "patrol", t0.Add(time.Minute))
		return err
	})
	assert.ErrorIs(t, err, gameerr.ErrForbidden, "no longer held by p1")
}

func TestDeliver(t *testing.T) {
	f := newFixture(t)
	f.publish(t, core.Quest{
		ID: "courier", Type: core.QuestDelivery, AutoComplete: true, Reward: 250,
		Objective: core.Objective{Delivery: &core.DeliveryObjective{ItemID: "documents", Target: north(300), Radius: 15}},
	})
	f.accept(t, "courier")

	deliver := func() error {
		return f.do(t, func(tx storage.Tx) error {
			p, err := tx.Player("p1")
			if err != nil {
				return err
			}
			if _, err := f.engine.Deliver(tx, &p, "courier", t0); err != nil {
				return err
			}
			return tx.PutPlayer(&p)
		})
	}

	assert.Equal(t, gameerr.CodeTooFar, gameerr.CodeOf(deliver()))

	f.report(t, north(295), 15, t0)
	assert.Equal(t, gameerr.CodeInsufficientItems, gameerr.CodeOf(deliver()))

	f.put(t, func(tx storage.Tx) error {
		inv, _ := tx.Inventory("p1")
		inv.Add("documents", 1)
		return tx.PutInventory(&inv)
	})
	require.NoError(t, deliver())

	q := f.quest(t, "courier")
	assert.Equal(t, core.QuestCompleted, q.Status)
	assert.True(t, q.Objective.Delivery.Delivered)
	assert.Equal(t, int64(250), f.player(t, "p1").Balance)
	require.NoError(t, f.store.View(context.Background(), func(tx storage.Tx) error {
		inv, err := tx.Inventory("p1")
		assert.Equal(t, 0, inv.Quantity("documents"))
		return err
	}))
}

func TestDeliver_WrongType(t *testing.T) {
	f := newFixture(t)
	f.publish(t, visitQuest("q1", false))
	f.accept(t, "q1")

	err := f.do(t, func(tx storage.Tx) error {
		p, _ := tx.Player("p1")
		_, err := f.engine.Deliver(tx, &p, "q1", t0)
		return err
	})
	assert.Equal(t, gameerr.CodeWrongQuestType, gameerr.CodeOf(err))
}

func TestManual_ClaimAlwaysMet(t *testing.T) {
	f := newFixture(t)
	f.publish(t, core.Quest{
		ID: "talk", Type: core.QuestManual, Reward: 50,
		Objective: core.Objective{Manual: &core.ManualObjective{Description: "Talk to Sidorovich"}},
	})
	f.accept(t, "talk")

	require.NoError(t, f.do(t, func(tx storage.Tx) error {
		_, err := f.engine.Claim(tx, "p1", "talk", t0)
		return err
	}))
	assert.True(t, f.quest(t, "talk").AwaitingConfirmation)
}

func TestFailAll(t *testing.T) {
	f := newFixture(t)
	f.publish(t, visitQuest("a", false))
	f.publish(t, visitQuest("b", false))
	f.accept(t, "a")
	f.accept(t, "b")

	f.put(t, func(tx storage.Tx) error {
		changes, err := f.engine.FailAll(tx, "p1", core.FailPlayerDeath, t0)
		assert.Len(t, changes, 2)
		return err
	})
	for _, id := range []string{"a", "b"} {
		q := f.quest(t, id)
		assert.Equal(t, core.QuestFailed, q.Status)
		assert.Equal(t, core.FailPlayerDeath, q.FailReason)
	}
}

func TestMarkers_CheckpointOrder(t *testing.T) {
	q := core.Quest{ID: "patrol", Type: core.QuestPatrol, Objective: core.Objective{Patrol: &core.PatrolObjective{
		Checkpoints: []core.Checkpoint{{Position: north(300)}, {Position: north(0), Visited: true}},
	}}}
	ms := Markers(q)
	require.Len(t, ms, 2)
	assert.Equal(t, 0, ms[0].Index)
	assert.Equal(t, "patrol", ms[0].QuestID)
	assert.True(t, ms[1].Visited)

	assert.Nil(t, Markers(core.Quest{ID: "e", Type: core.QuestElimination}))
}

func TestValidate(t *testing.T) {
	assert.NoError(t, Validate(visitQuest("ok", true)))

	bad := []core.Quest{
		{Type: core.QuestVisit, Objective: core.Objective{Visit: &core.VisitObjective{Radius: 10}}},
		{ID: "x", Type: "bogus"},
		{ID: "x", Type: core.QuestVisit},
		{ID: "x", Type: core.QuestVisit, Objective: core.Objective{Visit: &core.VisitObjective{Target: base, Radius: 0}}},
		{ID: "x", Type: core.QuestVisit, Objective: core.Objective{
			Visit: &core.VisitObjective{Target: base, Radius: 5}, Manual: &core.ManualObjective{},
		}},
		{ID: "x", Type: core.QuestPatrol, Objective: core.Objective{Patrol: &core.PatrolObjective{}}},
		{ID: "x", Type: core.QuestElimination, Objective: core.Objective{Elimination: &core.EliminationObjective{}}},
		{ID: "x", Type: core.QuestArtifactCollection, Objective: core.Objective{ArtifactCollection: &core.CollectionObjective{
			TargetCounts: map[string]int{"medusa": 0},
		}}},
		{ID: "x", Type: core.QuestDelivery, Objective: core.Objective{Delivery: &core.DeliveryObjective{Target: base, Radius: 5}}},
		{ID: "x", Type: core.QuestManual, Reward: -1},
	}
	for i, q := range bad {
		assert.ErrorIs(t, Validate(q), gameerr.ErrValidation, "case %d", i)
	}
}
