// internal/quest/quest.go
package quest

import (
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/pdazone/engine/internal/gameerr"
	"github.com/pdazone/engine/internal/geo"
	"github.com/pdazone/engine/internal/storage"
	"github.com/pdazone/engine/pkg/core"
)

// Engine advances quest objectives and runs the quest lifecycle. All
// methods work inside the caller's transaction; an expired error means the
// failed quest has been written and the transaction should still commit.
type Engine struct {
	MaxActive int
	log       *slog.Logger
}

// New creates a quest engine.
func New(maxActive int, log *slog.Logger) *Engine {
	if log == nil {
		log = slog.Default()
	}
	return &Engine{MaxActive: maxActive, log: log}
}

// Change is the outcome of one quest touch.
type Change struct {
	Quest     core.Quest
	Completed bool
	Failed    bool
}

// Advance applies a location report to the player's active quests and
// writes every quest that changed. Rewards of auto-completed quests are
// granted to p, which the caller persists.
func (e *Engine) Advance(tx storage.Tx, p *core.Player, quests []core.Quest, dtSeconds float64, now time.Time) ([]Change, error) {
	var changes []Change
	for i := range quests {
		q := quests[i]
		if !q.Active() || q.AcceptedBy != p.ID {
			continue
		}
		if e.expire(&q, now) {
			if err := e.save(tx, &q, now); err != nil {
				return nil, err
			}
			changes = append(changes, Change{Quest: q, Failed: true})
			continue
		}

		progressed := false
		if p.Position != nil {
			progressed = strategyFor(q.Type).locate(&q.Objective, *p.Position, dtSeconds, now)
		}
		if !progressed {
			continue
		}
		ch, err := e.progressed(tx, p, &q, now)
		if err != nil {
			return nil, err
		}
		changes = append(changes, ch)
	}
	return changes, nil
}

// progressed moves an accepted quest to in_progress, auto-completes it
// when allowed and writes it.
func (e *Engine) progressed(tx storage.Tx, p *core.Player, q *core.Quest, now time.Time) (Change, error) {
	if q.Status == core.QuestAccepted {
		q.Status = core.QuestInProgress
	}
	ch := Change{}
	if q.AutoComplete && q.Type != core.QuestManual && Met(*q) {
		if err := e.complete(tx, p, q, now); err != nil {
			return ch, err
		}
		ch.Completed = true
	}
	if err := e.save(tx, q, now); err != nil {
		return ch, err
	}
	ch.Quest = *q
	return ch, nil
}

// expire fails q if its deadline passed while it was not terminal.
func (e *Engine) expire(q *core.Quest, now time.Time) bool {
	if q.Terminal() || !q.ExpiredAt(now) {
		return false
	}
	e.fail(q, core.FailExpired, now)
	return true
}

func (e *Engine) fail(q *core.Quest, reason string, now time.Time) {
	q.Status = core.QuestFailed
	q.AwaitingConfirmation = false
	q.FailReason = reason
	q.FailedAt = &now
	e.log.Info("quest failed", "quest", q.ID, "player", q.AcceptedBy, "reason", reason)
}

// complete marks q completed and grants its reward to p exactly once.
func (e *Engine) complete(tx storage.Tx, p *core.Player, q *core.Quest, now time.Time) error {
	q.Status = core.QuestCompleted
	q.AwaitingConfirmation = false
	q.CompletedAt = &now
	if !q.RewardGranted {
		p.Balance += q.Reward
		p.Reputation += q.RewardReputation
		p.Stats.QuestsCompleted++
		if q.RewardItemID != "" {
			inv, err := tx.Inventory(p.ID)
			if err != nil {
				return err
			}
			inv.Add(q.RewardItemID, 1)
			if err := tx.PutInventory(&inv); err != nil {
				return err
			}
		}
		q.RewardGranted = true
	}
	e.log.Info("quest completed", "quest", q.ID, "player", p.ID, "reward", q.Reward)
	return nil
}

// save writes q and logs terminal transitions to the event log.
func (e *Engine) save(tx storage.Tx, q *core.Quest, now time.Time) error {
	if err := tx.PutQuest(q); err != nil {
		return err
	}
	switch q.Status {
	case core.QuestCompleted:
		return tx.AppendEvent(&core.GameEvent{
			Type: core.EventQuestCompleted, PlayerID: q.AcceptedBy, At: now,
			Data: map[string]any{"questId": q.ID, "reward": q.Reward},
		})
	case core.QuestFailed:
		return tx.AppendEvent(&core.GameEvent{
			Type: core.EventQuestFailed, PlayerID: q.AcceptedBy, At: now,
			Data: map[string]any{"questId": q.ID, "reason": q.FailReason},
		})
	}
	return nil
}

func load(tx storage.Tx, questID string) (core.Quest, error) {
	q, err := tx.Quest(questID)
	if errors.Is(err, storage.ErrNotFound) {
		return q, gameerr.NotFound(gameerr.CodeQuestNotFound, "quest %s not found", questID)
	}
	return q, err
}

// touch loads a quest and fails it if expired. The returned error is an
// expired error after the failed quest has been written.
func (e *Engine) touch(tx storage.Tx, questID string, now time.Time) (core.Quest, error) {
	q, err := load(tx, questID)
	if err != nil {
		return q, err
	}
	if e.expire(&q, now) {
		if err := e.save(tx, &q, now); err != nil {
			return q, err
		}
		return q, gameerr.Expired(gameerr.CodeQuestExpired, "quest %s expired", q.ID)
	}
	return q, nil
}

// owned loads an active quest held by playerID.
func (e *Engine) owned(tx storage.Tx, playerID, questID string, now time.Time) (core.Quest, error) {
	q, err := e.touch(tx, questID, now)
	if err != nil {
		return q, err
	}
	if q.AcceptedBy != playerID {
		return q, gameerr.Forbidden(gameerr.CodeNotOwner, "quest %s is not accepted by you", q.ID)
	}
	if !q.Active() {
		return q, gameerr.Precondition(gameerr.CodeQuestNotActive, "quest %s is %s", q.ID, q.Status)
	}
	return q, nil
}

// Accept assigns an available quest to p.
func (e *Engine) Accept(tx storage.Tx, p core.Player, questID string, now time.Time) (core.Quest, error) {
	q, err := e.touch(tx, questID, now)
	if err != nil {
		return q, err
	}
	switch {
	case q.Active() && q.AcceptedBy == p.ID:
		return q, nil
	case q.Active():
		return q, gameerr.Conflict(gameerr.CodeQuestNotAvailable, "quest %s was taken", q.ID)
	case q.Status != core.QuestAvailable:
		return q, gameerr.Precondition(gameerr.CodeQuestNotAvailable, "quest %s is %s", q.ID, q.Status)
	}
	if !q.AllowsFaction(p.Faction) {
		return q, gameerr.Forbidden(gameerr.CodeFactionForbidden, "faction %s may not accept quest %s", p.Faction, q.ID)
	}

	active, err := tx.QuestsAcceptedBy(p.ID)
	if err != nil {
		return q, err
	}
	if e.MaxActive > 0 && len(active) >= e.MaxActive {
		return q, gameerr.Precondition(gameerr.CodeMaxQuests, "at most %d active quests", e.MaxActive)
	}

	q.Status = core.QuestAccepted
	q.AcceptedBy = p.ID
	q.AcceptedAt = &now
	q.AwaitingConfirmation = false
	q.Objective.ResetProgress()
	if err := tx.PutQuest(&q); err != nil {
		return q, err
	}
	e.log.Info("quest accepted", "quest", q.ID, "player", p.ID)
	return q, nil
}

// Cancel returns a held quest to the board and discards its progress.
func (e *Engine) Cancel(tx storage.Tx, playerID, questID string, now time.Time) (core.Quest, error) {
	q, err := e.owned(tx, playerID, questID, now)
	if err != nil {
		return q, err
	}
	q.Status = core.QuestAvailable
	q.AcceptedBy = ""
	q.AcceptedAt = nil
	q.AwaitingConfirmation = false
	q.Objective.ResetProgress()
	if err := tx.PutQuest(&q); err != nil {
		return q, err
	}
	e.log.Info("quest cancelled", "quest", q.ID, "player", playerID)
	return q, nil
}

// Claim asks the issuer to confirm a quest whose conditions are met.
func (e *Engine) Claim(tx storage.Tx, playerID, questID string, now time.Time) (core.Quest, error) {
	q, err := e.owned(tx, playerID, questID, now)
	if err != nil {
		return q, err
	}
	if q.AwaitingConfirmation {
		return q, nil
	}
	if q.AutoComplete && q.Type != core.QuestManual {
		return q, gameerr.Precondition(gameerr.CodeAutoComplete, "quest %s completes automatically", q.ID)
	}
	if !Met(q) {
		return q, gameerr.Precondition(gameerr.CodeObjectiveIncomplete, "objective of quest %s is not met", q.ID)
	}
	q.Status = core.QuestInProgress
	q.AwaitingConfirmation = true
	if err := tx.PutQuest(&q); err != nil {
		return q, err
	}
	e.log.Info("quest claimed", "quest", q.ID, "player", playerID)
	return q, nil
}

// Confirm completes a claimed quest. Only the issuer or an operator may call it.
func (e *Engine) Confirm(tx storage.Tx, callerID string, operator bool, questID string, now time.Time) (core.Quest, error) {
	q, err := e.touch(tx, questID, now)
	if err != nil {
		return q, err
	}
	if !operator && q.IssuerID != callerID {
		return q, gameerr.Forbidden(gameerr.CodeNotOwner, "only the issuer may confirm quest %s", q.ID)
	}
	if q.Status == core.QuestCompleted {
		return q, nil
	}
	if q.Status != core.QuestInProgress || !q.AwaitingConfirmation {
		return q, gameerr.Precondition(gameerr.CodeNotAwaiting, "quest %s is not awaiting confirmation", q.ID)
	}

	p, err := tx.Player(q.AcceptedBy)
	if err != nil {
		return q, fmt.Errorf("load acceptor %s: %w", q.AcceptedBy, err)
	}
	if err := e.complete(tx, &p, &q, now); err != nil {
		return q, err
	}
	if err := tx.PutPlayer(&p); err != nil {
		return q, err
	}
	return q, e.save(tx, &q, now)
}

// Deliver hands the delivery item over at the target.
func (e *Engine) Deliver(tx storage.Tx, p *core.Player, questID string, now time.Time) (core.Quest, error) {
	q, err := e.owned(tx, p.ID, questID, now)
	if err != nil {
		return q, err
	}
	d := q.Objective.Delivery
	if q.Type != core.QuestDelivery || d == nil {
		return q, gameerr.Validation(gameerr.CodeWrongQuestType, "quest %s is not a delivery", q.ID)
	}
	if d.Delivered {
		return q, gameerr.Precondition(gameerr.CodeAlreadyDelivered, "quest %s already delivered", q.ID)
	}
	if p.Position == nil {
		return q, gameerr.Precondition(gameerr.CodeNoPosition, "no reported position")
	}
	if !geo.Within(*p.Position, d.Target, d.Radius) {
		return q, gameerr.Precondition(gameerr.CodeTooFar, "%.0fm from delivery point", geo.Distance(*p.Position, d.Target))
	}

	inv, err := tx.Inventory(p.ID)
	if err != nil {
		return q, err
	}
	if inv.Quantity(d.ItemID) < 1 {
		return q, gameerr.Precondition(gameerr.CodeInsufficientItems, "item %s not in inventory", d.ItemID)
	}
	inv.Add(d.ItemID, -1)
	if err := tx.PutInventory(&inv); err != nil {
		return q, err
	}

	d.Delivered = true
	d.DeliveredAt = &now
	ch, err := e.progressed(tx, p, &q, now)
	return ch.Quest, err
}

// RecordKill counts a kill towards the killer's elimination quests.
func (e *Engine) RecordKill(tx storage.Tx, killer *core.Player, victimFaction core.Faction, now time.Time) ([]Change, error) {
	return e.bump(tx, killer, now, func(q *core.Quest) bool {
		el := q.Objective.Elimination
		if q.Type != core.QuestElimination || el == nil || !countsKill(el, victimFaction) {
			return false
		}
		if el.CurrentCount >= el.TargetCount {
			return false
		}
		el.CurrentCount++
		return true
	})
}

// ArtifactCollected counts an extracted artifact of typeID.
func (e *Engine) ArtifactCollected(tx storage.Tx, p *core.Player, typeID string, now time.Time) ([]Change, error) {
	return e.bump(tx, p, now, func(q *core.Quest) bool {
		c := q.Objective.ArtifactCollection
		if q.Type != core.QuestArtifactCollection || c == nil {
			return false
		}
		want, ok := c.TargetCounts[typeID]
		if !ok || c.CurrentCounts[typeID] >= want {
			return false
		}
		if c.CurrentCounts == nil {
			c.CurrentCounts = map[string]int{}
		}
		c.CurrentCounts[typeID]++
		return true
	})
}

// bump applies an event-driven counter increment to the player's active quests.
func (e *Engine) bump(tx storage.Tx, p *core.Player, now time.Time, apply func(*core.Quest) bool) ([]Change, error) {
	quests, err := tx.QuestsAcceptedBy(p.ID)
	if err != nil {
		return nil, err
	}
	var changes []Change
	for i := range quests {
		q := quests[i]
		if e.expire(&q, now) {
			if err := e.save(tx, &q, now); err != nil {
				return nil, err
			}
			changes = append(changes, Change{Quest: q, Failed: true})
			continue
		}
		if !apply(&q) {
			continue
		}
		ch, err := e.progressed(tx, p, &q, now)
		if err != nil {
			return nil, err
		}
		changes = append(changes, ch)
	}
	return changes, nil
}

// FailAll fails every active quest of playerID with reason.
func (e *Engine) FailAll(tx storage.Tx, playerID, reason string, now time.Time) ([]Change, error) {
	quests, err := tx.QuestsAcceptedBy(playerID)
	if err != nil {
		return nil, err
	}
	changes := make([]Change, 0, len(quests))
	for i := range quests {
		q := quests[i]
		e.fail(&q, reason, now)
		if err := e.save(tx, &q, now); err != nil {
			return nil, err
		}
		changes = append(changes, Change{Quest: q, Failed: true})
	}
	return changes, nil
}
