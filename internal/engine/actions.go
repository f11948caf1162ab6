package engine

import (
	"context"
	"errors"
	"time"

	"github.com/pdazone/engine/internal/extraction"
	"github.com/pdazone/engine/internal/gameerr"
	"github.com/pdazone/engine/internal/identity"
	"github.com/pdazone/engine/internal/storage"
	"github.com/pdazone/engine/internal/trade"
	"github.com/pdazone/engine/pkg/core"
)

// playerCall runs fn for the caller's player record under its key lock and
// writes the record back when fn succeeds or stages a committed error.
func (e *Engine) playerCall(ctx context.Context, op string, id identity.Identity, fn func(tx storage.Tx, p *core.Player, now time.Time) error) error {
	if err := caller(id); err != nil {
		return err
	}
	defer e.lock(id.PlayerID)()
	now := e.clock.Now()
	return e.update(ctx, op, func(tx storage.Tx) error {
		p, err := loadPlayer(tx, id.PlayerID)
		if err != nil {
			return err
		}
		callErr := fn(tx, &p, now)
		if callErr != nil && !gameerr.Committed(callErr) {
			return callErr
		}
		if err := tx.PutPlayer(&p); err != nil {
			return err
		}
		return callErr
	})
}

// StartExtraction begins the caller's hold on an artifact.
func (e *Engine) StartExtraction(ctx context.Context, id identity.Identity, artifactID string) (extraction.Result, error) {
	var res extraction.Result
	err := e.playerCall(ctx, "start_extraction", id, func(tx storage.Tx, p *core.Player, now time.Time) error {
		var err error
		res, err = e.extraction.Start(tx, *p, artifactID, now)
		return err
	})
	return res, err
}

// CompleteExtraction finishes the caller's hold once the hold time has passed.
func (e *Engine) CompleteExtraction(ctx context.Context, id identity.Identity, artifactID string) (extraction.Result, error) {
	var res extraction.Result
	err := e.playerCall(ctx, "complete_extraction", id, func(tx storage.Tx, p *core.Player, now time.Time) error {
		var err error
		res, err = e.extraction.Complete(tx, p, artifactID, now)
		return err
	})
	if err == nil && res.Artifact.OwnerID == id.PlayerID && res.Artifact.ExtractedAt != nil {
		e.telemetry.Record("extraction", map[string]string{"player": id.PlayerID, "type": res.Artifact.TypeID},
			map[string]any{"artifact": res.Artifact.ID}, *res.Artifact.ExtractedAt)
	}
	return res, err
}

// CancelExtraction releases the caller's hold.
func (e *Engine) CancelExtraction(ctx context.Context, id identity.Identity, artifactID string) (extraction.Result, error) {
	var res extraction.Result
	err := e.playerCall(ctx, "cancel_extraction", id, func(tx storage.Tx, p *core.Player, _ time.Time) error {
		var err error
		res, err = e.extraction.Cancel(tx, p.ID, artifactID)
		return err
	})
	return res, err
}

// AcceptQuest assigns a quest to the caller.
func (e *Engine) AcceptQuest(ctx context.Context, id identity.Identity, questID string) (core.Quest, error) {
	var q core.Quest
	err := e.playerCall(ctx, "accept_quest", id, func(tx storage.Tx, p *core.Player, now time.Time) error {
		var err error
		q, err = e.quests.Accept(tx, *p, questID, now)
		return err
	})
	return q, err
}

// CancelQuest gives a held quest back.
func (e *Engine) CancelQuest(ctx context.Context, id identity.Identity, questID string) (core.Quest, error) {
	var q core.Quest
	err := e.playerCall(ctx, "cancel_quest", id, func(tx storage.Tx, p *core.Player, now time.Time) error {
		var err error
		q, err = e.quests.Cancel(tx, p.ID, questID, now)
		return err
	})
	return q, err
}

// ClaimQuest asks the issuer to confirm a met quest.
func (e *Engine) ClaimQuest(ctx context.Context, id identity.Identity, questID string) (core.Quest, error) {
	var q core.Quest
	err := e.playerCall(ctx, "claim_quest", id, func(tx storage.Tx, p *core.Player, now time.Time) error {
		var err error
		q, err = e.quests.Claim(tx, p.ID, questID, now)
		return err
	})
	return q, err
}

// DeliverQuest hands over the item of a delivery quest.
func (e *Engine) DeliverQuest(ctx context.Context, id identity.Identity, questID string) (core.Quest, error) {
	var q core.Quest
	err := e.playerCall(ctx, "deliver_quest", id, func(tx storage.Tx, p *core.Player, now time.Time) error {
		var err error
		q, err = e.quests.Deliver(tx, p, questID, now)
		return err
	})
	return q, err
}

// ConfirmQuest completes a claimed quest. The caller must be the issuer or
// an operator; the acceptor's key is locked since the reward lands there.
func (e *Engine) ConfirmQuest(ctx context.Context, id identity.Identity, questID string) (core.Quest, error) {
	var q core.Quest
	err := e.view(ctx, "confirm_quest", func(tx storage.Tx) error {
		var err error
		q, err = tx.Quest(questID)
		if errors.Is(err, storage.ErrNotFound) {
			return gameerr.NotFound(gameerr.CodeQuestNotFound, "quest %s not found", questID)
		}
		return err
	})
	if err != nil {
		return q, err
	}
	if !id.Operator() && q.IssuerID != id.PlayerID {
		return q, gameerr.Forbidden(gameerr.CodeNotOwner, "only the issuer may confirm quest %s", q.ID)
	}
	if q.AcceptedBy != "" {
		defer e.lock(q.AcceptedBy)()
	}

	now := e.clock.Now()
	err = e.update(ctx, "confirm_quest", func(tx storage.Tx) error {
		var err error
		q, err = e.quests.Confirm(tx, id.PlayerID, id.Operator(), questID, now)
		return err
	})
	return q, err
}

// Quests returns the quests the caller holds.
func (e *Engine) Quests(ctx context.Context, id identity.Identity) ([]core.Quest, error) {
	if err := caller(id); err != nil {
		return nil, err
	}
	var qs []core.Quest
	err := e.view(ctx, "list_quests", func(tx storage.Tx) error {
		var err error
		qs, err = tx.QuestsAcceptedBy(id.PlayerID)
		return err
	})
	return qs, err
}

// StartTradeSession opens a session between the caller and a trader.
func (e *Engine) StartTradeSession(ctx context.Context, id identity.Identity, traderID string) (core.TradeSession, error) {
	var s core.TradeSession
	err := e.playerCall(ctx, "start_trade", id, func(tx storage.Tx, p *core.Player, now time.Time) error {
		var err error
		s, err = e.trade.Start(tx, *p, traderID, now)
		return err
	})
	return s, err
}

// Catalog prices the trader's stock and the caller's items for a session.
// It never writes the player record; the only possible write is the removal
// of an expired session.
func (e *Engine) Catalog(ctx context.Context, id identity.Identity, sessionID string) ([]trade.Price, error) {
	if err := caller(id); err != nil {
		return nil, err
	}
	defer e.lock(id.PlayerID)()
	now := e.clock.Now()
	var prices []trade.Price
	err := e.update(ctx, "trade_catalog", func(tx storage.Tx) error {
		var err error
		prices, err = e.trade.Catalog(tx, id.PlayerID, sessionID, now)
		return err
	})
	return prices, err
}

// SettleTrade executes a cart and closes the session.
func (e *Engine) SettleTrade(ctx context.Context, id identity.Identity, sessionID string, items []core.LineItem, dir core.TradeDirection) (trade.Settlement, error) {
	var out trade.Settlement
	var at time.Time
	err := e.playerCall(ctx, "settle_trade", id, func(tx storage.Tx, p *core.Player, now time.Time) error {
		var err error
		at = now
		out, err = e.trade.Settle(tx, p, sessionID, items, dir, now)
		return err
	})
	if err == nil {
		e.telemetry.Record("trade", map[string]string{"player": id.PlayerID, "direction": string(dir)},
			map[string]any{"total": out.Total, "lines": len(out.Items)}, at)
	}
	return out, err
}
