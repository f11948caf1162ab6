// internal/trade/trade.go
package trade

import (
	"errors"
	"log/slog"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/pdazone/engine/internal/gameerr"
	"github.com/pdazone/engine/internal/geo"
	"github.com/pdazone/engine/internal/storage"
	"github.com/pdazone/engine/pkg/core"
)

// Manager brokers trade sessions between players and traders. Sessions
// expire lazily: the first call that sees an expired session deletes it.
type Manager struct {
	TTL time.Duration

	log   *slog.Logger
	newID func() string
}

// New creates a session manager with the given session lifetime.
func New(ttl time.Duration, log *slog.Logger) *Manager {
	if log == nil {
		log = slog.Default()
	}
	return &Manager{TTL: ttl, log: log, newID: uuid.NewString}
}

// Price is one catalog line.
type Price struct {
	ItemID    string        `json:"itemId"`
	Name      string        `json:"name"`
	Kind      core.ItemKind `json:"kind"`
	BuyPrice  int64         `json:"buyPrice"`
	SellPrice int64         `json:"sellPrice"`
	Stock     int           `json:"stock"`
	Owned     int           `json:"owned"`
	Sellable  bool          `json:"sellable"`
}

// Settlement is the outcome of a settled trade.
type Settlement struct {
	SessionID string              `json:"sessionId"`
	Direction core.TradeDirection `json:"direction"`
	Items     []core.LineItem     `json:"items"`
	Total     int64               `json:"total"`
	Balance   int64               `json:"newBalance"`
}

// Start opens a session between p and a trader within interaction range.
func (m *Manager) Start(tx storage.Tx, p core.Player, traderID string, now time.Time) (core.TradeSession, error) {
	var s core.TradeSession
	tr, err := tx.Trader(traderID)
	if errors.Is(err, storage.ErrNotFound) {
		return s, gameerr.NotFound(gameerr.CodeTraderNotFound, "trader %s not found", traderID)
	}
	if err != nil {
		return s, err
	}
	if !tr.IsActive {
		return s, gameerr.Precondition(gameerr.CodeTraderInactive, "trader %s is not trading", tr.ID)
	}
	if p.Position == nil {
		return s, gameerr.Precondition(gameerr.CodeNoPosition, "no reported position")
	}
	if d := geo.Distance(*p.Position, tr.Position); d > tr.InteractionRadius {
		return s, gameerr.Precondition(gameerr.CodeTraderTooFar, "%.0fm from trader, interaction radius is %.0fm", d, tr.InteractionRadius)
	}

	existing, err := tx.SessionFor(p.ID, tr.ID)
	switch {
	case errors.Is(err, storage.ErrNotFound):
	case err != nil:
		return s, err
	case existing.ExpiredAt(now):
		if err := tx.DeleteSession(existing); err != nil {
			return s, err
		}
	default:
		return existing, gameerr.Conflict(gameerr.CodeSessionActive, "a session with trader %s is already open", tr.ID)
	}

	s = core.TradeSession{
		ID:                m.newID(),
		PlayerID:          p.ID,
		TraderID:          tr.ID,
		StartedAt:         now,
		ExpiresAt:         now.Add(m.TTL),
		BuyCommissionPct:  Effective(tr.CommissionBuyPct, p.Reputation),
		SellCommissionPct: Effective(tr.CommissionSellPct, p.Reputation),
	}
	if err := tx.PutSession(&s); err != nil {
		return s, err
	}
	m.log.Info("trade session started", "session", s.ID, "player", p.ID, "trader", tr.ID)
	return s, nil
}

// session loads a live session owned by playerID. An expired session is
// deleted and reported as expired; the caller commits that deletion.
func (m *Manager) session(tx storage.Tx, playerID, sessionID string, now time.Time) (core.TradeSession, error) {
	s, err := tx.Session(sessionID)
	if errors.Is(err, storage.ErrNotFound) {
		return s, gameerr.NotFound(gameerr.CodeSessionNotFound, "session %s not found", sessionID)
	}
	if err != nil {
		return s, err
	}
	if s.PlayerID != playerID {
		return s, gameerr.Forbidden(gameerr.CodeNotOwner, "session %s belongs to another player", s.ID)
	}
	if s.ExpiredAt(now) {
		if err := tx.DeleteSession(s); err != nil {
			return s, err
		}
		m.log.Info("trade session expired", "session", s.ID, "player", playerID)
		return s, gameerr.Expired(gameerr.CodeSessionExpired, "session %s expired at %s", s.ID, s.ExpiresAt.Format(time.RFC3339))
	}
	return s, nil
}

// Catalog lists the trader's stock and the player's items priced with the
// commissions snapshotted in the session.
func (m *Manager) Catalog(tx storage.Tx, playerID, sessionID string, now time.Time) ([]Price, error) {
	s, err := m.session(tx, playerID, sessionID, now)
	if err != nil {
		return nil, err
	}
	stock, err := tx.Inventory(s.TraderID)
	if err != nil {
		return nil, err
	}
	owned, err := tx.Inventory(s.PlayerID)
	if err != nil {
		return nil, err
	}

	ids := map[string]bool{}
	for id := range stock.Items {
		ids[id] = true
	}
	for id := range owned.Items {
		ids[id] = true
	}
	out := make([]Price, 0, len(ids))
	for id := range ids {
		it, err := tx.Item(id)
		if errors.Is(err, storage.ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		out = append(out, Price{
			ItemID:    it.ID,
			Name:      it.Name,
			Kind:      it.Kind,
			BuyPrice:  BuyPrice(it.BasePrice, s.BuyCommissionPct),
			SellPrice: SellPrice(it.BasePrice, s.SellCommissionPct),
			Stock:     stock.Quantity(id),
			Owned:     owned.Quantity(id),
			Sellable:  it.Sellable,
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ItemID < out[j].ItemID })
	return out, nil
}

// merge validates a cart and folds duplicate lines together.
func merge(items []core.LineItem) ([]core.LineItem, error) {
	if len(items) == 0 {
		return nil, gameerr.Validation(gameerr.CodeInvalidInput, "cart is empty")
	}
	qty := map[string]int{}
	var order []string
	for _, li := range items {
		if li.ItemID == "" || li.Quantity <= 0 {
			return nil, gameerr.Validation(gameerr.CodeInvalidInput, "cart lines need an item id and a positive quantity")
		}
		if _, ok := qty[li.ItemID]; !ok {
			order = append(order, li.ItemID)
		}
		qty[li.ItemID] += li.Quantity
	}
	out := make([]core.LineItem, 0, len(order))
	for _, id := range order {
		out = append(out, core.LineItem{ItemID: id, Quantity: qty[id]})
	}
	return out, nil
}

// Settle executes the cart in one direction and closes the session. Balance,
// both inventories and the session deletion are written in tx, so they
// commit together or not at all. p is written by Settle.
func (m *Manager) Settle(tx storage.Tx, p *core.Player, sessionID string, items []core.LineItem, dir core.TradeDirection, now time.Time) (Settlement, error) {
	var out Settlement
	if dir != core.TradeBuy && dir != core.TradeSell {
		return out, gameerr.Validation(gameerr.CodeInvalidInput, "direction must be buy or sell")
	}
	s, err := m.session(tx, p.ID, sessionID, now)
	if err != nil {
		return out, err
	}
	cart, err := merge(items)
	if err != nil {
		return out, err
	}
	if dir == core.TradeSell && !p.Alive() {
		return out, gameerr.Precondition(gameerr.CodePlayerDead, "dead players cannot sell")
	}

	var total int64
	for _, li := range cart {
		it, err := tx.Item(li.ItemID)
		if errors.Is(err, storage.ErrNotFound) {
			return out, gameerr.NotFound(gameerr.CodeItemNotFound, "item %s not found", li.ItemID)
		}
		if err != nil {
			return out, err
		}
		if dir == core.TradeSell {
			if !it.Sellable {
				return out, gameerr.Validation(gameerr.CodeItemNotSellable, "item %s cannot be sold", it.ID)
			}
			total += SellPrice(it.BasePrice, s.SellCommissionPct) * int64(li.Quantity)
		} else {
			total += BuyPrice(it.BasePrice, s.BuyCommissionPct) * int64(li.Quantity)
		}
	}

	stock, err := tx.Inventory(s.TraderID)
	if err != nil {
		return out, err
	}
	owned, err := tx.Inventory(p.ID)
	if err != nil {
		return out, err
	}

	from, to := &stock, &owned
	if dir == core.TradeSell {
		from, to = &owned, &stock
	}
	for _, li := range cart {
		if from.Quantity(li.ItemID) < li.Quantity {
			if dir == core.TradeBuy {
				return out, gameerr.Precondition(gameerr.CodeInsufficientStock, "trader has %d of %s", from.Quantity(li.ItemID), li.ItemID)
			}
			return out, gameerr.Precondition(gameerr.CodeInsufficientItems, "you have %d of %s", from.Quantity(li.ItemID), li.ItemID)
		}
	}
	if dir == core.TradeBuy {
		if p.Balance < total {
			return out, gameerr.Precondition(gameerr.CodeInsufficientFunds, "need %d, have %d", total, p.Balance)
		}
		p.Balance -= total
	} else {
		p.Balance += total
	}
	if err := tx.PutPlayer(p); err != nil {
		return out, err
	}

	for _, li := range cart {
		from.Add(li.ItemID, -li.Quantity)
		to.Add(li.ItemID, li.Quantity)
	}
	if err := tx.PutInventory(&stock); err != nil {
		return out, err
	}
	if err := tx.PutInventory(&owned); err != nil {
		return out, err
	}
	if err := tx.DeleteSession(s); err != nil {
		return out, err
	}
	if err := tx.AppendEvent(&core.GameEvent{
		Type: core.EventTrade, PlayerID: p.ID, At: now,
		Data: map[string]any{"traderId": s.TraderID, "direction": string(dir), "total": total},
	}); err != nil {
		return out, err
	}

	m.log.Info("trade settled", "session", s.ID, "player", p.ID, "trader", s.TraderID, "direction", dir, "total", total)
	return Settlement{SessionID: s.ID, Direction: dir, Items: cart, Total: total, Balance: p.Balance}, nil
}

// Sweep deletes sessionID if it has expired. It reports whether it did.
func (m *Manager) Sweep(tx storage.Tx, sessionID string, now time.Time) (bool, error) {
	s, err := tx.Session(sessionID)
	if errors.Is(err, storage.ErrNotFound) {
		return false, nil
	}
	if err != nil || !s.ExpiredAt(now) {
		return false, err
	}
	return true, tx.DeleteSession(s)
}
