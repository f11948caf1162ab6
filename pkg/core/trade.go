// pkg/core/trade.go
package core

import "time"

// Trader is an NPC merchant placed on the map.
type Trader struct {
	ID                string  `json:"id"`
	Name              string  `json:"name"`
	Faction           Faction `json:"faction,omitempty"`
	Position          Point   `json:"position"`
	InteractionRadius float64 `json:"interactionRadius"`
	CommissionBuyPct  float64 `json:"commissionBuyPct"`
	CommissionSellPct float64 `json:"commissionSellPct"`
	IsActive          bool    `json:"isActive"`

	Version int64 `json:"version"`
}

// TradeDirection is buy (player pays trader) or sell (trader pays player).
type TradeDirection string

const (
	TradeBuy  TradeDirection = "buy"
	TradeSell TradeDirection = "sell"
)

// TradeSession is the short-lived context of one player trading with one trader.
// Commission percentages are snapshotted when the session starts.
type TradeSession struct {
	ID        string    `json:"id"`
	PlayerID  string    `json:"playerId"`
	TraderID  string    `json:"traderId"`
	StartedAt time.Time `json:"startedAt"`
	ExpiresAt time.Time `json:"expiresAt"`

	BuyCommissionPct  float64 `json:"buyCommissionPct"`
	SellCommissionPct float64 `json:"sellCommissionPct"`

	Version int64 `json:"version"`
}

// ExpiredAt reports whether the session deadline has been reached. Like
// quests and artifact spawns, a session is already expired at ExpiresAt.
func (s TradeSession) ExpiredAt(now time.Time) bool {
	return !now.Before(s.ExpiresAt)
}

// LineItem is one cart entry submitted at settlement.
type LineItem struct {
	ItemID   string `json:"itemId"`
	Quantity int    `json:"quantity"`
}
