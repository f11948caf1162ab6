// pkg/core/player.go
package core

import "time"

// Point is a WGS84 position in decimal degrees.
type Point struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// PlayerStatus is the life state of a player.
type PlayerStatus string

const (
	StatusAlive PlayerStatus = "alive"
	StatusDead  PlayerStatus = "dead"
)

// Faction names used by zones, quests and traders.
type Faction string

const (
	FactionStalker   Faction = "stalker"
	FactionBandit    Faction = "bandit"
	FactionMercenary Faction = "mercenary"
	FactionDuty      Faction = "duty"
	FactionFreedom   Faction = "freedom"
	FactionLoner     Faction = "loner"
)

// Modifiers are the sums of the effects of everything a player has equipped.
type Modifiers struct {
	RadiationResist float64 `json:"radiationResist"` // percent
	BonusLives      int     `json:"bonusLives"`
}

// PlayerStats are lifetime counters.
type PlayerStats struct {
	Kills           int `json:"kills"`
	Deaths          int `json:"deaths"`
	ArtifactsFound  int `json:"artifactsFound"`
	QuestsCompleted int `json:"questsCompleted"`
}

// CaptureProgress tracks time spent inside a control point owned by another faction.
type CaptureProgress struct {
	ZoneID  string  `json:"zoneId"`
	Seconds float64 `json:"seconds"`
}

// Player is the per-player record mutated by location ticks, extraction,
// trade settlement and inventory actions.
type Player struct {
	ID       string       `json:"id"`
	Nickname string       `json:"nickname"`
	QRCode   string       `json:"qrCode,omitempty"` // printed on the player's badge
	Faction  Faction      `json:"faction"`
	Status   PlayerStatus `json:"status"`

	Position *Point `json:"position,omitempty"`

	CurrentRadiation float64 `json:"currentRadiation"`
	CurrentLives     int     `json:"currentLives"`
	Balance          int64   `json:"balance"`
	Reputation       int     `json:"reputation"`

	Equipment []string  `json:"equipment"`
	Modifiers Modifiers `json:"modifiers"`

	ResurrectionProgressSeconds float64          `json:"resurrectionProgressSeconds"`
	Capture                     *CaptureProgress `json:"capture,omitempty"`

	LastReportAt  *time.Time `json:"lastReportAt,omitempty"`
	LastReportSeq uint64     `json:"lastReportSeq"`
	DiedAt        *time.Time `json:"diedAt,omitempty"`
	LootedAt      *time.Time `json:"lootedAt,omitempty"`

	Stats PlayerStats `json:"stats"`

	Version int64 `json:"version"`
}

// Alive reports whether the player is alive.
func (p Player) Alive() bool {
	return p.Status == StatusAlive
}

// LootedSinceDeath reports whether the current body was already looted.
func (p Player) LootedSinceDeath() bool {
	return p.DiedAt != nil && p.LootedAt != nil && !p.LootedAt.Before(*p.DiedAt)
}

// HasEquipped reports whether itemID is in the player's equipment.
func (p Player) HasEquipped(itemID string) bool {
	for _, id := range p.Equipment {
		if id == itemID {
			return true
		}
	}
	return false
}
