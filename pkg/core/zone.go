// pkg/core/zone.go
package core

import "time"

// ZoneType selects the effect a zone has on players inside it.
type ZoneType string

const (
	ZoneRadiation    ZoneType = "radiation"
	ZoneRespawn      ZoneType = "respawn"
	ZoneControlPoint ZoneType = "control_point"
)

// Zone is a circular geofence created by an operator. The engine only reads zones.
type Zone struct {
	ID     string   `json:"id"`
	Name   string   `json:"name"`
	Type   ZoneType `json:"type"`
	Center Point    `json:"center"`
	Radius float64  `json:"radius"` // meters

	RadiationLevel     float64 `json:"radiationLevel,omitempty"`
	RespawnTimeSeconds float64 `json:"respawnTimeSeconds,omitempty"`

	ActiveFrom *time.Time `json:"activeFrom,omitempty"`
	ActiveTo   *time.Time `json:"activeTo,omitempty"`
	IsActive   bool       `json:"isActive"`

	Version int64 `json:"version"`
}

// ActiveAt reports whether the zone is enabled and inside its time window.
func (z Zone) ActiveAt(now time.Time) bool {
	if !z.IsActive || z.Radius <= 0 {
		return false
	}
	if z.ActiveFrom != nil && now.Before(*z.ActiveFrom) {
		return false
	}
	if z.ActiveTo != nil && !now.Before(*z.ActiveTo) {
		return false
	}
	return true
}

// ZoneControl records which faction holds a control point. It is kept apart
// from Zone so that capturing never writes operator data.
type ZoneControl struct {
	ZoneID     string    `json:"zoneId"`
	Faction    Faction   `json:"faction"`
	PlayerID   string    `json:"playerId"`
	CapturedAt time.Time `json:"capturedAt"`

	Version int64 `json:"version"`
}
