package model

import (
	"time"

	geom "github.com/peterstace/simplefeatures/geom"
	"gorm.io/datatypes"
)

////////////////////////
// DATABASE STRUCTURES //
////////////////////////

// Every versioned row keeps the full record in Data and copies the fields
// that queries filter on into their own columns. Location holds the record's
// position projected to EPSG:3857.

// DatabaseModels is a list of all the structs exported here which represent tables in the database schema
var DatabaseModels = []interface{}{
	&Player{},
	&Zone{},
	&ZoneControl{},
	&Artifact{},
	&ExtractionAttempt{},
	&Item{},
	&Inventory{},
	&Quest{},
	&Trader{},
	&TradeSession{},
	&GameEvent{},
}

// Player is the model for a player record
type Player struct {
	ID        string         `json:"id" gorm:"primaryKey;size:64"`
	Faction   string         `json:"faction" gorm:"size:32;index:idx_player_faction"`
	Status    string         `json:"status" gorm:"size:16"`
	QRCode    string         `json:"qrCode" gorm:"column:qr_code;size:64;index:idx_player_qr"`
	Location  geom.Point     `json:"location"`
	Data      datatypes.JSON `json:"data" gorm:"type:jsonb"`
	Version   int64          `json:"version"`
	UpdatedAt time.Time      `json:"updatedAt"`
}

func (*Player) TableName() string {
	return "players"
}

// Zone is the model for a map zone
type Zone struct {
	ID        string         `json:"id" gorm:"primaryKey;size:64"`
	Type      string         `json:"type" gorm:"size:32"`
	Location  geom.Point     `json:"location"`
	Radius    float64        `json:"radius"`
	Data      datatypes.JSON `json:"data" gorm:"type:jsonb"`
	Version   int64          `json:"version"`
	UpdatedAt time.Time      `json:"updatedAt"`
}

func (*Zone) TableName() string {
	return "zones"
}

// ZoneControl is the model for a captured control point
type ZoneControl struct {
	ZoneID    string         `json:"zoneId" gorm:"primaryKey;size:64"`
	Faction   string         `json:"faction" gorm:"size:32"`
	Data      datatypes.JSON `json:"data" gorm:"type:jsonb"`
	Version   int64          `json:"version"`
	UpdatedAt time.Time      `json:"updatedAt"`
}

func (*ZoneControl) TableName() string {
	return "zone_controls"
}

// Artifact is the model for an artifact spawn
type Artifact struct {
	ID        string         `json:"id" gorm:"primaryKey;size:64"`
	TypeID    string         `json:"typeId" gorm:"size:64"`
	State     string         `json:"state" gorm:"size:16;index:idx_artifact_state"`
	Location  geom.Point     `json:"location"`
	Data      datatypes.JSON `json:"data" gorm:"type:jsonb"`
	Version   int64          `json:"version"`
	UpdatedAt time.Time      `json:"updatedAt"`
}

func (*Artifact) TableName() string {
	return "artifacts"
}

// ExtractionAttempt is the model for an in-progress artifact hold, one per artifact
type ExtractionAttempt struct {
	ArtifactID string         `json:"artifactId" gorm:"primaryKey;size:64"`
	PlayerID   string         `json:"playerId" gorm:"size:64"`
	StartedAt  time.Time      `json:"startedAt"`
	Data       datatypes.JSON `json:"data" gorm:"type:jsonb"`
	Version    int64          `json:"version"`
}

func (*ExtractionAttempt) TableName() string {
	return "extraction_attempts"
}

// Item is the model for an item definition
type Item struct {
	ID        string         `json:"id" gorm:"primaryKey;size:64"`
	Kind      string         `json:"kind" gorm:"size:16"`
	Data      datatypes.JSON `json:"data" gorm:"type:jsonb"`
	Version   int64          `json:"version"`
	UpdatedAt time.Time      `json:"updatedAt"`
}

func (*Item) TableName() string {
	return "items"
}

// Inventory is the model for the item counts of one owner
type Inventory struct {
	OwnerID   string         `json:"ownerId" gorm:"primaryKey;size:64"`
	Data      datatypes.JSON `json:"data" gorm:"type:jsonb"`
	Version   int64          `json:"version"`
	UpdatedAt time.Time      `json:"updatedAt"`
}

func (*Inventory) TableName() string {
	return "inventories"
}

// Quest is the model for a quest
type Quest struct {
	ID         string         `json:"id" gorm:"primaryKey;size:64"`
	Type       string         `json:"type" gorm:"size:32"`
	Status     string         `json:"status" gorm:"size:16;index:idx_quest_acceptor"`
	AcceptedBy string         `json:"acceptedBy" gorm:"size:64;index:idx_quest_acceptor"`
	Data       datatypes.JSON `json:"data" gorm:"type:jsonb"`
	Version    int64          `json:"version"`
	UpdatedAt  time.Time      `json:"updatedAt"`
}

func (*Quest) TableName() string {
	return "quests"
}

// Trader is the model for a trader
type Trader struct {
	ID        string         `json:"id" gorm:"primaryKey;size:64"`
	Location  geom.Point     `json:"location"`
	Data      datatypes.JSON `json:"data" gorm:"type:jsonb"`
	Version   int64          `json:"version"`
	UpdatedAt time.Time      `json:"updatedAt"`
}

func (*Trader) TableName() string {
	return "traders"
}

// TradeSession is the model for an open trade session. The player and trader
// pair is unique.
type TradeSession struct {
	ID        string         `json:"id" gorm:"primaryKey;size:64"`
	PlayerID  string         `json:"playerId" gorm:"size:64;uniqueIndex:idx_session_pair"`
	TraderID  string         `json:"traderId" gorm:"size:64;uniqueIndex:idx_session_pair"`
	ExpiresAt time.Time      `json:"expiresAt"`
	Data      datatypes.JSON `json:"data" gorm:"type:jsonb"`
	Version   int64          `json:"version"`
}

func (*TradeSession) TableName() string {
	return "trade_sessions"
}

// GameEvent is the model for an entry of the append-only event log
type GameEvent struct {
	Seq      uint           `json:"seq" gorm:"primaryKey;autoIncrement"`
	ID       string         `json:"id" gorm:"size:64;uniqueIndex"`
	Type     string         `json:"type" gorm:"size:32"`
	PlayerID string         `json:"playerId" gorm:"size:64;index:idx_event_player"`
	At       time.Time      `json:"at" gorm:"index:idx_event_player"`
	Data     datatypes.JSON `json:"data" gorm:"type:jsonb;default:'{}'"`
}

func (*GameEvent) TableName() string {
	return "game_events"
}
